// Package memory implements the storage interfaces over in-process tables.
// It backs tests and the CLI's fixture mode; rows keep insertion order so
// scans are deterministic without an index.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/steveyegge/saga/internal/storage"
	"github.com/steveyegge/saga/internal/types"
)

// Store holds named tables and era registrations in memory.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	eras   map[string]types.Era // keyed by table + "\x00" + name

	// AutoIncrementColumn optionally names a column that receives a
	// generated value on insert when NULL (single-column integer identity).
	AutoIncrementColumn string
}

type table struct {
	columns []string
	rows    []types.ColumnMap
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string]*table),
		eras:   make(map[string]types.Era),
	}
}

// CreateTable registers a table with the given columns.
func (s *Store) CreateTable(name string, columns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[name] = &table{columns: append([]string(nil), columns...)}
}

// AppendRow adds a row to a table, for fixtures and tests.
func (s *Store) AppendRow(name string, row types.ColumnMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return fmt.Errorf("append %s: %w", name, storage.ErrNotFound)
	}
	t.rows = append(t.rows, row.Clone())
	return nil
}

func eraKey(tbl, name string) string { return tbl + "\x00" + name }

// AddEra registers an era.
func (s *Store) AddEra(_ context.Context, era types.Era) error {
	if err := era.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eraKey(era.Table, era.Name)
	if _, ok := s.eras[key]; ok {
		return fmt.Errorf("era %s on %s: %w", era.Name, era.Table, storage.ErrConflict)
	}
	s.eras[key] = era
	return nil
}

// GetEra returns the era registered for (table, name).
func (s *Store) GetEra(_ context.Context, tbl, name string) (types.Era, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	era, ok := s.eras[eraKey(tbl, name)]
	if !ok {
		return types.Era{}, fmt.Errorf("era %s on %s: %w", name, tbl, storage.ErrNotFound)
	}
	return era, nil
}

// ListEras returns all eras ordered by (table, name).
func (s *Store) ListEras(_ context.Context) ([]types.Era, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]types.Era, 0, len(s.eras))
	for _, era := range s.eras {
		out = append(out, era)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Table != out[j].Table {
			return out[i].Table < out[j].Table
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

// DropEra removes a registration.
func (s *Store) DropEra(_ context.Context, tbl, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := eraKey(tbl, name)
	if _, ok := s.eras[key]; !ok {
		return fmt.Errorf("era %s on %s: %w", name, tbl, storage.ErrNotFound)
	}
	delete(s.eras, key)
	return nil
}

// Columns returns a table's column names.
func (s *Store) Columns(_ context.Context, tbl string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tbl]
	if !ok {
		return nil, fmt.Errorf("columns %s: %w", tbl, storage.ErrNotFound)
	}
	return append([]string(nil), t.columns...), nil
}

// ScanTarget returns target rows matching the filter, in stored order.
func (s *Store) ScanTarget(_ context.Context, tbl string, filter storage.TargetFilter) ([]types.TargetRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tbl]
	if !ok {
		return nil, fmt.Errorf("scan target %s: %w", tbl, storage.ErrNotFound)
	}
	var out []types.TargetRow
	for _, row := range t.rows {
		if filter.FullScan || matchesAny(row, filter.Keys) {
			out = append(out, types.TargetRow{Columns: row.Clone()})
		}
	}
	return out, nil
}

// ScanSource materializes the source batch ordered by row id.
func (s *Store) ScanSource(_ context.Context, tbl, rowIDCol string) ([]types.SourceRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tbl]
	if !ok {
		return nil, fmt.Errorf("scan source %s: %w", tbl, storage.ErrNotFound)
	}
	if !containsColumn(t.columns, rowIDCol) {
		return nil, fmt.Errorf("scan source %s: %q: %w", tbl, rowIDCol, storage.ErrMissingRowID)
	}
	out := make([]types.SourceRow, 0, len(t.rows))
	for _, row := range t.rows {
		id := row.Get(rowIDCol)
		if id.Kind != types.KindInt {
			return nil, fmt.Errorf("scan source %s: row id %s is not an integer", tbl, id)
		}
		out = append(out, types.SourceRow{RowID: id.Int, Columns: row.Without(rowIDCol)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out, nil
}

// InsertRow stores a segment, assigning the auto-increment column when
// configured and NULL.
func (s *Store) InsertRow(_ context.Context, tbl string, row types.ColumnMap) (types.ColumnMap, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tbl]
	if !ok {
		return nil, fmt.Errorf("insert %s: %w", tbl, storage.ErrNotFound)
	}
	stored := row.Clone()
	if col := s.AutoIncrementColumn; col != "" && stored.Get(col).IsNull() {
		stored[col] = types.Int64(s.maxAuto(t, col) + 1)
	}
	t.rows = append(t.rows, stored)
	return stored.Clone(), nil
}

// UpdateRow rewrites the segment addressed by key.
func (s *Store) UpdateRow(_ context.Context, tbl string, key, row types.ColumnMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tbl]
	if !ok {
		return fmt.Errorf("update %s: %w", tbl, storage.ErrNotFound)
	}
	i, err := findRow(t, key)
	if err != nil {
		return fmt.Errorf("update %s: %w", tbl, err)
	}
	t.rows[i] = row.Clone()
	return nil
}

// DeleteRow removes the segment addressed by key.
func (s *Store) DeleteRow(_ context.Context, tbl string, key types.ColumnMap) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[tbl]
	if !ok {
		return fmt.Errorf("delete %s: %w", tbl, storage.ErrNotFound)
	}
	i, err := findRow(t, key)
	if err != nil {
		return fmt.Errorf("delete %s: %w", tbl, err)
	}
	t.rows = append(t.rows[:i], t.rows[i+1:]...)
	return nil
}

// Close is a no-op for the in-memory backend.
func (s *Store) Close() error { return nil }

// Rows returns a copy of a table's rows, for tests.
func (s *Store) Rows(tbl string) []types.ColumnMap {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tables[tbl]
	if !ok {
		return nil
	}
	out := make([]types.ColumnMap, len(t.rows))
	for i, r := range t.rows {
		out[i] = r.Clone()
	}
	return out
}

func findRow(t *table, key types.ColumnMap) (int, error) {
	for i, row := range t.rows {
		if matches(row, key) {
			return i, nil
		}
	}
	return 0, storage.ErrNotFound
}

func (s *Store) maxAuto(t *table, col string) int64 {
	var max int64
	for _, row := range t.rows {
		if v := row.Get(col); v.Kind == types.KindInt && v.Int > max {
			max = v.Int
		}
	}
	return max
}

// matches reports whether the row null-safely agrees with the key map.
func matches(row types.ColumnMap, key types.ColumnMap) bool {
	for k, v := range key {
		if !row.Get(k).Equal(v) {
			return false
		}
	}
	return true
}

// matchesAny reports whether the row agrees with any key map.
func matchesAny(row types.ColumnMap, keys []types.ColumnMap) bool {
	for _, key := range keys {
		if matches(row, key) {
			return true
		}
	}
	return false
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}
