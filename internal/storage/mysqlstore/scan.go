package mysqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/steveyegge/saga/internal/storage"
	"github.com/steveyegge/saga/internal/types"
)

// Columns returns the relation's column names in ordinal order.
func (s *Store) Columns(ctx context.Context, table string) ([]string, error) {
	rows, err := s.queryContext(ctx,
		`SELECT column_name FROM information_schema.columns
		 WHERE table_schema = DATABASE() AND table_name = ?
		 ORDER BY ordinal_position`, table)
	if err != nil {
		return nil, storage.WrapDBError("columns", err)
	}
	defer rows.Close()
	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, storage.WrapDBError("columns", err)
		}
		cols = append(cols, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.WrapDBError("columns", err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("columns %s: %w", table, storage.ErrNotFound)
	}
	return cols, nil
}

// ScanTarget returns target rows matching the filter. Each key map becomes a
// null-safe conjunction; the union of all selectors scopes the scan.
func (s *Store) ScanTarget(ctx context.Context, table string, filter storage.TargetFilter) ([]types.TargetRow, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	query := "SELECT " + selectList(cols) + " FROM " + quoteIdent(table)
	var args []any
	if !filter.FullScan {
		if len(filter.Keys) == 0 {
			return nil, nil
		}
		var selectors []string
		for _, key := range filter.Keys {
			var conj []string
			for _, col := range key.SortedKeys() {
				// <=> is the null-safe equality operator.
				conj = append(conj, quoteIdent(col)+" <=> ?")
				args = append(args, datumValue(key[col]))
			}
			selectors = append(selectors, "("+strings.Join(conj, " AND ")+")")
		}
		query += " WHERE " + strings.Join(selectors, " OR ")
	}
	query += " ORDER BY " + selectList(sortedCopy(cols))

	rows, err := s.queryContext(ctx, query, args...)
	if err != nil {
		return nil, storage.WrapDBError("scan target", err)
	}
	defer rows.Close()
	maps, err := scanRows(rows, cols)
	if err != nil {
		return nil, err
	}
	out := make([]types.TargetRow, len(maps))
	for i, m := range maps {
		out[i] = types.TargetRow{Columns: m}
	}
	return out, nil
}

// ScanSource materializes the source batch ordered by row id.
func (s *Store) ScanSource(ctx context.Context, table, rowIDCol string) ([]types.SourceRow, error) {
	cols, err := s.Columns(ctx, table)
	if err != nil {
		return nil, err
	}
	if !containsColumn(cols, rowIDCol) {
		return nil, fmt.Errorf("scan source %s: %q: %w", table, rowIDCol, storage.ErrMissingRowID)
	}
	query := "SELECT " + selectList(cols) + " FROM " + quoteIdent(table) +
		" ORDER BY " + quoteIdent(rowIDCol)
	rows, err := s.queryContext(ctx, query)
	if err != nil {
		return nil, storage.WrapDBError("scan source", err)
	}
	defer rows.Close()
	maps, err := scanRows(rows, cols)
	if err != nil {
		return nil, err
	}
	out := make([]types.SourceRow, 0, len(maps))
	for _, m := range maps {
		id := m.Get(rowIDCol)
		if id.Kind != types.KindInt {
			return nil, fmt.Errorf("scan source %s: row id %s is not an integer", table, id)
		}
		out = append(out, types.SourceRow{RowID: id.Int, Columns: m.Without(rowIDCol)})
	}
	return out, nil
}

// InsertRow stores a new segment. When a single NULL integer column receives
// an auto-increment value, the stored row reflects it via LAST_INSERT_ID.
func (s *Store) InsertRow(ctx context.Context, table string, row types.ColumnMap) (types.ColumnMap, error) {
	cols := row.SortedKeys()
	var names, holes []string
	var args []any
	var nullCols []string
	for _, col := range cols {
		if row[col].IsNull() {
			// Omit NULLs so auto-increment and column defaults apply.
			nullCols = append(nullCols, col)
			continue
		}
		names = append(names, quoteIdent(col))
		holes = append(holes, "?")
		args = append(args, datumValue(row[col]))
	}
	query := "INSERT INTO " + quoteIdent(table) + " (" + strings.Join(names, ", ") + ") VALUES (" + strings.Join(holes, ", ") + ")"
	res, err := s.execContext(ctx, query, args...)
	if err != nil {
		return nil, storage.WrapDBError("insert row", err)
	}
	stored := row.Clone()
	// A generated identity is only attributable when exactly one column was
	// omitted.
	if len(nullCols) == 1 {
		if id, err := res.LastInsertId(); err == nil && id != 0 {
			stored[nullCols[0]] = types.Int64(id)
		}
	}
	return stored, nil
}

// UpdateRow rewrites the segment addressed by key.
func (s *Store) UpdateRow(ctx context.Context, table string, key, row types.ColumnMap) error {
	var sets []string
	var args []any
	for _, col := range row.SortedKeys() {
		sets = append(sets, quoteIdent(col)+" = ?")
		args = append(args, datumValue(row[col]))
	}
	where, whereArgs := keyPredicate(key)
	args = append(args, whereArgs...)
	query := "UPDATE " + quoteIdent(table) + " SET " + strings.Join(sets, ", ") + " WHERE " + where
	res, err := s.execContext(ctx, query, args...)
	if err != nil {
		return storage.WrapDBError("update row", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update row: %w", storage.ErrNotFound)
	}
	return nil
}

// DeleteRow removes the segment addressed by key.
func (s *Store) DeleteRow(ctx context.Context, table string, key types.ColumnMap) error {
	where, args := keyPredicate(key)
	query := "DELETE FROM " + quoteIdent(table) + " WHERE " + where
	res, err := s.execContext(ctx, query, args...)
	if err != nil {
		return storage.WrapDBError("delete row", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete row: %w", storage.ErrNotFound)
	}
	return nil
}

func keyPredicate(key types.ColumnMap) (string, []any) {
	var conj []string
	var args []any
	for _, col := range key.SortedKeys() {
		conj = append(conj, quoteIdent(col)+" <=> ?")
		args = append(args, datumValue(key[col]))
	}
	return strings.Join(conj, " AND "), args
}

func selectList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(c)
	}
	return strings.Join(quoted, ", ")
}

func sortedCopy(cols []string) []string {
	out := append([]string(nil), cols...)
	sort.Strings(out)
	return out
}

func containsColumn(cols []string, name string) bool {
	for _, c := range cols {
		if c == name {
			return true
		}
	}
	return false
}

// scanRows reads every row into column maps, converting driver values to
// datums.
func scanRows(rows *sql.Rows, cols []string) ([]types.ColumnMap, error) {
	var out []types.ColumnMap
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, storage.WrapDBError("scan rows", err)
		}
		m := make(types.ColumnMap, len(cols))
		for i, col := range cols {
			d, err := driverDatum(vals[i])
			if err != nil {
				return nil, fmt.Errorf("scan rows: column %s: %w", col, err)
			}
			m[col] = d
		}
		out = append(out, m)
	}
	return out, storage.WrapDBError("scan rows", rows.Err())
}

// driverDatum converts a database/sql value to a Datum. The mysql driver
// yields []byte for text and temporal columns unless parseTime is set.
func driverDatum(v any) (types.Datum, error) {
	switch x := v.(type) {
	case nil:
		return types.Null(), nil
	case int64:
		return types.Int64(x), nil
	case float64:
		return types.Float64(x), nil
	case bool:
		return types.Boolean(x), nil
	case time.Time:
		return types.Time(x), nil
	case []byte:
		return types.FromInterface(string(x))
	case string:
		return types.FromInterface(x)
	}
	return types.Datum{}, fmt.Errorf("unsupported driver value %T", v)
}

// datumValue converts a Datum to a driver argument.
func datumValue(d types.Datum) any {
	switch d.Kind {
	case types.KindNull:
		return nil
	case types.KindInt:
		return d.Int
	case types.KindFloat:
		return d.Float
	case types.KindString:
		return d.Str
	case types.KindBool:
		return d.Bool
	case types.KindTime:
		return d.Time
	}
	return nil
}
