package mysqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/steveyegge/saga/internal/storage"
	"github.com/steveyegge/saga/internal/types"
)

// eraTableDDL creates the metadata table holding era registrations.
const eraTableDDL = `CREATE TABLE IF NOT EXISTS saga_era (
	table_name VARCHAR(255) NOT NULL,
	era_name VARCHAR(255) NOT NULL,
	valid_from_column VARCHAR(255) NOT NULL,
	valid_until_column VARCHAR(255) NOT NULL,
	valid_to_column VARCHAR(255) NOT NULL DEFAULT '',
	range_subtype VARCHAR(32) NOT NULL,
	PRIMARY KEY (table_name, era_name)
)`

func (s *Store) ensureEraTable(ctx context.Context) error {
	_, err := s.execContext(ctx, eraTableDDL)
	return storage.WrapDBError("ensure saga_era", err)
}

// AddEra registers an era.
func (s *Store) AddEra(ctx context.Context, era types.Era) error {
	if err := era.Validate(); err != nil {
		return err
	}
	_, err := s.execContext(ctx,
		`INSERT INTO saga_era (table_name, era_name, valid_from_column, valid_until_column, valid_to_column, range_subtype)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		era.Table, era.Name, era.ValidFromColumn, era.ValidUntilColumn, era.ValidToColumn, string(era.Subtype))
	if err != nil && strings.Contains(strings.ToLower(err.Error()), "duplicate") {
		return fmt.Errorf("era %s on %s: %w", era.Name, era.Table, storage.ErrConflict)
	}
	return storage.WrapDBError("add era", err)
}

// GetEra returns the era registered for (table, name).
func (s *Store) GetEra(ctx context.Context, table, name string) (types.Era, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT table_name, era_name, valid_from_column, valid_until_column, valid_to_column, range_subtype
		 FROM saga_era WHERE table_name = ? AND era_name = ?`, table, name)
	var era types.Era
	var subtype string
	err := row.Scan(&era.Table, &era.Name, &era.ValidFromColumn, &era.ValidUntilColumn, &era.ValidToColumn, &subtype)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Era{}, fmt.Errorf("era %s on %s: %w", name, table, storage.ErrNotFound)
	}
	if err != nil {
		return types.Era{}, storage.WrapDBError("get era", err)
	}
	era.Subtype = types.RangeSubtype(subtype)
	return era, nil
}

// ListEras returns all registered eras ordered by (table, name).
func (s *Store) ListEras(ctx context.Context) ([]types.Era, error) {
	rows, err := s.queryContext(ctx,
		`SELECT table_name, era_name, valid_from_column, valid_until_column, valid_to_column, range_subtype
		 FROM saga_era ORDER BY table_name, era_name`)
	if err != nil {
		return nil, storage.WrapDBError("list eras", err)
	}
	defer rows.Close()
	var out []types.Era
	for rows.Next() {
		var era types.Era
		var subtype string
		if err := rows.Scan(&era.Table, &era.Name, &era.ValidFromColumn, &era.ValidUntilColumn, &era.ValidToColumn, &subtype); err != nil {
			return nil, storage.WrapDBError("list eras", err)
		}
		era.Subtype = types.RangeSubtype(subtype)
		out = append(out, era)
	}
	return out, storage.WrapDBError("list eras", rows.Err())
}

// DropEra removes a registration.
func (s *Store) DropEra(ctx context.Context, table, name string) error {
	res, err := s.execContext(ctx,
		`DELETE FROM saga_era WHERE table_name = ? AND era_name = ?`, table, name)
	if err != nil {
		return storage.WrapDBError("drop era", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("era %s on %s: %w", name, table, storage.ErrNotFound)
	}
	return nil
}
