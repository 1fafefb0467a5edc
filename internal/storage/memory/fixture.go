package memory

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/steveyegge/saga/internal/types"
)

// fixtureFile is the yaml form of an in-memory database: tables with rows
// plus era registrations. The CLI's fixture mode and tests load these.
type fixtureFile struct {
	Tables map[string]fixtureTable `yaml:"tables"`
	Eras   []types.Era             `yaml:"eras"`
}

type fixtureTable struct {
	Columns []string                 `yaml:"columns"`
	Rows    []map[string]interface{} `yaml:"rows"`
}

// LoadFixture reads a yaml fixture from disk into a fresh store.
func LoadFixture(path string) (*Store, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- fixture path provided by CLI flag
	if err != nil {
		return nil, fmt.Errorf("load fixture: %w", err)
	}
	return ParseFixture(data)
}

// ParseFixture builds a store from yaml fixture bytes.
func ParseFixture(data []byte) (*Store, error) {
	var f fixtureFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	s := New()

	names := make([]string, 0, len(f.Tables))
	for name := range f.Tables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		ft := f.Tables[name]
		s.CreateTable(name, ft.Columns)
		for i, raw := range ft.Rows {
			row := make(types.ColumnMap, len(raw))
			for col, v := range raw {
				d, err := types.FromInterface(v)
				if err != nil {
					return nil, fmt.Errorf("parse fixture: table %s row %d column %s: %w", name, i, col, err)
				}
				row[col] = d
			}
			// Columns listed for the table but absent from the row are NULL.
			for _, col := range ft.Columns {
				if !row.Has(col) {
					row[col] = types.Null()
				}
			}
			if err := s.AppendRow(name, row); err != nil {
				return nil, err
			}
		}
	}
	for _, era := range f.Eras {
		if err := s.AddEra(context.Background(), era); err != nil {
			return nil, err
		}
	}
	return s, nil
}
