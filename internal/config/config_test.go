package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.DefaultEra != "validity" {
		t.Errorf("DefaultEra = %q, want validity", cfg.DefaultEra)
	}
	if cfg.RowIDColumn != "row_id" {
		t.Errorf("RowIDColumn = %q, want row_id", cfg.RowIDColumn)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "saga.yaml")
	content := []byte("dsn: user:pass@tcp(127.0.0.1:3306)/hr\nera: employment\njson: true\n")
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DSN != "user:pass@tcp(127.0.0.1:3306)/hr" {
		t.Errorf("DSN = %q", cfg.DSN)
	}
	if cfg.DefaultEra != "employment" {
		t.Errorf("DefaultEra = %q, want employment", cfg.DefaultEra)
	}
	if !cfg.JSON {
		t.Error("JSON not set")
	}
	// Unset keys keep their defaults.
	if cfg.RowIDColumn != "row_id" {
		t.Errorf("RowIDColumn = %q, want default row_id", cfg.RowIDColumn)
	}
}

func TestLoadMissingFileIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultEra != "validity" {
		t.Errorf("DefaultEra = %q, want default", cfg.DefaultEra)
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("SAGA_ERA", "fiscal")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.DefaultEra != "fiscal" {
		t.Errorf("DefaultEra = %q, want fiscal from env", cfg.DefaultEra)
	}
}
