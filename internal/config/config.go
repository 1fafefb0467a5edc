// Package config loads CLI configuration from .saga.yaml with SAGA_
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Config holds startup settings for the sg CLI.
type Config struct {
	// DSN is the MySQL-protocol connection string. Empty means fixture-only
	// operation.
	DSN string

	// DefaultEra is the era name assumed when --era is not given.
	DefaultEra string

	// RowIDColumn is the source batch's row-id column.
	RowIDColumn string

	// JSON switches default output to JSON.
	JSON bool

	// Debug enables diagnostic output on stderr.
	Debug bool
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DefaultEra:  "validity",
		RowIDColumn: "row_id",
	}
}

// Load reads configuration from the given file (or, when empty, .saga.yaml
// in the working directory and then the home directory). A missing file is
// not an error; environment variables with the SAGA_ prefix override file
// values.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("SAGA")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	cfg := Defaults()
	v.SetDefault("era", cfg.DefaultEra)
	v.SetDefault("row-id-column", cfg.RowIDColumn)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName(".saga")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg.DSN = v.GetString("dsn")
	cfg.DefaultEra = v.GetString("era")
	cfg.RowIDColumn = v.GetString("row-id-column")
	cfg.JSON = v.GetBool("json")
	cfg.Debug = v.GetBool("debug")
	return cfg, nil
}
