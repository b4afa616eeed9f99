// Package config loads the settings of the ormfields command.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/mickamy/ormfields/orm"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "ORMFIELDS"

// Config represents the command configuration.
type Config struct {
	// File is the Go source file holding the model structs.
	File string
	// Dialect selects the SQL flavour of the generated DDL.
	Dialect string
	// DSN is the data source the DDL is applied to with -apply.
	DSN string
	// LogLevel is a zap level name.
	LogLevel string
}

// Load reads configuration from the optional file at path and from
// ORMFIELDS_* environment variables, which take precedence. A missing
// path is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("file", "")
	v.SetDefault("dialect", "sqlite")
	v.SetDefault("dsn", "")
	v.SetDefault("log_level", "info")

	if path != "" {
		_, err := os.Stat(path)
		switch {
		case err == nil:
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		case !errors.Is(err, fs.ErrNotExist):
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	cfg := &Config{
		File:     v.GetString("file"),
		Dialect:  v.GetString("dialect"),
		DSN:      v.GetString("dsn"),
		LogLevel: v.GetString("log_level"),
	}
	if _, err := cfg.SQLDialect(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SQLDialect returns the dialect named by Dialect.
func (c *Config) SQLDialect() (orm.Dialect, error) {
	d, err := orm.DialectByName(c.Dialect)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return d, nil
}

// DriverName returns the database/sql driver registered for Dialect.
func (c *Config) DriverName() string {
	d, err := c.SQLDialect()
	if err != nil {
		return ""
	}
	switch d.Name() {
	case "postgres":
		return "pgx"
	default:
		return d.Name()
	}
}
