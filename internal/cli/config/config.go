package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/persist/internal/orm/crud"
	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// ErrNoDatabaseURL is returned by RequireDatabase when no url is configured
var ErrNoDatabaseURL = errors.New("database url not set")

// Config represents the persist configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
	Schema   SchemaConfig   `mapstructure:"schema"`
	Codegen  CodegenConfig  `mapstructure:"codegen"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	Dialect         string        `mapstructure:"dialect"`
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	TablePrefix     string        `mapstructure:"table_prefix"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// SchemaConfig points at the entity declaration file
type SchemaConfig struct {
	File string `mapstructure:"file"`
}

// CodegenConfig represents repository generation configuration
type CodegenConfig struct {
	Output  string `mapstructure:"output"`
	Package string `mapstructure:"package"`
}

var defaults = map[string]any{
	"database.dialect":           "postgres",
	"database.driver":            "",
	"database.url":               "",
	"database.table_prefix":      "",
	"database.query_timeout":     time.Hour,
	"database.max_open_conns":    100,
	"database.max_idle_conns":    0,
	"database.conn_max_lifetime": time.Duration(0),
	"log.level":                  "info",
	"log.development":            false,
	"schema.file":                "entities.yml",
	"codegen.output":             "models",
	"codegen.package":            "models",
}

// Load loads the configuration. An empty path searches the working directory
// for persist.yml; a missing file falls back to defaults. Environment
// variables prefixed with PERSIST_ override both, and DATABASE_URL is read
// when PERSIST_DATABASE_URL is unset.
func Load(path string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("persist")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("PERSIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := v.BindEnv("database.url", "PERSIST_DATABASE_URL", "DATABASE_URL"); err != nil {
		return nil, fmt.Errorf("failed to bind database url: %w", err)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks values that every command depends on
func (c *Config) Validate() error {
	if _, err := query.DialectByName(c.Database.Dialect); err != nil {
		return fmt.Errorf("database.dialect: %w", err)
	}
	if c.Database.QueryTimeout < 0 {
		return fmt.Errorf("database.query_timeout must not be negative, got: %s", c.Database.QueryTimeout)
	}
	if c.Database.MaxOpenConns < 0 || c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database connection limits must not be negative")
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	return nil
}

// RequireDatabase checks the settings needed to open a connection
func (c *Config) RequireDatabase() error {
	if c.Database.URL == "" {
		return ErrNoDatabaseURL
	}
	return nil
}

// Dialect returns the configured SQL dialect
func (c *Config) Dialect() query.Dialect {
	d, err := query.DialectByName(c.Database.Dialect)
	if err != nil {
		return query.Postgres
	}
	return d
}

// Crud returns the connection settings understood by crud.Open
func (c *Config) Crud(logger *zap.Logger, reg *schema.Registry) crud.Config {
	return crud.Config{
		Dialect:         c.Database.Dialect,
		Driver:          c.Database.Driver,
		URL:             c.Database.URL,
		TablePrefix:     c.Database.TablePrefix,
		QueryTimeout:    c.Database.QueryTimeout,
		MaxOpenConns:    c.Database.MaxOpenConns,
		MaxIdleConns:    c.Database.MaxIdleConns,
		ConnMaxLifetime: c.Database.ConnMaxLifetime,
		Logger:          logger,
		Registry:        reg,
	}
}
