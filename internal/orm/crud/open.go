package crud

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql" // driver: mysql
	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "github.com/lib/pq"              // driver: postgres
	_ "modernc.org/sqlite"             // driver: sqlite

	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Config describes the pool opened by Open
type Config struct {
	Dialect         string
	Driver          string
	URL             string
	TablePrefix     string
	QueryTimeout    time.Duration
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	PingTimeout     time.Duration
	Logger          *zap.Logger
	Registry        *schema.Registry
}

// DefaultDriver returns the database/sql driver name used for a dialect
func DefaultDriver(d query.Dialect) string {
	switch d {
	case query.MySQL:
		return "mysql"
	case query.Postgres:
		return "pgx"
	default:
		return "sqlite"
	}
}

// Open opens the pool described by cfg, pings it and returns the persister
// for its dialect. The pool is closed again when the ping fails.
func Open(ctx context.Context, cfg Config) (*SQLPersister, error) {
	d, err := query.DialectByName(cfg.Dialect)
	if err != nil {
		return nil, err
	}
	if cfg.URL == "" {
		return nil, errors.New("database url is required")
	}
	if cfg.QueryTimeout < 0 {
		return nil, fmt.Errorf("invalid query timeout %s", cfg.QueryTimeout)
	}

	driver := cfg.Driver
	if driver == "" {
		driver = DefaultDriver(d)
	}

	db, err := sql.Open(driver, cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	opts := []Option{
		WithTablePrefix(cfg.TablePrefix),
		WithLogger(cfg.Logger),
		WithRegistry(cfg.Registry),
	}
	if cfg.QueryTimeout > 0 {
		opts = append(opts, WithQueryTimeout(cfg.QueryTimeout))
	}
	return New(db, d, opts...), nil
}
