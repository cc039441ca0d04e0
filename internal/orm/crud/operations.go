// Package crud implements the relational persisters: metadata driven
// insert, update, delete, find, count and exists over MySQL, PostgreSQL and
// SQLite, including relation-aware selects that embed related rows as JSON.
package crud

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// DefaultQueryTimeout bounds every round trip unless WithQueryTimeout is given
const DefaultQueryTimeout = time.Hour

// Persister is the uniform CRUD contract shared by every backend.
// Find operations return nil and no error when nothing matches.
type Persister interface {
	Registry() *schema.Registry
	SetupEntityMetadata(md *schema.EntityMetadata) (*schema.EntityMetadata, error)

	Insert(ctx context.Context, md *schema.EntityMetadata, entities ...schema.Entity) (schema.Entity, error)
	Update(ctx context.Context, md *schema.EntityMetadata, e schema.Entity) (schema.Entity, error)

	DeleteByID(ctx context.Context, md *schema.EntityMetadata, id any) error
	DeleteAllByID(ctx context.Context, md *schema.EntityMetadata, ids []any) error
	DeleteAllByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) error
	DeleteAll(ctx context.Context, md *schema.EntityMetadata) error

	FindByID(ctx context.Context, md *schema.EntityMetadata, id any) (schema.Entity, error)
	FindByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (schema.Entity, error)
	FindAll(ctx context.Context, md *schema.EntityMetadata) ([]schema.Entity, error)
	FindAllByID(ctx context.Context, md *schema.EntityMetadata, ids []any) ([]schema.Entity, error)
	FindAllByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) ([]schema.Entity, error)

	Count(ctx context.Context, md *schema.EntityMetadata) (int64, error)
	CountByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (int64, error)
	ExistsByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (bool, error)

	Destroy() error
}

// Option configures a SQLPersister
type Option func(*SQLPersister)

// WithTablePrefix prefixes every table reference
func WithTablePrefix(prefix string) Option {
	return func(p *SQLPersister) {
		p.prefix = prefix
	}
}

// WithQueryTimeout bounds each round trip; zero disables the bound
func WithQueryTimeout(timeout time.Duration) Option {
	return func(p *SQLPersister) {
		p.timeout = timeout
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *SQLPersister) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithRegistry shares a metadata registry between persisters
func WithRegistry(registry *schema.Registry) Option {
	return func(p *SQLPersister) {
		if registry != nil {
			p.registry = registry
		}
	}
}

// SQLPersister is the relational persister over database/sql
type SQLPersister struct {
	db        *sql.DB
	dialect   query.Dialect
	registry  *schema.Registry
	prefix    string
	timeout   time.Duration
	logger    *zap.Logger
	mu        sync.RWMutex
	destroyed bool
}

var _ Persister = (*SQLPersister)(nil)

// New creates a persister for db speaking dialect d
func New(db *sql.DB, d query.Dialect, opts ...Option) *SQLPersister {
	p := &SQLPersister{
		db:       db,
		dialect:  d,
		registry: schema.NewRegistry(),
		timeout:  DefaultQueryTimeout,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("dialect", d.Name()))
	return p
}

// NewMySQL creates a MySQL persister
func NewMySQL(db *sql.DB, opts ...Option) *SQLPersister {
	return New(db, query.MySQL, opts...)
}

// NewPostgres creates a PostgreSQL persister
func NewPostgres(db *sql.DB, opts ...Option) *SQLPersister {
	return New(db, query.Postgres, opts...)
}

// NewSQLite creates a SQLite persister
func NewSQLite(db *sql.DB, opts ...Option) *SQLPersister {
	return New(db, query.SQLite, opts...)
}

// Registry returns the metadata registry
func (p *SQLPersister) Registry() *schema.Registry {
	return p.registry
}

// Dialect returns the SQL dialect
func (p *SQLPersister) Dialect() query.Dialect {
	return p.dialect
}

// DB returns the underlying pool
func (p *SQLPersister) DB() *sql.DB {
	return p.db
}

// SetupEntityMetadata registers md with the registry
func (p *SQLPersister) SetupEntityMetadata(md *schema.EntityMetadata) (*schema.EntityMetadata, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	return p.registry.SetupEntityMetadata(md)
}

// Destroy closes the pool. Every later call fails with ErrPersisterDestroyed.
func (p *SQLPersister) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil
	}
	p.destroyed = true
	if err := p.db.Close(); err != nil {
		return ormerr.Wrap("destroy", "", err)
	}
	return nil
}

func (p *SQLPersister) check() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.destroyed {
		return ormerr.ErrPersisterDestroyed
	}
	return nil
}

// withTimeout derives the context of one round trip
func (p *SQLPersister) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.timeout)
}

func (p *SQLPersister) logQuery(op, table, sqlText string, args []any) {
	p.logger.Debug("query",
		zap.String("op", op),
		zap.String("table", table),
		zap.String("sql", sqlText),
		zap.Int("args", len(args)))
}

func (p *SQLPersister) fail(op, table, sqlText string, err error) error {
	wrapped := ormerr.Wrap(op, sqlText, err)
	p.logger.Error("query failed",
		zap.String("op", op),
		zap.String("table", table),
		zap.Error(wrapped))
	return wrapped
}

// exec runs a statement that returns no rows
func (p *SQLPersister) exec(ctx context.Context, op, table, sqlText string, args []any) (sql.Result, error) {
	p.logQuery(op, table, sqlText, args)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	res, err := p.db.ExecContext(ctx, sqlText, args...)
	if err != nil {
		return nil, p.fail(op, table, sqlText, err)
	}
	return res, nil
}

// queryRows runs a query and scans every row keyed by column name
func (p *SQLPersister) queryRows(ctx context.Context, op, table, sqlText string, args []any) ([]map[string]any, error) {
	p.logQuery(op, table, sqlText, args)

	ctx, cancel := p.withTimeout(ctx)
	defer cancel()

	rows, err := p.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, p.fail(op, table, sqlText, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, p.fail(op, table, sqlText, err)
	}
	var records []map[string]any
	for rows.Next() {
		values := make([]any, len(columns))
		targets := make([]any, len(columns))
		for i := range values {
			targets[i] = &values[i]
		}
		if err := rows.Scan(targets...); err != nil {
			return nil, p.fail(op, table, sqlText, err)
		}
		record := make(map[string]any, len(columns))
		for i, col := range columns {
			record[col] = values[i]
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, p.fail(op, table, sqlText, err)
	}
	return records, nil
}
