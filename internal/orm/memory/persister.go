// Package memory provides an in-process Persister over plain maps. It keeps
// rows keyed by column, exactly as the SQL persisters write them, and builds
// the same relation projections on read, so it can stand in for a database
// in tests.
package memory

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/conduit-lang/persist/internal/orm/crud"
	"github.com/conduit-lang/persist/internal/orm/entity"
	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

type table struct {
	rows []map[string]any
	seq  int64
}

// Persister keeps every table in memory
type Persister struct {
	mu        sync.RWMutex
	registry  *schema.Registry
	tables    map[string]*table
	entropy   io.Reader
	logger    *zap.Logger
	destroyed bool
}

var _ crud.Persister = (*Persister)(nil)

// Option configures a Persister
type Option func(*Persister)

// WithRegistry shares a metadata registry
func WithRegistry(registry *schema.Registry) Option {
	return func(p *Persister) {
		if registry != nil {
			p.registry = registry
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(p *Persister) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New creates an empty in-memory persister
func New(opts ...Option) *Persister {
	src := rand.New(rand.NewSource(time.Now().UnixNano()))
	p := &Persister{
		registry: schema.NewRegistry(),
		tables:   make(map[string]*table),
		entropy:  ulid.Monotonic(src, 0),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With(zap.String("dialect", "memory"))
	return p
}

// Registry returns the metadata registry
func (p *Persister) Registry() *schema.Registry {
	return p.registry
}

// SetupEntityMetadata registers md with the registry
func (p *Persister) SetupEntityMetadata(md *schema.EntityMetadata) (*schema.EntityMetadata, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil, ormerr.ErrPersisterDestroyed
	}
	return p.registry.SetupEntityMetadata(md)
}

// Destroy drops every row. Every later call fails with ErrPersisterDestroyed.
func (p *Persister) Destroy() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.destroyed = true
	p.tables = make(map[string]*table)
	return nil
}

// Insert stores entities and returns the first one read back
func (p *Persister) Insert(ctx context.Context, md *schema.EntityMetadata, entities ...schema.Entity) (schema.Entity, error) {
	if len(entities) == 0 {
		return nil, fmt.Errorf("%w: nothing to insert into %s", ormerr.ErrNoEntities, md.TableName)
	}
	for i, e := range entities {
		if e == nil || e.Metadata() == nil {
			return nil, fmt.Errorf("%w: entity %d of %s is nil", ormerr.ErrInvalidEntity, i, md.TableName)
		}
		if e.Metadata().TableName != md.TableName {
			return nil, fmt.Errorf("%w: %s entity in a %s batch", ormerr.ErrMixedEntityType, e.Metadata().TableName, md.TableName)
		}
	}

	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		row, err := entity.ToRow(e)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}

	idColumn := md.IDColumnName()
	if err := entity.UniformIDs(md, rows); err != nil {
		return nil, err
	}

	firstID, err := p.write(ctx, md, func(t *table) (_ any, err error) {
		seq := t.seq
		defer func() {
			if err != nil {
				t.seq = seq
			}
		}()
		for i, row := range rows {
			if row[idColumn] == nil {
				id, err := p.nextID(md, t)
				if err != nil {
					return nil, err
				}
				row[idColumn] = id
			} else if err := p.claimID(md, t, rows[:i], row[idColumn]); err != nil {
				return nil, err
			}
		}
		stored := make([]map[string]any, 0, len(rows))
		for _, row := range rows {
			complete, err := completeRow(md, row)
			if err != nil {
				return nil, err
			}
			stored = append(stored, complete)
		}
		t.rows = append(t.rows, stored...)
		return rows[0][idColumn], nil
	})
	if err != nil {
		return nil, err
	}

	p.logger.Debug("insert", zap.String("table", md.TableName), zap.Int("rows", len(rows)))
	return p.refetch(ctx, md, firstID)
}

// Update replaces the stored row of e and returns it read back
func (p *Persister) Update(ctx context.Context, md *schema.EntityMetadata, e schema.Entity) (schema.Entity, error) {
	if e == nil || e.Metadata() == nil {
		return nil, fmt.Errorf("%w: update %s", ormerr.ErrInvalidEntity, md.TableName)
	}
	if e.Metadata().TableName != md.TableName {
		return nil, fmt.Errorf("%w: %s entity updated as %s", ormerr.ErrMixedEntityType, e.Metadata().TableName, md.TableName)
	}
	id, ok := e.Get(md.IDPropertyName)
	if !ok || id == nil {
		return nil, fmt.Errorf("%w: update %s", ormerr.ErrIDNotFound, md.TableName)
	}
	row, err := entity.ToRow(e)
	if err != nil {
		return nil, err
	}

	_, err = p.write(ctx, md, func(t *table) (any, error) {
		col := md.IDColumnName()
		for i, stored := range t.rows {
			if matches(md, col, stored[col], id) {
				updated, err := completeRow(md, row)
				if err != nil {
					return nil, err
				}
				updated[col] = stored[col]
				t.rows[i] = updated
			}
		}
		return nil, nil
	})
	if err != nil {
		return nil, err
	}
	return p.refetch(ctx, md, id)
}

// DeleteByID removes the row with the given id
func (p *Persister) DeleteByID(ctx context.Context, md *schema.EntityMetadata, id any) error {
	return p.DeleteAllByID(ctx, md, []any{id})
}

// DeleteAllByID removes the rows whose id is in ids
func (p *Persister) DeleteAllByID(ctx context.Context, md *schema.EntityMetadata, ids []any) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: empty id list for %s", ormerr.ErrNoEntities, md.TableName)
	}
	return p.remove(ctx, md, inList(md, md.IDColumnName(), ids))
}

// DeleteAllByProperty removes the rows whose property equals value
func (p *Persister) DeleteAllByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) error {
	pred, err := byProperty(md, property, value)
	if err != nil {
		return err
	}
	return p.remove(ctx, md, pred)
}

// DeleteAll removes every row of md
func (p *Persister) DeleteAll(ctx context.Context, md *schema.EntityMetadata) error {
	return p.remove(ctx, md, func(map[string]any) bool { return true })
}

// FindByID returns the entity with the given id, or nil
func (p *Persister) FindByID(ctx context.Context, md *schema.EntityMetadata, id any) (schema.Entity, error) {
	found, err := p.find(ctx, md, inList(md, md.IDColumnName(), []any{id}))
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// FindByProperty returns the first entity whose property equals value, or nil
func (p *Persister) FindByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (schema.Entity, error) {
	found, err := p.FindAllByProperty(ctx, md, property, value)
	if err != nil || len(found) == 0 {
		return nil, err
	}
	return found[0], nil
}

// FindAll returns every entity of md in insertion order
func (p *Persister) FindAll(ctx context.Context, md *schema.EntityMetadata) ([]schema.Entity, error) {
	return p.find(ctx, md, func(map[string]any) bool { return true })
}

// FindAllByID returns the entities whose id is in ids
func (p *Persister) FindAllByID(ctx context.Context, md *schema.EntityMetadata, ids []any) ([]schema.Entity, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty id list for %s", ormerr.ErrNoEntities, md.TableName)
	}
	return p.find(ctx, md, inList(md, md.IDColumnName(), ids))
}

// FindAllByProperty returns the entities whose property equals value
func (p *Persister) FindAllByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) ([]schema.Entity, error) {
	pred, err := byProperty(md, property, value)
	if err != nil {
		return nil, err
	}
	return p.find(ctx, md, pred)
}

// Count returns the number of rows of md
func (p *Persister) Count(ctx context.Context, md *schema.EntityMetadata) (int64, error) {
	return p.count(ctx, md, func(map[string]any) bool { return true })
}

// CountByProperty returns the number of rows whose property equals value
func (p *Persister) CountByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (int64, error) {
	pred, err := byProperty(md, property, value)
	if err != nil {
		return 0, err
	}
	return p.count(ctx, md, pred)
}

// ExistsByProperty reports whether a row with property equal to value exists
func (p *Persister) ExistsByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (bool, error) {
	n, err := p.CountByProperty(ctx, md, property, value)
	return n >= 1, err
}

func (p *Persister) write(ctx context.Context, md *schema.EntityMetadata, fn func(t *table) (any, error)) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.destroyed {
		return nil, ormerr.ErrPersisterDestroyed
	}
	t, ok := p.tables[md.TableName]
	if !ok {
		t = &table{}
		p.tables[md.TableName] = t
	}
	return fn(t)
}

func (p *Persister) remove(ctx context.Context, md *schema.EntityMetadata, pred func(map[string]any) bool) error {
	_, err := p.write(ctx, md, func(t *table) (any, error) {
		kept := t.rows[:0]
		for _, row := range t.rows {
			if !pred(row) {
				kept = append(kept, row)
			}
		}
		t.rows = kept
		return nil, nil
	})
	return err
}

func (p *Persister) count(ctx context.Context, md *schema.EntityMetadata, pred func(map[string]any) bool) (int64, error) {
	rows, err := p.selectRows(ctx, md, pred)
	return int64(len(rows)), err
}

func (p *Persister) find(ctx context.Context, md *schema.EntityMetadata, pred func(map[string]any) bool) ([]schema.Entity, error) {
	rows, err := p.selectRows(ctx, md, pred)
	if err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	entities := make([]schema.Entity, 0, len(rows))
	for _, row := range rows {
		projected, err := p.project(md, row)
		if err != nil {
			return nil, err
		}
		e, err := entity.ToEntity(p.registry, md, projected)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// selectRows copies the matching rows
func (p *Persister) selectRows(ctx context.Context, md *schema.EntityMetadata, pred func(map[string]any) bool) ([]map[string]any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.destroyed {
		return nil, ormerr.ErrPersisterDestroyed
	}
	t, ok := p.tables[md.TableName]
	if !ok {
		return nil, nil
	}

	var rows []map[string]any
	for _, row := range t.rows {
		if pred(row) {
			copied, err := copyRow(row)
			if err != nil {
				return nil, err
			}
			rows = append(rows, copied)
		}
	}
	return rows, nil
}

// project adds the relation properties the SQL persisters aggregate: the
// child rows of every one-to-many relation and the parent row of every
// many-to-one relation. Callers hold the read lock.
func (p *Persister) project(md *schema.EntityMetadata, row map[string]any) (map[string]any, error) {
	for _, rel := range md.OneToManyRelations {
		child, ok := p.registry.GetMetadataByTable(rel.MappedTable)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ormerr.ErrRelationMetadataMissing, md.TableName, rel.PropertyName)
		}
		m2o, ok := child.ManyToOne(rel.MappedBy)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ormerr.ErrRelationMetadataMissing, md.TableName, rel.PropertyName)
		}

		children := make([]any, 0)
		if t, ok := p.tables[child.TableName]; ok {
			for _, childRow := range t.rows {
				if matches(child, m2o.JoinColumnName, childRow[m2o.JoinColumnName], row[md.IDColumnName()]) {
					copied, err := copyRow(childRow)
					if err != nil {
						return nil, err
					}
					children = append(children, copied)
				}
			}
		}
		row[rel.PropertyName] = children
	}

	for _, rel := range md.ManyToOneRelations {
		parent, ok := p.registry.GetMetadataByTable(rel.TargetTable)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s", ormerr.ErrRelationMetadataMissing, md.TableName, rel.PropertyName)
		}
		row[rel.PropertyName] = nil
		if t, ok := p.tables[parent.TableName]; ok {
			for _, parentRow := range t.rows {
				if matches(parent, parent.IDColumnName(), parentRow[parent.IDColumnName()], row[rel.JoinColumnName]) {
					copied, err := copyRow(parentRow)
					if err != nil {
						return nil, err
					}
					row[rel.PropertyName] = copied
					break
				}
			}
		}
	}
	return row, nil
}

// nextID generates an id matching the type of the id field: a ULID for
// strings, a random UUID for uuids and a per-table sequence otherwise
func (p *Persister) nextID(md *schema.EntityMetadata, t *table) (any, error) {
	idField, _ := md.IDField()
	switch idField.ValueType {
	case schema.TypeString:
		return ulid.MustNew(ulid.Timestamp(time.Now()), p.entropy).String(), nil
	case schema.TypeUUID:
		return uuid.NewString(), nil
	case schema.TypeInt, schema.TypeUnknown:
		t.seq++
		return t.seq, nil
	default:
		return nil, fmt.Errorf("%w: cannot generate %s ids for %s", ormerr.ErrCreatedIDNotFound, idField.ValueType, md.TableName)
	}
}

// claimID rejects ids already stored or claimed earlier in the batch and
// moves the sequence past explicit ones
func (p *Persister) claimID(md *schema.EntityMetadata, t *table, batch []map[string]any, id any) error {
	col := md.IDColumnName()
	for _, rows := range [][]map[string]any{t.rows, batch} {
		for _, row := range rows {
			if matches(md, col, row[col], id) {
				return fmt.Errorf("%w: %s id %v", ormerr.ErrUniqueViolation, md.TableName, id)
			}
		}
	}
	if n, err := entity.Coerce(id, schema.TypeInt); err == nil && n != nil && n.(int64) > t.seq {
		t.seq = n.(int64)
	}
	return nil
}

func (p *Persister) refetch(ctx context.Context, md *schema.EntityMetadata, id any) (schema.Entity, error) {
	found, err := p.FindByID(ctx, md, id)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%s id %v: %w", md.TableName, id, ormerr.ErrEntityNotFound)
	}
	return found, nil
}

// completeRow copies the row, binding nil for every column it does not carry
func completeRow(md *schema.EntityMetadata, row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(md.Fields))
	for _, f := range md.Fields {
		v, err := entity.DeepCopy(row[f.ColumnName])
		if err != nil {
			return nil, err
		}
		out[f.ColumnName] = v
	}
	return out, nil
}

// copyRow returns a copy of a stored row sharing no slice or map with it
func copyRow(row map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(row))
	for k, v := range row {
		copied, err := entity.DeepCopy(v)
		if err != nil {
			return nil, err
		}
		out[k] = copied
	}
	return out, nil
}

func inList(md *schema.EntityMetadata, column string, values []any) func(map[string]any) bool {
	return func(row map[string]any) bool {
		for _, v := range values {
			if matches(md, column, row[column], v) {
				return true
			}
		}
		return false
	}
}

func byProperty(md *schema.EntityMetadata, property string, value any) (func(map[string]any) bool, error) {
	field, ok := md.Field(property)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ormerr.ErrColumnNotFound, md.TableName, property)
	}
	if field.FieldType == schema.FieldJoinedEntity {
		id, err := entity.ReferenceID(value)
		if err != nil {
			return nil, err
		}
		value = id
	}
	return func(row map[string]any) bool {
		return matches(md, field.ColumnName, row[field.ColumnName], value)
	}, nil
}

// matches compares a stored value with a wanted one after coercing both to
// the column type, so 1, int64(1) and "1" select the same integer row.
// A nil wanted value matches NULL.
func matches(md *schema.EntityMetadata, column string, stored, want any) bool {
	if want == nil || stored == nil {
		return want == nil && stored == nil
	}

	vt := schema.TypeUnknown
	if f, ok := md.FieldByColumn(column); ok {
		vt = f.ValueType
	}
	a, errA := entity.Coerce(stored, vt)
	b, errB := entity.Coerce(want, vt)
	if errA != nil || errB != nil {
		return false
	}
	if ta, ok := a.(time.Time); ok {
		tb, ok := b.(time.Time)
		return ok && ta.Equal(tb)
	}
	if reflect.DeepEqual(a, b) {
		return true
	}
	// join columns carry no value type of their own
	return vt == schema.TypeUnknown && fmt.Sprint(a) == fmt.Sprint(b)
}
