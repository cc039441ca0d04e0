package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/persist/internal/orm/entity"
	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// FindByID returns the entity with the given id, or nil when none matches
func (p *SQLPersister) FindByID(ctx context.Context, md *schema.EntityMetadata, id any) (schema.Entity, error) {
	entities, err := p.find(ctx, "findById", md, idFormula(md, id))
	if err != nil {
		return nil, err
	}
	return first(entities), nil
}

// FindByProperty returns the first entity whose property equals value, or nil
func (p *SQLPersister) FindByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (schema.Entity, error) {
	where, err := propertyFormula(md, property, value)
	if err != nil {
		return nil, err
	}
	entities, err := p.find(ctx, "findByProperty", md, where)
	if err != nil {
		return nil, err
	}
	return first(entities), nil
}

// FindAll returns every entity of md
func (p *SQLPersister) FindAll(ctx context.Context, md *schema.EntityMetadata) ([]schema.Entity, error) {
	return p.find(ctx, "findAll", md, nil)
}

// FindAllByID returns the entities whose id is in ids
func (p *SQLPersister) FindAllByID(ctx context.Context, md *schema.EntityMetadata, ids []any) ([]schema.Entity, error) {
	where, err := idsFormula(md, ids)
	if err != nil {
		return nil, err
	}
	return p.find(ctx, "findAllById", md, where)
}

// FindAllByProperty returns the entities whose property equals value
func (p *SQLPersister) FindAllByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) ([]schema.Entity, error) {
	where, err := propertyFormula(md, property, value)
	if err != nil {
		return nil, err
	}
	return p.find(ctx, "findAllByProperty", md, where)
}

// Count returns the number of rows of md
func (p *SQLPersister) Count(ctx context.Context, md *schema.EntityMetadata) (int64, error) {
	return p.count(ctx, "count", md, nil)
}

// CountByProperty returns the number of rows whose property equals value
func (p *SQLPersister) CountByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (int64, error) {
	where, err := propertyFormula(md, property, value)
	if err != nil {
		return 0, err
	}
	return p.count(ctx, "countByProperty", md, where)
}

// ExistsByProperty reports whether a row with property equal to value exists
func (p *SQLPersister) ExistsByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) (bool, error) {
	if err := p.check(); err != nil {
		return false, err
	}
	where, err := propertyFormula(md, property, value)
	if err != nil {
		return false, err
	}

	sqlText, args, err := p.existsSQL(md, where)
	if err != nil {
		return false, err
	}
	v, err := p.aggregate(ctx, "existsByProperty", md.TableName, sqlText, args, "exists")
	if err != nil {
		return false, err
	}
	exists, err := entity.Coerce(v, schema.TypeBool)
	if err != nil || exists == nil {
		return false, p.fail("existsByProperty", md.TableName, sqlText, fmt.Errorf("unexpected exists value %v", v))
	}
	return exists.(bool), nil
}

// find runs the relation-aware select for md and hydrates every row
func (p *SQLPersister) find(ctx context.Context, op string, md *schema.EntityMetadata, where *query.AndFormula) ([]schema.Entity, error) {
	if err := p.check(); err != nil {
		return nil, err
	}

	sqlText, args, err := p.selectSQL(md, where)
	if err != nil {
		return nil, err
	}
	rows, err := p.queryRows(ctx, op, md.TableName, sqlText, args)
	if err != nil {
		return nil, err
	}

	entities := make([]schema.Entity, 0, len(rows))
	for _, row := range rows {
		e, err := entity.ToEntity(p.registry, md, row)
		if err != nil {
			return nil, err
		}
		entities = append(entities, e)
	}
	return entities, nil
}

func (p *SQLPersister) count(ctx context.Context, op string, md *schema.EntityMetadata, where *query.AndFormula) (int64, error) {
	if err := p.check(); err != nil {
		return 0, err
	}

	sqlText, args, err := p.countSQL(md, where)
	if err != nil {
		return 0, err
	}
	v, err := p.aggregate(ctx, op, md.TableName, sqlText, args, "count")
	if err != nil {
		return 0, err
	}
	n, err := entity.Coerce(v, schema.TypeInt)
	if err != nil || n == nil {
		return 0, p.fail(op, md.TableName, sqlText, fmt.Errorf("unexpected count value %v", v))
	}
	return n.(int64), nil
}

// aggregate runs a single-row aggregate query and returns column
func (p *SQLPersister) aggregate(ctx context.Context, op, table, sqlText string, args []any, column string) (any, error) {
	rows, err := p.queryRows(ctx, op, table, sqlText, args)
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, p.fail(op, table, sqlText, fmt.Errorf("%w: expected 1 row, got %d", ormerr.ErrIncorrectRowCount, len(rows)))
	}
	return rows[0][column], nil
}

func first(entities []schema.Entity) schema.Entity {
	if len(entities) == 0 {
		return nil
	}
	return entities[0]
}
