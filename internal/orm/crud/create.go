package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/persist/internal/orm/entity"
	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Insert writes entities of md in one statement and returns the first one
// re-read by its id. Either every entity carries an id or none does, in which
// case the database generates them.
func (p *SQLPersister) Insert(ctx context.Context, md *schema.EntityMetadata, entities ...schema.Entity) (schema.Entity, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if err := checkBatch(md, entities); err != nil {
		return nil, err
	}

	rows := make([]map[string]any, 0, len(entities))
	for _, e := range entities {
		row, err := entity.ToRow(e)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	if err := entity.UniformIDs(md, rows); err != nil {
		return nil, err
	}
	withID := rows[0][md.IDColumnName()] != nil

	sqlText, args, err := p.insertSQL(md, rows, withID)
	if err != nil {
		return nil, err
	}

	var id any
	if p.dialect.SupportsReturning() {
		id, err = p.insertReturning(ctx, md, sqlText, args)
	} else {
		id, err = p.insertLastID(ctx, md, sqlText, args)
	}
	if err != nil {
		return nil, err
	}
	if withID {
		id = rows[0][md.IDColumnName()]
	}

	return p.refetch(ctx, "insert", md, id)
}

func (p *SQLPersister) insertReturning(ctx context.Context, md *schema.EntityMetadata, sqlText string, args []any) (any, error) {
	rows, err := p.queryRows(ctx, "insert", md.TableName, sqlText, args)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 || rows[0][md.IDColumnName()] == nil {
		return nil, p.fail("insert", md.TableName, sqlText, ormerr.ErrCreatedIDNotFound)
	}
	return rows[0][md.IDColumnName()], nil
}

// insertLastID reads the generated id from the driver. MySQL reports the id
// of the first row of a multi-row insert.
func (p *SQLPersister) insertLastID(ctx context.Context, md *schema.EntityMetadata, sqlText string, args []any) (any, error) {
	res, err := p.exec(ctx, "insert", md.TableName, sqlText, args)
	if err != nil {
		return nil, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, p.fail("insert", md.TableName, sqlText, fmt.Errorf("%w: %w", ormerr.ErrCreatedIDNotFound, err))
	}
	return id, nil
}

// refetch re-reads a written entity; a missing row is ErrEntityNotFound
func (p *SQLPersister) refetch(ctx context.Context, op string, md *schema.EntityMetadata, id any) (schema.Entity, error) {
	found, err := p.FindByID(ctx, md, id)
	if err != nil {
		return nil, err
	}
	if found == nil {
		return nil, fmt.Errorf("%s %s id %v: %w", op, md.TableName, id, ormerr.ErrEntityNotFound)
	}
	return found, nil
}

// checkBatch validates that entities is a non-empty batch of md
func checkBatch(md *schema.EntityMetadata, entities []schema.Entity) error {
	if len(entities) == 0 {
		return fmt.Errorf("%w: nothing to insert into %s", ormerr.ErrNoEntities, md.TableName)
	}
	for i, e := range entities {
		if e == nil || e.Metadata() == nil {
			return fmt.Errorf("%w: entity %d of %s is nil", ormerr.ErrInvalidEntity, i, md.TableName)
		}
		if e.Metadata().TableName != md.TableName {
			return fmt.Errorf("%w: %s entity in a %s batch", ormerr.ErrMixedEntityType, e.Metadata().TableName, md.TableName)
		}
	}
	return nil
}
