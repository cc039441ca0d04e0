package crud

import (
	"context"

	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// DeleteByID deletes the row with the given id
func (p *SQLPersister) DeleteByID(ctx context.Context, md *schema.EntityMetadata, id any) error {
	return p.delete(ctx, "deleteById", md, idFormula(md, id))
}

// DeleteAllByID deletes the rows whose id is in ids
func (p *SQLPersister) DeleteAllByID(ctx context.Context, md *schema.EntityMetadata, ids []any) error {
	where, err := idsFormula(md, ids)
	if err != nil {
		return err
	}
	return p.delete(ctx, "deleteAllById", md, where)
}

// DeleteAllByProperty deletes the rows whose property equals value
func (p *SQLPersister) DeleteAllByProperty(ctx context.Context, md *schema.EntityMetadata, property string, value any) error {
	where, err := propertyFormula(md, property, value)
	if err != nil {
		return err
	}
	return p.delete(ctx, "deleteAllByProperty", md, where)
}

// DeleteAll deletes every row of md
func (p *SQLPersister) DeleteAll(ctx context.Context, md *schema.EntityMetadata) error {
	return p.delete(ctx, "deleteAll", md, nil)
}

func (p *SQLPersister) delete(ctx context.Context, op string, md *schema.EntityMetadata, where *query.AndFormula) error {
	if err := p.check(); err != nil {
		return err
	}

	sqlText, args, err := p.deleteSQL(md, where)
	if err != nil {
		return err
	}
	_, err = p.exec(ctx, op, md.TableName, sqlText, args)
	return err
}
