package crud

import (
	"context"
	"fmt"

	"github.com/conduit-lang/persist/internal/orm/entity"
	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Update writes every non-id column of e, in field order, and returns the
// entity re-read by its id. Unset properties are written as NULL.
func (p *SQLPersister) Update(ctx context.Context, md *schema.EntityMetadata, e schema.Entity) (schema.Entity, error) {
	if err := p.check(); err != nil {
		return nil, err
	}
	if err := checkBatch(md, []schema.Entity{e}); err != nil {
		return nil, err
	}

	id, ok := e.Get(md.IDPropertyName)
	if !ok || id == nil {
		return nil, fmt.Errorf("%w: update %s", ormerr.ErrIDNotFound, md.TableName)
	}

	row, err := entity.ToRow(e)
	if err != nil {
		return nil, err
	}

	// an entity made of its id only has nothing to set
	if len(md.Fields) > 1 {
		sqlText, args, err := p.updateSQL(md, row, id)
		if err != nil {
			return nil, err
		}
		if _, err := p.exec(ctx, "update", md.TableName, sqlText, args); err != nil {
			return nil, err
		}
	}

	return p.refetch(ctx, "update", md, id)
}
