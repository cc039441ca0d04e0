// Package repository provides typed repositories over any crud.Persister.
//
// A Repository[T] converts the entities produced by the metadata factory to
// T and exposes the per-field finders as generic methods; code generated by
// the codegen package wraps them in typed FindBy<Field> methods.
package repository

import (
	"context"
	"fmt"

	"github.com/conduit-lang/persist/internal/orm/crud"
	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Repository is the typed CRUD surface of one entity type
type Repository[T schema.Entity] struct {
	persister crud.Persister
	md        *schema.EntityMetadata
}

// New registers md with p and returns its repository
func New[T schema.Entity](p crud.Persister, md *schema.EntityMetadata) (*Repository[T], error) {
	registered, err := p.SetupEntityMetadata(md)
	if err != nil {
		return nil, err
	}
	return &Repository[T]{persister: p, md: registered}, nil
}

// Metadata returns the registered metadata
func (r *Repository[T]) Metadata() *schema.EntityMetadata {
	return r.md
}

// Persister returns the underlying persister
func (r *Repository[T]) Persister() crud.Persister {
	return r.persister
}

// FindAll returns every entity
func (r *Repository[T]) FindAll(ctx context.Context) ([]T, error) {
	return r.all(r.persister.FindAll(ctx, r.md))
}

// FindByID returns the entity with the given id; ok is false when none matches
func (r *Repository[T]) FindByID(ctx context.Context, id any) (T, bool, error) {
	return r.one(r.persister.FindByID(ctx, r.md, id))
}

// FindAllByID returns the entities whose id is in ids
func (r *Repository[T]) FindAllByID(ctx context.Context, ids []any) ([]T, error) {
	return r.all(r.persister.FindAllByID(ctx, r.md, ids))
}

// Save inserts e when its id is unset and updates it otherwise
func (r *Repository[T]) Save(ctx context.Context, e T) (T, error) {
	var zero T
	if id, ok := e.Get(r.md.IDPropertyName); ok && id != nil {
		saved, err := r.persister.Update(ctx, r.md, e)
		if err != nil {
			return zero, err
		}
		return r.cast(saved)
	}

	saved, err := r.persister.Insert(ctx, r.md, e)
	if err != nil {
		return zero, err
	}
	return r.cast(saved)
}

// SaveAll saves every entity in order and stops at the first failure
func (r *Repository[T]) SaveAll(ctx context.Context, entities []T) ([]T, error) {
	saved := make([]T, 0, len(entities))
	for _, e := range entities {
		s, err := r.Save(ctx, e)
		if err != nil {
			return saved, err
		}
		saved = append(saved, s)
	}
	return saved, nil
}

// Delete deletes e by its id
func (r *Repository[T]) Delete(ctx context.Context, e T) error {
	id, ok := e.Get(r.md.IDPropertyName)
	if !ok || id == nil {
		return fmt.Errorf("%w: delete %s", ormerr.ErrIDNotFound, r.md.TableName)
	}
	return r.persister.DeleteByID(ctx, r.md, id)
}

// DeleteByID deletes the entity with the given id
func (r *Repository[T]) DeleteByID(ctx context.Context, id any) error {
	return r.persister.DeleteByID(ctx, r.md, id)
}

// DeleteAllByID deletes the entities whose id is in ids
func (r *Repository[T]) DeleteAllByID(ctx context.Context, ids []any) error {
	return r.persister.DeleteAllByID(ctx, r.md, ids)
}

// DeleteAll deletes every entity
func (r *Repository[T]) DeleteAll(ctx context.Context) error {
	return r.persister.DeleteAll(ctx, r.md)
}

// Count returns the number of entities
func (r *Repository[T]) Count(ctx context.Context) (int64, error) {
	return r.persister.Count(ctx, r.md)
}

// ExistsByID reports whether an entity with the given id exists
func (r *Repository[T]) ExistsByID(ctx context.Context, id any) (bool, error) {
	return r.persister.ExistsByProperty(ctx, r.md, r.md.IDPropertyName, id)
}

// FindByField returns the first entity whose property equals value
func (r *Repository[T]) FindByField(ctx context.Context, property string, value any) (T, bool, error) {
	return r.one(r.persister.FindByProperty(ctx, r.md, property, value))
}

// FindAllByField returns the entities whose property equals value
func (r *Repository[T]) FindAllByField(ctx context.Context, property string, value any) ([]T, error) {
	return r.all(r.persister.FindAllByProperty(ctx, r.md, property, value))
}

// CountByField returns the number of entities whose property equals value
func (r *Repository[T]) CountByField(ctx context.Context, property string, value any) (int64, error) {
	return r.persister.CountByProperty(ctx, r.md, property, value)
}

// ExistsByField reports whether an entity with property equal to value exists
func (r *Repository[T]) ExistsByField(ctx context.Context, property string, value any) (bool, error) {
	return r.persister.ExistsByProperty(ctx, r.md, property, value)
}

// DeleteAllByField deletes the entities whose property equals value
func (r *Repository[T]) DeleteAllByField(ctx context.Context, property string, value any) error {
	return r.persister.DeleteAllByProperty(ctx, r.md, property, value)
}

func (r *Repository[T]) cast(e schema.Entity) (T, error) {
	t, ok := e.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: %s factory built %T", ormerr.ErrInvalidEntity, r.md.TableName, e)
	}
	return t, nil
}

func (r *Repository[T]) one(e schema.Entity, err error) (T, bool, error) {
	var zero T
	if err != nil || e == nil {
		return zero, false, err
	}
	t, err := r.cast(e)
	if err != nil {
		return zero, false, err
	}
	return t, true, nil
}

func (r *Repository[T]) all(entities []schema.Entity, err error) ([]T, error) {
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		t, err := r.cast(e)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}
