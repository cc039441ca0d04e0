package memory

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/persist/internal/orm/entity"
	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

func setup(t *testing.T) (*Persister, *schema.EntityMetadata, *schema.EntityMetadata) {
	t.Helper()

	p := New()
	// children first: resolution does not depend on order
	items, err := p.SetupEntityMetadata(schema.NewEntity("cart_items").
		ID("cartItemId", "cart_item_id", schema.TypeInt).
		Column("sku", "sku", schema.TypeString).
		ManyToOne("cart", "cart_id", false).
		Factory(entity.RecordFactory).
		MustBuild())
	require.NoError(t, err)
	carts, err := p.SetupEntityMetadata(schema.NewEntity("carts").
		ID("cartId", "cart_id", schema.TypeInt).
		NullableColumn("name", "name", schema.TypeString).
		OneToMany("items", "cart").
		Factory(entity.RecordFactory).
		MustBuild())
	require.NoError(t, err)
	return p, carts, items
}

func get(e schema.Entity, property string) any {
	v, _ := e.Get(property)
	return v
}

func TestInsertAndFind(t *testing.T) {
	ctx := context.Background()
	p, carts, items := setup(t)

	n, err := p.Count(ctx, carts)
	require.NoError(t, err)
	assert.Zero(t, n)

	input := entity.NewRecord(carts, map[string]any{"name": "home"})
	created, err := p.Insert(ctx, carts, input)
	require.NoError(t, err)
	assert.Equal(t, int64(1), get(created, "cartId"))
	assert.Equal(t, []schema.Entity{}, get(created, "items"))

	n, err = p.Count(ctx, carts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	t.Run("returned entities are independent copies", func(t *testing.T) {
		created.Set("name", "changed")
		input.Set("name", "changed")

		found, err := p.FindByID(ctx, carts, 1)
		require.NoError(t, err)
		assert.Equal(t, "home", get(found, "name"))
	})

	t.Run("relations are projected", func(t *testing.T) {
		_, err := p.Insert(ctx, items,
			entity.NewRecord(items, map[string]any{"sku": "A", "cart": created}),
			entity.NewRecord(items, map[string]any{"sku": "B", "cart": 1}))
		require.NoError(t, err)

		cart, err := p.FindByID(ctx, carts, int64(1))
		require.NoError(t, err)
		children := get(cart, "items").([]schema.Entity)
		require.Len(t, children, 2)
		assert.Equal(t, "A", get(children[0], "sku"))

		item, err := p.FindByProperty(ctx, items, "sku", "B")
		require.NoError(t, err)
		parent, ok := get(item, "cart").(schema.Entity)
		require.True(t, ok)
		assert.Equal(t, "home", get(parent, "name"))

		n, err := p.CountByProperty(ctx, items, "cart", cart)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})

	t.Run("missing rows", func(t *testing.T) {
		found, err := p.FindByID(ctx, carts, 99)
		require.NoError(t, err)
		assert.Nil(t, found)

		found, err = p.FindByProperty(ctx, carts, "name", "nope")
		require.NoError(t, err)
		assert.Nil(t, found)
	})
}

func TestDeleteAllByID(t *testing.T) {
	ctx := context.Background()
	p, carts, _ := setup(t)

	for _, name := range []string{"one", "two", "three"} {
		_, err := p.Insert(ctx, carts, entity.NewRecord(carts, map[string]any{"name": name}))
		require.NoError(t, err)
	}

	require.NoError(t, p.DeleteAllByID(ctx, carts, []any{2, 3}))

	kept, err := p.FindByID(ctx, carts, 1)
	require.NoError(t, err)
	assert.NotNil(t, kept)
	for _, id := range []any{2, 3} {
		gone, err := p.FindByID(ctx, carts, id)
		require.NoError(t, err)
		assert.Nil(t, gone)
	}

	err = p.DeleteAllByID(ctx, carts, nil)
	assert.ErrorIs(t, err, ormerr.ErrNoEntities)

	require.NoError(t, p.DeleteAll(ctx, carts))
	all, err := p.FindAll(ctx, carts)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	p, carts, _ := setup(t)

	created, err := p.Insert(ctx, carts, entity.NewRecord(carts, map[string]any{"name": "home"}))
	require.NoError(t, err)

	created.Set("name", "work")
	updated, err := p.Update(ctx, carts, created)
	require.NoError(t, err)
	assert.Equal(t, "work", get(updated, "name"))

	_, err = p.Update(ctx, carts, entity.NewRecord(carts, map[string]any{"name": "x"}))
	assert.ErrorIs(t, err, ormerr.ErrIDNotFound)

	_, err = p.Update(ctx, carts, entity.NewRecord(carts, map[string]any{"cartId": int64(50), "name": "x"}))
	assert.ErrorIs(t, err, ormerr.ErrEntityNotFound)
}

func TestExistsAgreesWithCount(t *testing.T) {
	ctx := context.Background()
	p, carts, _ := setup(t)

	_, err := p.Insert(ctx, carts,
		entity.NewRecord(carts, map[string]any{"name": "a"}),
		entity.NewRecord(carts, map[string]any{"name": "a"}),
		entity.NewRecord(carts, map[string]any{}))
	require.NoError(t, err)

	for _, v := range []any{"a", "b", nil} {
		n, err := p.CountByProperty(ctx, carts, "name", v)
		require.NoError(t, err)
		exists, err := p.ExistsByProperty(ctx, carts, "name", v)
		require.NoError(t, err)
		assert.Equal(t, n >= 1, exists)
	}

	n, err := p.CountByProperty(ctx, carts, "name", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGeneratedIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("string ids are ulids", func(t *testing.T) {
		p := New()
		md, err := p.SetupEntityMetadata(schema.NewEntity("notes").
			ID("id", "id", schema.TypeString).
			Column("body", "body", schema.TypeString).
			MustBuild())
		require.NoError(t, err)

		created, err := p.Insert(ctx, md, entity.NewRecord(md, map[string]any{"body": "x"}))
		require.NoError(t, err)
		_, err = ulid.ParseStrict(get(created, "id").(string))
		assert.NoError(t, err)
	})

	t.Run("uuid ids", func(t *testing.T) {
		p := New()
		md, err := p.SetupEntityMetadata(schema.NewEntity("notes").
			ID("id", "id", schema.TypeUUID).
			MustBuild())
		require.NoError(t, err)

		created, err := p.Insert(ctx, md, entity.NewRecord(md, nil))
		require.NoError(t, err)
		_, err = uuid.Parse(get(created, "id").(string))
		assert.NoError(t, err)
	})

	t.Run("explicit ids move the sequence", func(t *testing.T) {
		p, carts, _ := setup(t)

		_, err := p.Insert(ctx, carts, entity.NewRecord(carts, map[string]any{"cartId": int64(10)}))
		require.NoError(t, err)
		next, err := p.Insert(ctx, carts, entity.NewRecord(carts, nil))
		require.NoError(t, err)
		assert.Equal(t, int64(11), get(next, "cartId"))

		_, err = p.Insert(ctx, carts, entity.NewRecord(carts, map[string]any{"cartId": 10}))
		assert.ErrorIs(t, err, ormerr.ErrUniqueViolation)
	})
}

func TestBatchIDs(t *testing.T) {
	ctx := context.Background()

	t.Run("duplicate ids in one batch", func(t *testing.T) {
		p, carts, _ := setup(t)

		_, err := p.Insert(ctx, carts,
			entity.NewRecord(carts, map[string]any{"cartId": int64(9), "name": "home"}),
			entity.NewRecord(carts, map[string]any{"cartId": 9, "name": "work"}))
		assert.ErrorIs(t, err, ormerr.ErrUniqueViolation)

		n, err := p.Count(ctx, carts)
		require.NoError(t, err)
		assert.Zero(t, n)

		next, err := p.Insert(ctx, carts, entity.NewRecord(carts, nil))
		require.NoError(t, err)
		assert.Equal(t, int64(1), get(next, "cartId"))
	})

	t.Run("some rows with ids and some without", func(t *testing.T) {
		p, carts, _ := setup(t)

		_, err := p.Insert(ctx, carts,
			entity.NewRecord(carts, map[string]any{"cartId": int64(4)}),
			entity.NewRecord(carts, map[string]any{"name": "work"}))
		assert.ErrorIs(t, err, ormerr.ErrInvalidEntity)

		n, err := p.Count(ctx, carts)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("every row with an id", func(t *testing.T) {
		p, carts, _ := setup(t)

		_, err := p.Insert(ctx, carts,
			entity.NewRecord(carts, map[string]any{"cartId": int64(4)}),
			entity.NewRecord(carts, map[string]any{"cartId": int64(5)}))
		require.NoError(t, err)

		n, err := p.Count(ctx, carts)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
	})
}

func TestStoredRowsAreIsolated(t *testing.T) {
	ctx := context.Background()
	p := New()
	md, err := p.SetupEntityMetadata(schema.NewEntity("notes").
		ID("id", "id", schema.TypeInt).
		NullableColumn("labels", "labels", schema.TypeUnknown).
		Factory(entity.RecordFactory).
		MustBuild())
	require.NoError(t, err)

	labels := []string{"a", "b"}
	created, err := p.Insert(ctx, md, entity.NewRecord(md, map[string]any{"labels": labels}))
	require.NoError(t, err)

	t.Run("input slice", func(t *testing.T) {
		labels[0] = "changed"

		found, err := p.FindByID(ctx, md, get(created, "id"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, get(found, "labels"))
	})

	t.Run("returned entity", func(t *testing.T) {
		get(created, "labels").([]string)[1] = "changed"

		found, err := p.FindByID(ctx, md, get(created, "id"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, get(found, "labels"))

		get(found, "labels").([]string)[0] = "changed"
		again, err := p.FindByID(ctx, md, get(created, "id"))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, get(again, "labels"))
	})
}

func TestValidationAndDestroy(t *testing.T) {
	ctx := context.Background()
	p, carts, items := setup(t)

	_, err := p.Insert(ctx, carts)
	assert.ErrorIs(t, err, ormerr.ErrNoEntities)

	_, err = p.Insert(ctx, carts, entity.NewRecord(items, nil))
	assert.ErrorIs(t, err, ormerr.ErrMixedEntityType)

	_, err = p.FindAllByProperty(ctx, carts, "items", 1)
	assert.ErrorIs(t, err, ormerr.ErrColumnNotFound)

	require.NoError(t, p.Destroy())
	require.NoError(t, p.Destroy())

	_, err = p.FindAll(ctx, carts)
	assert.ErrorIs(t, err, ormerr.ErrPersisterDestroyed)
	_, err = p.Insert(ctx, carts, entity.NewRecord(carts, nil))
	assert.ErrorIs(t, err, ormerr.ErrPersisterDestroyed)
}
