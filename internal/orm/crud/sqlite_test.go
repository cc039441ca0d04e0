package crud

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/conduit-lang/persist/internal/orm/entity"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

const sqliteSchema = `
CREATE TABLE carts (
	cart_id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT
);
CREATE TABLE cart_items (
	cart_item_id INTEGER PRIMARY KEY AUTOINCREMENT,
	sku TEXT NOT NULL,
	quantity INTEGER NOT NULL,
	cart_id INTEGER NOT NULL REFERENCES carts (cart_id)
);
`

func newSQLite(t *testing.T) (*SQLPersister, *schema.EntityMetadata, *schema.EntityMetadata) {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "persist.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	_, err = db.Exec(sqliteSchema)
	require.NoError(t, err)

	p := NewSQLite(db)
	t.Cleanup(func() { _ = p.Destroy() })

	carts, items := setupPersister(t, p)
	return p, carts, items
}

func insertCart(t *testing.T, p *SQLPersister, carts *schema.EntityMetadata, name string) schema.Entity {
	t.Helper()

	created, err := p.Insert(context.Background(), carts, entity.NewRecord(carts, map[string]any{"name": name}))
	require.NoError(t, err)
	return created
}

func idOf(t *testing.T, e schema.Entity) any {
	t.Helper()

	id, ok := e.Get(e.Metadata().IDPropertyName)
	require.True(t, ok)
	require.NotNil(t, id)
	return id
}

func TestSQLiteInsertThenCount(t *testing.T) {
	ctx := context.Background()
	p, carts, _ := newSQLite(t)

	n, err := p.Count(ctx, carts)
	require.NoError(t, err)
	assert.Zero(t, n)

	created := insertCart(t, p, carts, "home")

	n, err = p.Count(ctx, carts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, err := p.FindByID(ctx, carts, idOf(t, created))
	require.NoError(t, err)
	require.NotNil(t, found)

	name, _ := found.Get("name")
	assert.Equal(t, "home", name)
	assert.Equal(t, entity.ToJSON(created), entity.ToJSON(found))
}

func TestSQLiteDeleteAllByID(t *testing.T) {
	ctx := context.Background()
	p, carts, _ := newSQLite(t)

	first := idOf(t, insertCart(t, p, carts, "one"))
	second := idOf(t, insertCart(t, p, carts, "two"))
	third := idOf(t, insertCart(t, p, carts, "three"))

	require.NoError(t, p.DeleteAllByID(ctx, carts, []any{second, third}))

	kept, err := p.FindByID(ctx, carts, first)
	require.NoError(t, err)
	assert.NotNil(t, kept)

	for _, id := range []any{second, third} {
		gone, err := p.FindByID(ctx, carts, id)
		require.NoError(t, err)
		assert.Nil(t, gone)
	}

	n, err := p.Count(ctx, carts)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLiteRelations(t *testing.T) {
	ctx := context.Background()
	p, carts, items := newSQLite(t)

	home := insertCart(t, p, carts, "home")
	empty := insertCart(t, p, carts, "empty")

	_, err := p.Insert(ctx, items,
		entity.NewRecord(items, map[string]any{"sku": "A", "quantity": int64(2), "cart": home}),
		entity.NewRecord(items, map[string]any{"sku": "B", "quantity": int64(1), "cart": idOf(t, home)}))
	require.NoError(t, err)

	t.Run("one-to-many collects the children", func(t *testing.T) {
		all, err := p.FindAll(ctx, carts)
		require.NoError(t, err)
		require.Len(t, all, 2)

		byName := make(map[any][]schema.Entity)
		for _, cart := range all {
			name, _ := cart.Get("name")
			children, ok := cart.Get("items")
			require.True(t, ok)
			byName[name] = children.([]schema.Entity)
		}

		require.Len(t, byName["home"], 2)
		skus := []any{}
		for _, child := range byName["home"] {
			sku, _ := child.Get("sku")
			skus = append(skus, sku)
			quantity, _ := child.Get("quantity")
			assert.IsType(t, int64(0), quantity)
		}
		assert.ElementsMatch(t, []any{"A", "B"}, skus)

		assert.NotNil(t, byName["empty"])
		assert.Empty(t, byName["empty"])
	})

	t.Run("many-to-one embeds the parent", func(t *testing.T) {
		found, err := p.FindByProperty(ctx, items, "sku", "A")
		require.NoError(t, err)
		require.NotNil(t, found)

		parent, ok := found.Get("cart")
		require.True(t, ok)
		cart, ok := parent.(schema.Entity)
		require.True(t, ok)
		name, _ := cart.Get("name")
		assert.Equal(t, "home", name)
	})

	t.Run("property lookups by related entity", func(t *testing.T) {
		n, err := p.CountByProperty(ctx, items, "cart", home)
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)

		children, err := p.FindAllByProperty(ctx, items, "cart", idOf(t, empty))
		require.NoError(t, err)
		assert.Empty(t, children)
	})

	t.Run("exists agrees with count", func(t *testing.T) {
		for _, sku := range []string{"A", "B", "C"} {
			n, err := p.CountByProperty(ctx, items, "sku", sku)
			require.NoError(t, err)
			exists, err := p.ExistsByProperty(ctx, items, "sku", sku)
			require.NoError(t, err)
			assert.Equal(t, n >= 1, exists, sku)
		}
	})

	t.Run("update rewrites the columns", func(t *testing.T) {
		home.Set("name", "work")
		updated, err := p.Update(ctx, carts, home)
		require.NoError(t, err)

		name, _ := updated.Get("name")
		assert.Equal(t, "work", name)
		children, _ := updated.Get("items")
		assert.Len(t, children, 2)
	})

	t.Run("delete by property", func(t *testing.T) {
		require.NoError(t, p.DeleteAllByProperty(ctx, items, "sku", "B"))

		n, err := p.Count(ctx, items)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	})
}

func TestSQLiteMultiRowInsert(t *testing.T) {
	ctx := context.Background()
	p, carts, _ := newSQLite(t)

	created, err := p.Insert(ctx, carts,
		entity.NewRecord(carts, map[string]any{"name": "first"}),
		entity.NewRecord(carts, map[string]any{"name": "second"}))
	require.NoError(t, err)

	name, _ := created.Get("name")
	assert.Contains(t, []any{"first", "second"}, name)

	n, err := p.Count(ctx, carts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

const sqliteNotesSchema = `
CREATE TABLE cart_notes (
	cart_note_id INTEGER PRIMARY KEY AUTOINCREMENT,
	body TEXT NOT NULL,
	cart_id INTEGER NOT NULL REFERENCES carts (cart_id)
);
`

func cartNoteMetadata() *schema.EntityMetadata {
	return schema.NewEntity("cart_notes").
		ID("cartNoteId", "cart_note_id", schema.TypeInt).
		Column("body", "body", schema.TypeString).
		ManyToOne("cart", "cart_id", false).
		Factory(entity.RecordFactory).
		MustBuild()
}

func TestSQLiteTwoCollections(t *testing.T) {
	ctx := context.Background()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "persist.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	_, err = db.Exec(sqliteSchema + sqliteNotesSchema)
	require.NoError(t, err)

	p := NewSQLite(db)
	t.Cleanup(func() { _ = p.Destroy() })

	carts, err := p.SetupEntityMetadata(schema.NewEntity("carts").
		ID("cartId", "cart_id", schema.TypeInt).
		NullableColumn("name", "name", schema.TypeString).
		OneToManyFrom("items", "cart", "cart_items").
		OneToManyFrom("notes", "cart", "cart_notes").
		Factory(entity.RecordFactory).
		MustBuild())
	require.NoError(t, err)
	items, err := p.SetupEntityMetadata(cartItemMetadata())
	require.NoError(t, err)
	notes, err := p.SetupEntityMetadata(cartNoteMetadata())
	require.NoError(t, err)
	require.Empty(t, p.Registry().Pending())

	home := insertCart(t, p, carts, "home")
	insertCart(t, p, carts, "empty")

	for _, sku := range []string{"A", "B", "C"} {
		_, err := p.Insert(ctx, items, entity.NewRecord(items, map[string]any{"sku": sku, "quantity": int64(1), "cart": home}))
		require.NoError(t, err)
	}
	for _, body := range []string{"gift", "fragile"} {
		_, err := p.Insert(ctx, notes, entity.NewRecord(notes, map[string]any{"body": body, "cart": home}))
		require.NoError(t, err)
	}

	all, err := p.FindAll(ctx, carts)
	require.NoError(t, err)
	require.Len(t, all, 2)

	for _, cart := range all {
		name, _ := cart.Get("name")
		cartItems, ok := cart.Get("items")
		require.True(t, ok)
		cartNotes, ok := cart.Get("notes")
		require.True(t, ok)

		switch name {
		case "home":
			assert.Len(t, cartItems, 3)
			assert.Len(t, cartNotes, 2)
		case "empty":
			assert.Equal(t, []schema.Entity{}, cartItems)
			assert.Equal(t, []schema.Entity{}, cartNotes)
		}
	}
}

func TestSQLiteCompatibleMetadataCopy(t *testing.T) {
	ctx := context.Background()
	p, carts, _ := newSQLite(t)
	insertCart(t, p, carts, "home")

	again := cartMetadata()
	_, err := p.SetupEntityMetadata(again)
	require.NoError(t, err)

	all, err := p.FindAll(ctx, again)
	require.NoError(t, err)
	require.Len(t, all, 1)
	children, ok := all[0].Get("items")
	require.True(t, ok)
	assert.Empty(t, children)
}
