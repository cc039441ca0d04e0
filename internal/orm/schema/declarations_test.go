package schema

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const cartDeclarations = `
entities:
  - table: cart_items
    id: {property: cartItemId, column: cart_item_id, type: int}
    fields:
      - {property: sku, type: string}
      - {property: quantity, column: qty, type: int, definition: "INT NOT NULL"}
    many_to_one:
      - {property: cart, join_column: cart_id}
  - table: carts
    id: {property: cartId, column: cart_id, type: int}
    fields:
      - {property: name, type: string, nullable: true}
    one_to_many:
      - {property: items, mapped_by: cart}
`

func TestLoadDeclarations(t *testing.T) {
	decl, err := LoadDeclarations(strings.NewReader(cartDeclarations))
	require.NoError(t, err)
	require.Len(t, decl.Entities, 2)

	items := decl.Entities[0]
	assert.Equal(t, "cart_items", items.Table)
	assert.Equal(t, "qty", items.Fields[1].Column)
	assert.Equal(t, "INT NOT NULL", items.Fields[1].Definition)

	registry := NewRegistry()
	mds, err := decl.Register(registry, nil)
	require.NoError(t, err)
	require.Len(t, mds, 2)

	itemsMD := mds[0]
	f, ok := itemsMD.Field("sku")
	require.True(t, ok)
	assert.Equal(t, "sku", f.ColumnName)
	assert.Equal(t, TypeString, f.ValueType)
	assert.Equal(t, "carts", itemsMD.ManyToOneRelations[0].TargetTable)
	assert.Equal(t, "cart_items", mds[1].OneToManyRelations[0].MappedTable)
	assert.Empty(t, registry.Pending())
}

func TestLoadDeclarationsErrors(t *testing.T) {
	t.Run("unknown key", func(t *testing.T) {
		_, err := LoadDeclarations(strings.NewReader("entities:\n  - tabel: carts\n"))
		assert.Error(t, err)
	})

	t.Run("unknown type", func(t *testing.T) {
		decl, err := LoadDeclarations(strings.NewReader("entities:\n  - table: t\n    id: {property: id, type: blob}\n"))
		require.NoError(t, err)
		_, err = decl.Register(NewRegistry(), nil)
		assert.ErrorContains(t, err, "unknown value type")
	})

	t.Run("empty document", func(t *testing.T) {
		decl, err := LoadDeclarations(strings.NewReader(""))
		require.NoError(t, err)
		assert.Empty(t, decl.Entities)
	})
}

func TestLoadDeclarationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entities.yml")
	require.NoError(t, os.WriteFile(path, []byte(cartDeclarations), 0o644))

	decl, err := LoadDeclarationFile(path)
	require.NoError(t, err)
	assert.Len(t, decl.Entities, 2)

	_, err = LoadDeclarationFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.Error(t, err)
}
