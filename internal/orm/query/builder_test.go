package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

func cartRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	registry := schema.NewRegistry()
	_, err := registry.SetupEntityMetadata(schema.NewEntity("carts").
		ID("cartId", "cart_id", schema.TypeInt).
		NullableColumn("name", "name", schema.TypeString).
		OneToMany("items", "cart").
		MustBuild())
	require.NoError(t, err)
	_, err = registry.SetupEntityMetadata(schema.NewEntity("cart_items").
		ID("cartItemId", "cart_item_id", schema.TypeInt).
		Column("sku", "sku", schema.TypeString).
		ManyToOne("cart", "cart_id", false).
		MustBuild())
	require.NoError(t, err)
	return registry
}

func mustMetadata(t *testing.T, registry *schema.Registry, table string) *schema.EntityMetadata {
	t.Helper()
	md, ok := registry.GetMetadataByTable(table)
	require.True(t, ok)
	return md
}

func TestSelectBuilder(t *testing.T) {
	t.Run("simple select", func(t *testing.T) {
		sql, values, err := NewSelect(MySQL).
			SetFromTable("carts").
			IncludeAllColumnsFromTable("carts").
			Build()
		require.NoError(t, err)
		assert.Equal(t, "SELECT `carts`.* FROM `carts`", sql)
		assert.Empty(t, values)
	})

	t.Run("formula with where", func(t *testing.T) {
		sql, values, err := NewSelect(MySQL).
			SetFromTable("carts").
			IncludeFormula("COUNT(*)", "count").
			SetWhere(NewAndFormula().ColumnEquals("carts", "name", "x")).
			Build()
		require.NoError(t, err)
		assert.Equal(t, "SELECT COUNT(*) AS `count` FROM `carts` WHERE `carts`.`name` = ?", sql)
		assert.Equal(t, []any{"x"}, values)
	})

	t.Run("postgres numbers placeholders across parts", func(t *testing.T) {
		obj := NewJSONObject(Postgres).AddColumn("sku", "cart_items", "sku")
		sql, values, err := NewSelect(Postgres).
			SetFromTable("carts").
			IncludeAllColumnsFromTable("carts").
			IncludeColumnFromBuilder(NewJSONArrayAgg(Postgres, obj), "items").
			LeftJoinTable("cart_items", "cart_id", "carts", "cart_id").
			SetWhere(NewAndFormula().ColumnInList("carts", "cart_id", []any{1, 2})).
			SetGroupByColumn("carts", "cart_id").
			Build()
		require.NoError(t, err)
		assert.Equal(t, `SELECT "carts".*, json_agg(json_build_object($1::text, "cart_items"."sku")) AS "items" FROM "carts" LEFT JOIN "cart_items" ON "carts"."cart_id" = "cart_items"."cart_id" WHERE "carts"."cart_id" IN ($2, $3) GROUP BY "carts"."cart_id"`, sql)
		assert.Equal(t, []any{"sku", 1, 2}, values)
	})

	t.Run("query string and values agree", func(t *testing.T) {
		b := NewSelect(Postgres).
			SetFromTable("carts").
			IncludeAllColumnsFromTable("carts").
			SetWhere(NewAndFormula().ColumnEquals("carts", "cart_id", 7).ColumnEquals("carts", "name", "n"))

		sql, err := b.BuildQueryString()
		require.NoError(t, err)
		values, err := b.BuildQueryValues()
		require.NoError(t, err)

		assert.Equal(t, `SELECT "carts".* FROM "carts" WHERE "carts"."cart_id" = $1 AND "carts"."name" = $2`, sql)
		assert.Equal(t, []any{7, "n"}, values)
	})

	t.Run("table prefix applies to every table", func(t *testing.T) {
		obj := NewJSONObject(MySQL).AddColumn("sku", "cart_items", "sku")
		sql, _, err := NewSelect(MySQL).
			SetTablePrefix("t1_").
			SetFromTable("carts").
			IncludeAllColumnsFromTable("carts").
			IncludeColumnFromBuilder(NewJSONArrayAgg(MySQL, obj), "items").
			LeftJoinTable("cart_items", "cart_id", "carts", "cart_id").
			SetGroupByColumn("carts", "cart_id").
			Build()
		require.NoError(t, err)
		assert.Equal(t, "SELECT `t1_carts`.*, JSON_ARRAYAGG(JSON_OBJECT(?, `t1_cart_items`.`sku`)) AS `items` FROM `t1_carts` LEFT JOIN `t1_cart_items` ON `t1_carts`.`cart_id` = `t1_cart_items`.`cart_id` GROUP BY `t1_carts`.`cart_id`", sql)
	})

	t.Run("invalid identifiers", func(t *testing.T) {
		_, _, err := NewSelect(MySQL).SetFromTable("carts").IncludeColumn("carts", "bad col").Build()
		assert.ErrorIs(t, err, ormerr.ErrInvalidIdentifier)

		_, _, err = NewSelect(MySQL).SetTablePrefix("bad-").SetFromTable("carts").IncludeAllColumnsFromTable("carts").Build()
		assert.ErrorIs(t, err, ormerr.ErrInvalidIdentifier)

		_, _, err = NewSelect(MySQL).SetFromTable("carts").IncludeFormula("COUNT(*)", "a`b").Build()
		assert.ErrorIs(t, err, ormerr.ErrInvalidIdentifier)
	})

	t.Run("missing parts", func(t *testing.T) {
		_, _, err := NewSelect(MySQL).IncludeAllColumnsFromTable("carts").Build()
		assert.Error(t, err)

		_, _, err = NewSelect(MySQL).SetFromTable("carts").Build()
		assert.Error(t, err)
	})
}

func TestAndFormula(t *testing.T) {
	tests := []struct {
		name    string
		formula *AndFormula
		sql     string
		values  []any
	}{
		{
			name:    "equals",
			formula: NewAndFormula().ColumnEquals("carts", "name", "a"),
			sql:     "`carts`.`name` = ?",
			values:  []any{"a"},
		},
		{
			name:    "nil equals is null",
			formula: NewAndFormula().ColumnEquals("carts", "name", nil),
			sql:     "`carts`.`name` IS NULL",
			values:  []any{},
		},
		{
			name:    "in list",
			formula: NewAndFormula().ColumnInList("carts", "cart_id", []any{1, 2, 3}),
			sql:     "`carts`.`cart_id` IN (?, ?, ?)",
			values:  []any{1, 2, 3},
		},
		{
			name:    "empty list matches nothing",
			formula: NewAndFormula().ColumnInList("carts", "cart_id", nil),
			sql:     "1 = 0",
			values:  []any{},
		},
		{
			name:    "and",
			formula: NewAndFormula().ColumnEquals("carts", "cart_id", 1).ColumnIsNull("carts", "name"),
			sql:     "`carts`.`cart_id` = ? AND `carts`.`name` IS NULL",
			values:  []any{1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sql, values, err := tt.formula.Fragment().Render(MySQL, "")
			require.NoError(t, err)
			assert.Equal(t, tt.sql, sql)
			assert.Equal(t, tt.values, values)
		})
	}

	assert.True(t, NewAndFormula().IsEmpty())
	var nilFormula *AndFormula
	assert.True(t, nilFormula.IsEmpty())
}

func TestAndFormulaCopiesList(t *testing.T) {
	ids := []any{1, 2}
	formula := NewAndFormula().ColumnInList("carts", "cart_id", ids)
	ids[0] = 99

	assert.Equal(t, []any{1, 2}, formula.Conditions()[0].Values)
}

func TestEntitySelect(t *testing.T) {
	registry := cartRegistry(t)
	carts := mustMetadata(t, registry, "carts")
	items := mustMetadata(t, registry, "cart_items")

	t.Run("one-to-many mysql", func(t *testing.T) {
		b, err := NewEntitySelect(MySQL, registry, carts)
		require.NoError(t, err)
		b.SetWhere(NewAndFormula().ColumnEquals("carts", "cart_id", 1))

		sql, values, err := b.Build()
		require.NoError(t, err)
		assert.Equal(t, "SELECT `carts`.*, JSON_ARRAYAGG(JSON_OBJECT(?, `cart_items`.`cart_item_id`, ?, `cart_items`.`sku`, ?, `cart_items`.`cart_id`)) AS `items` FROM `carts` LEFT JOIN `cart_items` ON `carts`.`cart_id` = `cart_items`.`cart_id` WHERE `carts`.`cart_id` = ? GROUP BY `carts`.`cart_id`", sql)
		assert.Equal(t, []any{"cart_item_id", "sku", "cart_id", 1}, values)
	})

	t.Run("many-to-one postgres", func(t *testing.T) {
		b, err := NewEntitySelect(Postgres, registry, items)
		require.NoError(t, err)

		sql, values, err := b.Build()
		require.NoError(t, err)
		assert.Equal(t, `SELECT "cart_items".*, (json_agg(json_build_object($1::text, "carts"."cart_id", $2::text, "carts"."name")) -> 0) AS "cart" FROM "cart_items" LEFT JOIN "carts" ON "cart_items"."cart_id" = "carts"."cart_id" GROUP BY "cart_items"."cart_item_id"`, sql)
		assert.Equal(t, []any{"cart_id", "name"}, values)
	})

	t.Run("many-to-one sqlite", func(t *testing.T) {
		b, err := NewEntitySelect(SQLite, registry, items)
		require.NoError(t, err)

		sql, err := b.BuildQueryString()
		require.NoError(t, err)
		assert.Equal(t, `SELECT "cart_items".*, json_extract(json_group_array(json_object(?, "carts"."cart_id", ?, "carts"."name")), '$[0]') AS "cart" FROM "cart_items" LEFT JOIN "carts" ON "cart_items"."cart_id" = "carts"."cart_id" GROUP BY "cart_items"."cart_item_id"`, sql)
	})

	t.Run("no relations means no group by", func(t *testing.T) {
		plain := schema.NewEntity("notes").ID("id", "id", schema.TypeInt).MustBuild()
		b, err := NewEntitySelect(MySQL, registry, plain)
		require.NoError(t, err)

		sql, err := b.BuildQueryString()
		require.NoError(t, err)
		assert.Equal(t, "SELECT `notes`.* FROM `notes`", sql)
	})

	t.Run("pending relation", func(t *testing.T) {
		lonely := schema.NewRegistry()
		md, err := lonely.SetupEntityMetadata(schema.NewEntity("carts").
			ID("cartId", "cart_id", schema.TypeInt).
			OneToMany("items", "cart").
			MustBuild())
		require.NoError(t, err)

		_, err = NewEntitySelect(MySQL, lonely, md)
		assert.ErrorIs(t, err, ormerr.ErrRelationMetadataMissing)
		assert.ErrorIs(t, err, ormerr.ErrMetadata)
	})

	t.Run("target not in source", func(t *testing.T) {
		_, err := NewEntitySelect(MySQL, schema.NewRegistry(), items)
		assert.ErrorIs(t, err, ormerr.ErrRelationMetadataMissing)
	})

	t.Run("self join", func(t *testing.T) {
		md := schema.NewEntity("cart_items").
			ID("cartItemId", "cart_item_id", schema.TypeInt).
			ManyToOne("parent", "parent_id", true).
			MustBuild()
		md.ManyToOneRelations[0].TargetTable = "cart_items"

		_, err := NewEntitySelect(MySQL, registry, md)
		assert.ErrorIs(t, err, ormerr.ErrInvalidMetadata)
	})
}
