package codegen

import (
	"errors"
	"strings"
	"testing"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

func cartRegistry(t *testing.T) *schema.Registry {
	t.Helper()

	reg := schema.NewRegistry()
	// the child is registered first so GenerateSchema has to reorder
	for _, md := range []*schema.EntityMetadata{
		schema.NewEntity("cart_items").
			ID("cartItemId", "cart_item_id", schema.TypeInt).
			Column("sku", "sku", schema.TypeString).
			ManyToOne("cart", "cart_id", false).
			MustBuild(),
		schema.NewEntity("carts").
			ID("cartId", "cart_id", schema.TypeInt).
			NullableColumn("name", "name", schema.TypeString).
			Field(schema.EntityField{
				PropertyName:     "total",
				ColumnName:       "total",
				ColumnDefinition: "NUMERIC(10,2) NOT NULL DEFAULT 0",
				FieldType:        schema.FieldScalar,
				ValueType:        schema.TypeFloat,
			}).
			OneToMany("items", "cart").
			MustBuild(),
	} {
		if _, err := reg.SetupEntityMetadata(md); err != nil {
			t.Fatalf("SetupEntityMetadata() error = %v", err)
		}
	}
	return reg
}

func TestDDLGenerator_GenerateCreateTable(t *testing.T) {
	reg := cartRegistry(t)
	carts, _ := reg.GetMetadataByTable("carts")

	ddl, err := NewDDLGenerator(query.Postgres).GenerateCreateTable(reg, carts)
	if err != nil {
		t.Fatalf("GenerateCreateTable() error = %v", err)
	}

	expected := `CREATE TABLE IF NOT EXISTS "carts" (
  "cart_id" BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY,
  "name" TEXT NULL,
  "total" NUMERIC(10,2) NOT NULL DEFAULT 0
);`
	if ddl != expected {
		t.Errorf("GenerateCreateTable() =\n%s\nwant\n%s", ddl, expected)
	}
}

func TestDDLGenerator_ForeignKeys(t *testing.T) {
	reg := cartRegistry(t)
	items, _ := reg.GetMetadataByTable("cart_items")

	ddl, err := NewDDLGenerator(query.MySQL).SetTablePrefix("shop_").GenerateCreateTable(reg, items)
	if err != nil {
		t.Fatalf("GenerateCreateTable() error = %v", err)
	}

	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS `shop_cart_items` (",
		"`cart_item_id` BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY",
		"`sku` VARCHAR(255) NOT NULL",
		"`cart_id` BIGINT NOT NULL",
		"FOREIGN KEY (`cart_id`) REFERENCES `shop_carts` (`cart_id`)",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

func TestDDLGenerator_UnresolvedRelation(t *testing.T) {
	reg := schema.NewRegistry()
	md, err := reg.SetupEntityMetadata(schema.NewEntity("cart_items").
		ID("cartItemId", "cart_item_id", schema.TypeInt).
		ManyToOne("cart", "cart_id", true).
		MustBuild())
	if err != nil {
		t.Fatalf("SetupEntityMetadata() error = %v", err)
	}

	ddl, err := NewDDLGenerator(query.SQLite).GenerateCreateTable(reg, md)
	if err != nil {
		t.Fatalf("GenerateCreateTable() error = %v", err)
	}
	if !strings.Contains(ddl, `"cart_id" INTEGER NULL`) {
		t.Errorf("expected nullable integer join column:\n%s", ddl)
	}
	if strings.Contains(ddl, "FOREIGN KEY") {
		t.Errorf("unresolved relation must not reference a table:\n%s", ddl)
	}
}

func TestDDLGenerator_StringID(t *testing.T) {
	md := schema.NewEntity("notes").
		ID("id", "id", schema.TypeUUID).
		MustBuild()

	ddl, err := NewDDLGenerator(query.Postgres).GenerateCreateTable(nil, md)
	if err != nil {
		t.Fatalf("GenerateCreateTable() error = %v", err)
	}
	if !strings.Contains(ddl, `"id" UUID NOT NULL PRIMARY KEY`) {
		t.Errorf("unexpected id column:\n%s", ddl)
	}
}

func TestDDLGenerator_GenerateSchema(t *testing.T) {
	reg := cartRegistry(t)

	ddl, err := NewDDLGenerator(query.Postgres).GenerateSchema(reg)
	if err != nil {
		t.Fatalf("GenerateSchema() error = %v", err)
	}

	parent := strings.Index(ddl, `CREATE TABLE IF NOT EXISTS "carts"`)
	child := strings.Index(ddl, `CREATE TABLE IF NOT EXISTS "cart_items"`)
	if parent < 0 || child < 0 {
		t.Fatalf("schema missing a table:\n%s", ddl)
	}
	if parent > child {
		t.Errorf("carts must be created before cart_items:\n%s", ddl)
	}
}

func TestDDLGenerator_Errors(t *testing.T) {
	gen := NewDDLGenerator(query.Postgres)

	if _, err := gen.GenerateCreateTable(nil, nil); !errors.Is(err, ormerr.ErrMetadata) {
		t.Errorf("GenerateCreateTable(nil) error = %v, want metadata error", err)
	}

	md := schema.NewEntity("notes").ID("id", "id", schema.TypeInt).MustBuild()
	if _, err := gen.SetTablePrefix("bad prefix ").GenerateCreateTable(nil, md); !errors.Is(err, ormerr.ErrInvalidIdentifier) {
		t.Errorf("GenerateCreateTable() error = %v, want ErrInvalidIdentifier", err)
	}
}

func TestDDLGenerator_GenerateDropTable(t *testing.T) {
	md := schema.NewEntity("notes").ID("id", "id", schema.TypeInt).MustBuild()

	ddl, err := NewDDLGenerator(query.MySQL).GenerateDropTable(md)
	if err != nil {
		t.Fatalf("GenerateDropTable() error = %v", err)
	}
	if ddl != "DROP TABLE IF EXISTS `notes`;" {
		t.Errorf("GenerateDropTable() = %v", ddl)
	}
}
