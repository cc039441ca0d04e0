package codegen

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// DDLGenerator renders CREATE TABLE statements from entity metadata
type DDLGenerator struct {
	dialect    query.Dialect
	typeMapper *TypeMapper
	prefix     string
}

// NewDDLGenerator creates a new DDL generator for dialect d
func NewDDLGenerator(d query.Dialect) *DDLGenerator {
	return &DDLGenerator{
		dialect:    d,
		typeMapper: NewTypeMapper(d),
	}
}

// SetTablePrefix prefixes every generated table name
func (g *DDLGenerator) SetTablePrefix(prefix string) *DDLGenerator {
	g.prefix = prefix
	return g
}

// GenerateCreateTable generates a CREATE TABLE statement for md. Join
// columns take the type of the id they reference in src.
func (g *DDLGenerator) GenerateCreateTable(src schema.MetadataSource, md *schema.EntityMetadata) (string, error) {
	if md == nil {
		return "", fmt.Errorf("%w: metadata cannot be nil", ormerr.ErrInvalidMetadata)
	}

	table, err := g.quote(g.prefix + md.TableName)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n", table))

	columnDefs := make([]string, 0, len(md.Fields))
	var foreignKeys []string
	for _, field := range md.Fields {
		def, err := g.generateColumnDefinition(src, md, field)
		if err != nil {
			return "", fmt.Errorf("%s.%s: %w", md.TableName, field.PropertyName, err)
		}
		columnDefs = append(columnDefs, def)

		if field.FieldType == schema.FieldJoinedEntity {
			fk, err := g.generateForeignKey(src, md, field)
			if err != nil {
				return "", fmt.Errorf("%s.%s: %w", md.TableName, field.PropertyName, err)
			}
			if fk != "" {
				foreignKeys = append(foreignKeys, fk)
			}
		}
	}

	defs := append(columnDefs, foreignKeys...)
	for i, def := range defs {
		b.WriteString("  ")
		b.WriteString(def)
		if i < len(defs)-1 {
			b.WriteString(",")
		}
		b.WriteString("\n")
	}
	b.WriteString(");")

	return b.String(), nil
}

// generateColumnDefinition generates a column definition. A declared column
// definition is used verbatim after the column name.
func (g *DDLGenerator) generateColumnDefinition(src schema.MetadataSource, md *schema.EntityMetadata, field schema.EntityField) (string, error) {
	column, err := g.quote(field.ColumnName)
	if err != nil {
		return "", err
	}
	if field.ColumnDefinition != "" {
		return column + " " + field.ColumnDefinition, nil
	}

	if field.PropertyName == md.IDPropertyName {
		if field.ValueType == schema.TypeInt {
			return column + " " + g.typeMapper.MapGeneratedID(), nil
		}
		columnType, err := g.typeMapper.MapType(field.ValueType)
		if err != nil {
			return "", err
		}
		return column + " " + columnType + " NOT NULL PRIMARY KEY", nil
	}

	vt := field.ValueType
	if field.FieldType == schema.FieldJoinedEntity {
		vt = g.referencedIDType(src, md, field)
	}
	columnType, err := g.typeMapper.MapType(vt)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{column, columnType, g.typeMapper.MapNullability(field.Nullable)}, " "), nil
}

// generateForeignKey references the parent id when the relation is resolved
func (g *DDLGenerator) generateForeignKey(src schema.MetadataSource, md *schema.EntityMetadata, field schema.EntityField) (string, error) {
	parent := g.parent(src, md, field)
	if parent == nil {
		return "", nil
	}

	column, err := g.quote(field.ColumnName)
	if err != nil {
		return "", err
	}
	table, err := g.quote(g.prefix + parent.TableName)
	if err != nil {
		return "", err
	}
	target, err := g.quote(parent.IDColumnName())
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("FOREIGN KEY (%s) REFERENCES %s (%s)", column, table, target), nil
}

func (g *DDLGenerator) parent(src schema.MetadataSource, md *schema.EntityMetadata, field schema.EntityField) *schema.EntityMetadata {
	rel, ok := md.ManyToOne(field.PropertyName)
	if !ok || !rel.Resolved() || src == nil {
		return nil
	}
	parent, _ := src.GetMetadataByTable(rel.TargetTable)
	return parent
}

func (g *DDLGenerator) referencedIDType(src schema.MetadataSource, md *schema.EntityMetadata, field schema.EntityField) schema.ValueType {
	if parent := g.parent(src, md, field); parent != nil {
		if id, ok := parent.IDField(); ok {
			return id.ValueType
		}
	}
	if field.ValueType != schema.TypeUnknown {
		return field.ValueType
	}
	return schema.TypeInt
}

// GenerateSchema generates the CREATE TABLE statements of every registered
// table, parents before the children that reference them
func (g *DDLGenerator) GenerateSchema(reg *schema.Registry) (string, error) {
	ordered := orderByDependency(reg)

	statements := make([]string, 0, len(ordered))
	for _, md := range ordered {
		stmt, err := g.GenerateCreateTable(reg, md)
		if err != nil {
			return "", err
		}
		statements = append(statements, stmt)
	}
	return strings.Join(statements, "\n\n"), nil
}

// GenerateDropTable generates a DROP TABLE statement
func (g *DDLGenerator) GenerateDropTable(md *schema.EntityMetadata) (string, error) {
	table, err := g.quote(g.prefix + md.TableName)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("DROP TABLE IF EXISTS %s;", table), nil
}

func (g *DDLGenerator) quote(ident string) (string, error) {
	if !schema.ValidIdentifier(ident) {
		return "", fmt.Errorf("%w: %q", ormerr.ErrInvalidIdentifier, ident)
	}
	return g.dialect.Quote(ident), nil
}

// orderByDependency sorts tables so that many-to-one targets come first,
// keeping registration order otherwise. Cycles are broken at the first
// table revisited.
func orderByDependency(reg *schema.Registry) []*schema.EntityMetadata {
	all := reg.All()
	visited := make(map[string]bool, len(all))
	ordered := make([]*schema.EntityMetadata, 0, len(all))

	var visit func(md *schema.EntityMetadata)
	visit = func(md *schema.EntityMetadata) {
		if visited[md.TableName] {
			return
		}
		visited[md.TableName] = true
		for _, rel := range md.ManyToOneRelations {
			if parent, ok := reg.GetMetadataByTable(rel.TargetTable); ok && rel.Resolved() {
				visit(parent)
			}
		}
		ordered = append(ordered, md)
	}
	for _, md := range all {
		visit(md)
	}
	return ordered
}
