package schema

import (
	"errors"
	"fmt"
	"strings"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
)

// EntityBuilder assembles EntityMetadata with explicit calls made at startup
type EntityBuilder struct {
	md     *EntityMetadata
	errors []error
}

// NewEntity starts the metadata of table
func NewEntity(table string) *EntityBuilder {
	return &EntityBuilder{md: &EntityMetadata{TableName: table}}
}

// ID declares the id field
func (b *EntityBuilder) ID(property, column string, vt ValueType) *EntityBuilder {
	if b.md.IDPropertyName != "" {
		b.errors = append(b.errors, fmt.Errorf("id already declared as %s", b.md.IDPropertyName))
		return b
	}
	b.md.IDPropertyName = property
	return b.Field(EntityField{PropertyName: property, ColumnName: column, FieldType: FieldScalar, ValueType: vt})
}

// Column declares a non-nullable scalar column
func (b *EntityBuilder) Column(property, column string, vt ValueType) *EntityBuilder {
	return b.Field(EntityField{PropertyName: property, ColumnName: column, FieldType: FieldScalar, ValueType: vt})
}

// NullableColumn declares a nullable scalar column
func (b *EntityBuilder) NullableColumn(property, column string, vt ValueType) *EntityBuilder {
	return b.Field(EntityField{PropertyName: property, ColumnName: column, Nullable: true, FieldType: FieldScalar, ValueType: vt})
}

// Field declares a field as given
func (b *EntityBuilder) Field(f EntityField) *EntityBuilder {
	if f.ColumnName == "" {
		f.ColumnName = f.PropertyName
	}
	b.md.Fields = append(b.md.Fields, f)
	return b
}

// ManyToOne declares a parent entity read through joinColumn. The join
// column is added as a joined entity field.
func (b *EntityBuilder) ManyToOne(property, joinColumn string, nullable bool) *EntityBuilder {
	b.Field(EntityField{
		PropertyName: property,
		ColumnName:   joinColumn,
		Nullable:     nullable,
		FieldType:    FieldJoinedEntity,
	})
	b.md.ManyToOneRelations = append(b.md.ManyToOneRelations, RelationManyToOne{
		PropertyName:   property,
		JoinColumnName: joinColumn,
		Nullable:       nullable,
	})
	return b
}

// OneToMany declares a collection filled by the child table whose
// many-to-one property mappedBy points back at this entity
func (b *EntityBuilder) OneToMany(property, mappedBy string) *EntityBuilder {
	return b.OneToManyFrom(property, mappedBy, "")
}

// OneToManyFrom is OneToMany with the child table named up front. Use it
// when several child tables share the mappedBy property name.
func (b *EntityBuilder) OneToManyFrom(property, mappedBy, table string) *EntityBuilder {
	b.md.OneToManyRelations = append(b.md.OneToManyRelations, RelationOneToMany{
		PropertyName:  property,
		MappedBy:      mappedBy,
		DeclaredTable: table,
	})
	return b
}

// Factory sets the entity factory used for hydration and cloning
func (b *EntityBuilder) Factory(f EntityFactory) *EntityBuilder {
	b.md.CreateEntity = f
	return b
}

// Build validates and returns the metadata
func (b *EntityBuilder) Build() (*EntityMetadata, error) {
	if len(b.errors) > 0 {
		msgs := make([]string, 0, len(b.errors))
		for _, err := range b.errors {
			msgs = append(msgs, err.Error())
		}
		return nil, fmt.Errorf("%w: %s: %s", ormerr.ErrInvalidMetadata, b.md.TableName, strings.Join(msgs, "; "))
	}
	if err := Validate(b.md); err != nil {
		return nil, err
	}
	return b.md, nil
}

// MustBuild is like Build but panics on invalid metadata
func (b *EntityBuilder) MustBuild() *EntityMetadata {
	md, err := b.Build()
	if err != nil {
		panic(err)
	}
	return md
}

// Relations groups the relation declarations passed to RegisterEntity
type Relations struct {
	OneToMany []RelationOneToMany
	ManyToOne []RelationManyToOne
}

// RegisterEntity builds metadata from an id field, the remaining fields and
// the relation declarations, then registers it with reg. Many-to-one
// relations without a matching field get a joined entity field on their
// join column.
func RegisterEntity(reg *Registry, table string, id EntityField, fields []EntityField, relations Relations) (*EntityMetadata, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}

	b := NewEntity(table).ID(id.PropertyName, id.ColumnName, id.ValueType)
	for _, f := range fields {
		if f.FieldType == FieldJoinedEntity {
			continue
		}
		b.Field(f)
	}
	for _, rel := range relations.ManyToOne {
		b.ManyToOne(rel.PropertyName, rel.JoinColumnName, rel.Nullable)
	}
	for _, rel := range relations.OneToMany {
		b.OneToManyFrom(rel.PropertyName, rel.MappedBy, rel.DeclaredTable)
	}

	md, err := b.Build()
	if err != nil {
		return nil, err
	}
	return reg.SetupEntityMetadata(md)
}
