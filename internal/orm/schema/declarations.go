package schema

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Declarations is the parsed form of an entity declaration file:
//
//	entities:
//	  - table: carts
//	    id: {property: cartId, column: cart_id, type: int}
//	    fields:
//	      - {property: name, column: name, type: string, nullable: true}
//	    one_to_many:
//	      - {property: items, mapped_by: cart}
//	      - {property: notes, mapped_by: cart, mapped_table: cart_notes}
//	  - table: cart_items
//	    id: {property: cartItemId, column: cart_item_id, type: int}
//	    many_to_one:
//	      - {property: cart, join_column: cart_id}
type Declarations struct {
	Entities []EntityDeclaration `yaml:"entities"`
}

// EntityDeclaration declares one table
type EntityDeclaration struct {
	Table     string                 `yaml:"table"`
	Name      string                 `yaml:"name,omitempty"`
	ID        FieldDeclaration       `yaml:"id"`
	Fields    []FieldDeclaration     `yaml:"fields,omitempty"`
	ManyToOne []ManyToOneDeclaration `yaml:"many_to_one,omitempty"`
	OneToMany []OneToManyDeclaration `yaml:"one_to_many,omitempty"`
}

// FieldDeclaration declares a scalar column
type FieldDeclaration struct {
	Property   string `yaml:"property"`
	Column     string `yaml:"column,omitempty"`
	Type       string `yaml:"type,omitempty"`
	Nullable   bool   `yaml:"nullable,omitempty"`
	Definition string `yaml:"definition,omitempty"`
}

// ManyToOneDeclaration declares a parent relation and its join column
type ManyToOneDeclaration struct {
	Property   string `yaml:"property"`
	JoinColumn string `yaml:"join_column"`
	Nullable   bool   `yaml:"nullable,omitempty"`
}

// OneToManyDeclaration declares a child collection
type OneToManyDeclaration struct {
	Property    string `yaml:"property"`
	MappedBy    string `yaml:"mapped_by"`
	MappedTable string `yaml:"mapped_table,omitempty"`
}

// LoadDeclarations parses entity declarations from r
func LoadDeclarations(r io.Reader) (*Declarations, error) {
	var decl Declarations
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&decl); err != nil {
		if err == io.EOF {
			return &decl, nil
		}
		return nil, fmt.Errorf("failed to parse entity declarations: %w", err)
	}
	return &decl, nil
}

// LoadDeclarationFile parses entity declarations from the file at path
func LoadDeclarationFile(path string) (*Declarations, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open entity declarations: %w", err)
	}
	defer f.Close()

	return LoadDeclarations(f)
}

// Builder returns a builder for the declared entity
func (d EntityDeclaration) Builder(factory EntityFactory) (*EntityBuilder, error) {
	idType, err := ParseValueType(d.ID.Type)
	if err != nil {
		return nil, fmt.Errorf("%s.%s: %w", d.Table, d.ID.Property, err)
	}

	b := NewEntity(d.Table).ID(d.ID.Property, columnOrProperty(d.ID), idType)
	for _, fd := range d.Fields {
		vt, err := ParseValueType(fd.Type)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", d.Table, fd.Property, err)
		}
		b.Field(EntityField{
			PropertyName:     fd.Property,
			ColumnName:       columnOrProperty(fd),
			ColumnDefinition: fd.Definition,
			Nullable:         fd.Nullable,
			FieldType:        FieldScalar,
			ValueType:        vt,
		})
	}
	for _, m2o := range d.ManyToOne {
		b.ManyToOne(m2o.Property, m2o.JoinColumn, m2o.Nullable)
	}
	for _, o2m := range d.OneToMany {
		b.OneToManyFrom(o2m.Property, o2m.MappedBy, o2m.MappedTable)
	}
	if factory != nil {
		b.Factory(factory)
	}
	return b, nil
}

// Register builds every declared entity and registers it with reg in
// declaration order
func (d *Declarations) Register(reg *Registry, factory EntityFactory) ([]*EntityMetadata, error) {
	result := make([]*EntityMetadata, 0, len(d.Entities))
	for _, ed := range d.Entities {
		b, err := ed.Builder(factory)
		if err != nil {
			return nil, err
		}
		md, err := b.Build()
		if err != nil {
			return nil, err
		}
		md, err = reg.SetupEntityMetadata(md)
		if err != nil {
			return nil, err
		}
		result = append(result, md)
	}
	return result, nil
}

func columnOrProperty(fd FieldDeclaration) string {
	if fd.Column != "" {
		return fd.Column
	}
	return fd.Property
}
