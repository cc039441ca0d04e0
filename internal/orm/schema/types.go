// Package schema provides type definitions for entity metadata: the table,
// column and relation description that drives every query the persisters build.
// It also holds the registry that cross-links relation declarations between
// independently registered entity types.
package schema

import (
	"fmt"
	"strings"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
)

// ValueType is the Go-side type of a column value. It drives hydration
// coercion so that values read back from the database keep their type.
type ValueType int

const (
	TypeUnknown ValueType = iota
	TypeString
	TypeInt
	TypeFloat
	TypeBool
	TypeTime
	TypeUUID
	TypeJSON
)

// String returns the string representation of the value type
func (v ValueType) String() string {
	switch v {
	case TypeString:
		return "string"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeBool:
		return "bool"
	case TypeTime:
		return "time"
	case TypeUUID:
		return "uuid"
	case TypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// ParseValueType parses a type name as used in entity declaration files
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "string", "text", "varchar":
		return TypeString, nil
	case "int", "integer", "bigint":
		return TypeInt, nil
	case "float", "double", "decimal", "number":
		return TypeFloat, nil
	case "bool", "boolean":
		return TypeBool, nil
	case "time", "timestamp", "datetime", "date":
		return TypeTime, nil
	case "uuid":
		return TypeUUID, nil
	case "json", "jsonb":
		return TypeJSON, nil
	case "", "unknown":
		return TypeUnknown, nil
	default:
		return TypeUnknown, fmt.Errorf("unknown value type: %s", s)
	}
}

// FieldType distinguishes plain columns from join columns
type FieldType int

const (
	// FieldScalar is a plain column
	FieldScalar FieldType = iota
	// FieldJoinedEntity is a join column whose value is a related entity
	FieldJoinedEntity
	FieldUnknown
)

// String returns the string representation of the field type
func (f FieldType) String() string {
	switch f {
	case FieldScalar:
		return "scalar"
	case FieldJoinedEntity:
		return "joined_entity"
	default:
		return "unknown"
	}
}

// EntityField maps one entity property onto one column
type EntityField struct {
	PropertyName     string
	ColumnName       string
	ColumnDefinition string
	Nullable         bool
	FieldType        FieldType
	ValueType        ValueType
}

// RelationOneToMany declares a collection property filled with rows of
// MappedTable whose ManyToOne property MappedBy points back at the owner.
// An empty MappedTable means the relation has not been resolved yet.
// DeclaredTable, when set, names the only child table the registry may
// map the relation to.
type RelationOneToMany struct {
	PropertyName  string
	MappedBy      string
	MappedTable   string
	DeclaredTable string
}

// Resolved reports whether the registry linked the relation to a table
func (r RelationOneToMany) Resolved() bool {
	return r.MappedTable != ""
}

// RelationManyToOne declares a single parent entity reached by reading
// JoinColumnName locally and matching it to the id of TargetTable.
// An empty TargetTable means the relation has not been resolved yet.
type RelationManyToOne struct {
	PropertyName   string
	JoinColumnName string
	TargetTable    string
	Nullable       bool
}

// Resolved reports whether the registry linked the relation to a table
func (r RelationManyToOne) Resolved() bool {
	return r.TargetTable != ""
}

// Entity is a typed record mapped to a table row. Implementations hold
// scalar properties and, for relation properties, nested entities, slices
// of entities or raw foreign key values.
type Entity interface {
	Metadata() *EntityMetadata
	Get(property string) (any, bool)
	Set(property string, value any)
	Unset(property string)
	Properties() []string
}

// MetadataSource looks up registered metadata by table name. *Registry
// implements it.
type MetadataSource interface {
	GetMetadataByTable(table string) (*EntityMetadata, bool)
}

// EntityFactory creates an entity for md populated from dto
type EntityFactory func(md *EntityMetadata, dto map[string]any) Entity

// EntityMetadata describes a table. It is created once per entity type and
// only mutated by the registry while relations are resolved.
type EntityMetadata struct {
	TableName          string
	IDPropertyName     string
	Fields             []EntityField
	OneToManyRelations []RelationOneToMany
	ManyToOneRelations []RelationManyToOne
	CreateEntity       EntityFactory
}

// Field returns the field declared for a property
func (m *EntityMetadata) Field(property string) (EntityField, bool) {
	for _, f := range m.Fields {
		if f.PropertyName == property {
			return f, true
		}
	}
	return EntityField{}, false
}

// FieldByColumn returns the field mapped onto a column
func (m *EntityMetadata) FieldByColumn(column string) (EntityField, bool) {
	for _, f := range m.Fields {
		if f.ColumnName == column {
			return f, true
		}
	}
	return EntityField{}, false
}

// IDField returns the id field
func (m *EntityMetadata) IDField() (EntityField, bool) {
	return m.Field(m.IDPropertyName)
}

// IDColumnName returns the column of the id field, or "" when it is missing
func (m *EntityMetadata) IDColumnName() string {
	f, ok := m.IDField()
	if !ok {
		return ""
	}
	return f.ColumnName
}

// ColumnName returns the column for a property or ErrColumnNotFound
func (m *EntityMetadata) ColumnName(property string) (string, error) {
	f, ok := m.Field(property)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ormerr.ErrColumnNotFound, m.TableName, property)
	}
	return f.ColumnName, nil
}

// PropertyName returns the property for a column or ErrPropertyNotFound
func (m *EntityMetadata) PropertyName(column string) (string, error) {
	f, ok := m.FieldByColumn(column)
	if !ok {
		return "", fmt.Errorf("%w: %s.%s", ormerr.ErrPropertyNotFound, m.TableName, column)
	}
	return f.PropertyName, nil
}

// ManyToOne returns the many-to-one relation declared for a property
func (m *EntityMetadata) ManyToOne(property string) (RelationManyToOne, bool) {
	for _, r := range m.ManyToOneRelations {
		if r.PropertyName == property {
			return r, true
		}
	}
	return RelationManyToOne{}, false
}

// OneToMany returns the one-to-many relation declared for a property
func (m *EntityMetadata) OneToMany(property string) (RelationOneToMany, bool) {
	for _, r := range m.OneToManyRelations {
		if r.PropertyName == property {
			return r, true
		}
	}
	return RelationOneToMany{}, false
}

// HasRelations reports whether any relation is declared
func (m *EntityMetadata) HasRelations() bool {
	return len(m.OneToManyRelations) > 0 || len(m.ManyToOneRelations) > 0
}

// Pending returns the names of relation properties that are not resolved
func (m *EntityMetadata) Pending() []string {
	var pending []string
	for _, r := range m.OneToManyRelations {
		if !r.Resolved() {
			pending = append(pending, r.PropertyName)
		}
	}
	for _, r := range m.ManyToOneRelations {
		if !r.Resolved() {
			pending = append(pending, r.PropertyName)
		}
	}
	return pending
}

// compatible reports whether other describes the same table as m.
// Resolution state of the relations is ignored.
func (m *EntityMetadata) compatible(other *EntityMetadata) bool {
	if m == other {
		return true
	}
	if m.TableName != other.TableName || m.IDPropertyName != other.IDPropertyName {
		return false
	}
	if len(m.Fields) != len(other.Fields) ||
		len(m.OneToManyRelations) != len(other.OneToManyRelations) ||
		len(m.ManyToOneRelations) != len(other.ManyToOneRelations) {
		return false
	}
	for i := range m.Fields {
		if m.Fields[i] != other.Fields[i] {
			return false
		}
	}
	for i, r := range m.OneToManyRelations {
		o := other.OneToManyRelations[i]
		if r.PropertyName != o.PropertyName || r.MappedBy != o.MappedBy || r.DeclaredTable != o.DeclaredTable {
			return false
		}
	}
	for i, r := range m.ManyToOneRelations {
		o := other.ManyToOneRelations[i]
		if r.PropertyName != o.PropertyName || r.JoinColumnName != o.JoinColumnName || r.Nullable != o.Nullable {
			return false
		}
	}
	return true
}
