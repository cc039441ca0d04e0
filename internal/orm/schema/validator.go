package schema

import (
	"fmt"
	"regexp"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
)

var identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ValidIdentifier reports whether name can be used as a table or column name
func ValidIdentifier(name string) bool {
	return identifierPattern.MatchString(name)
}

// Validate checks the structural invariants of md: a valid table name,
// exactly one id field, unique property and column names, and relation
// declarations that refer to declared join columns.
func Validate(md *EntityMetadata) error {
	if md == nil {
		return fmt.Errorf("%w: nil metadata", ormerr.ErrInvalidMetadata)
	}
	if md.TableName == "" {
		return fmt.Errorf("%w: table name is required", ormerr.ErrInvalidMetadata)
	}
	if !ValidIdentifier(md.TableName) {
		return fmt.Errorf("%w: table %q", ormerr.ErrInvalidIdentifier, md.TableName)
	}

	properties := make(map[string]bool, len(md.Fields))
	columns := make(map[string]bool, len(md.Fields))
	idFields := 0
	for _, f := range md.Fields {
		if f.PropertyName == "" {
			return fmt.Errorf("%w: %s: field without property name", ormerr.ErrInvalidMetadata, md.TableName)
		}
		if !ValidIdentifier(f.ColumnName) {
			return fmt.Errorf("%w: column %q of %s", ormerr.ErrInvalidIdentifier, f.ColumnName, md.TableName)
		}
		if properties[f.PropertyName] {
			return fmt.Errorf("%w: %s: duplicate property %s", ormerr.ErrInvalidMetadata, md.TableName, f.PropertyName)
		}
		if columns[f.ColumnName] {
			return fmt.Errorf("%w: %s: duplicate column %s", ormerr.ErrInvalidMetadata, md.TableName, f.ColumnName)
		}
		properties[f.PropertyName] = true
		columns[f.ColumnName] = true
		if f.PropertyName == md.IDPropertyName {
			idFields++
		}
	}
	if idFields != 1 {
		return fmt.Errorf("%w: %s: id property %q must be declared exactly once", ormerr.ErrInvalidMetadata, md.TableName, md.IDPropertyName)
	}

	for _, rel := range md.ManyToOneRelations {
		f, ok := md.Field(rel.PropertyName)
		if !ok || f.FieldType != FieldJoinedEntity || f.ColumnName != rel.JoinColumnName {
			return fmt.Errorf("%w: %s.%s: many-to-one needs a joined entity field on column %s",
				ormerr.ErrInvalidMetadata, md.TableName, rel.PropertyName, rel.JoinColumnName)
		}
	}
	for _, rel := range md.OneToManyRelations {
		if properties[rel.PropertyName] {
			return fmt.Errorf("%w: %s.%s: one-to-many property must not be a column", ormerr.ErrInvalidMetadata, md.TableName, rel.PropertyName)
		}
		if rel.MappedBy == "" {
			return fmt.Errorf("%w: %s.%s: mappedBy is required", ormerr.ErrInvalidMetadata, md.TableName, rel.PropertyName)
		}
		if rel.DeclaredTable != "" && !ValidIdentifier(rel.DeclaredTable) {
			return fmt.Errorf("%w: mapped table %q of %s.%s", ormerr.ErrInvalidIdentifier, rel.DeclaredTable, md.TableName, rel.PropertyName)
		}
	}

	return nil
}
