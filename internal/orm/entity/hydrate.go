package entity

import (
	"fmt"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// ToEntity hydrates a row keyed by column name. Relation properties are read
// from the row under their property name, as projected by the relation-aware
// select: one-to-many collections as JSON arrays and many-to-one parents as
// JSON objects. Nested rows are hydrated against the related metadata found
// in src. Columns missing from the row leave the property unset.
func ToEntity(src schema.MetadataSource, md *schema.EntityMetadata, row map[string]any) (schema.Entity, error) {
	dto := make(map[string]any, len(md.Fields)+len(md.OneToManyRelations))

	for _, f := range md.Fields {
		if f.FieldType == schema.FieldJoinedEntity {
			v, ok, err := hydrateManyToOne(src, md, f, row)
			if err != nil {
				return nil, err
			}
			if ok {
				dto[f.PropertyName] = v
			}
			continue
		}

		raw, ok := row[f.ColumnName]
		if !ok {
			continue
		}
		v, err := Coerce(raw, f.ValueType)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s: %v", ormerr.ErrInvalidEntity, md.TableName, f.PropertyName, err)
		}
		dto[f.PropertyName] = v
	}

	for _, rel := range md.OneToManyRelations {
		raw, ok := row[rel.PropertyName]
		if !ok {
			continue
		}
		children, err := hydrateOneToMany(src, md, rel, raw)
		if err != nil {
			return nil, err
		}
		dto[rel.PropertyName] = children
	}

	return newEntity(md, dto), nil
}

func newEntity(md *schema.EntityMetadata, dto map[string]any) schema.Entity {
	if md.CreateEntity != nil {
		return md.CreateEntity(md, dto)
	}
	return NewRecord(md, dto)
}

// hydrateManyToOne returns the parent entity when the row carries the
// aggregated object, nil when the parent is absent, or the raw foreign key
// when only the join column was selected
func hydrateManyToOne(src schema.MetadataSource, md *schema.EntityMetadata, f schema.EntityField, row map[string]any) (any, bool, error) {
	var target *schema.EntityMetadata
	if rel, ok := md.ManyToOne(f.PropertyName); ok && rel.Resolved() && src != nil {
		target, _ = src.GetMetadataByTable(rel.TargetTable)
	}

	if raw, ok := row[f.PropertyName]; ok {
		decoded, err := maybeJSON(raw)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %s.%s: %v", ormerr.ErrInvalidEntity, md.TableName, f.PropertyName, err)
		}
		if obj, isObj := decoded.(map[string]any); isObj {
			if target == nil {
				return nil, false, fmt.Errorf("%w: %s.%s", ormerr.ErrRelationMetadataMissing, md.TableName, f.PropertyName)
			}
			if obj[target.IDColumnName()] == nil {
				return nil, true, nil
			}
			parent, err := ToEntity(src, target, obj)
			if err != nil {
				return nil, false, err
			}
			return parent, true, nil
		}
		if decoded == nil {
			return nil, true, nil
		}
		if f.PropertyName != f.ColumnName {
			return nil, false, fmt.Errorf("%w: %s.%s: unexpected %T for many-to-one", ormerr.ErrInvalidEntity, md.TableName, f.PropertyName, decoded)
		}
	}

	raw, ok := row[f.ColumnName]
	if !ok {
		return nil, false, nil
	}
	vt := f.ValueType
	if target != nil {
		if idField, ok := target.IDField(); ok {
			vt = idField.ValueType
		}
	}
	v, err := Coerce(raw, vt)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s.%s: %v", ormerr.ErrInvalidEntity, md.TableName, f.PropertyName, err)
	}
	return v, true, nil
}

// hydrateOneToMany hydrates the aggregated child rows. Elements without a
// child id come from the LEFT JOIN of a parent without children and are
// dropped; duplicates produced by joining several collections are removed.
func hydrateOneToMany(src schema.MetadataSource, md *schema.EntityMetadata, rel schema.RelationOneToMany, raw any) ([]schema.Entity, error) {
	children := make([]schema.Entity, 0)

	decoded, err := maybeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s.%s: %v", ormerr.ErrInvalidEntity, md.TableName, rel.PropertyName, err)
	}
	if decoded == nil {
		return children, nil
	}

	if entities, ok := decoded.([]schema.Entity); ok {
		return append(children, entities...), nil
	}

	items, ok := decoded.([]any)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s: expected array, got %T", ormerr.ErrInvalidEntity, md.TableName, rel.PropertyName, decoded)
	}

	var child *schema.EntityMetadata
	if rel.Resolved() && src != nil {
		child, _ = src.GetMetadataByTable(rel.MappedTable)
	}
	if child == nil {
		return nil, fmt.Errorf("%w: %s.%s", ormerr.ErrRelationMetadataMissing, md.TableName, rel.PropertyName)
	}

	idColumn := child.IDColumnName()
	seen := make(map[string]bool, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s: expected object, got %T", ormerr.ErrInvalidEntity, md.TableName, rel.PropertyName, item)
		}
		id := obj[idColumn]
		if id == nil {
			continue
		}
		key := fmt.Sprint(normalize(id))
		if seen[key] {
			continue
		}
		seen[key] = true

		e, err := ToEntity(src, child, obj)
		if err != nil {
			return nil, err
		}
		children = append(children, e)
	}
	return children, nil
}
