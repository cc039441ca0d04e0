package query

import (
	"fmt"

	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// NewEntitySelect builds the relation-aware SELECT for md: every column of
// the main table, one JSON array aggregation per one-to-many relation and
// one first-element JSON aggregation per many-to-one relation, each under
// the relation property name, with the LEFT JOINs they need and a GROUP BY
// on the main id. Relations are fetched one hop deep.
func NewEntitySelect(d Dialect, src schema.MetadataSource, md *schema.EntityMetadata) (*SelectBuilder, error) {
	idColumn := md.IDColumnName()

	b := NewSelect(d).
		SetFromTable(md.TableName).
		IncludeAllColumnsFromTable(md.TableName)

	// joined tables are referenced by name, so each may appear once
	joined := map[string]bool{md.TableName: true}
	join := func(property, table string) error {
		if joined[table] {
			return fmt.Errorf("%w: %s.%s joins %s a second time", ormerr.ErrInvalidMetadata, md.TableName, property, table)
		}
		joined[table] = true
		return nil
	}

	for _, rel := range md.OneToManyRelations {
		child, err := relationTarget(src, md, rel.PropertyName, rel.MappedTable)
		if err != nil {
			return nil, err
		}
		if err := join(rel.PropertyName, child.TableName); err != nil {
			return nil, err
		}
		m2o, ok := child.ManyToOne(rel.MappedBy)
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s: %s has no many-to-one %s",
				ormerr.ErrRelationMetadataMissing, md.TableName, rel.PropertyName, child.TableName, rel.MappedBy)
		}
		b.IncludeColumnFromBuilder(NewJSONArrayAgg(d, EntityJSONObject(d, child)), rel.PropertyName).
			LeftJoinTable(child.TableName, m2o.JoinColumnName, md.TableName, idColumn)
	}

	for _, rel := range md.ManyToOneRelations {
		parent, err := relationTarget(src, md, rel.PropertyName, rel.TargetTable)
		if err != nil {
			return nil, err
		}
		if err := join(rel.PropertyName, parent.TableName); err != nil {
			return nil, err
		}
		b.IncludeColumnFromBuilder(NewJSONFirstAgg(d, EntityJSONObject(d, parent)), rel.PropertyName).
			LeftJoinTable(parent.TableName, parent.IDColumnName(), md.TableName, rel.JoinColumnName)
	}

	if md.HasRelations() {
		b.SetGroupByColumn(md.TableName, idColumn)
	}

	return b, nil
}

func relationTarget(src schema.MetadataSource, md *schema.EntityMetadata, property, table string) (*schema.EntityMetadata, error) {
	if table == "" {
		return nil, fmt.Errorf("%w: %s.%s is not resolved", ormerr.ErrRelationMetadataMissing, md.TableName, property)
	}
	target, ok := src.GetMetadataByTable(table)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s targets unregistered table %s", ormerr.ErrRelationMetadataMissing, md.TableName, property, table)
	}
	return target, nil
}
