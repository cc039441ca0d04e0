package crud

import (
	"fmt"

	"github.com/conduit-lang/persist/internal/orm/entity"
	"github.com/conduit-lang/persist/internal/orm/ormerr"
	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// Statement is one rendered statement and its bound values
type Statement struct {
	Op   string
	SQL  string
	Args []any
}

// Statements renders the statements issued for md with placeholder
// arguments, in the order find, count, exists, insert, update, delete.
func (p *SQLPersister) Statements(md *schema.EntityMetadata) ([]Statement, error) {
	idColumn := md.IDColumnName()
	if idColumn == "" {
		return nil, fmt.Errorf("%w: %s has no id field", ormerr.ErrInvalidMetadata, md.TableName)
	}
	byID := query.NewAndFormula().ColumnEquals(md.TableName, idColumn, "?")

	var stmts []Statement
	add := func(op string, build func() (string, []any, error)) error {
		sqlText, args, err := build()
		if err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
		stmts = append(stmts, Statement{Op: op, SQL: sqlText, Args: args})
		return nil
	}

	steps := []struct {
		op    string
		build func() (string, []any, error)
	}{
		{"findById", func() (string, []any, error) { return p.selectSQL(md, byID) }},
		{"count", func() (string, []any, error) { return p.countSQL(md, nil) }},
		{"exists", func() (string, []any, error) { return p.existsSQL(md, byID) }},
		{"insert", func() (string, []any, error) {
			return p.insertSQL(md, []map[string]any{placeholderRow(md)}, false)
		}},
		{"update", func() (string, []any, error) { return p.updateSQL(md, placeholderRow(md), "?") }},
		{"deleteById", func() (string, []any, error) { return p.deleteSQL(md, byID) }},
	}
	for _, s := range steps {
		if err := add(s.op, s.build); err != nil {
			return nil, err
		}
	}
	return stmts, nil
}

func placeholderRow(md *schema.EntityMetadata) map[string]any {
	row := make(map[string]any, len(md.Fields))
	for _, f := range md.Fields {
		row[f.ColumnName] = "?"
	}
	return row
}

func (p *SQLPersister) selectSQL(md *schema.EntityMetadata, where *query.AndFormula) (string, []any, error) {
	b, err := query.NewEntitySelect(p.dialect, p.registry, md)
	if err != nil {
		return "", nil, err
	}
	return b.SetTablePrefix(p.prefix).SetWhere(where).Build()
}

func (p *SQLPersister) countSQL(md *schema.EntityMetadata, where *query.AndFormula) (string, []any, error) {
	return query.NewSelect(p.dialect).
		SetTablePrefix(p.prefix).
		SetFromTable(md.TableName).
		IncludeFormula("COUNT(*)", "count").
		SetWhere(where).
		Build()
}

func (p *SQLPersister) existsSQL(md *schema.EntityMetadata, where *query.AndFormula) (string, []any, error) {
	return query.NewSelect(p.dialect).
		SetTablePrefix(p.prefix).
		SetFromTable(md.TableName).
		IncludeFormula("COUNT(*) >= 1", "exists").
		SetWhere(where).
		Build()
}

// insertSQL writes every non-id column of each row, binding NULL for
// missing ones. The id column is written only when withID is set.
func (p *SQLPersister) insertSQL(md *schema.EntityMetadata, rows []map[string]any, withID bool) (string, []any, error) {
	idColumn := md.IDColumnName()

	columns := make([]string, 0, len(md.Fields))
	for _, f := range md.Fields {
		if f.ColumnName == idColumn && !withID {
			continue
		}
		columns = append(columns, f.ColumnName)
	}

	b := query.NewInsert(p.dialect).
		SetTablePrefix(p.prefix).
		Into(md.TableName).
		Columns(columns...).
		Returning(idColumn)
	for _, row := range rows {
		values := make([]any, len(columns))
		for i, c := range columns {
			values[i] = row[c]
		}
		b.Values(values...)
	}
	return b.Build()
}

func (p *SQLPersister) updateSQL(md *schema.EntityMetadata, row map[string]any, id any) (string, []any, error) {
	idColumn := md.IDColumnName()

	b := query.NewUpdate(p.dialect).SetTablePrefix(p.prefix).Table(md.TableName)
	for _, f := range md.Fields {
		if f.ColumnName == idColumn {
			continue
		}
		b.Set(f.ColumnName, row[f.ColumnName])
	}
	return b.SetWhere(query.NewAndFormula().ColumnEquals(md.TableName, idColumn, id)).Build()
}

func (p *SQLPersister) deleteSQL(md *schema.EntityMetadata, where *query.AndFormula) (string, []any, error) {
	return query.NewDelete(p.dialect).
		SetTablePrefix(p.prefix).
		From(md.TableName).
		SetWhere(where).
		Build()
}

// idFormula matches the main table id
func idFormula(md *schema.EntityMetadata, id any) *query.AndFormula {
	return query.NewAndFormula().ColumnEquals(md.TableName, md.IDColumnName(), id)
}

// idsFormula matches any of ids
func idsFormula(md *schema.EntityMetadata, ids []any) (*query.AndFormula, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: empty id list for %s", ormerr.ErrNoEntities, md.TableName)
	}
	return query.NewAndFormula().ColumnInList(md.TableName, md.IDColumnName(), ids), nil
}

// propertyFormula matches the column behind property. A related entity
// given as value matches on its id.
func propertyFormula(md *schema.EntityMetadata, property string, value any) (*query.AndFormula, error) {
	field, ok := md.Field(property)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ormerr.ErrColumnNotFound, md.TableName, property)
	}
	if field.FieldType == schema.FieldJoinedEntity {
		id, err := entity.ReferenceID(value)
		if err != nil {
			return nil, err
		}
		value = id
	}
	return query.NewAndFormula().ColumnEquals(md.TableName, field.ColumnName, value), nil
}
