package query

import (
	"errors"
	"fmt"
)

// InsertBuilder builds a multi-row INSERT
type InsertBuilder struct {
	dialect   Dialect
	prefix    string
	table     string
	columns   []string
	rows      [][]any
	returning string
}

// NewInsert creates a new insert builder for dialect d
func NewInsert(d Dialect) *InsertBuilder {
	return &InsertBuilder{dialect: d}
}

// SetTablePrefix sets the prefix applied to the table
func (b *InsertBuilder) SetTablePrefix(prefix string) *InsertBuilder {
	b.prefix = prefix
	return b
}

// Into sets the target table
func (b *InsertBuilder) Into(table string) *InsertBuilder {
	b.table = table
	return b
}

// Columns sets the written columns
func (b *InsertBuilder) Columns(columns ...string) *InsertBuilder {
	b.columns = append([]string(nil), columns...)
	return b
}

// Values adds one row; it must have one value per column
func (b *InsertBuilder) Values(values ...any) *InsertBuilder {
	b.rows = append(b.rows, append([]any(nil), values...))
	return b
}

// Returning adds RETURNING column when the dialect supports it
func (b *InsertBuilder) Returning(column string) *InsertBuilder {
	b.returning = column
	return b
}

// Fragment implements Expression. Use Build to get shape errors.
func (b *InsertBuilder) Fragment() Fragment {
	frag, _ := b.fragment()
	return frag
}

func (b *InsertBuilder) fragment() (Fragment, error) {
	frag := Raw("INSERT INTO ").Table(b.table).Raw(" ")

	if len(b.columns) == 0 {
		tail, err := b.dialect.EmptyInsert(len(b.rows))
		if err != nil {
			return Fragment{}, err
		}
		frag = frag.Raw(tail)
	} else {
		cols := make([]Fragment, 0, len(b.columns))
		for _, c := range b.columns {
			cols = append(cols, Ident(c))
		}
		rows := make([]Fragment, 0, len(b.rows))
		for i, row := range b.rows {
			if len(row) != len(b.columns) {
				return Fragment{}, fmt.Errorf("insert into %s: row %d has %d values for %d columns", b.table, i, len(row), len(b.columns))
			}
			values := make([]Fragment, 0, len(row))
			for _, v := range row {
				values = append(values, Value(v))
			}
			rows = append(rows, Raw("(").Append(Join(values, ", ")).Raw(")"))
		}
		frag = frag.Raw("(").Append(Join(cols, ", ")).Raw(") VALUES ").Append(Join(rows, ", "))
	}

	if b.returning != "" && b.dialect.SupportsReturning() {
		frag = frag.Raw(" RETURNING ").Ident(b.returning)
	}
	return frag, nil
}

// Build renders the statement and its values
func (b *InsertBuilder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errors.New("insert: table is required")
	}
	if len(b.rows) == 0 {
		return "", nil, fmt.Errorf("insert into %s: no rows", b.table)
	}
	frag, err := b.fragment()
	if err != nil {
		return "", nil, err
	}
	return frag.Render(b.dialect, b.prefix)
}

type assignment struct {
	column string
	value  any
}

// UpdateBuilder builds an UPDATE with the SET list in insertion order
type UpdateBuilder struct {
	dialect Dialect
	prefix  string
	table   string
	sets    []assignment
	where   *AndFormula
}

// NewUpdate creates a new update builder for dialect d
func NewUpdate(d Dialect) *UpdateBuilder {
	return &UpdateBuilder{dialect: d}
}

// SetTablePrefix sets the prefix applied to every table reference
func (b *UpdateBuilder) SetTablePrefix(prefix string) *UpdateBuilder {
	b.prefix = prefix
	return b
}

// Table sets the updated table
func (b *UpdateBuilder) Table(table string) *UpdateBuilder {
	b.table = table
	return b
}

// Set adds column = value
func (b *UpdateBuilder) Set(column string, value any) *UpdateBuilder {
	b.sets = append(b.sets, assignment{column: column, value: value})
	return b
}

// SetWhere sets the WHERE formula
func (b *UpdateBuilder) SetWhere(where *AndFormula) *UpdateBuilder {
	b.where = where
	return b
}

// Fragment implements Expression
func (b *UpdateBuilder) Fragment() Fragment {
	sets := make([]Fragment, 0, len(b.sets))
	for _, s := range b.sets {
		sets = append(sets, Ident(s.column).Raw(" = ").Value(s.value))
	}
	frag := Raw("UPDATE ").Table(b.table).Raw(" SET ").Append(Join(sets, ", "))
	if !b.where.IsEmpty() {
		frag = frag.Raw(" WHERE ").Append(b.where.Fragment())
	}
	return frag
}

// Build renders the statement and its values
func (b *UpdateBuilder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errors.New("update: table is required")
	}
	if len(b.sets) == 0 {
		return "", nil, fmt.Errorf("update %s: no columns to set", b.table)
	}
	return b.Fragment().Render(b.dialect, b.prefix)
}

// DeleteBuilder builds a DELETE
type DeleteBuilder struct {
	dialect Dialect
	prefix  string
	table   string
	where   *AndFormula
}

// NewDelete creates a new delete builder for dialect d
func NewDelete(d Dialect) *DeleteBuilder {
	return &DeleteBuilder{dialect: d}
}

// SetTablePrefix sets the prefix applied to every table reference
func (b *DeleteBuilder) SetTablePrefix(prefix string) *DeleteBuilder {
	b.prefix = prefix
	return b
}

// From sets the table rows are deleted from
func (b *DeleteBuilder) From(table string) *DeleteBuilder {
	b.table = table
	return b
}

// SetWhere sets the WHERE formula; without one every row is deleted
func (b *DeleteBuilder) SetWhere(where *AndFormula) *DeleteBuilder {
	b.where = where
	return b
}

// Fragment implements Expression
func (b *DeleteBuilder) Fragment() Fragment {
	frag := Raw("DELETE FROM ").Table(b.table)
	if !b.where.IsEmpty() {
		frag = frag.Raw(" WHERE ").Append(b.where.Fragment())
	}
	return frag
}

// Build renders the statement and its values
func (b *DeleteBuilder) Build() (string, []any, error) {
	if b.table == "" {
		return "", nil, errors.New("delete: table is required")
	}
	return b.Fragment().Render(b.dialect, b.prefix)
}
