package query

import (
	"errors"
	"fmt"
)

// JoinClause represents a LEFT JOIN clause
type JoinClause struct {
	Table    string
	Column   string
	OnTable  string
	OnColumn string
}

type projection struct {
	expr  Fragment
	alias string
}

// SelectBuilder provides a fluent API for building SELECT statements
type SelectBuilder struct {
	dialect    Dialect
	prefix     string
	from       string
	projection []projection
	joins      []JoinClause
	where      *AndFormula
	groupTable string
	groupCol   string
}

// NewSelect creates a new select builder for dialect d
func NewSelect(d Dialect) *SelectBuilder {
	return &SelectBuilder{dialect: d}
}

// SetTablePrefix sets the prefix applied to every table reference
func (b *SelectBuilder) SetTablePrefix(prefix string) *SelectBuilder {
	b.prefix = prefix
	return b
}

// SetFromTable sets the FROM table
func (b *SelectBuilder) SetFromTable(table string) *SelectBuilder {
	b.from = table
	return b
}

// IncludeAllColumnsFromTable projects table.*
func (b *SelectBuilder) IncludeAllColumnsFromTable(table string) *SelectBuilder {
	b.projection = append(b.projection, projection{expr: Table(table).Raw(".*")})
	return b
}

// IncludeColumn projects table.column
func (b *SelectBuilder) IncludeColumn(table, column string) *SelectBuilder {
	b.projection = append(b.projection, projection{expr: Column(table, column)})
	return b
}

// IncludeFormula projects a trusted SQL fragment under alias
func (b *SelectBuilder) IncludeFormula(sql, alias string) *SelectBuilder {
	b.projection = append(b.projection, projection{expr: Raw(sql), alias: alias})
	return b
}

// IncludeColumnFromBuilder projects the expression built by sub under alias
func (b *SelectBuilder) IncludeColumnFromBuilder(sub Expression, alias string) *SelectBuilder {
	b.projection = append(b.projection, projection{expr: sub.Fragment(), alias: alias})
	return b
}

// LeftJoinTable adds LEFT JOIN table ON onTable.onColumn = table.column
func (b *SelectBuilder) LeftJoinTable(table, column, onTable, onColumn string) *SelectBuilder {
	b.joins = append(b.joins, JoinClause{Table: table, Column: column, OnTable: onTable, OnColumn: onColumn})
	return b
}

// SetWhere sets the WHERE formula
func (b *SelectBuilder) SetWhere(where *AndFormula) *SelectBuilder {
	b.where = where
	return b
}

// SetGroupByColumn groups by table.column. Required whenever a JSON
// aggregation is projected.
func (b *SelectBuilder) SetGroupByColumn(table, column string) *SelectBuilder {
	b.groupTable = table
	b.groupCol = column
	return b
}

// Fragment implements Expression
func (b *SelectBuilder) Fragment() Fragment {
	frag := Raw("SELECT ")

	cols := make([]Fragment, 0, len(b.projection))
	for _, p := range b.projection {
		col := p.expr
		if p.alias != "" {
			col = col.Raw(" AS ").Ident(p.alias)
		}
		cols = append(cols, col)
	}
	frag = frag.Append(Join(cols, ", "))
	frag = frag.Raw(" FROM ").Table(b.from)

	for _, j := range b.joins {
		frag = frag.Raw(" LEFT JOIN ").Table(j.Table).
			Raw(" ON ").Column(j.OnTable, j.OnColumn).
			Raw(" = ").Column(j.Table, j.Column)
	}

	if !b.where.IsEmpty() {
		frag = frag.Raw(" WHERE ").Append(b.where.Fragment())
	}

	if b.groupCol != "" {
		frag = frag.Raw(" GROUP BY ").Column(b.groupTable, b.groupCol)
	}

	return frag
}

// Build renders the statement and its values
func (b *SelectBuilder) Build() (string, []any, error) {
	if b.from == "" {
		return "", nil, errors.New("select: from table is required")
	}
	if len(b.projection) == 0 {
		return "", nil, fmt.Errorf("select from %s: no columns projected", b.from)
	}
	return b.Fragment().Render(b.dialect, b.prefix)
}

// BuildQueryString renders only the statement
func (b *SelectBuilder) BuildQueryString() (string, error) {
	sql, _, err := b.Build()
	return sql, err
}

// BuildQueryValues returns only the values, in placeholder order
func (b *SelectBuilder) BuildQueryValues() ([]any, error) {
	_, values, err := b.Build()
	return values, err
}
