package query

import "github.com/conduit-lang/persist/internal/orm/schema"

// JSONObject builds a JSON object constructor call. Keys are bound as values.
type JSONObject struct {
	dialect Dialect
	keys    []string
	values  []Fragment
}

// NewJSONObject creates an empty JSON object builder
func NewJSONObject(d Dialect) *JSONObject {
	return &JSONObject{dialect: d}
}

// EntityJSONObject builds a JSON object holding every column of md keyed by
// column name, so the decoded object has the shape of a row of the table
func EntityJSONObject(d Dialect, md *schema.EntityMetadata) *JSONObject {
	obj := NewJSONObject(d)
	for _, f := range md.Fields {
		obj.AddColumn(f.ColumnName, md.TableName, f.ColumnName)
	}
	return obj
}

// Add adds a key with an arbitrary value expression
func (o *JSONObject) Add(key string, value Fragment) *JSONObject {
	o.keys = append(o.keys, key)
	o.values = append(o.values, value)
	return o
}

// AddColumn adds a key whose value is table.column
func (o *JSONObject) AddColumn(key, table, column string) *JSONObject {
	return o.Add(key, Column(table, column))
}

// Fragment implements Expression
func (o *JSONObject) Fragment() Fragment {
	pairs := make([]Fragment, 0, len(o.keys))
	for i, key := range o.keys {
		pairs = append(pairs, TextValue(key).Raw(", ").Append(o.values[i]))
	}
	return Raw(o.dialect.JSONObjectFunc() + "(").Append(Join(pairs, ", ")).Raw(")")
}

// JSONArrayAgg aggregates an expression over the grouped rows into a JSON array
type JSONArrayAgg struct {
	dialect Dialect
	expr    Expression
}

// NewJSONArrayAgg creates an array aggregation of expr
func NewJSONArrayAgg(d Dialect, expr Expression) *JSONArrayAgg {
	return &JSONArrayAgg{dialect: d, expr: expr}
}

// Fragment implements Expression
func (a *JSONArrayAgg) Fragment() Fragment {
	return a.dialect.ArrayAgg(a.expr.Fragment())
}

// JSONFirstAgg aggregates an expression and keeps the first element. Used for
// many-to-one relations where every grouped row carries the same parent.
type JSONFirstAgg struct {
	dialect Dialect
	expr    Expression
}

// NewJSONFirstAgg creates a first-element aggregation of expr
func NewJSONFirstAgg(d Dialect, expr Expression) *JSONFirstAgg {
	return &JSONFirstAgg{dialect: d, expr: expr}
}

// Fragment implements Expression
func (a *JSONFirstAgg) Fragment() Fragment {
	return a.dialect.FirstAgg(a.expr.Fragment())
}
