package query

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpIn
	OpIsNull
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpIn:
		return "IN"
	case OpIsNull:
		return "IS NULL"
	default:
		return "UNKNOWN"
	}
}

// Condition represents a single table qualified WHERE condition
type Condition struct {
	Table    string
	Column   string
	Operator Operator
	Values   []any
}

// AndFormula composes conditions joined with AND. Each condition keeps its
// own ordered values.
type AndFormula struct {
	conditions []Condition
}

// NewAndFormula creates an empty formula
func NewAndFormula() *AndFormula {
	return &AndFormula{}
}

// ColumnEquals adds table.column = value. A nil value becomes IS NULL.
func (a *AndFormula) ColumnEquals(table, column string, value any) *AndFormula {
	if value == nil {
		return a.ColumnIsNull(table, column)
	}
	a.conditions = append(a.conditions, Condition{Table: table, Column: column, Operator: OpEqual, Values: []any{value}})
	return a
}

// ColumnInList adds table.column IN (values...). An empty list matches nothing.
func (a *AndFormula) ColumnInList(table, column string, values []any) *AndFormula {
	copied := append([]any(nil), values...)
	a.conditions = append(a.conditions, Condition{Table: table, Column: column, Operator: OpIn, Values: copied})
	return a
}

// ColumnIsNull adds table.column IS NULL
func (a *AndFormula) ColumnIsNull(table, column string) *AndFormula {
	a.conditions = append(a.conditions, Condition{Table: table, Column: column, Operator: OpIsNull})
	return a
}

// Conditions returns the conditions in insertion order
func (a *AndFormula) Conditions() []Condition {
	return append([]Condition(nil), a.conditions...)
}

// IsEmpty reports whether no condition was added
func (a *AndFormula) IsEmpty() bool {
	return a == nil || len(a.conditions) == 0
}

// Fragment renders the conditions joined by AND
func (a *AndFormula) Fragment() Fragment {
	parts := make([]Fragment, 0, len(a.conditions))
	for _, c := range a.conditions {
		parts = append(parts, conditionFragment(c))
	}
	return Join(parts, " AND ")
}

func conditionFragment(c Condition) Fragment {
	col := Column(c.Table, c.Column)
	switch c.Operator {
	case OpIsNull:
		return col.Raw(" IS NULL")
	case OpIn:
		if len(c.Values) == 0 {
			return Raw("1 = 0")
		}
		values := make([]Fragment, 0, len(c.Values))
		for _, v := range c.Values {
			values = append(values, Value(v))
		}
		return col.Raw(" IN (").Append(Join(values, ", ")).Raw(")")
	default:
		return col.Raw(" = ").Value(c.Values[0])
	}
}
