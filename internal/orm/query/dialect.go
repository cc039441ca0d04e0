package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect renders the backend specific parts of a statement
type Dialect interface {
	// Name returns the dialect name (mysql, postgres, sqlite)
	Name() string
	// Quote quotes a validated identifier
	Quote(ident string) string
	// Placeholder returns the n-th (1-based) value placeholder
	Placeholder(n int) string
	// TextPlaceholder returns a placeholder whose type is known to be text
	TextPlaceholder(n int) string
	// JSONObjectFunc returns the JSON object constructor
	JSONObjectFunc() string
	// ArrayAgg wraps expr in a JSON array aggregation
	ArrayAgg(expr Fragment) Fragment
	// FirstAgg aggregates expr and keeps the first element
	FirstAgg(expr Fragment) Fragment
	// SupportsReturning reports whether INSERT ... RETURNING is used for new ids
	SupportsReturning() bool
	// EmptyInsert returns the insert tail used when no column is written
	EmptyInsert(rows int) (string, error)
}

// Dialects
var (
	MySQL    Dialect = mysqlDialect{}
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
)

// DialectByName returns the dialect with the given name
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "mysql", "mariadb":
		return MySQL, nil
	case "postgres", "postgresql", "pg":
		return Postgres, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string { return "mysql" }

func (mysqlDialect) Quote(ident string) string { return "`" + ident + "`" }

func (mysqlDialect) Placeholder(int) string { return "?" }

func (mysqlDialect) TextPlaceholder(int) string { return "?" }

func (mysqlDialect) JSONObjectFunc() string { return "JSON_OBJECT" }

func (mysqlDialect) ArrayAgg(expr Fragment) Fragment {
	return Raw("JSON_ARRAYAGG(").Append(expr).Raw(")")
}

func (d mysqlDialect) FirstAgg(expr Fragment) Fragment {
	return Raw("JSON_EXTRACT(").Append(d.ArrayAgg(expr)).Raw(", '$[0]')")
}

func (mysqlDialect) SupportsReturning() bool { return false }

func (mysqlDialect) EmptyInsert(rows int) (string, error) {
	return "() VALUES " + strings.TrimSuffix(strings.Repeat("(), ", rows), ", "), nil
}

type postgresDialect struct{}

func (postgresDialect) Name() string { return "postgres" }

func (postgresDialect) Quote(ident string) string { return `"` + ident + `"` }

func (postgresDialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// json_build_object cannot infer the type of an untyped key parameter
func (postgresDialect) TextPlaceholder(n int) string { return "$" + strconv.Itoa(n) + "::text" }

func (postgresDialect) JSONObjectFunc() string { return "json_build_object" }

func (postgresDialect) ArrayAgg(expr Fragment) Fragment {
	return Raw("json_agg(").Append(expr).Raw(")")
}

func (d postgresDialect) FirstAgg(expr Fragment) Fragment {
	return Raw("(").Append(d.ArrayAgg(expr)).Raw(" -> 0)")
}

func (postgresDialect) SupportsReturning() bool { return true }

func (postgresDialect) EmptyInsert(rows int) (string, error) {
	if rows != 1 {
		return "", fmt.Errorf("postgres: cannot insert %d rows without columns", rows)
	}
	return "DEFAULT VALUES", nil
}

type sqliteDialect struct{}

func (sqliteDialect) Name() string { return "sqlite" }

func (sqliteDialect) Quote(ident string) string { return `"` + ident + `"` }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) TextPlaceholder(int) string { return "?" }

func (sqliteDialect) JSONObjectFunc() string { return "json_object" }

func (sqliteDialect) ArrayAgg(expr Fragment) Fragment {
	return Raw("json_group_array(").Append(expr).Raw(")")
}

func (d sqliteDialect) FirstAgg(expr Fragment) Fragment {
	return Raw("json_extract(").Append(d.ArrayAgg(expr)).Raw(", '$[0]')")
}

func (sqliteDialect) SupportsReturning() bool { return true }

func (sqliteDialect) EmptyInsert(rows int) (string, error) {
	if rows != 1 {
		return "", fmt.Errorf("sqlite: cannot insert %d rows without columns", rows)
	}
	return "DEFAULT VALUES", nil
}
