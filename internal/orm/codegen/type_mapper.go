// Package codegen generates code and DDL from entity metadata: typed
// repositories with per-field finders, and CREATE TABLE statements.
package codegen

import (
	"fmt"

	"github.com/conduit-lang/persist/internal/orm/query"
	"github.com/conduit-lang/persist/internal/orm/schema"
)

// TypeMapper maps value types to column types of one dialect
type TypeMapper struct {
	dialect query.Dialect
}

// NewTypeMapper creates a new TypeMapper for dialect d
func NewTypeMapper(d query.Dialect) *TypeMapper {
	return &TypeMapper{dialect: d}
}

// MapType converts a value type to a column type
func (tm *TypeMapper) MapType(vt schema.ValueType) (string, error) {
	switch tm.dialect {
	case query.MySQL:
		return mapMySQL(vt)
	case query.Postgres:
		return mapPostgres(vt)
	case query.SQLite:
		return mapSQLite(vt)
	default:
		return "", fmt.Errorf("unsupported dialect: %s", tm.dialect.Name())
	}
}

func mapMySQL(vt schema.ValueType) (string, error) {
	switch vt {
	case schema.TypeString:
		return "VARCHAR(255)", nil
	case schema.TypeInt:
		return "BIGINT", nil
	case schema.TypeFloat:
		return "DOUBLE", nil
	case schema.TypeBool:
		return "BOOLEAN", nil
	case schema.TypeTime:
		return "DATETIME(6)", nil
	case schema.TypeUUID:
		return "CHAR(36)", nil
	case schema.TypeJSON:
		return "JSON", nil
	case schema.TypeUnknown:
		return "TEXT", nil
	default:
		return "", fmt.Errorf("unsupported type: %s", vt)
	}
}

func mapPostgres(vt schema.ValueType) (string, error) {
	switch vt {
	case schema.TypeString, schema.TypeUnknown:
		return "TEXT", nil
	case schema.TypeInt:
		return "BIGINT", nil
	case schema.TypeFloat:
		return "DOUBLE PRECISION", nil
	case schema.TypeBool:
		return "BOOLEAN", nil
	case schema.TypeTime:
		return "TIMESTAMP WITH TIME ZONE", nil
	case schema.TypeUUID:
		return "UUID", nil
	case schema.TypeJSON:
		return "JSONB", nil
	default:
		return "", fmt.Errorf("unsupported type: %s", vt)
	}
}

// SQLite keeps declared types as affinity hints only
func mapSQLite(vt schema.ValueType) (string, error) {
	switch vt {
	case schema.TypeString, schema.TypeUUID, schema.TypeJSON, schema.TypeUnknown:
		return "TEXT", nil
	case schema.TypeInt:
		return "INTEGER", nil
	case schema.TypeFloat:
		return "REAL", nil
	case schema.TypeBool:
		return "BOOLEAN", nil
	case schema.TypeTime:
		return "DATETIME", nil
	default:
		return "", fmt.Errorf("unsupported type: %s", vt)
	}
}

// MapNullability returns the NULL/NOT NULL constraint
func (tm *TypeMapper) MapNullability(nullable bool) string {
	if nullable {
		return "NULL"
	}
	return "NOT NULL"
}

// MapGeneratedID returns the definition of a database generated integer id
func (tm *TypeMapper) MapGeneratedID() string {
	switch tm.dialect {
	case query.MySQL:
		return "BIGINT NOT NULL AUTO_INCREMENT PRIMARY KEY"
	case query.Postgres:
		return "BIGINT GENERATED BY DEFAULT AS IDENTITY PRIMARY KEY"
	default:
		return "INTEGER PRIMARY KEY AUTOINCREMENT"
	}
}
