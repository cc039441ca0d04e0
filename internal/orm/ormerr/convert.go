package ormerr

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// MySQL server error numbers
const (
	mysqlDuplicateEntry     = 1062
	mysqlNoReferencedRow    = 1216
	mysqlRowIsReferenced    = 1217
	mysqlRowIsReferenced2   = 1451
	mysqlNoReferencedRow2   = 1452
	mysqlBadNull            = 1048
	mysqlCheckConstraintErr = 3819
)

// ConvertDBError classifies constraint violations reported by the supported
// drivers. The driver error stays reachable through errors.As.
func ConvertDBError(err error) error {
	if err == nil {
		return nil
	}

	if kind := classify(err); kind != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}

	return err
}

func classify(err error) error {
	// PostgreSQL errors (pgx)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return classifyPgCode(pgErr.Code)
	}

	// PostgreSQL errors (lib/pq)
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPgCode(string(pqErr.Code))
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return ErrUniqueViolation
		case mysqlNoReferencedRow, mysqlNoReferencedRow2, mysqlRowIsReferenced, mysqlRowIsReferenced2:
			return ErrForeignKeyViolation
		case mysqlBadNull:
			return ErrNotNullViolation
		case mysqlCheckConstraintErr:
			return ErrCheckViolation
		}
	}

	return nil
}

func classifyPgCode(code string) error {
	switch code {
	case "23505": // unique_violation
		return ErrUniqueViolation
	case "23503": // foreign_key_violation
		return ErrForeignKeyViolation
	case "23502": // not_null_violation
		return ErrNotNullViolation
	case "23514": // check_violation
		return ErrCheckViolation
	}
	return nil
}
