package ormerr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKinds(t *testing.T) {
	cases := map[error]error{
		ErrDuplicateTable:          ErrMetadata,
		ErrColumnNotFound:          ErrMetadata,
		ErrRelationMetadataMissing: ErrMetadata,
		ErrIDNotFound:              ErrEntityValidation,
		ErrMixedEntityType:         ErrEntityValidation,
		ErrNotCloneable:            ErrEntityValidation,
		ErrIncorrectRowCount:       ErrPersistence,
		ErrUniqueViolation:         ErrPersistence,
		ErrEntityNotFound:          ErrNotFound,
		ErrPersisterDestroyed:      ErrLifecycle,
	}

	for err, kind := range cases {
		assert.ErrorIs(t, err, kind, err.Error())
		assert.Equal(t, kind, Kind(err), err.Error())
	}

	assert.Nil(t, Kind(errors.New("plain")))
}

func TestConvertDBErrorWithPgErrors(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", Detail: "Key (email)=(test@test.com) already exists."}
	err := ConvertDBError(pgErr)
	assert.ErrorIs(t, err, ErrUniqueViolation)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Contains(t, err.Error(), "23505")

	var target *pgconn.PgError
	require.ErrorAs(t, err, &target)
	assert.Equal(t, "23505", target.Code)

	err = ConvertDBError(&pgconn.PgError{Code: "23503"})
	assert.ErrorIs(t, err, ErrForeignKeyViolation)

	err = ConvertDBError(&pgconn.PgError{Code: "23514"})
	assert.ErrorIs(t, err, ErrCheckViolation)

	err = ConvertDBError(&pgconn.PgError{Code: "23502", ColumnName: "title"})
	assert.ErrorIs(t, err, ErrNotNullViolation)

	unknown := &pgconn.PgError{Code: "99999", Message: "Unknown error"}
	assert.Equal(t, error(unknown), ConvertDBError(unknown))
}

func TestConvertDBErrorWithPqAndMySQLErrors(t *testing.T) {
	err := ConvertDBError(&pq.Error{Code: "23505"})
	assert.ErrorIs(t, err, ErrUniqueViolation)

	err = ConvertDBError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	assert.ErrorIs(t, err, ErrUniqueViolation)

	err = ConvertDBError(&mysql.MySQLError{Number: 1452})
	assert.ErrorIs(t, err, ErrForeignKeyViolation)

	err = ConvertDBError(&mysql.MySQLError{Number: 1048})
	assert.ErrorIs(t, err, ErrNotNullViolation)

	generic := errors.New("generic error")
	assert.Equal(t, generic, ConvertDBError(generic))
	assert.NoError(t, ConvertDBError(nil))
}

func TestWrap(t *testing.T) {
	t.Run("driver error gets query context", func(t *testing.T) {
		driverErr := errors.New("connection reset")
		err := Wrap("findAll", "SELECT 1", driverErr)

		var qe *QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, "findAll", qe.Op)
		assert.Equal(t, "SELECT 1", qe.Query)
		assert.ErrorIs(t, err, ErrPersistence)
		assert.ErrorIs(t, err, driverErr)
	})

	t.Run("timeout stays detectable", func(t *testing.T) {
		err := Wrap("count", "SELECT COUNT(*)", context.DeadlineExceeded)
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.ErrorIs(t, err, ErrPersistence)
	})

	t.Run("kinded errors keep their kind", func(t *testing.T) {
		rowCount := fmt.Errorf("%w: expected 1 row, got 2", ErrIncorrectRowCount)
		err := Wrap("findByID", "SELECT * FROM carts", rowCount)

		var qe *QueryError
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, "SELECT * FROM carts", qe.Query)
		assert.ErrorIs(t, err, ErrIncorrectRowCount)
		assert.Equal(t, ErrPersistence, Kind(err))

		err = Wrap("insert", "INSERT INTO carts", ErrEntityNotFound)
		require.ErrorAs(t, err, &qe)
		assert.Equal(t, ErrNotFound, Kind(err))
		assert.True(t, IsNotFound(err))
	})

	t.Run("wrapped once", func(t *testing.T) {
		inner := Wrap("count", "SELECT COUNT(*)", errors.New("broken pipe"))
		assert.Same(t, inner, Wrap("count", "SELECT 2", inner))
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, Wrap("insert", "", nil))
	})
}
