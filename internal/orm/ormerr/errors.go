// Package ormerr defines the error taxonomy shared by the persistence packages.
//
// Every error returned by the ORM wraps exactly one kind sentinel (ErrMetadata,
// ErrEntityValidation, ErrPersistence, ErrNotFound or ErrLifecycle), so callers
// can branch on the kind with errors.Is and on the specific cause with the
// narrower sentinels.
package ormerr

import (
	"errors"
	"fmt"
)

// Error kinds
var (
	// ErrMetadata is returned for missing column/property mappings and missing relation targets
	ErrMetadata = errors.New("metadata error")

	// ErrEntityValidation is returned for missing or invalid ids and malformed batches
	ErrEntityValidation = errors.New("entity validation error")

	// ErrPersistence wraps driver level failures and unexpected result shapes
	ErrPersistence = errors.New("persistence error")

	// ErrNotFound is returned when a post-write verification fetch finds nothing
	ErrNotFound = errors.New("not found")

	// ErrLifecycle is returned when an operation is attempted on a destroyed persister
	ErrLifecycle = errors.New("lifecycle error")
)

// Metadata errors
var (
	ErrDuplicateTable          = fmt.Errorf("%w: table already registered with different metadata", ErrMetadata)
	ErrColumnNotFound          = fmt.Errorf("%w: column name not found for property", ErrMetadata)
	ErrPropertyNotFound        = fmt.Errorf("%w: property name not found for column", ErrMetadata)
	ErrRelationMetadataMissing = fmt.Errorf("%w: relation target metadata missing", ErrMetadata)
	ErrInvalidMetadata         = fmt.Errorf("%w: invalid entity metadata", ErrMetadata)
	ErrInvalidIdentifier       = fmt.Errorf("%w: invalid SQL identifier", ErrMetadata)
)

// Entity validation errors
var (
	ErrIDNotFound      = fmt.Errorf("%w: id property not set", ErrEntityValidation)
	ErrMixedEntityType = fmt.Errorf("%w: entities have different metadata", ErrEntityValidation)
	ErrNoEntities      = fmt.Errorf("%w: at least one value is required", ErrEntityValidation)
	ErrInvalidEntity   = fmt.Errorf("%w: value is not a valid entity", ErrEntityValidation)
	ErrNotCloneable    = fmt.Errorf("%w: metadata has no entity factory", ErrEntityValidation)
)

// Persistence errors
var (
	ErrIncorrectRowCount   = fmt.Errorf("%w: incorrect amount of rows in the response", ErrPersistence)
	ErrCreatedIDNotFound   = fmt.Errorf("%w: id of created entity not returned", ErrPersistence)
	ErrUniqueViolation     = fmt.Errorf("%w: unique constraint violation", ErrPersistence)
	ErrForeignKeyViolation = fmt.Errorf("%w: foreign key constraint violation", ErrPersistence)
	ErrNotNullViolation    = fmt.Errorf("%w: not null constraint violation", ErrPersistence)
	ErrCheckViolation      = fmt.Errorf("%w: check constraint violation", ErrPersistence)
)

// ErrEntityNotFound is returned when an entity written by the persister cannot be read back
var ErrEntityNotFound = fmt.Errorf("%w: entity not found after write", ErrNotFound)

// ErrPersisterDestroyed is returned by every call made after Destroy
var ErrPersisterDestroyed = fmt.Errorf("%w: persister has been destroyed", ErrLifecycle)

// QueryError wraps a driver error together with the query that failed
type QueryError struct {
	Op    string
	Query string
	Err   error
}

// Error implements the error interface
func (e *QueryError) Error() string {
	return fmt.Sprintf("%s: query %q failed: %v", e.Op, e.Query, e.Err)
}

// Unwrap exposes the wrapped error, adding the persistence kind when it
// carries no kind of its own
func (e *QueryError) Unwrap() []error {
	if Kind(e.Err) != nil {
		return []error{e.Err}
	}
	return []error{ErrPersistence, e.Err}
}

// Wrap attaches operation and query context to err. Driver errors are
// converted first; errors that already carry a kind keep it.
func Wrap(op, query string, err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	if Kind(err) == nil {
		err = ConvertDBError(err)
	}
	return &QueryError{Op: op, Query: query, Err: err}
}

// Kind returns the kind sentinel carried by err, or nil
func Kind(err error) error {
	for _, kind := range []error{ErrMetadata, ErrEntityValidation, ErrPersistence, ErrNotFound, ErrLifecycle} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// IsNotFound returns true if the error is a NotFoundError
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUniqueViolation returns true if the error is ErrUniqueViolation
func IsUniqueViolation(err error) bool {
	return errors.Is(err, ErrUniqueViolation)
}

// IsDestroyed returns true if the error is ErrPersisterDestroyed
func IsDestroyed(err error) bool {
	return errors.Is(err, ErrPersisterDestroyed)
}
