package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound indicates the requested row does not exist (or is soft
	// deleted).
	ErrNotFound = errors.New("store: not found")

	// ErrConflict indicates a unique-constraint violation: another request
	// won a race for the same natural key. Callers may retry once.
	ErrConflict = errors.New("store: conflict")

	// ErrTxRequired indicates a multi-row mutation was called without an
	// active transaction handle.
	ErrTxRequired = errors.New("store: transaction required")
)

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// uniqueViolation is the postgres error code for a unique constraint hit.
const uniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
