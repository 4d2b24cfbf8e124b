package postgres

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes used by this package.
const (
	SQLStateUniqueViolation      = "23505"
	SQLStateSerializationFailure = "40001"
	SQLStateDeadlockDetected     = "40P01"
	SQLStateLockNotAvailable     = "55P03"
	SQLStateQueryCanceled        = "57014"
	SQLStateAdminShutdown        = "57P01"
	SQLStateDataCorrupted        = "XX001"
	SQLStateIndexCorrupted       = "XX002"
)

// IsUniqueViolation reports a duplicate key. constraint, when non-empty,
// must match the violated constraint name.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != SQLStateUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// IsIntegrityViolation covers class 23 and data corruption. Retrying these
// never helps.
func IsIntegrityViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return strings.HasPrefix(pgErr.Code, "23") ||
		pgErr.Code == SQLStateDataCorrupted ||
		pgErr.Code == SQLStateIndexCorrupted
}

// IsRetryable reports failures where running the same transaction again may
// succeed: serialization and lock conflicts, lost connections, timeouts.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, pgx.ErrTxClosed) {
		return true
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case SQLStateSerializationFailure, SQLStateDeadlockDetected, SQLStateLockNotAvailable,
			SQLStateQueryCanceled, SQLStateAdminShutdown:
			return true
		}
		return strings.HasPrefix(pgErr.Code, "08")
	}
	var connErr *pgconn.ConnectError
	return errors.As(err, &connErr)
}

// IsServerError reports whether err carries a SQLSTATE from the server.
func IsServerError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
