package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestClassification(t *testing.T) {
	t.Parallel()

	pg := func(code string) error { return fmt.Errorf("exec: %w", &pgconn.PgError{Code: code, ConstraintName: "contacts_pkey"}) }

	tests := []struct {
		name      string
		err       error
		retryable bool
		integrity bool
	}{
		{name: "unique", err: pg(SQLStateUniqueViolation), integrity: true},
		{name: "not null", err: pg("23502"), integrity: true},
		{name: "corrupted", err: pg(SQLStateDataCorrupted), integrity: true},
		{name: "serialization", err: pg(SQLStateSerializationFailure), retryable: true},
		{name: "deadlock", err: pg(SQLStateDeadlockDetected), retryable: true},
		{name: "lock timeout", err: pg(SQLStateLockNotAvailable), retryable: true},
		{name: "connection class", err: pg("08006"), retryable: true},
		{name: "admin shutdown", err: pg(SQLStateAdminShutdown), retryable: true},
		{name: "syntax", err: pg("42601")},
		{name: "deadline", err: context.DeadlineExceeded, retryable: true},
		{name: "plain", err: errors.New("x")},
		{name: "nil", err: nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.retryable, IsRetryable(tt.err))
			assert.Equal(t, tt.integrity, IsIntegrityViolation(tt.err))
		})
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	err := &pgconn.PgError{Code: SQLStateUniqueViolation, ConstraintName: "contacts_number_key"}
	assert.True(t, IsUniqueViolation(err, ""))
	assert.True(t, IsUniqueViolation(err, "contacts_number_key"))
	assert.False(t, IsUniqueViolation(err, "contacts_pkey"))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}, ""))
}
