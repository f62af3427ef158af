package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUniqueViolation(t *testing.T) {
	err := fmt.Errorf("insert: %w", &pgconn.PgError{
		Code:           pgerrcode.UniqueViolation,
		ConstraintName: invoiceNumberConstraint,
	})

	constraint, ok := uniqueViolation(err)
	require.True(t, ok)
	assert.Equal(t, invoiceNumberConstraint, constraint)

	_, ok = uniqueViolation(&pgconn.PgError{Code: pgerrcode.CheckViolation})
	assert.False(t, ok)
	assert.True(t, isCheckViolation(&pgconn.PgError{Code: pgerrcode.CheckViolation}))

	_, ok = uniqueViolation(errors.New("boom"))
	assert.False(t, ok)
}

func TestIsForeignKeyViolation(t *testing.T) {
	err := fmt.Errorf("delete customer 7: %w", &pgconn.PgError{
		Code:           pgerrcode.ForeignKeyViolation,
		ConstraintName: "transactions_customer_id_fkey",
	})
	assert.True(t, isForeignKeyViolation(err))
	assert.False(t, isForeignKeyViolation(&pgconn.PgError{Code: pgerrcode.UniqueViolation}))
	assert.False(t, isForeignKeyViolation(errors.New("boom")))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Contains(t, names, "00002_admin_edits.sql")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "serialization failure", err: &pgconn.PgError{Code: pgerrcode.SerializationFailure}, want: true},
		{name: "deadlock", err: &pgconn.PgError{Code: pgerrcode.DeadlockDetected}, want: true},
		{name: "unique violation", err: &pgconn.PgError{Code: pgerrcode.UniqueViolation}, want: false},
		{name: "connection refused", err: errors.New("dial tcp: connection refused"), want: true},
		{name: "plain error", err: errors.New("boom"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryable(tt.err))
		})
	}
}

func TestWithRetry_StopsOnPermanentError(t *testing.T) {
	r := &PostgresRepository{}
	calls := 0
	permanent := &pgconn.PgError{Code: pgerrcode.UniqueViolation}

	err := r.withRetry(context.Background(), func() error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestWithRetry_StopsOnCancelledContext(t *testing.T) {
	r := &PostgresRepository{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	start := time.Now()
	err := r.withRetry(ctx, func() error {
		calls++
		return &pgconn.PgError{Code: pgerrcode.DeadlockDetected}
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, time.Since(start), time.Second)
}

func TestNullTime(t *testing.T) {
	assert.Nil(t, nullTime(time.Time{}))

	now := time.Now()
	got := nullTime(now)
	require.NotNil(t, got)
	assert.True(t, got.Equal(now))
}
