package repository

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

func TestClassify(t *testing.T) {
	t.Run("passthrough", func(t *testing.T) {
		require.NoError(t, Classify(nil))
		require.ErrorIs(t, Classify(pgx.ErrNoRows), pgx.ErrNoRows)
		require.ErrorIs(t, Classify(ErrConflict), ErrConflict)

		domainErr := apperrors.NewCapacityExceeded("s", 3, 3)
		require.Same(t, domainErr, Classify(domainErr))
	})

	t.Run("serialization and deadlock become conflicts", func(t *testing.T) {
		for _, code := range []string{pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgUniqueViolation} {
			err := Classify(fmt.Errorf("exec: %w", &pgconn.PgError{Code: code}))
			require.True(t, apperrors.IsKind(err, apperrors.CodeConcurrencyConflict), code)
		}
	})

	t.Run("other postgres errors are left alone", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "42P01"}
		require.Same(t, pgErr, Classify(pgErr))
		require.False(t, apperrors.IsKind(Classify(pgErr), apperrors.CodeStoreUnavailable))
	})

	t.Run("deadlines become store unavailable", func(t *testing.T) {
		err := Classify(fmt.Errorf("query: %w", context.DeadlineExceeded))
		require.True(t, apperrors.IsKind(err, apperrors.CodeStoreUnavailable))
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("unknown errors are untouched", func(t *testing.T) {
		cause := errors.New("weird")
		require.Same(t, cause, Classify(cause))
	})
}

func TestStaffLockKey(t *testing.T) {
	require.Equal(t, StaffLockKey("staff-1"), StaffLockKey("staff-1"))
	require.NotEqual(t, StaffLockKey("staff-1"), StaffLockKey("staff-2"))
}
