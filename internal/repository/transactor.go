package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/zeebo/xxh3"

	apperrors "github.com/spec-kit/video-assignment-service/pkg/util/errorutil"
)

// staffLockNamespace keeps advisory lock keys for staff distinct from other lock users.
const staffLockNamespace = "video-assignment:staff:"

// NewPostgresStores binds all repositories to db.
func NewPostgresStores(db DBTX) Stores {
	return Stores{
		Videos:  NewVideoRepository(db),
		Limits:  NewStaffLimitRepository(db),
		History: NewVideoHistoryRepository(db),
		Staff:   NewStaffRepository(db),
		Locks:   advisoryLocker{db: db},
	}
}

type pgTransactor struct {
	pool *pgxpool.Pool
}

// NewPostgresTransactor creates a Transactor backed by pool.
func NewPostgresTransactor(pool *pgxpool.Pool) Transactor {
	return &pgTransactor{pool: pool}
}

func (t *pgTransactor) WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	if t.pool == nil {
		return apperrors.NewStoreUnavailable(errors.New("postgres pool not configured"))
	}
	tx, err := t.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return Classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback(context.WithoutCancel(ctx))
	}()

	if err := fn(ctx, NewPostgresStores(tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return Classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

// advisoryLocker takes a transaction-scoped Postgres advisory lock per staff member, so
// concurrent admissions for the same staff serialize on the capacity re-check.
type advisoryLocker struct {
	db DBTX
}

func (l advisoryLocker) LockStaff(ctx context.Context, staffID string) error {
	_, err := l.db.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, StaffLockKey(staffID))
	return Classify(err)
}

// StaffLockKey derives the 64-bit advisory lock key for staffID.
func StaffLockKey(staffID string) int64 {
	return int64(xxh3.HashString(staffLockNamespace + staffID))
}
