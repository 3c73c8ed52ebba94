package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/video-assignment-service/internal/domain"
)

// ErrConflict is returned by compare-and-write operations whose expectations no longer hold.
var ErrConflict = errors.New("video changed concurrently")

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// VideoChange describes a compare-and-write of the assignment fields and lifecycle state.
// The write applies only when the row is not deleted, is in ExpectedState and, when
// ExpectedAssignedAt is set, still carries that assignment timestamp.
type VideoChange struct {
	VideoID            string
	ExpectedState      domain.LifecycleState
	ExpectedAssignedAt *time.Time
	NewState           domain.LifecycleState
	NewStaffID         *string
	NewAssignedAt      *time.Time
	NewUrgent          *bool
}

// ExpiredFilter selects assignments older than Cutoff. It is the single predicate shared
// by the sweep and its monitoring count.
type ExpiredFilter struct {
	Cutoff time.Time
	Limit  int
}

// VideoRepository encapsulates video persistence for the assignment core.
type VideoRepository interface {
	Create(ctx context.Context, video *domain.Video) error
	GetByID(ctx context.Context, id string) (*domain.Video, error)
	CountActiveByStaff(ctx context.Context, staffID string, now time.Time, urgentWindow time.Duration) (domain.ActiveCounts, error)
	CountAssignedSince(ctx context.Context, staffID string, since time.Time) (int, error)
	ListExpired(ctx context.Context, filter ExpiredFilter) ([]domain.Video, error)
	CountExpired(ctx context.Context, filter ExpiredFilter) (int, error)
	CompareAndSwap(ctx context.Context, change VideoChange) error
}

// StaffLimitRepository persists staff limits.
type StaffLimitRepository interface {
	Create(ctx context.Context, limit *domain.StaffLimit) error
	GetActive(ctx context.Context, staffID string) (*domain.StaffLimit, error)
	DeactivateAll(ctx context.Context, staffID string) (int64, error)
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
	ListActive(ctx context.Context) ([]domain.StaffLimit, error)
}

// VideoHistoryRepository stores audit entries.
type VideoHistoryRepository interface {
	Create(ctx context.Context, history *domain.VideoHistory) error
	ListByVideo(ctx context.Context, videoID string) ([]domain.VideoHistory, error)
}

// StaffRepository handles persistence for staff members.
type StaffRepository interface {
	Create(ctx context.Context, staff *domain.StaffMember) error
	GetByID(ctx context.Context, id string) (*domain.StaffMember, error)
}

// StaffLocker serializes admission decisions for one staff member until the
// surrounding transaction ends.
type StaffLocker interface {
	LockStaff(ctx context.Context, staffID string) error
}

// Stores bundles repositories bound to the same connection or transaction.
type Stores struct {
	Videos  VideoRepository
	Limits  StaffLimitRepository
	History VideoHistoryRepository
	Staff   StaffRepository
	Locks   StaffLocker
}

// Transactor runs fn with Stores bound to a single transaction. A non-nil error from fn
// rolls the transaction back.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}
