package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/video-assignment-service/internal/domain"
)

const staffLimitColumns = `id, staff_id, active, lock_until, max_per_day, created_at`

type staffLimitRepository struct {
	db DBTX
}

// NewStaffLimitRepository instantiates the repository.
func NewStaffLimitRepository(db DBTX) StaffLimitRepository {
	return &staffLimitRepository{db: db}
}

func (r *staffLimitRepository) Create(ctx context.Context, limit *domain.StaffLimit) error {
	const query = `
        INSERT INTO staff_limits (staff_id, active, lock_until, max_per_day, created_at)
        VALUES ($1,$2,$3,$4,$5)
        RETURNING id`
	return Classify(r.db.QueryRow(ctx, query,
		limit.StaffID,
		limit.Active,
		limit.LockUntil,
		limit.MaxPerDay,
		limit.CreatedAt,
	).Scan(&limit.ID))
}

// GetActive returns the active limit for staffID, or nil when there is none.
func (r *staffLimitRepository) GetActive(ctx context.Context, staffID string) (*domain.StaffLimit, error) {
	query := `SELECT ` + staffLimitColumns + ` FROM staff_limits
        WHERE staff_id = $1 AND active = TRUE
        ORDER BY created_at DESC LIMIT 1`
	limit, err := scanStaffLimit(r.db.QueryRow(ctx, query, staffID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, Classify(err)
	}
	return limit, nil
}

func (r *staffLimitRepository) DeactivateAll(ctx context.Context, staffID string) (int64, error) {
	const query = `UPDATE staff_limits SET active = FALSE WHERE staff_id = $1 AND active = TRUE`
	cmd, err := r.db.Exec(ctx, query, staffID)
	if err != nil {
		return 0, Classify(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *staffLimitRepository) DeactivateExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `UPDATE staff_limits SET active = FALSE WHERE active = TRUE AND lock_until <= $1`
	cmd, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, Classify(err)
	}
	return cmd.RowsAffected(), nil
}

func (r *staffLimitRepository) ListActive(ctx context.Context) ([]domain.StaffLimit, error) {
	query := `SELECT ` + staffLimitColumns + ` FROM staff_limits WHERE active = TRUE ORDER BY lock_until ASC`
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var result []domain.StaffLimit
	for rows.Next() {
		limit, err := scanStaffLimit(rows)
		if err != nil {
			return nil, Classify(err)
		}
		result = append(result, *limit)
	}
	return result, Classify(rows.Err())
}

func scanStaffLimit(row pgx.Row) (*domain.StaffLimit, error) {
	var limit domain.StaffLimit
	if err := row.Scan(
		&limit.ID,
		&limit.StaffID,
		&limit.Active,
		&limit.LockUntil,
		&limit.MaxPerDay,
		&limit.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &limit, nil
}
