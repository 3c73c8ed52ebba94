package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/video-assignment-service/internal/domain"
)

const videoColumns = `id, title, assigned_staff_id, assigned_at, lifecycle_state, urgent_flag,
               delivery_deadline, deleted, created_at, updated_at`

// expiredPredicate is shared by ListExpired and CountExpired so the sweep and the
// monitoring count can never disagree. $1 is the cutoff.
const expiredPredicate = `deleted = FALSE
          AND assigned_staff_id IS NOT NULL
          AND assigned_at IS NOT NULL
          AND lifecycle_state IN ('IN_PROGRESS', 'IN_REVISION')
          AND assigned_at < $1`

type videoRepository struct {
	db DBTX
}

// NewVideoRepository instantiates repository.
func NewVideoRepository(db DBTX) VideoRepository {
	return &videoRepository{db: db}
}

func (r *videoRepository) Create(ctx context.Context, video *domain.Video) error {
	const query = `
        INSERT INTO videos (id, title, assigned_staff_id, assigned_at, lifecycle_state, urgent_flag, delivery_deadline, deleted)
        VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text),$2,$3,$4,$5,$6,$7,$8)
        RETURNING id, created_at, updated_at`
	if video.State == "" {
		video.State = domain.StateUnassigned
	}
	return Classify(r.db.QueryRow(ctx, query,
		video.ID,
		video.Title,
		video.AssignedStaffID,
		video.AssignedAt,
		video.State,
		video.UrgentFlag,
		video.DeliveryDeadline,
		video.Deleted,
	).Scan(&video.ID, &video.CreatedAt, &video.UpdatedAt))
}

func (r *videoRepository) GetByID(ctx context.Context, id string) (*domain.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM videos WHERE id=$1`
	video, err := scanVideo(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, Classify(err)
	}
	return video, nil
}

func (r *videoRepository) CountActiveByStaff(ctx context.Context, staffID string, now time.Time, urgentWindow time.Duration) (domain.ActiveCounts, error) {
	const query = `
        WITH owned AS (
            SELECT lifecycle_state,
                   (urgent_flag OR ($2::boolean
                        AND delivery_deadline IS NOT NULL
                        AND delivery_deadline < $3
                        AND lifecycle_state NOT IN ('DONE', 'DONE_REVISED', 'CANCELLED'))) AS urgent
            FROM videos
            WHERE assigned_staff_id = $1 AND deleted = FALSE
        )
        SELECT COUNT(*) FILTER (WHERE lifecycle_state = 'IN_PROGRESS'),
               COUNT(*) FILTER (WHERE lifecycle_state = 'IN_REVISION'),
               COUNT(*) FILTER (WHERE urgent),
               COUNT(*) FILTER (WHERE lifecycle_state IN ('IN_PROGRESS', 'IN_REVISION') OR urgent)
        FROM owned`

	var counts domain.ActiveCounts
	err := r.db.QueryRow(ctx, query, staffID, urgentWindow > 0, now.Add(urgentWindow)).Scan(
		&counts.InProgress,
		&counts.InRevision,
		&counts.Urgent,
		&counts.Total,
	)
	if err != nil {
		return domain.ActiveCounts{}, Classify(err)
	}
	return counts, nil
}

func (r *videoRepository) CountAssignedSince(ctx context.Context, staffID string, since time.Time) (int, error) {
	const query = `
        SELECT COUNT(*) FROM videos
        WHERE assigned_staff_id = $1 AND deleted = FALSE AND assigned_at >= $2`
	var count int
	if err := r.db.QueryRow(ctx, query, staffID, since).Scan(&count); err != nil {
		return 0, Classify(err)
	}
	return count, nil
}

func (r *videoRepository) ListExpired(ctx context.Context, filter ExpiredFilter) ([]domain.Video, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 500
	}
	query := `SELECT ` + videoColumns + ` FROM videos WHERE ` + expiredPredicate +
		` ORDER BY assigned_at ASC, id ASC LIMIT $2`
	rows, err := r.db.Query(ctx, query, filter.Cutoff, limit)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var result []domain.Video
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, Classify(err)
		}
		result = append(result, *video)
	}
	return result, Classify(rows.Err())
}

func (r *videoRepository) CountExpired(ctx context.Context, filter ExpiredFilter) (int, error) {
	query := `SELECT COUNT(*) FROM videos WHERE ` + expiredPredicate
	var count int
	if err := r.db.QueryRow(ctx, query, filter.Cutoff).Scan(&count); err != nil {
		return 0, Classify(err)
	}
	return count, nil
}

func (r *videoRepository) CompareAndSwap(ctx context.Context, change VideoChange) error {
	const query = `
        UPDATE videos
        SET lifecycle_state = $1,
            assigned_staff_id = $2,
            assigned_at = $3,
            urgent_flag = COALESCE($4, urgent_flag),
            updated_at = NOW()
        WHERE id = $5
          AND deleted = FALSE
          AND lifecycle_state = $6
          AND ($7::timestamptz IS NULL OR assigned_at = $7)`
	cmd, err := r.db.Exec(ctx, query,
		change.NewState,
		change.NewStaffID,
		change.NewAssignedAt,
		change.NewUrgent,
		change.VideoID,
		change.ExpectedState,
		change.ExpectedAssignedAt,
	)
	if err != nil {
		return Classify(err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrConflict
	}
	return nil
}

func scanVideo(row pgx.Row) (*domain.Video, error) {
	var video domain.Video
	if err := row.Scan(
		&video.ID,
		&video.Title,
		&video.AssignedStaffID,
		&video.AssignedAt,
		&video.State,
		&video.UrgentFlag,
		&video.DeliveryDeadline,
		&video.Deleted,
		&video.CreatedAt,
		&video.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &video, nil
}
