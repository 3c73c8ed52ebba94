package repository

import (
	"context"

	"github.com/spec-kit/video-assignment-service/internal/domain"
)

type videoHistoryRepository struct {
	db DBTX
}

// NewVideoHistoryRepository builds repository.
func NewVideoHistoryRepository(db DBTX) VideoHistoryRepository {
	return &videoHistoryRepository{db: db}
}

func (r *videoHistoryRepository) Create(ctx context.Context, history *domain.VideoHistory) error {
	const query = `
        INSERT INTO video_history (video_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id`
	return Classify(r.db.QueryRow(ctx, query,
		history.VideoID,
		history.ChangedByType,
		history.ChangedByID,
		history.ChangeType,
		history.OldValue,
		history.NewValue,
		history.CreatedAt,
	).Scan(&history.ID))
}

func (r *videoHistoryRepository) ListByVideo(ctx context.Context, videoID string) ([]domain.VideoHistory, error) {
	const query = `
        SELECT id, video_id, changed_by_type, changed_by_id, change_type, old_value, new_value, created_at
        FROM video_history WHERE video_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, videoID)
	if err != nil {
		return nil, Classify(err)
	}
	defer rows.Close()

	var result []domain.VideoHistory
	for rows.Next() {
		var history domain.VideoHistory
		if err := rows.Scan(
			&history.ID,
			&history.VideoID,
			&history.ChangedByType,
			&history.ChangedByID,
			&history.ChangeType,
			&history.OldValue,
			&history.NewValue,
			&history.CreatedAt,
		); err != nil {
			return nil, Classify(err)
		}
		result = append(result, history)
	}
	return result, Classify(rows.Err())
}
