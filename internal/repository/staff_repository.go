package repository

import (
	"context"

	"github.com/spec-kit/video-assignment-service/internal/domain"
)

type staffRepository struct {
	db DBTX
}

// NewStaffRepository instantiates the repository.
func NewStaffRepository(db DBTX) StaffRepository {
	return &staffRepository{db: db}
}

func (r *staffRepository) Create(ctx context.Context, staff *domain.StaffMember) error {
	const query = `
        INSERT INTO staff_members (id, name, email, role, supervisor_id, active_flag)
        VALUES (COALESCE(NULLIF($1, ''), gen_random_uuid()::text),$2,$3,$4,$5,$6)
        RETURNING id, created_at, updated_at`

	return Classify(r.db.QueryRow(ctx, query,
		staff.ID,
		staff.Name,
		staff.Email,
		staff.Role,
		staff.SupervisorID,
		staff.Active,
	).Scan(&staff.ID, &staff.CreatedAt, &staff.UpdatedAt))
}

func (r *staffRepository) GetByID(ctx context.Context, id string) (*domain.StaffMember, error) {
	const query = `
        SELECT id, name, email, role, supervisor_id, active_flag, created_at, updated_at
        FROM staff_members WHERE id=$1`

	var staff domain.StaffMember
	if err := r.db.QueryRow(ctx, query, id).Scan(
		&staff.ID,
		&staff.Name,
		&staff.Email,
		&staff.Role,
		&staff.SupervisorID,
		&staff.Active,
		&staff.CreatedAt,
		&staff.UpdatedAt,
	); err != nil {
		return nil, Classify(err)
	}
	return &staff, nil
}
