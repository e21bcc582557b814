package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

const leaveColumns = `id, doctor_id, start_date::text AS start_date, end_date::text AS end_date,
	leave_type, duration, reason, status, decided_by, decided_at, effects_completed,
	created_at, updated_at`

type leaveRepository struct {
	BaseRepository
}

func NewLeaveRepository(base BaseRepository) repository.LeaveRepository {
	return &leaveRepository{base}
}

func (r *leaveRepository) Create(ctx context.Context, leave *model.LeaveRequest) error {
	query := `
		INSERT INTO leave_requests (
			id, doctor_id, start_date, end_date, leave_type, duration,
			reason, status, effects_completed, created_at, updated_at
		) VALUES (
			:id, :doctor_id, :start_date, :end_date, :leave_type, :duration,
			:reason, :status, :effects_completed, :created_at, :updated_at
		)
	`
	if leave.ID == uuid.Nil {
		leave.ID = uuid.New()
	}
	leave.Status = model.LeaveStatusPending
	leave.CreatedAt = time.Now()
	leave.UpdatedAt = leave.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, leave); err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	return nil
}

func (r *leaveRepository) Get(ctx context.Context, id uuid.UUID) (*model.LeaveRequest, error) {
	query := `SELECT ` + leaveColumns + ` FROM leave_requests WHERE id = $1`

	var leave model.LeaveRequest
	if err := r.db.GetContext(ctx, &leave, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrLeaveNotFound
		}
		return nil, fmt.Errorf("failed to get leave request: %w", err)
	}
	return &leave, nil
}

func (r *leaveRepository) List(ctx context.Context, doctorID uuid.UUID, status model.LeaveStatus) ([]*model.LeaveRequest, error) {
	query := `
		SELECT ` + leaveColumns + `
		FROM leave_requests
		WHERE ($1 = '00000000-0000-0000-0000-000000000000'::uuid OR doctor_id = $1)
			AND ($2 = '' OR status = $2)
		ORDER BY start_date
	`
	var leaves []*model.LeaveRequest
	if err := r.db.SelectContext(ctx, &leaves, query, doctorID, string(status)); err != nil {
		return nil, fmt.Errorf("failed to list leave requests: %w", err)
	}
	return leaves, nil
}

func (r *leaveRepository) Decide(ctx context.Context, id uuid.UUID, status model.LeaveStatus, decidedBy uuid.UUID) (*model.LeaveRequest, error) {
	query := `
		UPDATE leave_requests
		SET status = $1, decided_by = $2, decided_at = NOW(), updated_at = NOW()
		WHERE id = $3 AND status = 'pending'
		RETURNING ` + leaveColumns

	var leave model.LeaveRequest
	err := r.db.GetContext(ctx, &leave, query, status, decidedBy, id)
	if err == nil {
		return &leave, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to decide leave request: %w", err)
	}

	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, apperrors.ErrInvalidState
}

func (r *leaveRepository) MarkEffectsCompleted(ctx context.Context, id uuid.UUID) error {
	query := `UPDATE leave_requests SET effects_completed = TRUE, updated_at = NOW() WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("failed to mark leave effects completed: %w", err)
	}
	return nil
}

func (r *leaveRepository) ListIncomplete(ctx context.Context) ([]*model.LeaveRequest, error) {
	query := `
		SELECT ` + leaveColumns + `
		FROM leave_requests
		WHERE status = 'approved' AND effects_completed = FALSE
		ORDER BY decided_at
	`
	var leaves []*model.LeaveRequest
	if err := r.db.SelectContext(ctx, &leaves, query); err != nil {
		return nil, fmt.Errorf("failed to list incomplete leave requests: %w", err)
	}
	return leaves, nil
}

func (r *leaveRepository) ApprovedOn(ctx context.Context, doctorID uuid.UUID, date string) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM leave_requests
			WHERE doctor_id = $1 AND status = 'approved'
				AND start_date <= $2::date AND end_date >= $2::date
		)
	`
	var covered bool
	if err := r.db.GetContext(ctx, &covered, query, doctorID, date); err != nil {
		return false, fmt.Errorf("failed to check approved leave: %w", err)
	}
	return covered, nil
}
