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

const doctorColumns = `id, name, email, phone, department_id, available_days, work_start, work_end,
	breaks, slot_duration, online_fee, offline_fee, status, created_at, updated_at`

type doctorRepository struct {
	BaseRepository
}

func NewDoctorRepository(base BaseRepository) repository.DoctorRepository {
	return &doctorRepository{base}
}

func (r *doctorRepository) Create(ctx context.Context, doctor *model.DoctorProfile) error {
	query := `
		INSERT INTO doctors (` + doctorColumns + `)
		VALUES (:id, :name, :email, :phone, :department_id, :available_days, :work_start, :work_end,
			:breaks, :slot_duration, :online_fee, :offline_fee, :status, :created_at, :updated_at)
	`
	if doctor.ID == uuid.Nil {
		doctor.ID = uuid.New()
	}
	if doctor.Status == "" {
		doctor.Status = model.AvailabilityAvailable
	}
	doctor.CreatedAt = time.Now()
	doctor.UpdatedAt = doctor.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, doctor); err != nil {
		return fmt.Errorf("failed to create doctor: %w", err)
	}
	return nil
}

func (r *doctorRepository) Get(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE id = $1`

	var doctor model.DoctorProfile
	if err := r.db.GetContext(ctx, &doctor, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrDoctorNotFound
		}
		return nil, fmt.Errorf("failed to get doctor: %w", err)
	}
	return &doctor, nil
}

func (r *doctorRepository) Update(ctx context.Context, doctor *model.DoctorProfile) error {
	query := `
		UPDATE doctors
		SET name = :name, email = :email, phone = :phone, department_id = :department_id,
			available_days = :available_days, work_start = :work_start, work_end = :work_end,
			breaks = :breaks, slot_duration = :slot_duration, online_fee = :online_fee,
			offline_fee = :offline_fee, status = :status, updated_at = :updated_at
		WHERE id = :id
	`
	doctor.UpdatedAt = time.Now()

	result, err := r.db.NamedExecContext(ctx, query, doctor)
	if err != nil {
		return fmt.Errorf("failed to update doctor: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperrors.ErrDoctorNotFound
	}
	return nil
}

func (r *doctorRepository) ListAvailable(ctx context.Context) ([]*model.DoctorProfile, error) {
	query := `SELECT ` + doctorColumns + ` FROM doctors WHERE status = $1 ORDER BY name`

	var doctors []*model.DoctorProfile
	if err := r.db.SelectContext(ctx, &doctors, query, model.AvailabilityAvailable); err != nil {
		return nil, fmt.Errorf("failed to list doctors: %w", err)
	}
	return doctors, nil
}
