package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

const appointmentColumns = `id, patient_id, doctor_id, created_by, appointment_date::text AS appointment_date,
	slot_id, slot_start, slot_end, start_minute, end_minute, consultation_type, status,
	token_number, video_link, fee, previous_appointment_id, next_appointment_id,
	medical_record_id, cancel_reason, created_at, updated_at`

const activeSlotIndex = "uq_appointments_active_slot"

type appointmentRepository struct {
	BaseRepository
}

func NewAppointmentRepository(base BaseRepository) repository.AppointmentRepository {
	return &appointmentRepository{base}
}

func (r *appointmentRepository) Create(ctx context.Context, appointment *model.Appointment) error {
	query := `
		INSERT INTO appointments (
			id, patient_id, doctor_id, created_by, appointment_date,
			slot_id, slot_start, slot_end, start_minute, end_minute,
			consultation_type, status, fee, previous_appointment_id,
			created_at, updated_at
		) VALUES (
			:id, :patient_id, :doctor_id, :created_by, :appointment_date,
			:slot_id, :slot_start, :slot_end, :start_minute, :end_minute,
			:consultation_type, :status, :fee, :previous_appointment_id,
			:created_at, :updated_at
		)
	`
	if appointment.ID == uuid.Nil {
		appointment.ID = uuid.New()
	}
	appointment.CreatedAt = time.Now()
	appointment.UpdatedAt = appointment.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, appointment); err != nil {
		if isUniqueViolation(err, activeSlotIndex) {
			return apperrors.ErrSlotUnavailable
		}
		return fmt.Errorf("failed to create appointment: %w", err)
	}
	return nil
}

func (r *appointmentRepository) Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`

	var appointment model.Appointment
	if err := r.db.GetContext(ctx, &appointment, query, id); err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("failed to get appointment: %w", err)
	}
	return &appointment, nil
}

// Update writes the link and bookkeeping fields. Status and token only
// change through TransitionStatus and Confirm.
func (r *appointmentRepository) Update(ctx context.Context, appointment *model.Appointment) error {
	query := `
		UPDATE appointments
		SET video_link = :video_link, fee = :fee,
			previous_appointment_id = :previous_appointment_id,
			next_appointment_id = :next_appointment_id,
			medical_record_id = :medical_record_id,
			cancel_reason = :cancel_reason, updated_at = :updated_at
		WHERE id = :id
	`
	appointment.UpdatedAt = time.Now()

	result, err := r.db.NamedExecContext(ctx, query, appointment)
	if err != nil {
		return fmt.Errorf("failed to update appointment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperrors.ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM appointments WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return apperrors.ErrAppointmentNotFound
	}
	return nil
}

func (r *appointmentRepository) List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	var (
		conds []string
		args  []interface{}
	)
	add := func(cond string, arg interface{}) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}

	if filters != nil {
		if filters.DoctorID != uuid.Nil {
			add("doctor_id = $%d", filters.DoctorID)
		}
		if filters.PatientID != uuid.Nil {
			add("patient_id = $%d", filters.PatientID)
		}
		if filters.Status != "" {
			add("status = $%d", filters.Status)
		}
		if filters.StartDate != "" {
			add("appointment_date >= $%d", filters.StartDate)
		}
		if filters.EndDate != "" {
			add("appointment_date <= $%d", filters.EndDate)
		}
	}

	query := `SELECT ` + appointmentColumns + ` FROM appointments`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY appointment_date, start_minute"

	var appointments []*model.Appointment
	if err := r.db.SelectContext(ctx, &appointments, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list appointments: %w", err)
	}
	return appointments, nil
}

func (r *appointmentRepository) ExistsForPatientSlot(ctx context.Context, patientID uuid.UUID, date string, startMinute, endMinute int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE patient_id = $1 AND appointment_date = $2
				AND start_minute = $3 AND end_minute = $4
				AND status NOT IN ('cancelled', 'hospital_cancelled')
		)
	`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, patientID, date, startMinute, endMinute); err != nil {
		return false, fmt.Errorf("failed to check patient appointments: %w", err)
	}
	return exists, nil
}

func (r *appointmentRepository) TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, reason *string) (*model.Appointment, error) {
	query := `
		UPDATE appointments
		SET status = $1, cancel_reason = COALESCE($2, cancel_reason), updated_at = NOW()
		WHERE id = $3 AND status = $4
		RETURNING ` + appointmentColumns

	var appointment model.Appointment
	err := r.db.GetContext(ctx, &appointment, query, to, reason, id, from)
	if err == nil {
		return &appointment, nil
	}
	if !isNoRows(err) {
		return nil, fmt.Errorf("failed to update appointment status: %w", err)
	}

	if _, err := r.Get(ctx, id); err != nil {
		return nil, err
	}
	return nil, apperrors.ErrInvalidTransition
}

// issueToken bumps the per-day counter. Tokens of deleted appointments are
// never handed out again.
const issueToken = `
	INSERT INTO appointment_token_counters (doctor_id, appointment_date, last_token)
	VALUES ($1, $2, (
		SELECT COALESCE(MAX(token_number), 0) + 1 FROM appointments
		WHERE doctor_id = $1 AND appointment_date = $2
	))
	ON CONFLICT (doctor_id, appointment_date)
	DO UPDATE SET last_token = appointment_token_counters.last_token + 1
	RETURNING last_token`

func (r *appointmentRepository) Confirm(ctx context.Context, id uuid.UUID, from model.AppointmentStatus, videoLink *string) (*model.Appointment, error) {
	var confirmed model.Appointment

	err := r.WithTx(ctx, func(tx *sqlx.Tx) error {
		var current struct {
			DoctorID uuid.UUID               `db:"doctor_id"`
			Date     string                  `db:"appointment_date"`
			Status   model.AppointmentStatus `db:"status"`
			Token    *int                    `db:"token_number"`
		}
		lock := `
			SELECT doctor_id, appointment_date::text AS appointment_date, status, token_number
			FROM appointments WHERE id = $1 FOR UPDATE
		`
		if err := tx.GetContext(ctx, &current, lock, id); err != nil {
			if isNoRows(err) {
				return apperrors.ErrAppointmentNotFound
			}
			return fmt.Errorf("failed to lock appointment: %w", err)
		}
		if current.Status != from {
			return apperrors.ErrInvalidTransition
		}

		token := current.Token
		if token == nil {
			// The counter row lock serialises issuance per doctor day. The
			// first row starts above any token already stored so rows that
			// predate the counter are never repeated.
			var next int
			if err := tx.GetContext(ctx, &next, issueToken, current.DoctorID, current.Date); err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			token = &next
		}

		update := `
			UPDATE appointments
			SET status = $1, token_number = COALESCE(token_number, $2),
				video_link = COALESCE(video_link, $3), updated_at = NOW()
			WHERE id = $4
			RETURNING ` + appointmentColumns
		if err := tx.GetContext(ctx, &confirmed, update, model.AppointmentStatusConfirmed, *token, videoLink, id); err != nil {
			return fmt.Errorf("failed to confirm appointment: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &confirmed, nil
}
