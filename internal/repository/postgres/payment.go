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

const paymentColumns = `id, appointment_id, patient_id, amount, method, status, channel, created_at, updated_at`

type paymentRepository struct {
	BaseRepository
}

func NewPaymentRepository(base BaseRepository) repository.PaymentRepository {
	return &paymentRepository{base}
}

func (r *paymentRepository) Create(ctx context.Context, payment *model.Payment) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (:id, :appointment_id, :patient_id, :amount, :method, :status, :channel, :created_at, :updated_at)
	`
	if payment.ID == uuid.Nil {
		payment.ID = uuid.New()
	}
	payment.CreatedAt = time.Now()
	payment.UpdatedAt = payment.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (r *paymentRepository) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE appointment_id = $1`

	var payment model.Payment
	if err := r.db.GetContext(ctx, &payment, query, appointmentID); err != nil {
		if isNoRows(err) {
			return nil, apperrors.NotFound(apperrors.CodeAppointmentNotFound, "payment for appointment")
		}
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return &payment, nil
}

func (r *paymentRepository) UpdateStatusByAppointment(ctx context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error {
	query := `UPDATE payments SET status = $1, updated_at = NOW() WHERE appointment_id = $2`
	if _, err := r.db.ExecContext(ctx, query, status, appointmentID); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	return nil
}
