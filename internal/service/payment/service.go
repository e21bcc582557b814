package payment

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

// allowedMethods lists the payment methods each booking channel accepts
var allowedMethods = map[model.PaymentChannel][]model.PaymentMethod{
	model.PaymentChannelOnline:  {model.PaymentMethodUPI, model.PaymentMethodCard, model.PaymentMethodNetBanking},
	model.PaymentChannelOffline: {model.PaymentMethodCash, model.PaymentMethodCard},
	model.PaymentChannelWalkIn:  {model.PaymentMethodCash, model.PaymentMethodCard},
}

// ValidateMethod checks method against the channel's allowed set
func ValidateMethod(channel model.PaymentChannel, method model.PaymentMethod) error {
	for _, allowed := range allowedMethods[channel] {
		if allowed == method {
			return nil
		}
	}
	return apperrors.Validation(apperrors.CodeInvalidPaymentMethod,
		fmt.Sprintf("payment method %q is not accepted for %s bookings", method, channel))
}

type Service struct {
	repo   repository.PaymentRepository
	logger *logger.Logger
}

func NewService(repo repository.PaymentRepository, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) CreatePayment(ctx context.Context, payment *model.Payment) error {
	if payment.AppointmentID == uuid.Nil {
		return apperrors.Validation(apperrors.CodeInvalidInput, "appointment is required")
	}
	if payment.Status == "" {
		payment.Status = model.PaymentStatusPending
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

func (s *Service) GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error) {
	return s.repo.GetByAppointment(ctx, appointmentID)
}

func (s *Service) SetPaymentStatus(ctx context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error {
	if err := s.repo.UpdateStatusByAppointment(ctx, appointmentID, status); err != nil {
		return fmt.Errorf("failed to update payment status: %w", err)
	}
	s.logger.Debug("Payment status updated", "appointment_id", appointmentID.String(), "status", string(status))
	return nil
}
