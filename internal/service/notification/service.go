package notification

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

// Service queues patient notifications on the outbox. Delivery happens in
// the worker, so a send never blocks or fails the caller's transition.
type Service struct {
	outbox repository.OutboxRepository
	logger *logger.Logger
}

func NewService(outbox repository.OutboxRepository, logger *logger.Logger) *Service {
	return &Service{
		outbox: outbox,
		logger: logger,
	}
}

func (s *Service) SendAppointmentEmail(ctx context.Context, contact model.Contact, kind model.NotificationKind, details model.AppointmentDetails) error {
	if contact.Email == "" && contact.Phone == "" {
		s.logger.Debug("Notification skipped, patient has no contact", "appointment_id", details.AppointmentID.String())
		return nil
	}

	payload, err := json.Marshal(model.NotificationRequest{
		Kind:    kind,
		Contact: contact,
		Details: details,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	event := &model.OutboxEvent{
		EventType: model.EventNotificationRequested,
		Payload:   payload,
	}
	if err := s.outbox.Create(ctx, event); err != nil {
		return apperrors.Dependency(apperrors.CodeNotificationFailed, "failed to queue notification", err)
	}
	return nil
}
