package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

// EmailSender delivers a rendered message by email
type EmailSender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// SMSSender delivers a rendered message by text
type SMSSender interface {
	Send(ctx context.Context, to, body string) error
}

// Dispatcher renders notification requests and hands them to the
// delivery channels. SMS is optional.
type Dispatcher struct {
	email   EmailSender
	sms     SMSSender
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewDispatcher(email EmailSender, sms SMSSender, logger *logger.Logger, metrics *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		email:   email,
		sms:     sms,
		logger:  logger,
		metrics: metrics,
	}
}

// HandleMessage is the messaging.Handler for the appointment events channel
func (d *Dispatcher) HandleMessage(ctx context.Context, raw []byte) error {
	var msg messaging.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}

	switch msg.Type {
	case model.EventNotificationRequested:
		var req model.NotificationRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return fmt.Errorf("failed to decode notification %s: %w", msg.ID, err)
		}
		return d.Dispatch(ctx, &req)
	case model.EventAppointmentStatusChanged:
		var event model.StatusEvent
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return fmt.Errorf("failed to decode status event %s: %w", msg.ID, err)
		}
		d.logger.Info("Appointment status changed",
			"appointment_id", event.AppointmentID.String(),
			"from", string(event.From),
			"to", string(event.To))
		return nil
	default:
		d.logger.Debug("Ignoring message", "type", msg.Type)
		return nil
	}
}

// Dispatch sends req on every channel the contact can be reached on. An
// error is returned only when no channel succeeded.
func (d *Dispatcher) Dispatch(ctx context.Context, req *model.NotificationRequest) error {
	subject, body := Render(req)

	var (
		sent bool
		errs []string
	)
	if req.Contact.Email != "" && d.email != nil {
		if err := d.email.Send(ctx, req.Contact.Email, subject, body); err != nil {
			d.record(model.ChannelEmail, err)
			errs = append(errs, "email: "+err.Error())
		} else {
			d.record(model.ChannelEmail, nil)
			sent = true
		}
	}
	if req.Contact.Phone != "" && d.sms != nil {
		if err := d.sms.Send(ctx, req.Contact.Phone, subject+"\n"+body); err != nil {
			d.record(model.ChannelSMS, err)
			errs = append(errs, "sms: "+err.Error())
		} else {
			d.record(model.ChannelSMS, nil)
			sent = true
		}
	}

	if !sent && len(errs) > 0 {
		return fmt.Errorf("notification for appointment %s not delivered: %s",
			req.Details.AppointmentID, strings.Join(errs, "; "))
	}
	return nil
}

func (d *Dispatcher) record(channel model.NotificationChannel, err error) {
	result := "success"
	if err != nil {
		result = "error"
		d.logger.Warn(err, "Notification delivery failed", "channel", string(channel))
	}
	d.metrics.Notifications.WithLabelValues(string(channel), result).Inc()
}

// Render builds the subject and plain text body for a notification
func Render(req *model.NotificationRequest) (string, string) {
	det := req.Details
	var b strings.Builder
	fmt.Fprintf(&b, "Dear %s,\n\n", nameOr(req.Contact.Name, "Patient"))

	var subject string
	switch req.Kind {
	case model.NotificationConfirmed:
		subject = "Appointment confirmed"
		fmt.Fprintf(&b, "Your %s appointment", det.ConsultationType)
		if det.DoctorName != "" {
			fmt.Fprintf(&b, " with %s", det.DoctorName)
		}
		fmt.Fprintf(&b, " on %s at %s is confirmed.\n", det.Date, det.TimeSlot.Start)
		if det.TokenNumber != nil {
			fmt.Fprintf(&b, "Your token number is %d.\n", *det.TokenNumber)
		}
		if det.VideoLink != nil {
			fmt.Fprintf(&b, "Join the consultation at %s\n", *det.VideoLink)
		}
	case model.NotificationLeaveCancelled:
		subject = "Appointment cancelled by the hospital"
		fmt.Fprintf(&b, "We are sorry, your appointment on %s at %s has been cancelled because the doctor is on leave.\n",
			det.Date, det.TimeSlot.Start)
		b.WriteString("Any payment made will be refunded. Please book another slot.\n")
	default:
		subject = "Appointment cancelled"
		fmt.Fprintf(&b, "Your appointment on %s at %s has been cancelled.\n", det.Date, det.TimeSlot.Start)
		if det.Reason != "" {
			fmt.Fprintf(&b, "Reason: %s\n", det.Reason)
		}
	}

	return subject, b.String()
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}
