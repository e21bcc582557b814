package appointment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/auth"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

const (
	paymentSyncAttempts = 3
	paymentSyncDelay    = 200 * time.Millisecond
)

type SlotReleaser interface {
	ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date string, match model.SlotMatch) error
}

type PaymentUpdater interface {
	GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error)
	SetPaymentStatus(ctx context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error
}

type RecordCreator interface {
	CreateMedicalRecord(ctx context.Context, apt *model.Appointment, data *model.ClinicalData) (*model.MedicalRecord, error)
}

type Notifier interface {
	SendAppointmentEmail(ctx context.Context, contact model.Contact, kind model.NotificationKind, details model.AppointmentDetails) error
}

type PatientLookup interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
}

type DoctorLookup interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error)
}

// Actor is the authenticated principal driving a transition
type Actor struct {
	ID   uuid.UUID
	Role auth.Role
}

type Config struct {
	// VideoLinkBaseURL prefixes generated online consultation rooms
	VideoLinkBaseURL string
}

// transitions lists the statuses reachable through UpdateStatus
var transitions = map[model.AppointmentStatus][]model.AppointmentStatus{
	model.AppointmentStatusPending:    {model.AppointmentStatusConfirmed, model.AppointmentStatusCancelled},
	model.AppointmentStatusConfirmed:  {model.AppointmentStatusWithDoctor, model.AppointmentStatusCancelled},
	model.AppointmentStatusWithDoctor: {model.AppointmentStatusCompleted, model.AppointmentStatusCancelled},
}

func allowed(from, to model.AppointmentStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type Service struct {
	repo     repository.AppointmentRepository
	outbox   repository.OutboxRepository
	slots    SlotReleaser
	payments PaymentUpdater
	records  RecordCreator
	notifier Notifier
	patients PatientLookup
	doctors  DoctorLookup
	config   Config
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewService(
	repo repository.AppointmentRepository,
	outbox repository.OutboxRepository,
	slots SlotReleaser,
	payments PaymentUpdater,
	records RecordCreator,
	notifier Notifier,
	patients PatientLookup,
	doctors DoctorLookup,
	config Config,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	if config.VideoLinkBaseURL == "" {
		config.VideoLinkBaseURL = "https://meet.hospital.local"
	}
	return &Service{
		repo:     repo,
		outbox:   outbox,
		slots:    slots,
		payments: payments,
		records:  records,
		notifier: notifier,
		patients: patients,
		doctors:  doctors,
		config:   config,
		logger:   logger,
		metrics:  metrics,
	}
}

func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListAppointments(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error) {
	return s.repo.List(ctx, filters)
}

// UpdateStatus applies a doctor or staff driven transition. Re-applying a
// cancellation retries its slot release; other repeats are no-ops.
func (s *Service) UpdateStatus(ctx context.Context, actor Actor, id uuid.UUID, target model.AppointmentStatus, clinical *model.ClinicalData) (*model.Appointment, error) {
	if !target.Valid() {
		return nil, apperrors.Validation(apperrors.CodeInvalidStatus, fmt.Sprintf("unknown status %q", target))
	}
	if target == model.AppointmentStatusMissed || target == model.AppointmentStatusHospitalCancelled {
		return nil, apperrors.Validation(apperrors.CodeInvalidStatus,
			fmt.Sprintf("status %q is set administratively", target))
	}

	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authorize(actor, apt); err != nil {
		return nil, err
	}

	if apt.Status == target {
		if target == model.AppointmentStatusCancelled {
			return apt, s.releaseSlot(ctx, apt)
		}
		return apt, nil
	}
	if !allowed(apt.Status, target) {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("cannot move appointment from %s to %s", apt.Status, target))
	}

	switch target {
	case model.AppointmentStatusConfirmed:
		return s.confirm(ctx, apt)
	case model.AppointmentStatusCompleted:
		return s.complete(ctx, apt, clinical)
	case model.AppointmentStatusCancelled:
		return s.cancel(ctx, apt, model.AppointmentStatusCancelled, nil, model.NotificationCancelled)
	default:
		updated, err := s.repo.TransitionStatus(ctx, apt.ID, apt.Status, target, nil)
		if err != nil {
			return nil, err
		}
		s.applied(ctx, apt.Status, updated)
		return updated, nil
	}
}

// CancelByPatient cancels an appointment on the owning patient's request
func (s *Service) CancelByPatient(ctx context.Context, patientID, id uuid.UUID, reason string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.PatientID != patientID {
		return nil, apperrors.Unauthorized("appointment belongs to another patient")
	}
	if apt.Status == model.AppointmentStatusCancelled {
		return apt, s.releaseSlot(ctx, apt)
	}
	if !allowed(apt.Status, model.AppointmentStatusCancelled) {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("cannot cancel a %s appointment", apt.Status))
	}
	return s.cancel(ctx, apt, model.AppointmentStatusCancelled, optional(reason), model.NotificationCancelled)
}

// HospitalCancel force-cancels an appointment on the hospital's behalf,
// refunding a settled payment. It is idempotent: an appointment that is
// already cancelled only has its slot release retried, and completed or
// missed appointments are left alone.
func (s *Service) HospitalCancel(ctx context.Context, id uuid.UUID, reason string) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.Status.Cancelled() {
		return apt, s.releaseSlot(ctx, apt)
	}
	if apt.Status.Terminal() {
		return apt, nil
	}

	updated, err := s.cancel(ctx, apt, model.AppointmentStatusHospitalCancelled, optional(reason), model.NotificationLeaveCancelled)
	if updated == nil {
		return nil, err
	}

	if pay, perr := s.payments.GetByAppointment(ctx, id); perr == nil && pay.Status == model.PaymentStatusPaid {
		if rerr := s.syncPayment(ctx, id, model.PaymentStatusRefunded); rerr != nil {
			s.logger.Error(rerr, "Failed to refund payment", "appointment_id", id.String())
		}
	}
	return updated, err
}

// MarkMissed records a no-show. It is an administrative action only.
func (s *Service) MarkMissed(ctx context.Context, id uuid.UUID) (*model.Appointment, error) {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if apt.Status == model.AppointmentStatusMissed {
		return apt, nil
	}
	if apt.Status.Terminal() {
		return nil, apperrors.Conflict(apperrors.CodeInvalidTransition,
			fmt.Sprintf("cannot mark a %s appointment as missed", apt.Status))
	}

	updated, err := s.repo.TransitionStatus(ctx, apt.ID, apt.Status, model.AppointmentStatusMissed, nil)
	if err != nil {
		return nil, err
	}
	s.applied(ctx, apt.Status, updated)
	return updated, nil
}

// DeleteAppointment removes the record, freeing its slot first if it still holds one
func (s *Service) DeleteAppointment(ctx context.Context, id uuid.UUID) error {
	apt, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if !apt.Status.Cancelled() {
		if err := s.releaseSlot(ctx, apt); err != nil {
			return err
		}
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete appointment: %w", err)
	}
	s.logger.Info("Appointment deleted", "appointment_id", id.String())
	return nil
}

func (s *Service) confirm(ctx context.Context, apt *model.Appointment) (*model.Appointment, error) {
	var link *string
	if apt.ConsultationType == model.ConsultationOnline && apt.VideoLink == nil {
		generated := s.videoLink(apt)
		link = &generated
	}

	updated, err := s.repo.Confirm(ctx, apt.ID, apt.Status, link)
	if err != nil {
		return nil, err
	}

	if err := s.syncPayment(ctx, apt.ID, model.PaymentStatusPaid); err != nil {
		s.logger.Error(err, "Failed to mark payment paid", "appointment_id", apt.ID.String())
	}

	s.applied(ctx, apt.Status, updated)
	s.notify(ctx, updated, model.NotificationConfirmed, "")
	return updated, nil
}

func (s *Service) complete(ctx context.Context, apt *model.Appointment, clinical *model.ClinicalData) (*model.Appointment, error) {
	var record *model.MedicalRecord
	if !clinical.Empty() {
		var err error
		record, err = s.records.CreateMedicalRecord(ctx, apt, clinical)
		if err != nil {
			return nil, err
		}
	}

	updated, err := s.repo.TransitionStatus(ctx, apt.ID, apt.Status, model.AppointmentStatusCompleted, nil)
	if err != nil {
		if record != nil {
			s.logger.Warn(err, "Medical record left unlinked", "record_id", record.ID.String())
		}
		return nil, err
	}

	if record != nil {
		updated.MedicalRecordID = &record.ID
		if err := s.repo.Update(ctx, updated); err != nil {
			return nil, fmt.Errorf("failed to link medical record: %w", err)
		}
	}

	s.applied(ctx, apt.Status, updated)
	return updated, nil
}

// cancel moves apt into a cancelled status, then frees its slot. A release
// failure is returned alongside the committed appointment.
func (s *Service) cancel(ctx context.Context, apt *model.Appointment, status model.AppointmentStatus, reason *string, kind model.NotificationKind) (*model.Appointment, error) {
	updated, err := s.repo.TransitionStatus(ctx, apt.ID, apt.Status, status, reason)
	if err != nil {
		return nil, err
	}
	s.applied(ctx, apt.Status, updated)

	releaseErr := s.releaseSlot(ctx, updated)
	var why string
	if reason != nil {
		why = *reason
	}
	s.notify(ctx, updated, kind, why)
	return updated, releaseErr
}

func (s *Service) releaseSlot(ctx context.Context, apt *model.Appointment) error {
	err := s.slots.ReleaseSlot(ctx, apt.DoctorID, apt.AppointmentDate, apt.SlotMatch())
	if err == nil || apperrors.IsKind(err, apperrors.KindNotFound) {
		// A deleted schedule or slot has nothing left to free
		return nil
	}
	return fmt.Errorf("failed to release slot: %w", err)
}

// syncPayment retries the payment write. The appointment transition has
// already been committed and stands whether this succeeds or not.
func (s *Service) syncPayment(ctx context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error {
	var err error
	for attempt := 0; attempt < paymentSyncAttempts; attempt++ {
		if err = s.payments.SetPaymentStatus(ctx, appointmentID, status); err == nil {
			return nil
		}
		if attempt < paymentSyncAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(paymentSyncDelay):
			}
		}
	}
	return err
}

// applied records a committed transition: metrics and the outbox status event
func (s *Service) applied(ctx context.Context, from model.AppointmentStatus, apt *model.Appointment) {
	s.metrics.AppointmentTransition.WithLabelValues(string(apt.Status)).Inc()

	payload, err := json.Marshal(model.StatusEvent{
		AppointmentID: apt.ID,
		PatientID:     apt.PatientID,
		DoctorID:      apt.DoctorID,
		From:          from,
		To:            apt.Status,
		OccurredAt:    time.Now().UTC(),
	})
	if err == nil {
		err = s.outbox.Create(ctx, &model.OutboxEvent{
			EventType: model.EventAppointmentStatusChanged,
			Payload:   payload,
		})
	}
	if err != nil {
		s.logger.Warn(err, "Failed to record status event", "appointment_id", apt.ID.String())
	}

	s.logger.Info("Appointment status updated",
		"appointment_id", apt.ID.String(),
		"from", string(from),
		"to", string(apt.Status))
}

// notify is best-effort; failures are logged and never fail the transition
func (s *Service) notify(ctx context.Context, apt *model.Appointment, kind model.NotificationKind, reason string) {
	patient, err := s.patients.GetPatient(ctx, apt.PatientID)
	if err != nil {
		s.logger.Warn(err, "Notification skipped, patient lookup failed", "appointment_id", apt.ID.String())
		return
	}

	details := model.AppointmentDetails{
		AppointmentID:    apt.ID,
		Date:             apt.AppointmentDate,
		TimeSlot:         apt.TimeSlot(),
		ConsultationType: apt.ConsultationType,
		TokenNumber:      apt.TokenNumber,
		VideoLink:        apt.VideoLink,
		Reason:           reason,
	}
	if doc, err := s.doctors.GetProfile(ctx, apt.DoctorID); err == nil {
		details.DoctorName = doc.Name
	}

	if err := s.notifier.SendAppointmentEmail(ctx, patient.Contact(), kind, details); err != nil {
		s.logger.Warn(err, "Failed to send appointment notification",
			"appointment_id", apt.ID.String(),
			"kind", string(kind))
	}
}

func (s *Service) videoLink(apt *model.Appointment) string {
	return strings.TrimRight(s.config.VideoLinkBaseURL, "/") + "/" + apt.ID.String()
}

// authorize lets a doctor act only on their own appointments. Staff roles
// may act on any appointment; patients go through CancelByPatient.
func authorize(actor Actor, apt *model.Appointment) error {
	switch actor.Role {
	case auth.RoleDoctor:
		if apt.DoctorID != actor.ID {
			return apperrors.Unauthorized("appointment belongs to another doctor")
		}
		return nil
	case auth.RoleReceptionist, auth.RoleAdmin, auth.RoleSuperAdmin:
		return nil
	default:
		return apperrors.Unauthorized("not allowed to change appointment status")
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
