package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/internal/service/payment"
	"github.com/jwalitptl/hospital-api/internal/service/schedule"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

// compensationTimeout bounds the rollback of a failed booking. Rollback runs
// detached from the request so a cancelled or timed out request still frees
// its slot.
const compensationTimeout = 5 * time.Second

type ScheduleStore interface {
	GetSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*model.DaySchedule, error)
	ReserveSlot(ctx context.Context, doctorID uuid.UUID, date string, match model.SlotMatch) (*model.Slot, error)
	ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date string, match model.SlotMatch) error
}

type PatientStore interface {
	GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error)
	FindOrCreate(ctx context.Context, match model.PatientMatch) (*model.Patient, error)
}

type PaymentCreator interface {
	CreatePayment(ctx context.Context, payment *model.Payment) error
}

// Request describes one booking attempt. Either PatientID is set by an
// authenticated caller or NewPatient carries self-service details. The slot
// is chosen by SlotID or by TimeSlot.
type Request struct {
	PatientID             uuid.UUID
	NewPatient            *model.PatientMatch
	DoctorID              uuid.UUID
	Date                  string
	TimeSlot              model.TimeRange
	SlotID                uuid.UUID
	ConsultationType      model.ConsultationType
	PaymentMethod         model.PaymentMethod
	Channel               model.PaymentChannel
	CreatedBy             *uuid.UUID
	PreviousAppointmentID *uuid.UUID
}

type Result struct {
	Appointment *model.Appointment `json:"appointment"`
	Payment     *model.Payment     `json:"payment"`
	Fee         float64            `json:"fee"`
}

type Service struct {
	appointments repository.AppointmentRepository
	schedules    ScheduleStore
	patients     PatientStore
	payments     PaymentCreator
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewService(
	appointments repository.AppointmentRepository,
	schedules ScheduleStore,
	patients PatientStore,
	payments PaymentCreator,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		appointments: appointments,
		schedules:    schedules,
		patients:     patients,
		payments:     payments,
		logger:       logger,
		metrics:      metrics,
	}
}

// BookAppointment reserves the requested slot and creates a pending
// appointment with its payment. Either everything is persisted or the
// slot is released again.
func (s *Service) BookAppointment(ctx context.Context, req *Request) (*Result, error) {
	res, err := s.book(ctx, req)
	s.metrics.Bookings.WithLabelValues(bookingResult(err)).Inc()
	return res, err
}

func (s *Service) book(ctx context.Context, req *Request) (*Result, error) {
	if err := s.validate(req); err != nil {
		return nil, err
	}

	patient, err := s.resolvePatient(ctx, req)
	if err != nil {
		return nil, err
	}

	var previous *model.Appointment
	if req.PreviousAppointmentID != nil {
		previous, err = s.appointments.Get(ctx, *req.PreviousAppointmentID)
		if err != nil {
			return nil, err
		}
		if previous.PatientID != patient.ID {
			return nil, apperrors.Validation(apperrors.CodeInvalidInput, "previous appointment belongs to another patient")
		}
	}

	sched, err := s.schedules.GetSchedule(ctx, req.DoctorID, req.Date)
	if err != nil {
		return nil, err
	}

	match, err := requestedSlot(sched, req)
	if err != nil {
		return nil, err
	}

	doubleBooked, err := s.appointments.ExistsForPatientSlot(ctx, patient.ID, req.Date, match.StartMinute, match.EndMinute)
	if err != nil {
		return nil, fmt.Errorf("failed to check patient appointments: %w", err)
	}
	if doubleBooked {
		return nil, apperrors.ErrPatientDoubleBooked
	}

	slot, err := s.schedules.ReserveSlot(ctx, req.DoctorID, req.Date, match)
	if err != nil {
		if apperrors.IsCode(err, apperrors.CodeSlotAlreadyBooked) {
			return nil, apperrors.ErrSlotUnavailable
		}
		return nil, err
	}

	fee := schedule.Fee(*slot, req.ConsultationType)
	apt := &model.Appointment{
		PatientID:             patient.ID,
		DoctorID:              req.DoctorID,
		CreatedBy:             req.CreatedBy,
		AppointmentDate:       req.Date,
		SlotID:                slot.ID,
		SlotStart:             slot.Start,
		SlotEnd:               slot.End,
		StartMinute:           slot.StartMinute,
		EndMinute:             slot.EndMinute,
		ConsultationType:      req.ConsultationType,
		Status:                model.AppointmentStatusPending,
		Fee:                   fee,
		PreviousAppointmentID: req.PreviousAppointmentID,
	}
	if err := s.appointments.Create(ctx, apt); err != nil {
		s.release(ctx, req, slot)
		return nil, fmt.Errorf("failed to create appointment: %w", err)
	}

	pay := &model.Payment{
		AppointmentID: apt.ID,
		PatientID:     patient.ID,
		Amount:        fee,
		Method:        req.PaymentMethod,
		Status:        model.PaymentStatusPending,
		Channel:       req.Channel,
	}
	if req.Channel == model.PaymentChannelWalkIn && req.PaymentMethod == model.PaymentMethodCash {
		pay.Status = model.PaymentStatusPaid
	}
	if err := s.payments.CreatePayment(ctx, pay); err != nil {
		s.rollbackAppointment(ctx, apt.ID)
		s.release(ctx, req, slot)
		return nil, fmt.Errorf("failed to create payment: %w", err)
	}

	if previous != nil {
		id := apt.ID
		previous.NextAppointmentID = &id
		if err := s.appointments.Update(ctx, previous); err != nil {
			s.logger.Warn(err, "Failed to link follow-up appointment",
				"appointment_id", apt.ID.String(),
				"previous_appointment_id", previous.ID.String())
		}
	}

	s.logger.Info("Appointment booked",
		"appointment_id", apt.ID.String(),
		"doctor_id", apt.DoctorID.String(),
		"date", apt.AppointmentDate,
		"slot", apt.TimeSlot().String())

	return &Result{Appointment: apt, Payment: pay, Fee: fee}, nil
}

func (s *Service) validate(req *Request) error {
	if _, err := model.ParseDate(req.Date); err != nil {
		return apperrors.Validation(apperrors.CodeInvalidDate, err.Error())
	}
	if req.DoctorID == uuid.Nil {
		return apperrors.Validation(apperrors.CodeInvalidInput, "doctor is required")
	}
	if req.SlotID == uuid.Nil {
		if req.TimeSlot.Start == "" || req.TimeSlot.End == "" {
			return apperrors.Validation(apperrors.CodeInvalidTimeSlot, "time slot start and end are required")
		}
		start, end, err := schedule.ParseRange(req.TimeSlot.Start, req.TimeSlot.End)
		if err != nil {
			return apperrors.Validation(apperrors.CodeInvalidTimeSlot, err.Error())
		}
		if start >= end {
			return apperrors.Validation(apperrors.CodeInvalidTimeSlot, "time slot must start before it ends")
		}
	}
	if !req.ConsultationType.Valid() {
		return apperrors.Validation(apperrors.CodeInvalidConsultationType,
			fmt.Sprintf("unknown consultation type %q", req.ConsultationType))
	}

	if req.Channel == "" {
		req.Channel = model.PaymentChannelOffline
		if req.ConsultationType == model.ConsultationOnline {
			req.Channel = model.PaymentChannelOnline
		}
	}
	if req.Channel == model.PaymentChannelWalkIn && req.ConsultationType != model.ConsultationOffline {
		return apperrors.Validation(apperrors.CodeInvalidConsultationType, "walk-in bookings are offline consultations")
	}
	if req.Channel == model.PaymentChannelOnline && req.ConsultationType != model.ConsultationOnline {
		req.Channel = model.PaymentChannelOffline
	}
	return payment.ValidateMethod(req.Channel, req.PaymentMethod)
}

func (s *Service) resolvePatient(ctx context.Context, req *Request) (*model.Patient, error) {
	if req.PatientID != uuid.Nil {
		return s.patients.GetPatient(ctx, req.PatientID)
	}
	if req.NewPatient == nil {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "patient is required")
	}
	return s.patients.FindOrCreate(ctx, *req.NewPatient)
}

// requestedSlot resolves the request to the minute bounds of a slot in sched
func requestedSlot(sched *model.DaySchedule, req *Request) (model.SlotMatch, error) {
	if req.SlotID != uuid.Nil {
		for _, slot := range sched.Slots {
			if slot.ID == req.SlotID {
				return model.SlotMatch{SlotID: slot.ID, StartMinute: slot.StartMinute, EndMinute: slot.EndMinute}, nil
			}
		}
		return model.SlotMatch{}, apperrors.ErrSlotNotFound
	}

	start, end, err := schedule.ParseRange(req.TimeSlot.Start, req.TimeSlot.End)
	if err != nil {
		return model.SlotMatch{}, apperrors.Validation(apperrors.CodeInvalidTimeSlot, err.Error())
	}
	return model.SlotMatch{StartMinute: start, EndMinute: end}, nil
}

func compensationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}

func (s *Service) rollbackAppointment(ctx context.Context, id uuid.UUID) {
	ctx, cancel := compensationContext(ctx)
	defer cancel()
	if err := s.appointments.Delete(ctx, id); err != nil {
		s.logger.Error(err, "Failed to roll back appointment", "appointment_id", id.String())
	}
}

func (s *Service) release(ctx context.Context, req *Request, slot *model.Slot) {
	ctx, cancel := compensationContext(ctx)
	defer cancel()
	match := model.SlotMatch{SlotID: slot.ID, StartMinute: slot.StartMinute, EndMinute: slot.EndMinute}
	if err := s.schedules.ReleaseSlot(ctx, req.DoctorID, req.Date, match); err != nil {
		s.logger.Error(err, "Failed to release slot after booking failure",
			"doctor_id", req.DoctorID.String(),
			"date", req.Date,
			"slot", slot.Range().String())
	}
}

func bookingResult(err error) string {
	switch {
	case err == nil:
		return "success"
	case apperrors.IsKind(err, apperrors.KindConflict):
		return "conflict"
	case apperrors.IsKind(err, apperrors.KindValidation), apperrors.IsKind(err, apperrors.KindNotFound):
		return "rejected"
	default:
		return "error"
	}
}
