package repository

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// OutboxClaimLease is how long a claimed outbox event belongs to its
// processor before another one may take it back
const OutboxClaimLease = 5 * time.Minute

// All repository interfaces in one file
type (
	DoctorRepository interface {
		Create(ctx context.Context, doctor *model.DoctorProfile) error
		Get(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error)
		Update(ctx context.Context, doctor *model.DoctorProfile) error
		ListAvailable(ctx context.Context) ([]*model.DoctorProfile, error)
	}

	// ScheduleRepository owns day schedules and their slots. Slot booking
	// flags are only ever changed through conditional writes.
	ScheduleRepository interface {
		// CreateIfAbsent inserts the schedule with its slots unless one already
		// exists for (doctor, date). It reports whether this call created it.
		CreateIfAbsent(ctx context.Context, schedule *model.DaySchedule) (bool, error)
		GetByDoctorAndDate(ctx context.Context, doctorID uuid.UUID, date string) (*model.DaySchedule, error)
		ListByDoctor(ctx context.Context, doctorID uuid.UUID, from, to string) ([]*model.DaySchedule, error)
		// ReserveSlot flips is_booked false->true. ErrSlotNotFound when no slot
		// matches, ErrSlotAlreadyBooked when the flag was already set.
		ReserveSlot(ctx context.Context, scheduleID uuid.UUID, match model.SlotMatch) (*model.Slot, error)
		// ReleaseSlot clears is_booked; releasing a free slot is a no-op.
		ReleaseSlot(ctx context.Context, scheduleID uuid.UUID, match model.SlotMatch) (*model.Slot, error)
		SetAvailability(ctx context.Context, doctorID uuid.UUID, from, to string, available bool) (int, error)
		// ReplaceSlots swaps the free slots of a schedule for a new grid. Booked
		// slots survive and must all be present in the new grid.
		ReplaceSlots(ctx context.Context, schedule *model.DaySchedule) error
		// Delete removes a schedule that has no booked slot.
		Delete(ctx context.Context, scheduleID uuid.UUID) error
	}

	AppointmentRepository interface {
		Create(ctx context.Context, appointment *model.Appointment) error
		Get(ctx context.Context, id uuid.UUID) (*model.Appointment, error)
		Update(ctx context.Context, appointment *model.Appointment) error
		Delete(ctx context.Context, id uuid.UUID) error
		List(ctx context.Context, filters *model.AppointmentFilters) ([]*model.Appointment, error)
		// ExistsForPatientSlot reports a live appointment for the patient at
		// exactly this date and slot.
		ExistsForPatientSlot(ctx context.Context, patientID uuid.UUID, date string, startMinute, endMinute int) (bool, error)
		// TransitionStatus moves the appointment from -> to only if it is still in from.
		TransitionStatus(ctx context.Context, id uuid.UUID, from, to model.AppointmentStatus, reason *string) (*model.Appointment, error)
		// Confirm moves the appointment to confirmed and, in the same
		// transaction, assigns the next token from the doctor's per-day
		// counter if none is set and stores videoLink if none is set. Tokens
		// are never reissued, even after an appointment is deleted.
		Confirm(ctx context.Context, id uuid.UUID, from model.AppointmentStatus, videoLink *string) (*model.Appointment, error)
	}

	PatientRepository interface {
		Create(ctx context.Context, patient *model.Patient) error
		Get(ctx context.Context, id uuid.UUID) (*model.Patient, error)
		FindByEmail(ctx context.Context, email string) (*model.Patient, error)
		FindByPhone(ctx context.Context, phone string) (*model.Patient, error)
	}

	PaymentRepository interface {
		Create(ctx context.Context, payment *model.Payment) error
		GetByAppointment(ctx context.Context, appointmentID uuid.UUID) (*model.Payment, error)
		UpdateStatusByAppointment(ctx context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error
	}

	MedicalRecordRepository interface {
		Create(ctx context.Context, record *model.MedicalRecord) error
		Get(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error)
		ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error)
	}

	LeaveRepository interface {
		Create(ctx context.Context, leave *model.LeaveRequest) error
		Get(ctx context.Context, id uuid.UUID) (*model.LeaveRequest, error)
		List(ctx context.Context, doctorID uuid.UUID, status model.LeaveStatus) ([]*model.LeaveRequest, error)
		// Decide moves a pending leave to approved or rejected. Returns
		// ErrInvalidState when the leave was already decided.
		Decide(ctx context.Context, id uuid.UUID, status model.LeaveStatus, decidedBy uuid.UUID) (*model.LeaveRequest, error)
		MarkEffectsCompleted(ctx context.Context, id uuid.UUID) error
		ListIncomplete(ctx context.Context) ([]*model.LeaveRequest, error)
		// ApprovedOn reports whether an approved leave of the doctor covers date
		ApprovedOn(ctx context.Context, doctorID uuid.UUID, date string) (bool, error)
	}

	OutboxRepository interface {
		Create(ctx context.Context, event *model.OutboxEvent) error
		// GetPendingEvents claims up to limit events by moving them to
		// processing. Pending events qualify, as do processing ones whose
		// claim is older than OutboxClaimLease. A claimed event is not handed
		// out again until its claim goes stale.
		GetPendingEvents(ctx context.Context, limit int) ([]*model.OutboxEvent, error)
		UpdateStatus(ctx context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error
		DeleteProcessedBefore(ctx context.Context, before time.Time) (int64, error)
	}
)
