package model

import (
	"time"

	"github.com/google/uuid"
)

type AppointmentStatus string

const (
	AppointmentStatusPending           AppointmentStatus = "pending"
	AppointmentStatusConfirmed         AppointmentStatus = "confirmed"
	AppointmentStatusWithDoctor        AppointmentStatus = "with_doctor"
	AppointmentStatusCompleted         AppointmentStatus = "completed"
	AppointmentStatusCancelled         AppointmentStatus = "cancelled"
	AppointmentStatusHospitalCancelled AppointmentStatus = "hospital_cancelled"
	AppointmentStatusMissed            AppointmentStatus = "missed"
)

// Valid reports whether s is one of the enumerated statuses
func (s AppointmentStatus) Valid() bool {
	switch s {
	case AppointmentStatusPending, AppointmentStatusConfirmed, AppointmentStatusWithDoctor,
		AppointmentStatusCompleted, AppointmentStatusCancelled, AppointmentStatusHospitalCancelled,
		AppointmentStatusMissed:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are allowed
func (s AppointmentStatus) Terminal() bool {
	switch s {
	case AppointmentStatusCompleted, AppointmentStatusCancelled,
		AppointmentStatusHospitalCancelled, AppointmentStatusMissed:
		return true
	}
	return false
}

// Cancelled covers both patient and hospital initiated cancellation
func (s AppointmentStatus) Cancelled() bool {
	return s == AppointmentStatusCancelled || s == AppointmentStatusHospitalCancelled
}

type ConsultationType string

const (
	ConsultationOnline  ConsultationType = "online"
	ConsultationOffline ConsultationType = "offline"
)

func (c ConsultationType) Valid() bool {
	return c == ConsultationOnline || c == ConsultationOffline
}

type Appointment struct {
	Base
	PatientID             uuid.UUID         `db:"patient_id" json:"patient_id"`
	DoctorID              uuid.UUID         `db:"doctor_id" json:"doctor_id"`
	CreatedBy             *uuid.UUID        `db:"created_by" json:"created_by,omitempty"`
	AppointmentDate       string            `db:"appointment_date" json:"appointment_date"`
	SlotID                uuid.UUID         `db:"slot_id" json:"slot_id"`
	SlotStart             string            `db:"slot_start" json:"slot_start"`
	SlotEnd               string            `db:"slot_end" json:"slot_end"`
	StartMinute           int               `db:"start_minute" json:"-"`
	EndMinute             int               `db:"end_minute" json:"-"`
	ConsultationType      ConsultationType  `db:"consultation_type" json:"consultation_type"`
	Status                AppointmentStatus `db:"status" json:"status"`
	TokenNumber           *int              `db:"token_number" json:"token_number,omitempty"`
	VideoLink             *string           `db:"video_link" json:"video_link,omitempty"`
	Fee                   float64           `db:"fee" json:"fee"`
	PreviousAppointmentID *uuid.UUID        `db:"previous_appointment_id" json:"previous_appointment_id,omitempty"`
	NextAppointmentID     *uuid.UUID        `db:"next_appointment_id" json:"next_appointment_id,omitempty"`
	MedicalRecordID       *uuid.UUID        `db:"medical_record_id" json:"medical_record_id,omitempty"`
	CancelReason          *string           `db:"cancel_reason" json:"cancel_reason,omitempty"`
}

func (a *Appointment) TimeSlot() TimeRange {
	return TimeRange{Start: a.SlotStart, End: a.SlotEnd}
}

func (a *Appointment) SlotMatch() SlotMatch {
	return SlotMatch{SlotID: a.SlotID, StartMinute: a.StartMinute, EndMinute: a.EndMinute}
}

type AppointmentFilters struct {
	DoctorID  uuid.UUID
	PatientID uuid.UUID
	Status    AppointmentStatus
	StartDate string
	EndDate   string
}

// ClinicalData is the optional payload of a completion
type ClinicalData struct {
	Diagnosis    string       `json:"diagnosis"`
	Notes        string       `json:"notes"`
	Prescription []Medication `json:"prescription"`
}

func (c *ClinicalData) Empty() bool {
	return c == nil || (c.Diagnosis == "" && c.Notes == "" && len(c.Prescription) == 0)
}

// StatusEvent is the outbox payload written for every applied transition
type StatusEvent struct {
	AppointmentID uuid.UUID         `json:"appointment_id"`
	PatientID     uuid.UUID         `json:"patient_id"`
	DoctorID      uuid.UUID         `json:"doctor_id"`
	From          AppointmentStatus `json:"from"`
	To            AppointmentStatus `json:"to"`
	OccurredAt    time.Time         `json:"occurred_at"`
}
