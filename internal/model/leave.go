package model

import (
	"time"

	"github.com/google/uuid"
)

type LeaveType string

const (
	LeaveTypeSick   LeaveType = "sick"
	LeaveTypeCasual LeaveType = "casual"
)

type LeaveDuration string

const (
	LeaveDurationFullDay LeaveDuration = "full_day"
	LeaveDurationHalfDay LeaveDuration = "half_day"
)

type LeaveStatus string

const (
	LeaveStatusPending  LeaveStatus = "pending"
	LeaveStatusApproved LeaveStatus = "approved"
	LeaveStatusRejected LeaveStatus = "rejected"
)

type LeaveRequest struct {
	Base
	DoctorID         uuid.UUID     `db:"doctor_id" json:"doctor_id"`
	StartDate        string        `db:"start_date" json:"start_date"`
	EndDate          string        `db:"end_date" json:"end_date"`
	Type             LeaveType     `db:"leave_type" json:"type"`
	Duration         LeaveDuration `db:"duration" json:"duration"`
	Reason           string        `db:"reason" json:"reason,omitempty"`
	Status           LeaveStatus   `db:"status" json:"status"`
	DecidedBy        *uuid.UUID    `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt        *time.Time    `db:"decided_at" json:"decided_at,omitempty"`
	EffectsCompleted bool          `db:"effects_completed" json:"effects_completed"`
}

// LeaveApplication is the result of applying an approved leave to the schedule
type LeaveApplication struct {
	Leave                 *LeaveRequest `json:"leave"`
	BlockedSchedules      int           `json:"blocked_schedules"`
	CancelledAppointments []uuid.UUID   `json:"cancelled_appointments"`
	Failures              []string      `json:"failures,omitempty"`
}

func (a *LeaveApplication) Complete() bool {
	return len(a.Failures) == 0
}
