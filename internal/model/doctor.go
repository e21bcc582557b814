package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

type AvailabilityStatus string

const (
	AvailabilityAvailable   AvailabilityStatus = "available"
	AvailabilityUnavailable AvailabilityStatus = "unavailable"
)

// DoctorProfile carries the template every generated day schedule starts from
type DoctorProfile struct {
	Base
	Name          string             `db:"name" json:"name"`
	Email         string             `db:"email" json:"email"`
	Phone         string             `db:"phone" json:"phone,omitempty"`
	DepartmentID  *uuid.UUID         `db:"department_id" json:"department_id,omitempty"`
	AvailableDays pq.StringArray     `db:"available_days" json:"available_days"`
	WorkStart     string             `db:"work_start" json:"work_start"`
	WorkEnd       string             `db:"work_end" json:"work_end"`
	Breaks        Breaks             `db:"breaks" json:"breaks"`
	SlotDuration  int                `db:"slot_duration" json:"slot_duration"`
	OnlineFee     float64            `db:"online_fee" json:"online_fee"`
	OfflineFee    float64            `db:"offline_fee" json:"offline_fee"`
	Status        AvailabilityStatus `db:"status" json:"status"`
}

func (d *DoctorProfile) WorkingHours() TimeRange {
	return TimeRange{Start: d.WorkStart, End: d.WorkEnd}
}

// WorksOn reports whether the weekday is one of the doctor's available days
func (d *DoctorProfile) WorksOn(day time.Weekday) bool {
	for _, name := range d.AvailableDays {
		if strings.EqualFold(strings.TrimSpace(name), day.String()) {
			return true
		}
	}
	return false
}

func (d *DoctorProfile) IsAvailable() bool {
	return d.Status != AvailabilityUnavailable
}
