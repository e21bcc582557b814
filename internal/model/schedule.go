package model

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

// TimeRange is a wall-clock interval such as 09:00 AM - 09:30 AM
type TimeRange struct {
	Start string `json:"start" binding:"required"`
	End   string `json:"end" binding:"required"`
}

func (r TimeRange) String() string {
	return r.Start + "-" + r.End
}

// Breaks is stored as a JSON array column
type Breaks []TimeRange

func (b Breaks) Value() (driver.Value, error) {
	if b == nil {
		b = Breaks{}
	}
	raw, err := json.Marshal([]TimeRange(b))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal breaks: %w", err)
	}
	return types.JSONText(raw).Value()
}

func (b *Breaks) Scan(src interface{}) error {
	if src == nil {
		*b = Breaks{}
		return nil
	}
	var text types.JSONText
	if err := text.Scan(src); err != nil {
		return fmt.Errorf("failed to scan breaks: %w", err)
	}
	var ranges []TimeRange
	if err := text.Unmarshal(&ranges); err != nil {
		return fmt.Errorf("failed to decode breaks: %w", err)
	}
	*b = ranges
	return nil
}

// DaySchedule is a doctor's slot grid for one calendar date
type DaySchedule struct {
	ID           uuid.UUID `db:"id" json:"id"`
	DoctorID     uuid.UUID `db:"doctor_id" json:"doctor_id"`
	Date         string    `db:"schedule_date" json:"date"`
	WorkStart    string    `db:"work_start" json:"work_start"`
	WorkEnd      string    `db:"work_end" json:"work_end"`
	Breaks       Breaks    `db:"breaks" json:"breaks"`
	SlotDuration int       `db:"slot_duration" json:"slot_duration"`
	IsAvailable  bool      `db:"is_available" json:"is_available"`
	Slots        []Slot    `db:"-" json:"slots"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (s *DaySchedule) WorkingHours() TimeRange {
	return TimeRange{Start: s.WorkStart, End: s.WorkEnd}
}

// FreeSlots returns the unbooked slots in order
func (s *DaySchedule) FreeSlots() []Slot {
	free := make([]Slot, 0, len(s.Slots))
	for _, slot := range s.Slots {
		if !slot.IsBooked {
			free = append(free, slot)
		}
	}
	return free
}

// Slot is a bookable interval inside a DaySchedule. StartMinute and
// EndMinute are minutes since midnight and are what reservations match on.
type Slot struct {
	ID          uuid.UUID `db:"id" json:"id"`
	ScheduleID  uuid.UUID `db:"schedule_id" json:"schedule_id"`
	Position    int       `db:"position" json:"position"`
	Start       string    `db:"start_time" json:"start"`
	End         string    `db:"end_time" json:"end"`
	StartMinute int       `db:"start_minute" json:"-"`
	EndMinute   int       `db:"end_minute" json:"-"`
	Duration    int       `db:"duration" json:"duration"`
	IsBooked    bool      `db:"is_booked" json:"is_booked"`
	OnlineFee   float64   `db:"online_fee" json:"online_fee"`
	OfflineFee  float64   `db:"offline_fee" json:"offline_fee"`
}

func (s Slot) Range() TimeRange {
	return TimeRange{Start: s.Start, End: s.End}
}

// SlotMatch locates a slot either by id or by its minute bounds
type SlotMatch struct {
	SlotID      uuid.UUID
	StartMinute int
	EndMinute   int
}

func (m SlotMatch) ByID() bool {
	return m.SlotID != uuid.Nil
}

func (m SlotMatch) Matches(s Slot) bool {
	if m.ByID() {
		return s.ID == m.SlotID
	}
	return s.StartMinute == m.StartMinute && s.EndMinute == m.EndMinute
}

// ScheduleTemplate overrides a doctor's defaults when creating a schedule
type ScheduleTemplate struct {
	WorkingHours TimeRange `json:"working_hours"`
	Breaks       Breaks    `json:"breaks"`
	SlotDuration int       `json:"slot_duration"`
	OnlineFee    float64   `json:"online_fee"`
	OfflineFee   float64   `json:"offline_fee"`
}

// AvailableDate is a bookable day in a doctor's calendar
type AvailableDate struct {
	Date      string `json:"date"`
	FreeSlots int    `json:"free_slots"`
}
