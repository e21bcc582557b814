package model

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the calendar-day format used for schedule and appointment dates
const DateLayout = "2006-01-02"

// Base contains common fields for all models
type Base struct {
	ID        uuid.UUID `json:"id" db:"id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// ParseDate validates a YYYY-MM-DD calendar day
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: expected YYYY-MM-DD", s)
	}
	return t, nil
}

// FormatDate renders t as a calendar day
func FormatDate(t time.Time) string {
	return t.Format(DateLayout)
}
