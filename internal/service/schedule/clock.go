package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

const minutesPerDay = 24 * 60

// ParseClock converts a wall-clock string to minutes since midnight.
// Both 12-hour ("09:30 AM", "9:30pm") and 24-hour ("09:30", "21:30") forms
// are accepted.
func ParseClock(s string) (int, error) {
	raw := strings.ToUpper(strings.TrimSpace(s))
	if raw == "" {
		return 0, fmt.Errorf("empty time")
	}

	meridiem := ""
	if strings.HasSuffix(raw, "AM") || strings.HasSuffix(raw, "PM") {
		meridiem = raw[len(raw)-2:]
		raw = strings.TrimSpace(raw[:len(raw)-2])
	}

	parts := strings.Split(raw, ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || len(parts[1]) != 2 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}

	switch meridiem {
	case "":
		if hour < 0 || hour > 24 || (hour == 24 && minute != 0) {
			return 0, fmt.Errorf("invalid hour in %q", s)
		}
	default:
		if hour < 1 || hour > 12 {
			return 0, fmt.Errorf("invalid hour in %q", s)
		}
		if hour == 12 {
			hour = 0
		}
		if meridiem == "PM" {
			hour += 12
		}
	}

	return hour*60 + minute, nil
}

// IsTwelveHour reports whether s carries an AM/PM suffix
func IsTwelveHour(s string) bool {
	upper := strings.ToUpper(strings.TrimSpace(s))
	return strings.HasSuffix(upper, "AM") || strings.HasSuffix(upper, "PM")
}

// FormatClock renders minutes since midnight as "09:30 AM" or "09:30"
func FormatClock(minutes int, twelveHour bool) string {
	if !twelveHour {
		return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
	}
	hour := (minutes / 60) % 24
	meridiem := "AM"
	if hour >= 12 {
		meridiem = "PM"
	}
	hour %= 12
	if hour == 0 {
		hour = 12
	}
	return fmt.Sprintf("%02d:%02d %s", hour, minutes%60, meridiem)
}

// ParseRange converts a wall-clock range to minute bounds
func ParseRange(start, end string) (int, int, error) {
	s, err := ParseClock(start)
	if err != nil {
		return 0, 0, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return 0, 0, err
	}
	return s, e, nil
}
