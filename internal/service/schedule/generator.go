package schedule

import (
	"fmt"

	"github.com/jwalitptl/hospital-api/internal/model"
)

const (
	DefaultOnlineFee    = 100.0
	DefaultOfflineFee   = 80.0
	DefaultSlotDuration = 30
)

// Rates are the per-consultation-type fees stamped on every generated slot
type Rates struct {
	Online  float64
	Offline float64
}

// DefaultRates fills unset rates with the hospital defaults
func DefaultRates(online, offline float64) Rates {
	r := Rates{Online: online, Offline: offline}
	if r.Online <= 0 {
		r.Online = DefaultOnlineFee
	}
	if r.Offline <= 0 {
		r.Offline = DefaultOfflineFee
	}
	return r
}

type interval struct {
	start, end int
}

func (i interval) overlaps(o interval) bool {
	if i.start == i.end || o.start == o.end {
		return false
	}
	return i.start < o.end && o.start < i.end
}

// GenerateSlots lays a fixed grid of duration-minute slots over the working
// hours, drops every slot touching a break and clips the last slot at the
// end of the day. The output is a pure function of its inputs so
// regenerating an unchanged template yields the same grid.
//
// A non-positive duration or an empty working range yields no slots.
// Unparseable clock strings are an error.
func GenerateSlots(hours model.TimeRange, breaks []model.TimeRange, duration int, rates Rates) ([]model.Slot, error) {
	start, end, err := ParseRange(hours.Start, hours.End)
	if err != nil {
		return nil, fmt.Errorf("invalid working hours: %w", err)
	}

	blocked := make([]interval, 0, len(breaks))
	for _, b := range breaks {
		bs, be, err := ParseRange(b.Start, b.End)
		if err != nil {
			return nil, fmt.Errorf("invalid break %s: %w", b, err)
		}
		blocked = append(blocked, interval{start: bs, end: be})
	}

	if duration <= 0 || start >= end {
		return []model.Slot{}, nil
	}

	twelveHour := IsTwelveHour(hours.Start)
	slots := make([]model.Slot, 0, (end-start)/duration+1)

	for cur := start; cur < end; cur += duration {
		slotEnd := cur + duration
		if slotEnd > end {
			slotEnd = end
		}
		candidate := interval{start: cur, end: slotEnd}

		onBreak := false
		for _, b := range blocked {
			if candidate.overlaps(b) {
				onBreak = true
				break
			}
		}
		if onBreak {
			continue
		}

		slots = append(slots, model.Slot{
			Position:    len(slots),
			Start:       FormatClock(cur, twelveHour),
			End:         FormatClock(slotEnd, twelveHour),
			StartMinute: cur,
			EndMinute:   slotEnd,
			Duration:    slotEnd - cur,
			IsBooked:    false,
			OnlineFee:   rates.Online,
			OfflineFee:  rates.Offline,
		})
	}

	return slots, nil
}

// Fee computes the consultation fee for a slot: the rate for the
// consultation type scaled by the slot length in half-hour units.
func Fee(slot model.Slot, consultation model.ConsultationType) float64 {
	rate := slot.OfflineFee
	if consultation == model.ConsultationOnline {
		rate = slot.OnlineFee
	}
	return rate * (float64(slot.Duration) / 30.0)
}
