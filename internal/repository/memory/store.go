// Package memory implements the repository interfaces in process. Every
// conditional write is performed under one mutex, which gives the same
// compare-and-set guarantees as the Postgres implementation for a single
// process.
package memory

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
)

// Store holds all in-memory tables
type Store struct {
	mu sync.Mutex

	doctors      map[uuid.UUID]model.DoctorProfile
	schedules    map[uuid.UUID]*model.DaySchedule
	scheduleKeys map[string]uuid.UUID
	appointments map[uuid.UUID]model.Appointment
	patients     map[uuid.UUID]model.Patient
	payments     map[uuid.UUID]model.Payment
	records      map[uuid.UUID]model.MedicalRecord
	leaves       map[uuid.UUID]model.LeaveRequest
	// tokens is the last token issued per doctor day
	tokens       map[string]int
	outbox       []*model.OutboxEvent
	now          func() time.Time

	// Fail hooks let tests inject persistence failures.
	FailAppointmentCreate error
	FailPaymentUpdate     error
	FailRelease           error
}

func NewStore() *Store {
	return &Store{
		doctors:      make(map[uuid.UUID]model.DoctorProfile),
		schedules:    make(map[uuid.UUID]*model.DaySchedule),
		scheduleKeys: make(map[string]uuid.UUID),
		appointments: make(map[uuid.UUID]model.Appointment),
		patients:     make(map[uuid.UUID]model.Patient),
		payments:     make(map[uuid.UUID]model.Payment),
		records:      make(map[uuid.UUID]model.MedicalRecord),
		leaves:       make(map[uuid.UUID]model.LeaveRequest),
		tokens:       make(map[string]int),
		now:          time.Now,
	}
}

// SetClock replaces the clock used for outbox claims
func (s *Store) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// SetFailure swaps a fail hook under the store lock
func (s *Store) SetFailure(hook *error, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	*hook = err
}

func scheduleKey(doctorID uuid.UUID, date string) string {
	return doctorID.String() + "/" + date
}

func cloneSchedule(in *model.DaySchedule) *model.DaySchedule {
	out := *in
	out.Breaks = append(model.Breaks{}, in.Breaks...)
	out.Slots = append([]model.Slot{}, in.Slots...)
	return &out
}
