package memory

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

type (
	doctorRepository        struct{ s *Store }
	scheduleRepository      struct{ s *Store }
	appointmentRepository   struct{ s *Store }
	patientRepository       struct{ s *Store }
	paymentRepository       struct{ s *Store }
	medicalRecordRepository struct{ s *Store }
	leaveRepository         struct{ s *Store }
	outboxRepository        struct{ s *Store }
)

func (s *Store) Doctors() repository.DoctorRepository               { return &doctorRepository{s} }
func (s *Store) Schedules() repository.ScheduleRepository           { return &scheduleRepository{s} }
func (s *Store) Appointments() repository.AppointmentRepository     { return &appointmentRepository{s} }
func (s *Store) Patients() repository.PatientRepository             { return &patientRepository{s} }
func (s *Store) Payments() repository.PaymentRepository             { return &paymentRepository{s} }
func (s *Store) MedicalRecords() repository.MedicalRecordRepository { return &medicalRecordRepository{s} }
func (s *Store) Leaves() repository.LeaveRepository                 { return &leaveRepository{s} }
func (s *Store) Outbox() repository.OutboxRepository                { return &outboxRepository{s} }

func (s *Store) Repositories() *repository.Repositories {
	return &repository.Repositories{
		Doctors:        s.Doctors(),
		Schedules:      s.Schedules(),
		Appointments:   s.Appointments(),
		Patients:       s.Patients(),
		Payments:       s.Payments(),
		MedicalRecords: s.MedicalRecords(),
		Leaves:         s.Leaves(),
		Outbox:         s.Outbox(),
	}
}

// Doctors

func (r *doctorRepository) Create(_ context.Context, d *model.DoctorProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	if d.Status == "" {
		d.Status = model.AvailabilityAvailable
	}
	d.CreatedAt = time.Now()
	d.UpdatedAt = d.CreatedAt
	r.s.doctors[d.ID] = *d
	return nil
}

func (r *doctorRepository) Get(_ context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.doctors[id]
	if !ok {
		return nil, apperrors.ErrDoctorNotFound
	}
	return &d, nil
}

func (r *doctorRepository) Update(_ context.Context, d *model.DoctorProfile) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.doctors[d.ID]; !ok {
		return apperrors.ErrDoctorNotFound
	}
	d.UpdatedAt = time.Now()
	r.s.doctors[d.ID] = *d
	return nil
}

func (r *doctorRepository) ListAvailable(_ context.Context) ([]*model.DoctorProfile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.DoctorProfile
	for _, d := range r.s.doctors {
		if d.IsAvailable() {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Schedules

func (r *scheduleRepository) CreateIfAbsent(_ context.Context, sched *model.DaySchedule) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := scheduleKey(sched.DoctorID, sched.Date)
	if _, exists := r.s.scheduleKeys[key]; exists {
		return false, nil
	}
	sched.CreatedAt = time.Now()
	sched.UpdatedAt = sched.CreatedAt
	r.s.scheduleKeys[key] = sched.ID
	r.s.schedules[sched.ID] = cloneSchedule(sched)
	return true, nil
}

func (r *scheduleRepository) GetByDoctorAndDate(_ context.Context, doctorID uuid.UUID, date string) (*model.DaySchedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	id, ok := r.s.scheduleKeys[scheduleKey(doctorID, date)]
	if !ok {
		return nil, apperrors.ErrNoScheduleForDate
	}
	return cloneSchedule(r.s.schedules[id]), nil
}

func (r *scheduleRepository) ListByDoctor(_ context.Context, doctorID uuid.UUID, from, to string) ([]*model.DaySchedule, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.DaySchedule{}
	for _, sched := range r.s.schedules {
		if sched.DoctorID == doctorID && sched.Date >= from && sched.Date <= to {
			out = append(out, cloneSchedule(sched))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (r *scheduleRepository) findSlot(scheduleID uuid.UUID, match model.SlotMatch) (*model.DaySchedule, int) {
	sched, ok := r.s.schedules[scheduleID]
	if !ok {
		return nil, -1
	}
	for i := range sched.Slots {
		if match.Matches(sched.Slots[i]) {
			return sched, i
		}
	}
	return sched, -1
}

func (r *scheduleRepository) ReserveSlot(_ context.Context, scheduleID uuid.UUID, match model.SlotMatch) (*model.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sched, idx := r.findSlot(scheduleID, match)
	if idx < 0 {
		return nil, apperrors.ErrSlotNotFound
	}
	if sched.Slots[idx].IsBooked {
		return nil, apperrors.ErrSlotAlreadyBooked
	}
	if !sched.IsAvailable {
		return nil, apperrors.ErrSlotUnavailable
	}
	sched.Slots[idx].IsBooked = true
	slot := sched.Slots[idx]
	return &slot, nil
}

func (r *scheduleRepository) ReleaseSlot(_ context.Context, scheduleID uuid.UUID, match model.SlotMatch) (*model.Slot, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailRelease != nil {
		return nil, r.s.FailRelease
	}
	sched, idx := r.findSlot(scheduleID, match)
	if idx < 0 {
		return nil, apperrors.ErrSlotNotFound
	}
	sched.Slots[idx].IsBooked = false
	slot := sched.Slots[idx]
	return &slot, nil
}

func (r *scheduleRepository) SetAvailability(_ context.Context, doctorID uuid.UUID, from, to string, available bool) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	n := 0
	for _, sched := range r.s.schedules {
		if sched.DoctorID == doctorID && sched.Date >= from && sched.Date <= to {
			sched.IsAvailable = available
			sched.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

func (r *scheduleRepository) ReplaceSlots(_ context.Context, next *model.DaySchedule) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.schedules[next.ID]
	if !ok {
		return apperrors.ErrNoScheduleForDate
	}

	booked := make(map[[2]int]bool)
	for _, slot := range current.Slots {
		if slot.IsBooked {
			booked[[2]int{slot.StartMinute, slot.EndMinute}] = true
		}
	}
	slots := make([]model.Slot, len(next.Slots))
	for i, slot := range next.Slots {
		key := [2]int{slot.StartMinute, slot.EndMinute}
		if booked[key] {
			slot.IsBooked = true
			delete(booked, key)
		}
		slots[i] = slot
	}
	if len(booked) > 0 {
		return apperrors.ErrSlotAlreadyBooked
	}

	current.WorkStart = next.WorkStart
	current.WorkEnd = next.WorkEnd
	current.Breaks = append(model.Breaks{}, next.Breaks...)
	current.SlotDuration = next.SlotDuration
	current.Slots = slots
	current.UpdatedAt = time.Now()
	return nil
}

func (r *scheduleRepository) Delete(_ context.Context, scheduleID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	sched, ok := r.s.schedules[scheduleID]
	if !ok {
		return apperrors.ErrNoScheduleForDate
	}
	for _, slot := range sched.Slots {
		if slot.IsBooked {
			return apperrors.ErrSlotAlreadyBooked
		}
	}
	delete(r.s.scheduleKeys, scheduleKey(sched.DoctorID, sched.Date))
	delete(r.s.schedules, scheduleID)
	return nil
}

// Appointments

func (r *appointmentRepository) Create(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailAppointmentCreate != nil {
		return r.s.FailAppointmentCreate
	}
	for _, existing := range r.s.appointments {
		if existing.DoctorID == a.DoctorID && existing.AppointmentDate == a.AppointmentDate &&
			existing.StartMinute == a.StartMinute && existing.EndMinute == a.EndMinute &&
			!existing.Status.Cancelled() {
			return apperrors.ErrSlotUnavailable
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	a.CreatedAt = time.Now()
	a.UpdatedAt = a.CreatedAt
	r.s.appointments[a.ID] = *a
	return nil
}

func (r *appointmentRepository) Get(_ context.Context, id uuid.UUID) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, apperrors.ErrAppointmentNotFound
	}
	return &a, nil
}

func (r *appointmentRepository) Update(_ context.Context, a *model.Appointment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.appointments[a.ID]
	if !ok {
		return apperrors.ErrAppointmentNotFound
	}
	current.VideoLink = a.VideoLink
	current.Fee = a.Fee
	current.PreviousAppointmentID = a.PreviousAppointmentID
	current.NextAppointmentID = a.NextAppointmentID
	current.MedicalRecordID = a.MedicalRecordID
	current.CancelReason = a.CancelReason
	current.UpdatedAt = time.Now()
	r.s.appointments[a.ID] = current
	a.UpdatedAt = current.UpdatedAt
	return nil
}

func (r *appointmentRepository) Delete(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.appointments[id]; !ok {
		return apperrors.ErrAppointmentNotFound
	}
	delete(r.s.appointments, id)
	delete(r.s.payments, id)
	return nil
}

func (r *appointmentRepository) List(_ context.Context, f *model.AppointmentFilters) ([]*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.Appointment{}
	for _, a := range r.s.appointments {
		if f != nil {
			if f.DoctorID != uuid.Nil && a.DoctorID != f.DoctorID {
				continue
			}
			if f.PatientID != uuid.Nil && a.PatientID != f.PatientID {
				continue
			}
			if f.Status != "" && a.Status != f.Status {
				continue
			}
			if f.StartDate != "" && a.AppointmentDate < f.StartDate {
				continue
			}
			if f.EndDate != "" && a.AppointmentDate > f.EndDate {
				continue
			}
		}
		a := a
		out = append(out, &a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AppointmentDate != out[j].AppointmentDate {
			return out[i].AppointmentDate < out[j].AppointmentDate
		}
		return out[i].StartMinute < out[j].StartMinute
	})
	return out, nil
}

func (r *appointmentRepository) ExistsForPatientSlot(_ context.Context, patientID uuid.UUID, date string, startMinute, endMinute int) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.appointments {
		if a.PatientID == patientID && a.AppointmentDate == date &&
			a.StartMinute == startMinute && a.EndMinute == endMinute && !a.Status.Cancelled() {
			return true, nil
		}
	}
	return false, nil
}

func (r *appointmentRepository) TransitionStatus(_ context.Context, id uuid.UUID, from, to model.AppointmentStatus, reason *string) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, apperrors.ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, apperrors.ErrInvalidTransition
	}
	a.Status = to
	if reason != nil {
		a.CancelReason = reason
	}
	a.UpdatedAt = time.Now()
	r.s.appointments[id] = a
	return &a, nil
}

func (r *appointmentRepository) Confirm(_ context.Context, id uuid.UUID, from model.AppointmentStatus, videoLink *string) (*model.Appointment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.appointments[id]
	if !ok {
		return nil, apperrors.ErrAppointmentNotFound
	}
	if a.Status != from {
		return nil, apperrors.ErrInvalidTransition
	}
	if a.TokenNumber == nil {
		key := scheduleKey(a.DoctorID, a.AppointmentDate)
		r.s.tokens[key]++
		token := r.s.tokens[key]
		a.TokenNumber = &token
	}
	if a.VideoLink == nil && videoLink != nil {
		link := *videoLink
		a.VideoLink = &link
	}
	a.Status = model.AppointmentStatusConfirmed
	a.UpdatedAt = time.Now()
	r.s.appointments[id] = a
	return &a, nil
}

// Patients

func (r *patientRepository) Create(_ context.Context, p *model.Patient) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.patients[p.ID] = *p
	return nil
}

func (r *patientRepository) Get(_ context.Context, id uuid.UUID) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.patients[id]
	if !ok {
		return nil, apperrors.ErrPatientNotFound
	}
	return &p, nil
}

func (r *patientRepository) FindByEmail(_ context.Context, email string) (*model.Patient, error) {
	return r.find(func(p model.Patient) bool { return p.Email != "" && strings.EqualFold(p.Email, email) })
}

func (r *patientRepository) FindByPhone(_ context.Context, phone string) (*model.Patient, error) {
	return r.find(func(p model.Patient) bool { return p.Phone != "" && p.Phone == phone })
}

func (r *patientRepository) find(pred func(model.Patient) bool) (*model.Patient, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.patients {
		if pred(p) {
			return &p, nil
		}
	}
	return nil, apperrors.ErrPatientNotFound
}

// Payments are keyed by appointment

func (r *paymentRepository) Create(_ context.Context, p *model.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	p.CreatedAt = time.Now()
	p.UpdatedAt = p.CreatedAt
	r.s.payments[p.AppointmentID] = *p
	return nil
}

func (r *paymentRepository) GetByAppointment(_ context.Context, appointmentID uuid.UUID) (*model.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[appointmentID]
	if !ok {
		return nil, apperrors.NotFound(apperrors.CodeAppointmentNotFound, "payment for appointment")
	}
	return &p, nil
}

func (r *paymentRepository) UpdateStatusByAppointment(_ context.Context, appointmentID uuid.UUID, status model.PaymentStatus) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailPaymentUpdate != nil {
		return r.s.FailPaymentUpdate
	}
	p, ok := r.s.payments[appointmentID]
	if !ok {
		return nil
	}
	p.Status = status
	p.UpdatedAt = time.Now()
	r.s.payments[appointmentID] = p
	return nil
}

// Medical records

func (r *medicalRecordRepository) Create(_ context.Context, rec *model.MedicalRecord) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.CreatedAt = time.Now()
	rec.UpdatedAt = rec.CreatedAt
	r.s.records[rec.ID] = *rec
	return nil
}

func (r *medicalRecordRepository) Get(_ context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rec, ok := r.s.records[id]
	if !ok {
		return nil, apperrors.ErrRecordNotFound
	}
	return &rec, nil
}

func (r *medicalRecordRepository) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.MedicalRecord
	for _, rec := range r.s.records {
		if rec.PatientID == patientID {
			rec := rec
			out = append(out, &rec)
		}
	}
	return out, nil
}

// Leaves

func (r *leaveRepository) Create(_ context.Context, l *model.LeaveRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	l.Status = model.LeaveStatusPending
	l.CreatedAt = time.Now()
	l.UpdatedAt = l.CreatedAt
	r.s.leaves[l.ID] = *l
	return nil
}

func (r *leaveRepository) Get(_ context.Context, id uuid.UUID) (*model.LeaveRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leaves[id]
	if !ok {
		return nil, apperrors.ErrLeaveNotFound
	}
	return &l, nil
}

func (r *leaveRepository) List(_ context.Context, doctorID uuid.UUID, status model.LeaveStatus) ([]*model.LeaveRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*model.LeaveRequest{}
	for _, l := range r.s.leaves {
		if (doctorID == uuid.Nil || l.DoctorID == doctorID) && (status == "" || l.Status == status) {
			l := l
			out = append(out, &l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate < out[j].StartDate })
	return out, nil
}

func (r *leaveRepository) Decide(_ context.Context, id uuid.UUID, status model.LeaveStatus, decidedBy uuid.UUID) (*model.LeaveRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leaves[id]
	if !ok {
		return nil, apperrors.ErrLeaveNotFound
	}
	if l.Status != model.LeaveStatusPending {
		return nil, apperrors.ErrInvalidState
	}
	now := time.Now()
	l.Status = status
	l.DecidedBy = &decidedBy
	l.DecidedAt = &now
	l.UpdatedAt = now
	r.s.leaves[id] = l
	return &l, nil
}

func (r *leaveRepository) MarkEffectsCompleted(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	l, ok := r.s.leaves[id]
	if !ok {
		return apperrors.ErrLeaveNotFound
	}
	l.EffectsCompleted = true
	r.s.leaves[id] = l
	return nil
}

func (r *leaveRepository) ListIncomplete(_ context.Context) ([]*model.LeaveRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*model.LeaveRequest
	for _, l := range r.s.leaves {
		if l.Status == model.LeaveStatusApproved && !l.EffectsCompleted {
			l := l
			out = append(out, &l)
		}
	}
	return out, nil
}

func (r *leaveRepository) ApprovedOn(_ context.Context, doctorID uuid.UUID, date string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, l := range r.s.leaves {
		if l.DoctorID == doctorID && l.Status == model.LeaveStatusApproved && l.StartDate <= date && date <= l.EndDate {
			return true, nil
		}
	}
	return false, nil
}

// Outbox

func (r *outboxRepository) Create(_ context.Context, e *model.OutboxEvent) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e.ID = uuid.New()
	e.Status = model.OutboxStatusPending
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	stored := *e
	r.s.outbox = append(r.s.outbox, &stored)
	return nil
}

func (r *outboxRepository) GetPendingEvents(_ context.Context, limit int) ([]*model.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := r.s.now()
	stale := now.Add(-repository.OutboxClaimLease)
	var out []*model.OutboxEvent
	for _, e := range r.s.outbox {
		if len(out) >= limit {
			break
		}
		claimable := e.Status == model.OutboxStatusPending ||
			(e.Status == model.OutboxStatusProcessing && e.ClaimedAt != nil && e.ClaimedAt.Before(stale))
		if !claimable {
			continue
		}
		claimedAt := now
		e.Status = model.OutboxStatusProcessing
		e.ClaimedAt = &claimedAt
		e.RetryCount++
		e.UpdatedAt = now
		copied := *e
		out = append(out, &copied)
	}
	return out, nil
}

func (r *outboxRepository) UpdateStatus(_ context.Context, id uuid.UUID, status model.OutboxStatus, errorMessage *string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, e := range r.s.outbox {
		if e.ID == id {
			e.Status = status
			e.ErrorMessage = errorMessage
			e.ClaimedAt = nil
			e.UpdatedAt = time.Now()
			if status == model.OutboxStatusProcessed {
				now := time.Now()
				e.ProcessedAt = &now
			}
		}
	}
	return nil
}

func (r *outboxRepository) DeleteProcessedBefore(_ context.Context, before time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	kept := r.s.outbox[:0]
	var deleted int64
	for _, e := range r.s.outbox {
		if e.Status == model.OutboxStatusProcessed && e.ProcessedAt != nil && e.ProcessedAt.Before(before) {
			deleted++
			continue
		}
		kept = append(kept, e)
	}
	r.s.outbox = kept
	return deleted, nil
}

// OutboxEvents returns a snapshot of every stored event
func (s *Store) OutboxEvents() []model.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.OutboxEvent, 0, len(s.outbox))
	for _, e := range s.outbox {
		out = append(out, *e)
	}
	return out
}
