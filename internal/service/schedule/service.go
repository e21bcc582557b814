package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

const DefaultHorizonDays = 14

// DoctorProvider resolves the profile a schedule is generated from
type DoctorProvider interface {
	GetProfile(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error)
}

// LeaveCalendar tells whether approved leave covers a day. Schedules for
// such days are created blocked, so a leave approved before its days were
// generated still holds.
type LeaveCalendar interface {
	ApprovedOn(ctx context.Context, doctorID uuid.UUID, date string) (bool, error)
}

type Config struct {
	// HorizonDays is how far ahead schedules are generated and listed
	HorizonDays int
	Location    *time.Location
}

type Service struct {
	repo    repository.ScheduleRepository
	doctors DoctorProvider
	leaves  LeaveCalendar
	config  Config
	logger  *logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewService(repo repository.ScheduleRepository, doctors DoctorProvider, leaves LeaveCalendar, config Config, logger *logger.Logger, metrics *metrics.Metrics) *Service {
	if config.HorizonDays <= 0 {
		config.HorizonDays = DefaultHorizonDays
	}
	if config.Location == nil {
		config.Location = time.Local
	}
	return &Service{
		repo:    repo,
		doctors: doctors,
		leaves:  leaves,
		config:  config,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// WithClock replaces the wall clock, used by tests and backfills
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Today returns the current calendar day in the hospital's timezone
func (s *Service) Today() string {
	return model.FormatDate(s.now().In(s.config.Location))
}

// SlotID derives a stable slot identifier from the schedule and slot bounds,
// so regenerating a schedule keeps the ids of unchanged slots.
func SlotID(scheduleID uuid.UUID, startMinute, endMinute int) uuid.UUID {
	return uuid.NewSHA1(scheduleID, []byte(fmt.Sprintf("%d-%d", startMinute, endMinute)))
}

func (s *Service) build(scheduleID, doctorID uuid.UUID, date string, tpl model.ScheduleTemplate) (*model.DaySchedule, error) {
	slots, err := GenerateSlots(tpl.WorkingHours, tpl.Breaks, tpl.SlotDuration, DefaultRates(tpl.OnlineFee, tpl.OfflineFee))
	if err != nil {
		return nil, apperrors.Validation(apperrors.CodeInvalidTimeSlot, err.Error())
	}
	for i := range slots {
		slots[i].ScheduleID = scheduleID
		slots[i].ID = SlotID(scheduleID, slots[i].StartMinute, slots[i].EndMinute)
	}

	breaks := tpl.Breaks
	if breaks == nil {
		breaks = model.Breaks{}
	}
	return &model.DaySchedule{
		ID:           scheduleID,
		DoctorID:     doctorID,
		Date:         date,
		WorkStart:    tpl.WorkingHours.Start,
		WorkEnd:      tpl.WorkingHours.End,
		Breaks:       breaks,
		SlotDuration: tpl.SlotDuration,
		IsAvailable:  true,
		Slots:        slots,
	}, nil
}

// templateFor merges an override onto the doctor's defaults
func templateFor(doctor *model.DoctorProfile, override *model.ScheduleTemplate) model.ScheduleTemplate {
	tpl := model.ScheduleTemplate{
		WorkingHours: doctor.WorkingHours(),
		Breaks:       doctor.Breaks,
		SlotDuration: doctor.SlotDuration,
		OnlineFee:    doctor.OnlineFee,
		OfflineFee:   doctor.OfflineFee,
	}
	if override == nil {
		return tpl
	}
	if override.WorkingHours.Start != "" && override.WorkingHours.End != "" {
		tpl.WorkingHours = override.WorkingHours
	}
	if override.Breaks != nil {
		tpl.Breaks = override.Breaks
	}
	if override.SlotDuration != 0 {
		tpl.SlotDuration = override.SlotDuration
	}
	if override.OnlineFee > 0 {
		tpl.OnlineFee = override.OnlineFee
	}
	if override.OfflineFee > 0 {
		tpl.OfflineFee = override.OfflineFee
	}
	return tpl
}

func validateDate(date string) error {
	if _, err := model.ParseDate(date); err != nil {
		return apperrors.Validation(apperrors.CodeInvalidDate, err.Error())
	}
	return nil
}

// EnsureSchedule returns the doctor's schedule for date, generating it from
// the doctor's template when missing. Concurrent callers converge on one
// schedule: whoever loses the insert re-reads the winner's row.
func (s *Service) EnsureSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*model.DaySchedule, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}

	existing, err := s.repo.GetByDoctorAndDate(ctx, doctorID, date)
	if err == nil {
		return existing, nil
	}
	if !apperrors.IsCode(err, apperrors.CodeNoScheduleForDate) {
		return nil, err
	}

	doctor, err := s.doctors.GetProfile(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.build(uuid.New(), doctorID, date, templateFor(doctor, nil))
	if err != nil {
		return nil, err
	}

	created, err := s.insert(ctx, schedule)
	if err != nil {
		return nil, err
	}
	if !created {
		return s.repo.GetByDoctorAndDate(ctx, doctorID, date)
	}

	s.metrics.SchedulesGenerated.Inc()
	s.logger.Debug("Schedule generated", "doctor_id", doctorID.String(), "date", date, "slots", len(schedule.Slots))
	return schedule, nil
}

// insert stores a new schedule, blocked when approved leave covers its day.
// Leave is checked again after the insert so an approval that ran its
// BulkBlock between the check and the insert still blocks the new row.
func (s *Service) insert(ctx context.Context, schedule *model.DaySchedule) (bool, error) {
	onLeave, err := s.leaves.ApprovedOn(ctx, schedule.DoctorID, schedule.Date)
	if err != nil {
		return false, err
	}
	schedule.IsAvailable = !onLeave

	created, err := s.repo.CreateIfAbsent(ctx, schedule)
	if err != nil {
		return false, fmt.Errorf("failed to create schedule: %w", err)
	}
	if !created || onLeave {
		return created, nil
	}

	onLeave, err = s.leaves.ApprovedOn(ctx, schedule.DoctorID, schedule.Date)
	if err != nil {
		return false, err
	}
	if onLeave {
		if _, err := s.repo.SetAvailability(ctx, schedule.DoctorID, schedule.Date, schedule.Date, false); err != nil {
			return false, err
		}
		schedule.IsAvailable = false
	}
	return true, nil
}

// CreateSchedule explicitly creates a schedule, optionally overriding the
// doctor's template. An existing schedule for the day is a conflict.
func (s *Service) CreateSchedule(ctx context.Context, doctorID uuid.UUID, date string, override *model.ScheduleTemplate) (*model.DaySchedule, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	doctor, err := s.doctors.GetProfile(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	schedule, err := s.build(uuid.New(), doctorID, date, templateFor(doctor, override))
	if err != nil {
		return nil, err
	}
	created, err := s.insert(ctx, schedule)
	if err != nil {
		return nil, err
	}
	if !created {
		return nil, apperrors.ErrScheduleExists
	}

	s.metrics.SchedulesGenerated.Inc()
	s.logger.Info("Schedule created", "doctor_id", doctorID.String(), "date", date, "slots", len(schedule.Slots))
	return schedule, nil
}

// RegenerateSchedule rebuilds the slot grid of an existing schedule. Every
// booked slot has to survive in the new grid.
func (s *Service) RegenerateSchedule(ctx context.Context, doctorID uuid.UUID, date string, override *model.ScheduleTemplate) (*model.DaySchedule, error) {
	current, err := s.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	doctor, err := s.doctors.GetProfile(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	next, err := s.build(current.ID, doctorID, date, templateFor(doctor, override))
	if err != nil {
		return nil, err
	}
	next.IsAvailable = current.IsAvailable

	if err := s.repo.ReplaceSlots(ctx, next); err != nil {
		return nil, err
	}
	return s.repo.GetByDoctorAndDate(ctx, doctorID, date)
}

// DeleteSchedule removes a schedule with no booked slots
func (s *Service) DeleteSchedule(ctx context.Context, doctorID uuid.UUID, date string) error {
	current, err := s.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, current.ID); err != nil {
		return err
	}
	s.logger.Info("Schedule deleted", "doctor_id", doctorID.String(), "date", date)
	return nil
}

// GetSchedule fetches without generating
func (s *Service) GetSchedule(ctx context.Context, doctorID uuid.UUID, date string) (*model.DaySchedule, error) {
	if err := validateDate(date); err != nil {
		return nil, err
	}
	return s.repo.GetByDoctorAndDate(ctx, doctorID, date)
}

// ReserveSlot atomically books the matching slot
func (s *Service) ReserveSlot(ctx context.Context, doctorID uuid.UUID, date string, match model.SlotMatch) (*model.Slot, error) {
	schedule, err := s.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	slot, err := s.repo.ReserveSlot(ctx, schedule.ID, match)
	if err != nil {
		if apperrors.IsKind(err, apperrors.KindConflict) {
			s.metrics.SlotConflicts.Inc()
		}
		return nil, err
	}
	return slot, nil
}

// ReleaseSlot frees the matching slot. Releasing a free slot succeeds.
func (s *Service) ReleaseSlot(ctx context.Context, doctorID uuid.UUID, date string, match model.SlotMatch) error {
	schedule, err := s.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return err
	}
	if _, err := s.repo.ReleaseSlot(ctx, schedule.ID, match); err != nil {
		return err
	}
	return nil
}

// BulkBlock marks every schedule of the doctor within [from, to] unavailable
func (s *Service) BulkBlock(ctx context.Context, doctorID uuid.UUID, from, to string) (int, error) {
	if err := validateDate(from); err != nil {
		return 0, err
	}
	if err := validateDate(to); err != nil {
		return 0, err
	}
	if from > to {
		return 0, apperrors.Validation(apperrors.CodeInvalidDate, "start date is after end date")
	}
	n, err := s.repo.SetAvailability(ctx, doctorID, from, to, false)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Schedules blocked", "doctor_id", doctorID.String(), "from", from, "to", to, "count", n)
	return n, nil
}

// ListAvailableDates lists the upcoming days that still have a free slot
func (s *Service) ListAvailableDates(ctx context.Context, doctorID uuid.UUID) ([]model.AvailableDate, error) {
	from := s.now().In(s.config.Location)
	to := from.AddDate(0, 0, s.config.HorizonDays)

	schedules, err := s.repo.ListByDoctor(ctx, doctorID, model.FormatDate(from), model.FormatDate(to))
	if err != nil {
		return nil, err
	}

	dates := make([]model.AvailableDate, 0, len(schedules))
	for _, sched := range schedules {
		if !sched.IsAvailable {
			continue
		}
		if free := len(sched.FreeSlots()); free > 0 {
			dates = append(dates, model.AvailableDate{Date: sched.Date, FreeSlots: free})
		}
	}
	return dates, nil
}

// ListAvailableSlots lists the free slots of one day. A blocked day has none.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]model.Slot, error) {
	schedule, err := s.GetSchedule(ctx, doctorID, date)
	if err != nil {
		return nil, err
	}
	if !schedule.IsAvailable {
		return []model.Slot{}, nil
	}
	return schedule.FreeSlots(), nil
}

// GenerateUpcoming ensures a schedule for each of the next days on which the
// doctor works, starting today. It returns how many days were visited.
func (s *Service) GenerateUpcoming(ctx context.Context, doctorID uuid.UUID, days int) (int, error) {
	if days <= 0 {
		days = s.config.HorizonDays
	}
	doctor, err := s.doctors.GetProfile(ctx, doctorID)
	if err != nil {
		return 0, err
	}
	if !doctor.IsAvailable() {
		return 0, nil
	}

	start := s.now().In(s.config.Location)
	ensured := 0
	for i := 0; i < days; i++ {
		day := start.AddDate(0, 0, i)
		if !doctor.WorksOn(day.Weekday()) {
			continue
		}
		if _, err := s.EnsureSchedule(ctx, doctorID, model.FormatDate(day)); err != nil {
			return ensured, fmt.Errorf("failed to ensure schedule for %s: %w", model.FormatDate(day), err)
		}
		ensured++
	}
	return ensured, nil
}
