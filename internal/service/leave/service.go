package leave

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

const cancelReason = "doctor on leave"

type ScheduleBlocker interface {
	BulkBlock(ctx context.Context, doctorID uuid.UUID, from, to string) (int, error)
}

type AppointmentCanceller interface {
	HospitalCancel(ctx context.Context, id uuid.UUID, reason string) (*model.Appointment, error)
}

type Service struct {
	repo         repository.LeaveRepository
	appointments repository.AppointmentRepository
	schedules    ScheduleBlocker
	canceller    AppointmentCanceller
	logger       *logger.Logger
	metrics      *metrics.Metrics
}

func NewService(
	repo repository.LeaveRepository,
	appointments repository.AppointmentRepository,
	schedules ScheduleBlocker,
	canceller AppointmentCanceller,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *Service {
	return &Service{
		repo:         repo,
		appointments: appointments,
		schedules:    schedules,
		canceller:    canceller,
		logger:       logger,
		metrics:      metrics,
	}
}

func (s *Service) RequestLeave(ctx context.Context, leave *model.LeaveRequest) error {
	if err := validate(leave); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, leave); err != nil {
		return fmt.Errorf("failed to create leave request: %w", err)
	}
	s.logger.Info("Leave requested",
		"leave_id", leave.ID.String(),
		"doctor_id", leave.DoctorID.String(),
		"from", leave.StartDate,
		"to", leave.EndDate)
	return nil
}

func (s *Service) GetLeave(ctx context.Context, id uuid.UUID) (*model.LeaveRequest, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListLeaves(ctx context.Context, doctorID uuid.UUID, status model.LeaveStatus) ([]*model.LeaveRequest, error) {
	return s.repo.List(ctx, doctorID, status)
}

// Approve decides a pending leave and applies it to the doctor's calendar.
// The approval stands even when applying it partially fails; the returned
// report lists what failed and RetryEffects picks it up again.
func (s *Service) Approve(ctx context.Context, id, decidedBy uuid.UUID) (*model.LeaveApplication, error) {
	leave, err := s.repo.Decide(ctx, id, model.LeaveStatusApproved, decidedBy)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Leave approved", "leave_id", id.String(), "decided_by", decidedBy.String())
	return s.apply(ctx, leave), nil
}

func (s *Service) Reject(ctx context.Context, id, decidedBy uuid.UUID) (*model.LeaveRequest, error) {
	leave, err := s.repo.Decide(ctx, id, model.LeaveStatusRejected, decidedBy)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Leave rejected", "leave_id", id.String(), "decided_by", decidedBy.String())
	return leave, nil
}

// RetryEffects re-applies an approved leave. Every step is idempotent.
func (s *Service) RetryEffects(ctx context.Context, id uuid.UUID) (*model.LeaveApplication, error) {
	leave, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if leave.Status != model.LeaveStatusApproved {
		return nil, apperrors.Conflict(apperrors.CodeInvalidState, "only approved leave can be applied")
	}
	return s.apply(ctx, leave), nil
}

// RetryIncomplete re-applies every approved leave whose effects did not finish
func (s *Service) RetryIncomplete(ctx context.Context) ([]*model.LeaveApplication, error) {
	pending, err := s.repo.ListIncomplete(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list incomplete leaves: %w", err)
	}
	reports := make([]*model.LeaveApplication, 0, len(pending))
	for _, leave := range pending {
		reports = append(reports, s.apply(ctx, leave))
	}
	return reports, nil
}

func (s *Service) apply(ctx context.Context, leave *model.LeaveRequest) *model.LeaveApplication {
	report := &model.LeaveApplication{Leave: leave, CancelledAppointments: []uuid.UUID{}}

	blocked, err := s.schedules.BulkBlock(ctx, leave.DoctorID, leave.StartDate, leave.EndDate)
	if err != nil {
		report.Failures = append(report.Failures, fmt.Sprintf("block schedules: %v", err))
	}
	report.BlockedSchedules = blocked

	affected, err := s.appointments.List(ctx, &model.AppointmentFilters{
		DoctorID:  leave.DoctorID,
		StartDate: leave.StartDate,
		EndDate:   leave.EndDate,
	})
	if err != nil {
		report.Failures = append(report.Failures, fmt.Sprintf("list appointments: %v", err))
		affected = nil
	}

	for _, apt := range affected {
		// Hospital-cancelled ones are revisited so an interrupted slot release is retried
		if apt.Status.Terminal() && apt.Status != model.AppointmentStatusHospitalCancelled {
			continue
		}
		already := apt.Status == model.AppointmentStatusHospitalCancelled
		if _, err := s.canceller.HospitalCancel(ctx, apt.ID, cancelReason); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("cancel appointment %s: %v", apt.ID, err))
			continue
		}
		if !already {
			report.CancelledAppointments = append(report.CancelledAppointments, apt.ID)
			s.metrics.LeaveCancellations.Inc()
		}
	}

	if report.Complete() {
		if err := s.repo.MarkEffectsCompleted(ctx, leave.ID); err != nil {
			report.Failures = append(report.Failures, fmt.Sprintf("mark completed: %v", err))
		} else {
			leave.EffectsCompleted = true
		}
	}

	if !report.Complete() {
		s.logger.Error(fmt.Errorf("%d step(s) failed", len(report.Failures)), "Leave applied partially",
			"leave_id", leave.ID.String(),
			"failures", report.Failures)
	} else {
		s.logger.Info("Leave applied",
			"leave_id", leave.ID.String(),
			"blocked_schedules", report.BlockedSchedules,
			"cancelled_appointments", len(report.CancelledAppointments))
	}
	return report
}

func validate(leave *model.LeaveRequest) error {
	if leave.DoctorID == uuid.Nil {
		return apperrors.Validation(apperrors.CodeInvalidInput, "doctor is required")
	}
	if _, err := model.ParseDate(leave.StartDate); err != nil {
		return apperrors.Validation(apperrors.CodeInvalidDate, err.Error())
	}
	if _, err := model.ParseDate(leave.EndDate); err != nil {
		return apperrors.Validation(apperrors.CodeInvalidDate, err.Error())
	}
	if leave.StartDate > leave.EndDate {
		return apperrors.Validation(apperrors.CodeInvalidDate, "leave ends before it starts")
	}
	switch leave.Type {
	case model.LeaveTypeSick, model.LeaveTypeCasual:
	default:
		return apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("unknown leave type %q", leave.Type))
	}
	switch leave.Duration {
	case "":
		leave.Duration = model.LeaveDurationFullDay
	case model.LeaveDurationFullDay, model.LeaveDurationHalfDay:
	default:
		return apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("unknown leave duration %q", leave.Duration))
	}
	return nil
}
