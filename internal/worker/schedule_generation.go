package worker

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

type DoctorLister interface {
	ListAvailable(ctx context.Context) ([]*model.DoctorProfile, error)
}

type ScheduleGenerator interface {
	GenerateUpcoming(ctx context.Context, doctorID uuid.UUID, days int) (int, error)
}

type LeaveRetrier interface {
	RetryIncomplete(ctx context.Context) ([]*model.LeaveApplication, error)
}

// ScheduleGenerationWorker keeps every available doctor's upcoming days
// materialized and finishes leave approvals whose effects were only
// partially applied
type ScheduleGenerationWorker struct {
	doctors     DoctorLister
	schedules   ScheduleGenerator
	leaves      LeaveRetrier
	horizonDays int
	interval    time.Duration
	logger      *logger.Logger
}

func NewScheduleGenerationWorker(
	doctors DoctorLister,
	schedules ScheduleGenerator,
	leaves LeaveRetrier,
	horizonDays int,
	interval time.Duration,
	logger *logger.Logger,
) *ScheduleGenerationWorker {
	return &ScheduleGenerationWorker{
		doctors:     doctors,
		schedules:   schedules,
		leaves:      leaves,
		horizonDays: horizonDays,
		interval:    interval,
		logger:      logger,
	}
}

func (w *ScheduleGenerationWorker) Start(ctx context.Context) {
	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce generates schedules for all available doctors, then retries
// incomplete leave approvals. It returns the number of days ensured.
func (w *ScheduleGenerationWorker) RunOnce(ctx context.Context) int {
	ensured := 0

	doctors, err := w.doctors.ListAvailable(ctx)
	if err != nil {
		w.logger.Error(err, "Failed to list doctors for schedule generation")
	} else {
		for _, doc := range doctors {
			n, err := w.schedules.GenerateUpcoming(ctx, doc.ID, w.horizonDays)
			ensured += n
			if err != nil {
				w.logger.Error(err, "Failed to generate schedules", "doctor_id", doc.ID.String())
			}
		}
	}

	if w.leaves != nil {
		results, err := w.leaves.RetryIncomplete(ctx)
		if err != nil {
			w.logger.Error(err, "Failed to retry leave effects")
		}
		for _, res := range results {
			if !res.Complete() {
				w.logger.Warn(nil, "Leave effects still incomplete",
					"leave_id", res.Leave.ID.String(),
					"failures", len(res.Failures))
			}
		}
	}

	w.logger.Debug("Schedule generation finished", "days", ensured)
	return ensured
}
