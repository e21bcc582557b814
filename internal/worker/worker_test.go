package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/internal/service/doctor"
	"github.com/jwalitptl/hospital-api/internal/service/schedule"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

func TestOutboxCleanupRemovesOldProcessedEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	outbox := store.Outbox()

	for i := 0; i < 3; i++ {
		require.NoError(t, outbox.Create(ctx, &model.OutboxEvent{EventType: model.EventNotificationRequested, Payload: json.RawMessage(`{}`)}))
	}
	events := store.OutboxEvents()
	require.NoError(t, outbox.UpdateStatus(ctx, events[0].ID, model.OutboxStatusProcessed, nil))
	require.NoError(t, outbox.UpdateStatus(ctx, events[1].ID, model.OutboxStatusFailed, nil))

	w := NewOutboxCleanupWorker(outbox, 7, time.Hour, logger.Nop())
	w.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }

	rows, err := w.Cleanup(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, rows)

	remaining := store.OutboxEvents()
	require.Len(t, remaining, 2)
	for _, e := range remaining {
		assert.NotEqual(t, events[0].ID, e.ID)
	}
}

func TestOutboxCleanupKeepsRecentEvents(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{EventType: model.EventNotificationRequested, Payload: json.RawMessage(`{}`)}))
	require.NoError(t, store.Outbox().UpdateStatus(ctx, store.OutboxEvents()[0].ID, model.OutboxStatusProcessed, nil))

	rows, err := NewOutboxCleanupWorker(store.Outbox(), 7, time.Hour, logger.Nop()).Cleanup(ctx)
	require.NoError(t, err)
	assert.Zero(t, rows)
}

type fakeLeaves struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeLeaves) RetryIncomplete(context.Context) ([]*model.LeaveApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return []*model.LeaveApplication{{
		Leave:    &model.LeaveRequest{Base: model.Base{ID: uuid.New()}},
		Failures: []string{"release failed"},
	}}, nil
}

type failingDoctors struct{}

func (failingDoctors) ListAvailable(context.Context) ([]*model.DoctorProfile, error) {
	return nil, errors.New("db down")
}

func TestScheduleGenerationRunOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	log := logger.Nop()

	doc := &model.DoctorProfile{
		Name:          "Dr. Mehta",
		AvailableDays: []string{"Monday", "Wednesday"},
		WorkStart:     "09:00 AM",
		WorkEnd:       "12:00 PM",
		SlotDuration:  30,
	}
	require.NoError(t, store.Doctors().Create(ctx, doc))

	doctors := doctor.NewService(store.Doctors(), time.Minute, log)
	monday := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	schedules := schedule.NewService(store.Schedules(), doctors, store.Leaves(), schedule.Config{Location: time.UTC}, log, metrics.NewNoop()).
		WithClock(func() time.Time { return monday })
	leaves := &fakeLeaves{}

	w := NewScheduleGenerationWorker(doctors, schedules, leaves, 7, time.Hour, log)
	assert.Equal(t, 2, w.RunOnce(ctx))
	assert.Equal(t, 1, leaves.calls)

	sched, err := schedules.GetSchedule(ctx, doc.ID, "2025-03-05")
	require.NoError(t, err)
	assert.Len(t, sched.Slots, 6)

	// Already generated days are ensured again without duplication
	assert.Equal(t, 2, w.RunOnce(ctx))
	sched, err = schedules.GetSchedule(ctx, doc.ID, "2025-03-05")
	require.NoError(t, err)
	assert.Len(t, sched.Slots, 6)
}

func TestScheduleGenerationContinuesWhenDoctorsFail(t *testing.T) {
	leaves := &fakeLeaves{}
	w := NewScheduleGenerationWorker(failingDoctors{}, nil, leaves, 7, time.Hour, logger.Nop())

	assert.Zero(t, w.RunOnce(context.Background()))
	assert.Equal(t, 1, leaves.calls)
}
