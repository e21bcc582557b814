package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type failingBroker struct {
	messaging.Broker
	calls int
}

func (b *failingBroker) Publish(context.Context, string, []byte) error {
	b.calls++
	return errors.New("broker unavailable")
}

func testConfig() OutboxProcessorConfig {
	return OutboxProcessorConfig{
		BatchSize:     10,
		PollInterval:  time.Second,
		RetryAttempts: 2,
		RetryDelay:    time.Millisecond,
	}
}

func TestProcessOncePublishesEnvelope(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := memory.NewStore()
	broker := messaging.NewMemoryBroker()
	msgs, err := broker.Subscribe(ctx, messaging.ChannelAppointmentEvents)
	require.NoError(t, err)

	require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{
		EventType: model.EventAppointmentStatusChanged,
		Payload:   json.RawMessage(`{"to":"confirmed"}`),
	}))

	p := NewOutboxProcessor(store.Outbox(), broker, testConfig(), logger.Nop(), metrics.NewNoop())
	n, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	select {
	case raw := <-msgs:
		var msg messaging.Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		assert.Equal(t, model.EventAppointmentStatusChanged, msg.Type)
		assert.JSONEq(t, `{"to":"confirmed"}`, string(msg.Payload))
	case <-time.After(time.Second):
		t.Fatal("message not published")
	}

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.OutboxStatusProcessed, events[0].Status)
	assert.NotNil(t, events[0].ProcessedAt)
}

func TestProcessOnceGivesUpAfterRetryAttempts(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{
		EventType: model.EventNotificationRequested,
		Payload:   json.RawMessage(`{}`),
	}))

	broker := &failingBroker{}
	p := NewOutboxProcessor(store.Outbox(), broker, testConfig(), logger.Nop(), metrics.NewNoop())

	_, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusPending, store.OutboxEvents()[0].Status)

	_, err = p.ProcessOnce(ctx)
	require.NoError(t, err)
	events := store.OutboxEvents()
	assert.Equal(t, model.OutboxStatusFailed, events[0].Status)
	require.NotNil(t, events[0].ErrorMessage)
	assert.Equal(t, 4, broker.calls)

	n, err := p.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Equal(t, 4, broker.calls)
}

func TestNewOutboxProcessorRejectsBadConfig(t *testing.T) {
	assert.Panics(t, func() {
		NewOutboxProcessor(memory.NewStore().Outbox(), messaging.NewMemoryBroker(), OutboxProcessorConfig{}, logger.Nop(), metrics.NewNoop())
	})
}

type countingBroker struct {
	messaging.Broker
	mu     sync.Mutex
	bodies map[string]int
}

func (b *countingBroker) Publish(_ context.Context, _ string, payload []byte) error {
	var msg messaging.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.bodies[msg.ID]++
	return nil
}

func TestConcurrentProcessorsPublishEachEventOnce(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	for i := 0; i < 25; i++ {
		require.NoError(t, store.Outbox().Create(ctx, &model.OutboxEvent{
			EventType: model.EventNotificationRequested,
			Payload:   json.RawMessage(`{}`),
		}))
	}

	broker := &countingBroker{bodies: make(map[string]int)}
	cfg := testConfig()
	cfg.BatchSize = 4

	var wg sync.WaitGroup
	for w := 0; w < 3; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := NewOutboxProcessor(store.Outbox(), broker, cfg, logger.Nop(), metrics.NewNoop())
			for i := 0; i < 10; i++ {
				_, err := p.ProcessOnce(ctx)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	require.Len(t, broker.bodies, 25)
	for id, n := range broker.bodies {
		assert.Equal(t, 1, n, "event %s published more than once", id)
	}
	for _, e := range store.OutboxEvents() {
		assert.Equal(t, model.OutboxStatusProcessed, e.Status)
	}
}
