package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type OutboxProcessorConfig struct {
	BatchSize    int
	PollInterval time.Duration
	// RetryAttempts bounds both the in-place publish retries and the number
	// of polls an event may be picked up before it is marked failed
	RetryAttempts int
	RetryDelay    time.Duration
	// Channel the events are published on
	Channel string
}

// validate rejects zero values; config loading supplies the defaults
func (c OutboxProcessorConfig) validate() error {
	switch {
	case c.BatchSize <= 0:
		return fmt.Errorf("outbox batch size must be positive, got %d", c.BatchSize)
	case c.PollInterval <= 0:
		return fmt.Errorf("outbox poll interval must be positive, got %s", c.PollInterval)
	case c.RetryAttempts <= 0:
		return fmt.Errorf("outbox retry attempts must be positive, got %d", c.RetryAttempts)
	case c.RetryDelay <= 0:
		return fmt.Errorf("outbox retry delay must be positive, got %s", c.RetryDelay)
	}
	return nil
}

// OutboxProcessor relays committed outbox events to the broker
type OutboxProcessor struct {
	repo    repository.OutboxRepository
	broker  messaging.Broker
	config  OutboxProcessorConfig
	logger  *logger.Logger
	metrics *metrics.Metrics
}

func NewOutboxProcessor(
	repo repository.OutboxRepository,
	broker messaging.Broker,
	config OutboxProcessorConfig,
	logger *logger.Logger,
	metrics *metrics.Metrics,
) *OutboxProcessor {
	if err := config.validate(); err != nil {
		panic(err)
	}
	if config.Channel == "" {
		config.Channel = messaging.ChannelAppointmentEvents
	}

	return &OutboxProcessor{
		repo:    repo,
		broker:  broker,
		config:  config,
		logger:  logger,
		metrics: metrics,
	}
}

func (p *OutboxProcessor) Start(ctx context.Context) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	p.logger.Info("Outbox processor started",
		"channel", p.config.Channel,
		"batch_size", p.config.BatchSize,
		"interval", p.config.PollInterval.String())

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Outbox processor stopped")
			return
		case <-ticker.C:
			n, err := p.ProcessOnce(ctx)
			if err != nil {
				p.logger.Error(err, "Outbox poll failed")
			} else if n > 0 {
				p.logger.Debug("Relayed outbox events", "count", n)
			}
		}
	}
}

// ProcessOnce relays one batch and reports how many events were published
func (p *OutboxProcessor) ProcessOnce(ctx context.Context) (int, error) {
	timer := prometheus.NewTimer(p.metrics.OutboxProcessingLatency)
	defer timer.ObserveDuration()

	events, err := p.repo.GetPendingEvents(ctx, p.config.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("load pending outbox events: %w", err)
	}
	p.metrics.OutboxQueueSize.Set(float64(len(events)))

	published := 0
	for _, event := range events {
		if err := p.processEvent(ctx, event); err != nil {
			p.logger.Error(err, "Outbox event not relayed",
				"event_id", event.ID.String(),
				"event_type", event.EventType)
			continue
		}
		published++
	}

	return published, nil
}

func (p *OutboxProcessor) processEvent(ctx context.Context, event *model.OutboxEvent) error {
	body, err := json.Marshal(messaging.Message{
		ID:      event.ID.String(),
		Type:    event.EventType,
		Payload: event.Payload,
	})
	if err != nil {
		return p.fail(ctx, event, fmt.Errorf("encode outbox event: %w", err), true)
	}

	err = retry(ctx, p.config.RetryAttempts, p.config.RetryDelay, func() error {
		return p.broker.Publish(ctx, p.config.Channel, body)
	})
	if err != nil {
		return p.fail(ctx, event, err, event.RetryCount >= p.config.RetryAttempts)
	}

	p.metrics.OutboxEventsProcessed.Inc()
	if err := p.repo.UpdateStatus(ctx, event.ID, model.OutboxStatusProcessed, nil); err != nil {
		p.logger.Error(err, "Published event not marked processed", "event_id", event.ID.String())
		return err
	}

	return nil
}

// fail records a publish failure. The event stays pending for the next poll
// until it has used up its attempts.
func (p *OutboxProcessor) fail(ctx context.Context, event *model.OutboxEvent, cause error, final bool) error {
	status := model.OutboxStatusPending
	if final {
		status = model.OutboxStatusFailed
		p.metrics.OutboxEventsFailed.Inc()
	} else {
		p.metrics.OutboxRetries.WithLabelValues(event.EventType).Inc()
	}

	msg := cause.Error()
	if err := p.repo.UpdateStatus(ctx, event.ID, status, &msg); err != nil {
		p.logger.Error(err, "Outbox failure not recorded", "event_id", event.ID.String())
	}
	return cause
}

// retry runs fn up to attempts times with a fixed delay, giving up early
// when ctx ends
func retry(ctx context.Context, attempts int, delay time.Duration, fn func() error) error {
	err := fn()
	for i := 1; i < attempts && err != nil; i++ {
		select {
		case <-ctx.Done():
			return err
		case <-time.After(delay):
		}
		err = fn()
	}
	return err
}
