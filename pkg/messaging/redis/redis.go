package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/jwalitptl/hospital-api/pkg/messaging"
)

const (
	subscriberBuffer = 100
	receiveBackoff   = time.Second
	readBlock        = 5 * time.Second
	readCount        = 10
	// claimIdle is how long a delivered entry may stay unacknowledged before
	// another consumer in the group takes it over
	claimIdle = time.Minute

	payloadField       = "payload"
	defaultGroup       = "hospital-workers"
	defaultStreamLimit = 10000
)

type Config struct {
	URL          string
	MaxRetries   int
	RetryBackoff time.Duration
	PoolSize     int
	MinIdleConns int
	// Group is shared by all replicas so each entry is handled once
	Group string
	// Consumer names this process inside the group. Defaults to host and pid.
	Consumer     string
	StreamMaxLen int64
}

// Broker carries events over Redis streams. Publishes go through a circuit
// breaker so an unreachable Redis fails fast and the outbox keeps the
// event for a later poll. Consumers read through one consumer group, so
// running several workers splits the stream instead of copying it.
type Broker struct {
	client   *redis.Client
	breaker  *gobreaker.CircuitBreaker
	group    string
	consumer string
	maxLen   int64
	logger   zerolog.Logger
}

var _ messaging.GroupConsumer = (*Broker)(nil)

func NewBroker(ctx context.Context, config Config, logger zerolog.Logger) (*Broker, error) {
	opts, err := redis.ParseURL(config.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	if config.MaxRetries > 0 {
		opts.MaxRetries = config.MaxRetries
	}
	if config.RetryBackoff > 0 {
		opts.MinRetryBackoff = config.RetryBackoff
	}
	if config.PoolSize > 0 {
		opts.PoolSize = config.PoolSize
	}
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	group, consumer, maxLen := consumerIdentity(config)
	return &Broker{
		client:   client,
		breaker:  newBreaker(logger),
		group:    group,
		consumer: consumer,
		maxLen:   maxLen,
		logger:   logger.With().Str("group", group).Str("consumer", consumer).Logger(),
	}, nil
}

func consumerIdentity(config Config) (group, consumer string, maxLen int64) {
	group, consumer, maxLen = config.Group, config.Consumer, config.StreamMaxLen
	if group == "" {
		group = defaultGroup
	}
	if consumer == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "worker"
		}
		consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if maxLen <= 0 {
		maxLen = defaultStreamLimit
	}
	return group, consumer, maxLen
}

func newBreaker(logger zerolog.Logger) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:     "redis-publish",
		Interval: 30 * time.Second,
		Timeout:  10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().
				Str("breaker", name).
				Stringer("from", from).
				Stringer("to", to).
				Msg("Redis breaker changed state")
		},
	})
}

// Publish appends payload to the stream named channel, trimming it to
// roughly StreamMaxLen entries.
func (b *Broker) Publish(ctx context.Context, channel string, payload []byte) error {
	_, err := b.breaker.Execute(func() (interface{}, error) {
		return nil, b.client.XAdd(ctx, &redis.XAddArgs{
			Stream: channel,
			MaxLen: b.maxLen,
			Approx: true,
			Values: map[string]interface{}{payloadField: payload},
		}).Err()
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}

// ConsumeGroup reads channel as a member of the consumer group and acks each
// entry once handler returns. Handler errors are logged and the entry is
// still acked; a crash before the ack leaves it pending for another consumer
// to claim.
func (b *Broker) ConsumeGroup(ctx context.Context, channel string, handler messaging.Handler) error {
	if err := b.ensureGroup(ctx, channel); err != nil {
		return err
	}
	go b.consume(ctx, channel, handler)
	return nil
}

// Subscribe delivers entries through a channel. An entry is acked once it
// has been handed to the channel; the channel closes when ctx ends.
func (b *Broker) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	if err := b.ensureGroup(ctx, channel); err != nil {
		return nil, err
	}

	out := make(chan []byte, subscriberBuffer)
	go func() {
		defer close(out)
		b.consume(ctx, channel, func(ctx context.Context, payload []byte) error {
			select {
			case out <- payload:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		})
	}()
	return out, nil
}

func (b *Broker) ensureGroup(ctx context.Context, stream string) error {
	err := b.client.XGroupCreateMkStream(ctx, stream, b.group, "$").Err()
	if err != nil && !isBusyGroup(err) {
		return fmt.Errorf("create consumer group %s on %s: %w", b.group, stream, err)
	}
	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (b *Broker) consume(ctx context.Context, stream string, handler messaging.Handler) {
	// Entries this consumer read before a restart come first
	if msgs, err := b.read(ctx, stream, "0"); err == nil {
		b.handle(ctx, stream, msgs, handler)
	}

	lastClaim := time.Now()
	for ctx.Err() == nil {
		if time.Since(lastClaim) >= claimIdle {
			b.handle(ctx, stream, b.claim(ctx, stream), handler)
			lastClaim = time.Now()
		}

		msgs, err := b.read(ctx, stream, ">")
		switch {
		case err == nil:
			b.handle(ctx, stream, msgs, handler)
		case errors.Is(err, redis.Nil):
		case ctx.Err() != nil, errors.Is(err, redis.ErrClosed):
			return
		default:
			b.logger.Warn().Err(err).Str("stream", stream).Msg("Redis stream read failed")
			select {
			case <-time.After(receiveBackoff):
			case <-ctx.Done():
				return
			}
		}
	}
}

func (b *Broker) read(ctx context.Context, stream, from string) ([]redis.XMessage, error) {
	args := &redis.XReadGroupArgs{
		Group:    b.group,
		Consumer: b.consumer,
		Streams:  []string{stream, from},
		Count:    readCount,
	}
	if from == ">" {
		args.Block = readBlock
	}
	streams, err := b.client.XReadGroup(ctx, args).Result()
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

// claim takes over entries other consumers left unacknowledged
func (b *Broker) claim(ctx context.Context, stream string) []redis.XMessage {
	msgs, _, err := b.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   stream,
		Group:    b.group,
		Consumer: b.consumer,
		MinIdle:  claimIdle,
		Start:    "0-0",
		Count:    readCount,
	}).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		b.logger.Warn().Err(err).Str("stream", stream).Msg("Redis stream claim failed")
	}
	return msgs
}

func (b *Broker) handle(ctx context.Context, stream string, msgs []redis.XMessage, handler messaging.Handler) {
	for _, msg := range msgs {
		payload, ok := entryPayload(msg)
		if !ok {
			b.logger.Warn().Str("stream", stream).Str("entry", msg.ID).Msg("Dropping stream entry without payload")
		} else if err := handler(ctx, payload); err != nil {
			if ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Str("stream", stream).Str("entry", msg.ID).Msg("Failed to handle message")
		}
		if err := b.client.XAck(ctx, stream, b.group, msg.ID).Err(); err != nil {
			b.logger.Warn().Err(err).Str("stream", stream).Str("entry", msg.ID).Msg("Redis stream ack failed")
		}
	}
}

func entryPayload(msg redis.XMessage) ([]byte, bool) {
	switch v := msg.Values[payloadField].(type) {
	case string:
		return []byte(v), true
	case []byte:
		return v, true
	default:
		return nil, false
	}
}

func (b *Broker) Close() error {
	return b.client.Close()
}
