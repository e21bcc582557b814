package messaging

import (
	"context"

	"github.com/rs/zerolog"
)

// Handler processes one message body
type Handler func(ctx context.Context, payload []byte) error

// GroupConsumer is implemented by brokers that share a channel between
// competing consumers and acknowledge each message after its handler ran.
type GroupConsumer interface {
	ConsumeGroup(ctx context.Context, channel string, handler Handler) error
}

// Consume feeds every message on channel to handler until ctx is done.
// Brokers with consumer groups hand each message to one worker only.
// Handler errors are logged and the loop moves on.
func Consume(ctx context.Context, broker Broker, channel string, handler Handler, logger zerolog.Logger) error {
	logged := func(ctx context.Context, payload []byte) error {
		if err := handler(ctx, payload); err != nil {
			logger.Error().Err(err).Str("channel", channel).Msg("Failed to handle message")
		}
		return nil
	}

	if group, ok := broker.(GroupConsumer); ok {
		return group.ConsumeGroup(ctx, channel, logged)
	}

	msgChan, err := broker.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	go func() {
		for msg := range msgChan {
			_ = logged(ctx, msg)
		}
	}()

	return nil
}
