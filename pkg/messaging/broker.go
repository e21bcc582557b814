package messaging

import (
	"context"
	"encoding/json"
)

// Channels carrying appointment events between the outbox processor and consumers
const (
	ChannelAppointmentEvents = "hospital.appointment.events"
)

// Broker defines the interface for message brokers
type Broker interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	Close() error
}

// Message is the envelope published for every outbox event
type Message struct {
	ID      string          `json:"id"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}
