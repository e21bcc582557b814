package email

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Dialer is the part of gomail.Dialer the sender uses
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// Service sends plain text mail over SMTP behind a circuit breaker so a
// dead mail server fails fast instead of stalling the notification worker.
type Service struct {
	dialer Dialer
	from   string
	cb     *gobreaker.CircuitBreaker
	log    *zap.Logger
}

func NewService(cfg Config, log *zap.Logger) *Service {
	return NewServiceWithDialer(gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password), cfg.From, log)
}

func NewServiceWithDialer(dialer Dialer, from string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return &Service{dialer: dialer, from: from, cb: cb, log: log}
}

func (s *Service) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", to)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.dialer.DialAndSend(m)
	})
	if err != nil {
		s.log.Error("Failed to send email", zap.String("to", to), zap.String("subject", subject), zap.Error(err))
		return fmt.Errorf("error sending email: %w", err)
	}

	s.log.Info("Email sent", zap.String("to", to), zap.String("subject", subject))
	return nil
}
