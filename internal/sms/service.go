package sms

import (
	"context"
	"fmt"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
	"go.uber.org/zap"
)

type Config struct {
	AccountSID string
	AuthToken  string
	From       string
}

// MessageCreator is the slice of the Twilio API client the sender needs
type MessageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

type Service struct {
	api  MessageCreator
	from string
	log  *zap.Logger
}

// NewService returns nil when Twilio is not configured; callers treat a nil
// sender as SMS disabled.
func NewService(cfg Config, log *zap.Logger) *Service {
	if cfg.AccountSID == "" || cfg.AuthToken == "" || cfg.From == "" {
		return nil
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return NewServiceWithAPI(client.Api, cfg.From, log)
}

func NewServiceWithAPI(api MessageCreator, from string, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{api: api, from: from, log: log}
}

func (s *Service) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.api.CreateMessage(params)
	if err != nil {
		s.log.Error("Failed to send SMS", zap.String("to", to), zap.Error(err))
		return fmt.Errorf("error sending sms: %w", err)
	}

	sid := ""
	if resp != nil && resp.Sid != nil {
		sid = *resp.Sid
	}
	s.log.Info("SMS sent", zap.String("to", to), zap.String("sid", sid))
	return nil
}
