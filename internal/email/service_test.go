package email

import (
	"context"
	"errors"
	"testing"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent  []*gomail.Message
	err   error
	calls int
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	d.calls++
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestSendBuildsMessage(t *testing.T) {
	dialer := &fakeDialer{}
	svc := NewServiceWithDialer(dialer, "noreply@hospital.local", zap.NewNop())

	require.NoError(t, svc.Send(context.Background(), "asha@example.com", "Appointment confirmed", "See you soon"))
	require.Len(t, dialer.sent, 1)
	assert.Equal(t, []string{"asha@example.com"}, dialer.sent[0].GetHeader("To"))
	assert.Equal(t, []string{"Appointment confirmed"}, dialer.sent[0].GetHeader("Subject"))
}

func TestBreakerOpensAfterRepeatedFailures(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	svc := NewServiceWithDialer(dialer, "noreply@hospital.local", nil)

	for i := 0; i < 5; i++ {
		assert.Error(t, svc.Send(context.Background(), "a@example.com", "s", "b"))
	}
	err := svc.Send(context.Background(), "a@example.com", "s", "b")
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	assert.Equal(t, 5, dialer.calls)
}
