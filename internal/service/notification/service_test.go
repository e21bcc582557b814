package notification

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/messaging"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
)

type sentMessage struct {
	to, subject, body string
}

type fakeEmail struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeEmail) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, subject: subject, body: body})
	return nil
}

type fakeSMS struct {
	sent []string
	err  error
}

func (f *fakeSMS) Send(_ context.Context, to, body string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, to)
	return nil
}

func confirmedRequest() *model.NotificationRequest {
	token := 3
	link := "https://meet.example.com/abc"
	return &model.NotificationRequest{
		Kind:    model.NotificationConfirmed,
		Contact: model.Contact{Name: "Asha", Email: "asha@example.com", Phone: "+911234"},
		Details: model.AppointmentDetails{
			AppointmentID:    uuid.New(),
			DoctorName:       "Dr. Rao",
			Date:             "2025-03-03",
			TimeSlot:         model.TimeRange{Start: "09:00 AM", End: "09:30 AM"},
			ConsultationType: model.ConsultationOnline,
			TokenNumber:      &token,
			VideoLink:        &link,
		},
	}
}

func TestSendAppointmentEmailQueuesOutboxEvent(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Outbox(), logger.Nop())
	req := confirmedRequest()

	require.NoError(t, svc.SendAppointmentEmail(context.Background(), req.Contact, req.Kind, req.Details))

	events := store.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventNotificationRequested, events[0].EventType)

	var queued model.NotificationRequest
	require.NoError(t, json.Unmarshal(events[0].Payload, &queued))
	assert.Equal(t, req.Details.AppointmentID, queued.Details.AppointmentID)
}

func TestSendAppointmentEmailSkipsMissingContact(t *testing.T) {
	store := memory.NewStore()
	svc := NewService(store.Outbox(), logger.Nop())

	require.NoError(t, svc.SendAppointmentEmail(context.Background(), model.Contact{Name: "Anon"}, model.NotificationCancelled, model.AppointmentDetails{}))
	assert.Empty(t, store.OutboxEvents())
}

func TestRenderConfirmed(t *testing.T) {
	subject, body := Render(confirmedRequest())

	assert.Equal(t, "Appointment confirmed", subject)
	assert.Contains(t, body, "Dear Asha")
	assert.Contains(t, body, "token number is 3")
	assert.Contains(t, body, "https://meet.example.com/abc")
}

func TestRenderLeaveCancelled(t *testing.T) {
	req := confirmedRequest()
	req.Kind = model.NotificationLeaveCancelled

	subject, body := Render(req)
	assert.Equal(t, "Appointment cancelled by the hospital", subject)
	assert.Contains(t, body, "doctor is on leave")
}

func TestDispatchSendsOnAllChannels(t *testing.T) {
	email := &fakeEmail{}
	sms := &fakeSMS{}
	m := metrics.NewNoop()
	d := NewDispatcher(email, sms, logger.Nop(), m)

	require.NoError(t, d.Dispatch(context.Background(), confirmedRequest()))
	assert.Len(t, email.sent, 1)
	assert.Equal(t, []string{"+911234"}, sms.sent)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Notifications.WithLabelValues("email", "success")))
}

func TestDispatchFailsOnlyWhenEveryChannelFails(t *testing.T) {
	m := metrics.NewNoop()
	partial := NewDispatcher(&fakeEmail{err: errors.New("smtp down")}, &fakeSMS{}, logger.Nop(), m)
	assert.NoError(t, partial.Dispatch(context.Background(), confirmedRequest()))

	failing := NewDispatcher(&fakeEmail{err: errors.New("smtp down")}, nil, logger.Nop(), m)
	assert.Error(t, failing.Dispatch(context.Background(), confirmedRequest()))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Notifications.WithLabelValues("email", "error")))
}

func TestHandleMessageRoutesNotification(t *testing.T) {
	email := &fakeEmail{}
	d := NewDispatcher(email, nil, logger.Nop(), metrics.NewNoop())

	payload, err := json.Marshal(confirmedRequest())
	require.NoError(t, err)
	raw, err := json.Marshal(messaging.Message{ID: uuid.NewString(), Type: model.EventNotificationRequested, Payload: payload})
	require.NoError(t, err)

	require.NoError(t, d.HandleMessage(context.Background(), raw))
	require.Len(t, email.sent, 1)
	assert.Equal(t, "asha@example.com", email.sent[0].to)

	assert.Error(t, d.HandleMessage(context.Background(), []byte("not json")))
}
