package sms

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

type fakeAPI struct {
	params []*openapi.CreateMessageParams
	err    error
}

func (f *fakeAPI) CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.params = append(f.params, params)
	sid := "SM123"
	return &openapi.ApiV2010Message{Sid: &sid}, nil
}

func TestSendSetsParams(t *testing.T) {
	api := &fakeAPI{}
	svc := NewServiceWithAPI(api, "+15550001111", nil)

	require.NoError(t, svc.Send(context.Background(), "+911234", "Your token is 3"))
	require.Len(t, api.params, 1)
	assert.Equal(t, "+911234", *api.params[0].To)
	assert.Equal(t, "+15550001111", *api.params[0].From)
	assert.Equal(t, "Your token is 3", *api.params[0].Body)
}

func TestSendWrapsError(t *testing.T) {
	svc := NewServiceWithAPI(&fakeAPI{err: errors.New("unauthorized")}, "+15550001111", nil)
	assert.Error(t, svc.Send(context.Background(), "+911234", "hi"))
}

func TestNewServiceDisabledWithoutCredentials(t *testing.T) {
	assert.Nil(t, NewService(Config{}, nil))
}
