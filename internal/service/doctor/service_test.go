package doctor

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

func profile() *model.DoctorProfile {
	return &model.DoctorProfile{
		Name:          "Dr. Mehta",
		AvailableDays: []string{"Monday", "thursday"},
		WorkStart:     "09:00 AM",
		WorkEnd:       "01:00 PM",
		OnlineFee:     500,
		OfflineFee:    400,
	}
}

func TestCreateDefaultsSlotDuration(t *testing.T) {
	svc := NewService(memory.NewStore().Doctors(), time.Minute, logger.Nop())
	p := profile()

	require.NoError(t, svc.Create(context.Background(), p))
	assert.Equal(t, 30, p.SlotDuration)
	assert.NotEqual(t, uuid.Nil, p.ID)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(memory.NewStore().Doctors(), time.Minute, logger.Nop())

	tests := []struct {
		name string
		edit func(*model.DoctorProfile)
		code apperrors.Code
	}{
		{"missing name", func(p *model.DoctorProfile) { p.Name = "" }, apperrors.CodeInvalidInput},
		{"missing hours", func(p *model.DoctorProfile) { p.WorkEnd = "" }, apperrors.CodeInvalidTimeSlot},
		{"negative slot", func(p *model.DoctorProfile) { p.SlotDuration = -15 }, apperrors.CodeInvalidTimeSlot},
		{"bad weekday", func(p *model.DoctorProfile) { p.AvailableDays = []string{"Funday"} }, apperrors.CodeInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := profile()
			tt.edit(p)
			err := svc.Create(context.Background(), p)
			assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
			assert.Equal(t, tt.code, apperrors.CodeOf(err))
		})
	}
}

func TestGetProfileServesFromCacheUntilUpdated(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	svc := NewService(store.Doctors(), time.Minute, logger.Nop())

	p := profile()
	require.NoError(t, svc.Create(ctx, p))

	first, err := svc.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	first.Name = "mutated copy"

	changed := *p
	changed.OfflineFee = 450
	require.NoError(t, store.Doctors().Update(ctx, &changed))

	cached, err := svc.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. Mehta", cached.Name)
	assert.Equal(t, 400.0, cached.OfflineFee)

	changed.OfflineFee = 475
	require.NoError(t, svc.UpdateProfile(ctx, &changed))

	fresh, err := svc.GetProfile(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 475.0, fresh.OfflineFee)
}

func TestGetProfileUnknownDoctor(t *testing.T) {
	svc := NewService(memory.NewStore().Doctors(), 0, logger.Nop())
	_, err := svc.GetProfile(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrDoctorNotFound)
}

func TestListAvailableSkipsUnavailable(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.NewStore().Doctors(), time.Minute, logger.Nop())

	on := profile()
	require.NoError(t, svc.Create(ctx, on))
	off := profile()
	off.Name = "Dr. Away"
	off.Status = model.AvailabilityUnavailable
	require.NoError(t, svc.Create(ctx, off))

	list, err := svc.ListAvailable(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, on.ID, list[0].ID)
}
