package patient

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/security"
)

func newService() *Service {
	return NewService(memory.NewStore().Patients(), security.NewBcryptHasher(bcrypt.MinCost), logger.Nop())
}

func TestFindOrCreateMatchesEmailThenPhone(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	created, err := svc.FindOrCreate(ctx, model.PatientMatch{Name: "Asha", Email: "Asha@Example.com", Phone: "+911234"})
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", created.Email)
	assert.NotEmpty(t, created.PasswordHash)

	byEmail, err := svc.FindOrCreate(ctx, model.PatientMatch{Email: "asha@example.com"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, byEmail.ID)

	byPhone, err := svc.FindOrCreate(ctx, model.PatientMatch{Email: "other@example.com", Phone: "+911234"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, byPhone.ID)
}

func TestFindOrCreateRequiresContact(t *testing.T) {
	_, err := newService().FindOrCreate(context.Background(), model.PatientMatch{Name: "Nobody"})
	assert.True(t, apperrors.IsCode(err, apperrors.CodeInvalidInput))
}

func TestFindOrCreateRequiresNameForNewPatient(t *testing.T) {
	_, err := newService().FindOrCreate(context.Background(), model.PatientMatch{Phone: "+915555"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindValidation))
}
