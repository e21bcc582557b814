package medical

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository/memory"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

func TestCreateMedicalRecord(t *testing.T) {
	svc := NewService(memory.NewStore().MedicalRecords(), logger.Nop())
	ctx := context.Background()
	apt := &model.Appointment{Base: model.Base{ID: uuid.New()}, PatientID: uuid.New(), DoctorID: uuid.New()}

	record, err := svc.CreateMedicalRecord(ctx, apt, &model.ClinicalData{
		Diagnosis:    "Viral fever",
		Prescription: []model.Medication{{Name: "Paracetamol", Dosage: "500mg", Schedule: "1-0-1"}},
	})
	require.NoError(t, err)
	assert.Equal(t, apt.ID, record.AppointmentID)

	var meds []model.Medication
	require.NoError(t, record.Prescription.Unmarshal(&meds))
	assert.Equal(t, "Paracetamol", meds[0].Name)

	records, err := svc.ListByPatient(ctx, apt.PatientID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestCreateMedicalRecordRejectsEmpty(t *testing.T) {
	svc := NewService(memory.NewStore().MedicalRecords(), logger.Nop())

	_, err := svc.CreateMedicalRecord(context.Background(), &model.Appointment{}, &model.ClinicalData{})
	assert.Error(t, err)
}
