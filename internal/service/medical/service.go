package medical

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

type Service struct {
	repo   repository.MedicalRecordRepository
	logger *logger.Logger
}

func NewService(repo repository.MedicalRecordRepository, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

// CreateMedicalRecord stores the clinical data captured when an appointment completes
func (s *Service) CreateMedicalRecord(ctx context.Context, apt *model.Appointment, data *model.ClinicalData) (*model.MedicalRecord, error) {
	if data.Empty() {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "clinical data is empty")
	}

	prescription := data.Prescription
	if prescription == nil {
		prescription = []model.Medication{}
	}
	raw, err := json.Marshal(prescription)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal prescription: %w", err)
	}

	record := &model.MedicalRecord{
		AppointmentID: apt.ID,
		PatientID:     apt.PatientID,
		DoctorID:      apt.DoctorID,
		Diagnosis:     data.Diagnosis,
		Notes:         data.Notes,
		Prescription:  types.JSONText(raw),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create medical record: %w", err)
	}

	s.logger.Info("Medical record created", "record_id", record.ID.String(), "appointment_id", apt.ID.String())
	return record, nil
}

func (s *Service) GetMedicalRecord(ctx context.Context, id uuid.UUID) (*model.MedicalRecord, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*model.MedicalRecord, error) {
	return s.repo.ListByPatient(ctx, patientID)
}
