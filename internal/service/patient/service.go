package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/security"
)

type Service struct {
	repo   repository.PatientRepository
	hasher security.PasswordHasher
	logger *logger.Logger
}

func NewService(repo repository.PatientRepository, hasher security.PasswordHasher, logger *logger.Logger) *Service {
	return &Service{
		repo:   repo,
		hasher: hasher,
		logger: logger,
	}
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	return s.repo.Get(ctx, id)
}

// FindOrCreate resolves a patient by email, then phone. When neither
// matches a minimal profile is created with a temporary password.
func (s *Service) FindOrCreate(ctx context.Context, match model.PatientMatch) (*model.Patient, error) {
	match.Email = strings.TrimSpace(strings.ToLower(match.Email))
	match.Phone = strings.TrimSpace(match.Phone)
	match.Name = strings.TrimSpace(match.Name)

	if match.Email == "" && match.Phone == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "email or phone is required")
	}

	if match.Email != "" {
		existing, err := s.repo.FindByEmail(ctx, match.Email)
		if err == nil {
			return existing, nil
		}
		if !apperrors.IsCode(err, apperrors.CodePatientNotFound) {
			return nil, fmt.Errorf("failed to look up patient by email: %w", err)
		}
	}
	if match.Phone != "" {
		existing, err := s.repo.FindByPhone(ctx, match.Phone)
		if err == nil {
			return existing, nil
		}
		if !apperrors.IsCode(err, apperrors.CodePatientNotFound) {
			return nil, fmt.Errorf("failed to look up patient by phone: %w", err)
		}
	}

	if match.Name == "" {
		return nil, apperrors.Validation(apperrors.CodeInvalidInput, "name is required for a new patient")
	}

	_, hash, err := security.IssueTemporary(s.hasher)
	if err != nil {
		return nil, err
	}

	patient := &model.Patient{
		Name:         match.Name,
		Email:        match.Email,
		Phone:        match.Phone,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, patient); err != nil {
		return nil, fmt.Errorf("failed to create patient: %w", err)
	}

	s.logger.Info("Patient created", "patient_id", patient.ID.String())
	return patient, nil
}
