package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

const patientColumns = `id, name, email, phone, password_hash, created_at, updated_at`

type patientRepository struct {
	BaseRepository
}

func NewPatientRepository(base BaseRepository) repository.PatientRepository {
	return &patientRepository{base}
}

func (r *patientRepository) Create(ctx context.Context, patient *model.Patient) error {
	query := `
		INSERT INTO patients (` + patientColumns + `)
		VALUES (:id, :name, :email, :phone, :password_hash, :created_at, :updated_at)
	`
	if patient.ID == uuid.Nil {
		patient.ID = uuid.New()
	}
	patient.CreatedAt = time.Now()
	patient.UpdatedAt = patient.CreatedAt

	if _, err := r.db.NamedExecContext(ctx, query, patient); err != nil {
		return fmt.Errorf("failed to create patient: %w", err)
	}
	return nil
}

func (r *patientRepository) Get(ctx context.Context, id uuid.UUID) (*model.Patient, error) {
	return r.getOne(ctx, `SELECT `+patientColumns+` FROM patients WHERE id = $1`, id)
}

func (r *patientRepository) FindByEmail(ctx context.Context, email string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE lower(email) = lower($1) AND email <> '' ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, query, email)
}

func (r *patientRepository) FindByPhone(ctx context.Context, phone string) (*model.Patient, error) {
	query := `SELECT ` + patientColumns + ` FROM patients WHERE phone = $1 AND phone <> '' ORDER BY created_at LIMIT 1`
	return r.getOne(ctx, query, phone)
}

func (r *patientRepository) getOne(ctx context.Context, query string, arg interface{}) (*model.Patient, error) {
	var patient model.Patient
	if err := r.db.GetContext(ctx, &patient, query, arg); err != nil {
		if isNoRows(err) {
			return nil, apperrors.ErrPatientNotFound
		}
		return nil, fmt.Errorf("failed to get patient: %w", err)
	}
	return &patient, nil
}
