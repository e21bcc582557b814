package model

import (
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
)

type MedicalRecord struct {
	Base
	AppointmentID uuid.UUID      `db:"appointment_id" json:"appointment_id"`
	PatientID     uuid.UUID      `db:"patient_id" json:"patient_id"`
	DoctorID      uuid.UUID      `db:"doctor_id" json:"doctor_id"`
	Diagnosis     string         `db:"diagnosis" json:"diagnosis,omitempty"`
	Notes         string         `db:"notes" json:"notes,omitempty"`
	Prescription  types.JSONText `db:"prescription" json:"prescription"`
}

type Medication struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage"`
	Schedule string `json:"schedule"`
}
