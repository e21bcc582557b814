package postgres

import (
	"github.com/jmoiron/sqlx"

	"github.com/jwalitptl/hospital-api/internal/repository"
)

// NewRepositories builds every Postgres-backed repository on one pool
func NewRepositories(db *sqlx.DB) *repository.Repositories {
	base := NewBaseRepository(db)
	return &repository.Repositories{
		Doctors:        NewDoctorRepository(base),
		Schedules:      NewScheduleRepository(base),
		Appointments:   NewAppointmentRepository(base),
		Patients:       NewPatientRepository(base),
		Payments:       NewPaymentRepository(base),
		MedicalRecords: NewMedicalRecordRepository(base),
		Leaves:         NewLeaveRepository(base),
		Outbox:         NewOutboxRepository(base),
	}
}
