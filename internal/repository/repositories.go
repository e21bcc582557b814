package repository

// Repositories bundles one implementation of every repository
type Repositories struct {
	Doctors        DoctorRepository
	Schedules      ScheduleRepository
	Appointments   AppointmentRepository
	Patients       PatientRepository
	Payments       PaymentRepository
	MedicalRecords MedicalRecordRepository
	Leaves         LeaveRepository
	Outbox         OutboxRepository
}
