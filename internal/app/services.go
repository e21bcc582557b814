package app

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/jwalitptl/hospital-api/internal/repository"
	"github.com/jwalitptl/hospital-api/internal/service/appointment"
	"github.com/jwalitptl/hospital-api/internal/service/booking"
	"github.com/jwalitptl/hospital-api/internal/service/doctor"
	"github.com/jwalitptl/hospital-api/internal/service/leave"
	"github.com/jwalitptl/hospital-api/internal/service/medical"
	"github.com/jwalitptl/hospital-api/internal/service/notification"
	"github.com/jwalitptl/hospital-api/internal/service/patient"
	"github.com/jwalitptl/hospital-api/internal/service/payment"
	"github.com/jwalitptl/hospital-api/internal/service/schedule"
	"github.com/jwalitptl/hospital-api/pkg/logger"
	"github.com/jwalitptl/hospital-api/pkg/metrics"
	"github.com/jwalitptl/hospital-api/pkg/security"
)

type Options struct {
	HorizonDays      int
	Location         *time.Location
	VideoLinkBaseURL string
	DoctorCacheTTL   time.Duration
	BcryptCost       int
	// Now overrides the scheduling clock
	Now func() time.Time
}

// Services is the wired service graph shared by the API and the worker
type Services struct {
	Repositories  *repository.Repositories
	Doctors       *doctor.Service
	Schedules     *schedule.Service
	Patients      *patient.Service
	Payments      *payment.Service
	Medical       *medical.Service
	Notifications *notification.Service
	Booking       *booking.Service
	Appointments  *appointment.Service
	Leaves        *leave.Service
}

func NewServices(repos *repository.Repositories, opts Options, log *logger.Logger, m *metrics.Metrics) *Services {
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}

	doctors := doctor.NewService(repos.Doctors, opts.DoctorCacheTTL, log)
	schedules := schedule.NewService(repos.Schedules, doctors, repos.Leaves, schedule.Config{
		HorizonDays: opts.HorizonDays,
		Location:    opts.Location,
	}, log, m)
	if opts.Now != nil {
		schedules = schedules.WithClock(opts.Now)
	}

	patients := patient.NewService(repos.Patients, security.NewBcryptHasher(opts.BcryptCost), log)
	payments := payment.NewService(repos.Payments, log)
	records := medical.NewService(repos.MedicalRecords, log)
	notifications := notification.NewService(repos.Outbox, log)

	appointments := appointment.NewService(
		repos.Appointments,
		repos.Outbox,
		schedules,
		payments,
		records,
		notifications,
		patients,
		doctors,
		appointment.Config{VideoLinkBaseURL: opts.VideoLinkBaseURL},
		log,
		m,
	)

	return &Services{
		Repositories:  repos,
		Doctors:       doctors,
		Schedules:     schedules,
		Patients:      patients,
		Payments:      payments,
		Medical:       records,
		Notifications: notifications,
		Booking:       booking.NewService(repos.Appointments, schedules, patients, payments, log, m),
		Appointments:  appointments,
		Leaves:        leave.NewService(repos.Leaves, repos.Appointments, schedules, appointments, log, m),
	}
}
