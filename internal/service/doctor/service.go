package doctor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
	"github.com/jwalitptl/hospital-api/pkg/logger"
)

const (
	defaultCacheTTL     = 5 * time.Minute
	cacheCleanupPeriod  = 10 * time.Minute
	defaultSlotDuration = 30
)

var weekdays = map[string]bool{
	"sunday": true, "monday": true, "tuesday": true, "wednesday": true,
	"thursday": true, "friday": true, "saturday": true,
}

// Service serves doctor profiles. Profiles are read on every booking and
// schedule generation, so they are cached in process.
type Service struct {
	repo   repository.DoctorRepository
	cache  *cache.Cache
	logger *logger.Logger
}

func NewService(repo repository.DoctorRepository, ttl time.Duration, logger *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &Service{
		repo:   repo,
		cache:  cache.New(ttl, cacheCleanupPeriod),
		logger: logger,
	}
}

func (s *Service) GetProfile(ctx context.Context, id uuid.UUID) (*model.DoctorProfile, error) {
	if cached, ok := s.cache.Get(id.String()); ok {
		profile := *cached.(*model.DoctorProfile)
		return &profile, nil
	}

	profile, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.SetDefault(id.String(), profile)

	out := *profile
	return &out, nil
}

func (s *Service) ListAvailable(ctx context.Context) ([]*model.DoctorProfile, error) {
	return s.repo.ListAvailable(ctx)
}

func (s *Service) Create(ctx context.Context, profile *model.DoctorProfile) error {
	if err := validateProfile(profile); err != nil {
		return err
	}
	if err := s.repo.Create(ctx, profile); err != nil {
		return fmt.Errorf("failed to create doctor: %w", err)
	}
	return nil
}

func (s *Service) UpdateProfile(ctx context.Context, profile *model.DoctorProfile) error {
	if err := validateProfile(profile); err != nil {
		return err
	}
	if err := s.repo.Update(ctx, profile); err != nil {
		return err
	}
	s.Invalidate(profile.ID)
	s.logger.Info("Doctor profile updated", "doctor_id", profile.ID.String())
	return nil
}

// Invalidate drops a cached profile after an edit
func (s *Service) Invalidate(id uuid.UUID) {
	s.cache.Delete(id.String())
}

func validateProfile(p *model.DoctorProfile) error {
	if p.Name == "" {
		return apperrors.Validation(apperrors.CodeInvalidInput, "doctor name is required")
	}
	if p.WorkStart == "" || p.WorkEnd == "" {
		return apperrors.Validation(apperrors.CodeInvalidTimeSlot, "working hours are required")
	}
	if p.SlotDuration == 0 {
		p.SlotDuration = defaultSlotDuration
	}
	if p.SlotDuration < 0 {
		return apperrors.Validation(apperrors.CodeInvalidTimeSlot, "slot duration must be positive")
	}
	for _, day := range p.AvailableDays {
		if !weekdays[strings.ToLower(strings.TrimSpace(day))] {
			return apperrors.Validation(apperrors.CodeInvalidInput, fmt.Sprintf("unknown weekday %q", day))
		}
	}
	return nil
}
