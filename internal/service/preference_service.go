package service

import (
	"context"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/pajalhq/pajal-api/internal/models"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
)

type preferenceRepository interface {
	Get(ctx context.Context, userID string) (*models.Preference, error)
	Update(ctx context.Context, pref *models.Preference) error
}

// PreferenceService exposes the user's reminder and theme settings.
type PreferenceService struct {
	prefs     preferenceRepository
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPreferenceService constructs a PreferenceService.
func NewPreferenceService(prefs preferenceRepository, validate *validator.Validate, logger *zap.Logger) *PreferenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &PreferenceService{prefs: prefs, validator: validate, logger: logger}
}

// Get returns the caller's preferences, creating the default row on first use.
func (s *PreferenceService) Get(ctx context.Context, userID string) (*models.Preference, error) {
	pref, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}
	return pref, nil
}

// Update stores the caller's reminder and theme settings. The visibility sets
// (archive, soft-delete, login history) are owned by their flows and are not
// editable here.
func (s *PreferenceService) Update(ctx context.Context, userID string, req models.PreferenceUpdateRequest) (*models.Preference, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid preference payload")
	}

	pref, err := s.prefs.Get(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}

	pref.ReminderMinutes = req.ReminderMinutes
	pref.ThemeKey = req.ThemeKey
	pref.IsDarkMode = req.IsDarkMode

	if err := s.prefs.Update(ctx, pref); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update preferences")
	}
	return pref, nil
}
