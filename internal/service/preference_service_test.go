package service

import (
	"context"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pajalhq/pajal-api/internal/models"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
)

type mockPrefStore struct {
	pref    *models.Preference
	updated *models.Preference
}

func (m *mockPrefStore) Get(ctx context.Context, userID string) (*models.Preference, error) {
	if m.pref != nil {
		return m.pref, nil
	}
	return &models.Preference{UserID: userID, ThemeKey: "default"}, nil
}

func (m *mockPrefStore) Update(ctx context.Context, pref *models.Preference) error {
	m.updated = pref
	return nil
}

func TestPreferenceUpdateKeepsVisibilitySets(t *testing.T) {
	store := &mockPrefStore{pref: &models.Preference{
		UserID:           "u1",
		ThemeKey:         "default",
		ArchivedClassIDs: []string{"s1"},
		LoginHistory:     []string{"Budi Santoso"},
	}}
	svc := NewPreferenceService(store, validator.New(), zap.NewNop())

	minutes := 15
	pref, err := svc.Update(context.Background(), "u1", models.PreferenceUpdateRequest{
		ReminderMinutes: &minutes,
		ThemeKey:        "ocean",
		IsDarkMode:      true,
	})
	require.NoError(t, err)
	assert.Equal(t, "ocean", pref.ThemeKey)
	assert.True(t, pref.IsDarkMode)
	require.NotNil(t, pref.ReminderMinutes)
	assert.Equal(t, 15, *pref.ReminderMinutes)
	// Archive and login history are owned by their own flows.
	assert.Equal(t, []string{"s1"}, []string(store.updated.ArchivedClassIDs))
	assert.Equal(t, []string{"Budi Santoso"}, []string(store.updated.LoginHistory))
}

func TestPreferenceUpdateRejectsOutOfRangeReminder(t *testing.T) {
	svc := NewPreferenceService(&mockPrefStore{}, validator.New(), zap.NewNop())

	minutes := 2000
	_, err := svc.Update(context.Background(), "u1", models.PreferenceUpdateRequest{
		ReminderMinutes: &minutes,
		ThemeKey:        "default",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestPreferenceGetDefaults(t *testing.T) {
	svc := NewPreferenceService(&mockPrefStore{}, validator.New(), zap.NewNop())

	pref, err := svc.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "default", pref.ThemeKey)
}
