package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/pkg/clock"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
)

type mockAuthUsers struct {
	byUsername    map[string]*models.User
	byID          map[string]*models.User
	refreshTokens map[string]*models.RefreshToken
	classTypes    map[string]string
	revokedUsers  []string
}

func newMockAuthUsers(users ...*models.User) *mockAuthUsers {
	m := &mockAuthUsers{
		byUsername:    map[string]*models.User{},
		byID:          map[string]*models.User{},
		refreshTokens: map[string]*models.RefreshToken{},
		classTypes:    map[string]string{},
	}
	for _, u := range users {
		m.byUsername[u.Username] = u
		m.byID[u.ID] = u
	}
	return m
}

func (m *mockAuthUsers) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	if user, ok := m.byUsername[username]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUsers) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := m.byID[id]; ok {
		return user, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUsers) Create(ctx context.Context, user *models.User) error {
	m.byUsername[user.Username] = user
	m.byID[user.ID] = user
	return nil
}

func (m *mockAuthUsers) UpdateClassType(ctx context.Context, id, classType string, updatedAt time.Time) error {
	m.classTypes[id] = classType
	return nil
}

func (m *mockAuthUsers) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	m.refreshTokens[token.Token] = token
	return nil
}

func (m *mockAuthUsers) FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := m.refreshTokens[token]; ok {
		return rt, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockAuthUsers) RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error {
	for _, rt := range m.refreshTokens {
		if rt.ID == id {
			rt.Revoked = true
			rt.RevokedAt = &revokedAt
		}
	}
	return nil
}

func (m *mockAuthUsers) RevokeUserRefreshTokens(ctx context.Context, userID string) error {
	m.revokedUsers = append(m.revokedUsers, userID)
	return nil
}

type mockAuthPrefs struct {
	history map[string][]string
}

func (m *mockAuthPrefs) Get(ctx context.Context, userID string) (*models.Preference, error) {
	return &models.Preference{UserID: userID, ThemeKey: "default", LoginHistory: m.history[userID]}, nil
}

func (m *mockAuthPrefs) SetLoginHistory(ctx context.Context, userID string, history []string) error {
	if m.history == nil {
		m.history = map[string][]string{}
	}
	m.history[userID] = history
	return nil
}

func authFixture(users ...*models.User) (*AuthService, *mockAuthUsers, *mockAuthPrefs) {
	repo := newMockAuthUsers(users...)
	prefs := &mockAuthPrefs{}
	svc := NewAuthService(repo, prefs, validator.New(), zap.NewNop(), clock.NewMock(testNow), AuthConfig{
		AccessTokenSecret:  "secret",
		AccessTokenExpiry:  time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		Issuer:             "pajal-api",
		DefaultPassword:    "Pajal123!",
		UsernameDomain:     "student.ac.id",
		Location:           time.UTC,
	})
	return svc, repo, prefs
}

func hashOf(t *testing.T, password string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func TestLoginSuccess(t *testing.T) {
	user := &models.User{
		ID:               "u1",
		Name:             "Budi Santoso",
		Username:         "budi.santoso@student.ac.id",
		PasswordHash:     hashOf(t, "Pajal123!"),
		Role:             models.RoleLecturer,
		RegistrationDate: testNow.AddDate(-1, 0, 0),
	}
	svc, repo, prefs := authFixture(user)

	res, err := svc.Login(context.Background(), models.LoginRequest{Username: "Budi.Santoso@student.ac.id ", Password: "Pajal123!"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, "u1", res.User.ID)
	assert.NotEmpty(t, repo.refreshTokens)
	assert.Equal(t, []string{"Budi Santoso"}, prefs.history["u1"])
}

func TestLoginWrongPassword(t *testing.T) {
	user := &models.User{ID: "u1", Username: "budi.santoso@student.ac.id", PasswordHash: hashOf(t, "Pajal123!")}
	svc, _, _ := authFixture(user)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "budi.santoso@student.ac.id", Password: "wrong"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginUnknownUser(t *testing.T) {
	svc, _, _ := authFixture()

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "ghost", Password: "whatever"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, appErrors.FromError(err).Code)
}

func TestLoginSuspended(t *testing.T) {
	user := &models.User{ID: "u1", Username: "budi.santoso@student.ac.id", PasswordHash: hashOf(t, "Pajal123!"), IsSuspended: true}
	svc, _, _ := authFixture(user)

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: "budi.santoso@student.ac.id", Password: "Pajal123!"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSuspendedAccount.Code, appErrors.FromError(err).Code)
}

func TestLoginRollsStudentClassType(t *testing.T) {
	classType := "SK1A"
	user := &models.User{
		ID:               "u1",
		Name:             "Budi Santoso",
		Username:         "budi.santoso@student.ac.id",
		PasswordHash:     hashOf(t, "Pajal123!"),
		Role:             models.RoleStudent,
		ClassType:        &classType,
		RegistrationDate: time.Date(2025, time.February, 10, 0, 0, 0, 0, time.UTC),
	}
	svc, repo, _ := authFixture(user)

	// One academic half has passed between registration and testNow.
	res, err := svc.Login(context.Background(), models.LoginRequest{Username: user.Username, Password: "Pajal123!"})
	require.NoError(t, err)
	assert.Equal(t, "SK2A", repo.classTypes["u1"])
	require.NotNil(t, res.User.ClassType)
	assert.Equal(t, "SK2A", *res.User.ClassType)
}

func TestLoginHistoryDeduplicatesAndCaps(t *testing.T) {
	user := &models.User{ID: "u1", Name: "Budi Santoso", Username: "budi.santoso@student.ac.id", PasswordHash: hashOf(t, "Pajal123!")}
	svc, _, prefs := authFixture(user)
	prefs.history = map[string][]string{"u1": {"Ani", "Budi Santoso", "Citra", "Dewi", "Eka"}}

	_, err := svc.Login(context.Background(), models.LoginRequest{Username: user.Username, Password: "Pajal123!"})
	require.NoError(t, err)
	assert.Equal(t, []string{"Budi Santoso", "Ani", "Citra", "Dewi", "Eka"}, prefs.history["u1"])
}

func TestRegisterCreatesStudentAndLogsIn(t *testing.T) {
	svc, repo, _ := authFixture()

	res, err := svc.Register(context.Background(), models.RegisterRequest{Name: "  Budi Santoso  "}, "127.0.0.1", "test-agent")
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.Equal(t, "budi.santoso@student.ac.id", res.User.Username)
	assert.Equal(t, models.RoleStudent, res.User.Role)
	assert.False(t, res.User.ProfileComplete)

	created := repo.byUsername["budi.santoso@student.ac.id"]
	require.NotNil(t, created)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.PasswordHash), []byte("Pajal123!")))
}

func TestRegisterDuplicateName(t *testing.T) {
	existing := &models.User{ID: "u1", Username: "budi.santoso@student.ac.id"}
	svc, _, _ := authFixture(existing)

	_, err := svc.Register(context.Background(), models.RegisterRequest{Name: "Budi Santoso"}, "", "")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestRefreshTokenRotates(t *testing.T) {
	user := &models.User{ID: "u1", Username: "budi.santoso@student.ac.id", PasswordHash: "hash"}
	svc, repo, _ := authFixture(user)
	repo.refreshTokens["old"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "old", ExpiresAt: testNow.Add(time.Hour)}

	res, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.AccessToken)
	assert.NotEqual(t, "old", res.RefreshToken)
	assert.True(t, repo.refreshTokens["old"].Revoked)
}

func TestRefreshTokenExpired(t *testing.T) {
	user := &models.User{ID: "u1", Username: "budi.santoso@student.ac.id"}
	svc, repo, _ := authFixture(user)
	repo.refreshTokens["old"] = &models.RefreshToken{ID: "rt1", UserID: "u1", Token: "old", ExpiresAt: testNow.Add(-time.Minute)}

	_, err := svc.RefreshToken(context.Background(), models.RefreshTokenRequest{RefreshToken: "old"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}

func TestLogoutRejectsForeignToken(t *testing.T) {
	svc, repo, _ := authFixture()
	repo.refreshTokens["tok"] = &models.RefreshToken{ID: "rt1", UserID: "owner", Token: "tok", ExpiresAt: testNow.Add(time.Hour)}

	err := svc.Logout(context.Background(), "tok", "intruder")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestValidateToken(t *testing.T) {
	user := &models.User{ID: "u1", Name: "Budi Santoso", Username: "budi.santoso@student.ac.id", Role: models.RoleStudent}
	svc, _, _ := authFixture(user)

	// Claims are validated against the wall clock, so issue against it.
	token, err := svc.generateAccessToken(user, time.Now())
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
}
