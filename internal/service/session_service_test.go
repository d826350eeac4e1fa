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

	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/pkg/clock"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
)

// testNow falls in the Jul-Dec academic half, so odd-semester class types
// such as SK3A are the valid ones.
var testNow = time.Date(2025, time.October, 1, 10, 0, 0, 0, time.UTC)

type stubSessionRepo struct {
	sessions      []models.Session
	statusUpdates map[string]models.SessionStatus
	listErr       error
}

func (s *stubSessionRepo) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	return s.sessions, len(s.sessions), s.listErr
}

func (s *stubSessionRepo) ListAll(ctx context.Context) ([]models.Session, error) {
	return s.sessions, s.listErr
}

func (s *stubSessionRepo) FindByID(ctx context.Context, id string) (*models.Session, error) {
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			copied := s.sessions[i]
			return &copied, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (s *stubSessionRepo) Create(ctx context.Context, session *models.Session) error {
	s.sessions = append(s.sessions, *session)
	return nil
}

func (s *stubSessionRepo) Update(ctx context.Context, session *models.Session) error {
	for i := range s.sessions {
		if s.sessions[i].ID == session.ID {
			s.sessions[i] = *session
			return nil
		}
	}
	return sql.ErrNoRows
}

func (s *stubSessionRepo) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, updatedAt time.Time) error {
	if s.statusUpdates == nil {
		s.statusUpdates = make(map[string]models.SessionStatus)
	}
	s.statusUpdates[id] = status
	for i := range s.sessions {
		if s.sessions[i].ID == id {
			s.sessions[i].Status = status
		}
	}
	return nil
}

type stubUserRepo struct {
	users     map[string]*models.User
	suspended []string
}

func (s *stubUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	user, ok := s.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return user, nil
}

func (s *stubUserRepo) ListSuspendedLecturerNames(ctx context.Context) ([]string, error) {
	return s.suspended, nil
}

type stubNotifRepo struct {
	stored        map[string]*models.Notification
	cancellations map[string]time.Time
}

func (s *stubNotifRepo) CreateDedup(ctx context.Context, notif *models.Notification) (bool, error) {
	if s.stored == nil {
		s.stored = make(map[string]*models.Notification)
	}
	if _, exists := s.stored[notif.ID]; exists {
		return false, nil
	}
	s.stored[notif.ID] = notif
	return true, nil
}

func (s *stubNotifRepo) EarliestCancellations(ctx context.Context) (map[string]time.Time, error) {
	return s.cancellations, nil
}

func (s *stubNotifRepo) kinds() []models.NotificationKind {
	var out []models.NotificationKind
	for _, notif := range s.stored {
		out = append(out, notif.Kind)
	}
	return out
}

type stubPrefRepo struct {
	prefs    map[string]*models.Preference
	archived []string
	deleted  []string
}

func (s *stubPrefRepo) Get(ctx context.Context, userID string) (*models.Preference, error) {
	if pref, ok := s.prefs[userID]; ok {
		return pref, nil
	}
	return &models.Preference{UserID: userID, ThemeKey: "default"}, nil
}

func (s *stubPrefRepo) AddArchived(ctx context.Context, userID, classID string) error {
	s.archived = append(s.archived, classID)
	return nil
}

func (s *stubPrefRepo) RemoveArchived(ctx context.Context, userID, classID string) error {
	return nil
}

func (s *stubPrefRepo) AddDeleted(ctx context.Context, userID string, role models.UserRole, classID string) error {
	s.deleted = append(s.deleted, classID)
	return nil
}

type stubInvalidator struct {
	calls int
}

func (s *stubInvalidator) Invalidate(ctx context.Context) {
	s.calls++
}

func lecturerUser() *models.User {
	return &models.User{ID: "lec1", Name: "Jane Doe, M.Kom.", Role: models.RoleLecturer, RegistrationDate: testNow.AddDate(-1, 0, 0)}
}

func studentUser(classType string) *models.User {
	return &models.User{ID: "stu1", Name: "Budi Santoso", Role: models.RoleStudent, ClassType: &classType, RegistrationDate: testNow.AddDate(0, -2, 0)}
}

func newSessionFixture(users ...*models.User) (*SessionService, *stubSessionRepo, *stubNotifRepo, *stubPrefRepo, *stubInvalidator) {
	sessions := &stubSessionRepo{}
	userRepo := &stubUserRepo{users: map[string]*models.User{}}
	for _, u := range users {
		userRepo.users[u.ID] = u
	}
	notifs := &stubNotifRepo{}
	prefs := &stubPrefRepo{prefs: map[string]*models.Preference{}}
	invalidator := &stubInvalidator{}
	svc := NewSessionService(sessions, userRepo, notifs, prefs, invalidator, validator.New(), zap.NewNop(), clock.NewMock(testNow), time.UTC, time.Second)
	return svc, sessions, notifs, prefs, invalidator
}

func validRequest() models.SessionRequest {
	return models.SessionRequest{
		Name:       "Algorithms",
		ClassTypes: []string{"SK3A"},
		Start:      testNow.Add(time.Hour),
		End:        testNow.Add(3 * time.Hour),
		Location:   "D.3.1",
	}
}

func TestCreateSession(t *testing.T) {
	svc, sessions, _, _, invalidator := newSessionFixture(lecturerUser())

	created, err := svc.Create(context.Background(), "lec1", validRequest())
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, []string{"Jane Doe, M.Kom."}, []string(created.Lecturers))
	assert.Equal(t, models.StatusNotYet, created.Status)
	assert.Len(t, sessions.sessions, 1)
	assert.Equal(t, 1, invalidator.calls)
}

func TestCreateSessionRequiresLecturer(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture(studentUser("SK3A"))

	_, err := svc.Create(context.Background(), "stu1", validRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCreateSessionLeadTimeTooShort(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture(lecturerUser())

	req := validRequest()
	req.Start = testNow.Add(20 * time.Minute)
	req.End = testNow.Add(2 * time.Hour)

	_, err := svc.Create(context.Background(), "lec1", req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTiming.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "at least 30 minutes")
}

func TestCreateSessionInPast(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture(lecturerUser())

	req := validRequest()
	req.Start = testNow.Add(-time.Hour)
	req.End = testNow.Add(time.Hour)

	_, err := svc.Create(context.Background(), "lec1", req)
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "in the past")
}

func TestCreateSessionEndBeforeStart(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture(lecturerUser())

	req := validRequest()
	req.End = req.Start

	_, err := svc.Create(context.Background(), "lec1", req)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidTiming.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "end after it starts")
}

func TestCreateSessionClassTypeOutsidePeriod(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture(lecturerUser())

	// Even-semester labels are not offered during the Jul-Dec half.
	req := validRequest()
	req.ClassTypes = []string{"SK2A"}

	_, err := svc.Create(context.Background(), "lec1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidClassType.Code, appErrors.FromError(err).Code)
}

func TestCreateSessionUnknownRoom(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture(lecturerUser())

	req := validRequest()
	req.Location = "Z.9.9"

	_, err := svc.Create(context.Background(), "lec1", req)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidLocation.Code, appErrors.FromError(err).Code)
}

func TestCreateSessionRoomConflict(t *testing.T) {
	svc, sessions, _, _, _ := newSessionFixture(lecturerUser())
	sessions.sessions = []models.Session{{
		ID:        "other",
		Name:      "Databases",
		Start:     testNow.Add(30 * time.Minute),
		End:       testNow.Add(2 * time.Hour),
		Location:  "D.3.1",
		Lecturers: []string{"Someone Else"},
		Status:    models.StatusSoon,
	}}

	_, err := svc.Create(context.Background(), "lec1", validRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSchedulingConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "already booked")
}

func TestCreateSessionLecturerConflictNormalizedName(t *testing.T) {
	svc, sessions, _, _, _ := newSessionFixture(lecturerUser())
	// Stored without titles; the candidate lecturer carries them. Different
	// room, same person, overlapping slot.
	sessions.sessions = []models.Session{{
		ID:        "other",
		Name:      "Databases",
		Start:     testNow.Add(30 * time.Minute),
		End:       testNow.Add(2 * time.Hour),
		Location:  "F.1.1",
		Lecturers: []string{"Jane Doe"},
		Status:    models.StatusSoon,
	}}

	_, err := svc.Create(context.Background(), "lec1", validRequest())
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrSchedulingConflict.Code, appErr.Code)
	assert.Contains(t, appErr.Message, "you already teach")
}

func TestCreateSessionIgnoresFinishedConflicts(t *testing.T) {
	svc, sessions, _, _, _ := newSessionFixture(lecturerUser())
	sessions.sessions = []models.Session{{
		ID:        "other",
		Name:      "Databases",
		Start:     testNow.Add(time.Hour),
		End:       testNow.Add(3 * time.Hour),
		Location:  "D.3.1",
		Lecturers: []string{"Someone Else"},
		Status:    models.StatusCancelled,
	}}

	_, err := svc.Create(context.Background(), "lec1", validRequest())
	assert.NoError(t, err)
}

func TestUpdateSessionTerminalRejected(t *testing.T) {
	svc, sessions, _, _, _ := newSessionFixture(lecturerUser())
	sessions.sessions = []models.Session{{
		ID:        "s1",
		Name:      "Algorithms",
		Start:     testNow.Add(-3 * time.Hour),
		End:       testNow.Add(-time.Hour),
		Location:  "D.3.1",
		Lecturers: []string{"Jane Doe, M.Kom."},
		Status:    models.StatusDone,
	}}

	_, err := svc.Update(context.Background(), "lec1", "s1", validRequest())
	require.Error(t, err)
	assert.Contains(t, appErrors.FromError(err).Message, "cannot be rescheduled")
}

func TestUpdateSessionEmitsReschedule(t *testing.T) {
	svc, sessions, notifs, _, _ := newSessionFixture(lecturerUser())
	sessions.sessions = []models.Session{{
		ID:         "s1",
		Name:       "Algorithms",
		ClassTypes: []string{"SK3A"},
		Start:      testNow.Add(time.Hour),
		End:        testNow.Add(3 * time.Hour),
		Location:   "D.3.1",
		Lecturers:  []string{"Jane Doe, M.Kom."},
		Status:     models.StatusNotYet,
	}}

	// Same slot and room: the session must not conflict with itself.
	req := validRequest()
	req.Note = "moved online materials"

	updated, err := svc.Update(context.Background(), "lec1", "s1", req)
	require.NoError(t, err)
	assert.Equal(t, "moved online materials", updated.Note)
	assert.Contains(t, notifs.kinds(), models.NotificationRescheduled)
}

func TestUpdateSessionOtherLecturerForbidden(t *testing.T) {
	other := &models.User{ID: "lec2", Name: "John Smith", Role: models.RoleLecturer}
	svc, sessions, _, _, _ := newSessionFixture(lecturerUser(), other)
	sessions.sessions = []models.Session{{
		ID:        "s1",
		Name:      "Algorithms",
		Start:     testNow.Add(time.Hour),
		End:       testNow.Add(3 * time.Hour),
		Location:  "D.3.1",
		Lecturers: []string{"Jane Doe, M.Kom."},
		Status:    models.StatusNotYet,
	}}

	_, err := svc.Update(context.Background(), "lec2", "s1", validRequest())
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestCancelSessionIsIdempotent(t *testing.T) {
	svc, sessions, notifs, _, _ := newSessionFixture(lecturerUser())
	sessions.sessions = []models.Session{{
		ID:        "s1",
		Name:      "Algorithms",
		Start:     testNow.Add(-time.Hour),
		End:       testNow.Add(time.Hour),
		Location:  "D.3.1",
		Lecturers: []string{"Jane Doe, M.Kom."},
		Status:    models.StatusActive,
	}}

	cancelled, err := svc.Cancel(context.Background(), "lec1", "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, cancelled.Status)
	assert.Equal(t, models.StatusCancelled, sessions.statusUpdates["s1"])
	assert.Len(t, notifs.stored, 1)

	// A second cancel is a no-op: no further transition, no new notification.
	again, err := svc.Cancel(context.Background(), "lec1", "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, again.Status)
	assert.Len(t, notifs.stored, 1)
}

func TestSoftDeleteOwnSessionCancelsFirst(t *testing.T) {
	svc, sessions, notifs, prefs, _ := newSessionFixture(lecturerUser())
	sessions.sessions = []models.Session{{
		ID:        "s1",
		Name:      "Algorithms",
		Start:     testNow.Add(time.Hour),
		End:       testNow.Add(3 * time.Hour),
		Location:  "D.3.1",
		Lecturers: []string{"Jane Doe, M.Kom."},
		Status:    models.StatusNotYet,
	}}

	require.NoError(t, svc.SoftDelete(context.Background(), "lec1", "s1"))
	assert.Equal(t, models.StatusCancelled, sessions.statusUpdates["s1"])
	assert.Contains(t, notifs.kinds(), models.NotificationCancelled)
	assert.Equal(t, []string{"s1"}, prefs.deleted)
}

func TestSoftDeleteAdministratorForbidden(t *testing.T) {
	admin := &models.User{ID: "adm1", Name: "Root", Role: models.RoleAdministrator}
	svc, _, _, _, _ := newSessionFixture(admin)

	err := svc.SoftDelete(context.Background(), "adm1", "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestBulkCreateReportsPerRowOutcomes(t *testing.T) {
	svc, _, _, _, _ := newSessionFixture(lecturerUser())

	badRoom := validRequest()
	badRoom.Location = "Z.9.9"
	second := validRequest()
	second.Name = "Databases"
	second.Location = "F.2.1"
	second.Start = testNow.Add(4 * time.Hour)
	second.End = testNow.Add(6 * time.Hour)

	result, err := svc.BulkCreate(context.Background(), "lec1", []models.BulkSessionItem{
		{Row: 1, Session: validRequest()},
		{Row: 2, Session: badRoom},
		{Row: 3, Session: second},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CreatedCount)
	require.Len(t, result.Outcomes, 3)
	assert.True(t, result.Outcomes[0].Created)
	assert.False(t, result.Outcomes[1].Created)
	assert.NotEmpty(t, result.Outcomes[1].Error)
	assert.True(t, result.Outcomes[2].Created)
}

func TestListForUserStudentVisibility(t *testing.T) {
	student := studentUser("SK3A")
	svc, sessions, notifs, prefs, _ := newSessionFixture(student)

	base := models.Session{
		Start:     testNow.Add(time.Hour),
		End:       testNow.Add(3 * time.Hour),
		Location:  "D.3.1",
		Lecturers: []string{"Jane Doe, M.Kom."},
		Status:    models.StatusNotYet,
	}
	mine := base
	mine.ID, mine.Name, mine.ClassTypes = "mine", "Algorithms", []string{"SK3A"}
	otherClass := base
	otherClass.ID, otherClass.Name, otherClass.ClassTypes = "other-class", "Networks", []string{"SK5A"}
	suspendedLect := base
	suspendedLect.ID, suspendedLect.ClassTypes, suspendedLect.Lecturers = "suspended", []string{"SK3A"}, []string{"John Smith, M.T."}
	staleCancelled := base
	staleCancelled.ID, staleCancelled.ClassTypes, staleCancelled.Status = "stale", []string{"SK3A"}, models.StatusCancelled
	freshCancelled := base
	freshCancelled.ID, freshCancelled.ClassTypes, freshCancelled.Status = "fresh", []string{"SK3A"}, models.StatusCancelled
	archived := base
	archived.ID, archived.ClassTypes = "archived", []string{"SK3A"}
	hidden := base
	hidden.ID, hidden.ClassTypes = "hidden", []string{"SK3A"}

	sessions.sessions = []models.Session{mine, otherClass, suspendedLect, staleCancelled, freshCancelled, archived, hidden}
	svc.users.(*stubUserRepo).suspended = []string{"John Smith"}
	notifs.cancellations = map[string]time.Time{
		"stale": student.RegistrationDate.AddDate(0, -1, 0),
		"fresh": student.RegistrationDate.AddDate(0, 1, 0),
	}
	prefs.prefs["stu1"] = &models.Preference{
		UserID:                 "stu1",
		ArchivedClassIDs:       []string{"archived"},
		StudentDeletedClassIDs: []string{"hidden"},
		ThemeKey:               "default",
	}

	overview, err := svc.ListForUser(context.Background(), "stu1")
	require.NoError(t, err)

	ids := func(list []models.Session) []string {
		var out []string
		for _, s := range list {
			out = append(out, s.ID)
		}
		return out
	}
	assert.ElementsMatch(t, []string{"mine", "fresh"}, ids(overview.Sessions))
	assert.ElementsMatch(t, []string{"archived"}, ids(overview.Archived))
}

func TestListForUserStudentWithoutClassType(t *testing.T) {
	student := &models.User{ID: "stu1", Name: "Budi Santoso", Role: models.RoleStudent, RegistrationDate: testNow.AddDate(0, -2, 0)}
	svc, sessions, _, _, _ := newSessionFixture(student)
	sessions.sessions = []models.Session{{
		ID: "s1", ClassTypes: []string{"SK3A"},
		Start: testNow.Add(time.Hour), End: testNow.Add(2 * time.Hour),
		Location: "D.3.1", Lecturers: []string{"Jane Doe"}, Status: models.StatusNotYet,
	}}

	overview, err := svc.ListForUser(context.Background(), "stu1")
	require.NoError(t, err)
	assert.Empty(t, overview.Sessions)
}

func TestListForUserLecturerMatchesNormalizedName(t *testing.T) {
	svc, sessions, _, _, _ := newSessionFixture(lecturerUser())
	sessions.sessions = []models.Session{
		{ID: "mine", ClassTypes: []string{"SK3A"}, Start: testNow.Add(time.Hour), End: testNow.Add(2 * time.Hour), Location: "D.3.1", Lecturers: []string{"Jane Doe"}, Status: models.StatusNotYet},
		{ID: "theirs", ClassTypes: []string{"SK3A"}, Start: testNow.Add(time.Hour), End: testNow.Add(2 * time.Hour), Location: "F.1.1", Lecturers: []string{"John Smith"}, Status: models.StatusNotYet},
	}

	overview, err := svc.ListForUser(context.Background(), "lec1")
	require.NoError(t, err)
	require.Len(t, overview.Sessions, 1)
	assert.Equal(t, "mine", overview.Sessions[0].ID)
}

func TestListForUserAdministratorForbidden(t *testing.T) {
	admin := &models.User{ID: "adm1", Name: "Root", Role: models.RoleAdministrator}
	svc, _, _, _, _ := newSessionFixture(admin)

	_, err := svc.ListForUser(context.Background(), "adm1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestGetDerivesStatus(t *testing.T) {
	svc, sessions, _, _, _ := newSessionFixture(lecturerUser())
	sessions.sessions = []models.Session{{
		ID:        "s1",
		Start:     testNow.Add(-time.Hour),
		End:       testNow.Add(time.Hour),
		Location:  "D.3.1",
		Lecturers: []string{"Jane Doe"},
		Status:    models.StatusNotYet,
	}}

	got, err := svc.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusActive, got.Status)
}
