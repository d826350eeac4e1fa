package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pajalhq/pajal-api/internal/models"
)

func sessionRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "class_types", "start_at", "end_at", "location", "lecturers", "note", "status", "created_at", "updated_at"}).
		AddRow("s1", "Algorithms", "{SK3A,SK3B}", now, now.Add(2*time.Hour), "D.3.1", `{"Jane Doe, M.Kom."}`, "", string(models.StatusNotYet), now, now)
}

func TestSessionFindByID(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, class_types, start_at, end_at, location, lecturers, note, status, created_at, updated_at FROM sessions WHERE id = $1")).
		WithArgs("s1").
		WillReturnRows(sessionRows(time.Now()))

	sess, err := repo.FindByID(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "Algorithms", sess.Name)
	assert.Equal(t, []string{"SK3A", "SK3B"}, []string(sess.ClassTypes))
	assert.Equal(t, []string{"Jane Doe, M.Kom."}, []string(sess.Lecturers))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListNonTerminal(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE status NOT IN ($1, $2) ORDER BY start_at ASC")).
		WithArgs(models.StatusDone, models.StatusCancelled).
		WillReturnRows(sessionRows(time.Now()))

	sessions, err := repo.ListNonTerminal(context.Background())
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListSessionsFiltered(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE 1=1 AND status = $1 AND UPPER(location) = UPPER($2)")).
		WithArgs(models.StatusNotYet, "D.3.1").
		WillReturnRows(sessionRows(time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM sessions WHERE 1=1 AND status = $1 AND UPPER(location) = UPPER($2)")).
		WithArgs(models.StatusNotYet, "D.3.1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	sessions, total, err := repo.List(context.Background(), models.SessionFilter{Status: models.StatusNotYet, Location: "D.3.1"})
	require.NoError(t, err)
	assert.Len(t, sessions, 1)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSession(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	mock.ExpectExec("INSERT INTO sessions").WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.Session{
		Name:       "Algorithms",
		ClassTypes: []string{"SK3A"},
		Start:      time.Now().Add(time.Hour),
		End:        time.Now().Add(3 * time.Hour),
		Location:   "D.3.1",
		Lecturers:  []string{"Jane Doe, M.Kom."},
		Status:     models.StatusNotYet,
	}
	err := repo.Create(context.Background(), session)
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.False(t, session.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateSessionStatus(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewSessionRepository(db)

	now := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1")).
		WithArgs("s1", models.StatusCancelled, now).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateStatus(context.Background(), "s1", models.StatusCancelled, now)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
