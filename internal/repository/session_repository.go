package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/pajalhq/pajal-api/internal/models"
)

const sessionColumns = `id, name, class_types, start_at, end_at, location, lecturers, note, status, created_at, updated_at`

// SessionRepository provides persistence for class sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// List returns sessions with optional filtering and pagination.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	base := "FROM sessions WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.Location != "" {
		conditions = append(conditions, fmt.Sprintf("UPPER(location) = UPPER($%d)", len(args)+1))
		args = append(args, filter.Location)
	}
	if filter.Lecturer != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(lecturers)", len(args)+1))
		args = append(args, filter.Lecturer)
	}
	if filter.ClassType != "" {
		conditions = append(conditions, fmt.Sprintf("$%d = ANY(class_types)", len(args)+1))
		args = append(args, filter.ClassType)
	}
	if filter.From != nil {
		conditions = append(conditions, fmt.Sprintf("start_at >= $%d", len(args)+1))
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conditions = append(conditions, fmt.Sprintf("start_at < $%d", len(args)+1))
		args = append(args, *filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"start_at":   true,
		"end_at":     true,
		"name":       true,
		"location":   true,
		"created_at": true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "start_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 500 {
		size = 100
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", sessionColumns, base, sortBy, order, size, offset)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// ListAll returns every stored session ordered by start time. Conflict checks
// and the status sweep operate on this snapshot.
func (r *SessionRepository) ListAll(ctx context.Context) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions ORDER BY start_at ASC`, sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query); err != nil {
		return nil, fmt.Errorf("list all sessions: %w", err)
	}
	return sessions, nil
}

// ListNonTerminal returns sessions whose status can still change.
func (r *SessionRepository) ListNonTerminal(ctx context.Context) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE status NOT IN ($1, $2) ORDER BY start_at ASC`, sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, models.StatusDone, models.StatusCancelled); err != nil {
		return nil, fmt.Errorf("list non-terminal sessions: %w", err)
	}
	return sessions, nil
}

// ListByLecturer returns sessions taught by any lecturer whose stored name
// matches exactly. Normalized-name matching happens in the service layer.
func (r *SessionRepository) ListByLecturer(ctx context.Context, name string) ([]models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE $1 = ANY(lecturers) ORDER BY start_at ASC`, sessionColumns)
	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, name); err != nil {
		return nil, fmt.Errorf("list sessions by lecturer: %w", err)
	}
	return sessions, nil
}

// FindByID loads a session by id.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf(`SELECT %s FROM sessions WHERE id = $1`, sessionColumns)
	var sess models.Session
	if err := r.db.GetContext(ctx, &sess, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find session by id: %w", err)
	}
	return &sess, nil
}

// Create stores a new session record.
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	const query = `INSERT INTO sessions (id, name, class_types, start_at, end_at, location, lecturers, note, status, created_at, updated_at) VALUES (:id, :name, :class_types, :start_at, :end_at, :location, :lecturers, :note, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// Update modifies a session record.
func (r *SessionRepository) Update(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET name = :name, class_types = :class_types, start_at = :start_at, end_at = :end_at, location = :location, lecturers = :lecturers, note = :note, status = :status, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

// UpdateStatus persists a derived status transition.
func (r *SessionRepository) UpdateStatus(ctx context.Context, id string, status models.SessionStatus, updatedAt time.Time) error {
	const query = `UPDATE sessions SET status = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, status, updatedAt); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// Delete removes a session permanently. Only used when purging a deleted
// lecturer's sessions; user-facing delete is the per-user soft delete.
func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}
