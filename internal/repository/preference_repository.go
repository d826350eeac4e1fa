package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/pajalhq/pajal-api/internal/models"
)

const preferenceColumns = `user_id, reminder_minutes, archived_class_ids, student_deleted_class_ids, lecturer_deleted_class_ids, theme_key, is_dark_mode, login_history, updated_at`

// PreferenceRepository provides persistence for per-user settings.
type PreferenceRepository struct {
	db *sqlx.DB
}

// NewPreferenceRepository creates a new preference repository.
func NewPreferenceRepository(db *sqlx.DB) *PreferenceRepository {
	return &PreferenceRepository{db: db}
}

// Get loads the preference row for a user, creating the default row if the
// user has none yet.
func (r *PreferenceRepository) Get(ctx context.Context, userID string) (*models.Preference, error) {
	query := fmt.Sprintf(`SELECT %s FROM preferences WHERE user_id = $1`, preferenceColumns)
	var pref models.Preference
	err := r.db.GetContext(ctx, &pref, query, userID)
	if err == nil {
		return &pref, nil
	}
	if err != sql.ErrNoRows {
		return nil, fmt.Errorf("get preference: %w", err)
	}

	pref = models.Preference{
		UserID:                  userID,
		ArchivedClassIDs:        pq.StringArray{},
		StudentDeletedClassIDs:  pq.StringArray{},
		LecturerDeletedClassIDs: pq.StringArray{},
		ThemeKey:                "default",
		LoginHistory:            pq.StringArray{},
		UpdatedAt:               time.Now(),
	}
	const insert = `INSERT INTO preferences (user_id, reminder_minutes, archived_class_ids, student_deleted_class_ids, lecturer_deleted_class_ids, theme_key, is_dark_mode, login_history, updated_at) VALUES (:user_id, :reminder_minutes, :archived_class_ids, :student_deleted_class_ids, :lecturer_deleted_class_ids, :theme_key, :is_dark_mode, :login_history, :updated_at) ON CONFLICT (user_id) DO NOTHING`
	if _, err := r.db.NamedExecContext(ctx, insert, &pref); err != nil {
		return nil, fmt.Errorf("create default preference: %w", err)
	}
	return &pref, nil
}

// Update persists the full preference row.
func (r *PreferenceRepository) Update(ctx context.Context, pref *models.Preference) error {
	pref.UpdatedAt = time.Now()
	const query = `UPDATE preferences SET reminder_minutes = :reminder_minutes, archived_class_ids = :archived_class_ids, student_deleted_class_ids = :student_deleted_class_ids, lecturer_deleted_class_ids = :lecturer_deleted_class_ids, theme_key = :theme_key, is_dark_mode = :is_dark_mode, login_history = :login_history, updated_at = :updated_at WHERE user_id = :user_id`
	res, err := r.db.NamedExecContext(ctx, query, pref)
	if err != nil {
		return fmt.Errorf("update preference: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update preference rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AddArchived adds a session id to the user's archive set.
func (r *PreferenceRepository) AddArchived(ctx context.Context, userID, classID string) error {
	const query = `UPDATE preferences SET archived_class_ids = array_append(archived_class_ids, $2), updated_at = NOW() WHERE user_id = $1 AND NOT ($2 = ANY(archived_class_ids))`
	if _, err := r.db.ExecContext(ctx, query, userID, classID); err != nil {
		return fmt.Errorf("add archived class: %w", err)
	}
	return nil
}

// RemoveArchived removes a session id from the user's archive set.
func (r *PreferenceRepository) RemoveArchived(ctx context.Context, userID, classID string) error {
	const query = `UPDATE preferences SET archived_class_ids = array_remove(archived_class_ids, $2), updated_at = NOW() WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, classID); err != nil {
		return fmt.Errorf("remove archived class: %w", err)
	}
	return nil
}

// AddDeleted adds a session id to the user's role-scoped soft-delete set.
func (r *PreferenceRepository) AddDeleted(ctx context.Context, userID string, role models.UserRole, classID string) error {
	var column string
	switch role {
	case models.RoleStudent:
		column = "student_deleted_class_ids"
	case models.RoleLecturer:
		column = "lecturer_deleted_class_ids"
	default:
		return fmt.Errorf("no delete set for role %s", role)
	}
	query := fmt.Sprintf(`UPDATE preferences SET %s = array_append(%s, $2), updated_at = NOW() WHERE user_id = $1 AND NOT ($2 = ANY(%s))`, column, column, column)
	if _, err := r.db.ExecContext(ctx, query, userID, classID); err != nil {
		return fmt.Errorf("add deleted class: %w", err)
	}
	return nil
}

// SetLoginHistory replaces the user's login history list.
func (r *PreferenceRepository) SetLoginHistory(ctx context.Context, userID string, history []string) error {
	const query = `UPDATE preferences SET login_history = $2, updated_at = NOW() WHERE user_id = $1`
	if _, err := r.db.ExecContext(ctx, query, userID, pq.Array(history)); err != nil {
		return fmt.Errorf("set login history: %w", err)
	}
	return nil
}
