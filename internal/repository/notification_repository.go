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

const notificationColumns = `id, class_id, class_name, kind, message, date, read_by, deleted_by`

// NotificationRepository provides persistence for system notifications.
type NotificationRepository struct {
	db *sqlx.DB
}

// NewNotificationRepository creates a new notification repository.
func NewNotificationRepository(db *sqlx.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// List returns notifications ordered most recent first.
func (r *NotificationRepository) List(ctx context.Context, limit int) ([]models.Notification, error) {
	if limit <= 0 || limit > 5000 {
		limit = 5000
	}
	query := fmt.Sprintf(`SELECT %s FROM notifications ORDER BY date DESC LIMIT %d`, notificationColumns, limit)
	var notifications []models.Notification
	if err := r.db.SelectContext(ctx, &notifications, query); err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return notifications, nil
}

// FindByID loads a notification by id.
func (r *NotificationRepository) FindByID(ctx context.Context, id string) (*models.Notification, error) {
	query := fmt.Sprintf(`SELECT %s FROM notifications WHERE id = $1`, notificationColumns)
	var notif models.Notification
	if err := r.db.GetContext(ctx, &notif, query, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find notification by id: %w", err)
	}
	return &notif, nil
}

// CreateDedup inserts a notification keyed by its deterministic id. A repeat
// emission for the same transition at the same instant is silently dropped by
// the store, which is what makes the sweep idempotent under re-entry.
// Returns whether a row was actually inserted.
func (r *NotificationRepository) CreateDedup(ctx context.Context, notif *models.Notification) (bool, error) {
	const query = `INSERT INTO notifications (id, class_id, class_name, kind, message, date, read_by, deleted_by) VALUES (:id, :class_id, :class_name, :kind, :message, :date, :read_by, :deleted_by) ON CONFLICT (id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, notif)
	if err != nil {
		return false, fmt.Errorf("create notification: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create notification rows affected: %w", err)
	}
	return rows > 0, nil
}

// MarkRead adds the user to the notification's read set.
func (r *NotificationRepository) MarkRead(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET read_by = array_append(read_by, $2) WHERE id = $1 AND NOT ($2 = ANY(read_by))`
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	return nil
}

// MarkAllRead adds the user to the read set of every listed notification.
func (r *NotificationRepository) MarkAllRead(ctx context.Context, ids []string, userID string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE notifications SET read_by = array_append(read_by, $2) WHERE id = ANY($1) AND NOT ($2 = ANY(read_by))`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids), userID); err != nil {
		return fmt.Errorf("mark all notifications read: %w", err)
	}
	return nil
}

// AddDeletedBy soft-deletes the notification for one user.
func (r *NotificationRepository) AddDeletedBy(ctx context.Context, id, userID string) error {
	const query = `UPDATE notifications SET deleted_by = array_append(deleted_by, $2) WHERE id = $1 AND NOT ($2 = ANY(deleted_by))`
	if _, err := r.db.ExecContext(ctx, query, id, userID); err != nil {
		return fmt.Errorf("soft delete notification: %w", err)
	}
	return nil
}

// AddDeletedByAll soft-deletes every listed notification for one user.
func (r *NotificationRepository) AddDeletedByAll(ctx context.Context, ids []string, userID string) error {
	if len(ids) == 0 {
		return nil
	}
	const query = `UPDATE notifications SET deleted_by = array_append(deleted_by, $2) WHERE id = ANY($1) AND NOT ($2 = ANY(deleted_by))`
	if _, err := r.db.ExecContext(ctx, query, pq.Array(ids), userID); err != nil {
		return fmt.Errorf("soft delete notifications: %w", err)
	}
	return nil
}

// EarliestCancellations returns, per class id, the earliest cancellation
// notification timestamp. Students registered after a class was cancelled use
// this to hide the stale entry.
func (r *NotificationRepository) EarliestCancellations(ctx context.Context) (map[string]time.Time, error) {
	const query = `SELECT class_id, MIN(date) AS date FROM notifications WHERE kind = $1 GROUP BY class_id`
	rows, err := r.db.QueryxContext(ctx, query, string(models.NotificationCancelled))
	if err != nil {
		return nil, fmt.Errorf("earliest cancellations: %w", err)
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var classID string
		var date time.Time
		if err := rows.Scan(&classID, &date); err != nil {
			return nil, fmt.Errorf("scan earliest cancellation: %w", err)
		}
		out[classID] = date
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate earliest cancellations: %w", err)
	}
	return out, nil
}
