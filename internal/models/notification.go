package models

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// NotificationKind tags the transition that produced a notification.
// Lecturer visibility filtering matches on the kind, never on message text.
type NotificationKind string

const (
	NotificationStarted     NotificationKind = "STARTED"
	NotificationEnded       NotificationKind = "ENDED"
	NotificationCancelled   NotificationKind = "CANCELLED"
	NotificationRescheduled NotificationKind = "RESCHEDULED"
)

// Notification records a session state change. Notifications are created
// only by system transitions, never directly by users.
type Notification struct {
	ID        string           `db:"id" json:"id"`
	ClassID   string           `db:"class_id" json:"class_id"`
	ClassName string           `db:"class_name" json:"class_name"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Message   string           `db:"message" json:"message"`
	Date      time.Time        `db:"date" json:"date"`
	ReadBy    pq.StringArray   `db:"read_by" json:"read_by"`
	DeletedBy pq.StringArray   `db:"deleted_by" json:"deleted_by"`
}

// NotificationKey builds the deterministic notification id used as an
// idempotency key: re-emitting the same transition at the same (truncated)
// instant is de-duplicated by the store.
func NotificationKey(classID string, kind NotificationKind, at time.Time, granularity time.Duration) string {
	if granularity <= 0 {
		granularity = time.Second
	}
	return fmt.Sprintf("%s-%s-%d", classID, kind, at.Truncate(granularity).Unix())
}

// ReadByUser reports whether the given user has read the notification.
func (n *Notification) ReadByUser(userID string) bool {
	for _, id := range n.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}

// DeletedByUser reports whether the given user soft-deleted the notification.
func (n *Notification) DeletedByUser(userID string) bool {
	for _, id := range n.DeletedBy {
		if id == userID {
			return true
		}
	}
	return false
}
