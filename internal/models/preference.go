package models

import (
	"time"

	"github.com/lib/pq"
)

// LoginHistoryLimit bounds the per-user login history kept in preferences.
const LoginHistoryLimit = 5

// Preference stores per-user settings and visibility flags. Exactly one row
// exists per user (id = user id). The archived and deleted id sets are owned
// by that user alone and never affect another user's view of a session.
type Preference struct {
	UserID                  string         `db:"user_id" json:"user_id"`
	ReminderMinutes         *int           `db:"reminder_minutes" json:"reminder_minutes"`
	ArchivedClassIDs        pq.StringArray `db:"archived_class_ids" json:"archived_class_ids"`
	StudentDeletedClassIDs  pq.StringArray `db:"student_deleted_class_ids" json:"student_deleted_class_ids"`
	LecturerDeletedClassIDs pq.StringArray `db:"lecturer_deleted_class_ids" json:"lecturer_deleted_class_ids"`
	ThemeKey                string         `db:"theme_key" json:"theme_key"`
	IsDarkMode              bool           `db:"is_dark_mode" json:"is_dark_mode"`
	LoginHistory            pq.StringArray `db:"login_history" json:"login_history"`
	UpdatedAt               time.Time      `db:"updated_at" json:"updated_at"`
}

// PreferenceUpdateRequest carries the user-editable preference fields.
type PreferenceUpdateRequest struct {
	ReminderMinutes *int   `json:"reminder_minutes" validate:"omitempty,min=0,max=1440"`
	ThemeKey        string `json:"theme_key" validate:"required"`
	IsDarkMode      bool   `json:"is_dark_mode"`
}

// DeletedClassIDs returns the role-scoped soft-delete set for the user.
func (p *Preference) DeletedClassIDs(role UserRole) []string {
	switch role {
	case RoleStudent:
		return p.StudentDeletedClassIDs
	case RoleLecturer:
		return p.LecturerDeletedClassIDs
	}
	return nil
}

// Archived reports whether the user archived the given session.
func (p *Preference) Archived(classID string) bool {
	for _, id := range p.ArchivedClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

// Deleted reports whether the user's role-scoped set hides the session.
func (p *Preference) Deleted(role UserRole, classID string) bool {
	for _, id := range p.DeletedClassIDs(role) {
		if id == classID {
			return true
		}
	}
	return false
}

// PushLoginHistory prepends name to history, de-duplicating by name and
// keeping at most LoginHistoryLimit entries.
func PushLoginHistory(history []string, name string) []string {
	out := make([]string, 0, len(history)+1)
	out = append(out, name)
	for _, h := range history {
		if h == name {
			continue
		}
		out = append(out, h)
	}
	if len(out) > LoginHistoryLimit {
		out = out[:LoginHistoryLimit]
	}
	return out
}
