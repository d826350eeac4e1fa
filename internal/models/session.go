package models

import (
	"time"

	"github.com/lib/pq"
)

// SessionStatus is the derived lifecycle stage of a class session.
// CANCELLED is the only terminal flag set by an explicit user action; the
// time-based stages are recomputed from the clock and persisted as a cache.
type SessionStatus string

const (
	StatusNotYet    SessionStatus = "NOT_YET"
	StatusSoon      SessionStatus = "SOON"
	StatusActive    SessionStatus = "ACTIVE"
	StatusDone      SessionStatus = "DONE"
	StatusCancelled SessionStatus = "CANCELLED"
)

// Terminal reports whether the status permits no further transitions.
func (s SessionStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// Session represents one scheduled class occurrence.
type Session struct {
	ID         string         `db:"id" json:"id"`
	Name       string         `db:"name" json:"name"`
	ClassTypes pq.StringArray `db:"class_types" json:"class_types"`
	Start      time.Time      `db:"start_at" json:"start"`
	End        time.Time      `db:"end_at" json:"end"`
	Location   string         `db:"location" json:"location"`
	Lecturers  pq.StringArray `db:"lecturers" json:"lecturers"`
	Note       string         `db:"note" json:"note"`
	Status     SessionStatus  `db:"status" json:"status"`
	CreatedAt  time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at" json:"updated_at"`
}

// SessionFilter describes query params for listing sessions.
type SessionFilter struct {
	Status    SessionStatus
	Location  string
	Lecturer  string
	ClassType string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// SessionRequest carries the mutable fields for creating or rescheduling a
// session.
type SessionRequest struct {
	Name       string    `json:"name" validate:"required"`
	ClassTypes []string  `json:"class_types" validate:"required,min=1,max=4"`
	Start      time.Time `json:"start" validate:"required"`
	End        time.Time `json:"end" validate:"required"`
	Location   string    `json:"location" validate:"required"`
	Note       string    `json:"note"`
}

// BulkSessionItem is one row of a bulk create payload. The row number is
// caller-supplied and echoed back in per-item outcomes.
type BulkSessionItem struct {
	Row     int            `json:"row"`
	Session SessionRequest `json:"session"`
}

// BulkSessionOutcome reports the result of one bulk create row.
type BulkSessionOutcome struct {
	Row     int    `json:"row"`
	ID      string `json:"id,omitempty"`
	Error   string `json:"error,omitempty"`
	Created bool   `json:"created"`
}

// BulkSessionResult aggregates a bulk create run. Rows are independent;
// a failing row never rolls back the ones that succeeded.
type BulkSessionResult struct {
	CreatedCount int                  `json:"created_count"`
	Outcomes     []BulkSessionOutcome `json:"outcomes"`
}

// SessionOverview is the role-filtered session list returned to students and
// lecturers, split by the caller's archive set.
type SessionOverview struct {
	Sessions []Session `json:"sessions"`
	Archived []Session `json:"archived"`
}

// ConflictKind distinguishes which resource is double-booked.
type ConflictKind string

const (
	ConflictRoom     ConflictKind = "ROOM"
	ConflictLecturer ConflictKind = "LECTURER"
)

// SessionConflict describes an existing session that causes a conflict.
type SessionConflict struct {
	SessionID   string       `json:"session_id"`
	SessionName string       `json:"session_name"`
	Location    string       `json:"location"`
	Start       time.Time    `json:"start"`
	End         time.Time    `json:"end"`
	Kind        ConflictKind `json:"kind"`
}

// SessionConflictError is returned when a candidate session collides with an
// existing one on room or lecturer.
type SessionConflictError struct {
	Message  string          `json:"message"`
	Conflict SessionConflict `json:"conflict"`
}

// Error implements the error interface for conflict errors.
func (e *SessionConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
