// Package schedule holds the pure decision logic of the scheduling core:
// time-based status derivation, conflict detection between sessions,
// class-type rollover arithmetic, and the fixed room plan. Every function in
// this package is side-effect free and total; callers inject the clock.
package schedule

import (
	"time"

	"github.com/pajalhq/pajal-api/internal/models"
)

// SoonWindow is how far ahead of the start a session is reported as SOON.
const SoonWindow = 30 * time.Minute

// DeriveStatus maps a session's time bounds and cancellation flag to its
// lifecycle status at the given instant. Rules apply in priority order:
// cancellation is terminal, then DONE after the end, ACTIVE between start and
// end inclusive, SOON within SoonWindow of the start, NOT_YET otherwise.
// The start==end degenerate case falls into ACTIVE when now equals both.
func DeriveStatus(start, end time.Time, cancelled bool, now time.Time) models.SessionStatus {
	if cancelled {
		return models.StatusCancelled
	}
	if now.After(end) {
		return models.StatusDone
	}
	if !now.Before(start) && !now.After(end) {
		return models.StatusActive
	}
	until := start.Sub(now)
	if until > 0 && until <= SoonWindow {
		return models.StatusSoon
	}
	return models.StatusNotYet
}

// DeriveSessionStatus derives the status of a stored session, honouring its
// persisted CANCELLED flag.
func DeriveSessionStatus(s *models.Session, now time.Time) models.SessionStatus {
	return DeriveStatus(s.Start, s.End, s.Status == models.StatusCancelled, now)
}
