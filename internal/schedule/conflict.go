package schedule

import (
	"fmt"
	"strings"
	"time"

	"github.com/pajalhq/pajal-api/internal/models"
)

// Candidate is the session being validated against the existing set.
type Candidate struct {
	Start    time.Time
	End      time.Time
	Location string
	Lecturer string
}

// NormalizeName strips trailing academic titles from a lecturer name.
// Names carry credentials separated by commas ("Jane Doe, S.Kom., M.M.S.I.");
// only the part before the first comma identifies the person.
func NormalizeName(name string) string {
	if name == "" {
		return ""
	}
	if i := strings.IndexByte(name, ','); i >= 0 {
		name = name[:i]
	}
	return strings.TrimSpace(name)
}

// Overlaps reports half-open interval overlap: back-to-back sessions where
// one starts exactly when the other ends do not overlap.
func Overlaps(start1, end1, start2, end2 time.Time) bool {
	return start1.Before(end2) && start2.Before(end1)
}

// SameDay compares wall-clock calendar dates in the given location.
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.Local
	}
	y1, m1, d1 := a.In(loc).Date()
	y2, m2, d2 := b.In(loc).Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

// FindConflict scans existing sessions for a room or lecturer double-booking
// with the candidate. Sessions in ignore, cancelled or finished sessions, and
// sessions on a different calendar day are skipped. For an overlapping pair
// the room is checked before the lecturer, the first match wins, and the scan
// follows input order. A nil return means no conflict.
//
// The scan runs over whatever snapshot the caller fetched; the store does not
// serialize writers, so this is a best-effort check, not a server-enforced
// invariant.
func FindConflict(candidate Candidate, existing []models.Session, ignore map[string]struct{}, loc *time.Location) *models.SessionConflict {
	lecturer := NormalizeName(candidate.Lecturer)

	for i := range existing {
		other := &existing[i]
		if _, skip := ignore[other.ID]; skip {
			continue
		}
		if other.Status == models.StatusCancelled || other.Status == models.StatusDone {
			continue
		}
		if !SameDay(candidate.Start, other.Start, loc) {
			continue
		}
		if !Overlaps(candidate.Start, candidate.End, other.Start, other.End) {
			continue
		}

		if strings.EqualFold(candidate.Location, other.Location) {
			return &models.SessionConflict{
				SessionID:   other.ID,
				SessionName: other.Name,
				Location:    other.Location,
				Start:       other.Start,
				End:         other.End,
				Kind:        models.ConflictRoom,
			}
		}
		for _, name := range other.Lecturers {
			if NormalizeName(name) == lecturer {
				return &models.SessionConflict{
					SessionID:   other.ID,
					SessionName: other.Name,
					Location:    other.Location,
					Start:       other.Start,
					End:         other.End,
					Kind:        models.ConflictLecturer,
				}
			}
		}
	}
	return nil
}

// ConflictMessage renders a human-readable message for a detected conflict.
func ConflictMessage(c *models.SessionConflict, candidateLocation string) string {
	if c == nil {
		return ""
	}
	if c.Kind == models.ConflictRoom {
		return fmt.Sprintf("room %s is already booked by class %q at the same time", candidateLocation, c.SessionName)
	}
	return fmt.Sprintf("you already teach %q in room %s at the same time", c.SessionName, c.Location)
}
