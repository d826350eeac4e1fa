package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/internal/schedule"
	"github.com/pajalhq/pajal-api/pkg/clock"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
)

// MinScheduleLead is the minimum gap between "now" and a session's start
// accepted when creating or rescheduling.
const MinScheduleLead = 30 * time.Minute

type sessionRepository interface {
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	ListAll(ctx context.Context) ([]models.Session, error)
	FindByID(ctx context.Context, id string) (*models.Session, error)
	Create(ctx context.Context, session *models.Session) error
	Update(ctx context.Context, session *models.Session) error
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, updatedAt time.Time) error
}

type sessionUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListSuspendedLecturerNames(ctx context.Context) ([]string, error)
}

type sessionNotificationRepository interface {
	CreateDedup(ctx context.Context, notif *models.Notification) (bool, error)
	EarliestCancellations(ctx context.Context) (map[string]time.Time, error)
}

type sessionPreferenceRepository interface {
	Get(ctx context.Context, userID string) (*models.Preference, error)
	AddArchived(ctx context.Context, userID, classID string) error
	RemoveArchived(ctx context.Context, userID, classID string) error
	AddDeleted(ctx context.Context, userID string, role models.UserRole, classID string) error
}

type usageInvalidator interface {
	Invalidate(ctx context.Context)
}

// SessionService implements scheduling: create, reschedule, cancel, per-user
// soft delete and archive, bulk import, and role-filtered listing.
type SessionService struct {
	sessions      sessionRepository
	users         sessionUserRepository
	notifications sessionNotificationRepository
	prefs         sessionPreferenceRepository
	usage         usageInvalidator
	validator     *validator.Validate
	logger        *zap.Logger
	clock         clock.Clock
	location      *time.Location
	// granularity truncates transition timestamps before they become part of
	// a deterministic notification id.
	granularity time.Duration
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions sessionRepository, users sessionUserRepository, notifications sessionNotificationRepository, prefs sessionPreferenceRepository, usage usageInvalidator, validate *validator.Validate, logger *zap.Logger, clk clock.Clock, location *time.Location, granularity time.Duration) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	if location == nil {
		location = time.UTC
	}
	if granularity <= 0 {
		granularity = time.Second
	}
	return &SessionService{
		sessions:      sessions,
		users:         users,
		notifications: notifications,
		prefs:         prefs,
		usage:         usage,
		validator:     validate,
		logger:        logger,
		clock:         clk,
		location:      location,
		granularity:   granularity,
	}
}

// Create schedules a new session for the acting lecturer. Checks run in a
// fixed order and the first failure wins: role, past start, lead time, class
// types, room, end-after-start, then the conflict scan.
func (s *SessionService) Create(ctx context.Context, actorID string, req models.SessionRequest) (*models.Session, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleLecturer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lecturers can schedule sessions")
	}

	now := s.clock.Now()
	if err := s.validateTiming(req, now); err != nil {
		return nil, err
	}
	if err := s.validateClassTypes(req.ClassTypes, now); err != nil {
		return nil, err
	}
	if !schedule.IsValidRoom(req.Location) {
		return nil, appErrors.Clone(appErrors.ErrInvalidLocation, fmt.Sprintf("room %s is not on the floor plan", req.Location))
	}

	if err := s.checkConflict(ctx, req, actor.Name, nil); err != nil {
		return nil, err
	}

	session := &models.Session{
		ID:         uuid.NewString(),
		Name:       req.Name,
		ClassTypes: pq.StringArray(req.ClassTypes),
		Start:      req.Start,
		End:        req.End,
		Location:   req.Location,
		Lecturers:  pq.StringArray{actor.Name},
		Note:       req.Note,
		Status:     schedule.DeriveStatus(req.Start, req.End, false, now),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}

	s.invalidate(ctx)
	s.logger.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("lecturer", actor.Name),
		zap.Time("start", session.Start))
	return session, nil
}

// Update reschedules an existing session. Finished and cancelled sessions
// reject the change; a successful reschedule notifies every viewer.
func (s *SessionService) Update(ctx context.Context, actorID, sessionID string, req models.SessionRequest) (*models.Session, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(actor, session); err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "finished or cancelled sessions cannot be rescheduled")
	}

	now := s.clock.Now()
	if err := s.validateTiming(req, now); err != nil {
		return nil, err
	}
	if err := s.validateClassTypes(req.ClassTypes, now); err != nil {
		return nil, err
	}
	if !schedule.IsValidRoom(req.Location) {
		return nil, appErrors.Clone(appErrors.ErrInvalidLocation, fmt.Sprintf("room %s is not on the floor plan", req.Location))
	}

	ignore := map[string]struct{}{session.ID: {}}
	if err := s.checkConflict(ctx, req, actor.Name, ignore); err != nil {
		return nil, err
	}

	session.Name = req.Name
	session.ClassTypes = pq.StringArray(req.ClassTypes)
	session.Start = req.Start
	session.End = req.End
	session.Location = req.Location
	session.Note = req.Note
	session.Status = schedule.DeriveStatus(req.Start, req.End, false, now)

	if err := s.sessions.Update(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store session")
	}

	s.emit(ctx, session, models.NotificationRescheduled, fmt.Sprintf("Class %q has been rescheduled", session.Name), now)
	s.invalidate(ctx)
	return session, nil
}

// Cancel marks the session cancelled and notifies every viewer. Cancelling a
// session that is already finished or cancelled is a no-op.
func (s *SessionService) Cancel(ctx context.Context, actorID, sessionID string) (*models.Session, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOwner(actor, session); err != nil {
		return nil, err
	}
	if session.Status.Terminal() {
		return session, nil
	}

	now := s.clock.Now()
	if err := s.sessions.UpdateStatus(ctx, session.ID, models.StatusCancelled, now.UTC()); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
	}
	session.Status = models.StatusCancelled

	s.emit(ctx, session, models.NotificationCancelled, fmt.Sprintf("Class %q has been cancelled", session.Name), now)
	s.invalidate(ctx)
	s.logger.Info("session cancelled", zap.String("session_id", session.ID), zap.String("actor", actor.Name))
	return session, nil
}

// SoftDelete hides the session from the caller only. When a lecturer removes
// one of their own sessions it is first cancelled for everyone.
func (s *SessionService) SoftDelete(ctx context.Context, actorID, sessionID string) error {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return err
	}
	if actor.Role == models.RoleAdministrator {
		return appErrors.Clone(appErrors.ErrForbidden, "administrators do not hold per-user session lists")
	}

	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}

	if actor.Role == models.RoleLecturer && s.owns(actor, session) && !session.Status.Terminal() {
		if _, err := s.Cancel(ctx, actorID, sessionID); err != nil {
			return err
		}
	}

	if err := s.prefs.AddDeleted(ctx, actor.ID, actor.Role, session.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hide session")
	}
	return nil
}

// Archive moves the session into the caller's archive list.
func (s *SessionService) Archive(ctx context.Context, actorID, sessionID string) error {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return err
	}
	if err := s.prefs.AddArchived(ctx, actorID, sessionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to archive session")
	}
	return nil
}

// Restore moves the session back out of the caller's archive list.
func (s *SessionService) Restore(ctx context.Context, actorID, sessionID string) error {
	if err := s.prefs.RemoveArchived(ctx, actorID, sessionID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to restore session")
	}
	return nil
}

// BulkCreate validates and stores each item independently. A failing row is
// reported in its outcome and never rolls back rows that succeeded.
func (s *SessionService) BulkCreate(ctx context.Context, actorID string, items []models.BulkSessionItem) (*models.BulkSessionResult, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != models.RoleLecturer {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only lecturers can schedule sessions")
	}

	result := &models.BulkSessionResult{Outcomes: make([]models.BulkSessionOutcome, 0, len(items))}
	for _, item := range items {
		session, err := s.Create(ctx, actorID, item.Session)
		outcome := models.BulkSessionOutcome{Row: item.Row}
		if err != nil {
			outcome.Error = appErrors.FromError(err).Message
		} else {
			outcome.ID = session.ID
			outcome.Created = true
			result.CreatedCount++
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}
	return result, nil
}

// Get returns a session by id with its status derived for the current instant.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	session.Status = schedule.DeriveSessionStatus(session, s.clock.Now())
	return session, nil
}

// List returns sessions matching a filter. Administrator listing; per-user
// views go through ListForUser.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	now := s.clock.Now()
	for i := range sessions {
		sessions[i].Status = schedule.DeriveSessionStatus(&sessions[i], now)
	}
	return sessions, total, nil
}

// ListForUser builds the caller's session view. Lecturers see sessions they
// teach, matched by normalized name. Students see sessions for their current
// class type, excluding sessions taught by a suspended lecturer and cancelled
// sessions whose earliest cancellation predates the student's registration.
// Both views drop the caller's soft-deleted ids and split out archived ones.
func (s *SessionService) ListForUser(ctx context.Context, actorID string) (*models.SessionOverview, error) {
	actor, err := s.loadActor(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleAdministrator {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "administrators use the usage reports, not per-user lists")
	}

	all, err := s.sessions.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	pref, err := s.prefs.Get(ctx, actor.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load preferences")
	}

	now := s.clock.Now()
	for i := range all {
		all[i].Status = schedule.DeriveSessionStatus(&all[i], now)
	}

	var visible []models.Session
	switch actor.Role {
	case models.RoleLecturer:
		visible = filterForLecturer(all, actor.Name)
	case models.RoleStudent:
		suspended, err := s.users.ListSuspendedLecturerNames(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list suspended lecturers")
		}
		cancellations, err := s.notifications.EarliestCancellations(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cancellations")
		}
		visible = filterForStudent(all, actor, suspended, cancellations)
	}

	overview := &models.SessionOverview{Sessions: []models.Session{}, Archived: []models.Session{}}
	for _, session := range visible {
		if pref.Deleted(actor.Role, session.ID) {
			continue
		}
		if pref.Archived(session.ID) {
			overview.Archived = append(overview.Archived, session)
		} else {
			overview.Sessions = append(overview.Sessions, session)
		}
	}
	return overview, nil
}

func filterForLecturer(all []models.Session, name string) []models.Session {
	normalized := schedule.NormalizeName(name)
	var out []models.Session
	for _, session := range all {
		for _, lecturer := range session.Lecturers {
			if schedule.NormalizeName(lecturer) == normalized {
				out = append(out, session)
				break
			}
		}
	}
	return out
}

func filterForStudent(all []models.Session, student *models.User, suspendedLecturers []string, earliestCancellations map[string]time.Time) []models.Session {
	if student.ClassType == nil || *student.ClassType == "" {
		return nil
	}
	suspended := make(map[string]struct{}, len(suspendedLecturers))
	for _, name := range suspendedLecturers {
		suspended[schedule.NormalizeName(name)] = struct{}{}
	}

	var out []models.Session
	for _, session := range all {
		if !containsString(session.ClassTypes, *student.ClassType) {
			continue
		}
		if anySuspended(session.Lecturers, suspended) {
			continue
		}
		if session.Status == models.StatusCancelled {
			// A cancellation that happened before the student existed is
			// noise, not news.
			if at, ok := earliestCancellations[session.ID]; ok && at.Before(student.RegistrationDate) {
				continue
			}
		}
		out = append(out, session)
	}
	return out
}

func anySuspended(lecturers []string, suspended map[string]struct{}) bool {
	for _, name := range lecturers {
		if _, ok := suspended[schedule.NormalizeName(name)]; ok {
			return true
		}
	}
	return false
}

func containsString(list []string, value string) bool {
	for _, item := range list {
		if item == value {
			return true
		}
	}
	return false
}

func (s *SessionService) validateTiming(req models.SessionRequest, now time.Time) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	if req.Start.Before(now) {
		return appErrors.Clone(appErrors.ErrInvalidTiming, "session cannot be scheduled in the past")
	}
	if req.Start.Sub(now) < MinScheduleLead {
		return appErrors.Clone(appErrors.ErrInvalidTiming, "session must start at least 30 minutes from now")
	}
	if !req.End.After(req.Start) {
		return appErrors.Clone(appErrors.ErrInvalidTiming, "session must end after it starts")
	}
	return nil
}

func (s *SessionService) validateClassTypes(classTypes []string, now time.Time) error {
	for _, label := range classTypes {
		if !schedule.ValidClassType(label, now, s.location) {
			return appErrors.Clone(appErrors.ErrInvalidClassType, fmt.Sprintf("class type %s is not offered this period", label))
		}
	}
	return nil
}

func (s *SessionService) checkConflict(ctx context.Context, req models.SessionRequest, lecturerName string, ignore map[string]struct{}) error {
	existing, err := s.sessions.ListAll(ctx)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load sessions for conflict check")
	}
	candidate := schedule.Candidate{
		Start:    req.Start,
		End:      req.End,
		Location: req.Location,
		Lecturer: lecturerName,
	}
	if conflict := schedule.FindConflict(candidate, existing, ignore, s.location); conflict != nil {
		return appErrors.Wrap(
			&models.SessionConflictError{Message: schedule.ConflictMessage(conflict, req.Location), Conflict: *conflict},
			appErrors.ErrSchedulingConflict.Code,
			appErrors.ErrSchedulingConflict.Status,
			schedule.ConflictMessage(conflict, req.Location),
		)
	}
	return nil
}

// emit stores a notification through the deduplicating path; a repeat emission
// with the same key is silently dropped.
func (s *SessionService) emit(ctx context.Context, session *models.Session, kind models.NotificationKind, message string, now time.Time) {
	notif := &models.Notification{
		ID:        models.NotificationKey(session.ID, kind, now, s.granularity),
		ClassID:   session.ID,
		ClassName: session.Name,
		Kind:      kind,
		Message:   message,
		Date:      now.UTC(),
		ReadBy:    pq.StringArray{},
		DeletedBy: pq.StringArray{},
	}
	if _, err := s.notifications.CreateDedup(ctx, notif); err != nil {
		s.logger.Warn("failed to store notification",
			zap.String("session_id", session.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
	}
}

func (s *SessionService) invalidate(ctx context.Context) {
	if s.usage != nil {
		s.usage.Invalidate(ctx)
	}
}

func (s *SessionService) loadActor(ctx context.Context, actorID string) (*models.User, error) {
	actor, err := s.users.FindByID(ctx, actorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "acting user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load acting user")
	}
	return actor, nil
}

func (s *SessionService) loadSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

func (s *SessionService) owns(actor *models.User, session *models.Session) bool {
	normalized := schedule.NormalizeName(actor.Name)
	for _, lecturer := range session.Lecturers {
		if schedule.NormalizeName(lecturer) == normalized {
			return true
		}
	}
	return false
}

// authorizeOwner permits the owning lecturer and administrators.
func (s *SessionService) authorizeOwner(actor *models.User, session *models.Session) error {
	if actor.Role == models.RoleAdministrator {
		return nil
	}
	if actor.Role == models.RoleLecturer && s.owns(actor, session) {
		return nil
	}
	return appErrors.Clone(appErrors.ErrForbidden, "session belongs to another lecturer")
}
