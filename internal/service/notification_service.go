package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/internal/schedule"
	"github.com/pajalhq/pajal-api/pkg/clock"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
)

type notificationRepository interface {
	List(ctx context.Context, limit int) ([]models.Notification, error)
	FindByID(ctx context.Context, id string) (*models.Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, ids []string, userID string) error
	AddDeletedBy(ctx context.Context, id, userID string) error
	AddDeletedByAll(ctx context.Context, ids []string, userID string) error
	EarliestCancellations(ctx context.Context) (map[string]time.Time, error)
}

type notificationUserRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	ListSuspendedLecturerNames(ctx context.Context) ([]string, error)
}

type notificationSessionRepository interface {
	ListAll(ctx context.Context) ([]models.Session, error)
}

// NotificationService filters the notification feed per user. A notification
// is visible when it is not older than the user's registration, its class is
// in the user's session view, and the user has not deleted it. Lecturers do
// not receive cancellation or reschedule notices for their own actions, so
// those kinds are dropped from their feed.
type NotificationService struct {
	notifications notificationRepository
	users         notificationUserRepository
	sessions      notificationSessionRepository
	logger        *zap.Logger
	clock         clock.Clock
}

// NewNotificationService constructs a NotificationService.
func NewNotificationService(notifications notificationRepository, users notificationUserRepository, sessions notificationSessionRepository, logger *zap.Logger, clk clock.Clock) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &NotificationService{notifications: notifications, users: users, sessions: sessions, logger: logger, clock: clk}
}

// ListForUser returns the caller's visible notifications, most recent first.
func (s *NotificationService) ListForUser(ctx context.Context, userID string) ([]models.Notification, error) {
	user, err := s.loadUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	all, err := s.notifications.List(ctx, 0)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list notifications")
	}

	visibleClasses, err := s.visibleClassIDs(ctx, user)
	if err != nil {
		return nil, err
	}

	out := make([]models.Notification, 0, len(all))
	for _, notif := range all {
		if s.visible(&notif, user, visibleClasses) {
			out = append(out, notif)
		}
	}
	return out, nil
}

// MarkRead records that the caller has seen one notification.
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if _, err := s.loadNotification(ctx, notificationID); err != nil {
		return err
	}
	if err := s.notifications.MarkRead(ctx, notificationID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notification read")
	}
	return nil
}

// MarkAllRead records that the caller has seen every currently visible
// notification.
func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) error {
	visible, err := s.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(visible))
	for _, notif := range visible {
		if !notif.ReadByUser(userID) {
			ids = append(ids, notif.ID)
		}
	}
	if err := s.notifications.MarkAllRead(ctx, ids, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to mark notifications read")
	}
	return nil
}

// Delete hides one notification from the caller. Other users keep seeing it.
func (s *NotificationService) Delete(ctx context.Context, userID, notificationID string) error {
	if _, err := s.loadNotification(ctx, notificationID); err != nil {
		return err
	}
	if err := s.notifications.AddDeletedBy(ctx, notificationID, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notification")
	}
	return nil
}

// DeleteAll hides every currently visible notification from the caller.
func (s *NotificationService) DeleteAll(ctx context.Context, userID string) error {
	visible, err := s.ListForUser(ctx, userID)
	if err != nil {
		return err
	}
	ids := make([]string, 0, len(visible))
	for _, notif := range visible {
		ids = append(ids, notif.ID)
	}
	if err := s.notifications.AddDeletedByAll(ctx, ids, userID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete notifications")
	}
	return nil
}

func (s *NotificationService) visible(notif *models.Notification, user *models.User, visibleClasses map[string]struct{}) bool {
	if notif.DeletedByUser(user.ID) {
		return false
	}
	if notif.Date.Before(user.RegistrationDate) {
		return false
	}
	if user.Role == models.RoleLecturer {
		if notif.Kind == models.NotificationCancelled || notif.Kind == models.NotificationRescheduled {
			return false
		}
	}
	_, ok := visibleClasses[notif.ClassID]
	return ok
}

// visibleClassIDs computes the set of class ids in the user's session view,
// applying the same role filtering as the session list.
func (s *NotificationService) visibleClassIDs(ctx context.Context, user *models.User) (map[string]struct{}, error) {
	all, err := s.sessions.ListAll(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	now := s.clock.Now()
	for i := range all {
		all[i].Status = schedule.DeriveSessionStatus(&all[i], now)
	}

	var visible []models.Session
	switch user.Role {
	case models.RoleLecturer:
		visible = filterForLecturer(all, user.Name)
	case models.RoleStudent:
		suspended, err := s.users.ListSuspendedLecturerNames(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list suspended lecturers")
		}
		cancellations, err := s.notifications.EarliestCancellations(ctx)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load cancellations")
		}
		visible = filterForStudent(all, user, suspended, cancellations)
	default:
		visible = all
	}

	ids := make(map[string]struct{}, len(visible))
	for _, session := range visible {
		ids[session.ID] = struct{}{}
	}
	return ids, nil
}

func (s *NotificationService) loadUser(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "acting user no longer exists")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}

func (s *NotificationService) loadNotification(ctx context.Context, id string) (*models.Notification, error) {
	notif, err := s.notifications.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "notification not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load notification")
	}
	return notif, nil
}
