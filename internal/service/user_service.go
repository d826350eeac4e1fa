package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/internal/schedule"
	"github.com/pajalhq/pajal-api/pkg/clock"
	appErrors "github.com/pajalhq/pajal-api/pkg/errors"
)

type userRepository interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id, passwordHash string, updatedAt time.Time) error
	SetSuspended(ctx context.Context, id string, suspended bool, updatedAt time.Time) error
	Delete(ctx context.Context, id string) error
	RevokeUserRefreshTokens(ctx context.Context, userID string) error
}

type userSessionRepository interface {
	ListByLecturer(ctx context.Context, name string) ([]models.Session, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, updatedAt time.Time) error
}

type userNotificationRepository interface {
	CreateDedup(ctx context.Context, notif *models.Notification) (bool, error)
}

// UserService covers profile self-service and administrator account
// management.
type UserService struct {
	users         userRepository
	sessions      userSessionRepository
	notifications userNotificationRepository
	validator     *validator.Validate
	logger        *zap.Logger
	clock         clock.Clock
	location      *time.Location
	granularity   time.Duration
}

// NewUserService constructs a UserService.
func NewUserService(users userRepository, sessions userSessionRepository, notifications userNotificationRepository, validate *validator.Validate, logger *zap.Logger, clk clock.Clock, location *time.Location, granularity time.Duration) *UserService {
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
	return &UserService{
		users:         users,
		sessions:      sessions,
		notifications: notifications,
		validator:     validate,
		logger:        logger,
		clock:         clk,
		location:      location,
		granularity:   granularity,
	}
}

// GetProfile returns the caller's own account.
func (s *UserService) GetProfile(ctx context.Context, userID string) (*models.User, error) {
	return s.load(ctx, userID)
}

// UpdateProfile applies a user's own edits. Name, NIM/NIP and class type are
// write-once: they lock after the first non-empty save. The class type must
// belong to the current academic period's offering.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, req models.ProfileUpdateRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid profile payload")
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	if user.NIMNIP != "" && req.NIMNIP != user.NIMNIP {
		return nil, appErrors.Clone(appErrors.ErrValidation, "nim/nip is locked after the first save")
	}
	if user.NIMNIP != "" && req.Name != user.Name {
		return nil, appErrors.Clone(appErrors.ErrValidation, "name is locked after the first save")
	}

	if user.Role == models.RoleStudent {
		if req.ClassType != nil && *req.ClassType != "" {
			current := ""
			if user.ClassType != nil {
				current = *user.ClassType
			}
			if current != "" && *req.ClassType != current {
				return nil, appErrors.Clone(appErrors.ErrValidation, "class type is locked after the first save")
			}
			if current == "" && !schedule.ValidClassType(*req.ClassType, s.clock.Now(), s.location) {
				return nil, appErrors.Clone(appErrors.ErrInvalidClassType, fmt.Sprintf("class type %s is not offered this period", *req.ClassType))
			}
			user.ClassType = req.ClassType
		}
	}

	if req.Username != user.Username {
		if other, err := s.users.FindByUsername(ctx, req.Username); err == nil && other != nil && other.ID != user.ID {
			return nil, appErrors.Clone(appErrors.ErrValidation, "username is already taken")
		} else if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check username")
		}
		user.Username = req.Username
	}

	user.Name = req.Name
	user.NIMNIP = req.NIMNIP

	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}

	if req.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash password")
		}
		if err := s.users.UpdatePassword(ctx, user.ID, string(hash), s.clock.Now().UTC()); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update password")
		}
	}

	return user, nil
}

// List returns accounts matching the filter. Administrator only; the handler
// enforces the role.
func (s *UserService) List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error) {
	users, total, err := s.users.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list users")
	}
	return users, total, nil
}

// Get returns any account by id.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	return s.load(ctx, userID)
}

// AdminUpdate applies administrator edits to any account.
func (s *UserService) AdminUpdate(ctx context.Context, userID string, req models.AdminUserUpdateRequest) (*models.User, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid user payload")
	}
	if !req.Role.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown role")
	}

	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	user.Name = req.Name
	user.Username = req.Username
	user.NIMNIP = req.NIMNIP
	user.Role = req.Role

	if err := s.users.Update(ctx, user); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update user")
	}
	return user, nil
}

// SetSuspended toggles account suspension. A suspended lecturer's sessions
// stay in the store but disappear from student views until reinstated.
func (s *UserService) SetSuspended(ctx context.Context, userID string, suspended bool) (*models.User, error) {
	user, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now().UTC()
	if err := s.users.SetSuspended(ctx, user.ID, suspended, now); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update suspension")
	}
	user.IsSuspended = suspended

	if suspended {
		if err := s.users.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
			s.logger.Warn("failed to revoke refresh tokens of suspended user", zap.String("user_id", user.ID), zap.Error(err))
		}
	}

	s.logger.Info("user suspension changed", zap.String("user_id", user.ID), zap.Bool("suspended", suspended))
	return user, nil
}

// Delete removes an account. Deleting a lecturer first cancels every session
// they teach, for everyone, with a cancellation notification per session.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	user, err := s.load(ctx, userID)
	if err != nil {
		return err
	}

	if user.Role == models.RoleLecturer {
		if err := s.cancelLecturerSessions(ctx, user); err != nil {
			return err
		}
	}

	if err := s.users.RevokeUserRefreshTokens(ctx, user.ID); err != nil {
		s.logger.Warn("failed to revoke refresh tokens of deleted user", zap.String("user_id", user.ID), zap.Error(err))
	}
	if err := s.users.Delete(ctx, user.ID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete user")
	}

	s.logger.Info("user deleted", zap.String("user_id", user.ID), zap.String("role", string(user.Role)))
	return nil
}

func (s *UserService) cancelLecturerSessions(ctx context.Context, lecturer *models.User) error {
	sessions, err := s.sessions.ListByLecturer(ctx, lecturer.Name)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lecturer sessions")
	}

	now := s.clock.Now()
	for i := range sessions {
		session := &sessions[i]
		if session.Status.Terminal() {
			continue
		}
		if err := s.sessions.UpdateStatus(ctx, session.ID, models.StatusCancelled, now.UTC()); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel lecturer session")
		}

		notif := &models.Notification{
			ID:        models.NotificationKey(session.ID, models.NotificationCancelled, now, s.granularity),
			ClassID:   session.ID,
			ClassName: session.Name,
			Kind:      models.NotificationCancelled,
			Message:   fmt.Sprintf("Class %q has been cancelled", session.Name),
			Date:      now.UTC(),
			ReadBy:    pq.StringArray{},
			DeletedBy: pq.StringArray{},
		}
		if _, err := s.notifications.CreateDedup(ctx, notif); err != nil {
			s.logger.Warn("failed to store cancellation notification", zap.String("session_id", session.ID), zap.Error(err))
		}
	}
	return nil
}

func (s *UserService) load(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "user not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load user")
	}
	return user, nil
}
