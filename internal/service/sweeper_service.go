package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/pajalhq/pajal-api/internal/models"
	"github.com/pajalhq/pajal-api/internal/schedule"
	"github.com/pajalhq/pajal-api/pkg/clock"
	"github.com/pajalhq/pajal-api/pkg/jobs"
)

// SweepJobType names the queued job that runs one sweep pass.
const SweepJobType = "schedule.sweep"

type sweeperSessionRepository interface {
	ListNonTerminal(ctx context.Context) ([]models.Session, error)
	UpdateStatus(ctx context.Context, id string, status models.SessionStatus, updatedAt time.Time) error
}

type sweeperUserRepository interface {
	ListStudentsWithClassType(ctx context.Context) ([]models.User, error)
	UpdateClassType(ctx context.Context, id, classType string, updatedAt time.Time) error
}

type sweeperNotificationRepository interface {
	CreateDedup(ctx context.Context, notif *models.Notification) (bool, error)
}

type sweeperMetrics interface {
	ObserveSweep(duration time.Duration, transitions, emitted int)
}

// SweeperService advances time-derived state: it rolls student class types at
// academic-period boundaries and re-derives the status of every non-terminal
// session, emitting start and end notifications for observed transitions.
//
// Each pass works on the snapshot it fetched; a session mutated concurrently
// is picked up on the next tick. Notification ids are deterministic, so
// re-running a pass for the same instant stores nothing twice.
type SweeperService struct {
	sessions      sweeperSessionRepository
	users         sweeperUserRepository
	notifications sweeperNotificationRepository
	metrics       sweeperMetrics
	logger        *zap.Logger
	clock         clock.Clock
	location      *time.Location
	granularity   time.Duration
}

// NewSweeperService constructs a SweeperService.
func NewSweeperService(sessions sweeperSessionRepository, users sweeperUserRepository, notifications sweeperNotificationRepository, metrics sweeperMetrics, logger *zap.Logger, clk clock.Clock, location *time.Location, granularity time.Duration) *SweeperService {
	if logger == nil {
		logger = zap.NewNop()
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
	return &SweeperService{
		sessions:      sessions,
		users:         users,
		notifications: notifications,
		metrics:       metrics,
		logger:        logger,
		clock:         clk,
		location:      location,
		granularity:   granularity,
	}
}

// Queue builds the worker queue that drains sweep jobs.
func (s *SweeperService) Queue(workers int, logger *zap.Logger) *jobs.Queue {
	return jobs.NewQueue("sweeper", func(ctx context.Context, _ jobs.Job) error {
		return s.Tick(ctx, s.clock.Now())
	}, jobs.QueueConfig{
		Workers:    workers,
		BufferSize: 1,
		Logger:     logger,
	})
}

// Run starts the queue and feeds it a sweep job per interval until the
// context is cancelled.
func (s *SweeperService) Run(ctx context.Context, queue *jobs.Queue, interval time.Duration) {
	queue.Start(ctx)
	go queue.EnqueueEvery(ctx, SweepJobType, interval)

	// Run one pass immediately so derived state is fresh at startup.
	if err := queue.Enqueue(jobs.Job{ID: uuid.NewString(), Type: SweepJobType, Enqueued: s.clock.Now()}); err != nil {
		s.logger.Warn("failed to enqueue initial sweep", zap.Error(err))
	}
}

// Tick performs one sweep pass for the given instant.
func (s *SweeperService) Tick(ctx context.Context, now time.Time) error {
	started := time.Now()

	if err := s.rollClassTypes(ctx, now); err != nil {
		return err
	}
	transitions, emitted, err := s.sweepStatuses(ctx, now)
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.ObserveSweep(time.Since(started), transitions, emitted)
	}
	if transitions > 0 {
		s.logger.Debug("sweep pass applied transitions",
			zap.Int("transitions", transitions),
			zap.Int("notifications", emitted))
	}
	return nil
}

func (s *SweeperService) rollClassTypes(ctx context.Context, now time.Time) error {
	students, err := s.users.ListStudentsWithClassType(ctx)
	if err != nil {
		return fmt.Errorf("list students for class-type roll: %w", err)
	}

	for i := range students {
		student := &students[i]
		if student.ClassType == nil || *student.ClassType == "" {
			continue
		}
		rolled, changed := schedule.RollClassType(student.RegistrationDate, *student.ClassType, now, s.location)
		if !changed {
			continue
		}
		if err := s.users.UpdateClassType(ctx, student.ID, rolled, now.UTC()); err != nil {
			s.logger.Warn("failed to persist rolled class type",
				zap.String("user_id", student.ID),
				zap.String("class_type", rolled),
				zap.Error(err))
			continue
		}
		s.logger.Info("class type rolled",
			zap.String("user_id", student.ID),
			zap.String("from", *student.ClassType),
			zap.String("to", rolled))
	}
	return nil
}

func (s *SweeperService) sweepStatuses(ctx context.Context, now time.Time) (int, int, error) {
	sessions, err := s.sessions.ListNonTerminal(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("list sessions for sweep: %w", err)
	}

	var transitions, emitted int
	for i := range sessions {
		session := &sessions[i]
		next := schedule.DeriveSessionStatus(session, now)
		if next == session.Status {
			continue
		}

		if err := s.sessions.UpdateStatus(ctx, session.ID, next, now.UTC()); err != nil {
			s.logger.Warn("failed to persist status transition",
				zap.String("session_id", session.ID),
				zap.String("status", string(next)),
				zap.Error(err))
			continue
		}
		transitions++

		switch next {
		case models.StatusActive:
			if s.emitTransition(ctx, session, models.NotificationStarted, fmt.Sprintf("Class %q has started", session.Name), now) {
				emitted++
			}
		case models.StatusDone:
			if s.emitTransition(ctx, session, models.NotificationEnded, fmt.Sprintf("Class %q has ended", session.Name), now) {
				emitted++
			}
		}
		session.Status = next
	}
	return transitions, emitted, nil
}

func (s *SweeperService) emitTransition(ctx context.Context, session *models.Session, kind models.NotificationKind, message string, now time.Time) bool {
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
	inserted, err := s.notifications.CreateDedup(ctx, notif)
	if err != nil {
		s.logger.Warn("failed to store transition notification",
			zap.String("session_id", session.ID),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return false
	}
	return inserted
}
