package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/AmirShokry/medicalchallengearena-sub000/internal/models"
	"github.com/AmirShokry/medicalchallengearena-sub000/pkg/ratelimit"
	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StaleReleaser is told about every session removed by a sweep.
type StaleReleaser interface {
	ReleaseStale(ms models.MatchSession)
}

// Sweeper periodically removes inactive sessions and idle rate limiter
// buckets. It never runs on a request path.
type Sweeper struct {
	sessions *SessionStore
	releaser StaleReleaser
	limiters []*ratelimit.RateLimiter
	maxAge   time.Duration
	interval time.Duration
	logger   *zap.Logger

	mu        sync.Mutex
	scheduler gocron.Scheduler
}

func NewSweeper(
	sessions *SessionStore,
	releaser StaleReleaser,
	maxAge, interval time.Duration,
	logger *zap.Logger,
	limiters ...*ratelimit.RateLimiter,
) *Sweeper {
	return &Sweeper{
		sessions: sessions,
		releaser: releaser,
		limiters: limiters,
		maxAge:   maxAge,
		interval: interval,
		logger:   logger,
	}
}

// Start schedules the sweep jobs. Calling Start twice is a no-op.
func (s *Sweeper) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler != nil {
		return nil
	}

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("failed to create scheduler: %w", err)
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() { s.SweepSessions() }),
		gocron.WithName("sweep-stale-sessions"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return fmt.Errorf("failed to schedule session sweep: %w", err)
	}

	if len(s.limiters) > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(s.interval),
			gocron.NewTask(func() { s.SweepLimiter() }),
			gocron.WithName("sweep-rate-limiter"),
		); err != nil {
			return fmt.Errorf("failed to schedule limiter cleanup: %w", err)
		}
	}

	sched.Start()
	s.scheduler = sched

	s.logger.Info("Sweeper started",
		zap.Duration("interval", s.interval),
		zap.Duration("maxAge", s.maxAge))
	return nil
}

func (s *Sweeper) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scheduler == nil {
		return nil
	}
	err := s.scheduler.Shutdown()
	s.scheduler = nil
	s.logger.Info("Sweeper stopped")
	return err
}

// SweepSessions removes sessions idle for longer than maxAge.
func (s *Sweeper) SweepSessions() int {
	removed := s.sessions.SweepStale(s.maxAge)
	for _, ms := range removed {
		s.logger.Info("Stale session removed",
			zap.String("sessionId", ms.ID),
			zap.String("room", ms.RoomKey),
			zap.Time("updatedAt", ms.UpdatedAt))
		if s.releaser != nil {
			s.releaser.ReleaseStale(ms)
		}
	}
	return len(removed)
}

// SweepLimiter drops buckets that have been idle for a full interval.
func (s *Sweeper) SweepLimiter() int {
	n := 0
	for _, l := range s.limiters {
		n += l.Cleanup(s.interval)
	}
	if n > 0 {
		s.logger.Debug("Rate limiter buckets removed", zap.Int("count", n))
	}
	return n
}
