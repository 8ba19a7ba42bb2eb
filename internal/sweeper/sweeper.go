// Package sweeper purges expired conversation sessions on a cron schedule.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/aixgo-dev/codenav/pkg/observability"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// DefaultTimeout bounds a single sweep.
const DefaultTimeout = time.Minute

// Store is the part of the session store a sweep needs.
type Store interface {
	ClearExpiredStates(ctx context.Context) (int, error)
	ActiveSessionCount(ctx context.Context) (int, error)
}

// Sweeper removes expired sessions and refreshes the active session gauge.
type Sweeper struct {
	store   Store
	timeout time.Duration
	logger  *zap.Logger
}

// New creates a sweeper over store.
func New(store Store, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{store: store, timeout: DefaultTimeout, logger: logger}
}

// Sweep runs one purge and returns the number of sessions removed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	removed, err := s.store.ClearExpiredStates(ctx)
	if err != nil {
		return 0, fmt.Errorf("clear expired sessions: %w", err)
	}
	observability.AddExpiredSessions(removed)

	active, err := s.store.ActiveSessionCount(ctx)
	if err != nil {
		return removed, fmt.Errorf("count active sessions: %w", err)
	}
	observability.SetActiveSessions(active)

	if removed > 0 {
		s.logger.Info("expired sessions removed",
			zap.Int("removed", removed),
			zap.Int("active", active),
		)
	}
	return removed, nil
}

// Run sweeps on schedule until ctx is cancelled, then waits for a running
// sweep to finish. Overlapping runs are skipped.
func (s *Sweeper) Run(ctx context.Context, schedule string) error {
	logger := cronLogger{s.logger.Sugar()}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)

	_, err := c.AddFunc(schedule, func() {
		if _, err := s.Sweep(ctx); err != nil {
			s.logger.Warn("session sweep failed", zap.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}

	s.logger.Info("session sweeper started", zap.String("schedule", schedule))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	s.logger.Info("session sweeper stopped")
	return nil
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	sugar *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.sugar.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.sugar.Errorw(msg, append(keysAndValues, "error", err)...)
}
