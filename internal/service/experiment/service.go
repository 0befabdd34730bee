package experiment

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/osteele/liquid"

	"github.com/ignite/send-governor/internal/pkg/distlock"
	"github.com/ignite/send-governor/internal/pkg/retry"
)

// Service implements the experiment engine.
type Service struct {
	variants    VariantRepository
	assignments AssignmentRepository
	experiments ExperimentRepository
	stats       StatsRepository

	locks    distlock.Factory
	lockWait retry.Policy
	engine   *liquid.Engine
	rand   func() float64
	now    func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithLocks sets the lock factory used for campaign- and experiment-scope
// mutations. The default only excludes callers in this process.
func WithLocks(f distlock.Factory) Option {
	return func(s *Service) { s.locks = f }
}

// WithLockWait sets how long a mutation polls for a contended lock before
// giving up with ErrBusy. Only MaxRetries, BaseDelay and MaxDelay are used.
func WithLockWait(p retry.Policy) Option {
	return func(s *Service) { s.lockWait = p }
}

// DefaultLockWait polls 20 times with backoff capped at 200ms.
func DefaultLockWait() retry.Policy {
	return retry.Policy{MaxRetries: 20, BaseDelay: 10 * time.Millisecond, MaxDelay: 200 * time.Millisecond}
}

// WithRand sets the source of uniform draws in [0, 1) used for weighted
// selection. The function must be safe for concurrent use.
func WithRand(r func() float64) Option {
	return func(s *Service) { s.rand = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates an experiment engine.
func NewService(variants VariantRepository, assignments AssignmentRepository, experiments ExperimentRepository, stats StatsRepository, opts ...Option) *Service {
	s := &Service{
		variants:    variants,
		assignments: assignments,
		experiments: experiments,
		stats:       stats,
		locks:       distlock.NewLocalFactory(),
		lockWait:    DefaultLockWait(),
		engine:      liquid.NewEngine(),
		rand:        rand.Float64,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func campaignLockKey(campaignID string) string     { return "campaign-variants:" + campaignID }
func experimentLockKey(experimentID string) string { return "experiment:" + experimentID }

// withLock runs fn under the named lock. A contended lock is polled with
// backoff; fn reads current state once it holds the lock, so a caller that
// waited sees the other writer's result. ErrBusy is returned only when the
// wait budget runs out.
func (s *Service) withLock(ctx context.Context, key string, fn func() error) error {
	wait := s.lockWait
	wait.Timeout = 0
	err := retry.Do(ctx, wait, func(context.Context) error {
		err := distlock.WithLock(ctx, s.locks(key), fn)
		if errors.Is(err, distlock.ErrNotAcquired) {
			return err
		}
		return retry.Permanent(err)
	})
	if errors.Is(err, distlock.ErrNotAcquired) {
		return fmt.Errorf("%w (%s)", ErrBusy, key)
	}
	return err
}
