// Package scheduler wraps robfig/cron behind a small named-job facade
// so periodic maintenance (heartbeat probes, presence decay, store
// cleanup) has an explicit, testable lifecycle instead of ambient
// timers.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a unit of periodic work. The context is cancelled when the
// scheduler stops.
type Job func(ctx context.Context) error

type Scheduler struct {
	c      *cron.Cron
	logger *slog.Logger

	baseCtx context.Context
	cancel  context.CancelFunc

	mu      sync.Mutex
	entries map[string]cron.EntryID
	started bool
}

func New(logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		c:       cron.New(),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
		entries: make(map[string]cron.EntryID),
	}
}

// AddInterval registers job to run every interval. Re-registering a name
// replaces the previous schedule, which keeps hot-reload idempotent.
func (s *Scheduler) AddInterval(name string, every time.Duration, job Job) error {
	if name == "" {
		return errors.New("scheduler: name required")
	}
	if every <= 0 {
		return fmt.Errorf("scheduler: job %s: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.c.Remove(id)
	}
	id := s.c.Schedule(cron.Every(every), cron.FuncJob(s.wrap(name, job)))
	s.entries[name] = id

	s.logger.Debug("job scheduled",
		slog.String("job", name),
		slog.Duration("every", every),
	)
	return nil
}

// Remove unregisters a named job. Unknown names are a no-op.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.c.Remove(id)
		delete(s.entries, name)
	}
}

// wrap isolates one job's failure or panic from the cron runner and
// from every other job.
func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("job panicked",
					slog.String("job", name),
					slog.Any("panic", r),
					slog.String("stack", string(debug.Stack())),
				)
			}
		}()

		start := time.Now()
		if err := job(s.baseCtx); err != nil {
			s.logger.Error("job failed",
				slog.String("job", name),
				slog.Duration("took", time.Since(start)),
				slog.Any("err", err),
			)
			return
		}
		s.logger.Debug("job completed",
			slog.String("job", name),
			slog.Duration("took", time.Since(start)),
		)
	}
}

// Start begins running scheduled jobs. Idempotent.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.c.Start()
	s.started = true
}

// Stop cancels the job context and waits for running jobs to finish, or
// until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.cancel()
	done := s.c.Stop().Done()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("scheduler: stop: %w", ctx.Err())
	}
}
