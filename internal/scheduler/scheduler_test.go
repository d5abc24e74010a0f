package scheduler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = s.Stop(ctx)
	})
	return s
}

func TestAddIntervalValidation(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	noop := func(ctx context.Context) error { return nil }

	if err := s.AddInterval("", time.Second, noop); err == nil {
		t.Error("empty name accepted")
	}
	if err := s.AddInterval("job", 0, noop); err == nil {
		t.Error("zero interval accepted")
	}
	if err := s.AddInterval("job", -time.Second, noop); err == nil {
		t.Error("negative interval accepted")
	}
	if err := s.AddInterval("job", time.Second, noop); err != nil {
		t.Errorf("valid job rejected: %v", err)
	}
}

func TestJobRunsOnSchedule(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	var runs atomic.Int64
	// Sub-second intervals are rounded up to one second by the cron
	// runner, so the wait below must absorb a full tick.
	err := s.AddInterval("counter", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()

	deadline := time.After(5 * time.Second)
	for runs.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestRemoveStopsJob(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	var runs atomic.Int64
	if err := s.AddInterval("doomed", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Remove("doomed")
	s.Remove("never-registered")
	s.Start()

	time.Sleep(1500 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("removed job ran %d times", got)
	}
}

func TestReAddReplacesSchedule(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	var first, second atomic.Int64
	if err := s.AddInterval("job", time.Second, func(ctx context.Context) error {
		first.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddInterval("job", time.Second, func(ctx context.Context) error {
		second.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	s.Start()

	deadline := time.After(5 * time.Second)
	for second.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("replacement job never ran")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if first.Load() != 0 {
		t.Errorf("replaced job still ran %d times", first.Load())
	}
}

func TestJobPanicDoesNotKillScheduler(t *testing.T) {
	t.Parallel()
	s := newTestScheduler(t)

	var runs atomic.Int64
	if err := s.AddInterval("panicky", time.Second, func(ctx context.Context) error {
		panic("boom")
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := s.AddInterval("survivor", time.Second, func(ctx context.Context) error {
		runs.Add(1)
		return nil
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()

	deadline := time.After(5 * time.Second)
	for runs.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("survivor ran %d times beside a panicking job, want at least 2", runs.Load())
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestStopCancelsJobContext(t *testing.T) {
	t.Parallel()
	s := New(slog.New(slog.NewTextHandler(io.Discard, nil)))

	// The job may fire more than once before Stop; guard the channel
	// closes against the second invocation.
	var startedOnce, cancelledOnce sync.Once
	started := make(chan struct{})
	cancelled := make(chan struct{})
	if err := s.AddInterval("watcher", time.Second, func(ctx context.Context) error {
		startedOnce.Do(func() { close(started) })
		<-ctx.Done()
		cancelledOnce.Do(func() { close(cancelled) })
		return ctx.Err()
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	s.Start()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("job context never cancelled on stop")
	}
}
