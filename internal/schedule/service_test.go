package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"chilivault/internal/clock"
	logx "chilivault/pkg/logx"
)

func TestServiceDefer(t *testing.T) {
	t.Parallel()

	s := New(Config{}, NewEvaluator(NewMemorySource(nil), clock.System(), logx.Nop(), nil), logx.Nop())

	done := make(chan struct{})
	s.Defer("archive", 10*time.Millisecond, func(ctx context.Context) {
		close(done)
	})
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("deferred job never ran")
	}
}

func TestServiceDeferReplacesByName(t *testing.T) {
	t.Parallel()

	s := New(Config{}, NewEvaluator(NewMemorySource(nil), clock.System(), logx.Nop(), nil), logx.Nop())

	var first, second atomic.Int32
	done := make(chan struct{})
	s.Defer("archive", 50*time.Millisecond, func(ctx context.Context) {
		first.Add(1)
	})
	s.Defer("archive", 10*time.Millisecond, func(ctx context.Context) {
		second.Add(1)
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement job never ran")
	}
	time.Sleep(100 * time.Millisecond)
	if first.Load() != 0 {
		t.Error("replaced job still ran")
	}
	if second.Load() != 1 {
		t.Errorf("replacement ran %d times", second.Load())
	}
}

func TestServiceStopCancelsDeferred(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true}, NewEvaluator(NewMemorySource(nil), clock.System(), logx.Nop(), nil), logx.Nop())
	s.Start(context.Background())

	var ran atomic.Int32
	s.Defer("archive", 50*time.Millisecond, func(ctx context.Context) {
		ran.Add(1)
	})
	s.Stop(context.Background())

	time.Sleep(150 * time.Millisecond)
	if ran.Load() != 0 {
		t.Error("deferred job ran after Stop")
	}
}

func TestPollIntervalClamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   time.Duration
		want time.Duration
	}{
		{0, defaultPollInterval},
		{-time.Second, defaultPollInterval},
		{20 * time.Second, 20 * time.Second},
		{time.Minute, 30 * time.Second},
		{5 * time.Minute, 30 * time.Second},
	}
	for _, tc := range tests {
		s := New(Config{PollInterval: tc.in}, nil, logx.Nop())
		if got := s.pollIntervalLocked(); got != tc.want {
			t.Errorf("pollInterval(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestServiceStartStopIdempotent(t *testing.T) {
	t.Parallel()

	s := New(Config{Enabled: true, PollInterval: 10 * time.Second},
		NewEvaluator(NewMemorySource(nil), clock.System(), logx.Nop(), nil), logx.Nop())

	ctx := context.Background()
	s.Start(ctx)
	s.Start(ctx) // no-op
	s.Stop(ctx)
	s.Stop(ctx) // no-op
}
