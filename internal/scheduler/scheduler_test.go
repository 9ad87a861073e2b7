package scheduler

import (
	"context"
	"testing"
	"time"
)

func newTestScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s, err := New(time.UTC, func(context.Context, time.Time) {})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestScheduler_StartStopLifecycle(t *testing.T) {
	s := newTestScheduler(t)

	if s.Running() {
		t.Fatalf("new scheduler must not be running")
	}

	s.Start()
	if !s.Running() {
		t.Fatalf("Start did not mark the loop live")
	}

	// Idempotent: a second Start is a no-op.
	s.Start()
	if !s.Running() {
		t.Fatalf("repeated Start broke the running state")
	}

	s.Stop()
	if s.Running() {
		t.Fatalf("Stop did not halt the loop")
	}

	// Idempotent: Stop on a stopped loop must not block or panic.
	s.Stop()
	if s.Running() {
		t.Fatalf("repeated Stop broke the state")
	}
}

func TestScheduler_RestartAfterStop(t *testing.T) {
	s := newTestScheduler(t)

	s.Start()
	s.Stop()
	s.Start()
	defer s.Stop()

	if !s.Running() {
		t.Fatalf("scheduler did not restart after Stop")
	}
}
