package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func noop(context.Context, string) error { return nil }

// never is a valid schedule that does not fire during a test.
const never = "0 0 1 1 *"

func waitDone(t *testing.T, ctx context.Context) {
	t.Helper()
	select {
	case <-ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not complete in time")
	}
}

func findStatus(t *testing.T, s *Scheduler, name string) JobStatus {
	t.Helper()
	for _, status := range s.Status() {
		if status.Name == name {
			return status
		}
	}
	t.Fatalf("%s not found in status", name)
	return JobStatus{}
}

func TestAddJob(t *testing.T) {
	s := New(noop)

	if err := s.AddJob(BackfillJob, "0 2 * * *"); err != nil {
		t.Errorf("AddJob() with valid cron = %v, want nil", err)
	}
	if !s.IsScheduled(BackfillJob) {
		t.Error("job was not scheduled")
	}
}

func TestAddJobInvalidCron(t *testing.T) {
	s := New(noop)

	if err := s.AddJob(BackfillJob, "invalid cron"); err == nil {
		t.Error("AddJob() with invalid cron = nil, want error")
	}
	if s.IsScheduled(BackfillJob) {
		t.Error("invalid job was scheduled")
	}
}

func TestAddJobReplacesExisting(t *testing.T) {
	s := New(noop)

	if err := s.AddJob(BackfillJob, "0 2 * * *"); err != nil {
		t.Fatalf("AddJob() = %v", err)
	}
	s.mu.RLock()
	firstID := s.jobs[BackfillJob]
	s.mu.RUnlock()

	if err := s.AddJob(BackfillJob, "0 3 * * *"); err != nil {
		t.Fatalf("AddJob() replacement = %v", err)
	}
	s.mu.RLock()
	secondID := s.jobs[BackfillJob]
	s.mu.RUnlock()

	if firstID == secondID {
		t.Error("job ID was not updated after replacement")
	}
	if got := findStatus(t, s, BackfillJob).Schedule; got != "0 3 * * *" {
		t.Errorf("Schedule = %q, want 0 3 * * *", got)
	}
}

func TestRemoveJob(t *testing.T) {
	s := New(noop)
	if err := s.AddJob(BackfillJob, "0 2 * * *"); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	s.RemoveJob(BackfillJob)
	s.RemoveJob("nonexistent")

	if s.IsScheduled(BackfillJob) {
		t.Error("job still scheduled after RemoveJob()")
	}
}

func TestIsRunning(t *testing.T) {
	s := New(noop)
	if s.IsRunning() {
		t.Error("IsRunning() = true before Start()")
	}

	s.Start()
	if !s.IsRunning() {
		t.Error("IsRunning() = false after Start()")
	}

	ctx := s.Stop()
	if s.IsRunning() {
		t.Error("IsRunning() = true after Stop()")
	}
	waitDone(t, ctx)
}

func TestStopCancelsRunningJob(t *testing.T) {
	started := make(chan struct{})
	s := New(func(ctx context.Context, name string) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	if err := s.AddJob(BackfillJob, never); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	if err := s.Trigger(BackfillJob); err != nil {
		t.Fatalf("Trigger: %v", err)
	}

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("job did not start")
	}
	waitDone(t, s.Stop())

	if findStatus(t, s, BackfillJob).LastError == "" {
		t.Error("expected error after cancelled job")
	}
}

func TestTriggerPreventsDoubleRun(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	s := New(func(ctx context.Context, name string) error {
		calls.Add(1)
		<-release
		return nil
	})
	if err := s.AddJob(BackfillJob, never); err != nil {
		t.Fatalf("AddJob: %v", err)
	}

	if err := s.Trigger(BackfillJob); err != nil {
		t.Fatalf("Trigger() = %v", err)
	}
	for i := 0; i < 5; i++ {
		if err := s.Trigger(BackfillJob); err == nil {
			t.Error("Trigger() while running = nil, want error")
		}
	}
	if !findStatus(t, s, BackfillJob).Running {
		t.Error("Running = false during job")
	}

	close(release)
	waitDone(t, s.Stop())
	if got := calls.Load(); got != 1 {
		t.Errorf("job called %d times, want 1", got)
	}
}

func TestTriggerUnknownJob(t *testing.T) {
	s := New(noop)
	if err := s.Trigger("missing"); err == nil {
		t.Error("Trigger(missing) = nil, want error")
	}
}

func TestTriggerAfterStop(t *testing.T) {
	s := New(noop)
	if err := s.AddJob(BackfillJob, never); err != nil {
		t.Fatalf("AddJob: %v", err)
	}
	waitDone(t, s.Stop())

	if err := s.Trigger(BackfillJob); err == nil {
		t.Error("Trigger() after Stop() = nil, want error")
	}
}

func TestStatus(t *testing.T) {
	s := New(noop)
	for _, name := range []string{"b-job", "a-job"} {
		if err := s.AddJob(name, "0 2 * * *"); err != nil {
			t.Fatalf("AddJob(%s): %v", name, err)
		}
	}
	s.Start()
	defer s.Stop()

	statuses := s.Status()
	if len(statuses) != 2 || statuses[0].Name != "a-job" {
		t.Fatalf("Status() = %+v, want a-job then b-job", statuses)
	}
	if statuses[0].Running {
		t.Error("Running = true, want false")
	}
	if statuses[0].NextRun.IsZero() {
		t.Error("NextRun is zero")
	}
}

func TestStatusAfterRun(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		wantErr bool
	}{
		{"success", nil, false},
		{"failure", errors.New("extend failed"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(func(context.Context, string) error { return tt.err })
			if err := s.AddJob(BackfillJob, never); err != nil {
				t.Fatalf("AddJob: %v", err)
			}
			if err := s.Trigger(BackfillJob); err != nil {
				t.Fatalf("Trigger: %v", err)
			}
			waitDone(t, s.Stop())

			status := findStatus(t, s, BackfillJob)
			if got := status.LastError != ""; got != tt.wantErr {
				t.Errorf("LastError = %q, wantErr %v", status.LastError, tt.wantErr)
			}
			if got := !status.LastRun.IsZero(); got == tt.wantErr {
				t.Errorf("LastRun = %v after %s", status.LastRun, tt.name)
			}
		})
	}
}

func TestValidateCronExpr(t *testing.T) {
	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"0 2 * * *", false},    // 2am daily
		{"*/15 * * * *", false}, // every 15 minutes
		{"0 0 * * 0", false},    // weekly on Sunday
		{"invalid", true},
		{"* * * * * *", true}, // too many fields
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			err := ValidateCronExpr(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateCronExpr(%q) error = %v, wantErr = %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}
