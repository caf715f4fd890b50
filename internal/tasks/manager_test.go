package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestGo_tracksAndRemoves(t *testing.T) {
	m := NewManager(context.Background(), zap.NewNop())

	release := make(chan struct{})
	if err := m.Go("worker", func(ctx context.Context) error {
		<-release
		return nil
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}

	if m.Count() != 1 {
		t.Fatalf("Count = %d, want 1", m.Count())
	}
	if names := m.Names(); len(names) != 1 || names[0] != "worker" {
		t.Errorf("Names = %v", names)
	}

	close(release)
	waitFor(t, func() bool { return m.Count() == 0 })
}

func TestCancelByName(t *testing.T) {
	m := NewManager(context.Background(), zap.NewNop())

	for i := 0; i < 2; i++ {
		if err := m.Go("sync", func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		}); err != nil {
			t.Fatalf("Go: %v", err)
		}
	}
	if err := m.Go("monitor", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}

	if n := m.CancelByName("sync"); n != 2 {
		t.Errorf("CancelByName = %d, want 2", n)
	}
	waitFor(t, func() bool { return m.Count() == 1 })

	if names := m.Names(); len(names) != 1 || names[0] != "monitor" {
		t.Errorf("Names after cancel = %v", names)
	}
	m.Shutdown(time.Second) //nolint:errcheck
}

func TestShutdown_waitsAndRefusesNewWork(t *testing.T) {
	m := NewManager(context.Background(), zap.NewNop())

	if err := m.Go("loop", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}

	if err := m.Shutdown(2 * time.Second); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if err := m.Go("late", func(ctx context.Context) error { return nil }); !errors.Is(err, ErrShuttingDown) {
		t.Errorf("Go after Shutdown = %v, want ErrShuttingDown", err)
	}
}

func TestShutdown_timesOutOnStuckTask(t *testing.T) {
	m := NewManager(context.Background(), zap.NewNop())

	release := make(chan struct{})
	defer close(release)
	if err := m.Go("stuck", func(ctx context.Context) error {
		<-release // ignores ctx
		return nil
	}); err != nil {
		t.Fatalf("Go: %v", err)
	}

	if err := m.Shutdown(50 * time.Millisecond); err == nil {
		t.Error("expected shutdown timeout error")
	}
}
