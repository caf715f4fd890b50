// Package tasks tracks named background goroutines and shuts them down
// cooperatively. Every long-running job in the registry (health loop,
// federation sync, index warmup) runs under the one process-wide Manager so
// shutdown can cancel and await them with a single bounded call.
package tasks

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrShuttingDown is returned by Go once Shutdown has begun.
var ErrShuttingDown = errors.New("task manager is shutting down")

type task struct {
	id     uuid.UUID
	name   string
	cancel context.CancelFunc
	done   chan struct{}
}

// Manager owns the set of live background tasks.
type Manager struct {
	base   context.Context
	stop   context.CancelFunc
	logger *zap.Logger

	mu     sync.Mutex
	tasks  map[uuid.UUID]*task
	closed bool
}

// NewManager builds a Manager whose tasks all descend from ctx.
func NewManager(ctx context.Context, logger *zap.Logger) *Manager {
	base, stop := context.WithCancel(ctx)
	return &Manager{
		base:   base,
		stop:   stop,
		logger: logger,
		tasks:  map[uuid.UUID]*task{},
	}
}

// Go spawns fn as a tracked task. The task must return promptly once its
// context is cancelled. A terminal error is logged with the task name;
// cancellation is not an error.
func (m *Manager) Go(name string, fn func(ctx context.Context) error) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrShuttingDown
	}
	ctx, cancel := context.WithCancel(m.base)
	t := &task{id: uuid.New(), name: name, cancel: cancel, done: make(chan struct{})}
	m.tasks[t.id] = t
	m.mu.Unlock()

	go func() {
		defer func() {
			close(t.done)
			m.mu.Lock()
			delete(m.tasks, t.id)
			m.mu.Unlock()
		}()
		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			m.logger.Error("background task failed", zap.String("task", name), zap.Error(err))
		}
	}()
	return nil
}

// Names lists the names of the live tasks, for observability.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t.name)
	}
	return out
}

// Count reports how many tasks are live.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// CancelByName cancels every live task with the given name and reports how
// many it signalled. It does not wait for them to finish.
func (m *Manager) CancelByName(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tasks {
		if t.name == name {
			t.cancel()
			n++
		}
	}
	return n
}

// Shutdown refuses new tasks, cancels every live one, and waits up to
// timeout for them to observe cancellation. It returns an error when the
// deadline passes with tasks still running.
func (m *Manager) Shutdown(timeout time.Duration) error {
	m.mu.Lock()
	m.closed = true
	live := make([]*task, 0, len(m.tasks))
	for _, t := range m.tasks {
		live = append(live, t)
	}
	m.mu.Unlock()

	m.stop()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for _, t := range live {
		select {
		case <-t.done:
		case <-deadline.C:
			m.logger.Warn("shutdown deadline exceeded with tasks still running",
				zap.Int("remaining", m.Count()))
			return errors.New("shutdown timed out")
		}
	}
	return nil
}
