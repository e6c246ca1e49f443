package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/congo-pay/npp_sim/internal/logging"
)

// ErrSchedulerClosed is recorded when work is submitted after Shutdown.
var ErrSchedulerClosed = errors.New("scheduler is shut down")

// Task is a unit of background work.
type Task func(ctx context.Context) error

// Scheduler runs tasks decoupled from the caller.
type Scheduler interface {
	Schedule(name string, task Task)
}

// GoScheduler runs every task on its own goroutine under a shared root context.
type GoScheduler struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewGoScheduler constructs a running scheduler.
func NewGoScheduler(logger *slog.Logger) *GoScheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &GoScheduler{ctx: ctx, cancel: cancel, logger: logging.Component(logger, "scheduler")}
}

// Schedule starts task in the background. Errors and panics are logged with the task name.
func (s *GoScheduler) Schedule(name string, task Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.logger.Warn("task dropped", slog.String("task", name), slog.Any("error", ErrSchedulerClosed))
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("task panicked", slog.String("task", name), slog.Any("panic", r))
			}
		}()
		if err := task(s.ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("task failed", slog.String("task", name), slog.Any("error", err))
		}
	}()
}

// Shutdown cancels in-flight tasks and waits for them to return or for ctx to expire.
func (s *GoScheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for background tasks: %w", ctx.Err())
	}
}

// InlineScheduler runs tasks synchronously on the caller's goroutine and records their
// errors. Intended for tests.
type InlineScheduler struct {
	mu   sync.Mutex
	errs []error
}

// Schedule runs task immediately.
func (s *InlineScheduler) Schedule(name string, task Task) {
	if err := task(context.Background()); err != nil {
		s.mu.Lock()
		s.errs = append(s.errs, fmt.Errorf("%s: %w", name, err))
		s.mu.Unlock()
	}
}

// Errors returns the errors recorded so far.
func (s *InlineScheduler) Errors() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]error(nil), s.errs...)
}
