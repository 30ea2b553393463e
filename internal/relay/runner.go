package relay

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/google/uuid"
	"github.com/park285/chess-relay-bot/internal/domain"
	"github.com/park285/chess-relay-bot/internal/obslog"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

var ErrRunnerClosed = errors.New("runner closed")

// EventHandler processes one event. *Dispatcher implements it.
type EventHandler interface {
	Dispatch(ctx context.Context, ev domain.Event)
}

// Runner runs every event in its own goroutine, at most maxInflight at a time,
// so transport read loops never block on the backend.
type Runner struct {
	handler EventHandler
	sem     *semaphore.Weighted
	wg      sync.WaitGroup
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool

	baseCtx context.Context
	cancel  context.CancelFunc
}

func NewRunner(handler EventHandler, maxInflight int, logger *zap.Logger) *Runner {
	if maxInflight <= 0 {
		maxInflight = 1
	}
	if logger == nil {
		logger = obslog.L()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		handler: handler,
		sem:     semaphore.NewWeighted(int64(maxInflight)),
		logger:  logger,
		baseCtx: ctx,
		cancel:  cancel,
	}
}

// Submit schedules ev. It blocks while maxInflight events are running and
// returns an error once the runner is shut down.
func (r *Runner) Submit(ev domain.Event) error {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	r.mu.Lock()
	closed := r.closed
	r.mu.Unlock()
	if closed {
		return ErrRunnerClosed
	}
	if err := r.sem.Acquire(r.baseCtx, 1); err != nil {
		return fmt.Errorf("runner stopped: %w", err)
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.sem.Release(1)
		return ErrRunnerClosed
	}
	r.wg.Add(1)
	r.mu.Unlock()
	go func() {
		defer r.wg.Done()
		defer r.sem.Release(1)
		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("event_panic",
					append(obslog.EventFields(ev), zap.Any("panic", p), zap.ByteString("stack", debug.Stack()))...)
			}
		}()
		r.handler.Dispatch(r.baseCtx, ev)
	}()
	return nil
}

// Shutdown stops accepting events and waits for running ones until ctx expires,
// then cancels whatever is still in flight.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		r.cancel()
		return nil
	case <-ctx.Done():
		r.cancel()
		<-done
		return ctx.Err()
	}
}
