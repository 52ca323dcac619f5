// Package scheduler serializes mutating history operations. Each submission
// runs in its own goroutine once its predecessor has finished, so mutations
// are totally ordered while the submitting goroutine never blocks.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	apperrors "sbvc/internal/errors"
	"sbvc/internal/history"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Operation is one unit of work run against the engine.
type Operation func(e *history.Engine) (any, error)

// Result is the terminal outcome of an operation. Exactly one is delivered
// per submission.
type Result struct {
	Value any
	Err   error
}

// Snapshot returns Value as a history snapshot when the operation produced one.
func (r Result) Snapshot() (history.Snapshot, bool) {
	snap, ok := r.Value.(history.Snapshot)
	return snap, ok
}

// Handle tracks one submitted operation.
type Handle struct {
	id     string
	name   string
	done   chan struct{}
	result Result
}

func newHandle(name string) *Handle {
	return &Handle{
		id:   uuid.New().String(),
		name: name,
		done: make(chan struct{}),
	}
}

func (h *Handle) ID() string   { return h.id }
func (h *Handle) Name() string { return h.name }

// Done is closed once the result is available.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Poll returns the result without blocking. ok is false while the operation
// is still queued or running.
func (h *Handle) Poll() (res Result, ok bool) {
	select {
	case <-h.done:
		return h.result, true
	default:
		return Result{}, false
	}
}

// Wait blocks until the operation completes or ctx ends. Never call it from
// an interactive loop; use Poll or a Poller there.
func (h *Handle) Wait(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, nil
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

func (h *Handle) complete(res Result) {
	h.result = res
	close(h.done)
}

// Scheduler admits one mutating operation at a time against an engine.
type Scheduler struct {
	engine *history.Engine
	logger *zap.Logger

	mu     sync.Mutex
	last   *Handle
	closed bool
}

func New(engine *history.Engine, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		engine: engine,
		logger: logger,
	}
}

// Engine exposes the engine for read-only queries, which the engine itself
// keeps mutually exclusive with the one running mutation.
func (s *Scheduler) Engine() *history.Engine {
	return s.engine
}

// Submit queues op behind every earlier submission and returns immediately.
func (s *Scheduler) Submit(name string, op Operation) *Handle {
	h := newHandle(name)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		h.complete(Result{Err: apperrors.ErrClosed})
		return h
	}
	prev := s.last
	s.last = h
	s.mu.Unlock()

	go s.run(prev, h, op)
	return h
}

func (s *Scheduler) run(prev, h *Handle, op Operation) {
	if prev != nil {
		<-prev.done
	}

	logger := s.logger.With(zap.String("op", h.name), zap.String("op_id", h.id))
	start := time.Now()

	res := s.execute(op)

	if res.Err != nil {
		logger.Warn("operation failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(res.Err))
	} else {
		logger.Debug("operation completed", zap.Duration("duration", time.Since(start)))
	}
	h.complete(res)
}

func (s *Scheduler) execute(op Operation) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic recovered", zap.Any("error", r))
			res = Result{Err: fmt.Errorf("operation panicked: %v", r)}
		}
	}()

	value, err := op(s.engine)
	return Result{Value: value, Err: err}
}

// Close stops admitting operations, waits for the last submitted one and
// closes the engine. If ctx ends first the engine is left open and ctx's
// error is returned; the queued operations still run to completion.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	last := s.last
	s.mu.Unlock()

	if last != nil {
		if _, err := last.Wait(ctx); err != nil {
			return fmt.Errorf("waiting for in-flight operation %s: %w", last.name, err)
		}
	}
	return s.engine.Close()
}
