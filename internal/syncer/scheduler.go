// Package syncer debounces cart mutations before they reach the server
// repository. Each logical key (one speculative operation) holds at most one
// armed timer; rescheduling replaces the captured arguments and restarts the
// delay, so a burst of quantity taps produces a single request carrying the
// final value.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"
)

// DefaultDelay is the debounce window applied when none is configured.
const DefaultDelay = 300 * time.Millisecond

// ErrSchedulerClosed is returned when scheduling against a closed scheduler.
var ErrSchedulerClosed = errors.New("syncer: scheduler closed")

// Timer abstracts the armed countdown so tests can fire deterministically.
type Timer interface {
	Stop() bool
}

// TimerFactory creates a timer that invokes fn once after d elapses.
type TimerFactory func(d time.Duration, fn func()) Timer

type realTimer struct{ t *time.Timer }

func (r realTimer) Stop() bool { return r.t.Stop() }

func afterFunc(d time.Duration, fn func()) Timer {
	return realTimer{t: time.AfterFunc(d, fn)}
}

// RunFunc performs the deferred sync for one key with the latest arguments.
// A nil error confirms the operation; a non-nil error is handed to the error
// callback and never retried here.
type RunFunc[A any] func(ctx context.Context, key string, args A) error

// SchedulerDeps carries the collaborators for a Scheduler.
type SchedulerDeps[A any] struct {
	Delay    time.Duration
	NewTimer TimerFactory
	Run      RunFunc[A]
	// OnError observes failed runs fired from the debounce timer. Flush
	// reports its error to the caller instead.
	OnError func(ctx context.Context, key string, args A, err error)
}

type entry[A any] struct {
	ctx   context.Context
	args  A
	timer Timer
	gen   uint64
}

// Scheduler coalesces per-key operations behind a debounce window. Later
// schedules for the same key replace earlier ones; distinct keys never
// interfere with each other.
type Scheduler[A any] struct {
	mu       sync.Mutex
	delay    time.Duration
	newTimer TimerFactory
	run      RunFunc[A]
	onError  func(context.Context, string, A, error)
	entries  map[string]*entry[A]
	inflight sync.WaitGroup
	closed   bool
}

// NewScheduler constructs a scheduler. Run is required; delay defaults to
// DefaultDelay and the timer factory to time.AfterFunc.
func NewScheduler[A any](deps SchedulerDeps[A]) (*Scheduler[A], error) {
	if deps.Run == nil {
		return nil, errors.New("syncer: run callback is required")
	}
	delay := deps.Delay
	if delay <= 0 {
		delay = DefaultDelay
	}
	factory := deps.NewTimer
	if factory == nil {
		factory = afterFunc
	}
	onError := deps.OnError
	if onError == nil {
		onError = func(context.Context, string, A, error) {}
	}
	return &Scheduler[A]{
		delay:    delay,
		newTimer: factory,
		run:      deps.Run,
		onError:  onError,
		entries:  map[string]*entry[A]{},
	}, nil
}

// Schedule arms (or re-arms) the debounce timer for key with the given
// arguments. The latest call wins: previous arguments for the same key are
// discarded and the window restarts.
func (s *Scheduler[A]) Schedule(ctx context.Context, key string, args A) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSchedulerClosed
	}

	var gen uint64
	if prev, ok := s.entries[key]; ok {
		prev.timer.Stop()
		gen = prev.gen + 1
	}
	// The timer fires after the caller has returned, so the stored context
	// must not inherit the caller's cancellation. Values (trace ids, logger)
	// carry over.
	e := &entry[A]{ctx: context.WithoutCancel(ctx), args: args, gen: gen}
	e.timer = s.newTimer(s.delay, func() { s.fire(key, gen) })
	s.entries[key] = e
	return nil
}

// fire executes the deferred run when the timer elapses. A stale generation
// means the key was rescheduled, flushed or cancelled after this timer was
// armed; such fires are dropped.
func (s *Scheduler[A]) fire(key string, gen uint64) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok || e.gen != gen {
		s.mu.Unlock()
		return
	}
	delete(s.entries, key)
	s.inflight.Add(1)
	s.mu.Unlock()

	defer s.inflight.Done()
	if err := s.run(e.ctx, key, e.args); err != nil {
		s.onError(e.ctx, key, e.args, err)
	}
}

// Flush executes the pending operation for key immediately, bypassing the
// remaining debounce delay. Returns the run error directly; a key with
// nothing pending is a no-op.
func (s *Scheduler[A]) Flush(ctx context.Context, key string) error {
	s.mu.Lock()
	e, ok := s.entries[key]
	if ok {
		e.timer.Stop()
		delete(s.entries, key)
		s.inflight.Add(1)
	}
	s.mu.Unlock()
	if !ok {
		return nil
	}

	defer s.inflight.Done()
	return s.run(ctx, key, e.args)
}

// FlushAll drains every pending key immediately and returns the first error
// encountered, continuing through the rest.
func (s *Scheduler[A]) FlushAll(ctx context.Context) error {
	s.mu.Lock()
	drained := make(map[string]*entry[A], len(s.entries))
	for key, e := range s.entries {
		e.timer.Stop()
		drained[key] = e
	}
	s.entries = map[string]*entry[A]{}
	if len(drained) > 0 {
		s.inflight.Add(1)
	}
	s.mu.Unlock()
	if len(drained) == 0 {
		return nil
	}

	defer s.inflight.Done()
	var firstErr error
	for key, e := range drained {
		if err := s.run(ctx, key, e.args); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Cancel discards the pending operation for key without running it.
func (s *Scheduler[A]) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[key]; ok {
		e.timer.Stop()
		delete(s.entries, key)
	}
}

// Pending reports whether key has an armed, not-yet-fired operation.
func (s *Scheduler[A]) Pending(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[key]
	return ok
}

// Len returns the number of armed keys.
func (s *Scheduler[A]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Close stops all armed timers without running them and waits for in-flight
// runs to finish. Further schedules fail with ErrSchedulerClosed.
func (s *Scheduler[A]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for key, e := range s.entries {
		e.timer.Stop()
		delete(s.entries, key)
	}
	s.mu.Unlock()
	s.inflight.Wait()
}
