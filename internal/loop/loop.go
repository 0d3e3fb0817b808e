package loop

import (
	"container/heap"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrStopped is returned by Call once the loop has been stopped.
var ErrStopped = errors.New("loop stopped")

// Loop is a single-writer task queue with idle tasks and timers.
//
// Post, Idle, After and Stop are safe to call from any goroutine. Task
// bodies always run on the goroutine driving the loop (Run, Drain or
// Advance), one at a time.
type Loop struct {
	clock  Clock
	logger *slog.Logger

	mu     sync.Mutex
	tasks  []func()
	idle   []func()
	timers timerHeap
	seq    uint64
	closed bool
	signal chan struct{} // buffered, size 1
}

// Option configures a Loop.
type Option func(*Loop)

// WithClock sets the timer clock. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(l *Loop) {
		l.clock = c
	}
}

// WithLogger sets the loop logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		l.logger = logger
	}
}

// New creates an empty loop.
func New(opts ...Option) *Loop {
	l := &Loop{
		clock:  SystemClock(),
		logger: slog.Default(),
		tasks:  make([]func(), 0, 64),
		signal: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Clock returns the loop's time source.
func (l *Loop) Clock() Clock {
	return l.clock
}

// Now is shorthand for l.Clock().Now().
func (l *Loop) Now() time.Time {
	return l.clock.Now()
}

// Post queues fn to run after every task already queued.
// Returns false if the loop has been stopped.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.tasks = append(l.tasks, fn)
	l.notify()
	return true
}

// Idle queues fn to run once no regular task is pending.
func (l *Loop) Idle(fn func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.idle = append(l.idle, fn)
	l.notify()
	return true
}

// After schedules fn to run once d has elapsed on the loop clock.
// Timers with equal deadlines fire in scheduling order.
func (l *Loop) After(d time.Duration, fn func()) *Timer {
	if d < 0 {
		d = 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	t := &Timer{loop: l, deadline: l.clock.Now().Add(d), seq: l.seq, fn: fn, index: -1}
	if l.closed {
		return t
	}
	heap.Push(&l.timers, t)
	l.notify()
	return t
}

// Stop closes the loop. Queued work is discarded and Run returns.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return
	}
	l.closed = true
	l.tasks = nil
	l.idle = nil
	for _, t := range l.timers {
		t.index = -1
	}
	l.timers = nil
	close(l.signal)
}

// Stopped reports whether Stop has been called.
func (l *Loop) Stopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

// Pending returns the number of queued tasks, idle tasks and timers.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.tasks) + len(l.idle) + len(l.timers)
}

// NextDeadline returns the earliest timer deadline, if any.
func (l *Loop) NextDeadline() (time.Time, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.timers) == 0 {
		return time.Time{}, false
	}
	return l.timers[0].deadline, true
}

func (l *Loop) notify() {
	select {
	case l.signal <- struct{}{}:
	default:
	}
}

// next pops the next runnable piece of work: regular tasks first, then due
// timers, then idle tasks.
func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.tasks) > 0 {
		fn := l.tasks[0]
		l.tasks[0] = nil
		if len(l.tasks) == 1 {
			l.tasks = l.tasks[:0]
		} else {
			l.tasks = l.tasks[1:]
		}
		return fn, true
	}

	if len(l.timers) > 0 && !l.timers[0].deadline.After(l.clock.Now()) {
		t := heap.Pop(&l.timers).(*Timer)
		return t.fn, true
	}

	if len(l.idle) > 0 {
		fn := l.idle[0]
		l.idle[0] = nil
		l.idle = l.idle[1:]
		return fn, true
	}

	return nil, false
}

func (l *Loop) runTask(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("loop task panicked", "panic", r)
		}
	}()
	fn()
}

// Drain runs work until nothing is runnable at the current clock time.
// It returns the number of tasks executed.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn, ok := l.next()
		if !ok {
			return n
		}
		l.runTask(fn)
		n++
	}
}

// Advance moves a ManualClock forward by d, firing timers in deadline order
// and draining after each one. It panics if the loop clock is not a
// *ManualClock.
func (l *Loop) Advance(d time.Duration) int {
	mc, ok := l.clock.(*ManualClock)
	if !ok {
		panic("loop: Advance requires a ManualClock")
	}
	target := mc.Now().Add(d)
	n := l.Drain()
	for {
		deadline, ok := l.NextDeadline()
		if !ok || deadline.After(target) {
			break
		}
		mc.Set(deadline)
		n += l.Drain()
	}
	mc.Set(target)
	return n + l.Drain()
}

// Run executes work until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) error {
	l.logger.Debug("loop starting")

	for {
		if fn, ok := l.next(); ok {
			l.runTask(fn)
			continue
		}

		var (
			wait   *time.Timer
			timerC <-chan time.Time
		)
		if deadline, ok := l.NextDeadline(); ok {
			wait = time.NewTimer(deadline.Sub(l.clock.Now()))
			timerC = wait.C
		}

		select {
		case <-ctx.Done():
			stopTimer(wait)
			l.logger.Debug("loop stopping: context cancelled")
			l.Stop()
			return ctx.Err()

		case _, open := <-l.signal:
			stopTimer(wait)
			if !open {
				l.logger.Debug("loop stopping: stopped")
				return nil
			}

		case <-timerC:
		}
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// Call runs fn on the loop and waits for it to finish. It must not be
// called from the loop goroutine.
func (l *Loop) Call(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	if !l.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
