package join

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// ErrLoopClosed is returned by Do when the loop has stopped.
var ErrLoopClosed = errors.New("join: event loop closed")

// Scheduler runs callbacks on a single event-processing goroutine.
// Engine code never blocks; every suspension point re-enters through a
// Scheduler.
type Scheduler interface {
	// Defer queues fn to run on a later turn of the loop.
	Defer(fn func())
	// AfterFunc queues fn to run on the loop once d has elapsed.
	AfterFunc(d time.Duration, fn func())
}

// Loop is a Scheduler backed by one goroutine draining an unbounded queue.
// Defer and AfterFunc are safe to call from any goroutine.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	wake   chan struct{}
	closed chan struct{}
	exited chan struct{}
	once   sync.Once
	run    sync.Once
}

// NewLoop returns a loop that is idle until Run is called.
func NewLoop() *Loop {
	return &Loop{
		wake:   make(chan struct{}, 1),
		closed: make(chan struct{}),
		exited: make(chan struct{}),
	}
}

// Defer implements Scheduler.Defer. Tasks posted after Close are dropped.
func (l *Loop) Defer(fn func()) {
	select {
	case <-l.closed:
		return
	default:
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// AfterFunc implements Scheduler.AfterFunc.
func (l *Loop) AfterFunc(d time.Duration, fn func()) {
	time.AfterFunc(d, func() { l.Defer(fn) })
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	l.Defer(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
		return nil
	case <-l.closed:
		return ErrLoopClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run drains the queue until ctx is cancelled or Close is called.
func (l *Loop) Run(ctx context.Context) error {
	defer l.run.Do(func() { close(l.exited) })
	for {
		for {
			l.mu.Lock()
			if len(l.queue) == 0 {
				l.mu.Unlock()
				break
			}
			fn := l.queue[0]
			l.queue[0] = nil
			l.queue = l.queue[1:]
			l.mu.Unlock()
			fn()
		}
		select {
		case <-l.wake:
		case <-l.closed:
			return nil
		case <-ctx.Done():
			l.Close()
			return ctx.Err()
		}
	}
}

// Done is closed once Run has returned. After that no task runs on the
// loop and its owner may touch loop-confined state directly.
func (l *Loop) Done() <-chan struct{} {
	return l.exited
}

// Close stops the loop. Pending tasks are discarded.
func (l *Loop) Close() {
	l.once.Do(func() {
		close(l.closed)
		l.mu.Lock()
		l.queue = nil
		l.mu.Unlock()
	})
}
