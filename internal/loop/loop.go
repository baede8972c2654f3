// Package loop runs every client handler on one goroutine, in the order
// the handlers were posted.
package loop

import (
	"context"
	"sync"
	"time"
)

// Timer is a pending call scheduled with After
type Timer interface {
	Stop() bool
}

// Scheduler accepts work for the event loop
type Scheduler interface {
	// Post queues fn and returns without running it. It returns false if
	// the loop has stopped.
	Post(fn func()) bool
	// After queues fn once d has elapsed.
	After(d time.Duration, fn func()) Timer
}

// Loop is a single-goroutine FIFO executor. Post never blocks, so handlers
// running on the loop may post follow-up work safely.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New creates an idle Loop; call Run to start processing
func New() *Loop {
	return &Loop{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
}

// Post queues fn behind everything posted before it
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// After runs fn on the loop once d has elapsed
func (l *Loop) After(d time.Duration, fn func()) Timer {
	return time.AfterFunc(d, func() {
		l.Post(fn)
	})
}

// Run executes posted calls until ctx is done. Calls still queued at that
// point are dropped.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()

	for {
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			fn()
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil, false
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn, true
}

// Pending returns the number of queued calls
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Done is closed once Run has returned
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) stop() {
	l.once.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.queue = nil
		l.mu.Unlock()
		close(l.done)
	})
}
