// Package loop provides a run-to-completion event loop. Work posted from any
// goroutine executes one item at a time on the loop goroutine, so state
// owned by the loop needs no locking.
package loop

import (
	"fmt"
	"log/slog"
	"sync"
)

// DefaultBuffer is the default number of queued items above which PostWait
// blocks.
const DefaultBuffer = 256

// Loop serializes work onto a single goroutine.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	limit   int
	wake    chan struct{}
	room    *sync.Cond
	closed  bool
	done    chan struct{}
	stopped chan struct{}
	logger  *slog.Logger

	startOnce sync.Once
	closeOnce sync.Once
}

// New creates a loop. Run must be called (usually in its own goroutine)
// before posted work executes. buffer is the PostWait high-water mark.
func New(buffer int, logger *slog.Logger) *Loop {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		limit:   buffer,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		logger:  logger,
	}
	l.room = sync.NewCond(&l.mu)
	return l
}

// Run executes posted work until Close is called. A panic in one item is
// logged and does not stop the loop.
func (l *Loop) Run() {
	started := false
	l.startOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer close(l.stopped)

	for {
		select {
		case <-l.done:
			return
		case <-l.wake:
		}
		for {
			fn, ok := l.next()
			if !ok {
				break
			}
			l.exec(fn)
			select {
			case <-l.done:
				return
			default:
			}
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
	if len(l.queue) == 0 {
		l.queue = nil
	}
	l.room.Broadcast()
	return fn, true
}

// Start runs the loop in a new goroutine.
func (l *Loop) Start() {
	go l.Run()
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("event loop task panicked", "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// Post enqueues fn without blocking. It returns false if the loop has been
// closed. Post may be called from the loop goroutine itself.
func (l *Loop) Post(fn func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
	return true
}

// PostWait enqueues fn, first waiting while the queue holds buffer or more
// items. It is meant for producers such as a transport read pump that
// should slow down when the loop falls behind. It must not be called from
// the loop goroutine.
func (l *Loop) PostWait(fn func()) bool {
	l.mu.Lock()
	for !l.closed && len(l.queue) >= l.limit {
		l.room.Wait()
	}
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
	return true
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Len returns the number of queued items.
func (l *Loop) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue)
}

// Do posts fn and waits for it to finish. It must not be called from the
// loop goroutine.
func (l *Loop) Do(fn func()) bool {
	finished := make(chan struct{})
	if !l.Post(func() {
		defer close(finished)
		fn()
	}) {
		return false
	}
	select {
	case <-finished:
		return true
	case <-l.stopped:
		return false
	}
}

// Close stops the loop and waits for the running item, if any, to return.
// Work still queued is discarded. Like Do, it must not be called from the
// loop goroutine.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.queue = nil
		l.room.Broadcast()
		l.mu.Unlock()
		close(l.done)
	})
	neverStarted := false
	l.startOnce.Do(func() {
		neverStarted = true
		close(l.stopped)
	})
	if neverStarted {
		return
	}
	<-l.stopped
}

// Done is closed once Close has been called.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
