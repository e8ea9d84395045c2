package jsonp

import (
	"log/slog"
	"sync"
)

// Loop runs posted tasks one at a time, in submission order, on a single
// goroutine. Tasks never run concurrently with each other, so state touched
// only from tasks needs no locking.
//
// Post is safe for concurrent use, including from within a running task.
type Loop struct {
	mu     sync.Mutex
	queue  []func()
	buf    []func()
	closed bool

	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	logger    *slog.Logger
}

// NewLoop starts a loop goroutine. Panics raised by tasks are recovered and
// logged to logger.
func NewLoop(logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loop{
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		logger: logger,
	}
	go l.run()
	return l
}

// Post enqueues task. It reports false if the loop is closed, in which case
// the task will never run.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	l.signal()
	return true
}

// Close stops accepting tasks, runs everything already queued and waits for
// the loop goroutine to exit. It must not be called from a task.
func (l *Loop) Close() {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		l.signal()
	})
	<-l.done
}

// Done is closed once the loop goroutine has exited.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) run() {
	defer close(l.done)

	for range l.wake {
		// Swap the queue with the spare buffer so producers never wait on a
		// running batch.
		l.mu.Lock()
		batch := l.queue
		l.queue = l.buf[:0]
		closed := l.closed
		l.mu.Unlock()

		for i, task := range batch {
			l.runTask(task)
			batch[i] = nil
		}

		l.mu.Lock()
		l.buf = batch[:0]
		pending := len(l.queue)
		l.mu.Unlock()

		if closed && pending == 0 {
			return
		}
		if pending > 0 {
			l.signal()
		}
	}
}

func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("jsonp: task panicked", "panic", r)
		}
	}()
	task()
}
