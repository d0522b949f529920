package messaging

import (
	"context"
	"fmt"
	"sync"

	"github.com/entrhq/snapcrop/pkg/logging"
)

// Loop is a single-threaded cooperative event loop. Tasks posted to it run
// one at a time, in posting order, on the goroutine that calls Run.
type Loop struct {
	name   string
	logger *logging.Logger

	mu      sync.Mutex
	queue   []func()
	stopped bool
	wake    chan struct{}
	done    chan struct{}
}

// NewLoop creates a loop. Run must be called for tasks to execute.
func NewLoop(name string, logger *logging.Logger) *Loop {
	if logger == nil {
		logger = logging.Discard(name)
	}
	return &Loop{
		name:   name,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Post queues a task. It never blocks and returns false once the loop
// has stopped.
func (l *Loop) Post(task func()) bool {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return false
	}
	l.queue = append(l.queue, task)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return true
}

// Run drains the queue until ctx is canceled or Stop is called. Tasks
// still queued at that point are dropped.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	defer l.Stop()

	for {
		for {
			task, ok := l.next()
			if !ok {
				break
			}
			l.runTask(task)
		}

		select {
		case <-ctx.Done():
			return
		case <-l.wake:
			if l.isStopped() {
				return
			}
		}
	}
}

// Start runs the loop on a new goroutine.
func (l *Loop) Start(ctx context.Context) {
	go l.Run(ctx)
}

// Stop prevents further posts and ends Run after the current task.
func (l *Loop) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.queue = nil
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Done is closed when Run returns.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}

// Name returns the loop name.
func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) next() (func(), bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopped || len(l.queue) == 0 {
		return nil, false
	}
	task := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return task, true
}

func (l *Loop) isStopped() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stopped
}

// runTask recovers a panicking task and logs it.
func (l *Loop) runTask(task func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Errorf("task panicked on loop %s: %v", l.name, fmt.Sprint(r))
		}
	}()
	task()
}
