package session

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

// ErrLaneClosed is returned when work is submitted to a closed lane
var ErrLaneClosed = errors.New("dispatch lane closed")

// Lane is a single-goroutine FIFO executor. Everything that touches a
// session's panels runs on its lane, in submission order.
type Lane struct {
	mu     sync.Mutex
	queue  []func()
	closed bool
	wake   chan struct{}
	done   chan struct{}
}

// NewLane starts a new dispatch lane
func NewLane() *Lane {
	l := &Lane{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Lane) run() {
	defer close(l.done)
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			closed := l.closed
			l.mu.Unlock()
			if closed {
				return
			}
			<-l.wake
			continue
		}
		fn := l.queue[0]
		l.queue[0] = nil
		l.queue = l.queue[1:]
		l.mu.Unlock()

		l.exec(fn)
	}
}

func (l *Lane) exec(fn func()) {
	defer func() {
		if p := recover(); p != nil {
			log.Error().Str("component", "lane").Interface("panic", p).Msg("task panicked")
		}
	}()
	fn()
}

// Post enqueues fn without waiting; it never blocks, so tasks running on the
// lane may post follow-up work.
func (l *Lane) Post(fn func()) error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLaneClosed
	}
	l.queue = append(l.queue, fn)
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do runs fn on the lane and waits for it. Must not be called from the lane itself.
func (l *Lane) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if err := l.Post(func() {
		defer close(finished)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains queued tasks and stops the lane
func (l *Lane) Close() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		<-l.done
		return
	}
	l.closed = true
	l.mu.Unlock()

	select {
	case l.wake <- struct{}{}:
	default:
	}
	<-l.done
}
