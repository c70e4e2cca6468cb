// Package retry runs bounded "wait for something to appear" loops.
//
// A Policy is a fixed number of attempts at a fixed interval. Exhaustion is
// an ordinary outcome, reported as ErrExhausted; callers log it and move on.
package retry

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrExhausted is returned when every attempt came back empty.
var ErrExhausted = errors.New("retry: attempts exhausted")

// Policy bounds a retry loop.
type Policy struct {
	Attempts int
	Interval time.Duration
}

// Default matches the page-element search budget: 20 tries, 200ms apart.
var Default = Policy{Attempts: 20, Interval: 200 * time.Millisecond}

func (p Policy) normalized() Policy {
	if p.Attempts <= 0 {
		p.Attempts = Default.Attempts
	}
	if p.Interval <= 0 {
		p.Interval = Default.Interval
	}
	return p
}

// Poll calls fn until it reports ok, the attempts run out or ctx ends.
// The first attempt runs immediately.
func Poll[T any](ctx context.Context, p Policy, fn func() (T, bool)) (T, error) {
	p = p.normalized()
	var zero T
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		if v, ok := fn(); ok {
			return v, nil
		}
		if attempt >= p.Attempts {
			return zero, ErrExhausted
		}
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Handle is a running background retry loop.
type Handle struct {
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
	err    error
}

// Start runs fn in the background until it returns true. When attempts run
// out, onExhausted (if set) is called from the loop goroutine.
func Start(ctx context.Context, p Policy, fn func() bool, onExhausted func()) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(h.done)
		defer cancel()
		_, err := Poll(ctx, p, func() (struct{}, bool) { return struct{}{}, fn() })
		h.mu.Lock()
		h.err = err
		h.mu.Unlock()
		if errors.Is(err, ErrExhausted) && onExhausted != nil {
			onExhausted()
		}
	}()
	return h
}

// Cancel stops the loop. It is safe to call more than once.
func (h *Handle) Cancel() {
	h.cancel()
}

// Done is closed when the loop has returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err reports how the loop ended: nil on success, ErrExhausted, or the
// context error after Cancel. It is only meaningful after Done is closed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}
