package api

import (
	"sync"
	"time"
)

const (
	DefaultFailureThreshold = 3
	DefaultFailureWindow    = 30 * time.Second
)

// Breaker counts consecutive failures. A failure within window of the
// previous one extends the streak, otherwise the streak restarts at 1.
// Once the streak exceeds threshold the breaker is open and requests fail
// fast until window has passed since the last failure. Any success closes it.
type Breaker struct {
	mu          sync.Mutex
	threshold   int
	window      time.Duration
	failures    int
	lastFailure time.Time
	now         func() time.Time
}

func NewBreaker(threshold int, window time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if window <= 0 {
		window = DefaultFailureWindow
	}
	return &Breaker{threshold: threshold, window: window, now: time.Now}
}

// Allow reports whether a request may go out.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.openLocked()
}

// Success closes the breaker.
func (b *Breaker) Success() {
	b.mu.Lock()
	b.failures = 0
	b.mu.Unlock()
}

// Failure records a failed call and reports whether the breaker is now open.
func (b *Breaker) Failure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	now := b.now()
	if !b.lastFailure.IsZero() && now.Sub(b.lastFailure) < b.window {
		b.failures++
	} else {
		b.failures = 1
	}
	b.lastFailure = now
	return b.failures > b.threshold
}

func (b *Breaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.openLocked()
}

func (b *Breaker) openLocked() bool {
	return b.failures > b.threshold && b.now().Sub(b.lastFailure) < b.window
}
