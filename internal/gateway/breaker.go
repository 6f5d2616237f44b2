package gateway

import (
	"sync"
	"time"
)

// breaker is a consecutive-failure circuit breaker. It opens after
// failuresToOpen non-quota failures land within the failure window, and
// stays open for openFor.
type breaker struct {
	mu             sync.Mutex
	failuresToOpen int
	window         time.Duration
	openFor        time.Duration

	consecutive int
	firstFailAt time.Time
	openUntil   time.Time
}

func newBreaker(failuresToOpen int, window, openFor time.Duration) *breaker {
	return &breaker{
		failuresToOpen: failuresToOpen,
		window:         window,
		openFor:        openFor,
	}
}

// open reports whether the breaker currently rejects calls.
func (b *breaker) open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return time.Now().Before(b.openUntil)
}

// recordFailure counts one breaker-relevant failure. Quota failures (429)
// must not be recorded; the caller filters them.
func (b *breaker) recordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if b.consecutive == 0 || now.Sub(b.firstFailAt) > b.window {
		b.consecutive = 0
		b.firstFailAt = now
	}
	b.consecutive++

	if b.consecutive >= b.failuresToOpen {
		b.openUntil = now.Add(b.openFor)
		b.consecutive = 0
	}
}

// recordSuccess resets the consecutive-failure count.
func (b *breaker) recordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.consecutive = 0
}

// trip forces the breaker open immediately. Used by tests.
func (b *breaker) trip() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.openUntil = time.Now().Add(b.openFor)
}
