// Package ratelimit throttles inbound per-client websocket traffic,
// generalized from the teacher's bespoke rate limiter into a thin wrapper
// over golang.org/x/time/rate's token bucket, keyed by client id.
package ratelimit

import (
	"sync"

	"golang.org/x/time/rate"
)

// Limiter tracks one token bucket per connected client.
type Limiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[int64]*rate.Limiter
}

func New(ratePerSecond float64, burst int) *Limiter {
	return &Limiter{
		rps:      rate.Limit(ratePerSecond),
		burst:    burst,
		limiters: make(map[int64]*rate.Limiter),
	}
}

// Allow reports whether clientId may send another message right now,
// creating its bucket on first use.
func (l *Limiter) Allow(clientId int64) bool {
	l.mu.Lock()
	lim, ok := l.limiters[clientId]
	if !ok {
		lim = rate.NewLimiter(l.rps, l.burst)
		l.limiters[clientId] = lim
	}
	l.mu.Unlock()
	return lim.Allow()
}

// RemoveClient drops a disconnected client's bucket so memory doesn't
// grow unbounded across the connection's lifetime.
func (l *Limiter) RemoveClient(clientId int64) {
	l.mu.Lock()
	delete(l.limiters, clientId)
	l.mu.Unlock()
}
