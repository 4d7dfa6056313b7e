package forward

import (
	"sync"
	"time"
)

// RenegGuard tracks renegotiation events for one connection in a
// fixed-size ring and reports abuse when a new event arrives while the
// ring already holds limit events that all fall within the configured
// window (spec section 4.6, step 4, and the invariant in
// section 8: "the number of accepted renegotiations within any
// reneg_window seconds is <= reneg_limit").
//
// crypto/tls's server side does not support TLS renegotiation at all —
// a client attempting one simply fails its handshake — so in practice
// this guard never sees a real event on this stack. It's kept because
// the spec names it as an explicit invariant and a forked/vendored TLS
// stack could wire real renegotiation notifications into it; see
// DESIGN.md.
type RenegGuard struct {
	mu     sync.Mutex
	window time.Duration
	limit  int
	ring   []time.Time
	next   int
	filled bool
}

// NewRenegGuard builds a guard that allows up to limit renegotiations
// within window and rejects the next one.
func NewRenegGuard(window time.Duration, limit int) *RenegGuard {
	if limit < 1 {
		limit = 1
	}
	return &RenegGuard{window: window, limit: limit, ring: make([]time.Time, limit)}
}

// Record registers a renegotiation event at now and reports whether the
// connection has exceeded the allowed rate and must be closed.
func (g *RenegGuard) Record(now time.Time) (abuse bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Once the ring is full, the slot we're about to overwrite holds the
	// oldest of the last limit events.
	abuse = g.filled && now.Sub(g.ring[g.next]) < g.window
	g.ring[g.next] = now
	g.next = (g.next + 1) % g.limit
	if g.next == 0 {
		g.filled = true
	}
	return abuse
}
