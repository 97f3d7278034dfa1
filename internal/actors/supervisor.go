// Package actors implements sinkron's three-level actor hierarchy —
// Root directs Collections, each Collection directs its connected
// Clients — grounded on
// original_source/sinkron/src/actors/{sinkron,collection,client}.rs.
package actors

import "context"

// supervise runs run to completion (or until ctx is cancelled) on its own
// goroutine and calls onExit afterward, regardless of how run returned.
// Adapted from the original's Supervisor, which races a spawned task
// against a stop notification before invoking its on_exit callback; here
// that race is expressed as plain context cancellation, which is the
// idiomatic Go shape for the same lifecycle.
func supervise(ctx context.Context, run func(context.Context), onExit func()) {
	go func() {
		defer onExit()
		run(ctx)
	}()
}
