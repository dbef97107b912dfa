package cell

import (
	"sync/atomic"
	"time"
)

// Effect is a re-runnable side effect with automatic dependency tracking.
// While its body executes, every cell read through Get subscribes the
// effect, so the next changed write to any of those cells runs the body
// again. Tracking is additive: edges from earlier runs are kept, not
// cleared, so an effect stays subscribed to everything it has ever read
// until it is stopped.
//
// Creation does not run the effect; call Run to execute the body and
// establish the initial dependencies.
type Effect struct {
	id    uint64
	graph *Graph

	// fn is the effect body.
	fn func()

	// stopped latches once Stop is called.
	stopped atomic.Bool
}

// NewEffect creates an effect on the given graph without running it.
// Panics if g is nil.
func NewEffect(g *Graph, fn func()) *Effect {
	if g == nil {
		panic("cell: NewEffect requires a non-nil Graph")
	}
	return &Effect{
		id:    nextID(),
		graph: g,
		fn:    fn,
	}
}

// Run executes the effect body with dependency tracking. The graph's active
// slot holds this effect for the duration of the body and is cleared, even
// if the body panics, before the panic propagates to the caller. A panicked
// effect is not stopped; it stays subscribed and runs again on the next
// trigger.
//
// Run on a stopped effect is a no-op, which is what lets a trigger snapshot
// safely visit effects stopped mid-cascade.
//
// A write inside the body that re-triggers this effect, directly or through
// other effects, re-enters Run on the same stack. Nothing interrupts such a
// cascade except the equality gate on each cell, so a write cycle that
// never converges will not return.
func (e *Effect) Run() {
	if e.stopped.Load() {
		return
	}

	g := e.graph
	hook := g.hooks.OnEffectRun
	var start time.Time
	if hook != nil {
		start = time.Now()
	}

	g.setActive(e)
	completed := false
	defer func() {
		g.clearActive()
		if completed && hook != nil {
			hook(e.id, time.Since(start))
		}
	}()

	e.fn()
	completed = true
}

// Stop permanently retires the effect: it is removed from every subscriber
// list in the graph and every later Run is a no-op. Stopping an effect from
// inside its own body works; the rest of the body still executes, but reads
// made after the Stop no longer subscribe it anywhere. Stop is idempotent.
func (e *Effect) Stop() {
	if e.stopped.Swap(true) {
		return
	}

	e.graph.Cleanup(e)

	if h := e.graph.hooks.OnEffectStop; h != nil {
		h(e.id)
	}
}

// Stopped reports whether Stop has been called.
func (e *Effect) Stopped() bool {
	return e.stopped.Load()
}

// ID returns the unique identifier for this effect.
func (e *Effect) ID() uint64 {
	return e.id
}
