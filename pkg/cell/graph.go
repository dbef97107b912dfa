package cell

import "sync"

// ValueKey is the property key under which a Cell registers reads of its
// value. The graph itself is generic over (target, key) pairs so adapters
// can track custom sources with finer-grained keys, but cells only ever use
// this one.
const ValueKey = "value"

// Graph is an explicit dependency graph connecting targets to the effects
// that read them. Every Cell and Effect is bound to exactly one Graph at
// construction; separate graphs never observe each other, which keeps
// reactive scopes (one per test, one per session) fully isolated.
//
// The graph records edges keyed by (target ID, property key). Each edge list
// preserves registration order and is deduplicated by effect ID, so an
// effect re-reading the same cell stays subscribed exactly once and replay
// order is stable.
type Graph struct {
	mu sync.RWMutex

	// subs maps target ID -> property key -> subscribed effects in
	// registration order.
	subs map[uint64]map[string][]*Effect

	// active is the effect currently executing, if any. A single slot, not
	// a stack: it is cleared, not restored, when a run finishes.
	active *Effect

	// hooks is fixed at construction and read without locking.
	hooks Hooks
}

// GraphOption configures a Graph at construction.
type GraphOption func(*Graph)

// WithHooks installs instrumentation hooks on the graph.
func WithHooks(h Hooks) GraphOption {
	return func(g *Graph) {
		g.hooks = h
	}
}

// NewGraph creates an empty dependency graph.
func NewGraph(opts ...GraphOption) *Graph {
	g := &Graph{
		subs: make(map[uint64]map[string][]*Effect),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Track records a dependency edge from the currently executing effect to
// (target, key). No-op when no effect is running or the running effect has
// been stopped mid-body. Edges accumulate: nothing but Stop or Forget ever
// removes one, so an effect stays subscribed to every target it has read on
// any run.
func (g *Graph) Track(target uint64, key string) {
	g.mu.RLock()
	idle := g.active == nil
	g.mu.RUnlock()
	if idle {
		return
	}

	g.mu.Lock()
	e := g.active
	if e == nil || e.stopped.Load() {
		g.mu.Unlock()
		return
	}

	keys := g.subs[target]
	if keys == nil {
		keys = make(map[string][]*Effect)
		g.subs[target] = keys
	}

	// Deduplicate by effect ID
	list := keys[key]
	for _, existing := range list {
		if existing.id == e.id {
			g.mu.Unlock()
			return
		}
	}
	keys[key] = append(list, e)
	g.mu.Unlock()

	if h := g.hooks.OnTrack; h != nil {
		h(e.id, target, key)
	}
}

// Trigger re-runs every effect subscribed to (target, key). The subscriber
// list is snapshotted before iterating: effects subscribed mid-cascade wait
// for the next trigger, and effects stopped mid-iteration are still visited
// but their Run is a no-op. Runs execute on the caller's stack, one after
// another, each to completion.
func (g *Graph) Trigger(target uint64, key string) {
	g.mu.RLock()
	var snapshot []*Effect
	if keys := g.subs[target]; keys != nil {
		if list := keys[key]; len(list) > 0 {
			snapshot = make([]*Effect, len(list))
			copy(snapshot, list)
		}
	}
	g.mu.RUnlock()

	if h := g.hooks.OnTrigger; h != nil {
		h(target, key, len(snapshot))
	}

	for _, e := range snapshot {
		e.Run()
	}
}

// Cleanup removes the effect from every subscriber list in the graph. This
// is a full scan over all edges; it is what Effect.Stop calls and is what
// keeps a stopped effect out of every future trigger. Harmless when the
// effect holds no registrations.
func (g *Graph) Cleanup(e *Effect) {
	if e == nil {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for target, keys := range g.subs {
		for key, list := range keys {
			for i, existing := range list {
				if existing.id == e.id {
					// Remove preserving registration order
					keys[key] = append(list[:i], list[i+1:]...)
					break
				}
			}
			if len(keys[key]) == 0 {
				delete(keys, key)
			}
		}
		if len(keys) == 0 {
			delete(g.subs, target)
		}
	}
}

// Forget drops every edge for the given target. The graph never removes a
// destroyed target on its own, so disposing a source must be paired with a
// Forget; Cell.Dispose does this.
func (g *Graph) Forget(target uint64) {
	g.mu.Lock()
	delete(g.subs, target)
	g.mu.Unlock()
}

// Subscribers reports how many effects are currently subscribed to
// (target, key). Mainly useful in tests and diagnostics.
func (g *Graph) Subscribers(target uint64, key string) int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if keys := g.subs[target]; keys != nil {
		return len(keys[key])
	}
	return 0
}

// setActive installs e as the currently executing effect.
func (g *Graph) setActive(e *Effect) {
	g.mu.Lock()
	g.active = e
	g.mu.Unlock()
}

// clearActive empties the active slot. Deliberately not a restore: after a
// nested run finishes, the outer effect is no longer attributed reads.
func (g *Graph) clearActive() {
	g.mu.Lock()
	g.active = nil
	g.mu.Unlock()
}
