package cell

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
)

// AnyCell is the type-erased view of a Cell. It is what keyed registries,
// multi-source watches, and persistence adapters work against when the
// element type is not statically known. Only cells created by this package
// implement it.
type AnyCell interface {
	// ID returns the cell's unique identifier.
	ID() uint64

	// GetAny returns the current value, subscribing the running effect.
	GetAny() any

	// PeekAny returns the current value without subscribing.
	PeekAny() any

	// SetAny sets the value from a dynamically typed one.
	// Returns an error if the type doesn't match the cell's element type.
	SetAny(value any) error

	// EncodeValue serializes the current value as JSON.
	EncodeValue() ([]byte, error)

	// DecodeValue replaces the value from JSON produced by EncodeValue.
	DecodeValue(data []byte) error

	// AddListener registers a change callback, invoked synchronously after
	// every accepted write.
	AddListener(fn func()) ListenerID

	// RemoveListener detaches a callback registered with AddListener.
	RemoveListener(id ListenerID)

	// Dispose permanently silences the cell.
	Dispose()

	// Disposed reports whether Dispose has been called.
	Disposed() bool

	ownerGraph() *Graph
}

// Cell is a reactive value container bound to a Graph. Reading a cell while
// an effect is executing subscribes that effect; a later write that changes
// the value (per the cell's equality function) synchronously notifies
// listeners and re-runs subscribed effects on the writer's stack.
type Cell[T any] struct {
	id    uint64
	graph *Graph

	// value is the current cell value.
	value T

	// mu protects the value.
	mu sync.RWMutex

	// equal is the equality function used to determine if the value changed.
	// If nil, uses default equality checking.
	equal func(T, T) bool

	// listeners are plain callbacks notified after each accepted write.
	listeners listenerList

	// disposed latches once Dispose is called.
	disposed atomic.Bool
}

// New creates a cell on the given graph with the given initial value.
// Panics if g is nil; a cell cannot exist outside a graph.
func New[T any](g *Graph, initial T) *Cell[T] {
	if g == nil {
		panic("cell: New requires a non-nil Graph")
	}
	return &Cell[T]{
		id:    nextID(),
		graph: g,
		value: initial,
	}
}

// Get returns the current value and subscribes the currently executing
// effect, if any. Reads on a disposed cell still return the last stored
// value but no longer record dependencies: a disposed cell can never fire
// again, so a fresh edge could never be serviced.
func (c *Cell[T]) Get() T {
	// Read value with lock, track after releasing it to prevent deadlock
	c.mu.RLock()
	value := c.value
	c.mu.RUnlock()

	if !c.disposed.Load() {
		c.graph.Track(c.id, ValueKey)
	}
	return value
}

// Peek returns the current value without subscribing.
// Useful when a value is needed inside an effect without creating a
// dependency on it.
func (c *Cell[T]) Peek() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set updates the cell's value. If the new value equals the current one
// under the cell's equality function, nothing happens: no listener fires, no
// effect re-runs. Otherwise the value is stored and, still on the caller's
// stack, listeners are invoked in registration order followed by every
// subscribed effect. After Dispose, Set is a complete no-op.
func (c *Cell[T]) Set(value T) {
	if c.disposed.Load() {
		return
	}

	c.mu.Lock()
	changed := !c.equals(c.value, value)
	if changed {
		c.value = value
	}
	c.mu.Unlock()

	if h := c.graph.hooks.OnCellSet; h != nil {
		h(c.id, changed)
	}
	if !changed {
		return
	}

	c.listeners.notify()
	c.graph.Trigger(c.id, ValueKey)
}

// Update atomically reads and updates the cell's value.
// The function receives the current value and returns the new one; the
// equality gate and notification behavior match Set.
func (c *Cell[T]) Update(fn func(T) T) {
	if c.disposed.Load() {
		return
	}

	c.mu.Lock()
	oldValue := c.value
	newValue := fn(oldValue)
	changed := !c.equals(oldValue, newValue)
	if changed {
		c.value = newValue
	}
	c.mu.Unlock()

	if h := c.graph.hooks.OnCellSet; h != nil {
		h(c.id, changed)
	}
	if !changed {
		return
	}

	c.listeners.notify()
	c.graph.Trigger(c.id, ValueKey)
}

// WithEquals returns the cell configured with a custom equality function.
// This is useful for custom types where reflect.DeepEqual is too expensive
// or has incorrect semantics. Call it right after New, before the cell is
// shared.
func (c *Cell[T]) WithEquals(fn func(T, T) bool) *Cell[T] {
	c.equal = fn
	return c
}

// AddListener registers a callback invoked synchronously, on the writer's
// stack, after every write that changes the value. Listeners run in
// registration order, before subscribed effects. Returns the handle for
// RemoveListener; on a disposed cell nothing is registered and the zero
// handle is returned.
func (c *Cell[T]) AddListener(fn func()) ListenerID {
	if c.disposed.Load() {
		return 0
	}
	return c.listeners.add(fn)
}

// RemoveListener detaches a callback registered with AddListener.
// Unknown or zero IDs are ignored. A listener removed while a notification
// is in flight is still invoked once for that notification.
func (c *Cell[T]) RemoveListener(id ListenerID) {
	c.listeners.remove(id)
}

// Dispose permanently silences the cell: all listeners are dropped, every
// dependency edge pointing at the cell is purged from the graph, and later
// Set/Update calls are no-ops. Get and Peek keep returning the value held at
// disposal time. Dispose is idempotent.
func (c *Cell[T]) Dispose() {
	if c.disposed.Swap(true) {
		return
	}
	c.listeners.clear()
	c.graph.Forget(c.id)
}

// Disposed reports whether Dispose has been called.
func (c *Cell[T]) Disposed() bool {
	return c.disposed.Load()
}

// ID returns the unique identifier for this cell.
func (c *Cell[T]) ID() uint64 {
	return c.id
}

// GetAny returns the current value as an any, subscribing the running
// effect. Implements AnyCell.
func (c *Cell[T]) GetAny() any {
	return c.Get()
}

// PeekAny returns the current value as an any without subscribing.
// Implements AnyCell.
func (c *Cell[T]) PeekAny() any {
	return c.Peek()
}

// SetAny sets the value from a dynamically typed one. The write goes
// through Set, so the equality gate and notifications apply. Returns an
// error if value is not assignable to the cell's element type; the cell is
// left untouched in that case.
func (c *Cell[T]) SetAny(value any) error {
	tv, ok := value.(T)
	if !ok {
		var zero T
		return fmt.Errorf("cell: cannot assign %T to cell of %T", value, zero)
	}
	c.Set(tv)
	return nil
}

// EncodeValue serializes the current value as JSON. Together with
// DecodeValue this is what snapshot persistence uses; the cell, not the
// snapshot layer, knows the concrete element type.
func (c *Cell[T]) EncodeValue() ([]byte, error) {
	return json.Marshal(c.Peek())
}

// DecodeValue replaces the value from JSON produced by EncodeValue.
// The write goes through Set, so restoring state fires listeners and
// effects exactly like any other changed write.
func (c *Cell[T]) DecodeValue(data []byte) error {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	c.Set(v)
	return nil
}

func (c *Cell[T]) ownerGraph() *Graph {
	return c.graph
}

// equals checks if two values are equal using the configured equality
// function.
func (c *Cell[T]) equals(a, b T) bool {
	if c.equal != nil {
		return c.equal(a, b)
	}
	return defaultEquals(a, b)
}
