// Package store provides a keyed registry over reactive cells.
//
// A Store maps string keys to cells and turns their individual change
// notifications into registry-level state: a per-key dirty flag that sticks
// until explicitly cleared, an aggregate "something changed" listener
// channel, and a keyed change feed for adapters that need to know which key
// fired. Registration is first-writer-wins; the store observes cells but
// never owns them, so disposing a store detaches it without touching the
// cells.
//
// Typed access goes through the generic free functions Ref, Value, and Set;
// the methods Get and SetValue are their dynamically typed counterparts.
// Lookups never fail loudly: an unknown key, a mismatched type, or a
// disposed store all yield the empty result.
package store

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lattice-dev/lattice/pkg/cell"
)

// entry pairs a registered cell with the forwarding listener the store
// installed on it.
type entry struct {
	c          cell.AnyCell
	forwarding cell.ListenerID
}

// aggListener is an aggregate change callback with its removal handle.
type aggListener struct {
	id cell.ListenerID
	fn func()
}

// keyListener is a keyed change callback with its removal handle.
type keyListener struct {
	id cell.ListenerID
	fn func(key string)
}

// Store is a keyed registry of cells with per-key dirty tracking.
type Store struct {
	mu sync.RWMutex

	// entries maps key -> registered cell plus forwarding listener.
	entries map[string]entry

	// dirty holds the keys whose cells changed since the flag was last
	// cleared.
	dirty map[string]struct{}

	// agg and keyed are notified, in registration order, after a registered
	// cell accepts a write.
	agg   []aggListener
	keyed []keyListener

	// disposed latches once Dispose is called. Guarded by mu.
	disposed bool

	// listenerIDs issues handles for agg and keyed listeners.
	listenerIDs uint64
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]entry),
		dirty:   make(map[string]struct{}),
	}
}

// Register binds a cell to a key. The first registration wins: a key that
// is already taken is left untouched and Register reports false. On
// success the store installs a forwarding listener on the cell, so every
// later accepted write marks the key dirty and fires the store's listeners.
func (s *Store) Register(key string, c cell.AnyCell) bool {
	if c == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return false
	}
	if _, exists := s.entries[key]; exists {
		return false
	}

	id := c.AddListener(func() { s.cellChanged(key) })
	s.entries[key] = entry{c: c, forwarding: id}
	return true
}

// Unregister removes a key, detaching the store's forwarding listener from
// the cell and dropping the key's dirty flag. The cell itself stays alive
// and keeps its other listeners. Reports whether the key was present.
func (s *Store) Unregister(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	e.c.RemoveListener(e.forwarding)
	delete(s.entries, key)
	delete(s.dirty, key)
	return true
}

// Get returns the value under key as a dynamically typed any, subscribing
// the running effect. Unknown keys, and any lookup on a disposed store,
// yield (nil, false).
func (s *Store) Get(key string) (any, bool) {
	c, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	return c.GetAny(), true
}

// RefAny returns the type-erased cell registered under key. This is what
// adapters that handle values generically (snapshot persistence, the live
// bridge) use; statically typed callers want Ref instead.
func (s *Store) RefAny(key string) (cell.AnyCell, bool) {
	return s.lookup(key)
}

// SetValue writes a dynamically typed value to the cell under key. Reports
// false, leaving everything untouched, when the key is unknown, the value's
// type does not match the cell, or the store is disposed. The write itself
// goes through the cell, so the equality gate and all notifications apply.
func (s *Store) SetValue(key string, v any) bool {
	c, ok := s.lookup(key)
	if !ok {
		return false
	}
	return c.SetAny(v) == nil
}

// HasChanged reports whether the cell under key has accepted a write since
// the key's dirty flag was last cleared.
func (s *Store) HasChanged(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, dirty := s.dirty[key]
	return dirty
}

// ClearChanged resets the dirty flag for one key.
func (s *Store) ClearChanged(key string) {
	s.mu.Lock()
	delete(s.dirty, key)
	s.mu.Unlock()
}

// ClearAllChanged resets every dirty flag.
func (s *Store) ClearAllChanged() {
	s.mu.Lock()
	s.dirty = make(map[string]struct{})
	s.mu.Unlock()
}

// ChangedKeys returns the dirty keys in sorted order.
func (s *Store) ChangedKeys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Keys returns all registered keys in sorted order.
func (s *Store) Keys() []string {
	s.mu.RLock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	s.mu.RUnlock()

	sort.Strings(keys)
	return keys
}

// Len reports the number of registered keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// AddListener registers an aggregate callback invoked synchronously, on the
// writer's stack, after any registered cell accepts a write. Returns the
// handle for RemoveListener; on a disposed store nothing is registered and
// the zero handle is returned.
func (s *Store) AddListener(fn func()) cell.ListenerID {
	if fn == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return 0
	}
	id := cell.ListenerID(atomic.AddUint64(&s.listenerIDs, 1))
	s.agg = append(s.agg, aggListener{id: id, fn: fn})
	return id
}

// RemoveListener detaches an aggregate callback. Unknown IDs are ignored.
func (s *Store) RemoveListener(id cell.ListenerID) {
	if id == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.agg {
		if l.id == id {
			s.agg = append(s.agg[:i], s.agg[i+1:]...)
			return
		}
	}
}

// AddChangeListener registers a keyed callback invoked with the key whose
// cell accepted a write, before the aggregate listeners. This is the feed
// adapters use when they need the key without consuming the dirty flags.
func (s *Store) AddChangeListener(fn func(key string)) cell.ListenerID {
	if fn == nil {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return 0
	}
	id := cell.ListenerID(atomic.AddUint64(&s.listenerIDs, 1))
	s.keyed = append(s.keyed, keyListener{id: id, fn: fn})
	return id
}

// RemoveChangeListener detaches a keyed callback. Unknown IDs are ignored.
func (s *Store) RemoveChangeListener(id cell.ListenerID) {
	if id == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, l := range s.keyed {
		if l.id == id {
			s.keyed = append(s.keyed[:i], s.keyed[i+1:]...)
			return
		}
	}
}

// Dispose permanently shuts the store down: every forwarding listener is
// removed from its cell and all entries, dirty flags, and listeners are
// dropped. The cells themselves are not disposed; ownership stays with
// their creators. After Dispose every accessor returns the empty result and
// every mutator is a no-op. Dispose is idempotent.
func (s *Store) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.disposed {
		return
	}
	s.disposed = true

	for _, e := range s.entries {
		e.c.RemoveListener(e.forwarding)
	}
	s.entries = make(map[string]entry)
	s.dirty = make(map[string]struct{})
	s.agg = nil
	s.keyed = nil
}

// Disposed reports whether Dispose has been called.
func (s *Store) Disposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// lookup fetches the cell under key, honoring disposal.
func (s *Store) lookup(key string) (cell.AnyCell, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.disposed {
		return nil, false
	}
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	return e.c, true
}

// cellChanged is the forwarding listener body: it marks the key dirty and
// re-fires the store's own listeners, all synchronously on the stack of the
// write that caused it. Listener slices are snapshotted under the lock and
// invoked outside it, so listeners may freely call back into the store.
func (s *Store) cellChanged(key string) {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return
	}
	if _, still := s.entries[key]; !still {
		// Raced with Unregister; the write predates the detach
		s.mu.Unlock()
		return
	}
	s.dirty[key] = struct{}{}

	keyed := make([]keyListener, len(s.keyed))
	copy(keyed, s.keyed)
	agg := make([]aggListener, len(s.agg))
	copy(agg, s.agg)
	s.mu.Unlock()

	for _, l := range keyed {
		l.fn(key)
	}
	for _, l := range agg {
		l.fn()
	}
}

// Ref returns the typed cell registered under key. Yields (nil, false) when
// the key is unknown, the cell's element type is not T, or the store is
// disposed; a mismatch is indistinguishable from an absent key on purpose.
func Ref[T any](s *Store, key string) (*cell.Cell[T], bool) {
	c, ok := s.lookup(key)
	if !ok {
		return nil, false
	}
	typed, ok := c.(*cell.Cell[T])
	if !ok {
		return nil, false
	}
	return typed, true
}

// Value returns the current value of the cell under key, subscribing the
// running effect. Yields the zero value and false under the same conditions
// as Ref.
func Value[T any](s *Store, key string) (T, bool) {
	c, ok := Ref[T](s, key)
	if !ok {
		var zero T
		return zero, false
	}
	return c.Get(), true
}

// Set writes a statically typed value to the cell under key. Reports false
// under the same conditions as Ref.
func Set[T any](s *Store, key string, v T) bool {
	c, ok := Ref[T](s, key)
	if !ok {
		return false
	}
	c.Set(v)
	return true
}
