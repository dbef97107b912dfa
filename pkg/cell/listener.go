package cell

import "sync"

// ListenerID identifies a registered listener callback. Function values are
// not comparable in Go, so removal goes through the ID returned by
// AddListener. The zero ID is never issued and removing it is a no-op.
type ListenerID uint64

// listenerEntry pairs a listener callback with its removal handle.
type listenerEntry struct {
	id ListenerID
	fn func()
}

// listenerList manages plain no-argument listener callbacks in registration
// order. It is embedded in Cell and shares the copy-before-notify discipline
// used everywhere in this package: the entry slice is snapshotted under the
// lock and callbacks run outside it.
type listenerList struct {
	mu      sync.RWMutex
	entries []listenerEntry
}

// add registers a callback and returns its removal handle.
func (l *listenerList) add(fn func()) ListenerID {
	if fn == nil {
		return 0
	}
	id := ListenerID(nextID())

	l.mu.Lock()
	l.entries = append(l.entries, listenerEntry{id: id, fn: fn})
	l.mu.Unlock()

	return id
}

// remove detaches the callback registered under id.
// Unknown IDs are ignored. Removal preserves the registration order of the
// remaining entries.
func (l *listenerList) remove(id ListenerID) {
	if id == 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for i, e := range l.entries {
		if e.id == id {
			l.entries = append(l.entries[:i], l.entries[i+1:]...)
			return
		}
	}
}

// notify invokes every registered callback in registration order.
// The snapshot is taken before iterating, so callbacks registered during
// notification wait for the next round and callbacks removed during
// notification are still invoked once for the in-flight round.
func (l *listenerList) notify() {
	l.mu.RLock()
	snapshot := make([]listenerEntry, len(l.entries))
	copy(snapshot, l.entries)
	l.mu.RUnlock()

	for _, e := range snapshot {
		e.fn()
	}
}

// clear drops all entries.
func (l *listenerList) clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

// len reports the number of registered listeners.
func (l *listenerList) len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
