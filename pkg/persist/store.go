package persist

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
)

// ErrNoSnapshot is returned by Load when the backend has no snapshot under
// the requested name. Check with errors.Is.
var ErrNoSnapshot = errors.New("persist: snapshot not found")

// SnapshotStore is a named-snapshot backend. Implementations must be safe
// for concurrent use.
type SnapshotStore interface {
	// Save persists the snapshot under its Name, overwriting any previous
	// snapshot with that name.
	Save(ctx context.Context, snap *Snapshot) error

	// Load retrieves a snapshot by name. Returns ErrNoSnapshot when no
	// snapshot exists under that name.
	Load(ctx context.Context, name string) (*Snapshot, error)
}

// MemoryStore is an in-memory snapshot backend. It is the default for tests
// and throwaway processes; state does not survive a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	snaps map[string]*Snapshot
}

// NewMemoryStore creates an empty in-memory snapshot backend.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		snaps: make(map[string]*Snapshot),
	}
}

// Save stores a copy of the snapshot under its name.
func (m *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	cp := *snap
	cp.Values = make(map[string]json.RawMessage, len(snap.Values))
	for key, v := range snap.Values {
		// Copy the raw bytes so later mutations don't leak in
		data := make(json.RawMessage, len(v))
		copy(data, v)
		cp.Values[key] = data
	}

	m.mu.Lock()
	m.snaps[snap.Name] = &cp
	m.mu.Unlock()
	return nil
}

// Load retrieves a copy of the named snapshot.
func (m *MemoryStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	m.mu.RLock()
	snap, ok := m.snaps[name]
	m.mu.RUnlock()

	if !ok {
		return nil, ErrNoSnapshot
	}

	cp := *snap
	cp.Values = make(map[string]json.RawMessage, len(snap.Values))
	for key, v := range snap.Values {
		data := make(json.RawMessage, len(v))
		copy(data, v)
		cp.Values[key] = data
	}
	return &cp, nil
}

// Count returns the number of stored snapshots. For monitoring and tests.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.snaps)
}
