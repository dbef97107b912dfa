package persist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/lattice-dev/lattice/pkg/store"
)

// countingBackend counts Save calls on top of an in-memory store.
type countingBackend struct {
	*MemoryStore
	mu    sync.Mutex
	saves int
}

func newCountingBackend() *countingBackend {
	return &countingBackend{MemoryStore: NewMemoryStore()}
}

func (b *countingBackend) Save(ctx context.Context, snap *Snapshot) error {
	b.mu.Lock()
	b.saves++
	b.mu.Unlock()
	return b.MemoryStore.Save(ctx, snap)
}

func (b *countingBackend) saveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.saves
}

func TestSaverEveryNChanges(t *testing.T) {
	_, s := newPopulatedStore(t)
	backend := newCountingBackend()
	v := NewSaver(s, backend, "state", EveryNChanges(2))
	defer v.Close()

	store.Set(s, "count", 1)
	if backend.saveCount() != 0 {
		t.Fatalf("expected no save after 1 change, got %d", backend.saveCount())
	}
	store.Set(s, "count", 2)
	if backend.saveCount() != 1 {
		t.Fatalf("expected save after 2 changes, got %d", backend.saveCount())
	}
	store.Set(s, "count", 3)
	if backend.saveCount() != 1 {
		t.Errorf("expected counter to reset after save, got %d", backend.saveCount())
	}

	snap, err := backend.Load(context.Background(), "state")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(snap.Values["count"]) != "2" {
		t.Errorf("expected snapshot at second change, got %s", snap.Values["count"])
	}
}

func TestSaverGatedWritesDoNotCount(t *testing.T) {
	_, s := newPopulatedStore(t)
	backend := newCountingBackend()
	v := NewSaver(s, backend, "state", EveryNChanges(2))
	defer v.Close()

	store.Set(s, "count", 1)
	store.Set(s, "count", 1) // equality-gated, no listener fires
	if backend.saveCount() != 0 {
		t.Errorf("expected gated write not to trip the policy, got %d saves", backend.saveCount())
	}
}

func TestSaverMinInterval(t *testing.T) {
	_, s := newPopulatedStore(t)
	backend := newCountingBackend()
	v := NewSaver(s, backend, "state", MinInterval(time.Hour))
	defer v.Close()

	// First change saves immediately: lastSave starts at the zero time
	store.Set(s, "count", 1)
	if backend.saveCount() != 1 {
		t.Fatalf("expected first change to save, got %d", backend.saveCount())
	}

	store.Set(s, "count", 2)
	store.Set(s, "count", 3)
	if backend.saveCount() != 1 {
		t.Errorf("expected interval to suppress further saves, got %d", backend.saveCount())
	}
}

func TestSaverAnyPolicy(t *testing.T) {
	_, s := newPopulatedStore(t)
	backend := newCountingBackend()
	v := NewSaver(s, backend, "state", Any(EveryNChanges(3), MinInterval(time.Hour)))
	defer v.Close()

	store.Set(s, "count", 1) // interval arm fires
	store.Set(s, "count", 2)
	store.Set(s, "count", 3)
	store.Set(s, "count", 4) // change arm fires
	if backend.saveCount() != 2 {
		t.Errorf("expected both policy arms to fire once, got %d", backend.saveCount())
	}
}

func TestSaverNilPolicyOnlyFlushes(t *testing.T) {
	_, s := newPopulatedStore(t)
	backend := newCountingBackend()
	v := NewSaver(s, backend, "state", nil)
	defer v.Close()

	store.Set(s, "count", 1)
	store.Set(s, "count", 2)
	if backend.saveCount() != 0 {
		t.Fatalf("expected nil policy to never auto-save, got %d", backend.saveCount())
	}

	if err := v.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	if backend.saveCount() != 1 {
		t.Fatalf("expected Flush to save, got %d", backend.saveCount())
	}

	snap, err := backend.Load(context.Background(), "state")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(snap.Values["count"]) != "2" {
		t.Errorf("expected flushed snapshot to hold latest value, got %s", snap.Values["count"])
	}
}

func TestSaverRestore(t *testing.T) {
	ctx := context.Background()
	_, s := newPopulatedStore(t)
	backend := NewMemoryStore()
	v := NewSaver(s, backend, "state", nil)
	defer v.Close()

	// Nothing saved yet: first boot
	if err := v.Restore(ctx); !errors.Is(err, ErrNoSnapshot) {
		t.Fatalf("expected ErrNoSnapshot on first boot, got %v", err)
	}

	store.Set(s, "count", 99)
	if err := v.Flush(ctx); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	store.Set(s, "count", 0)
	if err := v.Restore(ctx); err != nil {
		t.Fatalf("Restore failed: %v", err)
	}
	if got, _ := store.Value[int](s, "count"); got != 99 {
		t.Errorf("expected restored count 99, got %d", got)
	}
}

func TestSaverCloseDetaches(t *testing.T) {
	_, s := newPopulatedStore(t)
	backend := newCountingBackend()
	v := NewSaver(s, backend, "state", EveryNChanges(1))

	store.Set(s, "count", 1)
	if backend.saveCount() != 1 {
		t.Fatalf("expected save before Close, got %d", backend.saveCount())
	}

	v.Close()
	v.Close() // idempotent

	store.Set(s, "count", 2)
	if backend.saveCount() != 1 {
		t.Errorf("expected no saves after Close, got %d", backend.saveCount())
	}
}
