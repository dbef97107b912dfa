package persist

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lattice-dev/lattice/pkg/cell"
	"github.com/lattice-dev/lattice/pkg/store"
)

// Policy decides, after each store change, whether the Saver should write a
// snapshot now. changes counts accepted writes since the last save; lastSave
// is the zero time before the first one.
type Policy interface {
	ShouldSnapshot(changes int, lastSave time.Time) bool
}

// PolicyFunc adapts a function to the Policy interface.
type PolicyFunc func(changes int, lastSave time.Time) bool

func (f PolicyFunc) ShouldSnapshot(changes int, lastSave time.Time) bool {
	return f(changes, lastSave)
}

// EveryNChanges snapshots after every n accepted writes.
func EveryNChanges(n int) Policy {
	if n <= 0 {
		n = 1
	}
	return PolicyFunc(func(changes int, lastSave time.Time) bool {
		return changes >= n
	})
}

// MinInterval snapshots on the first change after d has passed since the
// last save. The first change always saves: before any save, lastSave is
// the zero time.
func MinInterval(d time.Duration) Policy {
	return PolicyFunc(func(changes int, lastSave time.Time) bool {
		return time.Since(lastSave) >= d
	})
}

// Any combines policies; a snapshot is taken when any one of them says so.
func Any(policies ...Policy) Policy {
	return PolicyFunc(func(changes int, lastSave time.Time) bool {
		for _, p := range policies {
			if p.ShouldSnapshot(changes, lastSave) {
				return true
			}
		}
		return false
	})
}

// Saver watches a store and persists it to a snapshot backend under a
// policy. Saves run synchronously on the stack of the write that tripped
// the policy; keep backends fast or the policy coarse when writes are hot.
//
// A nil policy disables automatic saves: the Saver then only writes on
// Flush, which is useful for shutdown-only persistence.
type Saver struct {
	store   *store.Store
	backend SnapshotStore
	name    string
	policy  Policy
	logger  *slog.Logger

	mu       sync.Mutex
	changes  int
	lastSave time.Time
	closed   bool

	listener cell.ListenerID
}

// NewSaver attaches a Saver to the store. It starts observing immediately;
// call Close to detach and Flush to force a final save first.
func NewSaver(s *store.Store, backend SnapshotStore, name string, policy Policy) *Saver {
	v := &Saver{
		store:   s,
		backend: backend,
		name:    name,
		policy:  policy,
		logger:  slog.Default().With("component", "persist"),
	}
	v.listener = s.AddListener(v.onChange)
	return v
}

// SetLogger replaces the saver's logger.
func (v *Saver) SetLogger(logger *slog.Logger) {
	v.logger = logger
}

// onChange is the store listener body. It tallies the write and, when the
// policy fires, consumes the tally and saves before returning.
func (v *Saver) onChange() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.changes++
	if v.policy == nil || !v.policy.ShouldSnapshot(v.changes, v.lastSave) {
		v.mu.Unlock()
		return
	}
	// Consume the tally before unlocking so a concurrent write doesn't
	// trip the policy again for the same batch
	v.changes = 0
	v.lastSave = time.Now()
	v.mu.Unlock()

	if err := v.persist(context.Background()); err != nil {
		v.logger.Error("automatic snapshot failed", "name", v.name, "error", err)
	}
}

// Flush takes a snapshot and saves it regardless of the policy. Call it on
// graceful shutdown so the last writes are not lost to the policy window.
func (v *Saver) Flush(ctx context.Context) error {
	if err := v.persist(ctx); err != nil {
		return err
	}
	v.mu.Lock()
	v.changes = 0
	v.lastSave = time.Now()
	v.mu.Unlock()
	return nil
}

// Restore loads the saver's named snapshot from its backend and applies it
// to the store. Returns ErrNoSnapshot untouched when the backend has none,
// so first boots can treat it as a clean start.
func (v *Saver) Restore(ctx context.Context) error {
	snap, err := v.backend.Load(ctx, v.name)
	if err != nil {
		return err
	}
	return Restore(v.store, snap)
}

// Close detaches the saver from the store. It does not flush; pending
// changes since the last save are dropped unless Flush ran first.
func (v *Saver) Close() {
	v.mu.Lock()
	if v.closed {
		v.mu.Unlock()
		return
	}
	v.closed = true
	v.mu.Unlock()

	v.store.RemoveListener(v.listener)
}

func (v *Saver) persist(ctx context.Context) error {
	snap, err := Take(v.store, v.name)
	if err != nil {
		return err
	}
	if err := v.backend.Save(ctx, snap); err != nil {
		return err
	}
	v.logger.Debug("snapshot saved", "name", v.name, "keys", len(snap.Values))
	return nil
}
