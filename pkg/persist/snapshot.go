// Package persist saves and restores store state as named snapshots.
//
// A snapshot is a JSON document mapping store keys to encoded cell values.
// Cells encode and decode their own values, so the snapshot layer never
// needs to know element types; restoring writes through the normal reactive
// path and fires listeners and effects like any other changed write.
//
// Snapshots travel through a SnapshotStore backend: in-memory for tests,
// local disk, or S3. The Saver watches a store and persists it
// automatically under a configurable policy.
package persist

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/lattice-dev/lattice/pkg/store"
)

// snapshotVersion is bumped when the snapshot layout changes.
const snapshotVersion = 1

// Snapshot is a point-in-time capture of every value in a store.
type Snapshot struct {
	// Name identifies the snapshot in its backend.
	Name string `json:"name"`

	// TakenAt is when the capture happened.
	TakenAt time.Time `json:"taken_at"`

	// Version is the snapshot layout version.
	Version int `json:"version"`

	// Values maps store keys to their JSON-encoded cell values.
	Values map[string]json.RawMessage `json:"values"`
}

// Take captures the current value of every cell registered in the store.
// The capture is per-cell, not transactional: a concurrent write can land
// between two keys. Take the snapshot from a quiesced store when that
// matters.
func Take(s *store.Store, name string) (*Snapshot, error) {
	keys := s.Keys()
	values := make(map[string]json.RawMessage, len(keys))

	for _, key := range keys {
		c, ok := s.RefAny(key)
		if !ok {
			// Raced with Unregister; the snapshot simply omits the key
			continue
		}
		data, err := c.EncodeValue()
		if err != nil {
			return nil, fmt.Errorf("snapshot %q: encode %q: %w", name, key, err)
		}
		values[key] = data
	}

	return &Snapshot{
		Name:    name,
		TakenAt: time.Now().UTC(),
		Version: snapshotVersion,
		Values:  values,
	}, nil
}

// Restore writes the snapshot's values back into the store. Each write goes
// through the owning cell's decoder and Set, so unchanged values are gated
// out and changed ones notify as usual.
//
// Keys in the snapshot with no registered cell, and values the cell cannot
// decode, are collected rather than aborting the restore: every key that can
// be applied is applied, and the returned error is a *RestoreError listing
// the rest. A nil return means every key landed.
func Restore(s *store.Store, snap *Snapshot) error {
	if snap == nil {
		return fmt.Errorf("restore: nil snapshot")
	}

	restoreErr := &RestoreError{Name: snap.Name}

	// Deterministic application order
	keys := make([]string, 0, len(snap.Values))
	for key := range snap.Values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		c, ok := s.RefAny(key)
		if !ok {
			restoreErr.Missing = append(restoreErr.Missing, key)
			continue
		}
		if err := c.DecodeValue(snap.Values[key]); err != nil {
			if restoreErr.Failed == nil {
				restoreErr.Failed = make(map[string]error)
			}
			restoreErr.Failed[key] = err
		}
	}

	if len(restoreErr.Missing) > 0 || len(restoreErr.Failed) > 0 {
		return restoreErr
	}
	return nil
}

// RestoreError reports the keys a restore could not apply. The restore
// itself is best-effort: keys not listed here were written successfully.
type RestoreError struct {
	// Name is the snapshot's name.
	Name string

	// Missing lists snapshot keys with no registered cell, sorted.
	Missing []string

	// Failed maps keys to the decode error their cell returned.
	Failed map[string]error
}

func (e *RestoreError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "restore %q:", e.Name)
	if len(e.Missing) > 0 {
		fmt.Fprintf(&sb, " %d missing key(s) (%s)", len(e.Missing), strings.Join(e.Missing, ", "))
	}
	if len(e.Failed) > 0 {
		if len(e.Missing) > 0 {
			sb.WriteString(";")
		}
		keys := make([]string, 0, len(e.Failed))
		for key := range e.Failed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		fmt.Fprintf(&sb, " %d failed key(s):", len(keys))
		for _, key := range keys {
			fmt.Fprintf(&sb, " %s: %v;", key, e.Failed[key])
		}
	}
	return strings.TrimSuffix(sb.String(), ";")
}
