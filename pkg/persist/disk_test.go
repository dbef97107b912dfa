package persist

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	backend, err := NewDiskStore(filepath.Join(t.TempDir(), "snapshots"))
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	snap := &Snapshot{
		Name:    "state",
		Version: snapshotVersion,
		Values: map[string]json.RawMessage{
			"count": json.RawMessage("42"),
			"name":  json.RawMessage(`"lattice"`),
		},
	}
	if err := backend.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := backend.Load(ctx, "state")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Name != "state" {
		t.Errorf("expected name %q, got %q", "state", loaded.Name)
	}
	if string(loaded.Values["count"]) != "42" {
		t.Errorf("expected count 42, got %s", loaded.Values["count"])
	}
	if string(loaded.Values["name"]) != `"lattice"` {
		t.Errorf("expected name value to survive, got %s", loaded.Values["name"])
	}
}

func TestDiskStoreMissingSnapshot(t *testing.T) {
	backend, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	if _, err := backend.Load(context.Background(), "absent"); !errors.Is(err, ErrNoSnapshot) {
		t.Errorf("expected ErrNoSnapshot, got %v", err)
	}
}

func TestDiskStoreOverwrite(t *testing.T) {
	ctx := context.Background()
	backend, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	for _, raw := range []string{"1", "2"} {
		snap := &Snapshot{
			Name:    "state",
			Version: snapshotVersion,
			Values:  map[string]json.RawMessage{"count": json.RawMessage(raw)},
		}
		if err := backend.Save(ctx, snap); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	loaded, err := backend.Load(ctx, "state")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if string(loaded.Values["count"]) != "2" {
		t.Errorf("expected latest save to win, got %s", loaded.Values["count"])
	}
}

func TestDiskStoreRejectsTraversalNames(t *testing.T) {
	ctx := context.Background()
	backend, err := NewDiskStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	for _, name := range []string{"", "../escape", "a/b", `a\b`, "trick.."} {
		snap := &Snapshot{Name: name, Values: map[string]json.RawMessage{}}
		if err := backend.Save(ctx, snap); err == nil {
			t.Errorf("expected Save to reject name %q", name)
		}
		if _, err := backend.Load(ctx, name); err == nil || errors.Is(err, ErrNoSnapshot) {
			t.Errorf("expected Load to reject name %q outright, got %v", name, err)
		}
	}
}

func TestDiskStoreLeavesNoTempFiles(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	backend, err := NewDiskStore(dir)
	if err != nil {
		t.Fatalf("NewDiskStore failed: %v", err)
	}

	snap := &Snapshot{
		Name:    "state",
		Version: snapshotVersion,
		Values:  map[string]json.RawMessage{"count": json.RawMessage("1")},
	}
	if err := backend.Save(ctx, snap); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 1 || entries[0].Name() != "state.json" {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected only state.json, got %v", names)
	}
}
