package persist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DiskStore keeps snapshots as JSON files in a local directory, one file
// per snapshot name.
type DiskStore struct {
	dir string
}

// NewDiskStore creates a disk-backed snapshot store rooted at dir,
// creating the directory if needed.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("snapshot dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save writes the snapshot to <dir>/<name>.json. The write lands in a temp
// file first and is renamed into place, so a crash mid-write never leaves a
// truncated snapshot behind.
func (d *DiskStore) Save(ctx context.Context, snap *Snapshot) error {
	if err := validateName(snap.Name); err != nil {
		return err
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot %q: %w", snap.Name, err)
	}

	path := d.path(snap.Name)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write snapshot %q: %w", snap.Name, err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("install snapshot %q: %w", snap.Name, err)
	}
	return nil
}

// Load reads the named snapshot from disk. Returns ErrNoSnapshot when the
// file does not exist.
func (d *DiskStore) Load(ctx context.Context, name string) (*Snapshot, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(d.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot %q: %w", name, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("parse snapshot %q: %w", name, err)
	}
	return &snap, nil
}

func (d *DiskStore) path(name string) string {
	return filepath.Join(d.dir, name+".json")
}

// validateName rejects names that would escape the snapshot directory.
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("persist: empty snapshot name")
	}
	if strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return fmt.Errorf("persist: invalid snapshot name %q", name)
	}
	return nil
}
