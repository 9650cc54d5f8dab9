package configcache

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/buildforge/manager/pkg/memory"
	"github.com/buildforge/manager/pkg/model"
)

// diskFormatVersion is written as the first byte of every serialized
// payload. Forward-compatible readers reject unknown versions with a
// clear error rather than attempting to interpret unknown bytes
// (spec.md §6).
const diskFormatVersion byte = 1

// DiskStore implements the "cache to disk" half of the config cache
// (spec.md §4.3): configs are serialized to
// tmp_dir/process-uniquely-named-cache-subdir/config-<id>.cache, and the
// whole subdirectory is removed on normal session teardown.
//
// The subdirectory name embeds a UUID (github.com/google/uuid) rather
// than just the pid, so that two managers sharing a process (spec.md §9
// "cache subdirectories shared across managers in one process") never
// collide even if a pid were somehow reused within the process lifetime.
type DiskStore struct {
	mu   sync.Mutex
	root string
}

// NewDiskStore creates the process-unique cache subdirectory under
// tmpDir and returns a store rooted there.
func NewDiskStore(tmpDir string) (*DiskStore, error) {
	subdir := sanitizeSubdirComponent(fmt.Sprintf("buildforge-%d-%s", os.Getpid(), uuid.NewString()))
	root := filepath.Join(tmpDir, subdir)
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache subdirectory: %w", err)
	}
	return &DiskStore{root: root}, nil
}

// sanitizeSubdirComponent replaces literal '{' and '}' in the subdirectory
// name with '_'. It is applied to the generated subdirectory name only;
// tmpDir is passed to filepath.Join unchanged, which treats braces as
// ordinary path characters. uuid.NewString() never emits braces.
func sanitizeSubdirComponent(s string) string {
	return strings.NewReplacer("{", "_", "}", "_").Replace(s)
}

func (d *DiskStore) path(id model.ConfigID) string {
	return filepath.Join(d.root, fmt.Sprintf("config-%d.cache", int32(id)))
}

// Store serializes cfg to its cache file.
func (d *DiskStore) Store(cfg *model.Configuration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	buf := memory.GetBuffer(memory.SmallBuffer)
	defer memory.PutBuffer(buf, memory.SmallBuffer)

	payload := bytes.NewBuffer(buf[:0])
	payload.WriteByte(diskFormatVersion)
	enc := gob.NewEncoder(payload)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encoding configuration %d: %w", cfg.ID, err)
	}

	if err := os.WriteFile(d.path(cfg.ID), payload.Bytes(), 0o644); err != nil {
		return fmt.Errorf("writing configuration %d to disk: %w", cfg.ID, err)
	}
	return nil
}

// Load deserializes the configuration stored for id.
func (d *DiskStore) Load(id model.ConfigID) (*model.Configuration, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	data, err := os.ReadFile(d.path(id))
	if err != nil {
		return nil, fmt.Errorf("reading configuration %d from disk: %w", id, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("configuration %d cache file is empty", id)
	}
	if data[0] != diskFormatVersion {
		return nil, fmt.Errorf("configuration %d cache file has unknown format version %d", id, data[0])
	}

	var cfg model.Configuration
	dec := gob.NewDecoder(bytes.NewReader(data[1:]))
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration %d: %w", id, err)
	}
	return &cfg, nil
}

// Remove deletes the cache file for id, if present. Removing a
// never-stored id is not an error.
func (d *DiskStore) Remove(id model.ConfigID) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	err := os.Remove(d.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing configuration %d from disk: %w", id, err)
	}
	return nil
}

// Close removes the entire process-unique subdirectory. Never call this
// on a root another manager might still reference — callers must use a
// store scoped to their own session UUID subdirectory (spec.md §9).
func (d *DiskStore) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := os.RemoveAll(d.root); err != nil {
		return fmt.Errorf("removing cache subdirectory %s: %w", d.root, err)
	}
	return nil
}

// Root returns the process-unique subdirectory path, for diagnostics.
func (d *DiskStore) Root() string { return d.root }
