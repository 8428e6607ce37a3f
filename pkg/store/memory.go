package store

import (
	"context"
	"fmt"
	"sync"

	"snapgate/pkg/snapshot"
)

// MemoryStore keeps serialized records in process memory. Records go through
// the same codec as files, so corrupt entries still surface as *ParseError.
type MemoryStore struct {
	mu      sync.RWMutex
	baseDir string
	items   map[string][]byte
}

// NewMemoryStore creates an empty in-memory store. baseDir only namespaces
// locations.
func NewMemoryStore(baseDir string) *MemoryStore {
	return &MemoryStore{
		baseDir: baseDir,
		items:   make(map[string][]byte),
	}
}

func (c *MemoryStore) Locate(host, path, fingerprint string) string {
	return Locate(c.baseDir, host, path, fingerprint)
}

// Read retrieves a snapshot from memory.
func (c *MemoryStore) Read(ctx context.Context, location string) (*snapshot.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context error: %w", err)
	}

	c.mu.RLock()
	data, ok := c.items[location]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}

	snap, err := snapshot.Unmarshal(data)
	if err != nil {
		return nil, &ParseError{Location: location, Err: err}
	}
	return snap, nil
}

// Write replaces the record at location.
func (c *MemoryStore) Write(ctx context.Context, location string, snap *snapshot.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context error: %w", err)
	}

	data, err := snapshot.Marshal(snap)
	if err != nil {
		return err
	}
	c.PutRaw(location, data)
	return nil
}

// PutRaw stores data at location without validation.
func (c *MemoryStore) PutRaw(location string, data []byte) {
	// Copy to decouple from caller's buffer
	valueCopy := make([]byte, len(data))
	copy(valueCopy, data)

	c.mu.Lock()
	c.items[location] = valueCopy
	c.mu.Unlock()
}

// Raw returns the serialized record at location.
func (c *MemoryStore) Raw(location string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.items[location]
	return data, ok
}

// Len returns the number of snapshots currently stored.
func (c *MemoryStore) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Clear removes all snapshots. Useful for tests or manual resets.
func (c *MemoryStore) Clear() {
	c.mu.Lock()
	c.items = make(map[string][]byte)
	c.mu.Unlock()
}
