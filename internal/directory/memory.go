package directory

import (
	"context"
	"sync"
)

// MemoryDirectory is an in-process identity set for development and tests.
type MemoryDirectory struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

func NewMemoryDirectory(userIDs ...string) *MemoryDirectory {
	d := &MemoryDirectory{users: make(map[string]struct{})}
	for _, id := range userIDs {
		d.users[id] = struct{}{}
	}
	return d
}

var _ Directory = (*MemoryDirectory)(nil)

func (d *MemoryDirectory) Add(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = struct{}{}
}

func (d *MemoryDirectory) Exists(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.users[userID]
	return ok, nil
}
