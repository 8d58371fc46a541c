// Package directory exposes the provider directory consumed by the matching
// engine: snapshot reads for selection and a guarded capacity reservation
// used when a provider accepts an assignment.
package directory

import (
	"sort"
	"sync"

	"github.com/fieldserv/matchd/core/model"
)

// Directory is the provider directory port.
type Directory interface {
	// Snapshot returns a copy of all known providers.
	Snapshot() []model.Provider
	// Get returns the provider and whether it exists.
	Get(id string) (model.Provider, bool)
	// Reserve atomically re-checks capacity and increments the provider's
	// active assignment count. It returns false when the provider is at
	// capacity or unknown, in which case nothing is modified.
	Reserve(id string) bool
	// Release decrements the active assignment count, never below zero.
	Release(id string)
	// Upsert inserts or replaces a provider record.
	Upsert(p model.Provider)
}

// MemoryDirectory is an in-memory Directory guarded by a single mutex, so a
// reservation is a compare-and-swap: two concurrent accepts for the last
// slot cannot both succeed.
type MemoryDirectory struct {
	mu        sync.RWMutex
	providers map[string]model.Provider
}

// NewMemoryDirectory creates an empty directory.
func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{providers: make(map[string]model.Provider)}
}

func (d *MemoryDirectory) Snapshot() []model.Provider {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]model.Provider, 0, len(d.providers))
	for _, p := range d.providers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (d *MemoryDirectory) Get(id string) (model.Provider, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.providers[id]
	return p, ok
}

func (d *MemoryDirectory) Reserve(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.providers[id]
	if !ok || !p.HasCapacity() {
		return false
	}
	p.ActiveAssignments++
	d.providers[id] = p
	return true
}

func (d *MemoryDirectory) Release(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.providers[id]
	if !ok || p.ActiveAssignments == 0 {
		return
	}
	p.ActiveAssignments--
	d.providers[id] = p
}

func (d *MemoryDirectory) Upsert(p model.Provider) {
	d.mu.Lock()
	d.providers[p.ID] = p
	d.mu.Unlock()
}
