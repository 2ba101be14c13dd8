package server

import (
	"sort"
	"sync"
)

// Availability is the in-memory set of package names currently queryable.
// Readers are tool calls; writers are ingestion completion and admin removal.
type Availability struct {
	mu    sync.RWMutex
	names map[string]struct{}
}

// NewAvailability creates the set from an initial list of names.
func NewAvailability(names []string) *Availability {
	a := &Availability{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		a.names[n] = struct{}{}
	}
	return a
}

// Has reports whether name is queryable.
func (a *Availability) Has(name string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.names[name]
	return ok
}

// Add marks name queryable.
func (a *Availability) Add(name string) {
	a.mu.Lock()
	a.names[name] = struct{}{}
	a.mu.Unlock()
}

// Remove marks name no longer queryable.
func (a *Availability) Remove(name string) {
	a.mu.Lock()
	delete(a.names, name)
	a.mu.Unlock()
}

// List returns the queryable names in sorted order.
func (a *Availability) List() []string {
	a.mu.RLock()
	out := make([]string, 0, len(a.names))
	for n := range a.names {
		out = append(out, n)
	}
	a.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Replace swaps the whole set for names.
func (a *Availability) Replace(names []string) {
	fresh := make(map[string]struct{}, len(names))
	for _, n := range names {
		fresh[n] = struct{}{}
	}
	a.mu.Lock()
	a.names = fresh
	a.mu.Unlock()
}

// Len returns the current set size.
func (a *Availability) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.names)
}
