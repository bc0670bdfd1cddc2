package gatt

import (
	"slices"
	"sync"
)

// connRegistry tracks the connected centrals. It is mutated from the
// radio's event context and read by application calls, so every method
// holds mu for the map access only.
type connRegistry struct {
	mu sync.Mutex
	m  map[ConnHandle]struct{}
}

func newConnRegistry() *connRegistry {
	return &connRegistry{m: make(map[ConnHandle]struct{})}
}

func (r *connRegistry) add(h ConnHandle) {
	r.mu.Lock()
	r.m[h] = struct{}{}
	r.mu.Unlock()
}

// remove reports whether h was registered. Removing an absent handle is
// a no-op.
func (r *connRegistry) remove(h ConnHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.m[h]; !ok {
		return false
	}
	delete(r.m, h)
	return true
}

func (r *connRegistry) contains(h ConnHandle) bool {
	r.mu.Lock()
	_, ok := r.m[h]
	r.mu.Unlock()
	return ok
}

func (r *connRegistry) count() int {
	r.mu.Lock()
	n := len(r.m)
	r.mu.Unlock()
	return n
}

// snapshot returns the registered handles in ascending order.
func (r *connRegistry) snapshot() []ConnHandle {
	r.mu.Lock()
	hh := make([]ConnHandle, 0, len(r.m))
	for h := range r.m {
		hh = append(hh, h)
	}
	r.mu.Unlock()
	slices.Sort(hh)
	return hh
}

// drain empties the registry and returns what it held, in ascending order.
// The caller disconnects them without holding the lock.
func (r *connRegistry) drain() []ConnHandle {
	r.mu.Lock()
	hh := make([]ConnHandle, 0, len(r.m))
	for h := range r.m {
		hh = append(hh, h)
	}
	clear(r.m)
	r.mu.Unlock()
	slices.Sort(hh)
	return hh
}
