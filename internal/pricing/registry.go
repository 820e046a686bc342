package pricing

import (
	"cmp"
	"slices"
	"sync"
)

type registration[C any] struct {
	adapter Adapter[C]
	seq     uint64
}

// Registry holds the adapters of one entity kind keyed by adapter key. Run
// order is (OrderIndex, registration sequence) ascending.
type Registry[C any] struct {
	mu      sync.RWMutex
	seq     uint64
	entries map[string]registration[C]
}

// NewRegistry returns an empty registry.
func NewRegistry[C any]() *Registry[C] {
	return &Registry[C]{entries: make(map[string]registration[C])}
}

// Register adds a. Registering a key again replaces the adapter but keeps its
// original position among equal order indexes.
func (r *Registry[C]) Register(a Adapter[C]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.entries[a.Key()]; ok {
		r.entries[a.Key()] = registration[C]{adapter: a, seq: existing.seq}
		return
	}
	r.seq++
	r.entries[a.Key()] = registration[C]{adapter: a, seq: r.seq}
}

// Unregister removes the adapter registered under key and reports whether one existed.
func (r *Registry[C]) Unregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[key]; !ok {
		return false
	}
	delete(r.entries, key)
	return true
}

// Adapter returns the adapter registered under key.
func (r *Registry[C]) Adapter(key string) (Adapter[C], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.entries[key]
	if !ok {
		return nil, NewError(CodeAdapterNotFound, key, nil)
	}
	return entry.adapter, nil
}

// Adapters returns the adapters accepted by filter in run order. A nil filter
// accepts every adapter.
func (r *Registry[C]) Adapters(filter func(Adapter[C]) bool) []Adapter[C] {
	r.mu.RLock()
	entries := make([]registration[C], 0, len(r.entries))
	for _, entry := range r.entries {
		entries = append(entries, entry)
	}
	r.mu.RUnlock()

	slices.SortFunc(entries, func(a, b registration[C]) int {
		if c := cmp.Compare(a.adapter.OrderIndex(), b.adapter.OrderIndex()); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]Adapter[C], 0, len(entries))
	for _, entry := range entries {
		if filter == nil || filter(entry.adapter) {
			out = append(out, entry.adapter)
		}
	}
	return out
}
