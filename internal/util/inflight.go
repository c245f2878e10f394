package util

import "sync"

// Inflight tracks keys that have an operation in progress. It is the busy flag
// that keeps at most one request per entity in flight.
type Inflight struct {
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewInflight returns an empty tracker.
func NewInflight() *Inflight {
	return &Inflight{keys: make(map[string]struct{})}
}

// TryAcquire marks key busy. It returns false if key is already busy.
func (f *Inflight) TryAcquire(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, busy := f.keys[key]; busy {
		return false
	}
	f.keys[key] = struct{}{}
	return true
}

// Release clears the busy mark for key.
func (f *Inflight) Release(key string) {
	f.mu.Lock()
	delete(f.keys, key)
	f.mu.Unlock()
}

// Busy reports whether key currently has an operation in flight.
func (f *Inflight) Busy(key string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, busy := f.keys[key]
	return busy
}

// Keys returns a snapshot of the busy keys.
func (f *Inflight) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.keys))
	for k := range f.keys {
		out = append(out, k)
	}
	return out
}
