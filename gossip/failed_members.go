package gossip

import "sync"

// FailedMembers is the append-only set of endpoints this process removed for
// cause. A member in the set is never re-admitted for the rest of the run.
type FailedMembers struct {
	mu    sync.RWMutex
	set   map[EndPoint]struct{}
	order []EndPoint
}

// NewFailedMembers creates an empty set
func NewFailedMembers() *FailedMembers {
	return &FailedMembers{set: make(map[EndPoint]struct{})}
}

// Add records ep. It reports false if ep was already recorded.
func (f *FailedMembers) Add(ep EndPoint) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.set[ep]; ok {
		return false
	}
	f.set[ep] = struct{}{}
	f.order = append(f.order, ep)
	return true
}

// Contains reports whether ep has been recorded as failed
func (f *FailedMembers) Contains(ep EndPoint) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.set[ep]
	return ok
}

// List returns the failed endpoints in the order they were detected
func (f *FailedMembers) List() []EndPoint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]EndPoint, len(f.order))
	copy(out, f.order)
	return out
}

// Len returns the number of recorded failures
func (f *FailedMembers) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.order)
}

// Clear forgets every recorded failure
func (f *FailedMembers) Clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.set = make(map[EndPoint]struct{})
	f.order = nil
}
