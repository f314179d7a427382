package poller

import "container/list"

// SeenCache bounds the set of alert ids the poller has already dispatched,
// so a re-fetch of the SIEM's recent-alerts window does not resubmit the
// same alert. The default implementation (lruSet) is process-local; a
// Redis-backed implementation can satisfy this interface for multi-replica
// deployments without changing poller logic.
type SeenCache interface {
	// Contains reports whether id has been seen.
	Contains(id string) bool
	// Add records id as seen, evicting the least-recently-added entry if
	// the cache is at capacity.
	Add(id string)
}

// lruSet is a bounded, insertion-order eviction set: the default SeenCache.
// Not safe for concurrent use — the poller owns it from a single goroutine.
type lruSet struct {
	capacity int
	index    map[string]*list.Element
	order    *list.List // front = oldest
}

// newLRUSet returns a SeenCache holding at most capacity entries.
func newLRUSet(capacity int) *lruSet {
	return &lruSet{
		capacity: capacity,
		index:    make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

func (s *lruSet) Contains(id string) bool {
	_, ok := s.index[id]
	return ok
}

func (s *lruSet) Add(id string) {
	if s.Contains(id) {
		return
	}
	elem := s.order.PushBack(id)
	s.index[id] = elem
	for s.order.Len() > s.capacity {
		oldest := s.order.Front()
		if oldest == nil {
			break
		}
		s.order.Remove(oldest)
		delete(s.index, oldest.Value.(string))
	}
}
