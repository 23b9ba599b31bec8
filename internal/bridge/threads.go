package bridge

import "sync"

// threadSet tracks which external threads the bridge has joined on the
// current connection. It is mutated from the reconnect handler, the
// periodic rescan and event handlers, so every access takes the lock.
type threadSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newThreadSet() *threadSet {
	return &threadSet{ids: make(map[string]struct{})}
}

// Add inserts the id and reports whether it was newly added.
func (s *threadSet) Add(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

func (s *threadSet) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.ids[id]
	return ok
}

// Clear empties the set. Rooms are not preserved across reconnects by the
// external system, so the set is cleared before every rejoin pass.
func (s *threadSet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids = make(map[string]struct{})
}

func (s *threadSet) Snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	return out
}

func (s *threadSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.ids)
}
