package journey

import "sync"

// CandidateSet remembers candidate keys already seen so that a session can
// drop duplicate steps and journeys before they are persisted.
type CandidateSet struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewCandidateSet() *CandidateSet {
	return &CandidateSet{seen: make(map[string]struct{})}
}

// Add records key and reports whether it was new.
func (c *CandidateSet) Add(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.seen[key]; ok {
		return false
	}
	c.seen[key] = struct{}{}
	return true
}

func (c *CandidateSet) Contains(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.seen[key]
	return ok
}

func (c *CandidateSet) Remove(key string) {
	c.mu.Lock()
	delete(c.seen, key)
	c.mu.Unlock()
}

func (c *CandidateSet) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.seen)
}

// Unique filters steps to those whose candidate key has not been seen,
// recording the survivors.
func (c *CandidateSet) Unique(steps []*Step) []*Step {
	out := make([]*Step, 0, len(steps))
	for _, s := range steps {
		if s != nil && c.Add(s.CandidateKey()) {
			out = append(out, s)
		}
	}
	return out
}
