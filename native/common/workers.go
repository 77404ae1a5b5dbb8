package common

import (
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// WorkerSet records which worker contracts may invoke a strategy. The zero
// value is an empty set ready for use.
type WorkerSet struct {
	mu      sync.RWMutex
	members map[common.Address]struct{}
}

// Set adds or removes every address in workers. Duplicates are harmless and
// an empty slice changes nothing.
func (s *WorkerSet) Set(workers []common.Address, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.members == nil {
		s.members = make(map[common.Address]struct{}, len(workers))
	}
	for _, worker := range workers {
		if ok {
			s.members[worker] = struct{}{}
		} else {
			delete(s.members, worker)
		}
	}
}

// IsWhitelisted reports whether worker is currently approved.
func (s *WorkerSet) IsWhitelisted(worker common.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.members[worker]
	return ok
}

// List returns the approved workers in ascending byte order.
func (s *WorkerSet) List() []common.Address {
	s.mu.RLock()
	out := make([]common.Address, 0, len(s.members))
	for worker := range s.members {
		out = append(out, worker)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Cmp(out[j]) < 0 })
	return out
}
