package common

import (
	"errors"
	"fmt"
	"sync"
)

var ErrModulePaused = errors.New("module paused")

type PauseView interface {
	IsPaused(module string) bool
}

// Guard returns ErrModulePaused, annotated with the module name, when the
// module is paused. A nil view never pauses anything.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return fmt.Errorf("%w: %s", ErrModulePaused, module)
	}
	return nil
}

// PauseSet is a mutable PauseView keyed by module name. The zero value pauses
// nothing and is ready for use.
type PauseSet struct {
	mu     sync.RWMutex
	paused map[string]bool
}

func NewPauseSet(modules ...string) *PauseSet {
	set := &PauseSet{paused: make(map[string]bool, len(modules))}
	for _, module := range modules {
		set.paused[module] = true
	}
	return set
}

func (s *PauseSet) IsPaused(module string) bool {
	if s == nil {
		return false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused[module]
}

func (s *PauseSet) SetPaused(module string, paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if paused {
		if s.paused == nil {
			s.paused = make(map[string]bool)
		}
		s.paused[module] = true
		return
	}
	delete(s.paused, module)
}
