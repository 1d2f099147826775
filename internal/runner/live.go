package runner

import (
	"sync"

	"github.com/corewright/taskrunner/internal/statemachine"
	"github.com/corewright/taskrunner/internal/status"
)

// LiveRun is a snapshot of the run currently in progress, published by
// RunSuite for the admin introspection surface to read. It is never
// consulted by scheduling logic.
type LiveRun struct {
	RunID   string
	Machine *statemachine.Machine
	Repo    *status.Repository
}

// LiveRegistry holds the currently-executing run, if any. A nil
// *LiveRegistry is never dereferenced by Runner: attaching one is
// optional, for callers that want admin introspection.
type LiveRegistry struct {
	mu      sync.RWMutex
	current *LiveRun
}

// NewLiveRegistry creates an empty registry.
func NewLiveRegistry() *LiveRegistry {
	return &LiveRegistry{}
}

// Current returns the in-progress run, or nil if none is running or no
// registry was attached at all.
func (l *LiveRegistry) Current() *LiveRun {
	if l == nil {
		return nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

func (l *LiveRegistry) set(lr *LiveRun) {
	l.mu.Lock()
	l.current = lr
	l.mu.Unlock()
}

func (l *LiveRegistry) clear() {
	l.mu.Lock()
	l.current = nil
	l.mu.Unlock()
}
