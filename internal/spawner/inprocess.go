package spawner

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/metrics"
	"github.com/corewright/taskrunner/internal/task"
)

// Autorun is the callable an in-process runnable resolves to, looked up
// by the runnable's URI. It reports its own outcome instead of an exit
// code: a returned error finishes the task normally (the error is
// logged, not treated as FAILED ON START — that label is reserved for
// spawn-time admission failures).
type Autorun func(ctx context.Context) error

// InProcessSpawner runs runnables as goroutines against a registry of
// Autorun callables resolved by URI, modeled on the same
// handler-lookup-plus-panic-recovery shape used to dispatch task
// handlers elsewhere in this codebase.
type InProcessSpawner struct {
	Kinds     []string
	callables map[string]Autorun
	checkers  map[string]RequirementChecker
}

// NewInProcessSpawner builds an in-process spawner over callables,
// keyed by runnable URI, handling kinds (defaults to {"in-process"}).
func NewInProcessSpawner(callables map[string]Autorun, kinds ...string) *InProcessSpawner {
	if callables == nil {
		callables = make(map[string]Autorun)
	}
	if len(kinds) == 0 {
		kinds = []string{"in-process"}
	}
	return &InProcessSpawner{Kinds: kinds, callables: callables, checkers: defaultRequirementCheckers}
}

// Register adds or replaces the callable resolved for a given URI.
func (p *InProcessSpawner) Register(uri string, fn Autorun) {
	p.callables[uri] = fn
}

func (p *InProcessSpawner) Handles(kind string) bool {
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type futureHandle struct {
	done chan struct{}
	err  error
}

func (p *InProcessSpawner) SpawnTask(ctx context.Context, rt *task.RuntimeTask) bool {
	fn, ok := p.callables[rt.Runnable.URI]
	if !ok {
		logger.WithTask(rt.HumanID()).Warn().Str("uri", rt.Runnable.URI).Msg("no autorun registered for uri")
		metrics.RecordSpawnFailure("inprocess")
		return false
	}

	h := &futureHandle{done: make(chan struct{})}
	rt.Handle = h

	go func() {
		defer close(h.done)
		defer func() {
			if r := recover(); r != nil {
				log := logger.WithTask(rt.HumanID())
				log.Error().Interface("panic", r).Str("stack", string(debug.Stack())).Msg("autorun panicked")
				h.err = fmt.Errorf("autorun panicked: %v", r)
			}
		}()
		h.err = fn(ctx)
		if h.err != nil {
			log := logger.WithTask(rt.HumanID())
			log.Warn().Err(h.err).Msg("autorun returned an error")
		}
	}()

	return true
}

func (p *InProcessSpawner) WaitTask(ctx context.Context, rt *task.RuntimeTask) {
	h, ok := rt.Handle.(*futureHandle)
	if !ok {
		return
	}
	select {
	case <-h.done:
	case <-ctx.Done():
	}
}

func (p *InProcessSpawner) IsTaskAlive(rt *task.RuntimeTask) bool {
	h, ok := rt.Handle.(*futureHandle)
	if !ok {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

func (p *InProcessSpawner) CheckTaskRequirements(rt *task.RuntimeTask) bool {
	return checkRequirements(rt, p.checkers)
}

var _ Spawner = (*InProcessSpawner)(nil)
