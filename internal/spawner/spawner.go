// Package spawner implements the polymorphic capability set
// {spawn_task, wait_task, is_task_alive, check_task_requirements} over two
// variants: subprocess and in-process. A Registry picks the first
// variant whose declared kinds include the runnable's kind, built once
// at startup — there is no dynamic plugin discovery.
package spawner

import (
	"context"

	"github.com/corewright/taskrunner/internal/task"
)

// Spawner is the capability set a runnable's kind is dispatched to.
type Spawner interface {
	// Handles reports whether this variant can run the given runnable kind.
	Handles(kind string) bool

	// SpawnTask starts rt and stores whatever handle WaitTask/IsTaskAlive
	// need on rt.Handle. Returns false on "binary not found" or
	// "permission denied" style failures; the caller finishes the task
	// FAILED ON START in that case. Must not be called twice for the
	// same task — the state machine guarantees this never happens.
	SpawnTask(ctx context.Context, rt *task.RuntimeTask) bool

	// WaitTask blocks cooperatively until rt's handle has completed.
	// Does not consume the handle: repeated calls return immediately
	// once the task has finished.
	WaitTask(ctx context.Context, rt *task.RuntimeTask)

	// IsTaskAlive is the sole source of truth for liveness; the state
	// machine never infers it from timers alone.
	IsTaskAlive(rt *task.RuntimeTask) bool

	// CheckTaskRequirements evaluates rt.Runnable.Requirements. An empty
	// list passes. An unrecognized requirement kind fails.
	CheckTaskRequirements(rt *task.RuntimeTask) bool
}

// Killable is implemented by spawner variants that can forcibly
// terminate a still-running task ahead of its natural exit. Not every
// variant needs it, so it is a separate, optional interface.
type Killable interface {
	KillTask(rt *task.RuntimeTask) error
}

// Registry holds the statically-registered spawner variants, in
// registration order. Dispatch picks the first one whose Handles
// reports true for the runnable's kind.
type Registry struct {
	spawners []Spawner
}

// NewRegistry builds a registry from the given variants, in priority order.
func NewRegistry(spawners ...Spawner) *Registry {
	return &Registry{spawners: spawners}
}

// Select returns the spawner responsible for kind, or false if none
// among the registered variants declares it.
func (r *Registry) Select(kind string) (Spawner, bool) {
	for _, s := range r.spawners {
		if s.Handles(kind) {
			return s, true
		}
	}
	return nil, false
}
