// Package task defines the runtime task: a runnable plus the mutable
// scheduling state the core attaches to it. A runtime task is created by
// the runner before scheduling and mutated only while the state-machine
// mutex is held, except Handle, which the spawner sets exactly once
// during start.
package task

import (
	"time"

	"github.com/corewright/taskrunner/internal/identifier"
	"github.com/corewright/taskrunner/internal/runnable"
)

// Terminal finished-queue labels. An empty Label means the task exited
// normally; any other value identifies which error path produced it.
const (
	LabelFailedOnTriage = "FAILED ON TRIAGE"
	LabelFailedOnStart  = "FAILED ON START"
	LabelFailedTimeout  = "FAILED W/ TIMEOUT"
)

// Transient diagnostic statuses surfaced while a task is still live.
const (
	StatusWaiting = "WAITING"
)

// RuntimeTask is the per-task mutable handle the state machine and
// workers operate on.
type RuntimeTask struct {
	ID       identifier.ID
	Runnable *runnable.Runnable

	// Handle is opaque to the core: the spawner variant that started
	// this task stores whatever it needs to wait on or probe liveness
	// here (a process handle, a completion future, ...).
	Handle interface{}

	// Deadline is the absolute time after which the task is considered
	// timed out while in the started queue. Set once, when the task is
	// admitted into started.
	Deadline time.Time

	// Status is a transient diagnostic label (e.g. StatusWaiting) used
	// for observability; it does not drive scheduling decisions.
	Status string

	// Label is set exactly once, when the task is pushed into the
	// finished queue.
	Label string

	// StatusEndpoints lists the status-service endpoints this task must
	// report to once spawned.
	StatusEndpoints []string

	// Metadata is an opaque passthrough map, empty on creation. Neither
	// scheduling logic nor the logs or the admin API read it.
	Metadata map[string]string

	CreatedAt time.Time
}

// New creates a RuntimeTask for the given identifier and runnable.
func New(id identifier.ID, r *runnable.Runnable) *RuntimeTask {
	return &RuntimeTask{
		ID:        id,
		Runnable:  r,
		Metadata:  make(map[string]string),
		CreatedAt: time.Now().UTC(),
	}
}

// HumanID returns the task's human-readable identifier string.
func (rt *RuntimeTask) HumanID() string {
	return rt.ID.String()
}

// FilesystemID returns the task's filesystem-safe identifier string.
func (rt *RuntimeTask) FilesystemID() string {
	return rt.ID.FilesystemID()
}

// Expired reports whether now is past the task's deadline. A zero
// deadline (never set) is never expired.
func (rt *RuntimeTask) Expired(now time.Time) bool {
	return !rt.Deadline.IsZero() && now.After(rt.Deadline)
}
