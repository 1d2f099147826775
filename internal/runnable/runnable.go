// Package runnable defines the immutable description of a unit of work
// the core schedules but never interprets beyond dispatching it to a
// spawner that claims capability for its kind.
package runnable

import "fmt"

// Requirement is a single declared precondition a runnable asks the
// triage phase to verify before the task is admitted to the ready queue.
type Requirement struct {
	Kind string                 `json:"kind"`
	Args map[string]interface{} `json:"args,omitempty"`
}

// Runnable is an immutable description of what to run. The core never
// interprets Kind beyond dispatching it to a spawner that claims
// capability for it.
type Runnable struct {
	Kind         string                 `json:"kind"`
	URI          string                 `json:"uri"`
	Args         []string               `json:"args,omitempty"`
	Kwargs       map[string]string      `json:"kwargs,omitempty"`
	Tags         map[string]string      `json:"tags,omitempty"`
	Requirements []Requirement          `json:"requirements,omitempty"`
	Metadata     map[string]string      `json:"metadata,omitempty"`
	Config       map[string]interface{} `json:"config,omitempty"`
}

// New creates a Runnable of the given kind and URI.
func New(kind, uri string) *Runnable {
	return &Runnable{Kind: kind, URI: uri}
}

// String renders a human-readable one-line description, used in logs and
// the human form of a task identifier.
func (r *Runnable) String() string {
	if len(r.Args) == 0 {
		return fmt.Sprintf("%s:%s", r.Kind, r.URI)
	}
	return fmt.Sprintf("%s:%s %v", r.Kind, r.URI, r.Args)
}
