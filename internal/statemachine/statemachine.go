// Package statemachine implements the five-queue structure representing
// the population of all tasks in one run: requested, triaging, ready,
// started, and finished. A runtime task appears in exactly one queue at
// any instant; all mutations happen under a single mutex held only
// across O(1) operations, never across a spawner or network call.
package statemachine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/corewright/taskrunner/internal/metrics"
	"github.com/corewright/taskrunner/internal/task"
)

// Queue names as reported to metrics and logs.
const (
	Requested = "requested"
	Triaging  = "triaging"
	Ready     = "ready"
	Started   = "started"
	Finished  = "finished"
)

// Machine holds the five queues and the single mutex protecting them.
type Machine struct {
	mu sync.Mutex

	requested []*task.RuntimeTask
	triaging  []*task.RuntimeTask
	ready     []*task.RuntimeTask
	started   []*task.RuntimeTask
	finished  []*task.RuntimeTask

	// paused is consulted by the bootstrap phase only; it never affects
	// tasks already past requested. Admin control surface, not part of
	// the core scheduling model.
	paused atomic.Bool
}

// New creates a Machine seeded with the given tasks, all placed in the
// requested queue, preserving the order they are given in.
func New(tasks []*task.RuntimeTask) *Machine {
	m := &Machine{
		requested: make([]*task.RuntimeTask, len(tasks)),
	}
	copy(m.requested, tasks)
	m.reportDepths()
	return m
}

// Total returns the conserved total task count across all five queues.
func (m *Machine) Total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requested) + len(m.triaging) + len(m.ready) + len(m.started) + len(m.finished)
}

// Complete reports true iff requested, triaging, ready, and started are
// all empty — i.e. every task has reached finished.
func (m *Machine) Complete() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requested) == 0 && len(m.triaging) == 0 && len(m.ready) == 0 && len(m.started) == 0
}

// Depths returns the current size of every queue, for metrics/logging.
func (m *Machine) Depths() map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return map[string]int{
		Requested: len(m.requested),
		Triaging:  len(m.triaging),
		Ready:     len(m.ready),
		Started:   len(m.started),
		Finished:  len(m.finished),
	}
}

// FinishedTasks returns a snapshot copy of the finished queue, in the order
// tasks entered it.
func (m *Machine) FinishedTasks() []*task.RuntimeTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*task.RuntimeTask, len(m.finished))
	copy(out, m.finished)
	return out
}

// popFront removes and returns the front element of queue, or nil if empty.
func popFront(queue *[]*task.RuntimeTask) *task.RuntimeTask {
	if len(*queue) == 0 {
		return nil
	}
	rt := (*queue)[0]
	*queue = (*queue)[1:]
	return rt
}

// BootstrapTriage moves one task from requested to triaging, provided
// triaging has room. Returns nil if requested is empty or triaging is full.
func (m *Machine) BootstrapTriage(maxTriaging int) *task.RuntimeTask {
	if m.paused.Load() {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.triaging) >= maxTriaging {
		return nil
	}
	rt := popFront(&m.requested)
	if rt == nil {
		return nil
	}
	m.triaging = append(m.triaging, rt)
	m.reportDepthsLocked()
	metrics.RecordTransition(Requested, Triaging)
	return rt
}

// PopTriaging removes and returns the front of triaging, or nil if empty.
func (m *Machine) PopTriaging() *task.RuntimeTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := popFront(&m.triaging)
	m.reportDepthsLocked()
	return rt
}

// ToReady pushes rt to the back of ready.
func (m *Machine) ToReady(rt *task.RuntimeTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append(m.ready, rt)
	m.reportDepthsLocked()
	metrics.RecordTransition(Triaging, Ready)
}

// ToFinished pushes rt to the back of finished (append-only) with the
// given diagnostic label ("" for a normal, unlabeled termination).
func (m *Machine) ToFinished(rt *task.RuntimeTask, fromQueue, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt.Label = label
	m.finished = append(m.finished, rt)
	m.reportDepthsLocked()
	metrics.RecordTransition(fromQueue, Finished)
	metrics.RecordFinished(label)
}

// PopReady removes and returns the front of ready, or nil if empty.
func (m *Machine) PopReady() *task.RuntimeTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := popFront(&m.ready)
	m.reportDepthsLocked()
	return rt
}

// AdmitStarted admits rt into started if there is room (len(started) <
// maxRunning); returns true on admission. On refusal, the caller is
// expected to front-insert rt back into ready itself, preserving FIFO for
// the rest of ready.
func (m *Machine) AdmitStarted(rt *task.RuntimeTask, maxRunning int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.started) >= maxRunning {
		return false
	}
	m.started = append(m.started, rt)
	m.reportDepthsLocked()
	metrics.RecordTransition(Ready, Started)
	return true
}

// ReadyPushFront re-enqueues rt at the front of ready (used for the
// WAITING case, when admission into started was refused).
func (m *Machine) ReadyPushFront(rt *task.RuntimeTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ready = append([]*task.RuntimeTask{rt}, m.ready...)
	m.reportDepthsLocked()
}

// PopStarted removes and returns the front of started, or nil if empty.
func (m *Machine) PopStarted() *task.RuntimeTask {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt := popFront(&m.started)
	m.reportDepthsLocked()
	return rt
}

// StartedPushFront re-enqueues rt at the front of started (the
// still-running case at the end of a monitor cycle).
func (m *Machine) StartedPushFront(rt *task.RuntimeTask) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append([]*task.RuntimeTask{rt}, m.started...)
	m.reportDepthsLocked()
}

// StartedLen reports the current size of the started queue. Exposed for
// the Cap invariant in property tests.
func (m *Machine) StartedLen() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.started)
}

// SetPaused controls whether BootstrapTriage admits new tasks out of
// requested. Pausing never touches tasks already in triaging, ready, or
// started; it only stops new ones from being picked up.
func (m *Machine) SetPaused(paused bool) {
	m.paused.Store(paused)
}

// Paused reports the current pause state.
func (m *Machine) Paused() bool {
	return m.paused.Load()
}

// ForceExpire sets the deadline of the named task, if it is currently in
// started, to now, so the next monitor cycle observes it as timed out.
// Returns false if no started task matches id.
func (m *Machine) ForceExpire(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rt := range m.started {
		if rt.HumanID() == id {
			rt.Deadline = time.Now()
			return true
		}
	}
	return false
}

func (m *Machine) reportDepthsLocked() {
	metrics.SetQueueDepth(Requested, float64(len(m.requested)))
	metrics.SetQueueDepth(Triaging, float64(len(m.triaging)))
	metrics.SetQueueDepth(Ready, float64(len(m.ready)))
	metrics.SetQueueDepth(Started, float64(len(m.started)))
	metrics.SetQueueDepth(Finished, float64(len(m.finished)))
}

func (m *Machine) reportDepths() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reportDepthsLocked()
}
