// Package worker implements the four-phase cooperative scheduling loop
// driving tasks through the state machine's five queues: bootstrap,
// triage, start, monitor. The runner spawns max_running+2 of these
// sharing one Machine and one Spawner; there is no per-task ownership,
// so any worker may pick up any task.
package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/metrics"
	"github.com/corewright/taskrunner/internal/spawner"
	"github.com/corewright/taskrunner/internal/statemachine"
	"github.com/corewright/taskrunner/internal/task"
)

// idleBackoff is how long a worker sleeps after a cycle where every
// phase found its queue empty, so an idle pool doesn't spin.
const idleBackoff = 20 * time.Millisecond

// Config carries the admission-control knobs every worker in a pool
// shares.
type Config struct {
	MaxTriaging    int
	MaxRunning     int
	PerTaskTimeout time.Duration
}

// Pool runs N = MaxRunning+2 workers against a shared Machine and
// Spawner until the machine reports complete.
type Pool struct {
	machine  *statemachine.Machine
	registry *spawner.Registry
	cfg      Config

	wg     sync.WaitGroup
	stopCh chan struct{}
}

// NewPool builds a worker pool. Start launches N = cfg.MaxRunning+2
// workers (see Config.N), per the scheduling model's stated rationale: two
// extra workers keep bootstrap/triage/monitor turning even when every
// running slot is occupied by a long spawn call.
func NewPool(machine *statemachine.Machine, registry *spawner.Registry, cfg Config) *Pool {
	return &Pool{
		machine:  machine,
		registry: registry,
		cfg:      cfg,
		stopCh:   make(chan struct{}),
	}
}

// N reports the worker count this pool's config implies.
func (cfg Config) N() int {
	return cfg.MaxRunning + 2
}

// Start launches the pool's workers in the background and returns at
// once. Each worker loops until ctx is done, Stop is called, or the
// machine completes; Wait blocks until all of them have exited.
func (p *Pool) Start(ctx context.Context) {
	n := p.cfg.N()
	metrics.SetActiveWorkers(float64(n))
	for i := 0; i < n; i++ {
		p.wg.Add(1)
		go p.runWorker(ctx, i)
	}
}

// Stop signals every worker to exit its loop and waits for them.
func (p *Pool) Stop() {
	close(p.stopCh)
	p.wg.Wait()
	metrics.SetActiveWorkers(0)
}

// Wait blocks until every worker has exited (machine complete, stop
// signaled, or ctx done), without itself signaling a stop.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) runWorker(ctx context.Context, n int) {
	defer p.wg.Done()

	id := fmt.Sprintf("worker-%d", n)
	log := logger.WithWorker(id)
	log.Debug().Msg("worker started")

	for !p.machine.Complete() {
		select {
		case <-ctx.Done():
			log.Debug().Msg("worker stopping: context done")
			return
		case <-p.stopCh:
			log.Debug().Msg("worker stopping: pool stopped")
			return
		default:
		}

		progressed := false
		progressed = p.bootstrap(log) || progressed
		progressed = p.triage(ctx, log) || progressed
		progressed = p.start(ctx, log) || progressed
		progressed = p.monitor(ctx, log) || progressed

		if !progressed {
			select {
			case <-time.After(idleBackoff):
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			}
		}
	}

	log.Debug().Msg("worker exiting: machine complete")
}

// bootstrap: requested -> triaging, capped at MaxTriaging.
func (p *Pool) bootstrap(log zerolog.Logger) bool {
	rt := p.machine.BootstrapTriage(p.cfg.MaxTriaging)
	if rt == nil {
		return false
	}
	log.Debug().Str("task", rt.HumanID()).Msg("bootstrapped into triage")
	return true
}

// triage: triaging -> ready on requirements pass, else finished
// FAILED ON TRIAGE. check_task_requirements runs outside the mutex.
func (p *Pool) triage(ctx context.Context, log zerolog.Logger) bool {
	rt := p.machine.PopTriaging()
	if rt == nil {
		return false
	}

	sp, ok := p.registry.Select(rt.Runnable.Kind)
	if !ok {
		log.Error().Str("task", rt.HumanID()).Str("kind", rt.Runnable.Kind).Msg("no spawner registered for kind")
		p.machine.ToFinished(rt, statemachine.Triaging, task.LabelFailedOnTriage)
		return true
	}

	if sp.CheckTaskRequirements(rt) {
		p.machine.ToReady(rt)
	} else {
		log.Warn().Str("task", rt.HumanID()).Msg("task failed triage")
		metrics.RecordTriageFailure()
		p.machine.ToFinished(rt, statemachine.Triaging, task.LabelFailedOnTriage)
	}
	return true
}

// start: ready -> started if there's room, else WAITING front-insert
// back into ready. spawn_task runs outside the mutex.
func (p *Pool) start(ctx context.Context, log zerolog.Logger) bool {
	rt := p.machine.PopReady()
	if rt == nil {
		return false
	}

	if p.machine.StartedLen() >= p.cfg.MaxRunning {
		rt.Status = task.StatusWaiting
		p.machine.ReadyPushFront(rt)
		return true
	}

	sp, ok := p.registry.Select(rt.Runnable.Kind)
	if !ok {
		log.Error().Str("task", rt.HumanID()).Str("kind", rt.Runnable.Kind).Msg("no spawner registered for kind")
		p.machine.ToFinished(rt, statemachine.Ready, task.LabelFailedOnStart)
		return true
	}

	// A task that lost the admission race below already holds a live
	// handle; it is admitted on a later cycle without a second spawn.
	if rt.Handle == nil && !sp.SpawnTask(ctx, rt) {
		p.machine.ToFinished(rt, statemachine.Ready, task.LabelFailedOnStart)
		return true
	}

	timeout := p.cfg.PerTaskTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	rt.Deadline = time.Now().Add(timeout)
	rt.Status = ""

	if !p.machine.AdmitStarted(rt, p.cfg.MaxRunning) {
		// Lost the race for a started slot between the length check above
		// and spawning; fall back to the front of ready, keeping the
		// now-live handle on rt so the task is not spawned again.
		rt.Status = task.StatusWaiting
		p.machine.ReadyPushFront(rt)
		return true
	}

	log.Debug().Str("task", rt.HumanID()).Time("deadline", rt.Deadline).Msg("task started")
	return true
}

// monitor: started -> finished (timeout/normal) or front-insert back
// into started (still running). wait_task runs outside the mutex.
func (p *Pool) monitor(ctx context.Context, log zerolog.Logger) bool {
	rt := p.machine.PopStarted()
	if rt == nil {
		return false
	}

	sp, ok := p.registry.Select(rt.Runnable.Kind)
	if !ok {
		log.Error().Str("task", rt.HumanID()).Msg("no spawner registered for kind during monitor")
		p.machine.ToFinished(rt, statemachine.Started, task.LabelFailedTimeout)
		return true
	}

	waitCtx := ctx
	if !rt.Deadline.IsZero() {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithDeadline(ctx, rt.Deadline)
		defer cancel()
	}
	sp.WaitTask(waitCtx, rt)

	now := time.Now()
	switch {
	case rt.Expired(now):
		log.Warn().Str("task", rt.HumanID()).Msg("task timed out")
		metrics.RecordTaskTimeout()
		if killer, ok := sp.(spawner.Killable); ok {
			if err := killer.KillTask(rt); err != nil {
				log.Warn().Err(err).Str("task", rt.HumanID()).Msg("failed to kill timed-out task")
			}
		}
		p.machine.ToFinished(rt, statemachine.Started, task.LabelFailedTimeout)
	case !sp.IsTaskAlive(rt):
		log.Debug().Str("task", rt.HumanID()).Msg("task finished normally")
		p.machine.ToFinished(rt, statemachine.Started, "")
	default:
		p.machine.StartedPushFront(rt)
	}
	return true
}
