// Package runner implements run_suite: the orchestrator that assigns
// task identifiers, starts the status server, seeds the state machine,
// drives it to completion with a pool of workers, and collates results
// into the per-task output directory layout.
package runner

import (
	"context"
	"math/rand"
	"runtime"
	"time"

	"github.com/corewright/taskrunner/internal/config"
	"github.com/corewright/taskrunner/internal/identifier"
	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/runnable"
	"github.com/corewright/taskrunner/internal/spawner"
	"github.com/corewright/taskrunner/internal/statemachine"
	"github.com/corewright/taskrunner/internal/status"
	"github.com/corewright/taskrunner/internal/task"
	"github.com/corewright/taskrunner/internal/worker"
)

// Outcome is the terminal disposition of a run.
type Outcome string

const (
	OutcomeCompleted   Outcome = "COMPLETED"
	OutcomeInterrupted Outcome = "INTERRUPTED"
)

// TaskResult is one task's collated record, surfaced in Summary.
type TaskResult struct {
	ID          string
	Status      string
	Label       string
	TimeStart   float64
	TimeEnd     float64
	TimeElapsed float64
	Result      string
}

// Summary is returned by RunSuite.
type Summary struct {
	RunID      string
	Outcome    Outcome
	Total      int
	ResultStats map[string]int
	Tasks      []TaskResult
}

// Suite is the input to RunSuite: a suite name plus the runnables to
// schedule.
type Suite struct {
	Name      string
	Runnables []*runnable.Runnable
}

// Runner owns the pieces shared across a run: configuration and the
// static spawner registry selected once at startup.
type Runner struct {
	cfg      *config.Config
	registry *spawner.Registry
	observer status.TestObserver
	live     *LiveRegistry
}

// New builds a Runner against the given config and spawner registry.
// observer may be nil (NoopObserver is used).
func New(cfg *config.Config, registry *spawner.Registry, observer status.TestObserver) *Runner {
	return &Runner{cfg: cfg, registry: registry, observer: observer}
}

// WithLive attaches a LiveRegistry that RunSuite publishes its machine
// and status repository to for the duration of the run, for the admin
// introspection surface to read. Optional: a Runner with no live
// registry attached behaves exactly as before.
func (r *Runner) WithLive(live *LiveRegistry) *Runner {
	r.live = live
	return r
}

// RunSuite executes the nine-step orchestration described for run_suite:
// assign identifiers, attach the status endpoint, start the status
// server, optionally shuffle, build the state machine, launch workers,
// await completion (or job-timeout/interruption), settle, and collate.
func (r *Runner) RunSuite(ctx context.Context, runID string, suite Suite) (*Summary, error) {
	log := logger.WithRun(runID)

	tasks := r.seedTasks(suite)
	repo := status.NewRepository(r.observer)
	srv := status.NewServer(repo)
	if err := srv.Start(r.cfg.Status.ServerURI); err != nil {
		return nil, err
	}
	defer srv.Stop(context.Background())

	endpoint := srv.Addr().String()
	for _, rt := range tasks {
		rt.StatusEndpoints = append(rt.StatusEndpoints, endpoint)
	}

	if r.cfg.Runner.Shuffle {
		shuffleTasks(tasks, rand.New(rand.NewSource(time.Now().UnixNano())))
	}

	machine := statemachine.New(tasks)

	if r.live != nil {
		r.live.set(&LiveRun{RunID: runID, Machine: machine, Repo: repo})
		defer r.live.clear()
	}

	maxRunning := r.cfg.Runner.MaxParallelTasks
	if maxRunning <= 0 {
		maxRunning = runtime.NumCPU()
	}
	wcfg := worker.Config{
		MaxTriaging:    r.cfg.Runner.MaxTriaging,
		MaxRunning:     maxRunning,
		PerTaskTimeout: r.cfg.Runner.PerTaskTimeout,
	}
	pool := worker.NewPool(machine, r.registry, wcfg)

	runCtx := ctx
	var cancel context.CancelFunc
	if r.cfg.Runner.JobTimeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, r.cfg.Runner.JobTimeout)
		defer cancel()
	}

	pool.Start(runCtx)
	outcome := r.await(runCtx, pool)
	if outcome == OutcomeInterrupted {
		log.Warn().Msg("run interrupted before all tasks reached finished")
	}

	time.Sleep(r.cfg.Runner.CollationDelay)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), 2*time.Second)
	_ = srv.Stop(drainCtx)
	drainCancel()

	summary := r.collate(runID, machine, repo, outcome)
	return summary, nil
}

func (r *Runner) seedTasks(suite Suite) []*task.RuntimeTask {
	total := len(suite.Runnables)
	tasks := make([]*task.RuntimeTask, total)
	for i, rn := range suite.Runnables {
		id := identifier.New(suite.Name, i+1, total).WithURI(rn.URI)
		tasks[i] = task.New(id, rn)
	}
	return tasks
}

// await waits for the worker pool to drain (every worker exited because
// the machine completed) or the context to end, whichever comes first.
func (r *Runner) await(ctx context.Context, pool *worker.Pool) Outcome {
	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		return OutcomeCompleted
	case <-ctx.Done():
		pool.Stop()
		return OutcomeInterrupted
	}
}

func shuffleTasks(tasks []*task.RuntimeTask, rng *rand.Rand) {
	rng.Shuffle(len(tasks), func(i, j int) {
		tasks[i], tasks[j] = tasks[j], tasks[i]
	})
}
