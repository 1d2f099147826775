package spawner

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/metrics"
	"github.com/corewright/taskrunner/internal/task"
)

// killGrace is how long KillTask waits after SIGTERM before escalating
// to SIGKILL.
const killGrace = 5 * time.Second

// ProcessSpawner runs runnables as subprocesses, one exec.Cmd per task,
// in their own process group so KillTask can signal the whole tree.
type ProcessSpawner struct {
	// Kinds lists the runnable kinds this spawner claims. Defaults to
	// {"exec-test"} if empty.
	Kinds []string

	// OutputDir, if set, is the base directory under which per-task
	// stdout/stderr files are created (<OutputDir>/<task filesystem ID>/).
	// An empty OutputDir discards stdout/stderr.
	OutputDir string

	checkers map[string]RequirementChecker
}

// NewProcessSpawner builds a subprocess spawner handling kinds (defaults
// to {"exec-test"} when empty) writing captured output under outputDir.
func NewProcessSpawner(outputDir string, kinds ...string) *ProcessSpawner {
	if len(kinds) == 0 {
		kinds = []string{"exec-test"}
	}
	return &ProcessSpawner{Kinds: kinds, OutputDir: outputDir, checkers: defaultRequirementCheckers}
}

func (p *ProcessSpawner) Handles(kind string) bool {
	for _, k := range p.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type processHandle struct {
	cmd      *exec.Cmd
	done     chan struct{}
	waitOnce sync.Once
	exitErr  error
}

func (p *ProcessSpawner) SpawnTask(ctx context.Context, rt *task.RuntimeTask) bool {
	log := logger.WithTask(rt.HumanID())

	argv := append([]string{rt.Runnable.URI}, rt.Runnable.Args...)
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if p.OutputDir != "" {
		dir := filepath.Join(p.OutputDir, rt.FilesystemID())
		if err := os.MkdirAll(dir, 0o755); err == nil {
			if stdout, err := os.Create(filepath.Join(dir, "stdout")); err == nil {
				cmd.Stdout = stdout
			}
			if stderr, err := os.Create(filepath.Join(dir, "stderr")); err == nil {
				cmd.Stderr = stderr
			}
		}
	} else {
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrPermission) {
			log.Warn().Err(err).Str("argv0", argv[0]).Msg("spawn refused: binary not found or not executable")
			metrics.RecordSpawnFailure("process")
			return false
		}
		log.Error().Err(err).Msg("spawn failed")
		metrics.RecordSpawnFailure("process")
		return false
	}

	h := &processHandle{cmd: cmd, done: make(chan struct{})}
	rt.Handle = h
	go func() {
		h.exitErr = cmd.Wait()
		close(h.done)
	}()

	log.Debug().Int("pid", cmd.Process.Pid).Msg("task spawned")
	return true
}

func (p *ProcessSpawner) WaitTask(ctx context.Context, rt *task.RuntimeTask) {
	h, ok := rt.Handle.(*processHandle)
	if !ok {
		return
	}
	select {
	case <-h.done:
	case <-ctx.Done():
	}
}

func (p *ProcessSpawner) IsTaskAlive(rt *task.RuntimeTask) bool {
	h, ok := rt.Handle.(*processHandle)
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

func (p *ProcessSpawner) CheckTaskRequirements(rt *task.RuntimeTask) bool {
	return checkRequirements(rt, p.checkers)
}

// KillTask sends SIGTERM to the task's process group, escalating to
// SIGKILL after killGrace if the process is still alive.
func (p *ProcessSpawner) KillTask(rt *task.RuntimeTask) error {
	h, ok := rt.Handle.(*processHandle)
	if !ok || h.cmd.Process == nil {
		return nil
	}
	pgid := h.cmd.Process.Pid
	_ = syscall.Kill(-pgid, syscall.SIGTERM)

	select {
	case <-h.done:
		return nil
	case <-time.After(killGrace):
	}

	select {
	case <-h.done:
		return nil
	default:
		return syscall.Kill(-pgid, syscall.SIGKILL)
	}
}

var _ Spawner = (*ProcessSpawner)(nil)
var _ Killable = (*ProcessSpawner)(nil)
