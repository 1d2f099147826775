package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corewright/taskrunner/internal/identifier"
	"github.com/corewright/taskrunner/internal/runnable"
	"github.com/corewright/taskrunner/internal/spawner"
	"github.com/corewright/taskrunner/internal/statemachine"
	"github.com/corewright/taskrunner/internal/task"
)

// fakeSpawner is an in-memory Spawner stand-in: every task "completes"
// after a configurable number of WaitTask calls, with no real process
// or goroutine involved.
type fakeSpawner struct {
	mu           sync.Mutex
	waitsUntilDone map[string]int
	requirementsFail map[string]bool
	spawnFail    map[string]bool
	kinds        []string
}

func newFakeSpawner(kinds ...string) *fakeSpawner {
	return &fakeSpawner{
		waitsUntilDone:   make(map[string]int),
		requirementsFail: make(map[string]bool),
		spawnFail:        make(map[string]bool),
		kinds:            kinds,
	}
}

func (f *fakeSpawner) Handles(kind string) bool {
	for _, k := range f.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

type fakeHandle struct {
	mu   sync.Mutex
	left int
}

func (f *fakeSpawner) SpawnTask(ctx context.Context, rt *task.RuntimeTask) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.spawnFail[rt.HumanID()] {
		return false
	}
	left := f.waitsUntilDone[rt.HumanID()]
	rt.Handle = &fakeHandle{left: left}
	return true
}

func (f *fakeSpawner) WaitTask(ctx context.Context, rt *task.RuntimeTask) {
	h, ok := rt.Handle.(*fakeHandle)
	if !ok {
		return
	}
	h.mu.Lock()
	if h.left > 0 {
		h.left--
	}
	h.mu.Unlock()
}

func (f *fakeSpawner) IsTaskAlive(rt *task.RuntimeTask) bool {
	h, ok := rt.Handle.(*fakeHandle)
	if !ok {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.left > 0
}

func (f *fakeSpawner) CheckTaskRequirements(rt *task.RuntimeTask) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.requirementsFail[rt.HumanID()]
}

var _ spawner.Spawner = (*fakeSpawner)(nil)

func makeTasks(n int, kind string) []*task.RuntimeTask {
	tasks := make([]*task.RuntimeTask, n)
	for i := 0; i < n; i++ {
		id := identifier.New("suite", i+1, n).WithURI("uri")
		tasks[i] = task.New(id, runnable.New(kind, "uri"))
	}
	return tasks
}

func TestPool_DrivesAllTasksToFinished(t *testing.T) {
	tasks := makeTasks(10, "fake")
	m := statemachine.New(tasks)

	fs := newFakeSpawner("fake")
	reg := spawner.NewRegistry(fs)

	pool := NewPool(m, reg, Config{MaxTriaging: 8, MaxRunning: 3, PerTaskTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool.Start(ctx)
	waitComplete(t, m, 3*time.Second)
	pool.Stop()

	depths := m.Depths()
	assert.Equal(t, 10, depths[statemachine.Finished])
	for _, rt := range m.FinishedTasks() {
		assert.Empty(t, rt.Label, "fake spawner tasks should finish normally")
	}
}

func TestPool_TriageFailureLabelsFinished(t *testing.T) {
	tasks := makeTasks(1, "fake")
	m := statemachine.New(tasks)

	fs := newFakeSpawner("fake")
	fs.requirementsFail[tasks[0].HumanID()] = true
	reg := spawner.NewRegistry(fs)

	pool := NewPool(m, reg, Config{MaxTriaging: 8, MaxRunning: 3, PerTaskTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Start(ctx)
	waitComplete(t, m, 2*time.Second)
	pool.Stop()

	finished := m.FinishedTasks()
	require.Len(t, finished, 1)
	assert.Equal(t, task.LabelFailedOnTriage, finished[0].Label)
}

func TestPool_SpawnFailureLabelsFailedOnStart(t *testing.T) {
	tasks := makeTasks(1, "fake")
	m := statemachine.New(tasks)

	fs := newFakeSpawner("fake")
	fs.spawnFail[tasks[0].HumanID()] = true
	reg := spawner.NewRegistry(fs)

	pool := NewPool(m, reg, Config{MaxTriaging: 8, MaxRunning: 3, PerTaskTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Start(ctx)
	waitComplete(t, m, 2*time.Second)
	pool.Stop()

	finished := m.FinishedTasks()
	require.Len(t, finished, 1)
	assert.Equal(t, task.LabelFailedOnStart, finished[0].Label)
}

func TestPool_UnknownKindFailsOnTriage(t *testing.T) {
	tasks := makeTasks(1, "mystery-kind")
	m := statemachine.New(tasks)

	reg := spawner.NewRegistry(newFakeSpawner("fake"))

	pool := NewPool(m, reg, Config{MaxTriaging: 8, MaxRunning: 3, PerTaskTimeout: time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	pool.Start(ctx)
	waitComplete(t, m, 2*time.Second)
	pool.Stop()

	finished := m.FinishedTasks()
	require.Len(t, finished, 1)
	assert.Equal(t, task.LabelFailedOnTriage, finished[0].Label)
}

func TestPool_NeverExceedsMaxRunning(t *testing.T) {
	tasks := makeTasks(20, "fake")
	m := statemachine.New(tasks)

	fs := newFakeSpawner("fake")
	for _, rt := range tasks {
		fs.waitsUntilDone[rt.HumanID()] = 3
	}
	reg := spawner.NewRegistry(fs)

	pool := NewPool(m, reg, Config{MaxTriaging: 8, MaxRunning: 4, PerTaskTimeout: 5 * time.Second})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool.Start(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		assert.LessOrEqual(t, m.StartedLen(), 4)
		time.Sleep(5 * time.Millisecond)
	}

	waitComplete(t, m, 3*time.Second)
	pool.Stop()
}

// blockingSpawner simulates a task whose process keeps running far past
// its per-task deadline: WaitTask blocks on ctx alone, never on its own
// completion, standing in for a real subprocess that outlives the
// worker's patience.
type blockingSpawner struct {
	kinds []string
}

func (b *blockingSpawner) Handles(kind string) bool {
	for _, k := range b.kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func (b *blockingSpawner) SpawnTask(ctx context.Context, rt *task.RuntimeTask) bool {
	rt.Handle = struct{}{}
	return true
}

func (b *blockingSpawner) WaitTask(ctx context.Context, rt *task.RuntimeTask) {
	<-ctx.Done()
}

func (b *blockingSpawner) IsTaskAlive(rt *task.RuntimeTask) bool {
	return true
}

func (b *blockingSpawner) CheckTaskRequirements(rt *task.RuntimeTask) bool {
	return true
}

var _ spawner.Spawner = (*blockingSpawner)(nil)

// TestPool_TimeoutDetectedPromptly exercises S4: a task whose underlying
// work would run far longer than its per-task deadline must still land
// in finished/FAILED W/ TIMEOUT shortly after the deadline elapses, not
// after the work itself would have completed.
func TestPool_TimeoutDetectedPromptly(t *testing.T) {
	tasks := makeTasks(2, "slow")
	m := statemachine.New(tasks)

	reg := spawner.NewRegistry(&blockingSpawner{kinds: []string{"slow"}})

	pool := NewPool(m, reg, Config{MaxTriaging: 8, MaxRunning: 2, PerTaskTimeout: 300 * time.Millisecond})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	pool.Start(ctx)
	waitComplete(t, m, 2*time.Second)
	elapsed := time.Since(start)
	pool.Stop()

	assert.Less(t, elapsed, 2*time.Second, "timeout should be detected well before the 10s job context expires")

	finished := m.FinishedTasks()
	require.Len(t, finished, 2)
	for _, rt := range finished {
		assert.Equal(t, task.LabelFailedTimeout, rt.Label)
	}
}

func waitComplete(t *testing.T, m *statemachine.Machine, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if m.Complete() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("machine did not reach complete within %s, depths=%v", timeout, m.Depths())
}
