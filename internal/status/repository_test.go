package status

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu       sync.Mutex
	starts   []string
	ends     []string
	elapseds []float64
}

func (o *recordingObserver) OnTestStart(id, outputDir string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.starts = append(o.starts, id)
}

func (o *recordingObserver) OnTestEnd(id, result string, elapsed float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ends = append(o.ends, id)
	o.elapseds = append(o.elapseds, elapsed)
}

func TestProcessMessage_RequiresID(t *testing.T) {
	repo := NewRepository(nil)
	err := repo.ProcessMessage(Record{Status: "running"})
	require.Error(t, err)
	var missing *MissingDataError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, "id", missing.Field)
}

func TestProcessMessage_StatusIsLatestByTimeNotArrival(t *testing.T) {
	repo := NewRepository(nil)

	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "running", Time: 5}))
	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "stale", Time: 2}))

	assert.Equal(t, "running", repo.GetTaskStatus("t1"), "an out-of-order older record must not overwrite the time-based latest status")
}

func TestGetLatestTaskData_IsLastAppendedNotLatestByTime(t *testing.T) {
	repo := NewRepository(nil)

	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "running", Time: 5}))
	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "stale", Time: 2}))

	rec, ok := repo.GetLatestTaskData("t1")
	require.True(t, ok)
	assert.Equal(t, "stale", rec.Status, "get_latest_task_data returns the last appended record, by arrival, not by time")
	assert.Equal(t, 2.0, rec.Time)
}

func TestProcessMessage_OutOfOrderStatus(t *testing.T) {
	// S5: three records for id X, with a finished message that arrives
	// last but whose time sorts between the other two — the repository
	// must keep all three in arrival order in the log but surface the
	// running record (time 150) as the latest status, while still
	// bucketing the result.
	repo := NewRepository(nil)

	require.NoError(t, repo.ProcessMessage(Record{ID: "x", Status: "started", Time: 100, OutputDir: "/tmp/x"}))
	require.NoError(t, repo.ProcessMessage(Record{ID: "x", Status: "running", Time: 150}))
	require.NoError(t, repo.ProcessMessage(Record{ID: "x", Status: "finished", Time: 120, Result: "pass"}))

	log := repo.GetTaskData("x")
	require.Len(t, log, 3)
	assert.Equal(t, "started", log[0].Status)
	assert.Equal(t, "running", log[1].Status)
	assert.Equal(t, "finished", log[2].Status)

	assert.Equal(t, "running", repo.GetTaskStatus("x"))

	stats := repo.ResultStats()
	assert.Equal(t, 1, stats["pass"])
}

func TestProcessMessage_MissingID(t *testing.T) {
	// S6: a record lacking an id is rejected and leaves no trace.
	repo := NewRepository(nil)
	err := repo.ProcessMessage(Record{Status: "running", Time: 1})
	require.Error(t, err)
	assert.Nil(t, repo.GetTaskData(""))
	assert.Empty(t, repo.ResultStats())
}

func TestProcessMessage_ReplayedTerminalRecordIsIdempotent(t *testing.T) {
	// Invariant 5: replaying the same terminal record twice must not
	// change result_stats.
	repo := NewRepository(nil)

	rec := Record{ID: "t1", Status: "finished", Time: 12.5, Result: "PASS"}
	require.NoError(t, repo.ProcessMessage(rec))
	require.NoError(t, repo.ProcessMessage(rec))
	require.NoError(t, repo.ProcessMessage(rec))

	stats := repo.ResultStats()
	assert.Equal(t, 1, stats["PASS"])
}

func TestProcessMessage_StartedRequiresOutputDir(t *testing.T) {
	repo := NewRepository(nil)
	err := repo.ProcessMessage(Record{ID: "t1", Status: "started", Time: 1})
	require.Error(t, err)
	var missing *MissingDataError
	assert.ErrorAs(t, err, &missing)
	assert.Equal(t, "output_dir", missing.Field)
	assert.Nil(t, repo.GetTaskData("t1"), "a rejected started record must not be appended to the task's log")
}

func TestProcessMessage_StartedRequiresObserverOnce(t *testing.T) {
	obs := &recordingObserver{}
	repo := NewRepository(obs)

	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "started", Time: 1, OutputDir: "/tmp/t1"}))
	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "started", Time: 1.1, OutputDir: "/tmp/t1"}))

	assert.Len(t, obs.starts, 1, "start notification must be idempotent per id")
}

func TestProcessMessage_FinishedUpdatesResultAndElapsed(t *testing.T) {
	obs := &recordingObserver{}
	repo := NewRepository(obs)

	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "started", Time: 10, OutputDir: "/tmp/t1"}))
	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "finished", Time: 12.5, Result: "PASS"}))

	stats := repo.ResultStats()
	assert.Equal(t, 1, stats["PASS"])
	assert.Len(t, obs.ends, 1)
	require.Len(t, obs.elapseds, 1)
	assert.Equal(t, 2.5, obs.elapseds[0])

	status := repo.GetTaskStatus("t1")
	assert.Equal(t, "finished", status)
}

func TestGetTaskData_UnknownIDReturnsNil(t *testing.T) {
	repo := NewRepository(nil)
	assert.Nil(t, repo.GetTaskData("nope"))
}

func TestGetTaskData_AccumulatesLog(t *testing.T) {
	repo := NewRepository(nil)
	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "started", Time: 1, OutputDir: "/tmp"}))
	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "running", Time: 2}))
	require.NoError(t, repo.ProcessMessage(Record{ID: "t1", Status: "finished", Time: 3, Result: "PASS"}))

	log := repo.GetTaskData("t1")
	require.Len(t, log, 3)
	assert.Equal(t, "started", log[0].Status)
	assert.Equal(t, "finished", log[2].Status)
}

func TestProcessMessage_ConcurrentSafety(t *testing.T) {
	repo := NewRepository(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := "t"
			_ = repo.ProcessMessage(Record{ID: id, Status: "running", Time: float64(n)})
		}(i)
	}
	wg.Wait()
	_, ok := repo.GetLatestTaskData("t")
	assert.True(t, ok)
}
