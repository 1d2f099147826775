package status

import (
	"sync"

	"github.com/corewright/taskrunner/internal/metrics"
)

// TestObserver is notified of task lifecycle events the repository
// derives from status records. Notifications are idempotent per
// (id, event-kind) pair per run; the repository enforces that, not the
// observer.
type TestObserver interface {
	OnTestStart(id, outputDir string)
	OnTestEnd(id, result string, elapsed float64)
}

// NoopObserver implements TestObserver with no-ops, for callers that
// don't need lifecycle notifications.
type NoopObserver struct{}

func (NoopObserver) OnTestStart(id, outputDir string)         {}
func (NoopObserver) OnTestEnd(id, result string, elapsed float64) {}

// Repository reconstructs task state from the stream of status
// records a suite's tasks report, indexed by timestamp rather than
// arrival order.
type Repository struct {
	mu sync.Mutex

	allData  map[string][]Record
	latest   map[string]Record
	byResult map[string]map[string]struct{}

	startNotified map[string]bool
	endNotified   map[string]bool

	observer TestObserver
}

// NewRepository creates an empty repository reporting lifecycle events
// to observer (NoopObserver{} if nil).
func NewRepository(observer TestObserver) *Repository {
	if observer == nil {
		observer = NoopObserver{}
	}
	return &Repository{
		allData:       make(map[string][]Record),
		latest:        make(map[string]Record),
		byResult:      make(map[string]map[string]struct{}),
		startNotified: make(map[string]bool),
		endNotified:   make(map[string]bool),
		observer:      observer,
	}
}

// ProcessMessage folds one record into the repository, in the order
// described by the wire protocol: update latest-by-time, append to the
// task's log, and fire lifecycle observers for "started"/"finished".
func (r *Repository) ProcessMessage(m Record) error {
	if m.ID == "" {
		return &MissingDataError{Field: "id"}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// A statusless or timeless frame (neither required by the wire
	// protocol beyond id) never becomes the authoritative latest status.
	if m.Status != "" && m.Time != 0 {
		if cur, ok := r.latest[m.ID]; !ok || m.Time > cur.Time {
			r.latest[m.ID] = m
		}
	}

	switch m.Status {
	case "started":
		if m.OutputDir == "" {
			return &MissingDataError{Field: "output_dir"}
		}
		r.allData[m.ID] = append(r.allData[m.ID], m)
		if !r.startNotified[m.ID] {
			r.startNotified[m.ID] = true
			r.observer.OnTestStart(m.ID, m.OutputDir)
		}
	case "finished":
		r.allData[m.ID] = append(r.allData[m.ID], m)
		if r.byResult[m.Result] == nil {
			r.byResult[m.Result] = make(map[string]struct{})
		}
		r.byResult[m.Result][m.ID] = struct{}{}
		metrics.SetResultCount(m.Result, float64(len(r.byResult[m.Result])))
		if !r.endNotified[m.ID] {
			r.endNotified[m.ID] = true
			elapsed := 0.0
			if log := r.allData[m.ID]; len(log) > 0 {
				elapsed = m.Time - log[0].Time
			}
			r.observer.OnTestEnd(m.ID, m.Result, elapsed)
		}
	default:
		r.allData[m.ID] = append(r.allData[m.ID], m)
	}

	return nil
}

// GetTaskData returns the full log for id, or nil if unknown.
func (r *Repository) GetTaskData(id string) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.allData[id]
	if !ok {
		return nil
	}
	out := make([]Record, len(log))
	copy(out, log)
	return out
}

// GetLatestTaskData returns the last record appended to id's log, in
// arrival order — not the time-based latest used by GetTaskStatus.
func (r *Repository) GetLatestTaskData(id string) (Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log, ok := r.allData[id]
	if !ok || len(log) == 0 {
		return Record{}, false
	}
	return log[len(log)-1], true
}

// GetTaskStatus returns latest[id].Status, or "" if unknown.
func (r *Repository) GetTaskStatus(id string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.latest[id].Status
}

// ResultStats returns the size of each result bucket.
func (r *Repository) ResultStats() map[string]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]int, len(r.byResult))
	for k, v := range r.byResult {
		out[k] = len(v)
	}
	return out
}
