package runner

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/corewright/taskrunner/internal/logger"
	"github.com/corewright/taskrunner/internal/statemachine"
	"github.com/corewright/taskrunner/internal/status"
	"github.com/corewright/taskrunner/internal/task"
)

// collate iterates finished in reverse (giving the last-terminated
// tasks' status records more settling time before this runs) and
// writes the per-task output directory layout: stdout, stderr, data,
// and an optional debug log of every status record received.
func (r *Runner) collate(runID string, machine *statemachine.Machine, repo *status.Repository, outcome Outcome) *Summary {
	log := logger.WithRun(runID)
	finished := machine.FinishedTasks()

	summary := &Summary{
		RunID:       runID,
		Outcome:     outcome,
		Total:       machine.Total(),
		ResultStats: repo.ResultStats(),
		Tasks:       make([]TaskResult, 0, len(finished)),
	}

	for i := len(finished) - 1; i >= 0; i-- {
		rt := finished[i]
		tr := r.collateOne(rt, repo, log)
		summary.Tasks = append(summary.Tasks, tr)
	}

	return summary
}

func (r *Runner) collateOne(rt *task.RuntimeTask, repo *status.Repository, log zerolog.Logger) TaskResult {
	recordLog := repo.GetTaskData(rt.HumanID())

	tr := TaskResult{
		ID:     rt.HumanID(),
		Status: repo.GetTaskStatus(rt.HumanID()),
		Label:  rt.Label,
	}

	if len(recordLog) > 0 {
		tr.TimeStart = recordLog[0].Time
		tr.TimeEnd = recordLog[len(recordLog)-1].Time
		tr.TimeElapsed = tr.TimeEnd - tr.TimeStart
	}
	// The terminal result comes from the "finished" record itself, not
	// from whichever record is latest by arrival or by time — a
	// trailing "running" record with no result must never blank out an
	// already-reported pass/fail.
	for _, rec := range recordLog {
		if rec.Status == "finished" {
			tr.Result = rec.Result
		}
	}

	// A labeled finish with no repository record at all (e.g. FAILED ON
	// TRIAGE, which never reached a spawner) gets a synthesized result.
	if tr.Result == "" && rt.Label != "" {
		tr.Result = synthesizedResult(rt.Label)
	}

	if r.cfg.Runner.LogDir != "" {
		if err := r.writeOutputFiles(rt, recordLog); err != nil {
			log.Warn().Err(err).Str("task", rt.HumanID()).Msg("failed to write output files")
		}
	}

	return tr
}

func synthesizedResult(label string) string {
	switch label {
	case task.LabelFailedOnTriage, task.LabelFailedOnStart:
		return "error"
	case task.LabelFailedTimeout:
		return "fail"
	default:
		return "error"
	}
}

// writeOutputFiles lays out <logdir>/test-results/<task-fs-id>/: data
// (the task's advertised output directory), debug (the full status
// record log), and empty stdout/stderr placeholders if the spawner
// variant didn't already populate them. The process spawner must be
// configured with <logdir>/test-results as its own output root (see
// cmd/runner's buildRegistry) so its captured stdout/stderr land here
// directly instead of being shadowed by these placeholders.
func (r *Runner) writeOutputFiles(rt *task.RuntimeTask, recordLog []status.Record) error {
	dir := filepath.Join(r.cfg.Runner.LogDir, "test-results", rt.FilesystemID())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	outputDir := ""
	for _, rec := range recordLog {
		if rec.OutputDir != "" {
			outputDir = rec.OutputDir
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "data"), []byte(outputDir+"\n"), 0o644); err != nil {
		return err
	}

	if len(recordLog) > 0 {
		var buf bytes.Buffer
		for _, rec := range recordLog {
			buf.Write(rec.Extra)
			buf.WriteByte('\n')
		}
		if err := os.WriteFile(filepath.Join(dir, "debug"), buf.Bytes(), 0o644); err != nil {
			return err
		}
	}

	for _, name := range []string{"stdout", "stderr"} {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.Create(path)
			if err != nil {
				return err
			}
			f.Close()
		}
	}
	return nil
}
