package pipeline

import (
	"sync"
	"time"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

// Tracker owns the PipelineRun state of one orchestrator. Writers are the
// orchestrator's own goroutine; readers take snapshots from any goroutine.
type Tracker struct {
	mu         sync.RWMutex
	run        model.PipelineRun
	stageStart time.Time
}

// NewTracker creates an idle run over the given stages.
func NewTracker(runID string, stages []string) *Tracker {
	return &Tracker{
		run: model.PipelineRun{
			RunID:           runID,
			Status:          model.RunIdle,
			Stages:          append([]string(nil), stages...),
			StagesCompleted: []string{},
			StagesFailed:    []string{},
			Errors:          []model.StageError{},
		},
	}
}

// Begin marks the run as running.
func (t *Tracker) Begin(outputDir string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.run.Status = model.RunRunning
	t.run.StartTime = &now
	t.run.OutputDir = outputDir
}

// StartStage moves the current-stage pointer.
func (t *Tracker) StartStage(stage string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.run.CurrentStage = stage
	t.stageStart = time.Now()
}

// EndStage records the outcome of the current stage. A nil err marks it
// completed; otherwise the failure is captured with its stack.
func (t *Tracker) EndStage(stage string, err error) model.StageTiming {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	timing := model.StageTiming{
		Stage:      stage,
		Status:     model.StatusCompleted,
		StartedAt:  t.stageStart,
		FinishedAt: now,
		Duration:   now.Sub(t.stageStart),
	}
	if err != nil {
		timing.Status = model.StatusFailed
		t.run.StagesFailed = append(t.run.StagesFailed, stage)
		t.run.Errors = append(t.run.Errors, model.StageError{
			Stage:     stage,
			Error:     err.Error(),
			Kind:      errors.Kind(err),
			Stack:     errors.Stack(err),
			Timestamp: now,
		})
	} else {
		t.run.StagesCompleted = append(t.run.StagesCompleted, stage)
	}
	t.run.Timings = append(t.run.Timings, timing)
	return timing
}

// Skip records stages that were never attempted.
func (t *Tracker) Skip(stages ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.run.StagesSkipped = append(t.run.StagesSkipped, stages...)
}

// SetProgress stores the latest progress percentage.
func (t *Tracker) SetProgress(p float64) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.run.Progress = p
}

// Finish closes the run with a terminal status.
func (t *Tracker) Finish(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	t.run.Status = status
	t.run.EndTime = &now
	t.run.CurrentStage = ""
	if t.run.StartTime != nil {
		t.run.ExecutionTimeSeconds = now.Sub(*t.run.StartTime).Seconds()
	}
	if status == model.RunCompleted {
		t.run.Progress = 100
	}
}

// Snapshot returns a copy that is safe to hand to other goroutines.
func (t *Tracker) Snapshot() model.PipelineRun {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return t.run.Clone()
}

// Completed returns the stages completed so far.
func (t *Tracker) Completed() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]string{}, t.run.StagesCompleted...)
}
