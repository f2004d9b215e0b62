package model

import "time"

// Run lifecycle states
const (
	RunIdle      = "idle"
	RunStarting  = "starting"
	RunRunning   = "running"
	RunCompleted = "completed"
	RunCancelled = "cancelled"
)

// Stage progress statuses
const (
	StatusStarting  = "starting"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusSkipped   = "skipped"
)

// StageCompleteMarker is the stage name of the final event of a run.
const StageCompleteMarker = "complete"

// StageError is the failure record of one stage.
type StageError struct {
	Stage     string    `json:"stage"`
	Error     string    `json:"error"`
	Kind      string    `json:"kind"`
	Stack     string    `json:"traceback"`
	Timestamp time.Time `json:"timestamp"`
}

// StageTiming records how long a stage took.
type StageTiming struct {
	Stage      string        `json:"stage"`
	Status     string        `json:"status"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
	Duration   time.Duration `json:"duration_ns"`
}

// PipelineRun is a snapshot of the orchestrator's state.
//
// A run whose stages partly failed still ends in RunCompleted; callers tell a
// clean run from a degraded one by inspecting StagesFailed.
type PipelineRun struct {
	RunID                string        `json:"run_id"`
	Status               string        `json:"status"`
	Stages               []string      `json:"stages"`
	CurrentStage         string        `json:"current_stage,omitempty"`
	Progress             float64       `json:"progress"`
	StagesCompleted      []string      `json:"stages_completed"`
	StagesFailed         []string      `json:"stages_failed"`
	StagesSkipped        []string      `json:"stages_skipped,omitempty"`
	Errors               []StageError  `json:"errors"`
	Timings              []StageTiming `json:"timings,omitempty"`
	StartTime            *time.Time    `json:"start_time,omitempty"`
	EndTime              *time.Time    `json:"end_time,omitempty"`
	ExecutionTimeSeconds float64       `json:"execution_time_seconds,omitempty"`
	OutputDir            string        `json:"output_dir,omitempty"`
}

// Clone returns a copy that shares no slices with the receiver.
func (r PipelineRun) Clone() PipelineRun {
	out := r
	out.Stages = append([]string(nil), r.Stages...)
	out.StagesCompleted = append([]string{}, r.StagesCompleted...)
	out.StagesFailed = append([]string{}, r.StagesFailed...)
	out.StagesSkipped = append([]string(nil), r.StagesSkipped...)
	out.Errors = append([]StageError{}, r.Errors...)
	out.Timings = append([]StageTiming(nil), r.Timings...)
	if r.StartTime != nil {
		t := *r.StartTime
		out.StartTime = &t
	}
	if r.EndTime != nil {
		t := *r.EndTime
		out.EndTime = &t
	}
	return out
}

// ProgressEvent is delivered to observers at each stage transition.
type ProgressEvent struct {
	RunID           string    `json:"run_id"`
	Stage           string    `json:"stage"`
	Status          string    `json:"status"`
	Message         string    `json:"message"`
	Progress        float64   `json:"progress"`
	StagesCompleted []string  `json:"stages_completed"`
	Timestamp       time.Time `json:"timestamp"`
}

// ProgressObserver receives progress events synchronously.
type ProgressObserver func(ProgressEvent)

// RunResult is the orchestrator's per-run output.
type RunResult struct {
	Status  PipelineRun            `json:"status"`
	Results map[string]interface{} `json:"results"`
}
