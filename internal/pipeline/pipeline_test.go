package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"go-customer-intel/internal/analytics/rfm"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

type eventLog struct {
	mu     sync.Mutex
	events []model.ProgressEvent
}

func (l *eventLog) observe(ev model.ProgressEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, ev)
}

func (l *eventLog) all() []model.ProgressEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.ProgressEvent(nil), l.events...)
}

func newTestOrchestrator(t *testing.T, params model.RunParams, opts ...Option) *Orchestrator {
	opts = append([]Option{WithLogger(zaptest.NewLogger(t).Sugar()), WithRunID("run-test")}, opts...)
	return NewOrchestrator(params, opts...)
}

func TestRunCompletesEveryStage(t *testing.T) {
	dir := t.TempDir()
	path := writeRetailCSV(t, dir, "retail.csv", 12, 12)
	events := &eventLog{}

	o := newTestOrchestrator(t, testParams(path, filepath.Join(dir, "out")), WithObserver(events.observe))
	result := o.Run(context.Background())

	status := result.Status
	require.Empty(t, status.StagesFailed, "%v", status.Errors)
	assert.Equal(t, model.RunCompleted, status.Status)
	assert.Equal(t, model.Stages, status.StagesCompleted)
	assert.Equal(t, 100.0, status.Progress)
	assert.Len(t, status.Timings, len(model.Stages))
	assert.NotNil(t, status.EndTime)

	for _, key := range []string{
		model.ResultIngestion, model.ResultCleaning, model.ResultFeatures, model.ResultEDA,
		model.ResultRFM, model.ResultSegment, model.ResultCLV, model.ResultKPI,
		model.ResultPerformance, model.ResultForecast, model.ResultReports, model.ResultExports,
	} {
		assert.Contains(t, result.Results, key)
	}
	_, ok := result.Results[model.ResultRFM].(rfm.Report)
	assert.True(t, ok)

	runDir := filepath.Join(dir, "out", "run-test")
	for _, name := range []string{ResultsFile, "cleaned_data.csv", "rfm_analysis.xlsx", "customer_segments.csv", "customer_ltv.csv", "customer_features.csv"} {
		_, err := os.Stat(filepath.Join(runDir, name))
		assert.NoError(t, err, name)
	}

	evs := events.all()
	require.NotEmpty(t, evs)
	assert.Equal(t, model.StageIngestion, evs[0].Stage)
	assert.Equal(t, model.StatusStarting, evs[0].Status)
	assert.Equal(t, "Stage 1/12", evs[0].Message)
	assert.Zero(t, evs[0].Progress)

	last := evs[len(evs)-1]
	assert.Equal(t, model.StageCompleteMarker, last.Stage)
	assert.Equal(t, model.RunCompleted, last.Status)
	assert.Equal(t, 100.0, last.Progress)
	assert.Len(t, last.StagesCompleted, len(model.Stages))

	// starting, running, completed per stage plus the final event
	assert.Len(t, evs, 3*len(model.Stages)+1)
	for i := 1; i < len(evs); i++ {
		assert.GreaterOrEqual(t, evs[i].Progress, evs[i-1].Progress)
	}
}

func TestRunContinuesAfterStageFailure(t *testing.T) {
	dir := t.TempDir()
	path := writeRetailCSV(t, dir, "two.csv", 2, 10)
	events := &eventLog{}

	o := newTestOrchestrator(t, testParams(path, dir), WithObserver(events.observe))
	result := o.Run(context.Background())

	status := result.Status
	assert.Equal(t, model.RunCompleted, status.Status)
	assert.Equal(t, []string{model.StageSegmentation}, status.StagesFailed)
	assert.Contains(t, status.StagesCompleted, model.StageCLV)
	assert.Contains(t, status.StagesCompleted, model.StageExport)
	assert.NotContains(t, result.Results, model.ResultSegment)
	assert.Contains(t, result.Results, model.ResultCLV)

	require.Len(t, status.Errors, 1)
	assert.Equal(t, model.StageSegmentation, status.Errors[0].Stage)
	assert.Equal(t, "insufficient_data", status.Errors[0].Kind)
	assert.NotEmpty(t, status.Errors[0].Stack)

	var failed []model.ProgressEvent
	for _, ev := range events.all() {
		if ev.Status == model.StatusFailed {
			failed = append(failed, ev)
		}
	}
	require.Len(t, failed, 1)
	assert.Contains(t, failed[0].Message, "segmentation failed:")
}

func TestRunRecoversFromPanic(t *testing.T) {
	dir := t.TempDir()
	path := writeRetailCSV(t, dir, "retail.csv", 5, 6)

	o := newTestOrchestrator(t, testParams(path, dir))
	o.stages[model.StageEDA] = func(context.Context) (interface{}, error) {
		panic("boom")
	}
	result := o.Run(context.Background())

	status := result.Status
	assert.Equal(t, []string{model.StageEDA}, status.StagesFailed)
	require.Len(t, status.Errors, 1)
	assert.Equal(t, "computation_error", status.Errors[0].Kind)
	assert.Contains(t, status.Errors[0].Error, "eda panicked: boom")
	assert.Contains(t, status.StagesCompleted, model.StageRFM)
}

func TestRunCancellationSkipsRemainingStages(t *testing.T) {
	dir := t.TempDir()
	path := writeRetailCSV(t, dir, "retail.csv", 5, 6)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events := &eventLog{}
	observer := func(ev model.ProgressEvent) {
		events.observe(ev)
		if ev.Stage == model.StageRFM && ev.Status == model.StatusCompleted {
			cancel()
		}
	}

	o := newTestOrchestrator(t, testParams(path, dir), WithObserver(observer))
	result := o.Run(ctx)

	status := result.Status
	assert.Equal(t, model.RunCancelled, status.Status)
	assert.Equal(t, model.Stages[:5], status.StagesCompleted)
	assert.Equal(t, model.Stages[5:], status.StagesSkipped)
	assert.Empty(t, status.StagesFailed)

	evs := events.all()
	last := evs[len(evs)-1]
	assert.Equal(t, model.StageCompleteMarker, last.Stage)
	assert.Equal(t, model.RunCancelled, last.Status)
	assert.Less(t, last.Progress, 100.0)
}

func TestRunMissingFileFailsEveryStage(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testParams(filepath.Join(dir, "missing.csv"), dir))
	result := o.Run(context.Background())

	status := result.Status
	assert.Equal(t, model.RunCompleted, status.Status)
	assert.Contains(t, status.StagesFailed, model.StageIngestion)
	assert.Contains(t, status.StagesFailed, model.StageCleaning)
	assert.Contains(t, status.StagesFailed, model.StageRFM)

	for _, e := range status.Errors {
		if e.Stage == model.StageRFM {
			assert.Equal(t, "prerequisite_error", e.Kind)
		}
	}
}

func TestComputeSingleEngine(t *testing.T) {
	dir := t.TempDir()
	path := writeRetailCSV(t, dir, "retail.csv", 6, 4)

	o := newTestOrchestrator(t, testParams(path, dir))
	v, err := o.Compute(context.Background(), model.StageIngestion, model.StageCleaning, model.StageFeatureEngineering, model.StageRFM)
	require.NoError(t, err)

	report, ok := v.(rfm.Report)
	require.True(t, ok)
	assert.NotEmpty(t, report.SegmentSummary)
}

func TestComputeReturnsFirstFailure(t *testing.T) {
	dir := t.TempDir()
	o := newTestOrchestrator(t, testParams(filepath.Join(dir, "nope.json"), dir))

	_, err := o.Compute(context.Background(), model.StageIngestion, model.StageCleaning)
	require.Error(t, err)
	assert.False(t, errors.Is(err, errors.ErrPrerequisite))
	assert.Contains(t, err.Error(), "failed to read JSON file")
}

func TestRunStageUnknown(t *testing.T) {
	o := newTestOrchestrator(t, testParams("", t.TempDir()))
	assert.False(t, o.RunStage(context.Background(), "bogus"))

	snap := o.Status()
	require.Len(t, snap.Errors, 1)
	assert.Equal(t, "not_found", snap.Errors[0].Kind)
}
