// Package pipeline sequences the stages of a customer intelligence run:
// ingestion, cleaning and feature engineering feed the analytical engines,
// whose reports and derived tables are rendered and exported at the end.
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"go-customer-intel/internal/analytics/clv"
	"go-customer-intel/internal/analytics/forecast"
	"go-customer-intel/internal/analytics/insight"
	"go-customer-intel/internal/analytics/rfm"
	"go-customer-intel/internal/analytics/segment"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

const tracerName = "go-customer-intel/pipeline"

// stageFunc runs one stage and returns its JSON-ready result.
type stageFunc func(ctx context.Context) (interface{}, error)

// resultKeys maps each stage onto its key in RunResult.Results.
var resultKeys = map[string]string{
	model.StageIngestion:          model.ResultIngestion,
	model.StageCleaning:           model.ResultCleaning,
	model.StageFeatureEngineering: model.ResultFeatures,
	model.StageEDA:                model.ResultEDA,
	model.StageRFM:                model.ResultRFM,
	model.StageSegmentation:       model.ResultSegment,
	model.StageCLV:                model.ResultCLV,
	model.StageKPI:                model.ResultKPI,
	model.StagePerformance:        model.ResultPerformance,
	model.StageForecasting:        model.ResultForecast,
	model.StageReportGeneration:   model.ResultReports,
	model.StageExport:             model.ResultExports,
}

// Orchestrator executes the fixed stage list for one run. It is not safe for
// concurrent use; only Status may be called from other goroutines.
type Orchestrator struct {
	runID    string
	params   model.RunParams
	store    TableWriter
	observer model.ProgressObserver
	log      *zap.SugaredLogger
	tracer   trace.Tracer
	tracker  *Tracker
	outputs  *utils.OutputManager
	stages   map[string]stageFunc

	raw      *RawData
	cleaned  *model.Dataset
	featured *model.Dataset
	tables   map[string]model.Table
	errs     map[string]error

	mu      sync.RWMutex
	results map[string]interface{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithRunID overrides the generated run ID.
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// WithObserver registers the progress callback.
func WithObserver(fn model.ProgressObserver) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithStore makes the export stage also write tables to w.
func WithStore(w TableWriter) Option {
	return func(o *Orchestrator) { o.store = w }
}

// WithLogger replaces the default component logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// NewOrchestrator prepares a run over params.DataPath.
func NewOrchestrator(params model.RunParams, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		runID:   uuid.NewString(),
		params:  params,
		log:     logger.Named("pipeline"),
		tracer:  otel.Tracer(tracerName),
		outputs: utils.NewOutputManager(params.OutputDir),
		results: make(map[string]interface{}),
		tables:  make(map[string]model.Table),
		errs:    make(map[string]error),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = o.log.With("run_id", o.runID)
	o.tracker = NewTracker(o.runID, model.Stages)
	o.stages = map[string]stageFunc{
		model.StageIngestion:          o.runIngestion,
		model.StageCleaning:           o.runCleaning,
		model.StageFeatureEngineering: o.runFeatureEngineering,
		model.StageEDA:                o.runEDA,
		model.StageRFM:                o.runRFM,
		model.StageSegmentation:       o.runSegmentation,
		model.StageCLV:                o.runCLV,
		model.StageKPI:                o.runKPI,
		model.StagePerformance:        o.runPerformance,
		model.StageForecasting:        o.runForecasting,
		model.StageReportGeneration:   o.runReportGeneration,
		model.StageExport:             o.runExport,
	}
	return o
}

// RunID returns the identifier of this run.
func (o *Orchestrator) RunID() string { return o.runID }

// OutputDir is the directory the run writes its files to.
func (o *Orchestrator) OutputDir() string {
	return filepath.Join(o.outputs.BaseOutputDir, o.runID)
}

// Status returns a snapshot of the run state.
func (o *Orchestrator) Status() model.PipelineRun {
	return o.tracker.Snapshot()
}

// Results returns a copy of the stage results gathered so far. It is safe to
// call while the run is in progress.
func (o *Orchestrator) Results() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[string]interface{}, len(o.results))
	for k, v := range o.results {
		out[k] = v
	}
	return out
}

// Run executes every stage in order. A failed stage is recorded and the run
// moves on; the run only stops early when ctx is cancelled, in which case the
// remaining stages are marked skipped.
func (o *Orchestrator) Run(ctx context.Context) model.RunResult {
	ctx, span := o.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.id", o.runID),
		attribute.String("data.path", o.params.DataPath),
	))
	defer span.End()

	start := time.Now()
	o.tracker.Begin(o.OutputDir())
	o.log.Infow("Starting full analytics pipeline", "data_path", o.params.DataPath, "stages", len(model.Stages))

	status := model.RunCompleted
	total := len(model.Stages)
	for i, stage := range model.Stages {
		if err := ctx.Err(); err != nil {
			o.tracker.Skip(model.Stages[i:]...)
			o.log.Warnw("Pipeline cancelled", "next_stage", stage, "skipped", total-i)
			status = model.RunCancelled
			break
		}

		o.emit(stage, model.StatusStarting, fmt.Sprintf("Stage %d/%d", i+1, total), progressAt(i, total))
		if !o.RunStage(ctx, stage) {
			o.log.Warnw("Stage failed, continuing with next stage", "stage", stage)
		}
	}

	o.tracker.Finish(status)
	snap := o.tracker.Snapshot()
	span.SetAttributes(
		attribute.Int("stages.completed", len(snap.StagesCompleted)),
		attribute.Int("stages.failed", len(snap.StagesFailed)),
		attribute.String("run.status", status),
	)

	final := 100.0
	if status == model.RunCancelled {
		final = snap.Progress
	}
	o.emit(model.StageCompleteMarker, status, "Pipeline "+status, final)
	o.log.Infow("Pipeline finished", "status", status, "duration", time.Since(start),
		"completed", len(snap.StagesCompleted), "failed", snap.StagesFailed)

	return model.RunResult{Status: snap, Results: o.Results()}
}

// RunStage executes one named stage, capturing any error or panic. It
// returns false when the stage failed; the failure is recorded on the run.
func (o *Orchestrator) RunStage(ctx context.Context, stage string) bool {
	index := stageIndex(stage)
	total := len(model.Stages)

	ctx, span := o.tracer.Start(ctx, "pipeline.stage."+stage, trace.WithAttributes(
		attribute.String("stage.name", stage),
		attribute.Int("stage.index", index),
	))
	defer span.End()

	o.tracker.StartStage(stage)
	o.emit(stage, model.StatusRunning, fmt.Sprintf("Starting %s...", stage), progressAt(index, total))

	result, err := o.safeRun(ctx, stage)
	timing := o.tracker.EndStage(stage, err)
	if err != nil {
		o.errs[stage] = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("stage.status", model.StatusFailed))
		o.log.Errorw("Stage failed", "stage", stage, "kind", errors.Kind(err),
			"duration", timing.Duration, "error", err)
		o.emit(stage, model.StatusFailed, fmt.Sprintf("%s failed: %v", stage, err), progressAt(index+1, total))
		return false
	}

	delete(o.errs, stage)
	o.mu.Lock()
	o.results[resultKeys[stage]] = result
	o.mu.Unlock()
	span.SetAttributes(attribute.String("stage.status", model.StatusCompleted))
	o.log.Infow("Stage completed", "stage", stage, "duration", timing.Duration)
	o.emit(stage, model.StatusCompleted, fmt.Sprintf("%s completed successfully", stage), progressAt(index+1, total))
	return true
}

// Compute runs the stages in order and returns the result of the last one,
// stopping at the first failure.
func (o *Orchestrator) Compute(ctx context.Context, stages ...string) (interface{}, error) {
	var last interface{}
	for _, stage := range stages {
		if !o.RunStage(ctx, stage) {
			return nil, o.stageError(stage)
		}
		o.mu.RLock()
		last = o.results[resultKeys[stage]]
		o.mu.RUnlock()
	}
	return last, nil
}

// stageError returns the error of the latest failed attempt of stage.
func (o *Orchestrator) stageError(stage string) error {
	if err, ok := o.errs[stage]; ok {
		return err
	}
	return errors.Newf("%s failed", stage)
}

func (o *Orchestrator) safeRun(ctx context.Context, stage string) (result interface{}, err error) {
	fn, ok := o.stages[stage]
	if !ok {
		return nil, errors.NotFound("unknown stage %q", stage)
	}
	defer func() {
		if r := recover(); r != nil {
			err = errors.Computation(nil, "%s panicked: %v", stage, r)
		}
	}()
	return fn(ctx)
}

func (o *Orchestrator) emit(stage, status, message string, progress float64) {
	o.tracker.SetProgress(progress)
	o.log.Debugw(message, "stage", stage, "status", status, "progress", progress)
	if o.observer == nil {
		return
	}
	o.observer(model.ProgressEvent{
		RunID:           o.runID,
		Stage:           stage,
		Status:          status,
		Message:         message,
		Progress:        progress,
		StagesCompleted: o.tracker.Completed(),
		Timestamp:       time.Now(),
	})
}

func progressAt(index, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(index) / float64(total) * 100
}

func stageIndex(stage string) int {
	for i, s := range model.Stages {
		if s == stage {
			return i
		}
	}
	return 0
}

// analysisData returns the most processed dataset available.
func (o *Orchestrator) analysisData(stage string) (*model.Dataset, error) {
	switch {
	case o.featured != nil:
		return o.featured, nil
	case o.cleaned != nil:
		return o.cleaned, nil
	}
	return nil, errors.Prerequisite(stage, "cleaned data")
}

func (o *Orchestrator) addTable(t model.Table) {
	o.tables[t.Name] = t
}

// exportOrder fixes the order derived tables are exported in.
var exportOrder = []string{
	TableCleaned,
	TableCustomerFeatures,
	TableProductFeatures,
	TableCountryFeatures,
	"rfm_analysis",
	"customer_segments",
	"customer_ltv",
	"forecast_series",
}

// Tables returns the derived tables produced so far in export order.
func (o *Orchestrator) Tables() []model.Table {
	out := make([]model.Table, 0, len(o.tables))
	for _, name := range exportOrder {
		if t, ok := o.tables[name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// ------------------- Stages -------------------

func (o *Orchestrator) runIngestion(ctx context.Context) (interface{}, error) {
	raw, err := Ingest(ctx, o.params.DataPath)
	if err != nil {
		return nil, err
	}
	o.raw = raw
	o.cleaned, o.featured = nil, nil
	return raw.Report(), nil
}

func (o *Orchestrator) runCleaning(ctx context.Context) (interface{}, error) {
	if o.raw == nil {
		return nil, errors.Prerequisite(model.StageCleaning, "raw data")
	}
	ds, report, err := Clean(ctx, o.raw, o.params.OutlierThreshold)
	if err != nil {
		return nil, err
	}
	o.cleaned = ds
	o.addTable(TransactionsTable(TableCleaned, ds))
	return report, nil
}

func (o *Orchestrator) runFeatureEngineering(ctx context.Context) (interface{}, error) {
	if o.cleaned == nil {
		return nil, errors.Prerequisite(model.StageFeatureEngineering, "cleaned data")
	}
	fs, err := EngineerFeatures(ctx, o.cleaned)
	if err != nil {
		return nil, err
	}
	o.featured = fs.Dataset
	for _, t := range []*model.Table{fs.Tables.Customers, fs.Tables.Products, fs.Tables.Countries} {
		if t != nil {
			o.addTable(*t)
		}
	}
	return fs.Report, nil
}

func (o *Orchestrator) runEDA(ctx context.Context) (interface{}, error) {
	ds, err := o.analysisData(model.StageEDA)
	if err != nil {
		return nil, err
	}
	return insight.EDA(ds)
}

func (o *Orchestrator) runRFM(ctx context.Context) (interface{}, error) {
	ds, err := o.analysisData(model.StageRFM)
	if err != nil {
		return nil, err
	}
	a, err := rfm.New(ds, rfm.Params{
		ReferenceDate: o.params.ReferenceDate,
		Quantiles:     o.params.Quantiles,
	}).Run()
	if err != nil {
		return nil, err
	}
	o.addTable(a.Table())
	return a.Report(), nil
}

func (o *Orchestrator) runSegmentation(ctx context.Context) (interface{}, error) {
	ds, err := o.analysisData(model.StageSegmentation)
	if err != nil {
		return nil, err
	}
	a, err := segment.New(ds, segment.Params{
		KMin:    o.params.KMin,
		KMax:    o.params.KMax,
		K:       o.params.KOverride,
		Seed:    o.params.Seed,
		NInit:   o.params.NInit,
		MaxIter: o.params.MaxIter,
	}).Run(ctx)
	if err != nil {
		return nil, err
	}
	o.addTable(a.Table())
	return a.Report(), nil
}

func (o *Orchestrator) runCLV(ctx context.Context) (interface{}, error) {
	ds, err := o.analysisData(model.StageCLV)
	if err != nil {
		return nil, err
	}
	a, err := clv.New(ds, clv.Params{
		HorizonMonths: o.params.HorizonMonths,
		ProfitMargin:  o.params.ProfitMargin,
	}).Run()
	if err != nil {
		return nil, err
	}
	o.addTable(a.Table())
	return a.Report(), nil
}

func (o *Orchestrator) runKPI(ctx context.Context) (interface{}, error) {
	ds, err := o.analysisData(model.StageKPI)
	if err != nil {
		return nil, err
	}
	return insight.KPI(ds)
}

func (o *Orchestrator) runPerformance(ctx context.Context) (interface{}, error) {
	ds, err := o.analysisData(model.StagePerformance)
	if err != nil {
		return nil, err
	}
	return insight.Performance(ds)
}

func (o *Orchestrator) runForecasting(ctx context.Context) (interface{}, error) {
	ds, err := o.analysisData(model.StageForecasting)
	if err != nil {
		return nil, err
	}
	a, err := forecast.New(ds, forecast.Params{
		Frequency: o.params.ForecastFreq,
		Periods:   o.params.ForecastPeriods,
		Window:    o.params.ForecastWindow,
		Alpha:     o.params.ForecastAlpha,
	}).Run()
	if err != nil {
		return nil, err
	}
	o.addTable(a.Table())
	return a.Report(), nil
}

func (o *Orchestrator) runReportGeneration(ctx context.Context) (interface{}, error) {
	dir, err := o.outputs.CreateRunOutputDir(o.runID)
	if err != nil {
		return nil, err
	}
	return WriteReports(dir, o.Results(), o.tracker.Snapshot().Errors)
}

func (o *Orchestrator) runExport(ctx context.Context) (interface{}, error) {
	tables := o.Tables()
	exporter := &Exporter{
		Dir:     o.OutputDir(),
		Formats: o.params.OutputFormats,
		Store:   o.store,
		Retry:   o.params.Retry,
	}
	results := exporter.Export(ctx, tables)

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
		}
	}
	if len(results) > 0 && failed == len(results) {
		return results, errors.Newf("all %d exports failed: %s", failed, results[0].Error)
	}
	return results, nil
}
