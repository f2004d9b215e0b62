package pipeline

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
)

// engineStages maps the report names served on demand onto the stage that
// produces them.
var engineStages = map[string]string{
	model.ResultEDA:         model.StageEDA,
	model.ResultRFM:         model.StageRFM,
	model.ResultSegment:     model.StageSegmentation,
	model.ResultCLV:         model.StageCLV,
	model.ResultKPI:         model.StageKPI,
	model.ResultPerformance: model.StagePerformance,
	model.ResultForecast:    model.StageForecasting,
}

// prepStages run before any engine computed on demand.
var prepStages = []string{
	model.StageIngestion,
	model.StageCleaning,
	model.StageFeatureEngineering,
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// DataDir holds the datasets that can be activated or uploaded.
	DataDir string
	// DataPath is the dataset active at startup.
	DataPath string
	// MinRows is the smallest dataset accepted for activation.
	MinRows int
	Params  model.RunParams
	Store   TableWriter
}

// Manager owns the process-scoped pipeline state: the active dataset, the
// single-run guard, the last run and the result cache.
type Manager struct {
	cfg    ManagerConfig
	cache  *Cache
	events *Broadcaster
	wg     sync.WaitGroup

	mu       sync.Mutex
	busy     bool
	current  *Orchestrator
	cancel   context.CancelFunc
	last     *model.PipelineRun
	dataPath string
}

// NewManager creates a manager with the configured dataset active.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.MinRows <= 0 {
		cfg.MinRows = DefaultMinRows
	}
	return &Manager{
		cfg:      cfg,
		cache:    NewCache(),
		events:   NewBroadcaster(),
		dataPath: cfg.DataPath,
	}
}

// ActiveDataset returns the path of the dataset runs operate on.
func (m *Manager) ActiveDataset() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.dataPath
}

// acquire takes the single-run guard.
func (m *Manager) acquire() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.busy {
		return errors.ErrRunInProgress
	}
	m.busy = true
	return nil
}

func (m *Manager) release() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.busy = false
	m.current = nil
	m.cancel = nil
}

// Start launches a full run in the background and returns its ID. The run is
// detached from ctx; use Cancel to stop it.
func (m *Manager) Start(ctx context.Context, req model.RunRequest) (string, error) {
	params, err := m.runParams(req)
	if err != nil {
		return "", err
	}
	if err := m.acquire(); err != nil {
		return "", err
	}

	orch := NewOrchestrator(params, WithObserver(m.events.Publish), WithStore(m.cfg.Store))
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	m.mu.Lock()
	m.current = orch
	m.cancel = cancel
	m.mu.Unlock()

	log := logger.Named("manager")
	log.Infow("Pipeline run started", "run_id", orch.RunID(), "data_path", params.DataPath)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()

		result := orch.Run(runCtx)
		m.cache.Replace(result.Results)

		m.mu.Lock()
		snap := result.Status
		m.last = &snap
		m.mu.Unlock()
		m.release()
		log.Infow("Pipeline run finished", "run_id", snap.RunID, "status", snap.Status,
			"failed", snap.StagesFailed)
	}()
	return orch.RunID(), nil
}

// runParams applies the request overrides to the configured parameters.
func (m *Manager) runParams(req model.RunRequest) (model.RunParams, error) {
	p := m.cfg.Params
	p.DataPath = m.ActiveDataset()
	if p.DataPath == "" {
		return p, errors.Prerequisite("pipeline run", "an active dataset")
	}

	if req.ReferenceDate != "" {
		ref, err := time.Parse("2006-01-02", req.ReferenceDate)
		if err != nil {
			return p, errors.InvalidParameter("reference_date %q must be YYYY-MM-DD", req.ReferenceDate)
		}
		p.ReferenceDate = &ref
	}
	if req.HorizonMonths > 0 {
		p.HorizonMonths = req.HorizonMonths
	}
	if req.KMin > 0 {
		p.KMin = req.KMin
	}
	if req.KMax > 0 {
		p.KMax = req.KMax
	}
	if p.KMax < p.KMin {
		return p, errors.InvalidParameter("k_max (%d) must not be below k_min (%d)", p.KMax, p.KMin)
	}
	if req.Clusters > 0 {
		p.KOverride = req.Clusters
	}
	if req.ForecastPeriods > 0 {
		p.ForecastPeriods = req.ForecastPeriods
	}
	if req.Frequency != "" {
		p.ForecastFreq = req.Frequency
	}
	return p, nil
}

// Cancel requests cooperative cancellation of the active run. The current
// stage finishes; the rest are skipped.
func (m *Manager) Cancel() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel == nil {
		return errors.Prerequisite("pipeline cancel", "an active run")
	}
	m.cancel()
	logger.Named("manager").Infow("Pipeline cancellation requested", "run_id", m.current.RunID())
	return nil
}

// Status returns the live run state, or the last finished run, or an idle
// placeholder when nothing ran yet.
func (m *Manager) Status() model.PipelineRun {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.current != nil:
		return m.current.Status()
	case m.last != nil:
		return m.last.Clone()
	}
	return NewTracker("", model.Stages).Snapshot()
}

// Results returns the results of the active run while it is live, otherwise
// the cached results of previous runs. cached reports which of the two it is.
func (m *Manager) Results() (model.RunResult, bool, error) {
	m.mu.Lock()
	current, last := m.current, m.last
	m.mu.Unlock()

	if current != nil {
		return model.RunResult{Status: current.Status(), Results: current.Results()}, false, nil
	}
	results := m.cache.All()
	if last == nil && len(results) == 0 {
		return model.RunResult{}, false, errors.NotFound("no pipeline results available, run the pipeline first")
	}

	out := model.RunResult{Results: results}
	if last != nil {
		out.Status = last.Clone()
	}
	return out, true, nil
}

// LastUpdated reports when cached results were last written.
func (m *Manager) LastUpdated() time.Time {
	return m.cache.LastUpdated()
}

// EngineReport returns the named engine's report, computing it from the
// active dataset when it is not cached.
func (m *Manager) EngineReport(ctx context.Context, name string) (interface{}, error) {
	stage, ok := engineStages[name]
	if !ok {
		return nil, errors.NotFound("unknown report %q", name)
	}
	if v, ok := m.cache.Get(name); ok {
		return v, nil
	}

	if err := m.acquire(); err != nil {
		return nil, err
	}
	defer m.release()

	params := m.cfg.Params
	params.DataPath = m.ActiveDataset()
	if params.DataPath == "" {
		return nil, errors.Prerequisite(stage, "an active dataset")
	}

	logger.Named("manager").Infow("Computing report on demand", "report", name, "data_path", params.DataPath)
	orch := NewOrchestrator(params)
	v, err := orch.Compute(ctx, append(append([]string{}, prepStages...), stage)...)
	if err != nil {
		return nil, err
	}
	m.cache.Put(name, v)
	return v, nil
}

// Activate validates filename from the data directory and makes it the active
// dataset. Cached results are dropped.
func (m *Manager) Activate(ctx context.Context, filename string) (model.DatasetValidation, error) {
	path, err := m.datasetPath(filename)
	if err != nil {
		return model.DatasetValidation{}, err
	}
	if _, err := os.Stat(path); err != nil {
		return model.DatasetValidation{}, errors.NotFound("dataset %q not found", filename)
	}
	if err := m.acquire(); err != nil {
		return model.DatasetValidation{}, err
	}
	defer m.release()

	return m.activate(ctx, path)
}

// Upload stores r in the data directory as name, validates it and activates
// it. A file that fails validation is removed.
func (m *Manager) Upload(ctx context.Context, name string, r io.Reader) (model.DatasetValidation, error) {
	path, err := m.datasetPath(name)
	if err != nil {
		return model.DatasetValidation{}, err
	}
	if err := m.acquire(); err != nil {
		return model.DatasetValidation{}, err
	}
	defer m.release()

	if err := os.MkdirAll(m.cfg.DataDir, 0755); err != nil {
		return model.DatasetValidation{}, errors.Wrap(err, "failed to create data directory")
	}

	f, err := os.Create(path)
	if err != nil {
		return model.DatasetValidation{}, errors.Wrap(err, "failed to create dataset file")
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		os.Remove(path)
		return model.DatasetValidation{}, errors.Wrap(err, "failed to store upload")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return model.DatasetValidation{}, errors.Wrap(err, "failed to store upload")
	}

	v, err := m.activate(ctx, path)
	if err != nil {
		os.Remove(path)
	}
	return v, err
}

// activate switches the active dataset; the caller holds the guard.
func (m *Manager) activate(ctx context.Context, path string) (model.DatasetValidation, error) {
	v, err := ValidateDataset(ctx, path, m.cfg.MinRows)
	if err != nil {
		return v, err
	}

	m.mu.Lock()
	m.dataPath = path
	m.last = nil
	m.mu.Unlock()
	m.cache.Invalidate()

	logger.Named("manager").Infow("Dataset activated", "path", path, "rows", v.Rows, "warnings", len(v.Warnings))
	return v, nil
}

// ValidateActive re-validates the active dataset without changing state.
func (m *Manager) ValidateActive(ctx context.Context) (model.DatasetValidation, error) {
	path := m.ActiveDataset()
	if path == "" {
		return model.DatasetValidation{}, errors.Prerequisite("dataset validation", "an active dataset")
	}
	return ValidateDataset(ctx, path, m.cfg.MinRows)
}

// Datasets lists the loadable files of the data directory, newest first.
func (m *Manager) Datasets() ([]model.DatasetInfo, error) {
	entries, err := os.ReadDir(m.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []model.DatasetInfo{}, nil
		}
		return nil, errors.Wrap(err, "failed to list datasets")
	}

	active := m.ActiveDataset()
	out := make([]model.DatasetInfo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !supportedDataset(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		path := filepath.Join(m.cfg.DataDir, e.Name())
		out = append(out, model.DatasetInfo{
			Filename: e.Name(),
			SizeMB:   float64(info.Size()) / (1024 * 1024),
			Modified: info.ModTime(),
			IsActive: sameFile(path, active),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Modified.After(out[j].Modified) })
	return out, nil
}

// datasetPath resolves a bare file name inside the data directory.
func (m *Manager) datasetPath(name string) (string, error) {
	if name == "" || filepath.Base(name) != name || strings.HasPrefix(name, ".") {
		return "", errors.InvalidParameter("invalid dataset file name %q", name)
	}
	if !supportedDataset(name) {
		return "", errors.InvalidParameter("unsupported dataset format %q, expected .csv, .xlsx or .json", filepath.Ext(name))
	}
	return filepath.Join(m.cfg.DataDir, name), nil
}

func supportedDataset(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv", ".xlsx", ".xlsm", ".json":
		return true
	}
	return false
}

func sameFile(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	aa, err1 := filepath.Abs(a)
	bb, err2 := filepath.Abs(b)
	return err1 == nil && err2 == nil && aa == bb
}

// Subscribe registers a progress listener.
func (m *Manager) Subscribe() <-chan model.ProgressEvent { return m.events.Subscribe() }

// Unsubscribe removes a progress listener.
func (m *Manager) Unsubscribe(ch <-chan model.ProgressEvent) { m.events.Unsubscribe(ch) }

// Wait blocks until the background run, if any, has finished.
func (m *Manager) Wait() { m.wg.Wait() }
