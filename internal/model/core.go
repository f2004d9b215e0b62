package model

import "time"

// Stage names in execution order
const (
	StageIngestion          = "ingestion"
	StageCleaning           = "cleaning"
	StageFeatureEngineering = "feature_engineering"
	StageEDA                = "eda"
	StageRFM                = "rfm_analysis"
	StageSegmentation       = "segmentation"
	StageCLV                = "clv"
	StageKPI                = "kpi_generation"
	StagePerformance        = "performance_analysis"
	StageForecasting        = "forecasting"
	StageReportGeneration   = "report_generation"
	StageExport             = "export"
)

// Stages is the fixed order the orchestrator walks.
var Stages = []string{
	StageIngestion,
	StageCleaning,
	StageFeatureEngineering,
	StageEDA,
	StageRFM,
	StageSegmentation,
	StageCLV,
	StageKPI,
	StagePerformance,
	StageForecasting,
	StageReportGeneration,
	StageExport,
}

// Result keys for each analytical stage in RunResult.Results
const (
	ResultIngestion   = "ingestion"
	ResultCleaning    = "cleaning"
	ResultFeatures    = "feature_engineering"
	ResultEDA         = "eda"
	ResultRFM         = "rfm"
	ResultSegment     = "segmentation"
	ResultCLV         = "clv"
	ResultKPI         = "kpis"
	ResultPerformance = "performance"
	ResultForecast    = "forecast"
	ResultReports     = "reports"
	ResultExports     = "exports"
)

// RunParams are the caller-configurable engine parameters for one run.
type RunParams struct {
	DataPath         string      `json:"data_path"`
	OutputDir        string      `json:"output_dir"`
	OutputFormats    []string    `json:"output_formats"`
	ReferenceDate    *time.Time  `json:"reference_date,omitempty"`
	Quantiles        int         `json:"quantiles"`
	KMin             int         `json:"k_min"`
	KMax             int         `json:"k_max"`
	KOverride        int         `json:"k_override,omitempty"`
	Seed             int64       `json:"seed"`
	NInit            int         `json:"n_init"`
	MaxIter          int         `json:"max_iter"`
	HorizonMonths    int         `json:"horizon_months"`
	ProfitMargin     float64     `json:"profit_margin"`
	ForecastFreq     string      `json:"forecast_frequency"`
	ForecastPeriods  int         `json:"forecast_periods"`
	ForecastWindow   int         `json:"forecast_window"`
	ForecastAlpha    float64     `json:"forecast_alpha"`
	OutlierThreshold float64     `json:"outlier_threshold"`
	Retry            RetryConfig `json:"retry"`
}

// DefaultRunParams mirrors the documented engine defaults.
func DefaultRunParams() RunParams {
	return RunParams{
		OutputDir:        "outputs",
		OutputFormats:    []string{"csv", "xlsx"},
		Quantiles:        5,
		KMin:             2,
		KMax:             10,
		Seed:             42,
		NInit:            10,
		MaxIter:          300,
		HorizonMonths:    12,
		ProfitMargin:     0.30,
		ForecastFreq:     "M",
		ForecastPeriods:  6,
		ForecastWindow:   3,
		ForecastAlpha:    0.3,
		OutlierThreshold: 3,
		Retry:            DefaultRetryConfig(),
	}
}
