package model

import "time"

// Table is a derived tabular output ready for export.
type Table struct {
	Name    string          `json:"name"`
	Columns []string        `json:"columns"`
	Rows    [][]interface{} `json:"-"`
}

// ExportResult represents the result of an export operation
type ExportResult struct {
	Table       string    `json:"table"`
	Type        string    `json:"type"` // "csv", "xlsx", "database"
	Path        string    `json:"path"` // file path or table name
	RecordCount int       `json:"record_count"`
	Success     bool      `json:"success"`
	Error       string    `json:"error,omitempty"`
	ExportedAt  time.Time `json:"exported_at"`
}

// RunRequest is the body of POST /api/v1/pipeline/run
type RunRequest struct {
	ReferenceDate   string `json:"reference_date,omitempty" binding:"omitempty,datetime=2006-01-02"`
	HorizonMonths   int    `json:"horizon_months,omitempty" binding:"omitempty,min=1,max=120"`
	KMin            int    `json:"k_min,omitempty" binding:"omitempty,min=2"`
	KMax            int    `json:"k_max,omitempty" binding:"omitempty,gtefield=KMin"`
	Clusters        int    `json:"clusters,omitempty" binding:"omitempty,min=2"`
	ForecastPeriods int    `json:"forecast_periods,omitempty" binding:"omitempty,min=1,max=60"`
	Frequency       string `json:"frequency,omitempty" binding:"omitempty,oneof=D W M"`
}

// DatasetInfo describes a dataset file available for activation
type DatasetInfo struct {
	Filename string    `json:"filename"`
	SizeMB   float64   `json:"size_mb"`
	Modified time.Time `json:"created"`
	IsActive bool      `json:"is_active"`
}

// DatasetValidation is the outcome of checking a file before activation
type DatasetValidation struct {
	IsValid         bool     `json:"is_valid"`
	Rows            int      `json:"rows"`
	Columns         int      `json:"columns"`
	ColumnNames     []string `json:"column_names"`
	MissingRequired []string `json:"missing_required"`
	Warnings        []string `json:"warnings"`
	Error           string   `json:"error,omitempty"`
}
