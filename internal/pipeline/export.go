package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// Export formats
const (
	FormatCSV      = "csv"
	FormatXLSX     = "xlsx"
	FormatDatabase = "database"
)

// TableWriter persists a derived table, replacing any previous copy.
type TableWriter interface {
	WriteTable(ctx context.Context, t model.Table) error
}

// Exporter writes derived tables to files in a run directory and, when a
// store is configured, to the warehouse.
type Exporter struct {
	Dir     string
	Formats []string
	Store   TableWriter
	Retry   model.RetryConfig
}

// Export writes every table in every configured format. Failures are
// reported per export and never stop the remaining exports.
func (e *Exporter) Export(ctx context.Context, tables []model.Table) []model.ExportResult {
	log := logger.Named("export")
	results := make([]model.ExportResult, 0, len(tables)*(len(e.Formats)+1))

	for _, t := range tables {
		for _, format := range e.Formats {
			var (
				path string
				err  error
			)
			switch format {
			case FormatCSV:
				path, err = e.exportToCSV(t)
			case FormatXLSX, "excel":
				path, err = e.exportToXLSX(t)
			default:
				err = errors.InvalidParameter("unknown export format: %s", format)
			}
			results = append(results, newResult(t, format, path, err))
		}

		if e.Store != nil {
			err := withRetry(ctx, e.Retry, "store "+t.Name, func() error {
				return e.Store.WriteTable(ctx, t)
			})
			results = append(results, newResult(t, FormatDatabase, t.Name, err))
		}
	}

	failed := 0
	for _, r := range results {
		if !r.Success {
			failed++
			log.Errorw("Export failed", "table", r.Table, "type", r.Type, "error", r.Error)
		}
	}
	log.Infow("Export summary", "tables", len(tables), "exports", len(results), "failed", failed)
	return results
}

func newResult(t model.Table, format, path string, err error) model.ExportResult {
	r := model.ExportResult{
		Table:       t.Name,
		Type:        format,
		Path:        path,
		RecordCount: len(t.Rows),
		Success:     err == nil,
		ExportedAt:  time.Now(),
	}
	if err != nil {
		r.Error = err.Error()
		r.RecordCount = 0
	}
	return r
}

// exportToCSV writes the table as <dir>/<name>.csv
func (e *Exporter) exportToCSV(t model.Table) (string, error) {
	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create directory")
	}
	path := filepath.Join(e.Dir, t.Name+".csv")

	file, err := os.Create(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(t.Columns); err != nil {
		return "", errors.Wrap(err, "failed to write header")
	}
	row := make([]string, len(t.Columns))
	for _, values := range t.Rows {
		for i := range row {
			row[i] = ""
			if i < len(values) {
				row[i] = utils.String(values[i])
			}
		}
		if err := writer.Write(row); err != nil {
			return "", errors.Wrap(err, "failed to write row")
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return "", errors.Wrap(err, "failed to flush CSV")
	}
	return path, nil
}

// exportToXLSX writes the table as a single-sheet workbook <dir>/<name>.xlsx
func (e *Exporter) exportToXLSX(t model.Table) (string, error) {
	if err := os.MkdirAll(e.Dir, 0755); err != nil {
		return "", errors.Wrap(err, "failed to create directory")
	}
	path := filepath.Join(e.Dir, t.Name+".xlsx")

	f := excelize.NewFile()
	defer f.Close()

	sheet := sheetName(t.Name)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return "", errors.Wrap(err, "failed to name sheet")
	}
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return "", errors.Wrap(err, "failed to open stream writer")
	}

	header := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return "", errors.Wrap(err, "failed to write header")
	}
	for i, values := range t.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return "", err
		}
		if err := sw.SetRow(cell, values); err != nil {
			return "", errors.Wrapf(err, "failed to write row %d", i+1)
		}
	}
	if err := sw.Flush(); err != nil {
		return "", errors.Wrap(err, "failed to flush sheet")
	}
	if err := f.SaveAs(path); err != nil {
		return "", errors.Wrap(err, "failed to save workbook")
	}
	return path, nil
}

// sheetName fits a table name into Excel's 31 character sheet limit.
func sheetName(name string) string {
	if len(name) > 31 {
		return name[:31]
	}
	return name
}
