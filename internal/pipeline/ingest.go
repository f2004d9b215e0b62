package pipeline

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// ------------------- Ingestion -------------------

// RawData is the untyped table read from a source file.
type RawData struct {
	Source       string
	Columns      []string
	Records      []model.GenericRecord
	Capabilities model.Capabilities
}

// columnAliases maps source headers onto the canonical column names.
var columnAliases = map[string]string{
	"price":                        model.ColUnitPrice,
	"unitprice":                    model.ColUnitPrice,
	"transaction_item_code":        model.ColProductCode,
	"stockcode":                    model.ColProductCode,
	"stock_code":                   model.ColProductCode,
	"product_type":                 model.ColProductCategory,
	"category":                     model.ColProductCategory,
	"transaction_item_description": model.ColDescription,
	"invoiceno":                    model.ColTransactionID,
	"invoice_no":                   model.ColTransactionID,
	"invoicedate":                  model.ColTransactionDate,
	"invoice_date":                 model.ColTransactionDate,
	"customerid":                   model.ColCustomerID,
	"amount":                       model.ColAmount,
}

// NormalizeHeader trims quotes and whitespace, lower-cases the name, joins
// words with underscores and resolves known aliases.
func NormalizeHeader(h string) string {
	h = strings.TrimPrefix(h, "\ufeff")
	h = strings.TrimSpace(strings.ReplaceAll(h, `"`, ""))
	h = strings.ToLower(h)
	h = strings.Join(strings.FieldsFunc(h, func(r rune) bool {
		return r == ' ' || r == '-' || r == '_' || r == '.'
	}), "_")
	if alias, ok := columnAliases[h]; ok {
		return alias
	}
	return h
}

// Ingest loads a .csv, .xlsx or .json file into a RawData table.
func Ingest(ctx context.Context, path string) (*RawData, error) {
	var (
		headers []string
		rows    [][]string
		records []model.GenericRecord
		err     error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		headers, rows, err = readCSV(ctx, path)
	case ".xlsx", ".xlsm":
		headers, rows, err = readXLSX(path)
	case ".json":
		headers, records, err = readJSON(path)
	default:
		return nil, errors.InvalidParameter("unsupported file format: %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	raw := &RawData{Source: path}
	for _, h := range headers {
		raw.Columns = append(raw.Columns, NormalizeHeader(h))
	}
	if records == nil {
		raw.Records = make([]model.GenericRecord, 0, len(rows))
		for i, row := range rows {
			if i%1000 == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if blank(row) {
				continue
			}
			rec := make(model.GenericRecord, len(raw.Columns))
			for c, col := range raw.Columns {
				var cell string
				if c < len(row) {
					cell = row[c]
				}
				rec[col] = utils.ParseValue(cell)
			}
			raw.Records = append(raw.Records, rec)
		}
	} else {
		raw.Records = renameKeys(records, headers, raw.Columns)
	}
	raw.Capabilities = model.CapabilitiesFromColumns(raw.Columns)

	logger.Named("ingest").Infow("Ingestion done", "source", path, "records", len(raw.Records), "columns", len(raw.Columns))
	return raw, nil
}

// ------------------- CSV Ingestion -------------------
func readCSV(ctx context.Context, path string) ([]string, [][]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open CSV file")
	}
	defer file.Close()

	csvReader := csv.NewReader(file)
	csvReader.LazyQuotes = true
	csvReader.FieldsPerRecord = -1
	headers, err := csvReader.Read()
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read CSV header")
	}

	var rows [][]string
	for {
		if len(rows)%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, nil, err
			}
		}
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, errors.Wrapf(err, "CSV read error after %d rows", len(rows))
		}
		rows = append(rows, record)
	}
	return headers, rows, nil
}

// ------------------- XLSX Ingestion -------------------
func readXLSX(path string) ([]string, [][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil, errors.InvalidParameter("workbook %s has no sheets", filepath.Base(path))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to read sheet %q", sheets[0])
	}
	if len(rows) == 0 {
		return nil, nil, errors.InvalidParameter("sheet %q is empty", sheets[0])
	}
	return rows[0], rows[1:], nil
}

// ------------------- JSON Ingestion -------------------
func readJSON(path string) ([]string, []model.GenericRecord, error) {
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to read JSON file")
	}

	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, nil, errors.Wrap(err, "failed to decode JSON")
	}

	var items []interface{}
	switch data := raw.(type) {
	case []interface{}:
		items = data
	case map[string]interface{}:
		items = []interface{}{data}
	default:
		return nil, nil, errors.InvalidParameter("unexpected JSON structure in %s", filepath.Base(path))
	}

	seen := make(map[string]bool)
	var headers []string
	records := make([]model.GenericRecord, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		rec := make(model.GenericRecord, len(m))
		for k, v := range m {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
			if s, ok := v.(string); ok {
				rec[k] = utils.ParseValue(s)
			} else {
				rec[k] = v
			}
		}
		records = append(records, rec)
	}
	sort.Strings(headers)
	return headers, records, nil
}

func renameKeys(records []model.GenericRecord, from, to []string) []model.GenericRecord {
	out := make([]model.GenericRecord, len(records))
	for i, rec := range records {
		r := make(model.GenericRecord, len(to))
		for c := range from {
			r[to[c]] = rec[from[c]]
		}
		out[i] = r
	}
	return out
}

func blank(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// ------------------- Ingestion Report -------------------

// IngestSummary is the headline of a load.
type IngestSummary struct {
	FileName         string `json:"file_name"`
	TotalRecords     int    `json:"total_records"`
	TotalColumns     int    `json:"total_columns"`
	DateLoaded       string `json:"date_loaded"`
	ValidationStatus bool   `json:"validation_status"`
}

// SchemaValidation lists the columns found against the mandatory set.
type SchemaValidation struct {
	TotalRecords   int      `json:"total_records"`
	TotalColumns   int      `json:"total_columns"`
	ColumnsFound   []string `json:"columns_found"`
	MissingColumns []string `json:"missing_required_columns"`
	IsValid        bool     `json:"is_valid"`
}

// NumericStats summarises one numeric column.
type NumericStats struct {
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
	Std    float64 `json:"std"`
}

// DateRange bounds a date column.
type DateRange struct {
	Min string `json:"min"`
	Max string `json:"max"`
}

// QualityReport describes nulls, duplicates and value ranges.
type QualityReport struct {
	NullCounts      map[string]int          `json:"null_counts"`
	NullPercentages map[string]float64      `json:"null_percentages"`
	DuplicateRows   int                     `json:"duplicate_rows"`
	UniqueCounts    map[string]int          `json:"unique_counts"`
	NumericStats    map[string]NumericStats `json:"numeric_stats"`
	DateRange       map[string]DateRange    `json:"date_range"`
}

// IngestionReport is the ingestion stage result.
type IngestionReport struct {
	Summary      IngestSummary      `json:"summary"`
	Validation   SchemaValidation   `json:"validation"`
	Quality      QualityReport      `json:"quality"`
	Capabilities model.Capabilities `json:"capabilities"`
}

// Report validates the schema and profiles the loaded table.
func (raw *RawData) Report() IngestionReport {
	missing := raw.Capabilities.Missing(model.RequiredColumns...)
	validation := SchemaValidation{
		TotalRecords:   len(raw.Records),
		TotalColumns:   len(raw.Columns),
		ColumnsFound:   raw.Columns,
		MissingColumns: append([]string{}, missing...),
		IsValid:        len(missing) == 0,
	}
	return IngestionReport{
		Summary: IngestSummary{
			FileName:         filepath.Base(raw.Source),
			TotalRecords:     len(raw.Records),
			TotalColumns:     len(raw.Columns),
			DateLoaded:       time.Now().Format(time.RFC3339),
			ValidationStatus: validation.IsValid,
		},
		Validation:   validation,
		Quality:      raw.quality(),
		Capabilities: raw.Capabilities,
	}
}

func (raw *RawData) quality() QualityReport {
	q := QualityReport{
		NullCounts:      make(map[string]int, len(raw.Columns)),
		NullPercentages: make(map[string]float64, len(raw.Columns)),
		UniqueCounts:    make(map[string]int),
		NumericStats:    make(map[string]NumericStats),
		DateRange:       make(map[string]DateRange),
	}

	for _, col := range raw.Columns {
		var (
			nulls   int
			text    bool
			numbers []float64
			uniques = make(map[string]struct{})
		)
		for _, rec := range raw.Records {
			v := rec[col]
			if v == nil {
				nulls++
				continue
			}
			uniques[utils.String(v)] = struct{}{}
			if f, ok := v.(float64); ok || isInt(v) {
				if !ok {
					f, _ = utils.Numeric(v)
				}
				numbers = append(numbers, f)
			} else {
				text = true
			}
		}
		q.NullCounts[col] = nulls
		q.NullPercentages[col] = utils.Round(utils.SafeDiv(float64(nulls), float64(len(raw.Records)))*100, 2)
		if text {
			q.UniqueCounts[col] = len(uniques)
		} else if len(numbers) > 0 {
			sorted := analytics.Sorted(numbers)
			q.NumericStats[col] = NumericStats{
				Min:    sorted[0],
				Max:    sorted[len(sorted)-1],
				Mean:   utils.Round(analytics.Mean(numbers), 4),
				Median: analytics.Quantile(sorted, 0.5),
				Std:    utils.Round(analytics.SampleStd(numbers), 4),
			}
		}
	}

	if raw.Capabilities.HasTransactionDate {
		var lo, hi time.Time
		for _, rec := range raw.Records {
			t, ok := utils.ParseDate(rec[model.ColTransactionDate])
			if !ok {
				continue
			}
			if lo.IsZero() || t.Before(lo) {
				lo = t
			}
			if hi.IsZero() || t.After(hi) {
				hi = t
			}
		}
		if !lo.IsZero() {
			q.DateRange[model.ColTransactionDate] = DateRange{Min: lo.Format(time.RFC3339), Max: hi.Format(time.RFC3339)}
		}
	}

	seen := make(map[string]struct{}, len(raw.Records))
	for _, rec := range raw.Records {
		key := rowKey(rec, raw.Columns)
		if _, dup := seen[key]; dup {
			q.DuplicateRows++
			continue
		}
		seen[key] = struct{}{}
	}
	return q
}

func isInt(v interface{}) bool {
	switch v.(type) {
	case int, int64:
		return true
	}
	return false
}

func rowKey(rec model.GenericRecord, columns []string) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = utils.String(rec[c])
	}
	return strings.Join(parts, "\x1f")
}
