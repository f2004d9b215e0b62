package pipeline

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// DefaultOutlierThreshold is the IQR multiplier used for outlier removal.
const DefaultOutlierThreshold = 3.0

// CleaningStep is one entry of the cleaning log.
type CleaningStep struct {
	Operation    string                 `json:"operation"`
	Details      map[string]interface{} `json:"details"`
	RecordsAfter int                    `json:"records_after"`
}

// CleaningReport summarises a cleaning pass.
type CleaningReport struct {
	OriginalRows      int            `json:"original_rows"`
	FinalRows         int            `json:"final_rows"`
	RecordsRemoved    int            `json:"records_removed"`
	RemovalPercentage float64        `json:"removal_percentage"`
	Operations        []CleaningStep `json:"operations"`
}

// rowStep transforms an untyped snapshot into a new one.
type rowStep struct {
	name  string
	apply func([]model.GenericRecord) ([]model.GenericRecord, map[string]interface{})
}

// txnStep transforms a typed snapshot into a new one.
type txnStep struct {
	name  string
	apply func([]model.Transaction) ([]model.Transaction, map[string]interface{})
}

// Cleaner turns raw rows into a typed dataset. Every step returns a fresh
// snapshot; the input RawData is never modified.
type Cleaner struct {
	raw       *RawData
	threshold float64
	steps     []CleaningStep
}

// NewCleaner prepares a cleaning pass over raw.
func NewCleaner(raw *RawData, threshold float64) *Cleaner {
	if threshold <= 0 {
		threshold = DefaultOutlierThreshold
	}
	return &Cleaner{raw: raw, threshold: threshold}
}

// Clean is shorthand for NewCleaner(raw, threshold).Run(ctx).
func Clean(ctx context.Context, raw *RawData, threshold float64) (*model.Dataset, CleaningReport, error) {
	return NewCleaner(raw, threshold).Run(ctx)
}

// Run applies the cleaning steps in order and returns the cleaned dataset.
func (c *Cleaner) Run(ctx context.Context) (*model.Dataset, CleaningReport, error) {
	if c.raw == nil {
		return nil, CleaningReport{}, errors.Prerequisite(model.StageCleaning, "raw data")
	}
	caps := c.raw.Capabilities
	for _, col := range []string{model.ColQuantity, model.ColAmount} {
		if !caps.Has(col) {
			return nil, CleaningReport{}, errors.Schema(model.StageCleaning, col)
		}
	}

	rows := c.raw.Records
	for _, step := range []rowStep{
		{"remove_duplicates", c.removeDuplicates},
		{"handle_missing_values", c.handleMissing},
		{"remove_cancelled_transactions", removeCancelled},
	} {
		if err := ctx.Err(); err != nil {
			return nil, CleaningReport{}, err
		}
		var details map[string]interface{}
		rows, details = step.apply(rows)
		c.record(step.name, details, len(rows))
	}

	txns, details := c.standardize(rows)
	c.record("standardize_data_types", details, len(txns))

	for _, step := range []txnStep{
		{"clean_text_columns", cleanText},
		{"remove_outliers", c.outliers(model.ColQuantity, func(t *model.Transaction) float64 { return float64(t.Quantity) })},
		{"remove_outliers", c.outliers(model.ColAmount, func(t *model.Transaction) float64 { return t.Amount })},
	} {
		if err := ctx.Err(); err != nil {
			return nil, CleaningReport{}, err
		}
		txns, details = step.apply(txns)
		c.record(step.name, details, len(txns))
	}

	ds := &model.Dataset{Records: txns, Capabilities: caps, Source: c.raw.Source}
	report := CleaningReport{
		OriginalRows:   len(c.raw.Records),
		FinalRows:      len(txns),
		RecordsRemoved: len(c.raw.Records) - len(txns),
		Operations:     c.steps,
	}
	report.RemovalPercentage = utils.Round(utils.SafeDiv(float64(report.RecordsRemoved), float64(report.OriginalRows))*100, 2)

	logger.Named("cleaning").Infow("Cleaning complete", "original_rows", report.OriginalRows,
		"final_rows", report.FinalRows, "removed_pct", report.RemovalPercentage)
	return ds, report, nil
}

func (c *Cleaner) record(op string, details map[string]interface{}, after int) {
	c.steps = append(c.steps, CleaningStep{Operation: op, Details: details, RecordsAfter: after})
	logger.Named("cleaning").Debugw(op, "details", details, "records_after", after)
}

func (c *Cleaner) removeDuplicates(rows []model.GenericRecord) ([]model.GenericRecord, map[string]interface{}) {
	seen := make(map[string]struct{}, len(rows))
	out := make([]model.GenericRecord, 0, len(rows))
	for _, rec := range rows {
		key := rowKey(rec, c.raw.Columns)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, rec)
	}
	return out, map[string]interface{}{"removed": len(rows) - len(out)}
}

func (c *Cleaner) handleMissing(rows []model.GenericRecord) ([]model.GenericRecord, map[string]interface{}) {
	caps := c.raw.Capabilities
	out := make([]model.GenericRecord, 0, len(rows))
	filled := 0
	for _, rec := range rows {
		if caps.HasCustomerID && rec[model.ColCustomerID] == nil {
			continue
		}
		if caps.HasDescription && rec[model.ColDescription] == nil {
			cp := make(model.GenericRecord, len(rec))
			for k, v := range rec {
				cp[k] = v
			}
			cp[model.ColDescription] = "Unknown"
			rec = cp
			filled++
		}
		out = append(out, rec)
	}
	return out, map[string]interface{}{
		"strategy":            "drop_customers",
		"removed":             len(rows) - len(out),
		"descriptions_filled": filled,
	}
}

func removeCancelled(rows []model.GenericRecord) ([]model.GenericRecord, map[string]interface{}) {
	out := make([]model.GenericRecord, 0, len(rows))
	for _, rec := range rows {
		if q, ok := utils.Numeric(rec[model.ColQuantity]); ok && q > 0 {
			out = append(out, rec)
		}
	}
	return out, map[string]interface{}{"removed": len(rows) - len(out)}
}

// standardize converts the untyped rows into transactions, dropping rows whose
// mandatory values cannot be coerced.
func (c *Cleaner) standardize(rows []model.GenericRecord) ([]model.Transaction, map[string]interface{}) {
	caps := c.raw.Capabilities
	dropped := map[string]int{}
	out := make([]model.Transaction, 0, len(rows))

	for _, rec := range rows {
		t := model.Transaction{
			TransactionID:   utils.String(rec[model.ColTransactionID]),
			ProductCode:     utils.String(rec[model.ColProductCode]),
			Description:     utils.String(rec[model.ColDescription]),
			ProductCategory: utils.String(rec[model.ColProductCategory]),
			Country:         utils.String(rec[model.ColCountry]),
		}
		if caps.HasCustomerID {
			id, ok := utils.Numeric(rec[model.ColCustomerID])
			if !ok {
				dropped["invalid_customer_id"]++
				continue
			}
			t.CustomerID = int64(id)
		}
		if caps.HasTransactionDate {
			d, ok := utils.ParseDate(rec[model.ColTransactionDate])
			if !ok {
				dropped["invalid_date"]++
				continue
			}
			t.Date = d
		}
		q, _ := utils.Numeric(rec[model.ColQuantity])
		t.Quantity = int(q)
		if caps.HasUnitPrice {
			t.UnitPrice, _ = utils.Numeric(rec[model.ColUnitPrice])
		}
		amount, ok := utils.Numeric(rec[model.ColAmount])
		if !ok {
			dropped["invalid_amount"]++
			continue
		}
		if amount < 0 {
			dropped["negative_amount"]++
			continue
		}
		t.Amount = amount
		out = append(out, t)
	}

	types := map[string]string{
		model.ColQuantity: "int",
		model.ColAmount:   "float",
	}
	if caps.HasCustomerID {
		types[model.ColCustomerID] = "int"
	}
	if caps.HasTransactionDate {
		types[model.ColTransactionDate] = "datetime"
	}
	if caps.HasUnitPrice {
		types[model.ColUnitPrice] = "float"
	}
	return out, map[string]interface{}{"type_changes": types, "dropped": dropped}
}

func cleanText(txns []model.Transaction) ([]model.Transaction, map[string]interface{}) {
	titleCase := cases.Title(language.Und)
	out := make([]model.Transaction, len(txns))
	for i, t := range txns {
		t.Description = strings.TrimSpace(t.Description)
		t.ProductCategory = strings.TrimSpace(t.ProductCategory)
		t.Country = titleCase.String(strings.TrimSpace(t.Country))
		out[i] = t
	}
	return out, map[string]interface{}{
		"columns": []string{model.ColDescription, model.ColProductCategory, model.ColCountry},
	}
}

// outliers drops rows outside [Q1 - k*IQR, Q3 + k*IQR] of the column.
func (c *Cleaner) outliers(column string, value func(*model.Transaction) float64) func([]model.Transaction) ([]model.Transaction, map[string]interface{}) {
	return func(txns []model.Transaction) ([]model.Transaction, map[string]interface{}) {
		details := map[string]interface{}{"column": column, "method": "iqr", "threshold": c.threshold}
		if len(txns) == 0 {
			details["removed"] = 0
			return txns, details
		}
		values := make([]float64, len(txns))
		for i := range txns {
			values[i] = value(&txns[i])
		}
		sorted := analytics.Sorted(values)
		q1 := analytics.Quantile(sorted, 0.25)
		q3 := analytics.Quantile(sorted, 0.75)
		iqr := q3 - q1
		lower, upper := q1-c.threshold*iqr, q3+c.threshold*iqr

		out := make([]model.Transaction, 0, len(txns))
		for i, t := range txns {
			if values[i] >= lower && values[i] <= upper {
				out = append(out, t)
			}
		}
		details["lower_bound"] = utils.Round(lower, 4)
		details["upper_bound"] = utils.Round(upper, 4)
		details["removed"] = len(txns) - len(out)
		return out, details
	}
}
