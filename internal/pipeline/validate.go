package pipeline

import (
	"context"
	"fmt"
	"sort"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// DefaultMinRows is the smallest dataset that can be activated.
const DefaultMinRows = 100

// nullWarningPct is the per-column null share above which a warning is raised.
const nullWarningPct = 50.0

// ValidateDataset loads path and checks that it can back a pipeline run.
// The returned validation is always populated; err is non-nil when the
// dataset must not be activated.
func ValidateDataset(ctx context.Context, path string, minRows int) (model.DatasetValidation, error) {
	v := model.DatasetValidation{Warnings: []string{}, MissingRequired: []string{}}

	raw, err := Ingest(ctx, path)
	if err != nil {
		v.Error = err.Error()
		return v, err
	}
	return validateRaw(raw, minRows)
}

func validateRaw(raw *RawData, minRows int) (model.DatasetValidation, error) {
	if minRows <= 0 {
		minRows = DefaultMinRows
	}
	v := model.DatasetValidation{
		Rows:            len(raw.Records),
		Columns:         len(raw.Columns),
		ColumnNames:     raw.Columns,
		MissingRequired: []string{},
		Warnings:        []string{},
	}

	if v.Rows < minRows {
		err := errors.InsufficientData("dataset too small: %d rows, minimum %d required", v.Rows, minRows)
		v.Error = err.Error()
		return v, err
	}

	if missing := raw.Capabilities.Missing(model.RequiredColumns...); len(missing) > 0 {
		v.MissingRequired = missing
		err := errors.Schema("dataset activation", missing[0])
		v.Error = fmt.Sprintf("missing required columns: %v", missing)
		return v, err
	}

	for _, w := range nullWarnings(raw) {
		v.Warnings = append(v.Warnings, w)
	}
	v.IsValid = true
	return v, nil
}

// nullWarnings flags columns where more than half of the values are empty.
func nullWarnings(raw *RawData) []string {
	var warnings []string
	cols := append([]string(nil), raw.Columns...)
	sort.Strings(cols)
	for _, col := range cols {
		nulls := 0
		for _, rec := range raw.Records {
			if rec[col] == nil {
				nulls++
			}
		}
		pct := utils.SafeDiv(float64(nulls), float64(len(raw.Records))) * 100
		if pct > nullWarningPct {
			warnings = append(warnings, fmt.Sprintf("High null percentage detected in %s: %.1f%%", col, pct))
		}
	}
	return warnings
}
