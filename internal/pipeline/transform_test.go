package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

func rawOf(columns []string, rows ...model.GenericRecord) *RawData {
	return &RawData{
		Source:       "test",
		Columns:      columns,
		Records:      rows,
		Capabilities: model.CapabilitiesFromColumns(columns),
	}
}

var cleanColumns = []string{
	model.ColTransactionID, model.ColCustomerID, model.ColTransactionDate,
	model.ColQuantity, model.ColAmount, model.ColDescription, model.ColCountry,
}

func row(id string, customer interface{}, date interface{}, qty interface{}, amount interface{}) model.GenericRecord {
	return model.GenericRecord{
		model.ColTransactionID:   id,
		model.ColCustomerID:      customer,
		model.ColTransactionDate: date,
		model.ColQuantity:        qty,
		model.ColAmount:          amount,
		model.ColDescription:     "Mug",
		model.ColCountry:         "united kingdom",
	}
}

func TestCleanDropsInvalidRows(t *testing.T) {
	good := row("A", 1, "2023-01-01", 2, 10.0)
	noDesc := row("B", 2, "2023-01-02", 1, 5.0)
	noDesc[model.ColDescription] = nil

	raw := rawOf(cleanColumns,
		good,
		row("A", 1, "2023-01-01", 2, 10.0),  // duplicate
		row("C", nil, "2023-01-01", 1, 3.0), // no customer
		row("D", 3, "2023-01-01", -1, 3.0),  // cancelled
		row("E", 4, "not a date", 1, 3.0),
		row("F", 5, "2023-01-03", 1, -2.0),
		row("G", "abc", "2023-01-03", 1, 2.0),
		noDesc,
	)

	ds, report, err := Clean(context.Background(), raw, 0)
	require.NoError(t, err)

	require.Equal(t, 2, ds.Len())
	assert.Equal(t, 8, report.OriginalRows)
	assert.Equal(t, 2, report.FinalRows)
	assert.Equal(t, 6, report.RecordsRemoved)
	assert.Equal(t, 75.0, report.RemovalPercentage)

	ops := make([]string, len(report.Operations))
	for i, op := range report.Operations {
		ops[i] = op.Operation
	}
	assert.Equal(t, []string{
		"remove_duplicates", "handle_missing_values", "remove_cancelled_transactions",
		"standardize_data_types", "clean_text_columns", "remove_outliers", "remove_outliers",
	}, ops)

	assert.Equal(t, "United Kingdom", ds.Records[0].Country)
	assert.Equal(t, "Unknown", ds.Records[1].Description)
	assert.Nil(t, raw.Records[7][model.ColDescription], "input must not be modified")
}

func TestCleanRemovesOutliers(t *testing.T) {
	var rows []model.GenericRecord
	for i := 0; i < 20; i++ {
		rows = append(rows, row(string(rune('a'+i)), i+1, "2023-02-01", 1, 10.0+float64(i%3)))
	}
	rows = append(rows, row("z", 99, "2023-02-01", 1, 10000.0))

	ds, report, err := Clean(context.Background(), rawOf(cleanColumns, rows...), 3)
	require.NoError(t, err)
	assert.Equal(t, 20, ds.Len())

	last := report.Operations[len(report.Operations)-1]
	assert.Equal(t, model.ColAmount, last.Details["column"])
	assert.Equal(t, 1, last.Details["removed"])
}

func TestCleanRequiresAmount(t *testing.T) {
	raw := rawOf([]string{model.ColCustomerID, model.ColQuantity}, model.GenericRecord{
		model.ColCustomerID: 1, model.ColQuantity: 1,
	})
	_, _, err := Clean(context.Background(), raw, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSchema))
}

func TestCleanWithoutRawData(t *testing.T) {
	_, _, err := Clean(context.Background(), nil, 0)
	assert.True(t, errors.Is(err, errors.ErrPrerequisite))
}
