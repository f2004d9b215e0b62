package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

func TestNormalizeHeader(t *testing.T) {
	cases := map[string]string{
		"\ufeffInvoiceNo":  model.ColTransactionID,
		"Customer ID":      model.ColCustomerID,
		`"UnitPrice"`:      model.ColUnitPrice,
		"Transaction Date": model.ColTransactionDate,
		"stock-code":       model.ColProductCode,
		"  Country ":       model.ColCountry,
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeHeader(in), in)
	}
}

func TestIngestCSVResolvesAliases(t *testing.T) {
	dir := t.TempDir()
	path := writeRetailCSV(t, dir, "retail.csv", 3, 2)

	raw, err := Ingest(context.Background(), path)
	require.NoError(t, err)

	assert.Len(t, raw.Records, 6)
	assert.Contains(t, raw.Columns, model.ColTransactionID)
	assert.Contains(t, raw.Columns, model.ColAmount)
	assert.True(t, raw.Capabilities.HasProductCategory)
	assert.Empty(t, raw.Capabilities.Missing(model.RequiredColumns...))

	first := raw.Records[0]
	assert.Equal(t, 1001, first[model.ColCustomerID])
	assert.Equal(t, "T1-1", first[model.ColTransactionID])
}

func TestIngestSkipsBlankRows(t *testing.T) {
	path := writeFile(t, t.TempDir(), "blank.csv",
		"customer_id,transaction_amount\n1,2.5\n,\n2,3\n")

	raw, err := Ingest(context.Background(), path)
	require.NoError(t, err)
	assert.Len(t, raw.Records, 2)
}

func TestIngestJSON(t *testing.T) {
	path := writeFile(t, t.TempDir(), "retail.json", `[
		{"CustomerID": 7, "InvoiceNo": "A1", "InvoiceDate": "2023-01-02", "Quantity": "3", "Amount": 9.5},
		{"CustomerID": 8, "InvoiceNo": "A2", "InvoiceDate": "2023-01-03", "Quantity": 1, "Amount": 4}
	]`)

	raw, err := Ingest(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, raw.Records, 2)
	assert.Equal(t, 3, raw.Records[0][model.ColQuantity])
	assert.Equal(t, "A2", raw.Records[1][model.ColTransactionID])
	assert.Empty(t, raw.Capabilities.Missing(model.RequiredColumns...))
}

func TestIngestRejectsUnknownFormat(t *testing.T) {
	path := writeFile(t, t.TempDir(), "data.parquet", "x")

	_, err := Ingest(context.Background(), path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestIngestionReportCountsDuplicatesAndNulls(t *testing.T) {
	path := writeFile(t, t.TempDir(), "dups.csv",
		"customer_id,transaction_amount,country\n1,2.5,UK\n1,2.5,UK\n2,,FR\n")

	raw, err := Ingest(context.Background(), path)
	require.NoError(t, err)

	report := raw.Report()
	assert.Equal(t, 1, report.Quality.DuplicateRows)
	assert.Equal(t, 1, report.Quality.NullCounts[model.ColAmount])
	assert.Equal(t, 2, report.Quality.UniqueCounts[model.ColCountry])
	assert.False(t, report.Validation.IsValid)
	assert.Contains(t, report.Validation.MissingColumns, model.ColTransactionDate)
}
