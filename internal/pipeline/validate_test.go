package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

func TestValidateDatasetAccepts(t *testing.T) {
	path := writeRetailCSV(t, t.TempDir(), "ok.csv", 10, 12)

	v, err := ValidateDataset(context.Background(), path, DefaultMinRows)
	require.NoError(t, err)
	assert.True(t, v.IsValid)
	assert.Equal(t, 120, v.Rows)
	assert.Empty(t, v.MissingRequired)
}

func TestValidateDatasetTooSmall(t *testing.T) {
	path := writeRetailCSV(t, t.TempDir(), "small.csv", 2, 3)

	v, err := ValidateDataset(context.Background(), path, DefaultMinRows)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	assert.False(t, v.IsValid)
	assert.Contains(t, v.Error, "6 rows")
}

func TestValidateDatasetMissingColumns(t *testing.T) {
	var b strings.Builder
	b.WriteString("customer_id,quantity\n")
	for i := 0; i < 5; i++ {
		b.WriteString("1,2\n")
	}
	path := writeFile(t, t.TempDir(), "partial.csv", b.String())

	v, err := ValidateDataset(context.Background(), path, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrSchema))
	assert.Equal(t, []string{model.ColTransactionID, model.ColTransactionDate, model.ColAmount}, v.MissingRequired)
}

func TestValidateDatasetWarnsOnNulls(t *testing.T) {
	rows := retailRows(5, 2)
	for i := range rows {
		// blank out the category column
		parts := strings.Split(rows[i], ",")
		parts[8] = ""
		rows[i] = strings.Join(parts, ",")
	}
	path := writeFile(t, t.TempDir(), "nulls.csv", retailHeader+"\n"+strings.Join(rows, "\n"))

	v, err := ValidateDataset(context.Background(), path, 5)
	require.NoError(t, err)
	require.Len(t, v.Warnings, 1)
	assert.Contains(t, v.Warnings[0], model.ColProductCategory)
	assert.Contains(t, v.Warnings[0], "100.0%")
}
