package pipeline

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

// flakyStore fails the first write of each table with a lock error.
type flakyStore struct {
	mu     sync.Mutex
	calls  map[string]int
	tables map[string]model.Table
}

func newFlakyStore() *flakyStore {
	return &flakyStore{calls: map[string]int{}, tables: map[string]model.Table{}}
}

func (s *flakyStore) WriteTable(_ context.Context, t model.Table) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls[t.Name]++
	if s.calls[t.Name] == 1 {
		return errors.New("database is locked")
	}
	s.tables[t.Name] = t
	return nil
}

func sampleTable() model.Table {
	return model.Table{
		Name:    "customer_ltv",
		Columns: []string{"customer_id", "clv", "tier"},
		Rows: [][]interface{}{
			{int64(1), 120.5, "High"},
			{int64(2), nil, "Low"},
		},
	}
}

func TestExportWritesFilesAndStore(t *testing.T) {
	dir := t.TempDir()
	store := newFlakyStore()
	e := &Exporter{Dir: dir, Formats: []string{FormatCSV, FormatXLSX}, Store: store, Retry: fastRetry()}

	results := e.Export(context.Background(), []model.Table{sampleTable()})
	require.Len(t, results, 3)
	for _, r := range results {
		assert.True(t, r.Success, "%s: %s", r.Type, r.Error)
		assert.Equal(t, 2, r.RecordCount)
	}
	assert.Equal(t, 2, store.calls["customer_ltv"])

	f, err := os.Open(filepath.Join(dir, "customer_ltv.csv"))
	require.NoError(t, err)
	defer f.Close()
	lines, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"customer_id", "clv", "tier"},
		{"1", "120.5", "High"},
		{"2", "", "Low"},
	}, lines)

	wb, err := excelize.OpenFile(filepath.Join(dir, "customer_ltv.xlsx"))
	require.NoError(t, err)
	defer wb.Close()
	rows, err := wb.GetRows("customer_ltv")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"customer_id", "clv", "tier"}, rows[0])
	assert.Equal(t, "High", rows[1][2])
}

func TestExportReportsUnknownFormat(t *testing.T) {
	e := &Exporter{Dir: t.TempDir(), Formats: []string{"parquet"}}

	results := e.Export(context.Background(), []model.Table{sampleTable()})
	require.Len(t, results, 1)
	assert.False(t, results[0].Success)
	assert.Zero(t, results[0].RecordCount)
	assert.Contains(t, results[0].Error, "parquet")
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "rfm_analysis", sheetName("rfm_analysis"))
	assert.Len(t, sheetName("a_very_long_table_name_that_excel_rejects"), 31)
}
