package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

func openTest(t *testing.T) *Warehouse {
	t.Helper()
	w, err := Open(filepath.Join(t.TempDir(), "nested", "analytics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWriteTableReplaces(t *testing.T) {
	w := openTest(t)
	ctx := context.Background()

	table := model.Table{
		Name:    "rfm_analysis",
		Columns: []string{"customer_id", "monetary", "segment", "note"},
		Rows: [][]interface{}{
			{int64(1), 10.5, "Champions", nil},
			{int64(2), 3, "At Risk", "x"},
		},
	}
	require.NoError(t, w.WriteTable(ctx, table))

	n, err := w.Count(ctx, "rfm_analysis")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	table.Rows = table.Rows[:1]
	require.NoError(t, w.WriteTable(ctx, table))
	n, err = w.Count(ctx, "rfm_analysis")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	var segment string
	var monetary float64
	require.NoError(t, w.db.QueryRow(`SELECT segment, monetary FROM "rfm_analysis"`).Scan(&segment, &monetary))
	assert.Equal(t, "Champions", segment)
	assert.Equal(t, 10.5, monetary)

	tables, err := w.Tables(ctx)
	require.NoError(t, err)
	require.Len(t, tables, 1)
	assert.Equal(t, "rfm_analysis", tables[0].Name)
	assert.Equal(t, table.Columns, tables[0].Columns)
	assert.Equal(t, 1, tables[0].RowCount)
	assert.False(t, tables[0].UpdatedAt.IsZero())
}

func TestWriteTableRejectsEmptySchema(t *testing.T) {
	w := openTest(t)
	err := w.WriteTable(context.Background(), model.Table{Name: "x"})
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))

	err = w.WriteTable(context.Background(), model.Table{Name: catalogTable, Columns: []string{"a"}})
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestColumnType(t *testing.T) {
	table := model.Table{
		Columns: []string{"a", "b", "c", "d"},
		Rows: [][]interface{}{
			{1, 1, "x", nil},
			{2, 2.5, 3, nil},
		},
	}
	assert.Equal(t, "INTEGER", columnType(table, 0))
	assert.Equal(t, "REAL", columnType(table, 1))
	assert.Equal(t, "TEXT", columnType(table, 2))
	assert.Equal(t, "TEXT", columnType(table, 3))
}
