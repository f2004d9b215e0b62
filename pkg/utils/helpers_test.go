package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
)

func TestParseValue(t *testing.T) {
	assert.Equal(t, 42, ParseValue(" 42 "))
	assert.Equal(t, 2.5, ParseValue("2.5"))
	assert.Equal(t, "536365", String(ParseValue("536365")))
	assert.Equal(t, "C536379", ParseValue("C536379"))
	assert.Nil(t, ParseValue("   "))
}

func TestNumeric(t *testing.T) {
	v, ok := Numeric(3)
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	v, ok = Numeric("17850.0")
	assert.True(t, ok)
	assert.Equal(t, 17850.0, v)

	_, ok = Numeric(nil)
	assert.False(t, ok)
	_, ok = Numeric("abc")
	assert.False(t, ok)
}

func TestParseDate(t *testing.T) {
	want := time.Date(2010, 12, 1, 8, 26, 0, 0, time.UTC)
	for _, in := range []string{"2010-12-01 08:26:00", "12/1/2010 8:26", "12/1/10 8:26"} {
		got, ok := ParseDate(in)
		require.True(t, ok, in)
		assert.True(t, want.Equal(got), in)
	}

	got, ok := ParseDate(40513.0) // 2010-12-01 as a spreadsheet serial
	require.True(t, ok)
	assert.Equal(t, "2010-12-01", got.Format("2006-01-02"))

	_, ok = ParseDate("not a date")
	assert.False(t, ok)
}

func TestRoundHalfEven(t *testing.T) {
	assert.Equal(t, 2.5, Round(2.5, 2))
	assert.Equal(t, 0.12, Round(0.125, 2))
	assert.Equal(t, 1.0, Round(1.0000001, 4))
	assert.Equal(t, 2.0, Round(2.5, 0))
}

func TestWholeDays(t *testing.T) {
	assert.Equal(t, 1, WholeDays(36*time.Hour))
	assert.Equal(t, 0, WholeDays(23*time.Hour))
}

func TestOutputManager(t *testing.T) {
	om := NewOutputManager(t.TempDir())

	dir, err := om.CreateRunOutputDir("run-1")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(om.BaseOutputDir, "run-1"), dir)
	path := filepath.Join(dir, "rfm_analysis.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0644))

	files, err := om.ListOutputs()
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "csv", files[0].Type)
	assert.Equal(t, "/api/v1/exports/run-1/rfm_analysis.csv", files[0].DownloadURL)

	_, err = om.ResolveFile("run-1", "../../etc/passwd")
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
	_, err = om.ResolveFile("run-1", "absent.csv")
	assert.True(t, errors.Is(err, errors.ErrNotFound))
	resolved, err := om.ResolveFile("run-1", "rfm_analysis.csv")
	require.NoError(t, err)
	assert.Equal(t, path, resolved)

	assert.Equal(t, "report_20240131_150405.html",
		TimestampedFilename("report", ".html", time.Date(2024, 1, 31, 15, 4, 5, 0, time.UTC)))
}
