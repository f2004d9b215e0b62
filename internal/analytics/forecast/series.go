// Package forecast resamples transactions into a revenue series and projects
// it forward with simple statistical methods.
package forecast

import (
	"time"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// Point is one period of the revenue series.
type Point struct {
	Date         time.Time `json:"date"`
	Revenue      float64   `json:"revenue"`
	Transactions int       `json:"transactions"`
	Quantity     int       `json:"quantity"`
}

// ValidFrequency reports whether freq is D, W or M.
func ValidFrequency(freq string) bool {
	switch freq {
	case analytics.Daily, analytics.Weekly, analytics.Monthly:
		return true
	}
	return false
}

// Resample sums revenue and quantity and counts distinct transactions per
// period. Periods without transactions are absent; the result is ordered by
// period start.
func Resample(records []model.Transaction, freq string) ([]Point, error) {
	if !ValidFrequency(freq) {
		return nil, errors.InvalidParameter("forecasting: unknown frequency %q", freq)
	}
	// periods are cut in UTC so mixed offsets share keys that sort chronologically
	groups := analytics.GroupBy(records, func(r *model.Transaction) string {
		return analytics.PeriodStart(r.Date.UTC(), freq).Format(time.RFC3339)
	})

	series := make([]Point, 0, len(groups))
	for _, g := range groups {
		start, err := time.Parse(time.RFC3339, g.Key)
		if err != nil {
			return nil, errors.Computation(err, "forecasting: period key %q", g.Key)
		}
		series = append(series, Point{
			Date:         start,
			Revenue:      g.Revenue,
			Transactions: g.Transactions,
			Quantity:     g.Quantity,
		})
	}
	return series, nil
}

// futureDates returns the n period starts following last.
func futureDates(last time.Time, freq string, n int) []time.Time {
	out := make([]time.Time, n)
	next := last
	for i := range out {
		next = analytics.NextPeriod(next, freq)
		out[i] = next
	}
	return out
}

func revenues(series []Point) []float64 {
	out := make([]float64, len(series))
	for i, p := range series {
		out[i] = p.Revenue
	}
	return out
}

// SeriesTable exposes the resampled series for export.
func SeriesTable(series []Point) model.Table {
	t := model.Table{
		Name:    "forecast_series",
		Columns: []string{"period", "revenue", "transactions", "quantity"},
		Rows:    make([][]interface{}, len(series)),
	}
	for i, p := range series {
		t.Rows[i] = []interface{}{p.Date.Format(dateLayout), utils.Round(p.Revenue, 2), p.Transactions, p.Quantity}
	}
	return t
}
