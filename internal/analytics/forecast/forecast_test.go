package forecast

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

func monthly(values ...float64) *model.Dataset {
	var records []model.Transaction
	for i, v := range values {
		records = append(records, model.Transaction{
			TransactionID: fmt.Sprintf("T%d", i),
			CustomerID:    1,
			Date:          time.Date(2023, time.Month(1+i), 15, 12, 0, 0, 0, time.UTC),
			Quantity:      1,
			Amount:        v,
		})
	}
	return &model.Dataset{Records: records, Capabilities: model.CapabilitiesFromColumns(model.RequiredColumns)}
}

func linearSeries() *model.Dataset {
	values := make([]float64, 10)
	for x := range values {
		values[x] = 2*float64(x) + 5
	}
	return monthly(values...)
}

func TestResampleMonthly(t *testing.T) {
	ds := monthly(10, 20)
	ds.Records = append(ds.Records, model.Transaction{
		TransactionID: "extra", CustomerID: 2, Quantity: 3, Amount: 5,
		Date: time.Date(2023, 1, 2, 0, 0, 0, 0, time.UTC),
	})

	series, err := Resample(ds.Records, "M")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC), series[0].Date)
	assert.Equal(t, 15.0, series[0].Revenue)
	assert.Equal(t, 2, series[0].Transactions)
	assert.Equal(t, 4, series[0].Quantity)
}

func TestResampleNormalisesOffsets(t *testing.T) {
	east := time.FixedZone("east", 5*3600)
	west := time.FixedZone("west", -3*3600)
	records := []model.Transaction{
		{TransactionID: "a", Date: time.Date(2024, 3, 20, 12, 0, 0, 0, west), Amount: 2},
		{TransactionID: "b", Date: time.Date(2024, 3, 10, 12, 0, 0, 0, east), Amount: 1},
		{TransactionID: "c", Date: time.Date(2024, 2, 28, 12, 0, 0, 0, west), Amount: 4},
	}
	series, err := Resample(records, "M")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), series[0].Date)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), series[1].Date)
	assert.Equal(t, 3.0, series[1].Revenue)
	assert.Equal(t, 2, series[1].Transactions)
}

func TestResampleWeeklyStartsOnMonday(t *testing.T) {
	records := []model.Transaction{
		{TransactionID: "a", Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Amount: 1},
		{TransactionID: "b", Date: time.Date(2024, 1, 7, 23, 0, 0, 0, time.UTC), Amount: 2},
		{TransactionID: "c", Date: time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), Amount: 4},
	}
	series, err := Resample(records, "W")
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), series[0].Date)
	assert.Equal(t, 3.0, series[0].Revenue)

	_, err = Resample(records, "Q")
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestLinearTrendRecoversLine(t *testing.T) {
	series, err := New(linearSeries(), Params{}).Series()
	require.NoError(t, err)

	f, err := LinearTrend(series, "M", 6)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, f.Parameters["slope"], 1e-9)
	assert.InDelta(t, 5.0, f.Parameters["intercept"], 1e-9)
	assert.InDelta(t, 1.0, f.Parameters["r_squared"], 1e-9)
	require.Len(t, f.Forecast, 6)
	assert.Equal(t, 25.0, f.Forecast[0].Revenue)
	assert.Equal(t, "2023-11-01", f.Forecast[0].Date)
	assert.Equal(t, "2024-01-01", f.Forecast[2].Date)
	assert.Equal(t, 5.0, *f.Historical[0].Trend)
}

func TestLinearTrendClipsNegative(t *testing.T) {
	series, err := Resample(monthly(10, 5).Records, "M")
	require.NoError(t, err)

	f, err := LinearTrend(series, "M", 2)
	require.NoError(t, err)
	assert.Equal(t, 0.0, f.Forecast[0].Revenue)
	assert.Equal(t, 0.0, f.Forecast[1].Revenue)

	_, err = LinearTrend(series[:1], "M", 2)
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
}

func TestConstantSeriesHasPerfectFit(t *testing.T) {
	series, err := Resample(monthly(7, 7, 7).Records, "M")
	require.NoError(t, err)
	f, err := LinearTrend(series, "M", 1)
	require.NoError(t, err)
	assert.Equal(t, 1.0, f.Parameters["r_squared"])
	assert.Equal(t, 7.0, f.Forecast[0].Revenue)
}

func TestMovingAverageIsFlat(t *testing.T) {
	series, err := New(linearSeries(), Params{}).Series()
	require.NoError(t, err)

	f, err := MovingAverage(series, "M", 3, 6)
	require.NoError(t, err)
	require.Len(t, f.Forecast, 6)
	for _, p := range f.Forecast {
		assert.Equal(t, 21.0, p.Revenue)
	}
	assert.Equal(t, 126.0, f.Total)

	short, err := MovingAverage(series[:2], "M", 3, 1)
	require.NoError(t, err)
	assert.Equal(t, 6.0, short.Forecast[0].Revenue)
}

func TestExponentialSmoothing(t *testing.T) {
	series, err := Resample(monthly(10, 20, 30).Records, "M")
	require.NoError(t, err)

	f, err := ExponentialSmoothing(series, "M", 0.5, 2)
	require.NoError(t, err)
	// 10 -> 15 -> 22.5
	assert.Equal(t, 22.5, f.Forecast[0].Revenue)
	assert.Equal(t, 22.5, f.Forecast[1].Revenue)
	assert.Equal(t, 15.0, *f.Historical[1].Smoothed)

	_, err = ExponentialSmoothing(series, "M", 1.5, 2)
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestSeasonal(t *testing.T) {
	values := make([]float64, 24)
	for i := range values {
		values[i] = 100
		if i%12 == 11 {
			values[i] = 300
		}
	}
	series, err := Resample(monthly(values...).Records, "M")
	require.NoError(t, err)

	s, err := Seasonal(series, "M")
	require.NoError(t, err)
	require.Len(t, s.Indices, 12)
	assert.Equal(t, "Dec", s.Peak)
	assert.Equal(t, "Jan", s.Low)
	assert.Equal(t, 2.571, s.Indices[11].SeasonalIndex)
	assert.Equal(t, 0.857, s.Indices[0].SeasonalIndex)
	assert.Greater(t, s.Strength, 0.0)

	_, err = Seasonal(series[:11], "M")
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))
	_, err = Seasonal(series, "W")
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestRunReport(t *testing.T) {
	a, err := New(linearSeries(), Params{Periods: 6}).Run()
	require.NoError(t, err)
	report := a.Report()

	assert.Equal(t, 6, report.ForecastHorizon)
	assert.Equal(t, "M", report.Frequency)
	assert.Equal(t, 10, report.HistoricalPeriods)
	assert.Len(t, report.Forecasts, 3)
	assert.Contains(t, report.Seasonal.Error, "need at least 12 periods")

	cmp := report.Comparison
	assert.Nil(t, cmp.BestMethod)
	require.Len(t, cmp.Methods, 3)
	require.NotNil(t, cmp.Summary)
	assert.LessOrEqual(t, cmp.Summary.MinForecast, cmp.Summary.AverageForecast)
	assert.GreaterOrEqual(t, cmp.Summary.MaxForecast, cmp.Summary.AverageForecast)

	assert.Len(t, a.Table().Rows, 10)
}

func TestSinglePeriodKeepsOtherMethods(t *testing.T) {
	a, err := New(monthly(100), Params{Periods: 3}).Run()
	require.NoError(t, err)
	report := a.Report()

	assert.Equal(t, 1, report.HistoricalPeriods)
	assert.Contains(t, report.Forecasts, MethodMovingAverage)
	assert.Contains(t, report.Forecasts, MethodExponentialSmoothing)
	assert.NotContains(t, report.Forecasts, MethodLinearTrend)
	assert.Contains(t, report.MethodErrors[MethodLinearTrend], "need at least 2 periods")
	assert.NotEmpty(t, report.Seasonal.Error)

	require.Len(t, report.Comparison.Methods, 2)
	for _, m := range report.Comparison.Methods {
		assert.NotEqual(t, MethodLinearTrend, m.Method)
	}
}

func TestInvalidMethodParametersFailRun(t *testing.T) {
	_, err := New(linearSeries(), Params{Alpha: 1.5}).Run()
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestMissingDateColumn(t *testing.T) {
	ds := linearSeries()
	ds.Capabilities.HasTransactionDate = false
	_, err := New(ds, Params{}).Run()
	assert.True(t, errors.Is(err, errors.ErrSchema))
}
