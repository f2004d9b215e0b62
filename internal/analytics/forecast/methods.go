package forecast

import (
	"math"
	"time"

	"gonum.org/v1/gonum/stat"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/errors"
	"go-customer-intel/pkg/utils"
)

const dateLayout = "2006-01-02"

// Method keys as they appear in reports
const (
	MethodMovingAverage        = "moving_average"
	MethodLinearTrend          = "linear_trend"
	MethodExponentialSmoothing = "exponential_smoothing"
)

// HistoricalPoint is an observed period with the method's fitted value.
type HistoricalPoint struct {
	Date     string   `json:"date"`
	Revenue  float64  `json:"revenue"`
	Trend    *float64 `json:"trend,omitempty"`
	Smoothed *float64 `json:"smoothed,omitempty"`
}

// ForecastPoint is one projected period.
type ForecastPoint struct {
	Date    string  `json:"date"`
	Revenue float64 `json:"revenue"`
}

// Forecast is the output of one method.
type Forecast struct {
	Method     string             `json:"method"`
	Parameters map[string]float64 `json:"parameters"`
	Historical []HistoricalPoint  `json:"historical"`
	Forecast   []ForecastPoint    `json:"forecast"`
	Total      float64            `json:"total_forecasted_revenue"`
}

func project(series []Point, freq string, values []float64) ([]ForecastPoint, float64) {
	dates := futureDates(series[len(series)-1].Date, freq, len(values))
	out := make([]ForecastPoint, len(values))
	var total float64
	for i, v := range values {
		out[i] = ForecastPoint{Date: dates[i].Format(dateLayout), Revenue: utils.Round(v, 2)}
		total += v
	}
	return out, utils.Round(total, 2)
}

func historical(series []Point) []HistoricalPoint {
	out := make([]HistoricalPoint, len(series))
	for i, p := range series {
		out[i] = HistoricalPoint{Date: p.Date.Format(dateLayout), Revenue: utils.Round(p.Revenue, 2)}
	}
	return out
}

func flat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// MovingAverage forecasts every future period as the final rolling mean over
// window periods. A series shorter than the window averages what it has.
func MovingAverage(series []Point, freq string, window, periods int) (*Forecast, error) {
	if len(series) == 0 {
		return nil, errors.InsufficientData("moving average: empty series")
	}
	if window < 1 || periods < 1 {
		return nil, errors.InvalidParameter("moving average: window %d and periods %d must be positive", window, periods)
	}
	y := revenues(series)
	start := len(y) - window
	if start < 0 {
		start = 0
	}
	last := stat.Mean(y[start:], nil)

	f := &Forecast{
		Method:     "Moving Average",
		Parameters: map[string]float64{"periods": float64(window)},
		Historical: historical(series),
	}
	f.Forecast, f.Total = project(series, freq, flat(last, periods))
	return f, nil
}

// LinearTrend fits revenue against the zero-based period index by ordinary
// least squares and extrapolates it, clipping negative projections to zero.
func LinearTrend(series []Point, freq string, periods int) (*Forecast, error) {
	if len(series) < 2 {
		return nil, errors.InsufficientData("linear trend: need at least 2 periods, have %d", len(series))
	}
	if periods < 1 {
		return nil, errors.InvalidParameter("linear trend: periods %d must be positive", periods)
	}
	y := revenues(series)
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	intercept, slope := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, intercept, slope)
	if math.IsNaN(r2) {
		// a constant series is fitted exactly
		r2 = 1
	}
	if math.IsNaN(slope) || math.IsNaN(intercept) {
		return nil, errors.Computation(nil, "linear trend: regression did not converge")
	}

	hist := historical(series)
	for i := range hist {
		trend := utils.Round(intercept+slope*x[i], 2)
		hist[i].Trend = &trend
	}
	values := make([]float64, periods)
	for i := range values {
		values[i] = math.Max(0, intercept+slope*float64(len(y)+i))
	}

	f := &Forecast{
		Method: "Linear Trend",
		Parameters: map[string]float64{
			"slope":     utils.Round(slope, 2),
			"intercept": utils.Round(intercept, 2),
			"r_squared": utils.Round(r2, 4),
		},
		Historical: hist,
	}
	f.Forecast, f.Total = project(series, freq, values)
	return f, nil
}

// ExponentialSmoothing applies S[0]=y[0], S[i]=a*y[i]+(1-a)*S[i-1] and
// forecasts every future period as the last smoothed value.
func ExponentialSmoothing(series []Point, freq string, alpha float64, periods int) (*Forecast, error) {
	if len(series) == 0 {
		return nil, errors.InsufficientData("exponential smoothing: empty series")
	}
	if alpha <= 0 || alpha > 1 || periods < 1 {
		return nil, errors.InvalidParameter("exponential smoothing: alpha %v must be in (0, 1] and periods %d positive", alpha, periods)
	}
	hist := historical(series)
	var s float64
	for i, p := range series {
		if i == 0 {
			s = p.Revenue
		} else {
			s = alpha*p.Revenue + (1-alpha)*s
		}
		smoothed := utils.Round(s, 2)
		hist[i].Smoothed = &smoothed
	}

	f := &Forecast{
		Method:     "Exponential Smoothing",
		Parameters: map[string]float64{"alpha": alpha},
		Historical: hist,
	}
	f.Forecast, f.Total = project(series, freq, flat(s, periods))
	return f, nil
}

// SeasonalIndex is the relative strength of one calendar month.
type SeasonalIndex struct {
	MonthName     string  `json:"month_name"`
	SeasonalIndex float64 `json:"seasonal_index"`
	AvgRevenue    float64 `json:"avg_revenue"`
}

// SeasonalAnalysis reports calendar-month seasonality. When the series does
// not support it, only Error is set.
type SeasonalAnalysis struct {
	Indices  []SeasonalIndex `json:"seasonal_indices,omitempty"`
	Peak     string          `json:"peak_month,omitempty"`
	Low      string          `json:"low_month,omitempty"`
	Strength float64         `json:"seasonality_strength,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// Seasonal computes a seasonal index per calendar month present in a monthly
// series of at least 12 periods.
func Seasonal(series []Point, freq string) (*SeasonalAnalysis, error) {
	if freq != analytics.Monthly {
		return nil, errors.InvalidParameter("seasonal analysis: requires monthly frequency, got %q", freq)
	}
	if len(series) < 12 {
		return nil, errors.InsufficientData("Insufficient data for seasonal analysis (need at least 12 periods)")
	}

	var sums [12]float64
	var counts [12]int
	for _, p := range series {
		m := int(p.Date.Month()) - 1
		sums[m] += p.Revenue
		counts[m]++
	}
	var months []time.Month
	var means []float64
	for m := 0; m < 12; m++ {
		if counts[m] == 0 {
			continue
		}
		months = append(months, time.Month(m+1))
		means = append(means, sums[m]/float64(counts[m]))
	}
	overall := stat.Mean(means, nil)

	a := &SeasonalAnalysis{}
	indices := make([]float64, len(means))
	peak, low := 0, 0
	for i, mean := range means {
		indices[i] = utils.Round(utils.SafeDiv(mean, overall), 3)
		if indices[i] > indices[peak] {
			peak = i
		}
		if indices[i] < indices[low] {
			low = i
		}
		a.Indices = append(a.Indices, SeasonalIndex{
			MonthName:     months[i].String()[:3],
			SeasonalIndex: indices[i],
			AvgRevenue:    utils.Round(mean, 2),
		})
	}
	a.Peak = a.Indices[peak].MonthName
	a.Low = a.Indices[low].MonthName
	if len(indices) > 1 {
		a.Strength = utils.Round(stat.StdDev(indices, nil), 3)
	}
	return a, nil
}
