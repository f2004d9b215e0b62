package forecast

import (
	"sort"
	"time"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

const engineName = "forecasting"

// Params configures a forecasting run.
type Params struct {
	Frequency string
	Periods   int
	Window    int
	Alpha     float64
}

func (p Params) withDefaults() Params {
	if p.Frequency == "" {
		p.Frequency = analytics.Monthly
	}
	if p.Periods == 0 {
		p.Periods = 6
	}
	if p.Window == 0 {
		p.Window = 3
	}
	if p.Alpha == 0 {
		p.Alpha = 0.3
	}
	return p
}

// Engine forecasts revenue over a private copy of the dataset.
type Engine struct {
	ds     *model.Dataset
	params Params
}

// New returns an engine bound to a private copy of ds.
func New(ds *model.Dataset, params Params) *Engine {
	return &Engine{ds: ds.Clone(), params: params.withDefaults()}
}

// Analysis holds the series and every method's output.
type Analysis struct {
	Params      Params
	GeneratedAt time.Time
	Series      []Point
	Forecasts   map[string]*Forecast
	// MethodErrors holds why a method produced no forecast. Those methods are
	// left out of Forecasts and of the comparison.
	MethodErrors map[string]string
	Seasonal     *SeasonalAnalysis
}

// Series resamples the dataset at the configured frequency.
func (e *Engine) Series() ([]Point, error) {
	if err := e.ds.Require(engineName, model.ColTransactionDate, model.ColTransactionID,
		model.ColAmount, model.ColQuantity); err != nil {
		return nil, err
	}
	series, err := Resample(e.ds.Records, e.params.Frequency)
	if err != nil {
		return nil, err
	}
	if len(series) == 0 {
		return nil, errors.InsufficientData("%s: dataset has no transactions", engineName)
	}
	return series, nil
}

// Run builds the series and applies every method. A method or seasonal
// analysis the series cannot support is reported inline; the run fails only
// on invalid parameters or when no method produces a forecast.
func (e *Engine) Run() (*Analysis, error) {
	series, err := e.Series()
	if err != nil {
		return nil, err
	}
	p := e.params
	a := &Analysis{
		Params:      p,
		GeneratedAt: time.Now().UTC(),
		Series:      series,
		Forecasts:   make(map[string]*Forecast, 3),
	}

	methods := []struct {
		name string
		fit  func() (*Forecast, error)
	}{
		{MethodMovingAverage, func() (*Forecast, error) { return MovingAverage(series, p.Frequency, p.Window, p.Periods) }},
		{MethodLinearTrend, func() (*Forecast, error) { return LinearTrend(series, p.Frequency, p.Periods) }},
		{MethodExponentialSmoothing, func() (*Forecast, error) {
			return ExponentialSmoothing(series, p.Frequency, p.Alpha, p.Periods)
		}},
	}
	var firstErr error
	for _, m := range methods {
		f, err := m.fit()
		if err == nil {
			a.Forecasts[m.name] = f
			continue
		}
		if errors.Is(err, errors.ErrInvalidParameter) {
			return nil, err
		}
		if firstErr == nil {
			firstErr = err
		}
		if a.MethodErrors == nil {
			a.MethodErrors = make(map[string]string)
		}
		a.MethodErrors[m.name] = err.Error()
	}
	if len(a.Forecasts) == 0 {
		return nil, firstErr
	}

	a.Seasonal, err = Seasonal(series, p.Frequency)
	if err != nil {
		a.Seasonal = &SeasonalAnalysis{Error: err.Error()}
	}

	logger.Named("forecast").Infow("Forecasts computed", "periods", len(series),
		"frequency", p.Frequency, "horizon", p.Periods)
	return a, nil
}

// MethodSummary is one method's entry in the comparison.
type MethodSummary struct {
	Method          string             `json:"method"`
	Name            string             `json:"name"`
	TotalForecasted float64            `json:"total_forecasted"`
	Parameters      map[string]float64 `json:"parameters"`
}

// ForecastSummary spans the method totals.
type ForecastSummary struct {
	AverageForecast float64 `json:"average_forecast"`
	MinForecast     float64 `json:"min_forecast"`
	MaxForecast     float64 `json:"max_forecast"`
}

// Comparison lists the method totals. No method is ranked above another.
type Comparison struct {
	Methods    []MethodSummary  `json:"methods"`
	BestMethod *string          `json:"best_method"`
	Summary    *ForecastSummary `json:"forecast_summary"`
}

// Compare aggregates total forecast revenue across the given methods.
func Compare(forecasts map[string]*Forecast) Comparison {
	keys := make([]string, 0, len(forecasts))
	for k := range forecasts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c := Comparison{Methods: []MethodSummary{}}
	var sum float64
	for _, k := range keys {
		f := forecasts[k]
		c.Methods = append(c.Methods, MethodSummary{
			Method:          k,
			Name:            f.Method,
			TotalForecasted: f.Total,
			Parameters:      f.Parameters,
		})
		sum += f.Total
		if c.Summary == nil {
			c.Summary = &ForecastSummary{MinForecast: f.Total, MaxForecast: f.Total}
		}
		if f.Total < c.Summary.MinForecast {
			c.Summary.MinForecast = f.Total
		}
		if f.Total > c.Summary.MaxForecast {
			c.Summary.MaxForecast = f.Total
		}
	}
	if c.Summary != nil {
		c.Summary.AverageForecast = utils.Round(sum/float64(len(keys)), 2)
	}
	return c
}

// Report is the JSON-ready forecasting output.
type Report struct {
	GeneratedAt       string               `json:"generated_at"`
	ForecastHorizon   int                  `json:"forecast_horizon"`
	Frequency         string               `json:"frequency"`
	HistoricalPeriods int                  `json:"historical_periods"`
	Forecasts         map[string]*Forecast `json:"forecasts"`
	MethodErrors      map[string]string    `json:"method_errors,omitempty"`
	Seasonal          *SeasonalAnalysis    `json:"seasonal_analysis"`
	Comparison        Comparison           `json:"comparison"`
}

// Report builds the combined forecasting report.
func (a *Analysis) Report() Report {
	return Report{
		GeneratedAt:       a.GeneratedAt.Format(time.RFC3339),
		ForecastHorizon:   a.Params.Periods,
		Frequency:         a.Params.Frequency,
		HistoricalPeriods: len(a.Series),
		Forecasts:         a.Forecasts,
		MethodErrors:      a.MethodErrors,
		Seasonal:          a.Seasonal,
		Comparison:        Compare(a.Forecasts),
	}
}

// Table exposes the resampled series for export.
func (a *Analysis) Table() model.Table {
	return SeriesTable(a.Series)
}
