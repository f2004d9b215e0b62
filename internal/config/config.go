// Package config loads the pipeline configuration from defaults, an optional
// config file, a .env file and CUSTINTEL_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

// EnvPrefix prefixes every environment override, e.g. CUSTINTEL_DATA_PATH.
const EnvPrefix = "CUSTINTEL"

// Config is the full process configuration.
type Config struct {
	Data         DataConfig         `mapstructure:"data"`
	Output       OutputConfig       `mapstructure:"output"`
	Store        StoreConfig        `mapstructure:"store"`
	Server       ServerConfig       `mapstructure:"server"`
	Log          LogConfig          `mapstructure:"log"`
	RFM          RFMConfig          `mapstructure:"rfm"`
	Segmentation SegmentationConfig `mapstructure:"segmentation"`
	CLV          CLVConfig          `mapstructure:"clv"`
	Forecast     ForecastConfig     `mapstructure:"forecast"`
	Cleaning     CleaningConfig     `mapstructure:"cleaning"`
	Export       ExportConfig       `mapstructure:"export"`
}

type DataConfig struct {
	Path    string `mapstructure:"path"`
	Dir     string `mapstructure:"dir" validate:"required"`
	MinRows int    `mapstructure:"min_rows" validate:"min=1"`
}

type OutputConfig struct {
	Dir     string   `mapstructure:"dir" validate:"required"`
	Formats []string `mapstructure:"formats" validate:"dive,oneof=csv xlsx excel"`
}

type StoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path" validate:"required_if=Enabled true"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" validate:"required"`
	Mode string `mapstructure:"mode" validate:"oneof=debug release test"`
}

type LogConfig struct {
	JSON  bool   `mapstructure:"json"`
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
}

type RFMConfig struct {
	// ReferenceDate is YYYY-MM-DD; empty derives it from the data.
	ReferenceDate string `mapstructure:"reference_date" validate:"omitempty,datetime=2006-01-02"`
	Quantiles     int    `mapstructure:"quantiles" validate:"min=2,max=10"`
}

type SegmentationConfig struct {
	KMin    int   `mapstructure:"k_min" validate:"min=2"`
	KMax    int   `mapstructure:"k_max" validate:"gtefield=KMin"`
	Seed    int64 `mapstructure:"seed"`
	NInit   int   `mapstructure:"n_init" validate:"min=1"`
	MaxIter int   `mapstructure:"max_iter" validate:"min=1"`
}

type CLVConfig struct {
	HorizonMonths int     `mapstructure:"horizon_months" validate:"min=1"`
	ProfitMargin  float64 `mapstructure:"profit_margin" validate:"gt=0,lte=1"`
}

type ForecastConfig struct {
	Frequency string  `mapstructure:"frequency" validate:"oneof=D W M"`
	Periods   int     `mapstructure:"periods" validate:"min=1"`
	Window    int     `mapstructure:"window" validate:"min=1"`
	Alpha     float64 `mapstructure:"alpha" validate:"gt=0,lte=1"`
}

type CleaningConfig struct {
	OutlierThreshold float64 `mapstructure:"outlier_threshold" validate:"gt=0"`
}

type ExportConfig struct {
	Retry RetryConfig `mapstructure:"retry"`
}

type RetryConfig struct {
	MaxAttempts       int           `mapstructure:"max_attempts" validate:"min=1"`
	InitialDelay      time.Duration `mapstructure:"initial_delay"`
	MaxDelay          time.Duration `mapstructure:"max_delay"`
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier" validate:"gte=1"`
	RetryableErrors   []string      `mapstructure:"retryable_errors"`
}

// SetDefaults registers the default value of every key.
func SetDefaults(v *viper.Viper) {
	params := model.DefaultRunParams()

	v.SetDefault("data.path", "data/transactions.csv")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.min_rows", 100)

	v.SetDefault("output.dir", params.OutputDir)
	v.SetDefault("output.formats", params.OutputFormats)

	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "outputs/analytics.db")

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "release")

	v.SetDefault("log.json", false)
	v.SetDefault("log.level", "info")

	v.SetDefault("rfm.reference_date", "")
	v.SetDefault("rfm.quantiles", params.Quantiles)

	v.SetDefault("segmentation.k_min", params.KMin)
	v.SetDefault("segmentation.k_max", params.KMax)
	v.SetDefault("segmentation.seed", params.Seed)
	v.SetDefault("segmentation.n_init", params.NInit)
	v.SetDefault("segmentation.max_iter", params.MaxIter)

	v.SetDefault("clv.horizon_months", params.HorizonMonths)
	v.SetDefault("clv.profit_margin", params.ProfitMargin)

	v.SetDefault("forecast.frequency", params.ForecastFreq)
	v.SetDefault("forecast.periods", params.ForecastPeriods)
	v.SetDefault("forecast.window", params.ForecastWindow)
	v.SetDefault("forecast.alpha", params.ForecastAlpha)

	v.SetDefault("cleaning.outlier_threshold", params.OutlierThreshold)

	v.SetDefault("export.retry.max_attempts", params.Retry.MaxAttempts)
	v.SetDefault("export.retry.initial_delay", params.Retry.InitialDelay.String())
	v.SetDefault("export.retry.max_delay", params.Retry.MaxDelay.String())
	v.SetDefault("export.retry.backoff_multiplier", params.Retry.BackoffMultiplier)
	v.SetDefault("export.retry.retryable_errors", params.Retry.RetryableErrors)
}

// Load reads the configuration. path may be empty, in which case only
// defaults, .env and the environment apply. The result is validated.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrap(err, "failed to load .env")
	}

	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", path)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every field rule and reports all violations at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return errors.Wrap(err, "failed to validate config")
	}
	msgs := make([]string, len(verrs))
	for i, fe := range verrs {
		msgs[i] = fmt.Sprintf("%s fails %q (value %v)", fe.Namespace(), fe.ActualTag()+param(fe.Param()), fe.Value())
	}
	return errors.InvalidParameter("invalid configuration: %s", strings.Join(msgs, "; "))
}

func param(p string) string {
	if p == "" {
		return ""
	}
	return "=" + p
}

// ToRunParams translates the config into the per-run engine parameters.
func (c *Config) ToRunParams() model.RunParams {
	p := model.RunParams{
		DataPath:         c.Data.Path,
		OutputDir:        c.Output.Dir,
		OutputFormats:    append([]string(nil), c.Output.Formats...),
		Quantiles:        c.RFM.Quantiles,
		KMin:             c.Segmentation.KMin,
		KMax:             c.Segmentation.KMax,
		Seed:             c.Segmentation.Seed,
		NInit:            c.Segmentation.NInit,
		MaxIter:          c.Segmentation.MaxIter,
		HorizonMonths:    c.CLV.HorizonMonths,
		ProfitMargin:     c.CLV.ProfitMargin,
		ForecastFreq:     c.Forecast.Frequency,
		ForecastPeriods:  c.Forecast.Periods,
		ForecastWindow:   c.Forecast.Window,
		ForecastAlpha:    c.Forecast.Alpha,
		OutlierThreshold: c.Cleaning.OutlierThreshold,
		Retry: model.RetryConfig{
			MaxAttempts:       c.Export.Retry.MaxAttempts,
			InitialDelay:      c.Export.Retry.InitialDelay,
			MaxDelay:          c.Export.Retry.MaxDelay,
			BackoffMultiplier: c.Export.Retry.BackoffMultiplier,
			RetryableErrors:   append([]string(nil), c.Export.Retry.RetryableErrors...),
		},
	}
	if c.RFM.ReferenceDate != "" {
		if t, err := time.Parse("2006-01-02", c.RFM.ReferenceDate); err == nil {
			p.ReferenceDate = &t
		}
	}
	return p
}
