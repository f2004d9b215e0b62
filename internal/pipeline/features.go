package pipeline

import (
	"context"
	"time"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// tier is an upper-inclusive band of a numeric value.
type tier struct {
	max   float64
	label string
}

var sizeTiers = []tier{
	{10, "Micro"},
	{50, "Small"},
	{100, "Medium"},
	{500, "Large"},
}

var quantityTiers = []tier{
	{1, "Single"},
	{5, "Few"},
	{10, "Moderate"},
	{50, "Bulk"},
}

func band(v float64, tiers []tier, top string) string {
	for _, t := range tiers {
		if v <= t.max {
			return t.label
		}
	}
	return top
}

var calendarFeatures = []string{
	"year", "month", "quarter", "day_of_week", "day_of_month",
	"week_of_year", "is_weekend", "year_month",
}

// FeatureReport summarises the feature engineering stage.
type FeatureReport struct {
	FeaturesCreated  []string `json:"features_created"`
	TotalFeatures    int      `json:"total_features"`
	FinalRows        int      `json:"final_rows"`
	CustomerFeatures int      `json:"customer_features"`
	ProductFeatures  int      `json:"product_features"`
	CountryFeatures  int      `json:"country_features"`
}

// FeatureSet is the output of feature engineering.
type FeatureSet struct {
	Dataset *model.Dataset
	Tables  AggregatedTables
	Report  FeatureReport
}

// EngineerFeatures derives calendar and tier fields for every record of a
// copy of ds and builds the aggregate feature tables.
func EngineerFeatures(ctx context.Context, ds *model.Dataset) (*FeatureSet, error) {
	if ds == nil {
		return nil, errors.Prerequisite(model.StageFeatureEngineering, "cleaned data")
	}

	out := ds.Clone()
	out.Featured = true
	caps := out.Capabilities
	for i := range out.Records {
		r := &out.Records[i]
		f := &model.TransactionFeatures{
			SizeTier:     band(r.Amount, sizeTiers, "Enterprise"),
			QuantityTier: band(float64(r.Quantity), quantityTiers, "Wholesale"),
		}
		if caps.HasTransactionDate {
			calendar(f, r.Date)
		}
		if caps.HasUnitPrice {
			f.CalculatedAmount = utils.Round(r.UnitPrice*float64(r.Quantity), 2)
		}
		r.Features = f
	}

	var created []string
	if caps.HasTransactionDate {
		created = append(created, calendarFeatures...)
	}
	if caps.HasUnitPrice {
		created = append(created, "calculated_amount")
	}
	created = append(created, "transaction_size", "quantity_tier")

	tables, err := AggregateFeatures(ctx, out)
	if err != nil {
		return nil, err
	}
	report := FeatureReport{FinalRows: out.Len()}
	if tables.Customers != nil {
		created = append(created, "customer_aggregations")
		report.CustomerFeatures = len(tables.Customers.Rows)
	}
	if tables.Products != nil {
		created = append(created, "product_aggregations")
		report.ProductFeatures = len(tables.Products.Rows)
	}
	if tables.Countries != nil {
		created = append(created, "country_aggregations")
		report.CountryFeatures = len(tables.Countries.Rows)
	}
	report.FeaturesCreated = created
	report.TotalFeatures = len(created)

	logger.Named("features").Infow("Features engineered", "features", report.TotalFeatures,
		"customers", report.CustomerFeatures, "products", report.ProductFeatures)
	return &FeatureSet{Dataset: out, Tables: tables, Report: report}, nil
}

func calendar(f *model.TransactionFeatures, t time.Time) {
	_, week := t.ISOWeek()
	dow := (int(t.Weekday()) + 6) % 7
	f.Year = t.Year()
	f.Month = int(t.Month())
	f.Quarter = (f.Month-1)/3 + 1
	f.DayOfWeek = dow
	f.DayOfMonth = t.Day()
	f.WeekOfYear = week
	f.IsWeekend = dow >= 5
	f.YearMonth = t.Format("2006-01")
}
