package segment

import (
	"time"

	"gonum.org/v1/gonum/stat"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// Feature names available for clustering
const (
	FeatureTotalTransactions = "total_transactions"
	FeatureTotalSpend        = "total_spend"
	FeatureAvgTransaction    = "avg_transaction"
	FeatureStdTransaction    = "std_transaction"
	FeatureTotalItems        = "total_items"
	FeatureAvgItems          = "avg_items"
	FeatureTenureDays        = "tenure_days"
	FeatureRecencyDays       = "recency_days"
)

// DefaultFeatures is the clustering input when none are requested.
var DefaultFeatures = []string{
	FeatureTotalTransactions,
	FeatureTotalSpend,
	FeatureAvgTransaction,
	FeatureTotalItems,
	FeatureRecencyDays,
	FeatureTenureDays,
}

// CustomerFeatures is the per-customer aggregate fed to clustering.
type CustomerFeatures struct {
	CustomerID        int64     `json:"customer_id"`
	TotalTransactions int       `json:"total_transactions"`
	TotalSpend        float64   `json:"total_spend"`
	AvgTransaction    float64   `json:"avg_transaction"`
	StdTransaction    float64   `json:"std_transaction"`
	TotalItems        int       `json:"total_items"`
	AvgItems          float64   `json:"avg_items"`
	FirstPurchase     time.Time `json:"first_purchase"`
	LastPurchase      time.Time `json:"last_purchase"`
	TenureDays        int       `json:"tenure_days"`
	RecencyDays       int       `json:"recency_days"`
	Cluster           int       `json:"cluster"`
	Label             string    `json:"cluster_label"`
}

// Value returns the named feature.
func (c *CustomerFeatures) Value(name string) (float64, bool) {
	switch name {
	case FeatureTotalTransactions:
		return float64(c.TotalTransactions), true
	case FeatureTotalSpend:
		return c.TotalSpend, true
	case FeatureAvgTransaction:
		return c.AvgTransaction, true
	case FeatureStdTransaction:
		return c.StdTransaction, true
	case FeatureTotalItems:
		return float64(c.TotalItems), true
	case FeatureAvgItems:
		return c.AvgItems, true
	case FeatureTenureDays:
		return float64(c.TenureDays), true
	case FeatureRecencyDays:
		return float64(c.RecencyDays), true
	}
	return 0, false
}

// PrepareCustomers aggregates records into one feature row per customer.
// Recency is measured from the latest transaction in the dataset.
func PrepareCustomers(ds *model.Dataset) []CustomerFeatures {
	_, maxDate := ds.DateRange()
	groups := analytics.GroupByCustomer(ds.Records)

	out := make([]CustomerFeatures, len(groups))
	for i, g := range groups {
		out[i] = CustomerFeatures{
			CustomerID:        g.CustomerID,
			TotalTransactions: g.Transactions,
			TotalSpend:        g.Revenue,
			AvgTransaction:    g.AvgAmount(),
			StdTransaction:    analytics.SampleStd(g.Amounts),
			TotalItems:        g.Quantity,
			AvgItems:          analytics.Mean(g.Quantities),
			FirstPurchase:     g.First,
			LastPurchase:      g.Last,
			TenureDays:        utils.WholeDays(g.Last.Sub(g.First)),
			RecencyDays:       utils.WholeDays(maxDate.Sub(g.Last)),
		}
	}
	return out
}

// Scaler standardises columns to zero mean and unit population variance.
// A constant column keeps a scale of 1.
type Scaler struct {
	Mean  []float64
	Scale []float64
}

// FitScaler learns column statistics from the matrix. degenerate is true
// when every column is constant.
func FitScaler(matrix [][]float64) (s *Scaler, degenerate bool) {
	dim := len(matrix[0])
	s = &Scaler{Mean: make([]float64, dim), Scale: make([]float64, dim)}
	column := make([]float64, len(matrix))
	degenerate = true
	for j := 0; j < dim; j++ {
		for i, row := range matrix {
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		s.Mean[j] = mean
		if std == 0 {
			s.Scale[j] = 1
			continue
		}
		s.Scale[j] = std
		degenerate = false
	}
	return s, degenerate
}

// Transform returns the standardised copy of row.
func (s *Scaler) Transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out
}

// Inverse maps a standardised row back to the original units.
func (s *Scaler) Inverse(row []float64) []float64 {
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = v*s.Scale[j] + s.Mean[j]
	}
	return out
}
