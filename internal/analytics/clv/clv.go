// Package clv projects customer lifetime value over a horizon and estimates
// churn risk from purchase cadence.
package clv

import (
	"math"
	"time"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

const (
	engineName = "clv"

	// DaysPerMonth is the average month length used to convert lifespans.
	DaysPerMonth = 30.44

	// DefaultProfitMargin is the assumed margin applied to predictive CLV.
	DefaultProfitMargin = 0.30
)

// Tier labels from lowest to highest predictive CLV
var Tiers = []string{"Bronze", "Silver", "Gold", "Platinum", "Diamond"}

// Params configures a CLV run.
type Params struct {
	HorizonMonths int
	ProfitMargin  float64
}

// CustomerCLV is one row of the CLV table.
type CustomerCLV struct {
	CustomerID           int64     `json:"customer_id"`
	TotalOrders          int       `json:"total_orders"`
	TotalRevenue         float64   `json:"total_revenue"`
	AvgOrderValue        float64   `json:"avg_order_value"`
	FirstPurchase        time.Time `json:"first_purchase"`
	LastPurchase         time.Time `json:"last_purchase"`
	TotalTransactions    int       `json:"total_transactions"`
	LifespanDays         int       `json:"lifespan_days"`
	LifespanMonths       float64   `json:"lifespan_months"`
	PurchaseFrequency    float64   `json:"purchase_frequency"`
	CustomerValueMonthly float64   `json:"customer_value_monthly"`
	SimpleCLV            float64   `json:"simple_clv"`
	PredictiveCLV        float64   `json:"predictive_clv"`
	CLVProfit            float64   `json:"clv_profit"`
	DaysSinceLast        int       `json:"days_since_last"`
	ChurnProbability     float64   `json:"churn_probability"`
	RiskAdjustedCLV      float64   `json:"risk_adjusted_clv"`
	Tier                 string    `json:"clv_tier"`
}

// Engine computes CLV over a private copy of the dataset.
type Engine struct {
	ds     *model.Dataset
	params Params
}

// New returns an engine bound to a private copy of ds.
func New(ds *model.Dataset, params Params) *Engine {
	if params.HorizonMonths <= 0 {
		params.HorizonMonths = 12
	}
	if params.ProfitMargin <= 0 {
		params.ProfitMargin = DefaultProfitMargin
	}
	return &Engine{ds: ds.Clone(), params: params}
}

// Analysis is the CLV table with the horizon it was projected over.
type Analysis struct {
	HorizonMonths int
	Customers     []CustomerCLV
}

// Run computes the per-customer CLV metrics and tiers.
func (e *Engine) Run() (*Analysis, error) {
	if err := e.ds.Require(engineName, model.ColCustomerID, model.ColTransactionID,
		model.ColTransactionDate, model.ColAmount); err != nil {
		return nil, err
	}
	if e.ds.Len() == 0 {
		return nil, errors.InsufficientData("%s: dataset has no transactions", engineName)
	}

	_, maxDate := e.ds.DateRange()
	groups := analytics.GroupByCustomer(e.ds.Records)
	horizon := float64(e.params.HorizonMonths)

	customers := make([]CustomerCLV, len(groups))
	monthly := make([]float64, len(groups))
	months := make([]float64, len(groups))
	for i, g := range groups {
		days := utils.WholeDays(g.Last.Sub(g.First))
		if days == 0 {
			days = 1
		}
		months[i] = float64(days) / DaysPerMonth
		aov := g.AvgAmount()
		frequency := float64(g.Transactions) / math.Max(months[i], 1)
		monthly[i] = aov * frequency

		predictive := monthly[i] * horizon
		sinceLast := utils.WholeDays(maxDate.Sub(g.Last))
		gap := float64(days) / float64(g.Transactions)
		churn := math.Max(0, math.Min(float64(sinceLast)/(3*gap), 1))

		customers[i] = CustomerCLV{
			CustomerID:           g.CustomerID,
			TotalOrders:          g.Transactions,
			TotalRevenue:         utils.Round(g.Revenue, 2),
			AvgOrderValue:        utils.Round(aov, 2),
			FirstPurchase:        g.First,
			LastPurchase:         g.Last,
			TotalTransactions:    g.Rows,
			LifespanDays:         days,
			LifespanMonths:       utils.Round(months[i], 2),
			PurchaseFrequency:    utils.Round(frequency, 2),
			CustomerValueMonthly: utils.Round(monthly[i], 2),
			PredictiveCLV:        utils.Round(predictive, 2),
			CLVProfit:            utils.Round(predictive*e.params.ProfitMargin, 2),
			DaysSinceLast:        sinceLast,
			ChurnProbability:     utils.Round(churn, 2),
			RiskAdjustedCLV:      utils.Round(predictive*(1-churn), 2),
		}
	}

	avgMonths := analytics.Mean(months)
	for i := range customers {
		customers[i].SimpleCLV = utils.Round(monthly[i]*avgMonths, 2)
	}
	assignTiers(customers)

	logger.Named("clv").Infow("CLV calculated", "customers", len(customers), "horizon_months", e.params.HorizonMonths)
	return &Analysis{HorizonMonths: e.params.HorizonMonths, Customers: customers}, nil
}

// assignTiers cuts the ranked predictive CLV into equal-population tiers.
func assignTiers(customers []CustomerCLV) {
	values := make([]float64, len(customers))
	for i, c := range customers {
		values[i] = c.PredictiveCLV
	}
	buckets, _ := analytics.QCut(analytics.RankFirst(values), len(Tiers))
	for i := range customers {
		customers[i].Tier = Tiers[buckets[i]]
	}
}

// Table exposes the CLV-scored customers for export.
func (a *Analysis) Table() model.Table {
	t := model.Table{
		Name: "customer_ltv",
		Columns: []string{"customer_id", "total_orders", "total_revenue", "avg_order_value",
			"first_purchase", "last_purchase", "total_transactions", "lifespan_days",
			"lifespan_months", "purchase_frequency", "customer_value_monthly", "simple_clv",
			"predictive_clv", "clv_profit", "days_since_last", "churn_probability",
			"risk_adjusted_clv", "clv_tier"},
		Rows: make([][]interface{}, len(a.Customers)),
	}
	for i, c := range a.Customers {
		t.Rows[i] = []interface{}{c.CustomerID, c.TotalOrders, c.TotalRevenue, c.AvgOrderValue,
			c.FirstPurchase, c.LastPurchase, c.TotalTransactions, c.LifespanDays,
			c.LifespanMonths, c.PurchaseFrequency, c.CustomerValueMonthly, c.SimpleCLV,
			c.PredictiveCLV, c.CLVProfit, c.DaysSinceLast, c.ChurnProbability,
			c.RiskAdjustedCLV, c.Tier}
	}
	return t
}
