package clv

import (
	"fmt"
	"math"
	"sort"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/pkg/utils"
)

// Summary holds population totals and averages.
type Summary struct {
	TotalCustomers         int     `json:"total_customers"`
	TotalHistoricalRevenue float64 `json:"total_historical_revenue"`
	TotalPredictedCLV      float64 `json:"total_predicted_clv"`
	AvgCLV                 float64 `json:"avg_clv"`
	MedianCLV              float64 `json:"median_clv"`
	MaxCLV                 float64 `json:"max_clv"`
	MinCLV                 float64 `json:"min_clv"`
	AvgOrderValue          float64 `json:"avg_order_value"`
	AvgPurchaseFrequency   float64 `json:"avg_purchase_frequency"`
	AvgChurnProbability    float64 `json:"avg_churn_probability"`
	TotalRiskAdjustedCLV   float64 `json:"total_risk_adjusted_clv"`
}

// Bucket is one band of the predictive CLV distribution.
type Bucket struct {
	Bucket        string  `json:"bucket"`
	CustomerCount int     `json:"customer_count"`
	TotalCLV      float64 `json:"total_clv"`
}

// TierSummary aggregates one CLV tier.
type TierSummary struct {
	Tier          string  `json:"tier"`
	CustomerCount int     `json:"customer_count"`
	TotalCLV      float64 `json:"total_clv"`
	AvgCLV        float64 `json:"avg_clv"`
}

// Report is the JSON-ready CLV output.
type Report struct {
	HorizonMonths      int               `json:"time_horizon_months"`
	Summary            Summary           `json:"summary"`
	Distribution       []Bucket          `json:"distribution"`
	Tiers              []TierSummary     `json:"tiers"`
	TopCustomers       []CustomerCLV     `json:"top_customers"`
	AtRiskCustomers    []CustomerCLV     `json:"at_risk_customers"`
	MetricsExplanation map[string]string `json:"metrics_explanation"`
}

var bucketEdges = []float64{100, 500, 1000, 5000, 10000, math.Inf(1)}

var bucketLabels = []string{"$0-100", "$100-500", "$500-1K", "$1K-5K", "$5K-10K", "$10K+"}

// Report builds the summary views of the analysis.
func (a *Analysis) Report() Report {
	return Report{
		HorizonMonths:   a.HorizonMonths,
		Summary:         a.Summary(),
		Distribution:    a.Distribution(),
		Tiers:           a.TierSummary(),
		TopCustomers:    a.TopCustomers(10),
		AtRiskCustomers: a.AtRisk(10),
		MetricsExplanation: map[string]string{
			"predictive_clv":     fmt.Sprintf("Expected revenue per customer over next %d months", a.HorizonMonths),
			"risk_adjusted_clv":  "CLV adjusted for churn probability",
			"purchase_frequency": "Average orders per month",
			"churn_probability":  "Likelihood of customer not returning (0-1)",
		},
	}
}

func (a *Analysis) predictive() []float64 {
	values := make([]float64, len(a.Customers))
	for i, c := range a.Customers {
		values[i] = c.PredictiveCLV
	}
	return values
}

// Summary returns population totals and averages.
func (a *Analysis) Summary() Summary {
	var revenue, aov, frequency, churn, risk float64
	for _, c := range a.Customers {
		revenue += c.TotalRevenue
		aov += c.AvgOrderValue
		frequency += c.PurchaseFrequency
		churn += c.ChurnProbability
		risk += c.RiskAdjustedCLV
	}
	values := analytics.Sorted(a.predictive())
	n := float64(len(values))
	s := Summary{
		TotalCustomers:         len(values),
		TotalHistoricalRevenue: utils.Round(revenue, 2),
		TotalRiskAdjustedCLV:   utils.Round(risk, 2),
	}
	if len(values) == 0 {
		return s
	}
	total := 0.0
	for _, v := range values {
		total += v
	}
	s.TotalPredictedCLV = utils.Round(total, 2)
	s.AvgCLV = utils.Round(total/n, 2)
	s.MedianCLV = utils.Round(analytics.Quantile(values, 0.5), 2)
	s.MinCLV = values[0]
	s.MaxCLV = values[len(values)-1]
	s.AvgOrderValue = utils.Round(aov/n, 2)
	s.AvgPurchaseFrequency = utils.Round(frequency/n, 2)
	s.AvgChurnProbability = utils.Round(churn/n, 2)
	return s
}

// Distribution counts customers per right-closed predictive CLV band. Every
// band is listed, including empty ones.
func (a *Analysis) Distribution() []Bucket {
	out := make([]Bucket, len(bucketLabels))
	for i, label := range bucketLabels {
		out[i].Bucket = label
	}
	for _, c := range a.Customers {
		i := sort.SearchFloat64s(bucketEdges, c.PredictiveCLV)
		out[i].CustomerCount++
		out[i].TotalCLV += c.PredictiveCLV
	}
	for i := range out {
		out[i].TotalCLV = utils.Round(out[i].TotalCLV, 2)
	}
	return out
}

// TierSummary aggregates customers per CLV tier, lowest tier first.
func (a *Analysis) TierSummary() []TierSummary {
	out := make([]TierSummary, 0, len(Tiers))
	for _, tier := range Tiers {
		s := TierSummary{Tier: tier}
		for _, c := range a.Customers {
			if c.Tier == tier {
				s.CustomerCount++
				s.TotalCLV += c.PredictiveCLV
			}
		}
		if s.CustomerCount == 0 {
			continue
		}
		s.AvgCLV = utils.Round(s.TotalCLV/float64(s.CustomerCount), 2)
		s.TotalCLV = utils.Round(s.TotalCLV, 2)
		out = append(out, s)
	}
	return out
}

// TopCustomers returns the n customers with the highest predictive CLV.
func (a *Analysis) TopCustomers(n int) []CustomerCLV {
	return largest(a.Customers, n)
}

// AtRisk returns up to n customers whose predictive CLV is above the median
// and whose churn probability exceeds 0.5, highest CLV first.
func (a *Analysis) AtRisk(n int) []CustomerCLV {
	median := analytics.Median(a.predictive())
	var candidates []CustomerCLV
	for _, c := range a.Customers {
		if c.PredictiveCLV > median && c.ChurnProbability > 0.5 {
			candidates = append(candidates, c)
		}
	}
	return largest(candidates, n)
}

func largest(customers []CustomerCLV, n int) []CustomerCLV {
	out := make([]CustomerCLV, len(customers))
	copy(out, customers)
	sort.SliceStable(out, func(i, j int) bool { return out[i].PredictiveCLV > out[j].PredictiveCLV })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}
