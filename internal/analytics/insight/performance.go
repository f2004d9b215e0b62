package insight

import (
	"sort"
	"time"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// MonthlyPerformance adds customer and transaction growth to a month.
type MonthlyPerformance struct {
	Breakdown
	TransactionCount  int     `json:"transaction_count"`
	CustomerGrowth    float64 `json:"customer_growth"`
	TransactionGrowth float64 `json:"transaction_growth"`
}

// CohortCell counts a first-purchase cohort's activity in one month.
type CohortCell struct {
	Cohort           string  `json:"cohort"`
	TransactionMonth string  `json:"transaction_month"`
	Customers        int     `json:"customers"`
	Revenue          float64 `json:"revenue"`
}

// Cohorts is the cohort table and the ordered cohort labels.
type Cohorts struct {
	Data    []CohortCell `json:"cohort_data"`
	Cohorts []string     `json:"cohorts"`
}

// PerformanceReport is the performance stage output.
type PerformanceReport struct {
	GeneratedAt string               `json:"generated_at"`
	Monthly     []MonthlyPerformance `json:"monthly"`
	Quarterly   []Breakdown          `json:"quarterly"`
	Yearly      []Breakdown          `json:"yearly"`
	ByCategory  []Breakdown          `json:"by_category"`
	ByCountry   []Breakdown          `json:"by_country"`
	ByDayOfWeek []Breakdown          `json:"by_day_of_week"`
	TopProducts []Product            `json:"top_products"`
	Cohorts     *Cohorts             `json:"cohort_analysis,omitempty"`
}

// Performance breaks revenue down by period and dimension.
func Performance(ds *model.Dataset) (*PerformanceReport, error) {
	if err := ds.Require("performance_analysis", model.ColTransactionID, model.ColAmount, model.ColQuantity); err != nil {
		return nil, err
	}
	records := ds.Records
	caps := ds.Capabilities
	report := &PerformanceReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Monthly:     []MonthlyPerformance{},
		Quarterly:   []Breakdown{},
		Yearly:      []Breakdown{},
		ByCategory:  []Breakdown{},
		ByCountry:   []Breakdown{},
		ByDayOfWeek: []Breakdown{},
		TopProducts: []Product{},
	}

	if caps.HasTransactionDate {
		report.Monthly = monthlyPerformance(analytics.GroupBy(records, analytics.MonthKey))
		report.Quarterly = withGrowth(analytics.GroupBy(records, quarterKey))
		report.Yearly = withGrowth(analytics.GroupBy(records, yearKey))
		report.ByDayOfWeek = named(breakdowns(analytics.GroupBy(records, weekdayKey)))
	}
	if caps.HasProductCategory {
		report.ByCategory = withShare(analytics.GroupBy(records, categoryKey), 0)
	}
	if caps.HasCountry {
		report.ByCountry = withShare(analytics.GroupBy(records, countryKey), 0)
	}
	if caps.HasProductCode {
		report.TopProducts = topProducts(records, 20)
	}
	if caps.HasCustomerID && caps.HasTransactionDate {
		report.Cohorts = cohorts(records)
	}
	return report, nil
}

func monthlyPerformance(months []*analytics.Group) []MonthlyPerformance {
	base := withGrowth(months)
	out := make([]MonthlyPerformance, len(months))
	for i, m := range months {
		out[i] = MonthlyPerformance{Breakdown: base[i], TransactionCount: m.Rows}
		if i > 0 {
			prev := months[i-1]
			out[i].CustomerGrowth = utils.Round(pctChange(float64(prev.Customers), float64(m.Customers)), 2)
			out[i].TransactionGrowth = utils.Round(pctChange(float64(prev.Transactions), float64(m.Transactions)), 2)
		}
	}
	return out
}

// cohorts groups customers by the month of their first purchase and tracks
// each cohort's customers and revenue per transaction month.
func cohorts(records []model.Transaction) *Cohorts {
	first := make(map[int64]string)
	for _, g := range analytics.GroupByCustomer(records) {
		first[g.CustomerID] = g.First.Format("2006-01")
	}

	cells := analytics.GroupBy(records, func(r *model.Transaction) string {
		return first[r.CustomerID] + "|" + r.Date.Format("2006-01")
	})
	out := &Cohorts{Data: make([]CohortCell, len(cells))}
	seen := make(map[string]bool)
	for i, g := range cells {
		cohort, month := g.Key[:7], g.Key[8:]
		out.Data[i] = CohortCell{
			Cohort:           cohort,
			TransactionMonth: month,
			Customers:        g.Customers,
			Revenue:          utils.Round(g.Revenue, 2),
		}
		if !seen[cohort] {
			seen[cohort] = true
			out.Cohorts = append(out.Cohorts, cohort)
		}
	}
	sort.Strings(out.Cohorts)
	return out
}
