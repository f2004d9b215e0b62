package insight

import (
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// Product is a product's sales aggregate.
type Product struct {
	ProductCode  string  `json:"product_code"`
	Description  string  `json:"description"`
	Revenue      float64 `json:"revenue"`
	QuantitySold int     `json:"quantity_sold"`
	Transactions int     `json:"transactions"`
	Customers    int     `json:"unique_customers"`
	AvgPrice     float64 `json:"avg_price"`
}

// TopCustomer is a customer's spend aggregate.
type TopCustomer struct {
	CustomerID     int64   `json:"customer_id"`
	TotalSpend     float64 `json:"total_spend"`
	Transactions   int     `json:"transactions"`
	ItemsPurchased int     `json:"items_purchased"`
}

// Insight is a headline finding.
type Insight struct {
	Type        string `json:"type"`
	Title       string `json:"title"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// Temporal holds monthly, weekday and hourly breakdowns.
type Temporal struct {
	Monthly   []Breakdown `json:"monthly"`
	DayOfWeek []Breakdown `json:"day_of_week"`
	Hourly    []Breakdown `json:"hourly"`
}

// EDAReport is the exploratory analysis of the dataset.
type EDAReport struct {
	BasicStatistics map[string]Stats              `json:"basic_statistics"`
	Distributions   map[string][]Bin              `json:"distribution_analysis"`
	Temporal        Temporal                      `json:"temporal_analysis"`
	Categorical     map[string][]Breakdown        `json:"categorical_analysis"`
	Correlation     map[string]map[string]float64 `json:"correlation_matrix,omitempty"`
	TopProducts     []Product                     `json:"top_products"`
	TopCustomers    []TopCustomer                 `json:"top_customers"`
	Insights        []Insight                     `json:"insights"`
	DataShape       [2]int                        `json:"data_shape"`
}

// EDA describes the dataset. Optional sections follow its capabilities.
func EDA(ds *model.Dataset) (*EDAReport, error) {
	if err := ds.Require("eda", model.ColTransactionID, model.ColAmount, model.ColQuantity); err != nil {
		return nil, err
	}
	caps := ds.Capabilities
	records := ds.Records

	amounts := column(records, func(r *model.Transaction) float64 { return r.Amount })
	quantities := column(records, func(r *model.Transaction) float64 { return float64(r.Quantity) })

	report := &EDAReport{
		BasicStatistics: map[string]Stats{
			model.ColQuantity: Describe(quantities),
			model.ColAmount:   Describe(amounts),
		},
		Distributions: map[string][]Bin{
			model.ColAmount:   histogram(amounts, amountEdges, amountLabels),
			model.ColQuantity: histogram(quantities, quantityEdges, quantityLabels),
		},
		Categorical:  make(map[string][]Breakdown),
		TopProducts:  []Product{},
		TopCustomers: []TopCustomer{},
		DataShape:    [2]int{len(records), columnCount(caps)},
	}

	correlated := map[string][]float64{model.ColQuantity: quantities, model.ColAmount: amounts}
	if caps.HasUnitPrice {
		prices := column(records, func(r *model.Transaction) float64 { return r.UnitPrice })
		report.BasicStatistics[model.ColUnitPrice] = Describe(prices)
		correlated[model.ColUnitPrice] = prices
	}
	report.Correlation = correlation(correlated)

	if caps.HasTransactionDate {
		report.Temporal = Temporal{
			Monthly:   breakdowns(analytics.GroupBy(records, analytics.MonthKey)),
			DayOfWeek: named(breakdowns(analytics.GroupBy(records, weekdayKey))),
			Hourly:    breakdowns(analytics.GroupBy(records, hourKey)),
		}
	}
	if caps.HasCountry {
		report.Categorical[model.ColCountry] = withShare(analytics.GroupBy(records, countryKey), 20)
	}
	if caps.HasProductCategory {
		report.Categorical[model.ColProductCategory] = withShare(analytics.GroupBy(records, categoryKey), 20)
	}
	if caps.HasProductCode {
		report.TopProducts = topProducts(records, 10)
	}
	if caps.HasCustomerID {
		report.TopCustomers = topCustomers(records, 10)
	}
	report.Insights = insights(ds, amounts)
	return report, nil
}

func columnCount(caps model.Capabilities) int {
	n := 0
	for _, c := range []string{model.ColTransactionID, model.ColCustomerID, model.ColTransactionDate,
		model.ColQuantity, model.ColUnitPrice, model.ColAmount, model.ColProductCode,
		model.ColDescription, model.ColProductCategory, model.ColCountry} {
		if caps.Has(c) {
			n++
		}
	}
	return n
}

// named replaces weekday indexes with day names.
func named(days []Breakdown) []Breakdown {
	for i := range days {
		for d, name := range dayNames {
			if days[i].Key == strconv.Itoa(d) {
				days[i].Key = name
			}
		}
	}
	return days
}

func correlation(columns map[string][]float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(columns))
	for a, x := range columns {
		out[a] = make(map[string]float64, len(columns))
		for b, y := range columns {
			r := stat.Correlation(x, y, nil)
			if math.IsNaN(r) {
				// undefined for a constant column
				r = 0
			}
			out[a][b] = utils.Round(r, 3)
		}
	}
	return out
}

func topProducts(records []model.Transaction, n int) []Product {
	descriptions := make(map[string]string)
	for _, r := range records {
		if _, ok := descriptions[r.ProductCode]; !ok {
			descriptions[r.ProductCode] = r.Description
		}
	}
	groups := analytics.GroupBy(records, productKey)
	analytics.SortGroups(groups, func(g *analytics.Group) float64 { return g.Revenue }, false)
	if len(groups) > n {
		groups = groups[:n]
	}
	out := make([]Product, len(groups))
	for i, g := range groups {
		out[i] = Product{
			ProductCode:  g.Key,
			Description:  descriptions[g.Key],
			Revenue:      utils.Round(g.Revenue, 2),
			QuantitySold: g.Quantity,
			Transactions: g.Transactions,
			Customers:    g.Customers,
			AvgPrice:     utils.Round(utils.SafeDiv(g.Revenue, float64(g.Quantity)), 2),
		}
	}
	return out
}

func topCustomers(records []model.Transaction, n int) []TopCustomer {
	groups := analytics.GroupByCustomer(records)
	sortByRevenue := make([]*analytics.Group, len(groups))
	ids := make(map[*analytics.Group]int64, len(groups))
	for i, g := range groups {
		sortByRevenue[i] = g.Group
		ids[g.Group] = g.CustomerID
	}
	analytics.SortGroups(sortByRevenue, func(g *analytics.Group) float64 { return g.Revenue }, false)
	if len(sortByRevenue) > n {
		sortByRevenue = sortByRevenue[:n]
	}
	out := make([]TopCustomer, len(sortByRevenue))
	for i, g := range sortByRevenue {
		out[i] = TopCustomer{
			CustomerID:     ids[g],
			TotalSpend:     utils.Round(g.Revenue, 2),
			Transactions:   g.Transactions,
			ItemsPurchased: g.Quantity,
		}
	}
	return out
}

func insights(ds *model.Dataset, amounts []float64) []Insight {
	var total float64
	for _, a := range amounts {
		total += a
	}
	out := []Insight{{
		Type:        "revenue",
		Title:       "Total Revenue",
		Value:       money(total),
		Description: "Average transaction value: " + money(analytics.Mean(amounts)),
	}}
	if ds.Capabilities.HasCustomerID {
		customers := len(analytics.GroupByCustomer(ds.Records))
		out = append(out, Insight{
			Type:        "customers",
			Title:       "Unique Customers",
			Value:       count(customers),
			Description: "Avg revenue per customer: " + money(utils.SafeDiv(total, float64(customers))),
		})
	}
	if ds.Capabilities.HasCountry {
		countries := analytics.GroupBy(ds.Records, countryKey)
		analytics.SortGroups(countries, func(g *analytics.Group) float64 { return g.Revenue }, false)
		if len(countries) > 0 {
			out = append(out, Insight{
				Type:        "geography",
				Title:       "Top Market",
				Value:       countries[0].Key,
				Description: "Revenue: " + money(countries[0].Revenue),
			})
		}
	}
	return out
}
