// Package insight produces the descriptive reports of a run: exploratory
// statistics, headline KPIs and period/dimension performance breakdowns.
package insight

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

var printer = message.NewPrinter(language.English)

func money(v float64) string { return printer.Sprintf("$%.2f", v) }

func count(n int) string { return printer.Sprintf("%d", n) }

var dayNames = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// weekday returns 0 for Monday through 6 for Sunday.
func weekday(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }

func quarterKey(r *model.Transaction) string {
	return strconv.Itoa(r.Date.Year()) + "Q" + strconv.Itoa((int(r.Date.Month())-1)/3+1)
}

func yearKey(r *model.Transaction) string { return strconv.Itoa(r.Date.Year()) }

func countryKey(r *model.Transaction) string { return r.Country }

func categoryKey(r *model.Transaction) string { return r.ProductCategory }

func productKey(r *model.Transaction) string { return r.ProductCode }

func customerKey(r *model.Transaction) string { return strconv.FormatInt(r.CustomerID, 10) }

func weekdayKey(r *model.Transaction) string { return strconv.Itoa(weekday(r.Date)) }

func hourKey(r *model.Transaction) string { return fmt.Sprintf("%02d", r.Date.Hour()) }

// Breakdown is the aggregate of one period or dimension value.
type Breakdown struct {
	Key            string   `json:"key"`
	Transactions   int      `json:"transactions"`
	Revenue        float64  `json:"revenue"`
	Customers      int      `json:"customers,omitempty"`
	ItemsSold      int      `json:"items_sold,omitempty"`
	AvgTransaction float64  `json:"avg_transaction,omitempty"`
	MarketShare    *float64 `json:"market_share,omitempty"`
	RevenueGrowth  *float64 `json:"revenue_growth,omitempty"`
}

func breakdowns(groups []*analytics.Group) []Breakdown {
	out := make([]Breakdown, len(groups))
	for i, g := range groups {
		out[i] = Breakdown{
			Key:            g.Key,
			Transactions:   g.Transactions,
			Revenue:        utils.Round(g.Revenue, 2),
			Customers:      g.Customers,
			ItemsSold:      g.Quantity,
			AvgTransaction: utils.Round(g.AvgAmount(), 2),
		}
	}
	return out
}

// withShare sets each entry's share of total revenue and sorts by revenue.
func withShare(groups []*analytics.Group, limit int) []Breakdown {
	var total float64
	for _, g := range groups {
		total += g.Revenue
	}
	analytics.SortGroups(groups, func(g *analytics.Group) float64 { return g.Revenue }, false)
	if limit > 0 && len(groups) > limit {
		groups = groups[:limit]
	}
	out := breakdowns(groups)
	for i, g := range groups {
		share := utils.Round(utils.SafeDiv(g.Revenue, total)*100, 2)
		out[i].MarketShare = &share
	}
	return out
}

// pctChange is the percentage change from prev to cur; zero when prev is zero.
func pctChange(prev, cur float64) float64 {
	if prev == 0 {
		return 0
	}
	return (cur - prev) / prev * 100
}

// withGrowth sets period-over-period revenue growth on key-ordered groups.
func withGrowth(groups []*analytics.Group) []Breakdown {
	out := breakdowns(groups)
	for i := range out {
		growth := 0.0
		if i > 0 {
			growth = utils.Round(pctChange(groups[i-1].Revenue, groups[i].Revenue), 2)
		}
		out[i].RevenueGrowth = &growth
	}
	return out
}

// Stats summarises a numeric column.
type Stats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	Std    float64 `json:"std"`
	Min    float64 `json:"min"`
	Q25    float64 `json:"q25"`
	Median float64 `json:"median"`
	Q75    float64 `json:"q75"`
	Max    float64 `json:"max"`
}

// Describe computes count, mean, sample std and quartiles of values.
func Describe(values []float64) Stats {
	if len(values) == 0 {
		return Stats{}
	}
	sorted := analytics.Sorted(values)
	return Stats{
		Count:  len(values),
		Mean:   utils.Round(analytics.Mean(values), 2),
		Std:    utils.Round(analytics.SampleStd(values), 2),
		Min:    utils.Round(sorted[0], 2),
		Q25:    utils.Round(analytics.Quantile(sorted, 0.25), 2),
		Median: utils.Round(analytics.Quantile(sorted, 0.5), 2),
		Q75:    utils.Round(analytics.Quantile(sorted, 0.75), 2),
		Max:    utils.Round(sorted[len(sorted)-1], 2),
	}
}

// Bin is one labelled right-closed interval of a distribution.
type Bin struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

func histogram(values []float64, edges []float64, labels []string) []Bin {
	out := make([]Bin, len(labels))
	for i, l := range labels {
		out[i].Label = l
	}
	for _, v := range values {
		if v < 0 {
			continue
		}
		out[sort.SearchFloat64s(edges, v)].Count++
	}
	return out
}

func column(records []model.Transaction, f func(*model.Transaction) float64) []float64 {
	out := make([]float64, len(records))
	for i := range records {
		out[i] = f(&records[i])
	}
	return out
}

var (
	amountEdges  = []float64{10, 25, 50, 100, 250, 500, 1000, math.Inf(1)}
	amountLabels = []string{"0-10", "10-25", "25-50", "50-100", "100-250", "250-500", "500-1000", "1000+"}

	quantityEdges  = []float64{1, 5, 10, 25, 50, 100, math.Inf(1)}
	quantityLabels = []string{"1", "2-5", "6-10", "11-25", "26-50", "51-100", "100+"}
)
