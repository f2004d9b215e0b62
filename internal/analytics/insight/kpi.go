package insight

import (
	"fmt"
	"time"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// RevenueKPIs are the order-level headline figures.
type RevenueKPIs struct {
	TotalRevenue           float64 `json:"total_revenue"`
	AvgOrderValue          float64 `json:"avg_order_value"`
	MedianOrderValue       float64 `json:"median_order_value"`
	RevenuePerTransaction  float64 `json:"revenue_per_transaction"`
	TotalTransactions      int     `json:"total_transactions"`
	TotalItemsSold         int     `json:"total_items_sold"`
	AvgItemsPerTransaction float64 `json:"avg_items_per_transaction"`
}

// CustomerKPIs describe the customer base.
type CustomerKPIs struct {
	UniqueCustomers         int     `json:"unique_customers"`
	RevenuePerCustomer      float64 `json:"revenue_per_customer"`
	AvgOrdersPerCustomer    float64 `json:"avg_orders_per_customer"`
	MaxOrdersSingleCustomer int     `json:"max_orders_single_customer"`
	RepeatCustomerCount     int     `json:"repeat_customer_count"`
	SinglePurchaseCustomers int     `json:"single_purchase_customers"`
	RepeatCustomerRate      float64 `json:"repeat_customer_rate"`
}

// ProductKPIs describe the catalogue.
type ProductKPIs struct {
	UniqueProducts       int     `json:"unique_products,omitempty"`
	AvgRevenuePerProduct float64 `json:"avg_revenue_per_product,omitempty"`
	MaxProductRevenue    float64 `json:"max_product_revenue,omitempty"`
	TopProduct           string  `json:"top_product,omitempty"`
	UniqueCategories     int     `json:"unique_product_types,omitempty"`
	TopCategory          string  `json:"top_category,omitempty"`
}

// GeographicKPIs describe revenue concentration across countries.
type GeographicKPIs struct {
	UniqueCountries   int     `json:"unique_countries"`
	TopCountry        string  `json:"top_country"`
	TopCountryRevenue float64 `json:"top_country_revenue"`
	TopCountryShare   float64 `json:"top_country_share"`
	CountryHHI        float64 `json:"country_hhi"`
}

// TimeKPIs describe the covered period.
type TimeKPIs struct {
	StartDate            string  `json:"start_date"`
	EndDate              string  `json:"end_date"`
	DataSpanDays         int     `json:"data_span_days"`
	AvgMonthlyRevenue    float64 `json:"avg_monthly_revenue"`
	BestMonth            string  `json:"best_month"`
	BestMonthRevenue     float64 `json:"best_month_revenue"`
	AvgDailyRevenue      float64 `json:"avg_daily_revenue"`
	BestDayRevenue       float64 `json:"best_day_revenue"`
	AvgDailyTransactions float64 `json:"avg_daily_transactions"`
}

// GrowthKPIs compare recent months with earlier ones.
type GrowthKPIs struct {
	MoMGrowth        *float64 `json:"mom_growth,omitempty"`
	AvgMonthlyGrowth *float64 `json:"avg_monthly_growth,omitempty"`
	YoYGrowth        *float64 `json:"yoy_growth,omitempty"`
}

// KPIs groups every KPI family; absent families follow dataset capabilities.
type KPIs struct {
	Revenue    RevenueKPIs     `json:"revenue"`
	Customer   *CustomerKPIs   `json:"customer,omitempty"`
	Product    *ProductKPIs    `json:"product,omitempty"`
	Geographic *GeographicKPIs `json:"geographic,omitempty"`
	Time       *TimeKPIs       `json:"time,omitempty"`
	Growth     *GrowthKPIs     `json:"growth,omitempty"`
}

// SummaryCard is a dashboard-ready KPI.
type SummaryCard struct {
	Category string  `json:"category"`
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	RawValue float64 `json:"raw_value"`
}

// KPIReport is the KPI stage output.
type KPIReport struct {
	GeneratedAt string        `json:"generated_at"`
	KPIs        KPIs          `json:"kpis"`
	Summary     []SummaryCard `json:"summary"`
}

// KPI computes the headline indicators of the dataset.
func KPI(ds *model.Dataset) (*KPIReport, error) {
	if err := ds.Require("kpi_generation", model.ColTransactionID, model.ColAmount, model.ColQuantity); err != nil {
		return nil, err
	}
	records := ds.Records
	caps := ds.Capabilities

	k := KPIs{Revenue: revenueKPIs(records)}
	if caps.HasCustomerID {
		k.Customer = customerKPIs(records, k.Revenue.TotalRevenue)
	}
	if caps.HasProductCode || caps.HasProductCategory {
		k.Product = productKPIs(records, caps)
	}
	if caps.HasCountry {
		k.Geographic = geographicKPIs(records)
	}
	if caps.HasTransactionDate && len(records) > 0 {
		monthly := analytics.GroupBy(records, analytics.MonthKey)
		k.Time = timeKPIs(ds, monthly)
		k.Growth = growthKPIs(monthly)
	}

	return &KPIReport{
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		KPIs:        k,
		Summary:     summaryCards(k),
	}, nil
}

func revenueKPIs(records []model.Transaction) RevenueKPIs {
	amounts := column(records, func(r *model.Transaction) float64 { return r.Amount })
	quantities := column(records, func(r *model.Transaction) float64 { return float64(r.Quantity) })
	all := analytics.GroupBy(records, func(*model.Transaction) string { return "all" })
	if len(all) == 0 {
		return RevenueKPIs{}
	}
	g := all[0]
	total := utils.Round(g.Revenue, 2)
	return RevenueKPIs{
		TotalRevenue:           total,
		AvgOrderValue:          utils.Round(analytics.Mean(amounts), 2),
		MedianOrderValue:       utils.Round(analytics.Median(amounts), 2),
		RevenuePerTransaction:  utils.Round(utils.SafeDiv(total, float64(g.Transactions)), 2),
		TotalTransactions:      g.Transactions,
		TotalItemsSold:         g.Quantity,
		AvgItemsPerTransaction: utils.Round(analytics.Mean(quantities), 2),
	}
}

func customerKPIs(records []model.Transaction, totalRevenue float64) *CustomerKPIs {
	groups := analytics.GroupByCustomer(records)
	k := &CustomerKPIs{UniqueCustomers: len(groups)}
	var orders float64
	for _, g := range groups {
		orders += float64(g.Transactions)
		if g.Transactions > k.MaxOrdersSingleCustomer {
			k.MaxOrdersSingleCustomer = g.Transactions
		}
		if g.Transactions > 1 {
			k.RepeatCustomerCount++
		}
	}
	n := float64(len(groups))
	k.SinglePurchaseCustomers = k.UniqueCustomers - k.RepeatCustomerCount
	k.RevenuePerCustomer = utils.Round(utils.SafeDiv(totalRevenue, n), 2)
	k.AvgOrdersPerCustomer = utils.Round(utils.SafeDiv(orders, n), 2)
	k.RepeatCustomerRate = utils.Round(utils.SafeDiv(float64(k.RepeatCustomerCount), n)*100, 2)
	return k
}

func byRevenue(groups []*analytics.Group) []*analytics.Group {
	analytics.SortGroups(groups, func(g *analytics.Group) float64 { return g.Revenue }, false)
	return groups
}

func productKPIs(records []model.Transaction, caps model.Capabilities) *ProductKPIs {
	k := &ProductKPIs{}
	if caps.HasProductCode {
		products := byRevenue(analytics.GroupBy(records, productKey))
		if len(products) > 0 {
			var total float64
			for _, p := range products {
				total += p.Revenue
			}
			k.UniqueProducts = len(products)
			k.AvgRevenuePerProduct = utils.Round(total/float64(len(products)), 2)
			k.MaxProductRevenue = utils.Round(products[0].Revenue, 2)
			k.TopProduct = products[0].Key
		}
	}
	if caps.HasProductCategory {
		categories := byRevenue(analytics.GroupBy(records, categoryKey))
		if len(categories) > 0 {
			k.UniqueCategories = len(categories)
			k.TopCategory = categories[0].Key
		}
	}
	return k
}

// geographicKPIs includes the Herfindahl-Hirschman index of country revenue
// shares, scaled to 0..10000.
func geographicKPIs(records []model.Transaction) *GeographicKPIs {
	countries := byRevenue(analytics.GroupBy(records, countryKey))
	if len(countries) == 0 {
		return &GeographicKPIs{}
	}
	var total, hhi float64
	for _, c := range countries {
		total += c.Revenue
	}
	for _, c := range countries {
		share := utils.SafeDiv(c.Revenue, total)
		hhi += share * share
	}
	return &GeographicKPIs{
		UniqueCountries:   len(countries),
		TopCountry:        countries[0].Key,
		TopCountryRevenue: utils.Round(countries[0].Revenue, 2),
		TopCountryShare:   utils.Round(utils.SafeDiv(countries[0].Revenue, total)*100, 2),
		CountryHHI:        utils.Round(hhi*10000, 2),
	}
}

func timeKPIs(ds *model.Dataset, monthly []*analytics.Group) *TimeKPIs {
	first, last := ds.DateRange()
	daily := analytics.GroupBy(ds.Records, analytics.DayKey)

	k := &TimeKPIs{
		StartDate:    first.Format("2006-01-02"),
		EndDate:      last.Format("2006-01-02"),
		DataSpanDays: utils.WholeDays(last.Sub(first)),
	}
	var monthTotal float64
	best := monthly[0]
	for _, m := range monthly {
		monthTotal += m.Revenue
		if m.Revenue > best.Revenue {
			best = m
		}
	}
	k.AvgMonthlyRevenue = utils.Round(monthTotal/float64(len(monthly)), 2)
	k.BestMonth = best.Key
	k.BestMonthRevenue = utils.Round(best.Revenue, 2)

	var dayTotal, bestDay, txns float64
	for _, d := range daily {
		dayTotal += d.Revenue
		txns += float64(d.Transactions)
		if d.Revenue > bestDay {
			bestDay = d.Revenue
		}
	}
	n := float64(len(daily))
	k.AvgDailyRevenue = utils.Round(dayTotal/n, 2)
	k.BestDayRevenue = utils.Round(bestDay, 2)
	k.AvgDailyTransactions = utils.Round(txns/n, 2)
	return k
}

func growthKPIs(monthly []*analytics.Group) *GrowthKPIs {
	k := &GrowthKPIs{}
	n := len(monthly)
	if n >= 2 {
		mom := utils.Round(pctChange(monthly[n-2].Revenue, monthly[n-1].Revenue), 2)
		k.MoMGrowth = &mom
	}
	if n > 2 {
		var sum float64
		var changes int
		for i := 1; i < n; i++ {
			if monthly[i-1].Revenue == 0 {
				continue
			}
			sum += pctChange(monthly[i-1].Revenue, monthly[i].Revenue)
			changes++
		}
		avg := utils.Round(utils.SafeDiv(sum, float64(changes)), 2)
		k.AvgMonthlyGrowth = &avg
	}
	if n >= 12 {
		var last12, prev12 float64
		for i, m := range monthly {
			switch {
			case i >= n-12:
				last12 += m.Revenue
			case i >= n-24:
				prev12 += m.Revenue
			}
		}
		yoy := utils.Round(pctChange(prev12, last12), 2)
		k.YoYGrowth = &yoy
	}
	return k
}

func summaryCards(k KPIs) []SummaryCard {
	cards := []SummaryCard{
		{"Revenue", "Total Revenue", money(k.Revenue.TotalRevenue), k.Revenue.TotalRevenue},
		{"Revenue", "Average Order Value", money(k.Revenue.AvgOrderValue), k.Revenue.AvgOrderValue},
		{"Revenue", "Total Transactions", count(k.Revenue.TotalTransactions), float64(k.Revenue.TotalTransactions)},
	}
	if c := k.Customer; c != nil {
		cards = append(cards,
			SummaryCard{"Customer", "Unique Customers", count(c.UniqueCustomers), float64(c.UniqueCustomers)},
			SummaryCard{"Customer", "Repeat Customer Rate", fmt.Sprintf("%v%%", c.RepeatCustomerRate), c.RepeatCustomerRate},
		)
	}
	if k.Growth != nil && k.Growth.MoMGrowth != nil {
		mom := *k.Growth.MoMGrowth
		cards = append(cards, SummaryCard{"Growth", "Month over Month", fmt.Sprintf("%+.1f%%", mom), mom})
	}
	return cards
}
