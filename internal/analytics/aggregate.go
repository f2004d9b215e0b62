// Package analytics holds the grouping and quantile helpers shared by the
// analytical engines.
package analytics

import (
	"sort"
	"time"

	"go-customer-intel/internal/model"
)

// Group accumulates the standard metrics of a set of transactions sharing a key.
type Group struct {
	Key          string    `json:"key"`
	Rows         int       `json:"rows"`
	Transactions int       `json:"transactions"` // distinct transaction_id
	Customers    int       `json:"customers"`    // distinct customer_id
	Revenue      float64   `json:"revenue"`
	Quantity     int       `json:"quantity"`
	First        time.Time `json:"first"`
	Last         time.Time `json:"last"`
	Amounts      []float64 `json:"-"`
	Quantities   []float64 `json:"-"`

	txnSeen      map[string]struct{}
	customerSeen map[int64]struct{}
}

func newGroup(key string) *Group {
	return &Group{
		Key:          key,
		txnSeen:      make(map[string]struct{}),
		customerSeen: make(map[int64]struct{}),
	}
}

func (g *Group) add(r *model.Transaction) {
	if g.Rows == 0 || r.Date.Before(g.First) {
		g.First = r.Date
	}
	if g.Rows == 0 || r.Date.After(g.Last) {
		g.Last = r.Date
	}
	g.Rows++
	g.Revenue += r.Amount
	g.Quantity += r.Quantity
	g.Amounts = append(g.Amounts, r.Amount)
	g.Quantities = append(g.Quantities, float64(r.Quantity))
	if _, ok := g.txnSeen[r.TransactionID]; !ok {
		g.txnSeen[r.TransactionID] = struct{}{}
		g.Transactions++
	}
	if _, ok := g.customerSeen[r.CustomerID]; !ok {
		g.customerSeen[r.CustomerID] = struct{}{}
		g.Customers++
	}
}

// AvgAmount is the mean transaction amount per row.
func (g *Group) AvgAmount() float64 {
	if g.Rows == 0 {
		return 0
	}
	return g.Revenue / float64(g.Rows)
}

// KeyFunc extracts the grouping key of a record; an empty key skips the record.
type KeyFunc func(r *model.Transaction) string

// GroupBy aggregates records by key and returns groups sorted by key.
func GroupBy(records []model.Transaction, key KeyFunc) []*Group {
	groups := make(map[string]*Group)
	for i := range records {
		k := key(&records[i])
		if k == "" {
			continue
		}
		g, ok := groups[k]
		if !ok {
			g = newGroup(k)
			groups[k] = g
		}
		g.add(&records[i])
	}

	out := make([]*Group, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// CustomerGroup is the aggregate of one customer's transactions.
type CustomerGroup struct {
	CustomerID int64
	*Group
}

// GroupByCustomer returns one group per distinct customer, ordered by ID.
// Every customer with at least one record is present.
func GroupByCustomer(records []model.Transaction) []CustomerGroup {
	groups := make(map[int64]*Group)
	for i := range records {
		id := records[i].CustomerID
		g, ok := groups[id]
		if !ok {
			g = newGroup("")
			groups[id] = g
		}
		g.add(&records[i])
	}

	out := make([]CustomerGroup, 0, len(groups))
	for id, g := range groups {
		out = append(out, CustomerGroup{CustomerID: id, Group: g})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CustomerID < out[j].CustomerID })
	return out
}

// SortGroups orders groups by a metric, keeping key order for ties.
func SortGroups(groups []*Group, metric func(*Group) float64, ascending bool) {
	sort.SliceStable(groups, func(i, j int) bool {
		if ascending {
			return metric(groups[i]) < metric(groups[j])
		}
		return metric(groups[i]) > metric(groups[j])
	})
}

// Period granularities
const (
	Daily   = "D"
	Weekly  = "W"
	Monthly = "M"
)

// PeriodStart truncates t to the start of its day, ISO week (Monday) or month.
func PeriodStart(t time.Time, freq string) time.Time {
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch freq {
	case Weekly:
		offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
		return day.AddDate(0, 0, -offset)
	case Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	default:
		return day
	}
}

// NextPeriod advances a period start by one period.
func NextPeriod(t time.Time, freq string) time.Time {
	switch freq {
	case Weekly:
		return t.AddDate(0, 0, 7)
	case Monthly:
		return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, t.Location())
	default:
		return t.AddDate(0, 0, 1)
	}
}

// MonthKey formats t as a YYYY-MM period label.
func MonthKey(r *model.Transaction) string { return r.Date.Format("2006-01") }

// DayKey formats t as a YYYY-MM-DD period label.
func DayKey(r *model.Transaction) string { return r.Date.Format("2006-01-02") }
