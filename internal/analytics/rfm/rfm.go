// Package rfm scores customers on recency, frequency and monetary value and
// assigns each one to a named cohort.
package rfm

import (
	"sort"
	"strconv"
	"time"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

const engineName = "rfm_analysis"

// Segment labels, in rule priority order
const (
	Champions          = "Champions"
	LoyalCustomers     = "Loyal Customers"
	PotentialLoyalists = "Potential Loyalists"
	RecentCustomers    = "Recent Customers"
	Promising          = "Promising"
	NeedAttention      = "Need Attention"
	AboutToSleep       = "About to Sleep"
	AtRisk             = "At Risk"
	CantLoseThem       = "Can't Lose Them"
	Hibernating        = "Hibernating"
	Lost               = "Lost"
)

// Params configures an RFM run.
type Params struct {
	// ReferenceDate defaults to the day after the latest transaction when nil
	// or earlier than that transaction.
	ReferenceDate *time.Time
	Quantiles     int
}

// CustomerRFM is one row of the scored table.
type CustomerRFM struct {
	CustomerID int64   `json:"customer_id"`
	Recency    int     `json:"recency"`
	Frequency  int     `json:"frequency"`
	Monetary   float64 `json:"monetary"`
	RScore     int     `json:"r_score"`
	FScore     int     `json:"f_score"`
	MScore     int     `json:"m_score"`
	RFMScore   string  `json:"rfm_score"`
	RFMTotal   int     `json:"rfm_total"`
	Segment    string  `json:"segment"`
}

// Engine computes RFM over a private copy of the dataset.
type Engine struct {
	ds     *model.Dataset
	params Params
}

// New returns an engine bound to a private copy of ds.
func New(ds *model.Dataset, params Params) *Engine {
	if params.Quantiles <= 0 {
		params.Quantiles = 5
	}
	return &Engine{ds: ds.Clone(), params: params}
}

// Analysis is the scored customer table and the reference date used.
type Analysis struct {
	ReferenceDate time.Time
	Customers     []CustomerRFM
}

// Run computes metrics, scores and segments for every customer.
func (e *Engine) Run() (*Analysis, error) {
	if err := e.ds.Require(engineName, model.ColCustomerID, model.ColTransactionDate,
		model.ColTransactionID, model.ColAmount); err != nil {
		return nil, err
	}
	if e.ds.Len() == 0 {
		return nil, errors.InsufficientData("%s: dataset has no transactions", engineName)
	}

	_, maxDate := e.ds.DateRange()
	ref := maxDate.Add(24 * time.Hour)
	if e.params.ReferenceDate != nil && !e.params.ReferenceDate.Before(maxDate) {
		ref = *e.params.ReferenceDate
	}

	groups := analytics.GroupByCustomer(e.ds.Records)
	customers := make([]CustomerRFM, len(groups))
	for i, g := range groups {
		customers[i] = CustomerRFM{
			CustomerID: g.CustomerID,
			Recency:    utils.WholeDays(ref.Sub(g.Last)),
			Frequency:  g.Transactions,
			Monetary:   utils.Round(g.Revenue, 2),
		}
	}
	logger.Named("rfm").Infow("RFM metrics calculated", "customers", len(customers), "reference_date", ref)

	assignScores(customers, e.params.Quantiles)
	for i := range customers {
		c := &customers[i]
		c.Segment = Segment(c.RScore, c.FScore, c.MScore)
	}

	return &Analysis{ReferenceDate: ref, Customers: customers}, nil
}

// assignScores buckets each dimension into quantiles. Recency is cut on raw
// values and inverted; frequency and monetary are cut on first-seen ranks.
func assignScores(customers []CustomerRFM, q int) {
	recency := make([]float64, len(customers))
	frequency := make([]float64, len(customers))
	monetary := make([]float64, len(customers))
	for i, c := range customers {
		recency[i] = float64(c.Recency)
		frequency[i] = float64(c.Frequency)
		monetary[i] = c.Monetary
	}

	rBuckets, _ := analytics.QCut(recency, q)
	fBuckets, _ := analytics.QCut(analytics.RankFirst(frequency), q)
	mBuckets, _ := analytics.QCut(analytics.RankFirst(monetary), q)

	for i := range customers {
		c := &customers[i]
		c.RScore = q - rBuckets[i]
		c.FScore = fBuckets[i] + 1
		c.MScore = mBuckets[i] + 1
		c.RFMScore = strconv.Itoa(c.RScore) + strconv.Itoa(c.FScore) + strconv.Itoa(c.MScore)
		c.RFMTotal = c.RScore + c.FScore + c.MScore
	}
}

// Segment applies the ordered cohort rules; the first match wins.
func Segment(r, f, m int) string {
	switch {
	case r >= 4 && f >= 4 && m >= 4:
		return Champions
	case f >= 4 && m >= 3:
		return LoyalCustomers
	case r >= 4 && f >= 2 && f < 4:
		return PotentialLoyalists
	case r >= 4 && f < 2:
		return RecentCustomers
	case r >= 3 && m < 3:
		return Promising
	case r >= 2 && r < 4 && f >= 2 && m >= 2:
		return NeedAttention
	case r >= 2 && r < 3 && f < 3:
		return AboutToSleep
	case r < 3 && f >= 3 && m >= 3:
		return AtRisk
	case r < 2 && f >= 4 && m >= 4:
		return CantLoseThem
	case r < 2 && f < 2:
		return Hibernating
	default:
		return Lost
	}
}

// Table exposes the scored customers for export.
func (a *Analysis) Table() model.Table {
	t := model.Table{
		Name: "rfm_analysis",
		Columns: []string{"customer_id", "recency", "frequency", "monetary",
			"r_score", "f_score", "m_score", "rfm_score", "rfm_total", "segment"},
		Rows: make([][]interface{}, len(a.Customers)),
	}
	for i, c := range a.Customers {
		t.Rows[i] = []interface{}{c.CustomerID, c.Recency, c.Frequency, c.Monetary,
			c.RScore, c.FScore, c.MScore, c.RFMScore, c.RFMTotal, c.Segment}
	}
	return t
}

// SegmentOf returns the segment label per customer ID.
func (a *Analysis) SegmentOf() map[int64]string {
	out := make(map[int64]string, len(a.Customers))
	for _, c := range a.Customers {
		out[c.CustomerID] = c.Segment
	}
	return out
}

func sortedKeys(m map[string]*SegmentSummary) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
