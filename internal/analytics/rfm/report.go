package rfm

import (
	"sort"
	"time"

	"go-customer-intel/pkg/utils"
)

// SegmentSummary aggregates one cohort.
type SegmentSummary struct {
	Segment       string  `json:"segment"`
	CustomerCount int     `json:"customer_count"`
	AvgRecency    float64 `json:"avg_recency"`
	AvgFrequency  float64 `json:"avg_frequency"`
	AvgMonetary   float64 `json:"avg_monetary"`
	TotalMonetary float64 `json:"total_monetary"`
	CustomerPct   float64 `json:"customer_pct"`
	RevenuePct    float64 `json:"revenue_pct"`
}

// Distribution counts customers per score and per segment.
type Distribution struct {
	RScore  map[int]int    `json:"r_score_distribution"`
	FScore  map[int]int    `json:"f_score_distribution"`
	MScore  map[int]int    `json:"m_score_distribution"`
	Segment map[string]int `json:"segment_distribution"`
}

// MatrixCell is one (r_score, f_score) cell of the recency/frequency grid.
type MatrixCell struct {
	Recency   int     `json:"recency"`
	Frequency int     `json:"frequency"`
	Count     int     `json:"count"`
	Revenue   float64 `json:"revenue"`
}

// MetricsSummary holds population averages.
type MetricsSummary struct {
	AvgRecency   float64 `json:"avg_recency"`
	AvgFrequency float64 `json:"avg_frequency"`
	AvgMonetary  float64 `json:"avg_monetary"`
	TotalRevenue float64 `json:"total_revenue"`
}

// Report is the JSON-ready RFM output.
type Report struct {
	TotalCustomers int              `json:"total_customers"`
	ReferenceDate  string           `json:"reference_date"`
	SegmentSummary []SegmentSummary `json:"segment_summary"`
	Distribution   Distribution     `json:"rfm_distribution"`
	Matrix         []MatrixCell     `json:"rfm_matrix"`
	MetricsSummary MetricsSummary   `json:"metrics_summary"`
}

// Report builds the summary views of the analysis.
func (a *Analysis) Report() Report {
	return Report{
		TotalCustomers: len(a.Customers),
		ReferenceDate:  a.ReferenceDate.Format(time.RFC3339),
		SegmentSummary: a.SegmentSummary(),
		Distribution:   a.Distribution(),
		Matrix:         a.Matrix(),
		MetricsSummary: a.metricsSummary(),
	}
}

// SegmentSummary returns per-cohort aggregates sorted by revenue, highest first.
func (a *Analysis) SegmentSummary() []SegmentSummary {
	bySegment := make(map[string]*SegmentSummary)
	var totalRevenue float64
	for _, c := range a.Customers {
		s, ok := bySegment[c.Segment]
		if !ok {
			s = &SegmentSummary{Segment: c.Segment}
			bySegment[c.Segment] = s
		}
		s.CustomerCount++
		s.AvgRecency += float64(c.Recency)
		s.AvgFrequency += float64(c.Frequency)
		s.TotalMonetary += c.Monetary
		totalRevenue += c.Monetary
	}

	total := float64(len(a.Customers))
	out := make([]SegmentSummary, 0, len(bySegment))
	for _, name := range sortedKeys(bySegment) {
		s := bySegment[name]
		n := float64(s.CustomerCount)
		s.AvgMonetary = utils.Round(s.TotalMonetary/n, 2)
		s.AvgRecency = utils.Round(s.AvgRecency/n, 2)
		s.AvgFrequency = utils.Round(s.AvgFrequency/n, 2)
		s.CustomerPct = utils.Round(n/total*100, 2)
		s.RevenuePct = utils.Round(utils.SafeDiv(s.TotalMonetary, totalRevenue)*100, 2)
		s.TotalMonetary = utils.Round(s.TotalMonetary, 2)
		out = append(out, *s)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TotalMonetary > out[j].TotalMonetary })
	return out
}

// Distribution counts customers per score value and per segment.
func (a *Analysis) Distribution() Distribution {
	d := Distribution{
		RScore:  make(map[int]int),
		FScore:  make(map[int]int),
		MScore:  make(map[int]int),
		Segment: make(map[string]int),
	}
	for _, c := range a.Customers {
		d.RScore[c.RScore]++
		d.FScore[c.FScore]++
		d.MScore[c.MScore]++
		d.Segment[c.Segment]++
	}
	return d
}

// Matrix returns customer counts and revenue per (r_score, f_score) cell.
func (a *Analysis) Matrix() []MatrixCell {
	type key struct{ r, f int }
	cells := make(map[key]*MatrixCell)
	for _, c := range a.Customers {
		k := key{c.RScore, c.FScore}
		cell, ok := cells[k]
		if !ok {
			cell = &MatrixCell{Recency: c.RScore, Frequency: c.FScore}
			cells[k] = cell
		}
		cell.Count++
		cell.Revenue += c.Monetary
	}

	out := make([]MatrixCell, 0, len(cells))
	for _, cell := range cells {
		cell.Revenue = utils.Round(cell.Revenue, 2)
		out = append(out, *cell)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Recency != out[j].Recency {
			return out[i].Recency < out[j].Recency
		}
		return out[i].Frequency < out[j].Frequency
	})
	return out
}

func (a *Analysis) metricsSummary() MetricsSummary {
	var r, f, m float64
	for _, c := range a.Customers {
		r += float64(c.Recency)
		f += float64(c.Frequency)
		m += c.Monetary
	}
	n := float64(len(a.Customers))
	return MetricsSummary{
		AvgRecency:   utils.Round(utils.SafeDiv(r, n), 2),
		AvgFrequency: utils.Round(utils.SafeDiv(f, n), 2),
		AvgMonetary:  utils.Round(utils.SafeDiv(m, n), 2),
		TotalRevenue: utils.Round(m, 2),
	}
}
