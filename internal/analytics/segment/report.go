package segment

import (
	"sort"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// Cluster labels
const (
	LabelVIP       = "VIP Customers"
	LabelHighValue = "High-Value Active"
	LabelFrequent  = "Frequent Buyers"
	LabelChurning  = "Churning"
	LabelLowValue  = "Low-Value"
	LabelRegular   = "Regular"
)

// ElbowAnalysis reports inertia and silhouette per candidate k.
type ElbowAnalysis struct {
	KValues          []int     `json:"k_values"`
	Inertias         []float64 `json:"inertias"`
	SilhouetteScores []float64 `json:"silhouette_scores"`
	OptimalK         int       `json:"optimal_k"`
	BestSilhouette   float64   `json:"best_silhouette"`
}

// newElbow selects the k with the highest silhouette; ties go to the smaller k.
func newElbow(fits []fit) ElbowAnalysis {
	e := ElbowAnalysis{}
	best := 0
	for i, f := range fits {
		e.KValues = append(e.KValues, f.K)
		e.Inertias = append(e.Inertias, utils.Round(f.Inertia, 2))
		e.SilhouetteScores = append(e.SilhouetteScores, utils.Round(f.Silhouette, 4))
		if f.Silhouette > fits[best].Silhouette {
			best = i
		}
	}
	e.OptimalK = fits[best].K
	e.BestSilhouette = utils.Round(fits[best].Silhouette, 4)
	return e
}

// Profile describes one cluster in original units.
type Profile struct {
	ClusterID           int     `json:"cluster_id"`
	Label               string  `json:"label"`
	CustomerCount       int     `json:"customer_count"`
	Percentage          float64 `json:"percentage"`
	AvgTransactions     float64 `json:"avg_transactions"`
	AvgSpend            float64 `json:"avg_spend"`
	TotalRevenue        float64 `json:"total_revenue"`
	AvgTransactionValue float64 `json:"avg_transaction_value"`
	AvgItems            float64 `json:"avg_items"`
	AvgRecency          float64 `json:"avg_recency"`
	AvgTenure           float64 `json:"avg_tenure"`
}

// Distribution is the cluster size breakdown.
type Distribution struct {
	ClusterSizes   map[int]int `json:"cluster_sizes"`
	TotalCustomers int         `json:"total_customers"`
	NClusters      int         `json:"n_clusters"`
}

// Centroid is a cluster centre in original feature units.
type Centroid struct {
	ClusterID int                `json:"cluster_id"`
	Features  map[string]float64 `json:"features"`
}

// Report is the JSON-ready segmentation output.
type Report struct {
	NClusters       int           `json:"n_clusters"`
	TotalCustomers  int           `json:"total_customers"`
	Profiles        []Profile     `json:"cluster_profiles"`
	Distribution    Distribution  `json:"cluster_distribution"`
	Centroids       []Centroid    `json:"cluster_centroids"`
	SilhouetteScore float64       `json:"silhouette_score"`
	FeaturesUsed    []string      `json:"features_used"`
	Elbow           ElbowAnalysis `json:"elbow_analysis"`
}

// Report builds the summary views of the analysis.
func (a *Analysis) Report() Report {
	dist := a.Distribution()
	return Report{
		NClusters:       dist.NClusters,
		TotalCustomers:  len(a.Customers),
		Profiles:        a.Profiles(),
		Distribution:    dist,
		Centroids:       a.OriginalCentroids(),
		SilhouetteScore: utils.Round(a.Silhouette, 4),
		FeaturesUsed:    a.Features,
		Elbow:           a.Elbow,
	}
}

// Profiles returns one profile per populated cluster, highest revenue first.
func (a *Analysis) Profiles() []Profile {
	members := make(map[int][]*CustomerFeatures)
	for i := range a.Customers {
		c := &a.Customers[i]
		members[c.Cluster] = append(members[c.Cluster], c)
	}
	overall := a.overall()

	profiles := make([]Profile, 0, len(members))
	for id, cs := range members {
		p := profile(id, cs, len(a.Customers))
		p.Label = overall.label(p)
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if profiles[i].TotalRevenue != profiles[j].TotalRevenue {
			return profiles[i].TotalRevenue > profiles[j].TotalRevenue
		}
		return profiles[i].ClusterID < profiles[j].ClusterID
	})
	return profiles
}

func profile(id int, cs []*CustomerFeatures, total int) Profile {
	var txns, spend, avgTxn, items, recency, tenure float64
	for _, c := range cs {
		txns += float64(c.TotalTransactions)
		spend += c.TotalSpend
		avgTxn += c.AvgTransaction
		items += float64(c.TotalItems)
		recency += float64(c.RecencyDays)
		tenure += float64(c.TenureDays)
	}
	n := float64(len(cs))
	return Profile{
		ClusterID:           id,
		CustomerCount:       len(cs),
		Percentage:          utils.Round(n/float64(total)*100, 2),
		AvgTransactions:     utils.Round(txns/n, 2),
		AvgSpend:            utils.Round(spend/n, 2),
		TotalRevenue:        utils.Round(spend, 2),
		AvgTransactionValue: utils.Round(avgTxn/n, 2),
		AvgItems:            utils.Round(items/n, 2),
		AvgRecency:          utils.Round(recency/n, 2),
		AvgTenure:           utils.Round(tenure/n, 2),
	}
}

type populationMeans struct {
	spend, transactions, recency float64
}

func (a *Analysis) overall() populationMeans {
	spend := make([]float64, len(a.Customers))
	txns := make([]float64, len(a.Customers))
	recency := make([]float64, len(a.Customers))
	for i, c := range a.Customers {
		spend[i] = c.TotalSpend
		txns[i] = float64(c.TotalTransactions)
		recency[i] = float64(c.RecencyDays)
	}
	return populationMeans{
		spend:        analytics.Mean(spend),
		transactions: analytics.Mean(txns),
		recency:      analytics.Mean(recency),
	}
}

// label names a cluster by comparing its profile with the population means.
func (m populationMeans) label(p Profile) string {
	switch {
	case p.AvgSpend > m.spend*1.5 && p.AvgTransactions > m.transactions*1.5:
		return LabelVIP
	case p.AvgSpend > m.spend && p.AvgRecency < m.recency:
		return LabelHighValue
	case p.AvgTransactions > m.transactions && p.AvgRecency < m.recency:
		return LabelFrequent
	case p.AvgRecency > m.recency*1.5:
		return LabelChurning
	case p.AvgSpend < m.spend*0.5:
		return LabelLowValue
	default:
		return LabelRegular
	}
}

func (a *Analysis) label() {
	labels := make(map[int]string)
	for _, p := range a.Profiles() {
		labels[p.ClusterID] = p.Label
	}
	for i := range a.Customers {
		a.Customers[i].Label = labels[a.Customers[i].Cluster]
	}
}

// Distribution counts customers per cluster.
func (a *Analysis) Distribution() Distribution {
	sizes := make(map[int]int)
	for _, c := range a.Customers {
		sizes[c.Cluster]++
	}
	return Distribution{ClusterSizes: sizes, TotalCustomers: len(a.Customers), NClusters: len(sizes)}
}

// OriginalCentroids maps the centroids back to feature units.
func (a *Analysis) OriginalCentroids() []Centroid {
	out := make([]Centroid, len(a.Centroids))
	for i, c := range a.Centroids {
		values := a.Scaler.Inverse(c)
		features := make(map[string]float64, len(values))
		for j, name := range a.Features {
			features[name] = utils.Round(values[j], 2)
		}
		out[i] = Centroid{ClusterID: i, Features: features}
	}
	return out
}

// Table exposes the cluster-assigned customers for export.
func (a *Analysis) Table() model.Table {
	t := model.Table{
		Name: "customer_segments",
		Columns: []string{"customer_id", "total_transactions", "total_spend", "avg_transaction",
			"std_transaction", "total_items", "avg_items", "first_purchase", "last_purchase",
			"tenure_days", "recency_days", "cluster", "cluster_label"},
		Rows: make([][]interface{}, len(a.Customers)),
	}
	for i, c := range a.Customers {
		t.Rows[i] = []interface{}{c.CustomerID, c.TotalTransactions, utils.Round(c.TotalSpend, 2),
			utils.Round(c.AvgTransaction, 2), utils.Round(c.StdTransaction, 2), c.TotalItems,
			utils.Round(c.AvgItems, 2), c.FirstPurchase, c.LastPurchase, c.TenureDays,
			c.RecencyDays, c.Cluster, c.Label}
	}
	return t
}
