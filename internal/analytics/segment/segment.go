// Package segment clusters customers with k-means and picks the cluster count
// by silhouette score.
package segment

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/logger"
	"go-customer-intel/internal/model"
)

const engineName = "segmentation"

// Params configures a segmentation run.
type Params struct {
	KMin int
	KMax int
	// K forces the final cluster count; zero selects it by silhouette.
	K        int
	Seed     int64
	NInit    int
	MaxIter  int
	Features []string
}

func (p Params) withDefaults() Params {
	if p.KMin == 0 {
		p.KMin = 2
	}
	if p.KMax == 0 {
		p.KMax = 10
	}
	if p.NInit <= 0 {
		p.NInit = 10
	}
	if p.MaxIter <= 0 {
		p.MaxIter = 300
	}
	if len(p.Features) == 0 {
		p.Features = DefaultFeatures
	}
	return p
}

// Engine segments the customers of a private copy of the dataset.
type Engine struct {
	ds     *model.Dataset
	params Params
}

// New returns an engine bound to a private copy of ds.
func New(ds *model.Dataset, params Params) *Engine {
	return &Engine{ds: ds.Clone(), params: params.withDefaults()}
}

// Analysis is the outcome of a segmentation run.
type Analysis struct {
	Customers  []CustomerFeatures
	Features   []string
	Scaler     *Scaler
	Elbow      ElbowAnalysis
	K          int
	Centroids  [][]float64 // standardised space
	Silhouette float64
}

// Run prepares customer features, scans the candidate cluster counts in
// parallel and clusters with the selected count. The result depends only on
// the input and Params.Seed.
func (e *Engine) Run(ctx context.Context) (*Analysis, error) {
	if err := e.ds.Require(engineName, model.ColCustomerID, model.ColTransactionID,
		model.ColTransactionDate, model.ColAmount, model.ColQuantity); err != nil {
		return nil, err
	}
	p := e.params
	if p.KMin < 2 || p.KMax < p.KMin {
		return nil, errors.InvalidParameter("%s: invalid cluster range [%d, %d]", engineName, p.KMin, p.KMax)
	}

	customers := PrepareCustomers(e.ds)
	n := len(customers)
	if n < 3 {
		return nil, errors.InsufficientData("%s: need at least 3 customers, have %d", engineName, n)
	}
	kMax := p.KMax
	if kMax > n-1 {
		kMax = n - 1
	}
	kMin := p.KMin
	if kMin > kMax {
		kMin = kMax
	}
	if p.K != 0 && (p.K < 2 || p.K > n-1) {
		return nil, errors.InvalidParameter("%s: cluster count %d outside [2, %d]", engineName, p.K, n-1)
	}

	features := make([]string, 0, len(p.Features))
	for _, name := range p.Features {
		if _, ok := customers[0].Value(name); ok {
			features = append(features, name)
		}
	}
	if len(features) == 0 {
		return nil, errors.InvalidParameter("%s: none of the requested features exist: %v", engineName, p.Features)
	}

	matrix := make([][]float64, n)
	for i := range customers {
		row := make([]float64, len(features))
		for j, name := range features {
			row[j], _ = customers[i].Value(name)
		}
		matrix[i] = row
	}
	scaler, degenerate := FitScaler(matrix)
	if degenerate {
		return nil, errors.Computation(nil, "%s: every feature has zero variance", engineName)
	}
	points := make([][]float64, n)
	for i, row := range matrix {
		points[i] = scaler.Transform(row)
	}

	log := logger.Named("segment")
	log.Infow("Scanning cluster counts", "customers", n, "features", features, "k_min", kMin, "k_max", kMax)

	fits, err := scan(ctx, points, kMin, kMax, p)
	if err != nil {
		return nil, err
	}
	elbow := newElbow(fits)

	chosen := fits[elbow.OptimalK-kMin]
	if p.K != 0 {
		if p.K >= kMin && p.K <= kMax {
			chosen = fits[p.K-kMin]
		} else {
			chosen = kmeans(points, p.K, p.Seed+int64(p.K), p.NInit, p.MaxIter)
			chosen.Silhouette = silhouette(points, chosen.Labels, p.K)
		}
	}
	log.Infow("Clustering complete", "optimal_k", elbow.OptimalK, "k", chosen.K, "silhouette", chosen.Silhouette)

	for i := range customers {
		customers[i].Cluster = chosen.Labels[i]
	}
	a := &Analysis{
		Customers:  customers,
		Features:   features,
		Scaler:     scaler,
		Elbow:      elbow,
		K:          chosen.K,
		Centroids:  chosen.Centroids,
		Silhouette: chosen.Silhouette,
	}
	a.label()
	return a, nil
}

// scan fits every k in [kMin, kMax] concurrently. Each k owns a generator
// seeded from seed+k so results do not depend on scheduling.
func scan(ctx context.Context, points [][]float64, kMin, kMax int, p Params) ([]fit, error) {
	fits := make([]fit, kMax-kMin+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for k := kMin; k <= kMax; k++ {
		k := k
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			f := kmeans(points, k, p.Seed+int64(k), p.NInit, p.MaxIter)
			f.Silhouette = silhouette(points, f.Labels, k)
			fits[k-kMin] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "cluster count scan")
	}
	return fits, nil
}
