package segment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

var base = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

// threeGroups builds 30 customers in three well separated behaviour groups.
func threeGroups() *model.Dataset {
	groups := []struct {
		orders int
		amount float64
		offset int
	}{
		{1, 10, 300},
		{5, 500, 60},
		{20, 5000, 0},
	}
	var records []model.Transaction
	id := int64(1)
	for _, g := range groups {
		for c := 0; c < 10; c++ {
			for o := 0; o < g.orders; o++ {
				records = append(records, model.Transaction{
					TransactionID: fmt.Sprintf("T%d-%d", id, o),
					CustomerID:    id,
					Date:          base.AddDate(0, 0, 365-g.offset-o*3),
					Quantity:      2,
					Amount:        g.amount + float64(c),
				})
			}
			id++
		}
	}
	return &model.Dataset{Records: records, Capabilities: model.CapabilitiesFromColumns(model.RequiredColumns)}
}

func TestPrepareCustomers(t *testing.T) {
	customers := PrepareCustomers(threeGroups())
	require.Len(t, customers, 30)

	top := customers[29]
	assert.Equal(t, int64(30), top.CustomerID)
	assert.Equal(t, 20, top.TotalTransactions)
	assert.Equal(t, 40, top.TotalItems)
	assert.Equal(t, 57, top.TenureDays)
	assert.Equal(t, 0, top.RecencyDays)
	assert.Equal(t, 0.0, top.StdTransaction)
	assert.Equal(t, 0.0, customers[0].StdTransaction)
}

func TestRunFindsSeparatedGroups(t *testing.T) {
	a, err := New(threeGroups(), Params{Seed: 42}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, a.Elbow.OptimalK)
	assert.Equal(t, 3, a.K)
	assert.Equal(t, []int{2, 3, 4, 5, 6, 7, 8, 9, 10}, a.Elbow.KValues)
	assert.Greater(t, a.Silhouette, 0.8)

	for g := 0; g < 3; g++ {
		first := a.Customers[g*10].Cluster
		for c := 1; c < 10; c++ {
			assert.Equal(t, first, a.Customers[g*10+c].Cluster)
		}
	}

	report := a.Report()
	require.Len(t, report.Profiles, 3)
	assert.Equal(t, LabelVIP, report.Profiles[0].Label)
	assert.Equal(t, 10, report.Profiles[0].CustomerCount)
	assert.Equal(t, DefaultFeatures, report.FeaturesUsed)
	assert.Len(t, report.Centroids, 3)
	assert.Equal(t, 30, report.Distribution.TotalCustomers)
}

func TestRunIsDeterministic(t *testing.T) {
	ds := threeGroups()
	first, err := New(ds, Params{Seed: 7}).Run(context.Background())
	require.NoError(t, err)
	second, err := New(ds, Params{Seed: 7}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Elbow, second.Elbow)
	assert.Equal(t, first.Customers, second.Customers)
	assert.Equal(t, first.Report(), second.Report())
}

func TestClusterCountOverride(t *testing.T) {
	a, err := New(threeGroups(), Params{Seed: 42, K: 2}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, a.K)
	assert.Equal(t, 3, a.Elbow.OptimalK)

	_, err = New(threeGroups(), Params{K: 40}).Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestKRangeCappedByCustomers(t *testing.T) {
	ds := threeGroups()
	var records []model.Transaction
	for _, r := range ds.Records {
		if r.CustomerID <= 2 || r.CustomerID == 30 || r.CustomerID == 15 {
			records = append(records, r)
		}
	}
	ds.Records = records

	a, err := New(ds, Params{Seed: 1}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, a.Elbow.KValues)
}

func TestRunErrors(t *testing.T) {
	ds := threeGroups()
	ds.Records = ds.Records[:2]
	_, err := New(ds, Params{}).Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrInsufficientData))

	same := threeGroups()
	same.Records = nil
	for id := int64(1); id <= 5; id++ {
		same.Records = append(same.Records, model.Transaction{
			TransactionID: fmt.Sprintf("X%d", id), CustomerID: id, Date: base, Quantity: 1, Amount: 1,
		})
	}
	_, err = New(same, Params{}).Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrComputation))

	noDate := threeGroups()
	noDate.Capabilities.HasTransactionDate = false
	_, err = New(noDate, Params{}).Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrSchema))

	_, err = New(threeGroups(), Params{KMin: 5, KMax: 3}).Run(context.Background())
	assert.True(t, errors.Is(err, errors.ErrInvalidParameter))
}

func TestRunHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New(threeGroups(), Params{}).Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSilhouette(t *testing.T) {
	points := [][]float64{{0, 0}, {0, 1}, {10, 0}, {10, 1}}
	assert.InDelta(t, 0.9, silhouette(points, []int{0, 0, 1, 1}, 2), 0.01)
	assert.Equal(t, -1.0, silhouette(points, []int{0, 0, 0, 0}, 2))

	// a singleton contributes zero
	s := silhouette([][]float64{{0}, {1}, {10}}, []int{0, 0, 1}, 2)
	assert.InDelta(t, (0.9+8.0/9)/3, s, 1e-9)
}

func TestScalerRoundTrip(t *testing.T) {
	s, degenerate := FitScaler([][]float64{{1, 5}, {3, 5}})
	assert.False(t, degenerate)
	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, []float64{1, 1}, s.Scale)
	assert.Equal(t, []float64{-1, 0}, s.Transform([]float64{1, 5}))
	assert.Equal(t, []float64{3, 5}, s.Inverse([]float64{1, 0}))
}
