package clv

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-customer-intel/internal/errors"
	"go-customer-intel/internal/model"
)

var day0 = time.Date(2022, 1, 3, 10, 0, 0, 0, time.UTC)

func txn(id string, customer int64, day int, amount float64) model.Transaction {
	return model.Transaction{
		TransactionID: id,
		CustomerID:    customer,
		Date:          day0.AddDate(0, 0, day),
		Quantity:      1,
		Amount:        amount,
	}
}

// fixture: a steady customer (50 orders of 100 over 761 days), a lapsed big
// spender and a one-off small buyer on the last day.
func fixture() *model.Dataset {
	var records []model.Transaction
	for j := 0; j < 50; j++ {
		records = append(records, txn(fmt.Sprintf("A%d", j), 1, 761*j/49, 100))
	}
	records = append(records,
		txn("B0", 2, 0, 500),
		txn("B1", 2, 2, 500),
		txn("C0", 3, 761, 10),
	)
	return &model.Dataset{Records: records, Capabilities: model.CapabilitiesFromColumns(model.RequiredColumns)}
}

func byID(a *Analysis) map[int64]CustomerCLV {
	out := make(map[int64]CustomerCLV)
	for _, c := range a.Customers {
		out[c.CustomerID] = c
	}
	return out
}

func TestPredictiveCLV(t *testing.T) {
	a, err := New(fixture(), Params{HorizonMonths: 12}).Run()
	require.NoError(t, err)

	steady := byID(a)[1]
	assert.Equal(t, 761, steady.LifespanDays)
	assert.Equal(t, 100.0, steady.AvgOrderValue)
	assert.Equal(t, 2.0, steady.PurchaseFrequency)
	assert.Equal(t, 200.0, steady.CustomerValueMonthly)
	assert.Equal(t, 2400.0, steady.PredictiveCLV)
	assert.Equal(t, 720.0, steady.CLVProfit)
	assert.Equal(t, 1673.24, steady.SimpleCLV)
	assert.Equal(t, 0.0, steady.ChurnProbability)
	assert.Equal(t, 2400.0, steady.RiskAdjustedCLV)
}

func TestChurnProbabilityIsClipped(t *testing.T) {
	a, err := New(fixture(), Params{}).Run()
	require.NoError(t, err)

	lapsed := byID(a)[2]
	assert.Equal(t, 759, lapsed.DaysSinceLast)
	assert.Equal(t, 0.07, lapsed.LifespanMonths)
	assert.Equal(t, 12000.0, lapsed.PredictiveCLV)
	assert.Equal(t, 1.0, lapsed.ChurnProbability)
	assert.Equal(t, 0.0, lapsed.RiskAdjustedCLV)

	for _, c := range a.Customers {
		assert.GreaterOrEqual(t, c.ChurnProbability, 0.0)
		assert.LessOrEqual(t, c.ChurnProbability, 1.0)
	}
}

func TestSingleDayLifespan(t *testing.T) {
	a, err := New(fixture(), Params{}).Run()
	require.NoError(t, err)

	oneOff := byID(a)[3]
	assert.Equal(t, 1, oneOff.LifespanDays)
	assert.Equal(t, 1.0, oneOff.PurchaseFrequency)
	assert.Equal(t, 120.0, oneOff.PredictiveCLV)
}

func TestShortLifespansOnlyFloorFrequency(t *testing.T) {
	ds := &model.Dataset{
		Records: []model.Transaction{
			txn("A0", 1, 0, 100),
			txn("A1", 1, 10, 100),
			txn("B0", 2, 0, 100),
			txn("B1", 2, 100, 100),
		},
		Capabilities: model.CapabilitiesFromColumns(model.RequiredColumns),
	}
	a, err := New(ds, Params{}).Run()
	require.NoError(t, err)

	short, long := byID(a)[1], byID(a)[2]
	assert.Equal(t, 0.33, short.LifespanMonths)
	assert.Equal(t, 2.0, short.PurchaseFrequency)
	assert.Equal(t, 200.0, short.CustomerValueMonthly)
	assert.Equal(t, 3.29, long.LifespanMonths)

	// average lifespan is (10 + 100) / 2 days, about 1.81 months
	assert.Equal(t, 361.37, short.SimpleCLV)
	assert.Equal(t, 110.0, long.SimpleCLV)
}

func TestTiers(t *testing.T) {
	a, err := New(fixture(), Params{}).Run()
	require.NoError(t, err)

	customers := byID(a)
	assert.Equal(t, "Bronze", customers[3].Tier)
	assert.Equal(t, "Gold", customers[1].Tier)
	assert.Equal(t, "Diamond", customers[2].Tier)
}

func TestReport(t *testing.T) {
	a, err := New(fixture(), Params{}).Run()
	require.NoError(t, err)
	report := a.Report()

	assert.Equal(t, 12, report.HorizonMonths)
	assert.Equal(t, 3, report.Summary.TotalCustomers)
	assert.Equal(t, 14520.0, report.Summary.TotalPredictedCLV)
	assert.Equal(t, 2400.0, report.Summary.MedianCLV)
	assert.Equal(t, 120.0, report.Summary.MinCLV)
	assert.Equal(t, 12000.0, report.Summary.MaxCLV)

	require.Len(t, report.Distribution, 6)
	assert.Equal(t, "$0-100", report.Distribution[0].Bucket)
	assert.Equal(t, 1, report.Distribution[1].CustomerCount)
	assert.Equal(t, 0, report.Distribution[2].CustomerCount)
	assert.Equal(t, 1, report.Distribution[3].CustomerCount)
	assert.Equal(t, 1, report.Distribution[5].CustomerCount)

	require.Len(t, report.TopCustomers, 3)
	assert.Equal(t, int64(2), report.TopCustomers[0].CustomerID)
	assert.Equal(t, int64(3), report.TopCustomers[2].CustomerID)

	require.Len(t, report.AtRiskCustomers, 1)
	assert.Equal(t, int64(2), report.AtRiskCustomers[0].CustomerID)

	assert.Len(t, a.TopCustomers(1), 1)
	assert.Len(t, report.Tiers, 3)
	assert.Contains(t, report.MetricsExplanation["predictive_clv"], "12 months")
}

func TestDistributionIsRightClosed(t *testing.T) {
	a := &Analysis{Customers: []CustomerCLV{{PredictiveCLV: 100}, {PredictiveCLV: 100.01}}}
	dist := a.Distribution()
	assert.Equal(t, 1, dist[0].CustomerCount)
	assert.Equal(t, 1, dist[1].CustomerCount)
}

func TestRunIsIdempotent(t *testing.T) {
	ds := fixture()
	first, err := New(ds, Params{}).Run()
	require.NoError(t, err)
	second, err := New(ds, Params{}).Run()
	require.NoError(t, err)
	assert.Equal(t, first.Report(), second.Report())
}

func TestMissingCustomerColumn(t *testing.T) {
	ds := fixture()
	ds.Capabilities.HasCustomerID = false
	_, err := New(ds, Params{}).Run()
	assert.True(t, errors.Is(err, errors.ErrSchema))
}
