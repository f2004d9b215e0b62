package pipeline

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"go-customer-intel/internal/analytics"
	"go-customer-intel/internal/model"
	"go-customer-intel/pkg/utils"
)

// Aggregate feature table names
const (
	TableCleaned          = "cleaned_data"
	TableCustomerFeatures = "customer_features"
	TableProductFeatures  = "product_features"
	TableCountryFeatures  = "country_features"
)

// AggregatedTables are the per-entity feature tables built from a dataset.
// Product and country tables are nil when the dataset lacks those columns.
type AggregatedTables struct {
	Customers *model.Table
	Products  *model.Table
	Countries *model.Table
}

// AggregateFeatures builds the customer, product and country tables in
// parallel; each worker reads the shared records and owns its table.
func AggregateFeatures(ctx context.Context, ds *model.Dataset) (AggregatedTables, error) {
	var out AggregatedTables
	g, ctx := errgroup.WithContext(ctx)

	if ds.Capabilities.HasCustomerID {
		g.Go(func() error {
			t := customerFeatureTable(ds.Records)
			out.Customers = &t
			return ctx.Err()
		})
	}
	if ds.Capabilities.HasProductCode {
		g.Go(func() error {
			t := productFeatureTable(ds.Records)
			out.Products = &t
			return ctx.Err()
		})
	}
	if ds.Capabilities.HasCountry {
		g.Go(func() error {
			t := countryFeatureTable(ds.Records)
			out.Countries = &t
			return ctx.Err()
		})
	}

	if err := g.Wait(); err != nil {
		return AggregatedTables{}, err
	}
	return out, nil
}

func customerFeatureTable(records []model.Transaction) model.Table {
	t := model.Table{
		Name: TableCustomerFeatures,
		Columns: []string{
			"customer_id", "total_transactions", "total_spend", "avg_transaction_value",
			"std_transaction_value", "min_transaction", "max_transaction", "total_items",
			"avg_items", "first_purchase", "last_purchase", "purchase_count",
			"customer_tenure_days", "avg_days_between_purchases",
		},
	}
	for _, c := range analytics.GroupByCustomer(records) {
		amounts := analytics.Sorted(c.Amounts)
		tenure := utils.WholeDays(c.Last.Sub(c.First))
		var between interface{}
		if c.Transactions > 1 {
			between = utils.Round(float64(tenure)/float64(c.Transactions-1), 2)
		}
		t.Rows = append(t.Rows, []interface{}{
			c.CustomerID,
			c.Transactions,
			utils.Round(c.Revenue, 2),
			utils.Round(c.AvgAmount(), 2),
			utils.Round(analytics.SampleStd(c.Amounts), 2),
			amounts[0],
			amounts[len(amounts)-1],
			c.Quantity,
			utils.Round(float64(c.Quantity)/float64(c.Rows), 2),
			c.First.Format(time.RFC3339),
			c.Last.Format(time.RFC3339),
			c.Rows,
			tenure,
			between,
		})
	}
	return t
}

func productFeatureTable(records []model.Transaction) model.Table {
	t := model.Table{
		Name: TableProductFeatures,
		Columns: []string{
			"product_code", "times_purchased", "total_revenue", "avg_revenue",
			"total_quantity_sold", "avg_quantity", "unique_customers",
		},
	}
	groups := analytics.GroupBy(records, func(r *model.Transaction) string { return r.ProductCode })
	for _, g := range groups {
		t.Rows = append(t.Rows, []interface{}{
			g.Key,
			g.Transactions,
			utils.Round(g.Revenue, 2),
			utils.Round(g.AvgAmount(), 2),
			g.Quantity,
			utils.Round(float64(g.Quantity)/float64(g.Rows), 2),
			g.Customers,
		})
	}
	return t
}

func countryFeatureTable(records []model.Transaction) model.Table {
	t := model.Table{
		Name: TableCountryFeatures,
		Columns: []string{
			"country", "total_transactions", "total_revenue", "avg_transaction_value",
			"unique_customers", "total_quantity",
		},
	}
	groups := analytics.GroupBy(records, func(r *model.Transaction) string { return r.Country })
	for _, g := range groups {
		t.Rows = append(t.Rows, []interface{}{
			g.Key,
			g.Transactions,
			utils.Round(g.Revenue, 2),
			utils.Round(g.AvgAmount(), 2),
			g.Customers,
			g.Quantity,
		})
	}
	return t
}

// TransactionsTable renders the typed records of ds for export.
func TransactionsTable(name string, ds *model.Dataset) model.Table {
	t := model.Table{
		Name: name,
		Columns: []string{
			model.ColTransactionID, model.ColCustomerID, model.ColTransactionDate,
			model.ColQuantity, model.ColUnitPrice, model.ColAmount, model.ColProductCode,
			model.ColDescription, model.ColProductCategory, model.ColCountry,
		},
		Rows: make([][]interface{}, 0, ds.Len()),
	}
	for _, r := range ds.Records {
		t.Rows = append(t.Rows, []interface{}{
			r.TransactionID, r.CustomerID, r.Date.Format(time.RFC3339), r.Quantity,
			r.UnitPrice, r.Amount, r.ProductCode, r.Description, r.ProductCategory, r.Country,
		})
	}
	return t
}
