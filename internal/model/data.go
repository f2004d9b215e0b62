package model

import (
	"sort"
	"time"

	"go-customer-intel/internal/errors"
)

// GenericRecord is a schema-agnostic row as read from a source file
type GenericRecord map[string]interface{}

// Canonical column names after header normalisation
const (
	ColTransactionID   = "transaction_id"
	ColCustomerID      = "customer_id"
	ColTransactionDate = "transaction_date"
	ColQuantity        = "quantity"
	ColUnitPrice       = "unit_price"
	ColAmount          = "transaction_amount"
	ColProductCode     = "product_code"
	ColDescription     = "description"
	ColProductCategory = "product_category"
	ColCountry         = "country"
)

// RequiredColumns must be present for a dataset to be activated.
var RequiredColumns = []string{
	ColCustomerID,
	ColTransactionID,
	ColTransactionDate,
	ColQuantity,
	ColAmount,
}

// Transaction is one cleaned order line.
type Transaction struct {
	TransactionID   string    `json:"transaction_id"`
	CustomerID      int64     `json:"customer_id"`
	Date            time.Time `json:"transaction_date"`
	Quantity        int       `json:"quantity"`
	UnitPrice       float64   `json:"unit_price"`
	Amount          float64   `json:"transaction_amount"`
	ProductCode     string    `json:"product_code,omitempty"`
	Description     string    `json:"description,omitempty"`
	ProductCategory string    `json:"product_category,omitempty"`
	Country         string    `json:"country,omitempty"`

	// Populated by feature engineering only
	Features *TransactionFeatures `json:"features,omitempty"`
}

// TransactionFeatures are the derived calendar and tier fields of a record.
type TransactionFeatures struct {
	Year             int     `json:"year"`
	Month            int     `json:"month"`
	Quarter          int     `json:"quarter"`
	DayOfWeek        int     `json:"day_of_week"` // Monday = 0
	DayOfMonth       int     `json:"day_of_month"`
	WeekOfYear       int     `json:"week_of_year"`
	IsWeekend        bool    `json:"is_weekend"`
	YearMonth        string  `json:"year_month"`
	CalculatedAmount float64 `json:"calculated_amount,omitempty"`
	SizeTier         string  `json:"transaction_size"`
	QuantityTier     string  `json:"quantity_tier"`
}

// Capabilities records which columns a dataset carries. It is computed once
// when the source is loaded and travels with every snapshot derived from it.
type Capabilities struct {
	HasTransactionID   bool `json:"has_transaction_id"`
	HasCustomerID      bool `json:"has_customer_id"`
	HasTransactionDate bool `json:"has_transaction_date"`
	HasQuantity        bool `json:"has_quantity"`
	HasAmount          bool `json:"has_transaction_amount"`
	HasUnitPrice       bool `json:"has_unit_price"`
	HasProductCode     bool `json:"has_product_code"`
	HasDescription     bool `json:"has_description"`
	HasProductCategory bool `json:"has_product_category"`
	HasCountry         bool `json:"has_country"`
}

// CapabilitiesFromColumns builds the descriptor from normalised column names.
func CapabilitiesFromColumns(columns []string) Capabilities {
	set := make(map[string]bool, len(columns))
	for _, c := range columns {
		set[c] = true
	}
	return Capabilities{
		HasTransactionID:   set[ColTransactionID],
		HasCustomerID:      set[ColCustomerID],
		HasTransactionDate: set[ColTransactionDate],
		HasQuantity:        set[ColQuantity],
		HasAmount:          set[ColAmount],
		HasUnitPrice:       set[ColUnitPrice],
		HasProductCode:     set[ColProductCode],
		HasDescription:     set[ColDescription],
		HasProductCategory: set[ColProductCategory],
		HasCountry:         set[ColCountry],
	}
}

// Has reports whether the named column is present.
func (c Capabilities) Has(column string) bool {
	switch column {
	case ColTransactionID:
		return c.HasTransactionID
	case ColCustomerID:
		return c.HasCustomerID
	case ColTransactionDate:
		return c.HasTransactionDate
	case ColQuantity:
		return c.HasQuantity
	case ColAmount:
		return c.HasAmount
	case ColUnitPrice:
		return c.HasUnitPrice
	case ColProductCode:
		return c.HasProductCode
	case ColDescription:
		return c.HasDescription
	case ColProductCategory:
		return c.HasProductCategory
	case ColCountry:
		return c.HasCountry
	}
	return false
}

// Missing returns the subset of columns that are absent, in input order.
func (c Capabilities) Missing(columns ...string) []string {
	var missing []string
	for _, col := range columns {
		if !c.Has(col) {
			missing = append(missing, col)
		}
	}
	return missing
}

// Dataset is an immutable snapshot of typed transactions.
type Dataset struct {
	Records      []Transaction `json:"-"`
	Capabilities Capabilities  `json:"capabilities"`
	Featured     bool          `json:"featured"`
	Source       string        `json:"source"`
}

// Len returns the number of records.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Records)
}

// Clone returns a deep copy so consumers can never affect each other.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{
		Records:      make([]Transaction, len(d.Records)),
		Capabilities: d.Capabilities,
		Featured:     d.Featured,
		Source:       d.Source,
	}
	copy(out.Records, d.Records)
	for i := range out.Records {
		if f := out.Records[i].Features; f != nil {
			fc := *f
			out.Records[i].Features = &fc
		}
	}
	return out
}

// Require fails with a schema error naming the first absent column.
func (d *Dataset) Require(engine string, columns ...string) error {
	if missing := d.Capabilities.Missing(columns...); len(missing) > 0 {
		return errors.Schema(engine, missing[0])
	}
	return nil
}

// DateRange returns the earliest and latest transaction timestamps.
func (d *Dataset) DateRange() (min, max time.Time) {
	for i, r := range d.Records {
		if i == 0 || r.Date.Before(min) {
			min = r.Date
		}
		if i == 0 || r.Date.After(max) {
			max = r.Date
		}
	}
	return min, max
}

// SortedByCustomer returns record indexes grouped by ascending customer ID,
// preserving the dataset order inside each customer.
func (d *Dataset) SortedByCustomer() []int {
	idx := make([]int, len(d.Records))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return d.Records[idx[a]].CustomerID < d.Records[idx[b]].CustomerID
	})
	return idx
}
