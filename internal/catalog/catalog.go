//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package catalog describes the tables of the sales star schema.
package catalog

import "github.com/pgEdge/pgedge-salesdw/internal/model"

// Definition describes a table of the star schema.
type Definition struct {
	// Name is the logical table name, also the batch file stem.
	Name string

	// Table is the physical table name in the warehouse.
	Table string

	// File is the batch file the table is read from.
	File string

	// Kind is the dimension kind; empty for the fact table.
	Kind model.DimensionKind

	// Description describes what the table holds.
	Description string

	// Versioned is true for SCD Type 2 dimensions.
	Versioned bool

	// SurrogateKey is the surrogate key column.
	SurrogateKey string

	// BusinessKey is the natural key column of the tabular input.
	BusinessKey string

	// Required lists the input columns a batch file must have.
	Required []string

	// Optional lists the other input columns understood by the loader.
	Optional []string

	// LoadOrder orders tables within a batch; lower loads first.
	LoadOrder int
}

// IsFact reports whether the definition is the fact table.
func (d Definition) IsFact() bool {
	return d.Kind == ""
}

// KeySequence returns the sequence the surrogate keys of the table are
// drawn from.
func (d Definition) KeySequence() string {
	return d.Table + "_key_seq"
}

// Columns returns all understood input columns.
func (d Definition) Columns() []string {
	cols := make([]string, 0, len(d.Required)+len(d.Optional))
	cols = append(cols, d.Required...)
	return append(cols, d.Optional...)
}

// Table names.
const (
	Dates     = "dates"
	Customers = "customers"
	Products  = "products"
	Stores    = "stores"
	Sales     = "sales"
)

func init() {
	Register(Definition{
		Name:         Dates,
		File:         "dates.csv",
		Table:        "dim_date",
		Kind:         model.KindDate,
		Description:  "Calendar days with fiscal breakdown and holiday flags",
		SurrogateKey: "date_key",
		BusinessKey:  "date",
		Required:     []string{"date"},
		Optional:     []string{"is_holiday", "holiday_name"},
		LoadOrder:    0,
	})
	Register(Definition{
		Name:         Customers,
		File:         "customers.csv",
		Table:        "dim_customer",
		Kind:         model.KindCustomer,
		Description:  "Customers with full history of segment and address changes (SCD Type 2)",
		Versioned:    true,
		SurrogateKey: "customer_key",
		BusinessKey:  "customer_id",
		Required:     []string{"customer_id", "first_name", "last_name", "segment"},
		Optional: []string{"email", "phone", "city", "state", "country",
			"registration_date", "as_of"},
		LoadOrder: 1,
	})
	Register(Definition{
		Name:         Products,
		File:         "products.csv",
		Table:        "dim_product",
		Kind:         model.KindProduct,
		Description:  "Product catalog, updated in place",
		SurrogateKey: "product_key",
		BusinessKey:  "product_id",
		Required:     []string{"product_id", "name", "category"},
		Optional:     []string{"subcategory", "brand", "supplier", "color", "size", "as_of"},
		LoadOrder:    2,
	})
	Register(Definition{
		Name:         Stores,
		File:         "stores.csv",
		Table:        "dim_store",
		Kind:         model.KindStore,
		Description:  "Physical and online stores, updated in place",
		SurrogateKey: "store_key",
		BusinessKey:  "store_id",
		Required:     []string{"store_id", "name", "store_type", "city"},
		Optional:     []string{"state", "country", "region", "open_date", "square_feet", "as_of"},
		LoadOrder:    3,
	})
	Register(Definition{
		Name:         Sales,
		Table:        "fact_sales",
		File:         "facts.csv",
		Description:  "Sales transaction lines bound to the dimension versions valid at order time",
		SurrogateKey: "sales_key",
		Required: []string{"order_id", "line_number", "transaction_type",
			"customer_ref", "product_ref", "store_ref", "order_timestamp",
			"quantity_ordered", "unit_price"},
		Optional: []string{"payment_method", "promotion_code", "order_date_ref",
			"ship_date_ref", "quantity_shipped", "quantity_returned", "unit_cost",
			"discount_amount", "tax_amount", "shipping_amount", "payment_timestamp",
			"ship_timestamp", "delivery_timestamp", "data_quality_score", "is_processed"},
		LoadOrder: 10,
	})
}
