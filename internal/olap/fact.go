//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package olap

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesdw/internal/measures"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

const insertFactSQL = `
INSERT INTO fact_sales (sales_key, customer_key, product_key, store_key, order_date_key,
    ship_date_key, order_id, line_number, transaction_type, payment_method, promotion_code,
    quantity_ordered, quantity_shipped, quantity_returned, unit_price, unit_cost,
    discount_amount, tax_amount, shipping_amount, gross_sales, net_sales, total_cost,
    gross_profit, discount_percentage, profit_margin_percentage, total_amount,
    order_timestamp, payment_timestamp, ship_timestamp, delivery_timestamp,
    data_quality_score, is_processed, load_id, loaded_at)
VALUES (:sales_key, :customer_key, :product_key, :store_key, :order_date_key,
    :ship_date_key, :order_id, :line_number, :transaction_type, :payment_method,
    :promotion_code, :quantity_ordered, :quantity_shipped, :quantity_returned,
    :unit_price, :unit_cost, :discount_amount, :tax_amount, :shipping_amount,
    :gross_sales, :net_sales, :total_cost, :gross_profit, :discount_percentage,
    :profit_margin_percentage, :total_amount, :order_timestamp, :payment_timestamp,
    :ship_timestamp, :delivery_timestamp, :data_quality_score, :is_processed,
    :load_id, :loaded_at)
`

// factRow flattens a SalesFact. Decimals travel as text and are cast by
// DuckDB on insert.
type factRow struct {
	SalesKey               int64      `db:"sales_key"`
	CustomerKey            int64      `db:"customer_key"`
	ProductKey             int64      `db:"product_key"`
	StoreKey               int64      `db:"store_key"`
	OrderDateKey           int64      `db:"order_date_key"`
	ShipDateKey            *int64     `db:"ship_date_key"`
	OrderID                string     `db:"order_id"`
	LineNumber             int        `db:"line_number"`
	TransactionType        string     `db:"transaction_type"`
	PaymentMethod          *string    `db:"payment_method"`
	PromotionCode          *string    `db:"promotion_code"`
	QuantityOrdered        int64      `db:"quantity_ordered"`
	QuantityShipped        *int64     `db:"quantity_shipped"`
	QuantityReturned       *int64     `db:"quantity_returned"`
	UnitPrice              string     `db:"unit_price"`
	UnitCost               *string    `db:"unit_cost"`
	DiscountAmount         string     `db:"discount_amount"`
	TaxAmount              string     `db:"tax_amount"`
	ShippingAmount         string     `db:"shipping_amount"`
	GrossSales             string     `db:"gross_sales"`
	NetSales               string     `db:"net_sales"`
	TotalCost              *string    `db:"total_cost"`
	GrossProfit            *string    `db:"gross_profit"`
	DiscountPercentage     *string    `db:"discount_percentage"`
	ProfitMarginPercentage *string    `db:"profit_margin_percentage"`
	TotalAmount            string     `db:"total_amount"`
	OrderTimestamp         time.Time  `db:"order_timestamp"`
	PaymentTimestamp       *time.Time `db:"payment_timestamp"`
	ShipTimestamp          *time.Time `db:"ship_timestamp"`
	DeliveryTimestamp      *time.Time `db:"delivery_timestamp"`
	DataQualityScore       float64    `db:"data_quality_score"`
	IsProcessed            bool       `db:"is_processed"`
	LoadID                 string     `db:"load_id"`
	LoadedAt               time.Time  `db:"loaded_at"`
}

func newFactRow(f model.SalesFact) factRow {
	in := f.Input
	m := f.Measures
	row := factRow{
		SalesKey:               f.SurrogateKey,
		CustomerKey:            f.Keys.CustomerKey,
		ProductKey:             f.Keys.ProductKey,
		StoreKey:               f.Keys.StoreKey,
		OrderDateKey:           f.Keys.OrderDateKey,
		OrderID:                in.OrderID,
		LineNumber:             in.LineNumber,
		TransactionType:        string(in.TransactionType),
		PaymentMethod:          optional(in.PaymentMethod),
		PromotionCode:          optional(in.PromotionCode),
		QuantityOrdered:        in.QuantityOrdered,
		QuantityShipped:        in.QuantityShipped,
		QuantityReturned:       in.QuantityReturned,
		UnitPrice:              in.UnitPrice.String(),
		UnitCost:               optionalDecimal(in.UnitCost),
		DiscountAmount:         in.DiscountAmount.String(),
		TaxAmount:              in.TaxAmount.String(),
		ShippingAmount:         in.ShippingAmount.String(),
		GrossSales:             measures.Format(m.GrossSales),
		NetSales:               measures.Format(m.NetSales),
		TotalCost:              measures.FormatNull(m.TotalCost),
		GrossProfit:            measures.FormatNull(m.GrossProfit),
		DiscountPercentage:     measures.FormatNull(m.DiscountPercentage),
		ProfitMarginPercentage: measures.FormatNull(m.ProfitMarginPercentage),
		TotalAmount:            measures.Format(m.TotalAmount),
		OrderTimestamp:         in.OrderTimestamp.UTC(),
		PaymentTimestamp:       in.PaymentTimestamp,
		ShipTimestamp:          in.ShipTimestamp,
		DeliveryTimestamp:      in.DeliveryTimestamp,
		DataQualityScore:       in.DataQualityScore,
		IsProcessed:            in.IsProcessed,
		LoadID:                 f.LoadID,
		LoadedAt:               f.LoadedAt.UTC(),
	}
	if f.Keys.ShipDateKey != 0 {
		k := f.Keys.ShipDateKey
		row.ShipDateKey = &k
	}
	return row
}

func optionalDecimal(d decimal.NullDecimal) *string {
	if !d.Valid {
		return nil
	}
	s := d.Decimal.String()
	return &s
}
