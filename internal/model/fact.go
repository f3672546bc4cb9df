//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesdw/internal/measures"
)

// TransactionType classifies a sales fact row.
type TransactionType string

const (
	Sale     TransactionType = "Sale"
	Return   TransactionType = "Return"
	Exchange TransactionType = "Exchange"
)

// ParseTransactionType accepts the canonical names case-insensitively.
func ParseTransactionType(s string) (TransactionType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sale":
		return Sale, nil
	case "return":
		return Return, nil
	case "exchange":
		return Exchange, nil
	default:
		return "", fmt.Errorf("%w: unknown transaction type %q", ErrInvalidAttribute, s)
	}
}

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	return t == Sale || t == Return || t == Exchange
}

// MarshalText implements encoding.TextMarshaler.
func (t TransactionType) MarshalText() ([]byte, error) {
	return []byte(t), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *TransactionType) UnmarshalText(b []byte) error {
	parsed, err := ParseTransactionType(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// FactInput is a sales transaction as supplied by a loader. Dimension
// references are business keys; they are bound to surrogate keys by the
// validator. Derived measures are never part of the input.
type FactInput struct {
	// Degenerate attributes.
	OrderID         string          `json:"order_id"`
	LineNumber      int             `json:"line_number"`
	TransactionType TransactionType `json:"transaction_type"`
	PaymentMethod   string          `json:"payment_method,omitempty"`
	PromotionCode   string          `json:"promotion_code,omitempty"`

	// Dimension references.
	CustomerRef  string `json:"customer_ref"`
	ProductRef   string `json:"product_ref"`
	StoreRef     string `json:"store_ref"`
	OrderDateRef string `json:"order_date_ref"`
	ShipDateRef  string `json:"ship_date_ref,omitempty"`

	// Raw measures.
	QuantityOrdered  int64               `json:"quantity_ordered"`
	QuantityShipped  *int64              `json:"quantity_shipped,omitempty"`
	QuantityReturned *int64              `json:"quantity_returned,omitempty"`
	UnitPrice        decimal.Decimal     `json:"unit_price"`
	UnitCost         decimal.NullDecimal `json:"unit_cost"`
	DiscountAmount   decimal.Decimal     `json:"discount_amount"`
	TaxAmount        decimal.Decimal     `json:"tax_amount"`
	ShippingAmount   decimal.Decimal     `json:"shipping_amount"`

	// Timestamps. Only OrderTimestamp is required.
	OrderTimestamp    time.Time  `json:"order_timestamp"`
	PaymentTimestamp  *time.Time `json:"payment_timestamp,omitempty"`
	ShipTimestamp     *time.Time `json:"ship_timestamp,omitempty"`
	DeliveryTimestamp *time.Time `json:"delivery_timestamp,omitempty"`

	// Quality metadata, set by the loader and stored as-is.
	DataQualityScore float64 `json:"data_quality_score"`
	IsProcessed      bool    `json:"is_processed"`
}

// Key returns the uniqueness key of the row.
func (f FactInput) Key() FactKey {
	return FactKey{OrderID: f.OrderID, LineNumber: f.LineNumber, TransactionType: f.TransactionType}
}

// Raw returns the measure calculator input for the row.
func (f FactInput) Raw() measures.Raw {
	var returned int64
	if f.QuantityReturned != nil {
		returned = *f.QuantityReturned
	}
	return measures.Raw{
		UnitPrice:        f.UnitPrice,
		UnitCost:         f.UnitCost,
		QuantityOrdered:  f.QuantityOrdered,
		QuantityReturned: returned,
		DiscountAmount:   f.DiscountAmount,
		TaxAmount:        f.TaxAmount,
		ShippingAmount:   f.ShippingAmount,
	}
}

// FactKey identifies a fact row among its order lines.
type FactKey struct {
	OrderID         string
	LineNumber      int
	TransactionType TransactionType
}

func (k FactKey) String() string {
	return fmt.Sprintf("%s/%d/%s", k.OrderID, k.LineNumber, k.TransactionType)
}

// DimensionKeys holds the surrogate keys a fact row is bound to. Zero means
// unbound.
type DimensionKeys struct {
	CustomerKey  int64 `json:"customer_key"`
	ProductKey   int64 `json:"product_key"`
	StoreKey     int64 `json:"store_key"`
	OrderDateKey int64 `json:"order_date_key"`
	ShipDateKey  int64 `json:"ship_date_key,omitempty"`
}

// Bound reports whether the four mandatory references are bound.
func (k DimensionKeys) Bound() bool {
	return k.CustomerKey != 0 && k.ProductKey != 0 && k.StoreKey != 0 && k.OrderDateKey != 0
}

// SalesFact is an accepted, immutable fact row.
type SalesFact struct {
	SurrogateKey int64            `json:"surrogate_key"`
	Keys         DimensionKeys    `json:"keys"`
	Input        FactInput        `json:"input"`
	Measures     measures.Derived `json:"measures"`
	LoadID       string           `json:"load_id"`
	LoadedAt     time.Time        `json:"loaded_at"`
}
