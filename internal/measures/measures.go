//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package measures derives the computed sales measures from raw fact inputs.
//
// All arithmetic is exact decimal arithmetic. Currency outputs keep two
// decimal places and percentages are rounded half-to-even to two places;
// rounding happens only on the final values, never on intermediate sums.
package measures

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Places is the number of decimal places of every output.
const Places = 2

var hundred = decimal.NewFromInt(100)

// Raw holds the inputs of the calculation.
type Raw struct {
	UnitPrice        decimal.Decimal
	UnitCost         decimal.NullDecimal
	QuantityOrdered  int64
	QuantityReturned int64
	DiscountAmount   decimal.Decimal
	TaxAmount        decimal.Decimal
	ShippingAmount   decimal.Decimal
}

// Derived holds the computed measures. Null fields are undefined rather
// than zero.
type Derived struct {
	GrossSales             decimal.Decimal     `json:"gross_sales"`
	NetSales               decimal.Decimal     `json:"net_sales"`
	TotalCost              decimal.NullDecimal `json:"total_cost"`
	GrossProfit            decimal.NullDecimal `json:"gross_profit"`
	DiscountPercentage     decimal.NullDecimal `json:"discount_percentage"`
	ProfitMarginPercentage decimal.NullDecimal `json:"profit_margin_percentage"`
	TotalAmount            decimal.Decimal     `json:"total_amount"`
}

// MarshalJSON renders every measure as a string with exactly Places
// decimals; undefined measures are null.
func (d Derived) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		GrossSales             string  `json:"gross_sales"`
		NetSales               string  `json:"net_sales"`
		TotalCost              *string `json:"total_cost"`
		GrossProfit            *string `json:"gross_profit"`
		DiscountPercentage     *string `json:"discount_percentage"`
		ProfitMarginPercentage *string `json:"profit_margin_percentage"`
		TotalAmount            string  `json:"total_amount"`
	}{
		GrossSales:             Format(d.GrossSales),
		NetSales:               Format(d.NetSales),
		TotalCost:              FormatNull(d.TotalCost),
		GrossProfit:            FormatNull(d.GrossProfit),
		DiscountPercentage:     FormatNull(d.DiscountPercentage),
		ProfitMarginPercentage: FormatNull(d.ProfitMarginPercentage),
		TotalAmount:            Format(d.TotalAmount),
	})
}

// Format renders a measure with exactly Places decimals, so 300 is
// "300.00".
func Format(v decimal.Decimal) string {
	return v.StringFixed(Places)
}

// FormatNull is Format for an optional measure; nil when undefined.
func FormatNull(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := Format(v.Decimal)
	return &s
}

// Compute derives the measures of r. It has no side effects.
func Compute(r Raw) Derived {
	ordered := decimal.NewFromInt(r.QuantityOrdered)

	gross := r.UnitPrice.Mul(ordered)
	returnedValue := r.UnitPrice.Mul(decimal.NewFromInt(r.QuantityReturned))
	net := gross.Sub(r.DiscountAmount).Sub(returnedValue)

	d := Derived{
		GrossSales:  currency(gross),
		NetSales:    currency(net),
		TotalAmount: currency(net.Add(r.TaxAmount).Add(r.ShippingAmount)),
	}

	if r.UnitCost.Valid {
		cost := r.UnitCost.Decimal.Mul(ordered)
		d.TotalCost = valid(currency(cost))
		profit := net.Sub(cost)
		d.GrossProfit = valid(currency(profit))
		if net.IsPositive() {
			d.ProfitMarginPercentage = valid(percentage(profit, net))
		}
	}

	if gross.IsPositive() {
		d.DiscountPercentage = valid(percentage(r.DiscountAmount, gross))
	}
	return d
}

// percentage returns part/whole*100 rounded half-to-even. whole must be
// non-zero.
func percentage(part, whole decimal.Decimal) decimal.Decimal {
	return part.Mul(hundred).Div(whole).RoundBank(Places)
}

func currency(v decimal.Decimal) decimal.Decimal {
	return v.RoundBank(Places)
}

func valid(v decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: v, Valid: true}
}
