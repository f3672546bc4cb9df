//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package validate checks a fact row against the dimensions and binds its
// references to surrogate keys.
package validate

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Input field names used in validation errors.
const (
	FieldOrderID           = "order_id"
	FieldLineNumber        = "line_number"
	FieldTransactionType   = "transaction_type"
	FieldCustomerRef       = "customer_ref"
	FieldProductRef        = "product_ref"
	FieldStoreRef          = "store_ref"
	FieldOrderDateRef      = "order_date_ref"
	FieldShipDateRef       = "ship_date_ref"
	FieldQuantityOrdered   = "quantity_ordered"
	FieldQuantityShipped   = "quantity_shipped"
	FieldQuantityReturned  = "quantity_returned"
	FieldUnitPrice         = "unit_price"
	FieldUnitCost          = "unit_cost"
	FieldDiscountAmount    = "discount_amount"
	FieldTaxAmount         = "tax_amount"
	FieldShippingAmount    = "shipping_amount"
	FieldOrderTimestamp    = "order_timestamp"
	FieldPaymentTimestamp  = "payment_timestamp"
	FieldShipTimestamp     = "ship_timestamp"
	FieldDeliveryTimestamp = "delivery_timestamp"
	FieldDataQualityScore  = "data_quality_score"
)

// Resolver maps a business key to the surrogate key of the dimension
// version effective at a point in time.
type Resolver interface {
	Resolve(kind model.DimensionKind, businessKey string, at time.Time) (int64, error)
}

// Result is the outcome of validating one fact row. Keys is only complete
// when OK is true.
type Result struct {
	OK     bool
	Errors []*model.FieldError
	Keys   model.DimensionKeys
}

// Retryable reports whether every failure could clear once dimensions
// catch up.
func (r Result) Retryable() bool {
	if r.OK || len(r.Errors) == 0 {
		return false
	}
	for _, e := range r.Errors {
		if !model.IsRetryable(e) {
			return false
		}
	}
	return true
}

// Err joins the failures into one error, or returns nil.
func (r Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	errs := make([]error, len(r.Errors))
	for i, e := range r.Errors {
		errs[i] = e
	}
	return errors.Join(errs...)
}

// Validator checks fact rows against a Resolver.
type Validator struct {
	resolver Resolver
}

// New creates a Validator.
func New(resolver Resolver) *Validator {
	return &Validator{resolver: resolver}
}

// OrderDateRef returns the order date reference of in, defaulting to the
// calendar day of the order timestamp.
func OrderDateRef(in model.FactInput) string {
	if in.OrderDateRef != "" {
		return in.OrderDateRef
	}
	if in.OrderTimestamp.IsZero() {
		return ""
	}
	return model.Day(in.OrderTimestamp).Format(model.DateLayout)
}

// Validate checks in and resolves its references at the order timestamp.
// Every failure is collected.
func (v *Validator) Validate(in model.FactInput) Result {
	var res Result
	fail := func(e *model.FieldError) {
		res.Errors = append(res.Errors, e)
	}

	checkFields(in, fail)
	checkQuantities(in, fail)
	checkTimestamps(in, fail)

	at := in.OrderTimestamp
	if !at.IsZero() {
		res.Keys.CustomerKey = v.resolve(model.KindCustomer, FieldCustomerRef, in.CustomerRef, at, fail)
	}
	res.Keys.ProductKey = v.resolve(model.KindProduct, FieldProductRef, in.ProductRef, at, fail)
	res.Keys.StoreKey = v.resolve(model.KindStore, FieldStoreRef, in.StoreRef, at, fail)
	if ref := OrderDateRef(in); ref != "" {
		res.Keys.OrderDateKey = v.resolve(model.KindDate, FieldOrderDateRef, ref, at, fail)
	}
	if in.ShipDateRef != "" {
		res.Keys.ShipDateKey = v.resolve(model.KindDate, FieldShipDateRef, in.ShipDateRef, at, fail)
	}

	res.OK = len(res.Errors) == 0
	return res
}

func (v *Validator) resolve(kind model.DimensionKind, field, ref string, at time.Time, fail func(*model.FieldError)) int64 {
	if ref == "" {
		fail(model.InvalidAttribute(field, "required"))
		return 0
	}
	key, err := v.resolver.Resolve(kind, ref, at)
	if err == nil {
		return key
	}
	switch {
	case errors.Is(err, model.ErrNoMatchingVersion):
		fail(model.NewFieldError(field, model.ErrNoMatchingVersion, "%s %q has no version effective at %s",
			kind, ref, at.Format(time.RFC3339)))
	case errors.Is(err, model.ErrUnresolvedReference):
		fail(model.NewFieldError(field, model.ErrUnresolvedReference, "%s %q is not loaded", kind, ref))
	default:
		fail(model.NewFieldError(field, err, "%s %q could not be resolved", kind, ref))
	}
	return 0
}

func checkFields(in model.FactInput, fail func(*model.FieldError)) {
	if in.OrderID == "" {
		fail(model.InvalidAttribute(FieldOrderID, "required"))
	}
	if in.LineNumber <= 0 {
		fail(model.InvalidAttribute(FieldLineNumber, "must be positive, got %d", in.LineNumber))
	}
	if !in.TransactionType.Valid() {
		fail(model.InvalidAttribute(FieldTransactionType, "unknown transaction type %q", in.TransactionType))
	}
	if in.OrderTimestamp.IsZero() {
		fail(model.InvalidAttribute(FieldOrderTimestamp, "required"))
	}
	if in.QuantityOrdered < 0 {
		fail(model.InvalidAttribute(FieldQuantityOrdered, "must not be negative, got %d", in.QuantityOrdered))
	}
	if in.QuantityShipped != nil && *in.QuantityShipped < 0 {
		fail(model.InvalidAttribute(FieldQuantityShipped, "must not be negative, got %d", *in.QuantityShipped))
	}
	if in.QuantityReturned != nil && *in.QuantityReturned < 0 {
		fail(model.InvalidAttribute(FieldQuantityReturned, "must not be negative, got %d", *in.QuantityReturned))
	}

	nonNegative := func(field string, d decimal.Decimal) {
		if d.IsNegative() {
			fail(model.InvalidAttribute(field, "must not be negative, got %s", d))
		}
	}
	nonNegative(FieldUnitPrice, in.UnitPrice)
	nonNegative(FieldDiscountAmount, in.DiscountAmount)
	nonNegative(FieldTaxAmount, in.TaxAmount)
	nonNegative(FieldShippingAmount, in.ShippingAmount)
	if in.UnitCost.Valid {
		nonNegative(FieldUnitCost, in.UnitCost.Decimal)
	}

	if in.DataQualityScore < 0 || in.DataQualityScore > 1 {
		fail(model.InvalidAttribute(FieldDataQualityScore, "must be within [0,1], got %g", in.DataQualityScore))
	}
}

func checkQuantities(in model.FactInput, fail func(*model.FieldError)) {
	if in.QuantityShipped != nil && *in.QuantityShipped > in.QuantityOrdered {
		fail(model.NewFieldError(FieldQuantityShipped, model.ErrQuantityInconsistency,
			"shipped %d exceeds ordered %d", *in.QuantityShipped, in.QuantityOrdered))
	}
	if in.QuantityShipped != nil && in.QuantityReturned != nil && *in.QuantityReturned > *in.QuantityShipped {
		fail(model.NewFieldError(FieldQuantityReturned, model.ErrQuantityInconsistency,
			"returned %d exceeds shipped %d", *in.QuantityReturned, *in.QuantityShipped))
	}
}

// checkTimestamps requires the present timestamps to be non-decreasing in
// the order order, payment, ship, delivery.
func checkTimestamps(in model.FactInput, fail func(*model.FieldError)) {
	type stamp struct {
		field string
		at    *time.Time
	}
	var order *time.Time
	if !in.OrderTimestamp.IsZero() {
		order = &in.OrderTimestamp
	}
	stamps := []stamp{
		{FieldOrderTimestamp, order},
		{FieldPaymentTimestamp, in.PaymentTimestamp},
		{FieldShipTimestamp, in.ShipTimestamp},
		{FieldDeliveryTimestamp, in.DeliveryTimestamp},
	}

	var prev *stamp
	for i := range stamps {
		s := &stamps[i]
		if s.at == nil {
			continue
		}
		if prev != nil && s.at.Before(*prev.at) {
			fail(model.NewFieldError(s.field, model.ErrTimestampOrder, "%s is before %s %s",
				s.at.Format(time.RFC3339), prev.field, prev.at.Format(time.RFC3339)))
		}
		prev = s
	}
}
