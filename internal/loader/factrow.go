//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package loader

import (
	"errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/validate"
)

// Fact column names not shared with the validator.
const (
	ColPaymentMethod = "payment_method"
	ColPromotionCode = "promotion_code"
	ColIsProcessed   = "is_processed"
)

// timestampLayouts are tried in order. Timestamps without a zone are UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	model.DateLayout,
}

// ParseTimestamp parses a fact timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	var err error
	for _, layout := range timestampLayouts {
		t, perr := time.Parse(layout, s)
		if perr == nil {
			return t.UTC(), nil
		}
		err = perr
	}
	return time.Time{}, err
}

// ParseFact reads a fact row. Every unparseable field is reported; the
// joined error wraps model.ErrInvalidAttribute.
func ParseFact(f dimension.Fields) (model.FactInput, error) {
	var errs []error
	fail := func(e *model.FieldError) {
		errs = append(errs, e)
	}

	in := model.FactInput{
		OrderID:       f.Get(validate.FieldOrderID),
		PaymentMethod: f.Get(ColPaymentMethod),
		PromotionCode: f.Get(ColPromotionCode),
		CustomerRef:   f.Get(validate.FieldCustomerRef),
		ProductRef:    f.Get(validate.FieldProductRef),
		StoreRef:      f.Get(validate.FieldStoreRef),
		OrderDateRef:  f.Get(validate.FieldOrderDateRef),
		ShipDateRef:   f.Get(validate.FieldShipDateRef),
	}

	if raw := f.Get(validate.FieldLineNumber); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			fail(model.InvalidAttribute(validate.FieldLineNumber, "%q is not an integer", raw))
		}
		in.LineNumber = n
	}

	if raw := f.Get(validate.FieldTransactionType); raw != "" {
		tt, err := model.ParseTransactionType(raw)
		if err != nil {
			fail(model.InvalidAttribute(validate.FieldTransactionType, "unknown transaction type %q", raw))
		}
		in.TransactionType = tt
	}

	quantity := func(field string, required bool) *int64 {
		raw := f.Get(field)
		if raw == "" {
			if required {
				fail(model.InvalidAttribute(field, "required"))
			}
			return nil
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			fail(model.InvalidAttribute(field, "%q is not an integer", raw))
			return nil
		}
		return &n
	}
	if q := quantity(validate.FieldQuantityOrdered, true); q != nil {
		in.QuantityOrdered = *q
	}
	in.QuantityShipped = quantity(validate.FieldQuantityShipped, false)
	in.QuantityReturned = quantity(validate.FieldQuantityReturned, false)

	amount := func(field string, required bool) decimal.NullDecimal {
		raw := f.Get(field)
		if raw == "" {
			if required {
				fail(model.InvalidAttribute(field, "required"))
			}
			return decimal.NullDecimal{}
		}
		d, err := decimal.NewFromString(raw)
		if err != nil {
			fail(model.InvalidAttribute(field, "%q is not a number", raw))
			return decimal.NullDecimal{}
		}
		return decimal.NewNullDecimal(d)
	}
	in.UnitPrice = amount(validate.FieldUnitPrice, true).Decimal
	in.UnitCost = amount(validate.FieldUnitCost, false)
	in.DiscountAmount = amount(validate.FieldDiscountAmount, false).Decimal
	in.TaxAmount = amount(validate.FieldTaxAmount, false).Decimal
	in.ShippingAmount = amount(validate.FieldShippingAmount, false).Decimal

	timestamp := func(field string) *time.Time {
		raw := f.Get(field)
		if raw == "" {
			return nil
		}
		t, err := ParseTimestamp(raw)
		if err != nil {
			fail(model.InvalidAttribute(field, "%q is not a timestamp", raw))
			return nil
		}
		return &t
	}
	if t := timestamp(validate.FieldOrderTimestamp); t != nil {
		in.OrderTimestamp = *t
	}
	in.PaymentTimestamp = timestamp(validate.FieldPaymentTimestamp)
	in.ShipTimestamp = timestamp(validate.FieldShipTimestamp)
	in.DeliveryTimestamp = timestamp(validate.FieldDeliveryTimestamp)

	if raw := f.Get(validate.FieldDataQualityScore); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			fail(model.InvalidAttribute(validate.FieldDataQualityScore, "%q is not a number", raw))
		}
		in.DataQualityScore = score
	}
	if raw := f.Get(ColIsProcessed); raw != "" {
		processed, err := strconv.ParseBool(raw)
		if err != nil {
			fail(model.InvalidAttribute(ColIsProcessed, "%q is not a boolean", raw))
		}
		in.IsProcessed = processed
	}

	return in, errors.Join(errs...)
}

// FormatFact is the inverse of ParseFact.
func FormatFact(in model.FactInput) dimension.Fields {
	f := dimension.Fields{
		validate.FieldOrderID:          in.OrderID,
		validate.FieldLineNumber:       strconv.Itoa(in.LineNumber),
		validate.FieldTransactionType:  string(in.TransactionType),
		ColPaymentMethod:               in.PaymentMethod,
		ColPromotionCode:               in.PromotionCode,
		validate.FieldCustomerRef:      in.CustomerRef,
		validate.FieldProductRef:       in.ProductRef,
		validate.FieldStoreRef:         in.StoreRef,
		validate.FieldOrderDateRef:     in.OrderDateRef,
		validate.FieldShipDateRef:      in.ShipDateRef,
		validate.FieldQuantityOrdered:  strconv.FormatInt(in.QuantityOrdered, 10),
		validate.FieldUnitPrice:        in.UnitPrice.String(),
		validate.FieldDiscountAmount:   in.DiscountAmount.String(),
		validate.FieldTaxAmount:        in.TaxAmount.String(),
		validate.FieldShippingAmount:   in.ShippingAmount.String(),
		validate.FieldDataQualityScore: strconv.FormatFloat(in.DataQualityScore, 'f', -1, 64),
		ColIsProcessed:                 strconv.FormatBool(in.IsProcessed),
	}
	if in.QuantityShipped != nil {
		f[validate.FieldQuantityShipped] = strconv.FormatInt(*in.QuantityShipped, 10)
	}
	if in.QuantityReturned != nil {
		f[validate.FieldQuantityReturned] = strconv.FormatInt(*in.QuantityReturned, 10)
	}
	if in.UnitCost.Valid {
		f[validate.FieldUnitCost] = in.UnitCost.Decimal.String()
	}
	if !in.OrderTimestamp.IsZero() {
		f[validate.FieldOrderTimestamp] = in.OrderTimestamp.UTC().Format(time.RFC3339)
	}
	for field, t := range map[string]*time.Time{
		validate.FieldPaymentTimestamp:  in.PaymentTimestamp,
		validate.FieldShipTimestamp:     in.ShipTimestamp,
		validate.FieldDeliveryTimestamp: in.DeliveryTimestamp,
	} {
		if t != nil {
			f[field] = t.UTC().Format(time.RFC3339)
		}
	}
	return f
}
