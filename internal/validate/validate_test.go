package validate

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

func day(s string) time.Time {
	t, err := model.ParseDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }

// fixture loads customer C1 (Standard from 2024-01-01, Premium from
// 2024-06-01), product P1, store S1 and the days of March 2024.
func fixture(t *testing.T) *dimension.Set {
	t.Helper()
	set := dimension.NewSet()
	c := model.Customer{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com", Segment: "Standard"}
	_, err := set.Customers.Register("C1", c, day("2024-01-01"))
	require.NoError(t, err)
	c.Segment = "Premium"
	_, err = set.Customers.Register("C1", c, day("2024-06-01"))
	require.NoError(t, err)

	_, err = set.Products.Register("P1", model.Product{Name: "Kettle", Category: "Kitchen"}, day("2024-01-01"))
	require.NoError(t, err)
	_, err = set.Stores.Register("S1", model.Store{Name: "Main St", StoreType: "Retail", City: "Leeds"}, day("2024-01-01"))
	require.NoError(t, err)
	for d := day("2024-03-01"); d.Before(day("2024-04-01")); d = d.AddDate(0, 0, 1) {
		_, err = set.Dates.Register(d.Format(model.DateLayout), model.NewDate(d), d)
		require.NoError(t, err)
	}
	return set
}

func validInput() model.FactInput {
	return model.FactInput{
		OrderID:         "1001",
		LineNumber:      1,
		TransactionType: model.Sale,
		CustomerRef:     "C1",
		ProductRef:      "P1",
		StoreRef:        "S1",
		QuantityOrdered: 3,
		UnitPrice:       decimal.RequireFromString("100"),
		OrderTimestamp:  time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC),
	}
}

func fieldErr(t *testing.T, res Result, field string) *model.FieldError {
	t.Helper()
	for _, e := range res.Errors {
		if e.Field == field {
			return e
		}
	}
	t.Fatalf("no error for field %s in %v", field, res.Errors)
	return nil
}

func TestValidateBindsVersionAtOrderTime(t *testing.T) {
	set := fixture(t)
	v := New(set)

	res := v.Validate(validInput())
	require.True(t, res.OK, "errors: %v", res.Errors)
	assert.NoError(t, res.Err())

	first, ok := set.Customers.Get(res.Keys.CustomerKey)
	require.True(t, ok)
	assert.Equal(t, "Standard", first.Attributes.Segment)
	assert.True(t, res.Keys.Bound())
	assert.Zero(t, res.Keys.ShipDateKey)

	orderDay, err := set.Dates.Resolve("2024-03-15", time.Time{})
	require.NoError(t, err)
	assert.Equal(t, orderDay, res.Keys.OrderDateKey)
}

func TestValidateShipDate(t *testing.T) {
	v := New(fixture(t))

	in := validInput()
	in.ShipDateRef = "2024-03-18"
	res := v.Validate(in)
	require.True(t, res.OK)
	assert.NotZero(t, res.Keys.ShipDateKey)

	in.ShipDateRef = "2024-05-01"
	res = v.Validate(in)
	assert.False(t, res.OK)
	assert.ErrorIs(t, fieldErr(t, res, FieldShipDateRef), model.ErrUnresolvedReference)
}

func TestValidateQuantityInconsistency(t *testing.T) {
	v := New(fixture(t))

	in := validInput()
	in.QuantityShipped = ptr[int64](5)
	res := v.Validate(in)

	require.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], model.ErrQuantityInconsistency)
	assert.Equal(t, FieldQuantityShipped, res.Errors[0].Field)
	assert.False(t, res.Retryable())

	in.QuantityShipped = ptr[int64](2)
	in.QuantityReturned = ptr[int64](3)
	res = v.Validate(in)
	assert.ErrorIs(t, fieldErr(t, res, FieldQuantityReturned), model.ErrQuantityInconsistency)
}

func TestValidateTimestampOrder(t *testing.T) {
	v := New(fixture(t))

	in := validInput()
	in.PaymentTimestamp = ptr(in.OrderTimestamp.Add(time.Hour))
	in.ShipTimestamp = ptr(in.OrderTimestamp.Add(30 * time.Minute))
	res := v.Validate(in)
	require.False(t, res.OK)
	assert.ErrorIs(t, fieldErr(t, res, FieldShipTimestamp), model.ErrTimestampOrder)

	// Missing middle timestamps are skipped.
	in = validInput()
	in.DeliveryTimestamp = ptr(in.OrderTimestamp.Add(48 * time.Hour))
	assert.True(t, v.Validate(in).OK)
}

func TestValidateUnresolvedIsRetryable(t *testing.T) {
	v := New(fixture(t))

	in := validInput()
	in.CustomerRef = "C404"
	res := v.Validate(in)
	require.False(t, res.OK)
	assert.ErrorIs(t, fieldErr(t, res, FieldCustomerRef), model.ErrUnresolvedReference)
	assert.True(t, res.Retryable())
}

func TestValidateNoMatchingVersion(t *testing.T) {
	set := fixture(t)
	for d := day("2023-12-01"); d.Before(day("2024-01-01")); d = d.AddDate(0, 0, 1) {
		_, err := set.Dates.Register(d.Format(model.DateLayout), model.NewDate(d), d)
		require.NoError(t, err)
	}
	v := New(set)

	in := validInput()
	in.OrderTimestamp = time.Date(2023, 12, 20, 9, 0, 0, 0, time.UTC)
	res := v.Validate(in)
	require.False(t, res.OK)
	assert.ErrorIs(t, fieldErr(t, res, FieldCustomerRef), model.ErrNoMatchingVersion)
	assert.True(t, res.Retryable())
}

func TestValidateCollectsEveryError(t *testing.T) {
	v := New(fixture(t))

	in := validInput()
	in.OrderID = ""
	in.LineNumber = 0
	in.DiscountAmount = decimal.RequireFromString("-1")
	in.DataQualityScore = 1.5
	in.StoreRef = "S404"
	res := v.Validate(in)

	require.False(t, res.OK)
	for _, field := range []string{FieldOrderID, FieldLineNumber, FieldDiscountAmount, FieldDataQualityScore} {
		assert.ErrorIs(t, fieldErr(t, res, field), model.ErrInvalidAttribute)
	}
	assert.ErrorIs(t, fieldErr(t, res, FieldStoreRef), model.ErrUnresolvedReference)
	assert.False(t, res.Retryable(), "invalid attributes are never retryable")

	err := res.Err()
	assert.True(t, errors.Is(err, model.ErrInvalidAttribute))
	assert.True(t, errors.Is(err, model.ErrUnresolvedReference))
}

func TestValidateMissingOrderTimestamp(t *testing.T) {
	v := New(fixture(t))

	in := validInput()
	in.OrderTimestamp = time.Time{}
	res := v.Validate(in)
	require.False(t, res.OK)
	assert.ErrorIs(t, fieldErr(t, res, FieldOrderTimestamp), model.ErrInvalidAttribute)
	assert.False(t, res.Retryable())
}

func TestOrderDateRef(t *testing.T) {
	in := validInput()
	assert.Equal(t, "2024-03-15", OrderDateRef(in))
	in.OrderDateRef = "2024-03-14"
	assert.Equal(t, "2024-03-14", OrderDateRef(in))
}
