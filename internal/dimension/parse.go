//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package dimension

import (
	"strconv"
	"strings"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Column names of the tabular dimension input.
const (
	ColAsOf = "as_of"

	ColCustomerID       = "customer_id"
	ColProductID        = "product_id"
	ColStoreID          = "store_id"
	ColDate             = "date"
	ColIsHoliday        = "is_holiday"
	ColHolidayName      = "holiday_name"
	ColRegistrationDate = "registration_date"
	ColOpenDate         = "open_date"
	ColSquareFeet       = "square_feet"
)

// Fields is one tabular input row keyed by column name.
type Fields map[string]string

// Get returns the trimmed value of column name.
func (f Fields) Get(name string) string {
	return strings.TrimSpace(f[name])
}

// ParseCustomer reads a customer row.
func ParseCustomer(f Fields) (string, model.Customer, error) {
	c := model.Customer{
		FirstName:        f.Get("first_name"),
		LastName:         f.Get("last_name"),
		Email:            f.Get("email"),
		Phone:            f.Get("phone"),
		City:             f.Get("city"),
		State:            f.Get("state"),
		Country:          f.Get("country"),
		Segment:          f.Get("segment"),
		RegistrationDate: f.Get(ColRegistrationDate),
	}
	return f.Get(ColCustomerID), c, c.Validate()
}

// ParseProduct reads a product row.
func ParseProduct(f Fields) (string, model.Product, error) {
	p := model.Product{
		Name:        f.Get("name"),
		Category:    f.Get("category"),
		Subcategory: f.Get("subcategory"),
		Brand:       f.Get("brand"),
		Supplier:    f.Get("supplier"),
		Color:       f.Get("color"),
		Size:        f.Get("size"),
	}
	return f.Get(ColProductID), p, p.Validate()
}

// ParseStore reads a store row.
func ParseStore(f Fields) (string, model.Store, error) {
	s := model.Store{
		Name:      f.Get("name"),
		StoreType: f.Get("store_type"),
		City:      f.Get("city"),
		State:     f.Get("state"),
		Country:   f.Get("country"),
		Region:    f.Get("region"),
		OpenDate:  f.Get(ColOpenDate),
	}
	if raw := f.Get(ColSquareFeet); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return f.Get(ColStoreID), s, model.InvalidAttribute(ColSquareFeet, "%q is not an integer", raw)
		}
		s.SquareFeet = n
	}
	return f.Get(ColStoreID), s, s.Validate()
}

// ParseDate reads a date row. Only the date, the holiday flag and the
// holiday name are read; the calendar breakdown is derived.
func ParseDate(f Fields) (string, model.Date, error) {
	raw := f.Get(ColDate)
	day, err := model.ParseDay(raw)
	if err != nil {
		return raw, model.Date{}, model.InvalidAttribute(ColDate, "%q is not a date", raw)
	}
	d := model.NewDate(day)
	if flag := f.Get(ColIsHoliday); flag != "" {
		holiday, err := strconv.ParseBool(flag)
		if err != nil {
			return d.Date, d, model.InvalidAttribute(ColIsHoliday, "%q is not a boolean", flag)
		}
		d.IsHoliday = holiday
	}
	d.HolidayName = f.Get(ColHolidayName)
	return d.Date, d, d.Validate()
}
