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
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// The Format functions are the inverses of the Parse functions. A zero
// asOf leaves the as_of column empty.

// FormatCustomer renders a customer row.
func FormatCustomer(businessKey string, c model.Customer, asOf time.Time) Fields {
	return withAsOf(Fields{
		ColCustomerID:       businessKey,
		"first_name":        c.FirstName,
		"last_name":         c.LastName,
		"email":             c.Email,
		"phone":             c.Phone,
		"city":              c.City,
		"state":             c.State,
		"country":           c.Country,
		"segment":           c.Segment,
		ColRegistrationDate: c.RegistrationDate,
	}, asOf)
}

// FormatProduct renders a product row.
func FormatProduct(businessKey string, p model.Product, asOf time.Time) Fields {
	return withAsOf(Fields{
		ColProductID:  businessKey,
		"name":        p.Name,
		"category":    p.Category,
		"subcategory": p.Subcategory,
		"brand":       p.Brand,
		"supplier":    p.Supplier,
		"color":       p.Color,
		"size":        p.Size,
	}, asOf)
}

// FormatStore renders a store row.
func FormatStore(businessKey string, s model.Store, asOf time.Time) Fields {
	f := withAsOf(Fields{
		ColStoreID:   businessKey,
		"name":       s.Name,
		"store_type": s.StoreType,
		"city":       s.City,
		"state":      s.State,
		"country":    s.Country,
		"region":     s.Region,
		ColOpenDate:  s.OpenDate,
	}, asOf)
	if s.SquareFeet != 0 {
		f[ColSquareFeet] = strconv.Itoa(s.SquareFeet)
	}
	return f
}

// FormatDate renders a date row. Only the columns ParseDate reads are set.
func FormatDate(d model.Date) Fields {
	return Fields{
		ColDate:        d.Date,
		ColIsHoliday:   strconv.FormatBool(d.IsHoliday),
		ColHolidayName: d.HolidayName,
	}
}

func withAsOf(f Fields, asOf time.Time) Fields {
	if !asOf.IsZero() {
		f[ColAsOf] = asOf.UTC().Format(model.DateLayout)
	}
	return f
}
