//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package model defines the star-schema entities shared by the registries,
// the validator, the loader and the sinks.
package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the textual form of every date business key and date attribute.
const DateLayout = "2006-01-02"

// DimensionKind names one of the four dimensions.
type DimensionKind string

const (
	KindCustomer DimensionKind = "customer"
	KindProduct  DimensionKind = "product"
	KindStore    DimensionKind = "store"
	KindDate     DimensionKind = "date"
)

// Kinds lists the dimensions in load order.
var Kinds = []DimensionKind{KindDate, KindCustomer, KindProduct, KindStore}

// Table returns the warehouse table of the dimension.
func (k DimensionKind) Table() string {
	return "dim_" + string(k)
}

// FactTable is the warehouse table of the sales facts.
const FactTable = "fact_sales"

// KeySource hands out surrogate keys for a warehouse table. Every loader
// writing to the same warehouse draws from the same source, so keys stay
// unique across processes.
type KeySource interface {
	NextKey(ctx context.Context, table string) (int64, error)
}

// Attributes is the constraint satisfied by every dimension attribute type.
// Attribute values are comparable so an unchanged re-registration is a
// plain equality check.
type Attributes interface {
	comparable
	Validate() error
}

// Version is one row of a dimension table. Non-versioned dimensions keep a
// single Version per business key.
type Version[A Attributes] struct {
	SurrogateKey   int64      `json:"surrogate_key"`
	BusinessKey    string     `json:"business_key"`
	Attributes     A          `json:"attributes"`
	EffectiveStart time.Time  `json:"effective_start"`
	EffectiveEnd   *time.Time `json:"effective_end,omitempty"`
	IsCurrent      bool       `json:"is_current"`
}

// Open reports whether the version has no end date.
func (v Version[A]) Open() bool {
	return v.EffectiveEnd == nil
}

// Contains reports whether t falls in [EffectiveStart, EffectiveEnd).
func (v Version[A]) Contains(t time.Time) bool {
	if t.Before(v.EffectiveStart) {
		return false
	}
	return v.EffectiveEnd == nil || t.Before(*v.EffectiveEnd)
}

// Customer holds the SCD Type 2 tracked customer attributes.
type Customer struct {
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email,omitempty"`
	Phone            string `json:"phone,omitempty"`
	City             string `json:"city,omitempty"`
	State            string `json:"state,omitempty"`
	Country          string `json:"country,omitempty"`
	Segment          string `json:"segment"`
	RegistrationDate string `json:"registration_date,omitempty"`
}

// Validate checks required customer attributes.
func (c Customer) Validate() error {
	if strings.TrimSpace(c.FirstName) == "" {
		return InvalidAttribute("first_name", "required")
	}
	if strings.TrimSpace(c.LastName) == "" {
		return InvalidAttribute("last_name", "required")
	}
	if strings.TrimSpace(c.Segment) == "" {
		return InvalidAttribute("segment", "required")
	}
	if c.Email != "" && !strings.Contains(c.Email, "@") {
		return InvalidAttribute("email", "%q is not an email address", c.Email)
	}
	if c.RegistrationDate != "" {
		if _, err := time.Parse(DateLayout, c.RegistrationDate); err != nil {
			return InvalidAttribute("registration_date", "%q is not a date", c.RegistrationDate)
		}
	}
	return nil
}

// Product holds product attributes. Products are updated in place.
type Product struct {
	Name        string `json:"name"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory,omitempty"`
	Brand       string `json:"brand,omitempty"`
	Supplier    string `json:"supplier,omitempty"`
	Color       string `json:"color,omitempty"`
	Size        string `json:"size,omitempty"`
}

// Validate checks required product attributes.
func (p Product) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return InvalidAttribute("name", "required")
	}
	if strings.TrimSpace(p.Category) == "" {
		return InvalidAttribute("category", "required")
	}
	return nil
}

// Store holds store attributes. Stores are updated in place.
type Store struct {
	Name       string `json:"name"`
	StoreType  string `json:"store_type"`
	City       string `json:"city"`
	State      string `json:"state,omitempty"`
	Country    string `json:"country,omitempty"`
	Region     string `json:"region,omitempty"`
	OpenDate   string `json:"open_date,omitempty"`
	SquareFeet int    `json:"square_feet,omitempty"`
}

// Validate checks required store attributes.
func (s Store) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return InvalidAttribute("name", "required")
	}
	if strings.TrimSpace(s.StoreType) == "" {
		return InvalidAttribute("store_type", "required")
	}
	if strings.TrimSpace(s.City) == "" {
		return InvalidAttribute("city", "required")
	}
	if s.SquareFeet < 0 {
		return InvalidAttribute("square_feet", "must not be negative, got %d", s.SquareFeet)
	}
	if s.OpenDate != "" {
		if _, err := time.Parse(DateLayout, s.OpenDate); err != nil {
			return InvalidAttribute("open_date", "%q is not a date", s.OpenDate)
		}
	}
	return nil
}

// Date holds the calendar breakdown of one day. The business key is the
// date itself in DateLayout.
type Date struct {
	Date          string `json:"date"`
	Year          int    `json:"year"`
	Quarter       int    `json:"quarter"`
	Month         int    `json:"month"`
	MonthName     string `json:"month_name"`
	WeekOfYear    int    `json:"week_of_year"`
	DayOfMonth    int    `json:"day_of_month"`
	DayOfWeek     int    `json:"day_of_week"`
	DayName       string `json:"day_name"`
	IsWeekend     bool   `json:"is_weekend"`
	IsHoliday     bool   `json:"is_holiday"`
	HolidayName   string `json:"holiday_name,omitempty"`
	FiscalYear    int    `json:"fiscal_year"`
	FiscalQuarter int    `json:"fiscal_quarter"`
}

// FiscalYearStart is the first month of the retail fiscal year.
const FiscalYearStart = time.February

// NewDate derives the calendar attributes of d.
func NewDate(d time.Time) Date {
	d = d.UTC()
	_, week := d.ISOWeek()
	month := d.Month()

	fiscalYear := d.Year()
	if month < FiscalYearStart {
		fiscalYear--
	}
	fiscalMonth := (int(month) - int(FiscalYearStart) + 12) % 12

	weekday := d.Weekday()
	return Date{
		Date:          d.Format(DateLayout),
		Year:          d.Year(),
		Quarter:       (int(month)-1)/3 + 1,
		Month:         int(month),
		MonthName:     month.String(),
		WeekOfYear:    week,
		DayOfMonth:    d.Day(),
		DayOfWeek:     int(weekday) + 1, // 1=Sunday
		DayName:       weekday.String(),
		IsWeekend:     weekday == time.Saturday || weekday == time.Sunday,
		FiscalYear:    fiscalYear,
		FiscalQuarter: fiscalMonth/3 + 1,
	}
}

// Validate checks that the calendar breakdown matches the date.
func (d Date) Validate() error {
	t, err := time.Parse(DateLayout, d.Date)
	if err != nil {
		return InvalidAttribute("date", "%q is not a date", d.Date)
	}
	want := NewDate(t)
	want.IsHoliday = d.IsHoliday
	want.HolidayName = d.HolidayName
	if want != d {
		return InvalidAttribute("date", "calendar attributes do not match %s", d.Date)
	}
	if d.HolidayName != "" && !d.IsHoliday {
		return InvalidAttribute("holiday_name", "set on a non-holiday")
	}
	return nil
}

// ParseDay parses a date business key into UTC midnight.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q is not a date", ErrInvalidAttribute, s)
	}
	return t, nil
}

// Day truncates t to UTC midnight.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
