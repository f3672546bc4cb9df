//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package datagen

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestNewFaker(t *testing.T) {
	f := NewFaker()
	if f == nil {
		t.Fatal("NewFaker returned nil")
	}
	if f.faker == nil {
		t.Fatal("faker field is nil")
	}
}

func TestNewFakerWithSeed(t *testing.T) {
	seed := uint64(12345)
	f1 := NewFakerWithSeed(seed)
	f2 := NewFakerWithSeed(seed)

	// Same seed should produce same sequence
	for i := 0; i < 10; i++ {
		v1 := f1.Int(0, 1000)
		v2 := f2.Int(0, 1000)
		if v1 != v2 {
			t.Errorf("Same seed produced different values: %d != %d", v1, v2)
		}
	}
	if f1.LastName() != f2.LastName() {
		t.Error("Same seed produced different names")
	}
}

func TestFakerStrings(t *testing.T) {
	f := NewFaker()
	values := map[string]string{
		"FirstName":   f.FirstName(),
		"LastName":    f.LastName(),
		"Phone":       f.Phone(),
		"City":        f.City(),
		"Company":     f.Company(),
		"ProductName": f.ProductName(),
		"Color":       f.Color(),
	}
	for name, v := range values {
		if v == "" {
			t.Errorf("%s returned empty string", name)
		}
	}
}

func TestFakerEmail(t *testing.T) {
	f := NewFaker()
	email := f.Email()
	if !strings.Contains(email, "@") {
		t.Errorf("Email %q has no @", email)
	}
}

func TestFakerState(t *testing.T) {
	f := NewFaker()
	state := f.State()
	if len(state) != 2 {
		t.Errorf("State should be 2-letter abbreviation, got: %s", state)
	}
}

func TestFakerPrice(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		price := f.Price(10.0, 100.0)
		if price.LessThan(decimal.NewFromInt(10)) || price.GreaterThan(decimal.NewFromInt(100)) {
			t.Errorf("Price %s not in range [10, 100]", price)
		}
		if price.Exponent() < -2 {
			t.Errorf("Price %s has more than 2 decimal places", price)
		}
	}
}

func TestFakerDateRange(t *testing.T) {
	f := NewFaker()
	start := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	d := f.DateRange(start, end)
	if d.Before(start) || d.After(end) {
		t.Errorf("DateRange %v not in range [%v, %v]", d, start, end)
	}
}

func TestFakerInt(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		v := f.Int(5, 10)
		if v < 5 || v > 10 {
			t.Errorf("Int %d not in range [5, 10]", v)
		}
	}
}

func TestFakerFloat64(t *testing.T) {
	f := NewFaker()
	for i := 0; i < 100; i++ {
		v := f.Float64(1.5, 3.5)
		if v < 1.5 || v > 3.5 {
			t.Errorf("Float64 %f not in range [1.5, 3.5]", v)
		}
	}
}

func TestFakerChance(t *testing.T) {
	f := NewFaker()
	hits := 0
	for i := 0; i < 1000; i++ {
		if f.Chance(0) {
			t.Fatal("Chance(0) returned true")
		}
		if f.Chance(0.5) {
			hits++
		}
	}
	if hits == 0 || hits == 1000 {
		t.Errorf("Chance(0.5) hit %d of 1000", hits)
	}
}

func TestChoose(t *testing.T) {
	f := NewFaker()
	items := []string{"a", "b", "c", "d", "e"}

	for i := 0; i < 100; i++ {
		chosen := Choose(f, items)
		found := false
		for _, item := range items {
			if item == chosen {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("Choose returned item not in slice: %s", chosen)
		}
	}
}

func TestChooseEmpty(t *testing.T) {
	f := NewFaker()
	var items []string

	chosen := Choose(f, items)
	if chosen != "" {
		t.Errorf("Choose on empty slice should return zero value, got: %s", chosen)
	}
}

func TestChooseWeighted(t *testing.T) {
	f := NewFaker()
	items := []string{"a", "b", "c"}
	weights := []int{1, 2, 7} // c should be chosen ~70% of the time

	counts := make(map[string]int)
	iterations := 1000

	for i := 0; i < iterations; i++ {
		chosen := ChooseWeighted(f, items, weights)
		counts[chosen]++
	}

	// c should be most common
	if counts["c"] < counts["a"] || counts["c"] < counts["b"] {
		t.Errorf("Weighted choice distribution unexpected: %v", counts)
	}
}

func TestChooseWeightedEmpty(t *testing.T) {
	f := NewFaker()
	var items []string
	var weights []int

	chosen := ChooseWeighted(f, items, weights)
	if chosen != "" {
		t.Errorf("ChooseWeighted on empty slices should return zero value, got: %s", chosen)
	}
}
