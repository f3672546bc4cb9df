//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package traffic

import (
	"testing"
	"time"
)

// 2024-03-13 is a Wednesday.
func at(day, hour, minute int) time.Time {
	return time.Date(2024, time.March, day, hour, minute, 0, 0, time.UTC)
}

func TestGet(t *testing.T) {
	tests := []struct {
		name      string
		profile   string
		timezone  string
		wantError bool
	}{
		{"in-store", "in-store", "", false},
		{"store-regional", "store-regional", "America/New_York", false},
		{"store-global", "store-global", "UTC", false},
		{"bad timezone", "in-store", "Mars/Olympus", true},
		{"invalid profile", "invalid", "", true},
		{"empty profile", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			profile, err := Get(tt.profile, tt.timezone)
			if tt.wantError {
				if err == nil {
					t.Error("Expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if profile.Name() != tt.profile {
				t.Errorf("Expected name %s, got %s", tt.profile, profile.Name())
			}
		})
	}
}

func TestList(t *testing.T) {
	names := List()
	expected := []string{"in-store", "store-global", "store-regional"}
	if len(names) != len(expected) {
		t.Fatalf("Expected %v, got %v", expected, names)
	}
	for i := range expected {
		if names[i] != expected[i] {
			t.Errorf("Expected %s at %d, got %s", expected[i], i, names[i])
		}
	}
}

func TestInStoreLevels(t *testing.T) {
	p := NewInStore(time.UTC)

	testCases := []struct {
		when        time.Time
		expected    float64
		description string
	}{
		{at(13, 3, 0), 0, "Wednesday 3AM closed"},
		{at(13, 9, 0), 0.30, "Wednesday opening"},
		{at(13, 10, 0), 0.60, "Wednesday morning"},
		{at(13, 12, 30), 1.0, "Wednesday lunch"},
		{at(13, 18, 0), 1.0, "Wednesday after work"},
		{at(13, 21, 0), 0, "Wednesday after closing"},
		{at(16, 12, 30), 1.40, "Saturday lunch"},
		{at(17, 9, 0), 0, "Sunday before opening"},
		{at(17, 12, 30), 0.80, "Sunday lunch"},
		{at(17, 18, 30), 0, "Sunday evening closed"},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			if got := p.Level(tc.when); !approx(got, tc.expected) {
				t.Errorf("Expected %.2f, got %.2f", tc.expected, got)
			}
		})
	}
}

func TestOnlineRegionalLevels(t *testing.T) {
	p := NewOnlineRegional(time.UTC)

	if got := p.Level(at(13, 3, 0)); !approx(got, 0.15) {
		t.Errorf("Expected night level 0.15, got %.2f", got)
	}
	if got := p.Level(at(13, 20, 0)); !approx(got, 1.0) {
		t.Errorf("Expected evening level 1.0, got %.2f", got)
	}
	if got := p.Level(at(16, 20, 0)); !approx(got, 1.2) {
		t.Errorf("Expected weekend evening level 1.2, got %.2f", got)
	}
}

func TestOnlineGlobalNeverQuiet(t *testing.T) {
	p := NewOnlineGlobal(time.UTC)
	for h := 0; h < 24; h++ {
		if got := p.Level(at(13, h, 0)); got < 0.40 || got > 1.0 {
			t.Errorf("Hour %d: level %.2f outside [0.40, 1.0]", h, got)
		}
	}
}

func TestEveningPeak(t *testing.T) {
	testCases := []struct {
		hour, start, end int
		expected         float64
	}{
		{17, 16, 21, 1.0},
		{15, 16, 21, 0.6},
		{14, 16, 21, 0.3},
		{21, 16, 21, 0.6},
		{22, 16, 21, 0.3},
		{10, 16, 21, 0.0},
		{1, 22, 3, 1.0},
		{3, 22, 3, 0.6},
		{21, 22, 3, 0.6},
		{12, 22, 3, 0.0},
	}
	for _, tc := range testCases {
		if got := eveningPeak(tc.hour, tc.start, tc.end); got != tc.expected {
			t.Errorf("eveningPeak(%d, %d, %d): expected %.1f, got %.1f",
				tc.hour, tc.start, tc.end, tc.expected, got)
		}
	}
}

func TestHourlyWeights(t *testing.T) {
	weights := HourlyWeights(NewInStore(time.UTC), at(13, 15, 0))
	if len(weights) != 24 {
		t.Fatalf("Expected 24 weights, got %d", len(weights))
	}
	for h, w := range weights {
		if w < 1 {
			t.Errorf("Hour %d: weight %d below 1", h, w)
		}
	}
	if weights[12] <= weights[3] {
		t.Errorf("Expected lunch (%d) busier than 3AM (%d)", weights[12], weights[3])
	}
}

func TestDailyVolume(t *testing.T) {
	p := NewInStore(time.UTC)
	if v := DailyVolume(p, at(13, 0, 0)); !approx(v, 1.0) {
		t.Errorf("Expected weekday volume 1.0, got %.2f", v)
	}
	if v := DailyVolume(p, at(16, 0, 0)); v <= 1.0 {
		t.Errorf("Expected Saturday busier than a weekday, got %.2f", v)
	}
	if v := DailyVolume(p, at(17, 0, 0)); v >= 1.0 {
		t.Errorf("Expected Sunday quieter than a weekday, got %.2f", v)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
