//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package traffic models how shopping activity varies over the day and
// the week, so generated orders are not spread uniformly.
package traffic

import (
	"fmt"
	"sort"
	"time"
)

// DefaultProfile is used when no profile is configured.
const DefaultProfile = "store-regional"

// Profile gives the relative shopping activity at a point in time.
type Profile interface {
	// Name returns the profile name.
	Name() string

	// Description returns a human-readable description.
	Description() string

	// Level returns the activity at t, 1.0 being a weekday peak. Weekend
	// and holiday traffic may exceed 1.0.
	Level(t time.Time) float64
}

var registry = make(map[string]func(tz *time.Location) Profile)

// Register adds a profile constructor.
func Register(name string, constructor func(tz *time.Location) Profile) {
	registry[name] = constructor
}

// Get returns the named profile in timezone. An empty timezone is UTC.
func Get(name, timezone string) (Profile, error) {
	constructor, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("unknown traffic profile: %s", name)
	}

	loc := time.UTC
	if timezone != "" && timezone != "UTC" {
		var err error
		if loc, err = time.LoadLocation(timezone); err != nil {
			return nil, fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return constructor(loc), nil
}

// List returns the registered profile names, sorted.
func List() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HourlyWeights returns the activity of each hour of day, sampled at the
// half hour, as integer weights for weighted choice. Every weight is at
// least 1 so no hour is impossible.
func HourlyWeights(p Profile, day time.Time) []int {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	weights := make([]int, 24)
	for h := range weights {
		level := p.Level(day.Add(time.Duration(h)*time.Hour + 30*time.Minute))
		weights[h] = max(1, int(level*100))
	}
	return weights
}

// DailyVolume returns the activity of a whole day relative to an average
// weekday of the same profile.
func DailyVolume(p Profile, day time.Time) float64 {
	weekday := time.Date(2024, time.January, 3, 0, 0, 0, 0, day.Location())
	return float64(sum(HourlyWeights(p, day))) / float64(sum(HourlyWeights(p, weekday)))
}

func sum(xs []int) int {
	n := 0
	for _, x := range xs {
		n += x
	}
	return n
}

func init() {
	Register("store-regional", NewOnlineRegional)
	Register("store-global", NewOnlineGlobal)
	Register("in-store", NewInStore)
}
