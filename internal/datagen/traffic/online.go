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
	"math"
	"time"
)

// OnlineRegional is a single-market web shop.
// Night 0-6: 15%, morning 6-12: 40%, afternoon 12-17: 60%,
// evening 17-22: 100%, late 22-24: 70%. Weekends run at 120%.
type OnlineRegional struct {
	tz *time.Location
}

// NewOnlineRegional creates the store-regional profile.
func NewOnlineRegional(tz *time.Location) Profile {
	return &OnlineRegional{tz: tz}
}

func (p *OnlineRegional) Name() string {
	return "store-regional"
}

func (p *OnlineRegional) Description() string {
	return "Online store, one region (evening peak)"
}

func (p *OnlineRegional) Level(t time.Time) float64 {
	t = t.In(p.tz)

	var base float64
	switch hour := t.Hour(); {
	case hour < 6:
		base = 0.15
	case hour < 12:
		base = 0.40
	case hour < 17:
		base = 0.60
	case hour < 22:
		base = 1.0
	default:
		base = 0.70
	}

	if isWeekend(t) {
		base *= 1.20
	}
	return base
}

// OnlineGlobal is a web shop selling into the Americas, Europe and Asia.
// It never drops below 40% and peaks during each market's evening.
// Weekends run at 110%.
type OnlineGlobal struct {
	tz *time.Location
}

// NewOnlineGlobal creates the store-global profile.
func NewOnlineGlobal(tz *time.Location) Profile {
	return &OnlineGlobal{tz: tz}
}

func (p *OnlineGlobal) Name() string {
	return "store-global"
}

func (p *OnlineGlobal) Description() string {
	return "Online store, global (24/7 multi-region)"
}

func (p *OnlineGlobal) Level(t time.Time) float64 {
	utc := t.UTC()
	hour := utc.Hour()

	// Evenings 17-22 local: Americas 22-03 UTC, Europe 16-21, Asia 08-13.
	combined := math.Max(eveningPeak(hour, 22, 3),
		math.Max(eveningPeak(hour, 16, 21), eveningPeak(hour, 8, 13)))

	level := 0.40 + 0.60*combined
	if isWeekend(utc) {
		level *= 1.10
	}
	return level
}

// eveningPeak is 1 inside [start, end), ramping 0.6 and 0.3 over the two
// hours on either side. Windows may wrap midnight.
func eveningPeak(hour, start, end int) float64 {
	inside := hour >= start && hour < end
	if start > end {
		inside = hour >= start || hour < end
	}
	if inside {
		return 1.0
	}

	before := (start - hour + 24) % 24
	after := (hour-end+24)%24 + 1
	switch min(before, after) {
	case 1:
		return 0.6
	case 2:
		return 0.3
	}
	return 0.0
}

func isWeekend(t time.Time) bool {
	return t.Weekday() == time.Saturday || t.Weekday() == time.Sunday
}
