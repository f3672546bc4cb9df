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
	"time"
)

// InStore is a physical shop, open 9AM-9PM (10AM-6PM on Sunday).
// Opening hour ramps from 30% to 60%, midday 12-2PM and after work
// 5-7PM run at 100%, the rest of the day at 60%. Saturday is busier
// (140%), Sunday quieter (80%). Closed hours see no trade.
type InStore struct {
	tz *time.Location
}

// NewInStore creates the in-store profile.
func NewInStore(tz *time.Location) Profile {
	return &InStore{tz: tz}
}

func (p *InStore) Name() string {
	return "in-store"
}

func (p *InStore) Description() string {
	return "Physical store trading hours (midday and after-work peaks)"
}

func (p *InStore) Level(t time.Time) float64 {
	t = t.In(p.tz)
	hour := t.Hour()
	decimalHour := float64(hour) + float64(t.Minute())/60.0

	open, closeAt := 9, 21
	factor := 1.0
	switch t.Weekday() {
	case time.Saturday:
		factor = 1.40
	case time.Sunday:
		open, closeAt = 10, 18
		factor = 0.80
	}

	if hour < open || hour >= closeAt {
		return 0
	}

	var base float64
	switch {
	case hour == open:
		base = 0.30 + 0.30*(decimalHour-float64(open))
	case hour >= 12 && hour < 14:
		base = 1.0
	case hour >= 17 && hour < 19:
		base = 1.0
	default:
		base = 0.60
	}
	return base * factor
}
