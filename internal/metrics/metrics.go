//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package metrics holds the Prometheus collectors of the loader.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

var (
	RowsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdw_rows_total",
		Help: "Input rows handled, by table and outcome",
	}, []string{"table", "outcome"})

	ValidationErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdw_validation_errors_total",
		Help: "Fact validation errors, by reason",
	}, []string{"reason"})

	DimensionChangesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "salesdw_dimension_changes_total",
		Help: "Dimension registrations, by dimension and action",
	}, []string{"dimension", "action"})

	IngestRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salesdw_ingest_retries_total",
		Help: "Retries of streamed facts waiting for dimensions",
	})

	SinkErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "salesdw_sink_errors_total",
		Help: "Failed writes to the warehouse sink",
	})

	BatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "salesdw_batch_duration_seconds",
		Help:    "Time to load a batch",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	IngestLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "salesdw_ingest_latency_seconds",
		Help:    "Time to ingest one streamed fact, retries included",
		Buckets: prometheus.DefBuckets,
	})
)

// Reason maps an error to a low-cardinality label value.
func Reason(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidAttribute):
		return "invalid_attribute"
	case errors.Is(err, model.ErrNoMatchingVersion):
		return "no_matching_version"
	case errors.Is(err, model.ErrUnresolvedReference):
		return "unresolved_reference"
	case errors.Is(err, model.ErrQuantityInconsistency):
		return "quantity_inconsistency"
	case errors.Is(err, model.ErrTimestampOrder):
		return "timestamp_order"
	case errors.Is(err, model.ErrDuplicateFact):
		return "duplicate_fact"
	case errors.Is(err, model.ErrOutOfOrderVersion):
		return "out_of_order_version"
	default:
		return "other"
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
