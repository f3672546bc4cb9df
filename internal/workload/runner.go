//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package workload replays the sample analytical queries against a
// loaded warehouse, the way a reporting tool would.
package workload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/datagen"
	"github.com/pgEdge/pgedge-salesdw/internal/datagen/traffic"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
)

// QueryFunc runs one named sample query.
type QueryFunc func(ctx context.Context, name string) (*db.Result, error)

// Config holds configuration for the runner.
type Config struct {
	Workers        int
	Profile        string
	Timezone       string
	ReportInterval time.Duration

	// MaxDelay is the pause between queries at zero activity. It shrinks
	// linearly to nothing at full activity.
	MaxDelay time.Duration

	// Queries restricts the mix to these names; empty runs every query.
	Queries []string

	Seed uint64
}

// Runner executes the weighted query mix until its context ends.
type Runner struct {
	run     QueryFunc
	cfg     Config
	profile traffic.Profile
	names   []string
	weights []int

	totalQueries    atomic.Int64
	failedQueries   atomic.Int64
	totalDurationNs atomic.Int64
	startTime       time.Time

	queryMetrics sync.Map // map[string]*queryMetric
}

type queryMetric struct {
	count      atomic.Int64
	durationNs atomic.Int64
	errors     atomic.Int64
	rows       atomic.Int64
}

// QueryStats summarizes one query of the mix.
type QueryStats struct {
	Name         string
	Count        int64
	Errors       int64
	Rows         int64
	AvgLatencyMs float64
}

// Summary is the outcome of a run.
type Summary struct {
	Duration     time.Duration
	Total        int64
	Failed       int64
	AvgLatencyMs float64
	Queries      []QueryStats
}

// NewRunner creates a runner over run.
func NewRunner(run QueryFunc, cfg Config) (*Runner, error) {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Profile == "" {
		cfg.Profile = "store-global"
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = time.Second
	}
	profile, err := traffic.Get(cfg.Profile, cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	r := &Runner{run: run, cfg: cfg, profile: profile}

	wanted := make(map[string]bool)
	for _, name := range cfg.Queries {
		if _, err := db.GetQuery(name); err != nil {
			return nil, err
		}
		wanted[name] = true
	}
	for _, q := range db.Queries() {
		if len(wanted) > 0 && !wanted[q.Name] {
			continue
		}
		r.names = append(r.names, q.Name)
		r.weights = append(r.weights, max(1, q.Weight))
	}
	return r, nil
}

// Run starts the workers and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.startTime = time.Now()

	logging.Info().
		Int("workers", r.cfg.Workers).
		Str("profile", r.profile.Name()).
		Strs("queries", r.names).
		Msg("Starting query workload")

	var wg sync.WaitGroup
	for i := 0; i < r.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			r.worker(ctx, workerID)
		}(i)
	}

	if r.cfg.ReportInterval > 0 {
		go r.reporter(ctx)
	}

	wg.Wait()
	return nil
}

func (r *Runner) worker(ctx context.Context, id int) {
	logging.Debug().Int("worker_id", id).Msg("Query worker started")

	faker := datagen.NewFaker()
	if r.cfg.Seed != 0 {
		faker = datagen.NewFakerWithSeed(r.cfg.Seed + uint64(id))
	}

	for ctx.Err() == nil {
		activityLevel := r.profile.Level(time.Now())
		if activityLevel < 0.01 {
			if !sleep(ctx, 100*time.Millisecond) {
				break
			}
			continue
		}

		r.execute(ctx, datagen.ChooseWeighted(faker, r.names, r.weights))

		if delay := r.calculateDelay(activityLevel); delay > 0 && !sleep(ctx, delay) {
			break
		}
	}
	logging.Debug().Int("worker_id", id).Msg("Query worker stopped")
}

func (r *Runner) execute(ctx context.Context, name string) {
	start := time.Now()
	res, err := r.run(ctx, name)
	elapsed := time.Since(start).Nanoseconds()

	// Queries cut short by the end of the run are not counted.
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return
	}

	r.totalQueries.Add(1)
	r.totalDurationNs.Add(elapsed)

	metric := r.getOrCreateQueryMetric(name)
	metric.count.Add(1)
	metric.durationNs.Add(elapsed)

	if err != nil {
		r.failedQueries.Add(1)
		metric.errors.Add(1)
		logging.Debug().Err(err).Str("query", name).Msg("Query failed")
		return
	}
	if res != nil {
		metric.rows.Add(int64(len(res.Rows)))
	}
}

func (r *Runner) getOrCreateQueryMetric(name string) *queryMetric {
	if m, ok := r.queryMetrics.Load(name); ok {
		return m.(*queryMetric)
	}

	m := &queryMetric{}
	actual, _ := r.queryMetrics.LoadOrStore(name, m)
	return actual.(*queryMetric)
}

// calculateDelay grows as activity drops: none at full activity,
// MaxDelay at none.
func (r *Runner) calculateDelay(activityLevel float64) time.Duration {
	if activityLevel >= 1.0 {
		return 0
	}
	return time.Duration((1.0 - activityLevel) * float64(r.cfg.MaxDelay))
}

func (r *Runner) reporter(ctx context.Context) {
	ticker := time.NewTicker(r.cfg.ReportInterval)
	defer ticker.Stop()

	var lastTotal int64
	lastTime := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			total := r.totalQueries.Load()

			rate := float64(total-lastTotal) / now.Sub(lastTime).Seconds()

			var avgLatencyMs float64
			if total > 0 {
				avgLatencyMs = float64(r.totalDurationNs.Load()) / float64(total) / 1e6
			}

			logging.Info().
				Int64("total", total).
				Int64("failed", r.failedQueries.Load()).
				Float64("rate_qps", rate).
				Float64("avg_latency_ms", avgLatencyMs).
				Float64("activity_level", r.profile.Level(now)).
				Msg("Statistics")

			lastTotal = total
			lastTime = now
		}
	}
}

// Summary returns the statistics of the run so far.
func (r *Runner) Summary() Summary {
	s := Summary{
		Duration: time.Since(r.startTime),
		Total:    r.totalQueries.Load(),
		Failed:   r.failedQueries.Load(),
	}
	if s.Total > 0 {
		s.AvgLatencyMs = float64(r.totalDurationNs.Load()) / float64(s.Total) / 1e6
	}

	r.queryMetrics.Range(func(key, value any) bool {
		m := value.(*queryMetric)
		qs := QueryStats{
			Name:   key.(string),
			Count:  m.count.Load(),
			Errors: m.errors.Load(),
			Rows:   m.rows.Load(),
		}
		if qs.Count > 0 {
			qs.AvgLatencyMs = float64(m.durationNs.Load()) / float64(qs.Count) / 1e6
		}
		s.Queries = append(s.Queries, qs)
		return true
	})
	sort.Slice(s.Queries, func(i, j int) bool { return s.Queries[i].Name < s.Queries[j].Name })
	return s
}

// PrintSummary logs a final summary of the run.
func (r *Runner) PrintSummary() {
	s := r.Summary()

	var qps float64
	if secs := s.Duration.Seconds(); secs > 0 {
		qps = float64(s.Total) / secs
	}
	logging.Info().
		Dur("duration", s.Duration).
		Int64("total_queries", s.Total).
		Int64("failed", s.Failed).
		Float64("avg_qps", qps).
		Float64("avg_latency_ms", s.AvgLatencyMs).
		Msg("Final summary")

	for _, q := range s.Queries {
		logging.Info().
			Str("query", q.Name).
			Int64("count", q.Count).
			Int64("errors", q.Errors).
			Int64("rows", q.Rows).
			Float64("avg_latency_ms", q.AvgLatencyMs).
			Msg("Query statistics")
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
