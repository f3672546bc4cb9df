//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package loader loads batches and streamed records into the dimension and
// fact registries, and writes accepted rows to a warehouse sink.
package loader

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/fact"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/measures"
	"github.com/pgEdge/pgedge-salesdw/internal/metrics"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/validate"
)

// Sink receives accepted rows. Dimension writes are upserts keyed by
// surrogate key: closing a version rewrites its row. The versions passed
// to one dimension write are stored together or not at all, and a sink
// refuses to overwrite a row that belongs to another business key.
//
// A sink that also implements model.KeySource hands out the surrogate keys
// of the registries given to New.
type Sink interface {
	WriteCustomer(ctx context.Context, vs ...model.Version[model.Customer]) error
	WriteProduct(ctx context.Context, vs ...model.Version[model.Product]) error
	WriteStore(ctx context.Context, vs ...model.Version[model.Store]) error
	WriteDate(ctx context.Context, vs ...model.Version[model.Date]) error
	WriteFact(ctx context.Context, f model.SalesFact) error
	RecordBatch(ctx context.Context, r *Report) error
}

// Options tune a Loader.
type Options struct {
	// AsOf dates dimension rows without an as_of column. Zero means today.
	AsOf time.Time

	// Workers is the number of goroutines loading fact rows of a batch.
	// Values below 2 load facts in file order.
	Workers int

	// MaxRetries bounds the retries of a streamed fact whose references
	// are not resolvable yet.
	MaxRetries int

	// InitialBackoff is the first retry delay; it doubles up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Workers:        1,
		MaxRetries:     5,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Loader ties the registries, the validator and a sink together. It is safe
// for concurrent use.
type Loader struct {
	dims      *dimension.Set
	facts     *fact.Registry
	validator *validate.Validator
	sink      Sink
	opts      Options
}

// New creates a Loader. A nil sink discards rows.
func New(dims *dimension.Set, facts *fact.Registry, sink Sink, opts Options) *Loader {
	if sink == nil {
		sink = NopSink{}
	}
	if ks, ok := sink.(model.KeySource); ok {
		dims.UseKeys(ks)
		facts.UseKeys(ks)
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultOptions().InitialBackoff
	}
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	return &Loader{
		dims:      dims,
		facts:     facts,
		validator: validate.New(dims),
		sink:      sink,
		opts:      opts,
	}
}

// Dimensions returns the dimension registries.
func (l *Loader) Dimensions() *dimension.Set {
	return l.dims
}

// Facts returns the fact registry.
func (l *Loader) Facts() *fact.Registry {
	return l.facts
}

// LoadBatch loads every table of batch, dimensions first. Row failures are
// recorded in the report and never stop the batch; a sink failure does, and
// is returned along with the partial report.
func (l *Loader) LoadBatch(ctx context.Context, batch *Batch) (*Report, error) {
	report := NewReport(batch.Source)
	defaultAsOf := l.opts.AsOf
	if defaultAsOf.IsZero() {
		defaultAsOf = time.Now()
	}
	defaultAsOf = model.Day(defaultAsOf)

	logging.Info().
		Str("batch_id", report.BatchID).
		Str("source", batch.Source).
		Int("rows", batch.Rows()).
		Msg("Loading batch")

	err := l.loadTables(ctx, batch, report, defaultAsOf)
	report.Finish()
	metrics.BatchDuration.Observe(report.Duration().Seconds())

	if err != nil {
		metrics.SinkErrorsTotal.Inc()
		logging.Error().Err(err).Str("batch_id", report.BatchID).Msg("Batch aborted")
		return report, err
	}

	if err := l.sink.RecordBatch(ctx, report); err != nil {
		metrics.SinkErrorsTotal.Inc()
		return report, fmt.Errorf("failed to record batch: %w", err)
	}

	logging.Info().
		Str("batch_id", report.BatchID).
		Int("accepted", report.Count("", Accepted)).
		Int("rejected", report.Count("", Rejected)).
		Int("quarantined", report.Count("", Quarantined)).
		Int("retry", report.Count("", Retry)).
		Dur("duration", report.Duration()).
		Msg("Batch loaded")
	return report, nil
}

func (l *Loader) loadTables(ctx context.Context, batch *Batch, report *Report, asOf time.Time) error {
	for _, def := range catalog.All() {
		t := batch.Table(def.Name)
		if t == nil {
			continue
		}
		if def.IsFact() {
			if err := l.loadFacts(ctx, t, report); err != nil {
				return err
			}
			continue
		}
		for _, rec := range t.Records {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := l.loadDimensionRow(ctx, def, rec, asOf)
			l.record(report, res)
			if err != nil {
				return fmt.Errorf("%s line %d: %w", def.Name, rec.Line, err)
			}
		}
	}
	return nil
}

func (l *Loader) record(report *Report, res RowResult) {
	report.Add(res)
	metrics.RowsTotal.WithLabelValues(res.Table, string(res.Outcome)).Inc()
	if res.Outcome != Accepted {
		logging.Debug().
			Str("table", res.Table).
			Int("line", res.Line).
			Str("key", res.Key).
			Str("outcome", string(res.Outcome)).
			Strs("errors", res.Errors).
			Msg("Row not accepted")
	}
}

func (l *Loader) loadDimensionRow(ctx context.Context, def catalog.Definition, rec Record, asOf time.Time) (RowResult, error) {
	if raw := rec.Fields.Get(dimension.ColAsOf); raw != "" {
		day, err := model.ParseDay(raw)
		if err != nil {
			res := RowResult{Table: def.Name, Line: rec.Line, Key: rec.Fields.Get(def.BusinessKey)}
			return rejected(res, model.InvalidAttribute(dimension.ColAsOf, "%q is not a date", raw)), nil
		}
		asOf = day
	}

	switch def.Kind {
	case model.KindCustomer:
		return registerRow(ctx, def.Name, rec, asOf, l.dims.Customers, dimension.ParseCustomer, l.sink.WriteCustomer)
	case model.KindProduct:
		return registerRow(ctx, def.Name, rec, asOf, l.dims.Products, dimension.ParseProduct, l.sink.WriteProduct)
	case model.KindStore:
		return registerRow(ctx, def.Name, rec, asOf, l.dims.Stores, dimension.ParseStore, l.sink.WriteStore)
	case model.KindDate:
		return registerRow(ctx, def.Name, rec, asOf, l.dims.Dates, dimension.ParseDate, l.sink.WriteDate)
	default:
		return RowResult{}, fmt.Errorf("no loader for dimension %q", def.Kind)
	}
}

// registerRow parses and registers one dimension row. The versions it
// touches are written in one sink call before the registry records them.
func registerRow[A model.Attributes](
	ctx context.Context,
	table string,
	rec Record,
	asOf time.Time,
	reg *dimension.Registry[A],
	parse func(dimension.Fields) (string, A, error),
	write func(context.Context, ...model.Version[A]) error,
) (RowResult, error) {
	bk, attrs, err := parse(rec.Fields)
	res := RowResult{Table: table, Line: rec.Line, Key: bk}
	if err != nil {
		return rejected(res, err), nil
	}

	var writeErr error
	change, err := reg.ApplyFunc(ctx, bk, attrs, asOf, func(ctx context.Context, c dimension.Change[A]) error {
		if c.Closed != nil {
			writeErr = write(ctx, *c.Closed, c.Current)
		} else {
			writeErr = write(ctx, c.Current)
		}
		return writeErr
	})
	switch {
	case writeErr != nil:
		return unwritten(res, writeErr), writeErr
	case errors.Is(err, model.ErrInvalidAttribute), errors.Is(err, model.ErrOutOfOrderVersion):
		return rejected(res, err), nil
	case err != nil:
		return unwritten(res, err), err
	}
	res.Outcome = Accepted
	res.Action = string(change.Action)
	res.SurrogateKey = change.Current.SurrogateKey
	metrics.DimensionChangesTotal.WithLabelValues(string(reg.Kind()), res.Action).Inc()
	return res, nil
}

// loadFacts loads fact rows with the configured number of workers. The
// first sink failure cancels the remaining rows.
func (l *Loader) loadFacts(ctx context.Context, t *Table, report *Report) error {
	workers := max(l.opts.Workers, 1)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		once     sync.Once
		firstErr error
	)
	rows := make(chan Record)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range rows {
				if ctx.Err() != nil {
					continue
				}
				res, err := l.loadFactRow(ctx, t.Name, rec, report.BatchID)
				l.record(report, res)
				if err != nil {
					once.Do(func() {
						firstErr = fmt.Errorf("%s line %d: %w", t.Name, rec.Line, err)
						cancel()
					})
				}
			}
		}()
	}

feed:
	for _, rec := range t.Records {
		select {
		case <-ctx.Done():
			break feed
		case rows <- rec:
		}
	}
	close(rows)
	wg.Wait()

	if workers > 1 {
		report.sortRows()
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (l *Loader) loadFactRow(ctx context.Context, table string, rec Record, loadID string) (RowResult, error) {
	in, err := ParseFact(rec.Fields)
	if err != nil {
		res := RowResult{Table: table, Line: rec.Line, Key: in.Key().String()}
		return rejected(res, err), nil
	}
	res, err := l.processFact(ctx, in, loadID)
	res.Table = table
	res.Line = rec.Line
	return res, err
}

// processFact validates, measures, registers and writes one fact. The
// returned error is set only for failures outside the row itself.
func (l *Loader) processFact(ctx context.Context, in model.FactInput, loadID string) (RowResult, error) {
	res := RowResult{Table: catalog.Sales, Key: in.Key().String()}

	v := l.validator.Validate(in)
	if !v.OK {
		for _, e := range v.Errors {
			res.Errors = append(res.Errors, e.Error())
			metrics.ValidationErrorsTotal.WithLabelValues(metrics.Reason(e)).Inc()
		}
		if v.Retryable() {
			res.Outcome = Retry
		} else {
			res.Outcome = Quarantined
		}
		return res, nil
	}

	sf := model.SalesFact{
		Keys:     v.Keys,
		Input:    in,
		Measures: measures.Compute(in.Raw()),
		LoadID:   loadID,
		LoadedAt: time.Now().UTC(),
	}
	sk, err := l.facts.InsertFunc(ctx, sf, func(ctx context.Context, f model.SalesFact) error {
		if err := l.sink.WriteFact(ctx, f); err != nil {
			l.release(in.Key())
			return fmt.Errorf("failed to write fact %s: %w", res.Key, err)
		}
		return nil
	})
	switch {
	case errors.Is(err, model.ErrDuplicateFact):
		metrics.ValidationErrorsTotal.WithLabelValues(metrics.Reason(err)).Inc()
		return rejected(res, err), nil
	case err != nil:
		return unwritten(res, err), err
	}
	res.Outcome = Accepted
	res.SurrogateKey = sk
	return res, nil
}

// claimReleaser is implemented by guards that can drop a claim.
type claimReleaser interface {
	Release(ctx context.Context, key model.FactKey) error
}

// release drops the cross-process claim of a fact the sink did not
// persist, so a reload is not rejected as a duplicate.
func (l *Loader) release(key model.FactKey) {
	r, ok := l.facts.Guard().(claimReleaser)
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.Release(ctx, key); err != nil {
		logging.Warn().Err(err).Str("key", key.String()).Msg("Failed to release fact claim")
	}
}

// Ingest loads one streamed fact. Facts waiting for dimensions are retried
// with capped exponential backoff; a fact still unresolved after the last
// retry is returned with outcome Retry. The error is set for sink failures
// and cancellation.
func (l *Loader) Ingest(ctx context.Context, in model.FactInput) (RowResult, error) {
	start := time.Now()
	defer func() {
		metrics.IngestLatency.Observe(time.Since(start).Seconds())
	}()

	loadID := uuid.NewString()
	backoff := l.opts.InitialBackoff
	for attempt := 0; ; attempt++ {
		res, err := l.processFact(ctx, in, loadID)
		if err != nil || res.Outcome != Retry || attempt >= l.opts.MaxRetries {
			metrics.RowsTotal.WithLabelValues(res.Table, string(res.Outcome)).Inc()
			return res, err
		}

		metrics.IngestRetriesTotal.Inc()
		logging.Debug().
			Str("key", res.Key).
			Int("attempt", attempt+1).
			Dur("backoff", backoff).
			Msg("Fact references not resolvable yet, retrying")

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return res, ctx.Err()
		case <-timer.C:
		}
		backoff = min(backoff*2, l.opts.MaxBackoff)
	}
}

func rejected(res RowResult, err error) RowResult {
	res.Outcome = Rejected
	res.Errors = append(res.Errors, err.Error())
	return res
}

// unwritten marks a row the sink did not store. The registries do not hold
// it either, so reloading it once the sink recovers succeeds.
func unwritten(res RowResult, err error) RowResult {
	res.Outcome = Retry
	res.Errors = append(res.Errors, err.Error())
	return res
}

// sortRows orders rows by table load order and line.
func (r *Report) sortRows() {
	r.mu.Lock()
	defer r.mu.Unlock()

	order := make(map[string]int)
	for _, def := range catalog.All() {
		order[def.Name] = def.LoadOrder
	}
	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i], r.Rows[j]
		if a.Table != b.Table {
			return order[a.Table] < order[b.Table]
		}
		return a.Line < b.Line
	})
}

// NopSink discards every row.
type NopSink struct{}

func (NopSink) WriteCustomer(context.Context, ...model.Version[model.Customer]) error { return nil }
func (NopSink) WriteProduct(context.Context, ...model.Version[model.Product]) error   { return nil }
func (NopSink) WriteStore(context.Context, ...model.Version[model.Store]) error       { return nil }
func (NopSink) WriteDate(context.Context, ...model.Version[model.Date]) error         { return nil }
func (NopSink) WriteFact(context.Context, model.SalesFact) error                      { return nil }
func (NopSink) RecordBatch(context.Context, *Report) error                            { return nil }
