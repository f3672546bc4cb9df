//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package cli

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/pgEdge/pgedge-salesdw/internal/config"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/dedupe"
	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/fact"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/logging"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/olap"
	"github.com/pgEdge/pgedge-salesdw/internal/workload"
)

// warehouse holds the open sink of the configured kind and the optional
// duplicate guard.
type warehouse struct {
	pool  *pgxpool.Pool
	store *olap.Store
	guard *dedupe.Guard
}

// openWarehouse connects to the configured sink. maxConns sizes the
// PostgreSQL pool; zero keeps the default.
func openWarehouse(ctx context.Context, maxConns int32) (*warehouse, error) {
	w := &warehouse{}

	switch cfg.Sink {
	case config.SinkPostgres:
		pool, err := db.Connect(ctx, cfg.Connection, maxConns)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		exists, err := db.MetadataExists(ctx, pool)
		if err != nil || !exists {
			pool.Close()
			return nil, fmt.Errorf("database has not been initialized; run 'pgedge-salesdw init' first")
		}
		w.pool = pool
	case config.SinkDuckDB:
		store, err := olap.New(ctx, cfg.DuckDBPath)
		if err != nil {
			return nil, err
		}
		w.store = store
	}

	if cfg.Dedupe.RedisAddr != "" {
		guard, err := dedupe.New(ctx, cfg.Dedupe.RedisAddr, cfg.Dedupe.RedisPassword,
			cfg.Dedupe.RedisDB, cfg.Dedupe.TTL())
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		w.guard = guard
	}

	return w, nil
}

// sink returns where accepted rows go; nil discards them.
func (w *warehouse) sink() loader.Sink {
	switch {
	case w.pool != nil:
		return db.NewSink(w.pool)
	case w.store != nil:
		return w.store
	}
	return nil
}

// newLoader builds registries, restores them from the sink when
// hydration is on, and seeds the guard with the restored fact keys.
func (w *warehouse) newLoader(ctx context.Context, hydrate bool) (*loader.Loader, error) {
	var guard fact.Guard
	if w.guard != nil {
		guard = w.guard
	}
	dims := dimension.NewSet()
	facts := fact.NewRegistry(guard)

	if hydrate {
		var err error
		switch {
		case w.pool != nil:
			err = db.LoadState(ctx, w.pool, dims, facts)
		case w.store != nil:
			err = w.store.LoadState(ctx, dims, facts)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to restore warehouse state: %w", err)
		}
	} else if err := w.requireEmpty(ctx); err != nil {
		return nil, err
	}

	if w.guard != nil && facts.Len() > 0 {
		keys := make([]model.FactKey, 0, facts.Len())
		for _, f := range facts.All() {
			keys = append(keys, f.Input.Key())
		}
		fresh, err := w.guard.Seed(ctx, keys)
		if err != nil {
			return nil, fmt.Errorf("failed to seed duplicate guard: %w", err)
		}
		logging.Debug().Int("keys", len(keys)).Int("fresh", fresh).Msg("Seeded duplicate guard")
	}

	asOf, err := cfg.AsOf()
	if err != nil {
		return nil, err
	}
	opts := loader.Options{
		AsOf:           asOf,
		Workers:        cfg.Load.Workers,
		MaxRetries:     cfg.Stream.MaxRetries,
		InitialBackoff: cfg.Stream.InitialBackoff(),
		MaxBackoff:     cfg.Stream.MaxBackoff(),
	}
	return loader.New(dims, facts, w.sink(), opts), nil
}

// queryFunc runs sample queries against the sink.
func (w *warehouse) queryFunc() workload.QueryFunc {
	if w.store != nil {
		return w.store.RunQuery
	}
	return func(ctx context.Context, name string) (*db.Result, error) {
		return db.RunQuery(ctx, w.pool, name)
	}
}

// requireEmpty fails when the sink already holds rows. Registries that
// were not restored would register stored business keys a second time.
func (w *warehouse) requireEmpty(ctx context.Context) error {
	var (
		has bool
		err error
	)
	switch {
	case w.pool != nil:
		has, err = db.HasRows(ctx, w.pool)
	case w.store != nil:
		has, err = w.store.HasRows(ctx)
	}
	if err != nil {
		return err
	}
	if has {
		return fmt.Errorf("the %s warehouse already holds rows; loading without hydration needs an empty warehouse", cfg.Sink)
	}
	return nil
}

func (w *warehouse) Close() {
	if w.pool != nil {
		w.pool.Close()
	}
	if w.store != nil {
		if err := w.store.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close DuckDB")
		}
	}
	if w.guard != nil {
		if err := w.guard.Close(); err != nil {
			logging.Warn().Err(err).Msg("Failed to close redis")
		}
	}
}
