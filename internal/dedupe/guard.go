//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package dedupe claims fact keys in Redis so loaders running in separate
// processes reject the same duplicates.
package dedupe

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// DefaultPrefix namespaces the claim keys.
const DefaultPrefix = "salesdw:fact:"

// Guard implements fact.Guard with SETNX.
type Guard struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

// New connects to Redis at addr. A zero ttl keeps claims forever.
func New(ctx context.Context, addr, password string, db int, ttl time.Duration) (*Guard, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Guard{rdb: rdb, prefix: DefaultPrefix, ttl: ttl}, nil
}

// Key returns the Redis key claimed for k.
func (g *Guard) Key(k model.FactKey) string {
	return claimKey(g.prefix, k)
}

func claimKey(prefix string, k model.FactKey) string {
	return prefix + k.String()
}

// Claim sets the claim key if it is absent.
func (g *Guard) Claim(ctx context.Context, key model.FactKey) (bool, error) {
	ok, err := g.rdb.SetNX(ctx, g.Key(key), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx failed: %w", err)
	}
	return ok, nil
}

// Release drops a claim, for facts the sink failed to persist.
func (g *Guard) Release(ctx context.Context, key model.FactKey) error {
	if err := g.rdb.Del(ctx, g.Key(key)).Err(); err != nil {
		return fmt.Errorf("del failed: %w", err)
	}
	return nil
}

// Seed claims keys already persisted in the warehouse. It returns the
// number of keys that were not claimed before.
func (g *Guard) Seed(ctx context.Context, keys []model.FactKey) (int, error) {
	fresh := 0
	pipe := g.rdb.Pipeline()
	cmds := make([]*redis.BoolCmd, 0, len(keys))
	for _, k := range keys {
		cmds = append(cmds, pipe.SetNX(ctx, g.Key(k), "seeded", g.ttl))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, fmt.Errorf("seed pipeline failed: %w", err)
	}
	for _, cmd := range cmds {
		if cmd.Val() {
			fresh++
		}
	}
	return fresh, nil
}

// Close closes the Redis connection.
func (g *Guard) Close() error {
	return g.rdb.Close()
}
