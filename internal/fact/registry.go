//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package fact implements the append-only sales fact registry.
package fact

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pgEdge/pgedge-salesdw/internal/keylock"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Guard claims fact keys outside this process, so several loaders writing
// to the same warehouse agree on uniqueness.
type Guard interface {
	// Claim records key and reports whether it was not claimed before.
	Claim(ctx context.Context, key model.FactKey) (bool, error)
}

// Registry stores accepted facts. There is no update or delete.
type Registry struct {
	guard Guard
	locks *keylock.Locker[model.FactKey]
	keys  model.KeySource

	mu    sync.RWMutex
	next  int64
	facts map[int64]model.SalesFact
	index map[model.FactKey]int64
}

// NewRegistry creates an empty registry. guard may be nil.
func NewRegistry(guard Guard) *Registry {
	return &Registry{
		guard: guard,
		locks: keylock.New[model.FactKey](),
		next:  1,
		facts: make(map[int64]model.SalesFact),
		index: make(map[model.FactKey]int64),
	}
}

// Guard returns the cross-process guard, or nil.
func (r *Registry) Guard() Guard {
	return r.guard
}

// UseKeys makes new facts take their surrogate keys from ks instead of the
// in-memory counter. Call it before the first insert.
func (r *Registry) UseKeys(ks model.KeySource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = ks
}

// Insert appends f and returns its new surrogate key. The four mandatory
// dimension keys must already be bound. A second fact with the same order
// id, line number and transaction type fails with model.ErrDuplicateFact.
func (r *Registry) Insert(ctx context.Context, f model.SalesFact) (int64, error) {
	return r.InsertFunc(ctx, f, nil)
}

// InsertFunc is Insert with a persist step. persist receives f with its
// surrogate key set, before the registry records it; if persist fails the
// fact is not recorded and the error is returned. persist may be nil.
func (r *Registry) InsertFunc(ctx context.Context, f model.SalesFact, persist func(context.Context, model.SalesFact) error) (int64, error) {
	key := f.Input.Key()
	if !f.Keys.Bound() {
		return 0, fmt.Errorf("fact %s: dimension references not bound: %w", key, model.ErrUnresolvedReference)
	}

	unlock := r.locks.Lock(key)
	defer unlock()

	r.mu.RLock()
	existing, dup := r.index[key]
	r.mu.RUnlock()
	if dup {
		return 0, fmt.Errorf("fact %s already stored as %d: %w", key, existing, model.ErrDuplicateFact)
	}

	if r.guard != nil {
		fresh, err := r.guard.Claim(ctx, key)
		if err != nil {
			return 0, fmt.Errorf("fact %s: claim failed: %w", key, err)
		}
		if !fresh {
			return 0, fmt.Errorf("fact %s claimed by another loader: %w", key, model.ErrDuplicateFact)
		}
	}

	sk, err := r.nextKey(ctx)
	if err != nil {
		return 0, fmt.Errorf("fact %s: %w", key, err)
	}
	f.SurrogateKey = sk

	if persist != nil {
		if err := persist(ctx, f); err != nil {
			return 0, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts[sk] = f
	r.index[key] = sk
	r.next = max(r.next, sk+1)
	return sk, nil
}

// nextKey returns an unused surrogate key.
func (r *Registry) nextKey(ctx context.Context) (int64, error) {
	r.mu.Lock()
	keys := r.keys
	if keys == nil {
		sk := r.next
		r.next++
		r.mu.Unlock()
		return sk, nil
	}
	r.mu.Unlock()

	sk, err := keys.NextKey(ctx, model.FactTable)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate surrogate key: %w", err)
	}

	r.mu.RLock()
	_, taken := r.facts[sk]
	r.mu.RUnlock()
	if taken {
		return 0, fmt.Errorf("surrogate key %d already assigned: %w", sk, model.ErrSurrogateKeyConflict)
	}
	return sk, nil
}

// Get returns the fact with the given surrogate key.
func (r *Registry) Get(surrogateKey int64) (model.SalesFact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.facts[surrogateKey]
	return f, ok
}

// Lookup returns the fact stored under key.
func (r *Registry) Lookup(key model.FactKey) (model.SalesFact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sk, ok := r.index[key]
	if !ok {
		return model.SalesFact{}, false
	}
	return r.facts[sk], true
}

// Len returns the number of stored facts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.facts)
}

// All returns every fact ordered by surrogate key.
func (r *Registry) All() []model.SalesFact {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.SalesFact, 0, len(r.facts))
	for _, f := range r.facts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurrogateKey < out[j].SurrogateKey })
	return out
}

// Restore loads previously persisted facts into an empty registry.
func (r *Registry) Restore(facts []model.SalesFact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.facts) > 0 {
		return fmt.Errorf("restore into a registry holding %d facts", len(r.facts))
	}

	restored := make(map[int64]model.SalesFact, len(facts))
	index := make(map[model.FactKey]int64, len(facts))
	var maxSK int64
	for _, f := range facts {
		key := f.Input.Key()
		if _, dup := index[key]; dup {
			return fmt.Errorf("fact %s: %w", key, model.ErrDuplicateFact)
		}
		if _, dup := restored[f.SurrogateKey]; dup {
			return fmt.Errorf("duplicate fact surrogate key %d", f.SurrogateKey)
		}
		restored[f.SurrogateKey] = f
		index[key] = f.SurrogateKey
		maxSK = max(maxSK, f.SurrogateKey)
	}

	r.facts = restored
	r.index = index
	r.next = maxSK + 1
	return nil
}
