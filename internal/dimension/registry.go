//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package dimension implements the dimension registries: surrogate key
// assignment, SCD Type 2 versioning and point-in-time resolution.
package dimension

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/keylock"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Action describes what a registration did.
type Action string

const (
	// Created means the business key was new.
	Created Action = "created"
	// Unchanged means the current version already had these attributes.
	Unchanged Action = "unchanged"
	// Updated means a non-versioned row was overwritten in place.
	Updated Action = "updated"
	// Versioned means the current version was closed and a new one opened.
	Versioned Action = "versioned"
)

// Change is the outcome of a registration. Closed is set only for
// Versioned changes.
type Change[A model.Attributes] struct {
	Action  Action
	Current model.Version[A]
	Closed  *model.Version[A]
}

// Written reports whether the change produced rows a sink must persist.
func (c Change[A]) Written() bool {
	return c.Action != Unchanged
}

type location struct {
	businessKey string
	index       int
}

// Registry holds every version of one dimension.
//
// Writers for the same business key are serialized by a per-key lock so the
// close-old/open-new transition is a single step; readers never block on
// those locks.
type Registry[A model.Attributes] struct {
	kind      model.DimensionKind
	versioned bool
	locks     *keylock.Locker[string]
	keys      model.KeySource

	mu       sync.RWMutex
	next     int64
	versions map[string][]model.Version[A]
	bySK     map[int64]location
}

// NewRegistry creates an empty registry. Versioned registries keep history
// (SCD Type 2); the others update rows in place.
func NewRegistry[A model.Attributes](kind model.DimensionKind, versioned bool) *Registry[A] {
	return &Registry[A]{
		kind:      kind,
		versioned: versioned,
		locks:     keylock.New[string](),
		next:      1,
		versions:  make(map[string][]model.Version[A]),
		bySK:      make(map[int64]location),
	}
}

// Kind returns the dimension this registry holds.
func (r *Registry[A]) Kind() model.DimensionKind {
	return r.kind
}

// Versioned reports whether the registry keeps history.
func (r *Registry[A]) Versioned() bool {
	return r.versioned
}

// UseKeys makes new versions take their surrogate keys from ks instead of
// the in-memory counter. Call it before the first registration.
func (r *Registry[A]) UseKeys(ks model.KeySource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys = ks
}

// Register records attrs for businessKey as of asOf and returns the
// surrogate key of the resulting current version.
func (r *Registry[A]) Register(businessKey string, attrs A, asOf time.Time) (int64, error) {
	change, err := r.Apply(businessKey, attrs, asOf)
	if err != nil {
		return 0, err
	}
	return change.Current.SurrogateKey, nil
}

// Apply is Register returning the full change.
func (r *Registry[A]) Apply(businessKey string, attrs A, asOf time.Time) (Change[A], error) {
	return r.ApplyFunc(context.Background(), businessKey, attrs, asOf, nil)
}

// ApplyFunc is Apply with a persist step. persist receives every change
// that writes rows, before the registry records it; if persist fails the
// registry is left as it was and the error is returned. persist may be nil.
func (r *Registry[A]) ApplyFunc(
	ctx context.Context,
	businessKey string,
	attrs A,
	asOf time.Time,
	persist func(context.Context, Change[A]) error,
) (Change[A], error) {
	businessKey = strings.TrimSpace(businessKey)
	if businessKey == "" {
		return Change[A]{}, fmt.Errorf("%s: %w", r.kind, model.InvalidAttribute("business_key", "required"))
	}
	if err := attrs.Validate(); err != nil {
		return Change[A]{}, fmt.Errorf("%s %q: %w", r.kind, businessKey, err)
	}
	if asOf.IsZero() {
		return Change[A]{}, fmt.Errorf("%s %q: %w", r.kind, businessKey, model.InvalidAttribute("as_of", "required"))
	}
	asOf = model.Day(asOf)

	unlock := r.locks.Lock(businessKey)
	defer unlock()

	change, err := r.plan(businessKey, attrs, asOf)
	if err != nil || !change.Written() {
		return change, err
	}

	if change.Action != Updated {
		sk, err := r.nextKey(ctx)
		if err != nil {
			return Change[A]{}, fmt.Errorf("%s %q: %w", r.kind, businessKey, err)
		}
		change.Current.SurrogateKey = sk
	}

	if persist != nil {
		if err := persist(ctx, change); err != nil {
			return Change[A]{}, err
		}
	}
	r.commit(change)
	return change, nil
}

// plan works out the change attrs makes to the history of businessKey
// without recording it. New versions carry no surrogate key yet.
func (r *Registry[A]) plan(businessKey string, attrs A, asOf time.Time) (Change[A], error) {
	r.mu.RLock()
	history := r.versions[businessKey]
	r.mu.RUnlock()

	if len(history) == 0 {
		return Change[A]{Action: Created, Current: model.Version[A]{
			BusinessKey:    businessKey,
			Attributes:     attrs,
			EffectiveStart: asOf,
			IsCurrent:      true,
		}}, nil
	}

	current := history[len(history)-1]
	if current.Attributes == attrs {
		return Change[A]{Action: Unchanged, Current: current}, nil
	}

	if !r.versioned {
		current.Attributes = attrs
		return Change[A]{Action: Updated, Current: current}, nil
	}

	// Replaying a historical row is a no-op.
	for _, v := range history {
		if v.EffectiveStart.Equal(asOf) && v.Attributes == attrs {
			return Change[A]{Action: Unchanged, Current: v}, nil
		}
	}

	if !asOf.After(current.EffectiveStart) {
		return Change[A]{}, fmt.Errorf("%s %q: change dated %s but current version starts %s: %w",
			r.kind, businessKey, asOf.Format(model.DateLayout),
			current.EffectiveStart.Format(model.DateLayout), model.ErrOutOfOrderVersion)
	}

	end := asOf
	closed := current
	closed.EffectiveEnd = &end
	closed.IsCurrent = false

	return Change[A]{
		Action: Versioned,
		Current: model.Version[A]{
			BusinessKey:    businessKey,
			Attributes:     attrs,
			EffectiveStart: asOf,
			IsCurrent:      true,
		},
		Closed: &closed,
	}, nil
}

// nextKey returns an unused surrogate key.
func (r *Registry[A]) nextKey(ctx context.Context) (int64, error) {
	r.mu.Lock()
	keys := r.keys
	if keys == nil {
		sk := r.next
		r.next++
		r.mu.Unlock()
		return sk, nil
	}
	r.mu.Unlock()

	sk, err := keys.NextKey(ctx, r.kind.Table())
	if err != nil {
		return 0, fmt.Errorf("failed to allocate surrogate key: %w", err)
	}

	r.mu.RLock()
	loc, taken := r.bySK[sk]
	r.mu.RUnlock()
	if taken {
		return 0, fmt.Errorf("surrogate key %d already held by %q: %w", sk, loc.businessKey, model.ErrSurrogateKeyConflict)
	}
	return sk, nil
}

// commit records a planned change. The caller holds the business key lock.
func (r *Registry[A]) commit(change Change[A]) {
	r.mu.Lock()
	defer r.mu.Unlock()

	v := change.Current
	history := r.versions[v.BusinessKey]
	switch change.Action {
	case Created:
		r.versions[v.BusinessKey] = []model.Version[A]{v}
		r.bySK[v.SurrogateKey] = location{businessKey: v.BusinessKey}
	case Updated:
		history[len(history)-1] = v
	case Versioned:
		history[len(history)-1] = *change.Closed
		r.versions[v.BusinessKey] = append(history, v)
		r.bySK[v.SurrogateKey] = location{businessKey: v.BusinessKey, index: len(history)}
	}
	r.next = max(r.next, v.SurrogateKey+1)
}

// Resolve returns the surrogate key of the version of businessKey effective
// at t. Non-versioned dimensions resolve to their only row for any t.
func (r *Registry[A]) Resolve(businessKey string, at time.Time) (int64, error) {
	businessKey = strings.TrimSpace(businessKey)

	r.mu.RLock()
	defer r.mu.RUnlock()

	history, ok := r.versions[businessKey]
	if !ok {
		return 0, fmt.Errorf("%s %q: %w", r.kind, businessKey, model.ErrUnresolvedReference)
	}
	if !r.versioned {
		return history[0].SurrogateKey, nil
	}

	// First version starting after t; the candidate is the one before it.
	i := sort.Search(len(history), func(i int) bool {
		return history[i].EffectiveStart.After(at)
	})
	if i > 0 && history[i-1].Contains(at) {
		return history[i-1].SurrogateKey, nil
	}
	return 0, fmt.Errorf("%s %q at %s: %w", r.kind, businessKey, at.UTC().Format(time.RFC3339), model.ErrNoMatchingVersion)
}

// Current returns the current version of businessKey.
func (r *Registry[A]) Current(businessKey string) (model.Version[A], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.versions[strings.TrimSpace(businessKey)]
	if len(history) == 0 {
		return model.Version[A]{}, false
	}
	return history[len(history)-1], true
}

// Versions returns a copy of the history of businessKey, oldest first.
func (r *Registry[A]) Versions(businessKey string) []model.Version[A] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.versions[strings.TrimSpace(businessKey)]
	out := make([]model.Version[A], len(history))
	copy(out, history)
	return out
}

// Get returns the version with the given surrogate key.
func (r *Registry[A]) Get(surrogateKey int64) (model.Version[A], bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	loc, ok := r.bySK[surrogateKey]
	if !ok {
		return model.Version[A]{}, false
	}
	return r.versions[loc.businessKey][loc.index], true
}

// Len returns the number of rows (versions) held.
func (r *Registry[A]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.bySK)
}

// All returns every version ordered by surrogate key.
func (r *Registry[A]) All() []model.Version[A] {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Version[A], 0, len(r.bySK))
	for _, history := range r.versions {
		out = append(out, history...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SurrogateKey < out[j].SurrogateKey })
	return out
}

// Restore replaces the registry contents with previously persisted
// versions. It fails if the versions break the history invariants, and
// leaves the registry untouched in that case.
func (r *Registry[A]) Restore(versions []model.Version[A]) error {
	grouped := make(map[string][]model.Version[A])
	bySK := make(map[int64]location, len(versions))
	var maxSK int64

	for _, v := range versions {
		if _, dup := bySK[v.SurrogateKey]; dup {
			return fmt.Errorf("%s: duplicate surrogate key %d", r.kind, v.SurrogateKey)
		}
		bySK[v.SurrogateKey] = location{}
		grouped[v.BusinessKey] = append(grouped[v.BusinessKey], v)
		maxSK = max(maxSK, v.SurrogateKey)
	}

	for bk, history := range grouped {
		sort.Slice(history, func(i, j int) bool {
			return history[i].EffectiveStart.Before(history[j].EffectiveStart)
		})
		if err := r.checkHistory(bk, history); err != nil {
			return err
		}
		for i, v := range history {
			bySK[v.SurrogateKey] = location{businessKey: bk, index: i}
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.versions = grouped
	r.bySK = bySK
	r.next = maxSK + 1
	return nil
}

// Verify checks the history invariants of every business key.
func (r *Registry[A]) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for bk, history := range r.versions {
		if err := r.checkHistory(bk, history); err != nil {
			return err
		}
	}
	return nil
}

// checkHistory enforces: intervals ordered and contiguous, exactly one open
// interval (the last), and is_current set on that one only.
func (r *Registry[A]) checkHistory(businessKey string, history []model.Version[A]) error {
	if len(history) == 0 {
		return nil
	}
	if !r.versioned && len(history) > 1 {
		return fmt.Errorf("%s %q: %d rows for a non-versioned dimension", r.kind, businessKey, len(history))
	}
	for i, v := range history {
		last := i == len(history)-1
		if v.IsCurrent != last {
			return fmt.Errorf("%s %q: version %d has is_current=%t", r.kind, businessKey, v.SurrogateKey, v.IsCurrent)
		}
		if v.Open() != last {
			return fmt.Errorf("%s %q: version %d open=%t", r.kind, businessKey, v.SurrogateKey, v.Open())
		}
		if last {
			continue
		}
		next := history[i+1]
		if !v.EffectiveEnd.Equal(next.EffectiveStart) {
			return fmt.Errorf("%s %q: gap or overlap between versions %d and %d",
				r.kind, businessKey, v.SurrogateKey, next.SurrogateKey)
		}
		if !v.EffectiveEnd.After(v.EffectiveStart) {
			return fmt.Errorf("%s %q: version %d has an empty interval", r.kind, businessKey, v.SurrogateKey)
		}
	}
	return nil
}
