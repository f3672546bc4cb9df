//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package dimension

import (
	"errors"
	"fmt"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Set groups the four dimension registries of the sales star schema.
// Only customers keep history.
type Set struct {
	Customers *Registry[model.Customer]
	Products  *Registry[model.Product]
	Stores    *Registry[model.Store]
	Dates     *Registry[model.Date]
}

// NewSet creates empty registries for every dimension.
func NewSet() *Set {
	return &Set{
		Customers: NewRegistry[model.Customer](model.KindCustomer, true),
		Products:  NewRegistry[model.Product](model.KindProduct, false),
		Stores:    NewRegistry[model.Store](model.KindStore, false),
		Dates:     NewRegistry[model.Date](model.KindDate, false),
	}
}

// UseKeys draws the surrogate keys of every registry from ks.
func (s *Set) UseKeys(ks model.KeySource) {
	s.Customers.UseKeys(ks)
	s.Products.UseKeys(ks)
	s.Stores.UseKeys(ks)
	s.Dates.UseKeys(ks)
}

// Resolve looks up a business key in the registry of kind.
func (s *Set) Resolve(kind model.DimensionKind, businessKey string, at time.Time) (int64, error) {
	switch kind {
	case model.KindCustomer:
		return s.Customers.Resolve(businessKey, at)
	case model.KindProduct:
		return s.Products.Resolve(businessKey, at)
	case model.KindStore:
		return s.Stores.Resolve(businessKey, at)
	case model.KindDate:
		return s.Dates.Resolve(businessKey, at)
	default:
		return 0, fmt.Errorf("unknown dimension %q", kind)
	}
}

// Counts returns the number of rows per dimension.
func (s *Set) Counts() map[model.DimensionKind]int {
	return map[model.DimensionKind]int{
		model.KindCustomer: s.Customers.Len(),
		model.KindProduct:  s.Products.Len(),
		model.KindStore:    s.Stores.Len(),
		model.KindDate:     s.Dates.Len(),
	}
}

// Verify checks the history invariants of every registry.
func (s *Set) Verify() error {
	return errors.Join(
		s.Customers.Verify(),
		s.Products.Verify(),
		s.Stores.Verify(),
		s.Dates.Verify(),
	)
}
