//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Portions copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package catalog

import (
	"fmt"
	"sort"
	"sync"
)

var (
	registry = make(map[string]Definition)
	mu       sync.RWMutex
)

// Register adds a table definition to the catalog.
func Register(def Definition) {
	mu.Lock()
	defer mu.Unlock()
	registry[def.Name] = def
}

// Get retrieves a table definition by name.
func Get(name string) (Definition, error) {
	mu.RLock()
	defer mu.RUnlock()

	def, ok := registry[name]
	if !ok {
		return Definition{}, fmt.Errorf("unknown table: %s", name)
	}
	return def, nil
}

// ByTable retrieves a table definition by its warehouse table name.
func ByTable(table string) (Definition, error) {
	mu.RLock()
	defer mu.RUnlock()

	for _, def := range registry {
		if def.Table == table {
			return def, nil
		}
	}
	return Definition{}, fmt.Errorf("unknown warehouse table: %s", table)
}

// List returns all registered table names in load order.
func List() []string {
	defs := All()
	names := make([]string, 0, len(defs))
	for _, def := range defs {
		names = append(names, def.Name)
	}
	return names
}

// All returns all registered definitions in load order: dimensions before
// facts.
func All() []Definition {
	mu.RLock()
	defer mu.RUnlock()

	defs := make([]Definition, 0, len(registry))
	for _, def := range registry {
		defs = append(defs, def)
	}
	sort.Slice(defs, func(i, j int) bool {
		if defs[i].LoadOrder != defs[j].LoadOrder {
			return defs[i].LoadOrder < defs[j].LoadOrder
		}
		return defs[i].Name < defs[j].Name
	})
	return defs
}
