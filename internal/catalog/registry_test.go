//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package catalog

import (
	"testing"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

func TestGet(t *testing.T) {
	known := []string{Dates, Customers, Products, Stores, Sales}

	for _, name := range known {
		t.Run(name, func(t *testing.T) {
			def, err := Get(name)
			if err != nil {
				t.Fatalf("Failed to get table '%s': %v", name, err)
			}
			if def.Name != name {
				t.Errorf("Name mismatch: expected '%s', got '%s'", name, def.Name)
			}
			if def.Description == "" {
				t.Error("Description should not be empty")
			}
			if def.SurrogateKey == "" {
				t.Error("SurrogateKey should not be empty")
			}
			if def.File == "" {
				t.Error("File should not be empty")
			}
		})
	}
}

func TestGetInvalidTable(t *testing.T) {
	if _, err := Get("nonexistent"); err == nil {
		t.Error("Expected error for nonexistent table, got nil")
	}
	if _, err := Get(""); err == nil {
		t.Error("Expected error for empty table name, got nil")
	}
}

func TestListLoadsDimensionsFirst(t *testing.T) {
	names := List()
	if len(names) != 5 {
		t.Fatalf("Expected 5 tables, got %d: %v", len(names), names)
	}
	if names[0] != Dates {
		t.Errorf("Expected dates to load first, got %s", names[0])
	}
	if names[len(names)-1] != Sales {
		t.Errorf("Expected sales to load last, got %s", names[len(names)-1])
	}
}

func TestOnlyCustomersVersioned(t *testing.T) {
	for _, def := range All() {
		want := def.Name == Customers
		if def.Versioned != want {
			t.Errorf("%s: expected Versioned=%t, got %t", def.Name, want, def.Versioned)
		}
		if def.IsFact() != (def.Name == Sales) {
			t.Errorf("%s: unexpected IsFact=%t", def.Name, def.IsFact())
		}
	}
}

func TestByTable(t *testing.T) {
	for _, kind := range model.Kinds {
		def, err := ByTable(kind.Table())
		if err != nil {
			t.Fatalf("Failed to get table for %s: %v", kind, err)
		}
		if def.Kind != kind {
			t.Errorf("Expected kind %s, got %s", kind, def.Kind)
		}
	}

	def, err := ByTable(model.FactTable)
	if err != nil {
		t.Fatalf("Failed to get fact table: %v", err)
	}
	if def.KeySequence() != "fact_sales_key_seq" {
		t.Errorf("Expected fact_sales_key_seq, got %s", def.KeySequence())
	}

	if _, err := ByTable("dim_nonexistent"); err == nil {
		t.Error("Expected error for unknown warehouse table, got nil")
	}
}
