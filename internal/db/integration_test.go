//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

//go:build integration

// Run with: go test -tags=integration ./internal/db/...
// Set PGEDGE_TEST_CONN to override the connection string.

package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/fact"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/testutil"
)

var batchFiles = map[string]string{
	"dates.csv": "date\n2024-03-15\n2024-07-04\n",
	"customers.csv": "customer_id,first_name,last_name,segment,as_of\n" +
		"C1,Ada,Lovelace,Standard,2024-01-01\n" +
		"C1,Ada,Lovelace,Premium,2024-06-01\n",
	"products.csv": "product_id,name,category\nP1,Kettle,Kitchen\n",
	"stores.csv":   "store_id,name,store_type,city,square_feet\nS1,Main St,Retail,Leeds,1200\n",
	"facts.csv": "order_id,line_number,transaction_type,customer_ref,product_ref,store_ref,order_timestamp,quantity_ordered,quantity_returned,unit_price,unit_cost,discount_amount\n" +
		"1001,1,Sale,C1,P1,S1,2024-03-15T10:30:00Z,3,,100,60,10\n" +
		"1002,1,Sale,C1,P1,S1,2024-07-04T10:30:00Z,2,1,19.99,,0\n",
}

func TestLoadAndHydrate(t *testing.T) {
	baseConn := testutil.SkipIfNoPostgres(t)
	connStr := testutil.CreateTestDB(t, baseConn, "load")
	pool := testutil.ConnectTestDB(t, connStr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.CreateSchema(ctx, pool); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, batchFiles)
	batch, err := loader.ReadBatchDir(dir)
	if err != nil {
		t.Fatalf("ReadBatchDir failed: %v", err)
	}

	first := loader.New(dimension.NewSet(), fact.NewRegistry(nil), db.NewSink(pool), loader.DefaultOptions())
	report, err := first.LoadBatch(ctx, batch)
	if err != nil {
		t.Fatalf("LoadBatch failed: %v", err)
	}
	if got := report.Count(catalog.Sales, loader.Accepted); got != 2 {
		t.Fatalf("Expected 2 accepted facts, got %d: %+v", got, report.Rows)
	}

	var current, closed int
	err = pool.QueryRow(ctx, `
        SELECT COUNT(*) FILTER (WHERE is_current), COUNT(*) FILTER (WHERE NOT is_current)
        FROM dim_customer`).Scan(&current, &closed)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if current != 1 || closed != 1 {
		t.Errorf("Expected 1 current and 1 closed customer row, got %d and %d", current, closed)
	}

	lastBatch, err := db.GetMetadataValue(ctx, pool, db.MetaLastBatchID)
	if err != nil {
		t.Fatalf("GetMetadataValue failed: %v", err)
	}
	if lastBatch != report.BatchID {
		t.Errorf("Expected last batch %s, got %s", report.BatchID, lastBatch)
	}

	// A second process continues from the stored state.
	dims := dimension.NewSet()
	facts := fact.NewRegistry(nil)
	if err := db.LoadState(ctx, pool, dims, facts); err != nil {
		t.Fatalf("LoadState failed: %v", err)
	}
	if facts.Len() != 2 {
		t.Errorf("Expected 2 restored facts, got %d", facts.Len())
	}
	if err := dims.Verify(); err != nil {
		t.Errorf("Restored dimensions are inconsistent: %v", err)
	}
	restored := facts.All()
	if got := restored[0].Measures.NetSales.String(); got != "290" {
		t.Errorf("Expected restored net sales 290, got %s", got)
	}

	second := loader.New(dims, facts, db.NewSink(pool), loader.DefaultOptions())
	report, err = second.LoadBatch(ctx, batch)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	if got := report.Count(catalog.Sales, loader.Rejected); got != 2 {
		t.Errorf("Expected reloaded facts rejected as duplicates, got %d", got)
	}
	if got := report.Count(catalog.Customers, loader.Accepted); got != 2 {
		t.Errorf("Expected customer rows accepted unchanged, got %d", got)
	}

	for _, q := range db.Queries() {
		if _, err := db.RunQuery(ctx, pool, q.Name); err != nil {
			t.Errorf("Query %s failed: %v", q.Name, err)
		}
	}
}

func TestSinkKeepsSurrogateKeysOwned(t *testing.T) {
	baseConn := testutil.SkipIfNoPostgres(t)
	connStr := testutil.CreateTestDB(t, baseConn, "keys")
	pool := testutil.ConnectTestDB(t, connStr)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := db.CreateSchema(ctx, pool); err != nil {
		t.Fatalf("CreateSchema failed: %v", err)
	}
	if has, err := db.HasRows(ctx, pool); err != nil || has {
		t.Fatalf("Expected an empty warehouse, got has=%t err=%v", has, err)
	}

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, batchFiles)
	batch, err := loader.ReadBatchDir(dir)
	if err != nil {
		t.Fatalf("ReadBatchDir failed: %v", err)
	}
	sink := db.NewSink(pool)
	if _, err := loader.New(dimension.NewSet(), fact.NewRegistry(nil), sink, loader.DefaultOptions()).
		LoadBatch(ctx, batch); err != nil {
		t.Fatalf("LoadBatch failed: %v", err)
	}
	if has, err := db.HasRows(ctx, pool); err != nil || !has {
		t.Fatalf("Expected stored rows, got has=%t err=%v", has, err)
	}

	// A loader that restored nothing still draws fresh keys.
	fresh := dimension.NewSet()
	loader.New(fresh, fact.NewRegistry(nil), sink, loader.DefaultOptions())
	sk, err := fresh.Customers.Register("C9", model.Customer{FirstName: "Grace", LastName: "Hopper", Segment: "Standard"},
		time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if sk <= 2 {
		t.Errorf("Expected a key past the stored customers, got %d", sk)
	}
	c9, _ := fresh.Customers.Current("C9")
	if err := sink.WriteCustomer(ctx, c9); err != nil {
		t.Fatalf("WriteCustomer failed: %v", err)
	}

	foreign := model.Version[model.Customer]{
		SurrogateKey:   1,
		BusinessKey:    "C9",
		Attributes:     model.Customer{FirstName: "Grace", LastName: "Hopper", Segment: "Standard"},
		EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCurrent:      true,
	}
	if err := sink.WriteCustomer(ctx, foreign); !errors.Is(err, model.ErrSurrogateKeyConflict) {
		t.Errorf("Expected ErrSurrogateKeyConflict, got %v", err)
	}

	// The close of C1's current version is undone when its pair fails.
	var current model.Version[model.Customer]
	err = pool.QueryRow(ctx, `
        SELECT customer_key, effective_start FROM dim_customer
        WHERE customer_id = 'C1' AND is_current`).Scan(&current.SurrogateKey, &current.EffectiveStart)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	end := time.Date(2024, 9, 1, 0, 0, 0, 0, time.UTC)
	closed := model.Version[model.Customer]{
		SurrogateKey:   current.SurrogateKey,
		BusinessKey:    "C1",
		Attributes:     model.Customer{FirstName: "Ada", LastName: "Lovelace", Segment: "Premium"},
		EffectiveStart: current.EffectiveStart,
		EffectiveEnd:   &end,
	}
	opened := c9
	opened.BusinessKey = "C1"
	opened.EffectiveStart = end
	if err := sink.WriteCustomer(ctx, closed, opened); !errors.Is(err, model.ErrSurrogateKeyConflict) {
		t.Errorf("Expected ErrSurrogateKeyConflict, got %v", err)
	}

	var isCurrent bool
	if err := pool.QueryRow(ctx, `SELECT is_current FROM dim_customer WHERE customer_key = $1`,
		current.SurrogateKey).Scan(&isCurrent); err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if !isCurrent {
		t.Error("Expected the current C1 version to stay open")
	}
}
