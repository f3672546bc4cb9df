//-------------------------------------------------------------------------
//
// pgEdge Sales Warehouse
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

package loader

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Outcome is what happened to one input row.
type Outcome string

const (
	// Accepted rows were registered and written to the sink.
	Accepted Outcome = "accepted"
	// Rejected rows are unusable as supplied: unparseable or invalid
	// attributes, or duplicates.
	Rejected Outcome = "rejected"
	// Quarantined facts parsed but failed semantic validation.
	Quarantined Outcome = "quarantined"
	// Retry facts reference dimensions that are not loaded yet. Rows the
	// sink failed to store are also marked Retry.
	Retry Outcome = "retry"
)

// Outcomes lists every outcome in report order.
var Outcomes = []Outcome{Accepted, Rejected, Quarantined, Retry}

// RowResult records the handling of one input row.
type RowResult struct {
	Table        string   `json:"table"`
	Line         int      `json:"line,omitempty"`
	Key          string   `json:"key,omitempty"`
	Outcome      Outcome  `json:"outcome"`
	Action       string   `json:"action,omitempty"`
	SurrogateKey int64    `json:"surrogate_key,omitempty"`
	Errors       []string `json:"errors,omitempty"`
}

// Report summarises a batch load. It is safe for concurrent use.
type Report struct {
	BatchID    string                     `json:"batch_id"`
	Source     string                     `json:"source,omitempty"`
	StartedAt  time.Time                  `json:"started_at"`
	FinishedAt time.Time                  `json:"finished_at"`
	Counts     map[string]map[Outcome]int `json:"counts"`
	Rows       []RowResult                `json:"rows"`

	mu sync.Mutex
}

// NewReport starts a report with a fresh batch id.
func NewReport(source string) *Report {
	return &Report{
		BatchID:   uuid.NewString(),
		Source:    source,
		StartedAt: time.Now().UTC(),
		Counts:    make(map[string]map[Outcome]int),
	}
}

// Add records a row result.
func (r *Report) Add(res RowResult) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Rows = append(r.Rows, res)
	counts, ok := r.Counts[res.Table]
	if !ok {
		counts = make(map[Outcome]int)
		r.Counts[res.Table] = counts
	}
	counts[res.Outcome]++
}

// Finish stamps the end time.
func (r *Report) Finish() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.FinishedAt = time.Now().UTC()
}

// Count returns the number of rows of table with outcome o. An empty table
// counts across all tables.
func (r *Report) Count(table string, o Outcome) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if table != "" {
		return r.Counts[table][o]
	}
	n := 0
	for _, counts := range r.Counts {
		n += counts[o]
	}
	return n
}

// Total returns the number of recorded rows.
func (r *Report) Total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Rows)
}

// Duration returns the load time.
func (r *Report) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// WriteJSON writes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// WriteFile writes the report to path.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report file: %w", err)
	}
	if err := r.WriteJSON(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}
