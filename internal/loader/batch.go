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
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

// Record is one input row. Line is the 1-based line number in its file,
// counting the header.
type Record struct {
	Line   int
	Fields dimension.Fields
}

// Table is the ordered rows of one batch file.
type Table struct {
	Name    string
	Header  []string
	Records []Record
}

// Batch is a set of tables loaded together, dimensions before facts.
type Batch struct {
	Source string
	Tables map[string]*Table
}

// NewBatch creates an empty batch.
func NewBatch(source string) *Batch {
	return &Batch{Source: source, Tables: make(map[string]*Table)}
}

// Add puts t into the batch, replacing a table of the same name.
func (b *Batch) Add(t *Table) {
	b.Tables[t.Name] = t
}

// Table returns the named table, or nil.
func (b *Batch) Table(name string) *Table {
	return b.Tables[name]
}

// Rows returns the number of records across all tables.
func (b *Batch) Rows() int {
	n := 0
	for _, t := range b.Tables {
		n += len(t.Records)
	}
	return n
}

// FileName returns the batch file name of a table.
func FileName(table string) string {
	def, err := catalog.Get(table)
	if err != nil || def.File == "" {
		return table + ".csv"
	}
	return def.File
}

// ReadBatchDir reads every known table file present in dir. Missing files
// are skipped; a directory without any of them is malformed.
func ReadBatchDir(dir string) (*Batch, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedBatch, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is not a directory", model.ErrMalformedBatch, dir)
	}

	batch := NewBatch(dir)
	for _, def := range catalog.All() {
		path := filepath.Join(dir, FileName(def.Name))
		f, err := os.Open(path)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		t, err := ReadTable(def.Name, f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		batch.Add(t)
	}

	if len(batch.Tables) == 0 {
		return nil, fmt.Errorf("%w: no batch files in %s", model.ErrMalformedBatch, dir)
	}
	return batch, nil
}

// ReadTable reads CSV rows of the named table. The first row is the header;
// it must carry every required column. Every row must have as many fields
// as the header.
func ReadTable(name string, r io.Reader) (*Table, error) {
	def, err := catalog.Get(name)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrMalformedBatch, err)
	}

	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: %s: empty file", model.ErrMalformedBatch, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedBatch, name, err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}
	for _, col := range def.Required {
		if !slices.Contains(header, col) {
			return nil, fmt.Errorf("%w: %s: missing required column %q", model.ErrMalformedBatch, name, col)
		}
	}

	t := &Table{Name: name, Header: header}
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", model.ErrMalformedBatch, name, err)
		}
		line, _ := cr.FieldPos(0)
		fields := make(dimension.Fields, len(header))
		for i, col := range header {
			fields[col] = row[i]
		}
		t.Records = append(t.Records, Record{Line: line, Fields: fields})
	}
	return t, nil
}

// WriteTable writes t as CSV.
func WriteTable(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	row := make([]string, len(t.Header))
	for _, rec := range t.Records {
		for i, col := range t.Header {
			row[i] = rec.Fields[col]
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteBatchDir writes every table of b into dir, creating it if needed.
func WriteBatchDir(dir string, b *Batch) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	for _, t := range b.Tables {
		path := filepath.Join(dir, FileName(t.Name))
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("failed to create %s: %w", path, err)
		}
		werr := WriteTable(f, t)
		cerr := f.Close()
		if err := errors.Join(werr, cerr); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return nil
}

// NewTable builds a table from rows, with the columns of the catalog
// definition that any row sets.
func NewTable(name string, rows []dimension.Fields) (*Table, error) {
	def, err := catalog.Get(name)
	if err != nil {
		return nil, err
	}

	used := make(map[string]bool)
	for _, row := range rows {
		for col, v := range row {
			if v != "" {
				used[col] = true
			}
		}
	}

	t := &Table{Name: name, Header: slices.Clone(def.Required)}
	for _, col := range def.Optional {
		if used[col] {
			t.Header = append(t.Header, col)
		}
	}
	for i, row := range rows {
		t.Records = append(t.Records, Record{Line: i + 2, Fields: row})
	}
	return t, nil
}
