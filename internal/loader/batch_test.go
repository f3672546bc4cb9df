package loader

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

func TestReadTable(t *testing.T) {
	src := "Product_ID, name,category\nP1,Kettle,Kitchen\nP2,\"Mug, large\",Kitchen\n"
	tbl, err := ReadTable(catalog.Products, strings.NewReader(src))
	require.NoError(t, err)

	assert.Equal(t, []string{"product_id", "name", "category"}, tbl.Header)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, 2, tbl.Records[0].Line)
	assert.Equal(t, "Mug, large", tbl.Records[1].Fields.Get("name"))
	assert.Equal(t, 3, tbl.Records[1].Line)
}

func TestReadTableMalformed(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"empty", ""},
		{"missing required column", "product_id,name\nP1,Kettle\n"},
		{"ragged row", "product_id,name,category\nP1,Kettle\n"},
		{"bad quoting", "product_id,name,category\nP1,\"Kettle,Kitchen\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadTable(catalog.Products, strings.NewReader(tt.src))
			assert.ErrorIs(t, err, model.ErrMalformedBatch)
		})
	}
}

func TestReadTableUnknown(t *testing.T) {
	_, err := ReadTable("orders", strings.NewReader("a\n"))
	assert.ErrorIs(t, err, model.ErrMalformedBatch)
}

func TestReadBatchDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("products.csv", "product_id,name,category\nP1,Kettle,Kitchen\n")
	write("stores.csv", "store_id,name,store_type,city\nS1,Main St,Retail,Leeds\n")
	write("facts.csv", "order_id,line_number,transaction_type,customer_ref,product_ref,store_ref,order_timestamp,quantity_ordered,unit_price\n"+
		"1001,1,Sale,C1,P1,S1,2024-03-15T10:30:00Z,3,100\n")
	write("notes.txt", "ignored")

	batch, err := ReadBatchDir(dir)
	require.NoError(t, err)
	assert.Len(t, batch.Tables, 3)
	assert.Nil(t, batch.Table(catalog.Customers))
	assert.NotNil(t, batch.Table(catalog.Sales))
	assert.Equal(t, 3, batch.Rows())
	assert.Equal(t, "facts.csv", FileName(catalog.Sales))
}

func TestReadBatchDirErrors(t *testing.T) {
	_, err := ReadBatchDir(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, model.ErrMalformedBatch)

	_, err = ReadBatchDir(t.TempDir())
	assert.ErrorIs(t, err, model.ErrMalformedBatch)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "customers.csv"), []byte("customer_id\nC1\n"), 0o644))
	_, err = ReadBatchDir(dir)
	assert.ErrorIs(t, err, model.ErrMalformedBatch)
}

func TestWriteTable(t *testing.T) {
	src := "product_id,name,category\nP1,\"Mug, large\",Kitchen\n"
	tbl, err := ReadTable(catalog.Products, strings.NewReader(src))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, tbl))
	assert.Equal(t, src, buf.String())
}

func TestWriteBatchDirReadsBack(t *testing.T) {
	products, err := NewTable(catalog.Products, []dimension.Fields{
		{"product_id": "P1", "name": "Kettle", "category": "Kitchen"},
		{"product_id": "P2", "name": "Mug", "category": "Kitchen", "color": "Red"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"product_id", "name", "category", "color"}, products.Header)

	b := NewBatch("generated")
	b.Add(products)

	dir := filepath.Join(t.TempDir(), "batch")
	require.NoError(t, WriteBatchDir(dir, b))

	read, err := ReadBatchDir(dir)
	require.NoError(t, err)
	tbl := read.Table(catalog.Products)
	require.NotNil(t, tbl)
	require.Len(t, tbl.Records, 2)
	assert.Equal(t, "Red", tbl.Records[1].Fields.Get("color"))
	assert.Equal(t, "", tbl.Records[0].Fields.Get("color"))
	assert.Equal(t, 3, tbl.Records[1].Line)

	_, err = NewTable("orders", nil)
	assert.Error(t, err)
}
