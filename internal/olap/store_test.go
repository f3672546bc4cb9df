package olap_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesdw/internal/catalog"
	"github.com/pgEdge/pgedge-salesdw/internal/db"
	"github.com/pgEdge/pgedge-salesdw/internal/dimension"
	"github.com/pgEdge/pgedge-salesdw/internal/fact"
	"github.com/pgEdge/pgedge-salesdw/internal/loader"
	"github.com/pgEdge/pgedge-salesdw/internal/model"
	"github.com/pgEdge/pgedge-salesdw/internal/olap"
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

func loadBatch(t *testing.T, store *olap.Store) *loader.Report {
	t.Helper()

	dir := t.TempDir()
	testutil.WriteFiles(t, dir, batchFiles)
	batch, err := loader.ReadBatchDir(dir)
	require.NoError(t, err)

	l := loader.New(dimension.NewSet(), fact.NewRegistry(nil), store, loader.DefaultOptions())
	report, err := l.LoadBatch(context.Background(), batch)
	require.NoError(t, err)
	return report
}

func TestStoreLoadsStarSchema(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := olap.New(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	report := loadBatch(t, store)
	assert.Equal(t, 2, report.Count(catalog.Sales, loader.Accepted))

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["dim_date"])
	assert.Equal(t, int64(2), counts["dim_customer"])
	assert.Equal(t, int64(1), counts["dim_product"])
	assert.Equal(t, int64(1), counts["dim_store"])
	assert.Equal(t, int64(2), counts["fact_sales"])

	var current int
	require.NoError(t, store.DB().GetContext(ctx, &current,
		"SELECT COUNT(*) FROM dim_customer WHERE is_current"))
	assert.Equal(t, 1, current)

	// Each fact points at the customer version in effect on its order date.
	var segments []string
	require.NoError(t, store.DB().SelectContext(ctx, &segments, `
        SELECT c.segment FROM fact_sales f
        JOIN dim_customer c ON f.customer_key = c.customer_key
        ORDER BY f.order_id`))
	assert.Equal(t, []string{"Standard", "Premium"}, segments)

	var batches int
	require.NoError(t, store.DB().GetContext(ctx, &batches, "SELECT COUNT(*) FROM salesdw_batches"))
	assert.Equal(t, 1, batches)
}

func TestStoreRunsSampleQueries(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := olap.New(ctx, "")
	require.NoError(t, err)
	defer store.Close()

	loadBatch(t, store)

	for _, q := range db.Queries() {
		res, err := store.RunQuery(ctx, q.Name)
		require.NoError(t, err, q.Name)
		assert.NotEmpty(t, res.Columns, q.Name)
	}

	res, err := store.RunQuery(ctx, "segment_migrations")
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, []string{"Standard", "Premium", "1"}, res.Rows[0])

	_, err = store.RunQuery(ctx, "no_such_query")
	assert.Error(t, err)
}

func TestStoreRestoresState(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "sales.duckdb")
	store, err := olap.New(ctx, path)
	require.NoError(t, err)
	loadBatch(t, store)
	require.NoError(t, store.Close())

	store, err = olap.New(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	dims := dimension.NewSet()
	facts := fact.NewRegistry(nil)
	require.NoError(t, store.LoadState(ctx, dims, facts))

	assert.Equal(t, 2, dims.Customers.Len())
	assert.Equal(t, 2, dims.Dates.Len())
	assert.Equal(t, 2, facts.Len())
	require.NoError(t, dims.Verify())

	key, err := dims.Customers.Resolve("C1", time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC))
	require.NoError(t, err)
	first, ok := dims.Customers.Get(key)
	require.True(t, ok)
	assert.Equal(t, "Standard", first.Attributes.Segment)

	// Reloading the same files through the restored registries adds nothing.
	l := loader.New(dims, facts, store, loader.DefaultOptions())
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, batchFiles)
	batch, err := loader.ReadBatchDir(dir)
	require.NoError(t, err)
	report, err := l.LoadBatch(ctx, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Count(catalog.Sales, loader.Accepted))
	assert.Equal(t, 2, report.Count(catalog.Sales, loader.Rejected))

	counts, err := store.TableCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), counts["dim_customer"])
	assert.Equal(t, int64(2), counts["fact_sales"])
}

func customerVersion(sk int64, id, segment string) model.Version[model.Customer] {
	return model.Version[model.Customer]{
		SurrogateKey:   sk,
		BusinessKey:    id,
		Attributes:     model.Customer{FirstName: "Ada", LastName: "Lovelace", Segment: segment},
		EffectiveStart: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		IsCurrent:      true,
	}
}

func customerIDs(t *testing.T, store *olap.Store) map[int64]string {
	t.Helper()
	var rows []struct {
		Key int64  `db:"customer_key"`
		ID  string `db:"customer_id"`
	}
	require.NoError(t, store.DB().Select(&rows,
		"SELECT customer_key, customer_id FROM dim_customer"))
	ids := make(map[int64]string, len(rows))
	for _, r := range rows {
		ids[r.Key] = r.ID
	}
	return ids
}

func TestStoreKeysSurviveUnhydratedLoader(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	path := filepath.Join(t.TempDir(), "sales.duckdb")
	store, err := olap.New(ctx, path)
	require.NoError(t, err)
	loadBatch(t, store)
	require.NoError(t, store.Close())

	store, err = olap.New(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	// Fresh registries: nothing restored from the file.
	dir := t.TempDir()
	testutil.WriteFiles(t, dir, map[string]string{
		"customers.csv": "customer_id,first_name,last_name,segment,as_of\nC9,Grace,Hopper,Standard,2024-01-01\n",
	})
	batch, err := loader.ReadBatchDir(dir)
	require.NoError(t, err)
	l := loader.New(dimension.NewSet(), fact.NewRegistry(nil), store, loader.DefaultOptions())
	report, err := l.LoadBatch(ctx, batch)
	require.NoError(t, err)
	require.Len(t, report.Rows, 1)
	assert.Equal(t, int64(3), report.Rows[0].SurrogateKey)

	assert.Equal(t, map[int64]string{1: "C1", 2: "C1", 3: "C9"}, customerIDs(t, store))

	var ids []string
	require.NoError(t, store.DB().SelectContext(ctx, &ids, `
        SELECT c.customer_id FROM fact_sales f
        JOIN dim_customer c ON f.customer_key = c.customer_key
        ORDER BY f.order_id`))
	assert.Equal(t, []string{"C1", "C1"}, ids)
}

func TestStoreRefusesRowOfAnotherBusinessKey(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := olap.New(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.WriteCustomer(ctx, customerVersion(1, "C1", "Standard")))
	require.NoError(t, store.WriteCustomer(ctx, customerVersion(1, "C1", "Premium")))

	err = store.WriteCustomer(ctx, customerVersion(1, "C9", "Standard"))
	require.ErrorIs(t, err, model.ErrSurrogateKeyConflict)
	assert.Equal(t, map[int64]string{1: "C1"}, customerIDs(t, store))
}

func TestStoreWritesVersionPairAtomically(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := olap.New(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.WriteCustomer(ctx, customerVersion(1, "C1", "Standard")))
	require.NoError(t, store.WriteCustomer(ctx, customerVersion(2, "C7", "Standard")))

	// The opened version collides with C7, so the close must not stick.
	end := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	closed := customerVersion(1, "C1", "Standard")
	closed.EffectiveEnd = &end
	closed.IsCurrent = false
	opened := customerVersion(2, "C1", "Premium")
	opened.EffectiveStart = end

	err = store.WriteCustomer(ctx, closed, opened)
	require.ErrorIs(t, err, model.ErrSurrogateKeyConflict)

	var row struct {
		IsCurrent    bool       `db:"is_current"`
		EffectiveEnd *time.Time `db:"effective_end"`
	}
	require.NoError(t, store.DB().GetContext(ctx, &row,
		"SELECT is_current, effective_end FROM dim_customer WHERE customer_key = 1"))
	assert.True(t, row.IsCurrent)
	assert.Nil(t, row.EffectiveEnd)
}

func TestStoreNextKeyContinuesFromStoredRows(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := olap.New(ctx, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	has, err := store.HasRows(ctx)
	require.NoError(t, err)
	assert.False(t, has)

	require.NoError(t, store.WriteCustomer(ctx, customerVersion(41, "C1", "Standard")))

	has, err = store.HasRows(ctx)
	require.NoError(t, err)
	assert.True(t, has)

	sk, err := store.NextKey(ctx, "dim_customer")
	require.NoError(t, err)
	assert.Equal(t, int64(42), sk)
	sk, err = store.NextKey(ctx, "dim_customer")
	require.NoError(t, err)
	assert.Equal(t, int64(43), sk)

	sk, err = store.NextKey(ctx, "fact_sales")
	require.NoError(t, err)
	assert.Equal(t, int64(1), sk)

	_, err = store.NextKey(ctx, "dim_unknown")
	assert.Error(t, err)
}
