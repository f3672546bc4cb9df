package fact

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgEdge/pgedge-salesdw/internal/model"
)

var boundKeys = model.DimensionKeys{CustomerKey: 1, ProductKey: 2, StoreKey: 3, OrderDateKey: 4}

func salesFact(orderID string, line int, tt model.TransactionType) model.SalesFact {
	return model.SalesFact{
		Keys: boundKeys,
		Input: model.FactInput{
			OrderID:         orderID,
			LineNumber:      line,
			TransactionType: tt,
			QuantityOrdered: 1,
		},
	}
}

func TestInsertAssignsKeys(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	first, err := r.Insert(ctx, salesFact("101", 1, model.Sale))
	require.NoError(t, err)
	second, err := r.Insert(ctx, salesFact("101", 2, model.Sale))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	stored, ok := r.Get(second)
	require.True(t, ok)
	assert.Equal(t, second, stored.SurrogateKey)
	assert.Equal(t, 2, r.Len())
}

func TestInsertDuplicate(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	_, err := r.Insert(ctx, salesFact("101", 1, model.Sale))
	require.NoError(t, err)

	_, err = r.Insert(ctx, salesFact("101", 1, model.Sale))
	assert.ErrorIs(t, err, model.ErrDuplicateFact)

	// A return may share the order line of its sale.
	_, err = r.Insert(ctx, salesFact("101", 1, model.Return))
	assert.NoError(t, err)
	assert.Equal(t, 2, r.Len())
}

func TestInsertRequiresBoundKeys(t *testing.T) {
	r := NewRegistry(nil)

	f := salesFact("101", 1, model.Sale)
	f.Keys.StoreKey = 0
	_, err := r.Insert(context.Background(), f)
	assert.ErrorIs(t, err, model.ErrUnresolvedReference)
	assert.Equal(t, 0, r.Len())
}

func TestConcurrentDuplicateInsertsStoreOnce(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	var accepted, duplicates atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 64; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Insert(ctx, salesFact("777", 1, model.Sale))
			switch {
			case err == nil:
				accepted.Add(1)
			case errors.Is(err, model.ErrDuplicateFact):
				duplicates.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), accepted.Load())
	assert.Equal(t, int64(63), duplicates.Load())
}

type memGuard struct {
	mu      sync.Mutex
	claimed map[model.FactKey]bool
	err     error
}

func (g *memGuard) Claim(_ context.Context, key model.FactKey) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func TestGuardSharedAcrossRegistries(t *testing.T) {
	guard := &memGuard{claimed: map[model.FactKey]bool{}}
	a := NewRegistry(guard)
	b := NewRegistry(guard)
	ctx := context.Background()

	_, err := a.Insert(ctx, salesFact("900", 1, model.Sale))
	require.NoError(t, err)
	_, err = b.Insert(ctx, salesFact("900", 1, model.Sale))
	assert.ErrorIs(t, err, model.ErrDuplicateFact)
	assert.Equal(t, 0, b.Len())
}

func TestGuardFailureIsNotDuplicate(t *testing.T) {
	guard := &memGuard{err: errors.New("connection refused")}
	r := NewRegistry(guard)

	_, err := r.Insert(context.Background(), salesFact("1", 1, model.Sale))
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrDuplicateFact)
	assert.Equal(t, 0, r.Len())
}

func TestRestore(t *testing.T) {
	r := NewRegistry(nil)
	f1 := salesFact("1", 1, model.Sale)
	f1.SurrogateKey = 10
	f2 := salesFact("1", 1, model.Return)
	f2.SurrogateKey = 11
	require.NoError(t, r.Restore([]model.SalesFact{f1, f2}))

	_, err := r.Insert(context.Background(), salesFact("1", 1, model.Sale))
	assert.ErrorIs(t, err, model.ErrDuplicateFact)

	sk, err := r.Insert(context.Background(), salesFact("2", 1, model.Sale))
	require.NoError(t, err)
	assert.Equal(t, int64(12), sk)

	assert.Error(t, r.Restore(nil), "restore into a non-empty registry must fail")
}

type counterKeys struct {
	mu   sync.Mutex
	next int64
}

func (k *counterKeys) NextKey(_ context.Context, table string) (int64, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if table != model.FactTable {
		return 0, errors.New("unexpected table " + table)
	}
	k.next++
	return k.next, nil
}

func TestInsertFuncFailedPersistIsNotRecorded(t *testing.T) {
	r := NewRegistry(nil)
	ctx := context.Background()

	_, err := r.InsertFunc(ctx, salesFact("101", 1, model.Sale), func(context.Context, model.SalesFact) error {
		return errors.New("disk full")
	})
	require.EqualError(t, err, "disk full")
	assert.Zero(t, r.Len())

	var persisted model.SalesFact
	sk, err := r.InsertFunc(ctx, salesFact("101", 1, model.Sale), func(_ context.Context, f model.SalesFact) error {
		persisted = f
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, sk, persisted.SurrogateKey)
	assert.Equal(t, 1, r.Len())
}

func TestUseKeys(t *testing.T) {
	keys := &counterKeys{next: 99}
	a := NewRegistry(nil)
	b := NewRegistry(nil)
	a.UseKeys(keys)
	b.UseKeys(keys)
	ctx := context.Background()

	first, err := a.Insert(ctx, salesFact("1", 1, model.Sale))
	require.NoError(t, err)
	second, err := b.Insert(ctx, salesFact("2", 1, model.Sale))
	require.NoError(t, err)
	assert.Equal(t, int64(100), first)
	assert.Equal(t, int64(101), second)
}
