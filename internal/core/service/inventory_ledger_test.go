package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rl1809/fulfillment-saga/internal/core/domain"
)

func TestReserve_Success(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"p1": 10})
	ledger := NewInventoryLedger(stock, nil, zaptest.NewLogger(t))

	ok, err := ledger.Reserve(context.Background(), "p1", 3)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 7, stock.available("p1"))
}

func TestReserve_InsufficientLeavesStockUntouched(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"p1": 2})
	ledger := NewInventoryLedger(stock, nil, zaptest.NewLogger(t))

	ok, err := ledger.Reserve(context.Background(), "p1", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 2, stock.available("p1"))
}

func TestReserve_UnknownProduct(t *testing.T) {
	ledger := NewInventoryLedger(newMockStockRepo(map[string]int{}), nil, zaptest.NewLogger(t))

	_, err := ledger.Reserve(context.Background(), "missing", 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReserveRelease_RejectNonPositiveQuantity(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"p1": 5})
	ledger := NewInventoryLedger(stock, nil, zaptest.NewLogger(t))
	ctx := context.Background()

	for _, qty := range []int{0, -1} {
		_, err := ledger.Reserve(ctx, "p1", qty)
		assert.ErrorIs(t, err, domain.ErrValidation)

		err = ledger.Release(ctx, "p1", qty)
		assert.ErrorIs(t, err, domain.ErrValidation)
	}
	assert.Equal(t, 5, stock.available("p1"))
}

func TestRelease_RestoresQuantity(t *testing.T) {
	stock := newMockStockRepo(map[string]int{"p1": 5})
	ledger := NewInventoryLedger(stock, nil, zaptest.NewLogger(t))

	require.NoError(t, ledger.Release(context.Background(), "p1", 4))

	available, err := ledger.Available(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 9, available)
}

func TestReserve_Concurrent(t *testing.T) {
	initialStock := 20
	totalRequests := 50

	stock := newMockStockRepo(map[string]int{"p1": initialStock, "p2": initialStock})
	ledger := NewInventoryLedger(stock, nil, zaptest.NewLogger(t))

	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Reserve(context.Background(), "p1", 1)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if ok {
				successCount.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(initialStock), successCount.Load())
	assert.Equal(t, 0, stock.available("p1"))
	assert.Equal(t, initialStock, stock.available("p2"))
}
