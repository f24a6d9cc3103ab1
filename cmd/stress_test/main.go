package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rl1809/fulfillment-saga/internal/adapter/storage"
	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/core/event"
	"github.com/rl1809/fulfillment-saga/internal/core/service"
	"github.com/rl1809/fulfillment-saga/internal/port"
)

const (
	productID     = "stress-item"
	initialStock  = 20
	totalRequests = 50
)

type ledgerStore interface {
	port.StockRepository
	port.IdempotencyRepository
}

// Runs concurrent checkouts against one product, cancels every other placed
// order and checks that the ledger ends at initial stock minus live orders.
// Set REDIS_ADDR to exercise the Redis ledger instead of the in-memory one.
func main() {
	ctx := context.Background()
	memory := storage.NewMemoryStore()

	var ledger ledgerStore = memory
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("failed to connect redis: %v", err)
		}
		defer rdb.Close()
		ledger = storage.NewRedisAdapter(rdb)
	}

	err := memory.SaveProduct(ctx, domain.Product{
		ID: productID, Name: "Stress Item", Price: decimal.RequireFromString("9.99"),
		Stock: initialStock, VendorID: "vendor-stress", Status: domain.ProductStatusApproved,
	})
	if err != nil {
		log.Fatalf("failed to seed catalog: %v", err)
	}
	if err := ledger.SetStock(ctx, productID, initialStock); err != nil {
		log.Fatalf("failed to set stock: %v", err)
	}

	logger := zap.NewNop()
	bus := event.NewBus(logger, nil)
	inventory := service.NewInventoryLedger(ledger, nil, logger)
	orders := service.NewOrderService(memory, memory, inventory, ledger, bus, nil, logger)
	service.RegisterSagaHandlers(bus, orders, logger)

	address := domain.ShippingAddress{
		FullName: "Load Tester", AddressLine1: "1 Bench St", City: "Perf", PostalCode: "00000", Country: "US",
	}

	var (
		successCount atomic.Int32
		soldOutCount atomic.Int32
		otherCount   atomic.Int32
		mu           sync.Mutex
		placed       []string
		wg           sync.WaitGroup
	)
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(user int) {
			defer wg.Done()

			order, err := orders.CreateOrder(ctx, service.CreateOrderRequest{
				UserID:          fmt.Sprintf("user-%d", user),
				RequestID:       fmt.Sprintf("stress-%d-%d", start.UnixNano(), user),
				Items:           []service.ItemRequest{{ProductID: productID, Quantity: 1}},
				ShippingAddress: address,
			})
			switch {
			case err == nil:
				successCount.Add(1)
				mu.Lock()
				placed = append(placed, order.ID)
				mu.Unlock()
			case errors.Is(err, domain.ErrInsufficientStock):
				soldOutCount.Add(1)
			default:
				otherCount.Add(1)
				log.Printf("user-%d: unexpected error: %v", user, err)
			}
		}(i)
	}
	wg.Wait()
	elapsed := time.Since(start)

	var cancelled int
	for i, id := range placed {
		if i%2 != 0 {
			continue
		}
		if err := orders.CancelOrder(ctx, id, "stress cancel"); err != nil {
			log.Printf("cancel %s failed: %v", id, err)
			continue
		}
		cancelled++
	}

	inv, err := ledger.GetStock(ctx, productID)
	if err != nil {
		log.Fatalf("failed to read stock: %v", err)
	}

	success := int(successCount.Load())
	live := success - cancelled

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Placed:           %d\n", success)
	fmt.Printf("Sold Out:         %d\n", soldOutCount.Load())
	fmt.Printf("Other Errors:     %d\n", otherCount.Load())
	fmt.Printf("Cancelled:        %d\n", cancelled)
	fmt.Printf("Checkout Time:    %v\n", elapsed)
	fmt.Printf("Final Stock:      %d\n", inv.Available)
	fmt.Println("==========================================")

	failed := false
	if success != initialStock {
		fmt.Printf("FAIL: expected %d placed orders, got %d\n", initialStock, success)
		failed = true
	}
	if inv.Available != initialStock-live {
		fmt.Printf("FAIL: expected stock %d, got %d\n", initialStock-live, inv.Available)
		failed = true
	}
	if failed {
		os.Exit(1)
	}
	fmt.Println("PASS: stock conserved across checkouts and cancellations")
}
