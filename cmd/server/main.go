package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/rl1809/fulfillment-saga/internal/adapter/handler"
	"github.com/rl1809/fulfillment-saga/internal/adapter/messaging"
	"github.com/rl1809/fulfillment-saga/internal/adapter/storage"
	"github.com/rl1809/fulfillment-saga/internal/config"
	"github.com/rl1809/fulfillment-saga/internal/core/domain"
	"github.com/rl1809/fulfillment-saga/internal/core/event"
	"github.com/rl1809/fulfillment-saga/internal/core/service"
	"github.com/rl1809/fulfillment-saga/internal/metrics"
	"github.com/rl1809/fulfillment-saga/internal/observability"
	"github.com/rl1809/fulfillment-saga/internal/port"
)

// store is everything the order and payment modules persist through.
type store interface {
	port.OrderRepository
	port.PaymentRepository
	port.CatalogRepository
	port.CatalogWriter
}

type ledgerStore interface {
	port.StockRepository
	port.IdempotencyRepository
}

var seedCatalog = []domain.Product{
	{ID: "prod-mug", Name: "Ceramic Mug", Category: "kitchen", Price: decimal.RequireFromString("12.50"), Stock: 100, VendorID: "vendor-1", Status: domain.ProductStatusApproved},
	{ID: "prod-lamp", Name: "Desk Lamp", Category: "home", Price: decimal.RequireFromString("39.90"), Stock: 25, VendorID: "vendor-1", Status: domain.ProductStatusApproved},
	{ID: "prod-tee", Name: "Cotton T-Shirt", Category: "apparel", Price: decimal.RequireFromString("20.00"), Stock: 50, VendorID: "vendor-2", Status: domain.ProductStatusApproved},
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(logger *zap.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.InitTracing(ctx, config.ServiceName, config.ServiceVersion, cfg.OtelEndpoint)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	var (
		memory  = storage.NewMemoryStore()
		mysqlDB *sql.DB
		rdb     *redis.Client
	)

	if cfg.NeedsMySQL() {
		mysqlDB, err = openMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return err
		}
		defer mysqlDB.Close()
		logger.Info("connected to mysql")
	}

	var orders store = memory
	if cfg.StorageBackend == config.BackendMySQL {
		orders = storage.NewMySQLAdapter(mysqlDB)
	}

	var ledger ledgerStore = memory
	switch cfg.LedgerBackend {
	case config.BackendMySQL:
		// checkout idempotency keys stay in memory; MySQL has no TTL keyspace
		ledger = struct {
			port.StockRepository
			port.IdempotencyRepository
		}{storage.NewMySQLAdapter(mysqlDB), memory}
	case config.BackendRedis:
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, PoolSize: 100})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
		logger.Info("connected to redis", zap.String("addr", cfg.RedisAddr))
		ledger = storage.NewRedisAdapter(rdb)
	}

	if cfg.SeedProducts {
		if err := seed(ctx, orders, ledger, cfg); err != nil {
			return err
		}
		logger.Info("seeded catalog", zap.Int("products", len(seedCatalog)))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bus := event.NewBus(logger, m)
	inventory := service.NewInventoryLedger(ledger, m, logger)
	orderService := service.NewOrderService(orders, orders, inventory, ledger, bus, m, logger)
	paymentService := service.NewPaymentService(orders, orderService, bus, service.RandomOutcome(cfg.PaymentSuccessRate), m, logger)
	service.RegisterSagaHandlers(bus, orderService, logger)

	if len(cfg.KafkaBrokers) > 0 {
		relay := messaging.NewKafkaRelay(messaging.NewKafkaWriter(cfg.KafkaBrokers, cfg.KafkaTopic, logger), logger)
		defer relay.Close()
		bus.SubscribeAll("relay.kafka", relay.Handle)
		logger.Info("relaying domain events to kafka", zap.Strings("brokers", cfg.KafkaBrokers), zap.String("topic", cfg.KafkaTopic))
	}

	grpcServer := grpc.NewServer()
	handler.NewGRPCHandler(orderService, paymentService, logger).Register(grpcServer)
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return err
	}
	go func() {
		logger.Info("gRPC server listening", zap.String("addr", cfg.GRPCAddr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", zap.Error(err))
		}
	}()

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	httpHandler := handler.NewHTTPHandler(orderService, paymentService, m, logger)
	router.Use(httpHandler.MetricsMiddleware())
	httpHandler.Register(router)
	router.GET("/metrics", gin.WrapH(metrics.Handler(reg)))

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		logger.Error("HTTP server error", zap.Error(err))
	}

	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown incomplete", zap.Error(err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")
	return nil
}

func openMySQL(ctx context.Context, rawDSN string) (*sql.DB, error) {
	dsn, err := storage.NormalizeDSN(rawDSN)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := storage.RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// seed writes the sample catalog and, when stock lives outside the catalog
// store, mirrors the quantities into the ledger.
func seed(ctx context.Context, catalog store, ledger ledgerStore, cfg *config.Config) error {
	for _, p := range seedCatalog {
		if err := catalog.SaveProduct(ctx, p); err != nil {
			return err
		}
		if cfg.LedgerBackend != cfg.StorageBackend {
			if err := ledger.SetStock(ctx, p.ID, p.Stock); err != nil {
				return err
			}
		}
	}
	return nil
}
