package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"storefront/internal/config"
	"storefront/internal/database"
	"storefront/internal/handlers"
	"storefront/internal/idempotency"
	"storefront/internal/logging"
	"storefront/internal/memstore"
	"storefront/internal/metrics"
	"storefront/internal/notify"
	"storefront/internal/orders"
)

// backend bundles the storage side chosen by STORE_DRIVER.
type backend struct {
	ledger        orders.Ledger
	store         orders.Store
	tx            orders.Transactor
	transactional bool
	ping          func(ctx context.Context) error
	close         func(ctx context.Context) error
}

func openBackend(ctx context.Context, cfg config.Config, logger *zap.Logger) (*backend, error) {
	switch cfg.StoreDriver {
	case config.DriverMemory:
		store := memstore.New()
		logger.Warn("using in-memory store, data is lost on restart")
		return &backend{
			ledger:        store,
			store:         store,
			tx:            store,
			transactional: store.Transactional(),
			close:         func(context.Context) error { return nil },
		}, nil

	case config.DriverMongo:
		client, err := database.Connect(ctx, cfg.MongoURI)
		if err != nil {
			return nil, err
		}
		db := client.Database(cfg.DBName)
		logger.Info("MongoDB connected", zap.String("db", db.Name()))

		if err := database.EnsureProductIndexes(db, logger); err != nil {
			logger.Warn("product index warning", zap.Error(err))
		}
		if err := database.EnsureOrderIndexes(db, logger); err != nil {
			logger.Warn("order index warning", zap.Error(err))
		}

		transactional, err := database.SupportsTransactions(ctx, client)
		if err != nil {
			logger.Warn("transaction capability probe failed, assuming transactions", zap.Error(err))
			transactional = true
		}

		return &backend{
			ledger:        database.NewProductLedger(db),
			store:         database.NewOrderRepository(db),
			tx:            database.NewTransactor(client),
			transactional: transactional,
			ping:          func(ctx context.Context) error { return database.Ping(ctx, client) },
			close:         client.Disconnect,
		}, nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

func openIdempotency(ctx context.Context, cfg config.Config, logger *zap.Logger) (idempotency.Store, func() error) {
	if cfg.RedisAddr == "" {
		logger.Info("REDIS_ADDR not set, idempotency keys kept in process")
		return idempotency.NewMemoryStore(idempotency.WithTTL(cfg.IdempotencyTTL)), func() error { return nil }
	}

	store := idempotency.NewRedisStore(idempotency.NewRedisClient(idempotency.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}), idempotency.WithTTL(cfg.IdempotencyTTL))

	if err := store.Ping(ctx); err != nil {
		logger.Warn("Redis connection failed", zap.Error(err))
	} else {
		logger.Info("Redis connected successfully", zap.String("addr", cfg.RedisAddr))
	}
	return store, store.Close
}

func newSender(cfg config.Config, logger *zap.Logger) notify.Sender {
	if cfg.SMTPHost == "" {
		return notify.LogSender{Logger: logger}
	}
	return notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUser,
		Password: cfg.SMTPPass,
		From:     cfg.MailFrom,
	})
}

func main() {
	config.Load()
	cfg := config.AppEnv

	logger, err := logging.New(cfg.LogLevel, cfg.LogEncoding)
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	if cfg.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}

	ctx := context.Background()

	be, err := openBackend(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.String("driver", cfg.StoreDriver), zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrders(reg)

	committer := orders.NewFallbackCommitter(
		orders.NewAtomicCommitter(be.tx, be.ledger, logger),
		orders.NewSequentialCommitter(be.ledger, logger, orderMetrics),
		be.transactional,
		logger,
	)
	logger.Info("order commit mode selected", zap.String("mode", committer.Mode()))

	dispatcher := notify.NewDispatcher(newSender(cfg, logger), cfg.NotifyTimeout, logger)
	svc := orders.NewService(be.ledger, be.store, committer, dispatcher, logger, orders.WithMetrics(orderMetrics))

	idem, closeIdem := openIdempotency(ctx, cfg, logger)

	gin.SetMode(gin.ReleaseMode)
	router := handlers.NewRouter(handlers.RouterConfig{
		Orders:         svc,
		Idempotency:    idem,
		JWTSecret:      cfg.JWTSecret,
		RequestTimeout: cfg.RequestTimeout,
		Health:         handlers.HealthStatus{Driver: cfg.StoreDriver, Ping: be.ping, Mode: committer.Mode},
		HTTPMetrics:    metrics.NewHTTP(reg),
		Gatherer:       reg,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting storefront", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-serverErr:
		logger.Error("Server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown failed", zap.Error(err))
	}
	if err := dispatcher.Wait(shutdownCtx); err != nil {
		logger.Warn("pending order confirmations dropped", zap.Error(err))
	}
	if err := closeIdem(); err != nil {
		logger.Warn("Failed to close Redis", zap.Error(err))
	}
	if err := be.close(shutdownCtx); err != nil {
		logger.Warn("Failed to close store", zap.Error(err))
	}

	logger.Info("Service stopped")
}
