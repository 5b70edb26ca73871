package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/meridian-scm/meridian-scm/internal/app"
	"github.com/meridian-scm/meridian-scm/internal/masterdata/products"
	"github.com/meridian-scm/meridian-scm/internal/masterdata/warehouses"
	"github.com/meridian-scm/meridian-scm/internal/notify"
	"github.com/meridian-scm/meridian-scm/internal/platform/cache"
	"github.com/meridian-scm/meridian-scm/internal/platform/db"
	"github.com/meridian-scm/meridian-scm/internal/shared"
	"github.com/meridian-scm/meridian-scm/internal/transfer"
	"github.com/meridian-scm/meridian-scm/internal/vendors"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Warn("redis unavailable, events disabled", slog.Any("error", err))
		redisClient = nil
	}
	defer func() {
		if redisClient == nil {
			return
		}
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	var queue *asynq.Client
	if redisClient != nil {
		queue = asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		defer func() {
			if err := queue.Close(); err != nil {
				logger.Warn("asynq close", slog.Any("error", err))
			}
		}()
	}

	notifier := notify.New(logger, redisClient, queue)

	transferRepo := transfer.NewRepository(pool)
	transferService := transfer.NewService(transferRepo, notifier)
	transferHandler := transfer.NewHandler(logger, transferService)

	auditLogger := shared.NewAuditLogger(pool)
	idempotency := shared.NewIdempotencyStore(pool)
	vendorService := vendors.NewService(vendors.NewRepository(pool), auditLogger, idempotency)
	vendorHandler := vendors.NewHandler(logger, vendorService)

	warehouseHandler := warehouses.NewHandler(logger, warehouses.NewService(warehouses.NewRepository(pool)))
	productHandler := products.NewHandler(logger, products.NewService(products.NewRepository(pool)))

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		TransferHandler:  transferHandler,
		VendorHandler:    vendorHandler,
		WarehouseHandler: warehouseHandler,
		ProductHandler:   productHandler,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", slog.String("addr", cfg.AppAddr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", slog.Any("error", err))
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server run", slog.Any("error", err))
			os.Exit(1)
		}
	}
}
