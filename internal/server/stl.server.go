package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"settlement-service/internal/config"
	hrest "settlement-service/internal/handler/rest"
	"settlement-service/internal/idempotency"
	"settlement-service/internal/provider"
	"settlement-service/internal/provider/paypal"
	"settlement-service/internal/provider/stripeconnect"
	"settlement-service/internal/pub"
	"settlement-service/internal/repository"
	"settlement-service/internal/router"
	"settlement-service/internal/usecase"
	"settlement-service/internal/worker"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyCacheSize = 8192
	idempotencyCacheTTL  = 12 * time.Hour
	janitorInterval      = 10 * time.Minute
	payoutWorkerInterval = 15 * time.Minute
)

// Run wires the full service and blocks until ctx is cancelled or the HTTP
// server fails.
func Run(ctx context.Context, cfg config.AppConfig) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	defer logger.Sync()

	// --- DB connection ---
	dbpool, err := config.ConnectDB()
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer dbpool.Close()

	// --- Redis client ---
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPass,
		DB:       0,
	})
	defer rdb.Close()

	// --- Repositories ---
	engagementRepo := repository.NewEngagementRepo(dbpool)
	escrowRepo := repository.NewEscrowRepo(dbpool)
	transactionRepo := repository.NewTransactionRepo(dbpool)
	payoutRepo := repository.NewPayoutRepo(dbpool)
	accountRepo := repository.NewPayoutAccountRepo(dbpool)
	store := repository.NewSettlementStore(dbpool)

	// --- Payment processor ---
	processor, err := buildProcessor(cfg)
	if err != nil {
		return err
	}
	logger.Info("payment processor configured", zap.String("provider", processor.Name()))

	// --- Event publisher ---
	publisher := pub.NewSettlementEventPublisher(cfg.KafkaBrokers, logger)
	defer publisher.Close()

	// --- Usecases ---
	settlementUC := usecase.NewSettlementUsecase(
		engagementRepo, escrowRepo, transactionRepo, payoutRepo, accountRepo,
		store, processor, publisher, rdb, logger,
	)
	engagementUC := usecase.NewEngagementUsecase(
		engagementRepo, escrowRepo, transactionRepo, settlementUC, processor, logger,
	)

	// --- Idempotency ledger ---
	cache := idempotency.NewCache(idempotencyCacheSize, idempotencyCacheTTL)
	cache.StartJanitor(ctx, janitorInterval)
	ledger := idempotency.NewLedger(cache, idempotency.NewTransactionChecker(transactionRepo), logger)

	// --- Background worker ---
	payoutWorker := worker.NewPayoutWorker(settlementUC, payoutRepo, payoutWorkerInterval, logger)
	go payoutWorker.Start(ctx)
	defer payoutWorker.Stop()

	// --- Handlers and router ---
	restHandler := hrest.NewSettlementRestHandler(engagementUC, settlementUC, logger)
	webhookHandler := hrest.NewWebhookHandler(settlementUC, ledger, cfg.WebhookSecret, logger)
	handler := router.SetupRoutes(restHandler, webhookHandler, cfg.AdminToken, logger)

	srv := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Must outlive the longest route budget or slow processor calls are
		// cut off at the connection.
		WriteTimeout: router.ProcessorCallTimeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Settlement HTTP server listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		return err
	}
}

func buildProcessor(cfg config.AppConfig) (provider.PaymentProcessor, error) {
	switch cfg.Provider {
	case "paypal":
		return paypal.NewPaypalProvider(cfg.PaypalClientID, cfg.PaypalSecret, cfg.PaypalLive)
	case "stripe", "":
		return stripeconnect.NewStripeProvider(stripeconnect.NewStripeClient(cfg.StripeBaseURL, cfg.StripeSecretKey)), nil
	}
	return nil, fmt.Errorf("unknown payment provider: %q", cfg.Provider)
}
