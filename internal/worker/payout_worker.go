// internal/worker/payout_worker.go
package worker

import (
	"context"
	"errors"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/repository"
	"settlement-service/internal/usecase"

	"go.uber.org/zap"
)

const failedBatchSize = 50

// PayoutWorker periodically retries failed payouts and flushes accumulated
// below-threshold earnings that have crossed the minimum. Both passes are
// safe to run concurrently with the API paths: retries are keyed by the
// stored idempotency key and flushes serialize per worker.
type PayoutWorker struct {
	settlementUC *usecase.SettlementUsecase
	payouts      repository.PayoutRepository
	logger       *zap.Logger
	interval     time.Duration
	stopChan     chan bool
}

func NewPayoutWorker(
	settlementUC *usecase.SettlementUsecase,
	payouts repository.PayoutRepository,
	interval time.Duration,
	logger *zap.Logger,
) *PayoutWorker {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &PayoutWorker{
		settlementUC: settlementUC,
		payouts:      payouts,
		logger:       logger,
		interval:     interval,
		stopChan:     make(chan bool),
	}
}

func (pw *PayoutWorker) Start(ctx context.Context) {
	pw.logger.Info("Starting payout worker", zap.Duration("interval", pw.interval))

	ticker := time.NewTicker(pw.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pw.run(ctx)

		case <-pw.stopChan:
			pw.logger.Info("Stopping payout worker")
			return

		case <-ctx.Done():
			pw.logger.Info("Context cancelled, stopping payout worker")
			return
		}
	}
}

func (pw *PayoutWorker) run(ctx context.Context) {
	pw.retryFailed(ctx)
	pw.flushAccumulated(ctx)
}

func (pw *PayoutWorker) retryFailed(ctx context.Context) {
	failed, err := pw.payouts.ListFailed(ctx, failedBatchSize)
	if err != nil {
		pw.logger.Error("Failed to list failed payouts", zap.Error(err))
		return
	}

	for _, p := range failed {
		if _, err := pw.settlementUC.RetryFailedPayout(ctx, p.ID); err != nil {
			// Missing destinations resolve themselves when the worker
			// onboards; everything else is worth a look.
			if errors.Is(err, domain.ErrWorkerPayoutNotConfigured) {
				continue
			}
			pw.logger.Error("Payout retry failed",
				zap.String("payout_id", p.ID),
				zap.String("worker_id", p.WorkerID),
				zap.Error(err))
		}
	}
}

func (pw *PayoutWorker) flushAccumulated(ctx context.Context) {
	workers, err := pw.payouts.WorkersOverThreshold(ctx, domain.MinimumPayoutThreshold)
	if err != nil {
		pw.logger.Error("Failed to list workers over threshold", zap.Error(err))
		return
	}

	for _, workerID := range workers {
		results, err := pw.settlementUC.ProcessAccumulatedPayouts(ctx, workerID)
		if err != nil {
			if errors.Is(err, domain.ErrBelowThreshold) || errors.Is(err, domain.ErrWorkerPayoutNotConfigured) {
				continue
			}
			pw.logger.Error("Accumulated flush failed",
				zap.String("worker_id", workerID),
				zap.Error(err))
			continue
		}
		for _, result := range results {
			pw.logger.Info("Accumulated payouts flushed",
				zap.String("worker_id", workerID),
				zap.String("transfer_id", result.TransferID),
				zap.String("currency", result.Currency),
				zap.Int64("total", result.Total))
		}
	}
}

func (pw *PayoutWorker) Stop() {
	close(pw.stopChan)
}
