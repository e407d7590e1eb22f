package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"settlement-service/internal/domain"
	"settlement-service/internal/provider"
	"settlement-service/internal/pub"
	"settlement-service/internal/repository"
	"settlement-service/pkg/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	destinationCacheTTL = 5 * time.Minute
	destinationCacheKey = "payout:dest:"
)

// EventPublisher is the notify(user, event) sink. Delivery is owned by the
// notification layer; the engine only emits.
type EventPublisher interface {
	Publish(ctx context.Context, event pub.SettlementEvent) error
}

// ReleaseResult is the structured outcome of a release. Queueing (threshold
// or missing destination) is a success for the client-facing action; only a
// transfer failure is surfaced as an error.
type ReleaseResult struct {
	Released     bool
	PayoutQueued bool
	QueueReason  domain.PendingReason
	Payout       *domain.Payout
}

// AccumulatedResult describes one consolidated transfer that closed a batch
// of below-threshold payouts in a single currency.
type AccumulatedResult struct {
	TransferID string
	Total      int64
	Currency   string
	Closed     []*domain.Payout
}

// SettlementUsecase orchestrates fund release, refund, and payout transfers
// against the external processor. Per-engagement work is serialized through
// an in-process keyed mutex; the escrow row lock in the store is the
// cross-process backstop.
type SettlementUsecase struct {
	engagements  repository.EngagementRepository
	escrows      repository.EscrowRepository
	transactions repository.TransactionRepository
	payouts      repository.PayoutRepository
	accounts     repository.PayoutAccountRepository
	store        repository.SettlementStore

	processor provider.PaymentProcessor
	publisher EventPublisher

	redisClient *redis.Client
	refs        *utils.ReferenceGenerator
	logger      *zap.Logger
	locks       *keyedMutex
}

func NewSettlementUsecase(
	engagements repository.EngagementRepository,
	escrows repository.EscrowRepository,
	transactions repository.TransactionRepository,
	payouts repository.PayoutRepository,
	accounts repository.PayoutAccountRepository,
	store repository.SettlementStore,
	processor provider.PaymentProcessor,
	publisher EventPublisher,
	redisClient *redis.Client,
	logger *zap.Logger,
) *SettlementUsecase {
	return &SettlementUsecase{
		engagements:  engagements,
		escrows:      escrows,
		transactions: transactions,
		payouts:      payouts,
		accounts:     accounts,
		store:        store,
		processor:    processor,
		publisher:    publisher,
		redisClient:  redisClient,
		refs:         utils.NewReferenceGenerator(),
		logger:       logger,
		locks:        newKeyedMutex(),
	}
}

// FundEscrow marks the engagement's escrow FUNDED and writes the DEPOSIT row,
// atomically. chargeRef is the processor charge id; a duplicate funding event
// loses on the (DEPOSIT, chargeRef) unique index and comes back as
// ErrDuplicateReference.
func (uc *SettlementUsecase) FundEscrow(ctx context.Context, engagementID string, amount int64, chargeRef string) (*domain.Escrow, error) {
	uc.locks.Lock(engagementID)
	defer uc.locks.Unlock(engagementID)

	eng, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("engagement %s: %w", engagementID, err)
	}

	escrow, err := uc.store.FundEscrow(ctx, repository.FundParams{
		EscrowID:        uc.refs.Escrow(),
		EngagementID:    engagementID,
		ClientID:        eng.ClientID,
		Amount:          amount,
		Currency:        eng.Currency,
		ChargeReference: chargeRef,
		TransactionID:   uc.refs.Transaction(),
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("escrow funded",
		zap.String("engagement_id", engagementID),
		zap.Int64("amount", amount),
		zap.String("charge_ref", chargeRef))

	uc.publish(ctx, pub.SettlementEvent{
		EventType:    pub.EventEscrowFunded,
		EngagementID: engagementID,
		ClientID:     eng.ClientID,
		WorkerID:     eng.WorkerID,
		Amount:       amount,
		Currency:     eng.Currency,
	})
	return escrow, nil
}

// ReleasePayment settles a client-approved engagement. The external transfer
// is attempted before the local release commits: a failed call must never
// leave the system believing money moved. Queued outcomes (below threshold,
// destination not configured) commit the release locally without calling the
// processor; the worker's money is tracked on PENDING payout rows.
func (uc *SettlementUsecase) ReleasePayment(ctx context.Context, engagementID string) (*ReleaseResult, error) {
	uc.locks.Lock(engagementID)
	defer uc.locks.Unlock(engagementID)

	eng, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("engagement %s: %w", engagementID, err)
	}

	// Defense in depth: the caller validated the lifecycle state, the escrow
	// status is re-checked here and again under the row lock in the store.
	escrow, err := uc.escrows.GetByEngagementID(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("escrow for %s: %w", engagementID, err)
	}
	if escrow.Status != domain.EscrowFunded {
		return nil, domain.ErrNotFunded
	}

	pricing, err := domain.ComputePricingCents(eng.BaseAmount)
	if err != nil {
		return nil, err
	}
	// The split is derived from the engagement base; refuse to release an
	// escrow holding a different amount.
	if escrow.Amount != pricing.Base {
		return nil, domain.ErrHeldAmountMismatch
	}

	if pricing.WorkerNet < domain.MinimumPayoutThreshold {
		return uc.releaseQueued(ctx, eng, pricing, domain.PendingBelowThreshold)
	}

	dest, err := uc.lookupDestination(ctx, eng.WorkerID)
	if err != nil {
		return nil, err
	}
	if !dest.Usable() {
		return uc.releaseQueued(ctx, eng, pricing, domain.PendingDestinationNotConfigured)
	}

	idemKey := uuid.NewString()
	transfer, err := uc.processor.Transfer(ctx, provider.TransferRequest{
		IdempotencyKey: idemKey,
		DestinationID:  dest.AccountID,
		Amount:         pricing.WorkerNet,
		Currency:       eng.Currency,
		Reference:      engagementID,
	})
	if err != nil {
		// Outcome unknown or failed: record it, leave the escrow FUNDED, and
		// let the caller roll the engagement back. The stored idempotency key
		// makes the retry safe against a transfer that actually went through.
		failed := &domain.Payout{
			ID:             uc.refs.Payout(),
			WorkerID:       eng.WorkerID,
			EngagementID:   engagementID,
			Amount:         pricing.WorkerNet,
			PlatformFee:    pricing.PlatformTotal,
			Currency:       eng.Currency,
			Status:         domain.PayoutFailed,
			FailureReason:  err.Error(),
			IdempotencyKey: idemKey,
		}
		if createErr := uc.payouts.Create(ctx, failed); createErr != nil {
			uc.logger.Error("failed to record failed payout",
				zap.String("engagement_id", engagementID),
				zap.Error(createErr))
		}
		uc.logger.Error("transfer failed, escrow left funded",
			zap.String("engagement_id", engagementID),
			zap.String("worker_id", eng.WorkerID),
			zap.Int64("amount", pricing.WorkerNet),
			zap.Error(err))
		uc.publish(ctx, pub.SettlementEvent{
			EventType:    pub.EventPayoutFailed,
			EngagementID: engagementID,
			WorkerID:     eng.WorkerID,
			PayoutID:     failed.ID,
			Amount:       pricing.WorkerNet,
			Currency:     eng.Currency,
			Reason:       failed.FailureReason,
		})
		return nil, err
	}

	now := time.Now()
	payout := &domain.Payout{
		ID:                 uc.refs.Payout(),
		WorkerID:           eng.WorkerID,
		EngagementID:       engagementID,
		Amount:             pricing.WorkerNet,
		PlatformFee:        pricing.PlatformTotal,
		Currency:           eng.Currency,
		Status:             domain.PayoutCompleted,
		ExternalTransferID: transfer.TransferID,
		IdempotencyKey:     idemKey,
		CompletedAt:        &now,
	}
	if _, err := uc.store.ReleaseEscrow(ctx, repository.ReleaseParams{
		EngagementID:   engagementID,
		WorkerID:       eng.WorkerID,
		HeldAmount:     pricing.Base,
		WorkerNet:      pricing.WorkerNet,
		PlatformTotal:  pricing.PlatformTotal,
		Reference:      transfer.TransferID,
		WithdrawalTxID: uc.refs.Transaction(),
		FeeTxID:        uc.refs.Transaction(),
		Payout:         payout,
	}); err != nil {
		// The transfer went out but the local commit did not. The payout's
		// idempotency key is already burned at the processor, so the retry
		// path cannot double-pay; this is the one retryable inconsistency.
		uc.logger.Error("transfer succeeded but local release failed",
			zap.String("engagement_id", engagementID),
			zap.String("transfer_id", transfer.TransferID),
			zap.Error(err))
		return nil, err
	}

	uc.logger.Info("payment released",
		zap.String("engagement_id", engagementID),
		zap.String("worker_id", eng.WorkerID),
		zap.String("transfer_id", transfer.TransferID),
		zap.Int64("worker_net", pricing.WorkerNet),
		zap.Int64("platform_total", pricing.PlatformTotal))

	uc.publish(ctx, pub.SettlementEvent{
		EventType:    pub.EventEscrowReleased,
		EngagementID: engagementID,
		WorkerID:     eng.WorkerID,
		ClientID:     eng.ClientID,
		PayoutID:     payout.ID,
		TransferID:   transfer.TransferID,
		Amount:       pricing.WorkerNet,
		Currency:     eng.Currency,
	})
	return &ReleaseResult{Released: true, Payout: payout}, nil
}

// releaseQueued commits the release locally without touching the processor.
// The client's obligation is discharged; the worker's money sits on a
// PENDING payout row until the threshold is crossed or the destination is
// configured.
func (uc *SettlementUsecase) releaseQueued(ctx context.Context, eng *domain.Engagement, pricing *domain.Pricing, reason domain.PendingReason) (*ReleaseResult, error) {
	payout := &domain.Payout{
		ID:            uc.refs.Payout(),
		WorkerID:      eng.WorkerID,
		EngagementID:  eng.ID,
		Amount:        pricing.WorkerNet,
		PlatformFee:   pricing.PlatformTotal,
		Currency:      eng.Currency,
		Status:        domain.PayoutPending,
		PendingReason: reason,
	}
	if _, err := uc.store.ReleaseEscrow(ctx, repository.ReleaseParams{
		EngagementID:   eng.ID,
		WorkerID:       eng.WorkerID,
		HeldAmount:     pricing.Base,
		WorkerNet:      pricing.WorkerNet,
		PlatformTotal:  pricing.PlatformTotal,
		Reference:      uc.refs.Release(),
		WithdrawalTxID: uc.refs.Transaction(),
		FeeTxID:        uc.refs.Transaction(),
		Payout:         payout,
	}); err != nil {
		return nil, err
	}

	uc.logger.Info("payout queued",
		zap.String("engagement_id", eng.ID),
		zap.String("worker_id", eng.WorkerID),
		zap.Int64("amount", pricing.WorkerNet),
		zap.String("reason", string(reason)))

	uc.publish(ctx, pub.SettlementEvent{
		EventType:    pub.EventPayoutQueued,
		EngagementID: eng.ID,
		WorkerID:     eng.WorkerID,
		PayoutID:     payout.ID,
		Amount:       pricing.WorkerNet,
		Currency:     eng.Currency,
		Reason:       string(reason),
	})
	return &ReleaseResult{Released: true, PayoutQueued: true, QueueReason: reason, Payout: payout}, nil
}

// Refund returns the full held amount toward the client and closes the
// escrow. Allowed from FUNDED and DISPUTED only.
func (uc *SettlementUsecase) Refund(ctx context.Context, engagementID, reason string) (*domain.Escrow, error) {
	uc.locks.Lock(engagementID)
	defer uc.locks.Unlock(engagementID)

	eng, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, fmt.Errorf("engagement %s: %w", engagementID, err)
	}

	escrow, refund, err := uc.store.RefundEscrow(ctx, repository.RefundParams{
		EngagementID:  engagementID,
		ClientID:      eng.ClientID,
		Reason:        reason,
		Reference:     uc.refs.New("RFD"),
		TransactionID: uc.refs.Transaction(),
	})
	if err != nil {
		return nil, err
	}

	uc.logger.Info("escrow refunded",
		zap.String("engagement_id", engagementID),
		zap.Int64("amount", refund.Amount),
		zap.String("reason", reason))

	uc.publish(ctx, pub.SettlementEvent{
		EventType:    pub.EventEscrowRefunded,
		EngagementID: engagementID,
		ClientID:     eng.ClientID,
		WorkerID:     eng.WorkerID,
		Amount:       refund.Amount,
		Currency:     escrow.Currency,
		Reason:       reason,
	})
	return escrow, nil
}

// ProcessAccumulatedPayouts consolidates a worker's below-threshold earnings
// into one transfer per currency once that currency's sum qualifies. Amounts
// in different currencies never share a transfer; a currency still under the
// threshold keeps accumulating. All rows behind a transfer close with its
// external transfer id.
func (uc *SettlementUsecase) ProcessAccumulatedPayouts(ctx context.Context, workerID string) ([]*AccumulatedResult, error) {
	lockKey := "worker:" + workerID
	uc.locks.Lock(lockKey)
	defer uc.locks.Unlock(lockKey)

	pending, err := uc.payouts.ListAccumulated(ctx, workerID)
	if err != nil {
		return nil, err
	}

	byCurrency := map[string][]*domain.Payout{}
	for _, p := range pending {
		byCurrency[p.Currency] = append(byCurrency[p.Currency], p)
	}

	var eligible []string
	for currency, rows := range byCurrency {
		var total int64
		for _, p := range rows {
			total += p.Amount
		}
		if total >= domain.MinimumPayoutThreshold {
			eligible = append(eligible, currency)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrBelowThreshold
	}
	sort.Strings(eligible)

	dest, err := uc.lookupDestination(ctx, workerID)
	if err != nil {
		return nil, err
	}
	if !dest.Usable() {
		return nil, domain.ErrWorkerPayoutNotConfigured
	}

	var results []*AccumulatedResult
	for _, currency := range eligible {
		rows := byCurrency[currency]
		var total int64
		ids := make([]string, 0, len(rows))
		for _, p := range rows {
			total += p.Amount
			ids = append(ids, p.ID)
		}

		transfer, err := uc.processor.Transfer(ctx, provider.TransferRequest{
			IdempotencyKey: uuid.NewString(),
			DestinationID:  dest.AccountID,
			Amount:         total,
			Currency:       currency,
			Reference:      "accumulated:" + workerID,
		})
		if err != nil {
			uc.logger.Error("accumulated transfer failed",
				zap.String("worker_id", workerID),
				zap.String("currency", currency),
				zap.Int64("total", total),
				zap.Error(err))
			return results, err
		}

		if err := uc.payouts.CompleteBatch(ctx, ids, transfer.TransferID); err != nil {
			uc.logger.Error("accumulated transfer sent but batch close failed",
				zap.String("worker_id", workerID),
				zap.String("transfer_id", transfer.TransferID),
				zap.Error(err))
			return results, err
		}

		uc.logger.Info("accumulated payouts settled",
			zap.String("worker_id", workerID),
			zap.String("transfer_id", transfer.TransferID),
			zap.String("currency", currency),
			zap.Int64("total", total),
			zap.Int("count", len(ids)))

		uc.publish(ctx, pub.SettlementEvent{
			EventType:  pub.EventPayoutCompleted,
			WorkerID:   workerID,
			TransferID: transfer.TransferID,
			Amount:     total,
			Currency:   currency,
		})
		results = append(results, &AccumulatedResult{
			TransferID: transfer.TransferID,
			Total:      total,
			Currency:   currency,
			Closed:     rows,
		})
	}
	return results, nil
}

// RetryFailedPayout re-attempts the transfer step of a failed release with
// the payout's original idempotency key, so a transfer whose outcome we
// never observed cannot be paid twice. The FAILED row is superseded by the
// new COMPLETED one; failed attempts are not permanent history.
func (uc *SettlementUsecase) RetryFailedPayout(ctx context.Context, payoutID string) (*domain.Payout, error) {
	failed, err := uc.payouts.GetByID(ctx, payoutID)
	if err != nil {
		return nil, err
	}
	if !failed.Retryable() {
		return nil, domain.ErrPayoutNotRetryable
	}

	uc.locks.Lock(failed.EngagementID)
	defer uc.locks.Unlock(failed.EngagementID)

	dest, err := uc.lookupDestination(ctx, failed.WorkerID)
	if err != nil {
		return nil, err
	}
	if !dest.Usable() {
		return nil, domain.ErrWorkerPayoutNotConfigured
	}

	transfer, err := uc.processor.Transfer(ctx, provider.TransferRequest{
		IdempotencyKey: failed.IdempotencyKey,
		DestinationID:  dest.AccountID,
		Amount:         failed.Amount,
		Currency:       failed.Currency,
		Reference:      failed.EngagementID,
	})
	if err != nil {
		if updateErr := uc.payouts.UpdateFailureReason(ctx, payoutID, err.Error()); updateErr != nil {
			uc.logger.Warn("failed to update payout failure reason", zap.Error(updateErr))
		}
		return nil, err
	}

	escrow, err := uc.escrows.GetByEngagementID(ctx, failed.EngagementID)
	if err != nil {
		return nil, err
	}
	if escrow.Status == domain.EscrowFunded {
		// The original attempt never committed the release; do it now.
		if _, err := uc.store.ReleaseEscrow(ctx, repository.ReleaseParams{
			EngagementID:   failed.EngagementID,
			WorkerID:       failed.WorkerID,
			WorkerNet:      failed.Amount,
			PlatformTotal:  failed.PlatformFee,
			Reference:      transfer.TransferID,
			WithdrawalTxID: uc.refs.Transaction(),
			FeeTxID:        uc.refs.Transaction(),
		}); err != nil {
			return nil, err
		}
	}

	now := time.Now()
	completed := &domain.Payout{
		ID:                 uc.refs.Payout(),
		WorkerID:           failed.WorkerID,
		EngagementID:       failed.EngagementID,
		Amount:             failed.Amount,
		PlatformFee:        failed.PlatformFee,
		Currency:           failed.Currency,
		Status:             domain.PayoutCompleted,
		ExternalTransferID: transfer.TransferID,
		IdempotencyKey:     failed.IdempotencyKey,
		CompletedAt:        &now,
	}
	if err := uc.payouts.Supersede(ctx, payoutID, completed); err != nil {
		return nil, err
	}

	uc.logger.Info("failed payout retried",
		zap.String("payout_id", payoutID),
		zap.String("transfer_id", transfer.TransferID),
		zap.Int64("amount", failed.Amount))

	uc.publish(ctx, pub.SettlementEvent{
		EventType:    pub.EventPayoutCompleted,
		EngagementID: failed.EngagementID,
		WorkerID:     failed.WorkerID,
		PayoutID:     completed.ID,
		TransferID:   transfer.TransferID,
		Amount:       failed.Amount,
		Currency:     failed.Currency,
	})
	return completed, nil
}

// ReverseTransfer claws back funds already paid to a worker's sub-account.
// Operator-triggered only, never automatic. amount of 0 reverses whatever is
// still reversible; partial reversals can never sum past the payout.
func (uc *SettlementUsecase) ReverseTransfer(ctx context.Context, transferID string, amount int64, reason string) (*domain.Transaction, error) {
	payout, err := uc.payouts.GetByExternalTransferID(ctx, transferID)
	if err != nil {
		return nil, err
	}

	trail, err := uc.transactions.ListByEngagement(ctx, payout.EngagementID)
	if err != nil {
		return nil, err
	}
	var reversed int64
	for _, t := range trail {
		if t.Type == domain.TransactionTypeRefund && t.Status == domain.TransactionCompleted {
			reversed += t.Amount
		}
	}
	remaining := payout.Amount - reversed
	if amount == 0 {
		amount = remaining
	}
	if amount <= 0 || amount > remaining {
		return nil, domain.ErrInvalidAmount
	}

	reversal, err := uc.processor.ReverseTransfer(ctx, provider.ReversalRequest{
		IdempotencyKey: uuid.NewString(),
		TransferID:     transferID,
		Amount:         amount,
		Reason:         reason,
	})
	if err != nil {
		return nil, err
	}

	txn, err := uc.RecordReversal(ctx, transferID, amount, reason, reversal.ReversalID)
	if err != nil {
		return nil, err
	}

	uc.logger.Info("transfer reversed",
		zap.String("transfer_id", transferID),
		zap.String("reversal_id", reversal.ReversalID),
		zap.Int64("amount", amount))
	return txn, nil
}

// RecordReversal writes the REFUND ledger row for a reversal. Called from the
// synchronous admin path and from the transfer.reversed webhook; the unique
// (REFUND, reversalRef) index makes the second writer a duplicate no-op.
func (uc *SettlementUsecase) RecordReversal(ctx context.Context, transferID string, amount int64, reason, reversalRef string) (*domain.Transaction, error) {
	payout, err := uc.payouts.GetByExternalTransferID(ctx, transferID)
	if err != nil {
		return nil, err
	}
	eng, err := uc.engagements.GetByID(ctx, payout.EngagementID)
	if err != nil {
		return nil, err
	}

	txn := &domain.Transaction{
		ID:                uc.refs.Transaction(),
		EngagementID:      payout.EngagementID,
		UserID:            eng.ClientID,
		Type:              domain.TransactionTypeRefund,
		Amount:            amount,
		Currency:          payout.Currency,
		ExternalReference: reversalRef,
		Status:            domain.TransactionCompleted,
		Description:       reason,
	}
	if err := uc.transactions.Create(ctx, txn); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// The other writer (admin path or webhook) already recorded it.
			return txn, nil
		}
		return nil, err
	}

	uc.publish(ctx, pub.SettlementEvent{
		EventType:    pub.EventTransferReversed,
		EngagementID: payout.EngagementID,
		WorkerID:     payout.WorkerID,
		ClientID:     eng.ClientID,
		TransferID:   transferID,
		Amount:       amount,
		Currency:     payout.Currency,
		Reason:       reason,
	})
	return txn, nil
}

// RegisterPayoutAccount onboards a worker sub-account at the processor and
// records it as their payout destination.
func (uc *SettlementUsecase) RegisterPayoutAccount(ctx context.Context, workerID, email, country string) (*domain.PayoutAccount, error) {
	sub, err := uc.processor.CreateSubAccount(ctx, provider.SubAccountRequest{
		WorkerID: workerID,
		Email:    email,
		Country:  country,
	})
	if err != nil {
		return nil, err
	}

	method := domain.PayoutMethodSubAccount
	if sub.Manual {
		method = domain.PayoutMethodManual
	}
	account := &domain.PayoutAccount{
		WorkerID:       workerID,
		Provider:       uc.processor.Name(),
		AccountID:      sub.AccountID,
		Method:         method,
		PayoutsEnabled: sub.PayoutsEnabled,
	}
	if err := uc.accounts.Upsert(ctx, account); err != nil {
		return nil, err
	}
	uc.invalidateDestinationCache(ctx, workerID)

	uc.logger.Info("payout account registered",
		zap.String("worker_id", workerID),
		zap.String("account_id", sub.AccountID),
		zap.Bool("payouts_enabled", sub.PayoutsEnabled))
	return account, nil
}

// SyncPayoutAccount applies an account.updated webhook to the destination
// registry.
func (uc *SettlementUsecase) SyncPayoutAccount(ctx context.Context, workerID string, enabled bool) error {
	if err := uc.accounts.SetPayoutsEnabled(ctx, workerID, enabled); err != nil {
		return err
	}
	uc.invalidateDestinationCache(ctx, workerID)
	return nil
}

// lookupDestination resolves the worker's payout destination, Redis-cached.
// A missing registration is not an error; it comes back as an unusable
// destination.
func (uc *SettlementUsecase) lookupDestination(ctx context.Context, workerID string) (*domain.PayoutAccount, error) {
	cacheKey := destinationCacheKey + workerID
	if uc.redisClient != nil {
		if val, err := uc.redisClient.Get(ctx, cacheKey).Result(); err == nil {
			var cached domain.PayoutAccount
			if jsonErr := json.Unmarshal([]byte(val), &cached); jsonErr == nil {
				return &cached, nil
			}
		}
	}

	account, err := uc.accounts.GetByWorkerID(ctx, workerID)
	if errors.Is(err, domain.ErrNotFound) {
		return &domain.PayoutAccount{WorkerID: workerID}, nil
	}
	if err != nil {
		return nil, err
	}

	// The processor may have enabled payouts since the last account.updated
	// event landed; ask it before treating the destination as unusable.
	if !account.Usable() && account.AccountID != "" {
		if sub, subErr := uc.processor.GetSubAccount(ctx, account.AccountID); subErr == nil && sub.PayoutsEnabled {
			if setErr := uc.accounts.SetPayoutsEnabled(ctx, account.WorkerID, true); setErr == nil {
				account.PayoutsEnabled = true
			}
		}
	}

	if uc.redisClient != nil {
		if data, err := json.Marshal(account); err == nil {
			_ = uc.redisClient.Set(ctx, cacheKey, data, destinationCacheTTL).Err()
		}
	}
	return account, nil
}

func (uc *SettlementUsecase) invalidateDestinationCache(ctx context.Context, workerID string) {
	if uc.redisClient == nil {
		return
	}
	_ = uc.redisClient.Del(ctx, destinationCacheKey+workerID).Err()
}

func (uc *SettlementUsecase) publish(ctx context.Context, event pub.SettlementEvent) {
	if uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, event); err != nil {
		uc.logger.Warn("event publish failed", zap.String("event_type", event.EventType), zap.Error(err))
	}
}
