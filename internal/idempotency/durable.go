package idempotency

import (
	"context"

	"settlement-service/internal/domain"
	"settlement-service/internal/repository"
)

// eventTransactionTypes maps each ledger-backed webhook event to the
// transaction type its handler writes. Events absent here leave no ledger
// row; re-applying them is harmless, so the in-memory cache is their only
// dedupe tier.
var eventTransactionTypes = map[string]domain.TransactionType{
	domain.EventChargeSucceeded:  domain.TransactionTypeDeposit,
	domain.EventTransferReversed: domain.TransactionTypeRefund,
}

// TransactionChecker answers the durable half of the idempotency check from
// the transaction ledger itself.
type TransactionChecker struct {
	transactions repository.TransactionRepository
}

func NewTransactionChecker(transactions repository.TransactionRepository) *TransactionChecker {
	return &TransactionChecker{transactions: transactions}
}

func (c *TransactionChecker) Processed(ctx context.Context, eventType, externalRef string) (bool, error) {
	txType, ok := eventTransactionTypes[eventType]
	if !ok {
		return false, nil
	}
	return c.transactions.ExistsCompletedByReference(ctx, txType, externalRef)
}
