package domain

import "time"

type TransactionType string

const (
	TransactionTypeDeposit    TransactionType = "DEPOSIT"
	TransactionTypeWithdrawal TransactionType = "WITHDRAWAL"
	TransactionTypeFee        TransactionType = "FEE"
	TransactionTypeRefund     TransactionType = "REFUND"
)

type TransactionStatus string

// Ledger rows are written COMPLETED at commit time and never updated; money
// that has not settled lives on escrow and payout state, not on provisional
// ledger rows.
const TransactionCompleted TransactionStatus = "COMPLETED"

// PlatformUserID is the ledger owner for FEE rows.
const PlatformUserID = "platform"

// Transaction is an append-only ledger row.
//
// Contract: a COMPLETED row with a given (type, external_reference) pair IS
// the durable marker that the originating external event has been processed.
// The store enforces a unique index on that pair; there is no separate
// "processed events" table.
type Transaction struct {
	ID                string
	EngagementID      string
	UserID            string
	Type              TransactionType
	Amount            int64 // cents
	Currency          string
	ExternalReference string
	Status            TransactionStatus
	Description       string
	CreatedAt         time.Time
}

// EngagementBalance folds a transaction trail into the amount still held for
// an engagement: deposits in, withdrawals/fees/refunds out.
func EngagementBalance(trail []*Transaction) int64 {
	var held int64
	for _, t := range trail {
		if t.Status != TransactionCompleted {
			continue
		}
		switch t.Type {
		case TransactionTypeDeposit:
			held += t.Amount
		case TransactionTypeWithdrawal, TransactionTypeFee, TransactionTypeRefund:
			held -= t.Amount
		}
	}
	return held
}
