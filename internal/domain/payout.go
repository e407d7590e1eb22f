package domain

import "time"

type PayoutStatus string

const (
	PayoutPending   PayoutStatus = "PENDING"
	PayoutCompleted PayoutStatus = "COMPLETED"
	PayoutFailed    PayoutStatus = "FAILED"
)

type PendingReason string

const (
	// PendingBelowThreshold marks earnings accumulating toward the minimum
	// transferable amount. Rows with this reason are only ever closed as a
	// batch.
	PendingBelowThreshold PendingReason = "below_threshold"
	// PendingDestinationNotConfigured marks earnings whose owner has no
	// confirmed payout destination yet.
	PendingDestinationNotConfigured PendingReason = "destination_not_configured"
)

// Payout is one attempted (or deferred) transfer of a worker's net earnings
// to their processor sub-account.
type Payout struct {
	ID                 string
	WorkerID           string
	EngagementID       string
	Amount             int64 // cents, worker net
	PlatformFee        int64 // cents
	Currency           string
	Status             PayoutStatus
	PendingReason      PendingReason
	ExternalTransferID string
	FailureReason      string
	// IdempotencyKey is the client-supplied key sent to the external
	// processor with the transfer call. A retry of this payout re-sends the
	// same key so the processor can dedupe an outcome we never observed.
	IdempotencyKey string
	CompletedAt    *time.Time
	CreatedAt      time.Time
}

func (p *Payout) Retryable() bool {
	return p.Status == PayoutFailed
}
