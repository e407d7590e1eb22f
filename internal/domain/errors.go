package domain

import "errors"

// Validation errors. Rejected synchronously, no side effects.
var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrNotFunded     = errors.New("escrow not funded")
	ErrAlreadyFunded = errors.New("escrow already funded")
	ErrNotRefundable = errors.New("escrow not refundable")
)

// Settlement outcomes that are not failures of the client-facing action.
var (
	ErrBelowThreshold            = errors.New("accumulated payouts below minimum threshold")
	ErrWorkerPayoutNotConfigured = errors.New("worker payout destination not configured")
)

// Engagement lifecycle
var (
	ErrInvalidTransition     = errors.New("invalid engagement transition")
	ErrRevisionLimitReached  = errors.New("revision limit reached")
	ErrCancelWhileInProgress = errors.New("engagement cannot be cancelled while in progress")
)

// Generic
var (
	ErrNotFound           = errors.New("not found")
	ErrHeldAmountMismatch = errors.New("escrow amount does not match engagement pricing")
	ErrDuplicateReference = errors.New("duplicate external reference")
	ErrPayoutNotRetryable = errors.New("payout is not in a retryable state")
)
