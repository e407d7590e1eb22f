package provider

import (
	"context"
	"errors"
)

var (
	ErrTransferFailed = errors.New("transfer failed at processor")
	ErrReversalFailed = errors.New("reversal failed at processor")
	ErrChargeFailed   = errors.New("charge failed at processor")
)

type ChargeRequest struct {
	IdempotencyKey string
	CustomerID     string
	Amount         int64 // cents
	Currency       string
	Reference      string // engagement id, echoed back in the webhook
}

type ChargeResult struct {
	ChargeID string
	Status   string
}

type TransferRequest struct {
	// IdempotencyKey is passed through to the processor so a retried call
	// cannot double-transfer when the first outcome was never observed.
	IdempotencyKey string
	DestinationID  string
	Amount         int64 // cents
	Currency       string
	Reference      string
}

type TransferResult struct {
	TransferID string
}

type ReversalRequest struct {
	IdempotencyKey string
	TransferID     string
	Amount         int64 // cents; 0 means full reversal
	Reason         string
}

type ReversalResult struct {
	ReversalID string
}

type SubAccountRequest struct {
	WorkerID string
	Email    string
	Country  string
}

type SubAccount struct {
	AccountID      string
	PayoutsEnabled bool
	// Manual marks an operator-handled rail with no processor sub-merchant
	// behind it, such as a payout email.
	Manual bool
}

// PaymentProcessor is the capability set the settlement engine assumes of the
// external processor: charge (authorize+capture), transfer to a sub-account,
// reverse a transfer, and sub-account onboarding. Confirmations for charges
// arrive asynchronously over the webhook channel.
type PaymentProcessor interface {
	Name() string
	Charge(ctx context.Context, req ChargeRequest) (*ChargeResult, error)
	Transfer(ctx context.Context, req TransferRequest) (*TransferResult, error)
	ReverseTransfer(ctx context.Context, req ReversalRequest) (*ReversalResult, error)
	CreateSubAccount(ctx context.Context, req SubAccountRequest) (*SubAccount, error)
	// GetSubAccount reads the destination's current state from the processor,
	// used to refresh a registry entry that may have gone stale.
	GetSubAccount(ctx context.Context, accountID string) (*SubAccount, error)
}
