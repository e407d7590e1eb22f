package domain

import "encoding/json"

// Processor webhook event types the engine reacts to.
const (
	EventChargeSucceeded  = "charge.succeeded"
	EventTransferReversed = "transfer.reversed"
	EventAccountUpdated   = "account.updated"
)

// WebhookEvent is the signed envelope delivered by the external processor.
// Delivery is at-least-once; ExternalReference is the dedupe key.
type WebhookEvent struct {
	Type              string          `json:"type"`
	ExternalReference string          `json:"external_reference"`
	Payload           json.RawMessage `json:"payload"`
}

// ChargePayload is the body of a charge.succeeded event.
type ChargePayload struct {
	EngagementID string `json:"engagement_id"`
	ClientID     string `json:"client_id"`
	Amount       int64  `json:"amount"` // cents actually held for the engagement
	Currency     string `json:"currency"`
}

// ReversalPayload is the body of a transfer.reversed event.
type ReversalPayload struct {
	TransferID string `json:"transfer_id"`
	Amount     int64  `json:"amount"` // cents
	Reason     string `json:"reason"`
}

// AccountPayload is the body of an account.updated event.
type AccountPayload struct {
	WorkerID       string `json:"worker_id"`
	AccountID      string `json:"account_id"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}
