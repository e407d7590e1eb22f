package domain

import "time"

type EscrowStatus string

const (
	EscrowPending  EscrowStatus = "PENDING"
	EscrowFunded   EscrowStatus = "FUNDED"
	EscrowReleased EscrowStatus = "RELEASED"
	EscrowRefunded EscrowStatus = "REFUNDED"
	EscrowDisputed EscrowStatus = "DISPUTED"
)

// Escrow is the held balance for one engagement. Status advances
// monotonically; RELEASED and REFUNDED are terminal. DISPUTED is the one
// side-branch and can still move to REFUNDED.
type Escrow struct {
	ID           string
	EngagementID string
	Amount       int64 // cents held
	Currency     string
	Status       EscrowStatus
	FundedAt     *time.Time
	ReleasedAt   *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (e *Escrow) IsTerminal() bool {
	return e.Status == EscrowReleased || e.Status == EscrowRefunded
}

// Refundable is true for FUNDED and DISPUTED escrows.
func (e *Escrow) Refundable() bool {
	return e.Status == EscrowFunded || e.Status == EscrowDisputed
}
