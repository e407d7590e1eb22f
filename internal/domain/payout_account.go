package domain

import "time"

type PayoutMethod string

const (
	// PayoutMethodSubAccount pays through a processor sub-merchant account.
	PayoutMethodSubAccount PayoutMethod = "sub_account"
	// PayoutMethodManual is an operator-handled fallback rail.
	PayoutMethodManual PayoutMethod = "manual"
)

// PayoutAccount maps a worker to their destination at the external processor.
// PayoutsEnabled mirrors the processor's own flag and is kept current by
// account.updated webhooks.
type PayoutAccount struct {
	WorkerID       string
	Provider       string
	AccountID      string
	Method         PayoutMethod
	PayoutsEnabled bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Usable reports whether transfers can be sent to this destination now.
func (a *PayoutAccount) Usable() bool {
	if a == nil {
		return false
	}
	return a.PayoutsEnabled && a.AccountID != ""
}
