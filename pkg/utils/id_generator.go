package utils

import (
	"crypto/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ReferenceGenerator mints prefixed, sortable references for ledger rows,
// payouts, and escrows.
//
// Format: PREFIX-{ULID}
// Example: TXN-01ARZ3NDEKTSV4RRFFQ69G5FAV
type ReferenceGenerator struct {
	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

func NewReferenceGenerator() *ReferenceGenerator {
	return &ReferenceGenerator{
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// New generates a reference with the given prefix.
func (g *ReferenceGenerator) New(prefix string) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
	return strings.ToUpper(prefix) + "-" + id.String()
}

// Transaction generates a ledger row ID.
func (g *ReferenceGenerator) Transaction() string { return g.New("TXN") }

// Payout generates a payout row ID.
func (g *ReferenceGenerator) Payout() string { return g.New("PAY") }

// Escrow generates an escrow ID.
func (g *ReferenceGenerator) Escrow() string { return g.New("ESC") }

// Release generates an internal external-reference for releases that never
// reach the processor (threshold-queued or destination-queued).
func (g *ReferenceGenerator) Release() string { return g.New("REL") }
