package domain

import (
	"time"
)

type EngagementKind string

const (
	EngagementKindProject EngagementKind = "PROJECT"
	EngagementKindOrder   EngagementKind = "ORDER"
)

type EngagementStatus string

const (
	EngagementOpen          EngagementStatus = "OPEN"
	EngagementInProgress    EngagementStatus = "IN_PROGRESS"
	EngagementPaused        EngagementStatus = "PAUSED"
	EngagementPendingReview EngagementStatus = "PENDING_REVIEW"
	EngagementDelivered     EngagementStatus = "DELIVERED"
	EngagementCompleted     EngagementStatus = "COMPLETED"
	EngagementCancelled     EngagementStatus = "CANCELLED"
)

// Engagement is a project or a service order between a client and a worker.
// It is mutated only through the transitions below; the settlement ledger
// keeps the money-side history.
type Engagement struct {
	ID            string
	Kind          EngagementKind
	ClientID      string
	WorkerID      string
	BaseAmount    int64 // cents
	Currency      string
	Status        EngagementStatus
	RevisionsUsed int
	MaxRevisions  int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// transitions holds the legal lifecycle edges. Cancellation from IN_PROGRESS
// is deliberately absent: funded work in flight is settled via review, never
// dropped.
var transitions = map[EngagementStatus][]EngagementStatus{
	EngagementOpen:          {EngagementInProgress, EngagementCancelled},
	EngagementInProgress:    {EngagementPaused, EngagementPendingReview, EngagementDelivered},
	EngagementPaused:        {EngagementInProgress, EngagementCancelled},
	EngagementPendingReview: {EngagementCompleted, EngagementInProgress},
	EngagementDelivered:     {EngagementCompleted, EngagementInProgress},
}

// CanTransition reports whether moving to the target status is a legal edge.
func (e *Engagement) CanTransition(to EngagementStatus) error {
	for _, next := range transitions[e.Status] {
		if next == to {
			return nil
		}
	}
	if to == EngagementCancelled && e.Status == EngagementInProgress {
		return ErrCancelWhileInProgress
	}
	return ErrInvalidTransition
}

// CanRequestRevision reports whether the worker can be sent back to
// IN_PROGRESS for another revision pass.
func (e *Engagement) CanRequestRevision() error {
	if e.Status != EngagementPendingReview && e.Status != EngagementDelivered {
		return ErrInvalidTransition
	}
	if e.RevisionsUsed >= e.MaxRevisions {
		return ErrRevisionLimitReached
	}
	return nil
}

// ReleaseEligible reports whether the engagement is in a state from which the
// client can approve and trigger release.
func (e *Engagement) ReleaseEligible() bool {
	return e.Status == EngagementPendingReview || e.Status == EngagementDelivered
}

func (e *Engagement) IsTerminal() bool {
	return e.Status == EngagementCompleted || e.Status == EngagementCancelled
}
