package usecase

import (
	"context"
	"errors"
	"testing"

	"settlement-service/internal/domain"
	"settlement-service/internal/provider"
)

func TestAcceptApplication(t *testing.T) {
	env := newTestEnv()
	eng, err := env.engagement.CreateProject(context.Background(), CreateEngagementInput{
		Kind:         domain.EngagementKindProject,
		ClientID:     "client-1",
		BaseAmount:   "100.00",
		Currency:     "USD",
		MaxRevisions: 2,
	})
	if err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	result, err := env.engagement.AcceptApplication(context.Background(), eng.ID, "worker-1")
	if err != nil {
		t.Fatalf("AcceptApplication: %v", err)
	}
	if result.Engagement.Status != domain.EngagementInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", result.Engagement.Status)
	}
	stored, _ := env.engagements.GetByID(context.Background(), eng.ID)
	if stored.WorkerID != "worker-1" {
		t.Errorf("worker not assigned, got %q", stored.WorkerID)
	}

	// The client is charged base plus the 2.5% buyer fee.
	if len(env.processor.charges) != 1 {
		t.Fatalf("charges = %d, want 1", len(env.processor.charges))
	}
	if got := env.processor.charges[0].Amount; got != 10250 {
		t.Errorf("charge amount = %d, want 10250", got)
	}
	if env.processor.charges[0].IdempotencyKey == "" {
		t.Error("charge sent without idempotency key")
	}

	// Escrow waits for the funding confirmation.
	escrow, err := env.escrows.GetByEngagementID(context.Background(), eng.ID)
	if err != nil {
		t.Fatalf("escrow: %v", err)
	}
	if escrow.Status != domain.EscrowPending || escrow.Amount != 10000 {
		t.Errorf("escrow = %+v", escrow)
	}
}

func TestAcceptApplicationChargeFailure(t *testing.T) {
	env := newTestEnv()
	eng, _ := env.engagement.CreateProject(context.Background(), CreateEngagementInput{
		ClientID: "client-1", BaseAmount: "100.00", Currency: "USD", MaxRevisions: 2,
	})
	env.processor.chargeErr = provider.ErrChargeFailed

	if _, err := env.engagement.AcceptApplication(context.Background(), eng.ID, "worker-1"); !errors.Is(err, provider.ErrChargeFailed) {
		t.Fatalf("error = %v, want ErrChargeFailed", err)
	}

	got, _ := env.engagements.GetByID(context.Background(), eng.ID)
	if got.Status != domain.EngagementOpen {
		t.Errorf("status after failed charge = %s, want OPEN", got.Status)
	}
}

func TestPlaceOrder(t *testing.T) {
	env := newTestEnv()

	result, err := env.engagement.PlaceOrder(context.Background(), CreateEngagementInput{
		Kind:         domain.EngagementKindOrder,
		ClientID:     "client-1",
		WorkerID:     "worker-1",
		BaseAmount:   "40.00",
		Currency:     "USD",
		MaxRevisions: 1,
	})
	if err != nil {
		t.Fatalf("PlaceOrder: %v", err)
	}
	if result.Engagement.Status != domain.EngagementInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", result.Engagement.Status)
	}
	if result.Pricing.TotalCharged != 4100 {
		t.Errorf("total charged = %d, want 4100", result.Pricing.TotalCharged)
	}

	// No escrow until the charge confirms; the funding webhook creates it.
	if _, err := env.escrows.GetByEngagementID(context.Background(), result.Engagement.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("escrow error = %v, want ErrNotFound", err)
	}
	if _, err := env.settlement.FundEscrow(context.Background(), result.Engagement.ID, 4000, "ch_order"); err != nil {
		t.Fatalf("funding confirmation: %v", err)
	}
	escrow, _ := env.escrows.GetByEngagementID(context.Background(), result.Engagement.ID)
	if escrow.Status != domain.EscrowFunded {
		t.Errorf("escrow status = %s, want FUNDED", escrow.Status)
	}
}

func TestApproveDelivery(t *testing.T) {
	env := newTestEnv()
	env.seedEngagement("eng-1", domain.EngagementPendingReview, 10000)
	env.seedFundedEscrow("eng-1", 10000)
	env.seedAccount("worker-1", true)

	result, err := env.engagement.ApproveDelivery(context.Background(), "eng-1")
	if err != nil {
		t.Fatalf("ApproveDelivery: %v", err)
	}
	if !result.Released {
		t.Error("funds not released")
	}

	eng, _ := env.engagements.GetByID(context.Background(), "eng-1")
	if eng.Status != domain.EngagementCompleted {
		t.Errorf("status = %s, want COMPLETED", eng.Status)
	}
}

func TestApproveDeliveryTransferFailureRollsBack(t *testing.T) {
	env := newTestEnv()
	env.seedEngagement("eng-1", domain.EngagementPendingReview, 10000)
	env.seedFundedEscrow("eng-1", 10000)
	env.seedAccount("worker-1", true)
	env.processor.transferErr = provider.ErrTransferFailed

	if _, err := env.engagement.ApproveDelivery(context.Background(), "eng-1"); !errors.Is(err, provider.ErrTransferFailed) {
		t.Fatalf("error = %v, want ErrTransferFailed", err)
	}

	// Both sides back where they started: client can approve again later.
	eng, _ := env.engagements.GetByID(context.Background(), "eng-1")
	if eng.Status != domain.EngagementPendingReview {
		t.Errorf("status = %s, want PENDING_REVIEW", eng.Status)
	}
	escrow, _ := env.escrows.GetByEngagementID(context.Background(), "eng-1")
	if escrow.Status != domain.EscrowFunded {
		t.Errorf("escrow status = %s, want FUNDED", escrow.Status)
	}
}

func TestApproveDeliveryQueuedPayoutStillCompletes(t *testing.T) {
	env := newTestEnv()
	env.seedEngagement("eng-1", domain.EngagementDelivered, 500)
	env.seedFundedEscrow("eng-1", 500)

	result, err := env.engagement.ApproveDelivery(context.Background(), "eng-1")
	if err != nil {
		t.Fatalf("ApproveDelivery: %v", err)
	}
	if !result.PayoutQueued {
		t.Error("small payout not queued")
	}

	eng, _ := env.engagements.GetByID(context.Background(), "eng-1")
	if eng.Status != domain.EngagementCompleted {
		t.Errorf("status = %s, want COMPLETED", eng.Status)
	}
}

func TestRequestRevisionBounded(t *testing.T) {
	env := newTestEnv()
	env.seedEngagement("eng-1", domain.EngagementPendingReview, 10000)

	eng, err := env.engagement.RequestRevision(context.Background(), "eng-1")
	if err != nil {
		t.Fatalf("first revision: %v", err)
	}
	if eng.Status != domain.EngagementInProgress || eng.RevisionsUsed != 1 {
		t.Errorf("after first revision = %+v", eng)
	}

	_ = env.engagements.UpdateStatus(context.Background(), "eng-1", domain.EngagementInProgress, domain.EngagementPendingReview)
	if _, err := env.engagement.RequestRevision(context.Background(), "eng-1"); err != nil {
		t.Fatalf("second revision: %v", err)
	}

	_ = env.engagements.UpdateStatus(context.Background(), "eng-1", domain.EngagementInProgress, domain.EngagementPendingReview)
	if _, err := env.engagement.RequestRevision(context.Background(), "eng-1"); !errors.Is(err, domain.ErrRevisionLimitReached) {
		t.Errorf("third revision error = %v, want ErrRevisionLimitReached", err)
	}
}

func TestCancelInProgressRejected(t *testing.T) {
	env := newTestEnv()
	env.seedEngagement("eng-1", domain.EngagementInProgress, 10000)

	if err := env.engagement.Cancel(context.Background(), "eng-1", "changed my mind"); !errors.Is(err, domain.ErrCancelWhileInProgress) {
		t.Errorf("error = %v, want ErrCancelWhileInProgress", err)
	}
}

func TestCancelPausedRefundsEscrow(t *testing.T) {
	env := newTestEnv()
	env.seedEngagement("eng-1", domain.EngagementPaused, 5000)
	env.seedFundedEscrow("eng-1", 5000)

	if err := env.engagement.Cancel(context.Background(), "eng-1", "stalled"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	eng, _ := env.engagements.GetByID(context.Background(), "eng-1")
	if eng.Status != domain.EngagementCancelled {
		t.Errorf("status = %s, want CANCELLED", eng.Status)
	}
	escrow, _ := env.escrows.GetByEngagementID(context.Background(), "eng-1")
	if escrow.Status != domain.EscrowRefunded {
		t.Errorf("escrow status = %s, want REFUNDED", escrow.Status)
	}
	refunds := env.transactions.byType(domain.TransactionTypeRefund)
	if len(refunds) != 1 || refunds[0].Amount != 5000 {
		t.Errorf("refund rows = %+v", refunds)
	}
}

func TestCancelOpenWithoutEscrow(t *testing.T) {
	env := newTestEnv()
	env.seedEngagement("eng-1", domain.EngagementOpen, 10000)

	if err := env.engagement.Cancel(context.Background(), "eng-1", "no applicants"); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	eng, _ := env.engagements.GetByID(context.Background(), "eng-1")
	if eng.Status != domain.EngagementCancelled {
		t.Errorf("status = %s, want CANCELLED", eng.Status)
	}
}

func TestPauseResume(t *testing.T) {
	env := newTestEnv()
	env.seedEngagement("eng-1", domain.EngagementInProgress, 10000)

	if err := env.engagement.Pause(context.Background(), "eng-1"); err != nil {
		t.Fatalf("Pause: %v", err)
	}
	if err := env.engagement.Resume(context.Background(), "eng-1"); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	eng, _ := env.engagements.GetByID(context.Background(), "eng-1")
	if eng.Status != domain.EngagementInProgress {
		t.Errorf("status = %s, want IN_PROGRESS", eng.Status)
	}
}

func TestQuote(t *testing.T) {
	env := newTestEnv()

	p, err := env.engagement.Quote("100.00")
	if err != nil {
		t.Fatalf("Quote: %v", err)
	}
	if p.TotalCharged != 10250 || p.WorkerNet != 8750 || p.PlatformTotal != 1500 {
		t.Errorf("pricing = %+v", p)
	}

	if _, err := env.engagement.Quote("1.999"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Errorf("invalid amount error = %v, want ErrInvalidAmount", err)
	}
}
