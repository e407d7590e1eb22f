package usecase

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/domain"
	"settlement-service/internal/provider"
	"settlement-service/internal/repository"
	"settlement-service/pkg/utils"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EngagementUsecase drives the client/worker lifecycle and kicks off charges.
// Everything money-side past the charge (funding, release, refund, payouts)
// lives in SettlementUsecase.
type EngagementUsecase struct {
	engagements  repository.EngagementRepository
	escrows      repository.EscrowRepository
	transactions repository.TransactionRepository

	settlement *SettlementUsecase
	processor  provider.PaymentProcessor

	refs   *utils.ReferenceGenerator
	logger *zap.Logger
}

func NewEngagementUsecase(
	engagements repository.EngagementRepository,
	escrows repository.EscrowRepository,
	transactions repository.TransactionRepository,
	settlement *SettlementUsecase,
	processor provider.PaymentProcessor,
	logger *zap.Logger,
) *EngagementUsecase {
	return &EngagementUsecase{
		engagements:  engagements,
		escrows:      escrows,
		transactions: transactions,
		settlement:   settlement,
		processor:    processor,
		refs:         utils.NewReferenceGenerator(),
		logger:       logger,
	}
}

type CreateEngagementInput struct {
	Kind         domain.EngagementKind
	ClientID     string
	WorkerID     string
	BaseAmount   string // decimal string, e.g. "100.00"
	Currency     string
	MaxRevisions int
}

// ActivationResult pairs an activated engagement with the pricing it was
// charged at. Charges confirm asynchronously; the escrow is FUNDED only when
// the charge.succeeded webhook lands.
type ActivationResult struct {
	Engagement *domain.Engagement
	Pricing    *domain.Pricing
	ChargeID   string
}

// CreateProject posts a project listing. Nothing is charged until the client
// accepts a worker's application.
func (uc *EngagementUsecase) CreateProject(ctx context.Context, in CreateEngagementInput) (*domain.Engagement, error) {
	base, err := domain.ParseAmount(in.BaseAmount)
	if err != nil {
		return nil, err
	}
	eng := &domain.Engagement{
		ID:           uc.refs.New("ENG"),
		Kind:         domain.EngagementKindProject,
		ClientID:     in.ClientID,
		WorkerID:     in.WorkerID,
		BaseAmount:   base,
		Currency:     in.Currency,
		Status:       domain.EngagementOpen,
		MaxRevisions: in.MaxRevisions,
	}
	if err := uc.engagements.Create(ctx, eng); err != nil {
		return nil, err
	}
	return eng, nil
}

// AcceptApplication activates an open project: the engagement moves to
// IN_PROGRESS, a PENDING escrow is opened for the base amount, and the client
// is charged base plus buyer fee. If the charge call itself fails the
// activation is rolled back; an accepted project with no money on the way is
// worse than one the client has to retry.
func (uc *EngagementUsecase) AcceptApplication(ctx context.Context, engagementID, workerID string) (*ActivationResult, error) {
	eng, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if eng.Kind != domain.EngagementKindProject {
		return nil, domain.ErrInvalidTransition
	}
	if err := eng.CanTransition(domain.EngagementInProgress); err != nil {
		return nil, err
	}

	pricing, err := domain.ComputePricingCents(eng.BaseAmount)
	if err != nil {
		return nil, err
	}

	if err := uc.engagements.UpdateStatus(ctx, engagementID, domain.EngagementOpen, domain.EngagementInProgress); err != nil {
		return nil, err
	}
	if err := uc.engagements.AssignWorker(ctx, engagementID, workerID); err != nil {
		uc.rollbackActivation(ctx, engagementID)
		return nil, err
	}
	eng.Status = domain.EngagementInProgress
	eng.WorkerID = workerID

	// A previous activation attempt may have left a PENDING escrow behind;
	// reuse it instead of fighting the unique index.
	if _, err := uc.escrows.GetByEngagementID(ctx, engagementID); errors.Is(err, domain.ErrNotFound) {
		escrow := &domain.Escrow{
			ID:           uc.refs.Escrow(),
			EngagementID: engagementID,
			Amount:       eng.BaseAmount,
			Currency:     eng.Currency,
			Status:       domain.EscrowPending,
		}
		if err := uc.escrows.Create(ctx, escrow); err != nil {
			uc.rollbackActivation(ctx, engagementID)
			return nil, err
		}
	} else if err != nil {
		uc.rollbackActivation(ctx, engagementID)
		return nil, err
	}

	charge, err := uc.charge(ctx, eng, pricing)
	if err != nil {
		uc.rollbackActivation(ctx, engagementID)
		return nil, err
	}

	uc.logger.Info("project activated",
		zap.String("engagement_id", engagementID),
		zap.String("worker_id", workerID),
		zap.Int64("total_charged", pricing.TotalCharged),
		zap.String("charge_id", charge.ChargeID))
	return &ActivationResult{Engagement: eng, Pricing: pricing, ChargeID: charge.ChargeID}, nil
}

// PlaceOrder is the service-order entry point: purchase activates the
// engagement immediately and charges the client in one step. The escrow row
// is created by the funding confirmation.
func (uc *EngagementUsecase) PlaceOrder(ctx context.Context, in CreateEngagementInput) (*ActivationResult, error) {
	base, err := domain.ParseAmount(in.BaseAmount)
	if err != nil {
		return nil, err
	}
	pricing, err := domain.ComputePricingCents(base)
	if err != nil {
		return nil, err
	}

	eng := &domain.Engagement{
		ID:           uc.refs.New("ENG"),
		Kind:         domain.EngagementKindOrder,
		ClientID:     in.ClientID,
		WorkerID:     in.WorkerID,
		BaseAmount:   base,
		Currency:     in.Currency,
		Status:       domain.EngagementInProgress,
		MaxRevisions: in.MaxRevisions,
	}
	if err := uc.engagements.Create(ctx, eng); err != nil {
		return nil, err
	}

	charge, err := uc.charge(ctx, eng, pricing)
	if err != nil {
		uc.rollbackActivation(ctx, eng.ID)
		return nil, err
	}

	uc.logger.Info("order placed",
		zap.String("engagement_id", eng.ID),
		zap.String("client_id", in.ClientID),
		zap.Int64("total_charged", pricing.TotalCharged),
		zap.String("charge_id", charge.ChargeID))
	return &ActivationResult{Engagement: eng, Pricing: pricing, ChargeID: charge.ChargeID}, nil
}

func (uc *EngagementUsecase) charge(ctx context.Context, eng *domain.Engagement, pricing *domain.Pricing) (*provider.ChargeResult, error) {
	return uc.processor.Charge(ctx, provider.ChargeRequest{
		IdempotencyKey: uuid.NewString(),
		CustomerID:     eng.ClientID,
		Amount:         pricing.TotalCharged,
		Currency:       eng.Currency,
		Reference:      eng.ID,
	})
}

func (uc *EngagementUsecase) rollbackActivation(ctx context.Context, engagementID string) {
	if err := uc.engagements.UpdateStatus(ctx, engagementID, domain.EngagementInProgress, domain.EngagementOpen); err != nil {
		uc.logger.Error("failed to roll back activation",
			zap.String("engagement_id", engagementID),
			zap.Error(err))
	}
}

// SubmitForReview is the worker handing in project work.
func (uc *EngagementUsecase) SubmitForReview(ctx context.Context, engagementID string) error {
	return uc.transition(ctx, engagementID, domain.EngagementPendingReview)
}

// Deliver is the worker delivering a service order.
func (uc *EngagementUsecase) Deliver(ctx context.Context, engagementID string) error {
	return uc.transition(ctx, engagementID, domain.EngagementDelivered)
}

func (uc *EngagementUsecase) Pause(ctx context.Context, engagementID string) error {
	return uc.transition(ctx, engagementID, domain.EngagementPaused)
}

func (uc *EngagementUsecase) Resume(ctx context.Context, engagementID string) error {
	return uc.transition(ctx, engagementID, domain.EngagementInProgress)
}

func (uc *EngagementUsecase) transition(ctx context.Context, engagementID string, to domain.EngagementStatus) error {
	eng, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return err
	}
	if err := eng.CanTransition(to); err != nil {
		return err
	}
	return uc.engagements.UpdateStatus(ctx, engagementID, eng.Status, to)
}

// RequestRevision sends submitted work back to IN_PROGRESS, bounded by the
// engagement's revision allowance.
func (uc *EngagementUsecase) RequestRevision(ctx context.Context, engagementID string) (*domain.Engagement, error) {
	eng, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if err := eng.CanRequestRevision(); err != nil {
		return nil, err
	}
	if err := uc.engagements.IncrementRevisions(ctx, engagementID); err != nil {
		return nil, err
	}
	if err := uc.engagements.UpdateStatus(ctx, engagementID, eng.Status, domain.EngagementInProgress); err != nil {
		return nil, err
	}
	eng.RevisionsUsed++
	eng.Status = domain.EngagementInProgress
	return eng, nil
}

// ApproveDelivery is client approval: the engagement completes and the held
// funds are released. The completion commits first so that the release sees a
// consistent state; if the release fails (the transfer could not be sent) the
// completion is rolled back and both sides are exactly where they started.
func (uc *EngagementUsecase) ApproveDelivery(ctx context.Context, engagementID string) (*ReleaseResult, error) {
	eng, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	if !eng.ReleaseEligible() {
		return nil, domain.ErrInvalidTransition
	}
	prior := eng.Status

	if err := uc.engagements.UpdateStatus(ctx, engagementID, prior, domain.EngagementCompleted); err != nil {
		return nil, err
	}

	result, err := uc.settlement.ReleasePayment(ctx, engagementID)
	if err != nil {
		if rbErr := uc.engagements.UpdateStatus(ctx, engagementID, domain.EngagementCompleted, prior); rbErr != nil {
			uc.logger.Error("failed to roll back completion after release failure",
				zap.String("engagement_id", engagementID),
				zap.Error(rbErr))
		}
		return nil, err
	}

	uc.logger.Info("engagement completed",
		zap.String("engagement_id", engagementID),
		zap.Bool("payout_queued", result.PayoutQueued))
	return result, nil
}

// Cancel tears down an engagement that has not produced work in flight.
// Held funds, if any, go back to the client in full before the status flips.
func (uc *EngagementUsecase) Cancel(ctx context.Context, engagementID, reason string) error {
	eng, err := uc.engagements.GetByID(ctx, engagementID)
	if err != nil {
		return err
	}
	if err := eng.CanTransition(domain.EngagementCancelled); err != nil {
		return err
	}

	escrow, err := uc.escrows.GetByEngagementID(ctx, engagementID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	if escrow != nil && escrow.Refundable() {
		if _, err := uc.settlement.Refund(ctx, engagementID, reason); err != nil {
			return fmt.Errorf("refund on cancel: %w", err)
		}
	}

	if err := uc.engagements.UpdateStatus(ctx, engagementID, eng.Status, domain.EngagementCancelled); err != nil {
		return err
	}
	uc.logger.Info("engagement cancelled",
		zap.String("engagement_id", engagementID),
		zap.String("reason", reason))
	return nil
}

// OpenDispute freezes a funded escrow; DISPUTED funds can only leave via
// refund after operator resolution.
func (uc *EngagementUsecase) OpenDispute(ctx context.Context, engagementID string) error {
	if err := uc.escrows.MarkDisputed(ctx, engagementID); err != nil {
		return err
	}
	uc.logger.Info("dispute opened", zap.String("engagement_id", engagementID))
	return nil
}

func (uc *EngagementUsecase) Get(ctx context.Context, engagementID string) (*domain.Engagement, error) {
	return uc.engagements.GetByID(ctx, engagementID)
}

// LedgerView is the engagement's money history plus the amount still held.
type LedgerView struct {
	Escrow       *domain.Escrow
	Transactions []*domain.Transaction
	HeldAmount   int64
}

func (uc *EngagementUsecase) Ledger(ctx context.Context, engagementID string) (*LedgerView, error) {
	escrow, err := uc.escrows.GetByEngagementID(ctx, engagementID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	trail, err := uc.transactions.ListByEngagement(ctx, engagementID)
	if err != nil {
		return nil, err
	}
	return &LedgerView{
		Escrow:       escrow,
		Transactions: trail,
		HeldAmount:   domain.EngagementBalance(trail),
	}, nil
}

// Quote prices an amount without touching any state.
func (uc *EngagementUsecase) Quote(amount string) (*domain.Pricing, error) {
	base, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, domain.ErrInvalidAmount
	}
	return domain.ComputePricing(base)
}
