package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// SettlementStore executes the escrow state changes that must commit together
// with their ledger rows. Each method is one all-or-nothing database
// transaction; the escrow row is locked FOR UPDATE for its duration, which is
// the cross-process backstop for per-engagement serialization.
type SettlementStore interface {
	FundEscrow(ctx context.Context, p FundParams) (*domain.Escrow, error)
	ReleaseEscrow(ctx context.Context, p ReleaseParams) (*domain.Escrow, error)
	RefundEscrow(ctx context.Context, p RefundParams) (*domain.Escrow, *domain.Transaction, error)
}

type FundParams struct {
	EscrowID     string // used only when the escrow row does not exist yet
	EngagementID string
	ClientID     string
	Amount       int64
	Currency     string
	// ChargeReference is the processor charge id. The unique index on
	// (type, external_reference) makes a duplicate funding event lose here.
	ChargeReference string
	TransactionID   string
}

type ReleaseParams struct {
	EngagementID string
	WorkerID     string
	// HeldAmount, when non-zero, is the escrow amount the split was computed
	// from. The release aborts if the locked row holds something else.
	HeldAmount    int64
	WorkerNet     int64
	PlatformTotal int64
	// Reference ties the WITHDRAWAL and FEE rows to the transfer (or to an
	// internal release reference when no transfer was sent).
	Reference      string
	WithdrawalTxID string
	FeeTxID        string
	// Payout, when set, is inserted in the same transaction so a release can
	// never commit without its payout record.
	Payout *domain.Payout
}

type RefundParams struct {
	EngagementID  string
	ClientID      string
	Reason        string
	Reference     string
	TransactionID string
}

type settlementStore struct {
	db *pgxpool.Pool
}

func NewSettlementStore(db *pgxpool.Pool) SettlementStore {
	return &settlementStore{db: db}
}

func (s *settlementStore) begin(ctx context.Context) (pgx.Tx, error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{
		IsoLevel:   pgx.ReadCommitted,
		AccessMode: pgx.ReadWrite,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return tx, nil
}

func (s *settlementStore) FundEscrow(ctx context.Context, p FundParams) (*domain.Escrow, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	escrow, err := lockEscrow(ctx, tx, p.EngagementID)
	if errors.Is(err, domain.ErrNotFound) {
		// Service orders have no separate funding step before the charge;
		// the escrow row is created on the funding confirmation itself.
		escrow = &domain.Escrow{
			ID:           p.EscrowID,
			EngagementID: p.EngagementID,
			Amount:       p.Amount,
			Currency:     p.Currency,
			Status:       domain.EscrowPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO escrows (id, engagement_id, amount, currency, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,$6,$6)
		`, escrow.ID, escrow.EngagementID, escrow.Amount, escrow.Currency, escrow.Status, now); err != nil {
			return nil, fmt.Errorf("failed to create escrow: %w", err)
		}
	} else if err != nil {
		return nil, err
	}

	if escrow.Status != domain.EscrowPending {
		return nil, domain.ErrAlreadyFunded
	}

	if err := insertTransactionTx(ctx, tx, &domain.Transaction{
		ID:                p.TransactionID,
		EngagementID:      p.EngagementID,
		UserID:            p.ClientID,
		Type:              domain.TransactionTypeDeposit,
		Amount:            p.Amount,
		Currency:          p.Currency,
		ExternalReference: p.ChargeReference,
		Status:            domain.TransactionCompleted,
		Description:       "escrow funding",
		CreatedAt:         now,
	}); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE escrows SET status=$2, amount=$3, funded_at=$4, updated_at=$4
		WHERE engagement_id=$1
	`, p.EngagementID, domain.EscrowFunded, p.Amount, now); err != nil {
		return nil, fmt.Errorf("failed to mark escrow funded: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit funding: %w", err)
	}

	escrow.Status = domain.EscrowFunded
	escrow.Amount = p.Amount
	escrow.FundedAt = &now
	escrow.UpdatedAt = now
	return escrow, nil
}

func (s *settlementStore) ReleaseEscrow(ctx context.Context, p ReleaseParams) (*domain.Escrow, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	escrow, err := lockEscrow(ctx, tx, p.EngagementID)
	if err != nil {
		return nil, err
	}
	if escrow.Status != domain.EscrowFunded {
		return nil, domain.ErrNotFunded
	}
	if p.HeldAmount != 0 && escrow.Amount != p.HeldAmount {
		return nil, domain.ErrHeldAmountMismatch
	}

	now := time.Now()
	if err := insertTransactionTx(ctx, tx, &domain.Transaction{
		ID:                p.WithdrawalTxID,
		EngagementID:      p.EngagementID,
		UserID:            p.WorkerID,
		Type:              domain.TransactionTypeWithdrawal,
		Amount:            p.WorkerNet,
		Currency:          escrow.Currency,
		ExternalReference: p.Reference,
		Status:            domain.TransactionCompleted,
		Description:       "escrow release, worker net",
		CreatedAt:         now,
	}); err != nil {
		return nil, err
	}
	if err := insertTransactionTx(ctx, tx, &domain.Transaction{
		ID:                p.FeeTxID,
		EngagementID:      p.EngagementID,
		UserID:            domain.PlatformUserID,
		Type:              domain.TransactionTypeFee,
		Amount:            p.PlatformTotal,
		Currency:          escrow.Currency,
		ExternalReference: p.Reference,
		Status:            domain.TransactionCompleted,
		Description:       "platform fee",
		CreatedAt:         now,
	}); err != nil {
		return nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE escrows SET status=$2, released_at=$3, updated_at=$3
		WHERE engagement_id=$1
	`, p.EngagementID, domain.EscrowReleased, now); err != nil {
		return nil, fmt.Errorf("failed to mark escrow released: %w", err)
	}

	if p.Payout != nil {
		if _, err := tx.Exec(ctx, insertPayoutSQL,
			p.Payout.ID, p.Payout.WorkerID, p.Payout.EngagementID,
			p.Payout.Amount, p.Payout.PlatformFee, p.Payout.Currency,
			p.Payout.Status, p.Payout.PendingReason, p.Payout.ExternalTransferID,
			p.Payout.FailureReason, p.Payout.IdempotencyKey, p.Payout.CompletedAt, now); err != nil {
			return nil, fmt.Errorf("failed to create payout: %w", err)
		}
		p.Payout.CreatedAt = now
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit release: %w", err)
	}

	escrow.Status = domain.EscrowReleased
	escrow.ReleasedAt = &now
	escrow.UpdatedAt = now
	return escrow, nil
}

func (s *settlementStore) RefundEscrow(ctx context.Context, p RefundParams) (*domain.Escrow, *domain.Transaction, error) {
	tx, err := s.begin(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback(ctx)

	escrow, err := lockEscrow(ctx, tx, p.EngagementID)
	if err != nil {
		return nil, nil, err
	}
	if !escrow.Refundable() {
		return nil, nil, domain.ErrNotRefundable
	}

	now := time.Now()
	refund := &domain.Transaction{
		ID:                p.TransactionID,
		EngagementID:      p.EngagementID,
		UserID:            p.ClientID,
		Type:              domain.TransactionTypeRefund,
		Amount:            escrow.Amount,
		Currency:          escrow.Currency,
		ExternalReference: p.Reference,
		Status:            domain.TransactionCompleted,
		Description:       p.Reason,
		CreatedAt:         now,
	}
	if err := insertTransactionTx(ctx, tx, refund); err != nil {
		return nil, nil, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE escrows SET status=$2, updated_at=$3
		WHERE engagement_id=$1
	`, p.EngagementID, domain.EscrowRefunded, now); err != nil {
		return nil, nil, fmt.Errorf("failed to mark escrow refunded: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit refund: %w", err)
	}

	escrow.Status = domain.EscrowRefunded
	escrow.UpdatedAt = now
	return escrow, refund, nil
}

func lockEscrow(ctx context.Context, tx pgx.Tx, engagementID string) (*domain.Escrow, error) {
	return scanEscrow(tx.QueryRow(ctx, `
		SELECT id, engagement_id, amount, currency, status, funded_at, released_at, created_at, updated_at
		FROM escrows
		WHERE engagement_id=$1
		FOR UPDATE
	`, engagementID))
}

func insertTransactionTx(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO transactions (id, engagement_id, user_id, type, amount, currency, external_reference, status, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, t.ID, t.EngagementID, t.UserID, t.Type, t.Amount, t.Currency, t.ExternalReference, t.Status, t.Description, t.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateReference
		}
		return fmt.Errorf("failed to create %s transaction: %w", t.Type, err)
	}
	return nil
}
