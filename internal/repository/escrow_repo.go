package repository

import (
	"context"
	"time"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EscrowRepository interface {
	Create(ctx context.Context, e *domain.Escrow) error
	GetByEngagementID(ctx context.Context, engagementID string) (*domain.Escrow, error)
	MarkDisputed(ctx context.Context, engagementID string) error
}

type escrowRepo struct {
	db *pgxpool.Pool
}

func NewEscrowRepo(db *pgxpool.Pool) EscrowRepository {
	return &escrowRepo{db: db}
}

func (r *escrowRepo) Create(ctx context.Context, e *domain.Escrow) error {
	now := time.Now()
	_, err := r.db.Exec(ctx, `
		INSERT INTO escrows (id, engagement_id, amount, currency, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
	`, e.ID, e.EngagementID, e.Amount, e.Currency, e.Status, now)
	if err != nil {
		return err
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (r *escrowRepo) GetByEngagementID(ctx context.Context, engagementID string) (*domain.Escrow, error) {
	return scanEscrow(r.db.QueryRow(ctx, `
		SELECT id, engagement_id, amount, currency, status, funded_at, released_at, created_at, updated_at
		FROM escrows
		WHERE engagement_id=$1
	`, engagementID))
}

// MarkDisputed moves a FUNDED escrow into the DISPUTED side-branch.
func (r *escrowRepo) MarkDisputed(ctx context.Context, engagementID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE escrows SET status=$2, updated_at=$3
		WHERE engagement_id=$1 AND status=$4
	`, engagementID, domain.EscrowDisputed, time.Now(), domain.EscrowFunded)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFunded
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEscrow(row rowScanner) (*domain.Escrow, error) {
	var e domain.Escrow
	err := row.Scan(
		&e.ID, &e.EngagementID, &e.Amount, &e.Currency, &e.Status,
		&e.FundedAt, &e.ReleasedAt, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}
