package repository

import (
	"context"
	"time"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PayoutAccountRepository interface {
	GetByWorkerID(ctx context.Context, workerID string) (*domain.PayoutAccount, error)
	Upsert(ctx context.Context, a *domain.PayoutAccount) error
	SetPayoutsEnabled(ctx context.Context, workerID string, enabled bool) error
}

type payoutAccountRepo struct {
	db *pgxpool.Pool
}

func NewPayoutAccountRepo(db *pgxpool.Pool) PayoutAccountRepository {
	return &payoutAccountRepo{db: db}
}

func (r *payoutAccountRepo) GetByWorkerID(ctx context.Context, workerID string) (*domain.PayoutAccount, error) {
	row := r.db.QueryRow(ctx, `
		SELECT worker_id, provider, account_id, method, payouts_enabled, created_at, updated_at
		FROM payout_accounts
		WHERE worker_id=$1
	`, workerID)

	var a domain.PayoutAccount
	err := row.Scan(&a.WorkerID, &a.Provider, &a.AccountID, &a.Method, &a.PayoutsEnabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func (r *payoutAccountRepo) Upsert(ctx context.Context, a *domain.PayoutAccount) error {
	now := time.Now()
	_, err := r.db.Exec(ctx, `
		INSERT INTO payout_accounts (worker_id, provider, account_id, method, payouts_enabled, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$6)
		ON CONFLICT (worker_id) DO UPDATE
		SET provider=EXCLUDED.provider, account_id=EXCLUDED.account_id,
		    method=EXCLUDED.method, payouts_enabled=EXCLUDED.payouts_enabled,
		    updated_at=EXCLUDED.updated_at
	`, a.WorkerID, a.Provider, a.AccountID, a.Method, a.PayoutsEnabled, now)
	if err != nil {
		return err
	}
	a.UpdatedAt = now
	return nil
}

func (r *payoutAccountRepo) SetPayoutsEnabled(ctx context.Context, workerID string, enabled bool) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE payout_accounts SET payouts_enabled=$2, updated_at=$3 WHERE worker_id=$1
	`, workerID, enabled, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
