package repository

import (
	"context"
	"time"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PayoutRepository interface {
	Create(ctx context.Context, p *domain.Payout) error
	GetByID(ctx context.Context, id string) (*domain.Payout, error)
	GetByExternalTransferID(ctx context.Context, transferID string) (*domain.Payout, error)
	// ListAccumulated returns the worker's PENDING below-threshold rows,
	// oldest first.
	ListAccumulated(ctx context.Context, workerID string) ([]*domain.Payout, error)
	ListFailed(ctx context.Context, limit int) ([]*domain.Payout, error)
	// WorkersOverThreshold lists workers with at least one currency whose
	// accumulated pending earnings have crossed the minimum payout threshold.
	// Sums are taken per currency; amounts never mix across currencies.
	WorkersOverThreshold(ctx context.Context, threshold int64) ([]string, error)
	// CompleteBatch closes a set of pending rows with one shared transfer id,
	// atomically.
	CompleteBatch(ctx context.Context, ids []string, transferID string) error
	// Supersede atomically deletes a FAILED row and inserts its COMPLETED
	// replacement. Failed attempts are not permanent history.
	Supersede(ctx context.Context, failedID string, replacement *domain.Payout) error
	UpdateFailureReason(ctx context.Context, id, reason string) error
}

type payoutRepo struct {
	db *pgxpool.Pool
}

func NewPayoutRepo(db *pgxpool.Pool) PayoutRepository {
	return &payoutRepo{db: db}
}

func (r *payoutRepo) Create(ctx context.Context, p *domain.Payout) error {
	now := time.Now()
	_, err := r.db.Exec(ctx, insertPayoutSQL,
		p.ID, p.WorkerID, p.EngagementID, p.Amount, p.PlatformFee, p.Currency,
		p.Status, p.PendingReason, p.ExternalTransferID, p.FailureReason,
		p.IdempotencyKey, p.CompletedAt, now)
	if err != nil {
		return err
	}
	p.CreatedAt = now
	return nil
}

const insertPayoutSQL = `
	INSERT INTO payouts (id, worker_id, engagement_id, amount, platform_fee, currency, status, pending_reason, external_transfer_id, failure_reason, idempotency_key, completed_at, created_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`

const selectPayoutSQL = `
	SELECT id, worker_id, engagement_id, amount, platform_fee, currency, status, pending_reason, external_transfer_id, failure_reason, idempotency_key, completed_at, created_at
	FROM payouts
`

func (r *payoutRepo) GetByID(ctx context.Context, id string) (*domain.Payout, error) {
	return scanPayout(r.db.QueryRow(ctx, selectPayoutSQL+` WHERE id=$1`, id))
}

func (r *payoutRepo) GetByExternalTransferID(ctx context.Context, transferID string) (*domain.Payout, error) {
	return scanPayout(r.db.QueryRow(ctx, selectPayoutSQL+` WHERE external_transfer_id=$1`, transferID))
}

func (r *payoutRepo) ListAccumulated(ctx context.Context, workerID string) ([]*domain.Payout, error) {
	rows, err := r.db.Query(ctx, selectPayoutSQL+`
		WHERE worker_id=$1 AND status=$2 AND pending_reason=$3
		ORDER BY created_at ASC
	`, workerID, domain.PayoutPending, domain.PendingBelowThreshold)
	if err != nil {
		return nil, err
	}
	return collectPayouts(rows)
}

func (r *payoutRepo) ListFailed(ctx context.Context, limit int) ([]*domain.Payout, error) {
	rows, err := r.db.Query(ctx, selectPayoutSQL+`
		WHERE status=$1
		ORDER BY created_at ASC
		LIMIT $2
	`, domain.PayoutFailed, limit)
	if err != nil {
		return nil, err
	}
	return collectPayouts(rows)
}

func (r *payoutRepo) WorkersOverThreshold(ctx context.Context, threshold int64) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT worker_id FROM (
			SELECT worker_id FROM payouts
			WHERE status=$1 AND pending_reason=$2
			GROUP BY worker_id, currency
			HAVING SUM(amount) >= $3
		) qualified
	`, domain.PayoutPending, domain.PendingBelowThreshold, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var workers []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		workers = append(workers, id)
	}
	return workers, rows.Err()
}

func (r *payoutRepo) CompleteBatch(ctx context.Context, ids []string, transferID string) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	now := time.Now()
	tag, err := tx.Exec(ctx, `
		UPDATE payouts
		SET status=$1, external_transfer_id=$2, pending_reason='', completed_at=$3
		WHERE id = ANY($4) AND status=$5
	`, domain.PayoutCompleted, transferID, now, ids, domain.PayoutPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != int64(len(ids)) {
		// Someone else closed part of the batch; abort rather than
		// double-complete.
		return domain.ErrPayoutNotRetryable
	}
	return tx.Commit(ctx)
}

func (r *payoutRepo) Supersede(ctx context.Context, failedID string, replacement *domain.Payout) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted, AccessMode: pgx.ReadWrite})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `DELETE FROM payouts WHERE id=$1 AND status=$2`, failedID, domain.PayoutFailed)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrPayoutNotRetryable
	}

	now := time.Now()
	if _, err := tx.Exec(ctx, insertPayoutSQL,
		replacement.ID, replacement.WorkerID, replacement.EngagementID,
		replacement.Amount, replacement.PlatformFee, replacement.Currency,
		replacement.Status, replacement.PendingReason, replacement.ExternalTransferID,
		replacement.FailureReason, replacement.IdempotencyKey, replacement.CompletedAt, now); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *payoutRepo) UpdateFailureReason(ctx context.Context, id, reason string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE payouts SET failure_reason=$2 WHERE id=$1 AND status=$3
	`, id, reason, domain.PayoutFailed)
	return err
}

func scanPayout(row rowScanner) (*domain.Payout, error) {
	var p domain.Payout
	err := row.Scan(
		&p.ID, &p.WorkerID, &p.EngagementID, &p.Amount, &p.PlatformFee, &p.Currency,
		&p.Status, &p.PendingReason, &p.ExternalTransferID, &p.FailureReason,
		&p.IdempotencyKey, &p.CompletedAt, &p.CreatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

func collectPayouts(rows pgx.Rows) ([]*domain.Payout, error) {
	defer rows.Close()

	var out []*domain.Payout
	for rows.Next() {
		p, err := scanPayout(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
