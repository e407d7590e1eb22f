package repository

import (
	"context"
	"errors"
	"time"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type TransactionRepository interface {
	Create(ctx context.Context, t *domain.Transaction) error
	ListByEngagement(ctx context.Context, engagementID string) ([]*domain.Transaction, error)
	// ExistsCompletedByReference is the durable idempotency check: a
	// COMPLETED row with this (type, external_reference) pair means the
	// originating event has already been fully processed.
	ExistsCompletedByReference(ctx context.Context, txType domain.TransactionType, externalRef string) (bool, error)
}

type transactionRepo struct {
	db *pgxpool.Pool
}

func NewTransactionRepo(db *pgxpool.Pool) TransactionRepository {
	return &transactionRepo{db: db}
}

func (r *transactionRepo) Create(ctx context.Context, t *domain.Transaction) error {
	now := time.Now()
	_, err := r.db.Exec(ctx, `
		INSERT INTO transactions (id, engagement_id, user_id, type, amount, currency, external_reference, status, description, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, t.ID, t.EngagementID, t.UserID, t.Type, t.Amount, t.Currency, t.ExternalReference, t.Status, t.Description, now)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateReference
		}
		return err
	}
	t.CreatedAt = now
	return nil
}

func (r *transactionRepo) ListByEngagement(ctx context.Context, engagementID string) ([]*domain.Transaction, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, engagement_id, user_id, type, amount, currency, external_reference, status, description, created_at
		FROM transactions
		WHERE engagement_id=$1
		ORDER BY created_at ASC
	`, engagementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		var t domain.Transaction
		if err := rows.Scan(
			&t.ID, &t.EngagementID, &t.UserID, &t.Type, &t.Amount, &t.Currency,
			&t.ExternalReference, &t.Status, &t.Description, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (r *transactionRepo) ExistsCompletedByReference(ctx context.Context, txType domain.TransactionType, externalRef string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM transactions
			WHERE type=$1 AND external_reference=$2 AND status=$3
		)
	`, txType, externalRef, domain.TransactionCompleted).Scan(&exists)
	if err != nil {
		if err == pgx.ErrNoRows {
			return false, nil
		}
		return false, err
	}
	return exists, nil
}
