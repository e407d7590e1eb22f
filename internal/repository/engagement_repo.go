package repository

import (
	"context"
	"time"

	"settlement-service/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EngagementRepository interface {
	Create(ctx context.Context, e *domain.Engagement) error
	GetByID(ctx context.Context, id string) (*domain.Engagement, error)
	// UpdateStatus moves an engagement from the expected status to the next
	// one. It returns ErrInvalidTransition when the row is no longer in the
	// expected status, which makes concurrent double-transitions lose cleanly.
	UpdateStatus(ctx context.Context, id string, from, to domain.EngagementStatus) error
	// AssignWorker records the accepted worker on a project engagement.
	AssignWorker(ctx context.Context, id, workerID string) error
	IncrementRevisions(ctx context.Context, id string) error
}

type engagementRepo struct {
	db *pgxpool.Pool
}

func NewEngagementRepo(db *pgxpool.Pool) EngagementRepository {
	return &engagementRepo{db: db}
}

func (r *engagementRepo) Create(ctx context.Context, e *domain.Engagement) error {
	now := time.Now()
	_, err := r.db.Exec(ctx, `
		INSERT INTO engagements (id, kind, client_id, worker_id, base_amount, currency, status, revisions_used, max_revisions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$10)
	`, e.ID, e.Kind, e.ClientID, e.WorkerID, e.BaseAmount, e.Currency, e.Status, e.RevisionsUsed, e.MaxRevisions, now)
	if err != nil {
		return err
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (r *engagementRepo) GetByID(ctx context.Context, id string) (*domain.Engagement, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, kind, client_id, worker_id, base_amount, currency, status, revisions_used, max_revisions, created_at, updated_at
		FROM engagements
		WHERE id=$1
	`, id)

	var e domain.Engagement
	err := row.Scan(
		&e.ID, &e.Kind, &e.ClientID, &e.WorkerID, &e.BaseAmount, &e.Currency,
		&e.Status, &e.RevisionsUsed, &e.MaxRevisions, &e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &e, nil
}

func (r *engagementRepo) UpdateStatus(ctx context.Context, id string, from, to domain.EngagementStatus) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE engagements SET status=$3, updated_at=$4
		WHERE id=$1 AND status=$2
	`, id, from, to, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInvalidTransition
	}
	return nil
}

func (r *engagementRepo) AssignWorker(ctx context.Context, id, workerID string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE engagements SET worker_id=$2, updated_at=$3
		WHERE id=$1
	`, id, workerID, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *engagementRepo) IncrementRevisions(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE engagements SET revisions_used = revisions_used + 1, updated_at=$2
		WHERE id=$1 AND revisions_used < max_revisions
	`, id, time.Now())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRevisionLimitReached
	}
	return nil
}
