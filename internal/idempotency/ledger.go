package idempotency

import (
	"context"
	"errors"
	"fmt"

	"settlement-service/internal/domain"

	"go.uber.org/zap"
)

// DurableChecker answers whether an event has already produced its COMPLETED
// transaction row. The row itself is the durable processed-marker; there is
// no separate table to keep in sync.
type DurableChecker interface {
	Processed(ctx context.Context, eventType, externalRef string) (bool, error)
}

// Result is the outcome of a guarded dispatch.
type Result struct {
	Duplicate bool
}

// Ledger is the two-tier duplicate-detection layer for inbound webhook
// events: an in-memory bounded cache in front of the durable transaction
// check.
type Ledger struct {
	cache   *Cache
	durable DurableChecker
	logger  *zap.Logger
}

func NewLedger(cache *Cache, durable DurableChecker, logger *zap.Logger) *Ledger {
	return &Ledger{cache: cache, durable: durable, logger: logger}
}

func key(eventType, externalRef string) string {
	return eventType + ":" + externalRef
}

// IsProcessed checks the cache first and falls back to the durable check,
// backfilling the cache on a hit.
func (l *Ledger) IsProcessed(ctx context.Context, eventType, externalRef string) (bool, error) {
	k := key(eventType, externalRef)
	if l.cache.Contains(k) {
		return true, nil
	}
	done, err := l.durable.Processed(ctx, eventType, externalRef)
	if err != nil {
		return false, fmt.Errorf("durable idempotency check: %w", err)
	}
	if done {
		l.cache.Add(k)
	}
	return done, nil
}

// MarkProcessed records the event in the cache only. The durable marker is
// the transaction row the handler created; writing a second marker would be a
// second source of truth.
func (l *Ledger) MarkProcessed(eventType, externalRef string) {
	l.cache.Add(key(eventType, externalRef))
}

// WithIdempotency runs handler unless the event was already processed. The
// event is marked processed only on success, so the processor's automatic
// redelivery of a failed event gets to try again. A handler that loses the
// unique-index race reports duplicate, not failure.
func (l *Ledger) WithIdempotency(ctx context.Context, event domain.WebhookEvent, handler func(ctx context.Context) error) (Result, error) {
	done, err := l.IsProcessed(ctx, event.Type, event.ExternalReference)
	if err != nil {
		return Result{}, err
	}
	if done {
		l.logger.Debug("duplicate event skipped",
			zap.String("event_type", event.Type),
			zap.String("external_reference", event.ExternalReference))
		return Result{Duplicate: true}, nil
	}

	if err := handler(ctx); err != nil {
		if errors.Is(err, domain.ErrDuplicateReference) {
			// A concurrent delivery won the insert race; its transaction row
			// is our marker too.
			l.MarkProcessed(event.Type, event.ExternalReference)
			return Result{Duplicate: true}, nil
		}
		return Result{}, err
	}

	l.MarkProcessed(event.Type, event.ExternalReference)
	return Result{}, nil
}
