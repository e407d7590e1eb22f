// settlement-service/internal/pub/pub.go
package pub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const SettlementEventsTopic = "settlement_events"

// Event types consumed by the notification layer.
const (
	EventEscrowFunded     = "escrow.funded"
	EventEscrowReleased   = "escrow.released"
	EventEscrowRefunded   = "escrow.refunded"
	EventPayoutQueued     = "payout.queued"
	EventPayoutCompleted  = "payout.completed"
	EventPayoutFailed     = "payout.failed"
	EventTransferReversed = "transfer.reversed"
)

type SettlementEvent struct {
	EventType    string    `json:"event_type"`
	EngagementID string    `json:"engagement_id,omitempty"`
	WorkerID     string    `json:"worker_id,omitempty"`
	ClientID     string    `json:"client_id,omitempty"`
	PayoutID     string    `json:"payout_id,omitempty"`
	TransferID   string    `json:"transfer_id,omitempty"`
	Amount       int64     `json:"amount,omitempty"` // cents
	Currency     string    `json:"currency,omitempty"`
	Reason       string    `json:"reason,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// SettlementEventPublisher pushes settlement lifecycle events onto Kafka.
// The notification service owns delivery to users; the engine only publishes.
type SettlementEventPublisher struct {
	writer *kafka.Writer
	logger *zap.Logger
}

func NewSettlementEventPublisher(brokers []string, logger *zap.Logger) *SettlementEventPublisher {
	return &SettlementEventPublisher{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    SettlementEventsTopic,
			Balancer: &kafka.LeastBytes{},
		},
		logger: logger,
	}
}

// Publish emits the event keyed by engagement so per-engagement ordering is
// preserved. Publish failures are logged, never surfaced: notifications are
// best-effort and must not fail a settlement that already committed.
func (p *SettlementEventPublisher) Publish(ctx context.Context, event SettlementEvent) error {
	if p == nil || p.writer == nil {
		return nil
	}
	event.Timestamp = time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	key := event.EngagementID
	if key == "" {
		key = event.WorkerID
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Time:  time.Now(),
	}); err != nil {
		p.logger.Warn("failed to publish settlement event",
			zap.String("event_type", event.EventType),
			zap.String("engagement_id", event.EngagementID),
			zap.Error(err))
		return nil
	}
	return nil
}

func (p *SettlementEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
