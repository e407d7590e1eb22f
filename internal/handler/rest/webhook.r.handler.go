package hrest

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"settlement-service/internal/domain"
	"settlement-service/internal/idempotency"
	"settlement-service/internal/usecase"
	"settlement-service/pkg/response"

	"go.uber.org/zap"
)

const signatureHeader = "X-Processor-Signature"

// WebhookHandler is the public ingress for processor events. Every request is
// signature-verified against the raw body before anything is parsed; an
// unverifiable request produces no side effects of any kind.
type WebhookHandler struct {
	settlementUC *usecase.SettlementUsecase
	ledger       *idempotency.Ledger
	secret       []byte
	logger       *zap.Logger
}

func NewWebhookHandler(settlementUC *usecase.SettlementUsecase, ledger *idempotency.Ledger, secret string, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{
		settlementUC: settlementUC,
		ledger:       ledger,
		secret:       []byte(secret),
		logger:       logger,
	}
}

func (h *WebhookHandler) verify(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, h.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// HandleProcessorEvent accepts a signed event envelope. Delivery is
// at-least-once; a duplicate acks 200 without reprocessing so the processor
// stops redelivering.
func (h *WebhookHandler) HandleProcessorEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "failed to read body")
		return
	}

	if !h.verify(body, r.Header.Get(signatureHeader)) {
		h.logger.Warn("webhook signature verification failed",
			zap.String("remote_addr", r.RemoteAddr))
		response.Error(w, http.StatusUnauthorized, "invalid signature")
		return
	}

	var event domain.WebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid event payload")
		return
	}
	if event.Type == "" || event.ExternalReference == "" {
		response.Error(w, http.StatusBadRequest, "event type and external_reference are required")
		return
	}

	handler, err := h.dispatch(event)
	if err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if handler == nil {
		// Unknown event types are acked so the processor does not retry them.
		h.logger.Debug("ignoring unhandled event type", zap.String("event_type", event.Type))
		response.JSON(w, http.StatusOK, map[string]string{"result": "ignored"})
		return
	}

	result, err := h.ledger.WithIdempotency(r.Context(), event, handler)
	if err != nil {
		h.logger.Error("webhook processing failed",
			zap.String("event_type", event.Type),
			zap.String("external_reference", event.ExternalReference),
			zap.Error(err))
		response.Error(w, http.StatusInternalServerError, "event processing failed")
		return
	}
	if result.Duplicate {
		response.JSON(w, http.StatusOK, map[string]string{"result": "duplicate"})
		return
	}
	response.JSON(w, http.StatusOK, map[string]string{"result": "processed"})
}

// dispatch parses the typed payload and returns the handler to run under the
// idempotency guard. A nil handler with nil error means the type is ignored.
func (h *WebhookHandler) dispatch(event domain.WebhookEvent) (func(ctx context.Context) error, error) {
	switch event.Type {
	case domain.EventChargeSucceeded:
		var p domain.ChargePayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			_, err := h.settlementUC.FundEscrow(ctx, p.EngagementID, p.Amount, event.ExternalReference)
			if errors.Is(err, domain.ErrAlreadyFunded) {
				// The escrow already holds funds under another charge.
				// Redelivering cannot change that, so ack it like a duplicate.
				return domain.ErrDuplicateReference
			}
			return err
		}, nil

	case domain.EventTransferReversed:
		var p domain.ReversalPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			_, err := h.settlementUC.RecordReversal(ctx, p.TransferID, p.Amount, p.Reason, event.ExternalReference)
			return err
		}, nil

	case domain.EventAccountUpdated:
		var p domain.AccountPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return nil, err
		}
		return func(ctx context.Context) error {
			return h.settlementUC.SyncPayoutAccount(ctx, p.WorkerID, p.PayoutsEnabled)
		}, nil
	}
	return nil, nil
}
