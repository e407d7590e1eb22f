package hrest

import (
	"encoding/json"
	"errors"
	"net/http"

	"settlement-service/internal/domain"
	"settlement-service/internal/usecase"
	"settlement-service/pkg/response"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type SettlementRestHandler struct {
	engagementUC *usecase.EngagementUsecase
	settlementUC *usecase.SettlementUsecase
	logger       *zap.Logger
}

func NewSettlementRestHandler(engagementUC *usecase.EngagementUsecase, settlementUC *usecase.SettlementUsecase, logger *zap.Logger) *SettlementRestHandler {
	return &SettlementRestHandler{
		engagementUC: engagementUC,
		settlementUC: settlementUC,
		logger:       logger,
	}
}

// statusFor maps domain failures onto HTTP statuses. Anything unmapped is a
// server-side failure.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrCancelWhileInProgress),
		errors.Is(err, domain.ErrRevisionLimitReached),
		errors.Is(err, domain.ErrAlreadyFunded),
		errors.Is(err, domain.ErrNotFunded),
		errors.Is(err, domain.ErrNotRefundable),
		errors.Is(err, domain.ErrDuplicateReference),
		errors.Is(err, domain.ErrHeldAmountMismatch),
		errors.Is(err, domain.ErrPayoutNotRetryable):
		return http.StatusConflict
	case errors.Is(err, domain.ErrBelowThreshold),
		errors.Is(err, domain.ErrWorkerPayoutNotConfigured):
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func (h *SettlementRestHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
		response.Error(w, status, "internal error")
		return
	}
	response.Error(w, status, err.Error())
}

type CreateEngagementJSON struct {
	ClientID     string `json:"client_id"`
	WorkerID     string `json:"worker_id"`
	BaseAmount   string `json:"base_amount"`
	Currency     string `json:"currency"`
	MaxRevisions int    `json:"max_revisions"`
}

func (in *CreateEngagementJSON) validate() error {
	if in.ClientID == "" || in.BaseAmount == "" {
		return errors.New("client_id and base_amount are required")
	}
	if in.Currency == "" {
		in.Currency = "USD"
	}
	if in.MaxRevisions <= 0 {
		in.MaxRevisions = 2
	}
	return nil
}

func (h *SettlementRestHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var in CreateEngagementJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	eng, err := h.engagementUC.CreateProject(r.Context(), usecase.CreateEngagementInput{
		Kind:         domain.EngagementKindProject,
		ClientID:     in.ClientID,
		WorkerID:     in.WorkerID,
		BaseAmount:   in.BaseAmount,
		Currency:     in.Currency,
		MaxRevisions: in.MaxRevisions,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, eng)
}

func (h *SettlementRestHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var in CreateEngagementJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := in.validate(); err != nil {
		response.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if in.WorkerID == "" {
		response.Error(w, http.StatusBadRequest, "worker_id is required for orders")
		return
	}

	result, err := h.engagementUC.PlaceOrder(r.Context(), usecase.CreateEngagementInput{
		Kind:         domain.EngagementKindOrder,
		ClientID:     in.ClientID,
		WorkerID:     in.WorkerID,
		BaseAmount:   in.BaseAmount,
		Currency:     in.Currency,
		MaxRevisions: in.MaxRevisions,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, result)
}

type AcceptApplicationJSON struct {
	WorkerID string `json:"worker_id"`
}

func (h *SettlementRestHandler) AcceptApplication(w http.ResponseWriter, r *http.Request) {
	var in AcceptApplicationJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.WorkerID == "" {
		response.Error(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	result, err := h.engagementUC.AcceptApplication(r.Context(), chi.URLParam(r, "id"), in.WorkerID)
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

func (h *SettlementRestHandler) SubmitForReview(w http.ResponseWriter, r *http.Request) {
	if err := h.engagementUC.SubmitForReview(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, nil)
}

func (h *SettlementRestHandler) Deliver(w http.ResponseWriter, r *http.Request) {
	if err := h.engagementUC.Deliver(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, nil)
}

func (h *SettlementRestHandler) Pause(w http.ResponseWriter, r *http.Request) {
	if err := h.engagementUC.Pause(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, nil)
}

func (h *SettlementRestHandler) Resume(w http.ResponseWriter, r *http.Request) {
	if err := h.engagementUC.Resume(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, nil)
}

func (h *SettlementRestHandler) RequestRevision(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engagementUC.RequestRevision(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, eng)
}

// ApproveDelivery completes the engagement and releases the held funds. A
// queued payout is still a success for the client; the body says which
// happened.
func (h *SettlementRestHandler) ApproveDelivery(w http.ResponseWriter, r *http.Request) {
	result, err := h.engagementUC.ApproveDelivery(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, result)
}

type CancelJSON struct {
	Reason string `json:"reason"`
}

func (h *SettlementRestHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	var in CancelJSON
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Reason == "" {
		in.Reason = "cancelled by user"
	}
	if err := h.engagementUC.Cancel(r.Context(), chi.URLParam(r, "id"), in.Reason); err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, nil)
}

func (h *SettlementRestHandler) OpenDispute(w http.ResponseWriter, r *http.Request) {
	if err := h.engagementUC.OpenDispute(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, nil)
}

func (h *SettlementRestHandler) GetEngagement(w http.ResponseWriter, r *http.Request) {
	eng, err := h.engagementUC.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, eng)
}

func (h *SettlementRestHandler) GetLedger(w http.ResponseWriter, r *http.Request) {
	view, err := h.engagementUC.Ledger(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, view)
}

type QuoteJSON struct {
	Amount string `json:"amount"`
}

func (h *SettlementRestHandler) Quote(w http.ResponseWriter, r *http.Request) {
	var in QuoteJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pricing, err := h.engagementUC.Quote(in.Amount)
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, pricing)
}

type RegisterPayoutAccountJSON struct {
	WorkerID string `json:"worker_id"`
	Email    string `json:"email"`
	Country  string `json:"country"`
}

func (h *SettlementRestHandler) RegisterPayoutAccount(w http.ResponseWriter, r *http.Request) {
	var in RegisterPayoutAccountJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if in.WorkerID == "" || in.Email == "" {
		response.Error(w, http.StatusBadRequest, "worker_id and email are required")
		return
	}

	account, err := h.settlementUC.RegisterPayoutAccount(r.Context(), in.WorkerID, in.Email, in.Country)
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusCreated, account)
}

// Admin endpoints below. The router gates them behind the admin token.

func (h *SettlementRestHandler) RetryPayout(w http.ResponseWriter, r *http.Request) {
	payout, err := h.settlementUC.RetryFailedPayout(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, payout)
}

func (h *SettlementRestHandler) FlushAccumulated(w http.ResponseWriter, r *http.Request) {
	results, err := h.settlementUC.ProcessAccumulatedPayouts(r.Context(), chi.URLParam(r, "worker_id"))
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, results)
}

type ReverseTransferJSON struct {
	Amount int64  `json:"amount"` // cents; 0 means full reversal
	Reason string `json:"reason"`
}

func (h *SettlementRestHandler) ReverseTransfer(w http.ResponseWriter, r *http.Request) {
	var in ReverseTransferJSON
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		response.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	txn, err := h.settlementUC.ReverseTransfer(r.Context(), chi.URLParam(r, "id"), in.Amount, in.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, txn)
}

type RefundJSON struct {
	Reason string `json:"reason"`
}

func (h *SettlementRestHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var in RefundJSON
	_ = json.NewDecoder(r.Body).Decode(&in)
	if in.Reason == "" {
		in.Reason = "refund by operator"
	}
	escrow, err := h.settlementUC.Refund(r.Context(), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		h.fail(w, err)
		return
	}
	response.JSON(w, http.StatusOK, escrow)
}
