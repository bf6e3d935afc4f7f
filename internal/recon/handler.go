package recon

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/ar"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// BatchEnqueuer hands a batch reconciliation run to the background queue.
type BatchEnqueuer interface {
	EnqueueAutoReconcile(ctx context.Context, actorID int64) error
}

// Handler manages reconciliation endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	enqueue  BatchEnqueuer
	validate *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// WithEnqueuer makes POST /run enqueue the batch instead of executing it
// inside the request. Without one the batch runs synchronously.
func (h *Handler) WithEnqueuer(enqueue BatchEnqueuer) {
	h.enqueue = enqueue
}

// MountRoutes registers reconciliation routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/bank-transactions/{id}/match", h.match)
	r.Post("/bank-transactions/{id}/reconcile", h.reconcile)
	r.Post("/run", h.runBatch)
}

type matchResponse struct {
	Success       bool   `json:"success"`
	MatchType     string `json:"matchType"`
	Confidence    int    `json:"confidence"`
	CustomerID    *int64 `json:"customerId,omitempty"`
	InvoiceID     *int64 `json:"invoiceId,omitempty"`
	MatchedAmount string `json:"matchedAmount,omitempty"`
	Reason        string `json:"reason"`
}

// match previews the cascade result without committing anything.
func (h *Handler) match(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	result, err := h.service.AutoMatch(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, matchResponse{
		Success:       result.Success,
		MatchType:     string(result.Type),
		Confidence:    result.Confidence,
		CustomerID:    result.CustomerID,
		InvoiceID:     result.InvoiceID,
		MatchedAmount: result.MatchedAmount.String(),
		Reason:        result.Reason,
	})
}

type reconcileRequest struct {
	CustomerID int64  `json:"customerId" validate:"required"`
	InvoiceID  *int64 `json:"invoiceId"`
	ActorID    int64  `json:"actorId"`
	Notes      string `json:"notes"`
}

func (h *Handler) reconcile(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req reconcileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	payment, err := h.service.Reconcile(r.Context(), ReconcileInput{
		BankTransactionID: id,
		CustomerID:        req.CustomerID,
		InvoiceID:         req.InvoiceID,
		ActorID:           req.ActorID,
		Notes:             req.Notes,
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"paymentId":  payment.ID,
		"number":     payment.Number,
		"amount":     payment.Amount.String(),
		"reconciled": payment.Reconciled,
	})
}

type runBatchRequest struct {
	ActorID int64 `json:"actorId"`
}

func (h *Handler) runBatch(w http.ResponseWriter, r *http.Request) {
	var req runBatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if h.enqueue != nil {
		if err := h.enqueue.EnqueueAutoReconcile(r.Context(), req.ActorID); err != nil {
			h.logger.Error("enqueue batch reconciliation", slog.Any("error", err))
			httpx.Problem(w, http.StatusServiceUnavailable, "Queue Unavailable", "")
			return
		}
		httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
		return
	}
	result, err := h.service.AutoReconcileAll(r.Context(), req.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBankTxNotFound), errors.Is(err, ar.ErrCustomerNotFound), errors.Is(err, ar.ErrInvoiceNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyProcessed), errors.Is(err, ErrBatchRunning):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrCustomerMismatch):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Mismatch", err.Error())
	default:
		h.logger.Error("recon handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
