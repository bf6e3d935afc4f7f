package ledger

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian/internal/money"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler manages ledger endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validate  *validator.Validate
	integrity singleflight.Group
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/transactions", h.postTransaction)
	r.Get("/transactions/{groupID}", h.getTransaction)
	r.Post("/transactions/{groupID}/reverse", h.reverseTransaction)
	r.Get("/integrity", h.verifyIntegrity)
	r.Get("/accounts", h.listAccounts)
}

type entryRequest struct {
	AccountCode string `json:"accountCode" validate:"required"`
	Direction   string `json:"direction" validate:"required,oneof=DEBIT CREDIT"`
	Amount      string `json:"amount" validate:"required"`
	Description string `json:"description"`
	CustomerID  *int64 `json:"customerId"`
	InvoiceID   *int64 `json:"invoiceId"`
	PaymentID   *int64 `json:"paymentId"`
}

type postTransactionRequest struct {
	Entries  []entryRequest `json:"entries" validate:"required,min=2,dive"`
	Date     *time.Time     `json:"date"`
	PostedBy int64          `json:"postedBy"`
}

type entryResponse struct {
	ID          int64  `json:"id"`
	AccountCode string `json:"accountCode"`
	GroupID     string `json:"groupId"`
	Direction   string `json:"direction"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Reversed    bool   `json:"reversed"`
	EntryDate   string `json:"entryDate"`
}

func toEntryResponse(e Entry) entryResponse {
	return entryResponse{
		ID:          e.ID,
		AccountCode: e.AccountCode,
		GroupID:     e.GroupID.String(),
		Direction:   string(e.Direction),
		Amount:      e.Amount.String(),
		Description: e.Description,
		Reversed:    e.Reversed,
		EntryDate:   e.EntryDate.Format(time.RFC3339),
	}
}

func (h *Handler) postTransaction(w http.ResponseWriter, r *http.Request) {
	var req postTransactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	input := PostingInput{PostedBy: req.PostedBy}
	if req.Date != nil {
		input.Date = *req.Date
	}
	for _, e := range req.Entries {
		amount, err := money.Parse(e.Amount)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Amount", err.Error())
			return
		}
		input.Entries = append(input.Entries, EntryInput{
			AccountCode: e.AccountCode,
			Direction:   Direction(e.Direction),
			Amount:      amount,
			Description: e.Description,
			CustomerID:  e.CustomerID,
			InvoiceID:   e.InvoiceID,
			PaymentID:   e.PaymentID,
		})
	}
	entries, err := h.service.PostTransaction(r.Context(), input)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"entries": out})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Group ID", err.Error())
		return
	}
	entries, err := h.service.ListEntries(r.Context(), groupID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": out})
}

type reverseRequest struct {
	ActorID int64  `json:"actorId"`
	Reason  string `json:"reason"`
}

func (h *Handler) reverseTransaction(w http.ResponseWriter, r *http.Request) {
	groupID, err := uuid.Parse(chi.URLParam(r, "groupID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Group ID", err.Error())
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	reversalID, err := h.service.ReverseTransaction(r.Context(), groupID, req.ActorID, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"reversalGroupId": reversalID.String()})
}

// verifyIntegrity collapses concurrent scans into one repository pass.
func (h *Handler) verifyIntegrity(w http.ResponseWriter, r *http.Request) {
	result, err, _ := h.integrity.Do("integrity", func() (any, error) {
		return h.service.VerifyIntegrity(r.Context())
	})
	if err != nil {
		h.respondError(w, err)
		return
	}
	unbalanced, _ := result.([]uuid.UUID)
	ids := make([]string, 0, len(unbalanced))
	for _, id := range unbalanced {
		ids = append(ids, id.String())
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"balanced": len(ids) == 0, "unbalancedGroups": ids})
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.ListAccounts(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	type accountResponse struct {
		ID      int64  `json:"id"`
		Code    string `json:"code"`
		Name    string `json:"name"`
		Type    string `json:"type"`
		Balance string `json:"balance"`
	}
	out := make([]accountResponse, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountResponse{ID: a.ID, Code: a.Code, Name: a.Name, Type: string(a.Type), Balance: a.Balance.String()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": out})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnbalanced), errors.Is(err, ErrTooFewEntries), errors.Is(err, ErrNonPositiveAmount):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Posting", err.Error())
	case errors.Is(err, ErrAccountNotFound), errors.Is(err, ErrTransactionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrAlreadyReversed):
		httpx.Problem(w, http.StatusConflict, "Already Reversed", err.Error())
	default:
		h.logger.Error("ledger handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
