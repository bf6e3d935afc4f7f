package ar

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler manages AR read endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers AR routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/invoices", h.listInvoices)
	r.Get("/invoices/{id}", h.getInvoice)
	r.Get("/customers/{id}", h.getCustomer)
	r.Get("/payments", h.listPayments)
	r.Get("/aging", h.aging)
}

type invoiceResponse struct {
	ID         int64  `json:"id"`
	Number     string `json:"number"`
	CustomerID int64  `json:"customerId"`
	Total      string `json:"total"`
	Paid       string `json:"paid"`
	Balance    string `json:"balance"`
	Status     string `json:"status"`
	DueAt      string `json:"dueAt"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	return invoiceResponse{
		ID:         inv.ID,
		Number:     inv.Number,
		CustomerID: inv.CustomerID,
		Total:      inv.Total.String(),
		Paid:       inv.Paid.String(),
		Balance:    inv.Balance.String(),
		Status:     string(inv.Status),
		DueAt:      inv.DueAt.Format(time.RFC3339),
	}
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	var customerID int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		customerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	status := InvoiceStatus(r.URL.Query().Get("status"))
	invoices, err := h.service.ListInvoices(r.Context(), customerID, status)
	if err != nil {
		h.respondError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": out})
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	customer, err := h.service.GetCustomer(r.Context(), id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"id":               customer.ID,
		"code":             customer.Code,
		"name":             customer.Name,
		"totalOutstanding": customer.TotalOutstanding.String(),
		"totalPaid":        customer.TotalPaid.String(),
		"currentBalance":   customer.CurrentBalance.String(),
	})
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	var customerID int64
	if raw := r.URL.Query().Get("customer_id"); raw != "" {
		customerID, _ = strconv.ParseInt(raw, 10, 64)
	}
	payments, err := h.service.ListPayments(r.Context(), customerID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	type paymentResponse struct {
		ID         int64  `json:"id"`
		Number     string `json:"number"`
		CustomerID int64  `json:"customerId"`
		InvoiceID  *int64 `json:"invoiceId,omitempty"`
		Amount     string `json:"amount"`
		Method     string `json:"method"`
		Status     string `json:"status"`
		Reconciled bool   `json:"reconciled"`
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, paymentResponse{
			ID:         p.ID,
			Number:     p.Number,
			CustomerID: p.CustomerID,
			InvoiceID:  p.InvoiceID,
			Amount:     p.Amount.String(),
			Method:     string(p.Method),
			Status:     string(p.Status),
			Reconciled: p.Reconciled,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": out})
}

func (h *Handler) aging(w http.ResponseWriter, r *http.Request) {
	asOf := time.Now()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		asOf = parsed
	}
	bucket, err := h.service.CalculateAging(r.Context(), asOf)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"current": bucket.Current.String(),
		"days30":  bucket.Bucket30.String(),
		"days60":  bucket.Bucket60.String(),
		"days90":  bucket.Bucket90.String(),
		"days120": bucket.Bucket120.String(),
		"asOf":    asOf.Format("2006-01-02"),
	})
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvoiceNotFound), errors.Is(err, ErrCustomerNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		h.logger.Error("ar handler", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
