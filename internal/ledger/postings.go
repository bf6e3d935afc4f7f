package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian/internal/money"
)

// Default chart of accounts codes for the built-in business postings.
// Deployments with a different chart override them on the Poster.
const (
	DefaultBankAccountCode  = "1010"
	DefaultReceivablesCode  = "1200"
	DefaultSalesRevenueCode = "4000"
)

// Poster expresses recurring business events as fixed debit/credit pairs
// over the posting engine. New event types get their own named method
// with a fixed pair; the generic engine is never special-cased.
type Poster struct {
	service *Service

	BankAccountCode  string
	ReceivablesCode  string
	SalesRevenueCode string
}

// NewPoster builds a Poster with the default account codes.
func NewPoster(service *Service) *Poster {
	return &Poster{
		service:          service,
		BankAccountCode:  DefaultBankAccountCode,
		ReceivablesCode:  DefaultReceivablesCode,
		SalesRevenueCode: DefaultSalesRevenueCode,
	}
}

// InvoiceCreated carries the fields needed to book a new invoice.
type InvoiceCreated struct {
	InvoiceID  int64
	CustomerID int64
	Number     string
	Total      money.Amount
	Date       time.Time
	PostedBy   int64
}

// PaymentReceived carries the fields needed to book a received payment.
type PaymentReceived struct {
	PaymentID  int64
	InvoiceID  *int64
	CustomerID int64
	Number     string
	Amount     money.Amount
	Date       time.Time
	PostedBy   int64
}

// PostInvoiceCreated books DEBIT accounts receivable, CREDIT sales
// revenue for the invoice total.
func (p *Poster) PostInvoiceCreated(ctx context.Context, event InvoiceCreated) ([]Entry, error) {
	description := fmt.Sprintf("Invoice %s created", event.Number)
	customerID := event.CustomerID
	invoiceID := event.InvoiceID
	return p.service.PostTransaction(ctx, PostingInput{
		Date:     event.Date,
		PostedBy: event.PostedBy,
		Entries: []EntryInput{
			{
				AccountCode: p.ReceivablesCode,
				Direction:   Debit,
				Amount:      event.Total,
				Description: description,
				CustomerID:  &customerID,
				InvoiceID:   &invoiceID,
			},
			{
				AccountCode: p.SalesRevenueCode,
				Direction:   Credit,
				Amount:      event.Total,
				Description: description,
				CustomerID:  &customerID,
				InvoiceID:   &invoiceID,
			},
		},
	})
}

// PostPaymentReceived books DEBIT bank, CREDIT accounts receivable for
// the payment amount.
func (p *Poster) PostPaymentReceived(ctx context.Context, event PaymentReceived) ([]Entry, error) {
	description := fmt.Sprintf("Payment %s received", event.Number)
	customerID := event.CustomerID
	paymentID := event.PaymentID
	return p.service.PostTransaction(ctx, PostingInput{
		Date:     event.Date,
		PostedBy: event.PostedBy,
		Entries: []EntryInput{
			{
				AccountCode: p.BankAccountCode,
				Direction:   Debit,
				Amount:      event.Amount,
				Description: description,
				CustomerID:  &customerID,
				InvoiceID:   event.InvoiceID,
				PaymentID:   &paymentID,
			},
			{
				AccountCode: p.ReceivablesCode,
				Direction:   Credit,
				Amount:      event.Amount,
				Description: description,
				CustomerID:  &customerID,
				InvoiceID:   event.InvoiceID,
				PaymentID:   &paymentID,
			},
		},
	})
}
