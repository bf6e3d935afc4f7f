package ar

import (
	"errors"
	"time"

	"github.com/meridian-erp/meridian/internal/money"
)

// InvoiceStatus enumerates invoice lifecycle values. The persisted
// status is a cache of the confirmed-payments computation, never an
// independent source of truth.
type InvoiceStatus string

const (
	InvoiceStatusDraft         InvoiceStatus = "DRAFT"
	InvoiceStatusSent          InvoiceStatus = "SENT"
	InvoiceStatusPartiallyPaid InvoiceStatus = "PARTIALLY_PAID"
	InvoiceStatusPaid          InvoiceStatus = "PAID"
	InvoiceStatusOverdue       InvoiceStatus = "OVERDUE"
	InvoiceStatusCancelled     InvoiceStatus = "CANCELLED"
)

// PaymentStatus enumerates payment confirmation values.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusConfirmed PaymentStatus = "CONFIRMED"
	PaymentStatusFailed    PaymentStatus = "FAILED"
)

// PaymentMethod enumerates how money arrived.
type PaymentMethod string

const (
	MethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	MethodCash         PaymentMethod = "CASH"
	MethodCard         PaymentMethod = "CARD"
)

// Invoice carries total, paid and balance amounts. Paid and Balance are
// recomputed from confirmed payments; Paid + Balance == Total always.
type Invoice struct {
	ID         int64
	Number     string
	CustomerID int64
	Total      money.Amount
	Paid       money.Amount
	Balance    money.Amount
	Status     InvoiceStatus
	DueAt      time.Time
	PaidAt     *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Open reports whether the invoice can still receive payments.
func (i Invoice) Open() bool {
	switch i.Status {
	case InvoiceStatusSent, InvoiceStatusPartiallyPaid, InvoiceStatusOverdue:
		return true
	}
	return false
}

// Customer carries aggregate receivable totals maintained alongside
// each reconciliation.
type Customer struct {
	ID               int64
	Code             string
	Name             string
	IsActive         bool
	TotalOutstanding money.Amount
	TotalPaid        money.Amount
	CurrentBalance   money.Amount
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Payment is one money-received record. Amounts are always positive; a
// refund is a new negative-amount payment, never a mutation.
type Payment struct {
	ID                int64
	Number            string
	CustomerID        int64
	InvoiceID         *int64
	BankTransactionID *int64
	Amount            money.Amount
	PaidAt            time.Time
	Method            PaymentMethod
	Status            PaymentStatus
	Reconciled        bool
	Note              string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AgingBucket summarises outstanding balances by days past due.
type AgingBucket struct {
	Current   money.Amount
	Bucket30  money.Amount
	Bucket60  money.Amount
	Bucket90  money.Amount
	Bucket120 money.Amount
}

var (
	// ErrInvoiceNotFound indicates a missing invoice.
	ErrInvoiceNotFound = errors.New("ar: invoice not found")
	// ErrCustomerNotFound indicates a missing customer.
	ErrCustomerNotFound = errors.New("ar: customer not found")
)
