package recon

import (
	"errors"
	"time"

	"github.com/meridian-erp/meridian/internal/money"
)

// BankTxStatus enumerates bank statement line states. MATCHED is
// terminal; UNMATCHED lines stay eligible for manual reconciliation.
type BankTxStatus string

const (
	BankTxPending   BankTxStatus = "PENDING"
	BankTxMatched   BankTxStatus = "MATCHED"
	BankTxUnmatched BankTxStatus = "UNMATCHED"
)

// BankTransaction is one imported statement line. Import and parsing
// happen upstream; this package only consumes them.
type BankTransaction struct {
	ID        int64
	Amount    money.Amount
	Reference string
	TxDate    time.Time
	Status    BankTxStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// MatchType labels how a match was found.
type MatchType string

const (
	MatchExact   MatchType = "EXACT"
	MatchPartial MatchType = "PARTIAL"
	MatchFuzzy   MatchType = "FUZZY"
	MatchAmount  MatchType = "AMOUNT"
	MatchManual  MatchType = "MANUAL"
	MatchNone    MatchType = "NONE"
)

// MatchResult is the outcome of one matching attempt. Confidence is a
// 0-100 heuristic score used as the auto-apply threshold.
type MatchResult struct {
	Success       bool
	Type          MatchType
	Confidence    int
	CustomerID    *int64
	InvoiceID     *int64
	MatchedAmount money.Amount
	Reason        string
}

// NoMatch is the result returned when every strategy declines.
func NoMatch(reason string) MatchResult {
	return MatchResult{Success: false, Type: MatchNone, Confidence: 0, Reason: reason}
}

// LogEntry is an append-only audit record of one match decision.
type LogEntry struct {
	ID                int64
	BankTransactionID int64
	CustomerID        *int64
	InvoiceID         *int64
	MatchedAmount     money.Amount
	MatchType         MatchType
	Confidence        int
	Reason            string
	ActorID           int64
	Automatic         bool
	CreatedAt         time.Time
}

// ReconcileInput groups parameters for committing one reconciliation.
type ReconcileInput struct {
	BankTransactionID int64
	CustomerID        int64
	InvoiceID         *int64
	ActorID           int64
	Notes             string
}

// BatchItem reports the outcome for one bank transaction in a batch run.
type BatchItem struct {
	BankTransactionID int64  `json:"bankTransactionId"`
	Outcome           string `json:"outcome"`
	Confidence        int    `json:"confidence"`
	PaymentID         *int64 `json:"paymentId,omitempty"`
	Error             string `json:"error,omitempty"`
}

// BatchResult aggregates one auto-reconciliation run.
type BatchResult struct {
	Total     int         `json:"total"`
	Matched   int         `json:"matched"`
	Unmatched int         `json:"unmatched"`
	Failed    int         `json:"failed"`
	Details   []BatchItem `json:"details"`
}

var (
	// ErrBankTxNotFound indicates a missing bank transaction.
	ErrBankTxNotFound = errors.New("recon: bank transaction not found")
	// ErrAlreadyProcessed indicates the bank transaction is not open for matching.
	ErrAlreadyProcessed = errors.New("recon: bank transaction already processed")
	// ErrCustomerMismatch indicates the invoice does not belong to the customer.
	ErrCustomerMismatch = errors.New("recon: invoice does not belong to customer")
	// ErrBatchRunning indicates another auto-reconciliation run holds the lock.
	ErrBatchRunning = errors.New("recon: batch reconciliation already running")
)
