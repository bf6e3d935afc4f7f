package ledger

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/money"
)

// AccountType enumerates CoA categories.
type AccountType string

const (
	AccountTypeAsset     AccountType = "ASSET"
	AccountTypeLiability AccountType = "LIABILITY"
	AccountTypeEquity    AccountType = "EQUITY"
	AccountTypeRevenue   AccountType = "REVENUE"
	AccountTypeExpense   AccountType = "EXPENSE"
)

// Direction marks an entry as a debit or a credit.
type Direction string

const (
	Debit  Direction = "DEBIT"
	Credit Direction = "CREDIT"
)

// Account models a chart of accounts node with its running balance.
// The balance is mutated only inside the same transaction that inserts
// the justifying entries.
type Account struct {
	ID        int64
	Code      string
	Name      string
	Type      AccountType
	Balance   money.Amount
	IsActive  bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Entry is one immutable debit or credit line of a balanced group.
// Entries are never updated except to flag reversal, and never deleted.
type Entry struct {
	ID           int64
	AccountID    int64
	AccountCode  string
	GroupID      uuid.UUID
	Direction    Direction
	Amount       money.Amount
	EntryDate    time.Time
	Description  string
	CustomerID   *int64
	InvoiceID    *int64
	PaymentID    *int64
	CreatedBy    int64
	Reversed     bool
	ReversedByID *int64
	CreatedAt    time.Time
}

// EntryInput describes one line of a posting request.
type EntryInput struct {
	AccountCode string
	Direction   Direction
	Amount      money.Amount
	Description string
	CustomerID  *int64
	InvoiceID   *int64
	PaymentID   *int64
}

// PostingInput groups the lines of one balanced transaction.
type PostingInput struct {
	Entries  []EntryInput
	Date     time.Time
	PostedBy int64
}

var (
	// ErrUnbalanced indicates debit sum != credit sum.
	ErrUnbalanced = errors.New("ledger: entries must balance")
	// ErrTooFewEntries indicates less than two entries.
	ErrTooFewEntries = errors.New("ledger: posting requires at least two entries")
	// ErrNonPositiveAmount indicates a zero or negative entry amount.
	ErrNonPositiveAmount = errors.New("ledger: entry amount must be positive")
	// ErrAccountNotFound indicates a referenced account code does not exist.
	ErrAccountNotFound = errors.New("ledger: account not found")
	// ErrTransactionNotFound indicates a missing transaction group.
	ErrTransactionNotFound = errors.New("ledger: transaction group not found")
	// ErrAlreadyReversed indicates a second reversal of the same group.
	ErrAlreadyReversed = errors.New("ledger: transaction already reversed")
)

// Validate ensures posting input meets minimum criteria before any write.
func (in PostingInput) Validate() error {
	if len(in.Entries) < 2 {
		return ErrTooFewEntries
	}
	debit, credit := money.Zero, money.Zero
	for idx, entry := range in.Entries {
		if entry.AccountCode == "" {
			return fmt.Errorf("ledger: entry %d missing account code", idx)
		}
		if entry.Direction != Debit && entry.Direction != Credit {
			return fmt.Errorf("ledger: entry %d invalid direction %q", idx, entry.Direction)
		}
		if !entry.Amount.IsPositive() {
			return fmt.Errorf("%w: entry %d", ErrNonPositiveAmount, idx)
		}
		if entry.Direction == Debit {
			debit = debit.Add(entry.Amount)
		} else {
			credit = credit.Add(entry.Amount)
		}
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: debits %s credits %s", ErrUnbalanced, debit, credit)
	}
	return nil
}

// balanceDelta returns the signed running-balance effect of an entry on
// an account of the given type. Debits increase asset and expense
// balances; credits increase liability, equity and revenue balances.
func balanceDelta(accountType AccountType, direction Direction, amount money.Amount) money.Amount {
	increases := false
	switch accountType {
	case AccountTypeAsset, AccountTypeExpense:
		increases = direction == Debit
	case AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue:
		increases = direction == Credit
	}
	if increases {
		return amount
	}
	return amount.Neg()
}

// opposite flips a direction for reversal postings.
func opposite(d Direction) Direction {
	if d == Debit {
		return Credit
	}
	return Debit
}
