package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort counts committed transaction groups.
type MetricsPort interface {
	ObserveLedgerPosting()
}

// Service coordinates posting, reversing and verifying ledger transactions.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	now     func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches a posting counter.
func (s *Service) WithMetrics(metrics MetricsPort) {
	s.metrics = metrics
}

func (s *Service) observePosting() {
	if s.metrics != nil {
		s.metrics.ObserveLedgerPosting()
	}
}

// PostTransaction validates and persists one balanced transaction group.
// Either every entry and balance update commits, or none does.
func (s *Service) PostTransaction(ctx context.Context, input PostingInput) ([]Entry, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}
	date := input.Date
	if date.IsZero() {
		date = s.now()
	}
	groupID := uuid.New()
	var posted []Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		accounts := make(map[string]Account, len(input.Entries))
		for _, in := range input.Entries {
			account, ok := accounts[in.AccountCode]
			if !ok {
				var err error
				account, err = tx.GetAccountByCodeForUpdate(ctx, in.AccountCode)
				if err != nil {
					if errors.Is(err, ErrAccountNotFound) {
						return fmt.Errorf("%w: code %s", ErrAccountNotFound, in.AccountCode)
					}
					return err
				}
				accounts[in.AccountCode] = account
			}
			entry := Entry{
				AccountID:   account.ID,
				AccountCode: account.Code,
				GroupID:     groupID,
				Direction:   in.Direction,
				Amount:      in.Amount,
				EntryDate:   date,
				Description: in.Description,
				CustomerID:  in.CustomerID,
				InvoiceID:   in.InvoiceID,
				PaymentID:   in.PaymentID,
				CreatedBy:   input.PostedBy,
			}
			inserted, err := tx.InsertEntry(ctx, entry)
			if err != nil {
				return err
			}
			if err := tx.ApplyBalanceDelta(ctx, account.ID, balanceDelta(account.Type, in.Direction, in.Amount)); err != nil {
				return err
			}
			posted = append(posted, inserted)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observePosting()
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.PostedBy,
			Action:   "ledger.post",
			Entity:   "ledger_group",
			EntityID: groupID.String(),
			Meta: map[string]any{
				"entries": len(posted),
			},
			At: s.now(),
		})
	}
	return posted, nil
}

// ReverseTransaction books an offsetting group for every entry of the
// original group. History is never edited or deleted; balances return to
// their prior values through the mirrored entries.
func (s *Service) ReverseTransaction(ctx context.Context, groupID uuid.UUID, actorID int64, reason string) (uuid.UUID, error) {
	if groupID == uuid.Nil {
		return uuid.Nil, fmt.Errorf("%w: empty group id", ErrTransactionNotFound)
	}
	reversalGroupID := uuid.New()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		originals, err := tx.ListEntriesByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if len(originals) == 0 {
			return fmt.Errorf("%w: group %s", ErrTransactionNotFound, groupID)
		}
		for _, entry := range originals {
			if entry.Reversed {
				return fmt.Errorf("%w: group %s", ErrAlreadyReversed, groupID)
			}
		}
		for _, original := range originals {
			account, err := tx.GetAccountForUpdate(ctx, original.AccountID)
			if err != nil {
				return err
			}
			mirror := Entry{
				AccountID:   account.ID,
				AccountCode: account.Code,
				GroupID:     reversalGroupID,
				Direction:   opposite(original.Direction),
				Amount:      original.Amount,
				EntryDate:   s.now(),
				Description: reversalDescription(reason, groupID),
				CustomerID:  original.CustomerID,
				InvoiceID:   original.InvoiceID,
				PaymentID:   original.PaymentID,
				CreatedBy:   actorID,
			}
			inserted, err := tx.InsertEntry(ctx, mirror)
			if err != nil {
				return err
			}
			if err := tx.ApplyBalanceDelta(ctx, account.ID, balanceDelta(account.Type, mirror.Direction, mirror.Amount)); err != nil {
				return err
			}
			if err := tx.MarkEntryReversed(ctx, original.ID, inserted.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	s.observePosting()
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "ledger.reverse",
			Entity:   "ledger_group",
			EntityID: groupID.String(),
			Meta: map[string]any{
				"reversal_group": reversalGroupID.String(),
				"reason":         reason,
			},
			At: s.now(),
		})
	}
	return reversalGroupID, nil
}

// VerifyIntegrity scans all non-reversed entries grouped by transaction id
// and returns the ids of groups whose debit and credit sums differ. It is
// a standing consistency check, not a write precondition.
func (s *Service) VerifyIntegrity(ctx context.Context) ([]uuid.UUID, error) {
	var unbalanced []uuid.UUID
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		totals, err := tx.ListGroupTotals(ctx)
		if err != nil {
			return err
		}
		for _, t := range totals {
			if !t.Debit.Equal(t.Credit) {
				unbalanced = append(unbalanced, t.GroupID)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return unbalanced, nil
}

// ListAccounts retrieves the chart of accounts with running balances.
func (s *Service) ListAccounts(ctx context.Context) ([]Account, error) {
	var accounts []Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		accounts, err = tx.ListAccounts(ctx)
		return err
	})
	return accounts, err
}

// ListEntries retrieves all entries in one transaction group.
func (s *Service) ListEntries(ctx context.Context, groupID uuid.UUID) ([]Entry, error) {
	var entries []Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entries, err = tx.ListEntriesByGroup(ctx, groupID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return fmt.Errorf("%w: group %s", ErrTransactionNotFound, groupID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func reversalDescription(reason string, groupID uuid.UUID) string {
	if reason != "" {
		return reason
	}
	return fmt.Sprintf("Reversal of %s", groupID)
}
