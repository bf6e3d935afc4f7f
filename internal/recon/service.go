package recon

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/ar"
	"github.com/meridian-erp/meridian/internal/ledger"
	"github.com/meridian-erp/meridian/internal/money"
	"github.com/meridian-erp/meridian/internal/shared"
)

// RepositoryPort abstracts reconciliation persistence.
type RepositoryPort interface {
	Lookup
	GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error)
	ListPending(ctx context.Context) ([]BankTransaction, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// LedgerPort posts the accounting effect of a reconciled payment.
type LedgerPort interface {
	PostPaymentReceived(ctx context.Context, event ledger.PaymentReceived) ([]ledger.Entry, error)
}

// AuditPort records reconciliation events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BatchLocker serialises batch runs across workers.
type BatchLocker interface {
	Acquire(ctx context.Context, key string) (bool, error)
	Release(ctx context.Context, key string) error
}

// MetricsPort counts reconciliation outcomes.
type MetricsPort interface {
	ObserveReconciliation(outcome string)
}

// Config tunes the matcher and the batch reconciler.
type Config struct {
	// AutoThreshold is the minimum confidence for automatic commit.
	AutoThreshold int
	// TolerancePct is the amount tolerance band in percent.
	TolerancePct float64
}

// DefaultConfig mirrors the documented 80-point threshold and 1% band.
func DefaultConfig() Config {
	return Config{AutoThreshold: 80, TolerancePct: 1.0}
}

// Service drives matching, committing and batch reconciliation.
type Service struct {
	repo       RepositoryPort
	ledger     LedgerPort
	audit      AuditPort
	lock       BatchLocker
	metrics    MetricsPort
	logger     *slog.Logger
	strategies []Strategy
	cfg        Config
	now        func() time.Time
}

// NewService constructs the reconciliation service with the default
// strategy cascade.
func NewService(repo RepositoryPort, ledgerPort LedgerPort, audit AuditPort, lock BatchLocker, logger *slog.Logger, cfg Config) *Service {
	if cfg.AutoThreshold <= 0 {
		cfg.AutoThreshold = DefaultConfig().AutoThreshold
	}
	if cfg.TolerancePct <= 0 {
		cfg.TolerancePct = DefaultConfig().TolerancePct
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		ledger:     ledgerPort,
		audit:      audit,
		lock:       lock,
		logger:     logger,
		strategies: DefaultStrategies(cfg.TolerancePct),
		cfg:        cfg,
		now:        time.Now,
	}
}

// WithStrategies replaces the matching cascade, in priority order.
func (s *Service) WithStrategies(strategies []Strategy) {
	if len(strategies) > 0 {
		s.strategies = strategies
	}
}

// WithMetrics attaches an outcome counter.
func (s *Service) WithMetrics(metrics MetricsPort) {
	s.metrics = metrics
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// AutoMatch runs the strategy cascade against one PENDING bank
// transaction and returns the first strategy's result.
func (s *Service) AutoMatch(ctx context.Context, bankTxID int64) (MatchResult, error) {
	tx, err := s.repo.GetBankTransaction(ctx, bankTxID)
	if err != nil {
		return MatchResult{}, err
	}
	if tx.Status != BankTxPending {
		return MatchResult{}, fmt.Errorf("%w: transaction %d is %s", ErrAlreadyProcessed, tx.ID, tx.Status)
	}
	for _, strategy := range s.strategies {
		result, err := strategy.Match(ctx, s.repo, tx)
		if err != nil {
			return MatchResult{}, fmt.Errorf("recon: strategy %s: %w", strategy.Name(), err)
		}
		if result != nil {
			return *result, nil
		}
	}
	return NoMatch("no strategy matched"), nil
}

// Reconcile commits a manual (or confirmed) match decision.
func (s *Service) Reconcile(ctx context.Context, input ReconcileInput) (*ar.Payment, error) {
	return s.reconcile(ctx, input, nil)
}

// reconcile applies one reconciliation as a single atomic unit:
// payment, bank line, invoice, customer and log row commit together.
// The ledger post happens after commit and is best-effort; the business
// record is authoritative and the ledger a derived view.
func (s *Service) reconcile(ctx context.Context, input ReconcileInput, match *MatchResult) (*ar.Payment, error) {
	if input.BankTransactionID == 0 {
		return nil, fmt.Errorf("%w: empty bank transaction id", ErrBankTxNotFound)
	}
	if input.CustomerID == 0 {
		return nil, fmt.Errorf("%w: customer required", ar.ErrCustomerNotFound)
	}
	var payment ar.Payment
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		bankTx, err := tx.GetBankTransactionForUpdate(ctx, input.BankTransactionID)
		if err != nil {
			return err
		}
		if bankTx.Status == BankTxMatched {
			return fmt.Errorf("%w: transaction %d already matched", ErrAlreadyProcessed, bankTx.ID)
		}
		customer, err := tx.GetCustomerForUpdate(ctx, input.CustomerID)
		if err != nil {
			return err
		}
		var invoice *ar.Invoice
		if input.InvoiceID != nil {
			loaded, err := tx.GetInvoiceForUpdate(ctx, *input.InvoiceID)
			if err != nil {
				return err
			}
			if loaded.CustomerID != customer.ID {
				return fmt.Errorf("%w: invoice %d belongs to customer %d", ErrCustomerMismatch, loaded.ID, loaded.CustomerID)
			}
			invoice = &loaded
		}

		payment = ar.Payment{
			Number:            paymentNumber(),
			CustomerID:        customer.ID,
			InvoiceID:         input.InvoiceID,
			BankTransactionID: &bankTx.ID,
			Amount:            bankTx.Amount,
			PaidAt:            bankTx.TxDate,
			Method:            ar.MethodBankTransfer,
			Status:            ar.PaymentStatusConfirmed,
			Reconciled:        true,
			Note:              input.Notes,
		}
		payment, err = tx.InsertPayment(ctx, payment)
		if err != nil {
			return err
		}
		if err := tx.UpdateBankTransactionStatus(ctx, bankTx.ID, BankTxMatched); err != nil {
			return err
		}
		if invoice != nil {
			applyPayment(invoice, bankTx.Amount, s.now())
			if err := tx.UpdateInvoiceAmounts(ctx, *invoice); err != nil {
				return err
			}
		}
		customer.TotalPaid = customer.TotalPaid.Add(bankTx.Amount)
		customer.CurrentBalance = customer.TotalOutstanding.Sub(customer.TotalPaid)
		if err := tx.UpdateCustomerTotals(ctx, customer); err != nil {
			return err
		}
		_, err = tx.InsertLog(ctx, logEntryFor(input, bankTx, match))
		return err
	})
	if err != nil {
		s.observe("failed")
		return nil, err
	}
	s.observe("matched")

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.ActorID,
			Action:   "recon.reconcile",
			Entity:   "bank_transaction",
			EntityID: fmt.Sprintf("%d", input.BankTransactionID),
			Meta: map[string]any{
				"payment_id":  payment.ID,
				"customer_id": input.CustomerID,
				"automatic":   match != nil,
			},
			At: s.now(),
		})
	}

	if s.ledger != nil {
		if _, err := s.ledger.PostPaymentReceived(ctx, ledger.PaymentReceived{
			PaymentID:  payment.ID,
			InvoiceID:  payment.InvoiceID,
			CustomerID: payment.CustomerID,
			Number:     payment.Number,
			Amount:     payment.Amount,
			Date:       payment.PaidAt,
			PostedBy:   input.ActorID,
		}); err != nil {
			// The reconciliation stays committed; the ledger is replayed
			// manually from this log line.
			s.logger.Error("ledger post after reconciliation failed",
				slog.Int64("payment_id", payment.ID),
				slog.Int64("bank_transaction_id", input.BankTransactionID),
				slog.Any("error", err))
		}
	}
	return &payment, nil
}

// AutoReconcileAll processes every PENDING statement line oldest-first,
// strictly sequentially. Matches at or above the threshold commit
// automatically; everything else is routed to the manual-review queue.
// One bad line never aborts the batch.
func (s *Service) AutoReconcileAll(ctx context.Context, actorID int64) (BatchResult, error) {
	if s.lock != nil {
		acquired, err := s.lock.Acquire(ctx, shared.ReconBatchLockKey)
		if err != nil {
			s.logger.Warn("batch lock unavailable, running unguarded", slog.Any("error", err))
		} else if !acquired {
			return BatchResult{}, ErrBatchRunning
		} else {
			defer func() {
				if err := s.lock.Release(ctx, shared.ReconBatchLockKey); err != nil {
					s.logger.Warn("batch lock release failed", slog.Any("error", err))
				}
			}()
		}
	}

	pending, err := s.repo.ListPending(ctx)
	if err != nil {
		return BatchResult{}, err
	}
	result := BatchResult{Total: len(pending)}
	for _, bankTx := range pending {
		item := s.processOne(ctx, bankTx, actorID)
		result.Details = append(result.Details, item)
		switch item.Outcome {
		case "matched":
			result.Matched++
		case "unmatched":
			result.Unmatched++
		default:
			result.Failed++
		}
	}
	s.logger.Info("auto reconciliation batch finished",
		slog.Int("total", result.Total),
		slog.Int("matched", result.Matched),
		slog.Int("unmatched", result.Unmatched),
		slog.Int("failed", result.Failed))
	return result, nil
}

func (s *Service) processOne(ctx context.Context, bankTx BankTransaction, actorID int64) (item BatchItem) {
	item = BatchItem{BankTransactionID: bankTx.ID}
	// A panicking strategy or repository fails the line, not the batch.
	defer func() {
		if r := recover(); r != nil {
			item.Outcome = "failed"
			item.Error = fmt.Sprintf("panic: %v", r)
			s.observe("failed")
			s.logger.Error("auto reconciliation item panicked",
				slog.Int64("bank_transaction_id", bankTx.ID),
				slog.Any("panic", r))
		}
	}()
	match, err := s.AutoMatch(ctx, bankTx.ID)
	if err != nil {
		item.Outcome = "failed"
		item.Error = err.Error()
		s.observe("failed")
		return item
	}
	item.Confidence = match.Confidence
	if match.Success && match.Confidence >= s.cfg.AutoThreshold && match.CustomerID != nil {
		payment, err := s.reconcile(ctx, ReconcileInput{
			BankTransactionID: bankTx.ID,
			CustomerID:        *match.CustomerID,
			InvoiceID:         match.InvoiceID,
			ActorID:           actorID,
			Notes:             match.Reason,
		}, &match)
		if err != nil {
			item.Outcome = "failed"
			item.Error = err.Error()
			s.observe("failed")
			return item
		}
		item.Outcome = "matched"
		item.PaymentID = &payment.ID
		return item
	}
	if err := s.markUnmatched(ctx, bankTx, match, actorID); err != nil {
		item.Outcome = "failed"
		item.Error = err.Error()
		s.observe("failed")
		return item
	}
	item.Outcome = "unmatched"
	s.observe("unmatched")
	return item
}

// markUnmatched routes one line to manual review. No ledger entry is
// posted for unmatched lines.
func (s *Service) markUnmatched(ctx context.Context, bankTx BankTransaction, match MatchResult, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateBankTransactionStatus(ctx, bankTx.ID, BankTxUnmatched); err != nil {
			return err
		}
		reason := match.Reason
		if reason == "" {
			reason = "queued for manual review"
		}
		_, err := tx.InsertLog(ctx, LogEntry{
			BankTransactionID: bankTx.ID,
			CustomerID:        match.CustomerID,
			InvoiceID:         match.InvoiceID,
			MatchedAmount:     bankTx.Amount,
			MatchType:         match.Type,
			Confidence:        match.Confidence,
			Reason:            "manual review: " + reason,
			ActorID:           actorID,
			Automatic:         true,
		})
		return err
	})
}

func (s *Service) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveReconciliation(outcome)
	}
}

func logEntryFor(input ReconcileInput, bankTx BankTransaction, match *MatchResult) LogEntry {
	entry := LogEntry{
		BankTransactionID: bankTx.ID,
		CustomerID:        &input.CustomerID,
		InvoiceID:         input.InvoiceID,
		MatchedAmount:     bankTx.Amount,
		MatchType:         MatchManual,
		Reason:            input.Notes,
		ActorID:           input.ActorID,
	}
	if entry.Reason == "" {
		entry.Reason = "manual reconciliation"
	}
	if match != nil {
		entry.MatchType = match.Type
		entry.Confidence = match.Confidence
		entry.Reason = match.Reason
		entry.Automatic = true
	}
	return entry
}

func applyPayment(invoice *ar.Invoice, amount money.Amount, now time.Time) {
	invoice.Paid = invoice.Paid.Add(amount)
	invoice.Balance = invoice.Total.Sub(invoice.Paid)
	switch {
	case invoice.Balance.LessThanOrEqual(money.Zero):
		invoice.Status = ar.InvoiceStatusPaid
		invoice.PaidAt = &now
	case invoice.Paid.IsPositive():
		invoice.Status = ar.InvoiceStatusPartiallyPaid
		invoice.PaidAt = nil
	default:
		invoice.PaidAt = nil
	}
}

func paymentNumber() string {
	return "PAY-" + strings.ToUpper(uuid.NewString()[:8])
}
