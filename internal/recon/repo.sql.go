package recon

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/ar"
)

// Repository persists reconciliation entities and serves the matcher's
// read queries.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the operations of the atomic reconciliation unit.
type TxRepository interface {
	GetBankTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error)
	UpdateBankTransactionStatus(ctx context.Context, id int64, status BankTxStatus) error
	GetInvoiceForUpdate(ctx context.Context, id int64) (ar.Invoice, error)
	UpdateInvoiceAmounts(ctx context.Context, invoice ar.Invoice) error
	GetCustomerForUpdate(ctx context.Context, id int64) (ar.Customer, error)
	UpdateCustomerTotals(ctx context.Context, customer ar.Customer) error
	InsertPayment(ctx context.Context, payment ar.Payment) (ar.Payment, error)
	InsertLog(ctx context.Context, entry LogEntry) (LogEntry, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("recon repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const bankTxColumns = `id, amount, reference, tx_date, status, created_at, updated_at`

func scanBankTx(row pgx.Row) (BankTransaction, error) {
	var tx BankTransaction
	err := row.Scan(&tx.ID, &tx.Amount, &tx.Reference, &tx.TxDate, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return BankTransaction{}, ErrBankTxNotFound
		}
		return BankTransaction{}, err
	}
	return tx, nil
}

// GetBankTransaction returns one statement line by id.
func (r *Repository) GetBankTransaction(ctx context.Context, id int64) (BankTransaction, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bankTxColumns+` FROM bank_transactions WHERE id=$1`, id)
	return scanBankTx(row)
}

// ListPending returns PENDING statement lines oldest-first.
func (r *Repository) ListPending(ctx context.Context) ([]BankTransaction, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+bankTxColumns+` FROM bank_transactions WHERE status='PENDING' ORDER BY tx_date ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var txs []BankTransaction
	for rows.Next() {
		var tx BankTransaction
		if err := rows.Scan(&tx.ID, &tx.Amount, &tx.Reference, &tx.TxDate, &tx.Status, &tx.CreatedAt, &tx.UpdatedAt); err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return txs, rows.Err()
}

const invoiceColumns = `id, number, customer_id, total, paid, balance, status, due_at, paid_at, created_at, updated_at`
const openStatuses = `('SENT','PARTIALLY_PAID','OVERDUE')`

func scanInvoicePtr(row pgx.Row) (*ar.Invoice, error) {
	var inv ar.Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Total, &inv.Paid, &inv.Balance,
		&inv.Status, &inv.DueAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &inv, nil
}

// FindOpenInvoiceByNumber implements Lookup.
func (r *Repository) FindOpenInvoiceByNumber(ctx context.Context, number string) (*ar.Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE number=$1 AND status IN `+openStatuses, number)
	return scanInvoicePtr(row)
}

// OldestOpenInvoice implements Lookup.
func (r *Repository) OldestOpenInvoice(ctx context.Context, customerID int64) (*ar.Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE customer_id=$1 AND status IN `+openStatuses+` ORDER BY due_at ASC, id ASC LIMIT 1`, customerID)
	return scanInvoicePtr(row)
}

// ListOpenInvoices implements Lookup; customerID zero means all customers.
func (r *Repository) ListOpenInvoices(ctx context.Context, customerID int64) ([]ar.Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE ($1 = 0 OR customer_id = $1) AND status IN `+openStatuses+` ORDER BY due_at ASC, id ASC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var invoices []ar.Invoice
	for rows.Next() {
		var inv ar.Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Total, &inv.Paid, &inv.Balance,
			&inv.Status, &inv.DueAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

const customerColumns = `id, code, name, is_active, total_outstanding, total_paid, current_balance, created_at, updated_at`

func scanCustomer(row pgx.Row) (ar.Customer, error) {
	var c ar.Customer
	err := row.Scan(&c.ID, &c.Code, &c.Name, &c.IsActive, &c.TotalOutstanding, &c.TotalPaid, &c.CurrentBalance, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ar.Customer{}, ar.ErrCustomerNotFound
		}
		return ar.Customer{}, err
	}
	return c, nil
}

// FindActiveCustomerByCode implements Lookup.
func (r *Repository) FindActiveCustomerByCode(ctx context.Context, code string) (*ar.Customer, error) {
	customer, err := scanCustomer(r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE code=$1 AND is_active`, code))
	if err != nil {
		if errors.Is(err, ar.ErrCustomerNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &customer, nil
}

// ListActiveCustomers implements Lookup.
func (r *Repository) ListActiveCustomers(ctx context.Context) ([]ar.Customer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+customerColumns+` FROM customers WHERE is_active ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var customers []ar.Customer
	for rows.Next() {
		var c ar.Customer
		if err := rows.Scan(&c.ID, &c.Code, &c.Name, &c.IsActive, &c.TotalOutstanding, &c.TotalPaid, &c.CurrentBalance, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		customers = append(customers, c)
	}
	return customers, rows.Err()
}

func (r *txRepository) GetBankTransactionForUpdate(ctx context.Context, id int64) (BankTransaction, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+bankTxColumns+` FROM bank_transactions WHERE id=$1 FOR UPDATE`, id)
	return scanBankTx(row)
}

func (r *txRepository) UpdateBankTransactionStatus(ctx context.Context, id int64, status BankTxStatus) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE bank_transactions SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrBankTxNotFound
	}
	return nil
}

func (r *txRepository) GetInvoiceForUpdate(ctx context.Context, id int64) (ar.Invoice, error) {
	invoice, err := scanInvoicePtr(r.tx.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		return ar.Invoice{}, err
	}
	if invoice == nil {
		return ar.Invoice{}, ar.ErrInvoiceNotFound
	}
	return *invoice, nil
}

func (r *txRepository) UpdateInvoiceAmounts(ctx context.Context, invoice ar.Invoice) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE invoices SET paid=$2, balance=$3, status=$4, paid_at=$5, updated_at=NOW() WHERE id=$1`,
		invoice.ID, invoice.Paid, invoice.Balance, invoice.Status, invoice.PaidAt)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ar.ErrInvoiceNotFound
	}
	return nil
}

func (r *txRepository) GetCustomerForUpdate(ctx context.Context, id int64) (ar.Customer, error) {
	return scanCustomer(r.tx.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1 FOR UPDATE`, id))
}

func (r *txRepository) UpdateCustomerTotals(ctx context.Context, customer ar.Customer) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE customers SET total_outstanding=$2, total_paid=$3, current_balance=$4, updated_at=NOW() WHERE id=$1`,
		customer.ID, customer.TotalOutstanding, customer.TotalPaid, customer.CurrentBalance)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ar.ErrCustomerNotFound
	}
	return nil
}

func (r *txRepository) InsertPayment(ctx context.Context, payment ar.Payment) (ar.Payment, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO payments
(number, customer_id, invoice_id, bank_transaction_id, amount, paid_at, method, status, reconciled, note)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at, updated_at`,
		payment.Number, payment.CustomerID, payment.InvoiceID, payment.BankTransactionID, payment.Amount,
		payment.PaidAt, payment.Method, payment.Status, payment.Reconciled, payment.Note)
	if err := row.Scan(&payment.ID, &payment.CreatedAt, &payment.UpdatedAt); err != nil {
		return ar.Payment{}, err
	}
	return payment, nil
}

func (r *txRepository) InsertLog(ctx context.Context, entry LogEntry) (LogEntry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO reconciliation_logs
(bank_transaction_id, customer_id, invoice_id, matched_amount, match_type, confidence, reason, actor_id, automatic)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) RETURNING id, created_at`,
		entry.BankTransactionID, entry.CustomerID, entry.InvoiceID, entry.MatchedAmount, entry.MatchType,
		entry.Confidence, entry.Reason, entry.ActorID, entry.Automatic)
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return LogEntry{}, err
	}
	return entry, nil
}
