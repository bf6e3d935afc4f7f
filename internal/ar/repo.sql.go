package ar

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads AR entities outside the reconciliation critical
// section. Writes to invoices, customers and payments happen inside the
// recon package's transactional repository.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const invoiceColumns = `id, number, customer_id, total, paid, balance, status, due_at, paid_at, created_at, updated_at`

func scanInvoice(row pgx.Row) (Invoice, error) {
	var inv Invoice
	err := row.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Total, &inv.Paid, &inv.Balance,
		&inv.Status, &inv.DueAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Invoice{}, ErrInvoiceNotFound
		}
		return Invoice{}, err
	}
	return inv, nil
}

// GetInvoice returns one invoice by id.
func (r *Repository) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id=$1`, id)
	return scanInvoice(row)
}

// ListInvoices returns invoices, optionally filtered by customer and status.
func (r *Repository) ListInvoices(ctx context.Context, customerID int64, status InvoiceStatus) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE ($1 = 0 OR customer_id = $1) AND ($2 = '' OR status = $2) ORDER BY due_at ASC`, customerID, string(status))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

// ListOutstanding returns open invoices ordered by due date.
func (r *Repository) ListOutstanding(ctx context.Context) ([]Invoice, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+invoiceColumns+` FROM invoices
WHERE status IN ('SENT','PARTIALLY_PAID','OVERDUE') ORDER BY due_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectInvoices(rows)
}

func collectInvoices(rows pgx.Rows) ([]Invoice, error) {
	var invoices []Invoice
	for rows.Next() {
		var inv Invoice
		if err := rows.Scan(&inv.ID, &inv.Number, &inv.CustomerID, &inv.Total, &inv.Paid, &inv.Balance,
			&inv.Status, &inv.DueAt, &inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

const customerColumns = `id, code, name, is_active, total_outstanding, total_paid, current_balance, created_at, updated_at`

// GetCustomer returns one customer by id.
func (r *Repository) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `SELECT `+customerColumns+` FROM customers WHERE id=$1`, id).
		Scan(&c.ID, &c.Code, &c.Name, &c.IsActive, &c.TotalOutstanding, &c.TotalPaid, &c.CurrentBalance, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Customer{}, ErrCustomerNotFound
		}
		return Customer{}, err
	}
	return c, nil
}

// ListPayments returns payments, newest first.
func (r *Repository) ListPayments(ctx context.Context, customerID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, number, customer_id, invoice_id, bank_transaction_id, amount, paid_at, method, status, reconciled, note, created_at, updated_at
FROM payments WHERE ($1 = 0 OR customer_id = $1) ORDER BY paid_at DESC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var payments []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.Number, &p.CustomerID, &p.InvoiceID, &p.BankTransactionID, &p.Amount,
			&p.PaidAt, &p.Method, &p.Status, &p.Reconciled, &p.Note, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}
	return payments, rows.Err()
}
