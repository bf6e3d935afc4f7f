package ledger

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian/internal/money"
)

// Repository persists ledger entities.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GroupTotal carries the debit and credit sums of one transaction group.
type GroupTotal struct {
	GroupID uuid.UUID
	Debit   money.Amount
	Credit  money.Amount
}

// TxRepository exposes transactional operations.
type TxRepository interface {
	GetAccountByCodeForUpdate(ctx context.Context, code string) (Account, error)
	GetAccountForUpdate(ctx context.Context, id int64) (Account, error)
	InsertEntry(ctx context.Context, entry Entry) (Entry, error)
	ApplyBalanceDelta(ctx context.Context, accountID int64, delta money.Amount) error
	ListEntriesByGroup(ctx context.Context, groupID uuid.UUID) ([]Entry, error)
	MarkEntryReversed(ctx context.Context, entryID, reversedByID int64) error
	ListGroupTotals(ctx context.Context) ([]GroupTotal, error)
	ListAccounts(ctx context.Context) ([]Account, error)
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes fn within a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("ledger repository not initialised")
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

const accountColumns = `id, code, name, type, balance, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Account{}, ErrAccountNotFound
		}
		return Account{}, err
	}
	return a, nil
}

func (r *txRepository) GetAccountByCodeForUpdate(ctx context.Context, code string) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE code=$1 FOR UPDATE`, code)
	return scanAccount(row)
}

func (r *txRepository) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	row := r.tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id=$1 FOR UPDATE`, id)
	return scanAccount(row)
}

func (r *txRepository) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	row := r.tx.QueryRow(ctx, `INSERT INTO ledger_entries
(account_id, group_id, direction, amount, entry_date, description, customer_id, invoice_id, payment_id, created_by)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id, created_at`,
		entry.AccountID, entry.GroupID, entry.Direction, entry.Amount, entry.EntryDate,
		entry.Description, entry.CustomerID, entry.InvoiceID, entry.PaymentID, nullActor(entry.CreatedBy))
	if err := row.Scan(&entry.ID, &entry.CreatedAt); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

func (r *txRepository) ApplyBalanceDelta(ctx context.Context, accountID int64, delta money.Amount) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE accounts SET balance = balance + $2, updated_at = NOW() WHERE id=$1`, accountID, delta)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

const entryColumns = `e.id, e.account_id, a.code, e.group_id, e.direction, e.amount, e.entry_date,
e.description, e.customer_id, e.invoice_id, e.payment_id, e.created_by, e.reversed, e.reversed_by_id, e.created_at`

func (r *txRepository) ListEntriesByGroup(ctx context.Context, groupID uuid.UUID) ([]Entry, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+entryColumns+`
FROM ledger_entries e JOIN accounts a ON a.id = e.account_id
WHERE e.group_id=$1 ORDER BY e.id ASC`, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.AccountID, &e.AccountCode, &e.GroupID, &e.Direction, &e.Amount, &e.EntryDate,
			&e.Description, &e.CustomerID, &e.InvoiceID, &e.PaymentID, &e.CreatedBy, &e.Reversed, &e.ReversedByID, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (r *txRepository) MarkEntryReversed(ctx context.Context, entryID, reversedByID int64) error {
	cmd, err := r.tx.Exec(ctx, `UPDATE ledger_entries SET reversed = TRUE, reversed_by_id = $2 WHERE id=$1 AND reversed = FALSE`, entryID, reversedByID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrAlreadyReversed
	}
	return nil
}

func (r *txRepository) ListGroupTotals(ctx context.Context) ([]GroupTotal, error) {
	rows, err := r.tx.Query(ctx, `SELECT group_id,
COALESCE(SUM(amount) FILTER (WHERE direction='DEBIT'), 0),
COALESCE(SUM(amount) FILTER (WHERE direction='CREDIT'), 0)
FROM ledger_entries WHERE reversed = FALSE GROUP BY group_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var totals []GroupTotal
	for rows.Next() {
		var t GroupTotal
		if err := rows.Scan(&t.GroupID, &t.Debit, &t.Credit); err != nil {
			return nil, err
		}
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

func (r *txRepository) ListAccounts(ctx context.Context) ([]Account, error) {
	rows, err := r.tx.Query(ctx, `SELECT `+accountColumns+` FROM accounts ORDER BY code`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var accounts []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(&a.ID, &a.Code, &a.Name, &a.Type, &a.Balance, &a.IsActive, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func nullActor(val int64) any {
	if val == 0 {
		return nil
	}
	return val
}
