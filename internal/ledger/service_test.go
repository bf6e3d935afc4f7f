package ledger

import (
	"context"
	"sort"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/money"
	"github.com/meridian-erp/meridian/internal/shared"
)

type memoryLedgerRepo struct {
	accounts    map[int64]Account
	byCode      map[string]int64
	entries     map[int64]Entry
	nextEntryID int64
}

func newMemoryLedgerRepo() *memoryLedgerRepo {
	return &memoryLedgerRepo{
		accounts: make(map[int64]Account),
		byCode:   make(map[string]int64),
		entries:  make(map[int64]Entry),
	}
}

func (r *memoryLedgerRepo) addAccount(id int64, code string, typ AccountType) {
	r.accounts[id] = Account{ID: id, Code: code, Type: typ, Balance: money.Zero, IsActive: true}
	r.byCode[code] = id
}

func (r *memoryLedgerRepo) clone() *memoryLedgerRepo {
	c := newMemoryLedgerRepo()
	for id, a := range r.accounts {
		c.accounts[id] = a
	}
	for code, id := range r.byCode {
		c.byCode[code] = id
	}
	for id, e := range r.entries {
		c.entries[id] = e
	}
	c.nextEntryID = r.nextEntryID
	return c
}

// WithTx runs fn against a copy and commits it only on success, so a
// failed callback leaves the repo untouched.
func (r *memoryLedgerRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := r.clone()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	*r = *tx
	return nil
}

func (r *memoryLedgerRepo) GetAccountByCodeForUpdate(ctx context.Context, code string) (Account, error) {
	id, ok := r.byCode[code]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return r.accounts[id], nil
}

func (r *memoryLedgerRepo) GetAccountForUpdate(ctx context.Context, id int64) (Account, error) {
	a, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryLedgerRepo) InsertEntry(ctx context.Context, entry Entry) (Entry, error) {
	r.nextEntryID++
	entry.ID = r.nextEntryID
	r.entries[entry.ID] = entry
	return entry, nil
}

func (r *memoryLedgerRepo) ApplyBalanceDelta(ctx context.Context, accountID int64, delta money.Amount) error {
	a, ok := r.accounts[accountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(delta)
	r.accounts[accountID] = a
	return nil
}

func (r *memoryLedgerRepo) ListEntriesByGroup(ctx context.Context, groupID uuid.UUID) ([]Entry, error) {
	var out []Entry
	for _, e := range r.entries {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryLedgerRepo) MarkEntryReversed(ctx context.Context, entryID, reversedByID int64) error {
	e, ok := r.entries[entryID]
	if !ok || e.Reversed {
		return ErrAlreadyReversed
	}
	e.Reversed = true
	e.ReversedByID = &reversedByID
	r.entries[entryID] = e
	return nil
}

func (r *memoryLedgerRepo) ListGroupTotals(ctx context.Context) ([]GroupTotal, error) {
	totals := make(map[uuid.UUID]*GroupTotal)
	for _, e := range r.entries {
		if e.Reversed {
			continue
		}
		t, ok := totals[e.GroupID]
		if !ok {
			t = &GroupTotal{GroupID: e.GroupID, Debit: money.Zero, Credit: money.Zero}
			totals[e.GroupID] = t
		}
		if e.Direction == Debit {
			t.Debit = t.Debit.Add(e.Amount)
		} else {
			t.Credit = t.Credit.Add(e.Amount)
		}
	}
	var out []GroupTotal
	for _, t := range totals {
		out = append(out, *t)
	}
	return out, nil
}

func (r *memoryLedgerRepo) ListAccounts(ctx context.Context) ([]Account, error) {
	var out []Account
	for _, a := range r.accounts {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (r *memoryLedgerRepo) balanceOf(code string) money.Amount {
	return r.accounts[r.byCode[code]].Balance
}

type recordingAudit struct {
	logs []shared.AuditLog
}

func (a *recordingAudit) Record(ctx context.Context, log shared.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func newTestLedger() (*Service, *memoryLedgerRepo, *recordingAudit) {
	repo := newMemoryLedgerRepo()
	repo.addAccount(1, "1010", AccountTypeAsset)
	repo.addAccount(2, "1200", AccountTypeAsset)
	repo.addAccount(3, "4000", AccountTypeRevenue)
	audit := &recordingAudit{}
	return NewService(repo, audit), repo, audit
}

func TestPostTransactionUpdatesBalances(t *testing.T) {
	svc, repo, audit := newTestLedger()

	posted, err := svc.PostTransaction(context.Background(), PostingInput{
		PostedBy: 7,
		Entries: []EntryInput{
			{AccountCode: "1200", Direction: Debit, Amount: money.MustParse("500.00"), Description: "Invoice INV-2026-0001"},
			{AccountCode: "4000", Direction: Credit, Amount: money.MustParse("500.00"), Description: "Invoice INV-2026-0001"},
		},
	})
	require.NoError(t, err)
	require.Len(t, posted, 2)
	require.Equal(t, posted[0].GroupID, posted[1].GroupID)

	require.True(t, repo.balanceOf("1200").Equal(money.MustParse("500.00")))
	require.True(t, repo.balanceOf("4000").Equal(money.MustParse("500.00")))

	unbalanced, err := svc.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	require.Empty(t, unbalanced)

	require.Len(t, audit.logs, 1)
	require.Equal(t, "ledger.post", audit.logs[0].Action)
}

func TestPostTransactionRejectsImbalance(t *testing.T) {
	svc, repo, _ := newTestLedger()

	_, err := svc.PostTransaction(context.Background(), PostingInput{
		Entries: []EntryInput{
			{AccountCode: "1200", Direction: Debit, Amount: money.MustParse("500.00")},
			{AccountCode: "4000", Direction: Credit, Amount: money.MustParse("499.99")},
		},
	})
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Empty(t, repo.entries)
	require.True(t, repo.balanceOf("1200").IsZero())
	require.True(t, repo.balanceOf("4000").IsZero())
}

func TestPostTransactionRejectsTooFewEntries(t *testing.T) {
	svc, _, _ := newTestLedger()

	_, err := svc.PostTransaction(context.Background(), PostingInput{
		Entries: []EntryInput{
			{AccountCode: "1200", Direction: Debit, Amount: money.MustParse("10.00")},
		},
	})
	require.ErrorIs(t, err, ErrTooFewEntries)
}

func TestPostTransactionRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestLedger()

	_, err := svc.PostTransaction(context.Background(), PostingInput{
		Entries: []EntryInput{
			{AccountCode: "1200", Direction: Debit, Amount: money.Zero},
			{AccountCode: "4000", Direction: Credit, Amount: money.Zero},
		},
	})
	require.ErrorIs(t, err, ErrNonPositiveAmount)
}

func TestPostTransactionUnknownAccountWritesNothing(t *testing.T) {
	svc, repo, _ := newTestLedger()

	_, err := svc.PostTransaction(context.Background(), PostingInput{
		Entries: []EntryInput{
			{AccountCode: "1200", Direction: Debit, Amount: money.MustParse("100.00")},
			{AccountCode: "9999", Direction: Credit, Amount: money.MustParse("100.00")},
		},
	})
	require.ErrorIs(t, err, ErrAccountNotFound)
	require.Empty(t, repo.entries)
	require.True(t, repo.balanceOf("1200").IsZero())
}

func TestReverseTransactionRestoresBalances(t *testing.T) {
	svc, repo, audit := newTestLedger()

	posted, err := svc.PostTransaction(context.Background(), PostingInput{
		PostedBy: 7,
		Entries: []EntryInput{
			{AccountCode: "1010", Direction: Debit, Amount: money.MustParse("820.50")},
			{AccountCode: "1200", Direction: Credit, Amount: money.MustParse("820.50")},
		},
	})
	require.NoError(t, err)
	groupID := posted[0].GroupID

	reversalID, err := svc.ReverseTransaction(context.Background(), groupID, 9, "posted in error")
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, reversalID)
	require.NotEqual(t, groupID, reversalID)

	require.True(t, repo.balanceOf("1010").IsZero())
	require.True(t, repo.balanceOf("1200").IsZero())

	originals, err := svc.ListEntries(context.Background(), groupID)
	require.NoError(t, err)
	for _, e := range originals {
		require.True(t, e.Reversed)
		require.NotNil(t, e.ReversedByID)
	}

	mirrors, err := svc.ListEntries(context.Background(), reversalID)
	require.NoError(t, err)
	require.Len(t, mirrors, len(originals))
	for i, m := range mirrors {
		require.Equal(t, opposite(originals[i].Direction), m.Direction)
		require.True(t, m.Amount.Equal(originals[i].Amount))
		require.False(t, m.Reversed)
	}

	unbalanced, err := svc.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	require.Empty(t, unbalanced)

	require.Len(t, audit.logs, 2)
	require.Equal(t, "ledger.reverse", audit.logs[1].Action)
}

func TestReverseTransactionTwiceFails(t *testing.T) {
	svc, repo, _ := newTestLedger()

	posted, err := svc.PostTransaction(context.Background(), PostingInput{
		Entries: []EntryInput{
			{AccountCode: "1010", Direction: Debit, Amount: money.MustParse("50.00")},
			{AccountCode: "4000", Direction: Credit, Amount: money.MustParse("50.00")},
		},
	})
	require.NoError(t, err)
	groupID := posted[0].GroupID

	_, err = svc.ReverseTransaction(context.Background(), groupID, 1, "")
	require.NoError(t, err)

	entriesBefore := len(repo.entries)
	_, err = svc.ReverseTransaction(context.Background(), groupID, 1, "")
	require.ErrorIs(t, err, ErrAlreadyReversed)
	require.Len(t, repo.entries, entriesBefore)
}

func TestReverseTransactionUnknownGroup(t *testing.T) {
	svc, _, _ := newTestLedger()

	_, err := svc.ReverseTransaction(context.Background(), uuid.New(), 1, "")
	require.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = svc.ReverseTransaction(context.Background(), uuid.Nil, 1, "")
	require.ErrorIs(t, err, ErrTransactionNotFound)
}

func TestVerifyIntegrityFlagsTamperedGroup(t *testing.T) {
	svc, repo, _ := newTestLedger()

	posted, err := svc.PostTransaction(context.Background(), PostingInput{
		Entries: []EntryInput{
			{AccountCode: "1010", Direction: Debit, Amount: money.MustParse("75.00")},
			{AccountCode: "4000", Direction: Credit, Amount: money.MustParse("75.00")},
		},
	})
	require.NoError(t, err)
	groupID := posted[0].GroupID

	tampered := repo.entries[posted[0].ID]
	tampered.Amount = money.MustParse("74.00")
	repo.entries[posted[0].ID] = tampered

	unbalanced, err := svc.VerifyIntegrity(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uuid.UUID{groupID}, unbalanced)
}
