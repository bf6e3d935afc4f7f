package recon

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian/internal/ar"
	"github.com/meridian-erp/meridian/internal/money"
)

type memoryLookup struct {
	invoices  []ar.Invoice
	customers []ar.Customer
}

func (l *memoryLookup) FindOpenInvoiceByNumber(ctx context.Context, number string) (*ar.Invoice, error) {
	for i := range l.invoices {
		if l.invoices[i].Number == number && l.invoices[i].Open() {
			inv := l.invoices[i]
			return &inv, nil
		}
	}
	return nil, nil
}

func (l *memoryLookup) FindActiveCustomerByCode(ctx context.Context, code string) (*ar.Customer, error) {
	for i := range l.customers {
		if l.customers[i].Code == code && l.customers[i].IsActive {
			c := l.customers[i]
			return &c, nil
		}
	}
	return nil, nil
}

func (l *memoryLookup) OldestOpenInvoice(ctx context.Context, customerID int64) (*ar.Invoice, error) {
	invoices, err := l.ListOpenInvoices(ctx, customerID)
	if err != nil || len(invoices) == 0 {
		return nil, err
	}
	sort.Slice(invoices, func(i, j int) bool { return invoices[i].DueAt.Before(invoices[j].DueAt) })
	inv := invoices[0]
	return &inv, nil
}

func (l *memoryLookup) ListOpenInvoices(ctx context.Context, customerID int64) ([]ar.Invoice, error) {
	var out []ar.Invoice
	for _, inv := range l.invoices {
		if !inv.Open() {
			continue
		}
		if customerID != 0 && inv.CustomerID != customerID {
			continue
		}
		out = append(out, inv)
	}
	return out, nil
}

func (l *memoryLookup) ListActiveCustomers(ctx context.Context) ([]ar.Customer, error) {
	var out []ar.Customer
	for _, c := range l.customers {
		if c.IsActive {
			out = append(out, c)
		}
	}
	return out, nil
}

func openInvoice(id, customerID int64, number, balance string, dueAt time.Time) ar.Invoice {
	total := money.MustParse(balance)
	return ar.Invoice{
		ID:         id,
		Number:     number,
		CustomerID: customerID,
		Total:      total,
		Paid:       money.Zero,
		Balance:    total,
		Status:     ar.InvoiceStatusSent,
		DueAt:      dueAt,
	}
}

func bankTx(amount, reference string) BankTransaction {
	return BankTransaction{
		ID:        1,
		Amount:    money.MustParse(amount),
		Reference: reference,
		TxDate:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Status:    BankTxPending,
	}
}

func TestInvoiceNumberStrategyExact(t *testing.T) {
	due := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{invoices: []ar.Invoice{openInvoice(41, 11, "INV-2026-0001", "1500.00", due)}}
	strategy := invoiceNumberStrategy{tolerancePct: 1.0}

	result, err := strategy.Match(context.Background(), lookup, bankTx("1500.00", "Payment INV-2026-0001 Aurora Trading"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.True(t, result.Success)
	require.Equal(t, MatchExact, result.Type)
	require.Equal(t, 95, result.Confidence)
	require.Equal(t, int64(11), *result.CustomerID)
	require.Equal(t, int64(41), *result.InvoiceID)
}

func TestInvoiceNumberStrategyToleranceBand(t *testing.T) {
	due := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{invoices: []ar.Invoice{openInvoice(41, 11, "INV-2026-0001", "1500.00", due)}}
	strategy := invoiceNumberStrategy{tolerancePct: 1.0}

	// 1490.00 is within 1% of the 1500.00 balance.
	result, err := strategy.Match(context.Background(), lookup, bankTx("1490.00", "INV-2026-0001"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, MatchExact, result.Type)

	// Overpayment past the band declines entirely.
	result, err = strategy.Match(context.Background(), lookup, bankTx("1600.00", "INV-2026-0001"))
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestInvoiceNumberStrategyPartial(t *testing.T) {
	due := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{invoices: []ar.Invoice{openInvoice(41, 11, "INV-2026-0001", "1500.00", due)}}
	strategy := invoiceNumberStrategy{tolerancePct: 1.0}

	result, err := strategy.Match(context.Background(), lookup, bankTx("900.00", "transfer INV-2026-0001"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, MatchPartial, result.Type)
	require.Equal(t, 90, result.Confidence)
}

func TestInvoiceNumberTokenFormats(t *testing.T) {
	due := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{invoices: []ar.Invoice{openInvoice(41, 11, "INV-2026-0001", "100.00", due)}}
	strategy := invoiceNumberStrategy{tolerancePct: 1.0}

	for _, reference := range []string{
		"INV-2026-0001",
		"inv-2026-0001 thanks",
		"wire INV 2026 0001",
		"INV/2026/0001 settlement",
		"INV20260001",
	} {
		result, err := strategy.Match(context.Background(), lookup, bankTx("100.00", reference))
		require.NoError(t, err, reference)
		require.NotNil(t, result, reference)
		require.Equal(t, MatchExact, result.Type, reference)
	}
}

func TestCustomerCodeStrategy(t *testing.T) {
	due := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{
		customers: []ar.Customer{{ID: 11, Code: "CUST-001", Name: "Aurora Trading", IsActive: true}},
		invoices: []ar.Invoice{
			openInvoice(41, 11, "INV-2026-0001", "1500.00", due),
			openInvoice(42, 11, "INV-2026-0002", "820.50", due.AddDate(0, 0, 10)),
		},
	}
	strategy := customerCodeStrategy{tolerancePct: 1.0}

	// Partial payment lands on the oldest-due open invoice.
	result, err := strategy.Match(context.Background(), lookup, bankTx("500.00", "Transfer CUST-001 partial"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, MatchFuzzy, result.Type)
	require.Equal(t, 80, result.Confidence)
	require.Equal(t, int64(41), *result.InvoiceID)
}

func TestCustomerCodeStrategyCustomerOnly(t *testing.T) {
	lookup := &memoryLookup{
		customers: []ar.Customer{{ID: 11, Code: "CUST-001", Name: "Aurora Trading", IsActive: true}},
	}
	strategy := customerCodeStrategy{tolerancePct: 1.0}

	result, err := strategy.Match(context.Background(), lookup, bankTx("500.00", "CUST 001 on account"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 70, result.Confidence)
	require.Equal(t, int64(11), *result.CustomerID)
	require.Nil(t, result.InvoiceID)
}

func TestCustomerNameStrategy(t *testing.T) {
	due := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{
		customers: []ar.Customer{
			{ID: 11, Code: "CUST-001", Name: "Aurora Trading", IsActive: true},
			{ID: 12, Code: "CUST-002", Name: "Café Molinière", IsActive: true},
		},
		invoices: []ar.Invoice{
			openInvoice(41, 11, "INV-2026-0001", "1500.00", due),
			openInvoice(43, 12, "INV-2026-0003", "310.75", due),
		},
	}
	strategy := customerNameStrategy{tolerancePct: 1.0}

	result, err := strategy.Match(context.Background(), lookup, bankTx("1500.00", "AURORA TRADING settlement march"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, 65, result.Confidence)
	require.Equal(t, int64(11), *result.CustomerID)

	// Diacritics in the customer name fold away for the comparison.
	result, err = strategy.Match(context.Background(), lookup, bankTx("310.75", "payment cafe moliniere"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, int64(12), *result.CustomerID)
	require.Equal(t, int64(43), *result.InvoiceID)
}

func TestCustomerNameStrategyRequiresAmountMatch(t *testing.T) {
	due := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{
		customers: []ar.Customer{{ID: 11, Code: "CUST-001", Name: "Aurora Trading", IsActive: true}},
		invoices:  []ar.Invoice{openInvoice(41, 11, "INV-2026-0001", "1500.00", due)},
	}
	strategy := customerNameStrategy{tolerancePct: 1.0}

	result, err := strategy.Match(context.Background(), lookup, bankTx("999.00", "AURORA TRADING settlement"))
	require.NoError(t, err)
	require.Nil(t, result)
}

func TestUniqueAmountStrategy(t *testing.T) {
	due := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{
		invoices: []ar.Invoice{
			openInvoice(41, 11, "INV-2026-0001", "1500.00", due),
			openInvoice(42, 12, "INV-2026-0002", "310.75", due),
		},
	}
	strategy := uniqueAmountStrategy{tolerancePct: 1.0}

	result, err := strategy.Match(context.Background(), lookup, bankTx("310.75", "wire ref 99218"))
	require.NoError(t, err)
	require.NotNil(t, result)
	require.Equal(t, MatchAmount, result.Type)
	require.Equal(t, 60, result.Confidence)
	require.Equal(t, int64(42), *result.InvoiceID)
}

func TestUniqueAmountStrategyAmbiguous(t *testing.T) {
	due := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	lookup := &memoryLookup{
		invoices: []ar.Invoice{
			openInvoice(41, 11, "INV-2026-0001", "310.75", due),
			openInvoice(42, 12, "INV-2026-0002", "310.75", due),
		},
	}
	strategy := uniqueAmountStrategy{tolerancePct: 1.0}

	result, err := strategy.Match(context.Background(), lookup, bankTx("310.75", "wire ref 99218"))
	require.NoError(t, err)
	require.Nil(t, result)
}
