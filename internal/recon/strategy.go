package recon

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/meridian-erp/meridian/internal/ar"
	"github.com/meridian-erp/meridian/internal/money"
)

// withinPercent is the 1% band (configurable) that absorbs bank fee and
// rounding discrepancies without masking genuine mismatches.
func withinPercent(a, b money.Amount, pct float64) bool {
	return money.WithinPercent(a, b, pct)
}

// Lookup exposes the read queries the matching strategies need.
type Lookup interface {
	FindOpenInvoiceByNumber(ctx context.Context, number string) (*ar.Invoice, error)
	FindActiveCustomerByCode(ctx context.Context, code string) (*ar.Customer, error)
	OldestOpenInvoice(ctx context.Context, customerID int64) (*ar.Invoice, error)
	ListOpenInvoices(ctx context.Context, customerID int64) ([]ar.Invoice, error)
	ListActiveCustomers(ctx context.Context) ([]ar.Customer, error)
}

// Strategy attempts to identify a customer and/or invoice from one bank
// transaction. A nil result means the strategy declines and the cascade
// moves on. Strategies are pure over the Lookup so they can be tested,
// reordered or replaced independently.
type Strategy interface {
	Name() string
	Match(ctx context.Context, lookup Lookup, tx BankTransaction) (*MatchResult, error)
}

// DefaultStrategies returns the cascade in priority order, most specific
// first. An early high-confidence win is never overridden by a later,
// noisier strategy.
func DefaultStrategies(tolerancePct float64) []Strategy {
	return []Strategy{
		invoiceNumberStrategy{tolerancePct: tolerancePct},
		customerCodeStrategy{tolerancePct: tolerancePct},
		customerNameStrategy{tolerancePct: tolerancePct},
		uniqueAmountStrategy{tolerancePct: tolerancePct},
	}
}

var (
	invoiceNumberPattern = regexp.MustCompile(`(?i)\bINV[-/ ]?(\d{4})[-/ ]?(\d{3,6})\b`)
	customerCodePattern  = regexp.MustCompile(`(?i)\bCUST[-/ ]?(\d{2,6})\b`)
)

// invoiceNumberStrategy parses an invoice-number token out of the
// statement reference and compares the amount against that invoice's
// outstanding balance.
type invoiceNumberStrategy struct {
	tolerancePct float64
}

func (invoiceNumberStrategy) Name() string { return "invoice_number" }

func (s invoiceNumberStrategy) Match(ctx context.Context, lookup Lookup, tx BankTransaction) (*MatchResult, error) {
	groups := invoiceNumberPattern.FindStringSubmatch(tx.Reference)
	if groups == nil {
		return nil, nil
	}
	number := fmt.Sprintf("INV-%s-%s", groups[1], groups[2])
	invoice, err := lookup.FindOpenInvoiceByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	if invoice == nil {
		return nil, nil
	}
	customerID := invoice.CustomerID
	invoiceID := invoice.ID
	if withinPercent(tx.Amount, invoice.Balance, s.tolerancePct) {
		return &MatchResult{
			Success:       true,
			Type:          MatchExact,
			Confidence:    95,
			CustomerID:    &customerID,
			InvoiceID:     &invoiceID,
			MatchedAmount: tx.Amount,
			Reason:        fmt.Sprintf("invoice %s referenced, amount matches balance", number),
		}, nil
	}
	if tx.Amount.LessThanOrEqual(invoice.Balance) {
		return &MatchResult{
			Success:       true,
			Type:          MatchPartial,
			Confidence:    90,
			CustomerID:    &customerID,
			InvoiceID:     &invoiceID,
			MatchedAmount: tx.Amount,
			Reason:        fmt.Sprintf("invoice %s referenced, partial payment", number),
		}, nil
	}
	return nil, nil
}

// customerCodeStrategy parses a customer-code token and targets that
// customer's oldest-due open invoice.
type customerCodeStrategy struct {
	tolerancePct float64
}

func (customerCodeStrategy) Name() string { return "customer_code" }

func (s customerCodeStrategy) Match(ctx context.Context, lookup Lookup, tx BankTransaction) (*MatchResult, error) {
	groups := customerCodePattern.FindStringSubmatch(tx.Reference)
	if groups == nil {
		return nil, nil
	}
	code := "CUST-" + groups[1]
	customer, err := lookup.FindActiveCustomerByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		return nil, nil
	}
	customerID := customer.ID
	invoice, err := lookup.OldestOpenInvoice(ctx, customer.ID)
	if err != nil {
		return nil, err
	}
	if invoice != nil && (withinPercent(tx.Amount, invoice.Balance, s.tolerancePct) || tx.Amount.LessThanOrEqual(invoice.Balance)) {
		invoiceID := invoice.ID
		return &MatchResult{
			Success:       true,
			Type:          MatchFuzzy,
			Confidence:    80,
			CustomerID:    &customerID,
			InvoiceID:     &invoiceID,
			MatchedAmount: tx.Amount,
			Reason:        fmt.Sprintf("customer %s referenced, oldest open invoice %s", code, invoice.Number),
		}, nil
	}
	return &MatchResult{
		Success:       true,
		Type:          MatchFuzzy,
		Confidence:    70,
		CustomerID:    &customerID,
		MatchedAmount: tx.Amount,
		Reason:        fmt.Sprintf("customer %s referenced, no suitable invoice", code),
	}, nil
}

// customerNameStrategy tokenises every active customer's name and tests
// what fraction of its significant words appear in the reference.
type customerNameStrategy struct {
	tolerancePct float64
}

func (customerNameStrategy) Name() string { return "customer_name" }

func (s customerNameStrategy) Match(ctx context.Context, lookup Lookup, tx BankTransaction) (*MatchResult, error) {
	reference := foldText(tx.Reference)
	if reference == "" {
		return nil, nil
	}
	customers, err := lookup.ListActiveCustomers(ctx)
	if err != nil {
		return nil, err
	}
	for _, customer := range customers {
		words := significantWords(customer.Name)
		if len(words) == 0 {
			continue
		}
		present := 0
		for _, word := range words {
			if strings.Contains(reference, word) {
				present++
			}
		}
		if present*2 < len(words) {
			continue
		}
		invoices, err := lookup.ListOpenInvoices(ctx, customer.ID)
		if err != nil {
			return nil, err
		}
		for _, invoice := range invoices {
			if !withinPercent(tx.Amount, invoice.Balance, s.tolerancePct) {
				continue
			}
			customerID := customer.ID
			invoiceID := invoice.ID
			return &MatchResult{
				Success:       true,
				Type:          MatchFuzzy,
				Confidence:    65,
				CustomerID:    &customerID,
				InvoiceID:     &invoiceID,
				MatchedAmount: tx.Amount,
				Reason:        fmt.Sprintf("customer name %q in reference, invoice %s balance matches", customer.Name, invoice.Number),
			}, nil
		}
	}
	return nil, nil
}

// uniqueAmountStrategy matches only when exactly one open invoice
// system-wide carries a balance within the tolerance band. Ambiguous
// amounts are never auto-resolved.
type uniqueAmountStrategy struct {
	tolerancePct float64
}

func (uniqueAmountStrategy) Name() string { return "unique_amount" }

func (s uniqueAmountStrategy) Match(ctx context.Context, lookup Lookup, tx BankTransaction) (*MatchResult, error) {
	invoices, err := lookup.ListOpenInvoices(ctx, 0)
	if err != nil {
		return nil, err
	}
	var candidate *ar.Invoice
	for i := range invoices {
		if !withinPercent(tx.Amount, invoices[i].Balance, s.tolerancePct) {
			continue
		}
		if candidate != nil {
			return nil, nil
		}
		candidate = &invoices[i]
	}
	if candidate == nil {
		return nil, nil
	}
	customerID := candidate.CustomerID
	invoiceID := candidate.ID
	return &MatchResult{
		Success:       true,
		Type:          MatchAmount,
		Confidence:    60,
		CustomerID:    &customerID,
		InvoiceID:     &invoiceID,
		MatchedAmount: tx.Amount,
		Reason:        fmt.Sprintf("amount uniquely matches invoice %s", candidate.Number),
	}, nil
}

var foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// foldText strips diacritics and uppercases for accent-insensitive
// containment checks.
func foldText(s string) string {
	folded, _, err := transform.String(foldTransformer, s)
	if err != nil {
		folded = s
	}
	return strings.ToUpper(folded)
}

// significantWords returns the folded words of a name longer than three
// characters.
func significantWords(name string) []string {
	var words []string
	for _, word := range strings.Fields(foldText(name)) {
		trimmed := strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		})
		if len(trimmed) > 3 {
			words = append(words, trimmed)
		}
	}
	return words
}
