package ar

import (
	"context"
	"time"
)

// RepositoryPort defines data access methods for AR queries.
type RepositoryPort interface {
	GetInvoice(ctx context.Context, id int64) (Invoice, error)
	ListInvoices(ctx context.Context, customerID int64, status InvoiceStatus) ([]Invoice, error)
	ListOutstanding(ctx context.Context) ([]Invoice, error)
	GetCustomer(ctx context.Context, id int64) (Customer, error)
	ListPayments(ctx context.Context, customerID int64) ([]Payment, error)
}

// Service handles AR read-side business logic.
type Service struct {
	repo RepositoryPort
}

// NewService builds Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

// GetInvoice returns one invoice.
func (s *Service) GetInvoice(ctx context.Context, id int64) (Invoice, error) {
	return s.repo.GetInvoice(ctx, id)
}

// ListInvoices returns invoices filtered by customer and status.
func (s *Service) ListInvoices(ctx context.Context, customerID int64, status InvoiceStatus) ([]Invoice, error) {
	return s.repo.ListInvoices(ctx, customerID, status)
}

// GetCustomer returns one customer.
func (s *Service) GetCustomer(ctx context.Context, id int64) (Customer, error) {
	return s.repo.GetCustomer(ctx, id)
}

// ListPayments returns payments for a customer, or all when zero.
func (s *Service) ListPayments(ctx context.Context, customerID int64) ([]Payment, error) {
	return s.repo.ListPayments(ctx, customerID)
}

// CalculateAging groups outstanding invoice balances by due date buckets.
func (s *Service) CalculateAging(ctx context.Context, asOf time.Time) (AgingBucket, error) {
	invoices, err := s.repo.ListOutstanding(ctx)
	if err != nil {
		return AgingBucket{}, err
	}
	if asOf.IsZero() {
		asOf = time.Now()
	}
	var bucket AgingBucket
	for _, inv := range invoices {
		if !inv.Open() {
			continue
		}
		days := int(asOf.Sub(inv.DueAt).Hours() / 24)
		switch {
		case days <= 0:
			bucket.Current = bucket.Current.Add(inv.Balance)
		case days <= 30:
			bucket.Bucket30 = bucket.Bucket30.Add(inv.Balance)
		case days <= 60:
			bucket.Bucket60 = bucket.Bucket60.Add(inv.Balance)
		case days <= 90:
			bucket.Bucket90 = bucket.Bucket90.Add(inv.Balance)
		default:
			bucket.Bucket120 = bucket.Bucket120.Add(inv.Balance)
		}
	}
	return bucket, nil
}
