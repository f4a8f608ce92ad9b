package uow

import (
	"context"

	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
)

// UnitOfWork groups the three engine stores behind one boundary: the booking
// ledger, the review ledger, and the rating aggregate store. Each store is
// independently concurrent-safe; cross-store atomicity comes from write
// ordering plus reconciliation, not from a shared transaction.
type UnitOfWork interface {
	Bookings() domainbooking.Repository
	Reviews() domainreviews.Repository
	Aggregates() domainrating.Repository

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Factory starts unit of work instances.
type Factory interface {
	Begin(ctx context.Context, opts TxOptions) (UnitOfWork, error)
}

// TxOptions configure transaction boundaries.
type TxOptions struct {
	ReadOnly bool
}
