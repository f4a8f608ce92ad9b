package memory

import (
	"context"
	"errors"

	"stayrate/internal/app/uow"
	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
)

// ErrFactoryMisconfigured indicates missing repositories.
var ErrFactoryMisconfigured = errors.New("memory: unit of work factory misconfigured")

// Factory wires the in-memory repositories into a unit-of-work boundary.
// There is no isolation; each repository is individually concurrent-safe and
// cross-store consistency relies on write ordering plus reconciliation, the
// same discipline the Mongo implementation follows.
type Factory struct {
	BookingRepo   domainbooking.Repository
	ReviewRepo    domainreviews.Repository
	AggregateRepo domainrating.Repository
}

func (f Factory) Begin(ctx context.Context, opts uow.TxOptions) (uow.UnitOfWork, error) {
	if f.BookingRepo == nil || f.ReviewRepo == nil || f.AggregateRepo == nil {
		return nil, ErrFactoryMisconfigured
	}
	return &Unit{bookings: f.BookingRepo, reviews: f.ReviewRepo, aggregates: f.AggregateRepo}, nil
}

// Unit is a lightweight uow.UnitOfWork backed by the in-memory stores.
type Unit struct {
	bookings   domainbooking.Repository
	reviews    domainreviews.Repository
	aggregates domainrating.Repository
}

func (u *Unit) Bookings() domainbooking.Repository  { return u.bookings }
func (u *Unit) Reviews() domainreviews.Repository   { return u.reviews }
func (u *Unit) Aggregates() domainrating.Repository { return u.aggregates }
func (u *Unit) Commit(ctx context.Context) error    { return nil }
func (u *Unit) Rollback(ctx context.Context) error  { return nil }

var _ uow.Factory = Factory{}
