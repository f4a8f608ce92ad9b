package reviews

import (
	"context"
	"errors"

	"stayrate/internal/app/dto"
	"stayrate/internal/app/queries"
	"stayrate/internal/app/uow"
	domainbooking "stayrate/internal/domain/booking"
	domainreviews "stayrate/internal/domain/reviews"
)

const checkEligibilityKey = "reviews.eligibility"

// Reason codes for a negative eligibility answer.
const (
	ReasonNotOwner        = "not_owner"
	ReasonNotCompleted    = "booking_not_completed"
	ReasonAlreadyReviewed = "already_reviewed"
)

// CheckEligibilityQuery asks whether a user may review a booking.
type CheckEligibilityQuery struct {
	UserID    string
	BookingID string
}

func (q CheckEligibilityQuery) Key() string { return checkEligibilityKey }

// CheckEligibilityHandler runs the pure eligibility decision against a fresh
// booking snapshot. A missing booking is an error; the three eligibility
// failures are answers, not errors. The snapshot is returned on success so
// the caller does not need a second fetch before creating the review.
type CheckEligibilityHandler struct {
	UoWFactory uow.Factory
}

func (h *CheckEligibilityHandler) Handle(ctx context.Context, q CheckEligibilityQuery) (dto.Eligibility, error) {
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.Eligibility{}, err
	}
	result, err := h.execute(ctx, unit, q)
	if err = finish(err); err != nil {
		return dto.Eligibility{}, err
	}
	return result, nil
}

func (h *CheckEligibilityHandler) execute(ctx context.Context, unit uow.UnitOfWork, q CheckEligibilityQuery) (dto.Eligibility, error) {
	bk, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(q.BookingID))
	if err != nil {
		return dto.Eligibility{}, err
	}
	switch err := domainreviews.CheckEligibility(bk, q.UserID); {
	case err == nil:
		return dto.Eligibility{Eligible: true, Booking: dto.MapBooking(bk)}, nil
	case errors.Is(err, domainreviews.ErrBookingOwnership):
		return dto.Eligibility{Reason: ReasonNotOwner}, nil
	case errors.Is(err, domainreviews.ErrBookingNotCompleted):
		return dto.Eligibility{Reason: ReasonNotCompleted}, nil
	case errors.Is(err, domainreviews.ErrAlreadyReviewed):
		return dto.Eligibility{Reason: ReasonAlreadyReviewed}, nil
	default:
		return dto.Eligibility{}, err
	}
}

var _ queries.Handler[CheckEligibilityQuery, dto.Eligibility] = (*CheckEligibilityHandler)(nil)
