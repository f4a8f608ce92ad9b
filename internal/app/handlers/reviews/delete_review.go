package reviews

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/outbox"
	"stayrate/internal/app/policies"
	"stayrate/internal/app/uow"
	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
	"stayrate/internal/domain/shared/events"
)

const deleteReviewKey = "reviews.delete"

// DeleteReviewCommand removes a review, its aggregate contribution, and the
// booking back-reference.
type DeleteReviewCommand struct {
	ReviewID    string
	RequesterID string
	Now         time.Time
}

func (c DeleteReviewCommand) Key() string { return deleteReviewKey }

// DeleteReviewHandler clears the booking back-reference first, then applies
// the Remove delta, then deletes the record. A crash in between can leave the
// review or its aggregate contribution behind, but never a booking claiming a
// review that no longer exists.
type DeleteReviewHandler struct {
	UoWFactory uow.Factory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Dirty      policies.DirtyMarker
	Cache      policies.AggregateCache
	Logger     *slog.Logger
}

func (h *DeleteReviewHandler) Handle(ctx context.Context, cmd DeleteReviewCommand) (struct{}, error) {
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return struct{}{}, err
	}
	err = finish(h.execute(ctx, unit, cmd))
	if err != nil {
		return struct{}{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("review deleted", "review_id", cmd.ReviewID)
	}
	return struct{}{}, nil
}

func (h *DeleteReviewHandler) execute(ctx context.Context, unit uow.UnitOfWork, cmd DeleteReviewCommand) error {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	review, err := unit.Reviews().ByID(ctx, domainreviews.ReviewID(cmd.ReviewID))
	if err != nil {
		return err
	}
	if review.AuthorID != cmd.RequesterID {
		return domainreviews.ErrReviewOwnership
	}

	bk, err := unit.Bookings().ByID(ctx, review.BookingID)
	switch {
	case err == nil:
		if err := bk.ClearReview(string(review.ID), now); err == nil {
			if err := unit.Bookings().Save(ctx, bk); err != nil {
				return err
			}
		}
	case errors.Is(err, domainbooking.ErrBookingNotFound):
		// The booking was purged by its owner system; nothing to clear.
	default:
		return err
	}

	confirmDelta(ctx, unit, h.Dirty, h.Cache, h.Logger, review.Target, domainrating.Remove(review.Rating))

	if err := unit.Reviews().Delete(ctx, review.ID); err != nil {
		return err
	}

	deleted := domainreviews.ReviewDeleted{
		ReviewID:  review.ID,
		BookingID: review.BookingID,
		Entity:    review.Target,
		OldRating: review.Rating,
		At:        now,
	}
	return outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, []events.DomainEvent{deleted})
}

var _ commands.Handler[DeleteReviewCommand, struct{}] = (*DeleteReviewHandler)(nil)
