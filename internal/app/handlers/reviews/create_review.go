package reviews

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/dto"
	"stayrate/internal/app/outbox"
	"stayrate/internal/app/policies"
	"stayrate/internal/app/uow"
	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
	"stayrate/internal/domain/shared/version"
)

const createReviewKey = "reviews.create"

// attachAttempts bounds the booking back-reference write retries under
// concurrent create races. Each retry re-runs the eligibility check against a
// fresh booking snapshot.
const attachAttempts = 3

// CreateReviewCommand creates the single review a completed booking permits.
type CreateReviewCommand struct {
	BookingID string
	AuthorID  string
	Rating    int
	Title     string
	Content   string
	Now       time.Time
}

func (c CreateReviewCommand) Key() string { return createReviewKey }

// CreateReviewHandler re-verifies eligibility at write time, persists the
// review, points the booking at it, and applies the Add delta to the target's
// rating aggregate.
type CreateReviewHandler struct {
	UoWFactory uow.Factory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Dirty      policies.DirtyMarker
	Cache      policies.AggregateCache
	Logger     *slog.Logger
}

func (h *CreateReviewHandler) Handle(ctx context.Context, cmd CreateReviewCommand) (dto.Review, error) {
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.Review{}, err
	}
	review, err := h.execute(ctx, unit, cmd)
	if err = finish(err); err != nil {
		return dto.Review{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("review created", "review_id", review.ID, "booking_id", review.BookingID, "entity", review.Target.Key(), "rating", review.Rating)
	}
	return dto.MapReview(review), nil
}

func (h *CreateReviewHandler) execute(ctx context.Context, unit uow.UnitOfWork, cmd CreateReviewCommand) (*domainreviews.Review, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	bk, err := unit.Bookings().ByID(ctx, domainbooking.BookingID(cmd.BookingID))
	if err != nil {
		return nil, err
	}

	// The review ledger is checked alongside the booking flag: a stale
	// hasReview=false must not allow a second review for the booking.
	if existing, err := unit.Reviews().ByBooking(ctx, bk.ID); err == nil && existing != nil {
		return nil, domainreviews.ErrAlreadyReviewed
	} else if err != nil && !errors.Is(err, domainreviews.ErrNotFound) {
		return nil, err
	}

	review, err := domainreviews.Submit(domainreviews.SubmitParams{
		ID:        domainreviews.ReviewID(uuid.NewString()),
		Booking:   bk,
		AuthorID:  cmd.AuthorID,
		Rating:    cmd.Rating,
		Title:     cmd.Title,
		Content:   cmd.Content,
		CreatedAt: now,
	})
	if err != nil {
		return nil, err
	}
	if err := unit.Reviews().Save(ctx, review); err != nil {
		return nil, err
	}

	if err := h.attachBackref(ctx, unit, bk, review, now); err != nil {
		h.compensateSave(ctx, unit, review)
		return nil, err
	}

	confirmDelta(ctx, unit, h.Dirty, h.Cache, h.Logger, review.Target, domainrating.Add(review.Rating))

	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, review.PendingEvents()); err != nil {
		return nil, err
	}
	review.ClearEvents()
	return review, nil
}

// attachBackref points the booking at the new review. On a version conflict
// the booking is re-read and eligibility re-checked, so a concurrent creator
// loses with ErrAlreadyReviewed rather than double-attaching.
func (h *CreateReviewHandler) attachBackref(ctx context.Context, unit uow.UnitOfWork, bk *domainbooking.Booking, review *domainreviews.Review, now time.Time) error {
	for attempt := 0; attempt < attachAttempts; attempt++ {
		if err := bk.AttachReview(string(review.ID), now); err != nil {
			if errors.Is(err, domainbooking.ErrAlreadyReviewed) {
				return domainreviews.ErrAlreadyReviewed
			}
			return err
		}
		err := unit.Bookings().Save(ctx, bk)
		if err == nil {
			return nil
		}
		if !errors.Is(err, version.ErrConflict) {
			return err
		}
		bk, err = unit.Bookings().ByID(ctx, bk.ID)
		if err != nil {
			return err
		}
	}
	return domainrating.ErrContention
}

// compensateSave removes the review saved before the back-reference attach
// failed. Nothing references the record yet and no delta was applied, so it
// can be deleted instead of left for reconciliation. The delete runs on a
// detached context: the cancellation that failed the attach must not also
// strand the compensation. If the delete still fails, the entity is flagged
// so the sweep rebuilds its aggregate against whatever state the ledger
// settled in.
func (h *CreateReviewHandler) compensateSave(ctx context.Context, unit uow.UnitOfWork, review *domainreviews.Review) {
	detached := context.WithoutCancel(ctx)
	err := unit.Reviews().Delete(detached, review.ID)
	if err == nil || errors.Is(err, domainreviews.ErrNotFound) {
		return
	}
	if h.Logger != nil {
		h.Logger.Warn("orphan review cleanup failed, flagging for reconciliation", "review_id", review.ID, "entity", review.Target.Key(), "error", err)
	}
	if h.Dirty != nil {
		if markErr := h.Dirty.MarkDirty(detached, review.Target, "orphan review "+string(review.ID)+": "+err.Error()); markErr != nil && h.Logger != nil {
			h.Logger.Error("dirty mark failed", "entity", review.Target.Key(), "error", markErr)
		}
	}
}

var _ commands.Handler[CreateReviewCommand, dto.Review] = (*CreateReviewHandler)(nil)
