package reviews

import (
	"context"
	"log/slog"
	"time"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/dto"
	"stayrate/internal/app/outbox"
	"stayrate/internal/app/policies"
	"stayrate/internal/app/uow"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
)

const updateReviewKey = "reviews.update"

// UpdateReviewCommand edits a review's rating and/or text. A nil Rating
// leaves the rating untouched.
type UpdateReviewCommand struct {
	ReviewID    string
	RequesterID string
	Rating      *int
	Title       string
	Content     string
	Now         time.Time
}

func (c UpdateReviewCommand) Key() string { return updateReviewKey }

// UpdateReviewHandler applies the edit and, when the rating changed, a single
// Replace delta against the aggregate. The old and new buckets move together
// in one conditional write, so no reader ever observes a transiently wrong
// count.
type UpdateReviewHandler struct {
	UoWFactory uow.Factory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Dirty      policies.DirtyMarker
	Cache      policies.AggregateCache
	Logger     *slog.Logger
}

func (h *UpdateReviewHandler) Handle(ctx context.Context, cmd UpdateReviewCommand) (dto.Review, error) {
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.Review{}, err
	}
	review, err := h.execute(ctx, unit, cmd)
	if err = finish(err); err != nil {
		return dto.Review{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("review updated", "review_id", review.ID, "entity", review.Target.Key(), "rating", review.Rating)
	}
	return dto.MapReview(review), nil
}

func (h *UpdateReviewHandler) execute(ctx context.Context, unit uow.UnitOfWork, cmd UpdateReviewCommand) (*domainreviews.Review, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}

	review, err := unit.Reviews().ByID(ctx, domainreviews.ReviewID(cmd.ReviewID))
	if err != nil {
		return nil, err
	}
	if review.AuthorID != cmd.RequesterID {
		return nil, domainreviews.ErrReviewOwnership
	}

	ratingChanged := false
	var delta domainrating.Delta
	if cmd.Rating != nil {
		d, changed, err := review.ChangeRating(*cmd.Rating, now)
		if err != nil {
			return nil, err
		}
		delta, ratingChanged = d, changed
	}
	if err := review.UpdateContent(cmd.Title, cmd.Content, now); err != nil {
		return nil, err
	}
	if err := unit.Reviews().Save(ctx, review); err != nil {
		return nil, err
	}

	if ratingChanged {
		confirmDelta(ctx, unit, h.Dirty, h.Cache, h.Logger, review.Target, delta)
	}

	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, review.PendingEvents()); err != nil {
		return nil, err
	}
	review.ClearEvents()
	return review, nil
}

var _ commands.Handler[UpdateReviewCommand, dto.Review] = (*UpdateReviewHandler)(nil)
