package reviews

import (
	"context"
	"errors"
	"log/slog"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/dto"
	"stayrate/internal/app/uow"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
	"stayrate/internal/domain/shared/version"
)

const (
	markHelpfulKey   = "reviews.helpful.mark"
	unmarkHelpfulKey = "reviews.helpful.unmark"
)

// MarkHelpfulCommand adds the user to a review's helpful-voter set.
type MarkHelpfulCommand struct {
	ReviewID string
	UserID   string
}

func (c MarkHelpfulCommand) Key() string { return markHelpfulKey }

// UnmarkHelpfulCommand removes the user from a review's helpful-voter set.
type UnmarkHelpfulCommand struct {
	ReviewID string
	UserID   string
}

func (c UnmarkHelpfulCommand) Key() string { return unmarkHelpfulKey }

// HelpfulVoteHandler serves both vote commands. Votes are membership changes
// on a set, so repeating either command is a no-op, and a no-op skips the
// ledger write entirely.
type HelpfulVoteHandler struct {
	UoWFactory uow.Factory
	Logger     *slog.Logger
}

func (h *HelpfulVoteHandler) HandleMark(ctx context.Context, cmd MarkHelpfulCommand) (dto.Review, error) {
	return h.vote(ctx, cmd.ReviewID, cmd.UserID, true)
}

func (h *HelpfulVoteHandler) HandleUnmark(ctx context.Context, cmd UnmarkHelpfulCommand) (dto.Review, error) {
	return h.vote(ctx, cmd.ReviewID, cmd.UserID, false)
}

func (h *HelpfulVoteHandler) vote(ctx context.Context, reviewID, userID string, mark bool) (dto.Review, error) {
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.Review{}, err
	}
	review, err := h.execute(ctx, unit, reviewID, userID, mark)
	if err = finish(err); err != nil {
		return dto.Review{}, err
	}
	return dto.MapReview(review), nil
}

func (h *HelpfulVoteHandler) execute(ctx context.Context, unit uow.UnitOfWork, reviewID, userID string, mark bool) (*domainreviews.Review, error) {
	// Concurrent voters race on the review version; a conflicted write is
	// retried against a fresh snapshot since set membership merges cleanly.
	for attempt := 0; attempt < maxDeltaAttempts; attempt++ {
		review, err := unit.Reviews().ByID(ctx, domainreviews.ReviewID(reviewID))
		if err != nil {
			return nil, err
		}
		var changed bool
		if mark {
			changed = review.MarkHelpful(userID)
		} else {
			changed = review.UnmarkHelpful(userID)
		}
		if !changed {
			return review, nil
		}
		err = unit.Reviews().Save(ctx, review)
		if err == nil {
			return review, nil
		}
		if !errors.Is(err, version.ErrConflict) {
			return nil, err
		}
	}
	return nil, domainrating.ErrContention
}

type markHandler struct{ h *HelpfulVoteHandler }

func (m markHandler) Handle(ctx context.Context, cmd MarkHelpfulCommand) (dto.Review, error) {
	return m.h.HandleMark(ctx, cmd)
}

type unmarkHandler struct{ h *HelpfulVoteHandler }

func (u unmarkHandler) Handle(ctx context.Context, cmd UnmarkHelpfulCommand) (dto.Review, error) {
	return u.h.HandleUnmark(ctx, cmd)
}

// MarkHandler adapts the vote handler to the command bus contract.
func (h *HelpfulVoteHandler) MarkHandler() commands.Handler[MarkHelpfulCommand, dto.Review] {
	return markHandler{h: h}
}

// UnmarkHandler adapts the vote handler to the command bus contract.
func (h *HelpfulVoteHandler) UnmarkHandler() commands.Handler[UnmarkHelpfulCommand, dto.Review] {
	return unmarkHandler{h: h}
}
