package reviews

import (
	"context"
	"log/slog"
	"time"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/dto"
	"stayrate/internal/app/outbox"
	"stayrate/internal/app/uow"
	domainreviews "stayrate/internal/domain/reviews"
)

const addAdminResponseKey = "reviews.response.add"

// AddAdminResponseCommand attaches the staff reply to a review.
type AddAdminResponseCommand struct {
	ReviewID string
	AdminID  string
	Content  string
	Now      time.Time
}

func (c AddAdminResponseCommand) Key() string { return addAdminResponseKey }

// AddAdminResponseHandler stores the single admin response subdocument.
// Responses do not touch the rating aggregate.
type AddAdminResponseHandler struct {
	UoWFactory uow.Factory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Logger     *slog.Logger
}

func (h *AddAdminResponseHandler) Handle(ctx context.Context, cmd AddAdminResponseCommand) (dto.Review, error) {
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.Review{}, err
	}
	review, err := h.execute(ctx, unit, cmd)
	if err = finish(err); err != nil {
		return dto.Review{}, err
	}
	if h.Logger != nil {
		h.Logger.Info("admin response added", "review_id", review.ID, "admin_id", cmd.AdminID)
	}
	return dto.MapReview(review), nil
}

func (h *AddAdminResponseHandler) execute(ctx context.Context, unit uow.UnitOfWork, cmd AddAdminResponseCommand) (*domainreviews.Review, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	review, err := unit.Reviews().ByID(ctx, domainreviews.ReviewID(cmd.ReviewID))
	if err != nil {
		return nil, err
	}
	if err := review.Respond(cmd.AdminID, cmd.Content, now); err != nil {
		return nil, err
	}
	if err := unit.Reviews().Save(ctx, review); err != nil {
		return nil, err
	}
	if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, review.PendingEvents()); err != nil {
		return nil, err
	}
	review.ClearEvents()
	return review, nil
}

var _ commands.Handler[AddAdminResponseCommand, dto.Review] = (*AddAdminResponseHandler)(nil)
