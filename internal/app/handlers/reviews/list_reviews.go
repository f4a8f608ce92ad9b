package reviews

import (
	"context"

	"stayrate/internal/app/dto"
	"stayrate/internal/app/queries"
	"stayrate/internal/app/uow"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
)

const (
	listReviewsKey = "reviews.list"
	getReviewKey   = "reviews.get"
)

const defaultPageSize = 20

// ListReviewsQuery pages through an entity's reviews, newest first.
type ListReviewsQuery struct {
	TargetKind string
	TargetID   string
	Limit      int
	Offset     int
}

func (q ListReviewsQuery) Key() string { return listReviewsKey }

// GetReviewQuery fetches one review by id.
type GetReviewQuery struct {
	ReviewID string
}

func (q GetReviewQuery) Key() string { return getReviewKey }

type ListReviewsHandler struct {
	UoWFactory uow.Factory
}

func (h *ListReviewsHandler) Handle(ctx context.Context, q ListReviewsQuery) (dto.ReviewCollection, error) {
	entity, err := domainrating.NewEntityRef(domainrating.EntityKind(q.TargetKind), q.TargetID)
	if err != nil {
		return dto.ReviewCollection{}, err
	}
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.ReviewCollection{}, err
	}
	limit := q.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}
	items, total, err := unit.Reviews().ListByEntity(ctx, entity, limit, offset)
	if err = finish(err); err != nil {
		return dto.ReviewCollection{}, err
	}
	return dto.MapReviews(items, total), nil
}

type GetReviewHandler struct {
	UoWFactory uow.Factory
}

func (h *GetReviewHandler) Handle(ctx context.Context, q GetReviewQuery) (dto.Review, error) {
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.Review{}, err
	}
	review, err := unit.Reviews().ByID(ctx, domainreviews.ReviewID(q.ReviewID))
	if err = finish(err); err != nil {
		return dto.Review{}, err
	}
	return dto.MapReview(review), nil
}

var (
	_ queries.Handler[ListReviewsQuery, dto.ReviewCollection] = (*ListReviewsHandler)(nil)
	_ queries.Handler[GetReviewQuery, dto.Review]             = (*GetReviewHandler)(nil)
)
