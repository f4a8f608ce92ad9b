package ratings

import (
	"context"

	"stayrate/internal/app/dto"
	"stayrate/internal/app/policies"
	"stayrate/internal/app/queries"
	"stayrate/internal/app/uow"
	domainrating "stayrate/internal/domain/rating"
)

const getAggregateKey = "ratings.get"

// GetAggregateQuery reads the rating summary for one entity.
type GetAggregateQuery struct {
	TargetKind string
	TargetID   string
}

func (q GetAggregateQuery) Key() string { return getAggregateKey }

// GetAggregateHandler serves aggregates through an optional read-through
// cache. Entities that were never rated get the empty five-bucket histogram,
// not an error.
type GetAggregateHandler struct {
	UoWFactory uow.Factory
	Cache      policies.AggregateCache
	CacheTTL   int
}

func (h *GetAggregateHandler) Handle(ctx context.Context, q GetAggregateQuery) (dto.Aggregate, error) {
	entity, err := domainrating.NewEntityRef(domainrating.EntityKind(q.TargetKind), q.TargetID)
	if err != nil {
		return dto.Aggregate{}, err
	}

	if h.Cache != nil {
		var cached dto.Aggregate
		if hit, err := h.Cache.Get(ctx, policies.AggregateCacheKey(entity), &cached); err == nil && hit {
			return cached, nil
		}
	}

	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.Aggregate{}, err
	}
	agg, err := unit.Aggregates().Get(ctx, entity)
	if err = finish(err); err != nil {
		return dto.Aggregate{}, err
	}
	if agg.Entity.IsZero() {
		agg.Entity = entity
	}

	result := dto.MapAggregate(agg)
	if h.Cache != nil {
		ttl := h.CacheTTL
		if ttl <= 0 {
			ttl = 60
		}
		_ = h.Cache.Set(ctx, policies.AggregateCacheKey(entity), result, ttl)
	}
	return result, nil
}

var _ queries.Handler[GetAggregateQuery, dto.Aggregate] = (*GetAggregateHandler)(nil)
