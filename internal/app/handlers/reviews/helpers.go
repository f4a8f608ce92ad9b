package reviews

import (
	"context"
	"errors"
	"log/slog"

	"stayrate/internal/app/policies"
	"stayrate/internal/app/uow"
	domainrating "stayrate/internal/domain/rating"
	"stayrate/internal/domain/shared/version"
)

// maxDeltaAttempts bounds the optimistic-concurrency retry loop for aggregate
// writes before the operation surfaces ErrContention.
const maxDeltaAttempts = 5

// applyDelta re-reads the aggregate and applies the delta until the
// conditional write is accepted. The delta is a pure function of old/new
// rating values, so re-applying it against a fresh snapshot is safe.
func applyDelta(ctx context.Context, repo domainrating.Repository, entity domainrating.EntityRef, delta domainrating.Delta) (domainrating.Aggregate, error) {
	for attempt := 0; attempt < maxDeltaAttempts; attempt++ {
		agg, err := repo.Get(ctx, entity)
		if err != nil {
			return domainrating.Aggregate{}, err
		}
		if agg.Entity.IsZero() {
			agg.Entity = entity
		}
		next, err := agg.Apply(delta)
		if err != nil {
			return domainrating.Aggregate{}, err
		}
		err = repo.Save(ctx, next)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, version.ErrConflict) {
			return domainrating.Aggregate{}, err
		}
	}
	return domainrating.Aggregate{}, domainrating.ErrContention
}

// confirmDelta applies the delta after the review ledger write already
// landed. Failures at this point never roll the operation back; the entity is
// flagged for reconciliation instead, because the review ledger is the source
// of truth the aggregate can always be rebuilt from. The dirty mark uses a
// detached context so a cancelled request still records the gap.
func confirmDelta(ctx context.Context, unit uow.UnitOfWork, dirty policies.DirtyMarker, cache policies.AggregateCache, logger *slog.Logger, entity domainrating.EntityRef, delta domainrating.Delta) {
	_, err := applyDelta(ctx, unit.Aggregates(), entity, delta)
	if err == nil {
		invalidateAggregate(ctx, cache, entity)
		return
	}
	if logger != nil {
		logger.Warn("aggregate delta unconfirmed, flagging for reconciliation", "entity", entity.Key(), "op", string(delta.Op), "error", err)
	}
	if dirty != nil {
		detached := context.WithoutCancel(ctx)
		if markErr := dirty.MarkDirty(detached, entity, err.Error()); markErr != nil && logger != nil {
			logger.Error("dirty mark failed", "entity", entity.Key(), "error", markErr)
		}
	}
}

func invalidateAggregate(ctx context.Context, cache policies.AggregateCache, entity domainrating.EntityRef) {
	if cache == nil {
		return
	}
	_ = cache.Del(ctx, policies.AggregateCacheKey(entity))
}
