package ratings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/dto"
	"stayrate/internal/app/outbox"
	"stayrate/internal/app/policies"
	"stayrate/internal/app/queries"
	"stayrate/internal/app/uow"
	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
	"stayrate/internal/domain/shared/events"
	"stayrate/internal/domain/shared/version"
)

const (
	verifyAggregateKey = "ratings.verify"
	verifyRepairKey    = "ratings.verify_repair"
	repairBackrefKey   = "ratings.backref_repair"
)

const maxRepairAttempts = 5

// VerifyAggregateQuery recomputes an entity's histogram from the review
// ledger and reports discrepancies without writing anything.
type VerifyAggregateQuery struct {
	TargetKind string
	TargetID   string
}

func (q VerifyAggregateQuery) Key() string { return verifyAggregateKey }

// VerifyAndRepairCommand verifies and, when drifted, replaces the stored
// aggregate with one rebuilt from the ledger. Safe to run at any time, under
// live traffic, and repeatedly: the second consecutive run is a no-op.
type VerifyAndRepairCommand struct {
	TargetKind string
	TargetID   string
	Now        time.Time
}

func (c VerifyAndRepairCommand) Key() string { return verifyRepairKey }

// RepairBackrefCommand checks one review/booking back-reference pair and
// re-points or clears it as needed.
type RepairBackrefCommand struct {
	ReviewID string
	Now      time.Time
}

func (c RepairBackrefCommand) Key() string { return repairBackrefKey }

// VerifyRepairHandler is the consistency guard. The review ledger is the
// source of truth; any aggregate can be rebuilt from it, which is why repair
// is always safe.
type VerifyRepairHandler struct {
	UoWFactory uow.Factory
	Outbox     outbox.Outbox
	Encoder    outbox.EventEncoder
	Dirty      policies.DirtyQueue
	Cache      policies.AggregateCache
	Logger     *slog.Logger
}

func (h *VerifyRepairHandler) HandleVerify(ctx context.Context, q VerifyAggregateQuery) (dto.RepairReport, error) {
	entity, err := domainrating.NewEntityRef(domainrating.EntityKind(q.TargetKind), q.TargetID)
	if err != nil {
		return dto.RepairReport{}, err
	}
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.RepairReport{}, err
	}
	report, err := h.verify(ctx, unit, entity)
	if err = finish(err); err != nil {
		return dto.RepairReport{}, err
	}
	return report, nil
}

func (h *VerifyRepairHandler) HandleRepair(ctx context.Context, cmd VerifyAndRepairCommand) (dto.RepairReport, error) {
	entity, err := domainrating.NewEntityRef(domainrating.EntityKind(cmd.TargetKind), cmd.TargetID)
	if err != nil {
		return dto.RepairReport{}, err
	}
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.RepairReport{}, err
	}
	report, err := h.repair(ctx, unit, entity, now)
	if err = finish(err); err != nil {
		return dto.RepairReport{}, err
	}
	return report, nil
}

// verify rebuilds the histogram by scanning active reviews and diffs it
// against the stored aggregate.
func (h *VerifyRepairHandler) verify(ctx context.Context, unit uow.UnitOfWork, entity domainrating.EntityRef) (dto.RepairReport, error) {
	stored, err := unit.Aggregates().Get(ctx, entity)
	if err != nil {
		return dto.RepairReport{}, err
	}
	stored.Entity = entity
	computed, err := computeFromLedger(ctx, unit, entity)
	if err != nil {
		return dto.RepairReport{}, err
	}
	discrepancies := diff(stored, computed)
	return dto.RepairReport{
		TargetKind:    string(entity.Kind),
		TargetID:      entity.ID,
		Consistent:    len(discrepancies) == 0,
		Discrepancies: discrepancies,
		Stored:        dto.MapAggregate(stored),
		Computed:      dto.MapAggregate(computed),
		CheckedAt:     time.Now().UTC(),
	}, nil
}

func (h *VerifyRepairHandler) repair(ctx context.Context, unit uow.UnitOfWork, entity domainrating.EntityRef, now time.Time) (dto.RepairReport, error) {
	var report dto.RepairReport
	for attempt := 0; attempt < maxRepairAttempts; attempt++ {
		var err error
		report, err = h.verify(ctx, unit, entity)
		if err != nil {
			return dto.RepairReport{}, err
		}
		if report.Consistent {
			h.finishRepair(ctx, entity)
			return report, nil
		}

		stored, err := unit.Aggregates().Get(ctx, entity)
		if err != nil {
			return dto.RepairReport{}, err
		}
		computed, err := computeFromLedger(ctx, unit, entity)
		if err != nil {
			return dto.RepairReport{}, err
		}
		computed.Version = stored.Version + 1
		err = unit.Aggregates().Save(ctx, computed)
		if err == nil {
			report.Repaired = true
			report.Computed = dto.MapAggregate(computed)
			h.finishRepair(ctx, entity)
			if h.Logger != nil {
				h.Logger.Info("aggregate repaired", "entity", entity.Key(), "old_count", report.Stored.Count, "new_count", computed.Count)
			}
			repaired := domainrating.AggregateRepaired{
				Entity:     entity,
				OldCount:   report.Stored.Count,
				NewCount:   computed.Count,
				NewAverage: computed.Average,
				At:         now,
			}
			if err := outbox.RecordDomainEvents(ctx, h.Outbox, h.Encoder, []events.DomainEvent{repaired}); err != nil {
				return dto.RepairReport{}, err
			}
			return report, nil
		}
		if !errors.Is(err, version.ErrConflict) {
			return dto.RepairReport{}, err
		}
		// A live writer moved the aggregate; re-verify against the new state.
	}
	return dto.RepairReport{}, domainrating.ErrContention
}

func (h *VerifyRepairHandler) finishRepair(ctx context.Context, entity domainrating.EntityRef) {
	if h.Cache != nil {
		_ = h.Cache.Del(ctx, policies.AggregateCacheKey(entity))
	}
	if h.Dirty != nil {
		_ = h.Dirty.ClearDirty(ctx, entity)
	}
}

// HandleBackref reconciles a single review/booking pair. When the review
// exists its booking must point back at it; when it does not, any booking
// still naming it gets cleared.
func (h *VerifyRepairHandler) HandleBackref(ctx context.Context, cmd RepairBackrefCommand) (dto.BackrefReport, error) {
	now := cmd.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	unit, ctx, finish, err := uow.Ensure(ctx, h.UoWFactory)
	if err != nil {
		return dto.BackrefReport{}, err
	}
	report, err := h.backref(ctx, unit, cmd.ReviewID, now)
	if err = finish(err); err != nil {
		return dto.BackrefReport{}, err
	}
	return report, nil
}

func (h *VerifyRepairHandler) backref(ctx context.Context, unit uow.UnitOfWork, reviewID string, now time.Time) (dto.BackrefReport, error) {
	report := dto.BackrefReport{ReviewID: reviewID}

	review, err := unit.Reviews().ByID(ctx, domainreviews.ReviewID(reviewID))
	switch {
	case err == nil:
		bk, err := unit.Bookings().ByID(ctx, review.BookingID)
		if err != nil {
			return report, err
		}
		report.BookingID = string(bk.ID)
		if bk.HasReview && bk.ReviewID == reviewID {
			report.Consistent = true
			return report, nil
		}
		bk.HasReview = true
		bk.ReviewID = reviewID
		bk.UpdatedAt = now.UTC()
		if err := unit.Bookings().Save(ctx, bk); err != nil {
			return report, err
		}
		report.Repaired = true
		report.Action = "repointed"
		return report, nil

	case errors.Is(err, domainreviews.ErrNotFound):
		bk, err := unit.Bookings().ByReviewID(ctx, reviewID)
		if errors.Is(err, domainbooking.ErrBookingNotFound) {
			report.Consistent = true
			return report, nil
		}
		if err != nil {
			return report, err
		}
		report.BookingID = string(bk.ID)
		if err := bk.ClearReview(reviewID, now); err != nil {
			return report, err
		}
		if err := unit.Bookings().Save(ctx, bk); err != nil {
			return report, err
		}
		report.Repaired = true
		report.Action = "cleared"
		return report, nil

	default:
		return report, err
	}
}

// computeFromLedger builds the authoritative aggregate by scanning every
// active review for the entity. The result keeps the stored version at zero;
// callers set the version they intend to replace.
func computeFromLedger(ctx context.Context, unit uow.UnitOfWork, entity domainrating.EntityRef) (domainrating.Aggregate, error) {
	active, err := unit.Reviews().ActiveByEntity(ctx, entity)
	if err != nil {
		return domainrating.Aggregate{}, err
	}
	agg := domainrating.NewAggregate(entity)
	for _, review := range active {
		if review.Rating < 1 || review.Rating > 5 {
			return domainrating.Aggregate{}, fmt.Errorf("%w: review %s carries rating %d", domainrating.ErrInconsistent, review.ID, review.Rating)
		}
		agg.Buckets[review.Rating-1]++
	}
	return agg.Recomputed(), nil
}

func diff(stored, computed domainrating.Aggregate) []string {
	var out []string
	for r := 1; r <= 5; r++ {
		if s, c := stored.Bucket(r), computed.Bucket(r); s != c {
			out = append(out, fmt.Sprintf("bucket %d: stored %d, ledger %d", r, s, c))
		}
	}
	if stored.Count != computed.Count {
		out = append(out, fmt.Sprintf("count: stored %d, ledger %d", stored.Count, computed.Count))
	}
	if stored.Average != computed.Average {
		out = append(out, fmt.Sprintf("average: stored %g, ledger %g", stored.Average, computed.Average))
	}
	if !stored.Consistent() {
		out = append(out, "stored count/average do not match stored histogram")
	}
	return out
}

type verifyAdapter struct{ h *VerifyRepairHandler }

func (a verifyAdapter) Handle(ctx context.Context, q VerifyAggregateQuery) (dto.RepairReport, error) {
	return a.h.HandleVerify(ctx, q)
}

type repairAdapter struct{ h *VerifyRepairHandler }

func (a repairAdapter) Handle(ctx context.Context, cmd VerifyAndRepairCommand) (dto.RepairReport, error) {
	return a.h.HandleRepair(ctx, cmd)
}

type backrefAdapter struct{ h *VerifyRepairHandler }

func (a backrefAdapter) Handle(ctx context.Context, cmd RepairBackrefCommand) (dto.BackrefReport, error) {
	return a.h.HandleBackref(ctx, cmd)
}

// VerifyHandler adapts the guard to the query bus contract.
func (h *VerifyRepairHandler) VerifyHandler() queries.Handler[VerifyAggregateQuery, dto.RepairReport] {
	return verifyAdapter{h: h}
}

// RepairHandler adapts the guard to the command bus contract.
func (h *VerifyRepairHandler) RepairHandler() commands.Handler[VerifyAndRepairCommand, dto.RepairReport] {
	return repairAdapter{h: h}
}

// BackrefHandler adapts the backref check to the command bus contract.
func (h *VerifyRepairHandler) BackrefHandler() commands.Handler[RepairBackrefCommand, dto.BackrefReport] {
	return backrefAdapter{h: h}
}
