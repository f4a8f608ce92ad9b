package rating

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrInvalidRating = errors.New("rating: rating must be between 1 and 5")
	ErrUnknownEntity = errors.New("rating: unknown entity kind")
	// ErrAmbiguousTarget means a booking names neither or both of a property
	// and a package, so no single aggregate can own its review.
	ErrAmbiguousTarget = errors.New("rating: review target is ambiguous")
	// ErrInconsistent means an applied delta implied a negative histogram
	// bucket. The stored aggregate has drifted from the review ledger and must
	// be repaired from source, not patched.
	ErrInconsistent = errors.New("rating: aggregate inconsistent with review ledger")
	// ErrContention is returned after the bounded retry budget for
	// version-conflicted aggregate writes is exhausted.
	ErrContention = errors.New("rating: too many concurrent updates")
)

// EntityKind discriminates the two ratable entity types.
type EntityKind string

const (
	KindProperty EntityKind = "property"
	KindPackage  EntityKind = "package"
)

// EntityRef identifies a single ratable entity, a property or a package.
// It is a tagged union: exactly one kind, exactly one id.
type EntityRef struct {
	Kind EntityKind
	ID   string
}

// NewEntityRef validates the kind/id pair.
func NewEntityRef(kind EntityKind, id string) (EntityRef, error) {
	if kind != KindProperty && kind != KindPackage {
		return EntityRef{}, ErrUnknownEntity
	}
	if id == "" {
		return EntityRef{}, errors.New("rating: entity id required")
	}
	return EntityRef{Kind: kind, ID: id}, nil
}

// RefFromIDs derives the entity reference from a booking's optional property
// and package ids. Exactly one must be set.
func RefFromIDs(propertyID, packageID string) (EntityRef, error) {
	switch {
	case propertyID != "" && packageID != "":
		return EntityRef{}, ErrAmbiguousTarget
	case propertyID != "":
		return EntityRef{Kind: KindProperty, ID: propertyID}, nil
	case packageID != "":
		return EntityRef{Kind: KindPackage, ID: packageID}, nil
	default:
		return EntityRef{}, ErrAmbiguousTarget
	}
}

func (r EntityRef) IsZero() bool { return r.Kind == "" && r.ID == "" }

// Key returns the storage/cache key form "kind:id".
func (r EntityRef) Key() string { return fmt.Sprintf("%s:%s", r.Kind, r.ID) }

// Aggregate is the derived rating summary for one entity: a five-bucket
// histogram, the total count, and the average recomputed from the histogram.
// Aggregates are value types; Apply returns a new snapshot and never mutates
// the receiver, so a failed conditional write can simply re-read and retry.
type Aggregate struct {
	Entity  EntityRef
	Buckets [5]int64
	Count   int64
	Average float64
	Version int64
}

// NewAggregate returns the empty aggregate for an entity.
func NewAggregate(entity EntityRef) Aggregate {
	return Aggregate{Entity: entity}
}

// Bucket returns the occurrence count for a rating value in 1..5.
func (a Aggregate) Bucket(value int) int64 {
	if value < 1 || value > 5 {
		return 0
	}
	return a.Buckets[value-1]
}

// Apply produces the aggregate that results from one delta. The count and
// average are always recomputed from the histogram, never adjusted
// incrementally, so they cannot drift from the buckets. A delta that would
// take a bucket negative returns ErrInconsistent.
func (a Aggregate) Apply(d Delta) (Aggregate, error) {
	if err := d.validate(); err != nil {
		return Aggregate{}, err
	}
	next := a
	switch d.Op {
	case OpAdd:
		next.Buckets[d.New-1]++
	case OpReplace:
		if next.Buckets[d.Old-1] == 0 {
			return Aggregate{}, fmt.Errorf("%w: replace %d with no bucket to decrement", ErrInconsistent, d.Old)
		}
		next.Buckets[d.Old-1]--
		next.Buckets[d.New-1]++
	case OpRemove:
		if next.Buckets[d.Old-1] == 0 {
			return Aggregate{}, fmt.Errorf("%w: remove %d with no bucket to decrement", ErrInconsistent, d.Old)
		}
		next.Buckets[d.Old-1]--
	default:
		return Aggregate{}, fmt.Errorf("rating: unknown delta op %q", d.Op)
	}
	next.recompute()
	next.Version = a.Version + 1
	return next, nil
}

// Recomputed returns a copy with count and average rebuilt from the buckets
// and the version bumped. Used by reconciliation when replacing an aggregate
// wholesale.
func (a Aggregate) Recomputed() Aggregate {
	next := a
	next.recompute()
	next.Version = a.Version + 1
	return next
}

func (a *Aggregate) recompute() {
	var count, weighted int64
	for i, n := range a.Buckets {
		count += n
		weighted += int64(i+1) * n
	}
	a.Count = count
	if count == 0 {
		a.Average = 0
		return
	}
	a.Average = float64(weighted) / float64(count)
}

// Consistent reports whether count and average match the histogram.
func (a Aggregate) Consistent() bool {
	check := a
	check.recompute()
	return check.Count == a.Count && check.Average == a.Average
}

// Op identifies how a single rating value changes a histogram.
type Op string

const (
	OpAdd     Op = "add"
	OpReplace Op = "replace"
	OpRemove  Op = "remove"
)

// Delta is a pure description of one rating change. It depends only on the
// old/new rating values, not on any histogram state, which is what makes
// version-conflict retries safe to re-apply.
type Delta struct {
	Op  Op
	Old int
	New int
}

func Add(value int) Delta           { return Delta{Op: OpAdd, New: value} }
func Replace(old, newVal int) Delta { return Delta{Op: OpReplace, Old: old, New: newVal} }
func Remove(old int) Delta          { return Delta{Op: OpRemove, Old: old} }

func (d Delta) validate() error {
	switch d.Op {
	case OpAdd:
		return validRating(d.New)
	case OpReplace:
		if err := validRating(d.Old); err != nil {
			return err
		}
		return validRating(d.New)
	case OpRemove:
		return validRating(d.Old)
	}
	return fmt.Errorf("rating: unknown delta op %q", d.Op)
}

func validRating(value int) error {
	if value < 1 || value > 5 {
		return ErrInvalidRating
	}
	return nil
}

// Repository is the rating aggregate store. Get returns the empty aggregate
// (version 0) for entities that have never been rated. Save accepts an
// aggregate whose Version was already advanced by Apply or Recomputed and
// writes it only if the stored version still equals Version-1, returning
// version.ErrConflict on a stale write.
type Repository interface {
	Get(ctx context.Context, entity EntityRef) (Aggregate, error)
	Save(ctx context.Context, agg Aggregate) error
}
