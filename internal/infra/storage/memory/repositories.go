package memory

import (
	"context"
	"sort"
	"sync"

	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
	"stayrate/internal/domain/shared/version"
)

// BookingRepository is an in-memory booking ledger used for dev and tests.
// Writes follow the same version discipline as the Mongo implementation.
type BookingRepository struct {
	mu    sync.RWMutex
	items map[domainbooking.BookingID]*domainbooking.Booking
}

func NewBookingRepository() *BookingRepository {
	return &BookingRepository{items: make(map[domainbooking.BookingID]*domainbooking.Booking)}
}

// Seed inserts a booking bypassing version checks. Test and fixture helper.
func (r *BookingRepository) Seed(b *domainbooking.Booking) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *b
	r.items[b.ID] = &cp
}

func (r *BookingRepository) ByID(ctx context.Context, id domainbooking.BookingID) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.items[id]
	if !ok {
		return nil, domainbooking.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *BookingRepository) ByReviewID(ctx context.Context, reviewID string) (*domainbooking.Booking, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.items {
		if b.HasReview && b.ReviewID == reviewID {
			cp := *b
			return &cp, nil
		}
	}
	return nil, domainbooking.ErrBookingNotFound
}

func (r *BookingRepository) Save(ctx context.Context, b *domainbooking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[b.ID]
	if ok && current.Version != b.Version {
		return version.ErrConflict
	}
	cp := *b
	cp.Version = b.Version + 1
	r.items[b.ID] = &cp
	b.Version = cp.Version
	return nil
}

// ReviewRepository is the in-memory review ledger. It enforces the unique
// review-per-booking constraint the Mongo implementation gets from an index.
type ReviewRepository struct {
	mu        sync.RWMutex
	items     map[domainreviews.ReviewID]*domainreviews.Review
	byBooking map[domainbooking.BookingID]domainreviews.ReviewID
}

func NewReviewRepository() *ReviewRepository {
	return &ReviewRepository{
		items:     make(map[domainreviews.ReviewID]*domainreviews.Review),
		byBooking: make(map[domainbooking.BookingID]domainreviews.ReviewID),
	}
}

func (r *ReviewRepository) ByID(ctx context.Context, id domainreviews.ReviewID) (*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	review, ok := r.items[id]
	if !ok {
		return nil, domainreviews.ErrNotFound
	}
	return copyReview(review), nil
}

func (r *ReviewRepository) ByBooking(ctx context.Context, bookingID domainbooking.BookingID) (*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byBooking[bookingID]
	if !ok {
		return nil, domainreviews.ErrNotFound
	}
	return copyReview(r.items[id]), nil
}

func (r *ReviewRepository) ListByEntity(ctx context.Context, entity domainrating.EntityRef, limit, offset int) ([]*domainreviews.Review, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := r.activeLocked(entity)
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].ID < matches[j].ID
		}
		return matches[i].CreatedAt.After(matches[j].CreatedAt)
	})
	total := len(matches)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := make([]*domainreviews.Review, 0, end-offset)
	for _, review := range matches[offset:end] {
		page = append(page, copyReview(review))
	}
	return page, total, nil
}

func (r *ReviewRepository) ActiveByEntity(ctx context.Context, entity domainrating.EntityRef) ([]*domainreviews.Review, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	matches := r.activeLocked(entity)
	out := make([]*domainreviews.Review, 0, len(matches))
	for _, review := range matches {
		out = append(out, copyReview(review))
	}
	return out, nil
}

func (r *ReviewRepository) activeLocked(entity domainrating.EntityRef) []*domainreviews.Review {
	var matches []*domainreviews.Review
	for _, review := range r.items {
		if review.Target == entity && review.Status == domainreviews.StatusActive {
			matches = append(matches, review)
		}
	}
	return matches
}

func (r *ReviewRepository) Save(ctx context.Context, review *domainreviews.Review) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.items[review.ID]
	if exists {
		if current.Version != review.Version {
			return version.ErrConflict
		}
	} else if existingID, taken := r.byBooking[review.BookingID]; taken && existingID != review.ID {
		return domainreviews.ErrAlreadyReviewed
	}
	cp := copyReview(review)
	cp.Version = review.Version + 1
	r.items[review.ID] = cp
	r.byBooking[review.BookingID] = review.ID
	review.Version = cp.Version
	return nil
}

func (r *ReviewRepository) Delete(ctx context.Context, id domainreviews.ReviewID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	review, ok := r.items[id]
	if !ok {
		return domainreviews.ErrNotFound
	}
	delete(r.byBooking, review.BookingID)
	delete(r.items, id)
	return nil
}

func copyReview(review *domainreviews.Review) *domainreviews.Review {
	if review == nil {
		return nil
	}
	cp := *review
	cp.HelpfulVoters = make(map[string]struct{}, len(review.HelpfulVoters))
	for voter := range review.HelpfulVoters {
		cp.HelpfulVoters[voter] = struct{}{}
	}
	if review.AdminResponse != nil {
		resp := *review.AdminResponse
		cp.AdminResponse = &resp
	}
	cp.ClearEvents()
	return &cp
}

// AggregateRepository is the in-memory rating aggregate store. Get returns
// the empty aggregate for unknown entities; Save rejects stale versions.
type AggregateRepository struct {
	mu    sync.RWMutex
	items map[domainrating.EntityRef]domainrating.Aggregate
}

func NewAggregateRepository() *AggregateRepository {
	return &AggregateRepository{items: make(map[domainrating.EntityRef]domainrating.Aggregate)}
}

func (r *AggregateRepository) Get(ctx context.Context, entity domainrating.EntityRef) (domainrating.Aggregate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	agg, ok := r.items[entity]
	if !ok {
		return domainrating.NewAggregate(entity), nil
	}
	return agg, nil
}

func (r *AggregateRepository) Save(ctx context.Context, agg domainrating.Aggregate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.items[agg.Entity]
	stored := int64(0)
	if ok {
		stored = current.Version
	}
	if stored != agg.Version-1 {
		return version.ErrConflict
	}
	r.items[agg.Entity] = agg
	return nil
}

// Corrupt overwrites an aggregate bypassing version checks. Test helper for
// reconciliation scenarios.
func (r *AggregateRepository) Corrupt(agg domainrating.Aggregate) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[agg.Entity] = agg
}
