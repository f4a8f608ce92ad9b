package reviews

import (
	"context"
	"errors"
	"strings"
	"time"

	"stayrate/internal/domain/booking"
	"stayrate/internal/domain/rating"
	"stayrate/internal/domain/shared/events"
)

var (
	ErrNotFound        = errors.New("reviews: not found")
	ErrInvalidRating   = errors.New("reviews: rating must be between 1 and 5")
	ErrEmptyContent    = errors.New("reviews: content required")
	ErrContentTooLong  = errors.New("reviews: content exceeds limit")
	ErrNotActive       = errors.New("reviews: review is not active")
	ErrReviewOwnership = errors.New("reviews: review does not belong to current user")
	// Eligibility failures, in the order they are checked.
	ErrBookingOwnership    = errors.New("reviews: booking does not belong to current user")
	ErrBookingNotCompleted = errors.New("reviews: booking is not completed")
	ErrAlreadyReviewed     = errors.New("reviews: booking already has a review")
)

const (
	maxContentLen = 4000
	maxTitleLen   = 200
)

type ReviewID string

type Status string

const (
	StatusActive  Status = "active"
	StatusPending Status = "pending"
	StatusFlagged Status = "flagged"
	StatusRemoved Status = "removed"
)

// AdminResponse is the single optional staff reply attached to a review.
type AdminResponse struct {
	Content     string
	RespondedBy string
	RespondedAt time.Time
}

// Review is one guest's rating of a property or package, tied to exactly one
// booking. HelpfulVoters is a membership set rather than a counter so repeat
// votes are naturally idempotent.
type Review struct {
	ID            ReviewID
	BookingID     booking.BookingID
	AuthorID      string
	Target        rating.EntityRef
	Rating        int
	Title         string
	Content       string
	HelpfulVoters map[string]struct{}
	AdminResponse *AdminResponse
	Status        Status
	IsEdited      bool
	EditedAt      time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Version       int64
	events.Recorder
}

// CheckEligibility is the pure eligibility decision: the booking must belong
// to the user, be completed, and not yet carry a review. It is evaluated both
// when the caller probes eligibility and again as a precondition of the
// create write.
func CheckEligibility(b *booking.Booking, userID string) error {
	if b == nil {
		return booking.ErrBookingNotFound
	}
	if b.UserID != userID {
		return ErrBookingOwnership
	}
	if !b.Consumable() {
		return ErrBookingNotCompleted
	}
	if b.HasReview {
		return ErrAlreadyReviewed
	}
	return nil
}

type SubmitParams struct {
	ID        ReviewID
	Booking   *booking.Booking
	AuthorID  string
	Rating    int
	Title     string
	Content   string
	CreatedAt time.Time
}

// Submit builds a new active review for an eligible booking. The target
// reference is taken from the booking and is immutable afterwards.
func Submit(params SubmitParams) (*Review, error) {
	if err := CheckEligibility(params.Booking, params.AuthorID); err != nil {
		return nil, err
	}
	if params.Rating < 1 || params.Rating > 5 {
		return nil, ErrInvalidRating
	}
	content := strings.TrimSpace(params.Content)
	if content == "" {
		return nil, ErrEmptyContent
	}
	if len(content) > maxContentLen {
		return nil, ErrContentTooLong
	}
	title := strings.TrimSpace(params.Title)
	if len(title) > maxTitleLen {
		return nil, ErrContentTooLong
	}
	if params.Booking.Target.IsZero() {
		return nil, rating.ErrAmbiguousTarget
	}
	now := params.CreatedAt.UTC()
	review := &Review{
		ID:            params.ID,
		BookingID:     params.Booking.ID,
		AuthorID:      params.AuthorID,
		Target:        params.Booking.Target,
		Rating:        params.Rating,
		Title:         title,
		Content:       content,
		HelpfulVoters: map[string]struct{}{},
		Status:        StatusActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	review.Record(ReviewSubmitted{ReviewID: review.ID, BookingID: review.BookingID, Entity: review.Target, Rating: review.Rating, At: now})
	return review, nil
}

// ChangeRating updates the rating value and returns the delta the aggregate
// store must apply. A no-op change returns a zero delta and false.
func (r *Review) ChangeRating(value int, now time.Time) (rating.Delta, bool, error) {
	if r.Status != StatusActive {
		return rating.Delta{}, false, ErrNotActive
	}
	if value < 1 || value > 5 {
		return rating.Delta{}, false, ErrInvalidRating
	}
	if value == r.Rating {
		return rating.Delta{}, false, nil
	}
	old := r.Rating
	r.Rating = value
	r.markEdited(now)
	r.Record(ReviewRated{ReviewID: r.ID, Entity: r.Target, OldRating: old, NewRating: value, At: r.EditedAt})
	return rating.Replace(old, value), true, nil
}

// UpdateContent replaces title and/or content. Empty strings leave the field
// untouched.
func (r *Review) UpdateContent(title, content string, now time.Time) error {
	if r.Status != StatusActive {
		return ErrNotActive
	}
	changed := false
	if t := strings.TrimSpace(title); t != "" {
		if len(t) > maxTitleLen {
			return ErrContentTooLong
		}
		r.Title = t
		changed = true
	}
	if c := strings.TrimSpace(content); c != "" {
		if len(c) > maxContentLen {
			return ErrContentTooLong
		}
		r.Content = c
		changed = true
	}
	if changed {
		r.markEdited(now)
	}
	return nil
}

// MarkHelpful adds the voter to the helpful set. Returns false when the user
// had already voted.
func (r *Review) MarkHelpful(userID string) bool {
	if r.HelpfulVoters == nil {
		r.HelpfulVoters = map[string]struct{}{}
	}
	if _, ok := r.HelpfulVoters[userID]; ok {
		return false
	}
	r.HelpfulVoters[userID] = struct{}{}
	return true
}

// UnmarkHelpful removes the voter from the helpful set. Removing a non-member
// is a no-op and returns false.
func (r *Review) UnmarkHelpful(userID string) bool {
	if _, ok := r.HelpfulVoters[userID]; !ok {
		return false
	}
	delete(r.HelpfulVoters, userID)
	return true
}

func (r *Review) HelpfulCount() int { return len(r.HelpfulVoters) }

// Respond attaches the admin response. A later response replaces the earlier
// one; the review never carries more than a single response subdocument.
func (r *Review) Respond(adminID, content string, now time.Time) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyContent
	}
	if len(content) > maxContentLen {
		return ErrContentTooLong
	}
	r.AdminResponse = &AdminResponse{
		Content:     content,
		RespondedBy: adminID,
		RespondedAt: now.UTC(),
	}
	r.UpdatedAt = now.UTC()
	r.Record(ReviewResponded{ReviewID: r.ID, Entity: r.Target, AdminID: adminID, At: r.UpdatedAt})
	return nil
}

func (r *Review) markEdited(now time.Time) {
	r.IsEdited = true
	r.EditedAt = now.UTC()
	r.UpdatedAt = r.EditedAt
}

// Repository is the review ledger, the authoritative source every aggregate
// can be rebuilt from. Save returns version.ErrConflict on stale writes;
// saving a new review whose booking already has one must fail the unique
// booking constraint with ErrAlreadyReviewed.
type Repository interface {
	ByID(ctx context.Context, id ReviewID) (*Review, error)
	ByBooking(ctx context.Context, bookingID booking.BookingID) (*Review, error)
	ListByEntity(ctx context.Context, entity rating.EntityRef, limit, offset int) ([]*Review, int, error)
	ActiveByEntity(ctx context.Context, entity rating.EntityRef) ([]*Review, error)
	Save(ctx context.Context, review *Review) error
	Delete(ctx context.Context, id ReviewID) error
}
