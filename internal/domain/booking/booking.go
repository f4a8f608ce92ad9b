package booking

import (
	"context"
	"errors"
	"time"

	"stayrate/internal/domain/rating"
)

var (
	ErrBookingNotFound = errors.New("booking: not found")
	ErrAlreadyReviewed = errors.New("booking: review already attached")
	ErrNoReview        = errors.New("booking: no review attached")
)

type BookingID string

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Booking is the engine's view of a purchase record. Bookings are owned by an
// external system; the engine reads state and ownership and maintains the
// single review back-reference.
type Booking struct {
	ID        BookingID
	UserID    string
	Target    rating.EntityRef
	Status    Status
	HasReview bool
	ReviewID  string
	CreatedAt time.Time
	UpdatedAt time.Time
	Version   int64
}

// Consumable reports whether the booking reached the state that permits a
// review.
func (b *Booking) Consumable() bool {
	return b.Status == StatusCompleted
}

// AttachReview sets the back-reference. A booking carries at most one review,
// so a second attach fails even if the caller skipped the eligibility check.
func (b *Booking) AttachReview(reviewID string, now time.Time) error {
	if b.HasReview {
		return ErrAlreadyReviewed
	}
	b.HasReview = true
	b.ReviewID = reviewID
	b.UpdatedAt = now.UTC()
	return nil
}

// ClearReview drops the back-reference when the named review is deleted.
// Clearing a reference to a different review is refused so concurrent deletes
// cannot detach someone else's review.
func (b *Booking) ClearReview(reviewID string, now time.Time) error {
	if !b.HasReview {
		return ErrNoReview
	}
	if b.ReviewID != reviewID {
		return ErrNoReview
	}
	b.HasReview = false
	b.ReviewID = ""
	b.UpdatedAt = now.UTC()
	return nil
}

// Repository reads and conditionally writes bookings. Save returns
// version.ErrConflict when the stored version moved past the loaded one.
// ByReviewID finds the booking whose back-reference names the review and
// returns ErrBookingNotFound when none does.
type Repository interface {
	ByID(ctx context.Context, id BookingID) (*Booking, error)
	ByReviewID(ctx context.Context, reviewID string) (*Booking, error)
	Save(ctx context.Context, b *Booking) error
}
