package reviews

import (
	"time"

	"stayrate/internal/domain/booking"
	"stayrate/internal/domain/rating"
)

type ReviewSubmitted struct {
	ReviewID  ReviewID
	BookingID booking.BookingID
	Entity    rating.EntityRef
	Rating    int
	At        time.Time
}

func (e ReviewSubmitted) EventName() string     { return "review.submitted" }
func (e ReviewSubmitted) AggregateID() string   { return string(e.ReviewID) }
func (e ReviewSubmitted) OccurredAt() time.Time { return e.At }

type ReviewRated struct {
	ReviewID  ReviewID
	Entity    rating.EntityRef
	OldRating int
	NewRating int
	At        time.Time
}

func (e ReviewRated) EventName() string     { return "review.updated" }
func (e ReviewRated) AggregateID() string   { return string(e.ReviewID) }
func (e ReviewRated) OccurredAt() time.Time { return e.At }

type ReviewDeleted struct {
	ReviewID  ReviewID
	BookingID booking.BookingID
	Entity    rating.EntityRef
	OldRating int
	At        time.Time
}

func (e ReviewDeleted) EventName() string     { return "review.deleted" }
func (e ReviewDeleted) AggregateID() string   { return string(e.ReviewID) }
func (e ReviewDeleted) OccurredAt() time.Time { return e.At }

type ReviewResponded struct {
	ReviewID ReviewID
	Entity   rating.EntityRef
	AdminID  string
	At       time.Time
}

func (e ReviewResponded) EventName() string     { return "review.response_added" }
func (e ReviewResponded) AggregateID() string   { return string(e.ReviewID) }
func (e ReviewResponded) OccurredAt() time.Time { return e.At }
