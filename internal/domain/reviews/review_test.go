package reviews

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayrate/internal/domain/booking"
	"stayrate/internal/domain/rating"
)

func completedBooking() *booking.Booking {
	return &booking.Booking{
		ID:     "bk-1",
		UserID: "guest-1",
		Target: rating.EntityRef{Kind: rating.KindProperty, ID: "prop-1"},
		Status: booking.StatusCompleted,
	}
}

func TestCheckEligibility(t *testing.T) {
	t.Run("missing booking", func(t *testing.T) {
		assert.ErrorIs(t, CheckEligibility(nil, "guest-1"), booking.ErrBookingNotFound)
	})
	t.Run("wrong owner", func(t *testing.T) {
		assert.ErrorIs(t, CheckEligibility(completedBooking(), "guest-2"), ErrBookingOwnership)
	})
	t.Run("not completed", func(t *testing.T) {
		bk := completedBooking()
		bk.Status = booking.StatusConfirmed
		assert.ErrorIs(t, CheckEligibility(bk, "guest-1"), ErrBookingNotCompleted)
	})
	t.Run("already reviewed", func(t *testing.T) {
		bk := completedBooking()
		bk.HasReview = true
		bk.ReviewID = "rv-0"
		assert.ErrorIs(t, CheckEligibility(bk, "guest-1"), ErrAlreadyReviewed)
	})
	t.Run("eligible", func(t *testing.T) {
		assert.NoError(t, CheckEligibility(completedBooking(), "guest-1"))
	})
}

func TestSubmit(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	review, err := Submit(SubmitParams{
		ID:        "rv-1",
		Booking:   completedBooking(),
		AuthorID:  "guest-1",
		Rating:    4,
		Title:     "  Great stay  ",
		Content:   "  Clean and quiet.  ",
		CreatedAt: now,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusActive, review.Status)
	assert.Equal(t, "Great stay", review.Title)
	assert.Equal(t, "Clean and quiet.", review.Content)
	assert.Equal(t, completedBooking().Target, review.Target)
	assert.False(t, review.IsEdited)

	events := review.PendingEvents()
	require.Len(t, events, 1)
	assert.Equal(t, "review.submitted", events[0].EventName())
}

func TestSubmitValidation(t *testing.T) {
	base := SubmitParams{
		ID: "rv-1", Booking: completedBooking(), AuthorID: "guest-1",
		Rating: 3, Content: "fine", CreatedAt: time.Now(),
	}

	bad := base
	bad.Rating = 0
	_, err := Submit(bad)
	assert.ErrorIs(t, err, ErrInvalidRating)

	bad = base
	bad.Rating = 6
	_, err = Submit(bad)
	assert.ErrorIs(t, err, ErrInvalidRating)

	bad = base
	bad.Content = "   "
	_, err = Submit(bad)
	assert.ErrorIs(t, err, ErrEmptyContent)

	bad = base
	bad.Content = string(make([]byte, maxContentLen+1))
	_, err = Submit(bad)
	assert.ErrorIs(t, err, ErrContentTooLong)

	bad = base
	bad.Booking = completedBooking()
	bad.Booking.Target = rating.EntityRef{}
	_, err = Submit(bad)
	assert.ErrorIs(t, err, rating.ErrAmbiguousTarget)
}

func submittedReview(t *testing.T) *Review {
	t.Helper()
	review, err := Submit(SubmitParams{
		ID: "rv-1", Booking: completedBooking(), AuthorID: "guest-1",
		Rating: 4, Content: "fine", CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	review.ClearEvents()
	return review
}

func TestChangeRating(t *testing.T) {
	review := submittedReview(t)
	now := time.Now().UTC()

	delta, changed, err := review.ChangeRating(2, now)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, rating.Replace(4, 2), delta)
	assert.Equal(t, 2, review.Rating)
	assert.True(t, review.IsEdited)
	require.Len(t, review.PendingEvents(), 1)
	assert.Equal(t, "review.updated", review.PendingEvents()[0].EventName())
}

func TestChangeRatingNoop(t *testing.T) {
	review := submittedReview(t)

	_, changed, err := review.ChangeRating(4, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)
	assert.False(t, review.IsEdited)
	assert.Empty(t, review.PendingEvents())
}

func TestChangeRatingInvalid(t *testing.T) {
	review := submittedReview(t)
	_, _, err := review.ChangeRating(0, time.Now())
	assert.ErrorIs(t, err, ErrInvalidRating)

	review.Status = StatusRemoved
	_, _, err = review.ChangeRating(3, time.Now())
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestUpdateContent(t *testing.T) {
	review := submittedReview(t)

	require.NoError(t, review.UpdateContent("New title", "", time.Now()))
	assert.Equal(t, "New title", review.Title)
	assert.Equal(t, "fine", review.Content)
	assert.True(t, review.IsEdited)

	err := review.UpdateContent("", string(make([]byte, maxContentLen+1)), time.Now())
	assert.ErrorIs(t, err, ErrContentTooLong)
}

func TestHelpfulVotesAreIdempotent(t *testing.T) {
	review := submittedReview(t)

	assert.True(t, review.MarkHelpful("u1"))
	assert.False(t, review.MarkHelpful("u1"))
	assert.True(t, review.MarkHelpful("u2"))
	assert.Equal(t, 2, review.HelpfulCount())

	assert.True(t, review.UnmarkHelpful("u1"))
	assert.False(t, review.UnmarkHelpful("u1"))
	assert.Equal(t, 1, review.HelpfulCount())
}

func TestRespondReplacesPrevious(t *testing.T) {
	review := submittedReview(t)
	now := time.Now().UTC()

	require.NoError(t, review.Respond("admin-1", "Thanks!", now))
	require.NoError(t, review.Respond("admin-2", "Updated reply", now.Add(time.Hour)))

	require.NotNil(t, review.AdminResponse)
	assert.Equal(t, "admin-2", review.AdminResponse.RespondedBy)
	assert.Equal(t, "Updated reply", review.AdminResponse.Content)

	assert.ErrorIs(t, review.Respond("admin-1", "  ", now), ErrEmptyContent)
}
