package reviews_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayrate/internal/app/dto"
	reviewsapp "stayrate/internal/app/handlers/reviews"
	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
	"stayrate/internal/infra/storage/memory"
)

var propRef = domainrating.EntityRef{Kind: domainrating.KindProperty, ID: "prop-1"}

type env struct {
	bookings *memory.BookingRepository
	reviews  *memory.ReviewRepository
	aggs     *memory.AggregateRepository
	factory  memory.Factory
	box      *memory.Outbox
	dirty    *memory.DirtyQueue
}

func newEnv() *env {
	e := &env{
		bookings: memory.NewBookingRepository(),
		reviews:  memory.NewReviewRepository(),
		aggs:     memory.NewAggregateRepository(),
		box:      memory.NewOutbox(),
		dirty:    memory.NewDirtyQueue(),
	}
	e.factory = memory.Factory{
		BookingRepo:   e.bookings,
		ReviewRepo:    e.reviews,
		AggregateRepo: e.aggs,
	}
	return e
}

func (e *env) seedCompletedBooking(id, userID string) {
	e.bookings.Seed(&domainbooking.Booking{
		ID:     domainbooking.BookingID(id),
		UserID: userID,
		Target: propRef,
		Status: domainbooking.StatusCompleted,
	})
}

func (e *env) createHandler() *reviewsapp.CreateReviewHandler {
	return &reviewsapp.CreateReviewHandler{UoWFactory: e.factory, Outbox: e.box, Dirty: e.dirty}
}

func (e *env) updateHandler() *reviewsapp.UpdateReviewHandler {
	return &reviewsapp.UpdateReviewHandler{UoWFactory: e.factory, Outbox: e.box, Dirty: e.dirty}
}

func (e *env) deleteHandler() *reviewsapp.DeleteReviewHandler {
	return &reviewsapp.DeleteReviewHandler{UoWFactory: e.factory, Outbox: e.box, Dirty: e.dirty}
}

func (e *env) createReview(t *testing.T, bookingID, userID string, rating int) dto.Review {
	t.Helper()
	review, err := e.createHandler().Handle(context.Background(), reviewsapp.CreateReviewCommand{
		BookingID: bookingID,
		AuthorID:  userID,
		Rating:    rating,
		Content:   "lovely place",
	})
	require.NoError(t, err)
	return review
}

func (e *env) aggregate(t *testing.T) domainrating.Aggregate {
	t.Helper()
	agg, err := e.aggs.Get(context.Background(), propRef)
	require.NoError(t, err)
	return agg
}

func TestCheckEligibility(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	handler := &reviewsapp.CheckEligibilityHandler{UoWFactory: e.factory}

	t.Run("missing booking is an error", func(t *testing.T) {
		_, err := handler.Handle(ctx, reviewsapp.CheckEligibilityQuery{UserID: "guest-1", BookingID: "bk-404"})
		assert.ErrorIs(t, err, domainbooking.ErrBookingNotFound)
	})

	t.Run("wrong owner", func(t *testing.T) {
		result, err := handler.Handle(ctx, reviewsapp.CheckEligibilityQuery{UserID: "guest-2", BookingID: "bk-1"})
		require.NoError(t, err)
		assert.False(t, result.Eligible)
		assert.Equal(t, reviewsapp.ReasonNotOwner, result.Reason)
	})

	t.Run("not completed", func(t *testing.T) {
		e.bookings.Seed(&domainbooking.Booking{
			ID: "bk-2", UserID: "guest-1", Target: propRef, Status: domainbooking.StatusConfirmed,
		})
		result, err := handler.Handle(ctx, reviewsapp.CheckEligibilityQuery{UserID: "guest-1", BookingID: "bk-2"})
		require.NoError(t, err)
		assert.Equal(t, reviewsapp.ReasonNotCompleted, result.Reason)
	})

	t.Run("eligible returns the booking snapshot", func(t *testing.T) {
		result, err := handler.Handle(ctx, reviewsapp.CheckEligibilityQuery{UserID: "guest-1", BookingID: "bk-1"})
		require.NoError(t, err)
		assert.True(t, result.Eligible)
		require.NotNil(t, result.Booking)
		assert.Equal(t, "bk-1", result.Booking.ID)
	})

	t.Run("already reviewed", func(t *testing.T) {
		e.createReview(t, "bk-1", "guest-1", 5)
		result, err := handler.Handle(ctx, reviewsapp.CheckEligibilityQuery{UserID: "guest-1", BookingID: "bk-1"})
		require.NoError(t, err)
		assert.Equal(t, reviewsapp.ReasonAlreadyReviewed, result.Reason)
	})
}

func TestCreateReview(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")

	review := e.createReview(t, "bk-1", "guest-1", 4)
	assert.Equal(t, "bk-1", review.BookingID)
	assert.Equal(t, 4, review.Rating)

	bk, err := e.bookings.ByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.True(t, bk.HasReview)
	assert.Equal(t, review.ID, bk.ReviewID)

	agg := e.aggregate(t)
	assert.Equal(t, int64(1), agg.Bucket(4))
	assert.Equal(t, int64(1), agg.Count)
	assert.Equal(t, 4.0, agg.Average)

	records := e.box.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "review.submitted", records[0].Name)
}

func TestCreateReviewRejectsSecondForBooking(t *testing.T) {
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	e.createReview(t, "bk-1", "guest-1", 4)

	_, err := e.createHandler().Handle(context.Background(), reviewsapp.CreateReviewCommand{
		BookingID: "bk-1", AuthorID: "guest-1", Rating: 5, Content: "again",
	})
	assert.ErrorIs(t, err, domainreviews.ErrAlreadyReviewed)

	agg := e.aggregate(t)
	assert.Equal(t, int64(1), agg.Count)
}

func TestCreateReviewValidation(t *testing.T) {
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	handler := e.createHandler()

	_, err := handler.Handle(context.Background(), reviewsapp.CreateReviewCommand{
		BookingID: "bk-1", AuthorID: "guest-1", Rating: 7, Content: "x",
	})
	assert.ErrorIs(t, err, domainreviews.ErrInvalidRating)

	_, err = handler.Handle(context.Background(), reviewsapp.CreateReviewCommand{
		BookingID: "bk-1", AuthorID: "guest-2", Rating: 3, Content: "x",
	})
	assert.ErrorIs(t, err, domainreviews.ErrBookingOwnership)

	// Failed attempts must not touch the aggregate.
	agg := e.aggregate(t)
	assert.Equal(t, int64(0), agg.Count)
}

func TestUpdateReviewRatingMovesBuckets(t *testing.T) {
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	created := e.createReview(t, "bk-1", "guest-1", 4)

	newRating := 2
	updated, err := e.updateHandler().Handle(context.Background(), reviewsapp.UpdateReviewCommand{
		ReviewID: created.ID, RequesterID: "guest-1", Rating: &newRating,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Rating)
	assert.True(t, updated.IsEdited)

	agg := e.aggregate(t)
	assert.Equal(t, int64(0), agg.Bucket(4))
	assert.Equal(t, int64(1), agg.Bucket(2))
	assert.Equal(t, int64(1), agg.Count)
	assert.Equal(t, 2.0, agg.Average)
}

func TestUpdateReviewNoopRatingSkipsAggregate(t *testing.T) {
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	created := e.createReview(t, "bk-1", "guest-1", 4)
	before := e.aggregate(t)

	sameRating := 4
	_, err := e.updateHandler().Handle(context.Background(), reviewsapp.UpdateReviewCommand{
		ReviewID: created.ID, RequesterID: "guest-1", Rating: &sameRating,
	})
	require.NoError(t, err)

	after := e.aggregate(t)
	assert.Equal(t, before.Version, after.Version)
}

func TestUpdateReviewOwnership(t *testing.T) {
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	created := e.createReview(t, "bk-1", "guest-1", 4)

	rating := 5
	_, err := e.updateHandler().Handle(context.Background(), reviewsapp.UpdateReviewCommand{
		ReviewID: created.ID, RequesterID: "guest-2", Rating: &rating,
	})
	assert.ErrorIs(t, err, domainreviews.ErrReviewOwnership)
}

func TestDeleteReviewRestoresEverything(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	created := e.createReview(t, "bk-1", "guest-1", 4)

	_, err := e.deleteHandler().Handle(ctx, reviewsapp.DeleteReviewCommand{
		ReviewID: created.ID, RequesterID: "guest-1",
	})
	require.NoError(t, err)

	_, err = e.reviews.ByID(ctx, domainreviews.ReviewID(created.ID))
	assert.ErrorIs(t, err, domainreviews.ErrNotFound)

	bk, err := e.bookings.ByID(ctx, "bk-1")
	require.NoError(t, err)
	assert.False(t, bk.HasReview)

	agg := e.aggregate(t)
	assert.Equal(t, int64(0), agg.Count)
	assert.Equal(t, 0.0, agg.Average)

	names := make([]string, 0, 2)
	for _, rec := range e.box.Records() {
		names = append(names, rec.Name)
	}
	assert.Contains(t, names, "review.deleted")
}

func TestFullLifecycleAverage(t *testing.T) {
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	e.seedCompletedBooking("bk-2", "guest-2")

	first := e.createReview(t, "bk-1", "guest-1", 4)
	e.createReview(t, "bk-2", "guest-2", 5)

	agg := e.aggregate(t)
	assert.Equal(t, 4.5, agg.Average)

	lowered := 2
	_, err := e.updateHandler().Handle(context.Background(), reviewsapp.UpdateReviewCommand{
		ReviewID: first.ID, RequesterID: "guest-1", Rating: &lowered,
	})
	require.NoError(t, err)
	agg = e.aggregate(t)
	assert.Equal(t, 3.5, agg.Average)

	_, err = e.deleteHandler().Handle(context.Background(), reviewsapp.DeleteReviewCommand{
		ReviewID: first.ID, RequesterID: "guest-1",
	})
	require.NoError(t, err)
	agg = e.aggregate(t)
	assert.Equal(t, int64(1), agg.Count)
	assert.Equal(t, 5.0, agg.Average)
}

func TestDeltaFailureFlagsEntityDirty(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	created := e.createReview(t, "bk-1", "guest-1", 4)

	// Wipe the aggregate behind the handler's back: the Remove delta now has
	// no bucket to decrement, which must flag the entity instead of failing
	// the delete.
	e.aggs.Corrupt(domainrating.Aggregate{Entity: propRef, Version: 5})

	_, err := e.deleteHandler().Handle(ctx, reviewsapp.DeleteReviewCommand{
		ReviewID: created.ID, RequesterID: "guest-1",
	})
	require.NoError(t, err)

	_, err = e.reviews.ByID(ctx, domainreviews.ReviewID(created.ID))
	assert.ErrorIs(t, err, domainreviews.ErrNotFound)

	dirtyEntities, err := e.dirty.ListDirty(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []domainrating.EntityRef{propRef}, dirtyEntities)
}

func TestHelpfulVotes(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	created := e.createReview(t, "bk-1", "guest-1", 4)
	handler := &reviewsapp.HelpfulVoteHandler{UoWFactory: e.factory}

	review, err := handler.HandleMark(ctx, reviewsapp.MarkHelpfulCommand{ReviewID: created.ID, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, review.HelpfulCount)

	review, err = handler.HandleMark(ctx, reviewsapp.MarkHelpfulCommand{ReviewID: created.ID, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, review.HelpfulCount)

	review, err = handler.HandleMark(ctx, reviewsapp.MarkHelpfulCommand{ReviewID: created.ID, UserID: "u2"})
	require.NoError(t, err)
	assert.Equal(t, 2, review.HelpfulCount)

	review, err = handler.HandleUnmark(ctx, reviewsapp.UnmarkHelpfulCommand{ReviewID: created.ID, UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 1, review.HelpfulCount)

	// Votes never touch the rating aggregate.
	agg := e.aggregate(t)
	assert.Equal(t, int64(1), agg.Version)
}

func TestAdminResponse(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	e.seedCompletedBooking("bk-1", "guest-1")
	created := e.createReview(t, "bk-1", "guest-1", 4)
	handler := &reviewsapp.AddAdminResponseHandler{UoWFactory: e.factory, Outbox: e.box}

	review, err := handler.Handle(ctx, reviewsapp.AddAdminResponseCommand{
		ReviewID: created.ID, AdminID: "admin-1", Content: "Thanks for staying!",
	})
	require.NoError(t, err)
	require.NotNil(t, review.AdminResponse)
	assert.Equal(t, "admin-1", review.AdminResponse.RespondedBy)

	review, err = handler.Handle(ctx, reviewsapp.AddAdminResponseCommand{
		ReviewID: created.ID, AdminID: "admin-2", Content: "Corrected reply",
	})
	require.NoError(t, err)
	assert.Equal(t, "admin-2", review.AdminResponse.RespondedBy)
	assert.Equal(t, "Corrected reply", review.AdminResponse.Content)
}

func TestListReviews(t *testing.T) {
	ctx := context.Background()
	e := newEnv()
	for i, id := range []string{"bk-1", "bk-2", "bk-3"} {
		e.seedCompletedBooking(id, "guest-1")
		_, err := e.createHandler().Handle(ctx, reviewsapp.CreateReviewCommand{
			BookingID: id, AuthorID: "guest-1", Rating: 3 + i%2, Content: "ok",
			Now: time.Date(2026, 3, 1+i, 0, 0, 0, 0, time.UTC),
		})
		require.NoError(t, err)
	}
	handler := &reviewsapp.ListReviewsHandler{UoWFactory: e.factory}

	page, err := handler.Handle(ctx, reviewsapp.ListReviewsQuery{
		TargetKind: "property", TargetID: "prop-1", Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "bk-3", page.Items[0].BookingID)

	_, err = handler.Handle(ctx, reviewsapp.ListReviewsQuery{TargetKind: "venue", TargetID: "x"})
	assert.ErrorIs(t, err, domainrating.ErrUnknownEntity)
}
