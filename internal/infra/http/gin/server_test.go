package ginserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayrate/internal/app/commands"
	ratingsapp "stayrate/internal/app/handlers/ratings"
	reviewsapp "stayrate/internal/app/handlers/reviews"
	"stayrate/internal/app/queries"
	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	"stayrate/internal/infra/config"
	"stayrate/internal/infra/obs"
	"stayrate/internal/infra/storage/memory"
)

func newTestServer(t *testing.T) (http.Handler, *memory.BookingRepository) {
	t.Helper()

	bookings := memory.NewBookingRepository()
	factory := memory.Factory{
		BookingRepo:   bookings,
		ReviewRepo:    memory.NewReviewRepository(),
		AggregateRepo: memory.NewAggregateRepository(),
	}
	dirty := memory.NewDirtyQueue()

	commandBus := commands.NewInMemoryBus()
	commands.Register(commandBus, reviewsapp.CreateReviewCommand{}.Key(),
		&reviewsapp.CreateReviewHandler{UoWFactory: factory, Dirty: dirty})
	commands.Register(commandBus, reviewsapp.DeleteReviewCommand{}.Key(),
		&reviewsapp.DeleteReviewHandler{UoWFactory: factory, Dirty: dirty})

	guard := &ratingsapp.VerifyRepairHandler{UoWFactory: factory, Dirty: dirty}
	commands.Register(commandBus, ratingsapp.VerifyAndRepairCommand{}.Key(), guard.RepairHandler())
	commands.Register(commandBus, ratingsapp.RepairBackrefCommand{}.Key(), guard.BackrefHandler())

	queryBus := queries.NewInMemoryBus()
	queries.Register(queryBus, reviewsapp.CheckEligibilityQuery{}.Key(),
		&reviewsapp.CheckEligibilityHandler{UoWFactory: factory})
	queries.Register(queryBus, reviewsapp.ListReviewsQuery{}.Key(),
		&reviewsapp.ListReviewsHandler{UoWFactory: factory})
	queries.Register(queryBus, ratingsapp.GetAggregateQuery{}.Key(),
		&ratingsapp.GetAggregateHandler{UoWFactory: factory})
	queries.Register(queryBus, ratingsapp.VerifyAggregateQuery{}.Key(), guard.VerifyHandler())

	server := NewServer(
		config.Config{Env: "test", HTTPAddr: ":0"},
		obs.Middleware{},
		obs.HealthHandlers{},
		Handlers{
			Reviews: ReviewsHandler{Commands: commandBus, Queries: queryBus},
			Ratings: RatingsHandler{Commands: commandBus, Queries: queryBus},
		},
	)
	return server.Handler, bookings
}

func seedBooking(bookings *memory.BookingRepository, id, userID string) {
	bookings.Seed(&domainbooking.Booking{
		ID:     domainbooking.BookingID(id),
		UserID: userID,
		Target: domainrating.EntityRef{Kind: domainrating.KindProperty, ID: "prop-1"},
		Status: domainbooking.StatusCompleted,
	})
}

func doJSON(t *testing.T, handler http.Handler, method, path, user, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set("X-User-ID", user)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestCreateReviewEndpoint(t *testing.T) {
	handler, bookings := newTestServer(t)
	seedBooking(bookings, "bk-1", "guest-1")

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings/bk-1/reviews", "guest-1",
		`{"rating":5,"content":"superb"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var review struct {
		ID     string `json:"id"`
		Rating int    `json:"rating"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &review))
	assert.NotEmpty(t, review.ID)
	assert.Equal(t, 5, review.Rating)

	// Aggregate is visible right after the write.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/entities/property/prop-1/rating", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var agg struct {
		Count     int64            `json:"count"`
		Average   float64          `json:"average"`
		Histogram map[string]int64 `json:"histogram"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agg))
	assert.Equal(t, int64(1), agg.Count)
	assert.Equal(t, 5.0, agg.Average)
	assert.Equal(t, int64(1), agg.Histogram["5"])
}

func TestCreateReviewStatusMapping(t *testing.T) {
	handler, bookings := newTestServer(t)
	seedBooking(bookings, "bk-1", "guest-1")

	t.Run("missing identity", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings/bk-1/reviews", "",
			`{"rating":5,"content":"x"}`)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown booking", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings/bk-404/reviews", "guest-1",
			`{"rating":5,"content":"x"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("foreign booking", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings/bk-1/reviews", "guest-2",
			`{"rating":5,"content":"x"}`)
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("invalid rating", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings/bk-1/reviews", "guest-1",
			`{"rating":9,"content":"x"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("duplicate review", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings/bk-1/reviews", "guest-1",
			`{"rating":5,"content":"first"}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = doJSON(t, handler, http.MethodPost, "/api/v1/bookings/bk-1/reviews", "guest-1",
			`{"rating":4,"content":"second"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestEligibilityEndpoint(t *testing.T) {
	handler, bookings := newTestServer(t)
	seedBooking(bookings, "bk-1", "guest-1")

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/bookings/bk-1/eligibility", "guest-1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var result struct {
		Eligible bool   `json:"eligible"`
		Reason   string `json:"reason"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.True(t, result.Eligible)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/bookings/bk-1/eligibility", "guest-2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.False(t, result.Eligible)
	assert.Equal(t, "not_owner", result.Reason)
}

func TestVerifyEndpoint(t *testing.T) {
	handler, bookings := newTestServer(t)
	seedBooking(bookings, "bk-1", "guest-1")
	rec := doJSON(t, handler, http.MethodPost, "/api/v1/bookings/bk-1/reviews", "guest-1",
		`{"rating":4,"content":"nice"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/entities/property/prop-1/rating/verify", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var report struct {
		Consistent bool `json:"consistent"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.True(t, report.Consistent)
}

func TestHealthEndpoints(t *testing.T) {
	handler, _ := newTestServer(t)

	rec := doJSON(t, handler, http.MethodGet, "/livez", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/readyz", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
