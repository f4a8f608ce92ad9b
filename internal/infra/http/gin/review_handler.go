package ginserver

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	gin "github.com/gin-gonic/gin"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/dto"
	reviewsapp "stayrate/internal/app/handlers/reviews"
	"stayrate/internal/app/queries"
	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	domainreviews "stayrate/internal/domain/reviews"
	"stayrate/internal/domain/shared/version"
)

// ReviewsHandler translates the HTTP surface into bus commands and queries.
// The caller identity arrives in X-User-ID; authentication itself lives in the
// gateway in front of this service.
type ReviewsHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createReviewRequest struct {
	Rating  int    `json:"rating"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type updateReviewRequest struct {
	Rating  *int   `json:"rating"`
	Title   string `json:"title"`
	Content string `json:"content"`
}

type respondRequest struct {
	Content string `json:"content"`
}

func (h ReviewsHandler) CheckEligibility(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	query := reviewsapp.CheckEligibilityQuery{UserID: user, BookingID: c.Param("id")}
	result, err := queries.Ask[reviewsapp.CheckEligibilityQuery, dto.Eligibility](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.fail(c, "eligibility check", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReviewsHandler) Create(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req createReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := reviewsapp.CreateReviewCommand{
		BookingID: c.Param("id"),
		AuthorID:  user,
		Rating:    req.Rating,
		Title:     req.Title,
		Content:   req.Content,
		Now:       time.Now().UTC(),
	}
	review, err := commands.Dispatch[reviewsapp.CreateReviewCommand, dto.Review](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, "review create", err)
		return
	}
	c.JSON(http.StatusCreated, review)
}

func (h ReviewsHandler) Get(c *gin.Context) {
	query := reviewsapp.GetReviewQuery{ReviewID: c.Param("id")}
	review, err := queries.Ask[reviewsapp.GetReviewQuery, dto.Review](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.fail(c, "review get", err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h ReviewsHandler) Update(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req updateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := reviewsapp.UpdateReviewCommand{
		ReviewID:    c.Param("id"),
		RequesterID: user,
		Rating:      req.Rating,
		Title:       req.Title,
		Content:     req.Content,
		Now:         time.Now().UTC(),
	}
	review, err := commands.Dispatch[reviewsapp.UpdateReviewCommand, dto.Review](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, "review update", err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h ReviewsHandler) Delete(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := reviewsapp.DeleteReviewCommand{
		ReviewID:    c.Param("id"),
		RequesterID: user,
		Now:         time.Now().UTC(),
	}
	if _, err := commands.Dispatch[reviewsapp.DeleteReviewCommand, struct{}](c.Request.Context(), h.Commands, cmd); err != nil {
		h.fail(c, "review delete", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h ReviewsHandler) MarkHelpful(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := reviewsapp.MarkHelpfulCommand{ReviewID: c.Param("id"), UserID: user}
	review, err := commands.Dispatch[reviewsapp.MarkHelpfulCommand, dto.Review](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, "helpful vote", err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h ReviewsHandler) UnmarkHelpful(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	cmd := reviewsapp.UnmarkHelpfulCommand{ReviewID: c.Param("id"), UserID: user}
	review, err := commands.Dispatch[reviewsapp.UnmarkHelpfulCommand, dto.Review](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, "helpful unvote", err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h ReviewsHandler) Respond(c *gin.Context) {
	user, ok := requireUser(c)
	if !ok {
		return
	}
	var req respondRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd := reviewsapp.AddAdminResponseCommand{
		ReviewID: c.Param("id"),
		AdminID:  user,
		Content:  req.Content,
		Now:      time.Now().UTC(),
	}
	review, err := commands.Dispatch[reviewsapp.AddAdminResponseCommand, dto.Review](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, "admin response", err)
		return
	}
	c.JSON(http.StatusOK, review)
}

func (h ReviewsHandler) ListByEntity(c *gin.Context) {
	query := reviewsapp.ListReviewsQuery{
		TargetKind: c.Param("kind"),
		TargetID:   c.Param("id"),
		Limit:      parsePositiveInt(c.Query("limit"), 0),
		Offset:     parsePositiveInt(c.Query("offset"), 0),
	}
	result, err := queries.Ask[reviewsapp.ListReviewsQuery, dto.ReviewCollection](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.fail(c, "review list", err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h ReviewsHandler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if h.Logger != nil && status >= http.StatusInternalServerError {
		h.Logger.Error(op+" failed", "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// statusFor maps the domain error taxonomy onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domainbooking.ErrBookingNotFound),
		errors.Is(err, domainreviews.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainreviews.ErrBookingOwnership),
		errors.Is(err, domainreviews.ErrReviewOwnership):
		return http.StatusForbidden
	case errors.Is(err, domainreviews.ErrAlreadyReviewed),
		errors.Is(err, domainbooking.ErrAlreadyReviewed),
		errors.Is(err, version.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, domainreviews.ErrBookingNotCompleted),
		errors.Is(err, domainreviews.ErrInvalidRating),
		errors.Is(err, domainreviews.ErrEmptyContent),
		errors.Is(err, domainreviews.ErrContentTooLong),
		errors.Is(err, domainreviews.ErrNotActive),
		errors.Is(err, domainrating.ErrInvalidRating),
		errors.Is(err, domainrating.ErrUnknownEntity):
		return http.StatusBadRequest
	case errors.Is(err, domainrating.ErrContention):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func requireUser(c *gin.Context) (string, bool) {
	user := c.GetHeader("X-User-ID")
	if user == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "X-User-ID header is required"})
		return "", false
	}
	return user, true
}

func parsePositiveInt(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}

var _ ReviewHTTP = ReviewsHandler{}
