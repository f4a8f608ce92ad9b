package ginserver

import (
	"log/slog"
	"net/http"
	"time"

	gin "github.com/gin-gonic/gin"

	"stayrate/internal/app/commands"
	"stayrate/internal/app/dto"
	ratingsapp "stayrate/internal/app/handlers/ratings"
	"stayrate/internal/app/queries"
)

// RatingsHandler serves aggregate reads and the consistency-guard endpoints.
type RatingsHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h RatingsHandler) Get(c *gin.Context) {
	query := ratingsapp.GetAggregateQuery{TargetKind: c.Param("kind"), TargetID: c.Param("id")}
	agg, err := queries.Ask[ratingsapp.GetAggregateQuery, dto.Aggregate](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.fail(c, "aggregate get", err)
		return
	}
	c.JSON(http.StatusOK, agg)
}

func (h RatingsHandler) Verify(c *gin.Context) {
	query := ratingsapp.VerifyAggregateQuery{TargetKind: c.Param("kind"), TargetID: c.Param("id")}
	report, err := queries.Ask[ratingsapp.VerifyAggregateQuery, dto.RepairReport](c.Request.Context(), h.Queries, query)
	if err != nil {
		h.fail(c, "aggregate verify", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h RatingsHandler) Repair(c *gin.Context) {
	cmd := ratingsapp.VerifyAndRepairCommand{
		TargetKind: c.Param("kind"),
		TargetID:   c.Param("id"),
		Now:        time.Now().UTC(),
	}
	report, err := commands.Dispatch[ratingsapp.VerifyAndRepairCommand, dto.RepairReport](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, "aggregate repair", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h RatingsHandler) RepairBackref(c *gin.Context) {
	cmd := ratingsapp.RepairBackrefCommand{ReviewID: c.Param("id"), Now: time.Now().UTC()}
	report, err := commands.Dispatch[ratingsapp.RepairBackrefCommand, dto.BackrefReport](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		h.fail(c, "backref repair", err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h RatingsHandler) fail(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if h.Logger != nil && status >= http.StatusInternalServerError {
		h.Logger.Error(op+" failed", "status", status, "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

var _ RatingHTTP = RatingsHandler{}
