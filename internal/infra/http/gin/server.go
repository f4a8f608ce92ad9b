package ginserver

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	gin "github.com/gin-gonic/gin"

	"stayrate/internal/infra/config"
	"stayrate/internal/infra/obs"
)

type ReviewHTTP interface {
	CheckEligibility(c *gin.Context)
	Create(c *gin.Context)
	Get(c *gin.Context)
	Update(c *gin.Context)
	Delete(c *gin.Context)
	MarkHelpful(c *gin.Context)
	UnmarkHelpful(c *gin.Context)
	Respond(c *gin.Context)
	ListByEntity(c *gin.Context)
}

type RatingHTTP interface {
	Get(c *gin.Context)
	Verify(c *gin.Context)
	Repair(c *gin.Context)
	RepairBackref(c *gin.Context)
}

type Handlers struct {
	Reviews ReviewHTTP
	Ratings RatingHTTP
}

func NewServer(cfg config.Config, obsMW obs.Middleware, health obs.HealthHandlers, h Handlers) *http.Server {
	mode := configureGinMode(cfg.Env)
	if obsMW.Logger != nil {
		obsMW.Logger.Info("gin initialized", "mode", mode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(obsMW.RequestID())
	router.Use(obsMW.LoggerMiddleware())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-User-ID"},
		ExposeHeaders: []string{
			"Content-Length",
			"Content-Type",
			"X-Request-ID",
		},
		MaxAge: 12 * time.Hour,
	}))

	router.GET("/livez", health.Livez)
	router.GET("/readyz", health.Readyz)
	router.GET("/metrics", gin.WrapH(obs.MetricsHandler()))

	api := router.Group("/api/v1")
	if h.Reviews != nil {
		api.GET("/bookings/:id/eligibility", h.Reviews.CheckEligibility)
		api.POST("/bookings/:id/reviews", h.Reviews.Create)
		api.GET("/reviews/:id", h.Reviews.Get)
		api.PATCH("/reviews/:id", h.Reviews.Update)
		api.DELETE("/reviews/:id", h.Reviews.Delete)
		api.POST("/reviews/:id/helpful", h.Reviews.MarkHelpful)
		api.DELETE("/reviews/:id/helpful", h.Reviews.UnmarkHelpful)
		api.POST("/reviews/:id/response", h.Reviews.Respond)
		api.GET("/entities/:kind/:id/reviews", h.Reviews.ListByEntity)
	}
	if h.Ratings != nil {
		api.GET("/entities/:kind/:id/rating", h.Ratings.Get)
		api.GET("/entities/:kind/:id/rating/verify", h.Ratings.Verify)
		api.POST("/entities/:kind/:id/rating/repair", h.Ratings.Repair)
		api.POST("/reviews/:id/backref/repair", h.Ratings.RepairBackref)
	}

	return &http.Server{Addr: cfg.HTTPAddr, Handler: router}
}

func configureGinMode(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "debug", "dev", "local":
		gin.SetMode(gin.DebugMode)
		return gin.DebugMode
	case "test", "testing":
		gin.SetMode(gin.TestMode)
		return gin.TestMode
	default:
		gin.SetMode(gin.ReleaseMode)
		return gin.ReleaseMode
	}
}
