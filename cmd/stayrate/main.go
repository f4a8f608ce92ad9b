package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"stayrate/internal/app/commands"
	ratingsapp "stayrate/internal/app/handlers/ratings"
	reviewsapp "stayrate/internal/app/handlers/reviews"
	appoutbox "stayrate/internal/app/outbox"
	"stayrate/internal/app/policies"
	"stayrate/internal/app/queries"
	"stayrate/internal/app/uow"
	domainbooking "stayrate/internal/domain/booking"
	domainrating "stayrate/internal/domain/rating"
	"stayrate/internal/infra/broker/kafka"
	rediscache "stayrate/internal/infra/cache/redis"
	"stayrate/internal/infra/config"
	mongodb "stayrate/internal/infra/db/mongo"
	ginserver "stayrate/internal/infra/http/gin"
	"stayrate/internal/infra/obs"
	outboxinfra "stayrate/internal/infra/outbox"
	"stayrate/internal/infra/reconcile"
	"stayrate/internal/infra/storage/memory"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := obs.NewLogger(getenv("APP_ENV", "dev"))

	cfg, err := config.Load()
	if err != nil {
		logger.Error("configuration invalid", "error", err)
		os.Exit(1)
	}

	app, err := buildApplication(cfg, logger)
	if err != nil {
		logger.Error("application bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	if app.bookings != nil {
		path := getenv("BOOKING_FIXTURES", defaultBookingFixturesPath())
		if err := loadBookingFixtures(app.bookings, path, logger); err != nil {
			logger.Warn("booking fixtures load failed", "error", err, "path", path)
		}
	}

	server := ginserver.NewServer(cfg, obs.Middleware{Logger: logger}, obs.HealthHandlers{
		Ready:       app.ready,
		OutboxDepth: app.outboxDepth,
	}, app.handlers)

	if err := app.sweeper.Start(); err != nil {
		logger.Error("reconciliation sweeper failed to start", "error", err)
		os.Exit(1)
	}

	if app.worker != nil {
		go func() {
			if err := app.worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("outbox worker stopped", "error", err)
			}
		}()
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.sweeper.Stop(shutdownCtx); err != nil {
			logger.Error("sweeper shutdown failed", "error", err)
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("http shutdown failed", "error", err)
		}
	}()

	logger.Info("HTTP server starting", "addr", cfg.HTTPAddr, "storage", app.storageMode)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("http server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("HTTP server stopped")
}

type application struct {
	handlers    ginserver.Handlers
	sweeper     *reconcile.Sweeper
	worker      *outboxinfra.Worker
	ready       func() error
	outboxDepth func(ctx context.Context) (int64, error)
	close       func()
	storageMode string

	// set only in memory mode, for fixture seeding
	bookings *memory.BookingRepository
}

func buildApplication(cfg config.Config, logger *slog.Logger) (*application, error) {
	app := &application{close: func() {}, ready: func() error { return nil }}

	var (
		factory    uow.Factory
		outboxPort appoutbox.Outbox
		dirty      policies.DirtyQueue
		cache      policies.AggregateCache
		closers    []func()
	)

	if cfg.RedisAddr != "" {
		rc := rediscache.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		cache = rc
		closers = append(closers, func() { _ = rc.Close() })
	}

	if cfg.MongoURI != "" {
		app.storageMode = "mongo"
		client, err := mongodb.New(cfg.MongoURI, cfg.MongoDB)
		if err != nil {
			return nil, fmt.Errorf("mongo connect: %w", err)
		}
		closers = append(closers, func() {
			disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = client.Close(disconnectCtx)
		})

		factory = mongodb.Factory{
			DB:            client.DB,
			BookingRepo:   mongodb.NewBookingRepository(client.DB),
			ReviewRepo:    mongodb.NewReviewRepository(client.DB),
			AggregateRepo: mongodb.NewAggregateRepository(client.DB),
		}
		dirty = mongodb.NewDirtyStore(client.DB)

		store := outboxinfra.NewStore(client.DB)
		outboxPort = store
		app.outboxDepth = store.Pending

		producer, err := kafka.NewProducer(cfg.KafkaBrokers, nil)
		if err != nil {
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		closers = append(closers, func() { _ = producer.Close() })

		app.worker = &outboxinfra.Worker{
			Store:       store,
			Producer:    producer,
			Logger:      logger,
			Interval:    cfg.OutboxPollInterval,
			TopicPrefix: cfg.KafkaTopicPrefix,
			Backoff:     cfg.RetryBackoff,
		}
		app.ready = func() error {
			pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return client.Ping(pingCtx)
		}
	} else {
		app.storageMode = "memory"
		bookingRepo := memory.NewBookingRepository()
		factory = memory.Factory{
			BookingRepo:   bookingRepo,
			ReviewRepo:    memory.NewReviewRepository(),
			AggregateRepo: memory.NewAggregateRepository(),
		}
		dirty = memory.NewDirtyQueue()
		outboxPort = memory.NewOutbox()
		app.bookings = bookingRepo
	}

	app.close = func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	encoder := appoutbox.JSONEventEncoder{}
	cacheTTL := int(cfg.AggregateCacheTTL.Seconds())

	commandBus := commands.NewInMemoryBus()
	queryBus := queries.NewInMemoryBus()

	createHandler := &reviewsapp.CreateReviewHandler{
		UoWFactory: factory, Outbox: outboxPort, Encoder: encoder, Dirty: dirty, Cache: cache, Logger: logger,
	}
	commands.Register(commandBus, reviewsapp.CreateReviewCommand{}.Key(), createHandler)

	updateHandler := &reviewsapp.UpdateReviewHandler{
		UoWFactory: factory, Outbox: outboxPort, Encoder: encoder, Dirty: dirty, Cache: cache, Logger: logger,
	}
	commands.Register(commandBus, reviewsapp.UpdateReviewCommand{}.Key(), updateHandler)

	deleteHandler := &reviewsapp.DeleteReviewHandler{
		UoWFactory: factory, Outbox: outboxPort, Encoder: encoder, Dirty: dirty, Cache: cache, Logger: logger,
	}
	commands.Register(commandBus, reviewsapp.DeleteReviewCommand{}.Key(), deleteHandler)

	voteHandler := &reviewsapp.HelpfulVoteHandler{UoWFactory: factory, Logger: logger}
	commands.Register(commandBus, reviewsapp.MarkHelpfulCommand{}.Key(), voteHandler.MarkHandler())
	commands.Register(commandBus, reviewsapp.UnmarkHelpfulCommand{}.Key(), voteHandler.UnmarkHandler())

	respondHandler := &reviewsapp.AddAdminResponseHandler{
		UoWFactory: factory, Outbox: outboxPort, Encoder: encoder, Logger: logger,
	}
	commands.Register(commandBus, reviewsapp.AddAdminResponseCommand{}.Key(), respondHandler)

	guard := &ratingsapp.VerifyRepairHandler{
		UoWFactory: factory, Outbox: outboxPort, Encoder: encoder, Dirty: dirty, Cache: cache, Logger: logger,
	}
	commands.Register(commandBus, ratingsapp.VerifyAndRepairCommand{}.Key(), guard.RepairHandler())
	commands.Register(commandBus, ratingsapp.RepairBackrefCommand{}.Key(), guard.BackrefHandler())
	queries.Register(queryBus, ratingsapp.VerifyAggregateQuery{}.Key(), guard.VerifyHandler())

	queries.Register(queryBus, reviewsapp.CheckEligibilityQuery{}.Key(), &reviewsapp.CheckEligibilityHandler{UoWFactory: factory})
	queries.Register(queryBus, reviewsapp.ListReviewsQuery{}.Key(), &reviewsapp.ListReviewsHandler{UoWFactory: factory})
	queries.Register(queryBus, reviewsapp.GetReviewQuery{}.Key(), &reviewsapp.GetReviewHandler{UoWFactory: factory})
	queries.Register(queryBus, ratingsapp.GetAggregateQuery{}.Key(), &ratingsapp.GetAggregateHandler{
		UoWFactory: factory, Cache: cache, CacheTTL: cacheTTL,
	})

	app.sweeper = &reconcile.Sweeper{
		Bus:      commandBus,
		Dirty:    dirty,
		Logger:   logger,
		Schedule: cfg.ReconcileSchedule,
		Batch:    cfg.ReconcileBatch,
		Parallel: cfg.ReconcileParallel,
	}

	app.handlers = ginserver.Handlers{
		Reviews: ginserver.ReviewsHandler{Commands: commandBus, Queries: queryBus, Logger: logger},
		Ratings: ginserver.RatingsHandler{Commands: commandBus, Queries: queryBus, Logger: logger},
	}
	return app, nil
}

// loadBookingFixtures seeds the in-memory booking store. Bookings are owned
// by an external purchase system in production, so memory mode fakes that
// system with a JSON file.
func loadBookingFixtures(repo *memory.BookingRepository, path string, logger *slog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info("booking fixtures file not found, skipping", "path", path)
			return nil
		}
		return fmt.Errorf("read fixtures: %w", err)
	}

	var fixtures []bookingFixture
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return fmt.Errorf("decode fixtures: %w", err)
	}

	now := time.Now().UTC()
	for _, fx := range fixtures {
		target, err := domainrating.RefFromIDs(fx.PropertyID, fx.PackageID)
		if err != nil {
			logger.Error("fixture invalid", "booking_id", fx.ID, "error", err)
			continue
		}
		repo.Seed(&domainbooking.Booking{
			ID:        domainbooking.BookingID(fx.ID),
			UserID:    fx.UserID,
			Target:    target,
			Status:    domainbooking.Status(fx.Status),
			CreatedAt: parseFixtureTime(fx.CreatedAt, now),
			UpdatedAt: now,
		})
		logger.Info("booking fixture imported", "booking_id", fx.ID)
	}
	return nil
}

type bookingFixture struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	PropertyID string `json:"property_id"`
	PackageID  string `json:"package_id"`
	Status     string `json:"status"`
	CreatedAt  string `json:"created_at"`
}

func parseFixtureTime(value string, fallback time.Time) time.Time {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return fallback
}

func defaultBookingFixturesPath() string {
	return filepath.Join("data", "bookings.json")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
