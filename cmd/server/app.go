package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/hibiken/asynq"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	config "github.com/maheshrc27/reelqueue/configs"
	"github.com/maheshrc27/reelqueue/internal/api/handlers"
	"github.com/maheshrc27/reelqueue/internal/api/middleware"
	"github.com/maheshrc27/reelqueue/internal/repository"
	"github.com/maheshrc27/reelqueue/internal/service"
	"github.com/maheshrc27/reelqueue/pkg/utils"
)

// application holds everything both the server and the one-shot batch command need.
type application struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *sql.DB

	posts    repository.PostRepository
	accounts repository.SocialAccountRepository

	batch     service.BatchService
	auth      service.AuthService
	postSvc   service.PostService
	storage   service.StorageService
	asynqConn asynq.RedisClientOpt
}

func newApplication(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*application, error) {
	app := &application{cfg: cfg, logger: logger}

	if cfg.PostgresURI != "" {
		db, err := sql.Open("postgres", cfg.PostgresURI)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return nil, fmt.Errorf("database is unreachable: %w", err)
		}
		if err := repository.EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
		app.db = db
		app.posts = repository.NewPostRepository(db, cfg.Publish.ClaimLease)
		app.accounts = repository.NewSocialAccountRepository(db)
	} else {
		logger.Warn("POSTGRES_URI is empty, using the in-memory store")
		store := repository.NewMemoryStore(cfg.Publish.ClaimLease)
		app.posts = store.Posts()
		app.accounts = store.Accounts()
	}

	cipher, err := utils.NewTokenCipher([]byte(cfg.SecretKey))
	if err != nil {
		app.close()
		return nil, err
	}

	httpClient := &http.Client{Timeout: cfg.Publish.RequestTimeout}
	caller := service.NewRemoteCaller(httpClient, cfg.Publish.RemoteAttempts, cfg.Publish.RemoteBaseDelay, logger)
	instagram := service.NewInstagramService(cfg.Instagram.GraphAPIURL, caller, logger)
	poller := service.NewStatusPoller(instagram, cfg.Publish.PollInterval, cfg.Publish.PollAttempts, logger)
	publisher := service.NewPublishService(instagram, poller, cipher, logger)
	clock := service.RealTimeProvider{}

	app.batch = service.NewBatchService(app.posts, publisher, clock, cfg.Publish.CronSecret, cfg.Publish.BatchConcurrency, cfg.Publish.ClaimLease, logger)
	app.auth = service.NewAuthService(cfg.Instagram, app.accounts, cipher, caller, logger)
	app.postSvc = service.NewPostService(app.posts, app.accounts, clock)

	app.storage, err = service.NewStorageService(ctx, cfg.Spaces)
	if err != nil {
		app.close()
		return nil, err
	}

	app.asynqConn = asynq.RedisClientOpt{Addr: cfg.RedisURI}
	return app, nil
}

// batchTimeout keeps a batch inside the claim lease so a still-running batch never
// overlaps with another one re-claiming its posts.
func (a *application) batchTimeout() time.Duration {
	return a.cfg.Publish.ClaimLease
}

func (a *application) newHTTPApp(asynqClient *asynq.Client) *fiber.App {
	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: a.batchTimeout(),
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				code = fiberErr.Code
			}
			if code >= fiber.StatusInternalServerError {
				a.logger.Error("Request failed", zap.String("path", c.Path()), zap.Error(err))
				return c.Status(code).JSON(fiber.Map{"error": "Internal server error"})
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.FrontendURL,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: true,
		MaxAge:           3600,
	}))

	auth := handlers.NewAuthHandler(*a.cfg, a.auth, a.logger)
	app.Get("/auth/instagram", auth.ConnectInstagram)
	app.Get("/auth/instagram/callback", auth.InstagramCallback)

	// The trigger authenticates with CRON_SECRET, not the session cookie.
	cron := handlers.NewCronHandler(a.batch)
	app.Get("/api/cron", cron.RunBatch)

	authMiddleware := middleware.NewAuthMiddleware(*a.cfg, a.logger)
	api := app.Group("/api")
	api.Use(authMiddleware.AuthMiddleware())

	post := handlers.NewPostHandler(a.postSvc, asynqClient, a.logger)
	api.Post("/schedule", post.SchedulePost)
	api.Get("/posts", post.ListPosts)

	api.Get("/accounts", auth.ListAccounts)

	upload := handlers.NewUploadHandler(a.storage)
	api.Post("/upload/request-url", upload.RequestUploadURL)

	return app
}

func (a *application) close() {
	if a.db == nil {
		return
	}
	if err := a.db.Close(); err != nil {
		a.logger.Error("Failed to close database", zap.Error(err))
		return
	}
	a.logger.Info("Database connection closed")
}
