// Package server contains the HTTP and WebSocket handlers for the parks API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	_ "github.com/alexdfirestone/national-parks/docs" // swagger docs
	"github.com/alexdfirestone/national-parks/internal/bootstrap"
	"github.com/alexdfirestone/national-parks/internal/cache"
	"github.com/alexdfirestone/national-parks/internal/cms"
	"github.com/alexdfirestone/national-parks/internal/config"
	"github.com/alexdfirestone/national-parks/internal/featureflags"
	"github.com/alexdfirestone/national-parks/internal/middleware"
	"github.com/alexdfirestone/national-parks/internal/models"
	"github.com/alexdfirestone/national-parks/internal/notifications"
	"github.com/alexdfirestone/national-parks/internal/repository"
	"github.com/alexdfirestone/national-parks/internal/service"
	"github.com/alexdfirestone/national-parks/internal/storage"
	cmssync "github.com/alexdfirestone/national-parks/internal/sync"
	"github.com/alexdfirestone/national-parks/internal/webhook"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/swagger"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Syncer reconciles CMS documents into the content store.
type Syncer interface {
	ReconcilePark(ctx context.Context, doc cms.ParkDocument) (cmssync.Result, error)
	ReconcileCategory(ctx context.Context, doc cms.CategoryDocument) (cmssync.Result, error)
	SyncDocument(ctx context.Context, docType, id string) (cmssync.Result, error)
	FullSync(ctx context.Context) (cmssync.Report, error)
}

// Deps are the external collaborators that are not derived from config.
type Deps struct {
	DB    *gorm.DB
	Redis *redis.Client
	Blobs storage.Store
	// CMS may be nil; fetch and full sync modes then fail with a 500.
	CMS *cms.Client
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	db             *gorm.DB
	redis          *redis.Client
	app            *fiber.App
	promMiddleware *fiberprometheus.FiberPrometheus
	shutdownCtx    context.Context
	shutdownFn     context.CancelFunc

	identity     middleware.IdentityConfig
	limiter      *middleware.RateLimiter
	verifier     webhook.Verifier
	featureFlags *featureflags.Manager

	syncer     Syncer
	dispatcher service.Invalidator
	blobs      storage.Store
	localMedia string

	mutations  *service.MutationService
	uploads    *service.UploadService
	moderation *service.ModerationService
	content    *service.ContentService

	notifier *notifications.Notifier
	hub      *notifications.Hub
}

// NewServer connects to the database, Redis, blob storage and the CMS and
// returns a Server wired to them.
func NewServer(ctx context.Context, cfg *config.Config) (*Server, error) {
	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{})
	if err != nil {
		return nil, err
	}
	return NewServerWithDeps(cfg, Deps{DB: rt.DB, Redis: rt.Redis, Blobs: rt.Blobs, CMS: rt.CMS})
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// Use this in tests or when a bootstrap layer establishes them.
func NewServerWithDeps(cfg *config.Config, deps Deps) (*Server, error) {
	if deps.DB == nil {
		return nil, errors.New("database is required")
	}

	parks := repository.NewParkRepository(deps.DB)
	categories := repository.NewCategoryRepository(deps.DB)
	users := repository.NewUserRepository(deps.DB)
	things := repository.NewThingRepository(deps.DB)
	comments := repository.NewCommentRepository(deps.DB)
	votes := repository.NewVoteRepository(deps.DB)
	flags := repository.NewModerationRepository(deps.DB)

	transform := cms.Transformer{ProjectID: cfg.SanityProjectID, Dataset: cfg.SanityDataset}
	var source cmssync.Source
	if deps.CMS != nil {
		source = deps.CMS
		transform = deps.CMS.Transformer()
	}

	dispatcher := cache.NewDispatcher(deps.Redis)
	flagsMgr := featureflags.NewManager(cfg.FeatureFlags)

	s := &Server{
		config:         cfg,
		db:             deps.DB,
		redis:          deps.Redis,
		promMiddleware: middleware.InitMetrics("national-parks-api"),
		identity:       middleware.IdentityConfigFrom(cfg),
		limiter:        middleware.NewRateLimiter(deps.Redis, cfg.Env),
		verifier: webhook.Verifier{
			Secret: cfg.SanityWebhookSecret,
			MaxAge: time.Duration(cfg.WebhookMaxAgeSeconds) * time.Second,
		},
		featureFlags: flagsMgr,
		syncer:       cmssync.NewReconciler(parks, categories, source, transform),
		dispatcher:   dispatcher,
		blobs:        deps.Blobs,
	}
	if local, ok := deps.Blobs.(*storage.LocalStore); ok {
		s.localMedia = local.Dir()
	}

	s.mutations = service.NewMutationService(service.MutationDeps{
		Users:         users,
		Parks:         parks,
		Categories:    categories,
		Things:        things,
		Comments:      comments,
		Votes:         votes,
		Blobs:         deps.Blobs,
		Cache:         dispatcher,
		DefaultStatus: models.ThingStatus(cfg.ThingDefaultStatus),
		ImagesEnabled: func() bool { return flagsMgr.On(featureflags.ThingImages) },
		MaxImageBytes: cfg.UploadMaxBytes(),
	})
	s.uploads = service.NewUploadService(deps.Blobs, cfg.UploadMaxBytes())
	s.moderation = service.NewModerationService(flags, users, things, comments, dispatcher)
	s.content = service.NewContentService(parks, categories, things, comments, votes, cache.NewStore(deps.Redis))

	if deps.Redis != nil {
		s.notifier = notifications.NewNotifier(deps.Redis)
		s.hub = notifications.NewHub()
	}

	return s, nil
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())

	// Context Middleware to propagate Request ID
	app.Use(middleware.ContextMiddleware())

	if s.promMiddleware != nil {
		app.Use(middleware.MetricsMiddleware(s.promMiddleware))
	}
	app.Use(middleware.TracingMiddleware())

	app.Use(helmet.New(helmet.Config{CrossOriginResourcePolicy: "cross-origin"}))

	// Structured Logging middleware (after requestid and context middleware)
	app.Use(middleware.StructuredLogger())

	// CORS middleware should run before middlewares that can short-circuit (e.g. limiter)
	// so browser clients still receive CORS headers on error responses.
	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:3000,http://127.0.0.1:3000"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Upgrade, Connection, Sec-WebSocket-Key, Sec-WebSocket-Version, " + webhookSignatureHeader,
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))

	// Global rate limiting (300 requests per minute per IP)
	app.Use(limiter.New(limiter.Config{
		Max:        300,
		Expiration: 1 * time.Minute,
		Next: func(c *fiber.Ctx) bool {
			// Never rate-limit preflight requests or CMS webhook deliveries.
			return c.Method() == fiber.MethodOptions || c.Path() == "/api/sync"
		},
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error": "Too many requests, please try again later.",
			})
		},
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health/live", s.LivenessCheck)
	app.Get("/health/ready", s.ReadinessCheck)

	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}
	if s.localMedia != "" {
		app.Static(storage.DefaultLocalBaseURL, s.localMedia, fiber.Static{MaxAge: 3600})
	}

	api := app.Group("/api")

	// CMS and cache plumbing
	api.Post("/sync", s.SyncWebhook)
	api.Post("/revalidate", s.Revalidate)
	api.Post("/upload", s.limiter.Middleware(middleware.UploadLimit), s.Upload)

	// Read API
	api.Get("/parks", s.ListParks)
	api.Get("/parks/:slug/things", s.ListParkThings)
	api.Get("/parks/:slug", s.GetPark)
	api.Get("/categories", s.ListCategories)
	api.Get("/things/:id/votes", s.GetVotes)
	api.Get("/things/:id/comments", s.ListComments)
	api.Get("/things/:id", s.GetThing)

	// Mutations need a caller. Identity is attached per route so reads,
	// the feed and unknown paths stay anonymous.
	identify := middleware.Identity(s.identity)
	moderator := middleware.RequireRole(models.RoleModerator)
	api.Post("/things", identify, s.limiter.Middleware(middleware.CreateThingLimit), s.CreateThing)
	api.Post("/things/:id/votes", identify, s.limiter.Middleware(middleware.VoteLimit), s.VoteThing)
	api.Post("/things/:id/comments", identify, s.limiter.Middleware(middleware.CommentLimit), s.AddComment)

	api.Post("/flags", identify, s.limiter.Middleware(middleware.FlagLimit), s.CreateFlag)
	api.Get("/flags", identify, moderator, s.ListFlags)
	api.Post("/flags/:id/resolve", identify, moderator, s.ResolveFlag)

	api.Get("/ws/invalidations", s.InvalidationFeedHandler())

	api.Get("/swagger/*", swagger.HandlerDefault)
}

// LivenessCheck handles liveness probe requests
func (s *Server) LivenessCheck(c *fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"status": "up",
		"time":   time.Now(),
	})
}

// ReadinessCheck handles readiness probe requests
func (s *Server) ReadinessCheck(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 5*time.Second)
	defer cancel()

	dbStatus := "healthy"
	sqlDB, err := s.db.DB()
	if err != nil {
		dbStatus = "unhealthy"
	} else if err := sqlDB.PingContext(ctx); err != nil {
		dbStatus = "unhealthy"
	}

	// Redis only backs the cache; without it reads go straight to the database.
	redisStatus := "unavailable"
	if s.redis != nil {
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overallStatus := "healthy"
	if dbStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overallStatus = "unhealthy"
	} else if redisStatus != "healthy" {
		overallStatus = "degraded"
	}

	return c.Status(status).JSON(fiber.Map{
		"status": overallStatus,
		"checks": fiber.Map{
			"database": dbStatus,
			"redis":    redisStatus,
		},
		"features": s.featureFlags.Snapshot(""),
		"time":     time.Now(),
	})
}

// App builds the Fiber application with middleware and routes.
func (s *Server) App() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:   "National Parks API",
		BodyLimit: int(s.config.UploadMaxBytes()) + 1<<20,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			var fe *fiber.Error
			if errors.As(err, &fe) {
				return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
			}
			middleware.Logger.ErrorContext(c.UserContext(), "unhandled error", slog.String("error", err.Error()))
			return models.RespondWithError(c, fiber.StatusInternalServerError,
				models.NewInternalError(err))
		},
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

// Start starts the server
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.shutdownCtx = ctx
	s.shutdownFn = cancel

	s.app = s.App()

	// Fan invalidations from every replica out to live feed viewers
	if s.notifier != nil && s.hub != nil {
		go func() {
			if err := s.hub.StartWiring(s.shutdownCtx, s.notifier); err != nil {
				middleware.Logger.Error("failed to start feed wiring", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
			}
		}()
	}

	middleware.Logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	// Cancel the server-scoped context to stop the feed subscriber
	if s.shutdownFn != nil {
		s.shutdownFn()
	}

	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			middleware.Logger.Error("error shutting down HTTP server", slog.String("error", err.Error()))
		}
	}

	if s.hub != nil {
		if err := s.hub.Shutdown(ctx); err != nil {
			middleware.Logger.Error("error shutting down hub", slog.String("hub", s.hub.Name()), slog.String("error", err.Error()))
		}
	}

	if s.blobs != nil {
		if err := s.blobs.Close(); err != nil {
			middleware.Logger.Error("error closing blob store", slog.String("error", err.Error()))
		}
	}

	if sqlDB, err := s.db.DB(); err == nil {
		if cerr := sqlDB.Close(); cerr != nil {
			middleware.Logger.Error("error closing sql DB", slog.String("error", cerr.Error()))
		}
	}

	if s.redis != nil {
		if rerr := s.redis.Close(); rerr != nil {
			middleware.Logger.Error("error closing redis", slog.String("error", rerr.Error()))
		}
	}

	middleware.Logger.Info("server shutdown complete")
	return nil
}
