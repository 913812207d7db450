package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/rendezvous-server-go/internal/audit"
	"github.com/openclaw/rendezvous-server-go/internal/config"
	"github.com/openclaw/rendezvous-server-go/internal/database"
	"github.com/openclaw/rendezvous-server-go/internal/handler"
	"github.com/openclaw/rendezvous-server-go/internal/jobs"
	"github.com/openclaw/rendezvous-server-go/internal/middleware"
	"github.com/openclaw/rendezvous-server-go/internal/redis"
	"github.com/openclaw/rendezvous-server-go/internal/repository"
	"github.com/openclaw/rendezvous-server-go/internal/service"
	"github.com/openclaw/rendezvous-server-go/internal/sse"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	setLogLevel(cfg.LogLevel)

	isProduction := os.Getenv("APP_ENV") == "production"
	if err := cfg.Validate(isProduction); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	// Optional audit store. The registries themselves are always in memory.
	var (
		db        *database.DB
		auditRepo repository.AuditEventRepository
	)
	if cfg.DatabaseURL != "" {
		db, err = database.Connect(cfg.DatabaseURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()

		ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
		if err := db.Ping(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to ping database")
		}
		if err := db.Migrate(ctx); err != nil {
			log.Fatal().Err(err).Msg("failed to migrate database")
		}
		cancel()

		auditRepo = repository.NewAuditEventRepository(db.DB)
		log.Info().Msg("database connected, audit events persisted")
	}

	var (
		redisClient  *redis.Client
		limiter      middleware.Limiter
		localLimiter *middleware.RateLimiter
	)
	if cfg.RedisURL != "" {
		ctx, cancel := context.WithTimeout(context.Background(), config.PingTimeout)
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer redisClient.Close()

		limiter = middleware.NewRedisRateLimiter(redisClient.Client)
		log.Info().Msg("redis connected, rate limits shared")
	} else {
		localLimiter = middleware.NewRateLimiter()
		limiter = localLimiter
	}

	ticketRepo := repository.NewPairingTicketRepository()
	deviceRepo := repository.NewDeviceRepository()
	challengeRepo := repository.NewChallengeRepository()

	broker := sse.NewBroker()
	defer broker.Close()

	var auditStore audit.Store
	if auditRepo != nil {
		auditStore = auditRepo
	}
	auditLogger := audit.NewLogger(auditStore)

	pairingService := service.NewPairingService(ticketRepo, deviceRepo, auditLogger)
	challengeService := service.NewChallengeService(
		deviceRepo, challengeRepo, broker, auditLogger,
		cfg.AwaitTimeout(), cfg.AwaitPollInterval(),
	)
	statsService := service.NewStatsService(ticketRepo, deviceRepo, challengeRepo, auditRepo, broker)

	setupHandler := handler.NewSetupHandler(pairingService)
	twofaHandler := handler.NewTwoFAHandler(challengeService)
	eventsHandler := handler.NewEventsHandler(broker, challengeService)
	adminHandler := handler.NewAdminHandler(statsService)
	healthHandler := handler.NewHealthHandler(healthDeps(db, redisClient))

	bodyLimitMiddleware := middleware.NewBodyLimitMiddleware(0)
	setupRateLimit := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimitPerMin, "setup")
	twofaRateLimit := middleware.NewRateLimitMiddleware(limiter, cfg.RateLimitPerMin, "2fa")
	adminAuthMiddleware := middleware.NewAdminAuthMiddleware(cfg.AdminPasswordHash)
	securityHeadersMiddleware := middleware.NewSecurityHeadersMiddleware(isProduction)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(bodyLimitMiddleware.Handler)

	r.Get("/healthz", healthHandler.ServeHTTP)

	// Long-lived requests: bounded by the await timeout or the client, never
	// by the server request timeout.
	r.Group(func(r chi.Router) {
		r.Use(twofaRateLimit.Handler)
		r.Post("/2fa/await", twofaHandler.Await)
		r.Get("/2fa/events", eventsHandler.ServeHTTP)
	})

	r.Group(func(r chi.Router) {
		r.Use(chimiddleware.Timeout(config.ServerRequestTimeout))

		r.Route("/setup", func(r chi.Router) {
			r.Use(setupRateLimit.Handler)
			r.Mount("/", setupHandler.Routes())
		})

		r.Route("/2fa", func(r chi.Router) {
			r.Use(twofaRateLimit.Handler)
			r.Mount("/", twofaHandler.Routes())
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(securityHeadersMiddleware.Handler)
			r.Use(adminAuthMiddleware.Handler)
			r.Mount("/", adminHandler.Routes())
		})
	})

	var evictor jobs.Evictor
	if localLimiter != nil {
		evictor = localLimiter
	}
	maintenanceJob := jobs.NewMaintenanceJob(auditRepo, cfg.AuditRetention(), evictor, config.MaintenanceJobInterval)
	maintenanceJob.Start()
	defer maintenanceJob.Stop()

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      r,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: 0,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	go func() {
		log.Info().Str("addr", cfg.Addr()).Msg("starting server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down server")

	// Open event streams never finish on their own.
	broker.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ServerShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

func healthDeps(db *database.DB, redisClient *redis.Client) map[string]handler.Pinger {
	deps := make(map[string]handler.Pinger)
	if db != nil {
		deps["database"] = db
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}
	return deps
}

func setLogLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
