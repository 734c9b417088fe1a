package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"vnjp-connect/internal/config"
	"vnjp-connect/internal/handlers"
	"vnjp-connect/internal/middleware"
	"vnjp-connect/internal/repository"
	"vnjp-connect/internal/repository/memory"
	"vnjp-connect/internal/services"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Stores bundles the persistence layer the services run on
type Stores struct {
	Users       services.UserStore
	Intents     services.IntentStore
	Channels    services.ChannelStore
	Messages    services.MessageStore
	Evaluations services.EvaluationStore
}

// Deps are the optional integrations. Nil fields are disabled.
type Deps struct {
	Archiver services.Archiver
	Pusher   services.Pusher
}

func Run() {
	configPath := os.Getenv("VNJP_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Setup logger
	setupLogger(cfg.Log)

	ctx := context.Background()

	stores, closeStores, err := openStores(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer closeStores()

	var deps Deps
	if cfg.AWS.Enabled() {
		archiver, err := services.NewS3Archiver(ctx, cfg.AWS)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create transcript archiver")
		}
		deps.Archiver = archiver
		log.Info().Str("bucket", cfg.AWS.S3Bucket).Msg("Transcript archive enabled")
	}
	if cfg.APNs.Enabled() {
		pusher, err := services.NewAPNsPusher(cfg.APNs)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create APNs client")
		}
		deps.Pusher = pusher
		log.Info().Bool("production", cfg.APNs.Production).Msg("Push notifications enabled")
	}

	wsHub := services.NewWSHub()
	r := NewRouter(cfg, stores, deps, wsHub)

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Str("driver", cfg.Database.Driver).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed to start")
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}

// openStores connects the configured storage driver. Postgres is migrated
// before use.
func openStores(ctx context.Context, cfg config.DatabaseConfig) (*Stores, func(), error) {
	if cfg.Driver == "memory" {
		log.Warn().Msg("Using in-memory storage, data is lost on restart")
		return MemoryStores(memory.New()), func() {}, nil
	}

	db, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")

	if err := repository.Migrate(ctx, db); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &Stores{
		Users:       repository.NewUserRepository(db),
		Intents:     repository.NewIntentRepository(db),
		Channels:    repository.NewChannelRepository(db),
		Messages:    repository.NewMessageRepository(db),
		Evaluations: repository.NewEvaluationRepository(db),
	}, db.Close, nil
}

// MemoryStores exposes an in-memory store through the service interfaces
func MemoryStores(m *memory.Store) *Stores {
	return &Stores{
		Users:       m.Users,
		Intents:     m.Intents,
		Channels:    m.Channels,
		Messages:    m.Messages,
		Evaluations: m.Evaluations,
	}
}

// NewRouter wires services and handlers into the HTTP API
func NewRouter(cfg *config.Config, stores *Stores, deps Deps, wsHub *services.WSHub) http.Handler {
	// Initialize services
	notifier := services.NewDispatcher(wsHub, stores.Users, deps.Pusher)
	userService := services.NewUserService(stores.Users, stores.Intents, stores.Messages, cfg.JWT.Secret)
	intentService := services.NewIntentService(stores.Intents, stores.Users)
	matchService := services.NewMatchService(stores.Intents, stores.Users, notifier)
	chatService := services.NewChatService(stores.Channels, stores.Intents, stores.Messages, notifier)
	lifecycleService := services.NewLifecycleService(
		stores.Intents,
		stores.Channels,
		stores.Messages,
		stores.Evaluations,
		deps.Archiver,
		notifier,
	)

	// Initialize handlers
	userHandler := handlers.NewUserHandler(userService)
	intentHandler := handlers.NewIntentHandler(intentService, matchService, lifecycleService)
	chatHandler := handlers.NewChatHandler(chatService)
	wsHandler := handlers.NewWebSocketHandler(wsHub, userService, chatService, cfg.Server.AllowedOrigins)

	// Setup router
	r := chi.NewRouter()

	// Middleware
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/metrics", promhttp.Handler())

	// Routes
	r.Route("/api/v1", func(r chi.Router) {
		// Public routes
		r.Post("/users", userHandler.CreateUser)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(userService))

			r.Get("/me", userHandler.GetMe)
			r.Patch("/me", userHandler.UpdateMe)
			r.Put("/me/push-token", userHandler.UpdatePushToken)

			r.Post("/intents", intentHandler.CreateIntent)
			r.Get("/intents", intentHandler.ListIntents)
			r.Get("/intents/search", intentHandler.SearchIntents)
			r.Get("/intents/{id}", intentHandler.GetIntent)
			r.Patch("/intents/{id}", intentHandler.UpdateIntent)
			r.Delete("/intents/{id}", intentHandler.WithdrawIntent)
			r.Post("/intents/{id}/accept", intentHandler.AcceptIntent)
			r.Post("/intents/{id}/cancel", intentHandler.CancelMatch)
			r.Post("/intents/{id}/evaluations", intentHandler.SubmitEvaluation)

			r.Get("/channels", chatHandler.ListChannels)
			r.Get("/channels/unread", chatHandler.TotalUnread)
			r.Get("/channels/{id}/messages", chatHandler.GetMessages)
			r.With(httprate.LimitByIP(cfg.Server.MessageRateMax, cfg.Server.MessageRateWin)).
				Post("/channels/{id}/messages", chatHandler.SendMessage)
			r.Get("/channels/{id}/unread", chatHandler.UnreadCount)
		})
	})

	// WebSocket route
	r.Get("/ws", wsHandler.HandleWebSocket)

	return r
}

// requestLogger logs each request through zerolog
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", chiMiddleware.GetReqID(r.Context())).
			Msg("Request handled")
	})
}

// setupLogger configures zerolog logger
func setupLogger(cfg config.LogConfig) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Format != "json" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	switch cfg.Level {
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
