package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/beaconhq/beacon/internal/config"
	"github.com/beaconhq/beacon/internal/database"
	"github.com/beaconhq/beacon/internal/handlers"
	"github.com/beaconhq/beacon/internal/logging"
	"github.com/beaconhq/beacon/internal/middleware"
	"github.com/beaconhq/beacon/internal/realtime"
	"github.com/beaconhq/beacon/internal/services"
	"github.com/beaconhq/beacon/internal/services/ai"
	"github.com/beaconhq/beacon/internal/services/geo"
)

func main() {
	if err := run(); err != nil {
		logging.Error("Application error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
}

func run() error {
	logger := logging.New()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if cfg.Server.Debug {
		logger.SetLevel(logging.LevelDebug)
		logging.SetDefaultLevel(logging.LevelDebug)
	}

	logger.Info("Starting Beacon server...")

	logger.Info("Connecting to PostgreSQL", map[string]interface{}{
		"host": cfg.Database.Host,
		"port": cfg.Database.Port,
	})
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer db.Close()
	logger.Info("Connected to PostgreSQL")

	logger.Info("Running database migrations...")
	migrator, err := database.NewMigrator(&cfg.Database, "migrations")
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return fmt.Errorf("running migrations: %w", err)
	}
	_ = migrator.Close()
	logger.Info("Migrations completed")

	logger.Info("Connecting to Redis", map[string]interface{}{
		"addr": cfg.Redis.Addr(),
	})
	redisDB, err := database.NewRedisDB(&cfg.Redis)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer func() { _ = redisDB.Close() }()
	logger.Info("Connected to Redis")

	// Services
	dbAdapter := services.NewPoolAdapter(db.Pool)
	changeFeed := services.NewRedisChangeFeed(redisDB.Client)

	userService := services.NewUserService(dbAdapter)
	authService := services.NewAuthService(dbAdapter, redisDB.Client, userService)
	emailService := services.NewEmailService(&cfg.Email, dbAdapter)
	notificationService := services.NewNotificationService(dbAdapter, changeFeed, emailService)
	friendService := services.NewFriendService(dbAdapter, userService, notificationService, changeFeed)
	emergencyService := services.NewEmergencyService(dbAdapter, friendService, notificationService, changeFeed)
	aiService := ai.NewService(&cfg.AI)
	geoClient := geo.NewClient(&cfg.Geocode)

	// Realtime hub
	hub := realtime.NewHub()
	go hub.Run()
	if err := hub.Attach(changeFeed); err != nil {
		return fmt.Errorf("attaching realtime hub: %w", err)
	}
	defer hub.Close()

	// Handlers
	healthHandler := handlers.NewHealthHandler(db, redisDB, hub)
	authHandler := handlers.NewAuthHandler(userService, authService, cfg.Server.Secure)
	friendHandler := handlers.NewFriendHandler(friendService)
	notificationHandler := handlers.NewNotificationHandler(notificationService)
	emergencyHandler := handlers.NewEmergencyHandler(emergencyService)
	geoHandler := handlers.NewGeoHandler(geoClient)
	aiHandler := handlers.NewAIHandler(aiService, emergencyService)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(authService)
	requestLogger := middleware.NewRequestLogger(logger)
	authRateLimiter := middleware.NewAuthRateLimiter(redisDB.Client)
	sosRateLimiter := middleware.NewSOSRateLimiter(redisDB.Client)
	aiRateLimiter := middleware.NewAIRateLimiter(redisDB.Client)
	apiRateLimiter := middleware.NewAPIRateLimiter(redisDB.Client)

	requireAuth := authMiddleware.RequireAuth

	mux := http.NewServeMux()

	// Health endpoints (no auth, no rate limit)
	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /ready", healthHandler.Ready)
	mux.HandleFunc("GET /live", healthHandler.Live)

	// Auth endpoints
	mux.Handle("POST /api/auth/register", authRateLimiter.Limit(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /api/auth/login", authRateLimiter.Limit(http.HandlerFunc(authHandler.Login)))
	mux.Handle("POST /api/auth/logout", http.HandlerFunc(authHandler.Logout))
	mux.Handle("GET /api/auth/me", requireAuth(http.HandlerFunc(authHandler.Me)))

	// Friend endpoints
	mux.Handle("GET /api/friends", requireAuth(http.HandlerFunc(friendHandler.List)))
	mux.Handle("GET /api/friends/search", requireAuth(http.HandlerFunc(friendHandler.Search)))
	mux.Handle("POST /api/friends/requests", requireAuth(http.HandlerFunc(friendHandler.SendRequest)))
	mux.Handle("PUT /api/friends/requests/{id}/accept", requireAuth(http.HandlerFunc(friendHandler.AcceptRequest)))
	mux.Handle("PUT /api/friends/requests/{id}/reject", requireAuth(http.HandlerFunc(friendHandler.RejectRequest)))
	mux.Handle("DELETE /api/friends/{id}", requireAuth(http.HandlerFunc(friendHandler.Remove)))

	// Notification endpoints
	mux.Handle("GET /api/notifications", requireAuth(http.HandlerFunc(notificationHandler.List)))
	mux.Handle("PUT /api/notifications/{id}/read", requireAuth(http.HandlerFunc(notificationHandler.MarkRead)))
	mux.Handle("PUT /api/notifications/{id}/unread", requireAuth(http.HandlerFunc(notificationHandler.MarkUnread)))
	mux.Handle("PUT /api/notifications/read-all", requireAuth(http.HandlerFunc(notificationHandler.MarkAllRead)))
	mux.Handle("DELETE /api/notifications/{id}", requireAuth(http.HandlerFunc(notificationHandler.Delete)))

	// Emergency endpoints
	mux.Handle("POST /api/emergencies", requireAuth(http.HandlerFunc(emergencyHandler.Submit)))
	mux.Handle("GET /api/emergencies", requireAuth(http.HandlerFunc(emergencyHandler.Recent)))
	mux.Handle("GET /api/emergencies/predictions", requireAuth(http.HandlerFunc(emergencyHandler.Predictions)))
	mux.Handle("PUT /api/emergencies/{id}/status", requireAuth(http.HandlerFunc(emergencyHandler.UpdateStatus)))
	mux.Handle("POST /api/sos", requireAuth(sosRateLimiter.Limit(http.HandlerFunc(emergencyHandler.SOS))))

	// Geocoding endpoints
	mux.Handle("GET /api/geo/search", requireAuth(http.HandlerFunc(geoHandler.Search)))
	mux.Handle("GET /api/geo/reverse", requireAuth(http.HandlerFunc(geoHandler.Reverse)))

	// AI assistant endpoint
	mux.Handle("POST /api/assistant", requireAuth(aiRateLimiter.Limit(http.HandlerFunc(aiHandler.Ask))))

	// Realtime endpoint
	mux.Handle("GET /api/ws", requireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := handlers.GetUserFromContext(r.Context())
		hub.ServeWS(w, r, user.ID)
	})))

	// General per-user budget on the API surface; health probes stay
	// unmetered. The per-endpoint limiters above layer on top of it.
	root := http.NewServeMux()
	root.Handle("/api/", apiRateLimiter.Limit(mux))
	root.Handle("/", mux)

	// Middleware chain (order matters: outermost first)
	var handler http.Handler = root
	handler = authMiddleware.Authenticate(handler)
	handler = requestLogger.Apply(handler)

	// Notifications older than the retention window age out once a day.
	cleanupCtx, stopCleanup := context.WithCancel(context.Background())
	defer stopCleanup()
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-cleanupCtx.Done():
				return
			case <-ticker.C:
				if err := notificationService.CleanupOld(cleanupCtx); err != nil {
					logger.Warn("Notification cleanup failed", map[string]interface{}{
						"error": err.Error(),
					})
				}
			}
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// Assistant calls can legitimately take >15s; keep a higher write
		// timeout so clients get a JSON error instead of a dropped connection.
		WriteTimeout: 95 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan bool, 1)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info("Server is shutting down...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		server.SetKeepAlivesEnabled(false)
		if err := server.Shutdown(ctx); err != nil {
			logger.Error("Could not gracefully shutdown the server", map[string]interface{}{
				"error": err.Error(),
			})
		}
		close(done)
	}()

	logger.Info("Server listening", map[string]interface{}{
		"addr": addr,
	})
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("Server stopped")
	return nil
}
