package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"blogpulse/internal/config"
	"blogpulse/internal/container"
	"blogpulse/internal/handler"
	"blogpulse/internal/middleware"
	"blogpulse/pkg/logger"
)

const version = "1.0.0"

// Resources holds all resources that need cleanup
type Resources struct {
	container      *container.Container
	server         *http.Server
	stopBackground context.CancelFunc
	log            *logger.Logger
	mu             sync.Mutex
	closed         bool
}

// Cleanup gracefully closes all resources
func (r *Resources) Cleanup(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true

	var errors []error

	r.log.Info("Starting graceful shutdown...")

	// Shutdown HTTP server first to stop accepting new requests
	if r.server != nil {
		r.log.Info("Shutting down HTTP server...")
		if err := r.server.Shutdown(ctx); err != nil {
			r.log.WithError(err).Error("Failed to shutdown HTTP server")
			errors = append(errors, fmt.Errorf("HTTP server shutdown: %w", err))
		} else {
			r.log.Info("HTTP server shutdown complete")
		}
	}

	c := r.container

	// Let workers finish in-flight jobs before the stores go away
	r.log.Info("Stopping event processor and queue maintenance...")
	if err := c.StopBackground(ctx); err != nil {
		r.log.WithError(err).Error("Failed to stop background workers")
		errors = append(errors, err)
	} else {
		r.log.Info("Background workers stopped")
	}
	if r.stopBackground != nil {
		r.stopBackground() // closes websocket subscribers
	}

	if c.ClickHouse != nil {
		r.log.Info("Closing ClickHouse connection...")
		if err := c.ClickHouse.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close ClickHouse connection")
			errors = append(errors, fmt.Errorf("ClickHouse close: %w", err))
		} else {
			r.log.Info("ClickHouse connection closed successfully")
		}
	}

	// Close Redis connection with health check
	if redisClient := c.GetRedisClient(); redisClient != nil {
		r.log.Info("Closing Redis connection...")

		healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Health(healthCtx); err != nil {
			r.log.WithError(err).Warn("Redis health check failed before closing")
		}
		healthCancel()

		if err := redisClient.Close(); err != nil {
			r.log.WithError(err).Error("Failed to close Redis connection")
			errors = append(errors, fmt.Errorf("Redis close: %w", err))
		} else {
			r.log.Info("Redis connection closed successfully")
		}
	}

	// Close database connection pool with health check
	if c.Postgres != nil {
		r.log.Info("Closing database connection pool...")

		healthCtx, healthCancel := context.WithTimeout(ctx, 2*time.Second)
		if err := c.Postgres.Health(healthCtx); err != nil {
			r.log.WithError(err).Warn("Database health check failed before closing")
		}
		healthCancel()

		c.Postgres.Close()
		r.log.Info("Database connection pool closed successfully")
	}

	if len(errors) > 0 {
		r.log.WithField("error_count", len(errors)).Error("Cleanup completed with errors")
		return fmt.Errorf("cleanup completed with %d errors: %v", len(errors), errors)
	}

	r.log.Info("Graceful shutdown completed successfully")
	return nil
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.WithFields(map[string]interface{}{
		"port":        cfg.Port,
		"log_level":   cfg.LogLevel,
		"environment": cfg.Environment,
		"workers":     cfg.WorkerCount,
		"queue":       cfg.QueueName,
	}).Info("Starting blogpulse server")

	connectCtx, connectCancel := context.WithTimeout(context.Background(), 30*time.Second)
	c, err := container.New(connectCtx, cfg, log)
	connectCancel()
	if err != nil {
		log.WithError(err).Fatal("Failed to create container")
	}

	backgroundCtx, stopBackground := context.WithCancel(context.Background())
	c.StartBackground(backgroundCtx)

	// Setup router
	router := setupRouter(c)

	// Create HTTP server with optimized timeouts for high load
	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        router,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   60 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB max header size
	}

	// Create resources manager for cleanup
	resources := &Resources{
		container:      c,
		server:         server,
		stopBackground: stopBackground,
		log:            log,
	}

	// Setup graceful shutdown handling
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Setup cleanup function that will be called regardless of how the program exits
	defer func() {
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := resources.Cleanup(cleanupCtx); err != nil {
			log.WithError(err).Error("Cleanup completed with errors")
		}
	}()

	// Start server in a goroutine
	serverErrChan := make(chan error, 1)
	go func() {
		log.Info("Server starting on port " + cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Error("Server error occurred")
			serverErrChan <- err
		}
	}()

	// Wait for interrupt signal or server error
	select {
	case sig := <-quit:
		log.WithField("signal", sig.String()).Info("Received shutdown signal")
	case err := <-serverErrChan:
		log.WithError(err).Error("Server failed, initiating shutdown")
	}

	log.Info("Initiating graceful shutdown...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := resources.Cleanup(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown completed with errors")
		os.Exit(1)
	}

	log.Info("Application shutdown complete")
}

// setupRouter configures and returns the HTTP router
func setupRouter(c *container.Container) *chi.Mux {
	cfg := c.GetConfig()
	log := c.GetLogger()
	authService := c.GetAuthService()

	r := chi.NewRouter()

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.AllowedOrigins

	r.Use(middleware.CORS(corsConfig, log))
	r.Use(middleware.RequestID())
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.AccessLog(log))
	r.Use(chiMiddleware.Recoverer)

	// Create handlers
	healthHandler := handler.NewHealthHandler(version, log,
		handler.HealthCheck{Name: "postgres", Critical: true, Probe: c.Postgres.Health},
		handler.HealthCheck{Name: "redis", Critical: true, Probe: c.GetRedisClient().Health},
		handler.HealthCheck{Name: "clickhouse", Probe: c.ClickHouse.Health},
	)
	analyticsHandler := handler.NewAnalyticsHandler(c.Services.Ingest, c.Services.Analytics, log)
	viewHandler := handler.NewViewHandler(c.Services.Views, log)
	wsHandler := handler.NewWebsocketHandler(c.Hub, cfg.AllowedOrigins, log)

	// Websocket upgrades must not go through compression or timeouts
	r.Get("/ws/posts/{postId}", wsHandler.SubscribePost)

	r.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Compress(5))
		r.Use(chiMiddleware.Timeout(60 * time.Second))

		// Health check and metrics (no auth required)
		r.Get("/health", healthHandler.Check)
		r.Handle("/metrics", promhttp.Handler())

		r.Route("/api", func(r chi.Router) {
			r.Route("/analytics", func(r chi.Router) {
				// Ingestion (session optional, rate limited per IP)
				r.Group(func(r chi.Router) {
					r.Use(middleware.RateLimitByIP(cfg.IngestRateLimit, time.Minute, log))
					r.Use(middleware.OptionalAuth(authService, log))

					r.Post("/track", analyticsHandler.Track)
					r.Post("/track/batch", analyticsHandler.TrackBatch)
				})

				// Public aggregations
				r.Get("/post/{postId}", analyticsHandler.GetPostAnalytics)
				r.Get("/post/{postId}/geo", analyticsHandler.GetPostGeo)
				r.Get("/platform", analyticsHandler.GetPlatform)
				r.Get("/trending", analyticsHandler.GetTrending)
				r.Get("/moderation", analyticsHandler.GetModeration)
				r.Get("/moderators", analyticsHandler.GetModerators)
				r.Get("/queue/health", analyticsHandler.GetQueueHealth)

				// Author views (auth required)
				r.Group(func(r chi.Router) {
					r.Use(middleware.Auth(authService, log))

					r.Get("/profile/overview", analyticsHandler.GetProfileOverview)
					r.Get("/dashboard", analyticsHandler.GetDashboard)
				})
			})

			r.Route("/posts/{postId}", func(r chi.Router) {
				r.Use(middleware.OptionalAuth(authService, log))

				r.Post("/view", viewHandler.RecordView)
				r.Post("/read", viewHandler.RecordRead)
			})
		})
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"error":{"type":"not_found","message":"Endpoint not found"}}`))
	})

	log.Info("Router configured successfully")
	return r
}
