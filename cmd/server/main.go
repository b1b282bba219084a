// Package main is the entry point for the moderation dashboard backend.
// It wires the store, the Discord login flow, the guild views and the realtime
// hub behind one HTTP server, plus an optional gRPC health endpoint.
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/parsascontentcorner/modboard/internal/api"
	"github.com/parsascontentcorner/modboard/internal/auth"
	"github.com/parsascontentcorner/modboard/internal/config"
	"github.com/parsascontentcorner/modboard/internal/dashboard"
	"github.com/parsascontentcorner/modboard/internal/database"
	grpcserver "github.com/parsascontentcorner/modboard/internal/grpc"
	httpserver "github.com/parsascontentcorner/modboard/internal/http"
	"github.com/parsascontentcorner/modboard/internal/models"
	"github.com/parsascontentcorner/modboard/internal/oauth"
	"github.com/parsascontentcorner/modboard/internal/ratelimit"
	"github.com/parsascontentcorner/modboard/internal/realtime"
	"github.com/parsascontentcorner/modboard/pkg/logger"
)

const (
	cleanupInterval     = 30 * time.Minute
	healthWatchInterval = 15 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		// Sync errors on stdout/stderr are expected and can be safely ignored
		// for non-syncable file descriptors (pipes, terminals, etc.)
		_ = log.Sync()
	}()

	log.Info("starting moderation dashboard",
		zap.String("environment", cfg.Server.Env),
		zap.String("http_port", cfg.Server.HTTPPort),
		zap.Bool("grpc_enabled", cfg.Server.GRPCEnabled),
		zap.Bool("websocket_enabled", cfg.WebSocket.Enabled),
	)

	// Initialize database connections
	db, err := database.NewDB(&cfg.Database, log)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer closeDB(db, log)

	sessionDB := db
	if cfg.Session.StoreURL != cfg.Database.URL {
		sessionCfg := cfg.Database
		sessionCfg.URL = cfg.Session.StoreURL
		sessionDB, err = database.NewDB(&sessionCfg, log.Named("sessions"))
		if err != nil {
			log.Fatal("failed to connect to session store", zap.Error(err))
		}
		defer closeDB(sessionDB, log)
	}

	if cfg.Database.RunMigrations {
		if err := db.RunMigrations(database.SchemaMigrations); err != nil {
			log.Fatal("failed to run schema migrations", zap.Error(err))
		}
		if err := sessionDB.RunMigrations(database.SessionMigrations); err != nil {
			log.Fatal("failed to run session migrations", zap.Error(err))
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup job for expired sessions
	sessionDB.StartCleanupJob(ctx, cleanupInterval)

	// Initialize auth components
	secureCookies := cfg.Server.IsProduction()
	discordClient := auth.NewDiscordClient(&cfg.Discord, log)
	discordClient.SetRateLimiter(ratelimit.NewRateLimiter(log))

	stateManager := auth.NewStateManager(sessionDB, cfg.Session.Secret, cfg.Session.StateExpiry(), secureCookies)
	sessionManager := auth.NewSessionManager(sessionDB, cfg.Session.Secret, cfg.Session.SessionExpiry(), secureCookies, log)
	authenticator := auth.NewAuthenticator(discordClient, log)

	oauthHandlers := oauth.NewHandlers(discordClient, authenticator, stateManager, sessionManager,
		oauth.Redirects{Dashboard: cfg.Server.DashboardURL, Failure: cfg.Server.AuthFailureURL},
		log,
	)

	// Initialize guild views
	views := dashboard.NewService(db, log, cfg.Database.QueryTimeout)
	apiHandlers := api.NewHandlers(views, db, log)

	// Initialize realtime hub fed by NOTIFY events
	var realtimeHandler *realtime.Handler
	if cfg.WebSocket.Enabled {
		hub := realtime.NewHub(log.Named("realtime"))
		goSafe(log, "realtime hub", func() { hub.Run(ctx) })

		listener := database.NewListener(cfg.Database.URL, cfg.WebSocket.EventsChannel, func(event *models.GuildEvent) {
			hub.Broadcast(event.GuildID, event.Event, event.Data)
		}, log.Named("listener"))
		goSafe(log, "event listener", func() {
			if err := listener.Run(ctx); err != nil {
				log.Error("event listener stopped", zap.Error(err))
			}
		})

		realtimeHandler = realtime.NewHandler(hub, cfg.Security.AllowedOrigins, log.Named("realtime"))
	}

	handlers := httpserver.Handlers{
		OAuth:    oauthHandlers,
		API:      apiHandlers,
		Sessions: sessionManager,
	}
	if realtimeHandler != nil {
		handlers.Realtime = realtimeHandler
	}

	router := httpserver.NewRouter(httpserver.RouterConfig{
		AllowedOrigins: cfg.Security.AllowedOrigins,
		CSRFEnabled:    cfg.Security.CSRFEnabled,
		CSRFSecret:     cfg.Session.Secret,
		SecureCookies:  secureCookies,
	}, handlers, log)

	httpServer := httpserver.NewServer(router, cfg.Server.HTTPPort, log)

	// Start servers in goroutines
	grpcErrChan := make(chan error, 1)
	httpErrChan := make(chan error, 1)

	var grpcServer *grpcserver.Server
	if cfg.Server.GRPCEnabled {
		grpcServer, err = grpcserver.NewServer(db, cfg.Server.GRPCPort, log)
		if err != nil {
			log.Fatal("failed to create gRPC server", zap.Error(err))
		}
		goSafe(log, "gRPC health watcher", func() { grpcServer.WatchHealth(ctx, healthWatchInterval) })
		go func() {
			if err := grpcServer.Serve(); err != nil {
				grpcErrChan <- err
			}
		}()
	}

	go func() {
		if err := httpServer.Serve(); err != nil {
			httpErrChan <- err
		}
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-grpcErrChan:
		log.Error("gRPC server error", zap.Error(err))
	case err := <-httpErrChan:
		log.Error("HTTP server error", zap.Error(err))
	case sig := <-sigChan:
		log.Info("received shutdown signal", zap.String("signal", sig.String()))
	}

	// Graceful shutdown
	log.Info("shutting down servers...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("failed to shutdown HTTP server gracefully", zap.Error(err))
	}

	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	log.Info("servers shut down successfully")
}

// goSafe runs fn in a goroutine, logging a panic instead of crashing the process
func goSafe(log *zap.Logger, name string, fn func()) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				log.Error("panic in background task",
					zap.String("task", name),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
			}
		}()
		fn()
	}()
}

func closeDB(db *database.DB, log *zap.Logger) {
	if err := db.Close(); err != nil {
		log.Error("failed to close database connection", zap.Error(err))
	}
}
