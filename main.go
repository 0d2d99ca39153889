package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"relaychat/server/internal/config"
	"relaychat/server/internal/database"
	"relaychat/server/internal/handlers"
	"relaychat/server/internal/routes"
	"relaychat/server/internal/store"
	"relaychat/server/internal/utils"
	ws "relaychat/server/internal/websocket"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found")
	}

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	log.SetLevel(parseLevel(cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	defer st.Close()

	hub := ws.NewHub(st, ws.HubConfig{
		HeartbeatInterval: cfg.HeartbeatInterval,
		StoreTimeout:      cfg.StoreTimeout,
	})

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		AppName: "Relay Chat API v1.0",
	})

	// Middleware
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.CORSOrigins,
		AllowCredentials: true,
	}))

	// Setup routes
	routes.SetupRoutes(app, handlers.New(hub, st, cfg), utils.NewTokenManager(cfg.JWTSecret))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Infof("🚀 Server starting on port %s", cfg.Port)
		return app.Listen(":" + cfg.Port)
	})

	g.Go(func() error {
		log.Infof("🧹 Presence reaper every %s, stale after %s", cfg.ReapInterval, cfg.StaleTimeout)
		hub.RunReaper(gctx, cfg.ReapInterval, cfg.StaleTimeout)
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down...")

		// Sessions first so their offline writes land before the store closes
		if err := hub.Shutdown(shutdownTimeout); err != nil {
			log.Warnw("websocket sessions did not drain", "error", err)
		}
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Server stopped: %v", err)
	}
	log.Info("👋 Server stopped")
}

// openStore connects the backend named by cfg.StoreDriver.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		conn, err := database.OpenSQLite(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return store.NewSQLite(conn), nil

	case config.DriverMemory:
		log.Warn("Using in-memory store; nothing survives a restart")
		return store.NewMemory(), nil

	default:
		pool, err := database.ConnectPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return store.NewPostgres(pool), nil
	}
}

func parseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.LevelDebug
	case "warn":
		return log.LevelWarn
	case "error":
		return log.LevelError
	default:
		return log.LevelInfo
	}
}
