package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/raaihank/mailscraped/internal/app"
	"github.com/raaihank/mailscraped/internal/config"
	"github.com/raaihank/mailscraped/internal/etl"
	"github.com/raaihank/mailscraped/internal/logger"
	"github.com/raaihank/mailscraped/internal/server"
	"github.com/raaihank/mailscraped/internal/websocket"
)

var (
	version = "0.1.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	var (
		configPath  = pflag.String("config", "", "Path to configuration file")
		showVersion = pflag.Bool("version", false, "Show version information")
		healthCheck = pflag.Bool("health-check", false, "Perform health check and exit")
		healthURL   = pflag.String("health-url", "http://localhost:8080/health", "URL used by --health-check")
	)
	pflag.Parse()

	if *showVersion {
		fmt.Printf("mailscraped %s (commit: %s, built: %s)\n", version, commit, date)
		os.Exit(0)
	}

	if *healthCheck {
		performHealthCheck(*healthURL)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: true,
			Path:    cfg.Logging.File.Path,
		}
	}

	log, err := logger.New(loggerConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	server.Version = version
	log.Info("Starting mailscraped",
		zap.String("version", version),
		zap.String("commit", commit),
		zap.String("build_date", date),
		zap.Int("port", cfg.Server.Port),
		zap.String("config_file", config.ConfigFileUsed()),
	)

	// Only the log level follows config edits; the blacklist and the rest
	// stay as loaded.
	if config.ConfigFileUsed() != "" {
		err := config.Watch(func(next *config.Config) {
			if next.Logging.Level == log.Level().String() {
				return
			}
			if err := log.SetLevel(next.Logging.Level); err != nil {
				log.Warn("Ignoring invalid log level", zap.String("level", next.Logging.Level))
				return
			}
			log.Info("Log level changed", zap.String("level", next.Logging.Level))
		})
		if err != nil {
			log.Warn("Config watch disabled", zap.Error(err))
		}
	}

	services, err := app.NewServices(cfg, log, app.Options{})
	if err != nil {
		log.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	var (
		hub      *websocket.Hub
		reporter etl.Reporter
	)
	if cfg.WebSocket.Enabled {
		hub = websocket.NewHub(&websocket.HubConfig{
			BroadcastRuns:        cfg.WebSocket.Events.BroadcastRuns,
			BroadcastProgress:    cfg.WebSocket.Events.BroadcastProgress,
			BroadcastConnections: cfg.WebSocket.Events.BroadcastConnections,
			MaxConnections:       cfg.WebSocket.MaxConnections,
			ReadBufferSize:       cfg.WebSocket.ReadBufferSize,
			WriteBufferSize:      cfg.WebSocket.WriteBufferSize,
			AllowedOrigins:       cfg.WebSocket.AllowedOrigins,
			PingInterval:         cfg.WebSocket.PingInterval,
			PongTimeout:          cfg.WebSocket.PongTimeout,
			WriteTimeout:         cfg.WebSocket.WriteTimeout,
			MaxMessageSize:       cfg.WebSocket.MaxMessageSize,
		}, log.WithComponent("websocket").Logger)
		reporter = hub
	}

	pipeline := services.NewPipeline(app.PipelineConfig(cfg), log, reporter)

	srv, err := server.New(cfg, log, server.Deps{
		Pipeline:  pipeline,
		Store:     services.Store,
		Validator: services.Validator,
		Hub:       hub,
	})
	if err != nil {
		log.Fatal("Failed to create server", zap.Error(err))
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.Int("port", cfg.Server.Port))
		serverErrors <- srv.Start()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server error", zap.Error(err))
		}
	case sig := <-shutdown:
		log.Info("Shutdown signal received", zap.String("signal", sig.String()))

		// Give outstanding runs 30 seconds to complete
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Stop(ctx); err != nil {
			log.Error("Failed to shutdown server gracefully", zap.Error(err))
			os.Exit(1)
		}

		log.Info("Server shutdown complete")
	}
}

// performHealthCheck performs a health check against the running server
func performHealthCheck(url string) {
	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	resp, err := client.Get(url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: HTTP %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("Health check passed")
	os.Exit(0)
}
