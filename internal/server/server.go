package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/raaihank/mailscraped/internal/config"
	"github.com/raaihank/mailscraped/internal/etl"
	"github.com/raaihank/mailscraped/internal/logger"
	"github.com/raaihank/mailscraped/internal/storage"
	"github.com/raaihank/mailscraped/internal/validate"
	"github.com/raaihank/mailscraped/internal/web"
	"github.com/raaihank/mailscraped/internal/websocket"
)

// Version is reported by /info
var Version = "0.1.0"

// Deps are the collaborators the server routes requests to
type Deps struct {
	Pipeline  *etl.Pipeline
	Store     *storage.Local
	Validator *validate.Validator
	// Hub is optional; without it /ws is not served.
	Hub *websocket.Hub
}

// Server is the HTTP front end for email extraction runs
type Server struct {
	config    *config.Config
	logger    *logger.Logger
	pipeline  *etl.Pipeline
	store     *storage.Local
	validator *validate.Validator
	wsHub     *websocket.Hub
	formats   map[etl.FileFormat]bool
	router    *mux.Router
	handler   http.Handler
	server    *http.Server
	startedAt time.Time
}

// New creates a new server instance
func New(cfg *config.Config, log *logger.Logger, deps Deps) (*Server, error) {
	if deps.Pipeline == nil || deps.Store == nil {
		return nil, errors.New("server: pipeline and store are required")
	}

	formats := make(map[etl.FileFormat]bool, len(cfg.Input.AllowedFormats))
	for _, name := range cfg.Input.AllowedFormats {
		f, err := etl.ParseFileFormat(name)
		if err != nil {
			return nil, fmt.Errorf("server: %w", err)
		}
		formats[f] = true
	}

	s := &Server{
		config:    cfg,
		logger:    log.WithComponent("server"),
		pipeline:  deps.Pipeline,
		store:     deps.Store,
		validator: deps.Validator,
		wsHub:     deps.Hub,
		formats:   formats,
		router:    mux.NewRouter(),
		startedAt: time.Now(),
	}

	s.setupRoutes()
	s.handler = corsMiddleware(cfg.Server.CORS)(s.router)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/info", s.handleInfo).Methods("GET")

	s.router.HandleFunc("/upload", s.handleUpload).Methods("POST")
	s.router.HandleFunc("/download", s.handleDownload).Methods("GET")

	s.router.HandleFunc("/", web.UploadPage(s.config.Server.StaticDir)).Methods("GET")

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		s.router.HandleFunc(s.config.WebSocket.Path, s.wsHub.HandleWebSocket).Methods("GET")
	}
}

// corsMiddleware wraps the router so preflight requests are answered
// before route matching
func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	if !cfg.Enabled {
		return func(next http.Handler) http.Handler { return next }
	}

	return cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"Content-Disposition", "X-Request-ID"},
		MaxAge:         cfg.MaxAge,
	})
}

// Handler returns the fully wrapped HTTP handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info("Starting mailscraped server",
		zap.Int("port", s.config.Server.Port),
		zap.String("output_dir", s.store.BasePath()),
		zap.Strings("allowed_formats", s.config.Input.AllowedFormats),
	)

	if s.wsHub != nil && s.config.WebSocket.Enabled {
		go s.wsHub.Run()
	}

	return s.server.ListenAndServe()
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Stopping mailscraped server")
	if s.wsHub != nil {
		s.wsHub.Stop()
	}
	return s.server.Shutdown(ctx)
}
