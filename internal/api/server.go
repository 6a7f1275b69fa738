// Package api provides the HTTP API server for vaultsearch.
package api

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/wesm/vaultsearch/internal/config"
	"github.com/wesm/vaultsearch/internal/entity"
	"github.com/wesm/vaultsearch/internal/metrics"
	"github.com/wesm/vaultsearch/internal/query"
	"github.com/wesm/vaultsearch/internal/restriction"
	"github.com/wesm/vaultsearch/internal/scheduler"
	"github.com/wesm/vaultsearch/internal/searchview"
	"github.com/wesm/vaultsearch/internal/store"
)

// View defines the search view operations the API needs.
type View interface {
	Navigate(url string)
	Search(text string, r restriction.Restriction)
	SetDateRange(start, end *time.Time)
	SetField(f restriction.Field)
	SetFolder(listID string)
	Select(elementIDs []string, clicked, multi bool)
	Snapshot(ctx context.Context) (searchview.Snapshot, error)
	SettledSnapshot(ctx context.Context, interval time.Duration) (searchview.Snapshot, error)
}

// Prompter exposes the pending confirmation question.
type Prompter interface {
	Pending() (searchview.Prompt, bool)
	Answer(id uint64, ok bool) error
}

// EntityWriter stores entities and announces the changes.
type EntityWriter interface {
	PutMail(ctx context.Context, m *entity.Mail) (entity.Operation, error)
	PutContact(ctx context.Context, c *entity.Contact) (entity.Operation, error)
	PutFolder(ctx context.Context, f *store.Folder) (entity.Operation, error)
	Delete(ctx context.Context, typ entity.Type, id entity.ID) (bool, error)
	DeleteFolder(ctx context.Context, listID string) (bool, error)
}

// FolderLister lists mail folders.
type FolderLister interface {
	ListFolders(ctx context.Context) ([]query.Folder, error)
}

// JobScheduler defines the scheduler operations the API needs.
type JobScheduler interface {
	IsScheduled(name string) bool
	Trigger(name string) error
	Status() []JobStatus
	IsRunning() bool
}

// JobStatus is an alias for scheduler.JobStatus.
type JobStatus = scheduler.JobStatus

// EventSource streams entity updates to SSE clients.
type EventSource interface {
	Subscribe() (<-chan []entity.Update, func())
}

// Deps are the collaborators behind the API. Nil members disable the
// routes that need them.
type Deps struct {
	View      View
	Prompts   Prompter
	Writer    EntityWriter
	Folders   FolderLister
	Scheduler JobScheduler
	Events    EventSource
	Metrics   *metrics.Metrics
}

// DefaultHeartbeat is the SSE keep-alive interval. It stays below the
// client read timeout.
const DefaultHeartbeat = 10 * time.Second

// Server represents the HTTP API server.
type Server struct {
	cfg         *config.Config
	deps        Deps
	logger      *slog.Logger
	router      chi.Router
	server      *http.Server
	rateLimiter *RateLimiter
	heartbeat   time.Duration
}

// NewServer creates a new API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		logger:    logger,
		heartbeat: DefaultHeartbeat,
	}
	s.router = s.setupRouter()
	return s
}

// WithHeartbeat sets the SSE keep-alive interval.
func (s *Server) WithHeartbeat(d time.Duration) *Server {
	if d > 0 {
		s.heartbeat = d
	}
	return s
}

// setupRouter configures the chi router with all routes and middleware.
func (s *Server) setupRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.loggerMiddleware)
	r.Use(chimw.Recoverer)
	r.Use(MetricsMiddleware(s.deps.Metrics))

	// CORS middleware (config-driven; disabled when no origins configured)
	corsConfig := CORSConfig{
		AllowedOrigins:   s.cfg.Server.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: s.cfg.Server.CORSCredentials,
		MaxAge:           s.cfg.Server.CORSMaxAge,
	}
	if corsConfig.MaxAge == 0 && len(corsConfig.AllowedOrigins) > 0 {
		corsConfig.MaxAge = 86400
	}
	r.Use(CORSMiddleware(corsConfig))

	qps, burst := s.cfg.Server.RateLimitQPS, s.cfg.Server.RateLimitBurst
	if qps <= 0 {
		qps = 10
	}
	if burst <= 0 {
		burst = 20
	}
	s.rateLimiter = NewRateLimiter(qps, burst)
	r.Use(RateLimitMiddleware(s.rateLimiter, s.deps.Metrics))

	// No auth required
	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", s.deps.Metrics.HTTPHandler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		// The event stream outlives any request timeout.
		r.Get("/sse", s.handleSSE)

		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))

			r.Post("/navigate", s.handleNavigate)
			r.Post("/filters", s.handleFilters)
			r.Post("/select", s.handleSelect)
			r.Get("/view", s.handleView)

			r.Get("/prompt", s.handleGetPrompt)
			r.Post("/prompt", s.handleAnswerPrompt)

			r.Put("/entities/{type}", s.handlePutEntity)
			r.Delete("/entities/{type}/{listID}/{id}", s.handleDeleteEntity)

			r.Get("/folders", s.handleListFolders)
			r.Put("/folders", s.handlePutFolder)
			r.Delete("/folders/{listID}", s.handleDeleteFolder)

			r.Get("/scheduler/status", s.handleSchedulerStatus)
			r.Post("/scheduler/{job}/run", s.handleTriggerJob)
		})
	})

	return r
}

// Addr returns the listen address from the configuration.
func (s *Server) Addr() string {
	bindAddr := s.cfg.Server.BindAddr
	if bindAddr == "" {
		bindAddr = "127.0.0.1"
	}
	return net.JoinHostPort(bindAddr, strconv.Itoa(s.cfg.Server.APIPort))
}

// Start begins listening for HTTP requests.
// Returns an error if the security posture is invalid.
func (s *Server) Start() error {
	if err := s.cfg.Server.ValidateSecure(); err != nil {
		return err
	}

	addr := s.Addr()
	if s.cfg.Server.APIKey == "" {
		s.logger.Warn("API server running without authentication; set [server] api_key in config.toml")
	}

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.rateLimiter != nil {
		s.rateLimiter.Close()
	}
	if s.server == nil {
		return nil
	}
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// loggerMiddleware logs HTTP requests.
func (s *Server) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start),
				"request_id", chimw.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware validates the API key.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.Server.APIKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		key := r.Header.Get("Authorization")
		if key == "" {
			key = r.Header.Get("X-API-Key")
		}
		key = strings.TrimPrefix(key, "Bearer ")

		if subtle.ConstantTimeCompare([]byte(key), []byte(s.cfg.Server.APIKey)) != 1 {
			s.logger.Warn("unauthorized API request",
				"path", r.URL.Path,
				"remote_addr", r.RemoteAddr,
			)
			writeError(w, http.StatusUnauthorized, "unauthorized", "Invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// handleHealth returns a simple health check response.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
