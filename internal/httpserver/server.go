package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"shopee-dash/internal/auth"
	"shopee-dash/internal/metrics"
	"shopee-dash/internal/registry"
	"shopee-dash/internal/repo"
	"shopee-dash/internal/shopee"
)

// Accounts is the registry surface the API drives.
type Accounts interface {
	View() registry.View
	Refresh(ctx context.Context) error
	AddAccount(ctx context.Context, cookie, note string) (repo.Account, shopee.ResolvedName, error)
	RemoveAccount(ctx context.Context, id string) error
	Reverify(ctx context.Context, id string) (repo.Account, shopee.ResolvedName, error)
}

// Dependencies exposes core dependencies to handlers that need them.
type Dependencies struct {
	Accounts Accounts
	Gate     *auth.Gate
	Relay    http.Handler
}

// Options configures the server.
type Options struct {
	Addr           string
	BasePath       string
	AllowedOrigins []string
}

// Server wraps an http.Server with predefined routes.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	metrics    *metrics.Metrics
	deps       Dependencies
	validate   *validator.Validate
	basePath   string
}

// New creates the HTTP server with health, metrics, login, relay and account routes.
func New(opts Options, logger *slog.Logger, metricRegistry *metrics.Metrics, deps Dependencies) *Server {
	server := &Server{
		logger:   logger.With("component", "http"),
		metrics:  metricRegistry,
		deps:     deps,
		validate: validator.New(),
		basePath: normaliseBasePath(opts.BasePath),
	}

	handler := mountWithBasePath(server.basePath, server.routes(opts.AllowedOrigins))

	server.httpServer = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	if server.basePath != "" {
		server.logger.Info("http server configured with base path", "base_path", server.basePath)
	}

	return server
}

// Handler returns the root handler, base path included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) routes(allowedOrigins []string) chi.Router {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}

	r := chi.NewRouter()
	r.Use(s.requestID)
	r.Use(s.accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", healthHandler)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		api.Post("/login", s.handleLogin)
		if s.deps.Relay != nil {
			api.Handle("/get-username", s.deps.Relay)
		}

		api.Group(func(pr chi.Router) {
			if s.deps.Gate != nil {
				pr.Use(s.deps.Gate.Middleware)
			}
			pr.Route("/accounts", func(acc chi.Router) {
				acc.Get("/", s.handleListAccounts)
				acc.Post("/", s.handleAddAccount)
				acc.Post("/refresh", s.handleRefresh)
				acc.Delete("/{id}", s.handleRemoveAccount)
				acc.Post("/{id}/verify", s.handleReverify)
			})
			pr.Get("/dashboard/live", s.handleLive)
			pr.Get("/dashboard/affiliate", s.handleAffiliate)
		})
	})

	return r
}

// Start begins listening for incoming HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.httpServer.Shutdown(ctx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "failed to encode json", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func mountWithBasePath(basePath string, handler http.Handler) http.Handler {
	if basePath == "" {
		return handler
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, basePath) {
			http.NotFound(w, r)
			return
		}
		if len(r.URL.Path) > len(basePath) && r.URL.Path[len(basePath)] != '/' {
			http.NotFound(w, r)
			return
		}
		trimmed := strings.TrimPrefix(r.URL.Path, basePath)
		if trimmed == "" {
			trimmed = "/"
		}
		r.URL.Path = trimmed
		if r.URL.RawPath != "" {
			rawTrimmed := strings.TrimPrefix(r.URL.RawPath, basePath)
			if rawTrimmed == "" {
				rawTrimmed = "/"
			}
			r.URL.RawPath = rawTrimmed
		}
		handler.ServeHTTP(w, r)
	})
}

func normaliseBasePath(base string) string {
	base = strings.TrimSpace(base)
	if base == "" || base == "/" {
		return ""
	}
	if !strings.HasPrefix(base, "/") {
		base = "/" + base
	}
	return strings.TrimSuffix(base, "/")
}
