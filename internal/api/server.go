package api

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/bluemap-render/internal/account"
	"github.com/JakeFAU/bluemap-render/internal/config"
	"github.com/JakeFAU/bluemap-render/internal/jobs"
	"github.com/JakeFAU/bluemap-render/internal/metrics"
	"github.com/JakeFAU/bluemap-render/internal/render"
)

// Runner admits and awaits render tasks.
type Runner interface {
	Run(ctx context.Context, accountID int64, task render.Task, limits jobs.Limits, timeout time.Duration) (render.Result, error)
}

// Files answers questions about the per-account file trees. Paths are "<account id>/<rel>".
type Files interface {
	Exists(ctx context.Context, path string) (bool, error)
	EnsureDir(ctx context.Context, path string) error
	Stat(ctx context.Context, path string) (isDir bool, err error)
	List(ctx context.Context, path string) ([]render.DirItem, error)
	Open(ctx context.Context, path string) (*os.File, error)
}

// Presets lists and checks preset names.
type Presets interface {
	List() ([]string, error)
	Exists(name string) bool
}

// Throttle decides whether a token may submit now.
type Throttle interface {
	Allow(key string) bool
}

// RequestIDs produces request correlation IDs.
type RequestIDs interface {
	NewRequestID() string
}

// Deps are the collaborators of Server. Throttle may be nil.
type Deps struct {
	Accounts   account.Store
	Runner     Runner
	Files      Files
	Presets    Presets
	Throttle   Throttle
	RequestIDs RequestIDs
	Config     config.Config
	Logger     *zap.Logger
}

// Server wires HTTP handlers to the render pipeline.
type Server struct {
	router   chi.Router
	accounts account.Store
	runner   Runner
	files    Files
	presets  Presets
	throttle Throttle
	reqIDs   RequestIDs
	cfg      config.Config
	logger   *zap.Logger
	ready    func(context.Context) error
}

// NewServer constructs a Server with middleware and routes.
func NewServer(deps Deps) *Server {
	metrics.Init()
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		accounts: deps.Accounts,
		runner:   deps.Runner,
		files:    deps.Files,
		presets:  deps.Presets,
		throttle: deps.Throttle,
		reqIDs:   deps.RequestIDs,
		cfg:      deps.Config,
		logger:   logger,
	}

	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)

	// Renders may run for render.timeout_seconds, so the render API is not wrapped in a timeout.
	r.Post("/api/blue/v1/render", s.handleRender)

	r.Group(func(r chi.Router) {
		r.Use(timeoutMiddleware(60 * time.Second))
		r.Get("/healthz", s.healthz)
		r.Get("/readyz", s.readyz)
		r.Handle("/metrics", metrics.Handler())
		r.Get("/api/blue/v1/presets", s.handlePresets)
		r.Get("/api/blue/v1/diritems/{token}", s.handleDirItems)
		r.Get("/api/blue/v1/diritems/{token}/*", s.handleDirItems)
		r.Post("/api/generic/v1/create", s.handleCreate)
		r.Get("/", s.handleHome)
		r.Get("/render", s.handleRenderPage)
		r.Get("/fs", s.handleFS)
		r.Get("/fs/*", s.handleFS)
		r.Handle("/static/*", staticHandler())
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// SetReadiness installs a readiness check used by /readyz.
func (s *Server) SetReadiness(check func(context.Context) error) {
	s.ready = check
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handlePresets(w http.ResponseWriter, _ *http.Request) {
	names, err := s.presets.List()
	if err != nil {
		s.logger.Error("list presets failed", zap.Error(err))
		s.writeFailure(w, render.External("list presets"))
		return
	}
	writeJSON(w, http.StatusOK, render.Response{
		Type:    render.TypePresets,
		Presets: names,
		Default: s.cfg.Render.DefaultPreset,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}
