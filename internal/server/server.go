// Package server exposes the session engine over HTTP: REST endpoints for
// sessions and messages, a chunked streaming endpoint for turns, and an SSE
// channel mirroring the event bus.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/lodestar-ai/lodestar/internal/agent"
	"github.com/lodestar-ai/lodestar/internal/bus"
	"github.com/lodestar-ai/lodestar/internal/engine"
	"github.com/lodestar-ai/lodestar/internal/logging"
	"github.com/lodestar-ai/lodestar/internal/mcp"
	"github.com/lodestar-ai/lodestar/internal/permission"
	"github.com/lodestar-ai/lodestar/internal/provider"
	"github.com/lodestar-ai/lodestar/internal/store"
	"github.com/lodestar-ai/lodestar/internal/tool"
	"github.com/lodestar-ai/lodestar/pkg/types"
)

// Config holds the HTTP listener configuration.
type Config struct {
	Port        int
	Hostname    string
	Directory   string
	EnableCORS  bool
	ReadTimeout time.Duration
}

// DefaultConfig returns the listener defaults. No write timeout is set so
// SSE and streaming responses can live indefinitely.
func DefaultConfig() *Config {
	return &Config{
		Port:        4096,
		Hostname:    "127.0.0.1",
		EnableCORS:  true,
		ReadTimeout: 30 * time.Second,
	}
}

// Options wires the server's collaborators.
type Options struct {
	Config    *Config
	AppConfig *types.Config
	Store     *store.Store
	Engine    *engine.Engine
	Bus       *bus.Bus
	Gate      *permission.Gate
	Providers *provider.Registry
	Tools     *tool.Registry
	Agents    *agent.Registry
	MCP       *mcp.Manager
}

// Server is the HTTP front of the engine.
type Server struct {
	config    *Config
	appConfig *types.Config
	router    *chi.Mux
	httpSrv   *http.Server

	store     *store.Store
	engine    *engine.Engine
	bus       *bus.Bus
	gate      *permission.Gate
	providers *provider.Registry
	tools     *tool.Registry
	agents    *agent.Registry
	mcp       *mcp.Manager

	log zerolog.Logger
}

// New assembles the router.
func New(opts Options) *Server {
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	s := &Server{
		config:    cfg,
		appConfig: opts.AppConfig,
		router:    chi.NewRouter(),
		store:     opts.Store,
		engine:    opts.Engine,
		bus:       opts.Bus,
		gate:      opts.Gate,
		providers: opts.Providers,
		tools:     opts.Tools,
		agents:    opts.Agents,
		mcp:       opts.MCP,
		log:       logging.Component("server"),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(middleware.Recoverer)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
}

// Start blocks serving HTTP until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:        fmt.Sprintf("%s:%d", s.config.Hostname, s.config.Port),
		Handler:     s.router,
		ReadTimeout: s.config.ReadTimeout,
	}
	s.log.Info().Str("addr", s.httpSrv.Addr).Msg("http server listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi mux for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
