// Package httpserver wires the report handlers into an HTTP server.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	derrors "git.home.luguber.info/inful/reportbuilder/internal/foundation/errors"
	"git.home.luguber.info/inful/reportbuilder/internal/logfields"
	"git.home.luguber.info/inful/reportbuilder/internal/metrics"
	handlers "git.home.luguber.info/inful/reportbuilder/internal/server/handlers"
	smw "git.home.luguber.info/inful/reportbuilder/internal/server/middleware"
)

const (
	readHeaderTimeout = 10 * time.Second
	idleTimeout       = 120 * time.Second
)

// Options tune the server.
type Options struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string
	// Registry backs /metrics. Nil disables the endpoint.
	Registry *prom.Registry
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Server serves the report API.
type Server struct {
	opts         Options
	errorAdapter *derrors.HTTPErrorAdapter

	monitoringHandlers *handlers.MonitoringHandlers
	reportHandlers     *handlers.ReportHandlers

	mchain func(http.Handler) http.Handler

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
}

// New constructs a server around svc.
func New(svc handlers.ReportService, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	s := &Server{
		opts:         opts,
		errorAdapter: derrors.NewHTTPErrorAdapter(opts.Logger),
	}
	var metricsHandler http.Handler
	if opts.Registry != nil {
		metricsHandler = metrics.HTTPHandler(opts.Registry)
	}
	s.monitoringHandlers = handlers.NewMonitoringHandlers(time.Now(), metricsHandler)
	s.reportHandlers = handlers.NewReportHandlers(svc, s.errorAdapter)
	s.mchain = smw.Chain(opts.Logger, s.errorAdapter)
	return s
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	rh := s.reportHandlers
	mux.HandleFunc("GET /health", s.monitoringHandlers.HandleHealthCheck)
	mux.HandleFunc("GET /metrics", s.monitoringHandlers.HandleMetrics)

	mux.HandleFunc("GET /api/reports", rh.HandleList)
	mux.HandleFunc("GET /api/reports/{unit}/content/{kind}", rh.HandleContent)
	mux.HandleFunc("GET /api/reports/{unit}/content/{kind}/{path...}", rh.HandleAsset)
	mux.HandleFunc("POST /api/reports/{unit}/build/{kind}", rh.HandleBuild)
	mux.HandleFunc("GET /api/reports/{unit}/source", rh.HandleSource)
	mux.HandleFunc("POST /api/reports/{unit}/source", rh.HandleSaveSource)
	mux.HandleFunc("GET /api/reports/{unit}/commits", rh.HandleCommits)
	mux.HandleFunc("GET /api/reports/{unit}/versions/{kind}", rh.HandleVersions)
	mux.HandleFunc("GET /api/reports/{unit}/versions/{kind}/{version}/{path...}", rh.HandleVersionFile)
	mux.HandleFunc("POST /api/reports/{unit}/upload", rh.HandleUpload)
	mux.HandleFunc("GET /api/reports/{unit}/logs/{kind}", rh.HandleLogs)
	mux.HandleFunc("GET /api/reports/{unit}/history", rh.HandleHistory)
	return s.mchain(mux)
}

// Start binds the listen address and serves in the background. Binding
// happens before Start returns so that address conflicts surface here.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.srv != nil {
		return errors.New("http server already started")
	}
	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("http startup failed: %w", err)
	}
	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		IdleTimeout:       idleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.startServerWithListener(s.srv, ln)
	s.opts.Logger.Info("HTTP server started", slog.String("addr", ln.Addr().String()))
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.opts.Addr
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.opts.Logger.Info("HTTP server stopped")
	return nil
}

func (s *Server) startServerWithListener(srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.opts.Logger.Error("HTTP server error", logfields.Error(err))
		}
	}()
}
