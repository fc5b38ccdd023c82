// Package httpserver exposes engine status, process snapshots, host
// information and Prometheus metrics over HTTP.
package httpserver

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/errors"
	"github.com/tphakala/lanemix/internal/logging"
)

const (
	componentHTTP          = "httpserver"
	defaultShutdownTimeout = 5 * time.Second
)

// Engine is the part of the audio engine the server reports on.
type Engine interface {
	Status() audiocore.Status
	Processes() []audiocore.ProcessInfo
}

// Server is the status HTTP server.
type Server struct {
	echo      *echo.Echo
	engine    Engine
	registry  *prometheus.Registry
	logger    *slog.Logger
	startTime time.Time

	mu       sync.Mutex
	listener net.Listener
	done     chan struct{}
}

// Option configures a Server.
type Option func(*Server)

// WithLogger replaces the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a server. registry may be nil, in which case /metrics serves
// an empty registry.
func New(engine Engine, registry *prometheus.Registry, opts ...Option) *Server {
	logger := logging.ForService("httpserver")
	if logger == nil {
		logger = slog.Default()
	}
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		echo:      echo.New(),
		engine:    engine,
		registry:  registry,
		logger:    logger,
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Server.ReadTimeout = 10 * time.Second
	s.echo.Server.WriteTimeout = 30 * time.Second

	s.echo.Use(echomw.Recover())
	s.echo.Use(newRequestLogger(s.logger))
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.GET("/healthz", s.healthCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))

	v1 := s.echo.Group("/api/v1")
	v1.GET("/status", s.getStatus)
	v1.GET("/processes", s.getProcesses)
	v1.GET("/system", s.getSystemInfo)
}

// healthCheck answers 200 while the engine runs and 503 once it shuts down.
func (s *Server) healthCheck(c echo.Context) error {
	status := s.engine.Status()
	code := http.StatusOK
	state := "healthy"
	if !status.Running {
		code = http.StatusServiceUnavailable
		state = "shutting_down"
	}
	uptime := time.Since(s.startTime)
	return c.JSON(code, map[string]any{
		"status":         state,
		"processes":      status.Processes,
		"uptime":         uptime.String(),
		"uptime_seconds": uptime.Seconds(),
		"timestamp":      time.Now().Format(time.RFC3339),
	})
}

func (s *Server) getStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, s.engine.Status())
}

func (s *Server) getProcesses(c echo.Context) error {
	procs := s.engine.Processes()
	return c.JSON(http.StatusOK, map[string]any{
		"count":     len(procs),
		"processes": procs,
	})
}

// Echo returns the underlying Echo instance.
func (s *Server) Echo() *echo.Echo { return s.echo }

// Start listens on addr and serves in the background. It returns once the
// listener is bound, so the address is usable immediately.
func (s *Server) Start(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.New(err).
			Component(componentHTTP).
			Category(errors.CategoryHTTP).
			Context("operation", "listen").
			Context("address", addr).
			Build()
	}

	s.mu.Lock()
	s.listener = ln
	s.done = make(chan struct{})
	done := s.done
	s.mu.Unlock()

	s.echo.Listener = ln
	go func() {
		defer close(done)
		if err := s.echo.Start(""); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server stopped", "error", err)
		}
	}()

	s.logger.Info("status server listening", "address", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Shutdown stops the server gracefully and waits for the serve goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultShutdownTimeout)
		defer cancel()
	}

	if err := s.echo.Shutdown(ctx); err != nil {
		return errors.New(err).
			Component(componentHTTP).
			Category(errors.CategoryHTTP).
			Context("operation", "shutdown").
			Build()
	}

	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done != nil {
		<-done
	}
	s.logger.Info("status server shutdown complete")
	return nil
}
