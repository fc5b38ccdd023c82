// Package app holds the state shared by every lanemix command: settings,
// logging, metrics, error reporting and the optional status server.
package app

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/lanemix/internal/audiocore"
	"github.com/tphakala/lanemix/internal/audiocore/devices/malgo"
	"github.com/tphakala/lanemix/internal/audiocore/devices/virtual"
	"github.com/tphakala/lanemix/internal/buildinfo"
	"github.com/tphakala/lanemix/internal/conf"
	"github.com/tphakala/lanemix/internal/errors"
	"github.com/tphakala/lanemix/internal/httpserver"
	"github.com/tphakala/lanemix/internal/logging"
	"github.com/tphakala/lanemix/internal/observability"
	"github.com/tphakala/lanemix/internal/observability/metrics"
)

const sentryFlushTimeout = 2 * time.Second

// Context is the application state built once per command invocation.
type Context struct {
	Settings *conf.Settings
	Build    *buildinfo.Context
	Registry *prometheus.Registry
	Metrics  *metrics.AudioCoreMetrics
	Logger   *slog.Logger

	server *httpserver.Server
	sentry bool
}

// New initializes logging, metrics and error reporting from settings.
func New(settings *conf.Settings, build *buildinfo.Context) (*Context, error) {
	level := logging.ParseLevel(settings.Log.Level)
	if settings.Debug && level > slog.LevelDebug {
		level = slog.LevelDebug
	}
	if err := logging.Init(logging.Config{
		Level:      level,
		FilePath:   settings.Log.File,
		MaxSizeMB:  settings.Log.MaxSize,
		MaxBackups: settings.Log.MaxBackups,
		MaxAgeDays: settings.Log.MaxAge,
	}); err != nil {
		return nil, err
	}

	all, err := observability.NewMetrics()
	if err != nil {
		return nil, errors.New(err).
			Component("app").
			Category(errors.CategorySystem).
			Context("operation", "register_metrics").
			Build()
	}

	c := &Context{
		Settings: settings,
		Build:    build,
		Registry: all.Registry(),
		Metrics:  all.AudioCore,
		Logger:   logging.ForService("lanemix"),
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}

	errors.AddErrorHook(func(ee *errors.EnhancedError) {
		all.AudioCore.RecordError(ee.GetComponent(), ee.GetCategory())
	})

	if err := c.initSentry(); err != nil {
		c.Logger.Warn("error reporting disabled", "error", err)
	}
	return c, nil
}

func (c *Context) initSentry() error {
	dsn := c.Settings.Telemetry.SentryDSN
	if dsn == "" {
		return nil
	}
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      "production",
		ServerName:       "",
		Release:          c.Build.Release(),
	}); err != nil {
		return err
	}
	c.sentry = true
	errors.SetTelemetryReporter(errors.NewSentryReporter(true, c.Settings.Telemetry.ReportAll))
	return nil
}

// Backend returns the virtual backend for dry runs and the miniaudio
// backend otherwise.
func (c *Context) Backend(dryRun bool, opts ...virtual.Option) audiocore.Backend {
	if dryRun {
		return virtual.New(append([]virtual.Option{virtual.WithClock()}, opts...)...)
	}
	return malgo.New(malgo.Config{Backend: c.Settings.Engine.Backend})
}

// NewEngine creates an engine configured from the engine settings.
func (c *Context) NewEngine(backend audiocore.Backend) *audiocore.Engine {
	s := c.Settings
	return audiocore.NewEngine(backend,
		audiocore.WithVerbose(s.Verbose),
		audiocore.WithLogger(logging.ForService("audiocore")),
		audiocore.WithMetrics(audiocore.NewMetricsCollector(c.Metrics)),
		audiocore.WithCloseDelay(s.Engine.CloseDelay),
		audiocore.WithGracePeriod(s.Engine.GracePeriod),
		audiocore.WithReapInterval(s.Engine.ReapInterval),
		audiocore.WithPoolSize(s.Engine.PoolSize),
	)
}

// StartStatusServer serves status and metrics for engine when telemetry is
// enabled.
func (c *Context) StartStatusServer(engine httpserver.Engine) error {
	if !c.Settings.Telemetry.Enabled {
		return nil
	}
	c.server = httpserver.New(engine, c.Registry)
	if err := c.server.Start(c.Settings.Telemetry.Listen); err != nil {
		c.server = nil
		return err
	}
	return nil
}

// Close stops the status server, flushes error reports and closes the log file.
func (c *Context) Close() {
	if c.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := c.server.Shutdown(ctx); err != nil {
			c.Logger.Warn("status server shutdown failed", "error", err)
		}
		cancel()
	}
	if c.sentry {
		sentry.Flush(sentryFlushTimeout)
	}
	errors.ClearErrorHooks()
	errors.SetTelemetryReporter(nil)
	if err := logging.Close(); err != nil {
		c.Logger.Warn("closing log file failed", "error", err)
	}
}

// SignalContext returns a context cancelled on SIGINT, SIGTERM, or after
// duration when it is positive.
func SignalContext(parent context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if duration <= 0 {
		return ctx, stop
	}
	timed, cancel := context.WithTimeout(ctx, duration)
	return timed, func() {
		cancel()
		stop()
	}
}
