package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	httpapi "github.com/GriffinCanCode/remotedom/internal/api/http"
	"github.com/GriffinCanCode/remotedom/internal/api/middleware"
	"github.com/GriffinCanCode/remotedom/internal/api/ws"
	"github.com/GriffinCanCode/remotedom/internal/domain/environment"
	"github.com/GriffinCanCode/remotedom/internal/domain/markup"
	"github.com/GriffinCanCode/remotedom/internal/domain/script"
	"github.com/GriffinCanCode/remotedom/internal/domain/seed"
	"github.com/GriffinCanCode/remotedom/internal/domain/surface"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/config"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/logging"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/tap"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/remotedom/internal/infrastructure/webhook"
)

// Version is reported by GET /
const Version = "1.0.0"

type closer interface {
	Close(ctx context.Context) error
}

// Server wraps the HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	httpSrv  *http.Server
	registry *environment.Registry
	hub      *ws.Hub
	scripts  *script.Pool
	sinks    []closer
	redis    *redis.Client
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
	tracer   *tracing.Tracer
	instance string
	seeded   seed.Report
}

// Option customises NewServer
type Option func(*options)

type options struct {
	logger *logging.Logger
}

// WithLogger replaces the logger built from the configuration
func WithLogger(l *logging.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		var err error
		logger, err = logging.New(logging.Config{
			Level:       cfg.Logging.Level,
			Development: cfg.Logging.Development,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	instance := uuid.NewString()
	logger.Info("Initializing remote DOM server",
		zap.String("port", cfg.Server.Port),
		zap.String("instance", instance),
		zap.Duration("flush_delay", cfg.Surface.FlushDelay),
	)

	// Metrics first, every other component reports into them
	metrics := monitoring.NewMetrics()
	tracer := tracing.New("remotedom", logger.Component("trace"))

	registry := environment.NewRegistry(
		environment.WithLogger(logger.Component("registry")),
		environment.WithGauge(metrics.Surfaces()),
		environment.WithSurfaceOptions(
			surface.WithFlushDelay(cfg.Surface.FlushDelay),
			surface.WithMaxBatch(cfg.Surface.MaxBatch),
			surface.WithRecorder(metrics),
		),
	)

	hub := ws.NewHub(ws.Config{
		HistoryLimit:    cfg.Stream.HistoryLimit,
		SendBuffer:      cfg.Stream.SendBuffer,
		WriteTimeout:    cfg.Stream.WriteTimeout,
		PingInterval:    cfg.Stream.PingInterval,
		MaxMessageBytes: cfg.Stream.MaxMessageBytes,
	}, logger.Component("hub"), metrics)

	srv := &Server{
		registry: registry,
		hub:      hub,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
		tracer:   tracer,
		instance: instance,
	}

	senders := surface.MultiSender{hub}
	if cfg.Webhook.URL != "" {
		sink := webhook.New(webhook.Config{
			URL:     cfg.Webhook.URL,
			Timeout: cfg.Webhook.Timeout,
		},
			webhook.WithLogger(logger.Component("webhook")),
			webhook.WithErrorHook(func() { metrics.RecordOutboundError("webhook") }),
		)
		senders = append(senders, sink)
		srv.sinks = append(srv.sinks, sink)
		logger.Info("Webhook sink enabled", zap.String("url", cfg.Webhook.URL))
	}
	if cfg.Redis.Addr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		rdb, err := tap.Connect(ctx, cfg.Redis.Addr)
		cancel()
		if err != nil {
			logger.Warn("Failed to connect to Redis, tap disabled",
				zap.String("addr", cfg.Redis.Addr),
				zap.Error(err))
		} else {
			t := tap.New(rdb, tap.Config{Prefix: cfg.Redis.Channel},
				logger.Component("tap"),
				func() { metrics.RecordOutboundError("redis") })
			senders = append(senders, t)
			srv.sinks = append(srv.sinks, t)
			srv.redis = rdb
			logger.Info("Redis tap enabled", zap.String("addr", cfg.Redis.Addr))
		}
	}
	registry.SetSender(senders)
	registry.SetHistoryClearer(hub.ClearHistory)
	registry.SetResetNotifier(hub.Reset)

	scriptCfg := script.DefaultConfig()
	if cfg.Script.Timeout > 0 {
		scriptCfg.Timeout = cfg.Script.Timeout
	}
	scripts, err := script.NewPool(scriptCfg, cfg.Script.PoolSize)
	if err != nil {
		srv.closeSinks(context.Background())
		hub.Close()
		tracer.Close()
		return nil, fmt.Errorf("failed to create script pool: %w", err)
	}
	srv.scripts = scripts

	if cfg.Seed.Dir != "" {
		loader, err := seed.NewLoader(cfg.Seed.Pattern)
		if err != nil {
			srv.Close(context.Background())
			return nil, err
		}
		report, err := seed.NewSeeder(registry, loader, logger.Component("seed")).Seed(context.Background(), cfg.Seed.Dir)
		if err != nil {
			logger.Warn("Some seed documents failed", zap.Error(err))
		}
		srv.seeded = report
	}

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(middleware.Recovery(logger.Component("http")))
	router.Use(middleware.AccessLog(logger.Component("http")))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.Gzip(gzip.DefaultCompression, "/metrics", "/ws"))

	handlers := httpapi.NewHandlers(httpapi.Deps{
		Registry: registry,
		Hub:      hub,
		Scripts:  scripts,
		Importer: markup.NewImporter(),
		Metrics:  metrics,
		Tracer:   tracer,
		Logger:   logger.Component("http"),
		Info: httpapi.Info{
			Service:  "remotedom",
			Version:  Version,
			Instance: instance,
			Started:  time.Now(),
		},
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	handlers.Register(router)

	wsHandler := ws.NewHandler(hub, registry, logger.Component("ws"))
	router.GET("/ws", wsHandler.HandleConnection)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	srv.router = router
	logger.Info("Server initialized successfully",
		zap.Int("seeded_surfaces", srv.seeded.Loaded))
	return srv, nil
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Registry returns the surface registry
func (s *Server) Registry() *environment.Registry {
	return s.registry
}

// Seeded reports what startup seeding loaded
func (s *Server) Seeded() seed.Report {
	return s.seeded
}

// Run serves HTTP on addr until Close is called
func (s *Server) Run(addr string) error {
	if addr == "" {
		addr = s.config.Server.Host + ":" + s.config.Server.Port
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close gracefully shuts down the server. Queued sink messages are given
// until ctx ends to drain.
func (s *Server) Close(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	s.hub.Close()
	if s.scripts != nil {
		s.scripts.Close()
	}
	if err := s.closeSinks(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("redis close: %w", err))
		}
	}
	s.tracer.Close()

	s.logger.Sync()
	return errors.Join(errs...)
}

func (s *Server) closeSinks(ctx context.Context) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	s.sinks = nil
	if len(errs) > 0 {
		s.logger.Warn("Sinks did not drain", zap.Error(errors.Join(errs...)))
	}
	return errors.Join(errs...)
}
