package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leaderboardkit/adapters/jsonfile"
	mem "leaderboardkit/adapters/memory"
	redisAdapter "leaderboardkit/adapters/redis"
	sqlxAdapter "leaderboardkit/adapters/sqlx"
	"leaderboardkit/analytics"
	"leaderboardkit/api/httpapi"
	"leaderboardkit/config"
	"leaderboardkit/core"
	"leaderboardkit/engine"
	"leaderboardkit/integrations/kafka"
	"leaderboardkit/integrations/webhook"
	"leaderboardkit/realtime"
	"leaderboardkit/topn"
)

// App aggregates the assembled server components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Hub           *realtime.Hub[core.Event]
	Service       *topn.Service
	Sinks         *Sinks
	Server        *http.Server
	MetricsServer *MetricsServer
}

// MetricsServer serves /metrics on its own address. Server is nil when metrics are disabled.
type MetricsServer struct {
	*http.Server
}

// Sinks are the event consumers attached to the service bus.
type Sinks struct {
	Activity *analytics.Activity
	kafka    *kafka.Sink
}

// Close flushes outbound sinks.
func (s *Sinks) Close(ctx context.Context) error {
	if s.kafka == nil {
		return nil
	}
	return s.kafka.Close(ctx)
}

// Close stops the service, waiting for in-flight submissions, then flushes sinks.
func (a *App) Close(ctx context.Context) error {
	a.Hub.Close()
	return errors.Join(a.Service.Close(), a.Sinks.Close(ctx))
}

// configFileEnv names a JSON or YAML file to load before environment overrides.
const configFileEnv = "LEADERBOARDKIT_CONFIG_FILE"

// profileEnv selects profile defaults when no config file is given.
const profileEnv = "LEADERBOARDKIT_PROFILE"

func provideConfig(ctx context.Context) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	switch {
	case os.Getenv(configFileEnv) != "":
		cfg, err = config.LoadFromFile(os.Getenv(configFileEnv))
	case os.Getenv(profileEnv) != "":
		cfg, err = config.LoadProfile(os.Getenv(profileEnv))
	default:
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if cfg.Environment == config.EnvProduction {
		if err := cfg.LoadSecretsFromEnv(ctx); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub[core.Event] {
	return realtime.NewEventHub()
}

func provideBackend(ctx context.Context, cfg *config.Config) (engine.Backend, error) {
	return setupBackend(ctx, cfg)
}

func provideRegistry(cfg *config.Config) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	if cfg.Metrics.CollectSystem {
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return reg
}

func provideMetrics(reg *prometheus.Registry) *analytics.Metrics {
	return analytics.NewMetrics(reg)
}

func provideService(cfg *config.Config, backend engine.Backend, hub *realtime.Hub[core.Event], logger *slog.Logger) *topn.Service {
	mode := engine.DispatchAsync
	if cfg.Leaderboard.Dispatch == "sync" {
		mode = engine.DispatchSync
	}
	return topn.New(
		topn.WithBackend(backend),
		topn.WithRealtime(hub),
		topn.WithDispatchMode(mode),
		topn.WithPath(cfg.Leaderboard.Path),
		topn.WithMaxEntries(cfg.Leaderboard.MaxEntries),
		topn.WithTransactionTimeout(cfg.Leaderboard.TransactionTimeout),
		topn.WithLogger(logger),
	)
}

func provideSinks(cfg *config.Config, svc *topn.Service, metrics *analytics.Metrics, logger *slog.Logger) (*Sinks, error) {
	sinks := &Sinks{Activity: analytics.NewActivity()}
	hooks := []analytics.Hook{metrics, sinks.Activity}

	if urls := cfg.Integrations.WebhookURLs; len(urls) > 0 {
		hooks = append(hooks, webhook.New(urls,
			webhook.WithTimeout(cfg.Integrations.WebhookTimeout),
			webhook.WithLogger(logger),
		))
	}
	if k := cfg.Integrations.Kafka; k.Enabled {
		sink, err := kafka.New(kafka.Config{Brokers: k.Brokers, Topic: k.Topic, ClientID: k.ClientID}, kafka.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		sinks.kafka = sink
		hooks = append(hooks, sink)
	}

	analytics.Attach(svc.Bus(), analytics.NewBridge(hooks...))
	return sinks, nil
}

func provideHandler(svc *topn.Service, hub *realtime.Hub[core.Event], cfg *config.Config, metrics *analytics.Metrics, logger *slog.Logger) http.Handler {
	return httpapi.NewMux(svc, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		Title:            cfg.Leaderboard.Title,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableRateLimit,
		RateLimitRPM:     cfg.Security.RateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.RateLimit.BurstSize,
		Metrics:          metrics,
		Logger:           logger,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

func provideMetricsServer(cfg *config.Config, reg *prometheus.Registry) *MetricsServer {
	if !cfg.Metrics.Enabled {
		return &MetricsServer{}
	}
	mux := http.NewServeMux()
	mux.Handle(cfg.Metrics.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	return &MetricsServer{Server: &http.Server{
		Addr:              cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var out io.Writer = os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	result := make([]slog.Attr, 0, len(attrs))
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}

// setupBackend creates the storage adapter selected by configuration.
func setupBackend(ctx context.Context, cfg *config.Config) (engine.Backend, error) {
	retries := cfg.Leaderboard.MaxRetries
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(mem.WithMaxRetries(retries)), nil
	case "redis":
		return redisAdapter.New(cfg.Storage.Redis, redisAdapter.WithMaxRetries(retries))
	case "sql":
		return sqlxAdapter.New(cfg.Storage.SQL, sqlxAdapter.WithMaxRetries(retries))
	case "file":
		return jsonfile.New(cfg.Storage.File.Path, jsonfile.WithMaxRetries(retries))
	default:
		return nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}
