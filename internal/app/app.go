package app

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/visionrelay/visionrelay/internal/config"
	"github.com/visionrelay/visionrelay/internal/detector"
	"github.com/visionrelay/visionrelay/internal/health"
	"github.com/visionrelay/visionrelay/internal/httpapi"
	"github.com/visionrelay/visionrelay/internal/logging"
	"github.com/visionrelay/visionrelay/internal/metrics"
	"github.com/visionrelay/visionrelay/internal/ratelimit"
	"github.com/visionrelay/visionrelay/internal/relay"
	"github.com/visionrelay/visionrelay/internal/results"
	"github.com/visionrelay/visionrelay/internal/upload"
)

// App holds all application dependencies
type App struct {
	Config     *config.Config
	Logger     *logging.Logger
	Engine     detector.Engine
	Gate       *health.Gate
	RelaySvc   *relay.Service
	HTTPServer *httpapi.Server

	registry    *prometheus.Registry
	resultStore results.Store
	memStore    *results.MemoryStore
	redisClient *redis.Client
	gateCancel  context.CancelFunc
}

// New creates and initializes a new App instance
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	app.Logger = app.initLogger()
	app.registry = prometheus.NewRegistry()
	m := metrics.New(app.registry)

	engine, err := app.initEngine(ctx)
	if err != nil {
		return nil, err
	}
	app.Engine = engine

	app.Gate = health.NewGate(engine, cfg.Backend.ProbeInterval, app.Logger)

	uploadLimiter, defaultLimiter := app.initLimiters()
	app.resultStore = app.initResultStore()

	validator := upload.NewValidator(cfg.Server.MaxUploadBytes)

	app.RelaySvc = relay.NewService(uploadLimiter, validator, app.Gate, engine,
		app.resultStore, m, app.Logger)

	app.HTTPServer = httpapi.New(app.RelaySvc, app.Gate, app.resultStore,
		defaultLimiter, app.registry, cfg.Server.MaxUploadBytes, app.Logger)

	return app, nil
}

// Run starts the background probe loop and serves HTTP until ctx is canceled
// or the server fails.
func (a *App) Run(ctx context.Context) error {
	gateCtx, cancel := context.WithCancel(ctx)
	a.gateCancel = cancel
	go a.Gate.Run(gateCtx)

	a.Logger.Info("Starting HTTP server", logging.WithField("addr", a.Config.Server.HTTPAddr))
	return a.HTTPServer.Start(a.Config.Server.HTTPAddr)
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown(ctx context.Context) error {
	if a.gateCancel != nil {
		a.gateCancel()
	}

	if a.HTTPServer != nil {
		if err := a.HTTPServer.Shutdown(ctx); err != nil {
			a.Logger.Error("HTTP server shutdown error", logging.WithField("error", err.Error()))
		}
	}

	if a.memStore != nil {
		a.memStore.Stop()
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.Logger.Error("Redis close error", logging.WithField("error", err.Error()))
		}
	}

	return nil
}

func (a *App) initLogger() *logging.Logger {
	level := logging.LevelInfo
	switch a.Config.Logging.Level {
	case "debug":
		level = logging.LevelDebug
	case "warn":
		level = logging.LevelWarn
	case "error":
		level = logging.LevelError
	}
	return logging.New(level)
}

func (a *App) initEngine(ctx context.Context) (detector.Engine, error) {
	switch a.Config.Engine.Kind {
	case "rekognition":
		a.Logger.Info("Using AWS Rekognition detection engine",
			logging.WithField("region", a.Config.Engine.AWSRegion))
		engine, err := detector.NewRekognitionEngine(ctx, a.Config.Engine.AWSRegion,
			a.Config.Engine.RekognitionMinConf, a.Config.Engine.RekognitionMaxItems)
		if err != nil {
			return nil, fmt.Errorf("init rekognition engine: %w", err)
		}
		return engine, nil
	case "http", "":
		a.Logger.Info("Using HTTP detection backend",
			logging.WithField("url", a.Config.Backend.BaseURL))
		return detector.NewHTTPEngine(a.Config.Backend.BaseURL, a.Config.Backend.Timeout,
			a.Config.Backend.ProbeTimeout, a.Logger), nil
	default:
		return nil, fmt.Errorf("unknown detection engine %q", a.Config.Engine.Kind)
	}
}

func (a *App) redis() *redis.Client {
	if a.redisClient == nil {
		a.redisClient = redis.NewClient(&redis.Options{
			Addr:     a.Config.Redis.Addr,
			Password: a.Config.Redis.Password,
			DB:       a.Config.Redis.DB,
		})
	}
	return a.redisClient
}

// initLimiters builds the upload-path limiter (per-minute override applied)
// and the default limiter for the remaining endpoints. Each endpoint keeps its
// own counters.
func (a *App) initLimiters() (ratelimit.Limiter, ratelimit.Limiter) {
	limits := a.Config.Limits

	uploadWindows := []ratelimit.Window{
		ratelimit.PerDay(limits.PerDay),
		ratelimit.PerHour(limits.PerHour),
		ratelimit.PerMinute(limits.UploadPerMinute),
	}
	defaultWindows := []ratelimit.Window{
		ratelimit.PerDay(limits.PerDay),
		ratelimit.PerHour(limits.PerHour),
		ratelimit.PerMinute(limits.PerMinute),
	}

	if limits.Backend == "redis" {
		uploadLimiter, err := ratelimit.NewRedis(a.redis(), "ratelimit:upload:", uploadWindows, a.Logger)
		if err == nil {
			defaultLimiter, derr := ratelimit.NewRedis(a.redis(), "ratelimit:default:", defaultWindows, a.Logger)
			if derr == nil {
				a.Logger.Info("Using Redis for distributed rate limiting")
				return uploadLimiter, defaultLimiter
			}
			err = derr
		}
		a.Logger.Error("Failed to connect to Redis, falling back to memory rate limiting",
			logging.WithField("error", err.Error()))
	}

	a.Logger.Info("Using in-memory rate limiting")
	return ratelimit.NewMemory(uploadWindows), ratelimit.NewMemory(defaultWindows)
}

func (a *App) initResultStore() results.Store {
	if a.Config.Results.Backend == "redis" {
		store, err := results.NewRedis(a.redis(), "results:", a.Config.Results.TTL)
		if err == nil {
			a.Logger.Info("Using Redis result store", logging.WithField("addr", a.Config.Redis.Addr))
			return store
		}
		a.Logger.Error("Failed to connect to Redis, falling back to memory result store",
			logging.WithField("error", err.Error()))
	}

	a.Logger.Info("Using in-memory result store")
	a.memStore = results.NewMemory(a.Config.Results.TTL)
	return a.memStore
}
