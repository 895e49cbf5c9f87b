package config

import (
	"flag"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server  ServerConfig
	Backend BackendConfig
	Limits  LimitsConfig
	Redis   RedisConfig
	Results ResultsConfig
	Logging LoggingConfig
	Engine  EngineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr       string
	MaxUploadBytes int64
}

// BackendConfig holds detection backend configuration
type BackendConfig struct {
	BaseURL       string
	Timeout       time.Duration
	ProbeTimeout  time.Duration
	ProbeInterval time.Duration
}

// LimitsConfig holds rate limiting configuration. Window values are
// per-identity caps; UploadPerMinute overrides the per-minute default on the
// upload path only.
type LimitsConfig struct {
	Backend         string // "memory" or "redis"
	PerDay          int
	PerHour         int
	PerMinute       int
	UploadPerMinute int
}

// RedisConfig holds the shared Redis connection settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ResultsConfig holds the transient result store configuration
type ResultsConfig struct {
	Backend string // "memory" or "redis"
	TTL     time.Duration
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level string
}

// EngineConfig selects and configures the detection engine implementation.
type EngineConfig struct {
	Kind                string // "http" or "rekognition"
	AWSRegion           string
	RekognitionMinConf  float64
	RekognitionMaxItems int
}

// Load parses flags and environment variables to build configuration
func Load() *Config {
	cfg := &Config{}

	httpAddr := flag.String("http", ":8080", "HTTP server address")
	maxUpload := flag.Int64("max-upload-bytes", 16*1024*1024, "Maximum upload size in bytes")
	backendURL := flag.String("backend-url", "http://127.0.0.1:5001", "Detection backend base URL")
	backendTimeout := flag.Duration("backend-timeout", 30*time.Second, "Detection call timeout")
	probeTimeout := flag.Duration("probe-timeout", 5*time.Second, "Backend health probe timeout")
	probeInterval := flag.Duration("probe-interval", 10*time.Second, "Backend health probe interval")
	limiterBackend := flag.String("limiter-backend", "memory", "Rate limiter backend: memory or redis")
	resultsBackend := flag.String("results-backend", "memory", "Result store backend: memory or redis")
	resultsTTL := flag.Duration("results-ttl", 10*time.Minute, "Transient result retention")
	redisAddr := flag.String("redis-addr", "localhost:6379", "Redis server address")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	engineKind := flag.String("engine", "http", "Detection engine: http or rekognition")

	flag.Parse()

	applyEnvOverrides(httpAddr, maxUpload, backendURL, backendTimeout, probeTimeout,
		probeInterval, limiterBackend, resultsBackend, resultsTTL, redisAddr, logLevel, engineKind)

	cfg.Server = ServerConfig{
		HTTPAddr:       *httpAddr,
		MaxUploadBytes: *maxUpload,
	}

	cfg.Backend = BackendConfig{
		BaseURL:       *backendURL,
		Timeout:       *backendTimeout,
		ProbeTimeout:  *probeTimeout,
		ProbeInterval: *probeInterval,
	}

	cfg.Limits = loadLimitsConfig(*limiterBackend)

	cfg.Redis = RedisConfig{
		Addr:     *redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       getEnvInt("REDIS_DB", 0),
	}

	cfg.Results = ResultsConfig{
		Backend: *resultsBackend,
		TTL:     *resultsTTL,
	}

	cfg.Logging = LoggingConfig{
		Level: *logLevel,
	}

	cfg.Engine = loadEngineConfig(*engineKind)

	return cfg
}

func loadLimitsConfig(backend string) LimitsConfig {
	return LimitsConfig{
		Backend:         backend,
		PerDay:          getEnvInt("RATE_LIMIT_PER_DAY", 200),
		PerHour:         getEnvInt("RATE_LIMIT_PER_HOUR", 50),
		PerMinute:       getEnvInt("RATE_LIMIT_PER_MINUTE", 5),
		UploadPerMinute: getEnvInt("RATE_LIMIT_UPLOAD_PER_MINUTE", 10),
	}
}

func loadEngineConfig(kind string) EngineConfig {
	minConf := 25.0
	if v := os.Getenv("REKOGNITION_MIN_CONFIDENCE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			minConf = parsed
		}
	}

	return EngineConfig{
		Kind:                kind,
		AWSRegion:           os.Getenv("AWS_REGION"),
		RekognitionMinConf:  minConf,
		RekognitionMaxItems: getEnvInt("REKOGNITION_MAX_LABELS", 50),
	}
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func applyEnvOverrides(
	httpAddr *string,
	maxUpload *int64,
	backendURL *string,
	backendTimeout *time.Duration,
	probeTimeout *time.Duration,
	probeInterval *time.Duration,
	limiterBackend *string,
	resultsBackend *string,
	resultsTTL *time.Duration,
	redisAddr *string,
	logLevel *string,
	engineKind *string,
) {
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		*httpAddr = v
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			*maxUpload = n
		}
	}
	if v := os.Getenv("AI_BACKEND_URL"); v != "" {
		*backendURL = v
	}
	if v := os.Getenv("UPLOAD_TIMEOUT"); v != "" {
		// Accepts either a duration string or bare seconds, as the original
		// deployment configured it.
		if d, err := time.ParseDuration(v); err == nil {
			*backendTimeout = d
		} else if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			*backendTimeout = time.Duration(secs) * time.Second
		}
	}
	if v := os.Getenv("PROBE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*probeTimeout = d
		}
	}
	if v := os.Getenv("PROBE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*probeInterval = d
		}
	}
	if v := os.Getenv("LIMITER_BACKEND"); v != "" {
		*limiterBackend = v
	}
	if v := os.Getenv("RESULTS_BACKEND"); v != "" {
		*resultsBackend = v
	}
	if v := os.Getenv("RESULTS_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*resultsTTL = d
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		*redisAddr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		*logLevel = v
	}
	if v := os.Getenv("DETECTION_ENGINE"); v != "" {
		*engineKind = v
	}
}
