package config

import (
	"encoding/json"
	"log"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the hookrelay service.
// Values are loaded from environment variables; see the serve command's
// usage text for the full list.
type Config struct {
	DatabaseURL string `json:"database_url"`
	RedisAddr   string `json:"redis_addr,omitempty"`
	HTTPAddr    string `json:"http_addr"`

	SinkURL      string        `json:"sink_url"`
	SinkToken    string        `json:"sink_token,omitempty"`
	SinkTimeout  time.Duration `json:"-"`
	SinkTimeoutStr string      `json:"sink_timeout"`
	SourceTag    string        `json:"source_tag"`

	MaxAttempts    int           `json:"max_attempts"`
	BackoffBase    time.Duration `json:"-"`
	BackoffBaseStr string        `json:"backoff_base"`
	BackoffCap     time.Duration `json:"-"`
	BackoffCapStr  string        `json:"backoff_cap"`

	DBOpTimeout    time.Duration `json:"-"`
	DBOpTimeoutStr string        `json:"db_op_timeout"`

	DBMaxOpenConns       int           `json:"db_max_open_conns"`
	DBMaxIdleConns       int           `json:"db_max_idle_conns"`
	DBConnMaxLifetime    time.Duration `json:"-"`
	DBConnMaxLifetimeStr string        `json:"db_conn_max_lifetime"`
	DBConnMaxIdleTime    time.Duration `json:"-"`
	DBConnMaxIdleTimeStr string        `json:"db_conn_max_idle_time"`

	HTTPShutdownTimeout       time.Duration `json:"-"`
	HTTPShutdownTimeoutStr    string        `json:"http_shutdown_timeout"`
	DispatcherDrainTimeout    time.Duration `json:"-"`
	DispatcherDrainTimeoutStr string        `json:"dispatcher_drain_timeout"`

	MetricsEnabled bool   `json:"metrics_enabled"`
	MetricsPath    string `json:"metrics_path"`
	MetricsPort    string `json:"metrics_port"`

	ReconcileEnabled     bool          `json:"reconcile_enabled"`
	ReconcileInterval    time.Duration `json:"-"`
	ReconcileIntervalStr string        `json:"reconcile_interval"`

	// ReconcileThreshold must exceed the retry policy's maximum backoff
	// window, or the reconciler re-emits records that a live retry is
	// about to handle anyway.
	ReconcileThreshold    time.Duration `json:"-"`
	ReconcileThresholdStr string        `json:"reconcile_threshold"`

	ReconcileBatchSize int `json:"reconcile_batch_size"`

	EventBusBufferSize int `json:"eventbus_buffer_size"`
	DispatcherWorkers  int `json:"dispatcher_workers"`

	// CircuitBreakerThreshold: 0 disables the circuit breaker.
	CircuitBreakerThreshold   int           `json:"circuit_breaker_threshold"`
	CircuitBreakerCooldown    time.Duration `json:"-"`
	CircuitBreakerCooldownStr string        `json:"circuit_breaker_cooldown"`
}

// Load reads configuration from environment variables with defaults.
func Load() Config {
	cfg := Config{
		DatabaseURL:               os.Getenv("DATABASE_URL"),
		RedisAddr:                 os.Getenv("REDIS_ADDR"),
		HTTPAddr:                  os.Getenv("HTTP_ADDR"),
		SinkURL:                   os.Getenv("SINK_URL"),
		SinkToken:                 os.Getenv("SINK_TOKEN"),
		SinkTimeoutStr:            os.Getenv("SINK_TIMEOUT"),
		SourceTag:                 os.Getenv("SOURCE_TAG"),
		BackoffBaseStr:            os.Getenv("BACKOFF_BASE"),
		BackoffCapStr:             os.Getenv("BACKOFF_CAP"),
		DBOpTimeoutStr:            os.Getenv("DB_OP_TIMEOUT"),
		DBConnMaxLifetimeStr:      os.Getenv("DB_CONN_MAX_LIFETIME"),
		DBConnMaxIdleTimeStr:      os.Getenv("DB_CONN_MAX_IDLE_TIME"),
		HTTPShutdownTimeoutStr:    os.Getenv("HTTP_SHUTDOWN_TIMEOUT"),
		DispatcherDrainTimeoutStr: os.Getenv("DISPATCHER_DRAIN_TIMEOUT"),
		MetricsEnabled:            os.Getenv("METRICS_ENABLED") == "true",
		MetricsPath:               os.Getenv("METRICS_PATH"),
		MetricsPort:               os.Getenv("METRICS_PORT"),
		ReconcileEnabled:          os.Getenv("RECONCILE_ENABLED") == "true",
		ReconcileIntervalStr:      os.Getenv("RECONCILE_INTERVAL"),
		ReconcileThresholdStr:     os.Getenv("RECONCILE_THRESHOLD"),
		CircuitBreakerCooldownStr: os.Getenv("CIRCUIT_BREAKER_COOLDOWN"),
	}

	cfg.MaxAttempts = loadPositiveInt("MAX_ATTEMPTS", 4)
	cfg.ReconcileBatchSize = loadPositiveInt("RECONCILE_BATCH_SIZE", 100)
	cfg.EventBusBufferSize = loadPositiveInt("EVENTBUS_BUFFER_SIZE", 100)
	cfg.DispatcherWorkers = loadPositiveInt("DISPATCHER_WORKERS", 1)
	cfg.DBMaxOpenConns = loadPositiveInt("DB_MAX_OPEN_CONNS", 25)
	cfg.DBMaxIdleConns = loadPositiveInt("DB_MAX_IDLE_CONNS", 5)

	if cbThreshStr := os.Getenv("CIRCUIT_BREAKER_THRESHOLD"); cbThreshStr != "" {
		if n, err := strconv.Atoi(cbThreshStr); err == nil && n >= 0 {
			cfg.CircuitBreakerThreshold = n
		} else {
			log.Printf("config: invalid CIRCUIT_BREAKER_THRESHOLD %q, using default 5", cbThreshStr)
			cfg.CircuitBreakerThreshold = 5
		}
	} else {
		cfg.CircuitBreakerThreshold = 5
	}

	// Support the platform PORT variable as fallback for HTTP_ADDR.
	if cfg.HTTPAddr == "" {
		if port := os.Getenv("PORT"); port != "" {
			cfg.HTTPAddr = ":" + port
		} else {
			cfg.HTTPAddr = ":8080"
		}
	}
	if cfg.SourceTag == "" {
		cfg.SourceTag = "hookrelay"
	}
	if cfg.SinkTimeoutStr == "" {
		cfg.SinkTimeoutStr = "30s"
	}
	if cfg.BackoffBaseStr == "" {
		cfg.BackoffBaseStr = "1s"
	}
	if cfg.BackoffCapStr == "" {
		cfg.BackoffCapStr = "2m"
	}
	if cfg.DBOpTimeoutStr == "" {
		cfg.DBOpTimeoutStr = "5s"
	}
	if cfg.DBConnMaxLifetimeStr == "" {
		cfg.DBConnMaxLifetimeStr = "30m"
	}
	if cfg.DBConnMaxIdleTimeStr == "" {
		cfg.DBConnMaxIdleTimeStr = "5m"
	}
	if cfg.HTTPShutdownTimeoutStr == "" {
		cfg.HTTPShutdownTimeoutStr = "10s"
	}
	if cfg.DispatcherDrainTimeoutStr == "" {
		cfg.DispatcherDrainTimeoutStr = "30s"
	}
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	if cfg.MetricsPort == "" {
		cfg.MetricsPort = "9090"
	}
	if cfg.ReconcileIntervalStr == "" {
		cfg.ReconcileIntervalStr = "5m"
	}
	if cfg.ReconcileThresholdStr == "" {
		cfg.ReconcileThresholdStr = "15m"
	}
	if cfg.CircuitBreakerCooldownStr == "" {
		cfg.CircuitBreakerCooldownStr = "2m"
	}

	// Parse durations; validation is handled separately by Validate().
	if d, err := time.ParseDuration(cfg.SinkTimeoutStr); err == nil {
		cfg.SinkTimeout = d
	}
	if d, err := time.ParseDuration(cfg.BackoffBaseStr); err == nil {
		cfg.BackoffBase = d
	}
	if d, err := time.ParseDuration(cfg.BackoffCapStr); err == nil {
		cfg.BackoffCap = d
	}
	if d, err := time.ParseDuration(cfg.DBOpTimeoutStr); err == nil {
		cfg.DBOpTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxLifetimeStr); err == nil {
		cfg.DBConnMaxLifetime = d
	}
	if d, err := time.ParseDuration(cfg.DBConnMaxIdleTimeStr); err == nil {
		cfg.DBConnMaxIdleTime = d
	}
	if d, err := time.ParseDuration(cfg.HTTPShutdownTimeoutStr); err == nil {
		cfg.HTTPShutdownTimeout = d
	}
	if d, err := time.ParseDuration(cfg.DispatcherDrainTimeoutStr); err == nil {
		cfg.DispatcherDrainTimeout = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileIntervalStr); err == nil {
		cfg.ReconcileInterval = d
	}
	if d, err := time.ParseDuration(cfg.ReconcileThresholdStr); err == nil {
		cfg.ReconcileThreshold = d
	}
	if d, err := time.ParseDuration(cfg.CircuitBreakerCooldownStr); err == nil {
		cfg.CircuitBreakerCooldown = d
	}

	return cfg
}

// loadPositiveInt reads a positive integer env var with a default.
func loadPositiveInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("config: invalid %s %q (must be a positive integer), using default %d", name, raw, def)
		return def
	}
	return n
}

// MaskedJSON returns the configuration as JSON with secrets masked.
func (c Config) MaskedJSON() ([]byte, error) {
	masked := struct {
		DatabaseURL            string `json:"database_url"`
		RedisAddr              string `json:"redis_addr,omitempty"`
		HTTPAddr               string `json:"http_addr"`
		SinkURL                string `json:"sink_url"`
		SinkToken              string `json:"sink_token,omitempty"`
		SinkTimeout            string `json:"sink_timeout"`
		SourceTag              string `json:"source_tag"`
		MaxAttempts            int    `json:"max_attempts"`
		BackoffBase            string `json:"backoff_base"`
		BackoffCap             string `json:"backoff_cap"`
		DBOpTimeout            string `json:"db_op_timeout"`
		DBMaxOpenConns         int    `json:"db_max_open_conns"`
		DBMaxIdleConns         int    `json:"db_max_idle_conns"`
		DBConnMaxLifetime      string `json:"db_conn_max_lifetime"`
		DBConnMaxIdleTime      string `json:"db_conn_max_idle_time"`
		HTTPShutdownTimeout    string `json:"http_shutdown_timeout"`
		DispatcherDrainTimeout string `json:"dispatcher_drain_timeout"`
		MetricsEnabled         bool   `json:"metrics_enabled"`
		MetricsPath            string `json:"metrics_path"`
		MetricsPort            string `json:"metrics_port"`
		ReconcileEnabled       bool   `json:"reconcile_enabled"`
		ReconcileInterval      string `json:"reconcile_interval"`
		ReconcileThreshold     string `json:"reconcile_threshold"`
		ReconcileBatchSize     int    `json:"reconcile_batch_size"`
		EventBusBufferSize     int    `json:"eventbus_buffer_size"`
		DispatcherWorkers      int    `json:"dispatcher_workers"`
		CircuitBreakerThreshold int   `json:"circuit_breaker_threshold"`
		CircuitBreakerCooldown  string `json:"circuit_breaker_cooldown"`
	}{
		DatabaseURL:            maskSecret(c.DatabaseURL),
		RedisAddr:              c.RedisAddr,
		HTTPAddr:               c.HTTPAddr,
		SinkURL:                c.SinkURL,
		SinkToken:              maskToken(c.SinkToken),
		SinkTimeout:            c.SinkTimeoutStr,
		SourceTag:              c.SourceTag,
		MaxAttempts:            c.MaxAttempts,
		BackoffBase:            c.BackoffBaseStr,
		BackoffCap:             c.BackoffCapStr,
		DBOpTimeout:            c.DBOpTimeoutStr,
		DBMaxOpenConns:         c.DBMaxOpenConns,
		DBMaxIdleConns:         c.DBMaxIdleConns,
		DBConnMaxLifetime:      c.DBConnMaxLifetimeStr,
		DBConnMaxIdleTime:      c.DBConnMaxIdleTimeStr,
		HTTPShutdownTimeout:    c.HTTPShutdownTimeoutStr,
		DispatcherDrainTimeout: c.DispatcherDrainTimeoutStr,
		MetricsEnabled:         c.MetricsEnabled,
		MetricsPath:            c.MetricsPath,
		MetricsPort:            c.MetricsPort,
		ReconcileEnabled:       c.ReconcileEnabled,
		ReconcileInterval:      c.ReconcileIntervalStr,
		ReconcileThreshold:     c.ReconcileThresholdStr,
		ReconcileBatchSize:     c.ReconcileBatchSize,
		EventBusBufferSize:     c.EventBusBufferSize,
		DispatcherWorkers:      c.DispatcherWorkers,
		CircuitBreakerThreshold: c.CircuitBreakerThreshold,
		CircuitBreakerCooldown:  c.CircuitBreakerCooldownStr,
	}
	return json.MarshalIndent(masked, "", "  ")
}

// maskSecret masks a secret value, preserving only the URI scheme if present.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	for _, scheme := range []string{"postgres://", "postgresql://"} {
		if len(s) >= len(scheme) && s[:len(scheme)] == scheme {
			return scheme + "***"
		}
	}
	return "***"
}

// maskToken fully masks a credential token.
func maskToken(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
