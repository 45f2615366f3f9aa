package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "crew.yaml"

// DefaultEnvFile is the dotenv file consulted for variables not set in the
// process environment.
const DefaultEnvFile = ".env"

// Load returns a Config using the hierarchy: defaults < YAML < .env < ENV.
// Both files are optional.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile, DefaultEnvFile)
}

// LoadFrom returns a Config loaded from the given YAML and dotenv paths.
func LoadFrom(yamlPath, envPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	dotenv, err := readDotEnv(envPath)
	if err != nil {
		return nil, fmt.Errorf("config dotenv: %w", err)
	}
	loadEnv(&cfg, lookup(dotenv))

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: operator-supplied config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// readDotEnv parses a dotenv file without touching the process environment.
// A missing file yields an empty map.
func readDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return map[string]string{}, nil
	}
	vals, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return vals, nil
}

// getenv resolves a variable name to a value; empty means unset.
type getenv func(key string) string

// lookup prefers the process environment and falls back to dotenv values.
func lookup(dotenv map[string]string) getenv {
	return func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty values override the current config.
func loadEnv(cfg *Config, env getenv) {
	setString(env, &cfg.Server.Port, "CREW_PORT")
	setString(env, &cfg.Server.CORSOrigin, "CREW_CORS_ORIGIN")
	setDuration(env, &cfg.Server.RequestTimeout, "CREW_REQUEST_TIMEOUT")

	setString(env, &cfg.Storage.Driver, "CREW_STORAGE_DRIVER")
	setString(env, &cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(env, &cfg.Postgres.MaxConns, "CREW_PG_MAX_CONNS")
	setInt32(env, &cfg.Postgres.MinConns, "CREW_PG_MIN_CONNS")
	setDuration(env, &cfg.Postgres.MaxConnLifetime, "CREW_PG_MAX_CONN_LIFETIME")
	setDuration(env, &cfg.Postgres.MaxConnIdleTime, "CREW_PG_MAX_CONN_IDLE_TIME")
	setDuration(env, &cfg.Postgres.HealthCheck, "CREW_PG_HEALTH_CHECK")
	setString(env, &cfg.SQLite.Path, "CREW_SQLITE_PATH")
	setString(env, &cfg.NATS.URL, "NATS_URL")

	// OpenRouter
	setString(env, &cfg.OpenRouter.URL, "OPENROUTER_BASE_URL")
	setString(env, &cfg.OpenRouter.APIKey, "OPENROUTER_API_KEY")
	setString(env, &cfg.OpenRouter.Referer, "OPENROUTER_REFERER")
	setString(env, &cfg.OpenRouter.AppName, "OPENROUTER_APP_NAME")
	setDuration(env, &cfg.OpenRouter.Timeout, "OPENROUTER_TIMEOUT")

	// Crew
	setString(env, &cfg.Crew.ConfigDir, "CREW_CONFIG_DIR")
	setString(env, &cfg.Crew.CostDatabasePath, "CREW_COST_DATABASE")

	// Executor
	setInt(env, &cfg.Executor.MaxBatchSize, "CREW_EXEC_MAX_BATCH_SIZE")
	setInt(env, &cfg.Executor.MaxParallel, "CREW_EXEC_MAX_PARALLEL")
	setInt(env, &cfg.Executor.MaxConcurrentCalls, "CREW_EXEC_MAX_CONCURRENT_CALLS")
	setBool(env, &cfg.Executor.FallbackToIndividual, "CREW_EXEC_FALLBACK_INDIVIDUAL")
	setDuration(env, &cfg.Executor.CallTimeout, "CREW_EXEC_CALL_TIMEOUT")

	// Retry / breaker / rate
	setInt(env, &cfg.Retry.MaxRetries, "CREW_RETRY_MAX")
	setDuration(env, &cfg.Retry.BaseDelay, "CREW_RETRY_BASE_DELAY")
	setFloat64(env, &cfg.Retry.Multiplier, "CREW_RETRY_MULTIPLIER")
	setDuration(env, &cfg.Retry.MaxDelay, "CREW_RETRY_MAX_DELAY")
	setInt(env, &cfg.Breaker.MaxFailures, "CREW_BREAKER_MAX_FAILURES")
	setDuration(env, &cfg.Breaker.Timeout, "CREW_BREAKER_TIMEOUT")
	setFloat64(env, &cfg.Rate.RequestsPerSecond, "CREW_RATE_RPS")
	setInt(env, &cfg.Rate.Burst, "CREW_RATE_BURST")
	setDuration(env, &cfg.Rate.CleanupInterval, "CREW_RATE_CLEANUP_INTERVAL")
	setDuration(env, &cfg.Rate.MaxIdleTime, "CREW_RATE_MAX_IDLE_TIME")

	setFloat64(env, &cfg.Budget.WarningThreshold, "CREW_BUDGET_WARNING_THRESHOLD")

	// Cache
	setInt64(env, &cfg.Cache.L1MaxSizeMB, "CREW_CACHE_L1_SIZE_MB")
	setDuration(env, &cfg.Cache.L1TTL, "CREW_CACHE_L1_TTL")
	setString(env, &cfg.Cache.L2Bucket, "CREW_CACHE_L2_BUCKET")
	setDuration(env, &cfg.Cache.L2TTL, "CREW_CACHE_L2_TTL")

	setString(env, &cfg.Idempotency.Bucket, "CREW_IDEMPOTENCY_BUCKET")
	setDuration(env, &cfg.Idempotency.TTL, "CREW_IDEMPOTENCY_TTL")

	setString(env, &cfg.Logging.Level, "CREW_LOG_LEVEL")
	setString(env, &cfg.Logging.Service, "CREW_LOG_SERVICE")
	setBool(env, &cfg.Logging.Async, "CREW_LOG_ASYNC")

	setBool(env, &cfg.OTEL.Enabled, "CREW_OTEL_ENABLED")
	setString(env, &cfg.OTEL.Endpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
	setString(env, &cfg.OTEL.ServiceName, "OTEL_SERVICE_NAME")
	setBool(env, &cfg.OTEL.Insecure, "CREW_OTEL_INSECURE")
	setFloat64(env, &cfg.OTEL.SampleRate, "CREW_OTEL_SAMPLE_RATE")

	setBool(env, &cfg.MCP.Enabled, "CREW_MCP_ENABLED")
	setString(env, &cfg.MCP.Addr, "CREW_MCP_ADDR")
	setString(env, &cfg.MCP.APIKey, "CREW_MCP_API_KEY")
}

var validDrivers = map[string]bool{"postgres": true, "sqlite": true, "memory": true}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if !validDrivers[cfg.Storage.Driver] {
		return fmt.Errorf("storage.driver must be postgres, sqlite or memory, got %q", cfg.Storage.Driver)
	}
	if cfg.Storage.Driver == "postgres" && cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Storage.Driver == "sqlite" && cfg.SQLite.Path == "" {
		return errors.New("sqlite.path is required")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.OpenRouter.URL == "" {
		return errors.New("openrouter.url is required")
	}
	if cfg.Executor.MaxBatchSize < 1 {
		return errors.New("executor.max_batch_size must be >= 1")
	}
	if cfg.Executor.MaxParallel < 1 {
		return errors.New("executor.max_parallel must be >= 1")
	}
	if cfg.Executor.MaxConcurrentCalls < 1 {
		return errors.New("executor.max_concurrent_calls must be >= 1")
	}
	if cfg.Retry.MaxRetries < 0 {
		return errors.New("retry.max_retries must be >= 0")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	if cfg.Budget.WarningThreshold <= 0 || cfg.Budget.WarningThreshold > 1 {
		return errors.New("budget.warning_threshold must be in (0, 1]")
	}
	if cfg.MCP.Enabled && cfg.MCP.Addr == "" {
		return errors.New("mcp.addr is required when mcp is enabled")
	}
	return nil
}

func setString(env getenv, dst *string, key string) {
	if v := env(key); v != "" {
		*dst = v
	}
}

func setInt(env getenv, dst *int, key string) {
	if v := env(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(env getenv, dst *int32, key string) {
	if v := env(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(env getenv, dst *int64, key string) {
	if v := env(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(env getenv, dst *float64, key string) {
	if v := env(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(env getenv, dst *bool, key string) {
	if v := env(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(env getenv, dst *time.Duration, key string) {
	if v := env(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
