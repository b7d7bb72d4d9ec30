package config

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string
	NodeID      int64

	OTLPEndpoint string
	Telemetry    TelemetryConfig

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int

	Redis     RedisConfig
	LLM       LLMConfig
	Agrisense AgrisenseConfig
	Ingestion IngestionConfig
	RateLimit RateLimitConfig
	Bootstrap BootstrapConfig
}

type TelemetryConfig struct {
	DeploymentEnv  string
	ServiceVersion string
	LogLevel       string
	LogFormat      string
	OtelEnabled    bool
	OtelProtocol   string
	SamplingRatio  float64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	LockTTL  time.Duration
}

// Enabled reports whether a Redis endpoint was configured.
func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

type AgrisenseConfig struct {
	BaseURL      string
	APIKey       string
	Timeout      time.Duration
	ResyncSpec   string
	ResyncBatch  int
	PackageTTL   time.Duration
	ResyncEnable bool
}

type IngestionConfig struct {
	BatchSize    int
	PollInterval time.Duration
	RunTimeout   time.Duration
	TaskTimeout  time.Duration
	LeaseTimeout time.Duration
	MaxAttempts  int
	BaseBackoff  time.Duration
}

type RateLimitConfig struct {
	AnalyzeEnabled bool
	AnalyzeRate    float64
	AnalyzeBurst   int
}

type BootstrapConfig struct {
	AdminUserIDs []string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:      getenv("APP_SERVICE", "wasteloop"),
		AppVersion:   getenv("APP_VERSION", "0.1.0"),
		Environment:  getenv("ENVIRONMENT", "development"),
		HTTPAddr:     getenv("HTTP_ADDR", ":8080"),
		NodeID:       int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		OTLPEndpoint: getenv("OTEL_EXPORTER_OTLP_ENDPOINT", getenv("OTLP_ENDPOINT", "localhost:4317")),

		Telemetry: TelemetryConfig{
			DeploymentEnv:  strings.TrimSpace(os.Getenv("DEPLOYMENT_ENV")),
			ServiceVersion: strings.TrimSpace(os.Getenv("SERVICE_VERSION")),
			LogLevel:       strings.ToLower(strings.TrimSpace(getenv("LOG_LEVEL", "info"))),
			LogFormat:      strings.ToLower(strings.TrimSpace(getenv("LOG_FORMAT", "json"))),
			OtelEnabled:    getenvBool("OTEL_ENABLED", true),
			OtelProtocol:   strings.ToLower(strings.TrimSpace(getenv("OTEL_EXPORTER_OTLP_TRACES_PROTOCOL", getenv("OTEL_EXPORTER_OTLP_PROTOCOL", "grpc")))),
			SamplingRatio:  getenvFloat("OTEL_SAMPLING_RATIO", 0.1),
		},

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "wasteloop"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: strings.TrimSpace(getenv("REDIS_PASSWORD", "")),
			DB:       getenvInt("REDIS_DB", 0),
			LockTTL:  getenvDuration("USER_LOCK_TTL", 90*time.Second),
		},
		LLM: LLMConfig{
			BaseURL: strings.TrimSpace(getenv("LLM_BASE_URL", "")),
			APIKey:  strings.TrimSpace(getenv("LLM_API_KEY", "")),
			Model:   strings.TrimSpace(getenv("LLM_MODEL", "gpt-4o-mini")),
			Timeout: getenvDuration("LLM_TIMEOUT", 20*time.Second),
		},
		Agrisense: AgrisenseConfig{
			BaseURL:      strings.TrimSpace(getenv("AGRISENSE_BASE_URL", "")),
			APIKey:       strings.TrimSpace(getenv("AGRISENSE_API_KEY", "")),
			Timeout:      getenvDuration("AGRISENSE_TIMEOUT", 5*time.Second),
			ResyncSpec:   getenv("AGRISENSE_RESYNC_SPEC", "@every 5m"),
			ResyncBatch:  getenvInt("AGRISENSE_RESYNC_BATCH", 100),
			PackageTTL:   getenvDuration("AGRISENSE_PACKAGE_TTL", time.Minute),
			ResyncEnable: getenvBool("AGRISENSE_RESYNC_ENABLED", true),
		},
		Ingestion: IngestionConfig{
			BatchSize:    getenvInt("INGESTION_BATCH_SIZE", 20),
			PollInterval: getenvDuration("INGESTION_POLL_INTERVAL", 2*time.Second),
			RunTimeout:   getenvDuration("INGESTION_RUN_TIMEOUT", 2*time.Minute),
			TaskTimeout:  getenvDuration("INGESTION_TASK_TIMEOUT", 45*time.Second),
			LeaseTimeout: getenvDuration("INGESTION_LEASE_TIMEOUT", 2*time.Minute),
			MaxAttempts:  getenvInt("INGESTION_MAX_ATTEMPTS", 5),
			BaseBackoff:  getenvDuration("INGESTION_BASE_BACKOFF", 5*time.Second),
		},
		RateLimit: RateLimitConfig{
			AnalyzeEnabled: getenvBool("ANALYZE_RATE_LIMIT_ENABLED", true),
			AnalyzeRate:    getenvFloat("ANALYZE_RATE_PER_SECOND", 0.2),
			AnalyzeBurst:   getenvInt("ANALYZE_RATE_BURST", 5),
		},
		Bootstrap: BootstrapConfig{
			AdminUserIDs: splitList(getenv("BOOTSTRAP_ADMIN_USER_IDS", "")),
		},
	}

	return cfg
}

// IsProduction reports whether the service runs in production.
func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %d", key, value, def)
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %v", key, value, def)
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[config] invalid %s=%q, using default %s", key, value, def)
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
