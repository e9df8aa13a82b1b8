package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App               AppConfig
	HTTP              ServerConfig
	GRPC              ServerConfig
	MySQL             MySQLConfig
	Redis             RedisConfig
	Log               LogConfig
	InternalEndpoints InternalEndpointsConfig
	Gateway           GatewayConfig
	Mpesa             MpesaConfig
	Requests          RequestsConfig
	Monitor           MonitorConfig
	Queue             QueueConfig
	Jobs              JobsConfig
	Tracing           TracingConfig
}

type AppConfig struct {
	ServiceName string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig is optional; an empty Addr disables the Redis-backed lock, cache tier and queue hand-off.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type LogConfig struct {
	Level  string
	Format string
}

type InternalEndpointsConfig struct {
	AuthGRPCAddr string
}

type GatewayConfig struct {
	DefaultCurrency     string
	SigningKeys         map[string]string
	RateLimitPerSecond  float64
	RateLimitBurst      int
	IntegrationCacheTTL time.Duration
	TrustedProxies      []string
}

type MpesaConfig struct {
	BaseURL         string
	ConsumerKey     string
	ConsumerSecret  string
	ShortCode       string
	PassKey         string
	TransactionType string
	CallbackBaseURL string
	HTTPTimeout     time.Duration
	TokenAttempts   int
}

type RequestsConfig struct {
	PushIntegrationCode string
	CountryCode         string
	DuplicateWindow     time.Duration
	ProcessingTimeout   time.Duration
	LockTTL             time.Duration
	LockWait            time.Duration
}

type MonitorConfig struct {
	Window                time.Duration
	LatencyThreshold      time.Duration
	HealthyUptimePercent  float64
	DegradedUptimePercent float64
	BacklogThreshold      int64
	BacklogAge            time.Duration
}

type QueueConfig struct {
	Name     string
	MaxRetry int
}

type JobsConfig struct {
	ExpireRequestsInterval  time.Duration
	PublishQueueInterval    time.Duration
	EvaluateMonitorInterval time.Duration
	BatchSize               int32
}

type TracingConfig struct {
	OTLPEndpoint string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "payment-gateway"),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		GRPC: ServerConfig{
			Host: getEnv("GRPC_HOST", "0.0.0.0"),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getIntEnv("REDIS_DB", 0),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		InternalEndpoints: InternalEndpointsConfig{
			AuthGRPCAddr: getEnv("AUTH_SERVICE_GRPC_ADDR", "localhost:9090"),
		},
		Gateway: GatewayConfig{
			DefaultCurrency:     getEnv("GATEWAY_DEFAULT_CURRENCY", "KES"),
			SigningKeys:         getKeyValueEnv("GATEWAY_SIGNING_KEYS"),
			RateLimitPerSecond:  getFloatEnv("GATEWAY_RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:      getIntEnv("GATEWAY_RATE_LIMIT_BURST", 100),
			IntegrationCacheTTL: getSecondsEnv("GATEWAY_INTEGRATION_CACHE_TTL_SECONDS", time.Minute),
			TrustedProxies:      getListEnv("GATEWAY_TRUSTED_PROXY_CIDRS"),
		},
		Mpesa: MpesaConfig{
			BaseURL:         getEnv("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke"),
			ConsumerKey:     getEnv("MPESA_CONSUMER_KEY", ""),
			ConsumerSecret:  getEnv("MPESA_CONSUMER_SECRET", ""),
			ShortCode:       getEnv("MPESA_SHORT_CODE", ""),
			PassKey:         getEnv("MPESA_PASS_KEY", ""),
			TransactionType: getEnv("MPESA_TRANSACTION_TYPE", "CustomerPayBillOnline"),
			CallbackBaseURL: getEnv("MPESA_CALLBACK_BASE_URL", ""),
			HTTPTimeout:     getSecondsEnv("MPESA_HTTP_TIMEOUT_SECONDS", 30*time.Second),
			TokenAttempts:   getIntEnv("MPESA_TOKEN_ATTEMPTS", 3),
		},
		Requests: RequestsConfig{
			PushIntegrationCode: getEnv("REQUESTS_PUSH_INTEGRATION_CODE", "mpesa"),
			CountryCode:         getEnv("REQUESTS_COUNTRY_CODE", "254"),
			DuplicateWindow:     getMinutesEnv("REQUESTS_DUPLICATE_WINDOW_MINUTES", 5*time.Minute),
			ProcessingTimeout:   getMinutesEnv("REQUESTS_PROCESSING_TIMEOUT_MINUTES", 10*time.Minute),
			LockTTL:             getSecondsEnv("REQUESTS_LOCK_TTL_SECONDS", 10*time.Second),
			LockWait:            getSecondsEnv("REQUESTS_LOCK_WAIT_SECONDS", 2*time.Second),
		},
		Monitor: MonitorConfig{
			Window:                getMinutesEnv("MONITOR_WINDOW_MINUTES", 24*time.Hour),
			LatencyThreshold:      getMillisecondsEnv("MONITOR_LATENCY_THRESHOLD_MS", 5*time.Second),
			HealthyUptimePercent:  getFloatEnv("MONITOR_HEALTHY_UPTIME_PERCENT", 99),
			DegradedUptimePercent: getFloatEnv("MONITOR_DEGRADED_UPTIME_PERCENT", 90),
			BacklogThreshold:      int64(getIntEnv("MONITOR_BACKLOG_THRESHOLD", 100)),
			BacklogAge:            getMinutesEnv("MONITOR_BACKLOG_AGE_MINUTES", 15*time.Minute),
		},
		Queue: QueueConfig{
			Name:     getEnv("QUEUE_NAME", "reconciliation"),
			MaxRetry: getIntEnv("QUEUE_MAX_RETRY", 5),
		},
		Jobs: JobsConfig{
			ExpireRequestsInterval:  getMinutesEnv("JOBS_EXPIRE_REQUESTS_INTERVAL_MINUTES", time.Minute),
			PublishQueueInterval:    getMinutesEnv("JOBS_PUBLISH_QUEUE_INTERVAL_MINUTES", time.Minute),
			EvaluateMonitorInterval: getMinutesEnv("JOBS_EVALUATE_MONITOR_INTERVAL_MINUTES", 5*time.Minute),
			BatchSize:               int32(getIntEnv("JOBS_BATCH_SIZE", 100)),
		},
		Tracing: TracingConfig{
			OTLPEndpoint: getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		},
	}, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseFloat(value, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}

func getMillisecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if ms, err := strconv.Atoi(value); err == nil {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return defaultValue
}

// getKeyValueEnv parses "name=value,name2=value2" pairs.
func getKeyValueEnv(key string) map[string]string {
	items := make(map[string]string)
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		name, value, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			continue
		}
		items[name] = strings.TrimSpace(value)
	}
	return items
}

func getListEnv(key string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
