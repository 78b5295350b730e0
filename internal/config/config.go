package config

import (
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName    string
	AppVersion string
	Port       string

	Environment     string
	AuthJWTSecret   string
	AdminAPIToken   string
	ReconcileAPIKey string

	SnowflakeNodeID int64

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

	// Game server delivery channel. An empty URL selects the logging stub.
	GameServerURL       string
	GameServerID        string
	GameServerAPIKey    string
	GameServerSecret    string
	GameServerTimeout   time.Duration
	GameServerRateLimit int
	GameServerRateBurst int

	DeliveryMaxAttempts int
	DeliveryTimeout     time.Duration
	RewardQueueSize     int
	RewardWorkers       int
	RewardOrphanAfter   time.Duration
	RewardPollInterval  time.Duration

	ClaimCooldown       time.Duration
	ReconcileInterval   time.Duration
	ReconcileStaleAge   time.Duration
	HealthInterval      time.Duration
	AlertWebhookURL     string
	AlertWebhookTimeout time.Duration
}

// Load loads configuration from environment variables and .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:             getenv("APP_SERVICE", "phanteon-rewards"),
		AppVersion:          getenv("APP_VERSION", "0.1.0"),
		Port:                getenv("PORT", "8080"),
		Environment:         getenv("ENVIRONMENT", "development"),
		AuthJWTSecret:       strings.TrimSpace(getenv("AUTH_JWT_SECRET", "")),
		AdminAPIToken:       strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		ReconcileAPIKey:     strings.TrimSpace(getenv("RECONCILE_API_KEY", "")),
		SnowflakeNodeID:     getenvInt64("SNOWFLAKE_NODE_ID", 1),
		DBHost:              getenv("DB_HOST", "localhost"),
		DBPort:              getenv("DB_PORT", "5432"),
		DBName:              getenv("DB_NAME", "phanteon"),
		DBUser:              getenv("DB_USER", "postgres"),
		DBPassword:          getenv("DB_PASSWORD", "postgres"),
		DBSSLMode:           getenv("DB_SSL_MODE", "disable"),
		DBMaxIdleConn:       getenvInt("DB_MAX_IDLE_CONN", 10),
		DBMaxOpenConn:       getenvInt("DB_MAX_OPEN_CONN", 50),
		DBConnMaxLifetime:   getenvInt("DB_CONN_MAX_LIFETIME", 3600),
		DBConnMaxIdleTime:   getenvInt("DB_CONN_MAX_IDLE_TIME", 60),
		GameServerURL:       strings.TrimRight(strings.TrimSpace(getenv("GAME_SERVER_URL", "")), "/"),
		GameServerID:        getenv("GAME_SERVER_ID", "main"),
		GameServerAPIKey:    strings.TrimSpace(getenv("GAME_SERVER_API_KEY", "")),
		GameServerSecret:    strings.TrimSpace(getenv("GAME_SERVER_SIGNING_SECRET", "")),
		GameServerTimeout:   getenvDuration("GAME_SERVER_TIMEOUT", 10*time.Second),
		GameServerRateLimit: getenvInt("GAME_SERVER_RATE_LIMIT", 600),
		GameServerRateBurst: getenvInt("GAME_SERVER_RATE_BURST", 10),
		DeliveryMaxAttempts: getenvInt("DELIVERY_MAX_ATTEMPTS", 3),
		DeliveryTimeout:     getenvDuration("DELIVERY_TIMEOUT", 10*time.Second),
		RewardQueueSize:     getenvInt("REWARD_QUEUE_SIZE", 256),
		RewardWorkers:       getenvInt("REWARD_WORKERS", 4),
		RewardOrphanAfter:   getenvDuration("REWARD_ORPHAN_AFTER", 2*time.Minute),
		RewardPollInterval:  getenvDuration("REWARD_POLL_INTERVAL", 30*time.Second),
		ClaimCooldown:       getenvDuration("CLAIM_COOLDOWN", 20*time.Hour),
		ReconcileInterval:   getenvDuration("RECONCILE_INTERVAL", 15*time.Minute),
		ReconcileStaleAge:   getenvDuration("RECONCILE_STALE_AGE", 3*time.Hour),
		HealthInterval:      getenvDuration("HEALTH_INTERVAL", 5*time.Minute),
		AlertWebhookURL:     strings.TrimSpace(getenv("ALERT_WEBHOOK_URL", "")),
		AlertWebhookTimeout: getenvDuration("ALERT_WEBHOOK_TIMEOUT", 5*time.Second),
	}

	return &cfg
}

// DSN builds the postgres connection string used by gorm and migrate.
func (c *Config) DSN() string {
	return c.DSNFor(c.DBName)
}

// DSNFor builds a connection string for another database on the same server.
func (c *Config) DSNFor(dbName string) string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, c.DBPort),
		Path:     "/" + dbName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}
	return u.String()
}

// IsProduction reports whether the service runs with production defaults.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

// getenvDuration accepts Go duration strings ("90s", "20h") or a bare number of seconds.
func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return def
}
