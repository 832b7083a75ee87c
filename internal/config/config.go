package config

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultCallWindow = 20 * time.Second
	DefaultRingWindow = 15 * time.Second
)

type Config struct {
	Port        string
	Env         string
	DatabaseURL string

	Redis RedisConfig

	JWTSecret       string
	JWTAccessExpiry time.Duration

	// CallWindow is how long a sender waits for responses before every
	// silent recipient is marked unreachable.
	CallWindow time.Duration
	// RingWindow is how long a recipient prompt rings before timing out.
	RingWindow time.Duration
	// RouteTTL bounds how long the hub remembers a call for relaying.
	RouteTTL time.Duration
	// PendingExpiry is the age after which unanswered persisted calls are
	// swept to timeout.
	PendingExpiry time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		Env:         getEnv("ENV", "development"),
		DatabaseURL: getEnv("DATABASE_URL", ""),

		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},

		JWTSecret:       getEnvOrPanic("JWT_SECRET"),
		JWTAccessExpiry: getDuration("JWT_ACCESS_EXPIRY", 12*time.Hour),

		CallWindow:    getDuration("CALL_WINDOW", DefaultCallWindow),
		RingWindow:    getDuration("RING_WINDOW", DefaultRingWindow),
		RouteTTL:      getDuration("ROUTE_TTL", 2*time.Minute),
		PendingExpiry: getDuration("PENDING_EXPIRY", 5*time.Minute),
	}, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Client configures the CLI client core.
type Client struct {
	ServerURL string
	APIURL    string
	Token     string
	LogLevel  string

	CallWindow time.Duration
	RingWindow time.Duration

	ReconnectMin time.Duration
	ReconnectMax time.Duration
	// DedupeWindow is the timestamp tolerance for treating two feed entries
	// with the same source and message as one.
	DedupeWindow time.Duration
	HTTPTimeout  time.Duration
}

func LoadClient() *Client {
	_ = godotenv.Load()

	return &Client{
		ServerURL: getEnv("BLUECODE_SERVER_URL", "ws://localhost:8080/api/v1/ws"),
		APIURL:    getEnv("BLUECODE_API_URL", "http://localhost:8080/api/v1"),
		Token:     getEnv("BLUECODE_TOKEN", ""),
		LogLevel:  getEnv("BLUECODE_LOG_LEVEL", "info"),

		CallWindow: getDuration("BLUECODE_CALL_WINDOW", DefaultCallWindow),
		RingWindow: getDuration("BLUECODE_RING_WINDOW", DefaultRingWindow),

		ReconnectMin: getDuration("BLUECODE_RECONNECT_MIN", time.Second),
		ReconnectMax: getDuration("BLUECODE_RECONNECT_MAX", 5*time.Second),
		DedupeWindow: getDuration("BLUECODE_DEDUPE_WINDOW", 5*time.Second),
		HTTPTimeout:  getDuration("BLUECODE_HTTP_TIMEOUT", 10*time.Second),
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback.String()))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func getEnvOrPanic(key string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		panic("required environment variable not set: " + key)
	}
	return value
}
