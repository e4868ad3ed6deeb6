package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// OAuthClient is one provider's client registration.
type OAuthClient struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// RateLimitPolicy configures one named fixed-window limiter.
type RateLimitPolicy struct {
	Window time.Duration
	Max    int
}

// Config contains runtime configuration values.
type Config struct {
	Environment string
	HTTPPort    string
	ServiceName string

	DatabaseURL  string
	StateBackend string // "postgres" or "redis"

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// CredentialsKey is the 32-byte at-rest encryption key, hex-64 or
	// base64. Validated lazily by the credentials codec, not here, so
	// deployments without integrations can boot without it.
	CredentialsKey string

	// SessionJWTSecret verifies the identity provider's HS256 session
	// tokens. User authentication itself happens upstream.
	SessionJWTSecret string

	AppBaseURL    string
	OAuthStateTTL time.Duration

	GitHub OAuthClient
	Jira   OAuthClient
	Linear OAuthClient

	RateLimitAPI    RateLimitPolicy
	RateLimitAuth   RateLimitPolicy
	RateLimitPublic RateLimitPolicy

	TrackerRequestsPerSecond float64

	TelemetryEndpoint string
	TelemetryInsecure bool

	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
}

// Load reads configuration from environment variables with sane defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Environment:  getEnv("APP_ENV", "development"),
		HTTPPort:     getEnv("HTTP_PORT", "8080"),
		ServiceName:  getEnv("SERVICE_NAME", "releasenote-integrations"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		StateBackend: strings.ToLower(getEnv("STATE_BACKEND", "postgres")),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getInt("REDIS_DB", 0),

		CredentialsKey:   os.Getenv("CREDENTIALS_ENCRYPTION_KEY"),
		SessionJWTSecret: os.Getenv("SESSION_JWT_SECRET"),

		AppBaseURL:    getEnv("APP_BASE_URL", "http://localhost:3000"),
		OAuthStateTTL: getDuration("OAUTH_STATE_TTL", 10*time.Minute),

		GitHub: loadOAuthClient("GITHUB"),
		Jira:   loadOAuthClient("JIRA"),
		Linear: loadOAuthClient("LINEAR"),

		RateLimitAPI: RateLimitPolicy{
			Window: getDuration("RATE_LIMIT_API_WINDOW", time.Minute),
			Max:    getInt("RATE_LIMIT_API_MAX", 120),
		},
		RateLimitAuth: RateLimitPolicy{
			Window: getDuration("RATE_LIMIT_AUTH_WINDOW", 15*time.Minute),
			Max:    getInt("RATE_LIMIT_AUTH_MAX", 10),
		},
		RateLimitPublic: RateLimitPolicy{
			Window: getDuration("RATE_LIMIT_PUBLIC_WINDOW", time.Minute),
			Max:    getInt("RATE_LIMIT_PUBLIC_MAX", 60),
		},

		TrackerRequestsPerSecond: getFloat("TRACKER_RPS", 5),

		TelemetryEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		TelemetryInsecure: getBool("OTEL_EXPORTER_OTLP_INSECURE", true),

		CORSAllowedOrigins:   getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		CORSAllowedMethods:   getList("CORS_ALLOWED_METHODS", []string{"GET", "POST", "DELETE", "OPTIONS"}),
		CORSAllowedHeaders:   getList("CORS_ALLOWED_HEADERS", []string{"Authorization", "Content-Type"}),
		CORSAllowCredentials: getBool("CORS_ALLOW_CREDENTIALS", false),
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.SessionJWTSecret == "" {
		return Config{}, fmt.Errorf("SESSION_JWT_SECRET is required")
	}
	if cfg.StateBackend != "postgres" && cfg.StateBackend != "redis" {
		return Config{}, fmt.Errorf("STATE_BACKEND must be postgres or redis")
	}

	return cfg, nil
}

func loadOAuthClient(prefix string) OAuthClient {
	return OAuthClient{
		ClientID:     strings.TrimSpace(os.Getenv(prefix + "_CLIENT_ID")),
		ClientSecret: os.Getenv(prefix + "_CLIENT_SECRET"),
		RedirectURI:  strings.TrimSpace(os.Getenv(prefix + "_REDIRECT_URI")),
	}
}

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		d, err := time.ParseDuration(v)
		if err == nil {
			return d
		}
	}
	return def
}

func getInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getFloat(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			return f
		}
	}
	return def
}

func getBool(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		switch strings.ToLower(v) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return def
}

func getList(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok {
		parts := strings.Split(v, ",")
		var cleaned []string
		for _, p := range parts {
			trimmed := strings.TrimSpace(p)
			if trimmed != "" {
				cleaned = append(cleaned, trimmed)
			}
		}
		if len(cleaned) > 0 {
			return cleaned
		}
	}
	return def
}
