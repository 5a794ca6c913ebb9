// Package config builds service configuration from environment variables so
// main stays lean. Values have development defaults; production is expected
// to override them.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Gateway captures configuration for the edge gateway process.
type Gateway struct {
	Addr             string
	UserServiceURL   string
	EventsServiceURL string
	JWTAlgorithm     string
	KeyFetchInterval time.Duration
	ProxyTimeout     time.Duration
	ShutdownTimeout  time.Duration
	CORSOrigins      []string
	RateLimit        int
	RateLimitWindow  time.Duration
	RateLimitOff     bool
	RedisURL         string
}

// Events captures configuration for the realtime events process.
type Events struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// GatewayFromEnv builds a Gateway config from environment variables.
func GatewayFromEnv() Gateway {
	return Gateway{
		Addr:             envOr("GATEWAY_ADDR", ":3000"),
		UserServiceURL:   envOr("USER_SERVICE_URL", "http://localhost:3001"),
		EventsServiceURL: envOr("EVENTS_SERVICE_URL", "http://localhost:4000"),
		JWTAlgorithm:     envOr("JWT_ALGORITHM", "RS256"),
		KeyFetchInterval: durationOr("KEY_FETCH_INTERVAL", 5*time.Second),
		ProxyTimeout:     durationOr("PROXY_TIMEOUT", 30*time.Second),
		ShutdownTimeout:  durationOr("SHUTDOWN_TIMEOUT", 10*time.Second),
		CORSOrigins:      listOr("CORS_ORIGINS", []string{"http://localhost:3002"}),
		RateLimit:        intOr("RATE_LIMIT", 100),
		RateLimitWindow:  durationOr("RATE_LIMIT_WINDOW", 15*time.Minute),
		RateLimitOff:     os.Getenv("RATE_LIMIT_DISABLED") == "true",
		RedisURL:         os.Getenv("REDIS_URL"),
	}
}

// EventsFromEnv builds an Events config from environment variables.
func EventsFromEnv() Events {
	return Events{
		Addr:            envOr("EVENTS_ADDR", ":4000"),
		ShutdownTimeout: durationOr("SHUTDOWN_TIMEOUT", 10*time.Second),
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func intOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func listOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
