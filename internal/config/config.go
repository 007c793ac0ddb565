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
	HTTPAddr string
	LogLevel string
	RedisDSN string

	// session cookie signing + at-rest encryption of stored client secrets
	SessionSecret string
	SessionTTL    time.Duration

	// upstream Rollout endpoints
	PlatformAPIBase string
	CRMAPIBase      string

	// fallback client credentials used when a session has none of its own;
	// never log the secret
	DefaultClientID     string
	DefaultClientSecret string
	DefaultConsumerKey  string
	TokenTTL            time.Duration

	// aggregation bounds
	PersonRecordsLimit   int
	MaxPaginatedRequests int

	CORSOrigins []string
}

func Load() (Config, error) {
	// best effort; a missing .env is fine
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:            getenvDefault("HTTP_ADDR", ":5174"),
		LogLevel:            getenvDefault("LOG_LEVEL", "info"),
		RedisDSN:            getenvDefault("REDIS_DSN", "redis://localhost:6379/0"),
		SessionSecret:       getenvDefault("SESSION_SECRET", "rollout-demo-secret"),
		PlatformAPIBase:     getenvDefault("ROLLOUT_API_BASE", "https://universal.rollout.com/api"),
		CRMAPIBase:          getenvDefault("ROLLOUT_CRM_API_BASE", "https://crm.universal.rollout.com/api"),
		DefaultClientID:     strings.TrimSpace(os.Getenv("ROLLOUT_CLIENT_ID")),
		DefaultClientSecret: strings.TrimSpace(os.Getenv("ROLLOUT_CLIENT_SECRET")),
		DefaultConsumerKey:  getenvDefault("ROLLOUT_CONSUMER_KEY", "demo-consumer"),
	}

	cfg.SessionTTL = time.Duration(getenvInt("SESSION_TTL_SECS", 12*60*60)) * time.Second
	cfg.TokenTTL = time.Duration(getenvInt("ROLLOUT_TOKEN_TTL_SECS", 60*60)) * time.Second
	cfg.PersonRecordsLimit = getenvInt("PERSON_RECORDS_LIMIT", 25)
	cfg.MaxPaginatedRequests = getenvInt("MAX_PAGINATED_REQUESTS", 5)

	if cfg.PersonRecordsLimit < 1 {
		return Config{}, errors.New("PERSON_RECORDS_LIMIT must be >= 1")
	}
	if cfg.MaxPaginatedRequests < 1 {
		return Config{}, errors.New("MAX_PAGINATED_REQUESTS must be >= 1")
	}
	if strings.TrimSpace(cfg.SessionSecret) == "" {
		return Config{}, errors.New("missing SESSION_SECRET")
	}

	// parse CORS origins
	corsOrigins := getenvDefault("ALLOWED_ORIGINS", "")
	if corsOrigins != "" {
		cfg.CORSOrigins = strings.Split(corsOrigins, ",")
		for i := range cfg.CORSOrigins {
			cfg.CORSOrigins[i] = strings.TrimSpace(cfg.CORSOrigins[i])
		}
	} else {
		cfg.CORSOrigins = []string{"http://localhost:5173"} // default
	}

	return cfg, nil
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	return v
}

func getenvInt(k string, def int) int {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
