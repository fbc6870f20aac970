package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultPort            = "8080"
	defaultFrontendURL     = "http://localhost:5000"
	defaultAppTitle        = "AWAKE Chatbot"
	defaultDatabaseURL     = "file:chat.db"
	defaultOpenRouterURL   = "https://openrouter.ai/api/v1"
	defaultSerpURL         = "https://serpapi.com"
	defaultUploadDir       = "/tmp/awake-uploads"
	defaultGCSUploadPrefix = "chat-uploads"
	defaultRateLimitWindow = 60
	defaultRateLimitMax    = 30
	defaultMaxUploadBytes  = 5 * 1024 * 1024
	defaultMaxMessageChars = 50_000
)

type Config struct {
	Port                     string
	Environment              string
	FrontendURL              string
	AllowedOrigins           []string
	AppTitle                 string
	AuthRequired             bool
	GoogleClientID           string
	InsecureSkipGoogleVerify bool
	TursoDatabaseURL         string
	TursoAuthToken           string
	OpenRouterAPIKey         string
	OpenRouterBaseURL        string
	SerpAPIKey               string
	SerpBaseURL              string
	RateLimitWindow          time.Duration
	RateLimitMax             int
	MaxMessageChars          int
	MaxUploadBytes           int64
	LocalUploadDir           string
	GCSBucket                string
	GCSUploadPrefix          string
}

func (c Config) ListenAddress() string {
	return fmt.Sprintf(":%s", c.Port)
}

func Load() (Config, error) {
	cfg := Config{
		Port:                     envOrDefault("PORT", defaultPort),
		Environment:              envOrDefault("APP_ENV", "development"),
		FrontendURL:              envOrDefault("FRONTEND_URL", defaultFrontendURL),
		AppTitle:                 envOrDefault("APP_TITLE", defaultAppTitle),
		AuthRequired:             boolOrDefault("AUTH_REQUIRED", false),
		GoogleClientID:           strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		InsecureSkipGoogleVerify: boolOrDefault("AUTH_INSECURE_SKIP_GOOGLE_VERIFY", false),
		TursoDatabaseURL:         envOrDefault("TURSO_DATABASE_URL", defaultDatabaseURL),
		TursoAuthToken:           strings.TrimSpace(os.Getenv("TURSO_AUTH_TOKEN")),
		OpenRouterAPIKey:         strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
		OpenRouterBaseURL:        envOrDefault("OPENROUTER_BASE_URL", defaultOpenRouterURL),
		SerpAPIKey:               strings.TrimSpace(os.Getenv("SERP_API_KEY")),
		SerpBaseURL:              envOrDefault("SERP_BASE_URL", defaultSerpURL),
		RateLimitMax:             intOrDefault("RATE_LIMIT_MAX_REQUESTS", defaultRateLimitMax),
		MaxMessageChars:          intOrDefault("MAX_MESSAGE_CHARS", defaultMaxMessageChars),
		MaxUploadBytes:           int64(intOrDefault("MAX_UPLOAD_BYTES", defaultMaxUploadBytes)),
		LocalUploadDir:           envOrDefault("LOCAL_UPLOAD_DIR", defaultUploadDir),
		GCSBucket:                strings.TrimSpace(os.Getenv("GCS_BUCKET")),
		GCSUploadPrefix:          envOrDefault("GCS_UPLOAD_PREFIX", defaultGCSUploadPrefix),
	}

	windowSeconds := intOrDefault("RATE_LIMIT_WINDOW_SECONDS", defaultRateLimitWindow)
	if windowSeconds <= 0 {
		return Config{}, errors.New("RATE_LIMIT_WINDOW_SECONDS must be > 0")
	}
	cfg.RateLimitWindow = time.Duration(windowSeconds) * time.Second

	if cfg.RateLimitMax <= 0 {
		return Config{}, errors.New("RATE_LIMIT_MAX_REQUESTS must be > 0")
	}
	if cfg.MaxMessageChars <= 0 {
		return Config{}, errors.New("MAX_MESSAGE_CHARS must be > 0")
	}
	if cfg.MaxUploadBytes <= 0 {
		return Config{}, errors.New("MAX_UPLOAD_BYTES must be > 0")
	}

	origins := parseList(envOrDefault("CORS_ALLOWED_ORIGINS", cfg.FrontendURL+",http://localhost:5173"))
	if len(origins) == 0 {
		return Config{}, errors.New("CORS_ALLOWED_ORIGINS must include at least one origin")
	}
	cfg.AllowedOrigins = origins

	if cfg.TursoDatabaseURL == "" {
		return Config{}, errors.New("TURSO_DATABASE_URL is required")
	}
	if strings.HasPrefix(cfg.TursoDatabaseURL, "libsql://") && cfg.TursoAuthToken == "" {
		return Config{}, errors.New("TURSO_AUTH_TOKEN is required for libsql:// URLs")
	}
	if cfg.AuthRequired && !cfg.InsecureSkipGoogleVerify && cfg.GoogleClientID == "" {
		return Config{}, errors.New("GOOGLE_CLIENT_ID is required unless AUTH_INSECURE_SKIP_GOOGLE_VERIFY=true")
	}

	return cfg, nil
}

func envOrDefault(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func boolOrDefault(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func intOrDefault(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func parseList(raw string) []string {
	items := strings.Split(raw, ",")
	out := make([]string, 0, len(items))
	for _, item := range items {
		trimmed := strings.TrimSpace(item)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
