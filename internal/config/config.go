// Package config loads configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ErrConfiguration is returned when the environment cannot produce a usable
// configuration.
var ErrConfiguration = errors.New("configuration error")

var idPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Config holds all server configuration.
type Config struct {
	// Server
	ListenAddr  string `env:"LISTEN_ADDR" validate:"required"`
	MetricsAddr string `env:"METRICS_ADDR"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" validate:"oneof=debug info warn error"`
	LogFormat string `env:"LOG_FORMAT" validate:"oneof=json console"`

	// Storage provider ("gdrive" or "s3")
	Provider     string `env:"PROVIDER" validate:"oneof=gdrive s3"`
	RootFolderID string `env:"ROOT_FOLDER_ID" validate:"required_if=Provider gdrive"`

	// Google Drive service account
	GoogleServiceAccountJSON []byte `env:"GOOGLE_SERVICE_ACCOUNT_JSON" validate:"required_if=Provider gdrive"`

	// S3 storage
	S3Endpoint   string        `env:"S3_ENDPOINT" validate:"omitempty,url"`
	S3Bucket     string        `env:"S3_BUCKET" validate:"required_if=Provider s3"`
	S3AccessKey  string        `env:"S3_ACCESS_KEY"`
	S3SecretKey  string        `env:"S3_SECRET_KEY"`
	S3Region     string        `env:"S3_REGION"`
	S3RootPrefix string        `env:"S3_ROOT_PREFIX"`
	S3PresignTTL time.Duration `env:"S3_PRESIGN_TTL" validate:"gt=0"`

	// Serving
	ProxyThreshold      int64    `env:"PROXY_THRESHOLD_BYTES" validate:"gt=0"`
	SearchLimit         int      `env:"SEARCH_LIMIT" validate:"min=1,max=100"`
	FolderCacheMaxAge   int      `env:"FOLDER_CACHE_MAX_AGE" validate:"gte=0"`
	AllowedOrigins      []string `env:"ALLOWED_ORIGINS" validate:"min=1"`
	UpstreamMaxAttempts int      `env:"UPSTREAM_MAX_ATTEMPTS" validate:"min=1,max=10"`

	// Rate limiting ("window" or "token"); 0 requests disables it.
	RateLimitStrategy string        `env:"RATE_LIMIT_STRATEGY" validate:"oneof=window token"`
	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" validate:"gte=0"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" validate:"gt=0"`

	// TLS (optional; if both set, server uses HTTPS)
	TLSCertFile string `env:"TLS_CERT_FILE" validate:"required_with=TLSKeyFile"`
	TLSKeyFile  string `env:"TLS_KEY_FILE" validate:"required_with=TLSCertFile"`

	// Static assets directory; empty serves the embedded web app.
	WebappDir string `env:"WEBAPP_DIR"`
}

// TLSEnabled reports whether the server should listen with TLS.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}

// Load reads configuration from environment variables with defaults.
// A .env file in the working directory is applied first when present;
// variables already set in the environment win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:          envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr:         envOr("METRICS_ADDR", ":9090"),
		LogLevel:            envOr("LOG_LEVEL", "info"),
		LogFormat:           envOr("LOG_FORMAT", "json"),
		Provider:            strings.ToLower(envOr("PROVIDER", "gdrive")),
		RootFolderID:        envOr("ROOT_FOLDER_ID", ""),
		S3Endpoint:          envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:            envOr("S3_BUCKET", "notehub"),
		S3AccessKey:         envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey:         envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:            envOr("S3_REGION", "us-east-1"),
		S3RootPrefix:        envOr("S3_ROOT_PREFIX", ""),
		S3PresignTTL:        envDuration("S3_PRESIGN_TTL", 15*time.Minute),
		ProxyThreshold:      envInt64("PROXY_THRESHOLD_BYTES", 9*1024*1024),
		SearchLimit:         envInt("SEARCH_LIMIT", 10),
		FolderCacheMaxAge:   envInt("FOLDER_CACHE_MAX_AGE", 3600),
		AllowedOrigins:      envList("ALLOWED_ORIGINS", []string{"*"}),
		UpstreamMaxAttempts: envInt("UPSTREAM_MAX_ATTEMPTS", 3),
		RateLimitStrategy:   strings.ToLower(envOr("RATE_LIMIT_STRATEGY", "window")),
		RateLimitRequests:   envInt("RATE_LIMIT_REQUESTS", 30),
		RateLimitWindow:     envDuration("RATE_LIMIT_WINDOW", time.Minute),
		TLSCertFile:         envOr("TLS_CERT_FILE", ""),
		TLSKeyFile:          envOr("TLS_KEY_FILE", ""),
		WebappDir:           envOr("WEBAPP_DIR", ""),
	}

	creds, err := serviceAccountJSON()
	if err != nil {
		return nil, err
	}
	cfg.GoogleServiceAccountJSON = creds

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("env"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// Validate checks cfg and reports every problem found.
func (c *Config) Validate() error {
	var problems []string

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		for _, fe := range verrs {
			problems = append(problems, describe(fe))
		}
	}

	if c.Provider == "gdrive" && c.RootFolderID != "" && !idPattern.MatchString(c.RootFolderID) {
		problems = append(problems, "ROOT_FOLDER_ID must contain only letters, digits, '-' and '_'")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrConfiguration, strings.Join(problems, "; "))
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if":
		return fe.Field() + " is required"
	case "required_with":
		return fe.Field() + " is required when " + fe.Param() + " is set"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	default:
		if fe.Param() != "" {
			return fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param())
		}
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// serviceAccountJSON returns the inline credentials, or the contents of
// GOOGLE_SERVICE_ACCOUNT_FILE.
func serviceAccountJSON() ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON")); v != "" {
		return []byte(v), nil
	}
	path := os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE")
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read GOOGLE_SERVICE_ACCOUNT_FILE: %v", ErrConfiguration, err)
	}
	return data, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func envInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
