package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func setGDrive(t *testing.T) {
	t.Helper()
	t.Chdir(t.TempDir()) // keep any developer .env out of the test
	t.Setenv("PROVIDER", "gdrive")
	t.Setenv("ROOT_FOLDER_ID", "1bB6-3-q62cn2mfRZ9pfMl72M75_yZMp1")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", `{"type":"service_account"}`)
}

func TestLoadDefaults(t *testing.T) {
	setGDrive(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.MetricsAddr != ":9090" {
		t.Errorf("addrs = %q %q", cfg.ListenAddr, cfg.MetricsAddr)
	}
	if cfg.ProxyThreshold != 9437184 {
		t.Errorf("ProxyThreshold = %d", cfg.ProxyThreshold)
	}
	if cfg.SearchLimit != 10 || cfg.FolderCacheMaxAge != 3600 {
		t.Errorf("SearchLimit=%d FolderCacheMaxAge=%d", cfg.SearchLimit, cfg.FolderCacheMaxAge)
	}
	if cfg.RateLimitStrategy != "window" || cfg.RateLimitRequests != 30 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("rate limit = %s %d %v", cfg.RateLimitStrategy, cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "*" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.TLSEnabled() {
		t.Error("TLS should be off by default")
	}
}

func TestLoadOverrides(t *testing.T) {
	setGDrive(t)
	t.Setenv("PROXY_THRESHOLD_BYTES", "1048576")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("RATE_LIMIT_STRATEGY", "TOKEN")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProxyThreshold != 1048576 {
		t.Errorf("ProxyThreshold = %d", cfg.ProxyThreshold)
	}
	if cfg.RateLimitWindow != 30*time.Second {
		t.Errorf("RateLimitWindow = %v", cfg.RateLimitWindow)
	}
	if strings.Join(cfg.AllowedOrigins, "|") != "https://a.example|https://b.example" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
	if cfg.RateLimitStrategy != "token" {
		t.Errorf("RateLimitStrategy = %q", cfg.RateLimitStrategy)
	}
}

func TestLoadServiceAccountFile(t *testing.T) {
	setGDrive(t)
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	path := filepath.Join(t.TempDir(), "sa.json")
	if err := os.WriteFile(path, []byte(`{"type":"service_account"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if string(cfg.GoogleServiceAccountJSON) != `{"type":"service_account"}` {
		t.Errorf("credentials = %s", cfg.GoogleServiceAccountJSON)
	}

	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", filepath.Join(t.TempDir(), "missing.json"))
	if _, err := Load(); !errors.Is(err, ErrConfiguration) {
		t.Errorf("missing file: err = %v", err)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantMsg string
	}{
		{"missing credentials", map[string]string{"GOOGLE_SERVICE_ACCOUNT_JSON": ""}, "GOOGLE_SERVICE_ACCOUNT_JSON is required"},
		{"missing root", map[string]string{"ROOT_FOLDER_ID": ""}, "ROOT_FOLDER_ID is required"},
		{"bad root", map[string]string{"ROOT_FOLDER_ID": "../root"}, "ROOT_FOLDER_ID must contain"},
		{"bad provider", map[string]string{"PROVIDER": "dropbox"}, "PROVIDER must be one of"},
		{"bad strategy", map[string]string{"RATE_LIMIT_STRATEGY": "leaky"}, "RATE_LIMIT_STRATEGY"},
		{"zero threshold", map[string]string{"PROXY_THRESHOLD_BYTES": "0"}, "PROXY_THRESHOLD_BYTES"},
		{"cert without key", map[string]string{"TLS_CERT_FILE": "cert.pem"}, "TLS_KEY_FILE is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setGDrive(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if !errors.Is(err, ErrConfiguration) {
				t.Fatalf("err = %v, want ErrConfiguration", err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("err = %q, want it to mention %q", err, tt.wantMsg)
			}
		})
	}
}

func TestLoadS3(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("PROVIDER", "s3")
	t.Setenv("ROOT_FOLDER_ID", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("S3_ROOT_PREFIX", "notes/")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.S3Bucket != "notehub" || cfg.S3RootPrefix != "notes/" || cfg.S3PresignTTL != 15*time.Minute {
		t.Errorf("s3 config = %+v", cfg)
	}
}

func TestLoadDotEnv(t *testing.T) {
	setGDrive(t)
	// godotenv never overrides variables that are already set.
	t.Setenv("SEARCH_LIMIT", "")
	os.Unsetenv("SEARCH_LIMIT")
	if err := os.WriteFile(".env", []byte("SEARCH_LIMIT=25\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SearchLimit != 25 {
		t.Errorf("SearchLimit = %d, want 25 from .env", cfg.SearchLimit)
	}
}
