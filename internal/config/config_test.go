package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "test")
	t.Setenv("APP_URL", "https://desk.example.com/")
	t.Setenv("ATTACHMENT_ALLOWED_MIME_TYPES", " image/png, ,text/plain ")
	t.Setenv("AUTH_BCRYPT_COST", "not-a-number")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Notification.AppURL != "https://desk.example.com" {
		t.Errorf("AppURL = %q, trailing slash should be trimmed", cfg.Notification.AppURL)
	}
	if got := cfg.Attachment.AllowedMimeTypes; len(got) != 2 || got[0] != "image/png" || got[1] != "text/plain" {
		t.Errorf("AllowedMimeTypes = %v", got)
	}
	if cfg.Auth.BcryptCost != 12 {
		t.Errorf("unparsable cost should fall back to 12, got %d", cfg.Auth.BcryptCost)
	}
	if cfg.Logger.Development {
		t.Errorf("only APP_ENV=development enables development logging")
	}
}

func TestLoadRejectsBadRedisDB(t *testing.T) {
	t.Setenv("REDIS_DB", "first")
	if _, err := Load(); err == nil {
		t.Fatal("expected an error for a non-numeric REDIS_DB")
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			App:        AppConfig{Env: "production"},
			Auth:       AuthConfig{JWTSecret: "s3cret", AccessTokenTTLMinutes: 60},
			Attachment: AttachmentConfig{MaxBytes: DefaultAttachmentMaxBytes},
		}
	}
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"zero ttl", func(c *Config) { c.Auth.AccessTokenTTLMinutes = 0 }, true},
		{"dev secret in production", func(c *Config) { c.Auth.JWTSecret = "dev-secret" }, true},
		{"dev secret outside production", func(c *Config) { c.Auth.JWTSecret = "dev-secret"; c.App.Env = "staging" }, false},
		{"no attachment budget", func(c *Config) { c.Attachment.MaxBytes = 0 }, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(&cfg)
			if err := cfg.Validate(); (err != nil) != tc.wantErr {
				t.Fatalf("Validate() = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestDurations(t *testing.T) {
	if got := (AppConfig{RequestTimeoutSeconds: -1}).RequestTimeout(); got != 0 {
		t.Errorf("negative timeout should disable, got %s", got)
	}
	if got := (AppConfig{RequestTimeoutSeconds: 5}).RequestTimeout(); got != 5*time.Second {
		t.Errorf("RequestTimeout = %s", got)
	}
	if got := (AuthConfig{AccessTokenTTLMinutes: 90}).AccessTokenTTL(); got != 90*time.Minute {
		t.Errorf("AccessTokenTTL = %s", got)
	}
	if got := (AppConfig{Host: "127.0.0.1", Port: "9000"}).Addr(); got != "127.0.0.1:9000" {
		t.Errorf("Addr = %s", got)
	}
}
