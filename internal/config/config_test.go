package config

import (
	"testing"
	"time"
)

func TestLoad_ReportsMissingRequired(t *testing.T) {
	// Ensure a clean env by not setting anything and calling validation directly.
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_ProductionRequiresSSLMode(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "production", Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer", SSLMode: ""},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret"},
		Gateway: GatewayConfig{BaseURL: "http://gw.local", CallerID: "+15550000001", WebhookSecret: "s"},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without DB_SSLMODE")
	}
}

func TestValidate_LocalDefaults(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "local", Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer", SSLMode: ""},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret"},
		Gateway: GatewayConfig{BaseURL: "http://gw.local", CallerID: "+15550000001"},
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.Dialer.RetryBackoffBase != 5*time.Minute {
		t.Fatalf("expected backoff base default 5m, got %v", c.Dialer.RetryBackoffBase)
	}
	if c.Dialer.RetryBackoffCap != 24*time.Hour {
		t.Fatalf("expected backoff cap default 24h, got %v", c.Dialer.RetryBackoffCap)
	}
	if c.Dialer.MaxAttempts != 5 {
		t.Fatalf("expected max attempts default 5, got %d", c.Dialer.MaxAttempts)
	}
	if c.Dialer.MaxConcurrentCalls != 1 {
		t.Fatalf("expected max concurrent calls default 1, got %d", c.Dialer.MaxConcurrentCalls)
	}
}

func TestValidate_RejectsInvertedPullIntervals(t *testing.T) {
	c := Config{
		App:     AppConfig{Env: "local", Port: 8080},
		DB:      DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "dialer"},
		Redis:   RedisConfig{Host: "localhost", Port: 6379},
		Auth:    AuthConfig{JWTSecret: "secret"},
		Gateway: GatewayConfig{BaseURL: "http://gw.local", CallerID: "+15550000001"},
		Dialer: DialerConfig{
			PullMinInterval: 10 * time.Second,
			PullMaxInterval: 2 * time.Second,
		},
	}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for inverted pull intervals")
	}
}
