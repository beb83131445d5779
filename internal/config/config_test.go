package config

import (
	"strings"
	"testing"
	"time"
)

func TestLoad_valid(t *testing.T) {
	cfg, err := Load("testdata/valid.yaml")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Client.BaseURL != "https://api.example.com/v1" {
		t.Errorf("Client.BaseURL = %q", cfg.Client.BaseURL)
	}
	if cfg.Client.Timeout != 10*time.Second {
		t.Errorf("Client.Timeout = %v, want 10s", cfg.Client.Timeout)
	}
	if !cfg.Client.Debug {
		t.Error("Client.Debug = false, want true")
	}
	if cfg.Client.TieBreak != "first_match" {
		t.Errorf("Client.TieBreak = %q", cfg.Client.TieBreak)
	}
	if cfg.Client.Headers["X-Client"] != "callwire-test" {
		t.Errorf("Client.Headers = %v", cfg.Client.Headers)
	}
	if cfg.Client.CircuitBreaker.FailureThreshold != 3 {
		t.Errorf("CircuitBreaker.FailureThreshold = %d, want 3", cfg.Client.CircuitBreaker.FailureThreshold)
	}
	if cfg.Client.Auth.JWT.TTL != 2*time.Minute {
		t.Errorf("Auth.JWT.TTL = %v, want 2m", cfg.Client.Auth.JWT.TTL)
	}
	if len(cfg.Descriptors.Files) != 1 || len(cfg.Descriptors.OpenAPI) != 1 {
		t.Errorf("Descriptors = %+v", cfg.Descriptors)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.Observability.LogLevel)
	}
	// Untouched fields keep their defaults.
	if !cfg.Observability.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want default true")
	}
}

func TestLoad_missing_file(t *testing.T) {
	_, err := Load("testdata/nonexistent.yaml")
	if err == nil {
		t.Fatal("Load() with missing file should return error")
	}
}

func TestLoad_invalid(t *testing.T) {
	_, err := Load("testdata/invalid.yaml")
	if err == nil {
		t.Fatal("Load() with invalid config should return error")
	}
	for _, want := range []string{"client.base_url", "client.decoder", "client.tie_break", "client.auth.token"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestLoad_empty_path(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Client.Timeout != 30*time.Second {
		t.Errorf("Client.Timeout = %v, want default 30s", cfg.Client.Timeout)
	}
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.Client.Decoder != "json" {
		t.Errorf("default Decoder = %q, want json", cfg.Client.Decoder)
	}
	if cfg.Client.TieBreak != "reject" {
		t.Errorf("default TieBreak = %q, want reject", cfg.Client.TieBreak)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults().Validate() error = %v", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CALLWIRE_BASE_URL", "http://localhost:9000")
	t.Setenv("CALLWIRE_TIMEOUT", "3s")
	t.Setenv("CALLWIRE_DEBUG", "true")
	t.Setenv("CALLWIRE_AUTH_TOKEN", "secret")
	t.Setenv("CALLWIRE_LOG_LEVEL", "warn")
	t.Setenv("CALLWIRE_LOG_FORMAT", "console")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Client.BaseURL != "http://localhost:9000" {
		t.Errorf("BaseURL = %q", cfg.Client.BaseURL)
	}
	if cfg.Client.Timeout != 3*time.Second {
		t.Errorf("Timeout = %v, want 3s", cfg.Client.Timeout)
	}
	if !cfg.Client.Debug {
		t.Error("Debug = false, want true")
	}
	if cfg.Client.Auth.Strategy != "bearer" || cfg.Client.Auth.Token != "secret" {
		t.Errorf("Auth = %+v", cfg.Client.Auth)
	}
	if cfg.Observability.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want warn", cfg.Observability.LogLevel)
	}
	if cfg.Observability.LogFormat != "console" {
		t.Errorf("LogFormat = %q, want console", cfg.Observability.LogFormat)
	}
}

func TestValidate_logFormat(t *testing.T) {
	cfg := Defaults()
	cfg.Observability.LogFormat = "logfmt"
	if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), "log_format") {
		t.Errorf("Validate() error = %v, want log_format error", err)
	}
}

func TestValidate_circuitBreaker(t *testing.T) {
	cfg := Defaults()
	cfg.Client.CircuitBreaker.FailureThreshold = 0
	cfg.Client.CircuitBreaker.Timeout = 0
	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() should fail")
	}
	if !strings.Contains(err.Error(), "failure_threshold") || !strings.Contains(err.Error(), "circuit_breaker.timeout") {
		t.Errorf("error = %v", err)
	}

	cfg.Client.CircuitBreaker.Enabled = false
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled breaker Validate() error = %v", err)
	}
}
