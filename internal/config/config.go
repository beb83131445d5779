// Package config loads and validates callwire configuration from YAML files
// and environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration.
type Config struct {
	Client        ClientConfig        `yaml:"client"`
	Descriptors   DescriptorsConfig   `yaml:"descriptors"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ClientConfig describes the dispatcher and its default HTTP transport.
type ClientConfig struct {
	BaseURL        string               `yaml:"base_url"`
	Timeout        time.Duration        `yaml:"timeout"`
	Debug          bool                 `yaml:"debug"`
	Decoder        string               `yaml:"decoder"`
	TieBreak       string               `yaml:"tie_break"`
	EagerValidate  bool                 `yaml:"eager_validate"`
	Headers        map[string]string    `yaml:"headers"`
	RedactFields   []string             `yaml:"redact_fields"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	Auth           AuthConfig           `yaml:"auth"`
}

// CircuitBreakerConfig describes the per-host circuit breaker.
type CircuitBreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
}

// AuthConfig describes how outbound requests are authenticated.
type AuthConfig struct {
	// Strategy is "none", "bearer" (static token) or "jwt" (signed per request).
	Strategy string    `yaml:"strategy"`
	Token    string    `yaml:"token"`
	JWT      JWTConfig `yaml:"jwt"`
}

// JWTConfig describes HMAC-signed service tokens.
type JWTConfig struct {
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	Subject   string        `yaml:"subject"`
	SecretEnv string        `yaml:"secret_env"`
	TTL       time.Duration `yaml:"ttl"`
}

// DescriptorsConfig lists descriptor table sources.
type DescriptorsConfig struct {
	Files   []string        `yaml:"files"`
	OpenAPI []OpenAPISource `yaml:"openapi"`
}

// OpenAPISource maps an interface name to an OpenAPI document.
type OpenAPISource struct {
	Interface string `yaml:"interface"`
	SpecFile  string `yaml:"spec_file"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel  string        `yaml:"log_level"`
	LogFormat string        `yaml:"log_format"` // json or console
	Tracing   TracingConfig `yaml:"tracing"`
	Metrics   MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Client: ClientConfig{
			Timeout:  30 * time.Second,
			Decoder:  "json",
			TieBreak: "reject",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          30 * time.Second,
			},
			Auth: AuthConfig{
				Strategy: "none",
				JWT: JWTConfig{
					SecretEnv: "CALLWIRE_JWT_SECRET",
					TTL:       5 * time.Minute,
				},
			},
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all fields are present and consistent.
func (c *Config) Validate() error {
	var errs []error

	if c.Client.BaseURL != "" {
		u, err := url.Parse(c.Client.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("client.base_url %q must be an absolute URL", c.Client.BaseURL))
		}
	}
	if c.Client.Timeout < 0 {
		errs = append(errs, errors.New("client.timeout must not be negative"))
	}
	switch strings.ToLower(c.Client.Decoder) {
	case "", "json", "yaml", "form", "auto":
	default:
		errs = append(errs, fmt.Errorf("client.decoder %q is not one of json, yaml, form, auto", c.Client.Decoder))
	}
	switch strings.ToLower(c.Client.TieBreak) {
	case "", "reject", "first_match", "first-match", "first":
	default:
		errs = append(errs, fmt.Errorf("client.tie_break %q is not one of reject, first_match", c.Client.TieBreak))
	}

	cb := c.Client.CircuitBreaker
	if cb.Enabled {
		if cb.FailureThreshold < 1 {
			errs = append(errs, errors.New("client.circuit_breaker.failure_threshold must be at least 1"))
		}
		if cb.SuccessThreshold < 1 {
			errs = append(errs, errors.New("client.circuit_breaker.success_threshold must be at least 1"))
		}
		if cb.Timeout <= 0 {
			errs = append(errs, errors.New("client.circuit_breaker.timeout must be positive"))
		}
	}

	switch c.Client.Auth.Strategy {
	case "", "none":
	case "bearer":
		if c.Client.Auth.Token == "" {
			errs = append(errs, errors.New("client.auth.token is required for the bearer strategy"))
		}
	case "jwt":
		if c.Client.Auth.JWT.SecretEnv == "" {
			errs = append(errs, errors.New("client.auth.jwt.secret_env is required for the jwt strategy"))
		}
		if c.Client.Auth.JWT.TTL <= 0 {
			errs = append(errs, errors.New("client.auth.jwt.ttl must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("client.auth.strategy %q is not one of none, bearer, jwt", c.Client.Auth.Strategy))
	}

	for i, src := range c.Descriptors.OpenAPI {
		if src.Interface == "" || src.SpecFile == "" {
			errs = append(errs, fmt.Errorf("descriptors.openapi[%d] requires interface and spec_file", i))
		}
	}

	switch c.Observability.LogFormat {
	case "", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("observability.log_format %q is not one of json, console", c.Observability.LogFormat))
	}
	if r := c.Observability.Tracing.SamplingRate; r < 0 || r > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing.sampling_rate %v must be between 0 and 1", r))
	}

	return errors.Join(errs...)
}

// applyEnvOverrides reads CALLWIRE_* environment variables and overrides
// config values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CALLWIRE_BASE_URL"); v != "" {
		cfg.Client.BaseURL = v
	}
	if v := os.Getenv("CALLWIRE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Client.Timeout = d
		}
	}
	if v := os.Getenv("CALLWIRE_DEBUG"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Client.Debug = b
		}
	}
	if v := os.Getenv("CALLWIRE_DECODER"); v != "" {
		cfg.Client.Decoder = v
	}
	if v := os.Getenv("CALLWIRE_AUTH_TOKEN"); v != "" {
		cfg.Client.Auth.Token = v
		if cfg.Client.Auth.Strategy == "" || cfg.Client.Auth.Strategy == "none" {
			cfg.Client.Auth.Strategy = "bearer"
		}
	}
	if v := os.Getenv("CALLWIRE_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("CALLWIRE_LOG_FORMAT"); v != "" {
		cfg.Observability.LogFormat = v
	}
}
