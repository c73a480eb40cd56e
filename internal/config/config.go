// Package config provides configuration loading for launchplan.
//
// Configuration is layered: built-in defaults, an optional .env file, the
// YAML config file and finally environment variables. See LoadWithFile.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the complete launchplan configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	LLM       LLMConfig       `koanf:"llm"`
	Quota     QuotaConfig     `koanf:"quota"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Device    DeviceConfig    `koanf:"device"`
	Auth      AuthConfig      `koanf:"auth"`
	NATS      NATSConfig      `koanf:"nats"`
	Assembler AssemblerConfig `koanf:"assembler"`
	Planner   PlannerConfig   `koanf:"planner"`
	MCP       MCPConfig       `koanf:"mcp"`
	Telemetry TelemetryConfig `koanf:"telemetry"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Host            string   `koanf:"http_host"`
	Port            int      `koanf:"http_port"`
	ShutdownTimeout Duration `koanf:"shutdown_timeout"`
}

// LLM provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderLangchain = "langchain"
	ProviderNoop      = "noop"
)

// LLMConfig selects and configures the chat-completion provider.
type LLMConfig struct {
	Provider          string   `koanf:"provider"`
	APIKey            Secret   `koanf:"api_key"`
	BaseURL           string   `koanf:"base_url"`
	Model             string   `koanf:"model"`
	Timeout           Duration `koanf:"timeout"`
	RequestsPerMinute int      `koanf:"requests_per_minute"`
	Burst             int      `koanf:"burst"`
	MaxRetries        int      `koanf:"max_retries"`
}

// QuotaConfig holds the monthly generation limit of each tier.
type QuotaConfig struct {
	BasicLimit      int `koanf:"basic_limit"`
	ProLimit        int `koanf:"pro_limit"`
	EnterpriseLimit int `koanf:"enterprise_limit"`
}

// PostgresConfig configures the hosted store. An empty DSN selects the
// in-memory stores.
type PostgresConfig struct {
	DSN      Secret `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
	Migrate  bool   `koanf:"migrate"`
}

// DeviceConfig configures the on-device fallback store.
type DeviceConfig struct {
	Path string `koanf:"path"`
}

// AuthConfig configures bearer token verification.
type AuthConfig struct {
	JWTSecret Secret   `koanf:"jwt_secret"`
	Issuer    string   `koanf:"issuer"`
	TokenTTL  Duration `koanf:"token_ttl"`
}

// NATSConfig configures section-arrival events.
type NATSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Embedded bool   `koanf:"embedded"`
	URL      string `koanf:"url"`
	Port     int    `koanf:"port"`
}

// AssemblerConfig bounds the section generators.
type AssemblerConfig struct {
	SectionTimeout       Duration `koanf:"section_timeout"`
	WebsitePromptTimeout Duration `koanf:"website_prompt_timeout"`
}

// PlannerConfig bounds the in-memory generation registry.
type PlannerConfig struct {
	GenerationTTL Duration `koanf:"generation_ttl"`
	MaxSessions   int      `koanf:"max_sessions"`
}

// MCPConfig configures the stdio tool server.
type MCPConfig struct {
	Account string `koanf:"account"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled        bool     `koanf:"enabled"`
	Endpoint       string   `koanf:"endpoint"`
	Protocol       string   `koanf:"protocol"`
	Insecure       bool     `koanf:"insecure"`
	ServiceName    string   `koanf:"service_name"`
	SamplingRate   float64  `koanf:"sampling_rate"`
	MetricsEnabled bool     `koanf:"metrics_enabled"`
	ExportInterval Duration `koanf:"export_interval"`
}

// LoggingConfig holds the logger settings exposed to operators.
type LoggingConfig struct {
	Level    string `koanf:"level"`
	Format   string `koanf:"format"`
	OTEL     bool   `koanf:"otel"`
	Sampling bool   `koanf:"sampling"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8480,
			ShutdownTimeout: Duration(10 * time.Second),
		},
		LLM: LLMConfig{
			Provider:          ProviderOpenAI,
			BaseURL:           "https://api.openai.com",
			Model:             "gpt-4o-mini",
			Timeout:           Duration(60 * time.Second),
			RequestsPerMinute: 50,
			Burst:             5,
			MaxRetries:        3,
		},
		Quota: QuotaConfig{
			BasicLimit:      2,
			ProLimit:        10,
			EnterpriseLimit: 50,
		},
		Postgres: PostgresConfig{
			MaxConns: 25,
			MinConns: 5,
			Migrate:  true,
		},
		Device: DeviceConfig{
			Path: "~/.config/launchplan/device.db",
		},
		Auth: AuthConfig{
			Issuer:   "launchplan",
			TokenTTL: Duration(24 * time.Hour),
		},
		NATS: NATSConfig{
			Enabled:  true,
			Embedded: true,
			Port:     -1,
		},
		Assembler: AssemblerConfig{
			SectionTimeout:       Duration(90 * time.Second),
			WebsitePromptTimeout: Duration(2 * time.Minute),
		},
		Planner: PlannerConfig{
			GenerationTTL: Duration(30 * time.Minute),
			MaxSessions:   1024,
		},
		Telemetry: TelemetryConfig{
			Enabled:        false,
			Endpoint:       "localhost:4317",
			Protocol:       "grpc",
			Insecure:       true,
			ServiceName:    "launchplan",
			SamplingRate:   1.0,
			MetricsEnabled: true,
			ExportInterval: Duration(15 * time.Second),
		},
		Logging: LoggingConfig{
			Level:    "info",
			Format:   "json",
			Sampling: true,
		},
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.http_port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.ShutdownTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("server.shutdown_timeout must be positive"))
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderLangchain, ProviderNoop:
	default:
		errs = append(errs, fmt.Errorf("llm.provider must be one of openai, langchain, noop, got %q", c.LLM.Provider))
	}
	if c.LLM.RequestsPerMinute <= 0 {
		errs = append(errs, errors.New("llm.requests_per_minute must be positive"))
	}
	if c.LLM.MaxRetries < 0 {
		errs = append(errs, errors.New("llm.max_retries cannot be negative"))
	}

	if c.Quota.BasicLimit <= 0 || c.Quota.ProLimit <= 0 || c.Quota.EnterpriseLimit <= 0 {
		errs = append(errs, errors.New("quota limits must be positive"))
	}

	if c.Postgres.MinConns > c.Postgres.MaxConns {
		errs = append(errs, errors.New("postgres.min_conns cannot exceed postgres.max_conns"))
	}

	if c.Device.Path == "" {
		errs = append(errs, errors.New("device.path is required"))
	}

	if c.NATS.Enabled && !c.NATS.Embedded && c.NATS.URL == "" {
		errs = append(errs, errors.New("nats.url is required when nats is enabled and not embedded"))
	}

	if c.Assembler.SectionTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("assembler.section_timeout must be positive"))
	}
	if c.Assembler.WebsitePromptTimeout.Duration() <= 0 {
		errs = append(errs, errors.New("assembler.website_prompt_timeout must be positive"))
	}

	if c.Planner.GenerationTTL.Duration() <= 0 {
		errs = append(errs, errors.New("planner.generation_ttl must be positive"))
	}
	if c.Planner.MaxSessions <= 0 {
		errs = append(errs, errors.New("planner.max_sessions must be positive"))
	}

	if c.Telemetry.SamplingRate < 0 || c.Telemetry.SamplingRate > 1 {
		errs = append(errs, fmt.Errorf("telemetry.sampling_rate must be between 0 and 1, got %f", c.Telemetry.SamplingRate))
	}

	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		errs = append(errs, fmt.Errorf("logging.format must be 'json' or 'console', got %q", c.Logging.Format))
	}

	return errors.Join(errs...)
}
