// Package conf loads and validates Velociti settings.
package conf

import (
	"io"
	"net"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/velociti/velociti/internal/errors"
	"gopkg.in/yaml.v3"
)

// Environments.
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"
)

// Settings is the complete runtime configuration.
type Settings struct {
	Environment string            `mapstructure:"environment" yaml:"environment"`
	Log         LogSettings       `mapstructure:"log" yaml:"log"`
	Server      ServerSettings    `mapstructure:"server" yaml:"server"`
	Database    DatabaseSettings  `mapstructure:"database" yaml:"database"`
	Realtime    RealtimeSettings  `mapstructure:"realtime" yaml:"realtime"`
	LLM         LLMSettings       `mapstructure:"llm" yaml:"llm"`
	Agents      AgentSettings     `mapstructure:"agents" yaml:"agents"`
	Notify      NotifySettings    `mapstructure:"notify" yaml:"notify"`
	MQTT        MQTTSettings      `mapstructure:"mqtt" yaml:"mqtt"`
	Sentry      SentrySettings    `mapstructure:"sentry" yaml:"sentry"`
	Dashboard   DashboardSettings `mapstructure:"dashboard" yaml:"dashboard"`
}

// LogSettings controls log verbosity and format.
type LogSettings struct {
	Level string `mapstructure:"level" yaml:"level"`
	JSON  bool   `mapstructure:"json" yaml:"json"`
}

// ServerSettings configures the HTTP listener and its middleware.
type ServerSettings struct {
	Host           string            `mapstructure:"host" yaml:"host"`
	Port           int               `mapstructure:"port" yaml:"port"`
	AllowedOrigins []string          `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	StaticDir      string            `mapstructure:"static_dir" yaml:"static_dir"`
	SessionSecret  string            `mapstructure:"session_secret" yaml:"session_secret"`
	BodyLimit      string            `mapstructure:"body_limit" yaml:"body_limit"`
	RateLimit      RateLimitSettings `mapstructure:"rate_limit" yaml:"rate_limit"`
	StreamLimit    RateLimitSettings `mapstructure:"stream_limit" yaml:"stream_limit"`
	TLS            TLSSettings       `mapstructure:"tls" yaml:"tls"`
	ShutdownWait   Duration          `mapstructure:"shutdown_wait" yaml:"shutdown_wait"`
}

// RateLimitSettings describes a per-client token bucket.
type RateLimitSettings struct {
	Requests float64  `mapstructure:"requests" yaml:"requests"` // sustained requests per second
	Burst    int      `mapstructure:"burst" yaml:"burst"`
	Expires  Duration `mapstructure:"expires" yaml:"expires"`
}

// TLSSettings enables automatic certificates from Let's Encrypt.
type TLSSettings struct {
	AutoTLS  bool     `mapstructure:"auto_tls" yaml:"auto_tls"`
	Domains  []string `mapstructure:"domains" yaml:"domains"`
	CacheDir string   `mapstructure:"cache_dir" yaml:"cache_dir"`
}

// DatabaseSettings selects the relational store.
type DatabaseSettings struct {
	// Driver is one of sqlite, mysql or postgres. Empty derives it from URL.
	Driver          string   `mapstructure:"driver" yaml:"driver"`
	URL             string   `mapstructure:"url" yaml:"url"`
	MaxOpenConns    int      `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int      `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	SlowThreshold   Duration `mapstructure:"slow_threshold" yaml:"slow_threshold"`
}

// RealtimeSettings tunes the WebSocket relay.
type RealtimeSettings struct {
	SendBuffer    int      `mapstructure:"send_buffer" yaml:"send_buffer"`
	InitialAlerts int      `mapstructure:"initial_alerts" yaml:"initial_alerts"`
	PingInterval  Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	PongWait      Duration `mapstructure:"pong_wait" yaml:"pong_wait"`
	WriteWait     Duration `mapstructure:"write_wait" yaml:"write_wait"`
	// Client side reconnect policy used by the watch command.
	ReconnectDelay       Duration `mapstructure:"reconnect_delay" yaml:"reconnect_delay"`
	MaxReconnectAttempts int      `mapstructure:"max_reconnect_attempts" yaml:"max_reconnect_attempts"`
}

// LLMSettings configures the query relay providers.
type LLMSettings struct {
	DefaultProvider string            `mapstructure:"default_provider" yaml:"default_provider"`
	OpenAI          ProviderSettings  `mapstructure:"openai" yaml:"openai"`
	Anthropic       ProviderSettings  `mapstructure:"anthropic" yaml:"anthropic"`
	Gemini          ProviderSettings  `mapstructure:"gemini" yaml:"gemini"`
	Bedrock         BedrockSettings   `mapstructure:"bedrock" yaml:"bedrock"`
	Synthetic       SyntheticSettings `mapstructure:"synthetic" yaml:"synthetic"`
	SystemPrompt    string            `mapstructure:"system_prompt" yaml:"system_prompt"`
	MaxTokens       int               `mapstructure:"max_tokens" yaml:"max_tokens"`
}

// ProviderSettings holds credentials for an HTTP based provider.
type ProviderSettings struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// BedrockSettings configures AWS Bedrock. Credentials come from the AWS default chain.
type BedrockSettings struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Region  string `mapstructure:"region" yaml:"region"`
	Model   string `mapstructure:"model" yaml:"model"`
}

// SyntheticSettings bounds the delay between synthesized chunks.
type SyntheticSettings struct {
	MinDelay Duration `mapstructure:"min_delay" yaml:"min_delay"`
	MaxDelay Duration `mapstructure:"max_delay" yaml:"max_delay"`
}

// AgentSettings controls scheduled agent runs.
type AgentSettings struct {
	Schedule      bool     `mapstructure:"schedule" yaml:"schedule"`
	Tick          Duration `mapstructure:"tick" yaml:"tick"`
	RunTimeout    Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	Cooldown      Duration `mapstructure:"cooldown" yaml:"cooldown"`
	SeedOnStartup bool     `mapstructure:"seed_on_startup" yaml:"seed_on_startup"`
}

// NotifySettings configures shoutrrr push notifications for new alerts.
type NotifySettings struct {
	URLs        []string `mapstructure:"urls" yaml:"urls"`
	MinPriority string   `mapstructure:"min_priority" yaml:"min_priority"`
	Title       string   `mapstructure:"title" yaml:"title"`
}

// MQTTSettings configures the MQTT event publisher.
type MQTTSettings struct {
	Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
	Broker      string `mapstructure:"broker" yaml:"broker"`
	ClientID    string `mapstructure:"client_id" yaml:"client_id"`
	Username    string `mapstructure:"username" yaml:"username"`
	Password    string `mapstructure:"password" yaml:"password"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
	QoS         byte   `mapstructure:"qos" yaml:"qos"`
}

// SentrySettings configures error reporting.
type SentrySettings struct {
	DSN        string  `mapstructure:"dsn" yaml:"dsn"`
	SampleRate float64 `mapstructure:"sample_rate" yaml:"sample_rate"`
	Release    string  `mapstructure:"release" yaml:"release"`
}

// DashboardSettings tunes the summary endpoint.
type DashboardSettings struct {
	RecentAlerts int      `mapstructure:"recent_alerts" yaml:"recent_alerts"`
	CacheTTL     Duration `mapstructure:"cache_ttl" yaml:"cache_ttl"`
}

// IsProduction reports whether production behavior (strict CORS, hidden error detail) applies.
func (s *Settings) IsProduction() bool {
	return s.Environment == EnvProduction
}

// ListenAddr returns host:port for the HTTP server.
func (s *ServerSettings) ListenAddr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Validate checks invariants that defaults cannot fix.
func (s *Settings) Validate() error {
	if !slices.Contains([]string{EnvDevelopment, EnvProduction, EnvTest}, s.Environment) {
		return configError("environment", s.Environment, "must be development, production or test")
	}
	if s.Server.Port <= 0 || s.Server.Port > 65535 {
		return configError("server.port", s.Server.Port, "out of range")
	}
	if s.Database.URL == "" {
		return configError("database.url", "", "is required")
	}
	if d := s.Database.Driver; d != "" && !slices.Contains([]string{"sqlite", "mysql", "postgres"}, d) {
		return configError("database.driver", d, "must be sqlite, mysql or postgres")
	}
	if s.LLM.Synthetic.MaxDelay < s.LLM.Synthetic.MinDelay {
		return configError("llm.synthetic.max_delay", s.LLM.Synthetic.MaxDelay.String(), "must not be below min_delay")
	}
	if s.Realtime.MaxReconnectAttempts < 1 {
		return configError("realtime.max_reconnect_attempts", s.Realtime.MaxReconnectAttempts, "must be at least 1")
	}
	if s.Realtime.PingInterval.Std() >= s.Realtime.PongWait.Std() {
		return configError("realtime.ping_interval", s.Realtime.PingInterval.String(), "must be shorter than pong_wait")
	}
	if s.IsProduction() {
		if s.Server.SessionSecret == "" || s.Server.SessionSecret == defaultSessionSecret {
			return configError("server.session_secret", "", "must be set in production")
		}
		if slices.Contains(s.Server.AllowedOrigins, "*") {
			return configError("server.allowed_origins", "*", "wildcard origin is not allowed in production")
		}
	}
	return nil
}

// WriteYAML dumps the effective settings, with secrets redacted.
func (s *Settings) WriteYAML(w io.Writer) error {
	redacted := *s
	redacted.Server.SessionSecret = redact(redacted.Server.SessionSecret)
	redacted.Database.URL = redactURL(redacted.Database.URL)
	redacted.LLM.OpenAI.APIKey = redact(redacted.LLM.OpenAI.APIKey)
	redacted.LLM.Anthropic.APIKey = redact(redacted.LLM.Anthropic.APIKey)
	redacted.LLM.Gemini.APIKey = redact(redacted.LLM.Gemini.APIKey)
	redacted.MQTT.Password = redact(redacted.MQTT.Password)
	redacted.Sentry.DSN = redact(redacted.Sentry.DSN)
	redacted.Notify.URLs = nil
	for range s.Notify.URLs {
		redacted.Notify.URLs = append(redacted.Notify.URLs, "[redacted]")
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	defer func() { _ = enc.Close() }()
	return enc.Encode(&redacted)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[redacted]"
}

// redactURL hides credentials in a database URL while keeping the scheme.
func redactURL(u string) string {
	if u == "" {
		return ""
	}
	scheme, _, found := strings.Cut(u, "://")
	if !found {
		if strings.HasSuffix(u, ".db") || strings.HasPrefix(u, "file:") {
			return u
		}
		return "[redacted]"
	}
	return scheme + "://[redacted]"
}

func configError(key string, value any, reason string) error {
	return errors.Newf("invalid configuration %s: %s", key, reason).
		Component("conf").
		Category(errors.CategoryConfiguration).
		Context("key", key).
		Context("value", value).
		Build()
}

// defaultTick is the scheduler wake-up interval when unset.
const defaultTick = 30 * time.Second
