package conf

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/velociti/velociti/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. VELOCITI_SERVER_PORT.
const EnvPrefix = "VELOCITI"

const defaultSessionSecret = "velociti-development-session-secret"

// LoadOption customises Load.
type LoadOption func(v *viper.Viper) error

// WithFlag lets a command line flag override key when the flag was set.
func WithFlag(key string, flag *pflag.Flag) LoadOption {
	return func(v *viper.Viper) error {
		if flag == nil {
			return nil
		}
		return v.BindPFlag(key, flag)
	}
}

// Load reads settings from defaults, an optional YAML file, the environment
// and bound flags, in increasing order of precedence. An empty path searches
// the working directory, ~/.config/velociti and /etc/velociti for config.yaml.
func Load(path string, opts ...LoadOption) (*Settings, error) {
	v := viper.New()
	setDefaults(v)
	for _, opt := range opts {
		if err := opt(v); err != nil {
			return nil, fmt.Errorf("failed to bind flag: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if err := bindLegacyEnv(v); err != nil {
		return nil, err
	}

	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "velociti"))
		}
		v.AddConfigPath("/etc/velociti")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s, viper.DecodeHook(DurationDecodeHook())); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}
	s.applyDerived()

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// bindLegacyEnv maps the conventional unprefixed variables used by hosting
// platforms and provider SDKs.
func bindLegacyEnv(v *viper.Viper) error {
	bindings := map[string][]string{
		"database.url":          {"VELOCITI_DATABASE_URL", "DATABASE_URL"},
		"server.port":           {"VELOCITI_SERVER_PORT", "PORT"},
		"environment":           {"VELOCITI_ENVIRONMENT", "APP_ENV"},
		"server.session_secret": {"VELOCITI_SERVER_SESSION_SECRET", "SESSION_SECRET"},
		"llm.openai.api_key":    {"VELOCITI_LLM_OPENAI_API_KEY", "OPENAI_API_KEY"},
		"llm.anthropic.api_key": {"VELOCITI_LLM_ANTHROPIC_API_KEY", "ANTHROPIC_API_KEY"},
		"llm.gemini.api_key":    {"VELOCITI_LLM_GEMINI_API_KEY", "GEMINI_API_KEY"},
		"sentry.dsn":            {"VELOCITI_SENTRY_DSN", "SENTRY_DSN"},
	}
	for key, envs := range bindings {
		args := append([]string{key}, envs...)
		if err := v.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind env for %s: %w", key, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.json", false)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("server.static_dir", "")
	v.SetDefault("server.session_secret", defaultSessionSecret)
	v.SetDefault("server.body_limit", "1M")
	v.SetDefault("server.rate_limit.requests", 100.0/60.0)
	v.SetDefault("server.rate_limit.burst", 100)
	v.SetDefault("server.rate_limit.expires", "3m")
	v.SetDefault("server.stream_limit.requests", 10.0/60.0)
	v.SetDefault("server.stream_limit.burst", 10)
	v.SetDefault("server.stream_limit.expires", "3m")
	v.SetDefault("server.tls.auto_tls", false)
	v.SetDefault("server.tls.domains", []string{})
	v.SetDefault("server.tls.cache_dir", "certs")
	v.SetDefault("server.shutdown_wait", "10s")

	v.SetDefault("database.driver", "")
	v.SetDefault("database.url", "velociti.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("database.slow_threshold", "500ms")

	v.SetDefault("realtime.send_buffer", 256)
	v.SetDefault("realtime.initial_alerts", 20)
	v.SetDefault("realtime.ping_interval", "30s")
	v.SetDefault("realtime.pong_wait", "60s")
	v.SetDefault("realtime.write_wait", "10s")
	v.SetDefault("realtime.reconnect_delay", "1s")
	v.SetDefault("realtime.max_reconnect_attempts", 5)

	v.SetDefault("llm.default_provider", "")
	v.SetDefault("llm.openai.api_key", "")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.openai.base_url", "")
	v.SetDefault("llm.anthropic.api_key", "")
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.anthropic.base_url", "https://api.anthropic.com")
	v.SetDefault("llm.gemini.api_key", "")
	v.SetDefault("llm.gemini.model", "gemini-1.5-flash")
	v.SetDefault("llm.gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("llm.bedrock.enabled", false)
	v.SetDefault("llm.bedrock.region", "us-east-1")
	v.SetDefault("llm.bedrock.model", "anthropic.claude-3-haiku-20240307-v1:0")
	v.SetDefault("llm.synthetic.min_delay", "50ms")
	v.SetDefault("llm.synthetic.max_delay", "150ms")
	v.SetDefault("llm.system_prompt", defaultSystemPrompt)
	v.SetDefault("llm.max_tokens", 1024)

	v.SetDefault("agents.schedule", true)
	v.SetDefault("agents.tick", defaultTick.String())
	v.SetDefault("agents.run_timeout", "2m")
	v.SetDefault("agents.cooldown", "24h")
	v.SetDefault("agents.seed_on_startup", true)

	v.SetDefault("notify.urls", []string{})
	v.SetDefault("notify.min_priority", "high")
	v.SetDefault("notify.title", "Velociti alert")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.broker", "tcp://localhost:1883")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topic_prefix", "velociti")
	v.SetDefault("mqtt.qos", 1)

	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("sentry.release", "")

	v.SetDefault("dashboard.recent_alerts", 5)
	v.SetDefault("dashboard.cache_ttl", "15s")
}

const defaultSystemPrompt = "You are Velociti, an airline revenue management analyst. " +
	"Answer questions about route performance, pricing and competitor activity concisely."

// applyDerived fills values that depend on other settings.
func (s *Settings) applyDerived() {
	s.Environment = strings.ToLower(strings.TrimSpace(s.Environment))
	if s.Database.Driver == "" {
		s.Database.Driver = DriverFromURL(s.Database.URL)
	}
	if s.MQTT.ClientID == "" {
		host, _ := os.Hostname()
		s.MQTT.ClientID = fmt.Sprintf("velociti-%s-%d", host, time.Now().Unix()%100000)
	}
	if s.LLM.DefaultProvider == "" {
		s.LLM.DefaultProvider = s.firstConfiguredProvider()
	}
}

func (s *Settings) firstConfiguredProvider() string {
	switch {
	case s.LLM.OpenAI.APIKey != "":
		return "openai"
	case s.LLM.Anthropic.APIKey != "":
		return "anthropic"
	case s.LLM.Bedrock.Enabled:
		return "bedrock"
	case s.LLM.Gemini.APIKey != "":
		return "gemini"
	default:
		return "canned"
	}
}

// DriverFromURL infers the database driver from a connection string.
// Anything that is not a mysql or postgres URL is treated as a sqlite path.
func DriverFromURL(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return "postgres"
	case strings.HasPrefix(lower, "mysql://"), strings.Contains(lower, "@tcp("):
		return "mysql"
	default:
		return "sqlite"
	}
}
