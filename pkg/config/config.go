package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Stream  StreamConfig  `mapstructure:"stream"`
	Render  RenderConfig  `mapstructure:"render"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds the agent backend connection settings
type ServerConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"-"`
	TimeoutStr string        `mapstructure:"timeout"`
}

// AgentConfig selects the agent and the optional capabilities the client renders
type AgentConfig struct {
	ID            string `mapstructure:"id"`
	SupportsTodo  bool   `mapstructure:"supports_todo"`
	SupportsFiles bool   `mapstructure:"supports_files"`
}

// StreamConfig holds streaming transport settings
type StreamConfig struct {
	IdleTimeout    time.Duration `mapstructure:"-"`
	IdleTimeoutStr string        `mapstructure:"idle_timeout"`
	Transport      string        `mapstructure:"transport"`
	WebSocketURL   string        `mapstructure:"websocket_url"`
}

// RenderConfig holds terminal rendering settings
type RenderConfig struct {
	Style         string `mapstructure:"style"`
	ShowReasoning bool   `mapstructure:"show_reasoning"`
	Width         int    `mapstructure:"width"`
	NoColor       bool   `mapstructure:"no_color"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
	Console  bool   `mapstructure:"console"`
}

const (
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
}

// Set replaces the global config instance. Intended for tests and embedding.
func Set(c *Config) {
	cfg = c
}

// Load loads configuration from file and environment
func Load(cfgFile string) (*Config, error) {
	setDefaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		xdgConfigHome := os.Getenv("XDG_CONFIG_HOME")
		if xdgConfigHome == "" {
			xdgConfigHome = filepath.Join(home, ".config")
		}

		viper.AddConfigPath("./.yuxi")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, "yuxi"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.SetEnvPrefix("YUXI")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	bindEnvironmentVariables()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	c := &Config{}
	if err := viper.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(c); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg = c
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("server.base_url", "http://localhost:5050")
	viper.SetDefault("server.token", "")
	viper.SetDefault("server.timeout", "30s")

	viper.SetDefault("agent.id", "chatbot")
	viper.SetDefault("agent.supports_todo", false)
	viper.SetDefault("agent.supports_files", false)

	viper.SetDefault("stream.idle_timeout", "0s")
	viper.SetDefault("stream.transport", TransportHTTP)
	viper.SetDefault("stream.websocket_url", "")

	viper.SetDefault("render.style", "monokai")
	viper.SetDefault("render.show_reasoning", true)
	viper.SetDefault("render.width", 100)
	viper.SetDefault("render.no_color", false)

	viper.SetDefault("logging.log_file", "./.yuxi/client.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.console", false)
}

// bindEnvironmentVariables binds environment variables that don't follow the
// YUXI_<SECTION>_<KEY> naming
func bindEnvironmentVariables() {
	viper.BindEnv("server.token", "YUXI_TOKEN", "YUXI_SERVER_TOKEN")
	viper.BindEnv("logging.level", "YUXI_LOG_LEVEL", "YUXI_LOGGING_LEVEL")
	viper.BindEnv("logging.log_file", "YUXI_LOG_FILE", "YUXI_LOGGING_LOG_FILE")
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	if c.Server.TimeoutStr != "" {
		d, err := time.ParseDuration(c.Server.TimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid server.timeout: %w", err)
		}
		c.Server.Timeout = d
	} else if c.Server.Timeout == 0 {
		c.Server.Timeout = 30 * time.Second
	}

	if c.Stream.IdleTimeoutStr != "" {
		d, err := time.ParseDuration(c.Stream.IdleTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid stream.idle_timeout: %w", err)
		}
		c.Stream.IdleTimeout = d
	}

	return nil
}

// Validate checks values that would otherwise fail late at request time
func (c *Config) Validate() error {
	if c.Server.BaseURL == "" {
		return fmt.Errorf("server.base_url must not be empty")
	}
	if c.Stream.IdleTimeout < 0 {
		return fmt.Errorf("stream.idle_timeout must not be negative")
	}
	switch c.Stream.Transport {
	case TransportHTTP, TransportWebSocket:
	default:
		return fmt.Errorf("stream.transport must be %q or %q, got %q", TransportHTTP, TransportWebSocket, c.Stream.Transport)
	}
	return nil
}

// WebSocketURL returns the configured websocket endpoint, deriving it from
// the base URL when unset
func (c *Config) WebSocketURL() string {
	if c.Stream.WebSocketURL != "" {
		return c.Stream.WebSocketURL
	}
	base := strings.TrimRight(c.Server.BaseURL, "/")
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/ws/chat/agent/" + c.Agent.ID
}

// ErrConfigExists is returned by Save when the target exists and overwrite
// is not requested
var ErrConfigExists = errors.New("config file already exists")

// Save writes the effective settings to path as YAML, creating its directory
func Save(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("%w: %s", ErrConfigExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// Settings returns every effective key, for display
func Settings() map[string]any {
	return viper.AllSettings()
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
