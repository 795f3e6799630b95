package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Backend BackendConfig `mapstructure:"backend"`
	Agent   AgentConfig   `mapstructure:"agent"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Refresh RefreshConfig `mapstructure:"refresh"`
	Replay  ReplayConfig  `mapstructure:"replay"`
}

// LoggingConfig holds logging-related configuration
type LoggingConfig struct {
	LogFile  string `mapstructure:"log_file"`
	Preserve bool   `mapstructure:"preserve"`
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"` // text or json
}

// BackendConfig describes the conversational endpoint
type BackendConfig struct {
	URL               string        `mapstructure:"url"`
	StreamPath        string        `mapstructure:"stream_path"`
	HistoryPath       string        `mapstructure:"history_path"`
	ConnectTimeout    time.Duration `mapstructure:"-"`
	ConnectTimeoutStr string        `mapstructure:"connect_timeout"`
}

// AgentConfig holds the agent selection sent with every stream request
type AgentConfig struct {
	ID     string         `mapstructure:"id"`
	UserID string         `mapstructure:"user_id"`
	Config map[string]any `mapstructure:"config"`
}

// AuthConfig holds the bearer credential. An empty token means unauthenticated requests.
type AuthConfig struct {
	Token     string `mapstructure:"token"`
	TokenFile string `mapstructure:"token_file"`
}

// RefreshConfig controls the delayed object refresh signals
type RefreshConfig struct {
	Delay    time.Duration `mapstructure:"-"`
	DelayStr string        `mapstructure:"delay"`
	Kinds    []string      `mapstructure:"kinds"`
}

// ReplayConfig holds defaults for the fixture replay server
type ReplayConfig struct {
	Addr         string        `mapstructure:"addr"`
	LineDelay    time.Duration `mapstructure:"-"`
	LineDelayStr string        `mapstructure:"line_delay"`
	ChunkSize    int           `mapstructure:"chunk_size"`
	HistoryFile  string        `mapstructure:"history_file"`
	RequireToken string        `mapstructure:"require_token"`
}

const (
	DefaultRefreshDelay   = 1200 * time.Millisecond
	DefaultConnectTimeout = 30 * time.Second
)

var cfg *Config

// Get returns the global config instance
func Get() *Config {
	if cfg == nil {
		panic("config not initialized")
	}
	return cfg
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

		viper.AddConfigPath("./.agentstream")
		viper.AddConfigPath(filepath.Join(xdgConfigHome, ".agentstream"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("settings")
	}

	viper.AutomaticEnv()
	bindEnvironmentVariables()

	// A missing settings file is fine, defaults and env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	loaded := &Config{}
	if err := viper.Unmarshal(loaded); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := processDurations(loaded); err != nil {
		return nil, fmt.Errorf("failed to process durations: %w", err)
	}

	cfg = loaded
	return cfg, nil
}

// setDefaults sets all default configuration values
func setDefaults() {
	viper.SetDefault("backend.url", "http://localhost:8089")
	viper.SetDefault("backend.stream_path", "/chat/stream")
	viper.SetDefault("backend.history_path", "/chat/history")
	viper.SetDefault("backend.connect_timeout", "30s")

	viper.SetDefault("agent.id", "assistant")
	viper.SetDefault("agent.user_id", "")
	viper.SetDefault("agent.config", map[string]any{})

	viper.SetDefault("auth.token", "")
	viper.SetDefault("auth.token_file", "")

	viper.SetDefault("refresh.delay", "1200ms")
	viper.SetDefault("refresh.kinds", []string{"pflicht", "gesetz"})

	viper.SetDefault("replay.addr", ":8089")
	viper.SetDefault("replay.line_delay", "40ms")
	viper.SetDefault("replay.chunk_size", 0)
	viper.SetDefault("replay.history_file", "")
	viper.SetDefault("replay.require_token", "")

	viper.SetDefault("logging.log_file", "./.agentstream/system.log")
	viper.SetDefault("logging.preserve", false)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
}

// bindEnvironmentVariables binds specific environment variables to Viper keys
func bindEnvironmentVariables() {
	viper.BindEnv("backend.url", "AGENTSTREAM_BACKEND_URL")
	viper.BindEnv("backend.stream_path", "AGENTSTREAM_STREAM_PATH")
	viper.BindEnv("backend.connect_timeout", "AGENTSTREAM_CONNECT_TIMEOUT")
	viper.BindEnv("agent.id", "AGENTSTREAM_AGENT_ID")
	viper.BindEnv("agent.user_id", "AGENTSTREAM_USER_ID")
	viper.BindEnv("auth.token", "AGENTSTREAM_TOKEN")
	viper.BindEnv("auth.token_file", "AGENTSTREAM_TOKEN_FILE")
	viper.BindEnv("refresh.delay", "AGENTSTREAM_REFRESH_DELAY")
	viper.BindEnv("logging.level", "AGENTSTREAM_LOG_LEVEL")
	viper.BindEnv("logging.log_file", "AGENTSTREAM_LOG_FILE")
	viper.BindEnv("logging.preserve", "AGENTSTREAM_LOG_PRESERVE")
}

// processDurations converts string durations to time.Duration
func processDurations(c *Config) error {
	if c.Backend.ConnectTimeoutStr != "" {
		d, err := time.ParseDuration(c.Backend.ConnectTimeoutStr)
		if err != nil {
			return fmt.Errorf("invalid backend.connect_timeout: %w", err)
		}
		c.Backend.ConnectTimeout = d
	} else {
		c.Backend.ConnectTimeout = DefaultConnectTimeout
	}

	if c.Refresh.DelayStr != "" {
		d, err := time.ParseDuration(c.Refresh.DelayStr)
		if err != nil {
			return fmt.Errorf("invalid refresh.delay: %w", err)
		}
		c.Refresh.Delay = d
	} else {
		c.Refresh.Delay = DefaultRefreshDelay
	}

	if c.Replay.LineDelayStr != "" {
		d, err := time.ParseDuration(c.Replay.LineDelayStr)
		if err != nil {
			return fmt.Errorf("invalid replay.line_delay: %w", err)
		}
		c.Replay.LineDelay = d
	}

	return nil
}

// GetConfigFileUsed returns the path to the config file being used
func GetConfigFileUsed() string {
	return viper.ConfigFileUsed()
}

// StreamURL returns the full URL of the streaming endpoint
func (c *Config) StreamURL() string {
	return c.Backend.URL + c.Backend.StreamPath
}

// HistoryURL returns the full URL of the history endpoint
func (c *Config) HistoryURL() string {
	return c.Backend.URL + c.Backend.HistoryPath
}
