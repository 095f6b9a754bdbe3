// Copyright 2024-2026 Aiku AI

package relay

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	up "go.mau.fi/util/configupgrade"
	"gopkg.in/yaml.v3"
)

//go:embed example-config.yaml
var ExampleConfig string

// Config holds the relay configuration.
type Config struct {
	Source     SourceConfig     `yaml:"source"`
	Telegram   TelegramConfig   `yaml:"telegram"`
	Mattermost MattermostConfig `yaml:"mattermost"`
	Matrix     MatrixConfig     `yaml:"matrix"`
	Health     HealthConfig     `yaml:"health"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SourceConfig describes the livesms websocket.
type SourceConfig struct {
	URL         string `yaml:"url"`
	AuthMessage string `yaml:"auth_message"`
	// PingInterval is in seconds.
	PingInterval     int `yaml:"ping_interval"`
	HandshakeDelayMS int `yaml:"handshake_delay_ms"`
	ReconnectDelayMS int `yaml:"reconnect_delay_ms"`

	Origin    string `yaml:"origin"`
	Referer   string `yaml:"referer"`
	Host      string `yaml:"host"`
	UserAgent string `yaml:"user_agent"`
}

// TelegramConfig describes the primary alert destination.
type TelegramConfig struct {
	APIURL        string `yaml:"api_url"`
	BotToken      string `yaml:"bot_token"`
	GroupID       string `yaml:"group_id"`
	MinIntervalMS int    `yaml:"min_interval_ms"`
	Footer        string `yaml:"footer"`

	ChannelURL string `yaml:"channel_url"`
	DevURL     string `yaml:"dev_url"`
	SupportURL string `yaml:"support_url"`
}

// MattermostConfig enables the Mattermost mirror when ServerURL is set.
type MattermostConfig struct {
	ServerURL string `yaml:"server_url"`
	Token     string `yaml:"token"`
	ChannelID string `yaml:"channel_id"`
}

// MatrixConfig enables the Matrix mirror when HomeserverURL is set.
type MatrixConfig struct {
	HomeserverURL string `yaml:"homeserver_url"`
	UserID        string `yaml:"user_id"`
	AccessToken   string `yaml:"access_token"`
	RoomID        string `yaml:"room_id"`
}

type HealthConfig struct {
	Port int `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
	// File, when set, receives JSON logs with size-based rotation.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

func (c *Config) UnmarshalYAML(node *yaml.Node) error {
	type rawConfig Config
	return node.Decode((*rawConfig)(c))
}

func upgradeConfig(helper up.Helper) {
	helper.Copy(up.Str, "source", "url")
	helper.Copy(up.Str, "source", "auth_message")
	helper.Copy(up.Int, "source", "ping_interval")
	helper.Copy(up.Int, "source", "handshake_delay_ms")
	helper.Copy(up.Int, "source", "reconnect_delay_ms")
	helper.Copy(up.Str, "source", "origin")
	helper.Copy(up.Str, "source", "referer")
	helper.Copy(up.Str, "source", "host")
	helper.Copy(up.Str, "source", "user_agent")

	helper.Copy(up.Str, "telegram", "api_url")
	helper.Copy(up.Str, "telegram", "bot_token")
	helper.Copy(up.Str, "telegram", "group_id")
	helper.Copy(up.Int, "telegram", "min_interval_ms")
	helper.Copy(up.Str, "telegram", "footer")
	helper.Copy(up.Str, "telegram", "channel_url")
	helper.Copy(up.Str, "telegram", "dev_url")
	helper.Copy(up.Str, "telegram", "support_url")

	helper.Copy(up.Str, "mattermost", "server_url")
	helper.Copy(up.Str, "mattermost", "token")
	helper.Copy(up.Str, "mattermost", "channel_id")

	helper.Copy(up.Str, "matrix", "homeserver_url")
	helper.Copy(up.Str, "matrix", "user_id")
	helper.Copy(up.Str, "matrix", "access_token")
	helper.Copy(up.Str, "matrix", "room_id")

	helper.Copy(up.Int, "health", "port")

	helper.Copy(up.Str, "logging", "level")
	helper.Copy(up.Bool, "logging", "pretty")
	helper.Copy(up.Str, "logging", "file")
	helper.Copy(up.Int, "logging", "max_size_mb")
	helper.Copy(up.Int, "logging", "max_backups")
	helper.Copy(up.Int, "logging", "max_age_days")
}

// ParseConfig merges user YAML over the embedded example config. Keys the
// user omits keep their example values. Empty input yields the defaults.
func ParseConfig(data []byte) (*Config, error) {
	var base yaml.Node
	if err := yaml.Unmarshal([]byte(ExampleConfig), &base); err != nil {
		return nil, fmt.Errorf("failed to parse example config: %w", err)
	}
	if len(data) > 0 {
		var user yaml.Node
		if err := yaml.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		if user.Kind != 0 {
			upgradeConfig(up.NewHelper(&base, &user))
		}
	}
	var cfg Config
	if err := base.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig reads path (a missing file is not an error), applies
// environment overrides and validates the result.
func LoadConfig(path string) (*Config, error) {
	var data []byte
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.PostProcess(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads variables from .env files into the process environment
// without overriding variables that are already set. It reports whether a
// file was found.
func LoadEnvFile(filenames ...string) bool {
	return godotenv.Load(filenames...) == nil
}

// ApplyEnv overrides config values from environment variables. Variable names
// match the ones used by earlier deployments of the relay.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string, keys ...string) {
		for _, key := range keys {
			if v, ok := lookup(key); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	num := func(dst *int, key string) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
		return nil
	}

	str(&c.Source.URL, "WS_URL")
	str(&c.Source.AuthMessage, "AUTH_MESSAGE")
	if err := num(&c.Source.PingInterval, "PING_INTERVAL"); err != nil {
		return err
	}

	str(&c.Telegram.BotToken, "BOT_TOKEN")
	str(&c.Telegram.GroupID, "GROUP_ID")
	str(&c.Telegram.ChannelURL, "CHANNEL_URL")
	str(&c.Telegram.DevURL, "DEV_URL")
	str(&c.Telegram.SupportURL, "Support", "SUPPORT_URL")

	str(&c.Mattermost.ServerURL, "MATTERMOST_URL")
	str(&c.Mattermost.Token, "MATTERMOST_TOKEN")
	str(&c.Mattermost.ChannelID, "MATTERMOST_CHANNEL_ID")

	str(&c.Matrix.HomeserverURL, "MATRIX_HOMESERVER_URL")
	str(&c.Matrix.UserID, "MATRIX_USER_ID")
	str(&c.Matrix.AccessToken, "MATRIX_ACCESS_TOKEN")
	str(&c.Matrix.RoomID, "MATRIX_ROOM_ID")

	if err := num(&c.Health.Port, "PORT"); err != nil {
		return err
	}
	str(&c.Logging.Level, "LOG_LEVEL")
	str(&c.Logging.File, "LOG_FILE")
	return nil
}

// PostProcess validates the config.
func (c *Config) PostProcess() error {
	var errs []error
	if c.Source.URL == "" {
		errs = append(errs, errors.New("source.url (WS_URL) is required"))
	}
	if c.Source.AuthMessage == "" {
		errs = append(errs, errors.New("source.auth_message (AUTH_MESSAGE) is required"))
	}
	if c.Source.PingInterval <= 0 {
		errs = append(errs, fmt.Errorf("source.ping_interval must be positive, got %d", c.Source.PingInterval))
	}
	if c.Source.HandshakeDelayMS < 0 || c.Source.ReconnectDelayMS < 0 {
		errs = append(errs, errors.New("source delays must not be negative"))
	}
	if c.Telegram.BotToken == "" {
		errs = append(errs, errors.New("telegram.bot_token (BOT_TOKEN) is required"))
	}
	if c.Telegram.GroupID == "" {
		errs = append(errs, errors.New("telegram.group_id (GROUP_ID) is required"))
	}
	if c.Telegram.MinIntervalMS < 0 {
		errs = append(errs, fmt.Errorf("telegram.min_interval_ms must not be negative, got %d", c.Telegram.MinIntervalMS))
	}
	if c.Health.Port < 1 || c.Health.Port > 65535 {
		errs = append(errs, fmt.Errorf("health.port must be in 1..65535, got %d", c.Health.Port))
	}
	if c.Logging.Level != "" {
		if _, err := zerolog.ParseLevel(c.Logging.Level); err != nil {
			errs = append(errs, fmt.Errorf("logging.level: %w", err))
		}
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		errs = append(errs, errors.New("logging rotation limits must not be negative"))
	}
	if c.Mattermost.ServerURL != "" && (c.Mattermost.Token == "" || c.Mattermost.ChannelID == "") {
		errs = append(errs, errors.New("mattermost mirror needs token and channel_id"))
	}
	if c.Matrix.HomeserverURL != "" && (c.Matrix.AccessToken == "" || c.Matrix.RoomID == "") {
		errs = append(errs, errors.New("matrix mirror needs access_token and room_id"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func (c *SourceConfig) PingEvery() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

func (c *SourceConfig) HandshakeDelay() time.Duration {
	return time.Duration(c.HandshakeDelayMS) * time.Millisecond
}

func (c *SourceConfig) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayMS) * time.Millisecond
}

func (c *TelegramConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMS) * time.Millisecond
}

// ListenAddr is the liveness endpoint address on all interfaces.
func (c *HealthConfig) ListenAddr() string {
	return ":" + strconv.Itoa(c.Port)
}

// ZerologLevel returns the configured log level, defaulting to info.
func (c *LoggingConfig) ZerologLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.Level)
	if err != nil || c.Level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
