// Package config handles configuration loading, validation, and persistence
// for parklink.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/parklink-project/parklink/internal/protocol"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5080
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Server      ServerConfig    `json:"server"`
	Client      ClientConfig    `json:"client"`
	Application ApplicationData `json:"application"`
}

// ServerConfig names the server to join and the identity to join as.
type ServerConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`

	AutoReconnect     bool `json:"auto_reconnect"`
	ReconnectDelaySec int  `json:"reconnect_delay_sec"`
}

// ClientConfig tunes the protocol client.
type ClientConfig struct {
	NetworkVersion    string `json:"network_version"`
	RequestTimeoutMS  int    `json:"request_timeout_ms"`
	LivenessTimeoutMS int    `json:"liveness_timeout_ms"`
	PollIntervalMS    int    `json:"poll_interval_ms"`
	DialTimeoutMS     int    `json:"dial_timeout_ms"`
	WriteTimeoutMS    int    `json:"write_timeout_ms"`
}

// RequestTimeout is how long auth and server-info requests wait for an answer.
func (c ClientConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutMS) * time.Millisecond
}

// LivenessTimeout is the longest silence (no ping) tolerated from the server.
func (c ClientConfig) LivenessTimeout() time.Duration {
	return time.Duration(c.LivenessTimeoutMS) * time.Millisecond
}

// PollInterval is how often the receive loop wakes up to check liveness.
func (c ClientConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// DialTimeout bounds the TCP handshake.
func (c ClientConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutMS) * time.Millisecond
}

// WriteTimeout bounds a single frame write.
func (c ClientConfig) WriteTimeout() time.Duration {
	return time.Duration(c.WriteTimeoutMS) * time.Millisecond
}

// ApplicationData contains settings for everything around the client.
type ApplicationData struct {
	Logging LoggingConfig `json:"logging"`
	API     APIConfig     `json:"api"`
	MQTT    MQTTConfig    `json:"mqtt"`
	History HistoryConfig `json:"history"`
	Webhook WebhookConfig `json:"webhook"`
	Timers  TimersConfig  `json:"timers"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	Console    bool   `json:"console"`
}

// APIConfig holds REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	Port           int      `json:"port"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	// Token, when set, is required as a bearer token on control routes.
	Token    string `json:"token"`
	UseTLS   bool   `json:"use_tls"`
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled     bool   `json:"enabled"`
	BrokerURL   string `json:"broker_url"`
	Port        int    `json:"port"`
	UseTLS      bool   `json:"use_tls"`
	CertFile    string `json:"cert_file"`
	KeyFile     string `json:"key_file"`
	ClientID    string `json:"client_id"`
	TopicPrefix string `json:"topic_prefix"`
}

// WebhookConfig controls relaying session events to a Discord webhook.
type WebhookConfig struct {
	Enabled     bool   `json:"enabled"`
	URL         string `json:"url"`
	RelayChat   bool   `json:"relay_chat"`
	RelayRoster bool   `json:"relay_roster"`
}

// HistoryConfig controls the local chat and roster history database.
type HistoryConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
	// RetentionDays of 0 keeps history forever.
	RetentionDays int `json:"retention_days"`
	// PruneTime is the local "HH:MM" at which old history is deleted.
	PruneTime string `json:"prune_time"`
}

// TimersConfig holds intervals of the periodic tasks, in seconds.
type TimersConfig struct {
	HeartbeatInterval    int `json:"heartbeat_interval"`
	SessionCheckInterval int `json:"session_check_interval"`
}

// DefaultClientConfig returns the protocol client defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		NetworkVersion:    protocol.NetworkVersion,
		RequestTimeoutMS:  12000,
		LivenessTimeoutMS: 30000,
		PollIntervalMS:    1000,
		DialTimeoutMS:     10000,
		WriteTimeoutMS:    10000,
	}
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "127.0.0.1",
			Port:              protocol.DefaultPort,
			AutoReconnect:     true,
			ReconnectDelaySec: 10,
		},
		Client: DefaultClientConfig(),
		Application: ApplicationData{
			Logging: LoggingConfig{
				Level:      "info",
				Directory:  "logs",
				MaxSizeMB:  10,
				MaxBackups: 5,
				Console:    true,
			},
			API: APIConfig{
				Enabled:      true,
				Port:         DefaultAPIPort,
				RateLimitRPS: 50,
				CertFile:     filepath.Join(DefaultConfigDir, "api.crt"),
				KeyFile:      filepath.Join(DefaultConfigDir, "api.key"),
			},
			MQTT: MQTTConfig{
				Enabled:     false,
				Port:        8883,
				UseTLS:      true,
				TopicPrefix: "parklink",
			},
			History: HistoryConfig{
				Enabled:       true,
				Path:          filepath.Join(DefaultConfigDir, "history.db"),
				RetentionDays: 30,
				PruneTime:     "04:00",
			},
			Webhook: WebhookConfig{
				RelayChat:   true,
				RelayRoster: true,
			},
			Timers: TimersConfig{
				HeartbeatInterval:    60,
				SessionCheckInterval: 30,
			},
		},
	}
}

// Load reads configuration from a JSON file, writing the defaults out if the
// file does not exist yet.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Persist fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server section.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// SetServer replaces the server section.
func (c *Config) SetServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = s
}

// GetClient returns a copy of the client section.
func (c *Config) GetClient() ClientConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Client
}

// GetApplicationData returns a copy of the application section.
func (c *Config) GetApplicationData() ApplicationData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Application
}

// UpdateServerField sets one field of the server section by its JSON key.
func (c *Config) UpdateServerField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.Server)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	current, ok := m[key]
	if !ok {
		return fmt.Errorf("unknown server field %q", key)
	}

	// Strings from the console are coerced to the field's JSON kind.
	if raw, isString := value.(string); isString {
		switch current.(type) {
		case float64:
			n, err := strconv.Atoi(raw)
			if err != nil {
				return fmt.Errorf("field %s expects a number: %w", key, err)
			}
			value = n
		case bool:
			b, err := strconv.ParseBool(raw)
			if err != nil {
				return fmt.Errorf("field %s expects true or false: %w", key, err)
			}
			value = b
		}
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	var next ServerConfig
	if err := json.Unmarshal(updated, &next); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	c.Server = next

	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes to.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server.Username == ""
}
