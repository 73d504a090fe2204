package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the iT600 bridge daemon.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Bridge    BridgeConfig    `yaml:"bridge"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Poller    PollerConfig    `yaml:"poller"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BridgeConfig identifies this bridge instance.
type BridgeConfig struct {
	// ID names the bridge in health messages and MQTT client IDs. Required.
	ID string `yaml:"id"`

	// Name is a human-readable label for operators.
	Name string `yaml:"name"`

	// HealthInterval is how often the bridge publishes a health message,
	// in seconds.
	HealthInterval int `yaml:"health_interval"`
}

// GatewayConfig contains the iT600 gateway connection settings.
type GatewayConfig struct {
	// Host is the gateway's address on the LAN. Required.
	Host string `yaml:"host"`

	// Port of the gateway's local API.
	Port int `yaml:"port"`

	// Token authenticates against the local API. Required; set it via the
	// IT600_GATEWAY_TOKEN environment variable rather than the file.
	Token string `yaml:"token"`

	// RequestTimeout bounds a single HTTP exchange, in seconds.
	RequestTimeout int `yaml:"request_timeout"`
}

// PollerConfig contains refresh cycle settings. MaxAttempts and RetryDelay
// are shared by both categories; interval and attempt timeout differ.
type PollerConfig struct {
	// MaxAttempts is the attempt budget of one refresh cycle.
	MaxAttempts int `yaml:"max_attempts"`

	// RetryDelay is the fixed pause between attempts, in seconds.
	RetryDelay int `yaml:"retry_delay"`

	BinarySensor CategoryPollConfig `yaml:"binary_sensor"`
	Climate      CategoryPollConfig `yaml:"climate"`
}

// CategoryPollConfig contains the per-category poll settings, in seconds.
type CategoryPollConfig struct {
	Interval       int `yaml:"interval"`
	AttemptTimeout int `yaml:"attempt_timeout"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// TelemetryConfig contains InfluxDB connection settings for poll metrics.
type TelemetryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: IT600_SECTION_KEY
// For example: IT600_GATEWAY_HOST, IT600_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{
			ID:             "it600-bridge-001",
			Name:           "iT600 Bridge",
			HealthInterval: 30,
		},
		Gateway: GatewayConfig{
			Port:           80,
			RequestTimeout: 30,
		},
		Poller: PollerConfig{
			MaxAttempts: 3,
			RetryDelay:  5,
			BinarySensor: CategoryPollConfig{
				Interval:       10,
				AttemptTimeout: 10,
			},
			Climate: CategoryPollConfig{
				Interval:       30,
				AttemptTimeout: 30,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/graylogic-it600.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "graylogic-it600",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8081,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: IT600_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Gateway
	if v := os.Getenv("IT600_GATEWAY_HOST"); v != "" {
		cfg.Gateway.Host = v
	}
	if v := os.Getenv("IT600_GATEWAY_TOKEN"); v != "" {
		cfg.Gateway.Token = v
	}

	// Database
	if v := os.Getenv("IT600_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("IT600_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("IT600_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("IT600_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("IT600_API_HOST"); v != "" {
		cfg.API.Host = v
	}

	// Telemetry
	if v := os.Getenv("IT600_TELEMETRY_TOKEN"); v != "" {
		cfg.Telemetry.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Bridge validation
	if c.Bridge.ID == "" {
		errs = append(errs, "bridge.id is required")
	}
	if c.Bridge.HealthInterval < 1 {
		errs = append(errs, "bridge.health_interval must be at least 1 second")
	}

	// Gateway validation - the daemon is useless without a reachable,
	// authenticated gateway, so fail fast here rather than at runtime.
	if c.Gateway.Host == "" {
		errs = append(errs, "gateway.host is required")
	}
	if c.Gateway.Token == "" {
		errs = append(errs, "gateway.token is required (set IT600_GATEWAY_TOKEN environment variable)")
	}

	// Poller validation
	if c.Poller.MaxAttempts < 1 {
		errs = append(errs, "poller.max_attempts must be at least 1")
	}
	if c.Poller.RetryDelay < 0 {
		errs = append(errs, "poller.retry_delay must not be negative")
	}
	if c.Poller.BinarySensor.Interval < 1 {
		errs = append(errs, "poller.binary_sensor.interval must be at least 1 second")
	}
	if c.Poller.BinarySensor.AttemptTimeout < 1 {
		errs = append(errs, "poller.binary_sensor.attempt_timeout must be at least 1 second")
	}
	if c.Poller.Climate.Interval < 1 {
		errs = append(errs, "poller.climate.interval must be at least 1 second")
	}
	if c.Poller.Climate.AttemptTimeout < 1 {
		errs = append(errs, "poller.climate.attempt_timeout must be at least 1 second")
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRequestTimeout returns the gateway request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.Gateway.RequestTimeout) * time.Second
}

// GetHealthInterval returns the bridge health interval as a Duration.
func (c *Config) GetHealthInterval() time.Duration {
	return time.Duration(c.Bridge.HealthInterval) * time.Second
}

// GetRetryDelay returns the poller retry delay as a Duration.
func (c *Config) GetRetryDelay() time.Duration {
	return time.Duration(c.Poller.RetryDelay) * time.Second
}

// GetInterval returns the category's poll interval as a Duration.
func (p CategoryPollConfig) GetInterval() time.Duration {
	return time.Duration(p.Interval) * time.Second
}

// GetAttemptTimeout returns the category's attempt timeout as a Duration.
func (p CategoryPollConfig) GetAttemptTimeout() time.Duration {
	return time.Duration(p.AttemptTimeout) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
