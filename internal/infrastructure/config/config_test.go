package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
bridge:
  id: "test-bridge"
gateway:
  host: "192.168.1.50"
  token: "test-token"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8081
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bridge.ID != "test-bridge" {
		t.Errorf("Bridge.ID = %q, want %q", cfg.Bridge.ID, "test-bridge")
	}

	if cfg.Gateway.Host != "192.168.1.50" {
		t.Errorf("Gateway.Host = %q, want %q", cfg.Gateway.Host, "192.168.1.50")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	// File values merge over defaults, not replace them.
	if cfg.Poller.MaxAttempts != 3 {
		t.Errorf("Poller.MaxAttempts = %d, want default 3", cfg.Poller.MaxAttempts)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte("invalid: [yaml: content"), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	content := `
bridge:
  id: "test-bridge"
gateway:
  host: ""
database:
  path: "/tmp/test.db"
api:
  port: 8081
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty gateway.host, got nil")
	}
}

// validTestConfig returns a config that passes Validate; tests mutate one
// field at a time.
func validTestConfig() *Config {
	cfg := defaultConfig()
	cfg.Gateway.Host = "192.168.1.50"
	cfg.Gateway.Token = "test-token"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"missing bridge ID", func(c *Config) { c.Bridge.ID = "" }, true},
		{"zero health interval", func(c *Config) { c.Bridge.HealthInterval = 0 }, true},
		{"missing gateway host", func(c *Config) { c.Gateway.Host = "" }, true},
		{"missing gateway token", func(c *Config) { c.Gateway.Token = "" }, true},
		{"zero max attempts", func(c *Config) { c.Poller.MaxAttempts = 0 }, true},
		{"negative retry delay", func(c *Config) { c.Poller.RetryDelay = -1 }, true},
		{"zero binary sensor interval", func(c *Config) { c.Poller.BinarySensor.Interval = 0 }, true},
		{"zero climate attempt timeout", func(c *Config) { c.Poller.Climate.AttemptTimeout = 0 }, true},
		{"missing database path", func(c *Config) { c.Database.Path = "" }, true},
		{"invalid QoS", func(c *Config) { c.MQTT.QoS = 3 }, true},
		{"invalid port low", func(c *Config) { c.API.Port = 0 }, true},
		{"invalid port high", func(c *Config) { c.API.Port = 70000 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		Bridge:  BridgeConfig{HealthInterval: 30},
		Gateway: GatewayConfig{RequestTimeout: 15},
		Poller: PollerConfig{
			RetryDelay:   5,
			BinarySensor: CategoryPollConfig{Interval: 10, AttemptTimeout: 10},
			Climate:      CategoryPollConfig{Interval: 30, AttemptTimeout: 30},
		},
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
	}

	if got := cfg.GetRequestTimeout().Seconds(); got != 15 {
		t.Errorf("GetRequestTimeout() = %v, want 15", got)
	}

	if got := cfg.GetHealthInterval().Seconds(); got != 30 {
		t.Errorf("GetHealthInterval() = %v, want 30", got)
	}

	if got := cfg.GetRetryDelay().Seconds(); got != 5 {
		t.Errorf("GetRetryDelay() = %v, want 5", got)
	}

	if got := cfg.Poller.BinarySensor.GetInterval().Seconds(); got != 10 {
		t.Errorf("BinarySensor.GetInterval() = %v, want 10", got)
	}

	if got := cfg.Poller.Climate.GetAttemptTimeout().Seconds(); got != 30 {
		t.Errorf("Climate.GetAttemptTimeout() = %v, want 30", got)
	}

	if got := cfg.GetReadTimeout().Seconds(); got != 30 {
		t.Errorf("GetReadTimeout() = %v, want 30", got)
	}

	if got := cfg.GetWriteTimeout().Seconds(); got != 45 {
		t.Errorf("GetWriteTimeout() = %v, want 45", got)
	}

	if got := cfg.GetIdleTimeout().Seconds(); got != 60 {
		t.Errorf("GetIdleTimeout() = %v, want 60", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("IT600_GATEWAY_HOST", "192.168.1.50")
	t.Setenv("IT600_GATEWAY_TOKEN", "secret-token")
	t.Setenv("IT600_DATABASE_PATH", "/custom/path.db")
	t.Setenv("IT600_MQTT_HOST", "mqtt.example.com")
	t.Setenv("IT600_MQTT_USERNAME", "testuser")
	t.Setenv("IT600_MQTT_PASSWORD", "testpass")
	t.Setenv("IT600_API_HOST", "192.168.1.1")
	t.Setenv("IT600_TELEMETRY_TOKEN", "influx-token")

	applyEnvOverrides(cfg)

	if cfg.Gateway.Host != "192.168.1.50" {
		t.Errorf("Gateway.Host = %q, want %q", cfg.Gateway.Host, "192.168.1.50")
	}

	if cfg.Gateway.Token != "secret-token" {
		t.Errorf("Gateway.Token = %q, want %q", cfg.Gateway.Token, "secret-token")
	}

	if cfg.Database.Path != "/custom/path.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/custom/path.db")
	}

	if cfg.MQTT.Broker.Host != "mqtt.example.com" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "mqtt.example.com")
	}

	if cfg.MQTT.Auth.Username != "testuser" {
		t.Errorf("MQTT.Auth.Username = %q, want %q", cfg.MQTT.Auth.Username, "testuser")
	}

	if cfg.MQTT.Auth.Password != "testpass" {
		t.Errorf("MQTT.Auth.Password = %q, want %q", cfg.MQTT.Auth.Password, "testpass")
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.Telemetry.Token != "influx-token" {
		t.Errorf("Telemetry.Token = %q, want %q", cfg.Telemetry.Token, "influx-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.ID == "" {
		t.Error("defaultConfig should have non-empty Bridge.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.API.Port != 8081 {
		t.Errorf("defaultConfig API.Port = %d, want 8081", cfg.API.Port)
	}

	// Defaults mirror the gateway's documented behaviour.
	if cfg.Poller.MaxAttempts != 3 || cfg.Poller.RetryDelay != 5 {
		t.Errorf("defaultConfig retry budget = %d/%ds, want 3/5s",
			cfg.Poller.MaxAttempts, cfg.Poller.RetryDelay)
	}
	if cfg.Poller.BinarySensor.Interval != 10 || cfg.Poller.Climate.Interval != 30 {
		t.Errorf("defaultConfig intervals = %d/%d, want 10/30",
			cfg.Poller.BinarySensor.Interval, cfg.Poller.Climate.Interval)
	}
}
