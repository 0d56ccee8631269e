package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_ValidConfig(t *testing.T) {
	// Create a temporary config file
	content := `
house:
  id: "test-house"
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
alarm:
  poll_interval_ms: 1000
api:
  host: "0.0.0.0"
  port: 8080
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

	if cfg.House.ID != "test-house" {
		t.Errorf("House.ID = %q, want %q", cfg.House.ID, "test-house")
	}

	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}

	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	if cfg.Alarm.PollIntervalMs != 1000 {
		t.Errorf("Alarm.PollIntervalMs = %d, want 1000", cfg.Alarm.PollIntervalMs)
	}

	// Sections absent from the file keep their defaults.
	if cfg.Interlock.RefreshIntervalMs != 2000 {
		t.Errorf("Interlock.RefreshIntervalMs = %d, want default 2000", cfg.Interlock.RefreshIntervalMs)
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
house:
  id: ""
database:
  path: "/tmp/test.db"
api:
  port: 8080
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected validation error for empty house.id, got nil")
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			House:    HouseConfig{ID: "house-001"},
			Database: DatabaseConfig{Path: "/data/poucon.db"},
			MQTT: MQTTConfig{
				QoS:         1,
				TopicPrefix: "poucon",
			},
			Alarm: AlarmConfig{
				PollIntervalMs:  2000,
				StatusTimeoutMs: 500,
			},
			Interlock: InterlockConfig{
				RefreshIntervalMs: 2000,
				StatusTimeoutMs:   500,
			},
			Events: EventsConfig{RetentionDays: 90},
			API:    APIConfig{Port: 8080},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "missing house ID",
			mutate:  func(c *Config) { c.House.ID = "" },
			wantErr: true,
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: true,
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: true,
		},
		{
			name:    "missing topic prefix",
			mutate:  func(c *Config) { c.MQTT.TopicPrefix = "" },
			wantErr: true,
		},
		{
			name:    "poll interval too small",
			mutate:  func(c *Config) { c.Alarm.PollIntervalMs = 50 },
			wantErr: true,
		},
		{
			name:    "status timeout above one second",
			mutate:  func(c *Config) { c.Alarm.StatusTimeoutMs = 2000 },
			wantErr: true,
		},
		{
			name:    "interlock status timeout too small",
			mutate:  func(c *Config) { c.Interlock.StatusTimeoutMs = 10 },
			wantErr: true,
		},
		{
			name:    "retention days zero",
			mutate:  func(c *Config) { c.Events.RetentionDays = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: true,
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
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
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
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

func TestConfig_EngineDurations(t *testing.T) {
	cfg := &Config{
		Alarm: AlarmConfig{
			PollIntervalMs:  2000,
			StatusTimeoutMs: 500,
		},
		Interlock: InterlockConfig{
			RefreshIntervalMs: 1500,
			StatusTimeoutMs:   250,
		},
	}

	if got := cfg.PollInterval().Milliseconds(); got != 2000 {
		t.Errorf("PollInterval() = %vms, want 2000", got)
	}

	if got := cfg.AlarmStatusTimeout().Milliseconds(); got != 500 {
		t.Errorf("AlarmStatusTimeout() = %vms, want 500", got)
	}

	if got := cfg.RefreshInterval().Milliseconds(); got != 1500 {
		t.Errorf("RefreshInterval() = %vms, want 1500", got)
	}

	if got := cfg.InterlockStatusTimeout().Milliseconds(); got != 250 {
		t.Errorf("InterlockStatusTimeout() = %vms, want 250", got)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	// Set environment variables
	t.Setenv("POUCON_DATABASE_PATH", "/custom/path.db")
	t.Setenv("POUCON_MQTT_HOST", "mqtt.example.com")
	t.Setenv("POUCON_MQTT_USERNAME", "testuser")
	t.Setenv("POUCON_MQTT_PASSWORD", "testpass")
	t.Setenv("POUCON_ALARM_POLL_INTERVAL_MS", "3000")
	t.Setenv("POUCON_API_HOST", "192.168.1.1")
	t.Setenv("POUCON_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

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

	if cfg.Alarm.PollIntervalMs != 3000 {
		t.Errorf("Alarm.PollIntervalMs = %d, want 3000", cfg.Alarm.PollIntervalMs)
	}

	if cfg.API.Host != "192.168.1.1" {
		t.Errorf("API.Host = %q, want %q", cfg.API.Host, "192.168.1.1")
	}

	if cfg.InfluxDB.Token != "secret-token" {
		t.Errorf("InfluxDB.Token = %q, want %q", cfg.InfluxDB.Token, "secret-token")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.House.ID == "" {
		t.Error("defaultConfig should have non-empty House.ID")
	}

	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}

	if cfg.Alarm.PollIntervalMs != 2000 {
		t.Errorf("defaultConfig Alarm.PollIntervalMs = %d, want 2000", cfg.Alarm.PollIntervalMs)
	}

	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
}
