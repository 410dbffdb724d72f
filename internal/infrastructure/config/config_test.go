package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
mqtt:
  mqtt_client_id: "hall-bridge"
  mqtt_host: "broker.lan"
  mqtt_port: 8883
  mqtt_user: "bridge"
  mqtt_password: "s3cret"
  mqtt_topic_prefix: "home/ac"
  qos: 1
discovery:
  bind_to_ip: "192.168.1.10"
  update_interval: 30
  simulated:
    - address: "aa:bb:cc:dd:ee:ff"
      name: "Bedroom"
      host: "192.168.1.50"
      port: 80
      device_type: 0x4E2A
      temperature: 23
database:
  enabled: true
  path: "/tmp/acbridge.db"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.ClientID != "hall-bridge" || cfg.MQTT.Host != "broker.lan" || cfg.MQTT.Port != 8883 {
		t.Errorf("MQTT = %+v", cfg.MQTT)
	}
	if cfg.MQTT.TopicPrefix != "home/ac" {
		t.Errorf("TopicPrefix = %q, want home/ac", cfg.MQTT.TopicPrefix)
	}
	if !cfg.MQTT.AuthEnabled() {
		t.Error("AuthEnabled() = false with both credentials set")
	}
	if cfg.UpdateInterval() != 30*time.Second {
		t.Errorf("UpdateInterval() = %v, want 30s", cfg.UpdateInterval())
	}
	if cfg.DiscoveryTimeout() != 5*time.Second {
		t.Errorf("DiscoveryTimeout() = %v, want default 5s", cfg.DiscoveryTimeout())
	}
	if len(cfg.Discovery.Simulated) != 1 || cfg.Discovery.Simulated[0].DeviceType != 0x4E2A {
		t.Errorf("Simulated = %+v", cfg.Discovery.Simulated)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want default info", cfg.Logging.Level)
	}
	if cfg.HistoryRetention() != 30*24*time.Hour {
		t.Errorf("HistoryRetention() = %v", cfg.HistoryRetention())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	if _, err := Load(writeConfig(t, "mqtt: [yaml: content")); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ACBRIDGE_MQTT_HOST", "env-broker")
	t.Setenv("ACBRIDGE_MQTT_PORT", "1884")
	t.Setenv("ACBRIDGE_MQTT_TOPIC_PREFIX", "climate")
	t.Setenv("ACBRIDGE_BIND_TO_IP", "10.0.0.2")
	t.Setenv("ACBRIDGE_LOG_LEVEL", "debug")

	cfg, err := Load(writeConfig(t, "mqtt:\n  mqtt_host: file-broker\n"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.MQTT.Host != "env-broker" || cfg.MQTT.Port != 1884 {
		t.Errorf("MQTT host/port = %s:%d, want env-broker:1884", cfg.MQTT.Host, cfg.MQTT.Port)
	}
	if cfg.MQTT.TopicPrefix != "climate" {
		t.Errorf("TopicPrefix = %q, want climate", cfg.MQTT.TopicPrefix)
	}
	if cfg.Discovery.BindToIP != "10.0.0.2" {
		t.Errorf("BindToIP = %q", cfg.Discovery.BindToIP)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_BadEnvPort(t *testing.T) {
	t.Setenv("ACBRIDGE_MQTT_PORT", "not-a-port")

	if _, err := Load(writeConfig(t, "")); err == nil {
		t.Error("Load() expected error for non-numeric ACBRIDGE_MQTT_PORT")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults valid", func(*Config) {}, ""},
		{"bad port", func(c *Config) { c.MQTT.Port = 0 }, "mqtt_port"},
		{"bad qos", func(c *Config) { c.MQTT.QoS = 3 }, "qos"},
		{"empty prefix", func(c *Config) { c.MQTT.TopicPrefix = "/" }, "mqtt_topic_prefix is required"},
		{"wildcard prefix", func(c *Config) { c.MQTT.TopicPrefix = "ac/+" }, "wildcards"},
		{"zero interval", func(c *Config) { c.Discovery.UpdateInterval = 0 }, "update_interval"},
		{"zero discovery timeout", func(c *Config) { c.Discovery.Timeout = 0 }, "discovery.timeout"},
		{"unknown driver", func(c *Config) { c.Discovery.Driver = "udp" }, "driver"},
		{"influx without url", func(c *Config) { c.InfluxDB.Enabled = true }, "influxdb.url"},
		{"api bad port", func(c *Config) { c.API.Enabled = true; c.API.Port = 70000 }, "api.port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestAuthEnabled(t *testing.T) {
	tests := []struct {
		user, password string
		want           bool
	}{
		{"", "", false},
		{"bridge", "", false},
		{"", "s3cret", false},
		{"bridge", "s3cret", true},
	}

	for _, tt := range tests {
		m := MQTTConfig{User: tt.user, Password: tt.password}
		if got := m.AuthEnabled(); got != tt.want {
			t.Errorf("AuthEnabled(%q, %q) = %v, want %v", tt.user, tt.password, got, tt.want)
		}
	}
}

func TestPathFromEnv(t *testing.T) {
	t.Setenv("ACBRIDGE_CONFIG", "")
	if got := PathFromEnv(); got != DefaultPath {
		t.Errorf("PathFromEnv() = %q, want %q", got, DefaultPath)
	}

	t.Setenv("ACBRIDGE_CONFIG", "/etc/acbridge.yaml")
	if got := PathFromEnv(); got != "/etc/acbridge.yaml" {
		t.Errorf("PathFromEnv() = %q", got)
	}
}
