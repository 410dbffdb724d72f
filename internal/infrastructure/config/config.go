package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is used when ACBRIDGE_CONFIG is unset.
const DefaultPath = "configs/config.yaml"

// Config is the root configuration structure for the bridge.
// Values come from defaults, then the YAML file, then environment variables.
type Config struct {
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Discovery DiscoveryConfig `yaml:"discovery"`
	Bridge    BridgeConfig    `yaml:"bridge"`
	Database  DatabaseConfig  `yaml:"database"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	API       APIConfig       `yaml:"api"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// MQTTConfig contains broker connection settings. Key names match the
// option names used by existing host configurations.
type MQTTConfig struct {
	ClientID    string              `yaml:"mqtt_client_id"`
	Host        string              `yaml:"mqtt_host"`
	Port        int                 `yaml:"mqtt_port"`
	User        string              `yaml:"mqtt_user"`
	Password    string              `yaml:"mqtt_password"`
	TopicPrefix string              `yaml:"mqtt_topic_prefix"`
	TLS         bool                `yaml:"tls"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
}

// AuthEnabled reports whether both credentials are set. A lone user or
// password leaves the connection anonymous.
func (m MQTTConfig) AuthEnabled() bool {
	return m.User != "" && m.Password != ""
}

// MQTTReconnectConfig contains the reconnection back-off ceiling in seconds.
type MQTTReconnectConfig struct {
	MaxDelay int `yaml:"max_delay"`
}

// DiscoveryConfig controls how devices are found and polled.
type DiscoveryConfig struct {
	BindToIP       string            `yaml:"bind_to_ip"`
	UpdateInterval int               `yaml:"update_interval"`
	Timeout        int               `yaml:"timeout"`
	CommandTimeout int               `yaml:"command_timeout"`
	Driver         string            `yaml:"driver"`
	Simulated      []SimulatedDevice `yaml:"simulated"`
}

// SimulatedDevice describes one virtual unit served by the simulator driver.
type SimulatedDevice struct {
	Address            string  `yaml:"address"`
	Name               string  `yaml:"name"`
	Host               string  `yaml:"host"`
	Port               int     `yaml:"port"`
	DeviceType         uint16  `yaml:"device_type"`
	Temperature        float64 `yaml:"temperature"`
	AmbientTemperature float64 `yaml:"ambient_temperature"`
}

// BridgeConfig contains bridge behaviour toggles.
type BridgeConfig struct {
	Diagnostics bool `yaml:"diagnostics"`
}

// DatabaseConfig contains SQLite settings for state history.
type DatabaseConfig struct {
	Enabled              bool   `yaml:"enabled"`
	Path                 string `yaml:"path"`
	WALMode              bool   `yaml:"wal_mode"`
	BusyTimeout          int    `yaml:"busy_timeout"`
	HistoryRetentionDays int    `yaml:"history_retention_days"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains HTTP status API settings.
type APIConfig struct {
	Enabled   bool            `yaml:"enabled"`
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	WebSocket WebSocketConfig `yaml:"websocket"`
}

// WebSocketConfig contains WebSocket stream settings.
type WebSocketConfig struct {
	MaxMessageSize int `yaml:"max_message_size"`
	PingInterval   int `yaml:"ping_interval"`
	PongTimeout    int `yaml:"pong_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// Environment variables follow the pattern ACBRIDGE_<KEY>, for example
// ACBRIDGE_MQTT_HOST or ACBRIDGE_DATABASE_PATH.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// PathFromEnv returns ACBRIDGE_CONFIG or DefaultPath.
func PathFromEnv() string {
	if v := os.Getenv("ACBRIDGE_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

func defaultConfig() *Config {
	return &Config{
		MQTT: MQTTConfig{
			Host:        "localhost",
			Port:        1883,
			TopicPrefix: "ac",
			Reconnect:   MQTTReconnectConfig{MaxDelay: 60},
		},
		Discovery: DiscoveryConfig{
			UpdateInterval: 10,
			Timeout:        5,
			Driver:         "simulator",
		},
		Bridge: BridgeConfig{
			Diagnostics: true,
		},
		Database: DatabaseConfig{
			Path:                 "./data/acbridge.db",
			WALMode:              true,
			BusyTimeout:          5,
			HistoryRetentionDays: 30,
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8090,
			WebSocket: WebSocketConfig{
				MaxMessageSize: 4096,
				PingInterval:   30,
				PongTimeout:    10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ACBRIDGE_MQTT_HOST"); v != "" {
		cfg.MQTT.Host = v
	}
	if v := os.Getenv("ACBRIDGE_MQTT_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ACBRIDGE_MQTT_PORT: %w", err)
		}
		cfg.MQTT.Port = port
	}
	if v := os.Getenv("ACBRIDGE_MQTT_USER"); v != "" {
		cfg.MQTT.User = v
	}
	if v := os.Getenv("ACBRIDGE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("ACBRIDGE_MQTT_TOPIC_PREFIX"); v != "" {
		cfg.MQTT.TopicPrefix = v
	}
	if v := os.Getenv("ACBRIDGE_BIND_TO_IP"); v != "" {
		cfg.Discovery.BindToIP = v
	}
	if v := os.Getenv("ACBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ACBRIDGE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("ACBRIDGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.MQTT.Host == "" {
		errs = append(errs, "mqtt.mqtt_host is required")
	}
	if c.MQTT.Port < 1 || c.MQTT.Port > 65535 {
		errs = append(errs, "mqtt.mqtt_port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	prefix := strings.Trim(c.MQTT.TopicPrefix, "/")
	if prefix == "" {
		errs = append(errs, "mqtt.mqtt_topic_prefix is required")
	} else if strings.ContainsAny(prefix, "+#") {
		errs = append(errs, "mqtt.mqtt_topic_prefix must not contain wildcards")
	}

	if c.Discovery.UpdateInterval <= 0 {
		errs = append(errs, "discovery.update_interval must be positive")
	}
	if c.Discovery.Timeout <= 0 {
		errs = append(errs, "discovery.timeout must be positive")
	}
	if c.Discovery.CommandTimeout < 0 {
		errs = append(errs, "discovery.command_timeout must not be negative")
	}
	if c.Discovery.Driver != "simulator" {
		errs = append(errs, fmt.Sprintf("discovery.driver %q is not supported", c.Discovery.Driver))
	}

	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required when influxdb is enabled")
	}
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// UpdateInterval returns the per-device poll interval.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.Discovery.UpdateInterval) * time.Second
}

// DiscoveryTimeout returns the discovery bound.
func (c *Config) DiscoveryTimeout() time.Duration {
	return time.Duration(c.Discovery.Timeout) * time.Second
}

// CommandTimeout returns the per-operation device timeout; zero selects the family default.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Discovery.CommandTimeout) * time.Second
}

// HistoryRetention returns how long state history rows are kept.
func (c *Config) HistoryRetention() time.Duration {
	return time.Duration(c.Database.HistoryRetentionDays) * 24 * time.Hour
}
