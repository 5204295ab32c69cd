package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Azoula gateway client.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Gateway   GatewayConfig   `yaml:"gateway"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Timeouts  TimeoutConfig   `yaml:"timeouts"`
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// GatewayConfig identifies the gateway and the topic namespace it uses.
type GatewayConfig struct {
	// ID is the gateway serial, used as the last topic segment and as the
	// deviceID of gateway-level requests.
	ID string `yaml:"id"`

	// ClientIDPrefix is prepended to every generated MQTT client id.
	ClientIDPrefix string `yaml:"client_id_prefix"`

	GatewayTopicPrefix     string `yaml:"gateway_topic_prefix"`
	PlatformAppTopicPrefix string `yaml:"platform_app_topic_prefix"`
}

// MQTTConfig contains MQTT broker connection settings.
// The broker is the gateway itself.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	Enabled  bool `yaml:"enabled"`
	MaxDelay int  `yaml:"max_delay"`
}

// TimeoutConfig holds the default wait for each kind of gateway call.
// A deadline on the caller's context takes precedence.
type TimeoutConfig struct {
	Discovery   time.Duration `yaml:"discovery"`
	TSL         time.Duration `yaml:"tsl"`
	PropertyGet time.Duration `yaml:"property_get"`
	Service     time.Duration `yaml:"service"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings, in seconds.
type APITimeoutConfig struct {
	Read int `yaml:"read"`

	// Write bounds a whole request including its response. POST
	// /discover?tsl=true holds the response for the discovery timeout plus
	// one TSL timeout per device, so Write must cover that for the gateway's
	// device count or the client sees a dropped connection.
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket server settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults), skipped when path is empty
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: AZOULA_SECTION_KEY
// For example: AZOULA_GATEWAY_ID, AZOULA_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file, or "" for defaults and environment only
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns a Config with sensible defaults. Gateway.ID and the broker
// host have no default and must be supplied.
func Default() *Config {
	return &Config{
		Gateway: GatewayConfig{
			ClientIDPrefix:         "azoula",
			GatewayTopicPrefix:     "meribee/gateway",
			PlatformAppTopicPrefix: "meribee/platform-app",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Port: 1883,
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				Enabled:  true,
				MaxDelay: 60,
			},
		},
		Timeouts: TimeoutConfig{
			Discovery:   30 * time.Second,
			TSL:         5 * time.Second,
			PropertyGet: 3 * time.Second,
			Service:     5 * time.Second,
		},
		Database: DatabaseConfig{
			Path:        "./data/azoula.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 300,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		InfluxDB: InfluxDBConfig{
			Bucket:        "azoula",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// envOverrides maps each supported environment variable onto the field it
// replaces. Names follow AZOULA_SECTION_KEY.
func envOverrides(cfg *Config) map[string]func(string) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	num := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	flag := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}
	dur := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*dst = d
			return nil
		}
	}

	return map[string]func(string) error{
		"AZOULA_GATEWAY_ID":         str(&cfg.Gateway.ID),
		"AZOULA_MQTT_HOST":          str(&cfg.MQTT.Broker.Host),
		"AZOULA_MQTT_PORT":          num(&cfg.MQTT.Broker.Port),
		"AZOULA_MQTT_TLS":           flag(&cfg.MQTT.Broker.TLS),
		"AZOULA_MQTT_USERNAME":      str(&cfg.MQTT.Auth.Username),
		"AZOULA_MQTT_PASSWORD":      str(&cfg.MQTT.Auth.Password),
		"AZOULA_TIMEOUTS_DISCOVERY": dur(&cfg.Timeouts.Discovery),
		"AZOULA_DATABASE_PATH":      str(&cfg.Database.Path),
		"AZOULA_API_HOST":           str(&cfg.API.Host),
		"AZOULA_API_PORT":           num(&cfg.API.Port),
		"AZOULA_INFLUXDB_ENABLED":   flag(&cfg.InfluxDB.Enabled),
		"AZOULA_INFLUXDB_URL":       str(&cfg.InfluxDB.URL),
		"AZOULA_INFLUXDB_TOKEN":     str(&cfg.InfluxDB.Token),
		"AZOULA_LOG_LEVEL":          str(&cfg.Logging.Level),
	}
}

// applyEnvOverrides applies every non-empty AZOULA_* variable.
func applyEnvOverrides(cfg *Config) error {
	for name, set := range envOverrides(cfg) {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		if err := set(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Gateway validation
	if c.Gateway.ID == "" {
		errs = append(errs, "gateway.id is required (set AZOULA_GATEWAY_ID environment variable)")
	}
	if strings.ContainsAny(c.Gateway.ID, "+#/") {
		errs = append(errs, "gateway.id must not contain MQTT topic separators or wildcards")
	}

	// MQTT validation
	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Timeout validation
	if c.Timeouts.Discovery <= 0 || c.Timeouts.TSL <= 0 ||
		c.Timeouts.PropertyGet <= 0 || c.Timeouts.Service <= 0 {
		errs = append(errs, "timeouts must all be positive")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the read timeout as a Duration.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the write timeout as a Duration.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the idle timeout as a Duration.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
