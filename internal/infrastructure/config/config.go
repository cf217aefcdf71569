package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for orgbd.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Ops       OpsConfig       `yaml:"ops"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Database  DatabaseConfig  `yaml:"database"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Events    EventsConfig    `yaml:"events"`
	Logging   LoggingConfig   `yaml:"logging"`
	Devices   []DeviceConfig  `yaml:"devices"`
}

// ServerConfig contains the ORGB listener settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	MaxConnections int    `yaml:"max_connections"` // 0 = unbounded
	MaxPayloadSize int    `yaml:"max_payload_size"`

	// FrameTimeout bounds how long a started frame may take to arrive.
	// 0 disables the deadline.
	FrameTimeout time.Duration `yaml:"frame_timeout"`

	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// OpsConfig contains the operations HTTP API settings.
type OpsConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains live event feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// DatabaseConfig contains SQLite audit database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`
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

// EventsConfig tunes the internal event bus.
type EventsConfig struct {
	QueueSize   int           `yaml:"queue_size"`
	Workers     int           `yaml:"workers"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DeviceConfig defines one virtual controller.
type DeviceConfig struct {
	Name        string       `yaml:"name"`
	Type        string       `yaml:"type"`
	Description string       `yaml:"description"`
	Version     string       `yaml:"version"`
	Serial      string       `yaml:"serial"`
	Location    string       `yaml:"location"`
	ActiveMode  int          `yaml:"active_mode"`
	Modes       []ModeConfig `yaml:"modes"`
	Zones       []ZoneConfig `yaml:"zones"`
}

// ModeConfig defines one operating mode of a virtual controller.
type ModeConfig struct {
	Name      string `yaml:"name"`
	Value     int    `yaml:"value"`
	ColorMode string `yaml:"color_mode"` // none, per_led, mode_specific, random
	SpeedMin  int    `yaml:"speed_min"`
	SpeedMax  int    `yaml:"speed_max"`
	ColorsMin int    `yaml:"colors_min"`
	ColorsMax int    `yaml:"colors_max"`
}

// ZoneConfig defines one LED zone of a virtual controller.
type ZoneConfig struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"` // single, linear, matrix
	LEDsMin int    `yaml:"leds_min"`
	LEDsMax int    `yaml:"leds_max"`
	LEDs    int    `yaml:"leds"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ORGBD_SECTION_KEY
// For example: ORGBD_SERVER_PORT, ORGBD_DATABASE_PATH
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
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
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            1337,
			MaxConnections:  64,
			MaxPayloadSize:  1 << 20,
			FrameTimeout:    10 * time.Second,
			WriteTimeout:    5 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Ops: OpsConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/api/v1/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Database: DatabaseConfig{
			Path:        "./data/orgbd.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "orgbd",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
			TopicPrefix: "orgb",
		},
		InfluxDB: InfluxDBConfig{
			BatchSize:     100,
			FlushInterval: 10,
		},
		Events: EventsConfig{
			QueueSize:   256,
			Workers:     4,
			SinkTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: ORGBD_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Server
	if v := os.Getenv("ORGBD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ORGBD_SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("ORGBD_SERVER_PORT: %w", err)
		}
		cfg.Server.Port = port
	}

	// Ops
	if v := os.Getenv("ORGBD_OPS_HOST"); v != "" {
		cfg.Ops.Host = v
	}

	// Database
	if v := os.Getenv("ORGBD_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("ORGBD_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("ORGBD_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("ORGBD_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("ORGBD_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("ORGBD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	return nil
}

var (
	validZoneTypes  = []string{"single", "linear", "matrix"}
	validColorModes = []string{"", "none", "per_led", "mode_specific", "random"}
)

// maxLEDs is the most LEDs one device description can list.
const maxLEDs = math.MaxUint16

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Server validation
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, "server.max_connections must not be negative")
	}
	if c.Server.MaxPayloadSize < 1 || int64(c.Server.MaxPayloadSize) > math.MaxUint32 {
		errs = append(errs, "server.max_payload_size must be between 1 and 4294967295")
	}
	if c.Server.FrameTimeout < 0 || c.Server.WriteTimeout < 0 {
		errs = append(errs, "server timeouts must not be negative")
	}

	// Ops validation
	if c.Ops.Enabled && (c.Ops.Port < 1 || c.Ops.Port > 65535) {
		errs = append(errs, "ops.port must be between 1 and 65535")
	}
	if c.Ops.Enabled && c.Ops.Port == c.Server.Port && c.Ops.Host == c.Server.Host {
		errs = append(errs, "ops and server must not share an address")
	}

	// Database validation
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required when the database is enabled")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Enabled && c.MQTT.TopicPrefix == "" {
		errs = append(errs, "mqtt.topic_prefix is required when mqtt is enabled")
	}

	// InfluxDB validation
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	// Events validation
	if c.Events.QueueSize < 1 || c.Events.Workers < 1 {
		errs = append(errs, "events.queue_size and events.workers must be positive")
	}

	errs = append(errs, c.validateDevices()...)

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateDevices() []string {
	var errs []string
	for i, d := range c.Devices {
		prefix := fmt.Sprintf("devices[%d]", i)
		if d.Name == "" {
			errs = append(errs, prefix+".name is required")
		}
		if len(d.Modes) > 0 && (d.ActiveMode < 0 || d.ActiveMode >= len(d.Modes)) {
			errs = append(errs, prefix+".active_mode must index modes")
		}
		for j, m := range d.Modes {
			if !contains(validColorModes, m.ColorMode) {
				errs = append(errs, fmt.Sprintf("%s.modes[%d].color_mode %q is not valid", prefix, j, m.ColorMode))
			}
		}
		totalLEDs := 0
		for j, z := range d.Zones {
			zp := fmt.Sprintf("%s.zones[%d]", prefix, j)
			if !contains(validZoneTypes, z.Type) {
				errs = append(errs, fmt.Sprintf("%s.type %q is not valid", zp, z.Type))
			}
			if z.LEDsMin < 0 || z.LEDsMin > z.LEDs || z.LEDs > z.LEDsMax {
				errs = append(errs, zp+" must satisfy 0 <= leds_min <= leds <= leds_max")
			}
			if z.LEDsMax > maxLEDs {
				errs = append(errs, fmt.Sprintf("%s.leds_max must not exceed %d", zp, maxLEDs))
			}
			totalLEDs += z.LEDs
		}
		if totalLEDs > maxLEDs {
			errs = append(errs, fmt.Sprintf("%s has %d LEDs, more than %d", prefix, totalLEDs, maxLEDs))
		}
	}
	return errs
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if strings.EqualFold(s, v) {
			return true
		}
	}
	return false
}

// ReadTimeout returns the ops API read timeout as a Duration.
func (c OpsConfig) ReadTimeout() time.Duration {
	return time.Duration(c.Timeouts.Read) * time.Second
}

// WriteTimeout returns the ops API write timeout as a Duration.
func (c OpsConfig) WriteTimeout() time.Duration {
	return time.Duration(c.Timeouts.Write) * time.Second
}

// IdleTimeout returns the ops API idle timeout as a Duration.
func (c OpsConfig) IdleTimeout() time.Duration {
	return time.Duration(c.Timeouts.Idle) * time.Second
}
