package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the MQTT manager.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Device   DeviceConfig   `yaml:"device"`
	Storage  StorageConfig  `yaml:"storage"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Network  NetworkConfig  `yaml:"network"`
	Console  ConsoleConfig  `yaml:"console"`
	InfluxDB InfluxDBConfig `yaml:"influxdb"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// DeviceConfig identifies the device this manager runs on.
type DeviceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// Storage backends.
const (
	StorageBackendSQLite = "sqlite"
	StorageBackendRedis  = "redis"
)

// StorageConfig selects and configures the persistent key-value backend
// holding the connection profile.
type StorageConfig struct {
	// Backend is "sqlite" (default) or "redis".
	Backend string `yaml:"backend"`

	// Namespace groups the manager's blobs inside the shared store.
	Namespace string `yaml:"namespace"`

	SQLite SQLiteConfig `yaml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis"`

	// LockTimeout bounds how long persistence operations wait for the shared
	// persistence lock. Zero waits forever.
	LockTimeout time.Duration `yaml:"lock_timeout"`
}

// SQLiteConfig contains SQLite database settings.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RedisConfig contains Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MQTTConfig contains broker-client settings that are not part of the
// persisted connection profile. The broker URI and credentials live in the
// profile and are set at runtime.
type MQTTConfig struct {
	ClientID       string        `yaml:"client_id"`
	KeepAlive      time.Duration `yaml:"keepalive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	QoS            int           `yaml:"qos"`

	// RetryInterval is the delay between a lost connection and the next
	// connect attempt when auto-reconnect is enabled.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// QueueSize is the capacity of the dispatcher's message queue.
	QueueSize int `yaml:"queue_size"`

	// InsecureSkipVerify disables TLS certificate verification for mqtts:// URIs.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// NetworkConfig configures the network-interface watcher.
type NetworkConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Interface    string        `yaml:"interface"`
	PollInterval time.Duration `yaml:"poll_interval"`
}

// ConsoleConfig contains the HTTP console settings.
type ConsoleConfig struct {
	Enabled  bool                 `yaml:"enabled"`
	Host     string               `yaml:"host"`
	Port     int                  `yaml:"port"`
	Timeouts ConsoleTimeoutConfig `yaml:"timeouts"`

	// StatusLockTimeout bounds how long a status request waits for the snapshot lock.
	StatusLockTimeout time.Duration `yaml:"status_lock_timeout"`

	// PingInterval is the websocket keepalive interval.
	PingInterval time.Duration `yaml:"ping_interval"`
}

// ConsoleTimeoutConfig contains HTTP timeout settings in seconds.
type ConsoleTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
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

// SecurityConfig contains security settings.
type SecurityConfig struct {
	JWT JWTConfig `yaml:"jwt"`
}

// JWTConfig contains JWT settings for the console.
// An empty secret leaves the console order endpoints open, which matches the
// access-point provisioning flow on a fresh device.
type JWTConfig struct {
	Secret string `yaml:"secret"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: MQTTMGR_SECTION_KEY
// For example: MQTTMGR_STORAGE_PATH, MQTTMGR_CONSOLE_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// LoadDefaults is Load for a device with no configuration file: the
// defaults plus environment overrides.
func LoadDefaults() (*Config, error) {
	cfg := Default()
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Default returns a Config with sensible defaults.
// It is also used as-is when no configuration file exists.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ID:   "device-001",
			Name: "MQTT device",
		},
		Storage: StorageConfig{
			Backend:   StorageBackendSQLite,
			Namespace: "espmqttmgr",
			SQLite: SQLiteConfig{
				Path:        "./data/mqttmgr.db",
				WALMode:     true,
				BusyTimeout: 5,
			},
			Redis: RedisConfig{
				Addr: "localhost:6379",
			},
		},
		MQTT: MQTTConfig{
			KeepAlive:      60 * time.Second,
			ConnectTimeout: 10 * time.Second,
			QoS:            0,
			RetryInterval:  5 * time.Second,
			QueueSize:      3,
		},
		Network: NetworkConfig{
			Enabled:      true,
			PollInterval: 2 * time.Second,
		},
		Console: ConsoleConfig{
			Enabled: true,
			Host:    "0.0.0.0",
			Port:    8080,
			Timeouts: ConsoleTimeoutConfig{
				Read:  15,
				Write: 15,
				Idle:  60,
			},
			StatusLockTimeout: 100 * time.Millisecond,
			PingInterval:      30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: MQTTMGR_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Storage
	if v := os.Getenv("MQTTMGR_STORAGE_PATH"); v != "" {
		cfg.Storage.SQLite.Path = v
	}
	if v := os.Getenv("MQTTMGR_REDIS_ADDR"); v != "" {
		cfg.Storage.Redis.Addr = v
	}
	if v := os.Getenv("MQTTMGR_REDIS_PASSWORD"); v != "" {
		cfg.Storage.Redis.Password = v
	}

	// MQTT
	if v := os.Getenv("MQTTMGR_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.ClientID = v
	}

	// Console
	if v := os.Getenv("MQTTMGR_CONSOLE_HOST"); v != "" {
		cfg.Console.Host = v
	}

	// InfluxDB
	if v := os.Getenv("MQTTMGR_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Security
	if v := os.Getenv("MQTTMGR_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Device.ID == "" {
		errs = append(errs, "device.id is required")
	}

	switch c.Storage.Backend {
	case StorageBackendSQLite:
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, "storage.sqlite.path is required")
		}
	case StorageBackendRedis:
		if c.Storage.Redis.Addr == "" {
			errs = append(errs, "storage.redis.addr is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.backend %q must be sqlite or redis", c.Storage.Backend))
	}
	if c.Storage.Namespace == "" {
		errs = append(errs, "storage.namespace is required")
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.RetryInterval <= 0 {
		errs = append(errs, "mqtt.retry_interval must be positive")
	}
	if c.MQTT.QueueSize < 1 {
		errs = append(errs, "mqtt.queue_size must be at least 1")
	}

	if c.Network.Enabled && c.Network.PollInterval <= 0 {
		errs = append(errs, "network.poll_interval must be positive")
	}

	if c.Console.Enabled && (c.Console.Port < 1 || c.Console.Port > 65535) {
		errs = append(errs, "console.port must be between 1 and 65535")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	const minJWTSecretLength = 32
	if c.Security.JWT.Secret != "" && len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the console read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.Console.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the console write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.Console.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the console idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.Console.Timeouts.Idle) * time.Second
}
