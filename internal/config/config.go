// Package config loads and validates csm configuration.
//
// Loading order:
//  1. Default values (hardcoded)
//  2. YAML file values, when a path is given
//  3. A .env file, when present
//  4. CSM_* environment variables
//
// Secrets (API tokens, broker passwords, InfluxDB tokens) belong in the
// environment rather than the YAML file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store backends accepted by store.backend.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRemote = "remote"
)

// Config is the root configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Database  DatabaseConfig  `yaml:"database"`
	Remote    RemoteConfig    `yaml:"remote"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Uploads   UploadsConfig   `yaml:"uploads"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	// APIToken, when set, is required as a bearer token on /api/v1.
	APIToken string `yaml:"api_token"`
}

// TimeoutConfig contains HTTP timeouts in seconds.
type TimeoutConfig struct {
	Read     int `yaml:"read"`
	Write    int `yaml:"write"`
	Idle     int `yaml:"idle"`
	Shutdown int `yaml:"shutdown"`
}

// StoreConfig selects the DataStore implementation.
type StoreConfig struct {
	Backend string `yaml:"backend"` // memory | sqlite | remote
	// SeedSample loads the demo fleet into an empty sqlite store, and into
	// the memory store at startup.
	SeedSample bool `yaml:"seed_sample"`
}

// DatabaseConfig contains SQLite settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// RemoteConfig points at another csm-compatible API.
type RemoteConfig struct {
	BaseURL string `yaml:"base_url"`
	Token   string `yaml:"token"`
	Timeout int    `yaml:"timeout"` // seconds
}

// MQTTConfig contains the event publisher's broker settings.
type MQTTConfig struct {
	Enabled     bool             `yaml:"enabled"`
	Broker      MQTTBrokerConfig `yaml:"broker"`
	Auth        MQTTAuthConfig   `yaml:"auth"`
	QoS         int              `yaml:"qos"`
	TopicPrefix string           `yaml:"topic_prefix"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"` // seconds
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
	Output string `yaml:"output"` // stdout | stderr
}

// DashboardConfig contains presentation settings.
type DashboardConfig struct {
	UnidentifiedPageSize int `yaml:"unidentified_page_size"`
	ApplicationsPageSize int `yaml:"applications_page_size"`
	ActivityCapacity     int `yaml:"activity_capacity"`
	HealthInterval       int `yaml:"health_interval"` // seconds
}

// UploadsConfig limits report uploads.
type UploadsConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// Load builds the configuration. An empty path skips the YAML file and
// starts from defaults.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := LoadEnvFile(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// LoadEnvFile loads KEY=value pairs from path into the process environment.
// A missing file is not an error. Variables already set are left alone.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: TimeoutConfig{
				Read:     15,
				Write:    60,
				Idle:     60,
				Shutdown: 10,
			},
		},
		Store: StoreConfig{
			Backend:    BackendMemory,
			SeedSample: true,
		},
		Database: DatabaseConfig{
			Path:        "./data/csm.db",
			BusyTimeout: 5,
		},
		Remote: RemoteConfig{
			Timeout: 30,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "csm",
			},
			QoS:         1,
			TopicPrefix: "csm",
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "csm",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Dashboard: DashboardConfig{
			UnidentifiedPageSize: 5,
			ApplicationsPageSize: 25,
			ActivityCapacity:     200,
			HealthInterval:       30,
		},
		Uploads: UploadsConfig{
			MaxBytes: 10 << 20,
		},
	}
}

// applyEnvOverrides applies CSM_SECTION_KEY environment variables.
func applyEnvOverrides(cfg *Config) {
	// Server
	if v := os.Getenv("CSM_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("CSM_SERVER_PORT"); ok {
		cfg.Server.Port = v
	}
	if v := os.Getenv("CSM_SERVER_API_TOKEN"); v != "" {
		cfg.Server.APIToken = v
	}

	// Store
	if v := os.Getenv("CSM_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = strings.ToLower(v)
	}
	if v, ok := envBool("CSM_STORE_SEED_SAMPLE"); ok {
		cfg.Store.SeedSample = v
	}
	if v := os.Getenv("CSM_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("CSM_REMOTE_BASE_URL"); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := os.Getenv("CSM_REMOTE_TOKEN"); v != "" {
		cfg.Remote.Token = v
	}

	// MQTT
	if v, ok := envBool("CSM_MQTT_ENABLED"); ok {
		cfg.MQTT.Enabled = v
	}
	if v := os.Getenv("CSM_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v, ok := envInt("CSM_MQTT_PORT"); ok {
		cfg.MQTT.Broker.Port = v
	}
	if v := os.Getenv("CSM_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("CSM_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v, ok := envBool("CSM_INFLUXDB_ENABLED"); ok {
		cfg.InfluxDB.Enabled = v
	}
	if v := os.Getenv("CSM_INFLUXDB_URL"); v != "" {
		cfg.InfluxDB.URL = v
	}
	if v := os.Getenv("CSM_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("CSM_INFLUXDB_ORG"); v != "" {
		cfg.InfluxDB.Org = v
	}

	// Logging
	if v := os.Getenv("CSM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CSM_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	v := os.Getenv(key)
	if v == "" {
		return false, false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, false
	}
	return b, true
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	switch c.Store.Backend {
	case BackendMemory:
	case BackendSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite backend")
		}
	case BackendRemote:
		if c.Remote.BaseURL == "" {
			errs = append(errs, "remote.base_url is required for the remote backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q must be memory, sqlite or remote", c.Store.Backend))
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, "mqtt.broker.host is required when mqtt is enabled")
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, "mqtt.qos must be 0, 1, or 2")
		}
	}

	if c.InfluxDB.Enabled {
		if c.InfluxDB.URL == "" {
			errs = append(errs, "influxdb.url is required when influxdb is enabled")
		}
		if c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "" {
			errs = append(errs, "influxdb.org and influxdb.bucket are required when influxdb is enabled")
		}
	}

	if c.Dashboard.UnidentifiedPageSize < 1 {
		errs = append(errs, "dashboard.unidentified_page_size must be positive")
	}
	if c.Dashboard.ApplicationsPageSize < 1 {
		errs = append(errs, "dashboard.applications_page_size must be positive")
	}
	if c.Uploads.MaxBytes < 1 {
		errs = append(errs, "uploads.max_bytes must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Addr returns the listen address in host:port form.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ReadTimeout returns the HTTP read timeout.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// WriteTimeout returns the HTTP write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// IdleTimeout returns the HTTP idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// ShutdownTimeout returns how long graceful shutdown may take.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Shutdown) * time.Second
}

// RemoteTimeout returns the remote store's request timeout.
func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.Timeout) * time.Second
}

// HealthInterval returns how often component health is polled.
func (c *Config) HealthInterval() time.Duration {
	if c.Dashboard.HealthInterval <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Dashboard.HealthInterval) * time.Second
}
