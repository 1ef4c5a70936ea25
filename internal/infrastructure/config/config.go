package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Redacted is the literal substituted for secret values when the
// configuration is exposed over the read API.
const Redacted = "***REDACTED***"

// Config is the root configuration structure for RackBridge Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Broker     BrokerConfig     `yaml:"broker"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
	APIServer  APIServerConfig  `yaml:"apiServer"`
	PushStream PushStreamConfig `yaml:"pushStream"`
	TSDB       TSDBConfig       `yaml:"tsdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Debug      DebugConfig      `yaml:"debug"`
}

// BrokerConfig contains MQTT broker connection settings and the topic roots
// for both device families.
type BrokerConfig struct {
	Host      string                `yaml:"host"`
	Port      int                   `yaml:"port"`
	TLS       bool                  `yaml:"tls"`
	ClientID  string                `yaml:"client_id"`
	Auth      BrokerAuthConfig      `yaml:"auth"`
	QoS       int                   `yaml:"qos"`
	Reconnect BrokerReconnectConfig `yaml:"reconnect"`
	Topics    TopicRootsConfig      `yaml:"topics"`
}

// BrokerAuthConfig contains MQTT authentication credentials.
type BrokerAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// BrokerReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds; the delay doubles per attempt up to MaxDelay.
// Attempts are unbounded while the process is alive.
type BrokerReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// TopicRootsConfig names the per-family upload/download topic roots.
// Inbound subscriptions use `{root}/+/#`; outbound commands publish on
// `{root}/{deviceId}`.
type TopicRootsConfig struct {
	FamilyBUpload   string `yaml:"family_b_upload"`
	FamilyBDownload string `yaml:"family_b_download"`
	FamilyJUpload   string `yaml:"family_j_upload"`
	FamilyJDownload string `yaml:"family_j_download"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// StorageConfig controls the batched persistence router.
type StorageConfig struct {
	Enabled             bool `yaml:"enabled"`
	BatchSize           int  `yaml:"batch_size"`
	FlushIntervalMs     int  `yaml:"flush_interval_ms"`
	WriteTimeoutSeconds int  `yaml:"write_timeout_seconds"`
}

// NormalizerConfig controls the normalizer state machine, the warmup
// controller and the watchdog.
type NormalizerConfig struct {
	SmartHeartbeat          SmartHeartbeatConfig `yaml:"smartHeartbeat"`
	HeartbeatTimeoutSeconds int                  `yaml:"heartbeat_timeout_seconds"`
	CheckIntervalSeconds    int                  `yaml:"check_interval_seconds"`
	StatusEvents            bool                 `yaml:"status_events"`
	Workers                 int                  `yaml:"workers"`
	InboxSize               int                  `yaml:"inbox_size"`
}

// SmartHeartbeatConfig controls warmup queries issued per heartbeat.
// Self-healing queries (missing device metadata or firmware) are always on
// and are not gated by Enabled.
type SmartHeartbeatConfig struct {
	Enabled        bool                      `yaml:"enabled"`
	StaggerDelayMs int                       `yaml:"stagger_delay_ms"`
	Staleness      StalenessThresholdsConfig `yaml:"stalenessThresholds"`
}

// StalenessThresholdsConfig holds the shadow staleness thresholds that
// trigger warmup queries.
type StalenessThresholdsConfig struct {
	TempHumMinutes int `yaml:"temp_hum_minutes"`
	RFIDMinutes    int `yaml:"rfid_minutes"`
}

// APIServerConfig contains HTTP read-API settings.
type APIServerConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Features APIFeatureConfig `yaml:"features"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APIFeatureConfig toggles optional API surfaces.
type APIFeatureConfig struct {
	Management bool `yaml:"management"`
	History    bool `yaml:"history"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
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

// PushStreamConfig contains the WebSocket push stream settings.
// The push stream runs its own listener, separate from the read API.
type PushStreamConfig struct {
	Port           int    `yaml:"port"`
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// TSDBConfig contains the optional InfluxDB telemetry mirror settings.
type TSDBConfig struct {
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

// DebugConfig gates structured debug output per pipeline stage.
type DebugConfig struct {
	LogRawFrame   bool `yaml:"logRawFrame"`
	LogDecoded    bool `yaml:"logDecoded"`
	LogNormalized bool `yaml:"logNormalized"`
	LogShadow     bool `yaml:"logShadow"`
	LogDB         bool `yaml:"logDb"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RACKBRIDGE_SECTION_KEY
// For example: RACKBRIDGE_DATABASE_PATH, RACKBRIDGE_BROKER_HOST
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

// Default returns a Config with the documented default values.
func Default() *Config {
	return &Config{
		Broker: BrokerConfig{
			Host:     "localhost",
			Port:     1883,
			ClientID: "rackbridge-core",
			QoS:      0,
			Reconnect: BrokerReconnectConfig{
				InitialDelay: 2,
				MaxDelay:     60,
			},
			Topics: TopicRootsConfig{
				FamilyBUpload:   "BUpload",
				FamilyBDownload: "BDownload",
				FamilyJUpload:   "JUpload",
				FamilyJDownload: "JDownload",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/rackbridge.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Storage: StorageConfig{
			Enabled:             true,
			BatchSize:           100,
			FlushIntervalMs:     1000,
			WriteTimeoutSeconds: 5,
		},
		Normalizer: NormalizerConfig{
			SmartHeartbeat: SmartHeartbeatConfig{
				Enabled:        true,
				StaggerDelayMs: 500,
				Staleness: StalenessThresholdsConfig{
					TempHumMinutes: 5,
					RFIDMinutes:    60,
				},
			},
			HeartbeatTimeoutSeconds: 120,
			CheckIntervalSeconds:    30,
			Workers:                 4,
			InboxSize:               256,
		},
		APIServer: APIServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Features: APIFeatureConfig{
				Management: true,
				History:    true,
			},
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		PushStream: PushStreamConfig{
			Port:           8081,
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
// Environment variables follow the pattern: RACKBRIDGE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RACKBRIDGE_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RACKBRIDGE_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("RACKBRIDGE_BROKER_USERNAME"); v != "" {
		cfg.Broker.Auth.Username = v
	}
	if v := os.Getenv("RACKBRIDGE_BROKER_PASSWORD"); v != "" {
		cfg.Broker.Auth.Password = v
	}
	if v := os.Getenv("RACKBRIDGE_APISERVER_HOST"); v != "" {
		cfg.APIServer.Host = v
	}
	if v := os.Getenv("RACKBRIDGE_TSDB_TOKEN"); v != "" {
		cfg.TSDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Broker.QoS < 0 || c.Broker.QoS > 2 {
		errs = append(errs, "broker.qos must be 0, 1, or 2")
	}
	if c.APIServer.Port < 1 || c.APIServer.Port > 65535 {
		errs = append(errs, "apiServer.port must be between 1 and 65535")
	}
	if c.PushStream.Port < 1 || c.PushStream.Port > 65535 {
		errs = append(errs, "pushStream.port must be between 1 and 65535")
	}
	if c.PushStream.Port == c.APIServer.Port {
		errs = append(errs, "pushStream.port must differ from apiServer.port")
	}
	if c.Storage.BatchSize < 1 {
		errs = append(errs, "storage.batch_size must be at least 1")
	}
	if c.Normalizer.SmartHeartbeat.StaggerDelayMs < 0 {
		errs = append(errs, "normalizer.smartHeartbeat.stagger_delay_ms must not be negative")
	}
	if c.Normalizer.Workers < 1 {
		errs = append(errs, "normalizer.workers must be at least 1")
	}
	for _, root := range []struct{ name, value string }{
		{"broker.topics.family_b_upload", c.Broker.Topics.FamilyBUpload},
		{"broker.topics.family_b_download", c.Broker.Topics.FamilyBDownload},
		{"broker.topics.family_j_upload", c.Broker.Topics.FamilyJUpload},
		{"broker.topics.family_j_download", c.Broker.Topics.FamilyJDownload},
	} {
		if root.value == "" || strings.ContainsAny(root.value, "/#+") {
			errs = append(errs, root.name+" must be a non-empty topic root without wildcards")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Redacted returns a copy of the configuration with every secret replaced by
// the Redacted literal. This is what GET /api/config serves.
func (c *Config) Redacted() Config {
	out := *c
	out.Broker.Auth.Password = Redacted
	out.TSDB.Token = Redacted
	return out
}

// StaggerDelay returns the warmup inter-command delay as a Duration.
func (c *Config) StaggerDelay() time.Duration {
	return time.Duration(c.Normalizer.SmartHeartbeat.StaggerDelayMs) * time.Millisecond
}

// TempHumStaleness returns the temp/hum warmup staleness threshold.
func (c *Config) TempHumStaleness() time.Duration {
	return time.Duration(c.Normalizer.SmartHeartbeat.Staleness.TempHumMinutes) * time.Minute
}

// RFIDStaleness returns the RFID warmup staleness threshold.
func (c *Config) RFIDStaleness() time.Duration {
	return time.Duration(c.Normalizer.SmartHeartbeat.Staleness.RFIDMinutes) * time.Minute
}

// HeartbeatTimeout returns the watchdog offline threshold.
func (c *Config) HeartbeatTimeout() time.Duration {
	return time.Duration(c.Normalizer.HeartbeatTimeoutSeconds) * time.Second
}

// CheckInterval returns the watchdog scan interval.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.Normalizer.CheckIntervalSeconds) * time.Second
}

// FlushInterval returns the persistence flush interval.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Storage.FlushIntervalMs) * time.Millisecond
}

// WriteTimeout returns the persistence batch write timeout.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Storage.WriteTimeoutSeconds) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.APIServer.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.APIServer.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.APIServer.Timeouts.Idle) * time.Second
}
