package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultThresholdBytes is the per-minute traffic volume above which a
// high_traffic alert is raised (10 MiB).
const DefaultThresholdBytes uint64 = 10 * 1024 * 1024

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Capture source kinds
const (
	SourceTshark = "tshark"
	SourceFile   = "file"
	SourcePcap   = "pcap"
)

// Config is the top-level configuration for the monitor.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Capture   CaptureConfig   `yaml:"capture"`
	Alerting  AlertingConfig  `yaml:"alerting"`
	Notify    NotifyConfig    `yaml:"notify"`
	Retention RetentionConfig `yaml:"retention"`
	GeoIP     GeoIPConfig     `yaml:"geoip"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds the dashboard API settings.
type ServerConfig struct {
	ListenAddr    string `yaml:"listen_addr"`
	JWTSecret     string `yaml:"jwt_secret"`
	AdminPassword string `yaml:"admin_password"`
}

// DatabaseConfig holds the SQLite store settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
	WAL  *bool  `yaml:"wal,omitempty"`
}

// CaptureConfig selects and configures the packet feed.
type CaptureConfig struct {
	Source       string        `yaml:"source"` // tshark, file or pcap
	TsharkPath   string        `yaml:"tshark_path"`
	Interface    string        `yaml:"interface"`
	File         string        `yaml:"file"`
	RestartDelay time.Duration `yaml:"restart_delay"`
}

// AlertingConfig holds the threshold rule settings.
type AlertingConfig struct {
	ThresholdBytes uint64 `yaml:"threshold_bytes"`
}

// NotifyConfig holds the outbound alert notification channels.
type NotifyConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	NATSURL     string `yaml:"nats_url"`
	NATSSubject string `yaml:"nats_subject"`
	QueueSize   int    `yaml:"queue_size"`
}

// RetentionConfig controls the optional packet purge job. Disabled unless
// explicitly enabled.
type RetentionConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"`
	MaxAge   time.Duration `yaml:"max_age"`
}

// GeoIPConfig points at a MaxMind country or city database.
type GeoIPConfig struct {
	Database string `yaml:"database"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// LoadConfig reads the configuration from a YAML file, applies environment
// overrides and defaults, and validates the result. An empty path skips the
// file and uses defaults plus environment.
func LoadConfig(filePath string) (*Config, error) {
	cfg := &Config{}

	if filePath != "" {
		data, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config YAML: %w", err)
		}
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv lets the environment override file values, using the variable
// names the capture deployment already exports.
func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv("TSHARK_PATH"); v != "" {
		c.Capture.TsharkPath = v
	}
	if v := getenv("TSHARK_INTERFACE"); v != "" {
		c.Capture.Interface = v
	}
	if v := getenv("CAPTURE_SOURCE"); v != "" {
		c.Capture.Source = v
	}
	if v := getenv("CAPTURE_FILE"); v != "" {
		c.Capture.File = v
	}
	if v := getenv("TRAFFIC_THRESHOLD"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			c.Alerting.ThresholdBytes = n
		}
	}
	if v := getenv("DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := getenv("ADMIN_PASSWORD"); v != "" {
		c.Server.AdminPassword = v
	}
	if v := getenv("JWT_SECRET"); v != "" {
		c.Server.JWTSecret = v
	}
	if v := getenv("LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
	if v := getenv("DISCORD_WEBHOOK_URL"); v != "" {
		c.Notify.WebhookURL = v
	}
	if v := getenv("NATS_URL"); v != "" {
		c.Notify.NATSURL = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":5000"
	}
	if c.Server.JWTSecret == "" {
		c.Server.JWTSecret = "default-dev-key"
	}
	if c.Server.AdminPassword == "" {
		c.Server.AdminPassword = "admin123"
	}
	if c.Database.Path == "" {
		c.Database.Path = "instance/traffic_monitor.db"
	}
	if c.Database.WAL == nil {
		wal := true
		c.Database.WAL = &wal
	}
	if c.Capture.Source == "" {
		c.Capture.Source = SourceTshark
	}
	if c.Capture.TsharkPath == "" {
		c.Capture.TsharkPath = "tshark"
	}
	if c.Alerting.ThresholdBytes == 0 {
		c.Alerting.ThresholdBytes = DefaultThresholdBytes
	}
	if c.Notify.NATSSubject == "" {
		c.Notify.NATSSubject = "traffic.alerts"
	}
	if c.Notify.QueueSize <= 0 {
		c.Notify.QueueSize = 256
	}
	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "@hourly"
	}
	if c.Retention.MaxAge == 0 {
		c.Retention.MaxAge = 7 * 24 * time.Hour
	}
	if c.Log.Dir == "" {
		c.Log.Dir = "./logs"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// Validate checks the settings that must be right before ingestion starts.
func (c *Config) Validate() error {
	switch c.Capture.Source {
	case SourceTshark:
		if c.Capture.TsharkPath == "" {
			return fmt.Errorf("%w: capture.tshark_path is required", ErrInvalidConfig)
		}
		if c.Capture.Interface == "" {
			return fmt.Errorf("%w: capture.interface is required for the tshark source", ErrInvalidConfig)
		}
	case SourceFile, SourcePcap:
		if c.Capture.File == "" {
			return fmt.Errorf("%w: capture.file is required for the %s source", ErrInvalidConfig, c.Capture.Source)
		}
	default:
		return fmt.Errorf("%w: unknown capture.source %q (want tshark, file or pcap)", ErrInvalidConfig, c.Capture.Source)
	}

	if c.Capture.RestartDelay < 0 {
		return fmt.Errorf("%w: capture.restart_delay must not be negative", ErrInvalidConfig)
	}
	if c.Retention.Enabled && c.Retention.MaxAge <= 0 {
		return fmt.Errorf("%w: retention.max_age must be positive", ErrInvalidConfig)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}
	return nil
}
