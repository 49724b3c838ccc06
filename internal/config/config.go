package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names accepted in storage.backends
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendFile     = "file"
)

// AppConfig holds all configuration for the monitoring server
type AppConfig struct {
	Server    ServerSettings    `yaml:"server"`
	Storage   StorageSettings   `yaml:"storage"`
	Dashboard DashboardSettings `yaml:"dashboard"`
	Sensor    SensorSettings    `yaml:"sensor"`
	Logging   LoggingConfig     `yaml:"logging"`
}

// ServerSettings contains HTTP server configuration
type ServerSettings struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AuthToken      string        `yaml:"auth_token"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	StaticDir      string        `yaml:"static_dir"`
}

// StorageSettings contains the ranked backend list and per-backend settings.
// The last backend in Backends is the fallback used when a richer one fails.
type StorageSettings struct {
	Backends        []string      `yaml:"backends"`
	FilePath        string        `yaml:"file_path"`
	FileUniqueDates bool          `yaml:"file_unique_dates"`
	SQLitePath      string        `yaml:"sqlite_path"`
	PostgresDSN     string        `yaml:"postgres_dsn"`
	SeedSampleData  bool          `yaml:"seed_sample_data"`
	RetentionDays   int           `yaml:"retention_days"`
	CleanupPeriod   time.Duration `yaml:"cleanup_period"`
}

// DashboardSettings contains dashboard and table defaults
type DashboardSettings struct {
	DefaultPeriod int `yaml:"default_period"`
	PageSize      int `yaml:"page_size"`
}

// SensorSettings contains the optional DHT11 sampler settings
type SensorSettings struct {
	Enabled    bool          `yaml:"enabled"`
	GPIOPin    int           `yaml:"gpio_pin"`
	MaxRetries int           `yaml:"max_retries"`
	Interval   time.Duration `yaml:"interval"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LoadAppConfig loads configuration from a YAML file
func LoadAppConfig(path string) (*AppConfig, error) {
	yamlData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config AppConfig
	if err := yaml.Unmarshal(yamlData, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	config.ApplyDefaults()
	config.OverrideFromEnv()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Default returns a configuration with only defaults applied, used when no
// config file is given
func Default() *AppConfig {
	var config AppConfig
	config.ApplyDefaults()
	return &config
}

// ApplyDefaults sets default values for any unset fields
func (ac *AppConfig) ApplyDefaults() {
	if ac.Server.Port == 0 {
		ac.Server.Port = 8081
	}
	if ac.Server.Host == "" {
		ac.Server.Host = "localhost"
	}
	if ac.Server.ReadTimeout == 0 {
		ac.Server.ReadTimeout = 60 * time.Second
	}
	if ac.Server.WriteTimeout == 0 {
		ac.Server.WriteTimeout = 30 * time.Second
	}
	if len(ac.Storage.Backends) == 0 {
		ac.Storage.Backends = []string{BackendSQLite, BackendFile}
	}
	if ac.Storage.SQLitePath == "" {
		ac.Storage.SQLitePath = "./data/serverroom.db"
	}
	if ac.Storage.CleanupPeriod == 0 {
		ac.Storage.CleanupPeriod = 24 * time.Hour
	}
	if ac.Dashboard.DefaultPeriod == 0 {
		ac.Dashboard.DefaultPeriod = 7
	}
	if ac.Dashboard.PageSize == 0 {
		ac.Dashboard.PageSize = 10
	}
	if ac.Sensor.GPIOPin == 0 {
		ac.Sensor.GPIOPin = 4
	}
	if ac.Sensor.MaxRetries == 0 {
		ac.Sensor.MaxRetries = 3
	}
	if ac.Sensor.Interval == 0 {
		ac.Sensor.Interval = 30 * time.Second
	}
	if ac.Logging.Level == "" {
		ac.Logging.Level = "info"
	}
	if ac.Logging.Format == "" {
		ac.Logging.Format = "json"
	}
}

// OverrideFromEnv overrides config values from environment variables
func (ac *AppConfig) OverrideFromEnv() {
	// Only override if environment variable is set (non-empty)
	if v := os.Getenv("SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			ac.Server.Port = port
		}
	}
	if v := os.Getenv("SERVER_HOST"); v != "" {
		ac.Server.Host = v
	}
	if v := os.Getenv("SERVER_AUTH_TOKEN"); v != "" {
		ac.Server.AuthToken = v
	}
	if v := os.Getenv("STORAGE_BACKENDS"); v != "" {
		ac.Storage.Backends = splitList(v)
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		ac.Storage.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		ac.Storage.PostgresDSN = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		ac.Logging.Level = v
	}
}

// Validate checks if the configuration is valid
func (ac *AppConfig) Validate() error {
	if ac.Server.Port < 1 || ac.Server.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}
	if len(ac.Storage.Backends) == 0 {
		return fmt.Errorf("at least one storage backend is required")
	}
	seen := make(map[string]bool)
	for _, name := range ac.Storage.Backends {
		switch name {
		case BackendSQLite, BackendPostgres, BackendFile:
		default:
			return fmt.Errorf("unknown storage backend %q", name)
		}
		if seen[name] {
			return fmt.Errorf("storage backend %q listed twice", name)
		}
		seen[name] = true
	}
	if seen[BackendPostgres] && ac.Storage.PostgresDSN == "" {
		return fmt.Errorf("postgres backend requires postgres_dsn")
	}
	if ac.Storage.RetentionDays < 0 {
		return fmt.Errorf("retention days must not be negative")
	}
	if ac.Dashboard.DefaultPeriod < 1 {
		return fmt.Errorf("dashboard default period must be at least 1")
	}
	if ac.Dashboard.PageSize < 1 || ac.Dashboard.PageSize > 500 {
		return fmt.Errorf("page size must be between 1 and 500")
	}
	if ac.Sensor.Enabled {
		if ac.Sensor.GPIOPin <= 0 {
			return fmt.Errorf("GPIO pin must be greater than 0")
		}
		if ac.Sensor.Interval < 2*time.Second {
			return fmt.Errorf("sensor interval must be at least 2 seconds")
		}
	}
	switch ac.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log format must be json or text")
	}
	return nil
}

// String returns a safe string representation (hides auth token and DSN)
func (ac *AppConfig) String() string {
	storage := ac.Storage
	if storage.PostgresDSN != "" {
		storage.PostgresDSN = maskToken(storage.PostgresDSN)
	}
	return fmt.Sprintf("AppConfig{Server: [Host=%s, Port=%d, Token=%s], Storage: %+v, Dashboard: %+v, Sensor: %+v, Logging: %+v}",
		ac.Server.Host,
		ac.Server.Port,
		maskToken(ac.Server.AuthToken),
		storage,
		ac.Dashboard,
		ac.Sensor,
		ac.Logging,
	)
}

// Addr returns the host:port the HTTP server listens on
func (ac *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", ac.Server.Host, ac.Server.Port)
}

// maskToken masks all but first 4 characters of a token
func maskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return token[:4] + "****"
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
