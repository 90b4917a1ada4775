package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Logging   LoggingConfig   `yaml:"logging"`
	Admission AdmissionConfig `yaml:"admission"`
	Tracking  TrackingConfig  `yaml:"tracking"`
	Bus       BusConfig       `yaml:"bus"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// DatabaseConfig represents database configuration.
// Driver is "postgres" in production and "sqlite" for local development.
type DatabaseConfig struct {
	Driver         string `yaml:"driver"`
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	Database       string `yaml:"database"`
	SSLMode        string `yaml:"ssl_mode"`
	SQLitePath     string `yaml:"sqlite_path"`
	MaxConnections int    `yaml:"max_connections"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AdmissionConfig holds the check-in pipeline thresholds
type AdmissionConfig struct {
	// GeofenceTolerance widens the hard radius for the boundary band;
	// distances within radius*GeofenceTolerance admit with a boundary flag.
	GeofenceTolerance float64 `yaml:"geofence_tolerance"`
	// MinMatchScore is the minimum biometric similarity (0-100) for
	// self-service check-ins.
	MinMatchScore float64 `yaml:"min_match_score"`
	// GracePeriod after event start within which a check-in is "present"
	// rather than "late".
	GracePeriod time.Duration `yaml:"grace_period"`
	// DefaultCheckInBuffer opens the check-in window this long before the
	// event starts when the event carries no override.
	DefaultCheckInBuffer time.Duration `yaml:"default_check_in_buffer"`
	// AllowAssistedGeofenceOverride lets admin/supervisor submissions pass
	// the hard geofence rejection with a warning flag instead.
	AllowAssistedGeofenceOverride bool `yaml:"allow_assisted_geofence_override"`
}

// TrackingConfig holds the position monitor thresholds
type TrackingConfig struct {
	// LateArrivalGrace after event start before an on-site agent without a
	// check-in is flagged.
	LateArrivalGrace      time.Duration `yaml:"late_arrival_grace"`
	LowBatteryThreshold   float64       `yaml:"low_battery_threshold"`
	HighSpeedThresholdKmh float64       `yaml:"high_speed_threshold_kmh"`
	ConnectionLostAfter   time.Duration `yaml:"connection_lost_after"`
	NoMovementWindow      time.Duration `yaml:"no_movement_window"`
	NoMovementNoiseM      float64       `yaml:"no_movement_noise_m"`
	SweepInterval         time.Duration `yaml:"sweep_interval"`
}

// BusConfig holds the real-time distribution bus settings
type BusConfig struct {
	AuthTimeout   time.Duration `yaml:"auth_timeout"`
	SendBuffer    int           `yaml:"send_buffer"`
	RoomQueueSize int           `yaml:"room_queue_size"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := defaultConfig()

	configPath := getConfigPath()
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a configuration with default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			Host:           "localhost",
			Port:           5432,
			User:           "guardpost",
			Password:       "guardpost_dev",
			Database:       "guardpost_dev",
			SSLMode:        "disable",
			SQLitePath:     "guardpost.db",
			MaxConnections: 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Admission: AdmissionConfig{
			GeofenceTolerance:             1.5,
			MinMatchScore:                 50,
			GracePeriod:                   15 * time.Minute,
			DefaultCheckInBuffer:          60 * time.Minute,
			AllowAssistedGeofenceOverride: true,
		},
		Tracking: TrackingConfig{
			LateArrivalGrace:      15 * time.Minute,
			LowBatteryThreshold:   15,
			HighSpeedThresholdKmh: 120,
			ConnectionLostAfter:   3 * time.Minute,
			NoMovementWindow:      20 * time.Minute,
			NoMovementNoiseM:      10,
			SweepInterval:         30 * time.Second,
		},
		Bus: BusConfig{
			AuthTimeout:   10 * time.Second,
			SendBuffer:    256,
			RoomQueueSize: 512,
		},
	}
}

// getConfigPath returns the configuration file path
func getConfigPath() string {
	if path := os.Getenv("GUARDPOST_CONFIG"); path != "" {
		return path
	}
	return "config.yaml"
}

// applyEnv overrides configuration with environment variables
func (c *Config) applyEnv() {
	if host := os.Getenv("GUARDPOST_SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("GUARDPOST_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Server.Port = p
		}
	}

	if driver := os.Getenv("GUARDPOST_DATABASE_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if host := os.Getenv("GUARDPOST_DATABASE_HOST"); host != "" {
		c.Database.Host = host
	}
	if port := os.Getenv("GUARDPOST_DATABASE_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			c.Database.Port = p
		}
	}
	if user := os.Getenv("GUARDPOST_DATABASE_USER"); user != "" {
		c.Database.User = user
	}
	if password := os.Getenv("GUARDPOST_DATABASE_PASSWORD"); password != "" {
		c.Database.Password = password
	}
	if database := os.Getenv("GUARDPOST_DATABASE_DATABASE"); database != "" {
		c.Database.Database = database
	}
	if sslMode := os.Getenv("GUARDPOST_DATABASE_SSL_MODE"); sslMode != "" {
		c.Database.SSLMode = sslMode
	}
	if path := os.Getenv("GUARDPOST_DATABASE_SQLITE_PATH"); path != "" {
		c.Database.SQLitePath = path
	}

	if level := os.Getenv("GUARDPOST_LOGGING_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if format := os.Getenv("GUARDPOST_LOGGING_FORMAT"); format != "" {
		c.Logging.Format = format
	}

	if tolerance := os.Getenv("GUARDPOST_ADMISSION_GEOFENCE_TOLERANCE"); tolerance != "" {
		if f, err := strconv.ParseFloat(tolerance, 64); err == nil {
			c.Admission.GeofenceTolerance = f
		}
	}
	if score := os.Getenv("GUARDPOST_ADMISSION_MIN_MATCH_SCORE"); score != "" {
		if f, err := strconv.ParseFloat(score, 64); err == nil {
			c.Admission.MinMatchScore = f
		}
	}
	if grace := os.Getenv("GUARDPOST_ADMISSION_GRACE_PERIOD"); grace != "" {
		if d, err := time.ParseDuration(grace); err == nil {
			c.Admission.GracePeriod = d
		}
	}
	if buffer := os.Getenv("GUARDPOST_ADMISSION_DEFAULT_CHECK_IN_BUFFER"); buffer != "" {
		if d, err := time.ParseDuration(buffer); err == nil {
			c.Admission.DefaultCheckInBuffer = d
		}
	}

	if timeout := os.Getenv("GUARDPOST_BUS_AUTH_TIMEOUT"); timeout != "" {
		if d, err := time.ParseDuration(timeout); err == nil {
			c.Bus.AuthTimeout = d
		}
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "sqlite":
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required")
		}
	default:
		return fmt.Errorf("unsupported database driver: %s", c.Database.Driver)
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid logging format: %s", c.Logging.Format)
	}

	if c.Admission.GeofenceTolerance < 1 {
		return fmt.Errorf("geofence tolerance must be at least 1")
	}
	if c.Admission.MinMatchScore < 0 || c.Admission.MinMatchScore > 100 {
		return fmt.Errorf("min match score must be within [0,100]")
	}
	if c.Bus.AuthTimeout <= 0 {
		return fmt.Errorf("bus auth timeout must be positive")
	}
	if c.Bus.SendBuffer < 1 {
		return fmt.Errorf("bus send buffer must be at least 1")
	}

	return nil
}

// GetDatabaseURL returns the PostgreSQL connection string
func (c *Config) GetDatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}
