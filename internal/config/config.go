package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig `yaml:"server"`
	Logging LogConfig    `yaml:"logging"`
}

// ServerConfig contains settings for the HTTP listener
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	PortRetries    int    `yaml:"port_retries"`     // extra ports tried when the port is in use
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`   // 0 disables the limit
	MaxHeaderBytes int    `yaml:"max_header_bytes"` // 0 disables the limit
	ReadTimeout    int    `yaml:"read_timeout"`     // in milliseconds, 0 disables it
	WriteTimeout   int    `yaml:"write_timeout"`    // in milliseconds, 0 disables it
	GracePeriod    int    `yaml:"grace_period"`     // in milliseconds, 0 uses the server default
}

// LogConfig contains settings for logging
type LogConfig struct {
	LogToFile   bool   `yaml:"log_to_file"`
	LogFilePath string `yaml:"log_file_path"`
	MaxSize     int    `yaml:"max_size"`    // maximum size in megabytes
	MaxBackups  int    `yaml:"max_backups"` // maximum number of old log files to retain
	MaxAge      int    `yaml:"max_age"`     // maximum number of days to retain old log files
	Compress    bool   `yaml:"compress"`    // compress determines if the rotated log files should be compressed
}

// LoadDefault returns a configuration with default values
func LoadDefault() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           42069,
			PortRetries:    0,
			MaxBodyBytes:   10 << 20,
			MaxHeaderBytes: 1 << 20,
			ReadTimeout:    30000,
			WriteTimeout:   30000,
			GracePeriod:    3000,
		},
		Logging: LogConfig{
			LogToFile:   false,
			LogFilePath: "hostd.log",
			MaxSize:     10,
			MaxBackups:  3,
			MaxAge:      28,
			Compress:    true,
		},
	}
}

// Load reads configuration from a file over the default values
func Load(configPath string) (*Config, error) {
	cfg := LoadDefault()

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Fields missing from the file keep their default. An explicit zero
	// is kept, which disables a limit or timeout.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(cfg)
	return cfg, nil
}

// LoadOrDefault attempts to load configuration from a file
// If the file doesn't exist or can't be parsed, it returns default configuration
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to load config from %s: %v\n", configPath, err)
		fmt.Fprintf(os.Stderr, "Using default configuration\n")
		cfg = LoadDefault()
		applyEnv(cfg)
	}
	return cfg
}

// applyEnv lets HOSTD_HOST and HOSTD_PORT override the file
func applyEnv(cfg *Config) {
	if host := os.Getenv("HOSTD_HOST"); host != "" {
		cfg.Server.Host = host
	}
	if port := os.Getenv("HOSTD_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p >= 0 {
			cfg.Server.Port = p
		}
	}
}

func (s ServerConfig) ReadTimeoutDuration() time.Duration {
	return time.Duration(s.ReadTimeout) * time.Millisecond
}

func (s ServerConfig) WriteTimeoutDuration() time.Duration {
	return time.Duration(s.WriteTimeout) * time.Millisecond
}

func (s ServerConfig) GracePeriodDuration() time.Duration {
	return time.Duration(s.GracePeriod) * time.Millisecond
}
