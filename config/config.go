// Package config loads and validates the service configuration from the
// environment.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Port              string
	Address           string
	Env               string
	LogLevel          string
	LogDir            string
	LogRetentionWeeks int   // Number of weeks to keep log files
	MaxLogFileSize    int64 // Maximum log file size in bytes
	MaxRequestBody    int64 // Maximum request body size in bytes
	MaxHeaderSize     int64 // Maximum header size in bytes

	DataDir        string // Directory holding base.json, payers.json and payer files
	DataURL        string // Alternative HTTP root for the same resources
	StateFile      string // Persistence file for the cart and pricing mode
	SearchDebounce time.Duration
	SearchLimit    int
	ReloadAt       string // gocron At() spec, e.g. "06:00;18:00"
}

// LoadDotEnv loads a .env file if one exists. A missing file is not an error.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load loads and validates configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvWithDefault("PORT", "8000"),
		Address:           getEnvWithDefault("ADDRESS", "127.0.0.1"),
		Env:               getEnvWithDefault("ENV", "dev"),
		LogLevel:          getEnvWithDefault("LOG_LEVEL", "info"),
		LogDir:            getEnvWithDefault("LOG_DIR", "logs"),
		LogRetentionWeeks: getIntEnvWithDefault("LOG_RETENTION_WEEKS", 4),
		MaxLogFileSize:    getInt64EnvWithDefault("MAX_LOG_FILE_SIZE", 104857600), // 100MB
		MaxRequestBody:    getInt64EnvWithDefault("MAX_REQUEST_BODY", 65536),      // 64KB
		MaxHeaderSize:     getInt64EnvWithDefault("MAX_HEADER_SIZE", 1048576),     // 1MB
		DataDir:           getEnvWithDefault("DATA_DIR", "data"),
		DataURL:           os.Getenv("DATA_URL"),
		StateFile:         getEnvWithDefault("STATE_FILE", "state/session.json"),
		SearchDebounce:    time.Duration(getIntEnvWithDefault("SEARCH_DEBOUNCE_MS", 250)) * time.Millisecond,
		SearchLimit:       getIntEnvWithDefault("SEARCH_LIMIT", 100),
		ReloadAt:          getEnvWithDefault("RELOAD_AT", "06:00"),
	}

	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// UsesHTTPSource reports whether resources are fetched from DATA_URL instead
// of DATA_DIR.
func (c *Config) UsesHTTPSource() bool {
	return c.DataURL != ""
}

func validateConfig(cfg *Config) error {
	if err := validatePort(cfg.Port); err != nil {
		return fmt.Errorf("invalid PORT: %w", err)
	}
	if err := validateAddress(cfg.Address); err != nil {
		return fmt.Errorf("invalid ADDRESS: %w", err)
	}
	if err := validateOneOf(cfg.Env, []string{"dev", "staging", "prod", "test"}); err != nil {
		return fmt.Errorf("invalid ENV: %w", err)
	}
	if err := validateOneOf(cfg.LogLevel, []string{"debug", "info", "warn", "error"}); err != nil {
		return fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxRequestBody); err != nil {
		return fmt.Errorf("invalid MAX_REQUEST_BODY: %w", err)
	}
	if err := validateSizeLimit(cfg.MaxHeaderSize); err != nil {
		return fmt.Errorf("invalid MAX_HEADER_SIZE: %w", err)
	}
	if cfg.LogRetentionWeeks <= 0 || cfg.LogRetentionWeeks > 52 {
		return fmt.Errorf("invalid LOG_RETENTION_WEEKS: must be between 1 and 52, got: %d", cfg.LogRetentionWeeks)
	}
	if cfg.MaxLogFileSize < 1024*1024 || cfg.MaxLogFileSize > 1024*1024*1024 {
		return fmt.Errorf("invalid MAX_LOG_FILE_SIZE: must be between 1MB and 1GB, got: %d bytes", cfg.MaxLogFileSize)
	}
	if cfg.DataURL != "" {
		if u, err := url.Parse(cfg.DataURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("invalid DATA_URL: must be an absolute http(s) URL, got: %s", cfg.DataURL)
		}
	} else if cfg.DataDir == "" {
		return fmt.Errorf("DATA_DIR cannot be empty when DATA_URL is not set")
	}
	if cfg.StateFile == "" {
		return fmt.Errorf("STATE_FILE cannot be empty")
	}
	if cfg.SearchDebounce < 0 || cfg.SearchDebounce > 10*time.Second {
		return fmt.Errorf("invalid SEARCH_DEBOUNCE_MS: must be between 0 and 10000, got: %d", cfg.SearchDebounce.Milliseconds())
	}
	if cfg.SearchLimit < 1 || cfg.SearchLimit > 1000 {
		return fmt.Errorf("invalid SEARCH_LIMIT: must be between 1 and 1000, got: %d", cfg.SearchLimit)
	}
	if err := validateReloadAt(cfg.ReloadAt); err != nil {
		return fmt.Errorf("invalid RELOAD_AT: %w", err)
	}
	return nil
}

func validatePort(port string) error {
	if port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}

	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("PORT must be a valid number: %w", err)
	}

	if portNum < 1024 || portNum > 65535 {
		return fmt.Errorf("PORT must be between 1024 and 65535, got: %d", portNum)
	}

	return nil
}

func validateAddress(address string) error {
	if address == "" {
		return fmt.Errorf("ADDRESS cannot be empty")
	}
	if address == "localhost" {
		return nil
	}

	ip := net.ParseIP(address)
	if ip == nil {
		return fmt.Errorf("ADDRESS must be a valid IP address or 'localhost', got: %s", address)
	}
	if !ip.IsLoopback() && !ip.IsPrivate() && !ip.IsUnspecified() {
		return fmt.Errorf("ADDRESS %s is a public IP, bind to a loopback or private address", address)
	}

	return nil
}

func validateOneOf(value string, allowed []string) error {
	value = strings.ToLower(value)
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("must be one of: %v, got: %s", allowed, value)
}

func validateSizeLimit(size int64) error {
	if size <= 0 {
		return fmt.Errorf("must be positive, got: %d", size)
	}
	if size > 100*1024*1024 {
		return fmt.Errorf("too large (max 100MB), got: %d bytes", size)
	}
	return nil
}

// validateReloadAt checks a semicolon separated list of HH:MM times.
func validateReloadAt(spec string) error {
	if spec == "" {
		return fmt.Errorf("RELOAD_AT cannot be empty")
	}
	for _, part := range strings.Split(spec, ";") {
		if _, err := time.Parse("15:04", strings.TrimSpace(part)); err != nil {
			return fmt.Errorf("%q is not an HH:MM time", part)
		}
	}
	return nil
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnvWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getInt64EnvWithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// GetEnvVars returns a list of all recognized environment variables
func GetEnvVars() []string {
	return []string{
		"PORT",
		"ADDRESS",
		"ENV",
		"LOG_LEVEL",
		"LOG_DIR",
		"LOG_RETENTION_WEEKS",
		"MAX_LOG_FILE_SIZE",
		"MAX_REQUEST_BODY",
		"MAX_HEADER_SIZE",
		"DATA_DIR",
		"DATA_URL",
		"STATE_FILE",
		"SEARCH_DEBOUNCE_MS",
		"SEARCH_LIMIT",
		"RELOAD_AT",
	}
}
