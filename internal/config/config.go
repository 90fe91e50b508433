// internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// APIConfig holds backend connection settings
type APIConfig struct {
	BaseURL        string
	Token          string
	RequestTimeout time.Duration
}

// EngineConfig holds session actor settings
type EngineConfig struct {
	// ActorTimeout bounds how long a caller waits for an actor reply. It
	// should exceed the API request timeout so network failures are
	// reported as such rather than as actor timeouts.
	ActorTimeout time.Duration
}

// Config holds the complete application configuration
type Config struct {
	API    *APIConfig
	Engine *EngineConfig
	Debug  bool
}

// DefaultConfig provides default settings
func DefaultConfig() *Config {
	return &Config{
		API: &APIConfig{
			BaseURL:        "http://localhost:8080/api",
			RequestTimeout: 10 * time.Second,
		},
		Engine: &EngineConfig{
			ActorTimeout: 15 * time.Second,
		},
	}
}

// LoadConfig loads configuration from a .env file and environment variables
// and applies defaults
func LoadConfig() (*Config, error) {
	// Try to load .env file from multiple possible locations
	envLocations := []string{
		".env",       // Current directory
		"../../.env", // Project root when running from cmd/promptpal
	}
	for _, location := range envLocations {
		if err := godotenv.Load(location); err == nil {
			break
		}
	}

	return FromEnv()
}

// FromEnv builds the configuration from the process environment only.
func FromEnv() (*Config, error) {
	config := DefaultConfig()

	config.API.BaseURL = strings.TrimRight(getEnvOrDefault("PROMPTPAL_API_URL", config.API.BaseURL), "/")
	config.API.Token = os.Getenv("PROMPTPAL_TOKEN")

	var err error
	if config.API.RequestTimeout, err = getDurationOrDefault("PROMPTPAL_REQUEST_TIMEOUT", config.API.RequestTimeout); err != nil {
		return nil, err
	}
	if config.Engine.ActorTimeout, err = getDurationOrDefault("PROMPTPAL_ACTOR_TIMEOUT", config.Engine.ActorTimeout); err != nil {
		return nil, err
	}

	if debug := os.Getenv("DEBUG"); debug == "true" {
		config.Debug = true
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks the settings are usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("PROMPTPAL_API_URL must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}
	if c.API.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.API.RequestTimeout)
	}
	if c.Engine.ActorTimeout <= 0 {
		return fmt.Errorf("actor timeout must be positive, got %s", c.Engine.ActorTimeout)
	}
	return nil
}

// Helper function to get environment variable with default fallback
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
