package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Root           string // longbridge-fs root directory
	PortfolioPath  string
	CredentialPath string
	LogLevel       string
	LogPretty      bool
	Port           int
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		Root:           getEnv("REBALANCE_ROOT", "."),
		PortfolioPath:  getEnv("REBALANCE_PORTFOLIO", "portfolio.yaml"),
		CredentialPath: getEnv("LONGBRIDGE_CREDENTIAL", "credential"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", false),
		Port:           getEnvAsInt("REBALANCE_PORT", 8080),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	if c.Root == "" {
		return fmt.Errorf("REBALANCE_ROOT is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("REBALANCE_PORT %d out of range", c.Port)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}
