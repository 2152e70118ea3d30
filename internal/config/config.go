package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Market   MarketConfig
	Jobs     JobsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// ServerConfig holds server settings
type ServerConfig struct {
	Port string
}

// MarketConfig holds prediction market rules
type MarketConfig struct {
	MinPredictionAmount   decimal.Decimal
	MaxPredictionAmount   decimal.Decimal
	PlatformFeePercentage decimal.Decimal
	CreatorFeePercentage  decimal.Decimal
	MinResolutionDelay    time.Duration
}

// JobsConfig holds background job settings
type JobsConfig struct {
	LifecyclePollInterval time.Duration
	PaymentPollInterval   time.Duration
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	config := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "predictpix"),
		},
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
		},
		Market: MarketConfig{
			MinPredictionAmount:   getEnvDecimal("MIN_PREDICTION_AMOUNT", "1.0"),
			MaxPredictionAmount:   getEnvDecimal("MAX_PREDICTION_AMOUNT", "1000.0"),
			PlatformFeePercentage: getEnvDecimal("PLATFORM_FEE_PERCENTAGE", "2.0"),
			CreatorFeePercentage:  getEnvDecimal("CREATOR_FEE_PERCENTAGE", "1.0"),
			MinResolutionDelay:    getEnvDuration("MIN_RESOLUTION_DELAY", time.Hour),
		},
		Jobs: JobsConfig{
			LifecyclePollInterval: getEnvDuration("LIFECYCLE_POLL_INTERVAL", 30*time.Second),
			PaymentPollInterval:   getEnvDuration("PAYMENT_POLL_INTERVAL", time.Minute),
		},
	}

	if config.Market.MinPredictionAmount.GreaterThan(config.Market.MaxPredictionAmount) {
		return nil, fmt.Errorf("MIN_PREDICTION_AMOUNT must not exceed MAX_PREDICTION_AMOUNT")
	}

	maxFee := decimal.NewFromInt(5)
	for _, fee := range []decimal.Decimal{config.Market.PlatformFeePercentage, config.Market.CreatorFeePercentage} {
		if fee.IsNegative() || fee.GreaterThan(maxFee) {
			return nil, fmt.Errorf("fee percentages must be in [0,5], got %s", fee)
		}
	}

	return config, nil
}

// GetDSN returns the PostgreSQL connection string
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
	)
}

// getEnv gets an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvDecimal parses a decimal environment variable, falling back on
// the default when unset or malformed.
func getEnvDecimal(key, defaultValue string) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return decimal.RequireFromString(defaultValue)
}

// getEnvDuration parses a duration environment variable. Plain integers are
// treated as seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
