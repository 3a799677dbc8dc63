// Package config loads the service configuration from the environment.
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Database drivers supported by DBDriver.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration
type Config struct {
	// Server
	Port           string
	Env            string
	LogLevel       string
	RequestTimeout time.Duration

	// Database
	DBDriver     string
	DBHost       string
	DBPort       string
	DBUser       string
	DBPassword   string
	DBName       string
	DBSSLMode    string
	DBSQLitePath string

	// Pipeline
	PipelineAPIKey string
	RecalcSchedule string

	// External analytics. EstimatorTimeout bounds calls to either service.
	EstimatorURL     string
	EstimatorTimeout time.Duration
	ClassifierURL    string

	MetricsEnabled bool
}

var appConfig *Config

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if not already loaded
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	// Get values from environment variables with defaults
	config := &Config{
		// Server
		Port:     getEnv("PORT", "8080"),
		Env:      getEnv("ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Database
		DBDriver:     getEnv("DB_DRIVER", DriverPostgres),
		DBHost:       getEnv("DB_HOST", "localhost"),
		DBPort:       getEnv("DB_PORT", "5432"),
		DBUser:       getEnv("DB_USER", "energybudget"),
		DBPassword:   getEnv("DB_PASSWORD", "energybudget"),
		DBName:       getEnv("DB_NAME", "energybudget"),
		DBSSLMode:    getEnv("DB_SSLMODE", "disable"),
		DBSQLitePath: getEnv("DB_SQLITE_PATH", "energybudget.db"),

		// Pipeline
		PipelineAPIKey: os.Getenv("PIPELINE_API_KEY"),
		RecalcSchedule: os.Getenv("RECALC_SCHEDULE"),

		// External analytics
		EstimatorURL:  os.Getenv("ESTIMATOR_URL"),
		ClassifierURL: os.Getenv("CLASSIFIER_URL"),

		MetricsEnabled: getBool("METRICS_ENABLED", true),
	}

	config.RequestTimeout = getDuration("REQUEST_TIMEOUT", 30*time.Second)
	config.EstimatorTimeout = getDuration("ESTIMATOR_TIMEOUT", 10*time.Second)

	appConfig = config
	return config, nil
}

// Get returns the application configuration
func Get() *Config {
	if appConfig == nil {
		var err error
		appConfig, err = Load()
		if err != nil {
			log.Fatalf("Failed to load configuration: %v", err)
		}
	}
	return appConfig
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration parses a duration variable, falling back to defaultValue with
// a warning when it is malformed.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		log.Printf("Warning: invalid %s value '%s', falling back to %s\n", key, raw, defaultValue)
		return defaultValue
	}
	return d
}

func getBool(key string, defaultValue bool) bool {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		log.Printf("Warning: invalid %s value '%s', falling back to %t\n", key, raw, defaultValue)
		return defaultValue
	}
	return v
}
