package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"simple-chat/internal/logger"

	"github.com/sirupsen/logrus"
)

// Supported store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported upstream providers.
const (
	ProviderOpenAI    = "openai"
	ProviderHTTP      = "http"
	ProviderGenkit    = "genkit"
	ProviderLangChain = "langchain"
)

// AppConfig holds all application configuration
type AppConfig struct {
	Server   ServerConfig
	Database DatabaseConfig
	LLM      LLMConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Driver       string
	MaxOpenConns int

	// SQLite
	Path string

	// PostgreSQL
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// LLMConfig holds upstream completion API configuration
type LLMConfig struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	SystemPrompt string
	Timeout      time.Duration
}

// LoadConfig loads and validates application configuration from environment
func LoadConfig() (*AppConfig, error) {
	config := &AppConfig{}

	config.Server = ServerConfig{
		Port:            getEnvOrDefault("SERVER_PORT", "8080"),
		ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
	}

	config.Database = DatabaseConfig{
		Driver:       getEnvOrDefault("DB_DRIVER", DriverSQLite),
		MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 0),
		Path:         getEnvOrDefault("DB_PATH", "chat.db"),
		Host:         getEnvOrDefault("DB_HOST", "postgres"),
		Port:         getEnvOrDefault("DB_PORT", "5432"),
		User:         getEnvOrDefault("DB_USER", "postgres"),
		Password:     getEnvOrDefault("DB_PASSWORD", "postgres"),
		Name:         getEnvOrDefault("DB_NAME", "chatapp"),
		SSLMode:      getEnvOrDefault("DB_SSLMODE", "disable"),
	}

	apiKey := os.Getenv("LLM_API_KEY")
	if apiKey == "" {
		logger.Log.Warn("LLM_API_KEY environment variable not set")
	}

	config.LLM = LLMConfig{
		Provider:     getEnvOrDefault("LLM_PROVIDER", ProviderOpenAI),
		BaseURL:      getEnvOrDefault("LLM_BASE_URL", "https://api.novita.ai/v3/openai"),
		APIKey:       apiKey,
		Model:        getEnvOrDefault("LLM_MODEL", "deepseek/deepseek-r1"),
		SystemPrompt: os.Getenv("LLM_SYSTEM_PROMPT"),
		Timeout:      getEnvAsDuration("LLM_TIMEOUT", 5*time.Minute),
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks the values that cannot be defaulted away
func (c *AppConfig) Validate() error {
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("SERVER_PORT must be numeric, got %q", c.Server.Port)
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH must be set for the sqlite driver")
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("DB_DRIVER must be one of: %s, %s; got %q", DriverSQLite, DriverPostgres, c.Database.Driver)
	}

	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderHTTP, ProviderGenkit, ProviderLangChain:
	default:
		return fmt.Errorf("LLM_PROVIDER must be one of: %s, %s, %s, %s; got %q",
			ProviderOpenAI, ProviderHTTP, ProviderGenkit, ProviderLangChain, c.LLM.Provider)
	}

	if _, err := url.ParseRequestURI(c.LLM.BaseURL); err != nil {
		return fmt.Errorf("LLM_BASE_URL is not a valid URL: %w", err)
	}
	if c.LLM.Model == "" {
		return fmt.Errorf("LLM_MODEL must not be empty")
	}
	if c.Database.MaxOpenConns < 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must not be negative, got %d", c.Database.MaxOpenConns)
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("LLM_TIMEOUT must not be negative, got %s", c.LLM.Timeout)
	}

	return nil
}

// GetDSN returns the connection string for the configured driver
func (c *DatabaseConfig) GetDSN() string {
	if c.Driver == DriverPostgres {
		return fmt.Sprintf(
			"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
		)
	}
	return fmt.Sprintf("file:%s?_foreign_keys=on&_busy_timeout=5000", c.Path)
}

// RedactedDSN returns GetDSN with the password masked, for logging
func (c *DatabaseConfig) RedactedDSN() string {
	if c.Driver != DriverPostgres {
		return c.GetDSN()
	}
	masked := *c
	masked.Password = "****"
	return masked.GetDSN()
}

// Helper functions for environment variable parsing

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid integer value, using default")
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		logger.Log.WithFields(logrus.Fields{"key": key, "default": defaultValue}).Warn("Invalid duration value, using default")
		return defaultValue
	}
	return value
}
