package app

import (
	"simple-chat/internal/config"
	"simple-chat/internal/repository/db"
	"simple-chat/internal/service/llm"
)

// Config holds all application dependencies and configuration
type Config struct {
	// Database interface for data persistence
	DB db.Database
	// Upstream completion provider
	Provider llm.Provider
	// Centralized application configuration
	AppConfig *config.AppConfig
}

// NewConfig creates a new application configuration
func NewConfig(database db.Database, provider llm.Provider, appConfig *config.AppConfig) *Config {
	return &Config{
		DB:        database,
		Provider:  provider,
		AppConfig: appConfig,
	}
}
