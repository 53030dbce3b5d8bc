package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"imagyn/internal/errors"
)

// Config represents the complete application configuration
type Config struct {
	Backend    BackendConfig
	Pipeline   PipelineConfig
	Storage    StorageConfig
	Generation GenerationConfig
	Server     ServerConfig
	Logging    LoggingConfig
}

// BackendConfig holds render backend connection settings
type BackendConfig struct {
	URL              string
	HTTPTimeout      time.Duration
	WebsocketTimeout time.Duration
}

// PipelineConfig holds the workflow template location
type PipelineConfig struct {
	WorkflowFile string
}

// StorageConfig holds artifact storage settings
type StorageConfig struct {
	OutputFolder string
}

// GenerationConfig holds generation limits and feature flags
type GenerationConfig struct {
	EnableAdapters bool
	MaxConcurrent  int
	Timeout        time.Duration
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port    string
	GinMode string
}

// LoggingConfig holds logger settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := &Config{
		Backend: *loadBackendConfig(),
		Storage: *loadStorageConfig(),
		Server:  *loadServerConfig(),
		Logging: *loadLoggingConfig(),
	}

	pipelineConfig, err := loadPipelineConfig()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load pipeline configuration")
	}
	config.Pipeline = *pipelineConfig
	config.Generation = *loadGenerationConfig()

	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadBackendConfig() *BackendConfig {
	return &BackendConfig{
		URL:              strings.TrimRight(getEnvOrDefault("COMFYUI_URL", "http://localhost:8188"), "/"),
		HTTPTimeout:      getEnvDurationOrDefault("HTTP_TIMEOUT", 60*time.Second),
		WebsocketTimeout: getEnvDurationOrDefault("WEBSOCKET_TIMEOUT", 30*time.Second),
	}
}

func loadPipelineConfig() (*PipelineConfig, error) {
	workflowFile := os.Getenv("WORKFLOW_FILE")
	if workflowFile == "" {
		return nil, errors.ConfigInvalid("WORKFLOW_FILE is required")
	}
	return &PipelineConfig{WorkflowFile: workflowFile}, nil
}

func loadStorageConfig() *StorageConfig {
	return &StorageConfig{
		OutputFolder: getEnvOrDefault("OUTPUT_FOLDER", "output"),
	}
}

func loadGenerationConfig() *GenerationConfig {
	return &GenerationConfig{
		EnableAdapters: getEnvBoolOrDefault("ENABLE_LORAS", true),
		MaxConcurrent:  getEnvIntOrDefault("MAX_CONCURRENT_GENERATIONS", 3),
		Timeout:        getEnvDurationOrDefault("GENERATION_TIMEOUT", 300*time.Second),
	}
}

func loadServerConfig() *ServerConfig {
	return &ServerConfig{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),
	}
}

func loadLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:  strings.ToLower(getEnvOrDefault("LOG_LEVEL", "info")),
		Format: strings.ToLower(getEnvOrDefault("LOG_FORMAT", "json")),
	}
}

func validateConfig(config *Config) error {
	if !strings.HasPrefix(config.Backend.URL, "http://") && !strings.HasPrefix(config.Backend.URL, "https://") {
		return errors.ConfigInvalid(fmt.Sprintf("COMFYUI_URL must be an http(s) URL, got %q", config.Backend.URL))
	}
	if config.Generation.MaxConcurrent < 1 {
		return errors.ConfigInvalid("MAX_CONCURRENT_GENERATIONS must be at least 1")
	}
	if config.Generation.Timeout <= 0 || config.Backend.HTTPTimeout <= 0 || config.Backend.WebsocketTimeout <= 0 {
		return errors.ConfigInvalid("timeouts must be positive")
	}
	if config.Storage.OutputFolder == "" {
		return errors.ConfigInvalid("OUTPUT_FOLDER is required")
	}
	switch config.Logging.Format {
	case "json", "text":
	default:
		return errors.ConfigInvalid(fmt.Sprintf("LOG_FORMAT must be json or text, got %q", config.Logging.Format))
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvDurationOrDefault accepts Go duration strings ("90s", "5m") or plain seconds ("300").
func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		return time.Duration(seconds * float64(time.Second))
	}
	return defaultValue
}
