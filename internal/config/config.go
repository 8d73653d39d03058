// Package config provides configuration for the chatbot.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// DefaultSystemPrompt is the directive placed before every conversation.
const DefaultSystemPrompt = "You're a helpful assistant."

// Config holds the chatbot configuration.
type Config struct {
	// Server settings
	HTTPPort int
	RPCPort  int

	// Database
	DatabaseURL string

	// LLM settings
	LLMProvider   string
	LLMBaseURL    string
	LLMAPIKey     string
	GeminiAPIKey  string
	LLMTimeout    time.Duration
	LLMMaxRetries int
	SystemPrompt  string

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables. A .env file in the
// working directory is read first; variables already set win.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		HTTPPort:      getEnvInt("HTTP_PORT", 8080),
		RPCPort:       getEnvInt("RPC_PORT", 0),
		DatabaseURL:   getEnv("DATABASE_URL", "file:chatbot.db?_foreign_keys=on"),
		LLMProvider:   getEnv("LLM_PROVIDER", "http"),
		LLMBaseURL:    getEnv("LLM_BASE_URL", "https://api.groq.com/openai"),
		LLMAPIKey:     getEnv("LLM_API_KEY", os.Getenv("GROQ_API_KEY")),
		GeminiAPIKey:  os.Getenv("GEMINI_API_KEY"),
		LLMTimeout:    time.Duration(getEnvInt("LLM_TIMEOUT_MS", 120000)) * time.Millisecond,
		LLMMaxRetries: getEnvInt("LLM_MAX_RETRIES", 2),
		SystemPrompt:  getEnv("SYSTEM_PROMPT", DefaultSystemPrompt),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
