// Package config loads the SoulNet server configuration from environment
// variables, with optional .env file support.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config contains the complete configuration for the SoulNet server.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig

	// Database contains storage backend settings.
	Database DatabaseConfig

	// OpenAI contains LLM and embedding provider settings.
	OpenAI OpenAIConfig

	// Auth contains token validation settings.
	Auth AuthConfig

	// Search contains semantic search settings.
	Search SearchConfig
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout time.Duration

	// RateLimit is the per-user sustained request rate per second.
	RateLimit float64

	// RateBurst is the per-user burst allowance.
	RateBurst int
}

// DatabaseConfig contains storage backend settings.
//
// Supported providers: sqlite, postgres, mysql.
type DatabaseConfig struct {
	// Provider selects the backend (sqlite, postgres, mysql).
	Provider string

	// Path is the database file path (sqlite only).
	Path string

	// Host, Port, User, Password and Name configure the server-based
	// backends (postgres, mysql).
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode configures TLS for postgres connections.
	SSLMode string
}

// OpenAIConfig contains LLM and embedding provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Required.
	APIKey string

	// Model is the chat completion model.
	Model string

	// EmbeddingModel is the embedding model.
	EmbeddingModel string

	// BaseURL overrides the API endpoint (optional, for compatible
	// providers).
	BaseURL string

	// Dimensions is the embedding vector dimension.
	Dimensions int
}

// AuthConfig contains token validation settings.
type AuthConfig struct {
	// URL is the auth service base URL.
	URL string

	// AnonKey is the public API key sent with validation requests.
	AnonKey string
}

// SearchConfig contains semantic search settings.
type SearchConfig struct {
	// Threshold is the minimum cosine similarity for search results.
	Threshold float64
}

// Load reads configuration from the environment. A .env file is loaded first
// when one is found in the working directory or up to five levels above it.
func Load() (*Config, error) {
	if path, found := findEnvFile(); found {
		_ = godotenv.Load(path)
	} else {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnvOrDefault("SERVER_ADDR", ":8080"),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RateLimit:       getEnvFloat("RATE_LIMIT_PER_SECOND", 10),
			RateBurst:       getEnvInt("RATE_LIMIT_BURST", 20),
		},
		Database: loadDatabase(),
		OpenAI: OpenAIConfig{
			APIKey:         os.Getenv("OPENAI_API_KEY"),
			Model:          getEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
			EmbeddingModel: getEnvOrDefault("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			BaseURL:        os.Getenv("OPENAI_BASE_URL"),
			Dimensions:     getEnvInt("EMBEDDING_DIMENSIONS", 1536),
		},
		Auth: AuthConfig{
			URL:     os.Getenv("AUTH_URL"),
			AnonKey: os.Getenv("AUTH_ANON_KEY"),
		},
		Search: SearchConfig{
			Threshold: getEnvFloat("SEMANTIC_SEARCH_THRESHOLD", 0.75),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDatabase() DatabaseConfig {
	provider := getEnvOrDefault("DATABASE_PROVIDER", "sqlite")

	switch provider {
	case "postgres":
		return DatabaseConfig{
			Provider: provider,
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvInt("POSTGRES_PORT", 5432),
			User:     getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			Name:     getEnvOrDefault("POSTGRES_DATABASE", "soulnet"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		}
	case "mysql":
		return DatabaseConfig{
			Provider: provider,
			Host:     getEnvOrDefault("MYSQL_HOST", "127.0.0.1"),
			Port:     getEnvInt("MYSQL_PORT", 3306),
			User:     getEnvOrDefault("MYSQL_USER", "root"),
			Password: os.Getenv("MYSQL_PASSWORD"),
			Name:     getEnvOrDefault("MYSQL_DATABASE", "soulnet"),
		}
	default:
		return DatabaseConfig{
			Provider: "sqlite",
			Path:     getEnvOrDefault("SQLITE_PATH", "./soulnet.db"),
		}
	}
}

// Validate checks that required fields are set and values are in range.
func (c *Config) Validate() error {
	switch c.Database.Provider {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database provider %q", c.Database.Provider)
	}
	if c.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.Auth.URL == "" {
		return errors.New("AUTH_URL is required")
	}
	if c.Search.Threshold < 0 || c.Search.Threshold > 1 {
		return fmt.Errorf("SEMANTIC_SEARCH_THRESHOLD must be in [0,1], got %v", c.Search.Threshold)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// findEnvFile searches for a .env file in the working directory and up to
// five levels above it.
func findEnvFile() (string, bool) {
	dir, err := os.Getwd()
	if err != nil {
		return "", false
	}
	for i := 0; i < 5; i++ {
		path := filepath.Join(dir, ".env")
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false
}
