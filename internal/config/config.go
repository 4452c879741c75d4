package config

import (
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Session store backends
const (
	SessionStoreMemory   = "memory"
	SessionStoreFile     = "file"
	SessionStorePostgres = "postgres"
)

// Config holds booking console configuration
type Config struct {
	Port           string
	BackendURL     string
	RequestTimeout time.Duration
	BackendRPS     float64
	BackendBurst   int
	SessionStore   string
	SessionFile    string
	SessionProfile string
	DatabaseURL    string
	RabbitMQURL    string
	AllowedOrigins string
	Environment    string // development, staging, production
	LogLevel       string
	LogFormat      string
}

// Load loads configuration from environment variables and validates it
func Load() *Config {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := FromEnv()

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	return cfg
}

// FromEnv reads configuration from the process environment without validating
func FromEnv() *Config {
	return &Config{
		Port:           getEnv("PORT", "3000"),
		BackendURL:     getEnv("BACKEND_URL", "http://localhost:8000/api"),
		RequestTimeout: getDuration("REQUEST_TIMEOUT", 15*time.Second),
		BackendRPS:     getFloat("BACKEND_RPS", 10),
		BackendBurst:   getInt("BACKEND_BURST", 20),
		SessionStore:   getEnv("SESSION_STORE", SessionStoreFile),
		SessionFile:    getEnv("SESSION_FILE", ".booking-console/session.json"),
		SessionProfile: getEnv("SESSION_PROFILE", "default"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		RabbitMQURL:    getEnv("RABBITMQ_URL", ""),
		AllowedOrigins: getEnv("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000"),
		Environment:    getEnv("ENVIRONMENT", "development"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogFormat:      getEnv("LOG_FORMAT", "json"),
	}
}

// Validate checks configuration for correctness
func (c *Config) Validate() error {
	u, err := url.Parse(c.BackendURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("BACKEND_URL must be an absolute URL (got %q)", c.BackendURL)
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive (got %s)", c.RequestTimeout)
	}

	if c.BackendRPS <= 0 || c.BackendBurst < 1 {
		return fmt.Errorf("BACKEND_RPS and BACKEND_BURST must be positive (got %.2f, %d)", c.BackendRPS, c.BackendBurst)
	}

	switch c.SessionStore {
	case SessionStoreMemory:
	case SessionStoreFile:
		if c.SessionFile == "" {
			return fmt.Errorf("SESSION_FILE must be set when SESSION_STORE=file")
		}
	case SessionStorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL must be set when SESSION_STORE=postgres")
		}
	default:
		return fmt.Errorf("unknown SESSION_STORE %q", c.SessionStore)
	}

	if c.IsProduction() {
		// Tokens and admin keys travel in headers
		if u.Scheme != "https" {
			return fmt.Errorf("BACKEND_URL must use https in production")
		}
		if c.SessionStore == SessionStoreMemory {
			log.Println("WARNING: in-memory session store loses the session on restart")
		}
	}

	return nil
}

// IsProduction returns true if running in production environment
func (c *Config) IsProduction() bool {
	return c.Environment == "production" || c.Environment == "prod"
}

// IsDevelopment returns true if running in development environment
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development" || c.Environment == "dev" || c.Environment == ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %s", key, value, defaultValue)
		return defaultValue
	}
	return d
}

func getFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		log.Printf("Invalid %s=%q, using %v", key, value, defaultValue)
		return defaultValue
	}
	return f
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid %s=%q, using %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
