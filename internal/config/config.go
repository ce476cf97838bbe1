package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the starfield server
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Logging  LoggingConfig
	Universe UniverseConfig
	Stream   StreamConfig
}

// ServerConfig holds server-specific configuration
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	Environment       string
	AllowedOrigins    []string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// DatabaseConfig holds database connection configuration.
// Sessions are kept in memory unless Enabled is set.
type DatabaseConfig struct {
	Enabled         bool
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// AuthConfig holds operator authentication configuration
type AuthConfig struct {
	JWTSecret     string
	JWTExpiration time.Duration
	Issuer        string
	// OperatorPasswordHash is a bcrypt hash. Empty disables token issuance.
	OperatorPasswordHash string
	BCryptCost           int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

// StreamConfig holds WebSocket stream configuration
type StreamConfig struct {
	Compress   bool
	PingPeriod time.Duration
	PickAngle  float64
}

// Load reads configuration from environment variables and .env file,
// then applies the optional universe overlay named by UNIVERSE_CONFIG.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Warn(".env file not found (this is OK if using environment variables)", "error", err)
	}

	config := &Config{
		Server: ServerConfig{
			Host:              getEnv("SERVER_HOST", "0.0.0.0"),
			Port:              getEnv("SERVER_PORT", "8080"),
			ReadTimeout:       getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:      getDurationEnv("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:       getDurationEnv("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:       getEnv("ENVIRONMENT", "development"),
			AllowedOrigins:    getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
			RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 120),
			RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),
		},
		Database: DatabaseConfig{
			Enabled:         getBoolEnv("DB_ENABLED", false),
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getIntEnv("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "starfield_dev"),
			SSLMode:         getEnv("DB_SSLMODE", "disable"),
			MaxConnections:  getIntEnv("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getIntEnv("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getDurationEnv("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Auth: AuthConfig{
			JWTSecret:            getEnv("JWT_SECRET", ""),
			JWTExpiration:        getDurationEnv("JWT_EXPIRATION", 30*time.Minute),
			Issuer:               getEnv("JWT_ISSUER", "starfield-server"),
			OperatorPasswordHash: getEnv("OPERATOR_PASSWORD_HASH", ""),
			BCryptCost:           getIntEnv("BCRYPT_COST", 10),
		},
		Logging: LoggingConfig{
			Level:      getEnv("LOG_LEVEL", "info"),
			Format:     getEnv("LOG_FORMAT", "json"),
			OutputPath: getEnv("LOG_OUTPUT_PATH", ""),
		},
		Universe: universeFromEnv(),
		Stream: StreamConfig{
			Compress:   getBoolEnv("STREAM_COMPRESS", false),
			PingPeriod: getDurationEnv("STREAM_PING_PERIOD", 54*time.Second),
			PickAngle:  getFloatEnv("STREAM_PICK_ANGLE", 0.05),
		},
	}

	if path := os.Getenv("UNIVERSE_CONFIG"); path != "" {
		universe, err := LoadUniverseFile(path, config.Universe)
		if err != nil {
			return nil, err
		}
		config.Universe = universe
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// Validate checks that all required configuration values are set
func (c *Config) Validate() error {
	if c.Database.Enabled && c.Database.Password == "" {
		return fmt.Errorf("DB_PASSWORD is required when DB_ENABLED is set")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Server.RateLimitRequests <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive")
	}
	if c.Stream.PickAngle <= 0 {
		return fmt.Errorf("STREAM_PICK_ANGLE must be positive")
	}
	return c.Universe.Validate()
}

// DatabaseURL returns a PostgreSQL connection string with escaped credentials
func (c *DatabaseConfig) DatabaseURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:     "/" + c.Database,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Address returns host:port for the HTTP listener
func (c *ServerConfig) Address() string {
	return c.Host + ":" + c.Port
}

// IsDevelopment returns true if running in development mode
func (c *ServerConfig) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *ServerConfig) IsProduction() bool {
	return c.Environment == "production"
}

// Helper functions for environment variable access

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getIntEnv(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		slog.Warn("invalid integer value, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return intValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		slog.Warn("invalid float value, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return f
}

func getBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		slog.Warn("invalid boolean value, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return b
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		slog.Warn("invalid duration value, using default", "key", key, "value", value, "default", defaultValue)
		return defaultValue
	}
	return duration
}

// getListEnv splits a comma separated value, dropping empty entries.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
