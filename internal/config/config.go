// Package config provides application configuration management using environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const minSessionSecretLength = 32

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Discord   DiscordConfig
	Database  DatabaseConfig
	Session   SessionConfig
	Security  SecurityConfig
	WebSocket WebSocketConfig
	Logging   LoggingConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	HTTPPort       string
	GRPCPort       string
	GRPCEnabled    bool
	Env            string
	DashboardURL   string
	AuthFailureURL string
}

// DiscordConfig holds Discord OAuth configuration
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scopes       []string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	URL           string
	MaxOpenConns  int
	MaxIdleConns  int
	QueryTimeout  time.Duration
	RunMigrations bool
}

// SessionConfig holds the session store configuration
type SessionConfig struct {
	StoreURL           string
	Secret             string
	ExpiryHours        int
	StateExpiryMinutes int
}

// SecurityConfig holds cross-origin and anti-forgery settings
type SecurityConfig struct {
	AllowedOrigins []string
	CSRFEnabled    bool
}

// WebSocketConfig holds realtime broadcast configuration
type WebSocketConfig struct {
	Enabled       bool
	EventsChannel string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment variables
// It optionally loads from a .env file if it exists
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}

	dashboardURL := strings.TrimRight(getEnv("DASHBOARD_URL", "http://localhost:3000"), "/")
	cfg.Server = ServerConfig{
		HTTPPort:       getEnv("PORT", "3001"),
		GRPCPort:       getEnv("GRPC_PORT", "50051"),
		GRPCEnabled:    getEnvBool("GRPC_ENABLED", true),
		Env:            getEnv("ENVIRONMENT", "development"),
		DashboardURL:   dashboardURL,
		AuthFailureURL: getEnv("AUTH_FAILURE_URL", dashboardURL+"/login?error=auth_failed"),
	}

	cfg.Discord = DiscordConfig{
		ClientID:     getEnv("DISCORD_CLIENT_ID", ""),
		ClientSecret: getEnv("DISCORD_CLIENT_SECRET", ""),
		CallbackURL:  getEnv("DISCORD_CALLBACK_URL", ""),
		Scopes:       strings.Fields(getEnv("DISCORD_OAUTH_SCOPES", "identify guilds")),
	}

	maxOpenConns, _ := strconv.Atoi(getEnv("DB_MAX_OPEN_CONNS", "25"))
	maxIdleConns, _ := strconv.Atoi(getEnv("DB_MAX_IDLE_CONNS", "5"))
	queryTimeoutSeconds, _ := strconv.Atoi(getEnv("DB_QUERY_TIMEOUT_SECONDS", "10"))

	databaseURL := getEnv("DATABASE_URL", "")
	cfg.Database = DatabaseConfig{
		URL:           databaseURL,
		MaxOpenConns:  maxOpenConns,
		MaxIdleConns:  maxIdleConns,
		QueryTimeout:  time.Duration(queryTimeoutSeconds) * time.Second,
		RunMigrations: getEnvBool("DB_RUN_MIGRATIONS", true),
	}

	sessionExpiryHours, _ := strconv.Atoi(getEnv("SESSION_EXPIRY_HOURS", "168"))
	stateExpiryMinutes, _ := strconv.Atoi(getEnv("STATE_EXPIRY_MINUTES", "10"))

	cfg.Session = SessionConfig{
		StoreURL:           getEnv("SESSION_STORE_URL", databaseURL),
		Secret:             getEnv("SESSION_SECRET", ""),
		ExpiryHours:        sessionExpiryHours,
		StateExpiryMinutes: stateExpiryMinutes,
	}

	cfg.Security = SecurityConfig{
		AllowedOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		CSRFEnabled:    getEnvBool("CSRF_ENABLED", false),
	}

	cfg.WebSocket = WebSocketConfig{
		Enabled:       getEnvBool("WS_ENABLED", true),
		EventsChannel: getEnv("WS_EVENTS_CHANNEL", "dashboard_events"),
	}

	cfg.Logging = LoggingConfig{
		Level:  getEnv("LOG_LEVEL", "info"),
		Format: getEnv("LOG_FORMAT", "json"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Discord.ClientID == "" {
		return fmt.Errorf("DISCORD_CLIENT_ID is required")
	}
	if c.Discord.ClientSecret == "" {
		return fmt.Errorf("DISCORD_CLIENT_SECRET is required")
	}
	if c.Discord.CallbackURL == "" {
		return fmt.Errorf("DISCORD_CALLBACK_URL is required")
	}
	if len(c.Discord.Scopes) == 0 {
		return fmt.Errorf("DISCORD_OAUTH_SCOPES must not be empty")
	}

	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Database.QueryTimeout <= 0 {
		return fmt.Errorf("DB_QUERY_TIMEOUT_SECONDS must be positive")
	}

	if c.Session.StoreURL == "" {
		return fmt.Errorf("SESSION_STORE_URL is required")
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("SESSION_SECRET is required")
	}
	if len(c.Session.Secret) < minSessionSecretLength {
		return fmt.Errorf("SESSION_SECRET must be at least %d characters", minSessionSecretLength)
	}
	if c.Session.ExpiryHours <= 0 {
		return fmt.Errorf("SESSION_EXPIRY_HOURS must be positive")
	}
	if c.Session.StateExpiryMinutes <= 0 {
		return fmt.Errorf("STATE_EXPIRY_MINUTES must be positive")
	}

	if _, err := url.ParseRequestURI(c.Server.DashboardURL); err != nil {
		return fmt.Errorf("DASHBOARD_URL must be an absolute URL: %w", err)
	}
	if c.Server.AuthFailureURL == "" {
		return fmt.Errorf("AUTH_FAILURE_URL must not be empty")
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}
	validLogFormats := map[string]bool{"json": true, "console": true}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}

	return nil
}

// IsProduction reports whether the server runs with production cookie settings
func (c *ServerConfig) IsProduction() bool {
	return c.Env == "production"
}

// SessionExpiry returns the session lifetime
func (c *SessionConfig) SessionExpiry() time.Duration {
	return time.Duration(c.ExpiryHours) * time.Hour
}

// StateExpiry returns the OAuth state lifetime
func (c *SessionConfig) StateExpiry() time.Duration {
	return time.Duration(c.StateExpiryMinutes) * time.Minute
}

// getEnv retrieves an environment variable with a fallback default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
