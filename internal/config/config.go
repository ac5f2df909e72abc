// Package config provides configuration management
package config

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/xmtp/allow-list-management/internal/utils"
	"github.com/xmtp/allow-list-management/v1/models"
)

// Config holds all configuration for the service
type Config struct {
	Environment string
	Service     ServiceConfig
	Logging     LoggingConfig
	IDPConfig   IDPConfig
	DBConfigs   DBConfigs
	Redis       RedisConfig
	Social      SocialConfig
	// MessagingEnv is the messaging network environment: local, dev or production
	MessagingEnv string
	SessionTTL   time.Duration
}

// ServiceConfig holds service-specific configuration
type ServiceConfig struct {
	Name           string
	Port           string
	Host           string
	Timeout        time.Duration
	AllowedOrigins []string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// IDPConfig holds the token issuer used to authenticate wallets
type IDPConfig struct {
	Issuer   string
	JwksUrl  string
	Audience string
	// WalletClaim names the JWT claim carrying the wallet address
	WalletClaim string
}

// DBConfigs holds database configuration
type DBConfigs struct {
	// Driver is postgres or sqlite
	Driver     string
	Host       string
	Port       string
	Username   string
	Password   string
	Database   string
	SSLMode    string
	SQLitePath string
}

// RedisConfig holds the event stream and profile cache settings.
// An empty Addr disables both.
type RedisConfig struct {
	Addr     string
	Username string
	Password string
	DB       int
	TLS      bool
	Stream   string
	CacheTTL time.Duration
}

// SocialConfig holds the social profile resolution service settings
type SocialConfig struct {
	Enabled  bool
	Endpoint string
	// AuthType is apiKey, oauth2 or empty for no authentication
	AuthType     string
	APIKeyHeader string
	APIKeyValue  string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration
}

// LoadConfig loads configuration from command line flags and environment variables
func LoadConfig(serviceName string) (*Config, error) {
	return loadConfig(serviceName, os.Args[1:])
}

func loadConfig(serviceName string, args []string) (*Config, error) {
	env := utils.GetEnvOrDefault("ENVIRONMENT", "local")

	fs := flag.NewFlagSet(serviceName, flag.ContinueOnError)
	envFlag := fs.String("env", env, "Environment: local or production")
	port := fs.String("port", utils.GetEnvOrDefault("PORT", "8080"), "Service port")
	host := fs.String("host", utils.GetEnvOrDefault("HOST", "0.0.0.0"), "Host address")
	timeout := fs.Duration("timeout", utils.GetEnvDurationOrDefault("REQUEST_TIMEOUT", 10*time.Second), "Request timeout")
	logLevel := fs.String("log-level", utils.GetEnvOrDefault("LOG_LEVEL", getDefaultLogLevel(env)), "Log level")
	logFormat := fs.String("log-format", utils.GetEnvOrDefault("LOG_FORMAT", getDefaultLogFormat(env)), "Log format")
	messagingEnv := fs.String("xmtp-env", utils.GetEnvOrDefault("XMTP_ENV", models.EnvDev), "Messaging environment: local, dev or production")
	sessionTTL := fs.Duration("session-ttl", utils.GetEnvDurationOrDefault("SESSION_TTL", 30*time.Minute), "Idle session lifetime")

	if err := fs.Parse(args); err != nil {
		return nil, fmt.Errorf("failed to parse flags: %w", err)
	}

	cfg := &Config{
		Environment: *envFlag,
		Service: ServiceConfig{
			Name:           serviceName,
			Port:           *port,
			Host:           *host,
			Timeout:        *timeout,
			AllowedOrigins: splitList(utils.GetEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:5173")),
		},
		Logging: LoggingConfig{
			Level:  *logLevel,
			Format: *logFormat,
		},
		IDPConfig: IDPConfig{
			Issuer:      utils.GetEnvOrDefault("IDP_ISSUER", ""),
			JwksUrl:     utils.GetEnvOrDefault("IDP_JWKS_URL", ""),
			Audience:    utils.GetEnvOrDefault("IDP_AUDIENCE", ""),
			WalletClaim: utils.GetEnvOrDefault("IDP_WALLET_CLAIM", "wallet_address"),
		},
		DBConfigs: DBConfigs{
			Driver:     utils.GetEnvOrDefault("DB_DRIVER", "postgres"),
			Host:       utils.GetEnvOrDefault("DB_HOST", "localhost"),
			Port:       utils.GetEnvOrDefault("DB_PORT", "5432"),
			Username:   utils.GetEnvOrDefault("DB_USERNAME", "postgres"),
			Password:   utils.GetEnvOrDefault("DB_PASSWORD", ""),
			Database:   utils.GetEnvOrDefault("DB_NAME", "allow_list"),
			SSLMode:    utils.GetEnvOrDefault("DB_SSLMODE", "require"),
			SQLitePath: utils.GetEnvOrDefault("DB_SQLITE_PATH", "allow_list.db"),
		},
		Redis: RedisConfig{
			Addr:     utils.GetEnvOrDefault("REDIS_ADDR", ""),
			Username: utils.GetEnvOrDefault("REDIS_USERNAME", ""),
			Password: utils.GetEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       utils.GetEnvIntOrDefault("REDIS_DB", 0),
			TLS:      utils.GetEnvBoolOrDefault("REDIS_TLS", false),
			Stream:   utils.GetEnvOrDefault("REDIS_EVENT_STREAM", "consent-events"),
			CacheTTL: utils.GetEnvDurationOrDefault("SOCIAL_CACHE_TTL", 10*time.Minute),
		},
		Social: SocialConfig{
			Enabled:      utils.GetEnvBoolOrDefault("SOCIAL_ENABLED", false),
			Endpoint:     utils.GetEnvOrDefault("SOCIAL_ENDPOINT", ""),
			AuthType:     utils.GetEnvOrDefault("SOCIAL_AUTH_TYPE", ""),
			APIKeyHeader: utils.GetEnvOrDefault("SOCIAL_API_KEY_HEADER", "X-API-KEY"),
			APIKeyValue:  utils.GetEnvOrDefault("SOCIAL_API_KEY", ""),
			TokenURL:     utils.GetEnvOrDefault("SOCIAL_TOKEN_URL", ""),
			ClientID:     utils.GetEnvOrDefault("SOCIAL_CLIENT_ID", ""),
			ClientSecret: utils.GetEnvOrDefault("SOCIAL_CLIENT_SECRET", ""),
			Scopes:       splitList(utils.GetEnvOrDefault("SOCIAL_SCOPES", "")),
			Timeout:      utils.GetEnvDurationOrDefault("SOCIAL_TIMEOUT", 5*time.Second),
		},
		MessagingEnv: *messagingEnv,
		SessionTTL:   *sessionTTL,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that cannot fall back to a default
func (c *Config) Validate() error {
	if !models.IsValidEnv(c.MessagingEnv) {
		return fmt.Errorf("invalid XMTP_ENV %q: must be one of local, dev, production", c.MessagingEnv)
	}
	if c.DBConfigs.Driver != "postgres" && c.DBConfigs.Driver != "sqlite" {
		return fmt.Errorf("invalid DB_DRIVER %q: must be postgres or sqlite", c.DBConfigs.Driver)
	}
	// the CORS middleware always sends credentials, which browsers refuse for "*"
	if slices.Contains(c.Service.AllowedOrigins, "*") {
		return fmt.Errorf("CORS_ALLOWED_ORIGINS must list explicit origins, \"*\" is not allowed")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.Social.Enabled {
		if c.Social.Endpoint == "" {
			return fmt.Errorf("SOCIAL_ENDPOINT is required when SOCIAL_ENABLED=true")
		}
		switch c.Social.AuthType {
		case "", "apiKey", "oauth2":
		default:
			return fmt.Errorf("invalid SOCIAL_AUTH_TYPE %q: must be apiKey or oauth2", c.Social.AuthType)
		}
	}
	return nil
}

func splitList(value string) []string {
	items := make([]string, 0)
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}

func getDefaultLogLevel(env string) string {
	if env == "production" {
		return "warn"
	}
	return "debug"
}

func getDefaultLogFormat(env string) string {
	if env == "production" {
		return "json"
	}
	return "text"
}
