package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/xmtp/allow-list-management/internal/config"
	"github.com/xmtp/allow-list-management/internal/monitoring"
	"github.com/xmtp/allow-list-management/internal/redis"
	"github.com/xmtp/allow-list-management/internal/utils"
	"github.com/xmtp/allow-list-management/v1/auth"
	"github.com/xmtp/allow-list-management/v1/database"
	"github.com/xmtp/allow-list-management/v1/events"
	"github.com/xmtp/allow-list-management/v1/handlers"
	"github.com/xmtp/allow-list-management/v1/messaging"
	"github.com/xmtp/allow-list-management/v1/models"
	"github.com/xmtp/allow-list-management/v1/router"
	"github.com/xmtp/allow-list-management/v1/services"
	"github.com/xmtp/allow-list-management/v1/session"
	"github.com/xmtp/allow-list-management/v1/social"
	"github.com/xmtp/allow-list-management/v1/wallet"
	"gorm.io/gorm"
)

const serviceName = "allow-list-management"

func main() {
	// .env is optional; real deployments use the environment
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to load .env file", "error", err)
	}

	cfg, err := config.LoadConfig(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	utils.SetupLogging(cfg.Logging.Format, cfg.Logging.Level)

	slog.Info("Starting allow list management service",
		"environment", cfg.Environment,
		"xmtp_env", cfg.MessagingEnv,
		"port", cfg.Service.Port)

	if monitoring.IsObservabilityEnabled() {
		if err := monitoring.Initialize(monitoring.DefaultConfig(serviceName)); err != nil {
			slog.Warn("Failed to initialize metrics", "error", err)
		}
	}

	db, err := database.ConnectGormDB(database.NewDatabaseConfig(&cfg.DBConfigs))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.RedisClient
	if cfg.Redis.Addr != "" {
		redisClient, err = redis.NewClient(&redis.Config{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			TLS:      cfg.Redis.TLS,
		})
		if err != nil {
			slog.Error("Failed to connect to Redis", "addr", cfg.Redis.Addr, "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	resolver, err := buildResolver(cfg, redisClient)
	if err != nil {
		slog.Error("Failed to configure social resolver", "error", err)
		os.Exit(1)
	}

	connector, err := messaging.NewLedgerConnector(db, cfg.MessagingEnv)
	if err != nil {
		slog.Error("Failed to create messaging connector", "error", err)
		os.Exit(1)
	}

	sessions := session.NewManager(cfg.MessagingEnv, cfg.SessionTTL)
	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go sessions.RunSweeper(sweepCtx, time.Minute)

	consentService, err := services.NewConsentService(sessions, wallet.NewContextProvider(), connector,
		resolver, buildNotifier(cfg, redisClient))
	if err != nil {
		slog.Error("Failed to create consent service", "error", err)
		os.Exit(1)
	}

	verifier, err := auth.NewJWTVerifier(auth.JWTVerifierConfig{
		JWKSUrl:     cfg.IDPConfig.JwksUrl,
		Issuer:      cfg.IDPConfig.Issuer,
		Audience:    cfg.IDPConfig.Audience,
		WalletClaim: cfg.IDPConfig.WalletClaim,
	})
	if err != nil {
		slog.Error("Failed to create JWT verifier", "error", err)
		os.Exit(1)
	}
	if err := verifier.Refresh(context.Background()); err != nil {
		// keys are fetched again on the first request
		slog.Warn("Initial JWKS fetch failed", "error", err)
	}

	v1Router := router.NewV1Router(
		handlers.NewHealthHandler(healthChecks(db, redisClient)...),
		handlers.NewSessionHandler(consentService),
		handlers.NewConsentHandler(consentService),
		verifier,
		strings.Join(cfg.Service.AllowedOrigins, ","),
	)
	mux := http.NewServeMux()
	v1Router.RegisterRoutes(mux)

	serverConfig := utils.DefaultServerConfig()
	serverConfig.Host = cfg.Service.Host
	serverConfig.Port = cfg.Service.Port
	serverConfig.ReadTimeout = cfg.Service.Timeout
	serverConfig.WriteTimeout = cfg.Service.Timeout
	server := utils.CreateServer(serverConfig, v1Router.Handler(mux))

	if err := utils.StartServerWithGracefulShutdown(server, serviceName, serverConfig.ShutdownTimeout); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
}

// buildResolver returns the social resolver, cached in Redis when available
func buildResolver(cfg *config.Config, redisClient *redis.RedisClient) (social.Resolver, error) {
	if !cfg.Social.Enabled {
		slog.Info("Social profile resolution disabled")
		return social.NoopResolver{}, nil
	}

	var authCfg *social.AuthConfig
	if cfg.Social.AuthType != "" {
		authCfg = &social.AuthConfig{
			Type:         cfg.Social.AuthType,
			APIKeyName:   cfg.Social.APIKeyHeader,
			APIKeyValue:  cfg.Social.APIKeyValue,
			TokenURL:     cfg.Social.TokenURL,
			ClientID:     cfg.Social.ClientID,
			ClientSecret: cfg.Social.ClientSecret,
			Scopes:       cfg.Social.Scopes,
		}
	}
	resolver, err := social.NewGraphQLResolver(cfg.Social.Endpoint, authCfg, cfg.Social.Timeout)
	if err != nil {
		return nil, err
	}
	if redisClient == nil {
		return resolver, nil
	}
	return social.NewCachedResolver(resolver, redisClient, cfg.Redis.CacheTTL), nil
}

// buildNotifier logs every consent event and also publishes it to the Redis stream when configured
func buildNotifier(cfg *config.Config, redisClient *redis.RedisClient) events.Notifier {
	notifiers := events.MultiNotifier{events.LogNotifier{}, subscriptionMetrics()}
	if redisClient != nil {
		notifiers = append(notifiers, events.NewRedisStreamNotifier(redisClient, cfg.Redis.Stream))
	}
	return notifiers
}

// subscriptionMetrics counts subscribe and unsubscribe notifications
func subscriptionMetrics() events.FuncNotifier {
	record := func(outcome string) func(string, models.Permission) {
		return func(owner string, state models.Permission) {
			slog.Debug("Consent subscription changed", "owner", owner, "state", state)
			monitoring.RecordBusinessEvent("consent_subscription", outcome)
		}
	}
	return events.FuncNotifier{
		OnSubscribe:   record("subscribed"),
		OnUnsubscribe: record("unsubscribed"),
	}
}

func healthChecks(db *gorm.DB, redisClient *redis.RedisClient) []handlers.DependencyCheck {
	checks := []handlers.DependencyCheck{{
		Name: "database",
		Check: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}}
	if redisClient != nil {
		checks = append(checks, handlers.DependencyCheck{Name: "redis", Check: redisClient.HealthCheck})
	}
	return checks
}
