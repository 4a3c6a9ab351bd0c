package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	gormlogger "gorm.io/gorm/logger"

	"github.com/relaycore/core/internal/api"
	"github.com/relaycore/core/internal/auth"
	"github.com/relaycore/core/internal/boardsync"
	"github.com/relaycore/core/internal/db"
	"github.com/relaycore/core/internal/eventbus"
	"github.com/relaycore/core/internal/governor"
	"github.com/relaycore/core/internal/relay"
	"github.com/relaycore/core/internal/repositories"
	"github.com/relaycore/core/internal/repository"
	"github.com/relaycore/core/internal/router"
	"github.com/relaycore/core/internal/ruleengine"
	"github.com/relaycore/core/internal/suggestion"
	"github.com/relaycore/core/internal/wsrelay"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

type config struct {
	httpAddr      string
	dbDriver      string
	dbDSN         string
	secretKey     string
	logLevel      string
	dataDir       string
	redisAddr     string
	redisPassword string
	secureCookies bool
	governorOff   bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config{}

	root := &cobra.Command{
		Use:   "relaycore-server",
		Short: "relaycore-server — the core of the multi-tenant agent orchestration platform",
		Long: `relaycore-server is the central component of the relaycore platform.
It exposes a REST API for operators and mobile clients, relays chat over
WebSocket between end-users and gateway-hosted agents, fans board events
out over Redis, and runs the proactivity rule engine and heartbeat governor.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cfg)
		},
	}

	root.AddCommand(newVersionCmd())

	root.PersistentFlags().StringVar(&cfg.httpAddr, "http-addr", envOrDefault("RELAYCORE_HTTP_ADDR", ":8080"), "HTTP API listen address")
	root.PersistentFlags().StringVar(&cfg.dbDriver, "db-driver", envOrDefault("RELAYCORE_DB_DRIVER", "sqlite"), "Database driver (sqlite or postgres)")
	root.PersistentFlags().StringVar(&cfg.dbDSN, "db-dsn", envOrDefault("RELAYCORE_DB_DSN", "./relaycore.db"), "Database DSN or file path for SQLite")
	root.PersistentFlags().StringVar(&cfg.secretKey, "secret-key", envOrDefault("RELAYCORE_SECRET_KEY", ""), "Master secret key for encrypting credentials at rest (required)")
	root.PersistentFlags().StringVar(&cfg.logLevel, "log-level", envOrDefault("RELAYCORE_LOG_LEVEL", "info"), "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&cfg.dataDir, "data-dir", envOrDefault("RELAYCORE_DATA_DIR", "./data"), "Directory for server data (RSA keys, etc.)")
	root.PersistentFlags().StringVar(&cfg.redisAddr, "redis-addr", envOrDefault("RELAYCORE_REDIS_ADDR", "localhost:6379"), "Redis address for the event bus")
	root.PersistentFlags().StringVar(&cfg.redisPassword, "redis-password", envOrDefault("RELAYCORE_REDIS_PASSWORD", ""), "Redis password, if required")
	root.PersistentFlags().BoolVar(&cfg.secureCookies, "secure-cookies", envOrDefault("RELAYCORE_SECURE_COOKIES", "false") == "true", "Set Secure flag on auth cookies (enable in production over HTTPS)")
	root.PersistentFlags().BoolVar(&cfg.governorOff, "disable-governor", envOrDefault("RELAYCORE_DISABLE_GOVERNOR", "false") == "true", "Disable the heartbeat governor's ticking loop (manual /governor/tick still works)")

	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("relaycore-server %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func run(ctx context.Context, cfg *config) error {
	logger, err := buildLogger(cfg.logLevel)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	if cfg.secretKey == "" {
		return fmt.Errorf("secret key is required — set --secret-key or RELAYCORE_SECRET_KEY")
	}

	logger.Info("starting relaycore server",
		zap.String("version", version),
		zap.String("http_addr", cfg.httpAddr),
		zap.String("db_driver", cfg.dbDriver),
		zap.String("log_level", cfg.logLevel),
	)

	// --- Signal handling ---
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// --- 1. Encryption ---
	// InitEncryption must be called before opening the database so that
	// EncryptedString fields can encrypt/decrypt transparently on read/write.
	// The secret key is padded or truncated to exactly 32 bytes (AES-256).
	keyBytes := make([]byte, 32)
	copy(keyBytes, []byte(cfg.secretKey))
	if err := db.InitEncryption(keyBytes); err != nil {
		return fmt.Errorf("failed to initialize encryption: %w", err)
	}

	// --- 2. Database ---
	gormDB, err := db.New(db.Config{
		Driver:   cfg.dbDriver,
		DSN:      cfg.dbDSN,
		Logger:   logger,
		LogLevel: gormLogLevel(cfg.logLevel),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := gormDB.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql.DB: %w", err)
	}
	defer sqlDB.Close()

	// --- 3. Repositories ---
	userRepo := repository.NewUserRepository(gormDB)
	refreshTokenRepo := repository.NewRefreshTokenRepository(gormDB)
	orgRepo := repositories.NewOrganizationRepository(gormDB)
	boardRepo := repository.NewBoardRepository(gormDB)
	gatewayRepo := repositories.NewGatewayRepository(gormDB)
	agentRepo := repositories.NewAgentRepository(gormDB)
	endUserRepo := repository.NewEndUserRepository(gormDB)
	assignmentRepo := repository.NewEndUserAssignmentRepository(gormDB)
	chatSessionRepo := repository.NewChatSessionRepository(gormDB)
	ruleRepo := repository.NewProactiveRuleRepository(gormDB)
	taskRepo := repository.NewTaskRepository(gormDB)
	systemEventRepo := repositories.NewSystemEventRepository(gormDB)
	suggestionRepo := repositories.NewSuggestionRepository(gormDB)

	// --- 4. Auth ---
	// In development (no data dir or missing key files), ephemeral keys are
	// generated in memory. In production, persistent PEM files are used so
	// tokens survive server restarts.
	jwtManager, err := buildJWTManager(cfg.dataDir, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT manager: %w", err)
	}

	localProvider := auth.NewLocalAuthProvider(userRepo, refreshTokenRepo, jwtManager)
	endUserProvider := auth.NewEndUserAuthProvider(endUserRepo, refreshTokenRepo, jwtManager)
	authService := auth.NewAuthService(localProvider, endUserProvider, refreshTokenRepo, jwtManager)

	// --- 5. Event bus ---
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.redisAddr,
		Password: cfg.redisPassword,
	})
	defer redisClient.Close()

	bus := eventbus.New(redisClient, logger)
	publisher := eventbus.NewPublisher(gormDB, bus)

	// --- 6. Connection pools and message router ---
	userPool := wsrelay.NewPool("user", logger)
	gatewayPool := wsrelay.NewPool("gateway", logger)

	msgRouter := router.New(assignmentRepo, chatSessionRepo, agentRepo, userPool, gatewayPool, bus, publisher, logger)

	// --- 7. Board sync ---
	broadcaster := boardsync.NewBroadcaster(bus, logger)
	boardSyncHandler := boardsync.New(boardRepo, taskRepo, authService, bus, broadcaster, logger)

	// --- 8. Suggestions and the rule engine ---
	broker := suggestion.NewBroker()
	suggestionSvc := suggestion.New(suggestionRepo, broker, broadcaster, logger)

	ruleEngine := ruleengine.New(ruleRepo, suggestionSvc, bus, logger)
	go func() {
		if err := ruleEngine.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("rule engine stopped", zap.Error(err))
		}
	}()

	// --- 9. Heartbeat governor ---
	gov, err := governor.New(gormDB, agentRepo, boardRepo, gatewayRepo, systemEventRepo, taskRepo, logger)
	if err != nil {
		return fmt.Errorf("failed to create governor: %w", err)
	}
	if !cfg.governorOff {
		if err := gov.Start(ctx); err != nil {
			return fmt.Errorf("failed to start governor: %w", err)
		}
		defer func() {
			if err := gov.Stop(); err != nil {
				logger.Warn("governor shutdown error", zap.Error(err))
			}
		}()
	}

	// --- 10. WebSocket handlers ---
	userRelay := relay.NewUserHandler(userPool, authService, msgRouter, logger)
	gatewayRelay := relay.NewGatewayHandler(gatewayPool, gatewayRepo, msgRouter, logger)

	// --- 11. HTTP server ---
	httpRouter := api.NewRouter(api.RouterConfig{
		AuthService:    authService,
		Organizations:  orgRepo,
		Gateways:       gatewayRepo,
		Agents:         agentRepo,
		SystemEvents:   systemEventRepo,
		Boards:         boardRepo,
		EndUsers:       endUserRepo,
		ProactiveRules: ruleRepo,
		Suggestions:    suggestionSvc,
		Governor:       gov,
		UserRelay:      userRelay,
		GatewayRelay:   gatewayRelay,
		BoardSync:      boardSyncHandler,
		Logger:         logger,
		Secure:         cfg.secureCookies,
	})

	httpSrv := &http.Server{
		Addr:         cfg.httpAddr,
		Handler:      httpRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.httpAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			cancel()
		}
	}()

	// --- Wait for shutdown signal ---
	<-ctx.Done()
	logger.Info("shutting down relaycore server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server graceful shutdown error", zap.Error(err))
	}

	logger.Info("relaycore server stopped")
	return nil
}

// buildJWTManager loads RSA keys from the data directory if available,
// or generates ephemeral in-memory keys for development.
func buildJWTManager(dataDir string, logger *zap.Logger) (*auth.JWTManager, error) {
	privPath := filepath.Join(dataDir, "jwt_private.pem")
	pubPath := filepath.Join(dataDir, "jwt_public.pem")

	if _, err := os.Stat(privPath); err == nil {
		logger.Info("loading JWT keys from disk", zap.String("private", privPath))
		return auth.NewJWTManagerFromFiles(privPath, pubPath, "relaycore")
	}

	logger.Warn("JWT key files not found — using ephemeral in-memory keys (tokens will be invalidated on restart)",
		zap.String("expected_private", privPath),
	)
	return auth.NewJWTManagerGenerated("relaycore")
}

// gormLogLevel maps the application log level string to a GORM logger level.
func gormLogLevel(level string) gormlogger.LogLevel {
	switch level {
	case "debug":
		return gormlogger.Info
	case "info":
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}

func buildLogger(level string) (*zap.Logger, error) {
	var cfg zap.Config

	switch level {
	case "debug":
		cfg = zap.NewDevelopmentConfig()
	default:
		cfg = zap.NewProductionConfig()
	}

	switch level {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	return cfg.Build()
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}
