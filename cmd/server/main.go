// Command typegpt-server starts the conversational gateway HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/and161185/typegpt/internal/config"
	"github.com/and161185/typegpt/internal/identity"
	"github.com/and161185/typegpt/internal/limiter"
	"github.com/and161185/typegpt/internal/llm"
	"github.com/and161185/typegpt/internal/metrics"
	"github.com/and161185/typegpt/internal/migrate"
	"github.com/and161185/typegpt/internal/oauth"
	"github.com/and161185/typegpt/internal/repository/postgres"
	httpserver "github.com/and161185/typegpt/internal/server/http"
	"github.com/and161185/typegpt/internal/service"
	"github.com/and161185/typegpt/internal/threadlock"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

const (
	stateTTL        = 10 * time.Minute
	lockTTL         = 30 * time.Second
	lockRetry       = 100 * time.Millisecond
	platformTimeout = 10 * time.Second
)

// main loads configuration, runs migrations and serves HTTP until SIGINT or SIGTERM.
func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(2)
	}

	logger := newLogger(cfg.Dev)
	defer func() { _ = logger.Sync() }()
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DSN, logger); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	db, err := postgres.New(ctx, cfg.DSN)
	if err != nil {
		logger.Fatal("postgres.New", zap.Error(err))
	}
	defer db.Close()

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// Repositories
	userRepo := postgres.NewUserRepo(db)
	sessionRepo := postgres.NewSessionRepo(db)
	threadRepo := postgres.NewThreadRepo(db)
	messageRepo := postgres.NewMessageRepo(db)
	imageRepo := postgres.NewImageRepo(db)

	lim := limiter.NewPG(db.Pool, cfg.LoginWindow, cfg.LoginMaxFails, cfg.LoginBlockFor)

	// Federated login
	state, err := oauth.NewStateSigner([]byte(cfg.StateKey), stateTTL)
	if err != nil {
		logger.Fatal("state signer", zap.Error(err))
	}
	authCfg := service.AuthConfig{SessionTTL: cfg.SessionTTL, State: state, Metrics: m, Logger: logger}
	chain := identity.Chain{identity.Local{Sessions: sessionRepo}}
	if cfg.GoogleEnabled() {
		authCfg.Google = oauth.NewGoogle(cfg.GoogleClientID, cfg.GoogleClientSecret)
		logger.Info("google oauth enabled")
	}
	if cfg.PlatformEnabled() {
		platform := oauth.NewPlatform(cfg.UsersAPIURL, cfg.UsersAPIKey, &http.Client{Timeout: platformTimeout})
		authCfg.Platform = platform
		chain = append(chain, identity.Platform{Users: platform})
		logger.Info("users platform enabled", zap.String("url", cfg.UsersAPIURL))
	}

	// Provider
	gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.ChatModel, cfg.ImageModel)
	if err != nil {
		logger.Fatal("gemini client", zap.Error(err))
	}

	// Thread locks
	var locks threadlock.Locker = threadlock.NewLocal()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal("redis ping", zap.Error(err))
		}
		locks = threadlock.NewRedis(rdb, lockTTL, lockRetry, logger)
		logger.Info("redis thread locks enabled", zap.String("addr", cfg.RedisAddr))
	}

	// Services
	authSvc := service.NewAuthService(userRepo, sessionRepo, lim, authCfg)
	chatSvc := service.NewChatService(threadRepo, messageRepo)
	relay := service.NewRelay(threadRepo, messageRepo, gemini, locks, m, logger)
	imageSvc := service.NewImageService(imageRepo, gemini, m, logger)

	app := httpserver.New(httpserver.Deps{
		Auth:              authSvc,
		Chats:             chatSvc,
		Relay:             relay,
		Images:            imageSvc,
		Identity:          chain,
		Health:            db,
		Metrics:           m,
		MetricsHandler:    promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}),
		Cookies:           httpserver.CookieConfig{Secure: !cfg.Dev, TTL: cfg.SessionTTL},
		GoogleRedirectURI: cfg.GoogleRedirectURI,
		ClientURL:         cfg.ClientURL,
		Log:               logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown timed out", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

func newLogger(dev bool) *zap.Logger {
	if dev {
		l, _ := zap.NewDevelopment()
		return l
	}
	l, _ := zap.NewProduction()
	return l
}
