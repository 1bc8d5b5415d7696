package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"repair-desk/internal/integrations/broker"
	"repair-desk/internal/metrics"
	"repair-desk/internal/repositories"
	"repair-desk/internal/routes"
	"repair-desk/pkg/config"
	"repair-desk/pkg/customvalidator"
	"repair-desk/pkg/database/postgresql"
	applogger "repair-desk/pkg/logger"
	"repair-desk/pkg/middleware"
	"repair-desk/pkg/telegram"
)

const (
	shutdownTimeout      = 30 * time.Second
	memoryCacheSweepTick = time.Minute
)

func main() {
	cfg := config.New()
	logger := applogger.NewLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	if cfg.Telegram.BotToken == "" {
		logger.Fatal("TELEGRAM_BOT_TOKEN не задан")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.RecoverWithConfig(echomw.RecoverConfig{
		DisableStackAll: true,
		StackSize:       1 << 10,
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("!!! ОБНАРУЖЕНА ПАНИКА (PANIC) !!!",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
				zap.String("stack", string(stack)),
			)
			return err
		},
	}))
	e.Use(middleware.InjectLogger(logger))

	pool, err := postgresql.ConnectDB(ctx, cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("не удалось подключиться к PostgreSQL", zap.Error(err))
	}
	defer pool.Close()

	if cfg.Postgres.RunMigrations {
		if err := postgresql.Migrate(ctx, pool, logger); err != nil {
			logger.Fatal("не удалось применить миграции", zap.Error(err))
		}
	}

	checks := map[string]routes.Pinger{"postgres": pool}

	var cache repositories.CacheRepositoryInterface
	if cfg.Redis.Address != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Fatal("не удалось подключиться к Redis", zap.Error(err), zap.String("address", cfg.Redis.Address))
		}
		cache = repositories.NewRedisCacheRepository(redisClient)
		checks["redis"] = routes.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	} else {
		logger.Warn("REDIS_ADDRESS не задан, кеш и состояния диалогов хранятся в памяти процесса")
		memory := repositories.NewMemoryCacheRepository()
		go memory.Cleanup(ctx, memoryCacheSweepTick)
		cache = memory
	}

	deps := routes.Deps{
		DB:    pool,
		Cache: cache,
		Telegram: telegram.NewService(cfg.Telegram.BotToken, logger,
			telegram.WithWebhookSecret(cfg.Telegram.WebhookSecret)),
		Validate: customvalidator.New(),
		Metrics:  metrics.Default(),
		Gatherer: prometheus.DefaultGatherer,
		Checks:   checks,
		Config:   cfg,
		Logger:   logger,
	}

	if cfg.AMQP.URL != "" {
		publisher, err := broker.Dial(ctx, cfg.AMQP, logger)
		if err != nil {
			logger.Fatal("не удалось подключиться к RabbitMQ", zap.Error(err))
		}
		deps.Publisher = publisher
	}

	runtime, err := routes.InitRouter(e, deps)
	if err != nil {
		logger.Fatal("не удалось собрать приложение", zap.Error(err))
	}
	runtime.Start(ctx)

	if cfg.Telegram.WebhookBaseURL != "" {
		if err := runtime.Controller.RegisterWebhook(ctx, cfg.Telegram.WebhookBaseURL); err != nil {
			logger.Error("не удалось зарегистрировать вебхук", zap.Error(err))
		}
	}

	go func() {
		addr := ":" + cfg.Server.Port
		logger.Info("🚀 Сервер запущен", zap.String("addr", addr))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Ошибка запуска сервера", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Получен сигнал остановки")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка остановки HTTP сервера", zap.Error(err))
	}
	if err := runtime.Shutdown(shutdownCtx); err != nil {
		logger.Error("ошибка остановки приложения", zap.Error(err))
	}
	logger.Info("Сервер остановлен")
}
