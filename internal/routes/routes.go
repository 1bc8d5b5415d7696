package routes

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"repair-desk/internal/authz"
	tgcontroller "repair-desk/internal/controllers/telegram"
	"repair-desk/internal/conversation"
	"repair-desk/internal/integrations/broker"
	"repair-desk/internal/listeners"
	"repair-desk/internal/metrics"
	"repair-desk/internal/repositories"
	"repair-desk/internal/services"
	"repair-desk/internal/state"
	"repair-desk/pkg/config"
	"repair-desk/pkg/eventbus"
	"repair-desk/pkg/middleware"
	"repair-desk/pkg/telegram"
)

const eventHandlerTimeout = 30 * time.Second

// Deps - то, что main создаёт до сборки приложения.
type Deps struct {
	DB        *pgxpool.Pool
	Cache     repositories.CacheRepositoryInterface
	Telegram  telegram.ServiceInterface
	Publisher broker.Publisher // nil - события наружу не публикуются
	Validate  *validator.Validate
	Metrics   *metrics.Metrics
	Gatherer  prometheus.Gatherer
	Checks    map[string]Pinger
	Config    *config.Config
	Logger    *zap.Logger
}

// Runtime - собранное приложение: фоновые задачи и корректная остановка.
type Runtime struct {
	Controller *tgcontroller.TelegramController
	Engine     *conversation.Engine
	Bus        *eventbus.Bus
	Notifier   *services.NotificationService
	Publisher  broker.Publisher
	logger     *zap.Logger
}

func InitRouter(e *echo.Echo, deps Deps) (*Runtime, error) {
	logger := deps.Logger
	cfg := deps.Config
	logger.Info("InitRouter: Начало сборки приложения")

	enforcer, err := authz.NewEnforcer(authz.DefaultPolicy)
	if err != nil {
		return nil, err
	}

	// --- 1. РЕПОЗИТОРИИ ---
	entityCache := repositories.NewEntityCache(deps.Cache, cfg.Cache.TTL, logger, deps.Metrics)
	txManager := repositories.NewTxManager(deps.DB)
	assignmentRepo := repositories.NewCachedAssignmentRepository(repositories.NewAssignmentRepository(deps.DB, logger), entityCache)
	userRepo := repositories.NewCachedUserRepository(repositories.NewUserRepository(deps.DB, logger), entityCache, logger)
	orderRepo := repositories.NewCachedOrderRepository(repositories.NewOrderRepository(deps.DB, txManager, assignmentRepo, logger), entityCache, logger)
	activityRepo := repositories.NewActivityLogRepository(deps.DB, logger)
	templateRepo := repositories.NewProblemTemplateRepository(deps.DB, logger)

	// --- 2. СЕРВИСЫ ---
	bus := eventbus.New(logger)
	bus.SetHandlerTimeout(eventHandlerTimeout)

	gate := authz.NewGatekeeper(userRepo, enforcer, cfg.AdminIDs, logger)
	activity := services.NewActivityLogService(activityRepo, gate, cfg.ActivityLog.WriteTimeout, deps.Metrics, logger)
	notifier := services.NewNotificationService(deps.Telegram, userRepo, cfg.Notifications, cfg.AdminIDs, deps.Metrics, logger)
	userService := services.NewUserService(userRepo, gate, activity, notifier, logger)
	workflow := services.NewOrderWorkflow(orderRepo, assignmentRepo, userRepo, gate, activity, bus, deps.Validate, deps.Metrics, logger)
	templateService := services.NewProblemTemplateService(templateRepo, gate, activity, deps.Validate, logger)
	reportService := services.NewReportService(orderRepo, userRepo, gate, activity, logger)

	// --- 3. ПОДПИСЧИКИ ---
	listeners.NewNotificationListener(notifier, userRepo, logger).Register(bus)
	if deps.Publisher != nil {
		listeners.NewBrokerListener(deps.Publisher, deps.Metrics, logger).Register(bus)
	}

	// --- 4. ДИАЛОГИ И ТРАНСПОРТ ---
	states := state.NewStore(deps.Cache, cfg.Cache.StateTTL, logger)
	engine := conversation.NewEngine(userService, userRepo, workflow, templateService, reportService, activity, gate, states, deps.Validate, logger)
	controller := tgcontroller.NewTelegramController(engine, deps.Telegram, notifier, cfg.Telegram, deps.Metrics, logger)

	// --- 5. РОУТЕРЫ ---
	runTelegramRouter(e, controller, middleware.NewWebhookAuth(cfg.Telegram.WebhookSecret, logger))
	runSystemRouter(e, deps.Gatherer, deps.Checks)

	logger.Info("INIT_ROUTER: Создание маршрутов завершено")
	return &Runtime{
		Controller: controller,
		Engine:     engine,
		Bus:        bus,
		Notifier:   notifier,
		Publisher:  deps.Publisher,
		logger:     logger,
	}, nil
}

// Start запускает фоновую чистку до отмены ctx.
func (r *Runtime) Start(ctx context.Context) {
	go r.Controller.StartCleanup(ctx)
	go r.Notifier.StartCleanup(ctx)
}

// Shutdown дожидается обработки принятых обновлений, обработчиков событий и отправки уведомлений.
func (r *Runtime) Shutdown(ctx context.Context) error {
	var errs []error
	if err := r.Controller.Wait(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.Bus.Wait(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.Notifier.Wait(ctx); err != nil {
		errs = append(errs, err)
	}
	if r.Publisher != nil {
		if err := r.Publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		r.logger.Warn("Остановка завершена не полностью", zap.Errors("errors", errs))
	}
	return errors.Join(errs...)
}
