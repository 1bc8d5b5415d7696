// Package telegram - вебхук Bot API: приём обновлений, очередь по пользователю, отрисовка ответов.
package telegram

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"repair-desk/internal/conversation"
	"repair-desk/internal/dto"
	"repair-desk/internal/metrics"
	"repair-desk/internal/services"
	"repair-desk/pkg/config"
	"repair-desk/pkg/dedup"
	"repair-desk/pkg/telegram"
)

const (
	maxMessageAge    = 2 * time.Minute
	goroutineTimeout = 45 * time.Second
	cleanupInterval  = time.Minute

	WebhookPath = "/telegram/webhook"
)

type TelegramController struct {
	engine       conversation.EngineInterface
	tgService    telegram.ServiceInterface
	notifier     services.NotificationServiceInterface
	deduplicator *dedup.Deduplicator
	queue        *userQueue
	cfg          config.TelegramConfig
	metrics      *metrics.Metrics
	logger       *zap.Logger
	now          func() time.Time

	sem chan struct{}
}

func NewTelegramController(
	engine conversation.EngineInterface,
	tgService telegram.ServiceInterface,
	notifier services.NotificationServiceInterface,
	cfg config.TelegramConfig,
	m *metrics.Metrics,
	logger *zap.Logger,
) *TelegramController {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 50
	}
	return &TelegramController{
		engine:       engine,
		tgService:    tgService,
		notifier:     notifier,
		deduplicator: dedup.New(),
		queue:        newUserQueue(),
		cfg:          cfg,
		metrics:      m,
		logger:       logger.Named("telegram"),
		now:          time.Now,
		sem:          make(chan struct{}, maxConcurrent),
	}
}

// HandleTelegramWebhook всегда отвечает 200: Telegram повторяет неподтверждённые обновления.
func (c *TelegramController) HandleTelegramWebhook(ctx echo.Context) error {
	var update telegram.Update
	if err := ctx.Bind(&update); err != nil {
		c.logger.Warn("Не удалось разобрать обновление", zap.Error(err))
		c.metrics.UpdateDropped("bad_payload")
		return ctx.NoContent(http.StatusOK)
	}
	c.Dispatch(update)
	return ctx.NoContent(http.StatusOK)
}

// Dispatch фильтрует обновление и ставит его в очередь пользователя.
// Обновления одного пользователя обрабатываются строго по порядку поступления.
func (c *TelegramController) Dispatch(update telegram.Update) {
	sender, chatID := update.Sender()
	if sender == nil || sender.IsBot {
		c.metrics.UpdateDropped("no_sender")
		return
	}
	if !c.isMessageRecent(&update) {
		c.metrics.UpdateDropped("stale")
		return
	}

	if cb := update.CallbackQuery; cb != nil {
		if !c.deduplicator.TryAcquire(cooldownKey(sender.ID, "cb:"+cb.Data), c.cfg.CallbackCooldown) {
			c.metrics.UpdateDropped("duplicate")
			go c.answerCallback(cb.ID, "")
			return
		}
	} else if update.Message != nil && strings.HasPrefix(strings.TrimSpace(update.Message.Text), "/") {
		if !c.deduplicator.TryAcquire(cooldownKey(sender.ID, "cmd:"+strings.TrimSpace(update.Message.Text)), c.cfg.CommandCooldown) {
			c.metrics.UpdateDropped("duplicate")
			return
		}
	}

	c.queue.Go(sender.ID, func() { c.process(update, sender, chatID) })
}

func cooldownKey(userID int64, what string) string {
	return strings.Join([]string{"tg", what, formatID(userID)}, "|")
}

// isMessageRecent: нажатия кнопок всегда свежие (дата у них - дата сообщения бота),
// текст старше двух минут пропускаем, чтобы не отвечать на накопившееся после простоя.
func (c *TelegramController) isMessageRecent(update *telegram.Update) bool {
	if update.CallbackQuery != nil {
		return true
	}
	if update.Message != nil && update.Message.Date > 0 {
		return c.now().Sub(time.Unix(update.Message.Date, 0)) <= maxMessageAge
	}
	return true
}

func (c *TelegramController) process(update telegram.Update, sender *telegram.User, chatID int64) {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()
	defer c.recoverPanic("process")

	ctx, cancel := context.WithTimeout(context.Background(), goroutineTimeout)
	defer cancel()

	profile := dto.TelegramProfileDTO{
		ID:        sender.ID,
		FirstName: sender.FirstName,
		LastName:  sender.LastName,
		Username:  sender.Username,
	}
	started := c.now()

	var (
		kind  string
		reply *dto.Reply
		err   error
	)
	switch {
	case update.CallbackQuery != nil:
		kind = "callback"
		q := update.CallbackQuery
		cb, decodeErr := dto.DecodeCallback(q.Data)
		if decodeErr != nil {
			c.logger.Info("Неизвестная кнопка", zap.Int64("user_id", sender.ID), zap.String("data", q.Data), zap.Error(decodeErr))
			c.metrics.UpdateDropped("bad_callback")
			c.answerCallback(q.ID, "Кнопка устарела")
			return
		}
		c.answerCallback(q.ID, "")
		messageID := 0
		if q.Message != nil {
			messageID = q.Message.MessageID
		}
		reply, err = c.engine.OnCallback(ctx, profile, cb, messageID)

	case update.Message != nil && strings.TrimSpace(update.Message.Text) != "":
		text := strings.TrimSpace(update.Message.Text)
		if command, args := splitCommand(text); command != "" {
			kind = "command"
			reply, err = c.engine.OnCommand(ctx, profile, command, args)
		} else {
			kind = "text"
			reply, err = c.engine.OnText(ctx, profile, text)
		}

	default:
		c.metrics.UpdateDropped("unsupported")
		if err := c.tgService.SendMessage(ctx, chatID, "Бот понимает только текст и кнопки. Список команд: /help"); err != nil {
			c.logger.Warn("Не удалось ответить на неподдерживаемое сообщение", zap.Int64("chat_id", chatID), zap.Error(err))
		}
		return
	}

	c.metrics.ObserveUpdate(kind, err, started)
	if err != nil {
		c.logger.Error("Ошибка обработки обновления", zap.String("kind", kind), zap.Int64("user_id", sender.ID), zap.Error(err))
		c.sendInternalError(ctx, chatID)
		c.notifier.NotifySystemError(ctx, "telegram."+kind, err, false)
		return
	}
	if err := c.render(ctx, chatID, reply); err != nil {
		c.logger.Error("Не удалось отправить ответ", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (c *TelegramController) answerCallback(id, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.tgService.AnswerCallbackQuery(ctx, id, text); err != nil {
		c.logger.Debug("answerCallbackQuery не удался", zap.Error(err))
	}
}

func (c *TelegramController) sendInternalError(ctx context.Context, chatID int64) {
	if err := c.tgService.SendMessage(ctx, chatID, "❌ Внутренняя ошибка. Попробуйте позже, введённые данные сохранены."); err != nil {
		c.logger.Warn("Не удалось сообщить об ошибке", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (c *TelegramController) recoverPanic(funcName string) {
	if r := recover(); r != nil {
		c.logger.Error("PANIC в горутине",
			zap.String("function", funcName),
			zap.Any("panic", r),
			zap.Stack("stacktrace"))
	}
}

func (c *TelegramController) RegisterWebhook(ctx context.Context, baseURL string) error {
	url := strings.TrimRight(baseURL, "/") + WebhookPath
	if err := c.tgService.SetWebhook(ctx, url); err != nil {
		return err
	}
	c.logger.Info("Вебхук Telegram зарегистрирован", zap.String("url", url))
	return nil
}

// StartCleanup чистит истёкшие кулдауны до отмены ctx.
func (c *TelegramController) StartCleanup(ctx context.Context) {
	c.deduplicator.Cleanup(ctx, cleanupInterval)
}

// Wait дожидается обработки уже принятых обновлений.
func (c *TelegramController) Wait(ctx context.Context) error {
	return c.queue.Wait(ctx)
}

// userQueue запускает задачи одного пользователя последовательно, разных - параллельно.
type userQueue struct {
	mu    sync.Mutex
	tails map[int64]chan struct{}
	wg    sync.WaitGroup
}

func newUserQueue() *userQueue {
	return &userQueue{tails: make(map[int64]chan struct{})}
}

func (q *userQueue) Go(userID int64, job func()) {
	q.mu.Lock()
	prev := q.tails[userID]
	done := make(chan struct{})
	q.tails[userID] = done
	q.mu.Unlock()

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		defer func() {
			close(done)
			q.mu.Lock()
			if q.tails[userID] == done {
				delete(q.tails, userID)
			}
			q.mu.Unlock()
		}()
		if prev != nil {
			<-prev
		}
		job()
	}()
}

func (q *userQueue) Wait(ctx context.Context) error {
	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
