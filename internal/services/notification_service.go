// Файл: internal/services/notification_service.go
package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"repair-desk/internal/metrics"
	"repair-desk/internal/repositories"
	"repair-desk/pkg/config"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/dedup"
	apperrors "repair-desk/pkg/errors"
	"repair-desk/pkg/telegram"
	"repair-desk/pkg/utils"
)

const throttleSweepInterval = time.Minute

// NotifyOptions: Fingerprint включает подавление одинаковых сообщений на MinInterval, Force его отключает.
type NotifyOptions struct {
	Force       bool
	MinInterval time.Duration
	Fingerprint string
}

type NotificationServiceInterface interface {
	// Notify ставит отправку в фон и возвращает число получателей, которым она запланирована.
	Notify(ctx context.Context, recipientIDs []int64, message string, opts NotifyOptions) int
	NotifySystemError(ctx context.Context, source string, err error, force bool) bool
	AdminIDs(ctx context.Context) []int64
	Wait(ctx context.Context) error
}

// NotificationService рассылает сообщения в Telegram. Каждый получатель в своей горутине,
// общий rate.Limiter держит темп в пределах лимитов Bot API.
type NotificationService struct {
	tg          telegram.ServiceInterface
	users       repositories.UserRepositoryInterface
	adminIDs    []int64
	limiter     *rate.Limiter
	throttle    *dedup.Deduplicator
	minInterval time.Duration
	sendTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
	inflight    sync.WaitGroup
}

func NewNotificationService(
	tg telegram.ServiceInterface,
	users repositories.UserRepositoryInterface,
	cfg config.NotificationConfig,
	adminIDs []int64,
	m *metrics.Metrics,
	logger *zap.Logger,
) *NotificationService {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	sendTimeout := cfg.SendTimeout
	if sendTimeout <= 0 {
		sendTimeout = 15 * time.Second
	}
	return &NotificationService{
		tg:          tg,
		users:       users,
		adminIDs:    adminIDs,
		limiter:     rate.NewLimiter(limit, burst),
		throttle:    dedup.New(),
		minInterval: cfg.ErrorMinInterval,
		sendTimeout: sendTimeout,
		metrics:     m,
		logger:      logger.Named("notifications"),
	}
}

// StartCleanup выбрасывает истёкшие отпечатки ошибок до отмены ctx.
// В отпечаток входит текст ошибки с id, без чистки набор только растёт.
func (s *NotificationService) StartCleanup(ctx context.Context) {
	s.throttle.Cleanup(ctx, throttleSweepInterval)
}

func (s *NotificationService) Notify(ctx context.Context, recipientIDs []int64, message string, opts NotifyOptions) int {
	if message == "" || len(recipientIDs) == 0 {
		return 0
	}

	if opts.Fingerprint != "" && !opts.Force {
		interval := opts.MinInterval
		if interval <= 0 {
			interval = s.minInterval
		}
		if !s.throttle.TryAcquire("notify:"+opts.Fingerprint, interval) {
			s.logger.Debug("Повторное уведомление подавлено", zap.String("fingerprint", opts.Fingerprint))
			s.metrics.Notification(metrics.NotifyResultThrottled)
			return 0
		}
	}

	message = utils.Truncate(message, constants.MaxMessageLength)
	seen := make(map[int64]struct{}, len(recipientIDs))
	scheduled := 0
	for _, id := range recipientIDs {
		if id == 0 {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		s.inflight.Add(1)
		go s.deliver(id, message)
		scheduled++
	}
	return scheduled
}

// deliver не использует контекст вызывающего: отмена обработки обновления не должна обрывать рассылку.
func (s *NotificationService) deliver(recipientID int64, message string) {
	defer s.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("PANIC при отправке уведомления", zap.Int64("recipient_id", recipientID), zap.Any("panic", r), zap.Stack("stacktrace"))
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), s.sendTimeout)
	defer cancel()

	if err := s.limiter.Wait(ctx); err != nil {
		s.fail(recipientID, err)
		return
	}
	if err := s.tg.SendMessage(ctx, recipientID, message); err != nil {
		s.fail(recipientID, err)
		return
	}
	s.metrics.Notification(metrics.NotifyResultSent)
}

func (s *NotificationService) fail(recipientID int64, err error) {
	s.metrics.Notification(metrics.NotifyResultFailed)
	nerr := &apperrors.NotificationError{RecipientID: recipientID, Err: err}

	var apiErr *telegram.APIError
	if errors.As(err, &apiErr) && apiErr.IsBlocked() {
		s.logger.Info("Получатель заблокировал бота", zap.Int64("recipient_id", recipientID), zap.Error(nerr))
		return
	}
	s.logger.Warn("Уведомление не доставлено", zap.Int64("recipient_id", recipientID), zap.Error(nerr))
}

// NotifySystemError сообщает администраторам о сбое. Одинаковые сбои не чаще раза в ErrorMinInterval.
func (s *NotificationService) NotifySystemError(ctx context.Context, source string, err error, force bool) bool {
	if err == nil {
		return false
	}
	text := fmt.Sprintf("⚠️ Системная ошибка\nГде: %s\n%s", source, utils.Truncate(err.Error(), 500))
	n := s.Notify(ctx, s.AdminIDs(ctx), text, NotifyOptions{
		Force:       force,
		MinInterval: s.minInterval,
		Fingerprint: source + "|" + err.Error(),
	})
	return n > 0
}

// AdminIDs - администраторы из конфига плюс пользователи с ролью admin.
func (s *NotificationService) AdminIDs(ctx context.Context) []int64 {
	ids := append([]int64(nil), s.adminIDs...)
	if s.users == nil {
		return ids
	}
	admins, err := s.users.ListByRole(ctx, constants.RoleAdmin)
	if err != nil {
		s.logger.Error("Не удалось получить список администраторов", zap.Error(err))
		return ids
	}
	for _, a := range admins {
		ids = append(ids, a.ID)
	}
	return ids
}

// Wait дожидается уже запущенных отправок (graceful shutdown, тесты).
func (s *NotificationService) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
