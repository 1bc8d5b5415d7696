package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"repair-desk/internal/metrics"
	"repair-desk/internal/repositories/repotest"
	"repair-desk/pkg/config"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/telegram"
	"repair-desk/pkg/telegram/telegramtest"
)

func newNotifier(t *testing.T, adminIDs ...int64) (*NotificationService, *telegramtest.Recorder, *prometheus.Registry) {
	t.Helper()
	users := repotest.NewUsers()
	users.Put(adminID, "Админ", constants.RoleAdmin)
	users.Put(techID, "Мастер", constants.RoleTechnician)

	tg := telegramtest.NewRecorder()
	registry := prometheus.NewRegistry()
	cfg := config.NotificationConfig{ErrorMinInterval: time.Minute, SendTimeout: time.Second}
	return NewNotificationService(tg, users, cfg, adminIDs, metrics.New(registry), zap.NewNop()), tg, registry
}

func waitSent(t *testing.T, svc *NotificationService) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, svc.Wait(ctx))
}

func TestNotify_DeliversToEveryUniqueRecipient(t *testing.T) {
	svc, tg, registry := newNotifier(t)

	n := svc.Notify(context.Background(), []int64{clientID, techID, clientID, 0}, "Заявка #1 назначена", NotifyOptions{})
	waitSent(t, svc)

	assert.Equal(t, 2, n)
	assert.Len(t, tg.To(clientID), 1)
	assert.Len(t, tg.To(techID), 1)
	assert.Equal(t, "Заявка #1 назначена", tg.To(techID)[0].Text)
	assert.Equal(t, 2.0, counterValue(t, registry, "repair_desk_notifications_total", map[string]string{"result": metrics.NotifyResultSent}))
}

func TestNotify_OneFailureDoesNotBlockOthers(t *testing.T) {
	svc, tg, registry := newNotifier(t)
	tg.Fail[clientID] = &telegram.APIError{Method: "sendMessage", Code: 403, Description: "Forbidden: bot was blocked by the user"}
	tg.Fail[dispatcherID] = errors.New("connection reset")

	n := svc.Notify(context.Background(), []int64{clientID, dispatcherID, techID, adminID}, "Статус изменён", NotifyOptions{})
	waitSent(t, svc)

	assert.Equal(t, 4, n)
	assert.Len(t, tg.To(techID), 1)
	assert.Len(t, tg.To(adminID), 1)
	assert.Empty(t, tg.To(clientID))
	assert.Equal(t, 2.0, counterValue(t, registry, "repair_desk_notifications_total", map[string]string{"result": metrics.NotifyResultFailed}))
	assert.Equal(t, 2.0, counterValue(t, registry, "repair_desk_notifications_total", map[string]string{"result": metrics.NotifyResultSent}))
}

func TestNotify_CallerCancellationDoesNotStopDelivery(t *testing.T) {
	svc, tg, _ := newNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	svc.Notify(ctx, []int64{techID}, "Новая заявка", NotifyOptions{})
	waitSent(t, svc)
	assert.Len(t, tg.To(techID), 1)
}

func TestNotify_EmptyInput(t *testing.T) {
	svc, tg, _ := newNotifier(t)

	assert.Zero(t, svc.Notify(context.Background(), nil, "текст", NotifyOptions{}))
	assert.Zero(t, svc.Notify(context.Background(), []int64{techID}, "", NotifyOptions{}))
	waitSent(t, svc)
	assert.Empty(t, tg.Sent())
}

func TestNotify_LongMessageTruncated(t *testing.T) {
	svc, tg, _ := newNotifier(t)
	long := make([]rune, constants.MaxMessageLength+100)
	for i := range long {
		long[i] = 'я'
	}

	svc.Notify(context.Background(), []int64{techID}, string(long), NotifyOptions{})
	waitSent(t, svc)
	require.Len(t, tg.To(techID), 1)
	assert.LessOrEqual(t, len([]rune(tg.To(techID)[0].Text)), constants.MaxMessageLength)
}

func TestNotify_FingerprintThrottle(t *testing.T) {
	svc, tg, registry := newNotifier(t)
	opts := NotifyOptions{Fingerprint: "db-down", MinInterval: time.Hour}

	assert.Equal(t, 1, svc.Notify(context.Background(), []int64{adminID}, "БД недоступна", opts))
	assert.Zero(t, svc.Notify(context.Background(), []int64{adminID}, "БД недоступна", opts))

	opts.Force = true
	assert.Equal(t, 1, svc.Notify(context.Background(), []int64{adminID}, "БД недоступна", opts))

	other := NotifyOptions{Fingerprint: "redis-down", MinInterval: time.Hour}
	assert.Equal(t, 1, svc.Notify(context.Background(), []int64{adminID}, "Redis недоступен", other))

	waitSent(t, svc)
	assert.Len(t, tg.To(adminID), 3)
	assert.Equal(t, 1.0, counterValue(t, registry, "repair_desk_notifications_total", map[string]string{"result": metrics.NotifyResultThrottled}))
}

func TestNotifySystemError(t *testing.T) {
	svc, tg, _ := newNotifier(t, 999, adminID)
	boom := errors.New("pool exhausted")

	assert.True(t, svc.NotifySystemError(context.Background(), "orders.list", boom, false))
	assert.False(t, svc.NotifySystemError(context.Background(), "orders.list", boom, false))
	assert.True(t, svc.NotifySystemError(context.Background(), "orders.list", boom, true))
	assert.False(t, svc.NotifySystemError(context.Background(), "orders.list", nil, true))
	waitSent(t, svc)

	assert.Len(t, tg.To(999), 2)
	require.Len(t, tg.To(adminID), 2, "админ из конфига и из БД получает одно сообщение")
	assert.Contains(t, tg.To(adminID)[0].Text, "orders.list")
	assert.Contains(t, tg.To(adminID)[0].Text, "pool exhausted")
	assert.Empty(t, tg.To(techID))
}

func TestAdminIDs_ConfigAndRole(t *testing.T) {
	svc, _, _ := newNotifier(t, 999)

	assert.ElementsMatch(t, []int64{999, adminID}, svc.AdminIDs(context.Background()))
}

func TestWait_RespectsContext(t *testing.T) {
	svc, _, _ := newNotifier(t)
	svc.inflight.Add(1)
	defer svc.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, svc.Wait(ctx), context.DeadlineExceeded)
}

func TestStartCleanup_StopsOnCancel(t *testing.T) {
	svc, _, _ := newNotifier(t)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		svc.StartCleanup(ctx)
		close(stopped)
	}()

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("очистка отпечатков не остановилась после отмены контекста")
	}
}
