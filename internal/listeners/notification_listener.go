package listeners

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"repair-desk/internal/events"
	"repair-desk/internal/repositories"
	"repair-desk/internal/services"
	"repair-desk/pkg/eventbus"
	"repair-desk/pkg/utils"
)

// NotificationListener решает, кому и что сообщить о событии заявки.
// Отправку выполняет NotificationService, инициатор события уведомление не получает.
type NotificationListener struct {
	notifier services.NotificationServiceInterface
	users    repositories.UserRepositoryInterface
	logger   *zap.Logger
}

func NewNotificationListener(
	notifier services.NotificationServiceInterface,
	users repositories.UserRepositoryInterface,
	logger *zap.Logger,
) *NotificationListener {
	return &NotificationListener{
		notifier: notifier,
		users:    users,
		logger:   logger.Named("notification_listener"),
	}
}

func (l *NotificationListener) Register(bus *eventbus.Bus) {
	for _, name := range events.AllOrderEvents {
		bus.Subscribe(name, l.handleOrderEvent)
	}
	l.logger.Info("NotificationListener подписан на события заявок")
}

func (l *NotificationListener) handleOrderEvent(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.OrderEvent)
	if !ok {
		return nil
	}

	recipients := l.determineRecipients(ctx, e)
	if len(recipients) == 0 {
		return nil
	}
	message := l.formatMessage(ctx, e)
	if message == "" {
		return nil
	}

	n := l.notifier.Notify(ctx, recipients, message, services.NotifyOptions{})
	l.logger.Debug("Уведомления поставлены в очередь", zap.String("event", e.Type), zap.Int64("order_id", e.OrderID), zap.Int("recipients", n))
	return nil
}

// determineRecipients: новая заявка - администраторам; остальное - ещё мастеру и создателю.
// При смене мастера уведомляется и прежний.
func (l *NotificationListener) determineRecipients(ctx context.Context, e events.OrderEvent) []int64 {
	ids := make(map[int64]struct{})
	add := func(id int64) {
		if id != 0 {
			ids[id] = struct{}{}
		}
	}

	for _, id := range l.notifier.AdminIDs(ctx) {
		add(id)
	}
	if e.Type != events.OrderCreated {
		add(e.Order.CreatorID)
		add(e.Order.AssignedTechnicianID.Int64)
	}
	if e.Type == events.OrderAssigned {
		add(e.PreviousTechnicianID)
	}

	delete(ids, e.ActorID)

	out := make([]int64, 0, len(ids))
	for id := range ids {
		out = append(out, id)
	}
	return out
}

func (l *NotificationListener) userName(ctx context.Context, id int64) string {
	u, err := l.users.FindByID(ctx, id)
	if err != nil {
		return fmt.Sprintf("#%d", id)
	}
	return u.DisplayName()
}

func (l *NotificationListener) formatMessage(ctx context.Context, e events.OrderEvent) string {
	o := e.Order
	var sb strings.Builder

	switch e.Type {
	case events.OrderCreated:
		fmt.Fprintf(&sb, "🆕 Новая заявка #%d\n", o.ID)
		fmt.Fprintf(&sb, "Клиент: %s, %s\n", o.ClientName, o.ClientPhone)
		fmt.Fprintf(&sb, "Адрес: %s\n", o.ClientAddress)
		fmt.Fprintf(&sb, "Проблема: %s", utils.Truncate(o.ProblemDescription, 300))
	case events.OrderAssigned:
		fmt.Fprintf(&sb, "👨‍🔧 Заявка #%d: назначен мастер %s\n", o.ID, l.userName(ctx, o.AssignedTechnicianID.Int64))
		fmt.Fprintf(&sb, "Клиент: %s, %s\n", o.ClientName, o.ClientPhone)
		fmt.Fprintf(&sb, "Адрес: %s\n", o.ClientAddress)
		fmt.Fprintf(&sb, "Статус: %s", o.Status.Label())
	case events.OrderStatusChanged:
		fmt.Fprintf(&sb, "🔄 Заявка #%d: %s → %s", o.ID, e.OldStatus.Label(), e.NewStatus.Label())
	case events.OrderUpdated:
		switch e.Field {
		case events.FieldServiceCost:
			fmt.Fprintf(&sb, "💰 Заявка #%d: стоимость работ %s", o.ID, utils.FormatAmount(o.ServiceCost.Float64))
		case events.FieldServiceDescription:
			fmt.Fprintf(&sb, "📝 Заявка #%d: описание работ\n%s", o.ID, utils.Truncate(o.ServiceDescription.String, 500))
		default:
			fmt.Fprintf(&sb, "📝 Заявка #%d обновлена", o.ID)
		}
	case events.OrderDeleted:
		fmt.Fprintf(&sb, "🗑 Заявка #%d удалена", o.ID)
	default:
		return ""
	}

	if e.ActorID != 0 {
		fmt.Fprintf(&sb, "\n\nКто: %s", l.userName(ctx, e.ActorID))
	}
	return sb.String()
}
