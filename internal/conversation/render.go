package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/internal/entities"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/customvalidator"
	apperrors "repair-desk/pkg/errors"
	"repair-desk/pkg/utils"
)

func cancelButton() dto.Button {
	return dto.Button{Text: "✖️ Отмена", Callback: dto.Callback{Action: dto.ActionMenu}}
}

func viewButton(orderID int64, text string) dto.Button {
	return dto.Button{Text: text, Callback: dto.Callback{Action: dto.ActionView, OrderID: orderID}}
}

func statusButton(orderID int64, to constants.OrderStatus, text string) dto.Button {
	return dto.Button{Text: text, Callback: dto.Callback{Action: dto.ActionStatus, OrderID: orderID, Status: string(to)}}
}

func disabledReply() *dto.Reply {
	return dto.NewReply("🚫 Ваш аккаунт отключён. Обратитесь к администратору.")
}

// validationMessage - текст ошибки ввода без технических подробностей.
func validationMessage(err error) string {
	var ve *apperrors.ValidationError
	if errors.As(customvalidator.Translate(err), &ve) {
		return ve.Error()
	}
	return ""
}

// renderError - ответ на пользовательскую ошибку. nil для всего остального.
func renderError(err error) *dto.Reply {
	var (
		ve *apperrors.ValidationError
		ae *apperrors.AuthorizationError
		ne *apperrors.NotFoundError
		ce *apperrors.ConflictError
	)
	switch {
	case errors.Is(err, apperrors.ErrUserDisabled):
		return disabledReply()
	case errors.As(err, &ve):
		return dto.NewReply("⚠️ " + ve.Error())
	case errors.As(err, &ae):
		return dto.NewReply("⛔️ Недостаточно прав для этого действия.")
	case errors.As(err, &ne):
		return dto.NewReply("🔍 " + capitalize(ne.Error()))
	case errors.As(err, &ce):
		return dto.NewReply(fmt.Sprintf("⚠️ Заявка #%d сейчас в статусе «%s»: %s",
			ce.OrderID, constants.OrderStatus(ce.CurrentStatus).Label(), ce.Message))
	case errors.Is(err, apperrors.ErrConflict):
		return dto.NewReply("⚠️ Данные изменились, повторите действие.")
	}
	return nil
}

func capitalize(s string) string {
	r := []rune(s)
	if len(r) == 0 {
		return s
	}
	return strings.ToUpper(string(r[0])) + string(r[1:])
}

func (e *Engine) availableCommands(ctx context.Context, s *session) []commandInfo {
	out := make([]commandInfo, 0, len(commandList))
	for _, c := range commandList {
		if c.permission == "" || e.gate.Can(ctx, s.id(), c.permission) {
			out = append(out, c)
		}
	}
	return out
}

// mainMenu - кнопки и подсказки по роли пользователя.
func (e *Engine) mainMenu(ctx context.Context, s *session) *dto.Reply {
	var sb strings.Builder
	sb.WriteString("🏠 Главное меню\n")
	for _, c := range e.availableCommands(ctx, s) {
		if c.name == "help" || c.name == "cancel" {
			continue
		}
		fmt.Fprintf(&sb, "/%s - %s\n", c.name, c.usage)
	}
	sb.WriteString("/help - справка")
	return dto.NewReply(sb.String())
}

func (e *Engine) displayName(ctx context.Context, id int64) string {
	u, err := e.userRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Sprintf("ID %d", id)
	}
	return u.DisplayName()
}

// orderCard - карточка заявки с кнопками, доступными текущему пользователю.
func (e *Engine) orderCard(ctx context.Context, s *session, order *entities.Order, header string) *dto.Reply {
	var sb strings.Builder
	if header != "" {
		sb.WriteString(header + "\n\n")
	}
	fmt.Fprintf(&sb, "📄 Заявка #%d\n", order.ID)
	fmt.Fprintf(&sb, "Статус: %s\n", order.Status.Label())
	fmt.Fprintf(&sb, "Клиент: %s\n", order.ClientName)
	fmt.Fprintf(&sb, "Телефон: %s\n", order.ClientPhone)
	fmt.Fprintf(&sb, "Адрес: %s\n", order.ClientAddress)
	fmt.Fprintf(&sb, "Проблема: %s\n", order.ProblemDescription)
	if order.AssignedTechnicianID.Valid {
		fmt.Fprintf(&sb, "Мастер: %s\n", e.displayName(ctx, order.AssignedTechnicianID.Int64))
	}
	if order.ServiceCost.Valid {
		fmt.Fprintf(&sb, "Стоимость: %s\n", utils.FormatAmount(order.ServiceCost.Float64))
	}
	if order.ServiceDescription.Valid {
		fmt.Fprintf(&sb, "Выполненные работы: %s\n", order.ServiceDescription.String)
	}
	fmt.Fprintf(&sb, "Создана: %s", utils.FormatTime(order.CreatedAt))
	if order.CompletedAt.Valid {
		fmt.Fprintf(&sb, "\nЗавершена: %s", utils.FormatTime(order.CompletedAt.Time))
	}

	reply := dto.NewReply(sb.String())
	role, err := e.gate.RoleOf(ctx, s.id())
	if err != nil {
		return reply
	}
	uid := s.id()
	canWork := role == constants.RoleAdmin || order.IsAssignedTo(uid)

	if !order.Status.IsFinal() && e.gate.Can(ctx, uid, authz.OrdersAssign) {
		text := "👨‍🔧 Назначить мастера"
		if order.AssignedTechnicianID.Valid {
			text = "👨‍🔧 Сменить мастера"
		}
		reply.WithRow(dto.Button{Text: text, Callback: dto.Callback{Action: dto.ActionAssignPick, OrderID: order.ID}})
	}
	if canWork && e.gate.Can(ctx, uid, authz.OrdersWork) {
		switch order.Status {
		case constants.StatusAssigned:
			reply.WithRow(statusButton(order.ID, constants.StatusInProgress, "▶️ Взять в работу"))
		case constants.StatusInProgress:
			reply.WithRow(statusButton(order.ID, constants.StatusCompleted, "✅ Завершить"))
		}
	}
	if order.Status.AllowsServiceDetails() && e.gate.Can(ctx, uid, authz.OrdersServiceDetails) &&
		(role != constants.RoleTechnician || order.IsAssignedTo(uid)) {
		reply.WithRow(
			dto.Button{Text: "💰 Стоимость", Callback: dto.Callback{Action: dto.ActionCost, OrderID: order.ID}},
			dto.Button{Text: "📝 Описание работ", Callback: dto.Callback{Action: dto.ActionDesc, OrderID: order.ID}},
		)
	}
	var last []dto.Button
	if !order.Status.IsFinal() && e.gate.Can(ctx, uid, authz.OrdersCancel) {
		last = append(last, statusButton(order.ID, constants.StatusCancelled, "❌ Отменить"))
	}
	if e.gate.Can(ctx, uid, authz.OrdersDelete) {
		last = append(last, dto.Button{Text: "🗑 Удалить", Callback: dto.Callback{Action: dto.ActionDelete, OrderID: order.ID}})
	}
	reply.WithRow(last...)
	return reply.WithRow(dto.Button{Text: "🏠 Меню", Callback: dto.Callback{Action: dto.ActionMenu}})
}

func orderList(title string, orders []entities.Order, total uint64) *dto.Reply {
	if len(orders) == 0 {
		return dto.NewReply(title + ": заявок нет.")
	}
	reply := dto.NewReply(fmt.Sprintf("%s (показано %d из %d):", title, len(orders), total))
	for _, o := range orders {
		text := fmt.Sprintf("#%d %s - %s", o.ID, o.Status.Label(), utils.Truncate(o.ClientName, 24))
		reply.WithRow(viewButton(o.ID, text))
	}
	return reply
}

func (e *Engine) formatAssignments(ctx context.Context, history []entities.Assignment) string {
	var sb strings.Builder
	sb.WriteString("🗂 История назначений:")
	for _, a := range history {
		fmt.Fprintf(&sb, "\n• %s - %s", utils.FormatTime(a.AssignedAt), e.displayName(ctx, a.TechnicianID))
		if a.IsActive() {
			sb.WriteString(" (текущий)")
		}
	}
	return sb.String()
}

func (e *Engine) formatLog(ctx context.Context, entries []entities.ActivityLog) string {
	if len(entries) == 0 {
		return "📜 Записей не найдено."
	}
	names := make(map[int64]string)
	var sb strings.Builder
	sb.WriteString("📜 Журнал действий:")
	for _, entry := range entries {
		name, ok := names[entry.UserID]
		if !ok {
			name = e.displayName(ctx, entry.UserID)
			names[entry.UserID] = name
		}
		fmt.Fprintf(&sb, "\n%s %s: %s", utils.FormatTime(entry.CreatedAt), name, entry.Description)
	}
	return sb.String()
}

func formatStats(st *entities.OrderStats) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Статистика\nВсего заявок: %d\n", st.Total)
	for _, status := range constants.AllStatuses {
		fmt.Fprintf(&sb, "%s: %d\n", status.Label(), st.ByStatus[string(status)])
	}
	fmt.Fprintf(&sb, "Выручка: %s\n", utils.FormatAmount(st.Revenue))
	if st.AvgCompletionSeconds > 0 {
		fmt.Fprintf(&sb, "Среднее время выполнения: %s\n", utils.FormatSeconds(st.AvgCompletionSeconds))
	}
	if len(st.ByTechnician) > 0 {
		sb.WriteString("\n👨‍🔧 Мастера:")
		for _, t := range st.ByTechnician {
			fmt.Fprintf(&sb, "\n• %s: в работе %d, выполнено %d, %s", t.Name, t.Active, t.Completed, utils.FormatAmount(t.Revenue))
		}
	}
	return sb.String()
}
