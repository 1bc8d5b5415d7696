package conversation

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
	"repair-desk/pkg/utils"
)

type commandHandler func(ctx context.Context, s *session, args []string) (*dto.Reply, error)

// commandInfo - строка справки. Команда видна в /help, если у роли есть permission.
type commandInfo struct {
	name       string
	usage      string
	permission string
}

var commandList = []commandInfo{
	{"new_order", "принять заявку от клиента", authz.OrdersViewAll},
	{"request", "оставить заявку на ремонт", authz.OrdersCreate},
	{"my_orders", "мои заявки", authz.OrdersViewOwn},
	{"order", "<номер> - карточка заявки", ""},
	{"all_orders", "[статус] - все заявки", authz.OrdersViewAll},
	{"technicians", "список мастеров", authz.TechniciansView},
	{"templates", "шаблоны проблем", authz.TemplatesView},
	{"add_template", "<название> | <описание> - новый шаблон", authz.TemplatesManage},
	{"stats", "статистика", authz.StatsView},
	{"export", "выгрузка заявок в Excel", authz.ReportsExport},
	{"users", "[страница] - пользователи", authz.UsersView},
	{"set_role", "[ID] [роль] - сменить роль", authz.UsersManage},
	{"delete_user", "<ID> - отключить пользователя", authz.UsersDelete},
	{"delete_order", "<номер> - удалить заявку", authz.OrdersDelete},
	{"log", "[order <номер> | user <ID> | target <ID> | action <тип>] - журнал действий", authz.ActivityView},
	{"cancel", "прервать текущее действие", ""},
	{"help", "справка", ""},
}

func (e *Engine) commandTable() map[string]commandHandler {
	return map[string]commandHandler{
		"start":        e.cmdStart,
		"help":         e.cmdHelp,
		"menu":         e.cmdMenu,
		"cancel":       e.cmdCancel,
		"new_order":    e.cmdNewOrder,
		"request":      e.cmdRequest,
		"order":        e.cmdOrder,
		"my_orders":    e.cmdMyOrders,
		"all_orders":   e.cmdAllOrders,
		"technicians":  e.cmdTechnicians,
		"users":        e.cmdUsers,
		"set_role":     e.cmdSetRole,
		"delete_user":  e.cmdDeleteUser,
		"delete_order": e.cmdDeleteOrder,
		"log":          e.cmdLog,
		"stats":        e.cmdStats,
		"export":       e.cmdExport,
		"templates":    e.cmdTemplates,
		"add_template": e.cmdAddTemplate,
	}
}

// argID - числовой аргумент команды.
func argID(args []string, i int, usage string) (int64, error) {
	if len(args) <= i {
		return 0, apperrors.NewValidationError("", "Укажите номер: %s", usage)
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[i], "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.NewValidationError("", "Некорректный номер %q. Пример: %s", args[i], usage)
	}
	return id, nil
}

func argPage(args []string) uint64 {
	if len(args) == 0 {
		return 1
	}
	page, err := strconv.ParseUint(args[0], 10, 64)
	if err != nil || page == 0 {
		return 1
	}
	return page
}

func (e *Engine) cmdStart(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	e.clearState(ctx, s)
	role, err := e.gate.RoleOf(ctx, s.id())
	if err != nil {
		return nil, err
	}
	menu := e.mainMenu(ctx, s)
	menu.Text = fmt.Sprintf("👋 Здравствуйте, %s!\nВаша роль: %s.\n\n%s", s.user.DisplayName(), role.Label(), menu.Text)
	return menu, nil
}

func (e *Engine) cmdHelp(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	var sb strings.Builder
	sb.WriteString("📖 Команды бота:\n")
	for _, c := range e.availableCommands(ctx, s) {
		fmt.Fprintf(&sb, "/%s - %s\n", c.name, c.usage)
	}
	sb.WriteString("\nВо время ввода данных /cancel прерывает действие.")
	return dto.NewReply(sb.String()), nil
}

func (e *Engine) cmdMenu(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	return e.mainMenu(ctx, s), nil
}

// cmdCancel сбрасывает диалог в любом состоянии.
func (e *Engine) cmdCancel(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	if err := e.states.Clear(ctx, s.id()); err != nil {
		return nil, err
	}
	s.st = nil
	menu := e.mainMenu(ctx, s)
	menu.Text = "✖️ Действие отменено.\n\n" + menu.Text
	return menu, nil
}

func (e *Engine) cmdNewOrder(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	if _, err := e.gate.Require(ctx, s.id(), "new_order", constants.RoleDispatcher, constants.RoleAdmin); err != nil {
		return nil, err
	}
	return e.startIntake(ctx, s)
}

func (e *Engine) cmdRequest(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	return e.startIntake(ctx, s)
}

func (e *Engine) cmdOrder(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	id, err := argID(args, 0, "/order 15")
	if err != nil {
		return nil, err
	}
	order, err := e.workflow.GetOrder(ctx, s.id(), id)
	if err != nil {
		return nil, err
	}
	reply := e.orderCard(ctx, s, order, "")
	if e.gate.Can(ctx, s.id(), authz.OrdersAssign) {
		if history, err := e.workflow.AssignmentHistory(ctx, s.id(), id); err == nil && len(history) > 0 {
			reply.Text += "\n\n" + e.formatAssignments(ctx, history)
		}
	}
	return reply, nil
}

func (e *Engine) cmdMyOrders(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	limit, offset := utils.PageToLimitOffset(argPage(args), constants.MaxOrdersPerPage)
	orders, total, err := e.workflow.MyOrders(ctx, s.id(), limit, offset)
	if err != nil {
		return nil, err
	}
	return orderList("📋 Ваши заявки", orders, total), nil
}

func (e *Engine) cmdAllOrders(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	var filter dto.OrderFilter
	if len(args) > 0 {
		filter.Status = constants.OrderStatus(strings.ToLower(args[0]))
	}
	orders, total, err := e.workflow.ListOrders(ctx, s.id(), filter)
	if err != nil {
		return nil, err
	}
	title := "📂 Все заявки"
	if filter.Status != "" {
		title += ": " + filter.Status.Label()
	}
	return orderList(title, orders, total), nil
}

func (e *Engine) cmdTechnicians(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	techs, err := e.users.Technicians(ctx, s.id())
	if err != nil {
		return nil, err
	}
	if len(techs) == 0 {
		return dto.NewReply("Мастеров пока нет. Назначить роль: /set_role"), nil
	}
	var sb strings.Builder
	sb.WriteString("👨‍🔧 Мастера:\n")
	for _, t := range techs {
		fmt.Fprintf(&sb, "• %s - ID %d\n", t.DisplayName(), t.ID)
	}
	return dto.NewReply(sb.String()), nil
}

func (e *Engine) cmdUsers(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	users, p, err := e.users.ListUsers(ctx, s.id(), argPage(args))
	if err != nil {
		return nil, err
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "👥 Пользователи (стр. %d из %d, всего %d):\n", p.Page, max(p.Pages(), 1), p.TotalCount)
	for _, u := range users {
		fmt.Fprintf(&sb, "• %d - %s - %s", u.ID, u.DisplayName(), u.Role.Label())
		if u.IsDeleted() {
			sb.WriteString(" (отключён)")
		}
		sb.WriteString("\n")
	}
	if p.Page < p.Pages() {
		fmt.Fprintf(&sb, "\nДальше: /users %d", p.Page+1)
	}
	return dto.NewReply(sb.String()), nil
}

// cmdSetRole: без аргументов - пошаговый ввод, "/set_role ID" - выбор роли, "/set_role ID роль" - сразу.
func (e *Engine) cmdSetRole(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	if len(args) == 0 {
		return e.startRoleFlow(ctx, s)
	}
	targetID, err := argID(args, 0, "/set_role 123456 мастер")
	if err != nil {
		return nil, err
	}
	if len(args) >= 2 {
		role, ok := constants.ParseRole(strings.Join(args[1:], " "))
		if !ok {
			return nil, apperrors.NewValidationError("Роль", "неизвестная роль %q", strings.Join(args[1:], " "))
		}
		return e.applyRole(ctx, s, targetID, role)
	}

	if _, err := e.gate.RequirePermission(ctx, s.id(), authz.UsersManage); err != nil {
		return nil, err
	}
	target, err := e.users.GetUser(ctx, s.id(), targetID)
	if err != nil {
		return nil, err
	}
	st := dto.NewConversationState(constants.StepAwaitingRoleName)
	st.TargetUserID = target.ID
	return e.startFlow(ctx, s, st)
}

func (e *Engine) cmdDeleteUser(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	id, err := argID(args, 0, "/delete_user 123456")
	if err != nil {
		return nil, err
	}
	if err := e.users.DeleteUser(ctx, s.id(), id); err != nil {
		return nil, err
	}
	return dto.NewReply(fmt.Sprintf("🚫 Пользователь %d отключён. Вернуть доступ: /set_role %d <роль>", id, id)), nil
}

func (e *Engine) cmdDeleteOrder(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	id, err := argID(args, 0, "/delete_order 15")
	if err != nil {
		return nil, err
	}
	if err := e.workflow.DeleteOrder(ctx, s.id(), id); err != nil {
		return nil, err
	}
	return dto.NewReply(fmt.Sprintf("🗑 Заявка #%d удалена", id)), nil
}

// parseLogFilter разбирает пары "order 15", "user 123", "target 456", "action status_update".
// user - кто совершил действие, target - над кем.
func parseLogFilter(args []string) (dto.ActivityFilter, error) {
	var f dto.ActivityFilter
	if len(args)%2 != 0 {
		return f, apperrors.NewValidationError("", "Формат: /log [order <номер>] [user <ID>] [target <ID>] [action <тип>]")
	}
	for i := 0; i < len(args); i += 2 {
		key, value := strings.ToLower(args[i]), args[i+1]
		switch key {
		case "order", "user", "target":
			id, err := strconv.ParseInt(strings.TrimPrefix(value, "#"), 10, 64)
			if err != nil || id <= 0 {
				return f, apperrors.NewValidationError("", "Некорректный номер %q", value)
			}
			switch key {
			case "order":
				f.OrderID = &id
			case "user":
				f.UserID = &id
			default:
				f.RelatedUserID = &id
			}
		case "action":
			f.ActionType = constants.ActionType(strings.ToLower(value))
		default:
			return f, apperrors.NewValidationError("", "Неизвестный фильтр %q. Доступны: order, user, target, action", key)
		}
	}
	return f, nil
}

func (e *Engine) cmdLog(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	filter, err := parseLogFilter(args)
	if err != nil {
		return nil, err
	}
	entries, err := e.activity.Query(ctx, s.id(), filter, constants.MaxActivityLogPerPage, 0)
	if err != nil {
		return nil, err
	}
	return dto.NewReply(e.formatLog(ctx, entries)), nil
}

func (e *Engine) cmdStats(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	stats, err := e.reports.Stats(ctx, s.id())
	if err != nil {
		return nil, err
	}
	return dto.NewReply(formatStats(stats)), nil
}

func (e *Engine) cmdExport(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	doc, err := e.reports.ExportOrders(ctx, s.id())
	if err != nil {
		return nil, err
	}
	return &dto.Reply{Text: "📊 Выгрузка готова", Document: doc}, nil
}

func (e *Engine) cmdTemplates(ctx context.Context, s *session, _ []string) (*dto.Reply, error) {
	tpls, err := e.templates.List(ctx, s.id())
	if err != nil {
		return nil, err
	}
	if len(tpls) == 0 {
		return dto.NewReply("Шаблонов пока нет."), nil
	}
	reply := dto.NewReply("📋 Шаблоны проблем:")
	for _, t := range tpls {
		reply.WithRow(dto.Button{Text: t.Title, Callback: dto.Callback{Action: dto.ActionTemplate, TemplateID: t.ID}})
	}
	return reply, nil
}

func (e *Engine) cmdAddTemplate(ctx context.Context, s *session, args []string) (*dto.Reply, error) {
	title, description, ok := strings.Cut(strings.Join(args, " "), "|")
	if !ok {
		return nil, apperrors.NewValidationError("", "Формат: /add_template Название | Описание проблемы")
	}
	tpl, err := e.templates.Create(ctx, s.id(), dto.CreateTemplateDTO{Title: title, Description: description})
	if err != nil {
		return nil, err
	}
	return dto.NewReply(fmt.Sprintf("✅ Шаблон «%s» добавлен", tpl.Title)), nil
}
