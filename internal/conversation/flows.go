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

// step - один шаг многошагового ввода.
type step struct {
	prompt func(st *dto.ConversationState) string
	retry  string
	// parse проверяет ввод и приводит его к виду для сохранения.
	parse func(text string) (string, error)
	// advance сохраняет значение и возвращает следующий шаг. У завершающего шага nil.
	advance func(ctx context.Context, s *session, value string) (constants.ConversationStep, error)
	// done - действие завершающего шага. Состояние сбрасывается только после успеха.
	done func(ctx context.Context, s *session, value string) (*dto.Reply, error)
}

func staticPrompt(text string) func(*dto.ConversationState) string {
	return func(*dto.ConversationState) string { return text }
}

func (e *Engine) checkVar(tag string) func(string) (string, error) {
	return func(text string) (string, error) {
		if err := e.validate.Var(text, tag); err != nil {
			return "", err
		}
		return text, nil
	}
}

func saveDraft(key string, next constants.ConversationStep) func(context.Context, *session, string) (constants.ConversationStep, error) {
	return func(_ context.Context, s *session, value string) (constants.ConversationStep, error) {
		s.st.SetDraft(key, value)
		return next, nil
	}
}

func parseCost(text string) (string, error) {
	v, err := utils.ParseAmount(text)
	if err != nil {
		return "", err
	}
	if v <= 0 {
		return "", fmt.Errorf("сумма должна быть больше нуля")
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

func parseServiceText(text string) (string, error) {
	if text == "" {
		return "", fmt.Errorf("пустой текст")
	}
	if utils.RuneLen(text) > constants.MaxTextLength {
		return "", fmt.Errorf("текст длиннее %d символов", constants.MaxTextLength)
	}
	return text, nil
}

func parseUserID(text string) (string, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(text, "#"), 10, 64)
	if err != nil || id <= 0 {
		return "", fmt.Errorf("ожидался числовой ID")
	}
	return strconv.FormatInt(id, 10), nil
}

func parseRoleName(text string) (string, error) {
	role, ok := constants.ParseRole(text)
	if !ok {
		return "", fmt.Errorf("неизвестная роль %q", text)
	}
	return string(role), nil
}

func (e *Engine) stepTable() map[constants.ConversationStep]step {
	return map[constants.ConversationStep]step{
		constants.StepAwaitingPhone: {
			prompt:  staticPrompt("📞 Введите телефон клиента:"),
			retry:   fmt.Sprintf("Телефон должен содержать не меньше %d цифр. Попробуйте ещё раз:", constants.MinPhoneDigits),
			parse:   e.checkVar("phone_digits"),
			advance: saveDraft(dto.DraftPhone, constants.StepAwaitingName),
		},
		constants.StepAwaitingName: {
			prompt:  staticPrompt("👤 Введите имя клиента:"),
			retry:   fmt.Sprintf("Имя должно быть не короче %d символов. Попробуйте ещё раз:", constants.MinNameLength),
			parse:   e.checkVar(fmt.Sprintf("min_runes=%d,max=200", constants.MinNameLength)),
			advance: saveDraft(dto.DraftName, constants.StepAwaitingAddress),
		},
		constants.StepAwaitingAddress: {
			prompt:  staticPrompt("📍 Введите адрес:"),
			retry:   fmt.Sprintf("Адрес должен быть не короче %d символов. Попробуйте ещё раз:", constants.MinAddressLength),
			parse:   e.checkVar(fmt.Sprintf("min_runes=%d,max=500", constants.MinAddressLength)),
			advance: saveDraft(dto.DraftAddress, constants.StepAwaitingProblem),
		},
		constants.StepAwaitingProblem: {
			prompt: staticPrompt("🛠 Опишите проблему или выберите шаблон:"),
			retry:  fmt.Sprintf("Описание проблемы должно быть не короче %d символов. Попробуйте ещё раз:", constants.MinProblemLength),
			parse:  e.checkVar(fmt.Sprintf("min_runes=%d,max=%d", constants.MinProblemLength, constants.MaxTextLength)),
			done:   e.completeIntake,
		},
		constants.StepAwaitingCost: {
			prompt: func(st *dto.ConversationState) string {
				return fmt.Sprintf("💰 Введите стоимость работ по заявке #%d (например, 1500 или 1500,50):", st.OrderID)
			},
			retry: "Нужно положительное число, например 1500 или 1500,50. Попробуйте ещё раз:",
			parse: parseCost,
			done:  e.completeCost,
		},
		constants.StepAwaitingDescription: {
			prompt: func(st *dto.ConversationState) string {
				return fmt.Sprintf("📝 Опишите выполненные работы по заявке #%d:", st.OrderID)
			},
			retry: fmt.Sprintf("Описание не может быть пустым и длиннее %d символов. Попробуйте ещё раз:", constants.MaxTextLength),
			parse: parseServiceText,
			done:  e.completeDescription,
		},
		constants.StepAwaitingRoleUser: {
			prompt:  staticPrompt("🆔 Введите ID пользователя (список: /users):"),
			retry:   "Нужен числовой ID пользователя. Попробуйте ещё раз:",
			parse:   parseUserID,
			advance: e.chooseRoleTarget,
		},
		constants.StepAwaitingRoleName: {
			prompt: func(st *dto.ConversationState) string {
				return fmt.Sprintf("🎭 Выберите новую роль для пользователя %d:", st.TargetUserID)
			},
			retry: "Неизвестная роль. Выберите кнопкой или напишите: клиент, диспетчер, мастер, администратор.",
			parse: parseRoleName,
			done:  e.completeRole,
		},
	}
}

// handleStepInput - свободный текст при активном диалоге.
func (e *Engine) handleStepInput(ctx context.Context, s *session, text string) (*dto.Reply, error) {
	st, ok := e.steps[s.st.Step]
	if !ok {
		e.clearState(ctx, s)
		return e.mainMenu(ctx, s), nil
	}

	text = strings.TrimSpace(text)
	value, err := st.parse(text)
	if err != nil {
		return e.retryReply(s, st, ""), nil
	}

	if st.advance != nil {
		next, err := st.advance(ctx, s, value)
		if err != nil {
			if isValidation(err) {
				return e.retryReply(s, st, validationMessage(err)), nil
			}
			return nil, err
		}
		s.st.Step = next
		if err := e.states.Set(ctx, s.id(), s.st); err != nil {
			return nil, err
		}
		return e.promptFor(ctx, s), nil
	}
	return e.runTerminal(ctx, s, st, value)
}

// runTerminal выполняет завершающее действие. Ошибка валидации оставляет шаг для повтора,
// ошибка хранилища оставляет состояние, отказ по правам или статусу завершает диалог.
func (e *Engine) runTerminal(ctx context.Context, s *session, st step, value string) (*dto.Reply, error) {
	reply, err := st.done(ctx, s, value)
	if err != nil {
		if isValidation(err) {
			return e.retryReply(s, st, validationMessage(err)), nil
		}
		if isUserFacing(err) {
			e.clearState(ctx, s)
		}
		return nil, err
	}
	e.clearState(ctx, s)
	return reply, nil
}

func (e *Engine) retryReply(s *session, st step, reason string) *dto.Reply {
	text := "⚠️ " + st.retry
	if reason != "" {
		text = "⚠️ " + reason + "\n" + st.retry
	}
	return dto.NewReply(text).WithRow(cancelButton())
}

// promptFor - приглашение текущего шага с кнопками, если они есть.
func (e *Engine) promptFor(ctx context.Context, s *session) *dto.Reply {
	st, ok := e.steps[s.st.Step]
	if !ok {
		return e.mainMenu(ctx, s)
	}
	reply := dto.NewReply(st.prompt(s.st))

	switch s.st.Step {
	case constants.StepAwaitingProblem:
		if tpls, err := e.templates.List(ctx, s.id()); err == nil {
			for _, t := range tpls {
				reply.WithRow(dto.Button{Text: "📋 " + t.Title, Callback: dto.Callback{Action: dto.ActionTemplate, TemplateID: t.ID}})
			}
		}
	case constants.StepAwaitingRoleName:
		row := make([]dto.Button, 0, len(constants.AllRoles))
		for _, r := range constants.AllRoles {
			row = append(row, dto.Button{Text: r.Label(), Callback: dto.Callback{Action: dto.ActionRole, UserID: s.st.TargetUserID, Status: string(r)}})
		}
		reply.WithRow(row[:2]...).WithRow(row[2:]...)
	}
	return reply.WithRow(cancelButton())
}

// startFlow начинает новый диалог, затирая прежний.
func (e *Engine) startFlow(ctx context.Context, s *session, st *dto.ConversationState) (*dto.Reply, error) {
	if err := e.states.Set(ctx, s.id(), st); err != nil {
		return nil, err
	}
	s.st = st
	return e.promptFor(ctx, s), nil
}

func (e *Engine) startIntake(ctx context.Context, s *session) (*dto.Reply, error) {
	if _, err := e.gate.RequirePermission(ctx, s.id(), authz.OrdersCreate); err != nil {
		return nil, err
	}
	return e.startFlow(ctx, s, dto.NewConversationState(constants.StepAwaitingPhone))
}

func (e *Engine) completeIntake(ctx context.Context, s *session, problem string) (*dto.Reply, error) {
	order, err := e.workflow.CreateOrder(ctx, s.id(), dto.CreateOrderDTO{
		ClientPhone:        s.st.DraftValue(dto.DraftPhone),
		ClientName:         s.st.DraftValue(dto.DraftName),
		ClientAddress:      s.st.DraftValue(dto.DraftAddress),
		ProblemDescription: problem,
	})
	if err != nil {
		return nil, err
	}
	return dto.NewReply(fmt.Sprintf("✅ Заявка #%d создана. Мы сообщим об изменениях.", order.ID)).
		WithRow(viewButton(order.ID, "📄 Открыть заявку")), nil
}

// startDetailsFlow - ввод стоимости или описания работ по заявке.
func (e *Engine) startDetailsFlow(ctx context.Context, s *session, orderID int64, next constants.ConversationStep, messageID int) (*dto.Reply, error) {
	role, err := e.gate.RequirePermission(ctx, s.id(), authz.OrdersServiceDetails)
	if err != nil {
		return nil, err
	}
	order, err := e.workflow.GetOrder(ctx, s.id(), orderID)
	if err != nil {
		return nil, err
	}
	if !order.Status.AllowsServiceDetails() {
		return nil, apperrors.NewConflictError(order.ID, string(order.Status), "результат работ указывается после начала работ")
	}
	if role == constants.RoleTechnician && !order.IsAssignedTo(s.id()) {
		return nil, apperrors.NewAuthorizationError(s.id(), "service_details")
	}

	st := dto.NewConversationState(next)
	st.OrderID = orderID
	st.MessageID = messageID
	return e.startFlow(ctx, s, st)
}

func (e *Engine) completeCost(ctx context.Context, s *session, value string) (*dto.Reply, error) {
	amount, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, apperrors.NewValidationError("Стоимость", "нужно положительное число")
	}
	order, err := e.workflow.SetCost(ctx, s.id(), s.st.OrderID, amount)
	if err != nil {
		return nil, err
	}
	return e.orderCard(ctx, s, order, fmt.Sprintf("💰 Стоимость сохранена: %s", utils.FormatAmount(order.ServiceCost.Float64))), nil
}

func (e *Engine) completeDescription(ctx context.Context, s *session, value string) (*dto.Reply, error) {
	order, err := e.workflow.SetDescription(ctx, s.id(), s.st.OrderID, value)
	if err != nil {
		return nil, err
	}
	return e.orderCard(ctx, s, order, "📝 Описание работ сохранено"), nil
}

func (e *Engine) startRoleFlow(ctx context.Context, s *session) (*dto.Reply, error) {
	if _, err := e.gate.RequirePermission(ctx, s.id(), authz.UsersManage); err != nil {
		return nil, err
	}
	return e.startFlow(ctx, s, dto.NewConversationState(constants.StepAwaitingRoleUser))
}

// chooseRoleTarget проверяет, что пользователь существует, и переходит к выбору роли.
func (e *Engine) chooseRoleTarget(ctx context.Context, s *session, value string) (constants.ConversationStep, error) {
	id, _ := strconv.ParseInt(value, 10, 64)
	target, err := e.users.GetUser(ctx, s.id(), id)
	if err != nil {
		return constants.StepNone, err
	}
	s.st.TargetUserID = target.ID
	return constants.StepAwaitingRoleName, nil
}

func (e *Engine) completeRole(ctx context.Context, s *session, value string) (*dto.Reply, error) {
	return e.applyRole(ctx, s, s.st.TargetUserID, constants.Role(value))
}

func (e *Engine) applyRole(ctx context.Context, s *session, targetID int64, role constants.Role) (*dto.Reply, error) {
	user, err := e.users.SetRole(ctx, s.id(), targetID, role)
	if err != nil {
		return nil, err
	}
	return dto.NewReply(fmt.Sprintf("✅ %s теперь %s.", user.DisplayName(), role.Label())), nil
}
