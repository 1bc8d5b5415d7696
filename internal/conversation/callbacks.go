package conversation

import (
	"context"
	"fmt"

	"repair-desk/internal/authz"
	"repair-desk/internal/dto"
	"repair-desk/pkg/constants"
	apperrors "repair-desk/pkg/errors"
)

func (e *Engine) handleCallback(ctx context.Context, s *session, cb dto.Callback, messageID int) (*dto.Reply, error) {
	switch cb.Action {
	case dto.ActionMenu:
		e.clearState(ctx, s)
		return e.mainMenu(ctx, s).Editing(messageID), nil

	case dto.ActionView:
		order, err := e.workflow.GetOrder(ctx, s.id(), cb.OrderID)
		if err != nil {
			return nil, err
		}
		return e.orderCard(ctx, s, order, "").Editing(messageID), nil

	case dto.ActionAssignPick:
		return e.technicianPicker(ctx, s, cb.OrderID, messageID)

	case dto.ActionAssign:
		res, err := e.workflow.AssignTechnician(ctx, s.id(), cb.OrderID, cb.UserID)
		if err != nil {
			return nil, err
		}
		header := fmt.Sprintf("👨‍🔧 Назначен мастер: %s", e.displayName(ctx, cb.UserID))
		if !res.Changed {
			header = "ℹ️ Этот мастер уже назначен на заявку"
		}
		return e.orderCard(ctx, s, res.Order, header).Editing(messageID), nil

	case dto.ActionStatus:
		to := constants.OrderStatus(cb.Status)
		order, err := e.workflow.ChangeStatus(ctx, s.id(), cb.OrderID, to)
		if err != nil {
			return nil, err
		}
		return e.orderCard(ctx, s, order, "🔄 Статус изменён: "+to.Label()).Editing(messageID), nil

	case dto.ActionCost:
		return e.startDetailsFlow(ctx, s, cb.OrderID, constants.StepAwaitingCost, messageID)

	case dto.ActionDesc:
		return e.startDetailsFlow(ctx, s, cb.OrderID, constants.StepAwaitingDescription, messageID)

	case dto.ActionDelete:
		if err := e.workflow.DeleteOrder(ctx, s.id(), cb.OrderID); err != nil {
			return nil, err
		}
		return dto.NewReply(fmt.Sprintf("🗑 Заявка #%d удалена", cb.OrderID)).Editing(messageID), nil

	case dto.ActionTemplate:
		return e.pickTemplate(ctx, s, cb.TemplateID)

	case dto.ActionRole:
		role, ok := constants.ParseRole(cb.Status)
		if !ok {
			return nil, apperrors.NewValidationError("Роль", "неизвестная роль %q", cb.Status)
		}
		reply, err := e.applyRole(ctx, s, cb.UserID, role)
		if err != nil {
			return nil, err
		}
		if s.st != nil && s.st.Step == constants.StepAwaitingRoleName {
			e.clearState(ctx, s)
		}
		return reply.Editing(messageID), nil
	}
	return nil, apperrors.NewValidationError("", "Кнопка устарела, откройте меню заново: /menu")
}

func (e *Engine) technicianPicker(ctx context.Context, s *session, orderID int64, messageID int) (*dto.Reply, error) {
	if _, err := e.gate.RequirePermission(ctx, s.id(), authz.OrdersAssign); err != nil {
		return nil, err
	}
	order, err := e.workflow.GetOrder(ctx, s.id(), orderID)
	if err != nil {
		return nil, err
	}
	if order.Status.IsFinal() {
		return nil, apperrors.NewConflictError(order.ID, string(order.Status), "заявка закрыта, назначение невозможно")
	}
	techs, err := e.users.Technicians(ctx, s.id())
	if err != nil {
		return nil, err
	}
	if len(techs) == 0 {
		return dto.NewReply("Нет ни одного мастера. Назначьте роль: /set_role").WithRow(viewButton(orderID, "◀️ Назад")), nil
	}

	reply := dto.NewReply(fmt.Sprintf("Выберите мастера для заявки #%d:", orderID)).Editing(messageID)
	for _, t := range techs {
		text := t.DisplayName()
		if order.IsAssignedTo(t.ID) {
			text = "✔️ " + text
		}
		reply.WithRow(dto.Button{Text: text, Callback: dto.Callback{Action: dto.ActionAssign, OrderID: orderID, UserID: t.ID}})
	}
	return reply.WithRow(viewButton(orderID, "◀️ Назад")), nil
}

// pickTemplate: на шаге описания проблемы шаблон завершает приём заявки, иначе просто показывается.
func (e *Engine) pickTemplate(ctx context.Context, s *session, templateID int64) (*dto.Reply, error) {
	tpl, err := e.templates.Get(ctx, s.id(), templateID)
	if err != nil {
		return nil, err
	}
	if s.st != nil && s.st.Step == constants.StepAwaitingProblem {
		return e.runTerminal(ctx, s, e.steps[constants.StepAwaitingProblem], tpl.Description)
	}
	return dto.NewReply(fmt.Sprintf("📋 %s\n%s", tpl.Title, tpl.Description)), nil
}
