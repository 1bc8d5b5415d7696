package dto

import (
	"encoding/json"
	"fmt"

	"repair-desk/pkg/constants"
)

// Действия inline-кнопок.
type CallbackAction string

const (
	ActionView       CallbackAction = "view"
	ActionAssignPick CallbackAction = "assign_pick"
	ActionAssign     CallbackAction = "assign"
	ActionStatus     CallbackAction = "status"
	ActionCost       CallbackAction = "cost"
	ActionDesc       CallbackAction = "desc"
	ActionDelete     CallbackAction = "delete"
	ActionTemplate   CallbackAction = "tpl"
	ActionRole       CallbackAction = "role"
	ActionMenu       CallbackAction = "menu"
)

var knownActions = map[CallbackAction]bool{
	ActionView: true, ActionAssignPick: true, ActionAssign: true, ActionStatus: true,
	ActionCost: true, ActionDesc: true, ActionDelete: true, ActionTemplate: true,
	ActionRole: true, ActionMenu: true,
}

// Telegram ограничивает callback_data 64 байтами.
const maxCallbackDataLen = 64

// Callback - разобранные данные нажатой кнопки. Ключи короткие из-за лимита Telegram.
type Callback struct {
	Action     CallbackAction `json:"a"`
	OrderID    int64          `json:"o,omitempty"`
	UserID     int64          `json:"u,omitempty"`
	Status     string         `json:"s,omitempty"`
	TemplateID int64          `json:"t,omitempty"`
}

func (c Callback) Encode() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	if len(b) > maxCallbackDataLen {
		return "", fmt.Errorf("callback_data длиннее %d байт: %s", maxCallbackDataLen, b)
	}
	return string(b), nil
}

// DecodeCallback разбирает callback_data один раз на границе транспорта.
func DecodeCallback(data string) (Callback, error) {
	var c Callback
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return Callback{}, fmt.Errorf("некорректные данные кнопки: %w", err)
	}
	if !knownActions[c.Action] {
		return Callback{}, fmt.Errorf("неизвестное действие кнопки %q", c.Action)
	}
	if c.Status != "" && !constants.OrderStatus(c.Status).IsValid() {
		if _, ok := constants.ParseRole(c.Status); !ok {
			return Callback{}, fmt.Errorf("неизвестный статус или роль %q", c.Status)
		}
	}
	return c, nil
}
