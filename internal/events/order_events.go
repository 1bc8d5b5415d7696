package events

import (
	"time"

	"repair-desk/internal/entities"
	"repair-desk/pkg/constants"
)

// Имена событий заявок на шине.
const (
	OrderCreated       = "order.created"
	OrderAssigned      = "order.assigned"
	OrderStatusChanged = "order.status_changed"
	OrderUpdated       = "order.updated"
	OrderDeleted       = "order.deleted"
)

var AllOrderEvents = []string{OrderCreated, OrderAssigned, OrderStatusChanged, OrderUpdated, OrderDeleted}

// Поля заявки, которые меняет OrderUpdated.
const (
	FieldServiceCost        = "service_cost"
	FieldServiceDescription = "service_description"
)

// OrderEvent - что произошло с заявкой и кто это сделал.
// Order - снимок заявки после изменения (для OrderDeleted - до удаления).
type OrderEvent struct {
	Type                 string
	OrderID              int64
	OldStatus            constants.OrderStatus
	NewStatus            constants.OrderStatus
	ActorID              int64
	PreviousTechnicianID int64
	Field                string
	Order                entities.Order
	OccurredAt           time.Time
}

// Name - реализуем интерфейс eventbus.Event
func (e OrderEvent) Name() string {
	return e.Type
}

func NewOrderEvent(eventType string, actorID int64, order *entities.Order, oldStatus constants.OrderStatus) OrderEvent {
	return OrderEvent{
		Type:       eventType,
		OrderID:    order.ID,
		OldStatus:  oldStatus,
		NewStatus:  order.Status,
		ActorID:    actorID,
		Order:      *order,
		OccurredAt: time.Now(),
	}
}
