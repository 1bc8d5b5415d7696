package listeners

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"repair-desk/internal/events"
	"repair-desk/internal/integrations/broker"
	"repair-desk/internal/metrics"
	"repair-desk/pkg/eventbus"
)

// OrderEventPayload - данные события во внешней шине.
type OrderEventPayload struct {
	OrderID              int64     `json:"order_id"`
	OldStatus            string    `json:"old_status,omitempty"`
	NewStatus            string    `json:"new_status"`
	ActorID              int64     `json:"actor_id"`
	TechnicianID         int64     `json:"technician_id,omitempty"`
	PreviousTechnicianID int64     `json:"previous_technician_id,omitempty"`
	Field                string    `json:"field,omitempty"`
	ServiceCost          *float64  `json:"service_cost,omitempty"`
	OccurredAt           time.Time `json:"occurred_at"`
}

// BrokerListener дублирует события заявок в RabbitMQ с ключом "<событие>.v1".
type BrokerListener struct {
	publisher broker.Publisher
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

func NewBrokerListener(publisher broker.Publisher, m *metrics.Metrics, logger *zap.Logger) *BrokerListener {
	return &BrokerListener{
		publisher: publisher,
		metrics:   m,
		logger:    logger.Named("broker_listener"),
	}
}

func (l *BrokerListener) Register(bus *eventbus.Bus) {
	for _, name := range events.AllOrderEvents {
		bus.Subscribe(name, l.handleOrderEvent)
	}
}

func payloadFromEvent(e events.OrderEvent) OrderEventPayload {
	p := OrderEventPayload{
		OrderID:              e.OrderID,
		OldStatus:            string(e.OldStatus),
		NewStatus:            string(e.NewStatus),
		ActorID:              e.ActorID,
		TechnicianID:         e.Order.AssignedTechnicianID.Int64,
		PreviousTechnicianID: e.PreviousTechnicianID,
		Field:                e.Field,
		OccurredAt:           e.OccurredAt.UTC(),
	}
	if e.Field == events.FieldServiceCost && e.Order.ServiceCost.Valid {
		cost := e.Order.ServiceCost.Float64
		p.ServiceCost = &cost
	}
	return p
}

func (l *BrokerListener) handleOrderEvent(ctx context.Context, event eventbus.Event) error {
	e, ok := event.(events.OrderEvent)
	if !ok {
		return nil
	}

	key := e.Type + ".v1"
	err := l.publisher.Publish(ctx, key, broker.NewEnvelope(key, payloadFromEvent(e)))
	l.metrics.EventPublished(e.Type, err)
	if err != nil {
		return fmt.Errorf("публикация %s по заявке #%d: %w", key, e.OrderID, err)
	}
	l.logger.Debug("Событие отправлено в брокер", zap.String("key", key), zap.Int64("order_id", e.OrderID))
	return nil
}
