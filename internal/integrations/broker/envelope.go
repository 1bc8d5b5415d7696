package broker

import (
	"time"

	"github.com/google/uuid"
)

const producer = "repair-desk"

type Meta struct {
	ID            string    `json:"id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	Producer      string    `json:"producer"`
	Time          time.Time `json:"time"`
	Type          string    `json:"type"`
}

// Envelope - формат сообщения во внешней шине: метаданные плюс полезная нагрузка.
type Envelope struct {
	Meta Meta `json:"meta"`
	Data any  `json:"data"`
}

// NewEnvelope: eventType с версией, например "order.created.v1".
func NewEnvelope(eventType string, data any) Envelope {
	id := uuid.NewString()
	return Envelope{
		Meta: Meta{
			ID:            id,
			CorrelationID: id,
			Producer:      producer,
			Time:          time.Now().UTC(),
			Type:          eventType,
		},
		Data: data,
	}
}
