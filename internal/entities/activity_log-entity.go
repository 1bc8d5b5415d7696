package entities

import (
	"time"

	"github.com/aarondl/null/v8"

	"repair-desk/pkg/constants"
)

// ActivityLog - запись журнала действий. Только добавляется.
type ActivityLog struct {
	ID             int64                `json:"id" db:"id"`
	UserID         int64                `json:"user_id" db:"user_id"`
	ActionType     constants.ActionType `json:"action_type" db:"action_type"`
	Description    string               `json:"description" db:"description"`
	RelatedOrderID null.Int64           `json:"related_order_id" db:"related_order_id"`
	RelatedUserID  null.Int64           `json:"related_user_id" db:"related_user_id"`
	CreatedAt      time.Time            `json:"created_at" db:"created_at"`
}
