package entities

import (
	"github.com/aarondl/null/v8"

	"repair-desk/pkg/constants"
	"repair-desk/pkg/types"
)

type Order struct {
	ID                   int64                 `json:"id" db:"id"`
	CreatorID            int64                 `json:"creator_id" db:"creator_id"`
	ClientPhone          string                `json:"client_phone" db:"client_phone"`
	ClientName           string                `json:"client_name" db:"client_name"`
	ClientAddress        string                `json:"client_address" db:"client_address"`
	ProblemDescription   string                `json:"problem_description" db:"problem_description"`
	Status               constants.OrderStatus `json:"status" db:"status"`
	ServiceCost          null.Float64          `json:"service_cost" db:"service_cost"`
	ServiceDescription   null.String           `json:"service_description" db:"service_description"`
	AssignedTechnicianID null.Int64            `json:"assigned_technician_id" db:"assigned_technician_id"`
	CompletedAt          null.Time             `json:"completed_at" db:"completed_at"`

	types.BaseEntity
}

// IsParticipant - создатель заявки или назначенный мастер.
func (o *Order) IsParticipant(userID int64) bool {
	return o.CreatorID == userID || o.IsAssignedTo(userID)
}

func (o *Order) IsAssignedTo(userID int64) bool {
	return o.AssignedTechnicianID.Valid && o.AssignedTechnicianID.Int64 == userID
}
