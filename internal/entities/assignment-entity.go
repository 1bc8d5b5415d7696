package entities

import (
	"time"

	"github.com/aarondl/null/v8"
)

type Assignment struct {
	ID           int64     `json:"id" db:"id"`
	OrderID      int64     `json:"order_id" db:"order_id"`
	TechnicianID int64     `json:"technician_id" db:"technician_id"`
	AssignedBy   int64     `json:"assigned_by" db:"assigned_by"`
	AssignedAt   time.Time `json:"assigned_at" db:"assigned_at"`
	ClosedAt     null.Time `json:"closed_at" db:"closed_at"`
}

func (a *Assignment) IsActive() bool {
	return !a.ClosedAt.Valid
}
