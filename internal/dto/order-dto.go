package dto

import "repair-desk/pkg/constants"

type CreateOrderDTO struct {
	ClientPhone        string `json:"client_phone" validate:"required,phone_digits"`
	ClientName         string `json:"client_name" validate:"required,min_runes=3,max=200"`
	ClientAddress      string `json:"client_address" validate:"required,min_runes=5,max=500"`
	ProblemDescription string `json:"problem_description" validate:"required,min_runes=10,max=1000"`
}

// OrderFilter - выборка заявок. Нулевые поля не фильтруют.
type OrderFilter struct {
	Status       constants.OrderStatus
	TechnicianID int64
	CreatorID    int64
	Limit        uint64
	Offset       uint64
}
