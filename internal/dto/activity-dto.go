package dto

import "repair-desk/pkg/constants"

// ActivityFilter - любая комбинация условий; nil/пустое поле не фильтрует.
type ActivityFilter struct {
	UserID        *int64
	ActionType    constants.ActionType
	OrderID       *int64
	RelatedUserID *int64
}

// ActivityEntryDTO - запись для добавления в журнал.
type ActivityEntryDTO struct {
	UserID         int64
	ActionType     constants.ActionType
	Description    string
	RelatedOrderID *int64
	RelatedUserID  *int64
}
