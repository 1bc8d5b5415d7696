package dto

// TelegramProfileDTO - то, что известно о пользователе из входящего обновления.
type TelegramProfileDTO struct {
	ID        int64
	FirstName string
	LastName  string
	Username  string
}
