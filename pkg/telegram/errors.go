package telegram

import (
	"fmt"
	"strings"
	"time"
)

// APIError - ответ Bot API с ok=false.
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  time.Duration
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram API ошибка (%s): код %d, описание: %s", e.Method, e.Code, e.Description)
}

// IsNotModified - Telegram отвечает 400, если текст и клавиатура не изменились.
func (e *APIError) IsNotModified() bool {
	return e.Code == 400 && strings.Contains(e.Description, "message is not modified")
}

// IsBlocked - пользователь заблокировал бота или удалил чат.
func (e *APIError) IsBlocked() bool {
	return e.Code == 403
}
