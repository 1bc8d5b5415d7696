package telegram

// Update - входящее обновление вебхука. Разбираем только то, что использует бот.
type Update struct {
	UpdateID      int            `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

type Message struct {
	MessageID int    `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
	Date      int64  `json:"date"`
}

type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
}

type Chat struct {
	ID   int64  `json:"id"`
	Type string `json:"type"`
}

type CallbackQuery struct {
	ID      string   `json:"id"`
	From    User     `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// Sender возвращает автора обновления и chat id для ответа.
func (u *Update) Sender() (*User, int64) {
	switch {
	case u.CallbackQuery != nil:
		chatID := u.CallbackQuery.From.ID
		if u.CallbackQuery.Message != nil {
			chatID = u.CallbackQuery.Message.Chat.ID
		}
		return &u.CallbackQuery.From, chatID
	case u.Message != nil && u.Message.From != nil:
		return u.Message.From, u.Message.Chat.ID
	case u.Message != nil:
		return &User{ID: u.Message.Chat.ID}, u.Message.Chat.ID
	}
	return nil, 0
}
