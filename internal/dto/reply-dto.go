package dto

// Button - inline-кнопка ответа.
type Button struct {
	Text     string
	Callback Callback
}

// Document - файл, отправляемый вместе с ответом (выгрузка /export).
type Document struct {
	FileName string
	Content  []byte
	Caption  string
}

// Reply - ответ движка диалога. Транспорт сам решает, как его отрисовать.
type Reply struct {
	Text          string
	Keyboard      [][]Button
	EditMessageID int
	Document      *Document
}

func NewReply(text string) *Reply {
	return &Reply{Text: text}
}

func (r *Reply) WithRow(buttons ...Button) *Reply {
	if len(buttons) > 0 {
		r.Keyboard = append(r.Keyboard, buttons)
	}
	return r
}

func (r *Reply) Editing(messageID int) *Reply {
	r.EditMessageID = messageID
	return r
}
