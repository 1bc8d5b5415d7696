// Package telegramtest - запись исходящих вызовов Bot API вместо реальной отправки.
package telegramtest

import (
	"context"
	"sync"

	"repair-desk/pkg/telegram"
)

type Sent struct {
	Method    string
	ChatID    int64
	MessageID int
	Text      string
	FileName  string
	Content   []byte
}

// Recorder реализует telegram.ServiceInterface. Fail позволяет ронять отправку выбранным чатам.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
	Fail map[int64]error
}

var _ telegram.ServiceInterface = (*Recorder)(nil)

func NewRecorder() *Recorder {
	return &Recorder{Fail: make(map[int64]error)}
}

func (r *Recorder) record(s Sent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.Fail[s.ChatID]; err != nil {
		return err
	}
	r.sent = append(r.sent, s)
	return nil
}

func (r *Recorder) SendMessage(_ context.Context, chatID int64, text string) error {
	return r.record(Sent{Method: "sendMessage", ChatID: chatID, Text: text})
}

func (r *Recorder) SendMessageEx(_ context.Context, chatID int64, text string, _ ...telegram.MessageOption) error {
	return r.record(Sent{Method: "sendMessage", ChatID: chatID, Text: text})
}

func (r *Recorder) AnswerCallbackQuery(_ context.Context, _ string, text string) error {
	return r.record(Sent{Method: "answerCallbackQuery", Text: text})
}

func (r *Recorder) EditMessageText(_ context.Context, chatID int64, messageID int, text string, _ ...telegram.MessageOption) error {
	return r.record(Sent{Method: "editMessageText", ChatID: chatID, MessageID: messageID, Text: text})
}

func (r *Recorder) EditOrSendMessage(_ context.Context, chatID int64, messageID int, text string, _ ...telegram.MessageOption) error {
	return r.record(Sent{Method: "editMessageText", ChatID: chatID, MessageID: messageID, Text: text})
}

func (r *Recorder) SendDocument(_ context.Context, chatID int64, fileName string, content []byte, caption string) error {
	return r.record(Sent{Method: "sendDocument", ChatID: chatID, FileName: fileName, Content: content, Text: caption})
}

func (r *Recorder) SetWebhook(context.Context, string) error {
	return nil
}

// Sent - копия всех успешных вызовов.
func (r *Recorder) Sent() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Sent(nil), r.sent...)
}

// To - успешные вызовы в один чат.
func (r *Recorder) To(chatID int64) []Sent {
	var out []Sent
	for _, s := range r.Sent() {
		if s.ChatID == chatID {
			out = append(out, s)
		}
	}
	return out
}
