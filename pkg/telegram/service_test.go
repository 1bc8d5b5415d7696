package telegram

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordedCall struct {
	Path        string
	ContentType string
	Body        []byte
}

type fakeBotAPI struct {
	mu       sync.Mutex
	calls    []recordedCall
	response func(path string) string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Path: r.URL.Path, ContentType: r.Header.Get("Content-Type"), Body: body})
	f.mu.Unlock()

	resp := `{"ok":true,"result":{}}`
	if f.response != nil {
		resp = f.response(r.URL.Path)
	}
	_, _ = w.Write([]byte(resp))
}

func newTestService(t *testing.T, api *fakeBotAPI) *Service {
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return NewService("TOKEN", zap.NewNop(), WithAPIBase(srv.URL))
}

func TestSendMessageEx_WithKeyboard(t *testing.T) {
	api := &fakeBotAPI{}
	s := newTestService(t, api)

	err := s.SendMessageEx(context.Background(), 42, "Заявка #1", WithKeyboard([][]InlineKeyboardButton{
		{{Text: "Открыть", CallbackData: `{"a":"view","o":1}`}},
	}))
	require.NoError(t, err)

	require.Len(t, api.calls, 1)
	assert.Equal(t, "/botTOKEN/sendMessage", api.calls[0].Path)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(api.calls[0].Body, &payload))
	assert.Equal(t, float64(42), payload["chat_id"])
	assert.Equal(t, "Заявка #1", payload["text"])
	assert.NotContains(t, payload, "parse_mode")
	assert.Contains(t, payload, "reply_markup")
}

func TestSendMessage_APIError(t *testing.T) {
	api := &fakeBotAPI{response: func(string) string {
		return `{"ok":false,"error_code":403,"description":"Forbidden: bot was blocked by the user"}`
	}}
	s := newTestService(t, api)

	err := s.SendMessage(context.Background(), 1, "hi")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsBlocked())
}

func TestEditOrSendMessage_FallsBackToSend(t *testing.T) {
	api := &fakeBotAPI{response: func(path string) string {
		if strings.HasSuffix(path, "editMessageText") {
			return `{"ok":false,"error_code":400,"description":"Bad Request: message to edit not found"}`
		}
		return `{"ok":true,"result":{}}`
	}}
	s := newTestService(t, api)

	require.NoError(t, s.EditOrSendMessage(context.Background(), 1, 99, "текст"))
	require.Len(t, api.calls, 2)
	assert.True(t, strings.HasSuffix(api.calls[1].Path, "sendMessage"))
}

func TestEditOrSendMessage_NotModifiedIsSuccess(t *testing.T) {
	api := &fakeBotAPI{response: func(string) string {
		return `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified"}`
	}}
	s := newTestService(t, api)

	require.NoError(t, s.EditOrSendMessage(context.Background(), 1, 99, "текст"))
	assert.Len(t, api.calls, 1)
}

func TestSendDocument_Multipart(t *testing.T) {
	api := &fakeBotAPI{}
	s := newTestService(t, api)

	require.NoError(t, s.SendDocument(context.Background(), 7, "orders.xlsx", []byte("xlsx-bytes"), "Отчёт"))
	require.Len(t, api.calls, 1)
	assert.True(t, strings.HasPrefix(api.calls[0].ContentType, "multipart/form-data"))
	assert.Contains(t, string(api.calls[0].Body), "orders.xlsx")
	assert.Contains(t, string(api.calls[0].Body), "xlsx-bytes")
}

func TestUpdateSender(t *testing.T) {
	cb := &Update{CallbackQuery: &CallbackQuery{
		From:    User{ID: 5, FirstName: "Иван"},
		Message: &Message{Chat: Chat{ID: 5}},
	}}
	user, chatID := cb.Sender()
	require.NotNil(t, user)
	assert.Equal(t, int64(5), user.ID)
	assert.Equal(t, int64(5), chatID)

	empty := &Update{}
	user, _ = empty.Sender()
	assert.Nil(t, user)
}

func TestMissingToken(t *testing.T) {
	s := NewService("", zap.NewNop())
	assert.Error(t, s.SendMessage(context.Background(), 1, "x"))
}

func TestSetWebhook_SendsSecretToken(t *testing.T) {
	api := &fakeBotAPI{}
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	svc := NewService("TOKEN", zap.NewNop(), WithAPIBase(srv.URL), WithWebhookSecret("s3cret"))

	require.NoError(t, svc.SetWebhook(context.Background(), "https://bot.example.com/telegram/webhook"))

	require.Len(t, api.calls, 1)
	assert.Equal(t, "/botTOKEN/setWebhook", api.calls[0].Path)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(api.calls[0].Body, &payload))
	assert.Equal(t, "s3cret", payload["secret_token"])
	assert.Equal(t, "https://bot.example.com/telegram/webhook", payload["url"])
}
