package telegram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"repair-desk/internal/dto"
	"repair-desk/internal/services"
	"repair-desk/pkg/config"
	apperrors "repair-desk/pkg/errors"
	"repair-desk/pkg/telegram"
	"repair-desk/pkg/telegram/telegramtest"
)

type call struct {
	kind    string
	userID  int64
	command string
	args    []string
	text    string
	cb      dto.Callback
	msgID   int
}

type fakeEngine struct {
	mu    sync.Mutex
	calls []call
	reply func(c call) (*dto.Reply, error)
}

func (e *fakeEngine) handle(c call) (*dto.Reply, error) {
	e.mu.Lock()
	e.calls = append(e.calls, c)
	e.mu.Unlock()
	if e.reply != nil {
		return e.reply(c)
	}
	return dto.NewReply("ok: " + c.kind), nil
}

func (e *fakeEngine) OnCommand(_ context.Context, s dto.TelegramProfileDTO, command string, args []string) (*dto.Reply, error) {
	return e.handle(call{kind: "command", userID: s.ID, command: command, args: args})
}

func (e *fakeEngine) OnCallback(_ context.Context, s dto.TelegramProfileDTO, cb dto.Callback, messageID int) (*dto.Reply, error) {
	return e.handle(call{kind: "callback", userID: s.ID, cb: cb, msgID: messageID})
}

func (e *fakeEngine) OnText(_ context.Context, s dto.TelegramProfileDTO, text string) (*dto.Reply, error) {
	return e.handle(call{kind: "text", userID: s.ID, text: text})
}

func (e *fakeEngine) recorded() []call {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]call(nil), e.calls...)
}

type systemErrors struct {
	mu      sync.Mutex
	sources []string
}

func (n *systemErrors) Notify(context.Context, []int64, string, services.NotifyOptions) int { return 0 }
func (n *systemErrors) AdminIDs(context.Context) []int64                                  { return nil }
func (n *systemErrors) Wait(context.Context) error                                        { return nil }

func (n *systemErrors) NotifySystemError(_ context.Context, source string, _ error, _ bool) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sources = append(n.sources, source)
	return true
}

func (n *systemErrors) list() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sources...)
}

func newController(t *testing.T, engine *fakeEngine) (*TelegramController, *telegramtest.Recorder, *systemErrors) {
	t.Helper()
	tg := telegramtest.NewRecorder()
	notifier := &systemErrors{}
	c := NewTelegramController(engine, tg, notifier, config.TelegramConfig{
		MaxConcurrent:    4,
		CommandCooldown:  time.Second,
		CallbackCooldown: 500 * time.Millisecond,
	}, nil, zap.NewNop())
	return c, tg, notifier
}

func wait(t *testing.T, c *TelegramController) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func textUpdate(userID int64, text string) telegram.Update {
	return telegram.Update{Message: &telegram.Message{
		MessageID: 1,
		From:      &telegram.User{ID: userID, FirstName: "Иван"},
		Chat:      telegram.Chat{ID: userID},
		Text:      text,
		Date:      time.Now().Unix(),
	}}
}

func callbackUpdate(userID int64, data string) telegram.Update {
	return telegram.Update{CallbackQuery: &telegram.CallbackQuery{
		ID:      "q1",
		From:    telegram.User{ID: userID},
		Message: &telegram.Message{MessageID: 77, Chat: telegram.Chat{ID: userID}},
		Data:    data,
	}}
}

func TestDispatch_CommandIsSplit(t *testing.T) {
	engine := &fakeEngine{}
	c, tg, _ := newController(t, engine)

	c.Dispatch(textUpdate(10, "/order@repair_bot 15"))
	wait(t, c)

	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "order", calls[0].command)
	assert.Equal(t, []string{"15"}, calls[0].args)

	sent := tg.To(10)
	require.Len(t, sent, 1)
	assert.Equal(t, "sendMessage", sent[0].Method)
	assert.Equal(t, "ok: command", sent[0].Text)
}

func TestDispatch_TextGoesToEngine(t *testing.T) {
	engine := &fakeEngine{}
	c, _, _ := newController(t, engine)

	c.Dispatch(textUpdate(10, "  89991234567  "))
	wait(t, c)

	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "text", calls[0].kind)
	assert.Equal(t, "89991234567", calls[0].text)
}

func TestDispatch_StaleMessageDropped(t *testing.T) {
	engine := &fakeEngine{}
	c, tg, _ := newController(t, engine)

	u := textUpdate(10, "/start")
	u.Message.Date = time.Now().Add(-10 * time.Minute).Unix()
	c.Dispatch(u)
	wait(t, c)

	assert.Empty(t, engine.recorded())
	assert.Empty(t, tg.Sent())
}

func TestDispatch_BotSenderDropped(t *testing.T) {
	engine := &fakeEngine{}
	c, _, _ := newController(t, engine)

	u := textUpdate(10, "hi")
	u.Message.From.IsBot = true
	c.Dispatch(u)
	wait(t, c)

	assert.Empty(t, engine.recorded())
}

func TestDispatch_DuplicateCommandWithinCooldown(t *testing.T) {
	engine := &fakeEngine{}
	c, _, _ := newController(t, engine)

	c.Dispatch(textUpdate(10, "/stats"))
	c.Dispatch(textUpdate(10, "/stats"))
	c.Dispatch(textUpdate(11, "/stats"))
	wait(t, c)

	assert.Len(t, engine.recorded(), 2)
}

func TestDispatch_PerUserOrder(t *testing.T) {
	engine := &fakeEngine{}
	engine.reply = func(cl call) (*dto.Reply, error) {
		if cl.text == "first" {
			time.Sleep(50 * time.Millisecond)
		}
		return dto.NewReply(cl.text), nil
	}
	c, tg, _ := newController(t, engine)

	for _, text := range []string{"first", "second", "third"} {
		c.Dispatch(textUpdate(10, text))
	}
	wait(t, c)

	var got []string
	for _, s := range tg.To(10) {
		got = append(got, s.Text)
	}
	assert.Equal(t, []string{"first", "second", "third"}, got)
}

func TestDispatch_CallbackDecodedAndEdited(t *testing.T) {
	engine := &fakeEngine{}
	engine.reply = func(cl call) (*dto.Reply, error) {
		return dto.NewReply("карточка").Editing(cl.msgID), nil
	}
	c, tg, _ := newController(t, engine)

	data, err := dto.Callback{Action: dto.ActionView, OrderID: 42}.Encode()
	require.NoError(t, err)
	c.Dispatch(callbackUpdate(10, data))
	wait(t, c)

	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, dto.ActionView, calls[0].cb.Action)
	assert.Equal(t, int64(42), calls[0].cb.OrderID)

	sent := tg.To(10)
	require.Len(t, sent, 1)
	assert.Equal(t, "editMessageText", sent[0].Method)
	assert.Equal(t, 77, sent[0].MessageID)
}

func TestDispatch_UnknownCallbackIsAnswered(t *testing.T) {
	engine := &fakeEngine{}
	c, tg, _ := newController(t, engine)

	c.Dispatch(callbackUpdate(10, "status_42_completed"))
	wait(t, c)

	assert.Empty(t, engine.recorded())
	var answered bool
	for _, s := range tg.Sent() {
		if s.Method == "answerCallbackQuery" && s.Text == "Кнопка устарела" {
			answered = true
		}
	}
	assert.True(t, answered)
}

func TestDispatch_DocumentReply(t *testing.T) {
	engine := &fakeEngine{}
	engine.reply = func(call) (*dto.Reply, error) {
		return &dto.Reply{Text: "Выгрузка", Document: &dto.Document{FileName: "orders.xlsx", Content: []byte("xlsx")}}, nil
	}
	c, tg, _ := newController(t, engine)

	c.Dispatch(textUpdate(10, "/export"))
	wait(t, c)

	sent := tg.To(10)
	require.Len(t, sent, 1)
	assert.Equal(t, "sendDocument", sent[0].Method)
	assert.Equal(t, "orders.xlsx", sent[0].FileName)
	assert.Equal(t, "Выгрузка", sent[0].Text)
}

func TestDispatch_StorageErrorReportsInternalError(t *testing.T) {
	engine := &fakeEngine{}
	engine.reply = func(call) (*dto.Reply, error) {
		return nil, apperrors.NewStorageError("orders.create", errors.New("connection refused"))
	}
	c, tg, notifier := newController(t, engine)

	c.Dispatch(textUpdate(10, "laptop won't boot"))
	wait(t, c)

	sent := tg.To(10)
	require.Len(t, sent, 1)
	assert.Contains(t, sent[0].Text, "Внутренняя ошибка")
	assert.Equal(t, []string{"telegram.text"}, notifier.list())
}

func TestDispatch_UnsupportedMessageSendFailureIsLogged(t *testing.T) {
	engine := &fakeEngine{}
	c, tg, _ := newController(t, engine)
	core, logs := observer.New(zap.WarnLevel)
	c.logger = zap.New(core)
	tg.Fail[10] = errors.New("bot was blocked by the user")

	sticker := textUpdate(10, "")
	c.Dispatch(sticker)
	wait(t, c)

	assert.Empty(t, engine.recorded())
	assert.Empty(t, tg.To(10))
	entries := logs.FilterMessage("Не удалось ответить на неподдерживаемое сообщение").All()
	require.Len(t, entries, 1, "ошибка отправки не должна теряться молча")
	assert.Equal(t, int64(10), entries[0].ContextMap()["chat_id"])
}

func TestDispatch_PanicIsRecovered(t *testing.T) {
	engine := &fakeEngine{}
	engine.reply = func(cl call) (*dto.Reply, error) {
		if cl.text == "boom" {
			panic("boom")
		}
		return dto.NewReply("after"), nil
	}
	c, tg, _ := newController(t, engine)

	c.Dispatch(textUpdate(10, "boom"))
	c.Dispatch(textUpdate(10, "next"))
	wait(t, c)

	sent := tg.To(10)
	require.Len(t, sent, 1)
	assert.Equal(t, "after", sent[0].Text)
}

func TestKeyboard_SkipsOversizedButtons(t *testing.T) {
	c, _, _ := newController(t, &fakeEngine{})
	rows := c.keyboard([][]dto.Button{
		{{Text: "ok", Callback: dto.Callback{Action: dto.ActionView, OrderID: 1}}},
		{{Text: "too long", Callback: dto.Callback{Action: dto.ActionStatus, OrderID: 1, Status: strings.Repeat("x", 80)}}},
	})
	require.Len(t, rows, 1)
	assert.Equal(t, "ok", rows[0][0].Text)
}

func TestHandleTelegramWebhook_AlwaysOK(t *testing.T) {
	engine := &fakeEngine{}
	c, _, _ := newController(t, engine)
	e := echo.New()

	for _, body := range []string{`{not json`, `{"update_id":1,"message":{"message_id":1,"from":{"id":5,"first_name":"A"},"chat":{"id":5},"text":"/help"}}`} {
		req := httptest.NewRequest(http.MethodPost, WebhookPath, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		require.NoError(t, c.HandleTelegramWebhook(e.NewContext(req, rec)))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	wait(t, c)

	calls := engine.recorded()
	require.Len(t, calls, 1)
	assert.Equal(t, "help", calls[0].command)
}
