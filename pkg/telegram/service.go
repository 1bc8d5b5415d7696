package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultAPIBase = "https://api.telegram.org"

type ServiceInterface interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
	SendMessageEx(ctx context.Context, chatID int64, text string, options ...MessageOption) error
	AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error
	EditMessageText(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) error
	EditOrSendMessage(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) error
	SendDocument(ctx context.Context, chatID int64, fileName string, content []byte, caption string) error
	SetWebhook(ctx context.Context, webhookURL string) error
}

type Service struct {
	botToken   string
	apiBase    string
	httpClient *http.Client
	secret     string
	logger     *zap.Logger
}

type ServiceOption func(*Service)

// WithAPIBase подменяет адрес Bot API (локальный bot-api сервер или тесты).
func WithAPIBase(base string) ServiceOption {
	return func(s *Service) {
		s.apiBase = strings.TrimSuffix(base, "/")
	}
}

// WithWebhookSecret - секрет, который Telegram будет присылать в заголовке вебхука.
func WithWebhookSecret(secret string) ServiceOption {
	return func(s *Service) {
		s.secret = secret
	}
}

func WithHTTPClient(client *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = client
	}
}

func NewService(botToken string, logger *zap.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		botToken:   botToken,
		apiBase:    defaultAPIBase,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger.Named("telegram"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type sendMessageRequest struct {
	ChatID      int64       `json:"chat_id"`
	Text        string      `json:"text"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type inlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

type InlineKeyboardButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data"`
}

type callbackQueryRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

type editMessageTextRequest struct {
	ChatID      int64       `json:"chat_id"`
	MessageID   int         `json:"message_id"`
	Text        string      `json:"text"`
	ReplyMarkup interface{} `json:"reply_markup,omitempty"`
}

type setWebhookRequest struct {
	URL            string   `json:"url"`
	AllowedUpdates []string `json:"allowed_updates"`
	SecretToken    string   `json:"secret_token,omitempty"`
}

type MessageOption func(*sendMessageRequest)

func WithKeyboard(rows [][]InlineKeyboardButton) MessageOption {
	return func(req *sendMessageRequest) {
		if len(rows) > 0 {
			req.ReplyMarkup = inlineKeyboardMarkup{InlineKeyboard: rows}
		}
	}
}

func (s *Service) SendMessage(ctx context.Context, chatID int64, text string) error {
	return s.SendMessageEx(ctx, chatID, text)
}

func (s *Service) SendMessageEx(ctx context.Context, chatID int64, text string, options ...MessageOption) error {
	reqPayload := &sendMessageRequest{
		ChatID: chatID,
		Text:   text,
	}
	for _, opt := range options {
		opt(reqPayload)
	}
	return s.sendRequest(ctx, "sendMessage", reqPayload)
}

func (s *Service) EditMessageText(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) error {
	if messageID == 0 {
		return s.SendMessageEx(ctx, chatID, text, options...)
	}

	tmp := &sendMessageRequest{}
	for _, opt := range options {
		opt(tmp)
	}

	return s.sendRequest(ctx, "editMessageText", &editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: tmp.ReplyMarkup,
	})
}

// EditOrSendMessage редактирует сообщение, а если Telegram отказал (сообщение удалено
// или слишком старое) - отправляет новое.
func (s *Service) EditOrSendMessage(ctx context.Context, chatID int64, messageID int, text string, options ...MessageOption) error {
	if messageID == 0 {
		return s.SendMessageEx(ctx, chatID, text, options...)
	}
	err := s.EditMessageText(ctx, chatID, messageID, text, options...)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.IsNotModified() {
		return nil
	}
	s.logger.Debug("Не удалось отредактировать сообщение, отправляем новое",
		zap.Int64("chat_id", chatID), zap.Int("message_id", messageID), zap.Error(err))
	return s.SendMessageEx(ctx, chatID, text, options...)
}

func (s *Service) AnswerCallbackQuery(ctx context.Context, callbackQueryID string, text string) error {
	if callbackQueryID == "" {
		return fmt.Errorf("callbackQueryID не может быть пустым")
	}
	return s.sendRequest(ctx, "answerCallbackQuery", callbackQueryRequest{
		CallbackQueryID: callbackQueryID,
		Text:            text,
	})
}

func (s *Service) SetWebhook(ctx context.Context, webhookURL string) error {
	return s.sendRequest(ctx, "setWebhook", setWebhookRequest{
		URL:            webhookURL,
		AllowedUpdates: []string{"message", "callback_query"},
		SecretToken:    s.secret,
	})
}

// SendDocument отправляет файл как multipart/form-data.
func (s *Service) SendDocument(ctx context.Context, chatID int64, fileName string, content []byte, caption string) error {
	if s.botToken == "" {
		return fmt.Errorf("токен Telegram-бота не установлен")
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.WriteField("chat_id", strconv.FormatInt(chatID, 10)); err != nil {
		return err
	}
	if caption != "" {
		if err := w.WriteField("caption", caption); err != nil {
			return err
		}
	}
	part, err := w.CreateFormFile("document", fileName)
	if err != nil {
		return fmt.Errorf("ошибка формирования файла: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return fmt.Errorf("ошибка записи файла: %w", err)
	}
	if err := w.Close(); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL("sendDocument"), &buf)
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	return s.do(req, "sendDocument")
}

func (s *Service) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", s.apiBase, s.botToken, method)
}

func (s *Service) sendRequest(ctx context.Context, methodName string, payload interface{}) error {
	if s.botToken == "" {
		return fmt.Errorf("токен Telegram-бота не установлен")
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ошибка сериализации JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.methodURL(methodName), bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return s.do(req, methodName)
}

func (s *Service) do(req *http.Request, methodName string) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка отправки запроса в Telegram: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	s.logger.Debug("Ответ Telegram API", zap.String("method", methodName), zap.ByteString("body", body))

	var telegramResp struct {
		OK          bool   `json:"ok"`
		Description string `json:"description,omitempty"`
		ErrorCode   int    `json:"error_code,omitempty"`
		Parameters  *struct {
			RetryAfter int `json:"retry_after"`
		} `json:"parameters,omitempty"`
	}
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return fmt.Errorf("ошибка декодирования ответа Telegram API (HTTP %d): %w", resp.StatusCode, err)
	}

	if !telegramResp.OK {
		apiErr := &APIError{
			Method:      methodName,
			Code:        telegramResp.ErrorCode,
			Description: telegramResp.Description,
		}
		if telegramResp.Parameters != nil {
			apiErr.RetryAfter = time.Duration(telegramResp.Parameters.RetryAfter) * time.Second
		}
		return apiErr
	}
	return nil
}
