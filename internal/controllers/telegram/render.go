package telegram

import (
	"context"
	"strconv"

	"go.uber.org/zap"

	"repair-desk/internal/dto"
	"repair-desk/pkg/constants"
	"repair-desk/pkg/telegram"
	"repair-desk/pkg/utils"
)

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func splitCommand(text string) (string, []string) {
	return utils.SplitCommand(text)
}

// keyboard кодирует кнопки в callback_data. Кнопка, не влезающая в лимит, пропускается.
func (c *TelegramController) keyboard(rows [][]dto.Button) [][]telegram.InlineKeyboardButton {
	out := make([][]telegram.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		encoded := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			data, err := b.Callback.Encode()
			if err != nil {
				c.logger.Error("Кнопка не закодирована", zap.String("text", b.Text), zap.Error(err))
				continue
			}
			encoded = append(encoded, telegram.InlineKeyboardButton{Text: b.Text, CallbackData: data})
		}
		if len(encoded) > 0 {
			out = append(out, encoded)
		}
	}
	return out
}

// render отправляет ответ движка: файл, правку сообщения с кнопками или новое сообщение.
func (c *TelegramController) render(ctx context.Context, chatID int64, reply *dto.Reply) error {
	if reply == nil {
		return nil
	}
	if doc := reply.Document; doc != nil {
		caption := doc.Caption
		if caption == "" {
			caption = reply.Text
		}
		return c.tgService.SendDocument(ctx, chatID, doc.FileName, doc.Content, caption)
	}

	text := utils.Truncate(reply.Text, constants.MaxMessageLength)
	kb := telegram.WithKeyboard(c.keyboard(reply.Keyboard))
	if reply.EditMessageID != 0 {
		return c.tgService.EditOrSendMessage(ctx, chatID, reply.EditMessageID, text, kb)
	}
	return c.tgService.SendMessageEx(ctx, chatID, text, kb)
}
