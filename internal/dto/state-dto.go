package dto

import (
	"time"

	"repair-desk/pkg/constants"
)

// Ключи черновика заявки в ConversationState.Draft.
const (
	DraftPhone   = "phone"
	DraftName    = "name"
	DraftAddress = "address"
	DraftProblem = "problem"
)

// ConversationState - на каком шаге диалога находится пользователь и что уже введено.
// Хранится в кеше с истечением, одна запись на пользователя.
type ConversationState struct {
	Step         constants.ConversationStep `json:"step"`
	OrderID      int64                      `json:"order_id,omitempty"`
	Draft        map[string]string          `json:"draft,omitempty"`
	TargetUserID int64                      `json:"target_user_id,omitempty"`
	MessageID    int                        `json:"message_id,omitempty"`
	UpdatedAt    time.Time                  `json:"updated_at"`
}

func NewConversationState(step constants.ConversationStep) *ConversationState {
	return &ConversationState{
		Step:  step,
		Draft: make(map[string]string),
	}
}

func (s *ConversationState) SetDraft(key, value string) {
	if s.Draft == nil {
		s.Draft = make(map[string]string)
	}
	s.Draft[key] = value
}

func (s *ConversationState) DraftValue(key string) string {
	return s.Draft[key]
}
