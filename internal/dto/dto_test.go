package dto

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallback_EncodeDecode(t *testing.T) {
	cb := Callback{Action: ActionStatus, OrderID: 123456, Status: "in_progress"}
	data, err := cb.Encode()
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), maxCallbackDataLen)

	decoded, err := DecodeCallback(data)
	require.NoError(t, err)
	assert.Equal(t, cb, decoded)
}

func TestDecodeCallback_Rejects(t *testing.T) {
	_, err := DecodeCallback("not json")
	assert.Error(t, err)

	_, err = DecodeCallback(`{"a":"hack","o":1}`)
	assert.Error(t, err)

	_, err = DecodeCallback(`{"a":"status","o":1,"s":"done"}`)
	assert.Error(t, err)

	cb, err := DecodeCallback(`{"a":"role","u":5,"s":"technician"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cb.UserID)
}

func TestCallback_EncodeTooLong(t *testing.T) {
	_, err := Callback{Action: ActionMenu, Status: strings.Repeat("x", 80)}.Encode()
	assert.Error(t, err)
}

func TestConversationState_Draft(t *testing.T) {
	var s ConversationState
	s.SetDraft(DraftPhone, "+7999")
	assert.Equal(t, "+7999", s.DraftValue(DraftPhone))
	assert.Empty(t, s.DraftValue(DraftName))
}
