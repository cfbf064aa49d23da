package events

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"LiteChat/models"
)

func TestDecodeNewMessage(t *testing.T) {
	payload := json.RawMessage(`{
		"id": 1001,
		"sessionId": "42_7",
		"senderType": "user",
		"senderName": "alice",
		"messageType": "text",
		"content": "hello"
	}`)

	e, err := Decode(models.EvNewMessage, payload)
	require.NoError(t, err)

	ev, ok := e.(models.NewMessageEvent)
	require.True(t, ok, "expected value type, got %T", e)
	require.Equal(t, int64(1001), ev.ID)
	require.Equal(t, "42_7", ev.SessionID.String())
	require.Equal(t, models.SenderVisitor, ev.SenderType)
	require.Equal(t, "hello", ev.Content)
}

// 后端偶尔把会话ID编码成 JSON 数字，解码后必须与字符串形式一致
func TestDecodeNumericSessionID(t *testing.T) {
	e, err := Decode(models.EvSessionEnded, json.RawMessage(`{"sessionId": 12345}`))
	require.NoError(t, err)

	ev := e.(models.SessionEndedEvent)
	require.Equal(t, "12345", ev.SessionID.String())
}

func TestDecodeStatusUpdated(t *testing.T) {
	e, err := Decode(models.EvStatusUpdated, json.RawMessage(`{"status": "busy"}`))
	require.NoError(t, err)

	ev, ok := e.(models.StatusUpdatedEvent)
	require.True(t, ok, "expected value type, got %T", e)
	require.Equal(t, models.AgentBusy, ev.Status)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode("totally_new_event", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestDecodeMalformedPayload(t *testing.T) {
	_, err := Decode(models.EvNewMessage, json.RawMessage(`{"id": "not a number"`))
	require.Error(t, err)
}

func TestDecodeEmptyPayload(t *testing.T) {
	e, err := Decode(models.EvSessionCancelled, nil)
	require.NoError(t, err)
	ev := e.(models.SessionCancelledEvent)
	require.Equal(t, "", ev.SessionID.String())
}
