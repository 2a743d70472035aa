package chat

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedStamp(ts int64) Stamper { return func(string) int64 { return ts } }

func TestNormalizePayloadShapes(t *testing.T) {
	history := []core.RawMessage{
		{ID: "s", SenderID: "B", SenderName: "Bob", Timestamp: 10, Payload: json.RawMessage(`"plain"`)},
		{ID: "o", SenderID: "C", Payload: json.RawMessage(`{"message":"hi","senderName":"Carol","timestamp":20}`)},
		{ID: "n", SenderID: "C", Payload: json.RawMessage(`{"message":{"x":1},"senderName":"Carol"}`)},
		{ID: "w", SenderID: "D", Payload: json.RawMessage(`{"foo":"bar"}`)},
		{ID: "r", SenderID: "E", SenderName: "Eve", Timestamp: 30, Payload: json.RawMessage(`bare text`)},
		{ID: "t", SenderID: "F", Payload: json.RawMessage(`{"message":"iso","timestamp":"2024-01-02T03:04:05Z"}`)},
	}
	got := Normalize(history, "A", DefaultLabels(), fixedStamp(99))
	require.Len(t, got, 6)

	assert.Equal(t, domain.ChatMessage{SenderID: "B", SenderName: "Bob", Message: "plain", Timestamp: 10}, got[0])
	assert.Equal(t, domain.ChatMessage{SenderID: "C", SenderName: "Carol", Message: "hi", Timestamp: 20}, got[1])
	assert.Equal(t, `{"x":1}`, got[2].Message)
	assert.Equal(t, int64(99), got[2].Timestamp)

	assert.Equal(t, SystemSenderID, got[3].SenderID)
	assert.Equal(t, "Hệ thống", got[3].SenderName)
	assert.Equal(t, `{"foo":"bar"}`, got[3].Message)

	assert.Equal(t, "bare text", got[4].Message)
	assert.Equal(t, "Eve", got[4].SenderName)

	assert.Equal(t, int64(1704164645000), got[5].Timestamp)
	assert.Equal(t, "F", got[5].SenderName)
}

func TestNormalizeCollapsesDuplicates(t *testing.T) {
	history := []core.RawMessage{
		{ID: "1", SenderID: "B", Payload: json.RawMessage(`"a"`)},
		{ID: "1", SenderID: "B", Payload: json.RawMessage(`"a"`)},
		{SenderID: "B", Timestamp: 5, Payload: json.RawMessage(`"b"`)},
		{SenderID: "B", Timestamp: 5, Payload: json.RawMessage(`"b"`)},
		{SenderID: "B", Timestamp: 6, Payload: json.RawMessage(`"b"`)},
	}
	got := Normalize(history, "A", DefaultLabels(), fixedStamp(1))
	require.Len(t, got, 3)
	assert.Equal(t, []string{"a", "b", "b"}, []string{got[0].Message, got[1].Message, got[2].Message})
}

func TestNormalizeLocalSenderUsesLocalLabel(t *testing.T) {
	history := []core.RawMessage{
		{ID: "1", SenderID: "A", SenderName: "Alice", Timestamp: 1, Payload: json.RawMessage(`"mine"`)},
		{ID: "2", Timestamp: 2, Payload: json.RawMessage(`"anon"`)},
	}
	got := Normalize(history, "A", DefaultLabels(), nil)

	assert.True(t, got[0].IsLocal)
	assert.Equal(t, "Bạn", got[0].SenderName)
	assert.False(t, got[1].IsLocal)
	assert.Equal(t, "Ẩn danh", got[1].SenderName)
}
