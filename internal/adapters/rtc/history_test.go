package rtc

import (
	"encoding/json"
	"testing"

	"github.com/dkeye/Consult/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func raw(id, text string) core.RawMessage {
	b, _ := json.Marshal(text)
	return core.RawMessage{ID: id, SenderID: "B", Payload: b}
}

func TestHistoryReplaysOnSubscribe(t *testing.T) {
	h := newHistory()
	h.append("CHAT", raw("1", "a"), raw("2", "b"))

	var got [][]core.RawMessage
	unsub := h.subscribe("CHAT", func(m []core.RawMessage) { got = append(got, m) })
	require.Len(t, got, 1)
	assert.Len(t, got[0], 2)

	h.append("CHAT", raw("3", "c"))
	require.Len(t, got, 2)
	assert.Len(t, got[1], 3)

	unsub()
	h.append("CHAT", raw("4", "d"))
	assert.Len(t, got, 2)
}

func TestHistoryDeduplicatesByID(t *testing.T) {
	h := newHistory()
	calls := 0
	h.subscribe("CHAT", func([]core.RawMessage) { calls++ })

	h.append("CHAT", raw("1", "a"))
	h.append("CHAT", raw("1", "a"))
	h.append("CHAT", raw("", "x"), raw("", "x"))

	assert.Equal(t, 3, calls)
	var last []core.RawMessage
	h.subscribe("CHAT", func(m []core.RawMessage) { last = m })
	assert.Len(t, last, 3)
}

func TestHistoryTopicsAreIndependent(t *testing.T) {
	h := newHistory()
	var chat, other int
	h.subscribe("CHAT", func(m []core.RawMessage) { chat = len(m) })
	h.subscribe("RAISE_HAND", func(m []core.RawMessage) { other = len(m) })

	h.append("RAISE_HAND", raw("1", "up"))
	assert.Equal(t, 0, chat)
	assert.Equal(t, 1, other)

	h.reset()
	h.append("CHAT", raw("1", "a"))
	assert.Equal(t, 0, chat)
}
