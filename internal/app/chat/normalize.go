package chat

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// SystemSenderID marks messages whose payload shape could not be understood.
const SystemSenderID domain.ParticipantID = "system"

// Labels are the display names put on messages: the local user's own messages,
// system notices and senders without a name.
type Labels struct {
	Local   string `mapstructure:"local_label"`
	System  string `mapstructure:"system_label"`
	Unknown string `mapstructure:"unknown_label"`
}

// DefaultLabels returns the Vietnamese labels the hosting page uses.
func DefaultLabels() Labels {
	return Labels{Local: "Bạn", System: "Hệ thống", Unknown: "Ẩn danh"}
}

// Stamper supplies a timestamp for a raw message that carries none. It must return
// the same value for the same key so recomputation stays deterministic.
type Stamper func(key string) int64

// Normalize turns the transport's retained history into the canonical message list.
// Duplicated deliveries collapse onto their first occurrence.
func Normalize(history []core.RawMessage, local domain.ParticipantID, labels Labels, stamp Stamper) []domain.ChatMessage {
	out := make([]domain.ChatMessage, 0, len(history))
	seen := make(map[string]struct{}, len(history))
	for _, raw := range history {
		key := dedupKey(raw)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, normalizeOne(raw, key, local, labels, stamp))
	}
	return out
}

func dedupKey(raw core.RawMessage) string {
	if raw.ID != "" {
		return raw.ID
	}
	return fmt.Sprintf("%s|%d|%s", raw.SenderID, raw.Timestamp, raw.Payload)
}

func normalizeOne(raw core.RawMessage, key string, local domain.ParticipantID, labels Labels, stamp Stamper) domain.ChatMessage {
	msg := domain.ChatMessage{
		SenderID:   raw.SenderID,
		SenderName: raw.SenderName,
		Timestamp:  raw.Timestamp,
	}

	var payload any
	if err := json.Unmarshal(raw.Payload, &payload); err != nil {
		// Not JSON at all: the transport handed us bare text.
		payload = string(raw.Payload)
	}

	switch v := payload.(type) {
	case string:
		msg.Message = v
	case map[string]any:
		if body, ok := v["message"]; ok {
			msg.Message = stringify(body)
			if name, ok := v["senderName"].(string); ok && name != "" {
				msg.SenderName = name
			}
			if id, ok := v["senderId"].(string); ok && id != "" && msg.SenderID == "" {
				msg.SenderID = domain.ParticipantID(id)
			}
			if ts, ok := timestampOf(v["timestamp"]); ok {
				msg.Timestamp = ts
			}
			break
		}
		msg = systemMessage(msg, v, labels)
	default:
		msg = systemMessage(msg, v, labels)
	}

	if msg.Timestamp == 0 && stamp != nil {
		msg.Timestamp = stamp(key)
	}
	msg.IsLocal = msg.SenderID != "" && msg.SenderID == local
	switch {
	case msg.IsLocal:
		msg.SenderName = labels.Local
	case msg.SenderName == "" && msg.SenderID != "":
		msg.SenderName = string(msg.SenderID)
	case msg.SenderName == "":
		msg.SenderName = labels.Unknown
	}
	return msg
}

func systemMessage(msg domain.ChatMessage, payload any, labels Labels) domain.ChatMessage {
	msg.Message = stringify(payload)
	msg.SenderID = SystemSenderID
	msg.SenderName = labels.System
	return msg
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// timestampOf accepts ms-epoch numbers, numeric strings and RFC 3339 strings.
func timestampOf(v any) (int64, bool) {
	switch t := v.(type) {
	case float64:
		if t > 0 {
			return int64(t), true
		}
	case string:
		t = strings.TrimSpace(t)
		if t == "" {
			return 0, false
		}
		if when, err := time.Parse(time.RFC3339Nano, t); err == nil {
			return when.UnixMilli(), true
		}
		var ms int64
		if _, err := fmt.Sscan(t, &ms); err == nil && ms > 0 {
			return ms, true
		}
	}
	return 0, false
}
