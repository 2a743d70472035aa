package chat

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memPubSub keeps per-topic history and replays all of it to subscribers on every publish.
type memPubSub struct {
	mu      sync.Mutex
	sender  domain.ParticipantID
	name    string
	history []core.RawMessage
	subs    []func([]core.RawMessage)
	fail    error
	clock   int64
}

func (p *memPubSub) Publish(_ context.Context, topic string, payload any) error {
	if p.fail != nil {
		return p.fail
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	p.deliver(core.RawMessage{SenderID: p.sender, SenderName: p.name, Payload: body})
	return nil
}

func (p *memPubSub) deliver(msg core.RawMessage) {
	p.mu.Lock()
	p.clock++
	if msg.ID == "" {
		msg.ID = time.UnixMilli(p.clock).String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = 1_700_000_000_000 + p.clock
	}
	p.history = append(p.history, msg)
	hist := append([]core.RawMessage(nil), p.history...)
	subs := append(([]func([]core.RawMessage))(nil), p.subs...)
	p.mu.Unlock()
	for _, fn := range subs {
		fn(hist)
	}
}

func (p *memPubSub) Subscribe(topic string, fn func([]core.RawMessage)) func() {
	p.mu.Lock()
	p.subs = append(p.subs, fn)
	hist := append([]core.RawMessage(nil), p.history...)
	p.mu.Unlock()
	fn(hist)
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.subs = nil
	}
}

func text(s string) json.RawMessage {
	b, _ := json.Marshal(s)
	return b
}

func TestSendLocalHelloIsNotUnread(t *testing.T) {
	ps := &memPubSub{sender: "A", name: "Alice"}
	var updates int
	s := NewSynchronizer(ps, "A", DefaultLabels(), func([]domain.ChatMessage, int) { updates++ })
	s.Start()
	defer s.Stop()

	require.NoError(t, s.Send(context.Background(), "  hello "))

	msgs := s.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "hello", msgs[0].Message)
	assert.True(t, msgs[0].IsLocal)
	assert.Equal(t, "Bạn", msgs[0].SenderName)
	assert.Equal(t, 0, s.Unread())
	assert.Equal(t, 2, updates)
}

func TestSendRejectsBlankText(t *testing.T) {
	ps := &memPubSub{sender: "A"}
	s := NewSynchronizer(ps, "A", DefaultLabels(), nil)
	s.Start()

	err := s.Send(context.Background(), " \t\n")
	assert.ErrorIs(t, err, domain.ErrEmptyMessage)
	assert.Empty(t, ps.history)
}

func TestSendWrapsTransportFailure(t *testing.T) {
	ps := &memPubSub{sender: "A", fail: errors.New("socket closed")}
	s := NewSynchronizer(ps, "A", DefaultLabels(), nil)

	err := s.Send(context.Background(), "hi")
	assert.ErrorIs(t, err, domain.ErrTransport)
}

func TestUnreadCountsRemoteMessagesWhileChatClosed(t *testing.T) {
	ps := &memPubSub{}
	s := NewSynchronizer(ps, "A", DefaultLabels(), nil)
	s.Start()

	ps.deliver(core.RawMessage{SenderID: "B", SenderName: "Bob", Payload: text("one")})
	ps.deliver(core.RawMessage{SenderID: "B", SenderName: "Bob", Payload: text("two")})
	assert.Equal(t, 2, s.Unread())

	s.SetSidebar(domain.SidebarParticipants)
	ps.deliver(core.RawMessage{SenderID: "C", SenderName: "Carol", Payload: text("three")})
	assert.Equal(t, 3, s.Unread())

	s.SetSidebar(domain.SidebarChat)
	assert.Equal(t, 0, s.Unread())

	ps.deliver(core.RawMessage{SenderID: "B", SenderName: "Bob", Payload: text("four")})
	assert.Equal(t, 0, s.Unread())

	s.SetSidebar(domain.SidebarNone)
	ps.deliver(core.RawMessage{SenderID: "A", Payload: text("mine")})
	assert.Equal(t, 0, s.Unread())
	assert.Len(t, s.Messages(), 5)
}

func TestHistoryReplayOnSubscribeCountsAsUnread(t *testing.T) {
	ps := &memPubSub{}
	ps.deliver(core.RawMessage{SenderID: "B", Payload: text("earlier")})

	s := NewSynchronizer(ps, "A", DefaultLabels(), nil)
	s.Start()

	require.Len(t, s.Messages(), 1)
	assert.Equal(t, 1, s.Unread())
}

func TestUpdateIsIdempotent(t *testing.T) {
	s := NewSynchronizer(&memPubSub{}, "A", DefaultLabels(), nil)
	clock := time.UnixMilli(5_000)
	s.now = func() time.Time { clock = clock.Add(time.Second); return clock }

	history := []core.RawMessage{
		{ID: "1", SenderID: "B", Payload: text("no timestamp")},
		{ID: "2", SenderID: "C", Payload: json.RawMessage(`{"message":"hi","senderName":"Carol","timestamp":42}`)},
	}
	s.Update(history)
	first := s.Messages()
	s.Update(history)

	assert.Equal(t, first, s.Messages())
	assert.Equal(t, 2, s.Unread())
}

func TestSetSidebarNotifiesOnlyOnChange(t *testing.T) {
	var updates int
	s := NewSynchronizer(&memPubSub{}, "A", DefaultLabels(), func([]domain.ChatMessage, int) { updates++ })

	s.SetSidebar(domain.SidebarChat)
	s.SetSidebar(domain.SidebarChat)
	assert.Equal(t, 1, updates)
	assert.Equal(t, domain.SidebarChat, s.Sidebar())
}
