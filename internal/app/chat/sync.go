// Package chat keeps the canonical chat list and the unread counter in step with
// the transport's CHAT topic.
package chat

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// UpdateFunc receives the full canonical list and the current unread count.
type UpdateFunc func(messages []domain.ChatMessage, unread int)

type Synchronizer struct {
	pubsub   core.PubSub
	local    domain.ParticipantID
	labels   Labels
	now      func() time.Time
	onUpdate UpdateFunc

	mu          sync.Mutex
	messages    []domain.ChatMessage
	unread      int
	sidebar     domain.Sidebar
	firstSeen   map[string]int64
	unsubscribe func()
}

func NewSynchronizer(ps core.PubSub, local domain.ParticipantID, labels Labels, onUpdate UpdateFunc) *Synchronizer {
	return &Synchronizer{
		pubsub:    ps,
		local:     local,
		labels:    labels,
		now:       time.Now,
		onUpdate:  onUpdate,
		firstSeen: make(map[string]int64),
	}
}

// Start subscribes to the CHAT topic. The transport replays its retained history.
func (s *Synchronizer) Start() {
	unsub := s.pubsub.Subscribe(domain.ChatTopic, s.Update)
	s.mu.Lock()
	s.unsubscribe = unsub
	s.mu.Unlock()
	log.Info().Str("module", "chat").Str("pid", string(s.local)).Msg("subscribed")
}

func (s *Synchronizer) Stop() {
	s.mu.Lock()
	unsub := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()
	if unsub != nil {
		unsub()
	}
}

// Update recomputes the canonical list from the full history and counts the
// newly appended messages that arrived while the chat panel was closed.
func (s *Synchronizer) Update(history []core.RawMessage) {
	s.mu.Lock()
	next := Normalize(history, s.local, s.labels, s.stampLocked)
	for i := len(s.messages); i < len(next); i++ {
		if !next[i].IsLocal && s.sidebar != domain.SidebarChat {
			s.unread++
		}
	}
	s.messages = next
	msgs, unread := slices.Clone(s.messages), s.unread
	s.mu.Unlock()

	s.emit(msgs, unread)
}

func (s *Synchronizer) stampLocked(key string) int64 {
	if ts, ok := s.firstSeen[key]; ok {
		return ts
	}
	ts := s.now().UnixMilli()
	s.firstSeen[key] = ts
	return ts
}

// Send publishes text as a plain string, the minimal wire form.
func (s *Synchronizer) Send(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ErrEmptyMessage
	}
	if err := s.pubsub.Publish(ctx, domain.ChatTopic, text); err != nil {
		log.Error().Err(err).Str("module", "chat").Str("pid", string(s.local)).Msg("publish failed")
		return fmt.Errorf("chat publish: %w: %w", domain.ErrTransport, err)
	}
	return nil
}

// SetSidebar records the active sidebar. Opening the chat clears the unread counter.
func (s *Synchronizer) SetSidebar(sb domain.Sidebar) {
	s.mu.Lock()
	changed := s.sidebar != sb
	s.sidebar = sb
	if sb == domain.SidebarChat {
		s.unread = 0
	}
	msgs, unread := slices.Clone(s.messages), s.unread
	s.mu.Unlock()

	if changed {
		s.emit(msgs, unread)
	}
}

func (s *Synchronizer) Sidebar() domain.Sidebar {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sidebar
}

func (s *Synchronizer) Unread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread
}

func (s *Synchronizer) Messages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.messages)
}

func (s *Synchronizer) emit(msgs []domain.ChatMessage, unread int) {
	if s.onUpdate != nil {
		s.onUpdate(msgs, unread)
	}
}
