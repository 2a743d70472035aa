package rtc

import (
	"slices"
	"sync"

	"github.com/dkeye/Consult/internal/core"
)

// history retains every message per topic for the lifetime of a session and
// replays the full list to subscribers whenever it grows.
type history struct {
	mu     sync.Mutex
	topics map[string]*topicLog
	nextID int
}

type topicLog struct {
	msgs []core.RawMessage
	ids  map[string]struct{}
	subs map[int]func([]core.RawMessage)
}

func newHistory() *history {
	return &history{topics: make(map[string]*topicLog)}
}

func (h *history) topicLocked(topic string) *topicLog {
	t, ok := h.topics[topic]
	if !ok {
		t = &topicLog{ids: make(map[string]struct{}), subs: make(map[int]func([]core.RawMessage))}
		h.topics[topic] = t
	}
	return t
}

// subscribe registers fn and immediately replays what is retained so far.
func (h *history) subscribe(topic string, fn func([]core.RawMessage)) func() {
	h.mu.Lock()
	t := h.topicLocked(topic)
	h.nextID++
	id := h.nextID
	t.subs[id] = fn
	snapshot := slices.Clone(t.msgs)
	h.mu.Unlock()

	fn(snapshot)
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if t, ok := h.topics[topic]; ok {
			delete(t.subs, id)
		}
	}
}

// append adds msgs not seen before and notifies subscribers when anything was added.
func (h *history) append(topic string, msgs ...core.RawMessage) {
	h.mu.Lock()
	t := h.topicLocked(topic)
	added := false
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := t.ids[m.ID]; dup {
				continue
			}
			t.ids[m.ID] = struct{}{}
		}
		t.msgs = append(t.msgs, m)
		added = true
	}
	if !added {
		h.mu.Unlock()
		return
	}
	snapshot := slices.Clone(t.msgs)
	subs := make([]func([]core.RawMessage), 0, len(t.subs))
	for _, fn := range t.subs {
		subs = append(subs, fn)
	}
	h.mu.Unlock()

	for _, fn := range subs {
		fn(snapshot)
	}
}

// reset drops retained messages and subscribers.
func (h *history) reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	clear(h.topics)
}
