// Package orch is the session controller. It owns join and leave transitions and
// the local media toggles, and wires the registry, speaker detector and chat together.
package orch

import (
	"context"
	"fmt"
	"sync"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/app/chat"
	"github.com/dkeye/Consult/internal/app/layout"
	"github.com/dkeye/Consult/internal/app/speaker"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// Roster is the participant list together with the grid computed over it.
type Roster struct {
	Participants []domain.Participant `json:"participants"`
	Rows         []layout.Row         `json:"rows"`
	Remaining    int                  `json:"remaining"`
	RowHeight    float64              `json:"rowHeight"`
}

// Notifier receives session state changes for the hosting page.
// Methods may be called from transport or analysis goroutines and must not block.
type Notifier interface {
	OnRoster(r Roster)
	OnSpeaking(pid domain.ParticipantID, speaking bool)
	OnChat(messages []domain.ChatMessage, unread int)
	OnLeave(meeting domain.MeetingID)
}

type Orchestrator struct {
	Rooms     core.RoomProvider
	Transport core.Transport
	Devices   core.Devices
	Sink      core.Sink
	Notifier  Notifier
	Speaker   speaker.Config
	Labels    chat.Labels
	// ReleaseProbe makes mic-off open and immediately stop a throwaway capture
	// handle so the OS drops its hold on the device.
	ReleaseProbe bool

	mu   sync.Mutex
	sess *session
}

type session struct {
	meeting  domain.MeetingID
	local    domain.ParticipantID
	cameraID string
	micID    string

	cancel   context.CancelFunc
	registry *app.Registry
	detector *speaker.Detector
	chat     *chat.Synchronizer
}

func (o *Orchestrator) current() (*session, error) {
	if o.sess == nil {
		return nil, domain.ErrNotJoined
	}
	return o.sess, nil
}

func (o *Orchestrator) Joined() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.sess != nil
}

// Snapshot returns the session as the hosting page sees it.
func (o *Orchestrator) Snapshot() (domain.Session, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return domain.Session{}, err
	}
	return domain.Session{
		MeetingID:          s.meeting,
		LocalParticipantID: s.local,
		Participants:       s.registry.Snapshot(),
		ActiveSidebar:      s.chat.Sidebar(),
		UnreadCount:        s.chat.Unread(),
	}, nil
}

// Layout computes the grid over the current participant snapshot.
func (o *Orchestrator) Layout() ([]layout.Row, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return nil, err
	}
	return layout.Layout(s.registry.IDs()), nil
}

func (o *Orchestrator) ActiveSpeakers() []domain.ParticipantID {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess == nil {
		return nil
	}
	return o.sess.detector.ActiveSpeakers()
}

func (o *Orchestrator) Messages() ([]domain.ChatMessage, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return nil, err
	}
	return s.chat.Messages(), nil
}

func (o *Orchestrator) SetSidebar(sb domain.Sidebar) error {
	if !sb.Valid() {
		return fmt.Errorf("sidebar %q: %w", sb, domain.ErrUnknownSidebar)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return err
	}
	s.chat.SetSidebar(sb)
	return nil
}

func (o *Orchestrator) SendChat(ctx context.Context, text string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return err
	}
	return s.chat.Send(ctx, text)
}

func (o *Orchestrator) roster(reg *app.Registry) Roster {
	participants := reg.Snapshot()
	ids := make([]string, len(participants))
	for i, p := range participants {
		ids[i] = string(p.ID)
	}
	rows := layout.Layout(ids)
	return Roster{
		Participants: participants,
		Rows:         rows,
		Remaining:    layout.Remaining(ids),
		RowHeight:    layout.RowHeight(rows),
	}
}

func (o *Orchestrator) onSpeaking(pid domain.ParticipantID, speaking bool) {
	if o.Notifier != nil {
		o.Notifier.OnSpeaking(pid, speaking)
	}
}

func (o *Orchestrator) onChat(messages []domain.ChatMessage, unread int) {
	if o.Notifier != nil {
		o.Notifier.OnChat(messages, unread)
	}
}
