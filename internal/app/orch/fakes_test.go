package orch

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/Consult/internal/app/chat"
	"github.com/dkeye/Consult/internal/app/speaker"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// journal records side effects in the order they happen across all fakes.
type journal struct {
	mu     sync.Mutex
	events []string
}

func (j *journal) add(format string, args ...any) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

func (j *journal) list() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return append([]string(nil), j.events...)
}

type track struct {
	j       *journal
	id      string
	kind    domain.MediaKind
	stopped bool
}

func (t *track) ID() string             { return t.id }
func (t *track) Kind() domain.MediaKind { return t.kind }
func (t *track) Stop() error {
	if !t.stopped {
		t.stopped = true
		t.j.add("stop %s", t.id)
	}
	return nil
}

type devices struct {
	j      *journal
	n      int
	fail   map[domain.MediaKind]error
	opened []*track
}

func (d *devices) open(kind domain.MediaKind) (core.Track, error) {
	if err := d.fail[kind]; err != nil {
		d.j.add("open %s failed", kind)
		return nil, err
	}
	// Real capture drivers refuse a second open while a handle is live.
	if len(d.live(kind)) > 0 {
		d.j.add("open %s busy", kind)
		return nil, fmt.Errorf("%s: driver is already opened", kind)
	}
	t := &track{j: d.j, id: fmt.Sprintf("%s-%d", kind, d.n), kind: kind}
	d.n++
	d.opened = append(d.opened, t)
	d.j.add("open %s", t.id)
	return t, nil
}

func (d *devices) live(kind domain.MediaKind) []*track {
	var out []*track
	for _, t := range d.opened {
		if t.kind == kind && !t.stopped {
			out = append(out, t)
		}
	}
	return out
}

func (d *devices) Enumerate(context.Context) ([]domain.Device, error) { return nil, nil }
func (d *devices) OpenCamera(context.Context, string) (core.Track, error) {
	return d.open(domain.KindVideo)
}
func (d *devices) OpenMicrophone(context.Context, string) (core.Track, error) {
	return d.open(domain.KindAudio)
}
func (d *devices) OpenScreen(context.Context) (core.Track, error) { return d.open(domain.KindScreen) }

type rooms struct {
	j        *journal
	validErr error
}

func (r *rooms) GetToken(context.Context) (string, error) { return "tok", nil }
func (r *rooms) CreateRoom(context.Context, string) (domain.MeetingID, error) {
	return "new-room", nil
}
func (r *rooms) ValidateRoom(_ context.Context, id domain.MeetingID, _ string) (domain.MeetingID, error) {
	r.j.add("validate %s", id)
	if r.validErr != nil {
		return "", r.validErr
	}
	return id, nil
}

type transport struct {
	j            *journal
	joinErr      error
	publishErr   error
	unpublishErr error
	leaveErr     error

	req       core.JoinRequest
	events    core.TransportEvents
	published map[domain.MediaKind]core.Track

	mu      sync.Mutex
	history []core.RawMessage
	subs    []func([]core.RawMessage)
	sender  domain.ParticipantID
}

func (t *transport) Join(_ context.Context, req core.JoinRequest, ev core.TransportEvents) error {
	t.j.add("transport join")
	if t.joinErr != nil {
		return t.joinErr
	}
	t.req, t.events, t.sender = req, ev, req.ParticipantID
	t.published = make(map[domain.MediaKind]core.Track)
	for k, tr := range req.Tracks {
		t.published[k] = tr
	}
	return nil
}

func (t *transport) Leave(context.Context) error {
	t.j.add("transport leave")
	return t.leaveErr
}

func (t *transport) PublishTrack(_ context.Context, kind domain.MediaKind, tr core.Track) error {
	if t.publishErr != nil {
		return t.publishErr
	}
	t.j.add("publish %s", tr.ID())
	t.published[kind] = tr
	return nil
}

func (t *transport) UnpublishTrack(_ context.Context, kind domain.MediaKind) error {
	if t.unpublishErr != nil {
		return t.unpublishErr
	}
	t.j.add("unpublish %s", kind)
	delete(t.published, kind)
	return nil
}

func (t *transport) Publish(_ context.Context, _ string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	t.mu.Lock()
	t.history = append(t.history, core.RawMessage{
		ID:        fmt.Sprint(len(t.history)),
		SenderID:  t.sender,
		Payload:   body,
		Timestamp: int64(len(t.history) + 1),
	})
	hist := append([]core.RawMessage(nil), t.history...)
	subs := append(([]func([]core.RawMessage))(nil), t.subs...)
	t.mu.Unlock()
	for _, fn := range subs {
		fn(hist)
	}
	return nil
}

func (t *transport) Subscribe(_ string, fn func([]core.RawMessage)) func() {
	t.mu.Lock()
	t.subs = append(t.subs, fn)
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		t.subs = nil
		t.mu.Unlock()
	}
}

type sink struct{}

func (sink) Bind(domain.ParticipantID, domain.MediaKind, core.Track) {}
func (sink) Unbind(domain.ParticipantID, domain.MediaKind)           {}

type notifier struct {
	j       *journal
	mu      sync.Mutex
	rosters []Roster
	chats   [][]domain.ChatMessage
}

func (n *notifier) OnRoster(r Roster) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.rosters = append(n.rosters, r)
}

func (n *notifier) OnSpeaking(domain.ParticipantID, bool) {}

func (n *notifier) OnChat(m []domain.ChatMessage, _ int) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.chats = append(n.chats, m)
}

func (n *notifier) OnLeave(m domain.MeetingID) { n.j.add("onLeave %s", m) }

func (n *notifier) lastRoster() Roster {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.rosters[len(n.rosters)-1]
}

type fixture struct {
	j  *journal
	o  *Orchestrator
	d  *devices
	r  *rooms
	t  *transport
	nt *notifier
}

func newFixture() *fixture {
	j := &journal{}
	f := &fixture{
		j:  j,
		d:  &devices{j: j},
		r:  &rooms{j: j},
		t:  &transport{j: j},
		nt: &notifier{j: j},
	}
	f.o = &Orchestrator{
		Rooms:        f.r,
		Transport:    f.t,
		Devices:      f.d,
		Sink:         sink{},
		Notifier:     f.nt,
		Speaker:      speaker.DefaultConfig(),
		Labels:       chat.DefaultLabels(),
		ReleaseProbe: true,
	}
	return f
}

func (f *fixture) join(mic, cam bool) (domain.ParticipantID, error) {
	return f.o.Join(context.Background(), JoinParams{
		MeetingID:   "m-1",
		UserID:      "u-1",
		DisplayName: "Alice",
		MicOn:       mic,
		WebcamOn:    cam,
	})
}
