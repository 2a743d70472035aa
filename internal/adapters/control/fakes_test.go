package control

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/google/uuid"
)

type fakeTrack struct {
	id   string
	kind domain.MediaKind

	mu      sync.Mutex
	stopped bool
}

func (t *fakeTrack) ID() string             { return t.id }
func (t *fakeTrack) Kind() domain.MediaKind { return t.kind }
func (t *fakeTrack) Stop() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = true
	return nil
}

type fakeDevices struct {
	mu sync.Mutex
	n  int
}

func (d *fakeDevices) open(kind domain.MediaKind) (core.Track, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.n++
	return &fakeTrack{id: fmt.Sprintf("%s-%d", kind, d.n), kind: kind}, nil
}

func (d *fakeDevices) Enumerate(context.Context) ([]domain.Device, error) {
	return []domain.Device{
		{ID: "cam-1", Label: "Front", Kind: domain.DeviceCamera},
		{ID: "mic-1", Label: "Built-in", Kind: domain.DeviceMicrophone},
	}, nil
}

func (d *fakeDevices) OpenCamera(context.Context, string) (core.Track, error) {
	return d.open(domain.KindVideo)
}

func (d *fakeDevices) OpenMicrophone(context.Context, string) (core.Track, error) {
	return d.open(domain.KindAudio)
}

func (d *fakeDevices) OpenScreen(context.Context) (core.Track, error) {
	return d.open(domain.KindScreen)
}

type fakeRooms struct{}

func (fakeRooms) GetToken(context.Context) (string, error) { return "tok", nil }

func (fakeRooms) CreateRoom(context.Context, string) (domain.MeetingID, error) {
	return "abcd-efgh-ijkl", nil
}

func (fakeRooms) ValidateRoom(_ context.Context, id domain.MeetingID, _ string) (domain.MeetingID, error) {
	switch id {
	case "expired":
		return "", domain.ErrRoomExpired
	case "bogus":
		return "", domain.ErrRoomInvalid
	}
	return id, nil
}

type fakeTransport struct {
	mu      sync.Mutex
	local   domain.ParticipantID
	joined  bool
	left    bool
	history []core.RawMessage
	subs    map[int]func([]core.RawMessage)
	next    int
}

func (f *fakeTransport) Join(_ context.Context, req core.JoinRequest, _ core.TransportEvents) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.local = req.ParticipantID
	f.joined = true
	return nil
}

func (f *fakeTransport) Leave(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.left = true
	return nil
}

func (f *fakeTransport) hasLeft() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.left
}

func (f *fakeTransport) PublishTrack(context.Context, domain.MediaKind, core.Track) error { return nil }
func (f *fakeTransport) UnpublishTrack(context.Context, domain.MediaKind) error           { return nil }

func (f *fakeTransport) Publish(_ context.Context, _ string, payload any) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.history = append(f.history, core.RawMessage{
		ID:       uuid.NewString(),
		SenderID: f.local,
		Payload:  b,
	})
	h := append([]core.RawMessage(nil), f.history...)
	subs := make([]func([]core.RawMessage), 0, len(f.subs))
	for _, fn := range f.subs {
		subs = append(subs, fn)
	}
	f.mu.Unlock()
	for _, fn := range subs {
		fn(h)
	}
	return nil
}

func (f *fakeTransport) Subscribe(_ string, fn func([]core.RawMessage)) func() {
	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[int]func([]core.RawMessage))
	}
	id := f.next
	f.next++
	f.subs[id] = fn
	h := append([]core.RawMessage(nil), f.history...)
	f.mu.Unlock()
	fn(h)
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.subs, id)
	}
}
