package rtc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mediaServer is a scripted signaling peer. onJoin decides the reply to a join.
type mediaServer struct {
	t      *testing.T
	onJoin func(envelope) envelope

	mu       sync.Mutex
	received []envelope
	auth     string
	conn     *websocket.Conn
}

func (s *mediaServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.t.Errorf("upgrade: %v", err)
		return
	}
	s.mu.Lock()
	s.conn, s.auth = ws, r.Header.Get("Authorization")
	s.mu.Unlock()

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		var e envelope
		if err := json.Unmarshal(data, &e); err != nil {
			s.t.Errorf("bad frame: %v", err)
			return
		}
		s.mu.Lock()
		s.received = append(s.received, e)
		s.mu.Unlock()
		if e.Type == msgJoin {
			s.push(s.onJoin(e))
		}
	}
}

func (s *mediaServer) push(e envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.conn.WriteJSON(e); err != nil {
		s.t.Errorf("push %s: %v", e.Type, err)
	}
}

func (s *mediaServer) authorization() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *mediaServer) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.received))
	for i, e := range s.received {
		out[i] = e.Type
	}
	return out
}

func (s *mediaServer) last(kind string) (envelope, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.received) - 1; i >= 0; i-- {
		if s.received[i].Type == kind {
			return s.received[i], true
		}
	}
	return envelope{}, false
}

type events struct {
	mu     sync.Mutex
	log    []string
	joined []domain.Participant
}

func (e *events) OnParticipantJoined(p domain.Participant) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.joined = append(e.joined, p)
	e.log = append(e.log, "joined "+string(p.ID))
}

func (e *events) OnParticipantLeft(pid domain.ParticipantID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, "left "+string(pid))
}

func (e *events) OnTrackChanged(pid domain.ParticipantID, kind domain.MediaKind, track core.Track) {
	e.mu.Lock()
	defer e.mu.Unlock()
	state := "on"
	if track == nil {
		state = "off"
	}
	e.log = append(e.log, "track "+string(pid)+" "+string(kind)+" "+state)
}

func (e *events) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.log...)
}

func startServer(t *testing.T, onJoin func(envelope) envelope) (*mediaServer, *Client) {
	t.Helper()
	srv := &mediaServer{t: t, onJoin: onJoin}
	hs := httptest.NewServer(srv)
	t.Cleanup(hs.Close)

	client := NewClient(config.RTC{
		SignalURL:        "ws" + strings.TrimPrefix(hs.URL, "http"),
		MTU:              1200,
		HandshakeTimeout: time.Second,
		SendBuffer:       16,
	})
	return srv, client
}

func joinRequest() core.JoinRequest {
	return core.JoinRequest{MeetingID: "m-1", ParticipantID: "A", DisplayName: "Alice", Token: "jwt-token"}
}

func TestJoinRoomErrors(t *testing.T) {
	cases := map[string]error{
		codeRoomInvalid: domain.ErrRoomInvalid,
		codeRoomExpired: domain.ErrRoomExpired,
		"overloaded":    domain.ErrTransport,
	}
	for code, want := range cases {
		t.Run(code, func(t *testing.T) {
			_, client := startServer(t, func(envelope) envelope {
				return envelope{Type: msgError, Code: code, Error: "nope"}
			})
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			err := client.Join(ctx, joinRequest(), &events{})
			assert.ErrorIs(t, err, want)
			assert.ErrorIs(t, client.Leave(ctx), domain.ErrNotJoined)
		})
	}
}

func TestJoinDeliversRosterAndHistory(t *testing.T) {
	hello, _ := json.Marshal("hello")
	srv, client := startServer(t, func(e envelope) envelope {
		return envelope{
			Type: msgJoined,
			Participants: []domain.Participant{
				{ID: e.ParticipantID, DisplayName: e.DisplayName},
				{ID: "B", DisplayName: "Bob"},
			},
			History: map[string][]core.RawMessage{
				domain.ChatTopic: {{ID: "h1", SenderID: "B", SenderName: "Bob", Payload: hello, Timestamp: 1}},
			},
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ev := &events{}

	require.NoError(t, client.Join(ctx, joinRequest(), ev))
	assert.Equal(t, "jwt-token", srv.authorization())
	assert.Equal(t, []string{"joined B"}, ev.list())
	assert.ErrorIs(t, client.Join(ctx, joinRequest(), ev), domain.ErrAlreadyJoined)

	var mu sync.Mutex
	var seen []core.RawMessage
	client.Subscribe(domain.ChatTopic, func(h []core.RawMessage) {
		mu.Lock()
		defer mu.Unlock()
		seen = h
	})
	count := func() int {
		mu.Lock()
		defer mu.Unlock()
		return len(seen)
	}
	assert.Equal(t, 1, count())

	require.NoError(t, client.Publish(ctx, domain.ChatTopic, "hi"))
	assert.Equal(t, 2, count())
	require.Eventually(t, func() bool { _, ok := srv.last(msgPublish); return ok }, 2*time.Second, 10*time.Millisecond)

	pub, _ := srv.last(msgPublish)
	require.NotNil(t, pub.Message)
	assert.Equal(t, domain.ParticipantID("A"), pub.Message.SenderID)
	assert.JSONEq(t, `"hi"`, string(pub.Message.Payload))

	// The server echo carries the same id and must not duplicate.
	srv.push(envelope{Type: msgMessage, Topic: domain.ChatTopic, Message: pub.Message})
	other, _ := json.Marshal("welcome")
	srv.push(envelope{Type: msgMessage, Topic: domain.ChatTopic, Message: &core.RawMessage{ID: "h2", SenderID: "B", Payload: other}})
	require.Eventually(t, func() bool { return count() == 3 }, 2*time.Second, 10*time.Millisecond)

	srv.push(envelope{Type: msgMedia, ParticipantID: "B", Kind: domain.KindVideo, On: false})
	srv.push(envelope{Type: msgParticipantLeft, ParticipantID: "B"})
	require.Eventually(t, func() bool { return len(ev.list()) == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"joined B", "track B video off", "left B"}, ev.list())

	require.NoError(t, client.Leave(ctx))
	require.Eventually(t, func() bool { _, ok := srv.last(msgLeave); return ok }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, msgJoin, srv.types()[0])
}

func TestPublishRequiresSession(t *testing.T) {
	client := NewClient(config.RTC{SignalURL: "ws://127.0.0.1:1/rtc"})
	ctx := context.Background()

	assert.ErrorIs(t, client.Publish(ctx, domain.ChatTopic, "hi"), domain.ErrNotJoined)
	assert.ErrorIs(t, client.UnpublishTrack(ctx, domain.KindAudio), domain.ErrNotJoined)
	assert.ErrorIs(t, client.PublishTrack(ctx, domain.KindAudio, nil), domain.ErrNotJoined)
}

func TestCodecName(t *testing.T) {
	assert.Equal(t, "opus", codecName("audio/opus"))
	assert.Equal(t, "VP8", codecName("video/VP8"))
	assert.Equal(t, "raw", codecName("raw"))
}
