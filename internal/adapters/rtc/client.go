// Package rtc is the client of the external real-time media server: websocket
// signaling, one pion peer connection, and the retained pub/sub channel.
package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type remoteKey struct {
	pid  domain.ParticipantID
	kind domain.MediaKind
}

// Client implements core.Transport. One Client serves one session at a time.
type Client struct {
	cfg     config.RTC
	dialer  *websocket.Dialer
	history *history
	now     func() time.Time

	mu      sync.Mutex
	sig     *signalConn
	conn    *Connection
	events  core.TransportEvents
	local   domain.ParticipantID
	name    string
	cancel  context.CancelFunc
	pending chan envelope
	out     map[domain.MediaKind]*outbound
	remotes map[remoteKey]core.Track
}

func NewClient(cfg config.RTC) *Client {
	return &Client{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout},
		history: newHistory(),
		now:     time.Now,
	}
}

// Join connects to the media server, waits for the join acknowledgement and
// starts publishing req.Tracks. The tracks stay owned by the caller.
func (c *Client) Join(ctx context.Context, req core.JoinRequest, events core.TransportEvents) error {
	c.mu.Lock()
	if c.sig != nil {
		c.mu.Unlock()
		return domain.ErrAlreadyJoined
	}
	c.mu.Unlock()

	sig, err := dialSignal(ctx, c.dialer, c.cfg.SignalURL, req.Token, max(c.cfg.SendBuffer, 8))
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.cfg.SignalURL, err)
	}
	sessCtx, cancel := context.WithCancel(context.Background())
	reply := make(chan envelope, 1)

	c.mu.Lock()
	c.sig, c.events, c.cancel, c.pending = sig, events, cancel, reply
	c.local, c.name = req.ParticipantID, req.DisplayName
	c.out = make(map[domain.MediaKind]*outbound)
	c.remotes = make(map[remoteKey]core.Track)
	c.mu.Unlock()

	go sig.writePump()
	go sig.readPump(sessCtx, c.handle, c.onSignalClosed)

	if err := sig.TrySend(envelope{
		Type:          msgJoin,
		MeetingID:     req.MeetingID,
		ParticipantID: req.ParticipantID,
		DisplayName:   req.DisplayName,
	}); err != nil {
		c.teardown()
		return fmt.Errorf("send join: %w", err)
	}

	var ack envelope
	select {
	case <-ctx.Done():
		c.teardown()
		return ctx.Err()
	case ack = <-reply:
	}
	if ack.Type == msgError {
		c.teardown()
		return ack.err()
	}

	conn, err := NewConnection(WebRTCConfig(c.cfg.ICEServers), req.ParticipantID)
	if err != nil {
		c.teardown()
		return fmt.Errorf("peer connection: %w", err)
	}
	conn.OnICECandidate(func(ci webrtc.ICECandidateInit) {
		_ = sig.TrySend(envelope{Type: msgCandidate, Candidate: &ci})
	})
	conn.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		c.onRemoteTrack(ctx, track)
	})
	conn.OnClosed(func() {
		log.Warn().Str("module", "rtc").Str("pid", string(req.ParticipantID)).Msg("peer connection closed")
	})
	if err := conn.Start(sessCtx); err != nil {
		conn.Close()
		c.teardown()
		return fmt.Errorf("peer connection start: %w", err)
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	for topic, msgs := range ack.History {
		c.history.append(topic, msgs...)
	}
	for _, p := range ack.Participants {
		if p.ID != req.ParticipantID {
			events.OnParticipantJoined(p)
		}
	}

	published := 0
	for kind, t := range req.Tracks {
		if err := c.startPublishing(sessCtx, kind, t); err != nil {
			log.Error().Err(err).Str("module", "rtc").Str("kind", string(kind)).Msg("initial publish")
			continue
		}
		published++
	}
	if published > 0 {
		if err := c.negotiate(); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("initial offer")
		}
	}

	log.Info().
		Str("module", "rtc").
		Str("meeting", string(req.MeetingID)).
		Str("pid", string(req.ParticipantID)).
		Int("participants", len(ack.Participants)).
		Int("published", published).
		Msg("joined media server")
	return nil
}

func (c *Client) Leave(context.Context) error {
	c.mu.Lock()
	sig := c.sig
	c.mu.Unlock()
	if sig == nil {
		return domain.ErrNotJoined
	}
	err := sig.TrySend(envelope{Type: msgLeave})
	c.teardown()
	if err != nil {
		return fmt.Errorf("send leave: %w", err)
	}
	return nil
}

// teardown releases network resources. Capture tracks are left to their owner.
func (c *Client) teardown() {
	c.mu.Lock()
	sig, conn, cancel := c.sig, c.conn, c.cancel
	out, remotes := c.out, c.remotes
	c.sig, c.conn, c.cancel, c.pending, c.events = nil, nil, nil, nil, nil
	c.out, c.remotes = nil, nil
	c.mu.Unlock()

	for _, o := range out {
		o.stop(nil)
	}
	for _, t := range remotes {
		_ = t.Stop()
	}
	if conn != nil {
		conn.Close()
	}
	if sig != nil {
		sig.Close()
	}
	if cancel != nil {
		cancel()
	}
	c.history.reset()
}

func (c *Client) onSignalClosed() {
	c.mu.Lock()
	pending := c.pending
	c.pending = nil
	c.mu.Unlock()
	if pending != nil {
		pending <- envelope{Type: msgError, Error: "signaling closed"}
	}
}

func (c *Client) PublishTrack(ctx context.Context, kind domain.MediaKind, track core.Track) error {
	c.mu.Lock()
	joined := c.conn != nil
	c.mu.Unlock()
	if !joined {
		return domain.ErrNotJoined
	}
	if err := c.startPublishing(ctx, kind, track); err != nil {
		return err
	}
	if err := c.send(envelope{Type: msgMedia, Kind: kind, On: true}); err != nil {
		return err
	}
	return c.negotiate()
}

func (c *Client) UnpublishTrack(_ context.Context, kind domain.MediaKind) error {
	c.mu.Lock()
	conn := c.conn
	o, ok := c.out[kind]
	if ok {
		delete(c.out, kind)
	}
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotJoined
	}
	if ok {
		o.stop(conn)
	}
	if err := c.send(envelope{Type: msgMedia, Kind: kind, On: false}); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return c.negotiate()
}

func (c *Client) startPublishing(ctx context.Context, kind domain.MediaKind, track core.Track) error {
	c.mu.Lock()
	conn, local := c.conn, c.local
	old := c.out[kind]
	delete(c.out, kind)
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotJoined
	}
	if old != nil {
		old.stop(conn)
	}
	// Outbound pumps live as long as the session, not the caller's request.
	o, err := publish(context.WithoutCancel(ctx), conn, local, kind, track, c.cfg.MTU)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.out != nil {
		c.out[kind] = o
	}
	c.mu.Unlock()
	return nil
}

func (c *Client) negotiate() error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return domain.ErrNotJoined
	}
	offer, err := conn.CreateOffer()
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	return c.send(envelope{Type: msgOffer, SDP: offer.SDP})
}

func (c *Client) send(e envelope) error {
	c.mu.Lock()
	sig := c.sig
	c.mu.Unlock()
	if sig == nil {
		return domain.ErrNotJoined
	}
	return sig.TrySend(e)
}

// Publish sends payload on topic. The message is retained locally right away;
// the server echo carries the same id and is deduplicated.
func (c *Client) Publish(_ context.Context, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}
	c.mu.Lock()
	local, name := c.local, c.name
	c.mu.Unlock()
	msg := core.RawMessage{
		ID:         uuid.NewString(),
		SenderID:   local,
		SenderName: name,
		Payload:    body,
		Timestamp:  c.now().UnixMilli(),
	}
	if err := c.send(envelope{Type: msgPublish, Topic: topic, Message: &msg}); err != nil {
		return err
	}
	c.history.append(topic, msg)
	return nil
}

func (c *Client) Subscribe(topic string, fn func([]core.RawMessage)) func() {
	return c.history.subscribe(topic, fn)
}

func (c *Client) handle(data []byte) {
	var e envelope
	if err := json.Unmarshal(data, &e); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("bad json")
		return
	}

	c.mu.Lock()
	events, conn, local := c.events, c.conn, c.local
	pending := c.pending
	if e.Type == msgJoined || (e.Type == msgError && pending != nil) {
		c.pending = nil
	}
	c.mu.Unlock()

	switch e.Type {
	case msgJoined:
		if pending != nil {
			pending <- e
		}
	case msgError:
		if pending != nil {
			pending <- e
			return
		}
		log.Error().Str("module", "rtc").Str("code", e.Code).Str("error", e.Error).Msg("media server error")
	case msgParticipantJoined:
		if events != nil && e.Participant != nil && e.Participant.ID != local {
			events.OnParticipantJoined(*e.Participant)
		}
	case msgParticipantLeft:
		c.dropRemotes(e.ParticipantID)
		if events != nil {
			events.OnParticipantLeft(e.ParticipantID)
		}
	case msgMedia:
		if e.On || events == nil {
			return
		}
		c.mu.Lock()
		delete(c.remotes, remoteKey{e.ParticipantID, e.Kind})
		c.mu.Unlock()
		events.OnTrackChanged(e.ParticipantID, e.Kind, nil)
	case msgMessage:
		if e.Message != nil {
			c.history.append(e.Topic, *e.Message)
		}
	case msgOffer:
		c.answer(conn, e.SDP)
	case msgAnswer:
		if conn == nil {
			return
		}
		if err := conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: e.SDP}); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("apply answer")
		}
	case msgCandidate:
		if conn == nil || e.Candidate == nil {
			return
		}
		if err := conn.AddICECandidate(*e.Candidate); err != nil {
			log.Error().Err(err).Str("module", "rtc").Msg("add ice candidate")
		}
	case msgPong:
	default:
		log.Warn().Str("module", "rtc").Str("type", e.Type).Msg("unknown signal")
	}
}

func (c *Client) answer(conn *Connection, sdp string) {
	if conn == nil {
		return
	}
	answer, err := conn.ApplyOfferAndCreateAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp})
	if err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("apply offer")
		return
	}
	if err := c.send(envelope{Type: msgAnswer, SDP: answer.SDP}); err != nil {
		log.Error().Err(err).Str("module", "rtc").Msg("send answer")
	}
}

func (c *Client) onRemoteTrack(ctx context.Context, track *webrtc.TrackRemote) {
	pid := domain.ParticipantID(track.StreamID())
	rt := newRemoteTrack(ctx, pid, track)
	key := remoteKey{pid, rt.Kind()}

	c.mu.Lock()
	events := c.events
	if c.remotes == nil {
		c.mu.Unlock()
		_ = rt.Stop()
		return
	}
	c.remotes[key] = rt
	c.mu.Unlock()

	if events != nil {
		events.OnTrackChanged(pid, key.kind, rt)
	}
}

// dropRemotes forgets the participant's remote tracks. Stopping them is the
// registry's job once it sees the leave.
func (c *Client) dropRemotes(pid domain.ParticipantID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.remotes {
		if key.pid == pid {
			delete(c.remotes, key)
		}
	}
}
