package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/Consult/internal/adapters/rtc"
	"github.com/dkeye/Consult/internal/app/sfu"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// previewID is the participant id local preview tracks are rendered under before join.
const previewID domain.ParticipantID = "preview"

type bindKey struct {
	pid  domain.ParticipantID
	kind domain.MediaKind
}

type binding struct {
	source sfu.Source
	out    *sfu.OutTrack
	sender *webrtc.RTPSender
	muted  bool
}

// renderer delivers bound tracks to the hosting page over a loopback peer
// connection. Every binding is one sender whose stream id is the participant
// id and whose track id is the media kind. The agent always offers.
type renderer struct {
	key  string
	emit func(event string, v any)

	mu          sync.Mutex
	conn        *rtc.Connection
	ctx         context.Context
	cancel      context.CancelFunc
	bindings    map[bindKey]*binding
	negotiating bool
	pending     bool
}

func newRenderer(key string, emit func(string, any)) *renderer {
	return &renderer{key: key, emit: emit, bindings: make(map[bindKey]*binding)}
}

// bind replaces whatever was bound for (pid, kind). Tracks that cannot be
// relayed are ignored.
func (r *renderer) bind(pid domain.ParticipantID, kind domain.MediaKind, track core.Track) {
	src, ok := track.(sfu.Source)
	if !ok {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := bindKey{pid, kind}
	if old, ok := r.bindings[k]; ok {
		r.detachLocked(k, old)
	}
	b := &binding{source: src}
	r.bindings[k] = b
	if r.conn == nil {
		return
	}
	if err := r.attachLocked(k, b); err != nil {
		log.Warn().Err(err).Str("module", "control.render").Str("pid", string(pid)).Str("kind", string(kind)).Msg("attach")
		return
	}
	r.renegotiateLocked()
}

func (r *renderer) unbind(pid domain.ParticipantID, kind domain.MediaKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := bindKey{pid, kind}
	b, ok := r.bindings[k]
	if !ok {
		return
	}
	delete(r.bindings, k)
	if r.detachLocked(k, b) {
		r.renegotiateLocked()
	}
}

// setVisible pauses or resumes forwarding for one participant without renegotiating.
func (r *renderer) setVisible(pid domain.ParticipantID, visible bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, b := range r.bindings {
		if k.pid != pid || k.kind == domain.KindAudio {
			continue
		}
		b.muted = !visible
		if b.out == nil {
			continue
		}
		if visible {
			b.out.MarkOk()
		} else {
			b.out.MarkMuted()
		}
	}
}

// start opens a fresh loopback connection carrying every current binding and offers it.
func (r *renderer) start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()

	conn, err := rtc.NewConnection(webrtc.Configuration{}, domain.ParticipantID("render:"+r.key))
	if err != nil {
		return fmt.Errorf("render connection: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	if err := conn.Start(ctx); err != nil {
		cancel()
		conn.Close()
		return fmt.Errorf("render connection: %w", err)
	}
	r.conn, r.ctx, r.cancel = conn, ctx, cancel
	r.negotiating, r.pending = false, false

	for k, b := range r.bindings {
		if err := r.attachLocked(k, b); err != nil {
			log.Warn().Err(err).Str("module", "control.render").Str("pid", string(k.pid)).Str("kind", string(k.kind)).Msg("attach")
		}
	}
	r.renegotiateLocked()
	return nil
}

func (r *renderer) attachLocked(k bindKey, b *binding) error {
	local, err := webrtc.NewTrackLocalStaticRTP(b.source.Codec(), string(k.kind), string(k.pid))
	if err != nil {
		return err
	}
	sender, err := r.conn.AddLocalTrack(local)
	if err != nil {
		return err
	}
	b.sender = sender
	b.out = sfu.NewOutTrack(local)
	if b.muted {
		b.out.MarkMuted()
	}
	b.source.Relay().AddOutTrack(r.relayKey(k), b.out)
	go drainRTCP(r.ctx, sender)
	return nil
}

func (r *renderer) relayKey(k bindKey) string {
	return r.key + "/" + string(k.pid) + "/" + string(k.kind)
}

// detachLocked reports whether a sender was removed from the connection.
func (r *renderer) detachLocked(k bindKey, b *binding) bool {
	if b.out == nil {
		return false
	}
	b.source.Relay().Remove(r.relayKey(k))
	b.out = nil
	removed := false
	if r.conn != nil && b.sender != nil {
		if err := r.conn.RemoveLocalTrack(b.sender); err != nil {
			log.Debug().Err(err).Str("module", "control.render").Msg("remove track")
		} else {
			removed = true
		}
	}
	b.sender = nil
	return removed
}

func (r *renderer) renegotiateLocked() {
	if r.conn == nil {
		return
	}
	if r.negotiating {
		r.pending = true
		return
	}
	r.negotiating = true
	conn := r.conn
	go r.offer(conn)
}

func (r *renderer) offer(conn *rtc.Connection) {
	desc, err := conn.CreateOffer()
	if err != nil {
		log.Error().Err(err).Str("module", "control.render").Msg("create offer")
		r.mu.Lock()
		if r.conn == conn {
			r.negotiating = false
		}
		r.mu.Unlock()
		return
	}
	r.emit("render.offer", struct {
		Type string `json:"type"`
		SDP  string `json:"sdp"`
	}{"render.offer", desc.SDP})
}

func (r *renderer) answer(sdp string) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errRenderNotStarted
	}
	if err := conn.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp}); err != nil {
		return fmt.Errorf("render answer: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.conn != conn {
		return nil
	}
	r.negotiating = false
	if r.pending {
		r.pending = false
		r.renegotiateLocked()
	}
	return nil
}

func (r *renderer) candidate(c webrtc.ICECandidateInit) error {
	r.mu.Lock()
	conn := r.conn
	r.mu.Unlock()
	if conn == nil {
		return errRenderNotStarted
	}
	return conn.AddICECandidate(c)
}

func (r *renderer) closeLocked() {
	for k, b := range r.bindings {
		if b.out != nil {
			b.source.Relay().Remove(r.relayKey(k))
			b.out, b.sender = nil, nil
		}
	}
	if r.conn != nil {
		r.cancel()
		r.conn.Close()
		r.conn, r.ctx, r.cancel = nil, nil, nil
	}
}

func (r *renderer) close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeLocked()
	r.bindings = make(map[bindKey]*binding)
}

var errRenderNotStarted = errors.New("render not started")

func drainRTCP(ctx context.Context, sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		if _, _, err := sender.Read(buf); err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Debug().Err(err).Str("module", "control.render").Msg("rtcp read ended")
			}
			return
		}
	}
}
