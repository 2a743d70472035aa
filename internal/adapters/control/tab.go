package control

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/app/preview"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// tab is one hosting page. It renders session events as JSON on the control socket.
type tab struct {
	id      string
	user    domain.UserID
	conn    *wsConn
	policy  app.Policy
	limiter *RateLimiter
	preview *preview.Manager
	orch    *orch.Orchestrator
	render  *renderer
}

func (t *tab) emit(event string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "control").Str("event", event).Msg("emit marshal")
		return
	}
	err = t.conn.TrySend(b)
	if !errors.Is(err, ErrBackpressure) {
		return
	}
	switch t.policy.OnBackPressure(event) {
	case app.DropFrame:
		log.Debug().Str("module", "control").Str("tab", t.id).Str("event", event).Msg("frame dropped")
	case app.KickMember:
		log.Warn().Str("module", "control").Str("tab", t.id).Str("event", event).Msg("host too slow, closing")
		t.conn.Close()
	}
}

type errorEvent struct {
	Type    string `json:"type"`
	Op      string `json:"op"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Fatal   bool   `json:"fatal"`
}

func (t *tab) fail(op string, err error) {
	log.Warn().Err(err).Str("module", "control").Str("tab", t.id).Str("op", op).Msg("command failed")
	t.emit("error", errorEvent{
		Type:    "error",
		Op:      op,
		Code:    errorCode(err),
		Message: err.Error(),
		Fatal:   orch.IsFatal(err),
	})
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "permission_denied"
	case errors.Is(err, domain.ErrDeviceAcquisitionFailed):
		return "device_acquisition_failed"
	case errors.Is(err, domain.ErrRoomInvalid):
		return "room_invalid"
	case errors.Is(err, domain.ErrRoomExpired):
		return "room_expired"
	case errors.Is(err, domain.ErrTransport):
		return "transport"
	case errors.Is(err, domain.ErrEmptyMessage):
		return "empty_message"
	case errors.Is(err, domain.ErrNotJoined):
		return "not_joined"
	case errors.Is(err, domain.ErrAlreadyJoined):
		return "already_joined"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrUnknownKind):
		return "unknown_kind"
	case errors.Is(err, domain.ErrUnknownSidebar):
		return "unknown_sidebar"
	}
	return "internal"
}

func (t *tab) OnRoster(r orch.Roster) {
	t.emit("roster", struct {
		Type string `json:"type"`
		orch.Roster
	}{"roster", r})
}

func (t *tab) OnSpeaking(pid domain.ParticipantID, speaking bool) {
	t.emit("speaking", struct {
		Type          string               `json:"type"`
		ParticipantID domain.ParticipantID `json:"participantId"`
		Speaking      bool                 `json:"speaking"`
	}{"speaking", pid, speaking})
}

func (t *tab) OnChat(messages []domain.ChatMessage, unread int) {
	t.emit("chat", struct {
		Type     string               `json:"type"`
		Messages []domain.ChatMessage `json:"messages"`
		Unread   int                  `json:"unread"`
	}{"chat", messages, unread})
}

func (t *tab) OnLeave(meeting domain.MeetingID) {
	t.emit("left", struct {
		Type      string           `json:"type"`
		MeetingID domain.MeetingID `json:"meetingId"`
	}{"left", meeting})
}

type trackEvent struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	Kind          domain.MediaKind     `json:"kind"`
	TrackID       string               `json:"trackId,omitempty"`
}

func (t *tab) Bind(pid domain.ParticipantID, kind domain.MediaKind, track core.Track) {
	t.render.bind(pid, kind, track)
	t.emit("bind", trackEvent{Type: "bind", ParticipantID: pid, Kind: kind, TrackID: track.ID()})
}

func (t *tab) Unbind(pid domain.ParticipantID, kind domain.MediaKind) {
	t.render.unbind(pid, kind)
	t.emit("unbind", trackEvent{Type: "unbind", ParticipantID: pid, Kind: kind})
}

// syncPreview renders the preview camera, if any, under the preview id.
func (t *tab) syncPreview() {
	if cam := t.preview.Camera(); cam != nil {
		t.Bind(previewID, domain.KindVideo, cam)
		return
	}
	t.Unbind(previewID, domain.KindVideo)
}

// close tears the tab down after its socket is gone.
func (t *tab) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if t.orch.Joined() {
		if err := t.orch.Leave(ctx); err != nil {
			log.Warn().Err(err).Str("module", "control").Str("tab", t.id).Msg("leave on disconnect")
		}
	}
	t.preview.StopPreview()
	t.render.close()
	t.limiter.Forget(t.id)
	log.Info().Str("module", "control").Str("tab", t.id).Msg("tab closed")
}
