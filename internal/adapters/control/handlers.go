package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Consult/internal/app/orch"
	"github.com/dkeye/Consult/internal/app/preview"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const commandTimeout = 15 * time.Second

// command is the union of every host request; each type reads only its own fields.
type command struct {
	Type        string           `json:"type"`
	DeviceID    string           `json:"deviceId"`
	On          bool             `json:"on"`
	MeetingID   domain.MeetingID `json:"meetingId"`
	DisplayName string           `json:"displayName"`
	Kind        domain.MediaKind `json:"kind"`
	Sidebar     domain.Sidebar   `json:"sidebar"`
	Text        string           `json:"text"`
	SDP         string           `json:"sdp"`

	Candidate     *webrtc.ICECandidateInit `json:"candidate"`
	ParticipantID domain.ParticipantID     `json:"participantId"`
}

func (t *tab) handle(data []byte) {
	var cmd command
	if err := json.Unmarshal(data, &cmd); err != nil {
		log.Error().Err(err).Str("module", "control").Msg("bad json")
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	switch cmd.Type {
	case "ping":
		t.emit("pong", struct {
			Type string `json:"type"`
		}{"pong"})
	case "whoami":
		t.handleWhoAmI()
	case "devices":
		t.handleDevices(ctx)
	case "preview.start":
		t.handlePreviewStart(ctx, cmd.DeviceID)
	case "preview.stop":
		t.preview.StopPreview()
		t.syncPreview()
		t.emitPreview("")
	case "preview.camera":
		t.previewOp("preview.camera", func() error { return t.preview.SelectCamera(ctx, cmd.DeviceID) })
	case "preview.microphone":
		t.previewOp("preview.microphone", func() error { return t.preview.SelectMicrophone(ctx, cmd.DeviceID) })
	case "preview.webcam":
		t.previewOp("preview.webcam", func() error { return t.preview.SetWebcamEnabled(ctx, cmd.On) })
	case "preview.mic":
		t.previewOp("preview.mic", func() error { return t.preview.SetMicrophoneEnabled(ctx, cmd.On) })
	case "join":
		t.handleJoin(ctx, cmd)
	case "leave":
		if err := t.orch.Leave(ctx); err != nil {
			t.fail("leave", err)
		}
	case "toggle":
		t.handleToggle(ctx, cmd.Kind)
	case "camera":
		if err := t.orch.SwitchCamera(ctx, cmd.DeviceID); err != nil {
			t.fail("camera", err)
		}
	case "microphone":
		if err := t.orch.SwitchMicrophone(ctx, cmd.DeviceID); err != nil {
			t.fail("microphone", err)
		}
	case "sidebar":
		if err := t.orch.SetSidebar(cmd.Sidebar); err != nil {
			t.fail("sidebar", err)
		}
	case "chat":
		t.handleChat(ctx, cmd.Text)
	case "snapshot":
		t.handleSnapshot()
	case "render.start":
		if err := t.render.start(context.Background()); err != nil {
			t.fail("render.start", err)
		}
	case "render.answer":
		if err := t.render.answer(cmd.SDP); err != nil {
			t.fail("render.answer", err)
		}
	case "render.candidate":
		if cmd.Candidate == nil {
			return
		}
		if err := t.render.candidate(*cmd.Candidate); err != nil {
			t.fail("render.candidate", err)
		}
	case "render.visible":
		t.render.setVisible(cmd.ParticipantID, cmd.On)
	default:
		log.Warn().Str("module", "control").Str("type", cmd.Type).Msg("unknown command")
	}
}

func (t *tab) handleWhoAmI() {
	resp := struct {
		Type   string        `json:"type"`
		TabID  string        `json:"tabId"`
		UserID domain.UserID `json:"userId,omitempty"`
		Joined bool          `json:"joined"`
	}{
		Type:   "whoami",
		TabID:  t.id,
		UserID: t.user,
		Joined: t.orch.Joined(),
	}
	t.emit("whoami", resp)
}

func (t *tab) handleDevices(ctx context.Context) {
	list, err := t.preview.ListDevices(ctx)
	if err != nil {
		t.fail("devices", err)
	}
	t.emit("devices", struct {
		Type string `json:"type"`
		domain.DeviceList
		Selection preview.Selection `json:"selection"`
	}{"devices", list, t.preview.Selection()})
}

func (t *tab) handlePreviewStart(ctx context.Context, cameraID string) {
	track, err := t.preview.StartPreview(ctx, cameraID)
	if err != nil {
		t.fail("preview.start", err)
		t.syncPreview()
		t.emitPreview("")
		return
	}
	t.syncPreview()
	t.emitPreview(track.ID())
}

func (t *tab) previewOp(op string, fn func() error) {
	if err := fn(); err != nil {
		t.fail(op, err)
	}
	t.syncPreview()
	t.emitPreview("")
}

func (t *tab) emitPreview(trackID string) {
	t.emit("preview", struct {
		Type      string            `json:"type"`
		Selection preview.Selection `json:"selection"`
		TrackID   string            `json:"trackId,omitempty"`
	}{"preview", t.preview.Selection(), trackID})
}

func (t *tab) handleJoin(ctx context.Context, cmd command) {
	pid, err := t.orch.Join(ctx, orch.JoinParams{
		MeetingID:   cmd.MeetingID,
		UserID:      t.user,
		TabID:       t.id,
		DisplayName: cmd.DisplayName,
		Preview:     t.preview,
	})
	if err != nil {
		t.fail("join", err)
		return
	}
	// The preview tracks now render under the local participant.
	t.Unbind(previewID, domain.KindVideo)
	t.emit("joined", struct {
		Type          string               `json:"type"`
		MeetingID     domain.MeetingID     `json:"meetingId"`
		ParticipantID domain.ParticipantID `json:"participantId"`
	}{"joined", cmd.MeetingID, pid})
	t.handleSnapshot()
}

func (t *tab) handleToggle(ctx context.Context, kind domain.MediaKind) {
	var (
		on  bool
		err error
	)
	switch kind {
	case domain.KindAudio:
		on, err = t.orch.ToggleMicrophone(ctx)
	case domain.KindVideo:
		on, err = t.orch.ToggleWebcam(ctx)
	case domain.KindScreen:
		on, err = t.orch.ToggleScreenShare(ctx)
	default:
		err = fmt.Errorf("toggle %q: %w", kind, domain.ErrUnknownKind)
	}
	if err != nil {
		t.fail("toggle", err)
		if errors.Is(err, domain.ErrNotJoined) || errors.Is(err, domain.ErrUnknownKind) {
			return
		}
	}
	t.emit("media", struct {
		Type string           `json:"type"`
		Kind domain.MediaKind `json:"kind"`
		On   bool             `json:"on"`
	}{"media", kind, on})
}

func (t *tab) handleChat(ctx context.Context, text string) {
	if !t.limiter.Allow(t.id) {
		t.fail("chat", domain.ErrRateLimited)
		return
	}
	if err := t.orch.SendChat(ctx, text); err != nil {
		t.fail("chat", err)
	}
}

func (t *tab) handleSnapshot() {
	s, err := t.orch.Snapshot()
	if err != nil {
		t.fail("snapshot", err)
		return
	}
	t.emit("session", struct {
		Type string `json:"type"`
		domain.Session
	}{"session", s})
}
