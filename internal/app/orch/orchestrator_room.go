package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/app/chat"
	"github.com/dkeye/Consult/internal/app/preview"
	"github.com/dkeye/Consult/internal/app/speaker"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// JoinParams is what the hosting page hands over when the user enters a meeting.
type JoinParams struct {
	MeetingID   domain.MeetingID
	UserID      domain.UserID
	TabID       string
	DisplayName string
	// Preview, when set, gives its live tracks and device selection to the session.
	Preview *preview.Manager
	// Used only without Preview.
	MicOn    bool
	WebcamOn bool
}

// Join validates the room, then takes over the local media and enters the meeting.
// Room validation errors are returned before any device is touched.
func (o *Orchestrator) Join(ctx context.Context, p JoinParams) (domain.ParticipantID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.sess != nil {
		return "", domain.ErrAlreadyJoined
	}

	local, err := domain.NewParticipant("", p.DisplayName, true)
	if err != nil {
		return "", fmt.Errorf("join: %w", err)
	}

	token, err := o.Rooms.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("join: token: %w", err)
	}
	meeting, err := o.Rooms.ValidateRoom(ctx, p.MeetingID, token)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Str("meeting", string(p.MeetingID)).Msg("room rejected")
		return "", fmt.Errorf("join %s: %w", p.MeetingID, err)
	}
	local.ID = ParticipantID(p.UserID, meeting, p.TabID)

	s := &session{meeting: meeting, local: local.ID}
	tracks := o.takeLocalMedia(ctx, s, p)

	sessCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.detector = speaker.NewDetector(sessCtx, o.Speaker, o.onSpeaking)
	s.registry = app.NewRegistry(o.Sink, s.detector.Analyze)
	reg := s.registry
	reg.OnRosterChanged(func() {
		if o.Notifier != nil {
			o.Notifier.OnRoster(o.roster(reg))
		}
	})

	reg.Add(*local)
	for kind, t := range tracks {
		if err := reg.Attach(local.ID, kind, t); err != nil {
			log.Error().Err(err).Str("module", "orch").Str("kind", string(kind)).Msg("attach local track")
		}
	}

	req := core.JoinRequest{
		MeetingID:     meeting,
		ParticipantID: local.ID,
		DisplayName:   local.DisplayName,
		Token:         token,
		Tracks:        tracks,
	}
	if err := o.Transport.Join(ctx, req, reg); err != nil {
		reg.Clear()
		s.detector.StopAll()
		cancel()
		log.Error().Err(err).Str("module", "orch").Str("meeting", string(meeting)).Msg("transport join failed")
		return "", fmt.Errorf("join %s: %w: %w", meeting, domain.ErrTransport, err)
	}

	s.chat = chat.NewSynchronizer(o.Transport, local.ID, o.Labels, o.onChat)
	o.sess = s
	s.chat.Start()

	log.Info().
		Str("module", "orch").
		Str("meeting", string(meeting)).
		Str("pid", string(local.ID)).
		Int("tracks", len(tracks)).
		Msg("joined")
	return local.ID, nil
}

// takeLocalMedia adopts the preview tracks, or opens devices per the initial preference.
// Acquisition failures degrade the kind to off and never abort the join.
func (o *Orchestrator) takeLocalMedia(ctx context.Context, s *session, p JoinParams) map[domain.MediaKind]core.Track {
	if p.Preview != nil {
		tracks, sel := p.Preview.Handoff()
		s.cameraID, s.micID = sel.CameraID, sel.MicrophoneID
		return tracks
	}
	tracks := make(map[domain.MediaKind]core.Track, 2)
	if p.MicOn {
		if t, err := o.Devices.OpenMicrophone(ctx, ""); err != nil {
			log.Warn().Err(err).Str("module", "orch").Msg("microphone unavailable, joining muted")
		} else {
			tracks[domain.KindAudio] = t
		}
	}
	if p.WebcamOn {
		if t, err := o.Devices.OpenCamera(ctx, ""); err != nil {
			log.Warn().Err(err).Str("module", "orch").Msg("camera unavailable, joining without video")
		} else {
			tracks[domain.KindVideo] = t
		}
	}
	return tracks
}

// Leave stops all local tracks, cancels analysis, leaves the transport and then
// tells the hosting page the session is over. A transport failure is returned
// but the local session is ended regardless.
func (o *Orchestrator) Leave(ctx context.Context) error {
	o.mu.Lock()
	s, err := o.current()
	if err != nil {
		o.mu.Unlock()
		return err
	}
	o.sess = nil
	o.mu.Unlock()

	s.chat.Stop()
	s.registry.Clear()
	s.detector.StopAll()
	s.cancel()

	leaveErr := o.Transport.Leave(ctx)
	if leaveErr != nil {
		log.Error().Err(leaveErr).Str("module", "orch").Str("meeting", string(s.meeting)).Msg("transport leave failed")
		leaveErr = fmt.Errorf("leave %s: %w: %w", s.meeting, domain.ErrTransport, leaveErr)
	}

	if o.Notifier != nil {
		o.Notifier.OnLeave(s.meeting)
	}
	log.Info().Str("module", "orch").Str("meeting", string(s.meeting)).Str("pid", string(s.local)).Msg("left")
	return leaveErr
}

// IsFatal reports whether err ends the session attempt and must be shown as a blocking screen.
func IsFatal(err error) bool {
	return errors.Is(err, domain.ErrRoomInvalid) || errors.Is(err, domain.ErrRoomExpired)
}
