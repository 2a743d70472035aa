package rtc

import (
	"errors"
	"fmt"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/pion/webrtc/v4"
)

// Signaling message types exchanged with the media server.
const (
	msgJoin              = "join"
	msgJoined            = "joined"
	msgLeave             = "leave"
	msgParticipantJoined = "participant_joined"
	msgParticipantLeft   = "participant_left"
	msgMedia             = "media"
	msgPublish           = "publish"
	msgMessage           = "message"
	msgOffer             = "offer"
	msgAnswer            = "answer"
	msgCandidate         = "candidate"
	msgError             = "error"
	msgPing              = "ping"
	msgPong              = "pong"
)

// Error codes the media server uses in error messages.
const (
	codeRoomInvalid = "room_invalid"
	codeRoomExpired = "room_expired"
)

type envelope struct {
	Type          string                       `json:"type"`
	MeetingID     domain.MeetingID             `json:"meetingId,omitempty"`
	ParticipantID domain.ParticipantID         `json:"participantId,omitempty"`
	DisplayName   string                       `json:"displayName,omitempty"`
	Participant   *domain.Participant          `json:"participant,omitempty"`
	Participants  []domain.Participant         `json:"participants,omitempty"`
	History       map[string][]core.RawMessage `json:"history,omitempty"`
	Kind          domain.MediaKind             `json:"kind,omitempty"`
	On            bool                         `json:"on,omitempty"`
	Topic         string                       `json:"topic,omitempty"`
	Message       *core.RawMessage             `json:"message,omitempty"`
	SDP           string                       `json:"sdp,omitempty"`
	Candidate     *webrtc.ICECandidateInit     `json:"candidate,omitempty"`
	Code          string                       `json:"code,omitempty"`
	Error         string                       `json:"error,omitempty"`
}

var errServer = errors.New("media server error")

func (e envelope) err() error {
	switch e.Code {
	case codeRoomInvalid:
		return fmt.Errorf("%s: %w", e.Error, domain.ErrRoomInvalid)
	case codeRoomExpired:
		return fmt.Errorf("%s: %w", e.Error, domain.ErrRoomExpired)
	}
	return fmt.Errorf("%s (%s): %w: %w", e.Error, e.Code, domain.ErrTransport, errServer)
}
