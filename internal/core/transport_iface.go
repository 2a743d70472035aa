package core

import (
	"context"
	"encoding/json"

	"github.com/dkeye/Consult/internal/domain"
)

// RawMessage is one entry of the transport's retained pub/sub history.
type RawMessage struct {
	ID         string               `json:"id"`
	SenderID   domain.ParticipantID `json:"senderId"`
	SenderName string               `json:"senderName"`
	Payload    json.RawMessage      `json:"payload"`
	Timestamp  int64                `json:"timestamp"` // ms since epoch, 0 when unknown
}

// PubSub is a named publish/subscribe channel with full history retention.
type PubSub interface {
	Publish(ctx context.Context, topic string, payload any) error
	// Subscribe calls fn with the full retained history every time it changes.
	Subscribe(topic string, fn func(history []RawMessage)) (unsubscribe func())
}

// TransportEvents receives participant and track notifications from the transport.
type TransportEvents interface {
	OnParticipantJoined(p domain.Participant)
	OnParticipantLeft(pid domain.ParticipantID)
	// OnTrackChanged reports a remote track; track is nil when the kind turned off.
	OnTrackChanged(pid domain.ParticipantID, kind domain.MediaKind, track Track)
}

type JoinRequest struct {
	MeetingID     domain.MeetingID
	ParticipantID domain.ParticipantID
	DisplayName   string
	Token         string
	Tracks        map[domain.MediaKind]Track
}

// Transport is the external real-time media collaborator.
// The adapter owns signaling and peer connection resources.
type Transport interface {
	PubSub
	Join(ctx context.Context, req JoinRequest, events TransportEvents) error
	Leave(ctx context.Context) error
	PublishTrack(ctx context.Context, kind domain.MediaKind, track Track) error
	UnpublishTrack(ctx context.Context, kind domain.MediaKind) error
}

// RoomProvider issues tokens and validates rooms at join time.
type RoomProvider interface {
	GetToken(ctx context.Context) (string, error)
	CreateRoom(ctx context.Context, token string) (domain.MeetingID, error)
	ValidateRoom(ctx context.Context, id domain.MeetingID, token string) (domain.MeetingID, error)
}
