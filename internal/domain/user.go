// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"
)

const (
	MaxParticipantIDLen = 64
	MaxDisplayNameLen   = 36
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

type (
	ParticipantID string
	MeetingID     string
	UserID        string
)

// Participant is the stable identity of one member of a live session.
// Track handles are not stored here; they belong to the stream registry entry.
type Participant struct {
	ID            ParticipantID `json:"id"`
	DisplayName   string        `json:"displayName"`
	IsLocal       bool          `json:"isLocal"`
	MicOn         bool          `json:"micOn"`
	WebcamOn      bool          `json:"webcamOn"`
	ScreenShareOn bool          `json:"screenShareOn"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id ParticipantID, displayName string, local bool) (*Participant, error) {
	p := &Participant{ID: id, IsLocal: local}
	if err := p.SetDisplayName(displayName); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Participant) SetDisplayName(name string) error {
	if len(name) == 0 {
		return ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return ErrDisplayNameTooLong
	}
	p.DisplayName = name
	return nil
}

// Flag reports the on/off flag that gates the given media kind.
func (p *Participant) Flag(kind MediaKind) bool {
	switch kind {
	case KindAudio:
		return p.MicOn
	case KindVideo:
		return p.WebcamOn
	case KindScreen:
		return p.ScreenShareOn
	}
	return false
}

func (p *Participant) SetFlag(kind MediaKind, on bool) {
	switch kind {
	case KindAudio:
		p.MicOn = on
	case KindVideo:
		p.WebcamOn = on
	case KindScreen:
		p.ScreenShareOn = on
	}
}
