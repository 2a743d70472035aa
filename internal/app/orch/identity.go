package orch

import (
	"github.com/dkeye/Consult/internal/domain"
	"github.com/google/uuid"
)

// participantNamespace scopes the name-based ids derived from (user, meeting).
var participantNamespace = uuid.MustParse("7f3c2a9e-5d1b-4c8e-9a64-2b0f6e1d3c57")

// ParticipantID derives the session identity. An authenticated user gets the same id
// every time they reconnect to the same meeting; otherwise the per-tab id is reused,
// and only when that is missing a fresh random id is generated.
func ParticipantID(user domain.UserID, meeting domain.MeetingID, tabID string) domain.ParticipantID {
	if user != "" {
		return domain.ParticipantID(uuid.NewSHA1(participantNamespace, []byte(string(user)+":"+string(meeting))).String())
	}
	if tabID != "" && len(tabID) <= domain.MaxParticipantIDLen {
		return domain.ParticipantID(tabID)
	}
	return domain.ParticipantID(uuid.NewString())
}
