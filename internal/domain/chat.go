package domain

const ChatTopic = "CHAT"

// ChatMessage is one entry of the canonical chat list.
type ChatMessage struct {
	SenderID   ParticipantID `json:"senderId"`
	SenderName string        `json:"senderName"`
	Message    string        `json:"message"`
	Timestamp  int64         `json:"timestamp"` // ms since epoch
	IsLocal    bool          `json:"isLocal"`
}
