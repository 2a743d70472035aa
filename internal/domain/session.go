package domain

type Sidebar string

const (
	SidebarNone         Sidebar = ""
	SidebarChat         Sidebar = "chat"
	SidebarParticipants Sidebar = "participants"
)

func (s Sidebar) Valid() bool {
	switch s {
	case SidebarNone, SidebarChat, SidebarParticipants:
		return true
	}
	return false
}

// Session is a read-only view of a live meeting for the hosting page.
type Session struct {
	MeetingID          MeetingID     `json:"meetingId"`
	LocalParticipantID ParticipantID `json:"localParticipantId"`
	Participants       []Participant `json:"participants"`
	ActiveSidebar      Sidebar       `json:"activeSidebar"`
	UnreadCount        int           `json:"unreadCount"`
}
