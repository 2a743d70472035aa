package app

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

// Policy decides what happens to an event the host page is too slow to receive.
type Policy interface {
	OnBackPressure(event string) BackpressureAction
}

// SimplePolicy drops transient speaking updates and disconnects the host for
// anything else; the host resyncs from a fresh snapshot when it reconnects.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(event string) BackpressureAction {
	switch event {
	case "speaking", "pong":
		return DropFrame
	}
	return KickMember
}
