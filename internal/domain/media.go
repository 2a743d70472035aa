package domain

type MediaKind string

const (
	KindAudio  MediaKind = "audio"
	KindVideo  MediaKind = "video"
	KindScreen MediaKind = "screen"
)

// Kinds lists every media kind in teardown order.
var Kinds = []MediaKind{KindAudio, KindVideo, KindScreen}

func (k MediaKind) Valid() bool {
	switch k {
	case KindAudio, KindVideo, KindScreen:
		return true
	}
	return false
}

type DeviceKind string

const (
	DeviceCamera     DeviceKind = "videoinput"
	DeviceMicrophone DeviceKind = "audioinput"
)

// Device describes one selectable capture device.
type Device struct {
	ID    string     `json:"deviceId"`
	Label string     `json:"label"`
	Kind  DeviceKind `json:"kind"`
}

// DeviceList is what the pre-join screen offers for selection.
type DeviceList struct {
	Cameras     []Device `json:"cameras"`
	Microphones []Device `json:"microphones"`
}
