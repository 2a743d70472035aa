package core

import (
	"context"

	"github.com/dkeye/Consult/internal/domain"
)

// Track is an owned handle on one live media track, local capture or remote playback.
type Track interface {
	ID() string
	Kind() domain.MediaKind
	// Stop releases the underlying hardware or network resource. Must be idempotent.
	Stop() error
}

// AudioSource is implemented by audio tracks whose samples can be analyzed.
type AudioSource interface {
	// ReadPCM blocks until the next chunk of mono samples in [-1, 1] is available.
	ReadPCM(ctx context.Context) (samples []float32, sampleRate int, err error)
}

// Devices abstracts the host capture hardware.
type Devices interface {
	Enumerate(ctx context.Context) ([]domain.Device, error)
	// OpenCamera and OpenMicrophone pick the default device when deviceID is empty.
	OpenCamera(ctx context.Context, deviceID string) (Track, error)
	OpenMicrophone(ctx context.Context, deviceID string) (Track, error)
	OpenScreen(ctx context.Context) (Track, error)
}

// Sink renders a participant track on the hosting page.
type Sink interface {
	Bind(pid domain.ParticipantID, kind domain.MediaKind, track Track)
	Unbind(pid domain.ParticipantID, kind domain.MediaKind)
}
