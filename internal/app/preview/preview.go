// Package preview owns the local camera and microphone before a session starts.
package preview

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// Selection is what the user picked on the preview screen.
type Selection struct {
	CameraID     string `json:"cameraId"`
	MicrophoneID string `json:"microphoneId"`
	WebcamOn     bool   `json:"webcamOn"`
	MicOn        bool   `json:"micOn"`
}

type Manager struct {
	devices core.Devices

	mu     sync.Mutex
	sel    Selection
	camera core.Track
	mic    core.Track
}

func NewManager(devices core.Devices, initial Selection) *Manager {
	return &Manager{devices: devices, sel: initial}
}

// ListDevices splits the enumerated hardware by class.
// ErrPermissionDenied is returned as is so the caller can degrade to the off-state.
func (m *Manager) ListDevices(ctx context.Context) (domain.DeviceList, error) {
	devs, err := m.devices.Enumerate(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrPermissionDenied) {
			m.mu.Lock()
			m.sel.WebcamOn, m.sel.MicOn = false, false
			m.mu.Unlock()
		}
		return domain.DeviceList{}, fmt.Errorf("list devices: %w", err)
	}
	var list domain.DeviceList
	for _, d := range devs {
		switch d.Kind {
		case domain.DeviceCamera:
			list.Cameras = append(list.Cameras, d)
		case domain.DeviceMicrophone:
			list.Microphones = append(list.Microphones, d)
		}
	}
	return list, nil
}

// StartPreview opens cameraID (the default camera when empty) and enables the webcam.
func (m *Manager) StartPreview(ctx context.Context, cameraID string) (core.Track, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel.CameraID = cameraID
	if err := m.openCameraLocked(ctx); err != nil {
		return nil, err
	}
	return m.camera, nil
}

// StopPreview releases every preview track. The selection is kept.
func (m *Manager) StopPreview() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.camera = release(m.camera)
	m.mic = release(m.mic)
	log.Info().Str("module", "preview").Msg("preview stopped")
}

func (m *Manager) SelectCamera(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel.CameraID = deviceID
	if !m.sel.WebcamOn {
		return nil
	}
	return m.openCameraLocked(ctx)
}

func (m *Manager) SelectMicrophone(ctx context.Context, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sel.MicrophoneID = deviceID
	if !m.sel.MicOn {
		return nil
	}
	return m.openMicLocked(ctx)
}

func (m *Manager) SetWebcamEnabled(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !on {
		m.camera = release(m.camera)
		m.sel.WebcamOn = false
		return nil
	}
	if m.camera != nil {
		return nil
	}
	return m.openCameraLocked(ctx)
}

func (m *Manager) SetMicrophoneEnabled(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !on {
		m.mic = release(m.mic)
		m.sel.MicOn = false
		return nil
	}
	if m.mic != nil {
		return nil
	}
	return m.openMicLocked(ctx)
}

func (m *Manager) Selection() Selection {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sel
}

// Camera is the live preview camera track, nil when the webcam is off.
func (m *Manager) Camera() core.Track {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.camera
}

// Handoff gives the live preview tracks to the caller, who becomes responsible
// for stopping them. The manager holds no tracks afterwards.
func (m *Manager) Handoff() (map[domain.MediaKind]core.Track, Selection) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tracks := make(map[domain.MediaKind]core.Track, 2)
	if m.camera != nil {
		tracks[domain.KindVideo] = m.camera
	}
	if m.mic != nil {
		tracks[domain.KindAudio] = m.mic
	}
	m.camera, m.mic = nil, nil
	return tracks, m.sel
}

// openCameraLocked stops the current camera before requesting the next one.
// On failure the webcam ends up off.
func (m *Manager) openCameraLocked(ctx context.Context) error {
	m.camera = release(m.camera)
	t, err := m.devices.OpenCamera(ctx, m.sel.CameraID)
	if err != nil {
		m.sel.WebcamOn = false
		log.Warn().Err(err).Str("module", "preview").Str("device", m.sel.CameraID).Msg("camera unavailable")
		return fmt.Errorf("open camera: %w", err)
	}
	m.camera = t
	m.sel.WebcamOn = true
	return nil
}

func (m *Manager) openMicLocked(ctx context.Context) error {
	m.mic = release(m.mic)
	t, err := m.devices.OpenMicrophone(ctx, m.sel.MicrophoneID)
	if err != nil {
		m.sel.MicOn = false
		log.Warn().Err(err).Str("module", "preview").Str("device", m.sel.MicrophoneID).Msg("microphone unavailable")
		return fmt.Errorf("open microphone: %w", err)
	}
	m.mic = t
	m.sel.MicOn = true
	return nil
}

func release(t core.Track) core.Track {
	if t == nil {
		return nil
	}
	if err := t.Stop(); err != nil {
		log.Error().Err(err).Str("module", "preview").Str("track", t.ID()).Msg("stop failed")
	}
	return nil
}
