package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// ToggleMicrophone flips the local microphone. On a failed switch the flag and
// the owned tracks stay exactly as they were. Turning off releases the live
// track first and only then runs the release probe, if enabled.
func (o *Orchestrator) ToggleMicrophone(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return false, err
	}
	p, _ := s.registry.Participant(s.local)
	if p.MicOn {
		on, err := o.turnOff(ctx, s, domain.KindAudio)
		if err != nil {
			return on, err
		}
		if o.ReleaseProbe {
			o.releaseProbe(ctx, s.micID)
		}
		return false, nil
	}
	return o.turnOn(ctx, s, domain.KindAudio, func() (core.Track, error) {
		return o.Devices.OpenMicrophone(ctx, s.micID)
	})
}

// releaseProbe opens and immediately stops a throwaway handle on a microphone
// that is no longer held, so the OS lets go of it. Failures are only logged.
func (o *Orchestrator) releaseProbe(ctx context.Context, deviceID string) {
	probe, err := o.Devices.OpenMicrophone(ctx, deviceID)
	if err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("release probe open")
		return
	}
	if err := probe.Stop(); err != nil {
		log.Warn().Err(err).Str("module", "orch").Msg("release probe stop")
	}
}

// ToggleWebcam flips the local camera. Turning off unpublishes and stops the
// outbound video track before anything else is acquired.
func (o *Orchestrator) ToggleWebcam(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return false, err
	}
	p, _ := s.registry.Participant(s.local)
	if p.WebcamOn {
		return o.turnOff(ctx, s, domain.KindVideo)
	}
	return o.turnOn(ctx, s, domain.KindVideo, func() (core.Track, error) {
		return o.Devices.OpenCamera(ctx, s.cameraID)
	})
}

func (o *Orchestrator) ToggleScreenShare(ctx context.Context) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return false, err
	}
	p, _ := s.registry.Participant(s.local)
	if p.ScreenShareOn {
		return o.turnOff(ctx, s, domain.KindScreen)
	}
	return o.turnOn(ctx, s, domain.KindScreen, func() (core.Track, error) {
		return o.Devices.OpenScreen(ctx)
	})
}

// SwitchCamera moves the session to another camera. A live camera is stopped
// before the new one is opened.
func (o *Orchestrator) SwitchCamera(ctx context.Context, deviceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return err
	}
	s.cameraID = deviceID
	p, _ := s.registry.Participant(s.local)
	if !p.WebcamOn {
		return nil
	}
	if _, err := o.turnOff(ctx, s, domain.KindVideo); err != nil {
		return err
	}
	_, err = o.turnOn(ctx, s, domain.KindVideo, func() (core.Track, error) {
		return o.Devices.OpenCamera(ctx, deviceID)
	})
	return err
}

func (o *Orchestrator) SwitchMicrophone(ctx context.Context, deviceID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	s, err := o.current()
	if err != nil {
		return err
	}
	s.micID = deviceID
	p, _ := s.registry.Participant(s.local)
	if !p.MicOn {
		return nil
	}
	if _, err := o.turnOff(ctx, s, domain.KindAudio); err != nil {
		return err
	}
	_, err = o.turnOn(ctx, s, domain.KindAudio, func() (core.Track, error) {
		return o.Devices.OpenMicrophone(ctx, deviceID)
	})
	return err
}

func (o *Orchestrator) turnOff(ctx context.Context, s *session, kind domain.MediaKind) (bool, error) {
	if err := o.Transport.UnpublishTrack(ctx, kind); err != nil {
		log.Error().Err(err).Str("module", "orch").Str("kind", string(kind)).Msg("unpublish failed")
		return true, fmt.Errorf("%s off: %w: %w", kind, domain.ErrTransport, err)
	}
	if err := s.registry.Detach(s.local, kind); err != nil {
		return true, err
	}
	log.Info().Str("module", "orch").Str("pid", string(s.local)).Str("kind", string(kind)).Msg("local media off")
	return false, nil
}

func (o *Orchestrator) turnOn(ctx context.Context, s *session, kind domain.MediaKind, open func() (core.Track, error)) (bool, error) {
	t, err := open()
	if err != nil {
		return false, acquisitionError(string(kind)+" on", err)
	}
	if err := o.Transport.PublishTrack(ctx, kind, t); err != nil {
		if stopErr := t.Stop(); stopErr != nil {
			log.Warn().Err(stopErr).Str("module", "orch").Msg("stop unpublished track")
		}
		log.Error().Err(err).Str("module", "orch").Str("kind", string(kind)).Msg("publish failed")
		return false, fmt.Errorf("%s on: %w: %w", kind, domain.ErrTransport, err)
	}
	if err := s.registry.Attach(s.local, kind, t); err != nil {
		return false, err
	}
	log.Info().Str("module", "orch").Str("pid", string(s.local)).Str("kind", string(kind)).Str("track", t.ID()).Msg("local media on")
	return true, nil
}

// acquisitionError keeps permission and acquisition sentinels and classifies anything else
// as an acquisition failure.
func acquisitionError(op string, err error) error {
	if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrDeviceAcquisitionFailed) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrDeviceAcquisitionFailed, err)
}
