// Package devices adapts pion/mediadevices to the capture interface used by the session.
package devices

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/dkeye/Consult/internal/config"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	_ "github.com/pion/mediadevices/pkg/driver/screen"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/rs/zerolog/log"
)

// Devices opens capture tracks already wired to VP8 and Opus encoders.
type Devices struct {
	cfg      config.Media
	selector *mediadevices.CodecSelector
}

func New(cfg config.Media) (*Devices, error) {
	vp8, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vp8.BitRate = cfg.VideoBitrate
	vp8.RateControlEndUsage = vpx.RateControlVBR

	op, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}
	op.BitRate = cfg.AudioBitrate
	op.Latency = opus.Latency20ms

	return &Devices{
		cfg: cfg,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vp8),
			mediadevices.WithAudioEncoders(&op),
		),
	}, nil
}

func (d *Devices) Enumerate(ctx context.Context) ([]domain.Device, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []domain.Device
	for _, info := range mediadevices.EnumerateDevices() {
		var kind domain.DeviceKind
		switch info.Kind {
		case mediadevices.VideoInput:
			kind = domain.DeviceCamera
		case mediadevices.AudioInput:
			kind = domain.DeviceMicrophone
		default:
			continue
		}
		label := info.Label
		if label == "" {
			label = info.DeviceID
		}
		out = append(out, domain.Device{ID: info.DeviceID, Label: label, Kind: kind})
	}
	log.Debug().Str("module", "devices").Int("count", len(out)).Msg("enumerated")
	return out, nil
}

func (d *Devices) OpenCamera(ctx context.Context, deviceID string) (core.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
			c.Width = prop.Int(d.cfg.Width)
			c.Height = prop.Int(d.cfg.Height)
			c.FrameRate = prop.Float(d.cfg.FrameRate)
		},
		Codec: d.selector,
	})
	if err != nil {
		return nil, classify("camera", deviceID, err)
	}
	return first(stream.GetVideoTracks(), domain.KindVideo, deviceID)
}

func (d *Devices) OpenMicrophone(ctx context.Context, deviceID string) (core.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := mediadevices.GetUserMedia(mediadevices.MediaStreamConstraints{
		Audio: func(c *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				c.DeviceID = prop.String(deviceID)
			}
			c.SampleRate = prop.Int(d.cfg.SampleRate)
			c.ChannelCount = prop.Int(1)
			c.Latency = prop.Duration(20 * time.Millisecond)
		},
		Codec: d.selector,
	})
	if err != nil {
		return nil, classify("microphone", deviceID, err)
	}
	t, err := first(stream.GetAudioTracks(), domain.KindAudio, deviceID)
	if err != nil {
		return nil, err
	}
	return &AudioTrack{Track: t.(*Track)}, nil
}

func (d *Devices) OpenScreen(ctx context.Context) (core.Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stream, err := mediadevices.GetDisplayMedia(mediadevices.MediaStreamConstraints{
		Video: func(c *mediadevices.MediaTrackConstraints) {
			c.FrameRate = prop.Float(d.cfg.FrameRate)
		},
		Codec: d.selector,
	})
	if err != nil {
		return nil, classify("screen", "", err)
	}
	return first(stream.GetVideoTracks(), domain.KindScreen, "")
}

func first(tracks []mediadevices.Track, kind domain.MediaKind, deviceID string) (core.Track, error) {
	if len(tracks) == 0 {
		return nil, fmt.Errorf("%s %q: %w", kind, deviceID, domain.ErrNoSuchDevice)
	}
	// Extra tracks are not ours to keep.
	for _, extra := range tracks[1:] {
		_ = extra.Close()
	}
	log.Info().Str("module", "devices").Str("kind", string(kind)).Str("track", tracks[0].ID()).Msg("opened")
	return newTrack(tracks[0], kind), nil
}

// classify maps driver errors onto the session error taxonomy.
func classify(what, deviceID string, err error) error {
	log.Warn().Err(err).Str("module", "devices").Str("what", what).Str("device", deviceID).Msg("acquisition failed")
	if errors.Is(err, fs.ErrPermission) {
		return fmt.Errorf("%s: %w: %w", what, domain.ErrPermissionDenied, err)
	}
	return fmt.Errorf("%s: %w: %w", what, domain.ErrDeviceAcquisitionFailed, err)
}
