package rtc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dkeye/Consult/internal/app/sfu"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/hraban/opus.v2"
)

const (
	opusRate = 48000
	// 120ms is the longest Opus frame.
	maxOpusFrame = opusRate * 120 / 1000
	pcmBacklog   = 32
)

// remoteTrack is a participant track received from the media server.
// Its reader goroutine owns the TrackRemote and runs until Stop.
type remoteTrack struct {
	remote *webrtc.TrackRemote
	pid    domain.ParticipantID
	kind   domain.MediaKind
	relay  *sfu.Relay

	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once
}

func (t *remoteTrack) ID() string             { return t.remote.ID() }
func (t *remoteTrack) Kind() domain.MediaKind { return t.kind }

// Relay fans the received packets out to local renderers.
func (t *remoteTrack) Relay() *sfu.Relay { return t.relay }

func (t *remoteTrack) Codec() webrtc.RTPCodecCapability {
	return t.remote.Codec().RTPCodecCapability
}

func (t *remoteTrack) Stop() error {
	t.once.Do(func() {
		t.cancel()
		// Unblocks a pending ReadRTP.
		_ = t.remote.SetReadDeadline(time.Now())
		<-t.done
	})
	return nil
}

// remoteAudio decodes the Opus stream so the speaker detector can read it.
type remoteAudio struct {
	*remoteTrack
	pcm chan []float32
}

func (a *remoteAudio) ReadPCM(ctx context.Context) ([]float32, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-a.done:
		return nil, 0, io.EOF
	case chunk := <-a.pcm:
		return chunk, opusRate, nil
	}
}

// kindOf maps a remote track to the media kind. The media server names screen
// tracks "screen"; everything else follows the RTP codec type.
func kindOf(track *webrtc.TrackRemote) domain.MediaKind {
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		return domain.KindAudio
	}
	if domain.MediaKind(track.ID()) == domain.KindScreen {
		return domain.KindScreen
	}
	return domain.KindVideo
}

func newRemoteTrack(ctx context.Context, pid domain.ParticipantID, track *webrtc.TrackRemote) core.Track {
	ctx, cancel := context.WithCancel(ctx)
	kind := kindOf(track)
	logger := log.With().Str("module", "rtc.remote").Str("pid", string(pid)).Str("kind", string(kind)).Logger()
	base := &remoteTrack{
		remote: track,
		pid:    pid,
		kind:   kind,
		relay:  sfu.NewRelay(logger),
		cancel: cancel,
		done:   make(chan struct{}),
	}

	if base.kind != domain.KindAudio || track.Codec().MimeType != webrtc.MimeTypeOpus {
		go base.drain(ctx, &logger)
		return base
	}
	dec, err := opus.NewDecoder(opusRate, 1)
	if err != nil {
		logger.Error().Err(err).Msg("opus decoder")
		go base.drain(ctx, &logger)
		return base
	}
	a := &remoteAudio{remoteTrack: base, pcm: make(chan []float32, pcmBacklog)}
	go a.decode(ctx, dec, &logger)
	return a
}

// drain keeps reading so interceptors and RTCP keep flowing, and relays
// every packet to the renderers.
func (t *remoteTrack) drain(ctx context.Context, logger *zerolog.Logger) {
	defer close(t.done)
	defer t.relay.Close()
	for ctx.Err() == nil {
		pkt, _, err := t.remote.ReadRTP()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("remote read ended")
			}
			return
		}
		t.relay.Forward(pkt)
	}
}

func (a *remoteAudio) decode(ctx context.Context, dec *opus.Decoder, logger *zerolog.Logger) {
	defer close(a.done)
	defer a.relay.Close()
	buf := make([]float32, maxOpusFrame)
	for ctx.Err() == nil {
		pkt, _, err := a.remote.ReadRTP()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("remote read ended")
			}
			return
		}
		a.relay.Forward(pkt)
		if len(pkt.Payload) == 0 {
			continue
		}
		n, err := dec.DecodeFloat32(pkt.Payload, buf)
		if err != nil {
			logger.Debug().Err(err).Uint16("seq", pkt.SequenceNumber).Msg("opus decode")
			continue
		}
		chunk := make([]float32, n)
		copy(chunk, buf[:n])
		select {
		case a.pcm <- chunk:
		default:
			// Analysis wants the newest audio; drop the oldest chunk.
			select {
			case <-a.pcm:
			default:
			}
			a.pcm <- chunk
		}
	}
}
