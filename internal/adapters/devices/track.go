package devices

import (
	"context"
	"io"
	"math"
	"strings"
	"sync"

	"github.com/dkeye/Consult/internal/app/sfu"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/io/audio"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

const tapMTU = 1200

// PacketReader yields encoded RTP packets from a capture track.
type PacketReader interface {
	Read() (pkts []*rtp.Packet, release func(), err error)
	Close() error
}

// Track is a local capture track. Stop releases the hardware.
type Track struct {
	md   mediadevices.Track
	kind domain.MediaKind

	once sync.Once
	err  error

	mu      sync.Mutex
	stopped bool
	relay   *sfu.Relay
	tap     PacketReader
}

func newTrack(md mediadevices.Track, kind domain.MediaKind) *Track {
	t := &Track{md: md, kind: kind}
	md.OnEnded(func(err error) {
		if err != nil && err != io.EOF {
			log.Warn().Err(err).Str("module", "devices").Str("track", md.ID()).Msg("track ended")
		}
	})
	return t
}

func (t *Track) ID() string             { return t.md.ID() }
func (t *Track) Kind() domain.MediaKind { return t.kind }

func (t *Track) Stop() error {
	t.once.Do(func() {
		t.mu.Lock()
		t.stopped = true
		tap := t.tap
		t.mu.Unlock()
		if tap != nil {
			_ = tap.Close()
		}
		t.err = t.md.Close()
		log.Info().Str("module", "devices").Str("kind", string(t.kind)).Str("track", t.md.ID()).Msg("released")
	})
	return t.err
}

// Codec is the RTP capability the track is encoded with.
func (t *Track) Codec() webrtc.RTPCodecCapability {
	if t.kind == domain.KindAudio {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2, SDPFmtpLine: "minptime=10;useinbandfec=1"}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

// Packets opens an RTP packetizer on the capture pipeline.
func (t *Track) Packets(codecName string, ssrc uint32, mtu int) (PacketReader, error) {
	return t.md.NewRTPReader(codecName, ssrc, mtu)
}

// Relay starts, on first use, a second packetizer on the capture pipeline
// whose output is relayed to local renderers.
func (t *Track) Relay() *sfu.Relay {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.relay != nil {
		return t.relay
	}
	logger := log.With().Str("module", "devices").Str("kind", string(t.kind)).Str("track", t.md.ID()).Logger()
	t.relay = sfu.NewRelay(logger)
	if t.stopped {
		t.relay.Close()
		return t.relay
	}
	_, name, _ := strings.Cut(t.Codec().MimeType, "/")
	// The SSRC is rewritten per renderer, so zero is fine here.
	tap, err := t.Packets(name, 0, tapMTU)
	if err != nil {
		logger.Warn().Err(err).Msg("render tap")
		t.relay.Close()
		return t.relay
	}
	t.tap = tap
	go t.relay.Run(tap)
	return t.relay
}

// AudioTrack is a microphone track whose samples can also be read for analysis.
type AudioTrack struct {
	*Track

	mu     sync.Mutex
	reader audio.Reader
}

type pcmSource interface {
	NewReader(copy bool) audio.Reader
}

// ReadPCM returns the next captured chunk downmixed to mono.
func (a *AudioTrack) ReadPCM(ctx context.Context) ([]float32, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	a.mu.Lock()
	if a.reader == nil {
		src, ok := a.md.(pcmSource)
		if !ok {
			a.mu.Unlock()
			return nil, 0, io.EOF
		}
		a.reader = src.NewReader(false)
	}
	r := a.reader
	a.mu.Unlock()

	chunk, release, err := r.Read()
	if err != nil {
		return nil, 0, err
	}
	if release != nil {
		defer release()
	}

	info := chunk.ChunkInfo()
	out := make([]float32, info.Len)
	for i := range out {
		var sum float64
		for ch := 0; ch < info.Channels; ch++ {
			sum += float64(chunk.At(i, ch).Int()) / math.MaxInt64
		}
		out[i] = float32(sum / float64(max(info.Channels, 1)))
	}
	return out, info.SamplingRate, nil
}
