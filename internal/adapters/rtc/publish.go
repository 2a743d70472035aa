package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dkeye/Consult/internal/adapters/devices"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNotPublishable = errors.New("track cannot be published")

// LocalMedia is a capture track that can feed encoded RTP into the peer connection.
type LocalMedia interface {
	core.Track
	Codec() webrtc.RTPCodecCapability
	Packets(codecName string, ssrc uint32, mtu int) (devices.PacketReader, error)
}

// outbound forwards one local capture track to the media server.
// It never stops the capture track itself; the stream registry owns that.
type outbound struct {
	kind   domain.MediaKind
	track  core.Track
	sender *webrtc.RTPSender
	reader devices.PacketReader
	cancel context.CancelFunc
	done   chan struct{}
}

func publish(ctx context.Context, conn *Connection, pid domain.ParticipantID, kind domain.MediaKind, track core.Track, mtu int) (*outbound, error) {
	media, ok := track.(LocalMedia)
	if !ok {
		return nil, fmt.Errorf("%s %s: %w", kind, track.ID(), ErrNotPublishable)
	}
	codec := media.Codec()
	local, err := webrtc.NewTrackLocalStaticRTP(codec, string(kind), string(pid))
	if err != nil {
		return nil, fmt.Errorf("local %s track: %w", kind, err)
	}
	sender, err := conn.AddLocalTrack(local)
	if err != nil {
		return nil, err
	}
	params := sender.GetParameters()
	if len(params.Encodings) == 0 || params.Encodings[0].SSRC == 0 {
		_ = conn.RemoveLocalTrack(sender)
		return nil, fmt.Errorf("%s: no ssrc assigned", kind)
	}
	reader, err := media.Packets(codecName(codec.MimeType), uint32(params.Encodings[0].SSRC), mtu)
	if err != nil {
		_ = conn.RemoveLocalTrack(sender)
		return nil, fmt.Errorf("%s packetizer: %w", kind, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	o := &outbound{kind: kind, track: track, sender: sender, reader: reader, cancel: cancel, done: make(chan struct{})}
	logger := log.With().Str("module", "rtc.publish").Str("pid", string(pid)).Str("kind", string(kind)).Logger()
	go o.pump(ctx, local, &logger)
	go readRTCP(ctx, sender, &logger)
	logger.Info().Str("track", track.ID()).Msg("publishing")
	return o, nil
}

// codecName is the packetizer name, the subtype of the MIME type.
func codecName(mime string) string {
	if _, sub, ok := strings.Cut(mime, "/"); ok {
		return sub
	}
	return mime
}

func (o *outbound) pump(ctx context.Context, local *webrtc.TrackLocalStaticRTP, logger *zerolog.Logger) {
	defer close(o.done)
	for ctx.Err() == nil {
		pkts, release, err := o.reader.Read()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				logger.Warn().Err(err).Msg("rtp read")
			}
			return
		}
		for _, pkt := range pkts {
			if pkt == nil {
				continue
			}
			if err := local.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				logger.Debug().Err(err).Msg("WriteRTP")
			}
		}
		if release != nil {
			release()
		}
	}
}

func readRTCP(ctx context.Context, sender *webrtc.RTPSender, logger *zerolog.Logger) {
	buf := make([]byte, 1500)
	for ctx.Err() == nil {
		if _, _, err := sender.Read(buf); err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("rtcp read ended")
			}
			return
		}
	}
}

// stop ends forwarding and removes the sender from the peer connection.
func (o *outbound) stop(conn *Connection) {
	o.cancel()
	_ = o.reader.Close()
	<-o.done
	if conn != nil {
		if err := conn.RemoveLocalTrack(o.sender); err != nil {
			log.Warn().Err(err).Str("module", "rtc.publish").Str("kind", string(o.kind)).Msg("remove track")
		}
	}
}
