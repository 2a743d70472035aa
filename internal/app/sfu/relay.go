// Package sfu fans the RTP of one media track out to any number of local copies.
package sfu

import (
	"errors"
	"io"
	"maps"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
)

// Source is a track whose packets can be relayed.
type Source interface {
	Relay() *Relay
	Codec() webrtc.RTPCodecCapability
}

// PacketSource yields batches of packets until it is closed.
type PacketSource interface {
	Read() (pkts []*rtp.Packet, release func(), err error)
}

type Relay struct {
	logger zerolog.Logger

	mu        sync.RWMutex
	outTracks map[string]*OutTrack
	closed    bool
}

func NewRelay(logger zerolog.Logger) *Relay {
	return &Relay{
		logger:    logger,
		outTracks: make(map[string]*OutTrack),
	}
}

// Run forwards everything src yields and closes the relay when src ends.
func (r *Relay) Run(src PacketSource) {
	defer r.Close()
	for {
		pkts, release, err := src.Read()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				r.logger.Debug().Err(err).Msg("relay source ended")
			}
			return
		}
		for _, pkt := range pkts {
			if pkt != nil {
				r.Forward(pkt)
			}
		}
		if release != nil {
			release()
		}
	}
}

// Forward writes pkt to every live out track and drops those marked for delete
// or failing to write.
func (r *Relay) Forward(pkt *rtp.Packet) {
	r.mu.RLock()
	if len(r.outTracks) == 0 {
		r.mu.RUnlock()
		return
	}
	snapshot := make(map[string]*OutTrack, len(r.outTracks))
	maps.Copy(snapshot, r.outTracks)
	r.mu.RUnlock()

	dirty := make([]string, 0, len(snapshot))
	for key, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, key)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteRTP(pkt); err != nil && !errors.Is(err, io.ErrClosedPipe) {
				r.logger.Error().
					Err(err).
					Str("dst", key).
					Msg("relay write RTP error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, key)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		r.cleanupDeleted(snapshot, dirty)
	}
}

func (r *Relay) cleanupDeleted(snapshot map[string]*OutTrack, dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, key := range dirty {
		// A replacement may have been added under the same key meanwhile.
		if r.outTracks[key] == snapshot[key] {
			delete(r.outTracks, key)
		}
	}
}

// AddOutTrack subscribes ot under key, replacing any previous subscriber.
// On a closed relay ot is marked for delete right away.
func (r *Relay) AddOutTrack(key string, ot *OutTrack) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		ot.MarkDelete()
		return
	}
	if old, ok := r.outTracks[key]; ok && old != ot {
		old.MarkDelete()
	}
	r.outTracks[key] = ot
}

func (r *Relay) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if ot, ok := r.outTracks[key]; ok {
		ot.MarkDelete()
		delete(r.outTracks, key)
	}
}

func (r *Relay) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.outTracks)
}

// Close marks every out track for delete. The relay accepts no new subscribers afterwards.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	for key, ot := range r.outTracks {
		ot.MarkDelete()
		delete(r.outTracks, key)
	}
}
