package sfu

import (
	"sync/atomic"

	"github.com/pion/rtp"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// Writer receives forwarded packets. webrtc.TrackLocalStaticRTP implements it.
type Writer interface {
	WriteRTP(pkt *rtp.Packet) error
}

// OutTrack is a single outgoing copy of a relayed track.
type OutTrack struct {
	Track Writer
	state atomic.Int32 // Zero by default (TrackStateOk)
}

func NewOutTrack(track Writer) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}
