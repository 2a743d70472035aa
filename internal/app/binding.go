package app

import (
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
)

// Binding is the set of tracks a participant's tile renders, by kind.
type Binding map[domain.MediaKind]core.Track

// BindEffect is a single sink operation. A nil Track means unbind.
type BindEffect struct {
	Kind  domain.MediaKind
	Track core.Track
}

// desiredBinding decides what should be rendered for a participant.
// Screen share hides the webcam; the local participant's own audio is never played back.
func desiredBinding(p domain.Participant, tracks map[domain.MediaKind]core.Track) Binding {
	out := Binding{}
	if t, ok := tracks[domain.KindAudio]; ok && p.MicOn && !p.IsLocal {
		out[domain.KindAudio] = t
	}
	if t, ok := tracks[domain.KindScreen]; ok && p.ScreenShareOn {
		out[domain.KindScreen] = t
	} else if t, ok := tracks[domain.KindVideo]; ok && p.WebcamOn {
		out[domain.KindVideo] = t
	}
	return out
}

// plan diffs current against desired. Unbinds come first so a sink never shows two
// video sources at once, and a kind whose track did not change yields no effect.
func plan(current, desired Binding) []BindEffect {
	var unbinds, binds []BindEffect
	for _, kind := range domain.Kinds {
		cur, hasCur := current[kind]
		want, hasWant := desired[kind]
		switch {
		case hasCur && !hasWant:
			unbinds = append(unbinds, BindEffect{Kind: kind})
		case hasWant && (!hasCur || !sameTrack(cur, want)):
			binds = append(binds, BindEffect{Kind: kind, Track: want})
		}
	}
	return append(unbinds, binds...)
}
