package app

import (
	"fmt"
	"slices"
	"sync"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// Stopper is an owned background resource bound to one participant, e.g. an audio analyzer.
type Stopper interface {
	Stop()
}

// AnalysisFactory starts audio analysis for a participant's live audio track.
// It is called with the registry lock held and must not call back into the registry.
type AnalysisFactory func(pid domain.ParticipantID, track core.Track) Stopper

type entry struct {
	Participant domain.Participant
	Tracks      map[domain.MediaKind]core.Track
	Bound       Binding
	Analysis    Stopper
	seq         uint64
}

// Registry is the single source of truth for per-participant track state.
// It implements core.TransportEvents so transport callbacks land here directly.
type Registry struct {
	mu      sync.RWMutex
	entries map[domain.ParticipantID]*entry
	seq     uint64

	sink     core.Sink
	analyze  AnalysisFactory
	onRoster func()
}

func NewRegistry(sink core.Sink, analyze AnalysisFactory) *Registry {
	return &Registry{
		entries: make(map[domain.ParticipantID]*entry),
		sink:    sink,
		analyze: analyze,
	}
}

// OnRosterChanged registers fn to run after any join, leave or flag change.
// fn runs outside the registry lock.
func (r *Registry) OnRosterChanged(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onRoster = fn
}

func (r *Registry) notify() {
	r.mu.RLock()
	fn := r.onRoster
	r.mu.RUnlock()
	if fn != nil {
		fn()
	}
}

// Add registers a participant. A second join for a known id only refreshes its display name.
func (r *Registry) Add(p domain.Participant) {
	r.mu.Lock()
	if e, ok := r.entries[p.ID]; ok {
		if p.DisplayName != "" {
			e.Participant.DisplayName = p.DisplayName
		}
		r.mu.Unlock()
		log.Debug().Str("module", "app.registry").Str("pid", string(p.ID)).Msg("duplicate join ignored")
		r.notify()
		return
	}
	r.seq++
	// Flags follow the tracks actually attached, not what the caller claims.
	p.MicOn, p.WebcamOn, p.ScreenShareOn = false, false, false
	r.entries[p.ID] = &entry{
		Participant: p,
		Tracks:      make(map[domain.MediaKind]core.Track),
		Bound:       Binding{},
		seq:         r.seq,
	}
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("pid", string(p.ID)).Bool("local", p.IsLocal).Msg("participant added")
	r.notify()
}

// Remove detaches every track of the participant, stops its analysis and forgets it.
func (r *Registry) Remove(pid domain.ParticipantID) {
	r.mu.Lock()
	e, ok := r.entries[pid]
	if !ok {
		r.mu.Unlock()
		return
	}
	r.teardownLocked(pid, e)
	delete(r.entries, pid)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("pid", string(pid)).Msg("participant removed")
	r.notify()
}

// Clear tears down every participant. Used on leave.
func (r *Registry) Clear() {
	r.mu.Lock()
	for pid, e := range r.entries {
		r.teardownLocked(pid, e)
	}
	clear(r.entries)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Msg("registry cleared")
	r.notify()
}

func (r *Registry) teardownLocked(pid domain.ParticipantID, e *entry) {
	for _, kind := range domain.Kinds {
		if t, ok := e.Tracks[kind]; ok {
			stopTrack(pid, t)
			delete(e.Tracks, kind)
		}
		e.Participant.SetFlag(kind, false)
	}
	r.reconcileLocked(pid, e)
	r.stopAnalysisLocked(e)
}

// Attach binds track as the participant's media of the given kind and turns its flag on.
// Re-attaching the track that is already bound is a no-op.
func (r *Registry) Attach(pid domain.ParticipantID, kind domain.MediaKind, track core.Track) error {
	if !kind.Valid() {
		return fmt.Errorf("attach %q: %w", kind, domain.ErrUnknownKind)
	}
	if track == nil {
		return r.Detach(pid, kind)
	}
	r.mu.Lock()
	e, ok := r.entries[pid]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("attach %s: unknown participant %s", kind, pid)
	}
	if old, ok := e.Tracks[kind]; ok {
		if sameTrack(old, track) {
			r.mu.Unlock()
			return nil
		}
		// The previous handle goes before the new one is bound.
		stopTrack(pid, old)
	}
	e.Tracks[kind] = track
	e.Participant.SetFlag(kind, true)
	r.reconcileLocked(pid, e)
	if kind == domain.KindAudio {
		r.startAnalysisLocked(pid, e, track)
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("pid", string(pid)).Str("kind", string(kind)).Str("track_id", track.ID()).Msg("track attached")
	r.notify()
	return nil
}

// Detach stops the participant's track of the given kind, clears its sink and turns the flag off.
func (r *Registry) Detach(pid domain.ParticipantID, kind domain.MediaKind) error {
	if !kind.Valid() {
		return fmt.Errorf("detach %q: %w", kind, domain.ErrUnknownKind)
	}
	r.mu.Lock()
	e, ok := r.entries[pid]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	if t, ok := e.Tracks[kind]; ok {
		stopTrack(pid, t)
		delete(e.Tracks, kind)
	}
	e.Participant.SetFlag(kind, false)
	r.reconcileLocked(pid, e)
	if kind == domain.KindAudio {
		r.stopAnalysisLocked(e)
	}
	r.mu.Unlock()

	log.Info().Str("module", "app.registry").Str("pid", string(pid)).Str("kind", string(kind)).Msg("track detached")
	r.notify()
	return nil
}

func (r *Registry) reconcileLocked(pid domain.ParticipantID, e *entry) {
	desired := desiredBinding(e.Participant, e.Tracks)
	for _, eff := range plan(e.Bound, desired) {
		if r.sink == nil {
			continue
		}
		if eff.Track == nil {
			r.sink.Unbind(pid, eff.Kind)
		} else {
			r.sink.Bind(pid, eff.Kind, eff.Track)
		}
	}
	e.Bound = desired
}

func (r *Registry) startAnalysisLocked(pid domain.ParticipantID, e *entry, track core.Track) {
	r.stopAnalysisLocked(e)
	if r.analyze == nil {
		return
	}
	e.Analysis = r.analyze(pid, track)
}

func (r *Registry) stopAnalysisLocked(e *entry) {
	if e.Analysis != nil {
		e.Analysis.Stop()
		e.Analysis = nil
	}
}

// OnParticipantJoined implements core.TransportEvents.
func (r *Registry) OnParticipantJoined(p domain.Participant) {
	p.IsLocal = false
	r.Add(p)
}

// OnParticipantLeft implements core.TransportEvents.
func (r *Registry) OnParticipantLeft(pid domain.ParticipantID) {
	r.Remove(pid)
}

// OnTrackChanged implements core.TransportEvents. A track may arrive before the
// join notification of its participant; the entry is then created from the track
// and the later join only fills in the display name. A track the registry cannot
// hold is stopped right away.
func (r *Registry) OnTrackChanged(pid domain.ParticipantID, kind domain.MediaKind, track core.Track) {
	if track == nil {
		if err := r.Detach(pid, kind); err != nil {
			log.Warn().Err(err).Str("module", "app.registry").Str("pid", string(pid)).Msg("track change dropped")
		}
		return
	}
	if !kind.Valid() {
		log.Warn().Str("module", "app.registry").Str("pid", string(pid)).Str("kind", string(kind)).Msg("unknown track kind dropped")
		stopTrack(pid, track)
		return
	}
	if _, known := r.Participant(pid); !known {
		log.Debug().Str("module", "app.registry").Str("pid", string(pid)).Str("kind", string(kind)).Msg("track before join")
		r.Add(domain.Participant{ID: pid})
	}
	if err := r.Attach(pid, kind, track); err != nil {
		log.Warn().Err(err).Str("module", "app.registry").Str("pid", string(pid)).Msg("track change dropped")
		stopTrack(pid, track)
	}
}

func (r *Registry) Participant(pid domain.ParticipantID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[pid]
	if !ok {
		return domain.Participant{}, false
	}
	return e.Participant, true
}

func (r *Registry) Track(pid domain.ParticipantID, kind domain.MediaKind) (core.Track, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[pid]
	if !ok {
		return nil, false
	}
	t, ok := e.Tracks[kind]
	return t, ok
}

// Snapshot returns participants with the local one first, the rest in join order.
func (r *Registry) Snapshot() []domain.Participant {
	r.mu.RLock()
	list := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		list = append(list, e)
	}
	r.mu.RUnlock()

	slices.SortFunc(list, func(a, b *entry) int {
		if a.Participant.IsLocal != b.Participant.IsLocal {
			if a.Participant.IsLocal {
				return -1
			}
			return 1
		}
		return int(a.seq) - int(b.seq)
	})
	out := make([]domain.Participant, len(list))
	for i, e := range list {
		out[i] = e.Participant
	}
	return out
}

// IDs is Snapshot reduced to participant ids, ready for the layout engine.
func (r *Registry) IDs() []string {
	snap := r.Snapshot()
	out := make([]string, len(snap))
	for i, p := range snap {
		out[i] = string(p.ID)
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

func stopTrack(pid domain.ParticipantID, t core.Track) {
	if err := t.Stop(); err != nil {
		log.Error().Err(err).Str("module", "app.registry").Str("pid", string(pid)).Str("track_id", t.ID()).Msg("track stop")
	}
}

func sameTrack(a, b core.Track) bool {
	return a == b || (a.ID() != "" && a.ID() == b.ID() && a.Kind() == b.Kind())
}
