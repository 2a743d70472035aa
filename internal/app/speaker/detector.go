// Package speaker decides, per participant with a live microphone, whether
// they are currently speaking. The verdict is for UI highlighting only.
package speaker

import (
	"context"
	"slices"
	"sync"

	"github.com/dkeye/Consult/internal/app"
	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog/log"
)

// Detector runs at most one Analyzer per participant.
type Detector struct {
	ctx      context.Context
	cfg      Config
	onChange func(pid domain.ParticipantID, speaking bool)

	mu        sync.RWMutex
	analyzers map[domain.ParticipantID]*Analyzer
}

// NewDetector binds every analysis loop to ctx. onChange sees transitions only and
// may be called from the goroutine that stops an analyzer.
func NewDetector(ctx context.Context, cfg Config, onChange func(domain.ParticipantID, bool)) *Detector {
	return &Detector{
		ctx:       ctx,
		cfg:       cfg.normalized(),
		onChange:  onChange,
		analyzers: make(map[domain.ParticipantID]*Analyzer),
	}
}

// Analyze starts analysis of track for pid, stopping any previous loop for pid first.
// It satisfies app.AnalysisFactory; tracks that carry no samples yield a nil Stopper.
func (d *Detector) Analyze(pid domain.ParticipantID, track core.Track) app.Stopper {
	src, ok := track.(core.AudioSource)
	if !ok {
		log.Warn().Str("module", "speaker").Str("pid", string(pid)).Str("track_id", track.ID()).Msg("track has no PCM access, not analyzed")
		return nil
	}
	a := NewAnalyzer(pid, src, d.cfg, d.onChange)
	a.onStop = d.forget

	d.mu.Lock()
	old, ok := d.analyzers[pid]
	d.analyzers[pid] = a
	d.mu.Unlock()
	if ok {
		log.Info().Str("module", "speaker").Str("pid", string(pid)).Msg("replacing existing analyzer")
		old.Stop()
	}

	logger := log.With().Str("module", "speaker").Logger()
	a.Start(d.ctx, &logger)
	return a
}

func (d *Detector) forget(a *Analyzer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.analyzers[a.pid]; ok && cur == a {
		delete(d.analyzers, a.pid)
	}
}

// Stop cancels the analysis loop of pid, if any.
func (d *Detector) Stop(pid domain.ParticipantID) {
	d.mu.RLock()
	a, ok := d.analyzers[pid]
	d.mu.RUnlock()
	if ok {
		a.Stop()
	}
}

// StopAll cancels every analysis loop.
func (d *Detector) StopAll() {
	d.mu.RLock()
	list := make([]*Analyzer, 0, len(d.analyzers))
	for _, a := range d.analyzers {
		list = append(list, a)
	}
	d.mu.RUnlock()
	for _, a := range list {
		a.Stop()
	}
}

func (d *Detector) Speaking(pid domain.ParticipantID) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.analyzers[pid]
	return ok && a.Speaking()
}

// ActiveSpeakers lists participants currently above the threshold, sorted by id.
func (d *Detector) ActiveSpeakers() []domain.ParticipantID {
	d.mu.RLock()
	out := make([]domain.ParticipantID, 0, len(d.analyzers))
	for pid, a := range d.analyzers {
		if a.Speaking() {
			out = append(out, pid)
		}
	}
	d.mu.RUnlock()
	slices.Sort(out)
	return out
}

// Running reports how many analysis loops are alive.
func (d *Detector) Running() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.analyzers)
}
