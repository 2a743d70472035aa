package speaker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dkeye/Consult/internal/core"
	"github.com/dkeye/Consult/internal/domain"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc"
)

// Analyzer owns the audio analysis of one (participant, track) pair.
// Start spawns a sample reader and a polling loop; Stop cancels both and waits.
type Analyzer struct {
	pid    domain.ParticipantID
	src    core.AudioSource
	cfg    Config
	logger zerolog.Logger
	now    func() time.Time

	onChange func(pid domain.ParticipantID, speaking bool)

	mu       sync.Mutex
	buf      []float32 // last cfg.FFTSize samples, oldest first
	lastFeed time.Time
	spectrum *Spectrum

	speaking atomic.Bool
	cancel   context.CancelFunc
	wg       conc.WaitGroup
	stopOnce sync.Once
	onStop   func(*Analyzer)
}

func NewAnalyzer(pid domain.ParticipantID, src core.AudioSource, cfg Config, onChange func(domain.ParticipantID, bool)) *Analyzer {
	cfg = cfg.normalized()
	return &Analyzer{
		pid:      pid,
		src:      src,
		cfg:      cfg,
		now:      time.Now,
		onChange: onChange,
		buf:      make([]float32, 0, cfg.FFTSize),
		spectrum: NewSpectrum(cfg.FFTSize, cfg.Smoothing, cfg.MinDecibels, cfg.MaxDecibels),
	}
}

// Start runs the analysis on a ticker at cfg.Interval until ctx is done or Stop is called.
func (a *Analyzer) Start(ctx context.Context, logger *zerolog.Logger) {
	ticker := time.NewTicker(a.cfg.Interval)
	a.start(ctx, logger, ticker.C, ticker.Stop)
}

func (a *Analyzer) start(ctx context.Context, logger *zerolog.Logger, ticks <-chan time.Time, stopTicks func()) {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.logger = logger.With().Str("pid", string(a.pid)).Logger()

	a.wg.Go(func() { a.readLoop(ctx) })
	a.wg.Go(func() {
		defer stopTicks()
		a.pollLoop(ctx, ticks)
	})
	a.logger.Debug().Msg("analysis started")
}

// Stop cancels the loops and clears the speaking flag. Safe to call more than once.
func (a *Analyzer) Stop() {
	a.stopOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		a.wg.Wait()
		a.setSpeaking(false)
		if a.onStop != nil {
			a.onStop(a)
		}
		a.logger.Debug().Msg("analysis stopped")
	})
}

func (a *Analyzer) Speaking() bool { return a.speaking.Load() }

func (a *Analyzer) readLoop(ctx context.Context) {
	for {
		samples, _, err := a.src.ReadPCM(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, context.Canceled) {
				a.logger.Warn().Err(err).Msg("audio read stopped")
			}
			return
		}
		a.feed(samples)
	}
}

func (a *Analyzer) pollLoop(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			a.evaluate()
		}
	}
}

// feed appends samples to the analysis window, keeping only the newest FFTSize.
func (a *Analyzer) feed(samples []float32) {
	a.mu.Lock()
	defer a.mu.Unlock()
	size := a.cfg.FFTSize
	if len(samples) >= size {
		a.buf = append(a.buf[:0], samples[len(samples)-size:]...)
	} else {
		if over := len(a.buf) + len(samples) - size; over > 0 {
			a.buf = append(a.buf[:0], a.buf[over:]...)
		}
		a.buf = append(a.buf, samples...)
	}
	a.lastFeed = a.now()
}

// evaluate runs one analysis frame and publishes a transition if the verdict changed.
func (a *Analyzer) evaluate() float64 {
	a.mu.Lock()
	window := a.buf
	if a.lastFeed.IsZero() || a.now().Sub(a.lastFeed) > a.cfg.StaleAfter {
		window = nil
	}
	mean := a.spectrum.Mean(window)
	a.mu.Unlock()

	a.setSpeaking(mean > a.cfg.Threshold)
	return mean
}

func (a *Analyzer) setSpeaking(v bool) {
	if a.speaking.Swap(v) == v {
		return
	}
	if a.onChange != nil {
		a.onChange(a.pid, v)
	}
}
