package speaker

import (
	"context"
	"io"
	"math/rand/v2"
	"sync"

	"github.com/dkeye/Consult/internal/domain"
)

type fakeSource struct {
	id string
	ch chan []float32

	mu      sync.Mutex
	stopped bool
}

func newFakeSource(id string) *fakeSource {
	return &fakeSource{id: id, ch: make(chan []float32, 16)}
}

func (f *fakeSource) ID() string             { return f.id }
func (f *fakeSource) Kind() domain.MediaKind { return domain.KindAudio }

func (f *fakeSource) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = true
	return nil
}

func (f *fakeSource) ReadPCM(ctx context.Context) ([]float32, int, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case s, ok := <-f.ch:
		if !ok {
			return nil, 0, io.EOF
		}
		return s, 48000, nil
	}
}

// videoOnly is a track without PCM access.
type videoOnly struct{}

func (videoOnly) ID() string             { return "cam" }
func (videoOnly) Kind() domain.MediaKind { return domain.KindVideo }
func (videoOnly) Stop() error            { return nil }

func noise(n int, amp float32) []float32 {
	r := rand.New(rand.NewPCG(1, 2))
	out := make([]float32, n)
	for i := range out {
		out[i] = amp * (2*r.Float32() - 1)
	}
	return out
}

type transitions struct {
	mu  sync.Mutex
	got []bool
}

func (t *transitions) record(_ domain.ParticipantID, v bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.got = append(t.got, v)
}

func (t *transitions) list() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.got...)
}
