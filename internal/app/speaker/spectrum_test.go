package speaker

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpectrumSilenceIsZero(t *testing.T) {
	s := NewSpectrum(512, 0, -100, -30)
	assert.Equal(t, 256, s.Bins())
	assert.Zero(t, s.Mean(make([]float32, 512)))
	assert.Zero(t, s.Mean(nil))
}

func TestSpectrumLoudNoiseAboveThreshold(t *testing.T) {
	s := NewSpectrum(512, 0, -100, -30)
	assert.Greater(t, s.Mean(noise(512, 0.5)), 15.0)
}

func TestSpectrumQuietNoiseBelowThreshold(t *testing.T) {
	s := NewSpectrum(512, 0, -100, -30)
	assert.Less(t, s.Mean(noise(512, 0.0001)), 15.0)
}

func TestSpectrumBytesAreClamped(t *testing.T) {
	s := NewSpectrum(256, 0, -100, -30)
	loud := make([]float32, 256)
	for i := range loud {
		loud[i] = 1
	}
	for _, b := range s.Bytes(loud) {
		assert.LessOrEqual(t, int(b), 255)
	}
}

func TestSpectrumSmoothingCarriesEnergy(t *testing.T) {
	s := NewSpectrum(512, 0.8, -100, -30)
	s.Mean(noise(512, 0.5))
	assert.Greater(t, s.Mean(make([]float32, 512)), 0.0)

	s.Reset()
	assert.Zero(t, s.Mean(make([]float32, 512)))
}

func TestSpectrumShortInputIsPadded(t *testing.T) {
	s := NewSpectrum(512, 0, -100, -30)
	assert.Greater(t, s.Mean(noise(400, 0.5)), 0.0)
	assert.Greater(t, s.Mean(noise(2048, 0.5)), 15.0)
}
