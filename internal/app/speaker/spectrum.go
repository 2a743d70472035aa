package speaker

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
)

// Spectrum reproduces the byte frequency data of a Web Audio AnalyserNode:
// Blackman window, FFT magnitude normalised by the window length, exponential
// smoothing across frames, then decibels mapped linearly onto 0..255.
type Spectrum struct {
	size      int
	smoothing float64
	minDB     float64
	maxDB     float64

	fft    *fourier.FFT
	window []float64
	frame  []float64
	coeffs []complex128
	smooth []float64
	bytes  []uint8
}

func NewSpectrum(size int, smoothing, minDB, maxDB float64) *Spectrum {
	s := &Spectrum{
		size:      size,
		smoothing: smoothing,
		minDB:     minDB,
		maxDB:     maxDB,
		fft:       fourier.NewFFT(size),
		window:    blackman(size),
		frame:     make([]float64, size),
		coeffs:    make([]complex128, size/2+1),
		smooth:    make([]float64, size/2),
		bytes:     make([]uint8, size/2),
	}
	return s
}

// Bins is the number of frequency bins, half the window size.
func (s *Spectrum) Bins() int { return s.size / 2 }

// Bytes computes one analysis frame over the most recent samples. Shorter input is
// left-padded with silence. The returned slice is reused by the next call.
func (s *Spectrum) Bytes(samples []float32) []uint8 {
	if len(samples) > s.size {
		samples = samples[len(samples)-s.size:]
	}
	pad := s.size - len(samples)
	for i := 0; i < pad; i++ {
		s.frame[i] = 0
	}
	for i, v := range samples {
		s.frame[pad+i] = float64(v) * s.window[pad+i]
	}

	s.coeffs = s.fft.Coefficients(s.coeffs, s.frame)
	scale := 255 / (s.maxDB - s.minDB)
	n := float64(s.size)
	for k := range s.smooth {
		mag := math.Hypot(real(s.coeffs[k]), imag(s.coeffs[k])) / n
		s.smooth[k] = s.smoothing*s.smooth[k] + (1-s.smoothing)*mag
		db := 20 * math.Log10(s.smooth[k])
		v := math.Floor(scale * (db - s.minDB))
		switch {
		case math.IsNaN(v) || v < 0:
			s.bytes[k] = 0
		case v > 255:
			s.bytes[k] = 255
		default:
			s.bytes[k] = uint8(v)
		}
	}
	return s.bytes
}

// Mean is the average byte magnitude of one analysis frame.
func (s *Spectrum) Mean(samples []float32) float64 {
	bins := s.Bytes(samples)
	if len(bins) == 0 {
		return 0
	}
	sum := 0
	for _, b := range bins {
		sum += int(b)
	}
	return float64(sum) / float64(len(bins))
}

// Reset drops smoothing history.
func (s *Spectrum) Reset() {
	clear(s.smooth)
}

func blackman(n int) []float64 {
	const a0, a1, a2 = 0.42, 0.5, 0.08
	w := make([]float64, n)
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(n)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return w
}
