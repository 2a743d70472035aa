package speaker

import "time"

// MinInterval is the render-loop cadence; analysis never polls faster than this.
const MinInterval = 16 * time.Millisecond

type Config struct {
	Threshold   float64       `mapstructure:"threshold"`
	Interval    time.Duration `mapstructure:"interval"`
	FFTSize     int           `mapstructure:"fft_size"`
	Smoothing   float64       `mapstructure:"smoothing"`
	MinDecibels float64       `mapstructure:"min_decibels"`
	MaxDecibels float64       `mapstructure:"max_decibels"`
	// StaleAfter treats a source that produced nothing for this long as silent.
	StaleAfter time.Duration `mapstructure:"stale_after"`
}

func DefaultConfig() Config {
	return Config{
		Threshold:   15,
		Interval:    MinInterval,
		FFTSize:     512,
		Smoothing:   0.8,
		MinDecibels: -100,
		MaxDecibels: -30,
		StaleAfter:  250 * time.Millisecond,
	}
}

// normalized fills zero values from DefaultConfig and clamps the cadence.
func (c Config) normalized() Config {
	d := DefaultConfig()
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.Interval < MinInterval {
		c.Interval = MinInterval
	}
	if c.FFTSize < 32 || c.FFTSize > 32768 || c.FFTSize&(c.FFTSize-1) != 0 {
		c.FFTSize = d.FFTSize
	}
	if c.Smoothing < 0 || c.Smoothing >= 1 {
		c.Smoothing = d.Smoothing
	}
	if c.MaxDecibels <= c.MinDecibels {
		c.MinDecibels, c.MaxDecibels = d.MinDecibels, d.MaxDecibels
	}
	if c.StaleAfter <= 0 {
		c.StaleAfter = d.StaleAfter
	}
	return c
}
