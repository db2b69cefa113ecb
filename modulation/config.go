package modulation

import (
	"fmt"
	"slices"
)

const (
	// BaseFrequency is the modulation clock of the device in Hz.
	BaseFrequency = 40000

	DefaultSamplingFreq = 4000
	DefaultBufferSize   = 4000
	MinBufferSize       = 125
	MaxBufferSize       = 32000
)

// SamplingFreqs lists the supported sampling frequencies in Hz.
var SamplingFreqs = []int{125, 250, 500, 1000, 2000, 4000, 8000}

// ValidSamplingFreq reports whether freq is a supported sampling frequency.
func ValidSamplingFreq(freq int) bool {
	return slices.Contains(SamplingFreqs, freq)
}

type config struct {
	samplingFreq int
	bufferSize   int
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{samplingFreq: DefaultSamplingFreq, bufferSize: DefaultBufferSize}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option configures a modulation generator.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithSamplingFreq sets the sampling frequency, one of SamplingFreqs.
//
// Default: DefaultSamplingFreq.
func WithSamplingFreq(freq int) Option {
	return optFunc(func(cfg *config) error {
		if !ValidSamplingFreq(freq) {
			return fmt.Errorf("%w: %d Hz", ErrInvalidSamplingFreq, freq)
		}
		cfg.samplingFreq = freq

		return nil
	})
}

// WithBufferSize sets the sample buffer capacity. Longer waveforms are truncated.
//
// Default: DefaultBufferSize, range [MinBufferSize, MaxBufferSize].
func WithBufferSize(size int) Option {
	return optFunc(func(cfg *config) error {
		if size < MinBufferSize || size > MaxBufferSize {
			return fmt.Errorf("%w: %d", ErrInvalidBufferSize, size)
		}
		cfg.bufferSize = size

		return nil
	})
}
