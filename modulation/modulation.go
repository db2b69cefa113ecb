package modulation

import (
	"errors"
	"math"

	"github.com/arloliu/go-autd3/internal/util"
)

var (
	ErrInvalidSamplingFreq = errors.New("modulation: unsupported sampling frequency")
	ErrInvalidBufferSize   = errors.New("modulation: buffer size out of range")
	ErrInvalidFrequency    = errors.New("modulation: frequency must be positive")
	ErrUnsupportedFormat   = errors.New("modulation: unsupported audio format")
	ErrEmpty               = errors.New("modulation: no samples")
)

// Modulation is an immutable sequence of amplitude samples.
type Modulation struct {
	samples      []uint8
	samplingFreq int
}

func newModulation(samples []uint8, cfg *config) *Modulation {
	if len(samples) > cfg.bufferSize {
		samples = samples[:cfg.bufferSize]
	}

	return &Modulation{samples: samples, samplingFreq: cfg.samplingFreq}
}

// Samples returns a copy of the samples.
func (m *Modulation) Samples() []uint8 {
	return util.CloneSlice(m.samples, 0)
}

// Len returns the number of samples.
func (m *Modulation) Len() int { return len(m.samples) }

// SamplingFreq returns the sampling frequency in Hz.
func (m *Modulation) SamplingFreq() int { return m.samplingFreq }

// SamplingFreqDiv returns the divider of BaseFrequency giving SamplingFreq.
func (m *Modulation) SamplingFreqDiv() uint16 {
	return uint16(BaseFrequency / m.samplingFreq)
}

// Cursor returns a playback cursor at the first sample.
func (m *Modulation) Cursor() *Cursor {
	return &Cursor{mod: m}
}

// Cursor plays a modulation cyclically. It is not safe for concurrent use.
type Cursor struct {
	mod *Modulation
	pos int
}

// Pos returns the index of the next sample.
func (c *Cursor) Pos() int { return c.pos }

// Next returns the current sample and advances, wrapping to 0 after the last.
func (c *Cursor) Next() uint8 {
	v := c.mod.samples[c.pos]
	c.pos++
	if c.pos == len(c.mod.samples) {
		c.pos = 0
	}

	return v
}

// Read fills p with consecutive samples and returns len(p).
func (c *Cursor) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = c.Next()
	}

	return len(p), nil
}

// Reset rewinds the cursor to the first sample.
func (c *Cursor) Reset() { c.pos = 0 }

// toSample maps a normalized amplitude to an 8-bit sample.
func toSample(amp float64) uint8 {
	if math.IsNaN(amp) {
		return 0
	}

	return uint8(math.Round(util.Clamp(amp, 0, 1) * 255))
}

// period returns the number of samples of one exact period of freq.
func period(freq int, cfg *config) (int, error) {
	if freq <= 0 {
		return 0, ErrInvalidFrequency
	}

	return cfg.samplingFreq / util.GCD(cfg.samplingFreq, freq), nil
}
