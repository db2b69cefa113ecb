package modulation

import (
	"math"
)

// Static creates a modulation holding a constant amplitude.
func Static(amp float64, opts ...Option) (*Modulation, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return newModulation([]uint8{toSample(amp)}, cfg), nil
}

// Sine creates offset + amp/2·sin(2π·freq·t). Frequencies above the Nyquist
// limit of the sampling frequency alias.
func Sine(freq int, amp, offset float64, opts ...Option) (*Modulation, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	n, err := period(freq, cfg)
	if err != nil {
		return nil, err
	}

	samples := make([]uint8, n)
	step := 2 * math.Pi * float64(freq) / float64(cfg.samplingFreq)
	for i := range samples {
		samples[i] = toSample(offset + amp/2*math.Sin(step*float64(i)))
	}

	return newModulation(samples, cfg), nil
}

// Square creates a square wave alternating between high and low with the
// given fraction of the period spent high.
func Square(freq int, low, high, duty float64, opts ...Option) (*Modulation, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	n, err := period(freq, cfg)
	if err != nil {
		return nil, err
	}

	lo, hi := toSample(low), toSample(high)
	edge := int(math.Round(float64(n) * math.Max(0, math.Min(duty, 1))))

	samples := make([]uint8, n)
	for i := range samples {
		if i < edge {
			samples[i] = hi
		} else {
			samples[i] = lo
		}
	}

	return newModulation(samples, cfg), nil
}

// Saw creates a rising ramp from 0 to full amplitude once per period.
func Saw(freq int, opts ...Option) (*Modulation, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}
	n, err := period(freq, cfg)
	if err != nil {
		return nil, err
	}

	samples := make([]uint8, n)
	for i := range samples {
		cycle := float64(i) * float64(freq) / float64(cfg.samplingFreq)
		samples[i] = toSample(cycle - math.Floor(cycle))
	}

	return newModulation(samples, cfg), nil
}

// Custom creates a modulation from raw samples. The slice is copied.
func Custom(samples []uint8, opts ...Option) (*Modulation, error) {
	if len(samples) == 0 {
		return nil, ErrEmpty
	}
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return newModulation(append([]uint8(nil), samples...), cfg), nil
}
