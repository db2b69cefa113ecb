package gain

import (
	"errors"
	"math"
	"sync"

	"github.com/arloliu/go-autd3/geometry"
	"github.com/arloliu/go-autd3/internal/util"
)

var (
	// ErrDimensionMismatch is returned when caller supplied arrays do not match
	// the number of transducers of the geometry.
	ErrDimensionMismatch = errors.New("gain: dimension mismatch")
	// ErrNilGeometry is returned when a gain is evaluated without a geometry.
	ErrNilGeometry = errors.New("gain: nil geometry")
)

// TransducerState is the drive state of one transducer.
type TransducerState struct {
	// Duty is the pulse width ratio, 0 (off) to 255 (half duty, full output).
	Duty uint8
	// Phase is the phase step of a 256 step cycle.
	Phase uint8
}

// Gain maps a geometry to the drive state of each of its transducers, in
// global transducer index order.
type Gain interface {
	Calc(geo *geometry.Geometry) ([]TransducerState, error)
}

// ToDuty maps a normalized amplitude to a duty value.
//
// The pressure emitted by a transducer driven with a pulse of width D is
// proportional to sin(pi*D/511), so duty = round(511/pi * asin(amp)). The result
// is clamped to [0, 255] and amp is clamped to [0, 1].
func ToDuty(amp float64) uint8 {
	if math.IsNaN(amp) {
		return 0
	}
	amp = util.Clamp(amp, 0, 1)
	d := math.Round(511 / math.Pi * math.Asin(amp))

	return uint8(util.Clamp(d, 0, 255))
}

// ToPhase maps a phase in radians to a phase step.
func ToPhase(rad float64) uint8 {
	if math.IsNaN(rad) || math.IsInf(rad, 0) {
		return 0
	}
	cycle := rad / (2 * math.Pi)
	cycle -= math.Floor(cycle)

	return uint8(int(math.Round(cycle*256)) & 0xFF)
}

// PhaseToRad converts a phase step back to radians in [0, 2pi).
func PhaseToRad(p uint8) float64 {
	return 2 * math.Pi * float64(p) / 256
}

// Cache memoizes the result of a gain for one geometry layout.
//
// The result is recomputed when a different geometry is passed or the geometry
// was modified since the last computation. Callers receive a private copy.
type Cache struct {
	mu      sync.Mutex
	geo     *geometry.Geometry
	version uint64
	states  []TransducerState
}

// Load returns the cached states for geo, calling build on a miss.
func (c *Cache) Load(geo *geometry.Geometry, build func() ([]TransducerState, error)) ([]TransducerState, error) {
	if geo == nil {
		return nil, ErrNilGeometry
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	ver := geo.Version()
	if c.states != nil && c.geo == geo && c.version == ver {
		return util.CloneSlice(c.states, 0), nil
	}

	states, err := build()
	if err != nil {
		return nil, err
	}
	c.geo, c.version, c.states = geo, ver, states

	return util.CloneSlice(states, 0), nil
}

// fill evaluates fn for every transducer position.
func fill(geo *geometry.Geometry, fn func(pos geometry.Vector) TransducerState) []TransducerState {
	positions := geo.Positions()
	states := make([]TransducerState, len(positions))
	for i, p := range positions {
		states[i] = fn(p)
	}

	return states
}
