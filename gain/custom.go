package gain

import (
	"fmt"

	"github.com/arloliu/go-autd3/geometry"
)

// Custom drives the transducers with caller supplied duty and phase arrays.
type Custom struct {
	duty  []uint8
	phase []uint8
}

var _ Gain = (*Custom)(nil)

// NewCustom creates a gain from explicit per-transducer arrays.
//
// The arrays are copied. Their length is checked against the geometry when the
// gain is evaluated.
func NewCustom(duty, phase []uint8) *Custom {
	return &Custom{duty: append([]uint8(nil), duty...), phase: append([]uint8(nil), phase...)}
}

// NewCustomStates creates a gain from a state array, e.g. the result of
// another gain.
func NewCustomStates(states []TransducerState) *Custom {
	c := &Custom{duty: make([]uint8, len(states)), phase: make([]uint8, len(states))}
	for i, s := range states {
		c.duty[i], c.phase[i] = s.Duty, s.Phase
	}

	return c
}

func (g *Custom) Calc(geo *geometry.Geometry) ([]TransducerState, error) {
	if geo == nil {
		return nil, ErrNilGeometry
	}

	n := geo.NumTransducers()
	if len(g.duty) != n || len(g.phase) != n {
		return nil, fmt.Errorf("%w: got duty=%d phase=%d, want %d", ErrDimensionMismatch, len(g.duty), len(g.phase), n)
	}

	states := make([]TransducerState, n)
	for i := range states {
		states[i] = TransducerState{Duty: g.duty[i], Phase: g.phase[i]}
	}

	return states, nil
}
