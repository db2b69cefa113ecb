package holo

import "math/cmplx"

// GSParams configures the GS solver.
type GSParams struct {
	// Repeat is the number of forward/backward propagation rounds.
	Repeat int
}

// DefaultGSParams returns the default GS parameters.
func DefaultGSParams() GSParams {
	return GSParams{Repeat: 100}
}

// GS retrieves the transducer phases by alternately imposing the target
// amplitudes at the foci and unit magnitude at the transducers.
type GS struct {
	params GSParams
}

var _ Solver = (*GS)(nil)

// NewGS creates a GS solver. A non-positive Repeat selects the default.
func NewGS(params GSParams) *GS {
	if params.Repeat <= 0 {
		params.Repeat = DefaultGSParams().Repeat
	}

	return &GS{params: params}
}

func (s *GS) solve(p *problem) ([]complex128, error) {
	q := make([]complex128, p.numTrans())
	for j := range q {
		q[j] = 1
	}

	psi := make([]complex128, p.numFoci())
	for range s.params.Repeat {
		field := p.g.mulVec(q)
		for k, f := range field {
			psi[k] = complex(p.amps[k], 0) * unit(f)
		}

		q = p.g.adjMulVec(psi)
		for j, v := range q {
			q[j] = unit(v)
		}
	}

	return q, nil
}

// unit returns v/|v|, or 1 for zero.
func unit(v complex128) complex128 {
	a := cmplx.Abs(v)
	if a == 0 {
		return 1
	}

	return v / complex(a, 0)
}
