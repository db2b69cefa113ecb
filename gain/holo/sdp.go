package holo

import (
	"math"
	"math/cmplx"
	"math/rand/v2"
)

// sdpSeed fixes the coordinate order so that results are reproducible.
const sdpSeed = 0x5d9

// SDPParams configures the SDP solver.
type SDPParams struct {
	// Alpha is the relative regularization of the pseudo inverse.
	Alpha float64
	// Lambda scales the off-diagonal update of each block step.
	Lambda float64
	// Repeat is the number of block coordinate descent steps.
	Repeat int
}

// DefaultSDPParams returns the default SDP parameters.
func DefaultSDPParams() SDPParams {
	return SDPParams{Alpha: 1e-3, Lambda: 0.9, Repeat: 100}
}

// SDP relaxes the phase retrieval of the foci into a semidefinite program and
// solves it by block coordinate descent.
type SDP struct {
	params SDPParams
}

var _ Solver = (*SDP)(nil)

// NewSDP creates an SDP solver. Non-positive parameters select the defaults.
func NewSDP(params SDPParams) *SDP {
	def := DefaultSDPParams()
	if params.Alpha <= 0 {
		params.Alpha = def.Alpha
	}
	if params.Lambda <= 0 {
		params.Lambda = def.Lambda
	}
	if params.Repeat <= 0 {
		params.Repeat = def.Repeat
	}

	return &SDP{params: params}
}

func (s *SDP) solve(p *problem) ([]complex128, error) {
	nf := p.numFoci()

	// B+ = Gᴴ(GGᴴ + αI)^-1, applied column by column to build I - G·B+.
	gram := p.g.gram(nil)
	gram.addDiag(s.params.Alpha * gram.meanDiag())

	proj := newCMat(nf, nf)
	e := make([]complex128, nf)
	for c := range nf {
		clear(e)
		e[c] = 1
		y, err := hermSolve(gram, e)
		if err != nil {
			return nil, err
		}
		col := p.g.mulVec(p.g.adjMulVec(y))
		for r := range nf {
			v := -col[r]
			if r == c {
				v++
			}
			proj.set(r, c, v)
		}
	}

	// M = P(I - G·B+)P with P = diag(amps), made exactly Hermitian.
	m := newCMat(nf, nf)
	for r := range nf {
		for c := r; c < nf; c++ {
			v := (proj.at(r, c) + cmplx.Conj(proj.at(c, r))) / 2
			v *= complex(p.amps[r]*p.amps[c], 0)
			m.set(r, c, v)
			m.set(c, r, cmplx.Conj(v))
		}
	}

	x := newCMat(nf, nf)
	for i := range nf {
		x.set(i, i, 1)
	}

	rng := rand.New(rand.NewPCG(sdpSeed, sdpSeed))
	mc := make([]complex128, nf)
	for range s.params.Repeat {
		ii := rng.IntN(nf)

		for r := range nf {
			mc[r] = m.at(r, ii)
		}
		mc[ii] = 0

		xc := x.mulVec(mc)
		var gamma complex128
		for r := range nf {
			gamma += cmplx.Conj(xc[r]) * mc[r]
		}

		if g := real(gamma); g > 0 {
			scale := complex(-math.Sqrt(s.params.Lambda/g), 0)
			for r := range nf {
				xc[r] *= scale
			}
		} else {
			clear(xc)
		}

		for r := range nf {
			if r == ii {
				continue
			}
			x.set(r, ii, xc[r])
			x.set(ii, r, cmplx.Conj(xc[r]))
		}
	}

	u, err := hermPrincipal(x)
	if err != nil {
		return nil, err
	}

	b := make([]complex128, nf)
	for k := range nf {
		b[k] = complex(p.amps[k], 0) * u[k]
	}

	return regularizedPinv(p.g, nil, s.params.Alpha, b)
}
