package holo

import (
	"math"
	"math/cmplx"
)

// EVDParams configures the EVD solver.
type EVDParams struct {
	// Gamma is the exponent of the per-transducer regularization weight.
	Gamma float64
}

// DefaultEVDParams returns the default EVD parameters.
func DefaultEVDParams() EVDParams {
	return EVDParams{Gamma: 1}
}

// EVD picks the focus phases from the principal eigenvector of the focus
// interference matrix, then solves a weighted regularized least squares
// problem for the transducer drives.
type EVD struct {
	params EVDParams
}

var _ Solver = (*EVD)(nil)

// NewEVD creates an EVD solver. A non-positive Gamma selects the default.
func NewEVD(params EVDParams) *EVD {
	if params.Gamma <= 0 {
		params.Gamma = DefaultEVDParams().Gamma
	}

	return &EVD{params: params}
}

func (s *EVD) solve(p *problem) ([]complex128, error) {
	nf, nt := p.numFoci(), p.numTrans()

	// R = G·X with X[j][k] = a_k·conj(G[k][j])/|G[k][j]|²/N, the drive
	// focusing on k alone.
	x := newCMat(nt, nf)
	for k := range nf {
		for j, v := range p.g.row(k) {
			a2 := real(v)*real(v) + imag(v)*imag(v)
			x.set(j, k, complex(p.amps[k]/a2/float64(nt), 0)*cmplx.Conj(v))
		}
	}

	r := newCMat(nf, nf)
	for i := range nf {
		gi := p.g.row(i)
		for k := range nf {
			var s complex128
			for j, v := range gi {
				s += v * x.at(j, k)
			}
			r.set(i, k, s)
		}
	}

	// only the Hermitian part contributes to the principal direction
	h := newCMat(nf, nf)
	for i := range nf {
		for k := i; k < nf; k++ {
			v := (r.at(i, k) + cmplx.Conj(r.at(k, i))) / 2
			h.set(i, k, v)
			h.set(k, i, cmplx.Conj(v))
		}
	}

	e, err := hermPrincipal(h)
	if err != nil {
		return nil, err
	}

	f := make([]complex128, nf)
	for k := range nf {
		f[k] = complex(p.amps[k], 0) * unit(e[k])
	}

	// weight w_j = 1/sigma_j² with sigma_j = (sqrt(Σ_k |G[k][j]|·a_k / F))^gamma
	w := make([]float64, nt)
	for j := range nt {
		var sum float64
		for k := range nf {
			sum += cmplx.Abs(p.g.at(k, j)) * p.amps[k]
		}
		sigma := math.Pow(math.Sqrt(sum/float64(nf)), s.params.Gamma)
		if sigma == 0 {
			sigma = 1
		}
		w[j] = 1 / (sigma * sigma)
	}

	return regularizedPinv(p.g, w, 1, f)
}
