package holo

import (
	"math"
	"math/cmplx"
)

// GreedyParams configures the Greedy solver.
type GreedyParams struct {
	// PhaseDiv is the number of candidate phases tried per transducer.
	PhaseDiv int
}

// DefaultGreedyParams returns the default Greedy parameters.
func DefaultGreedyParams() GreedyParams {
	return GreedyParams{PhaseDiv: 16}
}

// Greedy fixes the transducers one by one in index order, choosing for each
// the candidate phase that brings the field magnitude at the foci closest to
// the targets.
type Greedy struct {
	params GreedyParams
}

var _ Solver = (*Greedy)(nil)

// NewGreedy creates a Greedy solver. A PhaseDiv below 2 selects the default.
func NewGreedy(params GreedyParams) *Greedy {
	if params.PhaseDiv < 2 {
		params.PhaseDiv = DefaultGreedyParams().PhaseDiv
	}

	return &Greedy{params: params}
}

func (s *Greedy) solve(p *problem) ([]complex128, error) {
	nf, nt := p.numFoci(), p.numTrans()
	targets := p.achievableTargets()

	candidates := make([]complex128, s.params.PhaseDiv)
	for i := range candidates {
		candidates[i] = cmplx.Rect(1, 2*math.Pi*float64(i)/float64(s.params.PhaseDiv))
	}

	field := make([]complex128, nf)
	q := make([]complex128, nt)
	for j := range nt {
		best, bestCost := candidates[0], math.Inf(1)
		for _, c := range candidates {
			var cost float64
			for k := range nf {
				cost += math.Abs(cmplx.Abs(field[k]+p.g.at(k, j)*c) - targets[k])
			}
			if cost < bestCost {
				best, bestCost = c, cost
			}
		}

		q[j] = best
		for k := range nf {
			field[k] += p.g.at(k, j) * best
		}
	}

	return q, nil
}
