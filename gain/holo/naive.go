package holo

// naiveAlpha is the relative Tikhonov term keeping the minimum norm solution
// well defined when foci coincide.
const naiveAlpha = 1e-6

// Naive solves the least squares problem G·q = a with minimum norm.
type Naive struct{}

var _ Solver = (*Naive)(nil)

// NewNaive creates a Naive solver.
func NewNaive() *Naive { return &Naive{} }

func (*Naive) solve(p *problem) ([]complex128, error) {
	return regularizedPinv(p.g, nil, naiveAlpha, p.target())
}
