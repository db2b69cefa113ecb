package holo

import (
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// LMParams configures the LM solver.
type LMParams struct {
	// Eps1 stops the iteration when the gradient infinity norm falls below it.
	Eps1 float64
	// Eps2 stops the iteration when the relative step length falls below it.
	Eps2 float64
	// Tau scales the initial damping relative to the largest diagonal of JᵀJ.
	Tau float64
	// KMax is the maximum number of iterations.
	KMax int
}

// DefaultLMParams returns the default LM parameters.
func DefaultLMParams() LMParams {
	return LMParams{Eps1: 1e-8, Eps2: 1e-8, Tau: 1e-3, KMax: 5}
}

// LM refines the transducer phases with the Levenberg-Marquardt method,
// minimizing Σ_k (|p_k|² - t_k²)² where p_k is the field at focus k and t_k
// its target. The phases start from the back-propagated focus drives.
type LM struct {
	params LMParams
}

var _ Solver = (*LM)(nil)

// NewLM creates an LM solver. Non-positive parameters select the defaults.
func NewLM(params LMParams) *LM {
	def := DefaultLMParams()
	if params.Eps1 <= 0 {
		params.Eps1 = def.Eps1
	}
	if params.Eps2 <= 0 {
		params.Eps2 = def.Eps2
	}
	if params.Tau <= 0 {
		params.Tau = def.Tau
	}
	if params.KMax <= 0 {
		params.KMax = def.KMax
	}

	return &LM{params: params}
}

type lmState struct {
	p       *problem
	targets []float64
	theta   []float64
	jac     *mat.Dense // F×N
	res     []float64
	grad    []float64
	cost    float64
}

func (st *lmState) drives(theta []float64) []complex128 {
	q := make([]complex128, len(theta))
	for j, t := range theta {
		q[j] = cmplx.Rect(1, t)
	}

	return q
}

func (st *lmState) evalCost(theta []float64) float64 {
	field := st.p.g.mulVec(st.drives(theta))
	var c float64
	for k, f := range field {
		a := cmplx.Abs(f)
		r := a*a - st.targets[k]*st.targets[k]
		c += r * r
	}

	return c / 2
}

// update recomputes the residual, the Jacobian and the gradient at theta.
func (st *lmState) update() {
	nf, nt := st.p.numFoci(), st.p.numTrans()
	q := st.drives(st.theta)
	field := st.p.g.mulVec(q)

	st.cost = 0
	for k := range nf {
		a := cmplx.Abs(field[k])
		st.res[k] = a*a - st.targets[k]*st.targets[k]
		st.cost += st.res[k] * st.res[k] / 2

		// d|p_k|²/dθ_j = -2·Im(conj(p_k)·G[k][j]·e^{iθ_j})
		pc := cmplx.Conj(field[k])
		for j := range nt {
			st.jac.Set(k, j, -2*imag(pc*st.p.g.at(k, j)*q[j]))
		}
	}

	for j := range nt {
		var s float64
		for k := range nf {
			s += st.jac.At(k, j) * st.res[k]
		}
		st.grad[j] = s
	}
}

// step solves (JᵀJ + μI)·h = -g through the F×F system (JJᵀ + μI)·s = J·g,
// h = -(g - Jᵀ·s)/μ.
func (st *lmState) step(mu float64) ([]float64, bool) {
	nf, nt := st.p.numFoci(), st.p.numTrans()

	jjt := mat.NewSymDense(nf, nil)
	for a := range nf {
		for b := a; b < nf; b++ {
			v := mat.Dot(st.jac.RowView(a), st.jac.RowView(b))
			if a == b {
				v += mu
			}
			jjt.SetSym(a, b, v)
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(jjt); !ok {
		return nil, false
	}

	jg := mat.NewVecDense(nf, nil)
	jg.MulVec(st.jac, mat.NewVecDense(nt, st.grad))

	var sol mat.VecDense
	if err := chol.SolveVecTo(&sol, jg); err != nil {
		return nil, false
	}

	var jts mat.VecDense
	jts.MulVec(st.jac.T(), &sol)

	h := make([]float64, nt)
	for j := range nt {
		h[j] = -(st.grad[j] - jts.AtVec(j)) / mu
	}

	return h, true
}

func (s *LM) solve(p *problem) ([]complex128, error) {
	nf, nt := p.numFoci(), p.numTrans()

	st := &lmState{
		p:       p,
		targets: p.achievableTargets(),
		theta:   make([]float64, nt),
		jac:     mat.NewDense(nf, nt, nil),
		res:     make([]float64, nf),
		grad:    make([]float64, nt),
	}
	for j, v := range p.backprop() {
		st.theta[j] = cmplx.Phase(v)
	}
	st.update()

	var diagMax float64
	for j := range nt {
		var d float64
		for k := range nf {
			d += st.jac.At(k, j) * st.jac.At(k, j)
		}
		diagMax = max(diagMax, d)
	}

	mu := s.params.Tau * diagMax
	if mu <= 0 {
		mu = s.params.Tau
	}
	nu := 2.0
	found := normInf(st.grad) <= s.params.Eps1

	next := make([]float64, nt)
	for k := 0; k < s.params.KMax && !found; k++ {
		h, ok := st.step(mu)
		if !ok {
			break
		}
		if norm2(h) <= s.params.Eps2*(norm2(st.theta)+s.params.Eps2) {
			break
		}

		for j := range nt {
			next[j] = st.theta[j] + h[j]
		}

		// predicted decrease ½·hᵀ(μh - g)
		var pred float64
		for j := range nt {
			pred += h[j] * (mu*h[j] - st.grad[j])
		}
		pred /= 2

		rho := (st.cost - st.evalCost(next)) / pred
		if pred > 0 && rho > 0 {
			copy(st.theta, next)
			st.update()
			found = normInf(st.grad) <= s.params.Eps1
			mu *= max(1.0/3, 1-math.Pow(2*rho-1, 3))
			nu = 2
		} else {
			mu *= nu
			nu *= 2
		}
	}

	return st.drives(st.theta), nil
}
