package holo

import (
	"errors"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// ErrSingular is returned when a regularized system cannot be factorized,
// which only happens for non-finite input.
var ErrSingular = errors.New("holo: singular system")

// cmat is a dense row-major complex matrix.
type cmat struct {
	rows, cols int
	data       []complex128
}

func newCMat(rows, cols int) *cmat {
	return &cmat{rows: rows, cols: cols, data: make([]complex128, rows*cols)}
}

func (m *cmat) at(i, j int) complex128 { return m.data[i*m.cols+j] }

func (m *cmat) set(i, j int, v complex128) { m.data[i*m.cols+j] = v }

func (m *cmat) row(i int) []complex128 { return m.data[i*m.cols : (i+1)*m.cols] }

// mulVec returns m·v.
func (m *cmat) mulVec(v []complex128) []complex128 {
	out := make([]complex128, m.rows)
	for i := range out {
		var s complex128
		for j, x := range m.row(i) {
			s += x * v[j]
		}
		out[i] = s
	}

	return out
}

// adjMulVec returns mᴴ·v.
func (m *cmat) adjMulVec(v []complex128) []complex128 {
	out := make([]complex128, m.cols)
	for i := 0; i < m.rows; i++ {
		vi := v[i]
		for j, x := range m.row(i) {
			out[j] += cmplx.Conj(x) * vi
		}
	}

	return out
}

// gram returns m·diag(w)·mᴴ. A nil w is the identity.
func (m *cmat) gram(w []float64) *cmat {
	out := newCMat(m.rows, m.rows)
	for i := 0; i < m.rows; i++ {
		ri := m.row(i)
		for k := i; k < m.rows; k++ {
			rk := m.row(k)
			var s complex128
			for j := range ri {
				t := ri[j] * cmplx.Conj(rk[j])
				if w != nil {
					t *= complex(w[j], 0)
				}
				s += t
			}
			out.set(i, k, s)
			out.set(k, i, cmplx.Conj(s))
		}
	}

	return out
}

// meanDiag returns the mean of the real part of the diagonal.
func (m *cmat) meanDiag() float64 {
	if m.rows == 0 {
		return 0
	}
	var s float64
	for i := 0; i < m.rows; i++ {
		s += real(m.at(i, i))
	}

	return s / float64(m.rows)
}

// addDiag adds v to every diagonal element in place.
func (m *cmat) addDiag(v float64) {
	for i := 0; i < m.rows; i++ {
		m.set(i, i, m.at(i, i)+complex(v, 0))
	}
}

// embed returns the real symmetric embedding [[A, -B], [B, A]] of the
// Hermitian matrix h = A + iB.
func embed(h *cmat) *mat.SymDense {
	n := h.rows
	e := mat.NewSymDense(2*n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			v := h.at(i, j)
			e.SetSym(i, j, real(v))
			e.SetSym(n+i, n+j, real(v))
			e.SetSym(i, n+j, -imag(v))
			e.SetSym(j, n+i, imag(v))
		}
	}

	return e
}

// hermSolve solves h·x = b for a Hermitian positive definite h.
func hermSolve(h *cmat, b []complex128) ([]complex128, error) {
	n := h.rows
	var chol mat.Cholesky
	if ok := chol.Factorize(embed(h)); !ok {
		return nil, ErrSingular
	}

	rhs := mat.NewVecDense(2*n, nil)
	for i, v := range b {
		rhs.SetVec(i, real(v))
		rhs.SetVec(n+i, imag(v))
	}

	var x mat.VecDense
	if err := chol.SolveVecTo(&x, rhs); err != nil {
		return nil, ErrSingular
	}

	out := make([]complex128, n)
	for i := range out {
		out[i] = complex(x.AtVec(i), x.AtVec(n+i))
	}

	return out, nil
}

// hermPrincipal returns a unit eigenvector of the largest eigenvalue of the
// Hermitian matrix h.
func hermPrincipal(h *cmat) ([]complex128, error) {
	n := h.rows
	var es mat.EigenSym
	if ok := es.Factorize(embed(h), true); !ok {
		return nil, ErrSingular
	}

	// eigenvalues are ascending; every eigenvalue of h appears twice
	var vecs mat.Dense
	es.VectorsTo(&vecs)
	last := 2*n - 1

	out := make([]complex128, n)
	for i := range out {
		out[i] = complex(vecs.At(i, last), vecs.At(n+i, last))
	}

	return out, nil
}

// regularizedPinv returns q = W·Gᴴ·(G·W·Gᴴ + alpha·I)^-1·b where W = diag(w) and
// alpha is relative to the mean diagonal of G·W·Gᴴ. It is the minimizer of
// |G·q - b|² + alpha·qᴴ·W^-1·q and only needs an F×F solve.
func regularizedPinv(g *cmat, w []float64, alpha float64, b []complex128) ([]complex128, error) {
	gram := g.gram(w)
	reg := alpha * gram.meanDiag()
	if reg <= 0 || math.IsNaN(reg) {
		reg = 1e-12
	}
	gram.addDiag(reg)

	y, err := hermSolve(gram, b)
	if err != nil {
		return nil, err
	}

	q := g.adjMulVec(y)
	if w != nil {
		for j := range q {
			q[j] *= complex(w[j], 0)
		}
	}

	return q, nil
}

func normInf(v []float64) float64 {
	var m float64
	for _, x := range v {
		m = max(m, math.Abs(x))
	}

	return m
}

func norm2(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}

	return math.Sqrt(s)
}
