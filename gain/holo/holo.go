package holo

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
	"runtime"

	"github.com/arloliu/go-autd3/gain"
	"github.com/arloliu/go-autd3/geometry"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/spatial/r3"
)

var (
	ErrNoFoci         = errors.New("holo: at least one focus is required")
	ErrInvalidAmp     = errors.New("holo: amplitudes must be finite and non-negative")
	ErrLengthMismatch = fmt.Errorf("holo: foci and amplitudes differ in length: %w", gain.ErrDimensionMismatch)
)

// minDistance guards the transfer function against a focus placed exactly on
// a transducer.
const minDistance = 1e-9

// Solver computes complex transducer drives for a problem.
type Solver interface {
	solve(p *problem) ([]complex128, error)
}

// problem is the transfer matrix from transducers to foci and the target
// amplitude of each focus.
type problem struct {
	g    *cmat
	amps []float64
}

func (p *problem) numFoci() int { return p.g.rows }

func (p *problem) numTrans() int { return p.g.cols }

// target returns the amplitudes as a complex vector.
func (p *problem) target() []complex128 {
	t := make([]complex128, len(p.amps))
	for i, a := range p.amps {
		t[i] = complex(a, 0)
	}

	return t
}

// achievableTargets rescales the amplitudes into the field magnitude produced
// by unit drives. With a single focus the target equals the maximum field.
func (p *problem) achievableTargets() []float64 {
	var total, maxAmp float64
	for k := 0; k < p.numFoci(); k++ {
		for _, v := range p.g.row(k) {
			total += cmplx.Abs(v)
		}
		maxAmp = max(maxAmp, p.amps[k])
	}

	out := make([]float64, len(p.amps))
	if maxAmp == 0 {
		return out
	}

	f := float64(p.numFoci())
	scale := total / f / (f * maxAmp)
	for k, a := range p.amps {
		out[k] = a * scale
	}

	return out
}

// backprop returns Gᴴ·a, the drive that sums every focus in phase.
func (p *problem) backprop() []complex128 {
	return p.g.adjMulVec(p.target())
}

// Holo is a multi-focus gain.
type Holo struct {
	foci       []geometry.Vector
	amps       []float64
	solver     Solver
	constraint AmplitudeConstraint
	cache      gain.Cache
}

var _ gain.Gain = (*Holo)(nil)

// New creates a hologram with foci and their normalized target amplitudes.
//
// A nil solver selects NewSDP(DefaultSDPParams()); a nil constraint selects
// Uniform(1).
func New(foci []geometry.Vector, amps []float64, solver Solver, constraint AmplitudeConstraint) (*Holo, error) {
	if len(foci) == 0 {
		return nil, ErrNoFoci
	}
	if len(foci) != len(amps) {
		return nil, ErrLengthMismatch
	}
	for _, a := range amps {
		if a < 0 || math.IsNaN(a) || math.IsInf(a, 0) {
			return nil, ErrInvalidAmp
		}
	}

	if solver == nil {
		solver = NewSDP(DefaultSDPParams())
	}
	if constraint == nil {
		constraint = Uniform(1)
	}

	return &Holo{
		foci:       append([]geometry.Vector(nil), foci...),
		amps:       append([]float64(nil), amps...),
		solver:     solver,
		constraint: constraint,
	}, nil
}

func (h *Holo) Calc(geo *geometry.Geometry) ([]gain.TransducerState, error) {
	return h.cache.Load(geo, func() ([]gain.TransducerState, error) {
		p, err := h.problem(geo)
		if err != nil {
			return nil, err
		}

		q, err := h.solver.solve(p)
		if err != nil {
			return nil, err
		}
		alignPhase(p, q)

		amps := h.constraint.apply(q)
		states := make([]gain.TransducerState, len(q))
		for i, v := range q {
			states[i] = gain.TransducerState{Duty: gain.ToDuty(amps[i]), Phase: gain.ToPhase(cmplx.Phase(v))}
		}

		return states, nil
	})
}

// problem builds the transfer matrix G, G[k][j] = exp(-i·k·r)/r with r the
// distance between focus k and transducer j. Rows are filled concurrently.
func (h *Holo) problem(geo *geometry.Geometry) (*problem, error) {
	positions := geo.Positions()
	wavenum := 2 * math.Pi / geo.Wavelength()
	g := newCMat(len(h.foci), len(positions))

	var eg errgroup.Group
	eg.SetLimit(runtime.GOMAXPROCS(0))
	for k, focus := range h.foci {
		eg.Go(func() error {
			row := g.row(k)
			for j, pos := range positions {
				r := max(r3.Norm(r3.Sub(focus, pos)), minDistance)
				row[j] = cmplx.Rect(1/r, -wavenum*r)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &problem{g: g, amps: h.amps}, nil
}

// alignPhase rotates q globally so the field at the first focus has zero phase.
func alignPhase(p *problem, q []complex128) {
	var f complex128
	for j, v := range p.g.row(0) {
		f += v * q[j]
	}
	if cmplx.Abs(f) == 0 {
		return
	}

	rot := cmplx.Conj(f) / complex(cmplx.Abs(f), 0)
	for j := range q {
		q[j] *= rot
	}
}

// AmplitudeConstraint maps solved complex drives to normalized amplitudes.
type AmplitudeConstraint interface {
	apply(q []complex128) []float64
}

type uniform float64

// Uniform drives every transducer with the same amplitude, keeping only the
// phase of the solution.
func Uniform(amp float64) AmplitudeConstraint { return uniform(amp) }

func (u uniform) apply(q []complex128) []float64 {
	out := make([]float64, len(q))
	for i := range out {
		out[i] = float64(u)
	}

	return out
}

type normalize struct{}

// Normalize scales the drive magnitudes so the largest one is 1.
func Normalize() AmplitudeConstraint { return normalize{} }

func (normalize) apply(q []complex128) []float64 {
	var m float64
	for _, v := range q {
		m = max(m, cmplx.Abs(v))
	}

	out := make([]float64, len(q))
	if m == 0 {
		return out
	}
	for i, v := range q {
		out[i] = cmplx.Abs(v) / m
	}

	return out
}

type dontCare struct{}

// DontCare uses the drive magnitudes as they are, clamped to [0, 1].
func DontCare() AmplitudeConstraint { return dontCare{} }

func (dontCare) apply(q []complex128) []float64 {
	out := make([]float64, len(q))
	for i, v := range q {
		out[i] = min(cmplx.Abs(v), 1)
	}

	return out
}
