package holo

import (
	"math"
	"math/cmplx"
	"testing"

	"github.com/arloliu/go-autd3/gain"
	"github.com/arloliu/go-autd3/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGeometry() *geometry.Geometry {
	geo := geometry.New()
	geo.AddDevice(geometry.Vector{}, geometry.Vector{}, 0)

	return geo
}

func solvers() map[string]Solver {
	return map[string]Solver{
		"SDP":    NewSDP(DefaultSDPParams()),
		"EVD":    NewEVD(DefaultEVDParams()),
		"GS":     NewGS(DefaultGSParams()),
		"Greedy": NewGreedy(DefaultGreedyParams()),
		"Naive":  NewNaive(),
		"LM":     NewLM(DefaultLMParams()),
	}
}

// phaseDist is the circular distance between two phase steps.
func phaseDist(a, b uint8) int {
	d := int(a) - int(b)
	if d < 0 {
		d = -d
	}

	return min(d, 256-d)
}

// fieldAt returns |Σ_j exp(-ikr)/r · amp_j·exp(iφ_j)| at p.
func fieldAt(geo *geometry.Geometry, states []gain.TransducerState, p geometry.Vector) float64 {
	k := 2 * math.Pi / geo.Wavelength()
	var f complex128
	for j, pos := range geo.Positions() {
		r := math.Sqrt((p.X-pos.X)*(p.X-pos.X) + (p.Y-pos.Y)*(p.Y-pos.Y) + (p.Z-pos.Z)*(p.Z-pos.Z))
		amp := math.Sin(math.Pi * float64(states[j].Duty) / 511)
		f += cmplx.Rect(amp/r, -k*r+gain.PhaseToRad(states[j].Phase))
	}

	return cmplx.Abs(f)
}

func maxField(geo *geometry.Geometry, p geometry.Vector) float64 {
	states, _ := gain.NewFocalPoint(p, 1).Calc(geo)
	return fieldAt(geo, states, p)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, nil, nil)
	require.ErrorIs(t, err, ErrNoFoci)

	_, err = New([]geometry.Vector{{Z: 100}}, []float64{1, 1}, nil, nil)
	require.ErrorIs(t, err, gain.ErrDimensionMismatch)

	_, err = New([]geometry.Vector{{Z: 100}}, []float64{-1}, nil, nil)
	require.ErrorIs(t, err, ErrInvalidAmp)

	h, err := New([]geometry.Vector{{Z: 100}}, []float64{1}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &SDP{}, h.solver)
}

func TestHolo_SingleFocusDegeneratesToFocalPoint(t *testing.T) {
	geo := newTestGeometry()
	focus := geometry.Vector{X: 90, Y: 70, Z: 150}

	want, err := gain.NewFocalPoint(focus, 1).Calc(geo)
	require.NoError(t, err)

	for name, solver := range solvers() {
		t.Run(name, func(t *testing.T) {
			h, err := New([]geometry.Vector{focus}, []float64{1}, solver, nil)
			require.NoError(t, err)

			got, err := h.Calc(geo)
			require.NoError(t, err)
			require.Len(t, got, len(want))

			tol := 1
			if name == "Greedy" {
				// phases are restricted to the candidate set
				tol = 256 / DefaultGreedyParams().PhaseDiv
			}
			for i := range want {
				assert.Equal(t, want[i].Duty, got[i].Duty, "transducer %d", i)
				assert.LessOrEqual(t, phaseDist(want[i].Phase, got[i].Phase), tol, "transducer %d", i)
			}
		})
	}
}

func TestHolo_TwoFoci(t *testing.T) {
	geo := newTestGeometry()
	foci := []geometry.Vector{{X: 70, Y: 70, Z: 150}, {X: 110, Y: 70, Z: 150}}

	for name, solver := range solvers() {
		t.Run(name, func(t *testing.T) {
			h, err := New(foci, []float64{1, 1}, solver, nil)
			require.NoError(t, err)

			states, err := h.Calc(geo)
			require.NoError(t, err)

			for _, f := range foci {
				assert.Greater(t, fieldAt(geo, states, f), 0.3*maxField(geo, f))
			}
		})
	}
}

func TestHolo_Deterministic(t *testing.T) {
	geo := newTestGeometry()
	foci := []geometry.Vector{{X: 60, Y: 60, Z: 150}, {X: 120, Y: 60, Z: 150}, {X: 90, Y: 100, Z: 150}}
	amps := []float64{1, 0.8, 0.6}

	for name, mk := range map[string]func() Solver{
		"SDP": func() Solver { return NewSDP(DefaultSDPParams()) },
		"LM":  func() Solver { return NewLM(DefaultLMParams()) },
	} {
		t.Run(name, func(t *testing.T) {
			a, err := New(foci, amps, mk(), Normalize())
			require.NoError(t, err)
			b, err := New(foci, amps, mk(), Normalize())
			require.NoError(t, err)

			sa, err := a.Calc(geo)
			require.NoError(t, err)
			sb, err := b.Calc(geo)
			require.NoError(t, err)
			assert.Equal(t, sa, sb)
		})
	}
}

func TestAmplitudeConstraints(t *testing.T) {
	q := []complex128{2i, 1, 0}

	assert.Equal(t, []float64{0.5, 0.5, 0.5}, Uniform(0.5).apply(q))
	assert.Equal(t, []float64{1, 0.5, 0}, Normalize().apply(q))
	assert.Equal(t, []float64{1, 1, 0}, DontCare().apply(q))
	assert.Equal(t, []float64{0, 0}, Normalize().apply([]complex128{0, 0}))
}

func TestDefaults(t *testing.T) {
	assert.Equal(t, DefaultSDPParams(), NewSDP(SDPParams{}).params)
	assert.Equal(t, DefaultEVDParams(), NewEVD(EVDParams{}).params)
	assert.Equal(t, DefaultGSParams(), NewGS(GSParams{}).params)
	assert.Equal(t, DefaultGreedyParams(), NewGreedy(GreedyParams{}).params)
	assert.Equal(t, DefaultLMParams(), NewLM(LMParams{}).params)
}

func TestHermSolveAndPrincipal(t *testing.T) {
	h := newCMat(2, 2)
	h.set(0, 0, 2)
	h.set(0, 1, 1i)
	h.set(1, 0, -1i)
	h.set(1, 1, 2)

	x, err := hermSolve(h, []complex128{1, 0})
	require.NoError(t, err)
	got := h.mulVec(x)
	assert.InDelta(t, 1, real(got[0]), 1e-12)
	assert.InDelta(t, 0, imag(got[0]), 1e-12)
	assert.InDelta(t, 0, cmplx.Abs(got[1]), 1e-12)

	// eigenvalues 1 and 3; the principal eigenvector satisfies h·v = 3·v
	v, err := hermPrincipal(h)
	require.NoError(t, err)
	hv := h.mulVec(v)
	for i := range v {
		assert.InDelta(t, 0, cmplx.Abs(hv[i]-3*v[i]), 1e-9)
	}
}
