package gain

import (
	"errors"
	"math"
	"testing"

	"github.com/arloliu/go-autd3/geometry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGeometry(groups ...int) *geometry.Geometry {
	geo := geometry.New()
	if len(groups) == 0 {
		groups = []int{0}
	}
	for i, g := range groups {
		geo.AddDevice(geometry.Vector{X: float64(i) * geometry.DeviceWidth}, geometry.Vector{}, g)
	}

	return geo
}

func TestToDuty(t *testing.T) {
	assert.Equal(t, uint8(0), ToDuty(0))
	assert.Equal(t, uint8(255), ToDuty(1))
	assert.Equal(t, uint8(255), ToDuty(2))
	assert.Equal(t, uint8(0), ToDuty(-1))
	assert.Equal(t, uint8(0), ToDuty(math.NaN()))
	// asin(0.5) = pi/6
	assert.Equal(t, uint8(85), ToDuty(0.5))

	prev := ToDuty(0)
	for i := 1; i <= 1000; i++ {
		d := ToDuty(float64(i) / 1000)
		require.GreaterOrEqual(t, d, prev, "amp=%v", float64(i)/1000)
		prev = d
	}
}

func TestToPhase(t *testing.T) {
	tests := []struct {
		rad  float64
		want uint8
	}{
		{0, 0},
		{math.Pi / 2, 64},
		{math.Pi, 128},
		{2 * math.Pi, 0},
		{-math.Pi / 2, 192},
		{5 * math.Pi, 128},
		{2*math.Pi - 1e-9, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ToPhase(tt.rad), "rad=%v", tt.rad)
	}
	assert.InDelta(t, math.Pi, PhaseToRad(128), 1e-12)
}

func TestFocalPoint(t *testing.T) {
	geo := newTestGeometry()
	pos, err := geo.Position(100)
	require.NoError(t, err)

	focus := geometry.Vector{X: pos.X, Y: pos.Y, Z: 4 * geo.Wavelength()}
	g := NewFocalPoint(focus, 1)
	states, err := g.Calc(geo)
	require.NoError(t, err)
	require.Len(t, states, geometry.NumTransInDevice)

	// the transducer right below the focus is an integer number of wavelengths away
	assert.Equal(t, TransducerState{Duty: 255, Phase: 0}, states[100])
	for _, s := range states {
		assert.Equal(t, uint8(255), s.Duty)
	}
}

func TestGains_Deterministic(t *testing.T) {
	geo := newTestGeometry(0, 1)
	center := geometry.Vector{X: geometry.DeviceWidth, Y: 70, Z: 150}

	gains := map[string]func() Gain{
		"focal":   func() Gain { return NewFocalPoint(center, 0.7) },
		"plane":   func() Gain { return NewPlaneWave(geometry.Vector{X: 1, Z: 3}, 1) },
		"bessel":  func() Gain { return NewBesselBeam(center, geometry.Vector{Z: 1}, 13.0/180*math.Pi, 1) },
		"null":    func() Gain { return NewNull() },
		"grouped": func() Gain { return NewGrouped().Add(0, NewNull()).Add(1, NewFocalPoint(center, 1)) },
	}

	for name, mk := range gains {
		t.Run(name, func(t *testing.T) {
			a, err := mk().Calc(geo)
			require.NoError(t, err)
			b, err := mk().Calc(geo)
			require.NoError(t, err)
			assert.Equal(t, a, b)
			assert.Len(t, a, geo.NumTransducers())
		})
	}
}

func TestPlaneWave_UniformAlongNormal(t *testing.T) {
	geo := newTestGeometry()

	states, err := NewPlaneWave(geometry.Vector{Z: 1}, 1).Calc(geo)
	require.NoError(t, err)
	for _, s := range states {
		assert.Equal(t, uint8(0), s.Phase)
	}

	states, err = NewPlaneWave(geometry.Vector{X: 1}, 1).Calc(geo)
	require.NoError(t, err)
	// transducer 1 is one pitch further along +x
	want := ToPhase(-2 * math.Pi * geometry.TransSpacing / geo.Wavelength())
	assert.Equal(t, want, states[1].Phase)
}

func TestBesselBeam_ZeroAngleIsPlaneWave(t *testing.T) {
	geo := newTestGeometry()
	dir := geometry.Vector{Y: 1, Z: 2}

	bessel, err := NewBesselBeam(geometry.Vector{}, dir, 0, 1).Calc(geo)
	require.NoError(t, err)
	plane, err := NewPlaneWave(dir, 1).Calc(geo)
	require.NoError(t, err)

	for i := range bessel {
		diff := int(bessel[i].Phase) - int(plane[i].Phase)
		assert.Contains(t, []int{-255, -1, 0, 1, 255}, diff, "transducer %d", i)
	}
}

func TestFocalPoint_CacheFollowsGeometry(t *testing.T) {
	geo := newTestGeometry()
	g := NewFocalPoint(geometry.Vector{Z: 100}, 1)

	a, err := g.Calc(geo)
	require.NoError(t, err)
	a[0].Duty = 1 // callers own their copy

	b, err := g.Calc(geo)
	require.NoError(t, err)
	assert.Equal(t, uint8(255), b[0].Duty)

	geo.AddDevice(geometry.Vector{X: geometry.DeviceWidth}, geometry.Vector{}, 0)
	c, err := g.Calc(geo)
	require.NoError(t, err)
	assert.Len(t, c, 2*geometry.NumTransInDevice)
}

func TestCache_BuildError(t *testing.T) {
	var c Cache
	boom := errors.New("boom")

	_, err := c.Load(newTestGeometry(), func() ([]TransducerState, error) { return nil, boom })
	require.ErrorIs(t, err, boom)

	_, err = c.Load(nil, nil)
	require.ErrorIs(t, err, ErrNilGeometry)
}

func TestCustom(t *testing.T) {
	geo := newTestGeometry()
	n := geo.NumTransducers()

	_, err := NewCustom(make([]uint8, n-1), make([]uint8, n)).Calc(geo)
	require.ErrorIs(t, err, ErrDimensionMismatch)

	duty := make([]uint8, n)
	phase := make([]uint8, n)
	duty[3], phase[3] = 200, 17
	states, err := NewCustom(duty, phase).Calc(geo)
	require.NoError(t, err)
	assert.Equal(t, TransducerState{Duty: 200, Phase: 17}, states[3])

	again, err := NewCustomStates(states).Calc(geo)
	require.NoError(t, err)
	assert.Equal(t, states, again)
}

func TestTransducerTest(t *testing.T) {
	geo := newTestGeometry()

	states, err := NewTransducerTest(5, 255, 32).Calc(geo)
	require.NoError(t, err)
	assert.Equal(t, TransducerState{Duty: 255, Phase: 32}, states[5])
	assert.Equal(t, TransducerState{}, states[4])

	_, err = NewTransducerTest(geo.NumTransducers(), 255, 0).Calc(geo)
	require.ErrorIs(t, err, geometry.ErrTransducerNotFound)
}

func TestGrouped_MergeByIndex(t *testing.T) {
	geo := newTestGeometry(0, 1, 2)
	n := geo.NumTransducers()

	focus, err := NewFocalPoint(geometry.Vector{Z: 150}, 1).Calc(geo)
	require.NoError(t, err)

	g := NewGrouped().
		Add(0, NewTransducerTest(0, 10, 20)).
		Add(1, NewFocalPoint(geometry.Vector{Z: 150}, 1)).
		Add(9, NewNull())

	states, err := g.Calc(geo)
	require.NoError(t, err)
	require.Len(t, states, n)

	assert.Equal(t, TransducerState{Duty: 10, Phase: 20}, states[0])
	assert.Equal(t, TransducerState{}, states[1])
	for i := geometry.NumTransInDevice; i < 2*geometry.NumTransInDevice; i++ {
		assert.Equal(t, focus[i], states[i])
	}
	// group 2 has no gain
	assert.Equal(t, TransducerState{}, states[n-1])
}

func TestGrouped_Error(t *testing.T) {
	geo := newTestGeometry(0)

	_, err := NewGrouped().Add(0, NewCustom(nil, nil)).Calc(geo)
	require.ErrorIs(t, err, ErrDimensionMismatch)
}
