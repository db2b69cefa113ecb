package gain

import (
	"fmt"
	"math"

	"github.com/arloliu/go-autd3/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

// Null drives every transducer with zero duty.
type Null struct{}

var _ Gain = (*Null)(nil)

// NewNull creates a Null gain.
func NewNull() *Null { return &Null{} }

func (*Null) Calc(geo *geometry.Geometry) ([]TransducerState, error) {
	if geo == nil {
		return nil, ErrNilGeometry
	}

	return make([]TransducerState, geo.NumTransducers()), nil
}

// FocalPoint focuses every transducer on a single point.
type FocalPoint struct {
	point geometry.Vector
	duty  uint8
	cache Cache
}

var _ Gain = (*FocalPoint)(nil)

// NewFocalPoint creates a gain focusing on point with normalized amplitude amp.
func NewFocalPoint(point geometry.Vector, amp float64) *FocalPoint {
	return NewFocalPointDuty(point, ToDuty(amp))
}

// NewFocalPointDuty creates a gain focusing on point with a raw duty value.
func NewFocalPointDuty(point geometry.Vector, duty uint8) *FocalPoint {
	return &FocalPoint{point: point, duty: duty}
}

// Point returns the focal point.
func (g *FocalPoint) Point() geometry.Vector { return g.point }

func (g *FocalPoint) Calc(geo *geometry.Geometry) ([]TransducerState, error) {
	return g.cache.Load(geo, func() ([]TransducerState, error) {
		k := 2 * math.Pi / geo.Wavelength()
		return fill(geo, func(pos geometry.Vector) TransducerState {
			dist := r3.Norm(r3.Sub(g.point, pos))
			return TransducerState{Duty: g.duty, Phase: ToPhase(k * dist)}
		}), nil
	})
}

// PlaneWave emits a plane wave travelling along a direction.
type PlaneWave struct {
	dir   geometry.Vector
	duty  uint8
	cache Cache
}

var _ Gain = (*PlaneWave)(nil)

// NewPlaneWave creates a plane wave gain along dir with normalized amplitude amp.
// A zero direction is treated as +z.
func NewPlaneWave(dir geometry.Vector, amp float64) *PlaneWave {
	return &PlaneWave{dir: unitOrZ(dir), duty: ToDuty(amp)}
}

func (g *PlaneWave) Calc(geo *geometry.Geometry) ([]TransducerState, error) {
	return g.cache.Load(geo, func() ([]TransducerState, error) {
		k := 2 * math.Pi / geo.Wavelength()
		return fill(geo, func(pos geometry.Vector) TransducerState {
			return TransducerState{Duty: g.duty, Phase: ToPhase(-k * r3.Dot(pos, g.dir))}
		}), nil
	})
}

// BesselBeam generates a Bessel beam, a conical superposition of plane waves
// whose apex lies at apex and whose axis points along dir.
type BesselBeam struct {
	apex  geometry.Vector
	dir   geometry.Vector
	theta float64
	duty  uint8
	cache Cache
}

var _ Gain = (*BesselBeam)(nil)

// NewBesselBeam creates a Bessel beam gain. theta is the angle in radians
// between the conical wavefront and the plane normal to dir. A zero theta
// degenerates into a plane wave along dir.
func NewBesselBeam(apex, dir geometry.Vector, theta, amp float64) *BesselBeam {
	return &BesselBeam{apex: apex, dir: unitOrZ(dir), theta: theta, duty: ToDuty(amp)}
}

func (g *BesselBeam) Calc(geo *geometry.Geometry) ([]TransducerState, error) {
	return g.cache.Load(geo, func() ([]TransducerState, error) {
		k := 2 * math.Pi / geo.Wavelength()
		rot := rotationToZ(g.dir)
		sin, cos := math.Sincos(g.theta)

		return fill(geo, func(pos geometry.Vector) TransducerState {
			r := rot.Rotate(r3.Sub(pos, g.apex))
			rho := math.Hypot(r.X, r.Y)
			dist := sin*rho - cos*r.Z

			return TransducerState{Duty: g.duty, Phase: ToPhase(k * dist)}
		}), nil
	})
}

// TransducerTest drives a single transducer and leaves all others off.
type TransducerTest struct {
	index int
	duty  uint8
	phase uint8
}

var _ Gain = (*TransducerTest)(nil)

// NewTransducerTest creates a gain driving transducer index with duty and phase.
func NewTransducerTest(index int, duty, phase uint8) *TransducerTest {
	return &TransducerTest{index: index, duty: duty, phase: phase}
}

func (g *TransducerTest) Calc(geo *geometry.Geometry) ([]TransducerState, error) {
	if geo == nil {
		return nil, ErrNilGeometry
	}

	n := geo.NumTransducers()
	if g.index < 0 || g.index >= n {
		return nil, fmt.Errorf("%w: %d", geometry.ErrTransducerNotFound, g.index)
	}

	states := make([]TransducerState, n)
	states[g.index] = TransducerState{Duty: g.duty, Phase: g.phase}

	return states, nil
}

func unitOrZ(v geometry.Vector) geometry.Vector {
	if r3.Norm(v) == 0 {
		return geometry.Vector{Z: 1}
	}

	return r3.Unit(v)
}

// rotationToZ returns the rotation mapping unit vector dir onto +z.
func rotationToZ(dir geometry.Vector) r3.Rotation {
	z := r3.Vec{Z: 1}
	axis := r3.Cross(dir, z)
	s := r3.Norm(axis)
	c := r3.Dot(dir, z)
	if s < 1e-12 {
		if c > 0 {
			return r3.NewRotation(0, z)
		}
		return r3.NewRotation(math.Pi, r3.Vec{X: 1})
	}

	return r3.NewRotation(math.Atan2(s, c), r3.Scale(1/s, axis))
}
