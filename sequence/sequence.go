// Package sequence holds spatio-temporal modulation sequences: focal point
// sequences played by the device and gain sequences replaying precomputed
// gains. Both advance one entry per sampling period of a hardware clock
// divided by an integer.
package sequence

import (
	"errors"
	"fmt"
	"math"

	"github.com/arloliu/go-autd3/gain"
	"github.com/arloliu/go-autd3/geometry"
	"gonum.org/v1/gonum/spatial/r3"
)

const (
	// BaseFrequency is the sequence clock of the device in Hz.
	BaseFrequency = 40000

	MinDiv = 1
	MaxDiv = math.MaxUint16

	// MaxPoints is the capacity of the device point buffer.
	MaxPoints = 40000
	// MaxGains is the capacity of the device gain buffer.
	MaxGains = 1024
)

var (
	ErrFull    = errors.New("sequence: capacity exceeded")
	ErrNilGain = errors.New("sequence: nil gain")
)

// clock quantizes playback frequencies against BaseFrequency.
type clock struct {
	div uint16
}

func newClock() clock { return clock{div: MaxDiv} }

// setFrequency picks div = round(base / (freq·n)) clamped to [MinDiv, MaxDiv]
// and returns the achieved frequency base / (div·n).
func (c *clock) setFrequency(freq float64, n int) float64 {
	n = max(n, 1)
	div := float64(MaxDiv)
	if freq > 0 && !math.IsInf(freq, 1) {
		div = math.Round(BaseFrequency / (freq * float64(n)))
	} else if math.IsInf(freq, 1) {
		div = MinDiv
	}
	c.div = uint16(math.Max(MinDiv, math.Min(MaxDiv, div)))

	return c.freq(n)
}

func (c *clock) freq(n int) float64 {
	return BaseFrequency / (float64(c.div) * float64(max(n, 1)))
}

// SamplingFreq returns the rate in Hz at which entries advance.
func (c *clock) SamplingFreq() float64 { return BaseFrequency / float64(c.div) }

// SamplingFreqDiv returns the clock divider.
func (c *clock) SamplingFreqDiv() uint16 { return c.div }

// Focus is one entry of a point sequence.
type Focus struct {
	Pos  geometry.Vector
	Duty uint8
}

// Point is a sequence of focal points.
type Point struct {
	clock
	points []Focus
}

// NewPoint creates an empty point sequence.
func NewPoint() *Point {
	return &Point{clock: newClock()}
}

// AppendPoint appends a focus at full duty.
func (s *Point) AppendPoint(p geometry.Vector) error {
	return s.AppendFocus(Focus{Pos: p, Duty: 0xFF})
}

// AppendFocus appends a focus with an explicit duty.
func (s *Point) AppendFocus(f Focus) error {
	if len(s.points) >= MaxPoints {
		return fmt.Errorf("%w: %d points", ErrFull, MaxPoints)
	}
	s.points = append(s.points, f)

	return nil
}

// AppendPoints appends foci at full duty. Nothing is appended when the
// capacity would be exceeded.
func (s *Point) AppendPoints(points []geometry.Vector) error {
	if len(s.points)+len(points) > MaxPoints {
		return fmt.Errorf("%w: %d points", ErrFull, MaxPoints)
	}
	for _, p := range points {
		s.points = append(s.points, Focus{Pos: p, Duty: 0xFF})
	}

	return nil
}

// Points returns a copy of the foci.
func (s *Point) Points() []Focus {
	return append([]Focus(nil), s.points...)
}

// Len returns the number of foci.
func (s *Point) Len() int { return len(s.points) }

// SetFrequency sets the rate at which the whole sequence repeats and returns
// the achievable frequency closest to freq.
func (s *Point) SetFrequency(freq float64) float64 {
	return s.setFrequency(freq, len(s.points))
}

// Freq returns the repeat rate of the whole sequence in Hz.
func (s *Point) Freq() float64 { return s.freq(len(s.points)) }

// Circum creates count points evenly spaced on a circle of radius around
// center, in the plane orthogonal to normal. Point i lies at angle 2π·i/count.
// A normal of +z gives +x for point 0 and +y a quarter turn later.
func Circum(center, normal geometry.Vector, radius float64, count int) *Point {
	s := NewPoint()
	if count <= 0 {
		return s
	}

	u, v := planeBasis(normal)
	points := make([]geometry.Vector, min(count, MaxPoints))
	for i := range points {
		sin, cos := math.Sincos(2 * math.Pi * float64(i) / float64(count))
		points[i] = r3.Add(center, r3.Add(r3.Scale(radius*cos, u), r3.Scale(radius*sin, v)))
	}
	_ = s.AppendPoints(points)

	return s
}

// planeBasis returns orthonormal u, v with u×v along normal.
func planeBasis(normal geometry.Vector) (geometry.Vector, geometry.Vector) {
	n := geometry.Vector{Z: 1}
	if r3.Norm(normal) > 0 {
		n = r3.Unit(normal)
	}

	u := r3.Cross(geometry.Vector{Y: 1}, n)
	if r3.Norm(u) < 1e-6 {
		u = r3.Cross(n, geometry.Vector{Z: 1})
	}
	u = r3.Unit(u)

	return u, r3.Cross(n, u)
}

// Gain is a sequence of gains replayed in order.
type Gain struct {
	clock
	gains []gain.Gain
}

// NewGain creates an empty gain sequence.
func NewGain() *Gain {
	return &Gain{clock: newClock()}
}

// AppendGain appends g. The same gain may appear more than once.
func (s *Gain) AppendGain(g gain.Gain) error {
	if g == nil {
		return ErrNilGain
	}
	if len(s.gains) >= MaxGains {
		return fmt.Errorf("%w: %d gains", ErrFull, MaxGains)
	}
	s.gains = append(s.gains, g)

	return nil
}

// Gains returns a copy of the gain list.
func (s *Gain) Gains() []gain.Gain {
	return append([]gain.Gain(nil), s.gains...)
}

// Len returns the number of gains.
func (s *Gain) Len() int { return len(s.gains) }

// SetFrequency sets the rate at which the whole sequence repeats and returns
// the achievable frequency closest to freq.
func (s *Gain) SetFrequency(freq float64) float64 {
	return s.setFrequency(freq, len(s.gains))
}

// Freq returns the repeat rate of the whole sequence in Hz.
func (s *Gain) Freq() float64 { return s.freq(len(s.gains)) }
