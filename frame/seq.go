package frame

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/arloliu/go-autd3/geometry"
)

// PointsPerFrame is the number of sequence points one frame carries.
const PointsPerFrame = (BodySize - seqHeaderSize) / pointSize

const (
	seqHeaderSize = 4
	pointSize     = 16
	// micrometres per millimetre
	pointScale = 1000
)

// Point is a focus in device-local coordinates.
type Point struct {
	X, Y, Z int32 // µm
	Duty    uint8
}

// NewPoint converts a device-local position in millimetres.
func NewPoint(local geometry.Vector, duty uint8) Point {
	return Point{
		X:    toMicrometre(local.X),
		Y:    toMicrometre(local.Y),
		Z:    toMicrometre(local.Z),
		Duty: duty,
	}
}

func toMicrometre(mm float64) int32 {
	v := math.Round(mm * pointScale)
	return int32(math.Max(math.MinInt32, math.Min(math.MaxInt32, v)))
}

// Local returns the position in millimetres.
func (p Point) Local() geometry.Vector {
	return geometry.Vector{X: float64(p.X) / pointScale, Y: float64(p.Y) / pointScale, Z: float64(p.Z) / pointScale}
}

// WritePoints writes a point sequence chunk to device dev, prefixed by the
// number of points and the sequence clock divider.
func (f *Frame) WritePoints(dev int, div uint16, points []Point) error {
	if len(points) > PointsPerFrame {
		return fmt.Errorf("%w: %d points", ErrTooManyItems, len(points))
	}

	body := f.body(dev)
	clear(body)
	binary.LittleEndian.PutUint16(body[0:], uint16(len(points)))
	binary.LittleEndian.PutUint16(body[2:], div)
	for i, p := range points {
		b := body[seqHeaderSize+i*pointSize:]
		binary.LittleEndian.PutUint32(b[0:], uint32(p.X))
		binary.LittleEndian.PutUint32(b[4:], uint32(p.Y))
		binary.LittleEndian.PutUint32(b[8:], uint32(p.Z))
		b[12] = p.Duty
	}

	return nil
}

// Points decodes the point sequence chunk of device dev.
func (f *Frame) Points(dev int) (div uint16, points []Point) {
	body := f.body(dev)
	n := min(int(binary.LittleEndian.Uint16(body[0:])), PointsPerFrame)
	div = binary.LittleEndian.Uint16(body[2:])

	points = make([]Point, n)
	for i := range points {
		b := body[seqHeaderSize+i*pointSize:]
		points[i] = Point{
			X:    int32(binary.LittleEndian.Uint32(b[0:])),
			Y:    int32(binary.LittleEndian.Uint32(b[4:])),
			Z:    int32(binary.LittleEndian.Uint32(b[8:])),
			Duty: b[12],
		}
	}

	return div, points
}

// SetGainSeq writes the gain sequence header into the modulation area of every
// device: sequence length, clock divider and the index of the gain carried in
// the body.
func (f *Frame) SetGainSeq(size, div, index uint16) {
	for dev := range f.NumDevices() {
		d := f.Device(dev)
		d[modSizeOffset] = 0
		binary.LittleEndian.PutUint16(d[modOffset:], size)
		binary.LittleEndian.PutUint16(d[modOffset+2:], div)
		binary.LittleEndian.PutUint16(d[modOffset+4:], index)
	}
}

// GainSeq decodes the gain sequence header of device dev.
func (f *Frame) GainSeq(dev int) (size, div, index uint16) {
	d := f.Device(dev)
	return binary.LittleEndian.Uint16(d[modOffset:]),
		binary.LittleEndian.Uint16(d[modOffset+2:]),
		binary.LittleEndian.Uint16(d[modOffset+4:])
}

// WriteCalibrate writes the modulation clock configuration and the
// compensation delay of device dev.
func (f *Frame) WriteCalibrate(dev int, modDiv, bufSize, delay uint16) {
	body := f.body(dev)
	clear(body)
	binary.LittleEndian.PutUint16(body[0:], modDiv)
	binary.LittleEndian.PutUint16(body[2:], bufSize)
	binary.LittleEndian.PutUint16(body[4:], delay)
}

// Calibrate decodes the calibration body of device dev.
func (f *Frame) Calibrate(dev int) (modDiv, bufSize, delay uint16) {
	body := f.body(dev)
	return binary.LittleEndian.Uint16(body[0:]),
		binary.LittleEndian.Uint16(body[2:]),
		binary.LittleEndian.Uint16(body[4:])
}
