package geometry

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

// Array constants of the AUTD3 device.
const (
	NumTransInX      = 18
	NumTransInY      = 14
	NumTransInDevice = NumTransInX*NumTransInY - 3

	// TransSpacing is the pitch between neighbouring transducers in millimetres.
	TransSpacing = 10.16
	DeviceWidth  = 192.0
	DeviceHeight = 151.4

	// DefaultWavelength is the wavelength of 40 kHz ultrasound in air, in millimetres.
	DefaultWavelength = 8.5
)

var (
	ErrDeviceNotFound     = errors.New("geometry: device not found")
	ErrInvalidWavelength  = errors.New("geometry: wavelength must be positive")
	ErrInvalidQuaternion  = errors.New("geometry: quaternion must be non-zero")
	ErrTransducerNotFound = errors.New("geometry: transducer index out of range")
)

// Vector is a point or direction in millimetres.
type Vector = r3.Vec

// IsMissingTransducer reports whether grid position (x, y) is a mounting hole.
func IsMissingTransducer(x, y int) bool {
	return y == 1 && (x == 1 || x == 2 || x == 16)
}

// Device is one AUTD3 board placed in the global frame. It is immutable.
type Device struct {
	id        int
	groupID   int
	origin    r3.Vec
	rotation  r3.Rotation
	positions []r3.Vec
}

// ID returns the insertion index of the device.
func (d *Device) ID() int { return d.id }

// GroupID returns the group the device belongs to.
func (d *Device) GroupID() int { return d.groupID }

// Origin returns the global position of the first transducer.
func (d *Device) Origin() Vector { return d.origin }

// Rotation returns the orientation of the device.
func (d *Device) Rotation() r3.Rotation { return d.rotation }

// NumTransducers returns the number of transducers on the device.
func (d *Device) NumTransducers() int { return len(d.positions) }

// Position returns the global position of local transducer i.
func (d *Device) Position(i int) Vector { return d.positions[i] }

// Direction returns the emission direction (local +z) in the global frame.
func (d *Device) Direction() Vector {
	return d.rotation.Rotate(r3.Vec{Z: 1})
}

// XDirection returns the local +x axis in the global frame.
func (d *Device) XDirection() Vector {
	return d.rotation.Rotate(r3.Vec{X: 1})
}

// YDirection returns the local +y axis in the global frame.
func (d *Device) YDirection() Vector {
	return d.rotation.Rotate(r3.Vec{Y: 1})
}

// ToLocal converts a global point into the device frame.
func (d *Device) ToLocal(p Vector) Vector {
	inv := r3.Rotation(quat.Conj(quat.Number(d.rotation)))
	return inv.Rotate(r3.Sub(p, d.origin))
}

func newDevice(id, groupID int, origin r3.Vec, rot r3.Rotation) *Device {
	d := &Device{
		id:        id,
		groupID:   groupID,
		origin:    origin,
		rotation:  rot,
		positions: make([]r3.Vec, 0, NumTransInDevice),
	}
	for y := 0; y < NumTransInY; y++ {
		for x := 0; x < NumTransInX; x++ {
			if IsMissingTransducer(x, y) {
				continue
			}
			local := r3.Vec{X: float64(x) * TransSpacing, Y: float64(y) * TransSpacing}
			d.positions = append(d.positions, r3.Add(origin, rot.Rotate(local)))
		}
	}

	return d
}

// Geometry is the ordered set of devices driven by one controller.
//
// It is safe for concurrent readers; mutations bump Version so that cached
// gain results computed for an older layout are not reused.
type Geometry struct {
	mu         sync.RWMutex
	devices    []*Device
	wavelength float64
	version    uint64
}

// New creates an empty geometry using DefaultWavelength.
func New() *Geometry {
	return &Geometry{wavelength: DefaultWavelength}
}

// EulerZYZ returns the rotation Rz(alpha)·Ry(beta)·Rz(gamma).
func EulerZYZ(alpha, beta, gamma float64) r3.Rotation {
	z := r3.Vec{Z: 1}
	q := quat.Mul(
		quat.Mul(quat.Number(r3.NewRotation(alpha, z)), quat.Number(r3.NewRotation(beta, r3.Vec{Y: 1}))),
		quat.Number(r3.NewRotation(gamma, z)),
	)

	return r3.Rotation(q)
}

// AddDevice appends a device at pos rotated by ZYZ Euler angles (radians) and
// returns its id.
func (g *Geometry) AddDevice(pos Vector, euler Vector, groupID int) int {
	return g.add(pos, EulerZYZ(euler.X, euler.Y, euler.Z), groupID)
}

// AddDeviceQuaternion appends a device at pos rotated by q (w, x, y, z) and
// returns its id. q is normalized before use.
func (g *Geometry) AddDeviceQuaternion(pos Vector, q quat.Number, groupID int) (int, error) {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) {
		return -1, ErrInvalidQuaternion
	}

	return g.add(pos, r3.Rotation(quat.Scale(1/n, q)), groupID), nil
}

func (g *Geometry) add(pos Vector, rot r3.Rotation, groupID int) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := len(g.devices)
	g.devices = append(g.devices, newDevice(id, groupID, pos, rot))
	g.version++

	return id
}

// RemoveDevice deletes device id. Ids of the following devices shift down by one.
func (g *Geometry) RemoveDevice(id int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id < 0 || id >= len(g.devices) {
		return fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}

	devices := make([]*Device, 0, len(g.devices)-1)
	for _, d := range g.devices {
		if d.id == id {
			continue
		}
		devices = append(devices, newDevice(len(devices), d.groupID, d.origin, d.rotation))
	}
	g.devices = devices
	g.version++

	return nil
}

// Version returns a counter incremented on every layout change.
func (g *Geometry) Version() uint64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.version
}

// NumDevices returns the number of devices.
func (g *Geometry) NumDevices() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.devices)
}

// NumTransducers returns the total number of transducers over all devices.
func (g *Geometry) NumTransducers() int {
	return g.NumDevices() * NumTransInDevice
}

// Device returns device id.
func (g *Geometry) Device(id int) (*Device, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if id < 0 || id >= len(g.devices) {
		return nil, fmt.Errorf("%w: %d", ErrDeviceNotFound, id)
	}

	return g.devices[id], nil
}

// Devices returns a snapshot of the device list.
func (g *Geometry) Devices() []*Device {
	g.mu.RLock()
	defer g.mu.RUnlock()

	devices := make([]*Device, len(g.devices))
	copy(devices, g.devices)

	return devices
}

// Wavelength returns the drive wavelength in millimetres.
func (g *Geometry) Wavelength() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return g.wavelength
}

// SetWavelength sets the drive wavelength in millimetres.
func (g *Geometry) SetWavelength(wavelength float64) error {
	if wavelength <= 0 || math.IsNaN(wavelength) || math.IsInf(wavelength, 0) {
		return ErrInvalidWavelength
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.wavelength = wavelength
	g.version++

	return nil
}

// Position returns the global position of transducer idx.
func (g *Geometry) Position(idx int) (Vector, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dev := idx / NumTransInDevice
	if idx < 0 || dev >= len(g.devices) {
		return Vector{}, fmt.Errorf("%w: %d", ErrTransducerNotFound, idx)
	}

	return g.devices[dev].positions[idx%NumTransInDevice], nil
}

// Positions returns the global positions of all transducers in global index order.
func (g *Geometry) Positions() []Vector {
	g.mu.RLock()
	defer g.mu.RUnlock()

	pos := make([]Vector, 0, len(g.devices)*NumTransInDevice)
	for _, d := range g.devices {
		pos = append(pos, d.positions...)
	}

	return pos
}

// Directions returns the emission direction of every transducer in global index order.
func (g *Geometry) Directions() []Vector {
	g.mu.RLock()
	defer g.mu.RUnlock()

	dirs := make([]Vector, 0, len(g.devices)*NumTransInDevice)
	for _, d := range g.devices {
		dir := d.Direction()
		for range d.positions {
			dirs = append(dirs, dir)
		}
	}

	return dirs
}

// TransducerIndices returns the global indices of device id's transducers.
func (g *Geometry) TransducerIndices(id int) ([]int, error) {
	if _, err := g.Device(id); err != nil {
		return nil, err
	}

	indices := make([]int, NumTransInDevice)
	for i := range indices {
		indices[i] = id*NumTransInDevice + i
	}

	return indices, nil
}

// GroupIDs returns the group id of every transducer in global index order.
func (g *Geometry) GroupIDs() []int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ids := make([]int, 0, len(g.devices)*NumTransInDevice)
	for _, d := range g.devices {
		for range d.positions {
			ids = append(ids, d.groupID)
		}
	}

	return ids
}
