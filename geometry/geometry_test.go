package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"
	"gonum.org/v1/gonum/spatial/r3"
)

const eps = 1e-9

func assertVecInDelta(t *testing.T, want, got Vector) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, eps)
	assert.InDelta(t, want.Y, got.Y, eps)
	assert.InDelta(t, want.Z, got.Z, eps)
}

func TestDevice_Layout(t *testing.T) {
	geo := New()
	id := geo.AddDevice(Vector{}, Vector{}, 0)
	require.Equal(t, 0, id)

	assert.Equal(t, 1, geo.NumDevices())
	assert.Equal(t, 249, geo.NumTransducers())

	pos := geo.Positions()
	require.Len(t, pos, 249)
	assertVecInDelta(t, Vector{}, pos[0])
	assertVecInDelta(t, Vector{X: TransSpacing}, pos[1])
	// (0,1) follows the last transducer of row 0
	assertVecInDelta(t, Vector{Y: TransSpacing}, pos[18])
	// (1,1) and (2,1) are holes
	assertVecInDelta(t, Vector{X: 3 * TransSpacing, Y: TransSpacing}, pos[19])
	assertVecInDelta(t, Vector{X: 17 * TransSpacing, Y: 13 * TransSpacing}, pos[248])
}

func TestDevice_TranslatedAndRotated(t *testing.T) {
	geo := New()
	geo.AddDevice(Vector{X: 10, Y: 20, Z: 30}, Vector{X: math.Pi / 2}, 0)

	dev, err := geo.Device(0)
	require.NoError(t, err)

	// Rz(90deg) maps local +x onto global +y
	assertVecInDelta(t, Vector{X: 10, Y: 20 + TransSpacing, Z: 30}, dev.Position(1))
	assertVecInDelta(t, Vector{Z: 1}, dev.Direction())
	assertVecInDelta(t, Vector{Y: 1}, dev.XDirection())

	local := dev.ToLocal(dev.Position(1))
	assertVecInDelta(t, Vector{X: TransSpacing}, local)
}

func TestEulerZYZ_TiltsDirection(t *testing.T) {
	rot := EulerZYZ(0, math.Pi/2, 0)
	assertVecInDelta(t, Vector{X: 1}, rot.Rotate(r3.Vec{Z: 1}))
}

func TestAddDeviceQuaternion(t *testing.T) {
	geo := New()

	_, err := geo.AddDeviceQuaternion(Vector{}, quat.Number{}, 0)
	require.ErrorIs(t, err, ErrInvalidQuaternion)

	// non-normalized identity
	id, err := geo.AddDeviceQuaternion(Vector{X: 1}, quat.Number{Real: 2}, 3)
	require.NoError(t, err)

	dev, err := geo.Device(id)
	require.NoError(t, err)
	assert.Equal(t, 3, dev.GroupID())
	assertVecInDelta(t, Vector{X: 1 + TransSpacing}, dev.Position(1))
}

func TestRemoveDevice(t *testing.T) {
	geo := New()
	geo.AddDevice(Vector{}, Vector{}, 0)
	geo.AddDevice(Vector{X: DeviceWidth}, Vector{}, 1)
	v := geo.Version()

	require.ErrorIs(t, geo.RemoveDevice(5), ErrDeviceNotFound)
	require.NoError(t, geo.RemoveDevice(0))

	assert.Greater(t, geo.Version(), v)
	assert.Equal(t, 1, geo.NumDevices())

	dev, err := geo.Device(0)
	require.NoError(t, err)
	assert.Equal(t, 0, dev.ID())
	assert.Equal(t, 1, dev.GroupID())
	assertVecInDelta(t, Vector{X: DeviceWidth}, dev.Origin())
}

func TestGeometry_Indices(t *testing.T) {
	geo := New()
	geo.AddDevice(Vector{}, Vector{}, 0)
	geo.AddDevice(Vector{X: DeviceWidth}, Vector{}, 7)

	idx, err := geo.TransducerIndices(1)
	require.NoError(t, err)
	assert.Equal(t, 249, idx[0])
	assert.Equal(t, 497, idx[248])

	groups := geo.GroupIDs()
	assert.Equal(t, 0, groups[248])
	assert.Equal(t, 7, groups[249])

	p, err := geo.Position(249)
	require.NoError(t, err)
	assertVecInDelta(t, Vector{X: DeviceWidth}, p)

	_, err = geo.Position(498)
	require.ErrorIs(t, err, ErrTransducerNotFound)
}

func TestSetWavelength(t *testing.T) {
	geo := New()
	assert.InDelta(t, DefaultWavelength, geo.Wavelength(), eps)

	require.ErrorIs(t, geo.SetWavelength(0), ErrInvalidWavelength)
	require.ErrorIs(t, geo.SetWavelength(math.NaN()), ErrInvalidWavelength)
	require.NoError(t, geo.SetWavelength(8.6))
	assert.InDelta(t, 8.6, geo.Wavelength(), eps)
}
