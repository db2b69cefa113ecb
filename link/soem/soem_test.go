package soem

import (
	"context"
	"encoding/binary"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/link"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// slave is a minimal ESC: a flat register space with FMMU-based logical
// addressing.
type slave struct {
	mem [0x2000]byte
}

func (s *slave) station() uint16 { return binary.LittleEndian.Uint16(s.mem[regStationAddress:]) }

// mapLogical returns the physical offset of logical address addr for a
// command, or -1.
func (s *slave) mapLogical(addr uint32, write bool) int {
	for i := 0; i < 2; i++ {
		e := s.mem[regFMMUBase+i*fmmuSize:]
		if e[12] == 0 {
			continue
		}
		start := binary.LittleEndian.Uint32(e[0:])
		length := uint32(binary.LittleEndian.Uint16(e[4:]))
		phys := int(binary.LittleEndian.Uint16(e[8:]))
		if (e[11] == 0x02) != write {
			continue
		}
		if addr >= start && addr < start+length {
			return phys + int(addr-start)
		}
	}

	return -1
}

// fakeBus passes frames through its slaves like a ring.
type fakeBus struct {
	slaves   []*slave
	closed   bool
	dropNext bool
	sent     int
}

func newFakeBus(n int) *fakeBus {
	b := &fakeBus{slaves: make([]*slave, n)}
	for i := range b.slaves {
		b.slaves[i] = &slave{}
		b.slaves[i].mem[regALStatus] = alInit
	}

	return b
}

func (b *fakeBus) hardwareAddr() net.HardwareAddr {
	return net.HardwareAddr{0x02, 0, 0, 0, 0, 1}
}

func (b *fakeBus) close() error {
	b.closed = true
	return nil
}

func (b *fakeBus) exchange(out, in []byte) (int, error) {
	b.sent++
	if b.dropNext {
		b.dropNext = false
		return 0, errNoReply
	}

	n := copy(in, out)
	dgs, err := decodeFrame(in[:n])
	if err != nil {
		return 0, err
	}

	for _, d := range dgs {
		count := uint16(0)
		for pos, s := range b.slaves {
			if b.process(pos, s, &d) {
				count++
			}
		}
		// wkc follows the data in the same buffer
		footer := d.data[:len(d.data)+dgFooterLen]
		binary.LittleEndian.PutUint16(footer[len(d.data):], count)
	}

	return n, nil
}

func (b *fakeBus) process(pos int, s *slave, d *datagram) bool {
	switch d.cmd {
	case cmdBRD:
		for i := range d.data {
			d.data[i] |= s.mem[int(d.ado)+i]
		}
		return true
	case cmdBWR:
		copy(s.mem[d.ado:], d.data)
		if d.ado == regALControl {
			s.mem[regALStatus] = d.data[0]
		}
		return true
	case cmdAPWR:
		if uint16(-pos) != d.adp {
			return false
		}
		copy(s.mem[d.ado:], d.data)
		return true
	case cmdFPWR:
		if s.station() != d.adp {
			return false
		}
		copy(s.mem[d.ado:], d.data)
		return true
	case cmdLWR, cmdLRD:
		write := d.cmd == cmdLWR
		hit := false
		for i := range d.data {
			p := s.mapLogical(d.logical()+uint32(i), write)
			if p < 0 {
				continue
			}
			hit = true
			if write {
				s.mem[p] = d.data[i]
			} else {
				d.data[i] = s.mem[p]
			}
		}
		return hit
	}

	return false
}

func newTestLink(t *testing.T, b *fakeBus) *SOEM {
	t.Helper()

	s, err := New("fake0", WithStateTimeout(100*time.Millisecond))
	require.NoError(t, err)
	s.open = func(string, time.Duration) (bus, error) { return b, nil }

	return s
}

func TestCodec_RoundTrip(t *testing.T) {
	src := net.HardwareAddr{1, 2, 3, 4, 5, 6}
	dgs := []datagram{
		{cmd: cmdBRD, idx: 1, ado: regALStatus, data: []byte{0, 0}},
		logicalDatagram(cmdLWR, 2, 0x0001_0272, []byte{9, 8, 7}),
	}

	buf, err := encodeFrame(src, dgs)
	require.NoError(t, err)
	assert.Equal(t, []byte(broadcastMAC), buf[0:6])
	assert.Equal(t, []byte(src), buf[6:12])

	got, err := decodeFrame(buf)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint8(cmdBRD), got[0].cmd)
	assert.Equal(t, uint16(regALStatus), got[0].ado)
	assert.Equal(t, uint32(0x0001_0272), got[1].logical())
	assert.Equal(t, []byte{9, 8, 7}, got[1].data)

	_, err = decodeFrame(buf[:ethHeaderLen])
	require.ErrorIs(t, err, errMalformed)

	_, err = encodeFrame(src, []datagram{{cmd: cmdLWR, data: make([]byte, maxEthPayload)}})
	require.Error(t, err)
}

func TestFMMUEntry(t *testing.T) {
	e := fmmuEntry(0x10000, frame.Size, physOutput, true)
	require.Len(t, e, fmmuSize)
	assert.Equal(t, uint32(0x10000), binary.LittleEndian.Uint32(e))
	assert.Equal(t, uint16(frame.Size), binary.LittleEndian.Uint16(e[4:]))
	assert.Equal(t, uint16(physOutput), binary.LittleEndian.Uint16(e[8:]))
	assert.Equal(t, byte(0x02), e[11])
	assert.Equal(t, byte(0x01), fmmuEntry(0, 2, physInput, false)[11])
}

func TestConfig(t *testing.T) {
	_, err := NewConfig(WithTimeout(0))
	require.Error(t, err)
	_, err = NewConfig(WithStateTimeout(time.Hour))
	require.Error(t, err)
	_, err = NewConfig(WithLogger(nil))
	require.Error(t, err)

	cfg, err := NewConfig()
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, cfg.Timeout())
	assert.Equal(t, DefaultStateTimeout, cfg.StateTimeout())

	_, err = New("")
	require.ErrorIs(t, err, link.ErrLinkUnavailable)
}

func TestSOEM_OpenSendReceive(t *testing.T) {
	const n = 3
	b := newFakeBus(n)
	s := newTestLink(t, b)

	require.NoError(t, s.Open(context.Background(), n))
	require.True(t, s.IsOpen())

	for i, sl := range b.slaves {
		assert.Equal(t, stationAddress(i), sl.station())
		assert.Equal(t, byte(alOp), sl.mem[regALStatus])
	}

	f := frame.New(n)
	f.SetHeader(7, frame.ModBegin, frame.CmdOp)
	require.NoError(t, s.Send(f.Bytes()))

	// outputs landed in each device's process data memory
	for i, sl := range b.slaves {
		assert.Equal(t, f.Device(i), sl.mem[physOutput:physOutput+frame.Size])
		sl.mem[physInput] = 7
		sl.mem[physInput+1] = byte(i)
	}

	rx := make([]byte, n*frame.RxSize)
	require.NoError(t, s.Receive(rx))
	assert.Equal(t, []byte{7, 0, 7, 1, 7, 2}, rx)

	require.ErrorIs(t, s.Send(make([]byte, frame.Size)), link.ErrDeviceCount)
	require.ErrorIs(t, s.Receive(make([]byte, 1)), frame.ErrRxTooShort)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	assert.True(t, b.closed)
	assert.False(t, s.IsOpen())
	require.ErrorIs(t, s.Send(f.Bytes()), link.ErrLinkClosed)
}

func TestSOEM_OpenDeviceCountMismatch(t *testing.T) {
	b := newFakeBus(2)
	s := newTestLink(t, b)

	err := s.Open(context.Background(), 3)
	require.ErrorIs(t, err, link.ErrDeviceCount)
	assert.False(t, s.IsOpen())
	assert.True(t, b.closed)

	// claim was released
	require.NoError(t, link.Claim("fake0", "other"))
	link.Release("fake0", "other")
}

func TestSOEM_ExclusiveAdapter(t *testing.T) {
	first := newTestLink(t, newFakeBus(1))
	second := newTestLink(t, newFakeBus(1))

	require.NoError(t, first.Open(context.Background(), 1))
	defer first.Close()

	err := second.Open(context.Background(), 1)
	require.ErrorIs(t, err, link.ErrLinkUnavailable)
}

func TestSOEM_NoReply(t *testing.T) {
	b := newFakeBus(1)
	s := newTestLink(t, b)
	require.NoError(t, s.Open(context.Background(), 1))
	defer s.Close()

	b.dropNext = true
	err := s.Send(frame.New(1).Bytes())
	require.ErrorIs(t, err, errNoReply)
}

func TestSOEM_ConcurrentOpen(t *testing.T) {
	b := newFakeBus(1)
	s := newTestLink(t, b)

	entered := make(chan struct{})
	gate := make(chan struct{})
	var opens atomic.Int32
	s.open = func(string, time.Duration) (bus, error) {
		opens.Add(1)
		close(entered)
		<-gate
		return b, nil
	}

	firstErr := make(chan error, 1)
	go func() { firstErr <- s.Open(context.Background(), 1) }()
	<-entered

	err := s.Open(context.Background(), 1)
	require.ErrorIs(t, err, link.ErrLinkUnavailable)

	close(gate)
	require.NoError(t, <-firstErr)
	defer s.Close()

	assert.True(t, s.IsOpen())
	assert.Equal(t, int32(1), opens.Load())
}
