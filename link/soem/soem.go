// Package soem implements a link that drives AUTD3 devices over raw
// EtherCAT on an Ethernet adapter.
//
// On Open the link counts the devices on the bus, assigns station addresses,
// maps every device's output frame and input record into the logical address
// space and requests the OP state. Every bus cycle then writes the outputs
// with LWR datagrams and reads the inputs with one LRD datagram.
//
// Raw sockets require Linux and the CAP_NET_RAW capability.
package soem

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/internal/pool"
	"github.com/arloliu/go-autd3/link"
	"github.com/arloliu/go-autd3/logger"
	"github.com/google/uuid"
)

var (
	// ErrWorkingCounter is returned when fewer devices than expected
	// processed a datagram.
	ErrWorkingCounter = errors.New("soem: working counter mismatch")
	// ErrStateTimeout is returned when devices do not reach OP in time.
	ErrStateTimeout = errors.New("soem: devices did not reach OP")
	errNoReply      = errors.New("soem: no reply")
)

// bus sends one Ethernet frame around the ring and returns it.
type bus interface {
	exchange(out, in []byte) (int, error)
	hardwareAddr() net.HardwareAddr
	close() error
}

// opener opens the bus of an adapter. It is replaced in tests.
type opener func(ifname string, timeout time.Duration) (bus, error)

// SOEM is a Link over raw EtherCAT.
type SOEM struct {
	ifname string
	id     string
	cfg    *Config
	logger logger.Logger
	open   opener

	opened  atomic.Bool
	opening atomic.Bool

	mu         sync.Mutex
	bus        bus
	numDevices int
	idx        uint8
	in         []byte
}

var _ link.Link = (*SOEM)(nil)

// New creates a SOEM link on adapter ifname, as listed by link.EnumerateAdapters.
func New(ifname string, opts ...Option) (*SOEM, error) {
	if ifname == "" {
		return nil, fmt.Errorf("%w: empty adapter name", link.ErrLinkUnavailable)
	}
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()

	return &SOEM{
		ifname: ifname,
		id:     id,
		cfg:    cfg,
		logger: cfg.logger.With("link", "soem", "ifname", ifname),
		open:   openSocket,
		in:     make([]byte, maxFrameLength),
	}, nil
}

// Open claims the adapter and brings numDevices devices to OP.
func (s *SOEM) Open(ctx context.Context, numDevices int) error {
	if numDevices <= 0 {
		return fmt.Errorf("%w: %d", link.ErrDeviceCount, numDevices)
	}
	if !s.opening.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: %s is being opened", link.ErrLinkUnavailable, s.ifname)
	}
	defer s.opening.Store(false)

	if s.opened.Load() {
		return fmt.Errorf("%w: %s already open", link.ErrLinkUnavailable, s.ifname)
	}
	if err := link.Claim(s.ifname, s.id); err != nil {
		return err
	}

	b, err := s.open(s.ifname, s.cfg.timeout)
	if err != nil {
		link.Release(s.ifname, s.id)
		return err
	}

	s.mu.Lock()
	s.bus = b
	s.numDevices = numDevices
	err = s.configure(ctx)
	s.mu.Unlock()

	if err != nil {
		_ = b.close()
		link.Release(s.ifname, s.id)

		return err
	}

	s.opened.Store(true)
	s.logger.Info("soem link opened", "devices", numDevices)

	return nil
}

// configure runs the start-up sequence. Caller holds s.mu.
func (s *SOEM) configure(ctx context.Context) error {
	// count devices
	status, err := s.roundTrip(datagram{cmd: cmdBRD, ado: regALStatus, data: make([]byte, 2)})
	if err != nil {
		return err
	}
	if int(status.wkc) != s.numDevices {
		return fmt.Errorf("%w: found %d, want %d", link.ErrDeviceCount, status.wkc, s.numDevices)
	}

	for i := range s.numDevices {
		station := stationAddress(i)
		addr := []byte{byte(station), byte(station >> 8)}
		if err := s.expect(datagram{cmd: cmdAPWR, adp: uint16(-i), ado: regStationAddress, data: addr}, 1); err != nil {
			return fmt.Errorf("assign station address of device %d: %w", i, err)
		}

		fmmu := append(
			fmmuEntry(DefaultOutputBase+uint32(i*frame.Size), frame.Size, physOutput, true),
			fmmuEntry(DefaultInputBase+uint32(i*frame.RxSize), frame.RxSize, physInput, false)...,
		)
		if err := s.expect(datagram{cmd: cmdFPWR, adp: station, ado: regFMMUBase, data: fmmu}, 1); err != nil {
			return fmt.Errorf("map process data of device %d: %w", i, err)
		}
	}

	return s.requestState(ctx, alOp)
}

// requestState writes AL control to every device and polls AL status.
func (s *SOEM) requestState(ctx context.Context, state uint16) error {
	ctrl := []byte{byte(state), byte(state >> 8)}
	if err := s.expect(datagram{cmd: cmdBWR, ado: regALControl, data: ctrl}, s.numDevices); err != nil {
		return err
	}

	deadline := time.Now().Add(s.cfg.stateTimeout)
	for time.Now().Before(deadline) {
		dg, err := s.roundTrip(datagram{cmd: cmdBRD, ado: regALStatus, data: make([]byte, 2)})
		if err != nil {
			return err
		}
		// BRD ORs the status of every device
		if int(dg.wkc) == s.numDevices && uint16(dg.data[0])&alMask == state {
			return nil
		}
		if err := pool.Sleep(ctx, time.Millisecond); err != nil {
			return err
		}
	}

	return ErrStateTimeout
}

func stationAddress(dev int) uint16 { return uint16(0x1001 + dev) }

// Close returns the devices to INIT and releases the adapter.
func (s *SOEM) Close() error {
	if !s.opened.CompareAndSwap(true, false) {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ctrl := []byte{alInit, 0}
	if err := s.expect(datagram{cmd: cmdBWR, ado: regALControl, data: ctrl}, s.numDevices); err != nil {
		s.logger.Warn("failed to return devices to INIT", "error", err)
	}

	err := s.bus.close()
	s.bus = nil
	link.Release(s.ifname, s.id)
	s.logger.Info("soem link closed")

	return err
}

// IsOpen reports whether the link is open.
func (s *SOEM) IsOpen() bool { return s.opened.Load() }

// Send writes the output frames with one LWR datagram per device.
func (s *SOEM) Send(tx []byte) error {
	if !s.IsOpen() {
		return link.ErrLinkClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(tx) != s.numDevices*frame.Size {
		return fmt.Errorf("%w: %d output bytes", link.ErrDeviceCount, len(tx))
	}

	perFrame := (maxEthPayload - ecatHeaderLen) / (dgHeaderLen + frame.Size + dgFooterLen)
	for first := 0; first < s.numDevices; first += perFrame {
		last := min(first+perFrame, s.numDevices)
		dgs := make([]datagram, 0, last-first)
		for dev := first; dev < last; dev++ {
			dgs = append(dgs, logicalDatagram(cmdLWR, s.nextIdx(), DefaultOutputBase+uint32(dev*frame.Size), tx[dev*frame.Size:(dev+1)*frame.Size]))
		}

		replies, err := s.exchange(dgs)
		if err != nil {
			return err
		}
		for i, r := range replies {
			if r.wkc != 1 {
				return fmt.Errorf("%w: device %d output wkc %d", ErrWorkingCounter, first+i, r.wkc)
			}
		}
	}

	return nil
}

// Receive reads the input records of every device with one LRD datagram.
func (s *SOEM) Receive(rx []byte) error {
	if !s.IsOpen() {
		return link.ErrLinkClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.numDevices * frame.RxSize
	if len(rx) < n {
		return fmt.Errorf("%w: %d bytes", frame.ErrRxTooShort, len(rx))
	}

	dg, err := s.roundTrip(logicalDatagram(cmdLRD, s.nextIdx(), DefaultInputBase, make([]byte, n)))
	if err != nil {
		return err
	}
	if int(dg.wkc) != s.numDevices {
		return fmt.Errorf("%w: input wkc %d, want %d", ErrWorkingCounter, dg.wkc, s.numDevices)
	}
	copy(rx, dg.data)

	return nil
}

func (s *SOEM) nextIdx() uint8 {
	s.idx++
	return s.idx
}

// expect sends d and checks that wkc devices processed it.
func (s *SOEM) expect(d datagram, wkc int) error {
	r, err := s.roundTrip(d)
	if err != nil {
		return err
	}
	if int(r.wkc) != wkc {
		return fmt.Errorf("%w: cmd 0x%02x wkc %d, want %d", ErrWorkingCounter, d.cmd, r.wkc, wkc)
	}

	return nil
}

func (s *SOEM) roundTrip(d datagram) (datagram, error) {
	d.idx = s.nextIdx()
	replies, err := s.exchange([]datagram{d})
	if err != nil {
		return datagram{}, err
	}

	return replies[0], nil
}

// exchange sends dgs in one frame and returns the processed datagrams.
func (s *SOEM) exchange(dgs []datagram) ([]datagram, error) {
	out, err := encodeFrame(s.bus.hardwareAddr(), dgs)
	if err != nil {
		return nil, err
	}

	n, err := s.bus.exchange(out, s.in)
	if err != nil {
		return nil, err
	}

	replies, err := decodeFrame(s.in[:n])
	if err != nil {
		return nil, err
	}
	if len(replies) != len(dgs) {
		return nil, fmt.Errorf("%w: %d datagrams returned, %d sent", errMalformed, len(replies), len(dgs))
	}
	for i := range replies {
		if replies[i].idx != dgs[i].idx {
			return nil, fmt.Errorf("%w: datagram index %d, want %d", errMalformed, replies[i].idx, dgs[i].idx)
		}
	}

	return replies, nil
}
