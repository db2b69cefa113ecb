// Package emulator provides an in-process link that simulates a chain of
// AUTD3 devices. Every device latches the frames addressed to it, answers
// firmware and calibration reads and acknowledges message ids the way the
// firmware does.
package emulator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/internal/queue"
	"github.com/arloliu/go-autd3/link"
	"github.com/arloliu/go-autd3/logger"
	"github.com/google/uuid"
)

// Emulator is a Link to simulated devices.
type Emulator struct {
	id     string
	cfg    *Config
	logger logger.Logger

	open atomic.Bool

	mu      sync.Mutex
	devices []*device
	rx      []frame.Rx
	fault   error
	cycles  uint64
	records queue.Queue[[]byte]
	lastRec uint8
}

var _ link.Link = (*Emulator)(nil)

// New creates an emulator link.
func New(opts ...Option) (*Emulator, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()

	return &Emulator{
		id:     id,
		cfg:    cfg,
		logger: cfg.logger.With("link", "emulator", "emulator_id", id),
	}, nil
}

// ID returns the instance id, also used as the claimed adapter name.
func (e *Emulator) ID() string { return e.id }

func (e *Emulator) adapter() string { return "emulator/" + e.id }

// Open attaches numDevices simulated devices. An emulator serves one
// controller at a time.
func (e *Emulator) Open(ctx context.Context, numDevices int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if numDevices <= 0 {
		return fmt.Errorf("%w: %d", link.ErrDeviceCount, numDevices)
	}
	if !e.open.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: emulator %s already open", link.ErrLinkUnavailable, e.id)
	}
	if err := link.Claim(e.adapter(), e.id); err != nil {
		e.open.Store(false)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.devices = make([]*device, numDevices)
	for i := range e.devices {
		e.devices[i] = newDevice(i, e.cfg)
	}
	e.rx = make([]frame.Rx, numDevices)
	e.fault = nil
	e.cycles = 0
	e.records = queue.NewSliceQueue[[]byte](0, e.cfg.recordSize)
	e.lastRec = frame.MsgIDNone

	e.logger.Info("emulator opened", "devices", numDevices)

	return nil
}

// Close detaches the simulated devices. It is a no-op on a closed emulator.
func (e *Emulator) Close() error {
	if !e.open.CompareAndSwap(true, false) {
		return nil
	}
	link.Release(e.adapter(), e.id)
	e.logger.Info("emulator closed")

	return nil
}

// IsOpen reports whether the emulator is open.
func (e *Emulator) IsOpen() bool { return e.open.Load() }

// Send runs one bus cycle over the simulated devices.
func (e *Emulator) Send(tx []byte) error {
	if !e.IsOpen() {
		return link.ErrLinkClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fault != nil {
		return e.fault
	}

	f, err := frame.Wrap(tx)
	if err != nil {
		return err
	}
	if f.NumDevices() != len(e.devices) {
		return fmt.Errorf("%w: frame for %d devices, %d attached", link.ErrDeviceCount, f.NumDevices(), len(e.devices))
	}

	e.cycles++
	if id := f.MsgID(0); e.cfg.recordSize > 0 && id != frame.MsgIDNone && id != e.lastRec {
		e.records.Enqueue(append([]byte(nil), tx...))
		e.lastRec = id
	}

	for i, dev := range e.devices {
		e.rx[i] = dev.processFrame(f)
	}

	return nil
}

// Receive copies the input records of the last cycle into rx.
func (e *Emulator) Receive(rx []byte) error {
	if !e.IsOpen() {
		return link.ErrLinkClosed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.fault != nil {
		return e.fault
	}
	if len(rx) < len(e.rx)*frame.RxSize {
		return fmt.Errorf("%w: %d bytes", frame.ErrRxTooShort, len(rx))
	}
	frame.PutRx(rx, e.rx)

	return nil
}

// InjectFault makes every following Send and Receive fail with err until the
// emulator is reopened. A nil err clears the fault.
func (e *Emulator) InjectFault(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.fault = err
}

// NumDevices returns the number of attached devices.
func (e *Emulator) NumDevices() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.devices)
}

// Cycles returns the number of bus cycles since Open.
func (e *Emulator) Cycles() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.cycles
}

// Device returns a snapshot of device dev.
func (e *Emulator) Device(dev int) (DeviceState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if dev < 0 || dev >= len(e.devices) {
		return DeviceState{}, false
	}

	return e.devices[dev].state.clone(), true
}

// Records returns copies of the recorded frames, oldest first.
func (e *Emulator) Records() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.records == nil {
		return nil
	}

	out := e.records.Items()
	for i, r := range out {
		out[i] = append([]byte(nil), r...)
	}

	return out
}
