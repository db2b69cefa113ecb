// Package controller drives a chain of AUTD3 devices over a link.
//
// A Controller owns the array geometry and one link. Appended gains,
// modulations and sequences are turned into frames by a builder goroutine and
// put on the bus by a transport goroutine that runs one cycle per
// CycleInterval. Frames reach the devices in the order they were appended.
//
// Asynchronous appends return as soon as the request is queued. Synchronous
// appends block until every device acknowledged the frame; at most one such
// frame is in flight at a time.
//
//	ctl, _ := controller.New()
//	ctl.AddDevice(geometry.Vector{}, geometry.Vector{}, 0)
//	emu, _ := emulator.New()
//	if err := ctl.Open(ctx, emu); err != nil {
//	    return err
//	}
//	defer ctl.Close()
//
//	g := gain.NewFocalPoint(geometry.Vector{X: 90, Y: 70, Z: 150}, 1)
//	err := ctl.AppendGainSync(g, true)
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/gain"
	"github.com/arloliu/go-autd3/geometry"
	"github.com/arloliu/go-autd3/internal/queue"
	"github.com/arloliu/go-autd3/internal/task"
	"github.com/arloliu/go-autd3/link"
	"github.com/arloliu/go-autd3/logger"
	"github.com/arloliu/go-autd3/sequence"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"gonum.org/v1/gonum/num/quat"
)

var (
	// ErrCalibrationTimeout is returned when devices do not answer the
	// calibration round trip within the configured retries.
	ErrCalibrationTimeout = errors.New("controller: calibration timeout")
	// ErrLinkLost is returned to pending callers when the link fails while open.
	ErrLinkLost = errors.New("controller: link lost")
	// ErrCanceled is returned to pending callers released by Stop.
	ErrCanceled = errors.New("controller: canceled")
	// ErrClosed is returned when the controller is not open.
	ErrClosed = errors.New("controller: not open")
	// ErrNotClosed is returned by geometry changes while a link is bound.
	ErrNotClosed = errors.New("controller: geometry is fixed while open")
	// ErrNoDevices is returned by Open without devices.
	ErrNoDevices = errors.New("controller: no devices")
	// ErrQueueFull is returned when the outbound queue is at capacity.
	ErrQueueFull = errors.New("controller: outbound queue full")
	// ErrAckTimeout is returned when a synchronous frame is not acknowledged
	// in time.
	ErrAckTimeout = errors.New("controller: acknowledge timeout")
	// ErrCloseTimeout is returned when Close cannot stop the transport in time.
	ErrCloseTimeout = errors.New("controller: close timeout")
	// ErrNilLink is returned by Open with a nil link.
	ErrNilLink = errors.New("controller: nil link")

	// ErrLinkUnavailable is returned by Open when the adapter cannot be claimed.
	ErrLinkUnavailable = link.ErrLinkUnavailable
	// ErrDimensionMismatch is returned for gains of the wrong size.
	ErrDimensionMismatch = gain.ErrDimensionMismatch
)

// Controller drives the devices of one geometry through one link.
type Controller struct {
	id      string
	cfg     *Config
	logger  logger.Logger
	geo     *geometry.Geometry
	state   *stateMgr
	taskMgr *task.Manager
	metrics Metrics

	// lifeMu serializes Open and Close
	lifeMu sync.Mutex
	link   link.Link
	silent atomic.Bool

	// pending holds requests waiting to be built, outbound the frames
	// waiting to be sent.
	pending     queue.Queue[*request]
	outbound    queue.Queue[*outFrame]
	buildSignal chan struct{}
	ackWaiters  *xsync.MapOf[uint8, *request]

	// buildMu orders the builder's enqueue against failAll. stopErr is set
	// once the session ended and fails every request built afterwards.
	buildMu sync.Mutex
	stopErr error

	// owned by the transport goroutine
	numDevices int
	current    *frame.Frame
	inflight   *outFrame
	msgID      uint8
	rxBuf      []byte

	// owned by the builder goroutine
	lastGain []gain.TransducerState

	stmMu sync.Mutex
	stm   *sequence.Gain
}

// New creates a closed controller with an empty geometry.
func New(opts ...Option) (*Controller, error) {
	cfg, err := NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	l := cfg.logger.With("controller", id)

	return &Controller{
		id:          id,
		cfg:         cfg,
		logger:      l,
		geo:         geometry.New(),
		state:       newStateMgr(l),
		taskMgr:     task.NewManager(context.Background(), l),
		pending:     queue.NewLockFreeQueue[*request](),
		outbound:    queue.NewLockFreeQueue[*outFrame](),
		buildSignal: make(chan struct{}, 1),
		ackWaiters:  xsync.NewMapOf[uint8, *request](),
		stm:         sequence.NewGain(),
	}, nil
}

// ID returns the instance id used in log records.
func (c *Controller) ID() string { return c.id }

// Geometry returns the geometry driven by the controller.
func (c *Controller) Geometry() *geometry.Geometry { return c.geo }

// Metrics returns the counters of the controller.
func (c *Controller) Metrics() *Metrics { return &c.metrics }

// State returns the lifecycle state.
func (c *Controller) State() State { return c.state.get() }

// AddStateHandler registers handlers invoked on every state change.
func (c *Controller) AddStateHandler(handlers ...StateChangeHandler) {
	c.state.addHandler(handlers...)
}

// WaitState blocks until the controller reaches state or ctx is done.
func (c *Controller) WaitState(ctx context.Context, state State) error {
	return c.state.waitState(ctx, state)
}

// IsOpen reports whether a link is bound and frames can be appended.
func (c *Controller) IsOpen() bool { return c.state.get().IsOpen() }

// AddDevice appends a device at pos rotated by ZYZ Euler angles in radians.
// Devices can only be added while closed.
func (c *Controller) AddDevice(pos, euler geometry.Vector, groupID int) (int, error) {
	if c.state.get() != Closed {
		return -1, ErrNotClosed
	}

	return c.geo.AddDevice(pos, euler, groupID), nil
}

// AddDeviceQuaternion appends a device at pos rotated by q.
// Devices can only be added while closed.
func (c *Controller) AddDeviceQuaternion(pos geometry.Vector, q quat.Number, groupID int) (int, error) {
	if c.state.get() != Closed {
		return -1, ErrNotClosed
	}

	return c.geo.AddDeviceQuaternion(pos, q, groupID)
}

// RemoveDevice deletes device id. Devices can only be removed while closed.
func (c *Controller) RemoveDevice(id int) error {
	if c.state.get() != Closed {
		return ErrNotClosed
	}

	return c.geo.RemoveDevice(id)
}

// NumDevices returns the number of devices.
func (c *Controller) NumDevices() int { return c.geo.NumDevices() }

// NumTransducers returns the number of transducers over all devices.
func (c *Controller) NumTransducers() int { return c.geo.NumTransducers() }

// SetWavelength sets the wavelength in millimetres used by gains computed
// after the call.
func (c *Controller) SetWavelength(wavelength float64) error {
	return c.geo.SetWavelength(wavelength)
}

// Wavelength returns the wavelength in millimetres.
func (c *Controller) Wavelength() float64 { return c.geo.Wavelength() }

// SetSilentMode selects the silent drive of frames appended after the call.
func (c *Controller) SetSilentMode(silent bool) { c.silent.Store(silent) }

// IsSilentMode reports whether silent mode is selected.
func (c *Controller) IsSilentMode() bool { return c.silent.Load() }

// RemainingInBuffer returns the number of frames and requests not yet sent.
func (c *Controller) RemainingInBuffer() int {
	return c.pending.Length() + c.outbound.Length()
}

// Open binds l to the controller and brings every device up. The geometry
// must hold at least one device.
func (c *Controller) Open(ctx context.Context, l link.Link) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if l == nil {
		return ErrNilLink
	}
	n := c.geo.NumDevices()
	if n == 0 {
		return ErrNoDevices
	}
	if !c.state.toOpening() {
		return fmt.Errorf("controller: open in state %s", c.state.get())
	}

	c.logger.Debug("open controller", "devices", n)

	// joins the tasks of a previous session and re-arms the manager
	c.taskMgr.Wait()

	if err := l.Open(ctx, n); err != nil {
		c.state.toClosed()
		return fmt.Errorf("controller: open link: %w", err)
	}

	c.link = l
	c.numDevices = n
	c.current = nil
	c.inflight = nil
	c.msgID = frame.MsgIDNone
	c.rxBuf = make([]byte, n*frame.RxSize)
	c.lastGain = nil
	c.resetSession()

	if err := c.startTasks(); err != nil {
		c.taskMgr.Stop()
		c.taskMgr.Wait()
		_ = l.Close()
		c.state.toClosed()

		return err
	}

	if !c.state.toOpen() {
		// the link failed before the first cycle completed
		c.taskMgr.Stop()
		c.taskMgr.Wait()
		_ = l.Close()
		c.state.toClosed()

		return fmt.Errorf("%w: during open", ErrLinkLost)
	}
	c.logger.Info("controller opened", "devices", n)

	return nil
}

func (c *Controller) startTasks() error {
	if err := c.taskMgr.Start("builder", c.buildLoop); err != nil {
		return err
	}

	return c.taskMgr.StartInterval("transport", c.cycle, c.cfg.cycleInterval, false)
}

// Close flushes the queued frames, stops the transport and releases the
// link. Closing a closed controller is a no-op.
func (c *Controller) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if !c.state.toClosing() {
		return nil
	}

	c.logger.Debug("close controller", "remaining", c.RemainingInBuffer())
	c.flush()

	var closeErr error
	c.taskMgr.Stop()
	if !c.taskMgr.WaitTimeout(c.cfg.closeTimeout) {
		c.logger.Error("controller close timeout", "timeout", c.cfg.closeTimeout)
		closeErr = ErrCloseTimeout
	}

	c.failAll(ErrClosed)

	if err := c.link.Close(); err != nil {
		c.logger.Warn("failed to close link", "error", err)
		if closeErr == nil {
			closeErr = fmt.Errorf("controller: close link: %w", err)
		}
	}

	c.state.toClosed()
	c.logger.Info("controller closed")

	return closeErr
}
