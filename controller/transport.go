package controller

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/internal/pool"
)

// waitMode selects when a synchronous caller is released.
type waitMode uint8

const (
	waitNone  waitMode = iota // asynchronous
	waitBuilt                 // frames are built and queued
	waitAck                   // last frame acknowledged by every device
)

type result struct {
	rx  []frame.Rx
	err error
}

// request is one appended operation. build runs on the builder goroutine and
// returns the frames to send, in order.
type request struct {
	name     string
	mode     waitMode
	build    func() ([]*frame.Frame, error)
	done     chan result
	finished atomic.Bool
	canceled atomic.Bool
}

func newRequest(name string, mode waitMode, build func() ([]*frame.Frame, error)) *request {
	return &request{name: name, mode: mode, build: build, done: make(chan result, 1)}
}

// finish releases the caller. Only the first call has an effect.
func (r *request) finish(res result) {
	if r.finished.CompareAndSwap(false, true) {
		r.done <- res
	}
}

// cancel drops the frames of r that were not sent yet and releases the caller.
func (r *request) cancel(err error) {
	r.canceled.Store(true)
	r.finish(result{err: err})
}

// outFrame is a built frame waiting for its bus cycle.
type outFrame struct {
	req    *request
	f      *frame.Frame
	last   bool
	sentAt time.Time
}

func (c *Controller) newFrame(flags frame.Flag, cmd frame.Command) *frame.Frame {
	if c.silent.Load() {
		flags |= frame.Silent
	}
	f := frame.New(c.numDevices)
	f.SetHeader(frame.MsgIDNone, flags, cmd)

	return f
}

// submit queues req and, unless it is asynchronous, waits for its result.
func (c *Controller) submit(req *request) result {
	if !c.IsOpen() {
		return result{err: ErrClosed}
	}
	if c.RemainingInBuffer() >= c.cfg.queueSize {
		return result{err: fmt.Errorf("%w: %d requests", ErrQueueFull, c.cfg.queueSize)}
	}

	c.pending.Enqueue(req)
	select {
	case c.buildSignal <- struct{}{}:
	default:
	}

	// a concurrent close may have drained the queues before the enqueue
	if !c.IsOpen() {
		req.cancel(ErrClosed)
	}

	if req.mode == waitNone {
		return result{}
	}

	return <-req.done
}

// buildLoop is one iteration of the builder task.
func (c *Controller) buildLoop() bool {
	select {
	case <-c.taskMgr.Context().Done():
		return false
	case <-c.buildSignal:
	}

	for {
		req, ok := c.pending.Dequeue()
		if !ok {
			return true
		}
		c.buildRequest(req)
	}
}

func (c *Controller) buildRequest(req *request) {
	if req.canceled.Load() {
		return
	}

	frames, err := req.build()

	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	if c.stopErr != nil {
		// the session ended while building, nothing will send these frames
		req.cancel(c.stopErr)
		return
	}
	if err != nil {
		c.metrics.incBuildErrCount()
		c.logger.Warn("failed to build frames", "method", req.name, "error", err)
		req.finish(result{err: err})

		return
	}

	if len(frames) == 0 {
		req.finish(result{})
		return
	}

	for i, f := range frames {
		c.outbound.Enqueue(&outFrame{req: req, f: f, last: i == len(frames)-1})
	}
	if req.mode == waitBuilt {
		req.finish(result{})
	}
}

// cycle is one bus cycle of the transport task. The current frame is
// repeated every cycle. At most one frame waits for its acknowledge, and no
// other frame is sent until all devices echo its message id or the
// acknowledge timeout expires.
func (c *Controller) cycle() bool {
	c.metrics.incCycleCount()

	if c.inflight != nil && c.inflight.req.canceled.Load() {
		c.clearInflight()
	}

	if c.inflight == nil {
		c.dequeueFrame()
	}

	if c.current == nil {
		return true
	}

	if err := c.link.Send(c.current.Bytes()); err != nil {
		c.linkLost(err)
		return false
	}
	if err := c.link.Receive(c.rxBuf); err != nil {
		c.linkLost(err)
		return false
	}

	if c.inflight != nil {
		c.checkAck()
	}

	return true
}

func (c *Controller) dequeueFrame() {
	for {
		out, ok := c.outbound.Dequeue()
		if !ok {
			return
		}
		if out.req.canceled.Load() {
			continue
		}

		c.msgID++
		if c.msgID == frame.MsgIDNone {
			c.msgID = 1
		}
		out.f.SetMsgID(c.msgID)
		out.sentAt = time.Now()
		c.current = out.f
		c.metrics.incFrameSendCount()

		switch {
		case out.req.mode == waitAck:
			// every frame of a synchronous request is acknowledged in turn
			c.inflight = out
			c.ackWaiters.Store(c.msgID, out.req)
			c.metrics.incInflightGauge()
		case out.last:
			out.req.finish(result{})
		}

		c.logger.Debug("frame sent", "method", out.req.name, "msg_id", c.msgID, "cmd", out.f.Command(0))

		return
	}
}

func (c *Controller) checkAck() {
	id := c.inflight.f.MsgID(0)
	rx, err := frame.ParseRx(c.rxBuf, c.numDevices)
	if err == nil && frame.AllAcked(rx, id) {
		if req, ok := c.ackWaiters.LoadAndDelete(id); ok && c.inflight.last {
			req.finish(result{rx: rx})
		}
		c.metrics.incAckCount()
		c.clearInflight()

		return
	}

	if time.Since(c.inflight.sentAt) > c.cfg.ackTimeout {
		c.metrics.incAckTimeoutCount()
		c.logger.Warn("acknowledge timeout", "method", c.inflight.req.name, "msg_id", id, "timeout", c.cfg.ackTimeout)
		if req, ok := c.ackWaiters.LoadAndDelete(id); ok {
			// drops the remaining frames of the request
			req.cancel(fmt.Errorf("%w: msg id %d", ErrAckTimeout, id))
		}
		c.clearInflight()
	}
}

func (c *Controller) clearInflight() {
	c.ackWaiters.Delete(c.inflight.f.MsgID(0))
	c.inflight = nil
	c.metrics.decInflightGauge()
}

// linkLost forces the controller closed after a link failure. It runs on the
// transport goroutine.
func (c *Controller) linkLost(err error) {
	c.metrics.incSendErrCount()
	c.logger.Error("link failure, closing controller", "error", err)

	c.state.toClosed()
	c.taskMgr.Stop()
	c.failAll(fmt.Errorf("%w: %w", ErrLinkLost, err))
	if c.inflight != nil {
		c.clearInflight()
	}

	if cerr := c.link.Close(); cerr != nil {
		c.logger.Warn("failed to close link", "error", cerr)
	}
}

// failAll ends the session: every queued or waiting caller is released with
// err, and so is any request the builder finishes afterwards.
func (c *Controller) failAll(err error) {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	c.stopErr = err
	c.drain(err)
}

// resetSession releases whatever a previous session left behind and accepts
// new requests again.
func (c *Controller) resetSession() {
	c.buildMu.Lock()
	defer c.buildMu.Unlock()

	c.drain(ErrClosed)
	c.stopErr = nil
}

// drain cancels every queued request and ack waiter. Caller holds buildMu.
func (c *Controller) drain(err error) {
	for {
		req, ok := c.pending.Dequeue()
		if !ok {
			break
		}
		req.cancel(err)
	}
	for {
		out, ok := c.outbound.Dequeue()
		if !ok {
			break
		}
		out.req.cancel(err)
	}
	c.ackWaiters.Range(func(_ uint8, req *request) bool {
		req.cancel(err)
		return true
	})
	c.ackWaiters.Clear()
}

// flush waits until every queued frame was sent and acknowledged, the
// transport stopped or the close timeout expired.
func (c *Controller) flush() {
	timer := pool.GetTimer(c.cfg.closeTimeout)
	defer pool.PutTimer(timer)

	ticker := time.NewTicker(closeCheckInterval)
	defer ticker.Stop()

	for c.RemainingInBuffer() > 0 || c.metrics.InflightGauge.Load() > 0 {
		select {
		case <-timer.C:
			c.logger.Warn("flush timeout", "remaining", c.RemainingInBuffer())
			return
		case <-c.taskMgr.Context().Done():
			return
		case <-ticker.C:
		}
	}
}
