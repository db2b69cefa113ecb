package emulator

import (
	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/gain"
)

// DeviceState is a snapshot of what an emulated device latched.
type DeviceState struct {
	MsgID    uint8
	Command  frame.Command
	Silent   bool
	Stopped  bool
	Gain     []gain.TransducerState
	Mod      []uint8
	ModDone  bool
	Points   []frame.Point
	SeqDiv   uint16
	SeqDone  bool
	GainSeq  [][]gain.TransducerState
	ModDiv   uint16
	ModBuf   uint16
	Delay    uint16
	Cleared  int
	Received uint64
}

func (s *DeviceState) clone() DeviceState {
	c := *s
	c.Gain = append([]gain.TransducerState(nil), s.Gain...)
	c.Mod = append([]uint8(nil), s.Mod...)
	c.Points = append([]frame.Point(nil), s.Points...)
	c.GainSeq = make([][]gain.TransducerState, len(s.GainSeq))
	for i, g := range s.GainSeq {
		c.GainSeq[i] = append([]gain.TransducerState(nil), g...)
	}

	return c
}

// device simulates the firmware of one board. It processes its slice of
// every bus cycle and produces its input record.
type device struct {
	idx   int
	cfg   *Config
	state DeviceState
	ack   uint8
	data  uint8
	seen  int // consecutive cycles the pending msg id was seen
}

func newDevice(idx int, cfg *Config) *device {
	return &device{idx: idx, cfg: cfg}
}

// processFrame latches a new frame and returns the device input record.
func (d *device) processFrame(f *frame.Frame) frame.Rx {
	dev := d.idx
	id := f.MsgID(dev)
	if id == frame.MsgIDNone {
		return frame.Rx{Ack: d.ack, Data: d.data}
	}

	if id != d.state.MsgID {
		d.latch(f)
		d.state.MsgID = id
		d.state.Received++
		d.seen = 0
	}

	d.seen++
	if !d.cfg.dropAcks && d.seen > d.cfg.ackDelay {
		d.ack = id
	}

	return frame.Rx{Ack: d.ack, Data: d.data}
}

func (d *device) latch(f *frame.Frame) {
	dev := d.idx
	cmd := f.Command(dev)
	d.state.Command = cmd
	d.state.Silent = f.HasFlag(dev, frame.Silent)
	d.data = 0

	switch cmd {
	case frame.CmdOp:
		d.state.Stopped = false
		d.latchMod(f)
		if !f.HasFlag(dev, frame.SeqMode) {
			d.state.Gain = f.Gain(dev)
		}

	case frame.CmdSeqMode:
		d.state.Stopped = false
		d.latchMod(f)
		if f.HasFlag(dev, frame.SeqBegin) {
			d.state.Points = d.state.Points[:0]
			d.state.SeqDone = false
		}
		div, points := f.Points(dev)
		d.state.SeqDiv = div
		d.state.Points = append(d.state.Points, points...)
		if f.HasFlag(dev, frame.SeqEnd) {
			d.state.SeqDone = true
		}

	case frame.CmdGainSeqMode:
		d.state.Stopped = false
		size, div, idx := f.GainSeq(dev)
		if f.HasFlag(dev, frame.SeqBegin) || int(idx) == 0 {
			d.state.GainSeq = d.state.GainSeq[:0]
			d.state.SeqDone = false
		}
		d.state.SeqDiv = div
		d.state.GainSeq = append(d.state.GainSeq, f.Gain(dev))
		if f.HasFlag(dev, frame.SeqEnd) || int(idx)+1 == int(size) {
			d.state.SeqDone = true
		}

	case frame.CmdReadCPUVerLSB:
		d.data = uint8(d.cfg.cpuVersion)
	case frame.CmdReadCPUVerMSB:
		d.data = uint8(d.cfg.cpuVersion >> 8)
	case frame.CmdReadFPGAVerLSB:
		d.data = uint8(d.cfg.fpgaVersion)
	case frame.CmdReadFPGAVerMSB:
		d.data = uint8(d.cfg.fpgaVersion >> 8)

	case frame.CmdCalibrate:
		d.state.ModDiv, d.state.ModBuf, _ = f.Calibrate(dev)
		d.data = d.cfg.clockSkew(dev)

	case frame.CmdSetDelay:
		_, _, d.state.Delay = f.Calibrate(dev)

	case frame.CmdStop:
		d.state.Stopped = true

	case frame.CmdClear:
		cleared := d.state.Cleared + 1
		received := d.state.Received
		d.state = DeviceState{Cleared: cleared, Received: received}
	}
}

func (d *device) latchMod(f *frame.Frame) {
	dev := d.idx
	if f.HasFlag(dev, frame.ModBegin) {
		d.state.Mod = d.state.Mod[:0]
		d.state.ModDone = false
	}
	d.state.Mod = append(d.state.Mod, f.Mod(dev)...)
	if f.HasFlag(dev, frame.ModEnd) {
		d.state.ModDone = true
	}
}
