package controller

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/gain"
	"github.com/arloliu/go-autd3/modulation"
	"github.com/arloliu/go-autd3/sequence"
)

// ErrNilArgument is returned when a nil gain, modulation or sequence is appended.
var ErrNilArgument = errors.New("controller: nil argument")

// AppendGain queues g. The gain is computed on the builder goroutine; build
// errors are logged and counted in Metrics.BuildErrCount.
func (c *Controller) AppendGain(g gain.Gain) error {
	if g == nil {
		return ErrNilArgument
	}

	return c.submit(c.gainRequest(g, waitNone)).err
}

// AppendGainSync queues g and waits until it is computed. With waitForSend it
// also waits until every device acknowledged the frame.
func (c *Controller) AppendGainSync(g gain.Gain, waitForSend bool) error {
	if g == nil {
		return ErrNilArgument
	}

	mode := waitBuilt
	if waitForSend {
		mode = waitAck
	}

	return c.submit(c.gainRequest(g, mode)).err
}

func (c *Controller) gainRequest(g gain.Gain, mode waitMode) *request {
	return newRequest("AppendGain", mode, func() ([]*frame.Frame, error) {
		states, err := g.Calc(c.geo)
		if err != nil {
			return nil, err
		}

		f := c.newFrame(0, frame.CmdOp)
		if err := f.WriteGain(states); err != nil {
			return nil, err
		}
		c.lastGain = states
		c.state.toOpen()

		return []*frame.Frame{f}, nil
	})
}

// AppendModulation queues m. The samples are split over as many frames as
// needed; the devices keep playing the current gain.
func (c *Controller) AppendModulation(m *modulation.Modulation) error {
	if m == nil {
		return ErrNilArgument
	}

	return c.submit(c.modulationRequest(m, waitNone)).err
}

// AppendModulationSync queues m and waits until every device acknowledged
// every frame.
func (c *Controller) AppendModulationSync(m *modulation.Modulation) error {
	if m == nil {
		return ErrNilArgument
	}

	return c.submit(c.modulationRequest(m, waitAck)).err
}

func (c *Controller) modulationRequest(m *modulation.Modulation, mode waitMode) *request {
	samples := m.Samples()

	return newRequest("AppendModulation", mode, func() ([]*frame.Frame, error) {
		var frames []*frame.Frame
		for sent := 0; sent < len(samples); sent += frame.ModSize {
			end := min(sent+frame.ModSize, len(samples))

			var flags frame.Flag
			if sent == 0 {
				flags |= frame.ModBegin
			}
			if end == len(samples) {
				flags |= frame.ModEnd
			}

			f := c.newFrame(flags, frame.CmdOp)
			if err := f.SetMod(samples[sent:end]); err != nil {
				return nil, err
			}
			if c.lastGain != nil {
				if err := f.WriteGain(c.lastGain); err != nil {
					return nil, err
				}
			}
			frames = append(frames, f)
		}
		c.state.toOpen()

		return frames, nil
	})
}

// AppendSequence queues the point sequence seq. Devices start playing it once
// the last frame arrived.
func (c *Controller) AppendSequence(seq *sequence.Point) error {
	if seq == nil {
		return ErrNilArgument
	}

	return c.submit(c.sequenceRequest(seq, waitNone)).err
}

// AppendSequenceSync queues seq and waits until every device acknowledged
// every frame.
func (c *Controller) AppendSequenceSync(seq *sequence.Point) error {
	if seq == nil {
		return ErrNilArgument
	}

	return c.submit(c.sequenceRequest(seq, waitAck)).err
}

func (c *Controller) sequenceRequest(seq *sequence.Point, mode waitMode) *request {
	foci := seq.Points()
	div := seq.SamplingFreqDiv()

	return newRequest("AppendSequence", mode, func() ([]*frame.Frame, error) {
		if len(foci) == 0 {
			return nil, fmt.Errorf("controller: empty point sequence")
		}

		devices := c.geo.Devices()
		var frames []*frame.Frame
		for sent := 0; sent < len(foci); sent += frame.PointsPerFrame {
			chunk := foci[sent:min(sent+frame.PointsPerFrame, len(foci))]

			flags := frame.SeqMode
			if sent == 0 {
				flags |= frame.SeqBegin
			}
			if sent+len(chunk) == len(foci) {
				flags |= frame.SeqEnd
			}

			f := c.newFrame(flags, frame.CmdSeqMode)
			points := make([]frame.Point, len(chunk))
			for i, dev := range devices {
				for j, focus := range chunk {
					points[j] = frame.NewPoint(dev.ToLocal(focus.Pos), focus.Duty)
				}
				if err := f.WritePoints(i, div, points); err != nil {
					return nil, err
				}
			}
			frames = append(frames, f)
		}
		c.state.toStreaming()

		return frames, nil
	})
}

// AppendSTMGain adds g to the gain sequence played by StartSTM.
func (c *Controller) AppendSTMGain(g gain.Gain) error {
	c.stmMu.Lock()
	defer c.stmMu.Unlock()

	return c.stm.AppendGain(g)
}

// STMLen returns the number of gains added with AppendSTMGain.
func (c *Controller) STMLen() int {
	c.stmMu.Lock()
	defer c.stmMu.Unlock()

	return c.stm.Len()
}

// StartSTM computes the gains added with AppendSTMGain and makes the devices
// cycle through them freq times per second. It waits until every device
// acknowledged the sequence and returns the achieved frequency.
func (c *Controller) StartSTM(freq float64) (float64, error) {
	c.stmMu.Lock()
	gains := c.stm.Gains()
	achieved := c.stm.SetFrequency(freq)
	div := c.stm.SamplingFreqDiv()
	c.stmMu.Unlock()

	if len(gains) == 0 {
		return 0, fmt.Errorf("controller: no STM gains")
	}

	req := newRequest("StartSTM", waitAck, func() ([]*frame.Frame, error) {
		frames := make([]*frame.Frame, len(gains))
		for i, g := range gains {
			states, err := g.Calc(c.geo)
			if err != nil {
				return nil, fmt.Errorf("STM gain %d: %w", i, err)
			}

			flags := frame.SeqMode
			if i == 0 {
				flags |= frame.SeqBegin
			}
			if i == len(gains)-1 {
				flags |= frame.SeqEnd
			}

			f := c.newFrame(flags, frame.CmdGainSeqMode)
			f.SetGainSeq(uint16(len(gains)), div, uint16(i))
			if err := f.WriteGain(states); err != nil {
				return nil, err
			}
			frames[i] = f
		}
		c.state.toStreaming()

		return frames, nil
	})

	if err := c.submit(req).err; err != nil {
		return 0, err
	}

	return achieved, nil
}

// StopSTM halts the gain sequence. The gains are kept for another StartSTM.
func (c *Controller) StopSTM() error {
	return c.stop("StopSTM")
}

// FinishSTM halts the gain sequence and forgets its gains.
func (c *Controller) FinishSTM() error {
	err := c.stop("FinishSTM")

	c.stmMu.Lock()
	c.stm = sequence.NewGain()
	c.stmMu.Unlock()

	return err
}
