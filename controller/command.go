package controller

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-autd3/frame"
	"github.com/arloliu/go-autd3/modulation"
)

// Stop halts modulation and sequence playback. The current gain is kept.
// Callers blocked in a synchronous append are released with ErrCanceled and
// their remaining frames are dropped. Asynchronous appends queued before Stop
// still reach the devices, ahead of the stop frame.
func (c *Controller) Stop() error {
	return c.stop("Stop")
}

func (c *Controller) stop(name string) error {
	if !c.IsOpen() {
		return ErrClosed
	}

	c.cancelWaiting(ErrCanceled)

	err := c.submit(newRequest(name, waitAck, func() ([]*frame.Frame, error) {
		return []*frame.Frame{c.newFrame(0, frame.CmdStop)}, nil
	})).err
	if err == nil {
		c.state.toOpen()
	}

	return err
}

// cancelWaiting releases every caller blocked on a request that was not
// acknowledged yet. The builder and the transport skip canceled requests, so
// the queues keep their order.
func (c *Controller) cancelWaiting(err error) {
	for _, req := range c.pending.Items() {
		if req.mode != waitNone {
			req.cancel(err)
		}
	}
	for _, out := range c.outbound.Items() {
		if out.req.mode != waitNone {
			out.req.cancel(err)
		}
	}
	c.ackWaiters.Range(func(_ uint8, req *request) bool {
		req.cancel(err)
		return true
	})
}

// Clear makes every device play the null gain with the default modulation.
// The link stays open.
func (c *Controller) Clear() error {
	err := c.submit(newRequest("Clear", waitAck, func() ([]*frame.Frame, error) {
		c.lastGain = nil
		return []*frame.Frame{c.newFrame(0, frame.CmdClear)}, nil
	})).err
	if err == nil {
		c.state.toOpen()
	}

	return err
}

// Calibrate configures the modulation clock of every device and compensates
// the clock offset between devices.
//
// Each device reports its offset in answer to a calibration frame; the
// offsets are then written back as per-device delays. The round trip is
// attempted up to the configured number of retries before
// ErrCalibrationTimeout is returned. The link stays open either way.
func (c *Controller) Calibrate(samplingFreq, bufferSize int) error {
	if !modulation.ValidSamplingFreq(samplingFreq) {
		return fmt.Errorf("%w: %d Hz", modulation.ErrInvalidSamplingFreq, samplingFreq)
	}
	if bufferSize < modulation.MinBufferSize || bufferSize > modulation.MaxBufferSize {
		return fmt.Errorf("%w: %d", modulation.ErrInvalidBufferSize, bufferSize)
	}

	modDiv := uint16(modulation.BaseFrequency / samplingFreq)
	bufSize := uint16(bufferSize)

	skews, err := c.calibrationRoundTrip(frame.CmdCalibrate, modDiv, bufSize, nil)
	if err != nil {
		return err
	}

	var maxSkew uint8
	for _, s := range skews {
		maxSkew = max(maxSkew, s)
	}
	delays := make([]uint16, len(skews))
	for i, s := range skews {
		delays[i] = uint16(maxSkew - s)
	}

	if _, err := c.calibrationRoundTrip(frame.CmdSetDelay, modDiv, bufSize, delays); err != nil {
		return err
	}

	c.logger.Info("calibrated", "sampling_freq", samplingFreq, "buffer_size", bufferSize, "delays", delays)

	return nil
}

// calibrationRoundTrip sends cmd until acknowledged and returns the data byte
// of every device.
func (c *Controller) calibrationRoundTrip(cmd frame.Command, modDiv, bufSize uint16, delays []uint16) ([]uint8, error) {
	for attempt := range c.cfg.calibrationRetries {
		if attempt > 0 {
			c.metrics.incCalibrationRetryCount()
		}

		res := c.submit(newRequest("Calibrate", waitAck, func() ([]*frame.Frame, error) {
			f := c.newFrame(0, cmd)
			for dev := range f.NumDevices() {
				var delay uint16
				if delays != nil {
					delay = delays[dev]
				}
				f.WriteCalibrate(dev, modDiv, bufSize, delay)
			}

			return []*frame.Frame{f}, nil
		}))

		switch {
		case res.err == nil:
			data := make([]uint8, len(res.rx))
			for i, r := range res.rx {
				data[i] = r.Data
			}

			return data, nil
		case errors.Is(res.err, ErrAckTimeout):
			c.logger.Warn("calibration not acknowledged", "command", cmd, "attempt", attempt+1)
		default:
			return nil, res.err
		}
	}

	return nil, fmt.Errorf("%w: %s after %d attempts", ErrCalibrationTimeout, cmd, c.cfg.calibrationRetries)
}

// FirmwareInfo holds the firmware versions of one device.
type FirmwareInfo struct {
	CPUVersion  uint16
	FPGAVersion uint16
}

// CPU returns the formatted CPU firmware version.
func (fi FirmwareInfo) CPU() string { return FormatVersion(fi.CPUVersion) }

// FPGA returns the formatted FPGA firmware version.
func (fi FirmwareInfo) FPGA() string { return FormatVersion(fi.FPGAVersion) }

func (fi FirmwareInfo) String() string {
	return "CPU: " + fi.CPU() + ", FPGA: " + fi.FPGA()
}

// FormatVersion converts a firmware version number into a release name.
func FormatVersion(v uint16) string {
	switch {
	case v == 0:
		return "older than v0.4"
	case v <= 6:
		return fmt.Sprintf("v0.%d", v+3)
	case v == 0xFFFF:
		return "emulator"
	default:
		return fmt.Sprintf("unknown: %d", v)
	}
}

// FirmwareInfoList reads the firmware versions of every device.
func (c *Controller) FirmwareInfoList() ([]FirmwareInfo, error) {
	cmds := []frame.Command{
		frame.CmdReadCPUVerLSB, frame.CmdReadCPUVerMSB,
		frame.CmdReadFPGAVerLSB, frame.CmdReadFPGAVerMSB,
	}

	reads := make([][]frame.Rx, len(cmds))
	for i, cmd := range cmds {
		res := c.submit(newRequest("FirmwareInfoList", waitAck, func() ([]*frame.Frame, error) {
			return []*frame.Frame{c.newFrame(0, cmd)}, nil
		}))
		if res.err != nil {
			return nil, fmt.Errorf("controller: read %s: %w", cmd, res.err)
		}
		reads[i] = res.rx
	}

	infos := make([]FirmwareInfo, len(reads[0]))
	for dev := range infos {
		infos[dev] = FirmwareInfo{
			CPUVersion:  uint16(reads[1][dev].Data)<<8 | uint16(reads[0][dev].Data),
			FPGAVersion: uint16(reads[3][dev].Data)<<8 | uint16(reads[2][dev].Data),
		}
	}

	return infos, nil
}
