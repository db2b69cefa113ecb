// Package frame encodes the fixed-size output frames sent to AUTD3 devices
// and decodes the 2-byte input record each device returns.
//
// One cycle on the bus carries one output frame per device:
//
//	[msg_id(1)][ctrl(1)][cmd(1)][mod_size(1)][mod(124)][body(498)]
//
// All multi-byte fields are little endian.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/arloliu/go-autd3/gain"
	"github.com/arloliu/go-autd3/geometry"
)

const (
	HeaderSize = 128
	BodySize   = 2 * geometry.NumTransInDevice
	// Size is the size of one device output frame.
	Size = HeaderSize + BodySize

	// ModSize is the maximum number of modulation samples per frame.
	ModSize = HeaderSize - modOffset

	// RxSize is the size of one device input record.
	RxSize = 2
)

const (
	msgIDOffset   = 0
	ctrlOffset    = 1
	cmdOffset     = 2
	modSizeOffset = 3
	modOffset     = 4
)

// Reserved message ids. Ids 1 to MaxMsgID are assigned to frames in turn.
const (
	MsgIDNone = 0x00
	MaxMsgID  = 0xFF
)

var (
	ErrModTooLong   = errors.New("frame: modulation chunk exceeds frame capacity")
	ErrTooManyItems = errors.New("frame: body capacity exceeded")
	ErrRxTooShort   = errors.New("frame: input buffer too short")
)

// Flag is a bit of the control byte.
type Flag uint8

const (
	LoopBegin Flag = 1 << iota
	LoopEnd
	ModBegin
	ModEnd
	Silent
	SeqMode
	SeqBegin
	SeqEnd
)

// Command selects how a device interprets the frame body.
type Command uint8

const (
	CmdOp             Command = 0x00
	CmdReadCPUVerLSB  Command = 0x02
	CmdReadCPUVerMSB  Command = 0x03
	CmdReadFPGAVerLSB Command = 0x04
	CmdReadFPGAVerMSB Command = 0x05
	CmdSeqMode        Command = 0x06
	CmdCalibrate      Command = 0x08
	CmdClear          Command = 0x09
	CmdSetDelay       Command = 0x0A
	CmdStop           Command = 0x0B
	CmdGainSeqMode    Command = 0x0C
)

func (c Command) String() string {
	switch c {
	case CmdOp:
		return "op"
	case CmdReadCPUVerLSB:
		return "read_cpu_ver_lsb"
	case CmdReadCPUVerMSB:
		return "read_cpu_ver_msb"
	case CmdReadFPGAVerLSB:
		return "read_fpga_ver_lsb"
	case CmdReadFPGAVerMSB:
		return "read_fpga_ver_msb"
	case CmdSeqMode:
		return "seq_mode"
	case CmdCalibrate:
		return "calibrate"
	case CmdClear:
		return "clear"
	case CmdSetDelay:
		return "set_delay"
	case CmdStop:
		return "stop"
	case CmdGainSeqMode:
		return "gain_seq_mode"
	default:
		return fmt.Sprintf("cmd(0x%02x)", uint8(c))
	}
}

// Frame is the output of one bus cycle: one device frame per device, laid out
// back to back.
type Frame struct {
	buf []byte
}

// New creates a zeroed frame for numDevices devices.
func New(numDevices int) *Frame {
	return &Frame{buf: make([]byte, numDevices*Size)}
}

// Wrap interprets buf as a frame. len(buf) must be a multiple of Size.
func Wrap(buf []byte) (*Frame, error) {
	if len(buf)%Size != 0 {
		return nil, fmt.Errorf("frame: length %d is not a multiple of %d", len(buf), Size)
	}

	return &Frame{buf: buf}, nil
}

// Bytes returns the underlying buffer.
func (f *Frame) Bytes() []byte { return f.buf }

// NumDevices returns the number of device frames.
func (f *Frame) NumDevices() int { return len(f.buf) / Size }

// Device returns the frame of device dev.
func (f *Frame) Device(dev int) []byte {
	return f.buf[dev*Size : (dev+1)*Size]
}

func (f *Frame) body(dev int) []byte {
	return f.Device(dev)[HeaderSize:]
}

// --- Header accessors, applied to every device ---

// SetHeader sets message id, control flags and command of every device and
// clears the modulation area.
func (f *Frame) SetHeader(msgID uint8, flags Flag, cmd Command) {
	for dev := range f.NumDevices() {
		d := f.Device(dev)
		d[msgIDOffset] = msgID
		d[ctrlOffset] = byte(flags)
		d[cmdOffset] = byte(cmd)
		d[modSizeOffset] = 0
		clear(d[modOffset:HeaderSize])
	}
}

// SetMsgID sets the message id of every device.
func (f *Frame) SetMsgID(msgID uint8) {
	for dev := range f.NumDevices() {
		f.Device(dev)[msgIDOffset] = msgID
	}
}

// MsgID returns the message id of device dev.
func (f *Frame) MsgID(dev int) uint8 { return f.Device(dev)[msgIDOffset] }

// Flags returns the control flags of device dev.
func (f *Frame) Flags(dev int) Flag { return Flag(f.Device(dev)[ctrlOffset]) }

// HasFlag reports whether flag is set on device dev.
func (f *Frame) HasFlag(dev int, flag Flag) bool { return f.Flags(dev)&flag != 0 }

// AddFlags sets flags on every device.
func (f *Frame) AddFlags(flags Flag) {
	for dev := range f.NumDevices() {
		f.Device(dev)[ctrlOffset] |= byte(flags)
	}
}

// Command returns the command of device dev.
func (f *Frame) Command(dev int) Command { return Command(f.Device(dev)[cmdOffset]) }

// SetMod copies a modulation chunk into every device frame.
func (f *Frame) SetMod(chunk []uint8) error {
	if len(chunk) > ModSize {
		return fmt.Errorf("%w: %d samples", ErrModTooLong, len(chunk))
	}
	for dev := range f.NumDevices() {
		d := f.Device(dev)
		d[modSizeOffset] = byte(len(chunk))
		copy(d[modOffset:], chunk)
	}

	return nil
}

// Mod returns the modulation chunk of device dev.
func (f *Frame) Mod(dev int) []uint8 {
	d := f.Device(dev)
	n := min(int(d[modSizeOffset]), ModSize)

	return d[modOffset : modOffset+n]
}

// --- Bodies ---

// WriteGain writes the drive of every transducer, in global index order, as
// duty<<8 | phase.
func (f *Frame) WriteGain(states []gain.TransducerState) error {
	n := f.NumDevices()
	if len(states) != n*geometry.NumTransInDevice {
		return fmt.Errorf("frame: %w: %d states for %d devices", gain.ErrDimensionMismatch, len(states), n)
	}

	for dev := range n {
		body := f.body(dev)
		for i, s := range states[dev*geometry.NumTransInDevice : (dev+1)*geometry.NumTransInDevice] {
			binary.LittleEndian.PutUint16(body[2*i:], uint16(s.Duty)<<8|uint16(s.Phase))
		}
	}

	return nil
}

// Gain decodes the drive of device dev.
func (f *Frame) Gain(dev int) []gain.TransducerState {
	body := f.body(dev)
	states := make([]gain.TransducerState, geometry.NumTransInDevice)
	for i := range states {
		v := binary.LittleEndian.Uint16(body[2*i:])
		states[i] = gain.TransducerState{Duty: uint8(v >> 8), Phase: uint8(v)}
	}

	return states
}
