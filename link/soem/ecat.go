package soem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
)

// EtherCAT framing constants.
const (
	etherType      = 0x88A4
	ethHeaderLen   = 14
	ecatHeaderLen  = 2
	dgHeaderLen    = 10
	dgFooterLen    = 2
	maxEthPayload  = 1500
	ecatTypeDLPDU  = 1
	dgLenMask      = 0x07FF
	dgMoreFollows  = 0x8000
	maxFrameLength = ethHeaderLen + maxEthPayload
)

// Datagram commands.
const (
	cmdAPRD = 0x01
	cmdAPWR = 0x02
	cmdFPRD = 0x04
	cmdFPWR = 0x05
	cmdBRD  = 0x07
	cmdBWR  = 0x08
	cmdLRD  = 0x0A
	cmdLWR  = 0x0B
)

// ESC registers.
const (
	regStationAddress = 0x0010
	regALControl      = 0x0120
	regALStatus       = 0x0130
	regFMMUBase       = 0x0600
	fmmuSize          = 16
)

// Application layer states.
const (
	alInit   = 0x01
	alPreOp  = 0x02
	alSafeOp = 0x04
	alOp     = 0x08
	alMask   = 0x0F
)

var errMalformed = errors.New("soem: malformed EtherCAT frame")

var broadcastMAC = net.HardwareAddr{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

// datagram is one EtherCAT PDU. adp and ado form the 32-bit address: position
// or station address plus register for device addressing, or the logical
// address for logical commands.
type datagram struct {
	cmd  uint8
	idx  uint8
	adp  uint16
	ado  uint16
	data []byte
	wkc  uint16
}

func (d *datagram) logical() uint32 { return uint32(d.ado)<<16 | uint32(d.adp) }

func logicalDatagram(cmd, idx uint8, addr uint32, data []byte) datagram {
	return datagram{cmd: cmd, idx: idx, adp: uint16(addr), ado: uint16(addr >> 16), data: data}
}

func datagramsLen(dgs []datagram) int {
	n := 0
	for _, d := range dgs {
		n += dgHeaderLen + len(d.data) + dgFooterLen
	}

	return n
}

// encodeFrame builds an Ethernet frame carrying dgs, sent from src to broadcast.
func encodeFrame(src net.HardwareAddr, dgs []datagram) ([]byte, error) {
	payload := datagramsLen(dgs)
	if payload+ecatHeaderLen > maxEthPayload {
		return nil, fmt.Errorf("soem: %d datagram bytes exceed an Ethernet frame", payload)
	}

	buf := make([]byte, ethHeaderLen+ecatHeaderLen+payload)
	copy(buf[0:6], broadcastMAC)
	copy(buf[6:12], src)
	binary.BigEndian.PutUint16(buf[12:], etherType)
	binary.LittleEndian.PutUint16(buf[ethHeaderLen:], uint16(payload)&dgLenMask|ecatTypeDLPDU<<12)

	off := ethHeaderLen + ecatHeaderLen
	for i, d := range dgs {
		b := buf[off:]
		b[0] = d.cmd
		b[1] = d.idx
		binary.LittleEndian.PutUint16(b[2:], d.adp)
		binary.LittleEndian.PutUint16(b[4:], d.ado)
		l := uint16(len(d.data)) & dgLenMask
		if i < len(dgs)-1 {
			l |= dgMoreFollows
		}
		binary.LittleEndian.PutUint16(b[6:], l)
		copy(b[dgHeaderLen:], d.data)
		binary.LittleEndian.PutUint16(b[dgHeaderLen+len(d.data):], d.wkc)
		off += dgHeaderLen + len(d.data) + dgFooterLen
	}

	return buf, nil
}

// decodeFrame parses the datagrams of an EtherCAT Ethernet frame. Datagram
// data aliases buf.
func decodeFrame(buf []byte) ([]datagram, error) {
	if len(buf) < ethHeaderLen+ecatHeaderLen || binary.BigEndian.Uint16(buf[12:]) != etherType {
		return nil, errMalformed
	}

	hdr := binary.LittleEndian.Uint16(buf[ethHeaderLen:])
	payload := int(hdr & dgLenMask)
	body := buf[ethHeaderLen+ecatHeaderLen:]
	if payload > len(body) {
		return nil, errMalformed
	}
	body = body[:payload]

	var dgs []datagram
	for len(body) > 0 {
		if len(body) < dgHeaderLen+dgFooterLen {
			return nil, errMalformed
		}
		l := binary.LittleEndian.Uint16(body[6:])
		n := int(l & dgLenMask)
		if len(body) < dgHeaderLen+n+dgFooterLen {
			return nil, errMalformed
		}
		dgs = append(dgs, datagram{
			cmd:  body[0],
			idx:  body[1],
			adp:  binary.LittleEndian.Uint16(body[2:]),
			ado:  binary.LittleEndian.Uint16(body[4:]),
			data: body[dgHeaderLen : dgHeaderLen+n],
			wkc:  binary.LittleEndian.Uint16(body[dgHeaderLen+n:]),
		})
		body = body[dgHeaderLen+n+dgFooterLen:]
		if l&dgMoreFollows == 0 {
			break
		}
	}

	return dgs, nil
}

// fmmuEntry encodes an FMMU mapping of length bytes at logical to phys.
// write selects an output mapping, otherwise an input mapping.
func fmmuEntry(logical uint32, length, phys uint16, write bool) []byte {
	b := make([]byte, fmmuSize)
	binary.LittleEndian.PutUint32(b[0:], logical)
	binary.LittleEndian.PutUint16(b[4:], length)
	b[6] = 0 // logical start bit
	b[7] = 7 // logical stop bit
	binary.LittleEndian.PutUint16(b[8:], phys)
	b[10] = 0    // physical start bit
	b[11] = 0x01 // read
	if write {
		b[11] = 0x02
	}
	b[12] = 0x01 // activate

	return b
}
