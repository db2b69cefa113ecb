//go:build linux

package soem

import (
	"fmt"
	"net"
	"time"

	"github.com/arloliu/go-autd3/link"
	"golang.org/x/sys/unix"
)

// socket is an AF_PACKET raw socket bound to one adapter.
type socket struct {
	fd      int
	ifindex int
	hw      net.HardwareAddr
	timeout time.Duration
}

func htons(v uint16) uint16 { return v<<8 | v>>8 }

func openSocket(ifname string, timeout time.Duration) (bus, error) {
	iface, err := net.InterfaceByName(ifname)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", link.ErrLinkUnavailable, ifname, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(etherType)))
	if err != nil {
		return nil, fmt.Errorf("%w: open raw socket: %w", link.ErrLinkUnavailable, err)
	}

	sll := &unix.SockaddrLinklayer{Protocol: htons(etherType), Ifindex: iface.Index}
	if err := unix.Bind(fd, sll); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: bind %s: %w", link.ErrLinkUnavailable, ifname, err)
	}

	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("%w: set receive timeout: %w", link.ErrLinkUnavailable, err)
	}

	hw := iface.HardwareAddr
	if len(hw) != 6 {
		hw = net.HardwareAddr{0x01, 0x01, 0x01, 0x01, 0x01, 0x01}
	}

	return &socket{fd: fd, ifindex: iface.Index, hw: hw, timeout: timeout}, nil
}

func (s *socket) hardwareAddr() net.HardwareAddr { return s.hw }

// exchange broadcasts out and waits for the frame to come back around the
// ring. Frames we sent ourselves and unrelated EtherCAT traffic are skipped.
func (s *socket) exchange(out, in []byte) (int, error) {
	to := &unix.SockaddrLinklayer{
		Protocol: htons(etherType),
		Ifindex:  s.ifindex,
		Halen:    6,
	}
	copy(to.Addr[:], broadcastMAC)

	if err := unix.Sendto(s.fd, out, 0, to); err != nil {
		return 0, fmt.Errorf("soem: send: %w", err)
	}

	deadline := time.Now().Add(s.timeout)
	for time.Now().Before(deadline) {
		n, from, err := unix.Recvfrom(s.fd, in, 0)
		if err != nil {
			if err == unix.EAGAIN || err == unix.EINTR {
				continue
			}

			return 0, fmt.Errorf("soem: receive: %w", err)
		}

		if ll, ok := from.(*unix.SockaddrLinklayer); ok && ll.Pkttype == unix.PACKET_OUTGOING {
			continue
		}
		if n < ethHeaderLen+ecatHeaderLen+1 || n < len(out) {
			continue
		}
		// first datagram index identifies the frame
		if in[ethHeaderLen+ecatHeaderLen+1] != out[ethHeaderLen+ecatHeaderLen+1] {
			continue
		}

		return n, nil
	}

	return 0, fmt.Errorf("soem: %w within %v", errNoReply, s.timeout)
}

func (s *socket) close() error {
	return unix.Close(s.fd)
}
