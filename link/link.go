// Package link defines the transport between a controller and AUTD3 devices.
//
// A Link carries one bus cycle per Send/Receive pair: Send writes the output
// frames of every device and Receive reads back the 2-byte input record of
// every device. Implementations live in the emulator (in-process device
// simulator) and soem (raw EtherCAT over Ethernet) subpackages.
package link

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
)

var (
	// ErrLinkUnavailable is returned by Open when the adapter is missing or
	// claimed by another link.
	ErrLinkUnavailable = errors.New("link: adapter unavailable")
	// ErrLinkClosed is returned by Send and Receive on a closed link.
	ErrLinkClosed = errors.New("link: closed")
	// ErrDeviceCount is returned by Open when the bus does not hold the
	// expected number of devices.
	ErrDeviceCount = errors.New("link: unexpected number of devices")
)

// Link is a cyclic transport to a chain of devices.
type Link interface {
	// Open claims the underlying adapter and brings numDevices devices to the
	// operational state.
	Open(ctx context.Context, numDevices int) error
	// Close releases the adapter. Closing a closed link is a no-op.
	Close() error
	// Send writes the output frames, frame.Size bytes per device.
	Send(tx []byte) error
	// Receive reads the input records, frame.RxSize bytes per device.
	Receive(rx []byte) error
	// IsOpen reports whether the link is open.
	IsOpen() bool
}

// Adapter describes a network interface usable by a link.
type Adapter struct {
	Name string
	Desc string
}

func (a Adapter) String() string { return a.Name + ", " + a.Desc }

// EnumerateAdapters lists the network interfaces of the host.
func EnumerateAdapters() ([]Adapter, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("link: list interfaces: %w", err)
	}

	adapters := make([]Adapter, 0, len(ifaces))
	for _, iface := range ifaces {
		adapters = append(adapters, Adapter{Name: iface.Name, Desc: describe(iface)})
	}

	return adapters, nil
}

func describe(iface net.Interface) string {
	parts := make([]string, 0, 3)
	if hw := iface.HardwareAddr.String(); hw != "" {
		parts = append(parts, hw)
	}
	parts = append(parts, fmt.Sprintf("mtu %d", iface.MTU))
	parts = append(parts, iface.Flags.String())

	return strings.Join(parts, " ")
}

// claims maps adapter names to the id of the link owning them.
var claims = xsync.NewMapOf[string, string]()

// Claim marks adapter as owned by owner for the whole process. Claiming an
// adapter already held by owner succeeds.
func Claim(adapter, owner string) error {
	cur, loaded := claims.LoadOrStore(adapter, owner)
	if loaded && cur != owner {
		return fmt.Errorf("%w: %s is claimed by %s", ErrLinkUnavailable, adapter, cur)
	}

	return nil
}

// Release gives up the claim of owner on adapter.
func Release(adapter, owner string) {
	claims.Compute(adapter, func(cur string, loaded bool) (string, bool) {
		// delete only our own claim
		return cur, !loaded || cur == owner
	})
}
