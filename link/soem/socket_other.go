//go:build !linux

package soem

import (
	"fmt"
	"runtime"
	"time"

	"github.com/arloliu/go-autd3/link"
)

func openSocket(ifname string, _ time.Duration) (bus, error) {
	return nil, fmt.Errorf("%w: raw EtherCAT on %s is not supported on %s", link.ErrLinkUnavailable, ifname, runtime.GOOS)
}
