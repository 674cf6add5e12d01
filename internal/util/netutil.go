package util

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"syscall"

	"golang.org/x/net/netutil"
)

// CreateListener creates a net.Listener on the given address. When
// maxConns is positive the listener admits at most maxConns simultaneously
// open connections; further Accept calls block until one is closed.
func CreateListener(network, address string, maxConns int) (net.Listener, error) {
	if network != "tcp" && network != "tcp4" && network != "tcp6" {
		return nil, fmt.Errorf("unsupported network type: %s, only 'tcp', 'tcp4', or 'tcp6' are supported for CreateListener", network)
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return nil, fmt.Errorf("failed to create listener on %s %s: %w", network, address, err)
	}
	if maxConns > 0 {
		ln = netutil.LimitListener(ln, maxConns)
	}
	return ln, nil
}

// IsAddrInUse reports whether err is caused by the listen address being taken.
func IsAddrInUse(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var sysErr *os.SyscallError
	if errors.As(err, &sysErr) && sysErr.Err == syscall.EADDRINUSE {
		return true
	}
	// Some platforms only surface the condition in the message.
	return strings.Contains(strings.ToLower(err.Error()), "address already in use")
}
