// Package safehttp builds transports for requests whose target was chosen by
// a remote party, such as a delegated upload URL returned by the backend.
package safehttp

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"syscall"
	"time"
)

// ErrPrivateAddress is returned when a connection targets a loopback,
// private or link-local address.
var ErrPrivateAddress = errors.New("access to private address denied")

// NewTransport returns a transport that refuses to connect to private
// networks. The check runs on the resolved address, after DNS.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{
		Timeout: 5 * time.Second,
		Control: denyPrivate,
	}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.DialContext = dialer.DialContext
	t.Proxy = nil
	return t
}

func denyPrivate(network, address string, _ syscall.RawConn) error {
	ap, err := netip.ParseAddrPort(address)
	if err != nil {
		return fmt.Errorf("failed to parse remote address %q: %w", address, err)
	}
	if IsPrivate(ap.Addr()) {
		return fmt.Errorf("%w: %s", ErrPrivateAddress, ap.Addr())
	}
	return nil
}

// IsPrivate reports whether addr is loopback, private, link-local or unspecified.
func IsPrivate(addr netip.Addr) bool {
	addr = addr.Unmap()
	return addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() ||
		addr.IsLinkLocalMulticast() || addr.IsUnspecified()
}
