// Package oniondialer implements OnionDialer: a SOCKS5-over-Tor net.Conn
// factory for reaching a peer's onion-v3 address (spec.md §4.8). It never
// resolves .onion hostnames itself — that resolution happens inside the
// Tor SOCKS5 proxy, which is exactly what SOCKS5 "remote DNS" gives a
// client for free.
package oniondialer

import (
	"fmt"
	"net"
	"strconv"

	"golang.org/x/net/proxy"
)

// Dialer opens a connection to (onion, port) through a local Tor SOCKS5
// proxy.
type Dialer struct {
	socksAddr string
}

// New returns a Dialer that routes through the Tor SOCKS5 proxy listening
// at socksAddr (e.g. "127.0.0.1:9050").
func New(socksAddr string) *Dialer {
	return &Dialer{socksAddr: socksAddr}
}

// Dial opens a TCP connection to onion:port via the configured SOCKS5
// proxy. onion may be given with or without the ".onion" suffix.
func (d *Dialer) Dial(onion string, port int) (net.Conn, error) {
	forward, err := proxy.SOCKS5("tcp", d.socksAddr, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("oniondialer: build socks5 dialer: %w", err)
	}
	addr := net.JoinHostPort(onion, strconv.Itoa(port))
	conn, err := forward.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("oniondialer: dial %s: %w", addr, err)
	}
	return conn, nil
}
