// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package dial contains methods and types for dialing outbound XMPP
// connections to a fixed host and port. The session package uses it for
// client connections; the router opens its server-to-server links through
// the server/mux package instead.
package dial // import "go.chatd.dev/chatd/dial"

import (
	"context"
	"net"
	"strconv"
)

// A Dialer contains options for connecting to a remote XMPP endpoint. The
// zero value is a Dialer that connects directly to the given host and port
// with no special options.
//
// Unlike a generic XMPP client dialer, this package does not perform DNS
// SRV discovery: the caller always supplies the host and port, and a
// direct connection is dialed against that address.
type Dialer struct {
	net.Dialer
}

// Server dials a server-to-server connection to host on the given port.
func Server(ctx context.Context, network, host string, port uint16) (net.Conn, error) {
	var d Dialer
	return d.Dial(ctx, network, host, port)
}

// Dial connects to host on the given port. If the context expires before
// the connection is complete, an error is returned.
func (d *Dialer) Dial(ctx context.Context, network, host string, port uint16) (net.Conn, error) {
	addr := net.JoinHostPort(host, strconv.FormatUint(uint64(port), 10))
	return d.Dialer.DialContext(ctx, network, addr)
}
