// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package mux

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// fdOf extracts the underlying file descriptor from a net.Conn or
// net.Listener, duplicating it so the caller-owned wrapper can be closed
// independently of the fd the Mux now manages directly.
func fdOf(v interface{}) (int, error) {
	sc, ok := v.(syscall.Conn)
	if !ok {
		return -1, fmt.Errorf("mux: %T does not support raw access", v)
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	var dupErr error
	err = raw.Control(func(ufd uintptr) {
		fd, dupErr = unix.Dup(int(ufd))
	})
	if err != nil {
		return -1, err
	}
	if dupErr != nil {
		return -1, dupErr
	}
	return fd, nil
}

// sockaddrToAddr converts a raw accept(2) sockaddr into a net.Addr. Only
// AF_INET and AF_INET6 are expected since the mux only ever deals in TCP
// sockets.
func sockaddrToAddr(sa unix.Sockaddr) net.Addr {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), sa.Addr[:]...), Port: sa.Port}
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), sa.Addr[:]...), Port: sa.Port}
	default:
		return nil
	}
}
