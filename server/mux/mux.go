// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package mux implements a single-threaded, non-blocking socket multiplexer
// over epoll. A Mux owns a set of listening and connected file descriptors,
// blocks in a single readiness wait, and invokes callbacks for newly
// accepted peers, arriving data, and closed connections.
//
// Every exported method except WaitAll and SendTimeout is intended to be
// called only from within the goroutine driving WaitAll; the Mux keeps no
// internal locking because its contract is that of a cooperative,
// single-threaded event loop, not a general-purpose concurrent socket pool.
package mux // import "go.chatd.dev/chatd/server/mux"

import (
	"errors"
	"fmt"
	"net"
	"sort"
	"time"

	"golang.org/x/sys/unix"
)

// Kind distinguishes a listening socket from an accepted/dialed peer.
type Kind int

const (
	// Listener is a socket created by OpenTCPListener.
	Listener Kind = iota
	// Peer is an accepted or dialed connection.
	Peer
)

type conn struct {
	fd       int
	kind     Kind
	parentFD int // the listener fd a Peer was accepted from, or -1
	addr     net.Addr
}

// DataFunc is invoked once per chunk of bytes read from a Peer socket.
type DataFunc func(fd int, parentFD int, b []byte)

// CloseFunc is invoked when a Peer socket reaches clean EOF or is otherwise
// torn down.
type CloseFunc func(fd int)

// AcceptFunc is invoked when a new Peer is accepted on a Listener.
type AcceptFunc func(fd int, parentFD int, addr net.Addr)

// Mux multiplexes readiness across every socket registered with it.
type Mux struct {
	epfd  int
	conns map[int]*conn

	// OnData is called with each chunk of bytes read from a Peer.
	OnData DataFunc
	// OnClose is called when a Peer socket is closed, either by the peer or
	// by Disconnect.
	OnClose CloseFunc
	// OnAccept is called when a new Peer is accepted from a Listener.
	OnAccept AcceptFunc

	readBuf [4096]byte
}

// New creates an empty Mux backed by a fresh epoll instance.
func New() (*Mux, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("mux: epoll_create1: %w", err)
	}
	return &Mux{
		epfd:  epfd,
		conns: make(map[int]*conn),
	}, nil
}

// OpenTCPListener registers a new TCP listener bound to bindIP:port and
// returns its file descriptor.
func (m *Mux) OpenTCPListener(port int, bindIP string) (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(bindIP, itoa(port)))
	if err != nil {
		return -1, err
	}
	fd, err := fdOf(ln)
	if err != nil {
		ln.Close()
		return -1, err
	}
	addr := ln.Addr()
	ln.Close() // the duplicated fd above is independent and now owned by m
	if err := m.register(fd, Listener, -1, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

// OpenTCPClient dials an outbound TCP connection and registers it as a Peer
// with TCP_NODELAY set.
func (m *Mux) OpenTCPClient(host string, port int) (int, error) {
	c, err := net.Dial("tcp", net.JoinHostPort(host, itoa(port)))
	if err != nil {
		return -1, err
	}
	if tc, ok := c.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	fd, err := fdOf(c)
	if err != nil {
		c.Close()
		return -1, err
	}
	addr := c.RemoteAddr()
	c.Close() // the duplicated fd above is independent and now owned by m
	if err := m.register(fd, Peer, -1, addr); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func (m *Mux) register(fd int, kind Kind, parentFD int, addr net.Addr) error {
	if err := unix.EpollCtl(m.epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Events: unix.EPOLLIN,
		Fd:     int32(fd),
	}); err != nil {
		return fmt.Errorf("mux: epoll_ctl add: %w", err)
	}
	m.conns[fd] = &conn{fd: fd, kind: kind, parentFD: parentFD, addr: addr}
	return nil
}

// WaitAll performs one readiness wait over every registered fd and
// dispatches Accept/Data/Close callbacks for whichever fds are ready.
// timeout < 0 blocks indefinitely, 0 polls without blocking, and > 0 waits
// up to that duration.
func (m *Mux) WaitAll(timeout time.Duration) error {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}

	events := make([]unix.EpollEvent, len(m.conns))
	if len(events) == 0 {
		events = make([]unix.EpollEvent, 1)
	}

	n, err := unix.EpollWait(m.epfd, events, ms)
	if err != nil {
		if errors.Is(err, unix.EINTR) {
			return nil
		}
		return fmt.Errorf("mux: epoll_wait: %w", err)
	}

	// Dispatch in deterministic fd order; tolerate the set mutating mid
	// dispatch (a callback may call Disconnect on a later fd in this same
	// batch), per the readiness-dispatch contract: skip any fd that has
	// disappeared by the time we reach it.
	ready := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ready = append(ready, int(events[i].Fd))
	}
	sort.Ints(ready)

	for _, fd := range ready {
		c, ok := m.conns[fd]
		if !ok {
			continue // removed earlier in this same batch
		}
		switch c.kind {
		case Listener:
			m.accept(c)
		case Peer:
			m.readPeer(c)
		}
	}
	return nil
}

func (m *Mux) accept(l *conn) {
	lfd := l.fd
	nfd, sa, err := unix.Accept(lfd)
	if err != nil {
		if !errors.Is(err, unix.EAGAIN) {
			// accept failure is logged by the caller via ChatServer's
			// logger; the mux package itself stays dependency-free of
			// logging policy.
			_ = err
		}
		return
	}
	addr := sockaddrToAddr(sa)
	if err := m.register(nfd, Peer, lfd, addr); err != nil {
		unix.Close(nfd)
		return
	}
	if m.OnAccept != nil {
		m.OnAccept(nfd, lfd, addr)
	}
}

func (m *Mux) readPeer(c *conn) {
	_ = unix.SetNonblock(c.fd, true)
	defer func() {
		if _, stillOpen := m.conns[c.fd]; stillOpen {
			_ = unix.SetNonblock(c.fd, false)
		}
	}()

	for {
		n, err := unix.Read(c.fd, m.readBuf[:])
		switch {
		case n > 0:
			if m.OnData != nil {
				m.OnData(c.fd, c.parentFD, m.readBuf[:n])
			}
			// the data callback may have disconnected this fd while
			// handling the chunk (parse error, routing failure).
			if _, stillOpen := m.conns[c.fd]; !stillOpen {
				return
			}
		case errors.Is(err, unix.EAGAIN):
			return
		case n == 0 || errors.Is(err, unix.ECONNRESET):
			m.Disconnect(c.fd)
			return
		default:
			m.Disconnect(c.fd)
			return
		}
	}
}

// Send writes b to fd, ignoring SIGPIPE (unix.Write never raises it the way
// C's send(2) does).
func (m *Mux) Send(fd int, b []byte) error {
	for len(b) > 0 {
		n, err := unix.Write(fd, b)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) {
				continue
			}
			return err
		}
		b = b[n:]
	}
	return nil
}

// SendTimeout waits up to timeout for fd to become writable before sending
// b, failing if it never does.
func (m *Mux) SendTimeout(fd int, b []byte, timeout time.Duration) error {
	pollFd := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(pollFd, int(timeout/time.Millisecond))
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("mux: fd %d not writable after %s", fd, timeout)
	}
	return m.Send(fd, b)
}

// Disconnect closes fd and removes its record. It is idempotent: closing an
// already-removed fd is a no-op.
func (m *Mux) Disconnect(fd int) {
	c, ok := m.conns[fd]
	if !ok {
		return
	}
	_ = unix.EpollCtl(m.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	_ = unix.Close(fd)
	delete(m.conns, fd)
	if c.kind == Peer && m.OnClose != nil {
		m.OnClose(fd)
	}
}

// NumActive reports the number of fds currently registered.
func (m *Mux) NumActive() int {
	return len(m.conns)
}

// Addr returns the address fd was registered with (the bound address for a
// listener, the remote address for a peer), or nil if fd is not currently
// tracked.
func (m *Mux) Addr(fd int) net.Addr {
	c, ok := m.conns[fd]
	if !ok {
		return nil
	}
	return c.addr
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
