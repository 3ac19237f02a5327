// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package server implements the single-threaded chat router: it owns the
// socket multiplexer, the per-connection state machines, client and Server
// Dialback handshakes, and stanza routing between connected clients and
// peer servers.
package server // import "go.chatd.dev/chatd/server"

import (
	"fmt"
	"log"
	"net"
	"os"
	"time"

	"go.chatd.dev/chatd/server/mux"
)

// ChatServer is the aggregate root: it owns the Multiplexer, the dual
// connection index, and this server's domain identity and S2S secret.
type ChatServer struct {
	domain string
	secret string
	s2sPort int

	bindIP      string
	idleTimeout time.Duration
	logger      *log.Logger

	mux *mux.Mux

	nodesByFD   map[int]*Node
	nodesByAddr map[string]*Node
	deadNodes   []*Node

	clientListenerFD int
	s2sListenerFD    int
}

// New constructs a ChatServer for domain, authenticating S2S links with
// secret and dialing peers on s2sPort. Use Option values to override
// defaults.
func New(domain, secret string, s2sPort int, opts ...Option) (*ChatServer, error) {
	m, err := mux.New()
	if err != nil {
		return nil, fmt.Errorf("server: %w", err)
	}
	s := &ChatServer{
		domain:      domain,
		secret:      secret,
		s2sPort:     s2sPort,
		bindIP:      "0.0.0.0",
		logger:      log.New(os.Stderr, "chatd: ", log.LstdFlags),
		idleTimeout: -1,
		mux:         m,
		nodesByFD:   make(map[int]*Node),
		nodesByAddr: make(map[string]*Node),
	}
	for _, o := range opts {
		o(s)
	}

	m.OnAccept = s.onAccept
	m.OnData = s.onData
	m.OnClose = s.onMuxClose
	return s, nil
}

// Listen opens the client listener on clientPort and the peer listener on
// this ChatServer's configured s2sPort, both bound to BindIP.
func (s *ChatServer) Listen(clientPort int) error {
	fd, err := s.mux.OpenTCPListener(clientPort, s.bindIP)
	if err != nil {
		return fmt.Errorf("server: listen client port: %w", err)
	}
	s.clientListenerFD = fd

	fd, err = s.mux.OpenTCPListener(s.s2sPort, s.bindIP)
	if err != nil {
		return fmt.Errorf("server: listen s2s port: %w", err)
	}
	s.s2sListenerFD = fd
	return nil
}

// ServeForever runs the event loop until wait_all reports a fatal error.
func (s *ChatServer) ServeForever() error {
	for {
		if err := s.mux.WaitAll(s.idleTimeout); err != nil {
			return err
		}
	}
}

func (s *ChatServer) onAccept(fd, parentFD int, addr net.Addr) {
	n := &Node{
		fd:     fd,
		state:  StateNone,
		parser: newPushParser(),
		parent: s,
	}
	s.nodesByFD[fd] = n
	s.logger.Printf("accepted fd=%d from=%s", fd, addr)
}

func (s *ChatServer) onData(fd, parentFD int, b []byte) {
	n, ok := s.nodesByFD[fd]
	if !ok {
		return
	}

	n.inParse = true
	err := n.parser.pushChunk(b, func(ev xmlEvent) error {
		return s.dispatch(n, ev)
	})
	n.inParse = false

	if err != nil {
		s.logger.Printf("fd=%d parse/protocol error: %v", fd, err)
		s.mux.Send(fd, parseErrorStanza())
		s.closeNode(n)
	}
	s.sweepDeadNodes()
}

func (s *ChatServer) onMuxClose(fd int) {
	n, ok := s.nodesByFD[fd]
	if !ok {
		return
	}
	s.removeNode(n)
}

// closeNode is the single entry point for proactively tearing down a Node;
// it always routes through the Multiplexer so on_close fires exactly once.
func (s *ChatServer) closeNode(n *Node) {
	s.mux.Disconnect(n.fd)
}

// removeNode de-indexes n and either frees it immediately or, if a
// push_chunk call is currently dispatching an event from n's own bytes,
// defers the free until that call returns.
func (s *ChatServer) removeNode(n *Node) {
	if n.state == StateClosed {
		return
	}
	delete(s.nodesByFD, n.fd)
	if n.remote != "" {
		if cur, ok := s.nodesByAddr[n.remote]; ok && cur == n {
			delete(s.nodesByAddr, n.remote)
		}
	}
	n.state = StateClosed

	if n.inParse {
		s.deadNodes = append(s.deadNodes, n)
		return
	}
	s.freeNode(n)
}

func (s *ChatServer) freeNode(n *Node) {
	if n.parser != nil {
		n.parser.close()
	}
	if len(n.pending) > 0 {
		s.bouncePending(n)
	}
	n.doc = nil
}

func (s *ChatServer) sweepDeadNodes() {
	if len(s.deadNodes) == 0 {
		return
	}
	for _, n := range s.deadNodes {
		s.freeNode(n)
	}
	s.deadNodes = s.deadNodes[:0]
}
