// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"strings"
	"time"
)

// sendTimeout bounds how long a routing send may wait for a peer socket to
// become writable before the delivery is considered failed.
const sendTimeout = 3 * time.Second

// pendingMsg is one stanza queued against an S2S Node that has not yet
// finished its handshake, tagged with the addresses needed to bounce it if
// the link never completes.
type pendingMsg struct {
	stanza   []byte
	to, from string
}

// domainOf extracts the domain portion of a routable identifier:
// substring after '@' (if any) and before '/' (if any).
func domainOf(addr string) string {
	if i := strings.IndexByte(addr, '@'); i >= 0 {
		addr = addr[i+1:]
	}
	if i := strings.IndexByte(addr, '/'); i >= 0 {
		addr = addr[:i]
	}
	return addr
}

// route implements the delivery algorithm: local delivery by full address,
// remote delivery by domain (direct send, pending-queue, or initiating a
// fresh S2S link), with the bounce-on-failure and remove-on-double-failure
// rules that keep the indices consistent.
func (s *ChatServer) route(sender *Node, to, from string, stanza []byte) {
	toDomain := domainOf(to)

	if toDomain == s.domain {
		s.routeLocal(sender, to, from, stanza)
		return
	}
	s.routeRemote(sender, toDomain, to, from, stanza)
}

func (s *ChatServer) routeLocal(sender *Node, to, from string, stanza []byte) {
	target, ok := s.nodesByAddr[to]
	if !ok {
		s.bounce(sender, to, from)
		return
	}
	if err := s.mux.SendTimeout(target.fd, stanza, sendTimeout); err != nil {
		s.closeNode(target)
		s.bounce(sender, to, from)
	}
}

func (s *ChatServer) routeRemote(sender *Node, toDomain, to, from string, stanza []byte) {
	target, ok := s.nodesByAddr[toDomain]
	if !ok {
		s.initiateS2S(sender, toDomain, to, from, stanza)
		return
	}
	if target.state == StateConnected {
		if err := s.mux.SendTimeout(target.fd, stanza, sendTimeout); err != nil {
			s.closeNode(target)
			s.bounce(sender, to, from)
		}
		return
	}
	// target is mid-handshake: queue for flush once it reaches Connected.
	target.pending = append(target.pending, pendingMsg{
		stanza: append([]byte(nil), stanza...),
		to:     to,
		from:   from,
	})
}

// bounce replies to sender with a NO_RECIPIENT naming to, removing sender if
// even that reply cannot be delivered.
func (s *ChatServer) bounce(sender *Node, to, from string) {
	if err := s.mux.SendTimeout(sender.fd, noRecipientStanza(to, from), sendTimeout); err != nil {
		s.closeNode(sender)
	}
}

// initiateS2S dials a fresh outbound peer link to toDomain, seeds its
// pending queue with the stanza that triggered the dial, and registers it
// under toDomain immediately so subsequent stanzas to the same domain queue
// up behind it rather than dialing again.
func (s *ChatServer) initiateS2S(sender *Node, toDomain, to, from string, stanza []byte) {
	fd, err := s.mux.OpenTCPClient(toDomain, s.s2sPort)
	if err != nil {
		s.bounce(sender, to, from)
		return
	}

	n := &Node{
		fd:     fd,
		kind:   KindS2S,
		state:  StateS2SChallenge,
		domain: toDomain,
		remote: toDomain,
		parser: newPushParser(),
		parent: s,
	}
	n.pending = append(n.pending, pendingMsg{
		stanza: append([]byte(nil), stanza...),
		to:     to,
		from:   from,
	})

	if prior, ok := s.nodesByAddr[toDomain]; ok && prior != n {
		delete(s.nodesByAddr, toDomain)
	}
	s.nodesByFD[fd] = n
	s.nodesByAddr[toDomain] = n

	if err := s.mux.Send(fd, n.initiateDialback(s.domain)); err != nil {
		s.closeNode(n)
	}
}

// flushPending sends every stanza queued on an S2S Node's pending list in
// FIFO order once it reaches Connected, then releases the queue.
func (s *ChatServer) flushPending(n *Node) {
	for _, m := range n.pending {
		if err := s.mux.SendTimeout(n.fd, m.stanza, sendTimeout); err != nil {
			s.closeNode(n)
			break
		}
	}
	n.pending = nil
}

// bouncePending sends a NO_RECIPIENT reply for every stanza still queued on
// n to whichever originator is still reachable, then drops the queue. Used
// when an S2S handshake fails (dialback key mismatch, peer disconnect
// mid-handshake) instead of leaving waiting originators with no reply.
func (s *ChatServer) bouncePending(n *Node) {
	for _, m := range n.pending {
		sender, ok := s.nodesByAddr[m.from]
		if !ok || sender == n {
			continue
		}
		s.bounce(sender, m.to, m.from)
	}
	n.pending = nil
}
