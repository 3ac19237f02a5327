// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"encoding/xml"
	"errors"

	"go.chatd.dev/chatd/internal/attr"
)

// errProtocol marks an element that arrived in a state that does not
// expect it; the caller treats it exactly like a parse error.
var errProtocol = errors.New("server: unexpected element for current state")

func attrVal(attrs []xml.Attr, local string) string {
	_, v := attr.Get(attrs, local)
	return v
}

// dispatch routes one decoded event to the Node's state machine. It is
// called synchronously from within pushChunk, on the goroutine driving
// on_data, never from the background decode goroutine.
func (s *ChatServer) dispatch(n *Node, ev xmlEvent) error {
	switch ev.kind {
	case evStart:
		return s.onStart(n, ev.start)
	case evEnd:
		return s.onEnd(n, ev.end)
	case evChars:
		s.onChars(n, ev.chars)
	}
	return nil
}

func (s *ChatServer) onStart(n *Node, start xml.StartElement) error {
	local := start.Name.Local

	switch {
	case n.state == StateNone && local == "stream":
		return s.acceptStreamOpen(n, start)

	case n.state == StateS2SChallenge && local == "stream":
		id := attrVal(start.Attr, "id")
		s.mux.Send(n.fd, n.offerDialbackKey(s.secret, s.domain, n.domain, id))
		return nil

	case n.state == StateConnecting && local == "iq":
		n.xmlFlags |= flagInIQ
		n.iqID = attrVal(start.Attr, "id")
		return nil

	case n.state == StateConnecting && n.xmlFlags&flagInIQ != 0 && local == "username":
		n.xmlFlags |= flagInUsername
		return nil

	case n.state == StateConnecting && n.xmlFlags&flagInIQ != 0 && local == "resource":
		n.xmlFlags |= flagInResource
		return nil

	case n.state == StateConnected && n.doc == nil && local == "message":
		n.doc = newMsgDoc(start)
		n.to = attrVal(start.Attr, "to")
		return nil

	case n.state == StateConnected && n.doc != nil:
		n.doc.addChild(start)
		return nil

	case isDialbackState(n.state) && (local == "result" || local == "verify" || local == "verify-response"):
		n.dbElem = local
		n.dbAttr = start.Attr
		n.dbKey.Reset()
		return nil

	case n.state == StateConnecting && n.xmlFlags&flagInIQ != 0:
		// the jabber:iq:auth query wrapper and any other incidental child
		// of <iq> we don't key state off of; only username/resource carry
		// scratch we need.
		return nil
	}
	return errProtocol
}

func (s *ChatServer) onEnd(n *Node, end xml.EndElement) error {
	local := end.Name.Local

	switch {
	case local == "username":
		n.xmlFlags &^= flagInUsername
		return nil

	case local == "resource":
		n.xmlFlags &^= flagInResource
		return nil

	case local == "iq" && n.xmlFlags&flagInIQ != 0 && n.state == StateConnecting:
		n.xmlFlags &^= flagInIQ
		if n.username == "" || n.resource == "" {
			return errProtocol
		}
		n.domain = s.domain
		out := n.completeLogin()
		if prior, ok := s.nodesByAddr[n.remote]; ok && prior != n {
			delete(s.nodesByAddr, n.remote)
		}
		s.nodesByAddr[n.remote] = n
		s.mux.Send(n.fd, out)
		return nil

	case local == "message" && n.doc != nil:
		from := n.origFrom()
		if n.kind == KindClient {
			from = n.remote
		}
		stanza := n.serializeMessage()
		n.doc = nil
		s.route(n, n.to, from, stanza)
		return nil

	case n.dbElem == local:
		s.handleDialbackElement(n, end)
		n.dbElem = ""
		return nil

	case local == "stream":
		s.mux.Send(n.fd, streamClose())
		s.closeNode(n)
		return nil

	case n.doc != nil:
		// end of a child element inside an in-flight message
		return nil

	case n.state == StateConnecting && n.xmlFlags&flagInIQ != 0:
		return nil
	}
	return errProtocol
}

func (s *ChatServer) onChars(n *Node, text []byte) {
	switch {
	case n.xmlFlags&flagInUsername != 0:
		n.username += string(text)
	case n.xmlFlags&flagInResource != 0:
		n.resource += string(text)
	case n.doc != nil:
		n.doc.addChars(text)
	case n.dbElem != "":
		n.dbKey.Write(text)
	}
}

func isDialbackState(st State) bool {
	switch st {
	case StateS2SResponse, StateS2SVerify, StateS2SVerifyResponse, StateS2SVerifyFinal:
		return true
	}
	return false
}

// acceptStreamOpen handles a fresh socket's opening stream tag: dispatch on
// the stream's declared default namespace to tell a client link from an
// inbound peer link.
func (s *ChatServer) acceptStreamOpen(n *Node, start xml.StartElement) error {
	xmlns := attrVal(start.Attr, "xmlns")
	switch xmlns {
	case nsClient:
		to := attrVal(start.Attr, "to")
		if to != s.domain {
			return errProtocol
		}
		s.mux.Send(n.fd, n.acceptClientStream(s.domain))
		return nil
	case nsServer:
		s.mux.Send(n.fd, n.acceptS2SStream(s.domain))
		return nil
	}
	return errProtocol
}

// handleDialbackElement advances the Server Dialback handshake once a
// db:result, db:verify, or db:verify-response element has fully parsed.
func (s *ChatServer) handleDialbackElement(n *Node, end xml.EndElement) {
	from := attrVal(n.dbAttr, "from")
	to := attrVal(n.dbAttr, "to")
	id := attrVal(n.dbAttr, "id")
	typ := attrVal(n.dbAttr, "type")
	key := n.dbKey.String()
	n.dbKey.Reset()

	switch {
	case end.Name.Local == "result" && n.state == StateS2SResponse:
		if !verifyDialbackOffer(s.secret, from, to, n.authkey, key) {
			// close immediately rather than silently continuing with an
			// unverified peer.
			s.closeNode(n)
			return
		}
		n.remote = from
		if prior, ok := s.nodesByAddr[from]; ok && prior != n {
			delete(s.nodesByAddr, from)
		}
		s.nodesByAddr[from] = n
		s.mux.Send(n.fd, n.confirmDialbackKey(to, from, key))

	case end.Name.Local == "verify" && n.state == StateS2SVerify:
		s.mux.Send(n.fd, n.echoDialbackVerify(id, to, from))

	case end.Name.Local == "verify-response" && n.state == StateS2SVerifyResponse:
		s.mux.Send(n.fd, n.confirmDialbackOutcome(to, from))

	case end.Name.Local == "result" && n.state == StateS2SVerifyFinal:
		if typ != "valid" {
			s.closeNode(n)
			return
		}
		n.finishDialback()
		s.flushPending(n)
	}
}
