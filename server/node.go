// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"encoding/xml"
	"strings"
)

var attrEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;", `"`, "&quot;")
var textEscaper = strings.NewReplacer(`&`, "&amp;", `<`, "&lt;", `>`, "&gt;")

// Kind distinguishes a client connection from a server-to-server peer link.
type Kind int

const (
	// KindClient is a logged-in (or logging-in) client connection.
	KindClient Kind = iota
	// KindS2S is a peer server link authenticated via Server Dialback.
	KindS2S
)

func (k Kind) String() string {
	if k == KindS2S {
		return "s2s"
	}
	return "client"
}

// State is a Node's position in the per-kind handshake state machine: the
// client login exchange, or the four-way Server Dialback handshake.
type State int

const (
	// StateNone is the state of a freshly accepted socket before its
	// opening stream tag has arrived.
	StateNone State = iota
	// StateConnecting is a client that has opened a stream but not yet
	// completed its jabber:iq:auth login.
	StateConnecting
	// StateS2SChallenge is an outbound S2S link waiting for the peer's
	// challenge stream open.
	StateS2SChallenge
	// StateS2SResponse is an inbound S2S link waiting for the initiator's
	// db:result.
	StateS2SResponse
	// StateS2SVerify is an outbound S2S link waiting for the peer's
	// db:verify.
	StateS2SVerify
	// StateS2SVerifyResponse is an inbound S2S link waiting for the
	// initiator's verify echo.
	StateS2SVerifyResponse
	// StateS2SVerifyFinal is an outbound S2S link waiting for the peer's
	// final db:result.
	StateS2SVerifyFinal
	// StateConnected is a fully authenticated client or peer link.
	StateConnected
	// StateClosed is a torn-down Node kept only until it is swept from
	// dead_nodes.
	StateClosed
)

// xmlFlags tracks which element of the current stanza a Node is inside of,
// so that character data and nested elements can be routed to the right
// field of the handshake scratch or the in-flight message document.
type xmlFlags uint8

const (
	flagInIQ xmlFlags = 1 << iota
	flagInUsername
	flagInResource
)

// msgElem is one element of an in-flight <message/> subtree: either the
// root itself or one of its direct children. Character data belonging to an
// element accumulates across possibly-many chars() callbacks.
type msgElem struct {
	name xml.Name
	attr []xml.Attr
	text strings.Builder
}

// msgDoc accumulates the stanza currently being parsed on a Node between
// the <message> start tag and its matching end tag. The router serializes
// it back to wire bytes verbatim, save for an optional from= rewrite.
type msgDoc struct {
	root     msgElem
	children []*msgElem
}

func newMsgDoc(start xml.StartElement) *msgDoc {
	return &msgDoc{root: msgElem{name: start.Name, attr: start.Attr}}
}

func (d *msgDoc) addChild(start xml.StartElement) {
	d.children = append(d.children, &msgElem{name: start.Name, attr: start.Attr})
}

func (d *msgDoc) addChars(text []byte) {
	if len(d.children) == 0 {
		d.root.text.Write(text)
		return
	}
	d.children[len(d.children)-1].text.Write(text)
}

func writeAttr(b *strings.Builder, name, value string) {
	b.WriteByte(' ')
	b.WriteString(name)
	b.WriteString(`="`)
	b.WriteString(attrEscaper.Replace(value))
	b.WriteByte('"')
}

// Node is the server-side representation of one connected socket: a client
// awaiting or past login, or a peer link awaiting or past Server Dialback.
type Node struct {
	fd   int
	kind Kind

	state    State
	xmlFlags xmlFlags

	// remote is the full routable identifier once handshake completes:
	// user@domain/resource for a client, domain for an S2S peer.
	remote string

	to, username, resource, domain string
	authkey                        string
	iqID                           string

	parser *pushParser
	doc    *msgDoc

	// pending holds stanzas queued for an S2S Node that has not yet reached
	// StateConnected, each tagged with the addresses that produced it so a
	// failed handshake can bounce NO_RECIPIENT to waiting originators
	// instead of silently dropping them. Flushed in FIFO order on
	// handshake completion.
	pending []pendingMsg

	// inParse is set for the duration of a push_chunk call that is
	// currently dispatching an event derived from this Node's bytes. A
	// Node slated for removal while this is set is deferred to dead_nodes
	// instead of being freed immediately.
	inParse bool

	// parent is a non-owning back-reference; the ChatServer is the sole
	// owner of Nodes, reachable via nodes_by_fd.
	parent *ChatServer

	// dbElem, dbAttr, and dbKey accumulate the current Server Dialback
	// element (db:result/db:verify/db:verify-response) the same way doc
	// accumulates an in-flight message.
	dbElem string
	dbAttr []xml.Attr
	dbKey  strings.Builder
}

// origFrom returns the from= attribute as the peer actually sent it, before
// any rewrite.
func (n *Node) origFrom() string {
	return attrVal(n.doc.root.attr, "from")
}

// serializeMessage renders the in-flight message document back to wire
// bytes, preserving every child element verbatim and rewriting from= to the
// Node's own routable identity for client links (S2S links relay from=
// exactly as the peer sent it).
func (n *Node) serializeMessage() []byte {
	from := n.origFrom()
	if n.kind == KindClient {
		from = n.remote
	}

	var b strings.Builder
	b.WriteString("<message")
	for _, a := range n.doc.root.attr {
		if a.Name.Local == "from" {
			continue
		}
		writeAttr(&b, a.Name.Local, a.Value)
	}
	writeAttr(&b, "from", from)
	b.WriteByte('>')

	for _, c := range n.doc.children {
		b.WriteByte('<')
		b.WriteString(c.name.Local)
		for _, a := range c.attr {
			writeAttr(&b, a.Name.Local, a.Value)
		}
		b.WriteByte('>')
		b.WriteString(textEscaper.Replace(c.text.String()))
		b.WriteString("</")
		b.WriteString(c.name.Local)
		b.WriteByte('>')
	}
	b.WriteString("</message>")
	return []byte(b.String())
}
