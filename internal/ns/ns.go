// Copyright 2016 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package ns provides namespace constants that are used by the stanza and
// stream packages and other internal packages.
package ns // import "go.chatd.dev/chatd/internal/ns"

// List of commonly used namespaces.
const (
	Bind     = "urn:ietf:params:xml:ns:xmpp-bind"
	SASL     = "urn:ietf:params:xml:ns:xmpp-sasl"
	StartTLS = "urn:ietf:params:xml:ns:xmpp-tls"
	XML      = "http://www.w3.org/XML/1998/namespace"

	// Stream is the namespace of the <stream:stream/> wrapper element and its
	// <stream:error/> and <stream:features/> children.
	Stream = "http://etherx.jabber.org/streams"

	// Streams is the namespace of the defined stream-error condition elements
	// nested inside <stream:error/>, e.g. <bad-format/>.
	Streams = "urn:ietf:params:xml:ns:xmpp-streams"

	// Client is the content namespace for client-to-server streams.
	Client = "jabber:client"

	// Server is the content namespace for server-to-server (S2S) streams.
	Server = "jabber:server"

	// Auth is the namespace of the legacy (non-SASL) authentication query used
	// by chatd's username/password/resource login handshake.
	Auth = "jabber:iq:auth"

	// Dialback is the namespace of the server dialback elements (db:result,
	// db:verify) used to authenticate S2S peers.
	Dialback = "jabber:server:dialback"

	// Stanza is the namespace of the defined stanza-error condition elements
	// nested inside <error/>, e.g. <item-not-found/>.
	Stanza = "urn:ietf:params:xml:ns:xmpp-stanzas"
)
