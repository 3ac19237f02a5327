// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"encoding/xml"
	"fmt"
	"strings"

	"mellium.im/xmlstream"

	"go.chatd.dev/chatd/internal/ns"
)

// streamOpen is the opening <stream:stream> tag a server sends in response
// to a client or peer's own opening tag. id is the authkey minted for this
// handshake.
//
// This is a bare, unterminated root start tag, not a complete element, so it
// is built as a plain format string over the raw connection rather than
// through xmlstream, which composes complete token subtrees.
func streamOpen(domain, id, xmlns string) []byte {
	return []byte(fmt.Sprintf(
		`<stream:stream xmlns:stream='%s' xmlns='%s' from='%s' id='%s' version='1.0'>`,
		ns.Stream, xmlns, domain, id))
}

// streamFeatures is sent immediately after streamOpen on a client link; this
// dialect negotiates no stream features (no TLS, no SASL), so it is always
// empty.
func streamFeatures() []byte {
	return []byte(`<stream:features/>`)
}

// streamClose is sent on clean stream shutdown, either side.
func streamClose() []byte {
	return []byte(`</stream:stream>`)
}

// renderElement serializes a single well-formed element token stream to its
// wire bytes, the same xmlstream.Copy path handshake.go uses for the
// dialback stanzas.
func renderElement(r xmlstream.TokenReader) []byte {
	var b strings.Builder
	enc := xml.NewEncoder(&b)
	if _, err := xmlstream.Copy(enc, r); err != nil {
		return nil
	}
	_ = enc.Flush()
	return []byte(b.String())
}

// loginSuccess is the canned reply to a jabber:iq:auth login set-iq.
func loginSuccess(id string) []byte {
	start := xml.StartElement{
		Name: xml.Name{Local: "iq"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: "result"},
			{Name: xml.Name{Local: "id"}, Value: id},
		},
	}
	return renderElement(xmlstream.Wrap(nil, start))
}

// parseErrorStanza is sent immediately before a Node is torn down because
// its parser signaled a sticky XML error.
func parseErrorStanza() []byte {
	cond := xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Space: ns.Streams, Local: "xml-not-well-formed"},
	})
	streamErr := xmlstream.Wrap(cond, xml.StartElement{
		Name: xml.Name{Local: "stream:error"},
	})
	return append(renderElement(streamErr), streamClose()...)
}

// noRecipientStanza is sent to the originator of a message when origTo could
// not be delivered to, locally or remotely. Per the wire template, the
// reply's to= is the failed delivery's from= (the originator) and its
// from= names the address that bounced.
func noRecipientStanza(origTo, origFrom string) []byte {
	cond := xmlstream.Wrap(nil, xml.StartElement{
		Name: xml.Name{Space: ns.Stanza, Local: "item-not-found"},
	})
	errEl := xmlstream.Wrap(cond, xml.StartElement{
		Name: xml.Name{Local: "error"},
		Attr: []xml.Attr{{Name: xml.Name{Local: "type"}, Value: "cancel"}},
	})
	msg := xmlstream.Wrap(errEl, xml.StartElement{
		Name: xml.Name{Local: "message"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: "error"},
			{Name: xml.Name{Local: "to"}, Value: origFrom},
			{Name: xml.Name{Local: "from"}, Value: origTo},
		},
	})
	return renderElement(msg)
}
