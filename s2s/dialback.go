// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package s2s contains the Server Dialback stanza templates used to
// authenticate server-to-server peer links.
package s2s // import "go.chatd.dev/chatd/s2s"

import (
	"encoding/xml"

	"mellium.im/xmlstream"

	"go.chatd.dev/chatd/internal/attr"
)

// NS is the namespace of the dialback elements (db:result, db:verify).
const NS = "jabber:server:dialback"

// Result returns a token stream encoding a <db:result/> element, used by
// the initiator to present its derived key to the receiver, and by the
// receiver to announce the outcome of verification back to the initiator.
//
// When typ is empty the element carries key as character data (the
// initiator's opening offer). When typ is "valid" or "invalid", key is
// ignored and the element is sent empty, carrying only the outcome.
func Result(from, to, typ, key string) xmlstream.TokenReader {
	attr := []xml.Attr{
		{Name: xml.Name{Local: "from"}, Value: from},
		{Name: xml.Name{Local: "to"}, Value: to},
	}
	if typ != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: typ})
	}
	start := xml.StartElement{
		Name: xml.Name{Space: NS, Local: "result"},
		Attr: attr,
	}
	if typ != "" {
		return xmlstream.Wrap(nil, start)
	}
	return xmlstream.Wrap(xmlstream.Token(xml.CharData(key)), start)
}

// Verify returns a token stream encoding a <db:verify/> element, used by the
// receiver to ask the original sender of id to confirm the key it
// presented. The initiator's echo is built by VerifyResponse.
//
// When typ is empty the element carries key as character data (the
// receiver's verification request). When typ is "valid" or "invalid", key
// is ignored.
func Verify(id, from, to, typ, key string) xmlstream.TokenReader {
	attr := []xml.Attr{
		{Name: xml.Name{Local: "id"}, Value: id},
		{Name: xml.Name{Local: "from"}, Value: from},
		{Name: xml.Name{Local: "to"}, Value: to},
	}
	if typ != "" {
		attr = append(attr, xml.Attr{Name: xml.Name{Local: "type"}, Value: typ})
	}
	start := xml.StartElement{
		Name: xml.Name{Space: NS, Local: "verify"},
		Attr: attr,
	}
	if typ != "" {
		return xmlstream.Wrap(nil, start)
	}
	return xmlstream.Wrap(xmlstream.Token(xml.CharData(key)), start)
}

// VerifyResponse returns a token stream encoding the initiator's echo of a
// verify request back to the receiver, confirming it was the one that sent
// the original db:result offer.
func VerifyResponse(id, from, to string) xmlstream.TokenReader {
	start := xml.StartElement{
		Name: xml.Name{Space: NS, Local: "verify-response"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "id"}, Value: id},
			{Name: xml.Name{Local: "from"}, Value: from},
			{Name: xml.Name{Local: "to"}, Value: to},
		},
	}
	return xmlstream.Wrap(nil, start)
}

// Attr extracts the value of a named attribute from start, returning "" if
// it is absent. It is a small convenience used by the handshake state
// machine when reading incoming dialback elements.
func Attr(start xml.StartElement, local string) string {
	_, v := attr.Get(start.Attr, local)
	return v
}
