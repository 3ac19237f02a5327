// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stanza

import (
	"encoding/xml"

	"go.chatd.dev/chatd/jid"
)

// Message is an XMPP stanza that is used for push-style communication such as
// chat messages.
// Unlike IQ, a Message does not generally require a response from the
// receiving entity.
type Message struct {
	XMLName xml.Name    `xml:"message"`
	ID      string      `xml:"id,attr"`
	To      *jid.JID    `xml:"to,attr"`
	From    *jid.JID    `xml:"from,attr"`
	Lang    string      `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Type    MessageType `xml:"type,attr,omitempty"`
}

// MessageType is the type of a message stanza.
// It should normally be one of the constants defined in this package.
type MessageType string

const (
	// NormalMessage is a single message that is sent outside the context of a
	// one-to-one conversation or groupchat, and to which it is expected that the
	// recipient will reply.
	NormalMessage MessageType = "normal"

	// ChatMessage represents a message sent in the context of a one-to-one chat
	// session.
	ChatMessage MessageType = "chat"

	// GroupChatMessage represents a message sent in the context of a
	// multi-user chat environment.
	GroupChatMessage MessageType = "groupchat"

	// HeadlineMessage provides an alert, a notice, or other transient
	// information to which no reply is expected (e.g., news headlines, sports
	// updates, stock quotes).
	HeadlineMessage MessageType = "headline"

	// ErrorMessage indicates that an error has occurred regarding processing of
	// a previously sent message stanza.
	ErrorMessage MessageType = "error"
)

// MarshalXMLAttr satisfies the xml.MarshalerAttr interface for MessageType.
func (t MessageType) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	if t == "" {
		return xml.Attr{}, nil
	}
	return xml.Attr{Name: name, Value: string(t)}, nil
}
