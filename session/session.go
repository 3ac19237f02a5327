// Copyright 2016 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

// Package session implements the client side of a connection to a chatd
// server: it dials outbound, performs the client stream open and
// jabber:iq:auth login negotiation, and exposes inbound stanzas to a caller
// as structured messages.
package session // import "go.chatd.dev/chatd/session"

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net"

	"mellium.im/xmlstream"

	"go.chatd.dev/chatd/dial"
	"go.chatd.dev/chatd/internal/attr"
	"go.chatd.dev/chatd/internal/ns"
	intstream "go.chatd.dev/chatd/internal/stream"
	"go.chatd.dev/chatd/jid"
	"go.chatd.dev/chatd/stanza"
)

// ErrLoginFailed is returned when the server does not reply to the login
// request with a jabber:iq:auth result iq.
var ErrLoginFailed = errors.New("session: login failed")

// Message pairs a decoded stanza.Message with its raw body text, the only
// payload this dialect's message stanzas are specified to carry.
type Message struct {
	stanza.Message
	Body string `xml:"body"`
}

// Session is an established, authenticated connection to a chatd server. It
// is not safe for concurrent use by multiple goroutines.
type Session struct {
	conn net.Conn
	in   xml.TokenReader
}

// Dial connects to a chatd server at host:port, opens a jabber:client
// stream addressed to j's domain, and completes the jabber:iq:auth login
// exchange for j using password. The returned Session is ready for Next
// and Send.
func Dial(ctx context.Context, network, host string, port uint16, j jid.JID, password string) (*Session, error) {
	conn, err := dial.Server(ctx, network, host, port)
	if err != nil {
		return nil, fmt.Errorf("session: dial: %w", err)
	}
	s, err := negotiate(conn, j, password)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// negotiate drives the client-side handshake over an already-open
// connection. Split out from Dial so tests can exercise it against a
// loopback listener without going through the dial package.
func negotiate(conn net.Conn, j jid.JID, password string) (*Session, error) {
	if _, err := fmt.Fprintf(conn,
		`<stream:stream xmlns:stream='%s' xmlns='%s' to='%s' version='1.0'>`,
		ns.Stream, ns.Client, j.Domainpart()); err != nil {
		return nil, fmt.Errorf("session: writing stream open: %w", err)
	}

	dec := xml.NewDecoder(conn)

	if _, err := expectStreamOpen(dec); err != nil {
		return nil, err
	}
	if err := skipNextElement(dec); err != nil {
		return nil, fmt.Errorf("session: reading stream features: %w", err)
	}

	id := attr.RandomID()
	if err := writeLoginIQ(conn, id, j, password); err != nil {
		return nil, err
	}
	if err := expectLoginResult(dec, id); err != nil {
		return nil, err
	}

	return &Session{
		conn: conn,
		in:   intstream.Reader(dec),
	}, nil
}

// writeLoginIQ serializes and sends the jabber:iq:auth login request.
func writeLoginIQ(w io.Writer, id string, j jid.JID, password string) error {
	query := xmlstream.Wrap(
		xmlstream.MultiReader(
			wrapText("username", j.Localpart()),
			wrapText("password", password),
			wrapText("resource", j.Resourcepart()),
		),
		xml.StartElement{Name: xml.Name{Space: ns.Auth, Local: "query"}},
	)
	iq := xmlstream.Wrap(query, xml.StartElement{
		Name: xml.Name{Local: "iq"},
		Attr: []xml.Attr{
			{Name: xml.Name{Local: "type"}, Value: "set"},
			{Name: xml.Name{Local: "id"}, Value: id},
		},
	})
	enc := xml.NewEncoder(w)
	if _, err := xmlstream.Copy(enc, iq); err != nil {
		return fmt.Errorf("session: writing login iq: %w", err)
	}
	return enc.Flush()
}

func wrapText(local, text string) xmlstream.TokenReader {
	return xmlstream.Wrap(xmlstream.Token(xml.CharData(text)), xml.StartElement{Name: xml.Name{Local: local}})
}

// expectStreamOpen reads the server's opening <stream:stream> tag and
// returns its start element.
func expectStreamOpen(dec *xml.Decoder) (xml.StartElement, error) {
	for {
		tok, err := dec.Token()
		if err != nil {
			return xml.StartElement{}, fmt.Errorf("session: reading stream open: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Space != ns.Stream || start.Name.Local != "stream" {
			return xml.StartElement{}, fmt.Errorf("session: unexpected root element %v", start.Name)
		}
		return start, nil
	}
}

// skipNextElement reads forward to the next start tag and consumes it
// (and, if it has children, everything through its matching end tag).
func skipNextElement(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		if _, ok := tok.(xml.StartElement); ok {
			return dec.Skip()
		}
	}
}

// expectLoginResult reads stanzas until it sees the iq reply matching id,
// discarding anything else (this dialect sends nothing else before the
// login result).
func expectLoginResult(dec *xml.Decoder, id string) error {
	for {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("session: reading login result: %w", err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "iq" {
			if err := dec.Skip(); err != nil {
				return err
			}
			continue
		}
		var gotID, typ string
		for _, a := range start.Attr {
			switch a.Name.Local {
			case "id":
				gotID = a.Value
			case "type":
				typ = a.Value
			}
		}
		if err := dec.Skip(); err != nil {
			return err
		}
		if gotID != id || typ != "result" {
			return ErrLoginFailed
		}
		return nil
	}
}

// Next blocks until the next top-level stanza arrives and decodes it as a
// Message. Non-message stanzas (this dialect routes only messages) are
// skipped.
func (s *Session) Next() (Message, error) {
	for {
		tok, err := s.in.Token()
		if err != nil {
			return Message{}, err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		if start.Name.Local != "message" {
			continue
		}
		// xmlstream.Token re-synthesizes the start element we already
		// consumed from s.in so DecodeElement can read it back off the
		// decoder; see mellium.im/issue/196 for the same workaround in the
		// teacher corpus.
		d := xml.NewTokenDecoder(xmlstream.MultiReader(xmlstream.Token(start), s.in))
		if _, err := d.Token(); err != nil {
			return Message{}, err
		}
		var msg Message
		if err := d.DecodeElement(&msg, &start); err != nil {
			return Message{}, fmt.Errorf("session: decoding message: %w", err)
		}
		return msg, nil
	}
}

// Send writes a pre-addressed message stanza to the stream.
func (s *Session) Send(to jid.JID, body string) error {
	msg := xmlstream.Wrap(
		xmlstream.Wrap(xmlstream.Token(xml.CharData(body)), xml.StartElement{Name: xml.Name{Local: "body"}}),
		xml.StartElement{
			Name: xml.Name{Local: "message"},
			Attr: []xml.Attr{{Name: xml.Name{Local: "to"}, Value: to.String()}},
		},
	)
	enc := xml.NewEncoder(s.conn)
	if _, err := xmlstream.Copy(enc, msg); err != nil {
		return fmt.Errorf("session: sending message: %w", err)
	}
	return enc.Flush()
}

// Close sends a stream close tag and closes the underlying connection.
func (s *Session) Close() error {
	if _, err := io.WriteString(s.conn, `</stream:stream>`); err != nil {
		s.conn.Close()
		return err
	}
	return s.conn.Close()
}
