// Copyright 2019 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream_test

import (
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"

	intstream "go.chatd.dev/chatd/internal/stream"
)

func allTokens(t *testing.T, r xml.TokenReader) ([]xml.Token, error) {
	t.Helper()
	var toks []xml.Token
	for {
		tok, err := r.Token()
		if tok != nil {
			toks = append(toks, xml.CopyToken(tok))
		}
		if err != nil {
			return toks, err
		}
	}
}

func TestReaderPassesThroughStanzas(t *testing.T) {
	const input = `<message xmlns="jabber:client"><body>hi</body></message>`
	d := xml.NewDecoder(strings.NewReader(input))
	r := intstream.Reader(d)
	toks, err := allTokens(t, r)
	if err != nil && err != io.EOF {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(toks) == 0 {
		t.Fatal("expected at least one token")
	}
}

func TestReaderStreamEndIsEOF(t *testing.T) {
	const input = `<stream:stream xmlns:stream="http://etherx.jabber.org/streams"></stream:stream>`
	d := xml.NewDecoder(strings.NewReader(input))
	if _, err := d.Token(); err != nil { // consume the stream header
		t.Fatalf("reading stream header: %v", err)
	}
	r := intstream.Reader(d)
	_, err := allTokens(t, r)
	if !errors.Is(err, io.EOF) {
		t.Errorf("got error %v, want io.EOF", err)
	}
}

func TestReaderStreamErrorUnwrapped(t *testing.T) {
	const input = `<stream:stream xmlns:stream="http://etherx.jabber.org/streams"><stream:error><restricted-xml xmlns="urn:ietf:params:xml:ns:xmpp-streams"/></stream:error>`
	d := xml.NewDecoder(strings.NewReader(input))
	if _, err := d.Token(); err != nil { // consume the stream header
		t.Fatalf("reading stream header: %v", err)
	}
	r := intstream.Reader(d)
	_, err := allTokens(t, r)
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "restricted-xml" {
		t.Errorf("got error %q, want restricted-xml", err.Error())
	}
}

func TestReaderRejectsStreamRestart(t *testing.T) {
	const input = `<stream:stream xmlns:stream="http://etherx.jabber.org/streams"/>`
	d := xml.NewDecoder(strings.NewReader(input))
	r := intstream.Reader(d)
	_, err := allTokens(t, r)
	if !errors.Is(err, intstream.ErrUnexpectedRestart) {
		t.Errorf("got error %v, want ErrUnexpectedRestart", err)
	}
}
