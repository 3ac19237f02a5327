// Copyright 2014 Sam Whited.
// Use of this source code is governed by the BSD 2-clause license that can be
// found in the LICENSE file.

package server

import (
	"encoding/xml"
	"io"
)

type evKind int

const (
	evStart evKind = iota
	evEnd
	evChars
	evErr
	evIdle
)

// xmlEvent is one of the three event kinds the state machine reacts to, or
// an idle marker meaning "no more events derivable from the bytes pushed so
// far," or a terminal decode error.
type xmlEvent struct {
	kind  evKind
	start xml.StartElement
	end   xml.EndElement
	chars []byte
	err   error
}

// pushParser adapts Go's pull-based encoding/xml.Decoder to the push_chunk
// contract: bytes arrive in discrete chunks, and each chunk synchronously
// drains exactly the events it makes decodable, dispatched on the caller's
// goroutine rather than on the background decode goroutine.
//
// A background goroutine drives the Decoder, which calls back into Read
// whenever it needs more bytes than have been pushed. Read, right before it
// would block waiting for the next chunk, always sends an idle marker on
// events first; push_chunk relies on that marker to know a chunk's worth of
// events has been fully delivered.
type pushParser struct {
	chunkCh chan []byte
	events  chan xmlEvent
	buf     []byte
	closed  bool // set by Read on the decode goroutine once chunkCh is closed
}

func newPushParser() *pushParser {
	p := &pushParser{
		chunkCh: make(chan []byte),
		events:  make(chan xmlEvent),
	}
	go p.run()
	// The decoder's first Read finds no bytes and reports idle before any
	// chunk is pushed; consume it so the pushChunk invariant holds from the
	// first call on.
	<-p.events
	return p
}

// Read implements io.Reader for the decode goroutine. It never returns
// io.EOF except after Close; a decoder that runs out of pushed bytes simply
// blocks (after signaling idle) until the next chunk arrives.
func (p *pushParser) Read(b []byte) (int, error) {
	for len(p.buf) == 0 {
		p.events <- xmlEvent{kind: evIdle}
		chunk, ok := <-p.chunkCh
		if !ok {
			p.closed = true
			return 0, io.EOF
		}
		p.buf = chunk
	}
	n := copy(b, p.buf)
	p.buf = p.buf[n:]
	return n, nil
}

func (p *pushParser) run() {
	dec := xml.NewDecoder(p)
	for {
		// RawToken, not Token: this wire format is a flat sequence of
		// elements distinguished by explicit xmlns= attributes (stream
		// opens, jabber:iq:auth, jabber:server:dialback), not a
		// namespace-scoped document. Token's namespace resolution would
		// silently consume the very xmlns attributes the state machine
		// needs to inspect on <stream:stream> and friends.
		tok, err := dec.RawToken()
		if err != nil {
			if p.closed {
				// No pushChunk call is left to receive the error.
				return
			}
			p.events <- xmlEvent{kind: evErr, err: err}
			return
		}
		switch t := tok.(type) {
		case xml.StartElement:
			p.events <- xmlEvent{kind: evStart, start: t.Copy()}
		case xml.EndElement:
			p.events <- xmlEvent{kind: evEnd, end: t}
		case xml.CharData:
			p.events <- xmlEvent{kind: evChars, chars: append([]byte(nil), t...)}
		}
	}
}

// pushChunk hands b to the decode goroutine and synchronously calls handle
// for each event derivable from it, on the calling goroutine. It returns
// once the decoder has drained back to idle (blocked waiting for the next
// chunk) or handle/the decoder reports an error.
//
// The invariant that makes this safe: between calls to pushChunk the decode
// goroutine is always parked in Read's chunkCh receive, having just sent the
// idle marker that the previous pushChunk call consumed to know it was done.
func (p *pushParser) pushChunk(b []byte, handle func(xmlEvent) error) error {
	p.chunkCh <- b
	// Once handle reports an error we stop dispatching further events to it,
	// but we must keep draining the channel until the decode goroutine parks
	// on evIdle (or exits on evErr): the goroutine blocks sending its next
	// event until someone receives it, so returning early here would leak it.
	var handleErr error
	for {
		ev := <-p.events
		switch ev.kind {
		case evIdle:
			return handleErr
		case evErr:
			if handleErr != nil {
				return handleErr
			}
			return ev.err
		default:
			if handleErr == nil {
				if err := handle(ev); err != nil {
					handleErr = err
				}
			}
		}
	}
}

// close tears down the background decode goroutine. It must only be called
// once, after the last pushChunk call has returned.
func (p *pushParser) close() {
	close(p.chunkCh)
}
