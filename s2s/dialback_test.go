// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package s2s_test

import (
	"encoding/xml"
	"strings"
	"testing"

	"mellium.im/xmlstream"

	"go.chatd.dev/chatd/s2s"
)

func render(t *testing.T, r xml.TokenReader) string {
	t.Helper()
	var b strings.Builder
	e := xml.NewEncoder(&b)
	if _, err := xmlstream.Copy(e, r); err != nil {
		t.Fatalf("error copying tokens: %v", err)
	}
	if err := e.Flush(); err != nil {
		t.Fatalf("error flushing encoder: %v", err)
	}
	return b.String()
}

func TestResultOffer(t *testing.T) {
	out := render(t, s2s.Result("i.example", "r.example", "", "thekey"))
	const want = `<result xmlns="jabber:server:dialback" from="i.example" to="r.example">thekey</result>`
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestResultOutcome(t *testing.T) {
	out := render(t, s2s.Result("r.example", "i.example", "valid", ""))
	const want = `<result xmlns="jabber:server:dialback" from="r.example" to="i.example" type="valid"></result>`
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestVerifyRequest(t *testing.T) {
	out := render(t, s2s.Verify("streamid", "r.example", "i.example", "", "thekey"))
	const want = `<verify xmlns="jabber:server:dialback" id="streamid" from="r.example" to="i.example">thekey</verify>`
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestVerifyResponse(t *testing.T) {
	out := render(t, s2s.VerifyResponse("streamid", "i.example", "r.example"))
	const want = `<verify-response xmlns="jabber:server:dialback" id="streamid" from="i.example" to="r.example"></verify-response>`
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestAttr(t *testing.T) {
	start := xml.StartElement{Attr: []xml.Attr{{Name: xml.Name{Local: "from"}, Value: "a.example"}}}
	if got := s2s.Attr(start, "from"); got != "a.example" {
		t.Errorf("got %q, want a.example", got)
	}
	if got := s2s.Attr(start, "to"); got != "" {
		t.Errorf("got %q, want empty string", got)
	}
}
